package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"reservo/internal/availability"
	"reservo/internal/schedule"
	"reservo/internal/slots"
)

// DefaultConcurrency bounds parallel per-date fetches.
const DefaultConcurrency = 6

// FetchFunc returns the occupancy of the given slots of one date.
type FetchFunc func(ctx context.Context, date string, list []slots.Slot) (availability.Occupancy, error)

// Month is a classified month together with per-date fetch errors.
type Month struct {
	Year   int
	Month  time.Month
	Days   []Day
	Errors map[string]error
}

// Unverified reports whether any date was classified without occupancy data.
func (m Month) Unverified() bool {
	for _, d := range m.Days {
		if d.Unverified {
			return true
		}
	}
	return false
}

// Loader fetches occupancy for a month concurrently and classifies it.
type Loader struct {
	fetch       FetchFunc
	concurrency int
	log         *zerolog.Logger
}

// NewLoader creates a loader. concurrency <= 0 uses DefaultConcurrency.
func NewLoader(fetch FetchFunc, concurrency int, log *zerolog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Loader{fetch: fetch, concurrency: concurrency, log: log}
}

// LoadMonth fetches occupancy for every date that needs it and classifies the
// month. Results are keyed by date, so completion order does not matter. A
// failed date is classified full and unverified; only context cancellation
// fails the whole call.
func (l *Loader) LoadMonth(ctx context.Context, cfg schedule.Config, year int, month time.Month, now time.Time, zone string) (Month, error) {
	pending := NeedsOccupancy(cfg, year, month, now)

	var (
		mu      sync.Mutex
		results = make(map[string]availability.Occupancy, len(pending))
		errs    = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for date, list := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			occ, err := l.fetch(gctx, date, list)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[date] = err
				return nil
			}
			results[date] = occ
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Month{}, err
	}
	if err := ctx.Err(); err != nil {
		return Month{}, err
	}

	for date, err := range errs {
		l.log.Warn().Err(err).Str("date", date).Msg("occupancy unavailable, day marked full")
	}

	lookup := func(date string) (availability.Occupancy, bool) {
		occ, ok := results[date]
		return occ, ok
	}

	return Month{
		Year:   year,
		Month:  month,
		Days:   ClassifyMonth(cfg, year, month, now, lookup, zone),
		Errors: errs,
	}, nil
}
