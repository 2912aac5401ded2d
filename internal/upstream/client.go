// Package upstream talks to the reservation backend over HTTP.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"reservo/internal/availability"
	"reservo/internal/metrics"
	"reservo/internal/mode"
	"reservo/internal/schedule"
	"reservo/internal/widget"
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// Options configure a Client. Zero values disable the corresponding feature.
type Options struct {
	Timeout time.Duration
	// RatePerSecond and Burst limit outbound requests.
	RatePerSecond float64
	Burst         int
	// ConfigTTL caches business config and workshops, OccupancyTTL caches
	// reservations. Both need a redis client.
	ConfigTTL    time.Duration
	OccupancyTTL time.Duration
}

// Client reads configuration and reservations from the backend and forwards
// bookings to it.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zerolog.Logger

	redis        *redis.Client
	configTTL    time.Duration
	occupancyTTL time.Duration
}

// NewClient constructs a client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, opts Options, log *zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		limiter:      rate.NewLimiter(limit, opts.Burst),
		log:          log,
		configTTL:    opts.ConfigTTL,
		occupancyTTL: opts.OccupancyTTL,
	}
}

// UseRedisCache enables the read-through cache.
func (c *Client) UseRedisCache(redisClient *redis.Client) {
	c.redis = redisClient
}

var (
	_ widget.Source    = (*Client)(nil)
	_ widget.Submitter = (*Client)(nil)
)

// BusinessConfig fetches GET /api/v1/businesses/{id}/config. The same document
// carries the schedule and the booking mode. Members with the wrong type are
// dropped into Raw.Issues; only a document that is not JSON is an error.
func (c *Client) BusinessConfig(ctx context.Context, businessID string) (schedule.Raw, mode.Raw, error) {
	endpoint := fmt.Sprintf("%s/api/v1/businesses/%s/config", c.baseURL, url.PathEscape(businessID))
	cacheKey := fmt.Sprintf("config:%s", businessID)

	var doc json.RawMessage
	if !c.readCache(ctx, "config", cacheKey, c.configTTL, &doc) {
		if err := c.doGet(ctx, "config", endpoint, &doc); err != nil {
			return schedule.Raw{}, mode.Raw{}, fmt.Errorf("business config %s: %w", businessID, err)
		}
		c.writeCache(ctx, cacheKey, c.configTTL, doc)
	}

	var (
		rs schedule.Raw
		rm mode.Raw
	)
	if err := json.Unmarshal(doc, &rs); err != nil {
		return schedule.Raw{}, mode.Raw{}, fmt.Errorf("decode schedule: %w", err)
	}
	if err := json.Unmarshal(doc, &rm); err != nil {
		return schedule.Raw{}, mode.Raw{}, fmt.Errorf("decode booking mode: %w", err)
	}
	return rs, rm, nil
}

type occupancyResponse struct {
	Date         string                     `json:"date"`
	Reservations []availability.Reservation `json:"reservations"`
}

// Reservations fetches GET /api/v1/businesses/{id}/occupancy?date=YYYY-MM-DD.
func (c *Client) Reservations(ctx context.Context, businessID, date string) ([]availability.Reservation, error) {
	endpoint := fmt.Sprintf("%s/api/v1/businesses/%s/occupancy?date=%s",
		c.baseURL, url.PathEscape(businessID), url.QueryEscape(date))
	cacheKey := fmt.Sprintf("occupancy:%s:%s", businessID, date)

	var resp occupancyResponse
	if c.readCache(ctx, "occupancy", cacheKey, c.occupancyTTL, &resp) {
		return resp.Reservations, nil
	}
	if err := c.doGet(ctx, "occupancy", endpoint, &resp); err != nil {
		return nil, fmt.Errorf("occupancy %s %s: %w", businessID, date, err)
	}
	c.writeCache(ctx, cacheKey, c.occupancyTTL, resp)
	return resp.Reservations, nil
}

// Workshops fetches GET /api/v1/businesses/{id}/workshops.
func (c *Client) Workshops(ctx context.Context, businessID string) ([]mode.WorkshopSession, error) {
	endpoint := fmt.Sprintf("%s/api/v1/businesses/%s/workshops", c.baseURL, url.PathEscape(businessID))
	cacheKey := fmt.Sprintf("workshops:%s", businessID)

	var wrap struct {
		Sessions []mode.WorkshopSession `json:"sessions"`
	}
	if c.readCache(ctx, "workshops", cacheKey, c.configTTL, &wrap) {
		return wrap.Sessions, nil
	}
	if err := c.doGet(ctx, "workshops", endpoint, &wrap); err != nil {
		return nil, fmt.Errorf("workshops %s: %w", businessID, err)
	}
	c.writeCache(ctx, cacheKey, c.configTTL, wrap)
	return wrap.Sessions, nil
}

// Submit posts the booking to POST /api/v1/reservations. A 409 or 422 means
// the backend refused it and maps to widget.ErrSubmissionRejected.
func (c *Client) Submit(ctx context.Context, p mode.Payload) error {
	endpoint := fmt.Sprintf("%s/api/v1/reservations", c.baseURL)
	err := c.doPost(ctx, "submit", endpoint, p, nil)

	var se *StatusError
	if errors.As(err, &se) && (se.Code == http.StatusConflict || se.Code == http.StatusUnprocessableEntity) {
		return fmt.Errorf("%w: %s", widget.ErrSubmissionRejected, se.Error())
	}
	if err != nil {
		return err
	}

	// Cached occupancy for the date is now out of date.
	if c.redis != nil && p.Date != "" {
		_ = c.redis.Del(ctx, fmt.Sprintf("occupancy:%s:%s", p.BusinessID, p.Date)).Err()
	}
	return nil
}

// HealthCheck calls GET /healthz on the backend.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.doGet(ctx, "health", c.baseURL+"/healthz", nil)
}

func (c *Client) readCache(ctx context.Context, kind, key string, ttl time.Duration, out any) bool {
	if c.redis == nil || ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.IncCacheLookup(kind, false)
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		metrics.IncCacheLookup(kind, false)
		return false
	}
	metrics.IncCacheLookup(kind, true)
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, ttl time.Duration, val any) {
	if c.redis == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Client) doGet(ctx context.Context, name, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(name, req, out)
}

func (c *Client) doPost(ctx context.Context, name, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(name, req, out)
}

func (c *Client) do(name string, req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(name, "transport_error", time.Since(start))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.ObserveUpstream(name, fmt.Sprintf("%dxx", resp.StatusCode/100), time.Since(start))
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	metrics.ObserveUpstream(name, "ok", time.Since(start))

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
