// Package store reads business configuration and reservations from SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"reservo/internal/availability"
	"reservo/internal/mode"
	"reservo/internal/schedule"
	"reservo/internal/widget"
)

// ErrBusinessNotFound is returned for an unknown business id.
var ErrBusinessNotFound = errors.New("business not found")

// DB wraps sql.DB for single-node deployments.
type DB struct {
	*sql.DB
}

var (
	_ widget.Source    = (*DB)(nil)
	_ widget.Submitter = (*DB)(nil)
)

// NewDB opens the database at path and creates missing tables.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS businesses (
			id TEXT PRIMARY KEY,
			name TEXT,
			config TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			zone TEXT,
			units INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'pending',
			FOREIGN KEY (business_id) REFERENCES businesses(id)
		)`,

		`CREATE TABLE IF NOT EXISTS workshop_sessions (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			title TEXT NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			capacity INTEGER NOT NULL DEFAULT 0,
			booked INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (business_id) REFERENCES businesses(id)
		)`,

		// Forwarded bookings waiting for the booking backend to pick them up.
		`CREATE TABLE IF NOT EXISTS submissions (
			reference TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_business_date ON reservations(business_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_workshops_business ON workshop_sessions(business_id, date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// BusinessConfig returns the stored configuration document of a business.
// Malformed members end up in Raw.Issues; unreadable JSON is an error.
func (db *DB) BusinessConfig(ctx context.Context, businessID string) (schedule.Raw, mode.Raw, error) {
	var doc string
	err := db.QueryRowContext(ctx, `SELECT config FROM businesses WHERE id = ?`, businessID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Raw{}, mode.Raw{}, fmt.Errorf("%w: %s", ErrBusinessNotFound, businessID)
	}
	if err != nil {
		return schedule.Raw{}, mode.Raw{}, fmt.Errorf("query business %s: %w", businessID, err)
	}

	var (
		rs schedule.Raw
		rm mode.Raw
	)
	if err := json.Unmarshal([]byte(doc), &rs); err != nil {
		return schedule.Raw{}, mode.Raw{}, fmt.Errorf("decode schedule of %s: %w", businessID, err)
	}
	if err := json.Unmarshal([]byte(doc), &rm); err != nil {
		return schedule.Raw{}, mode.Raw{}, fmt.Errorf("decode booking mode of %s: %w", businessID, err)
	}
	return rs, rm, nil
}

// Reservations lists the reservations of a business on a date, cancelled ones included.
func (db *DB) Reservations(ctx context.Context, businessID, date string) ([]availability.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date, time, COALESCE(zone, ''), units, status
		FROM reservations
		WHERE business_id = ? AND date = ?
		ORDER BY time`,
		businessID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []availability.Reservation
	for rows.Next() {
		var r availability.Reservation
		if err := rows.Scan(&r.Date, &r.Time, &r.Zone, &r.Units, &r.Status); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Workshops lists the workshop sessions of a business. Rows with unparsable
// times are skipped.
func (db *DB) Workshops(ctx context.Context, businessID string) ([]mode.WorkshopSession, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, title, date, start_time, end_time, capacity, booked
		FROM workshop_sessions
		WHERE business_id = ?
		ORDER BY date, start_time`,
		businessID,
	)
	if err != nil {
		return nil, fmt.Errorf("query workshops: %w", err)
	}
	defer rows.Close()

	var out []mode.WorkshopSession
	for rows.Next() {
		var (
			s          mode.WorkshopSession
			start, end string
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.Date, &start, &end, &s.Capacity, &s.Booked); err != nil {
			return nil, fmt.Errorf("scan workshop: %w", err)
		}
		if s.Start, err = schedule.ParseClock(start); err != nil {
			continue
		}
		if s.End, err = schedule.ParseClock(end); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Submit queues the booking in the submissions table. The reservations table
// is never written here.
func (db *DB) Submit(ctx context.Context, p mode.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO submissions (reference, business_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		p.Reference, p.BusinessID, string(data), time.Now().UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: duplicate reference %s", widget.ErrSubmissionRejected, p.Reference)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// PendingSubmissions returns queued bookings, oldest first.
func (db *DB) PendingSubmissions(ctx context.Context, businessID string) ([]mode.Payload, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT payload FROM submissions WHERE business_id = ? ORDER BY created_at, reference`, businessID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []mode.Payload
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p mode.Payload
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Ready checks the connection; used by readiness probes.
func (db *DB) Ready(ctx context.Context) error {
	return db.PingContext(ctx)
}
