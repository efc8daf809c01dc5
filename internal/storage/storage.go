// Package storage persists flight sessions and their telemetry history in
// a local sqlite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/uavlink/gcs/internal/mav"
	"github.com/uavlink/gcs/internal/telemetry"
)

// defaultFlushSize is how many buffered snapshots trigger a batched write.
const defaultFlushSize = 50

// FlightLog records telemetry snapshots per connect episode. Appends are
// buffered and written in a single transaction once the batch fills or the
// log is flushed.
type FlightLog struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	mu        sync.Mutex
	pending   []pendingRow
	flushSize int

	closeOnce sync.Once
	closeErr  error
}

type pendingRow struct {
	flightID string
	snap     telemetry.Snapshot
}

// Option configures a FlightLog.
type Option func(*FlightLog)

// WithFlushSize overrides the batch size for buffered appends.
func WithFlushSize(n int) Option {
	return func(l *FlightLog) {
		if n > 0 {
			l.flushSize = n
		}
	}
}

// New creates a flight log backed by the sqlite file at dbPath.
func New(dbPath string, options ...Option) *FlightLog {
	l := &FlightLog{
		dbPath:    dbPath,
		flushSize: defaultFlushSize,
	}

	for _, option := range options {
		option(l)
	}

	return l
}

func (l *FlightLog) getDB() (*sql.DB, error) {
	l.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", l.dbPath))
		if err != nil {
			l.dbErr = fmt.Errorf("opening database: %w", err)
			return
		}

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			l.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		l.db = db
	})

	return l.db, l.dbErr
}

// CreateFlight records a new connect episode and returns its identifier.
func (l *FlightLog) CreateFlight(ctx context.Context, descriptor string, vehicle mav.Identity) (string, error) {
	db, err := l.getDB()
	if err != nil {
		return "", fmt.Errorf("getting connection: %w", err)
	}

	id := uuid.NewString()
	_, err = db.ExecContext(ctx, insertFlightSQL,
		id, time.Now().UTC(), descriptor, vehicle.SystemID, vehicle.ComponentID)
	if err != nil {
		return "", fmt.Errorf("inserting flight: %w", err)
	}

	return id, nil
}

// Flights returns every recorded connect episode, oldest first.
func (l *FlightLog) Flights(ctx context.Context) (flights []*Flight, err error) {
	db, err := l.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectFlightsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying flights: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var f Flight
		if err = rows.Scan(&f.ID, &f.StartedAt, &f.Descriptor, &f.SystemID, &f.ComponentID); err != nil {
			return nil, fmt.Errorf("scanning flight: %w", err)
		}
		flights = append(flights, &f)
	}
	return flights, rows.Err()
}

// Append buffers one snapshot for the flight; the batch is written once it
// reaches the flush size.
func (l *FlightLog) Append(ctx context.Context, flightID string, snap telemetry.Snapshot) error {
	l.mu.Lock()
	l.pending = append(l.pending, pendingRow{flightID: flightID, snap: snap})
	full := len(l.pending) >= l.flushSize
	l.mu.Unlock()

	if !full {
		return nil
	}
	return l.Flush(ctx)
}

// Flush writes every buffered snapshot in a single transaction.
func (l *FlightLog) Flush(ctx context.Context) (err error) {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	db, err := l.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	var sb strings.Builder
	sb.WriteString(insertTelemetrySQL)

	values := make([]any, 0, len(batch)*12)
	for i, row := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

		s := row.snap
		values = append(values,
			row.flightID,
			s.UpdatedAt.UTC(),
			s.Latitude,
			s.Longitude,
			s.Altitude,
			s.Heading,
			s.Groundspeed,
			s.BatteryVoltage,
			s.BatteryRemaining,
			s.Mode,
			s.Armed,
			s.SystemStatus,
		)
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting telemetry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Records returns the telemetry history of one flight in time order.
func (l *FlightLog) Records(ctx context.Context, flightID string) (records []*Record, err error) {
	db, err := l.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectTelemetrySQL, flightID)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r Record
		if err = rows.Scan(
			&r.Timestamp,
			&r.Latitude,
			&r.Longitude,
			&r.Altitude,
			&r.Heading,
			&r.Groundspeed,
			&r.BatteryVoltage,
			&r.BatteryRemaining,
			&r.Mode,
			&r.Armed,
			&r.SystemStatus,
		); err != nil {
			return nil, fmt.Errorf("scanning telemetry: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Close flushes pending rows and releases the database. Safe to call more
// than once.
func (l *FlightLog) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.Flush(context.Background())

		if l.db != nil {
			_, _ = l.db.Exec(initIndexesSQL)
			if err := l.db.Close(); err != nil && l.closeErr == nil {
				l.closeErr = err
			}
			l.db = nil
		}
	})

	return l.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && *err == nil && rErr != sql.ErrTxDone {
		*err = rErr
	}
}
