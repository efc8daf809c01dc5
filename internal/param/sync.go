// Package param retrieves and writes onboard vehicle parameters.
package param

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/uavlink/gcs/internal/link"
	"github.com/uavlink/gcs/internal/mav"
)

var (
	// ErrNameTooLong is returned for a parameter name over the wire limit.
	ErrNameTooLong = errors.New("parameter name exceeds 16 characters")

	// ErrEmptyTable is returned when the vehicle reports a zero-sized
	// parameter table.
	ErrEmptyTable = errors.New("vehicle reported an empty parameter table")
)

// Table maps parameter names to their numeric values. Each successful
// FetchAll builds a fresh table; it is never merged into a previous one.
type Table map[string]float64

// Link is the slice of the link monitor the syncer needs.
type Link interface {
	Connected() bool
	Identity() (mav.Identity, bool)
	Send(msg mav.Message) error
	Await(ctx context.Context, timeout time.Duration, accept func(mav.Message) bool) (mav.Message, error)
}

const (
	// defaultIdleTimeout bounds the silence between value frames before the
	// list request is reissued.
	defaultIdleTimeout = 2 * time.Second
	defaultMaxRetries  = 3
)

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the syncer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger.With(slog.String("component", "param"))
	}
}

// WithIdleTimeout overrides how long a fetch tolerates silence before
// reissuing the list request. Non-positive values keep the default.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithMaxRetries bounds how many times the list request is issued in
// total. Non-positive values keep the default.
func WithMaxRetries(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// Syncer performs full-table parameter retrieval and single-shot writes.
type Syncer struct {
	link        Link
	idleTimeout time.Duration
	maxRetries  int
	logger      *slog.Logger
}

// NewSyncer creates a syncer over an established link.
func NewSyncer(link Link, options ...Option) *Syncer {
	s := &Syncer{
		link:        link,
		idleTimeout: defaultIdleTimeout,
		maxRetries:  defaultMaxRetries,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// FetchAll requests the full parameter list and accumulates value frames,
// in whatever order they arrive, until every index 0..count-1 was seen.
// The terminal-index heuristic alone is not trusted: a duplicate never
// completes the set early and a missing index surfaces as a timeout instead
// of a silently short table.
func (s *Syncer) FetchAll(ctx context.Context) (Table, error) {
	vehicle, ok := s.link.Identity()
	if !s.link.Connected() || !ok {
		return nil, fmt.Errorf("parameter fetch: %w", link.ErrNotConnected)
	}

	started := time.Now()
	table := make(Table)
	seen := make(map[uint16]struct{})
	var count int = -1 // unknown until the first value frame

	acceptValue := func(msg mav.Message) bool {
		_, ok := msg.Frame.(mav.ParamValue)
		return ok
	}

	attempt := 0
	for count < 0 || len(seen) < count {
		if len(seen) == 0 {
			if attempt >= s.maxRetries {
				return nil, fmt.Errorf("parameter fetch: no values received: %w", link.ErrTimeout)
			}
			attempt++

			err := s.link.Send(mav.Message{Frame: mav.ParamRequestList{Target: vehicle}})
			if err != nil {
				return nil, fmt.Errorf("parameter fetch: requesting list: %w", err)
			}
		}

		msg, err := s.link.Await(ctx, s.idleTimeout, acceptValue)
		if err != nil {
			if errors.Is(err, link.ErrTimeout) {
				if len(seen) == 0 {
					s.logger.Warn("no parameter values yet, reissuing request",
						slog.Int("attempt", attempt))
					continue
				}
				return nil, fmt.Errorf("parameter fetch: stalled at %d of %d: %w",
					len(seen), count, err)
			}
			return nil, fmt.Errorf("parameter fetch: %w", err)
		}

		value := msg.Frame.(mav.ParamValue)
		if value.Count == 0 {
			return nil, ErrEmptyTable
		}
		if count < 0 {
			count = int(value.Count)
		}

		table[value.ID] = float64(value.Value)
		seen[value.Index] = struct{}{}
	}

	s.logger.Info("parameter sync complete",
		slog.Int("parameters", len(table)),
		slog.Duration("took", time.Since(started)))
	return table, nil
}

// Set writes one parameter as a 32-bit float. No confirmation is awaited;
// the vehicle's accepted value is only observable through a later fetch.
func (s *Syncer) Set(name string, value float64) error {
	if len(name) > mav.ParamIDMaxLen {
		return fmt.Errorf("set parameter %q: %w", name, ErrNameTooLong)
	}

	vehicle, ok := s.link.Identity()
	if !s.link.Connected() || !ok {
		return fmt.Errorf("set parameter %q: %w", name, link.ErrNotConnected)
	}

	err := s.link.Send(mav.Message{Frame: mav.ParamSet{
		Target: vehicle,
		ID:     name,
		Value:  float32(value),
		Kind:   mav.ParamTypeReal32,
	}})
	if err != nil {
		s.logger.Error("parameter set failed",
			slog.String("name", name), slog.String("error", err.Error()))
		return fmt.Errorf("set parameter %q: %w", name, err)
	}

	s.logger.Info("parameter set sent",
		slog.String("name", name), slog.Float64("value", value))
	return nil
}
