package link

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/uavlink/gcs/internal/mav"
	"github.com/uavlink/gcs/internal/telemetry"
)

const (
	// DefaultHeartbeatTimeout is how long the link stays connected without
	// hearing a heartbeat.
	DefaultHeartbeatTimeout = 3 * time.Second

	// drainInterval is the sleep between empty transport polls while a
	// blocking wait (Connect, Await) is in progress.
	drainInterval = 2 * time.Millisecond
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger.With(slog.String("component", "link"))
	}
}

// WithHeartbeatTimeout overrides the liveness window. Non-positive values
// keep the default.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.hbTimeout = d
		}
	}
}

// WithLocalIdentity overrides the identity this station sends under.
func WithLocalIdentity(id mav.Identity) Option {
	return func(m *Monitor) {
		m.local = id
	}
}

// WithNow overrides the monitor clock. Used by tests.
func WithNow(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// Monitor owns the transport and is the sole authority on whether the link
// is up. Heartbeat arrival, not transport state, is the liveness signal: a
// datagram socket has no session, so only fresh heartbeats prove the
// vehicle is reachable.
//
// A Monitor is driven by a single goroutine: the owner alternates Poll with
// command and handshake calls. It is not safe for concurrent use.
type Monitor struct {
	tr      Transport
	decoder *telemetry.Decoder
	snap    telemetry.Snapshot

	local       mav.Identity
	vehicle     mav.Identity
	haveVehicle bool

	connected     bool
	lastHeartbeat time.Time
	hbTimeout     time.Duration
	closed        bool

	now    func() time.Time
	logger *slog.Logger
}

// NewMonitor wraps an open transport. The mode table is handed to the
// telemetry decoder for HEARTBEAT custom-mode resolution.
func NewMonitor(tr Transport, modes mav.ModeTable, options ...Option) *Monitor {
	m := &Monitor{
		tr:        tr,
		decoder:   telemetry.NewDecoder(modes),
		snap:      telemetry.NewSnapshot(),
		local:     mav.GroundStation,
		hbTimeout: DefaultHeartbeatTimeout,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(m)
	}

	m.decoder.WithNow(m.now)
	return m
}

// Connect waits for the first heartbeat, captures the vehicle identity from
// it and marks the link connected. The wait is bounded only by ctx; pass a
// deadline context to avoid blocking forever on a silent link.
func (m *Monitor) Connect(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	if m.connected {
		return nil
	}

	m.logger.Info("waiting for first heartbeat")

	for {
		// Checked every iteration: a link streaming non-heartbeat frames
		// must not starve the cancellation.
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for heartbeat: %w", ctx.Err())
		default:
		}

		msg, ok, err := m.tr.Next()
		if err != nil {
			return fmt.Errorf("waiting for heartbeat: %w", err)
		}

		if ok {
			m.route(msg)
			if msg.Type() == mav.TypeHeartbeat {
				m.vehicle = msg.Sender
				m.haveVehicle = true
				m.connected = true
				m.lastHeartbeat = m.now()

				m.logger.Info("vehicle link established",
					slog.String("vehicle", m.vehicle.String()),
					slog.String("mode", m.snap.Mode))
				return nil
			}
			continue
		}

		time.Sleep(drainInterval)
	}
}

// Poll drains every currently pending inbound frame into the telemetry
// snapshot, then applies the heartbeat timeout. The disconnect transition
// happens in the poll that first observes the expiry; subsequent polls
// return ErrNotConnected without transitioning again.
func (m *Monitor) Poll() error {
	if m.closed {
		return ErrClosed
	}
	if !m.connected {
		return ErrNotConnected
	}

	for {
		msg, ok, err := m.tr.Next()
		if err != nil {
			m.connected = false
			m.logger.Error("link read failed", slog.String("error", err.Error()))
			return fmt.Errorf("polling link: %w", err)
		}
		if !ok {
			break
		}
		m.route(msg)
	}

	if m.now().Sub(m.lastHeartbeat) > m.hbTimeout {
		m.connected = false
		m.logger.Warn("heartbeat timeout, link lost",
			slog.String("vehicle", m.vehicle.String()),
			slog.Duration("timeout", m.hbTimeout))
		return ErrHeartbeatTimeout
	}

	return nil
}

// Await drains inbound frames until one satisfies accept, the timeout
// elapses, or ctx is cancelled. Frames not accepted still flow through the
// normal telemetry path first, so liveness and the snapshot stay fresh
// while a handshake is waiting.
func (m *Monitor) Await(ctx context.Context, timeout time.Duration, accept func(mav.Message) bool) (mav.Message, error) {
	if m.closed {
		return mav.Message{}, ErrClosed
	}
	if !m.connected {
		return mav.Message{}, ErrNotConnected
	}

	deadline := m.now().Add(timeout)

	for {
		// Checked every iteration so a steady stream of non-matching frames
		// cannot starve the deadline.
		select {
		case <-ctx.Done():
			return mav.Message{}, fmt.Errorf("awaiting frame: %w", ctx.Err())
		default:
		}
		if m.now().After(deadline) {
			return mav.Message{}, ErrTimeout
		}

		msg, ok, err := m.tr.Next()
		if err != nil {
			m.connected = false
			return mav.Message{}, fmt.Errorf("awaiting frame: %w", err)
		}

		if ok {
			m.route(msg)
			if accept(msg) {
				return msg, nil
			}
			continue
		}

		time.Sleep(drainInterval)
	}
}

// Send stamps the station identity on msg and hands it to the transport.
func (m *Monitor) Send(msg mav.Message) error {
	if m.closed {
		return ErrClosed
	}
	if !m.connected {
		return ErrNotConnected
	}

	msg.Sender = m.local
	return m.tr.Send(msg)
}

// route applies one inbound message to liveness and telemetry state.
func (m *Monitor) route(msg mav.Message) {
	if msg.Type() == mav.TypeHeartbeat {
		// Frames from other components (e.g. a companion computer) must not
		// refresh vehicle liveness once the vehicle is known.
		if !m.haveVehicle || msg.Sender == m.vehicle {
			m.lastHeartbeat = m.now()
		}
	}
	m.decoder.Apply(&m.snap, msg)
}

// Connected reports whether a heartbeat was seen within the timeout window
// as of the last poll.
func (m *Monitor) Connected() bool { return m.connected }

// Identity returns the vehicle identity captured from its first heartbeat.
func (m *Monitor) Identity() (mav.Identity, bool) { return m.vehicle, m.haveVehicle }

// Local returns the identity this station sends under.
func (m *Monitor) Local() mav.Identity { return m.local }

// Snapshot returns a copy of the latest telemetry state.
func (m *Monitor) Snapshot() telemetry.Snapshot { return m.snap }

// Close releases the transport. Safe to call more than once.
func (m *Monitor) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false

	stats := m.tr.Stats()
	m.logger.Info("link closed",
		slog.String("received", humanize.Bytes(stats.BytesIn)),
		slog.String("sent", humanize.Bytes(stats.BytesOut)),
		slog.Uint64("framesIn", stats.FramesIn),
		slog.Uint64("framesOut", stats.FramesOut),
		slog.Uint64("dropped", stats.Dropped))

	return m.tr.Close()
}
