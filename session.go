// Package gcs is a ground-control-station session manager: it keeps a live
// link to one vehicle, maintains a telemetry snapshot, sends commands and
// drives the mission-upload and parameter-sync handshakes.
//
// A Session is driven by a single goroutine that alternates Poll with
// command and handshake calls; it is not safe for concurrent use.
package gcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/uavlink/gcs/internal/command"
	"github.com/uavlink/gcs/internal/link"
	"github.com/uavlink/gcs/internal/mav"
	"github.com/uavlink/gcs/internal/mission"
	"github.com/uavlink/gcs/internal/param"
	"github.com/uavlink/gcs/internal/storage"
	"github.com/uavlink/gcs/internal/stream"
	"github.com/uavlink/gcs/internal/telemetry"
)

// Dialer opens a transport for a descriptor. Swapped out in tests.
type Dialer func(descriptor string, baud int, codec mav.Codec) (link.Transport, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger; it is propagated to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithModeTable sets the vehicle-type mode table. ArduCopter is the
// default.
func WithModeTable(modes mav.ModeTable) Option {
	return func(s *Session) {
		s.modes = modes
	}
}

// WithDialer overrides how transports are opened.
func WithDialer(dial Dialer) Option {
	return func(s *Session) {
		s.dial = dial
	}
}

// Session is the caller-facing surface of the station.
type Session struct {
	cfg    Config
	codec  mav.Codec
	modes  mav.ModeTable
	logger *slog.Logger
	dial   Dialer

	monitor    *link.Monitor
	dispatcher *command.Dispatcher
	uploader   *mission.Uploader
	params     *param.Syncer

	missions  *mission.Store
	flightLog *storage.FlightLog
	flightID  string
	hub       *stream.Hub
}

// New builds a session. The codec is the external MAVLink v2 serializer the
// transports run over; nothing in this repository implements the binary
// layout.
func New(cfg Config, codec mav.Codec, options ...Option) (*Session, error) {
	if cfg.Link.Descriptor == "" {
		return nil, fmt.Errorf("new session: link descriptor must not be empty")
	}
	if codec == nil {
		return nil, fmt.Errorf("new session: codec must not be nil")
	}

	s := &Session{
		cfg:    cfg,
		codec:  codec,
		modes:  mav.ArduCopterModes,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dial:   link.Dial,
	}

	for _, option := range options {
		option(s)
	}

	missions, err := mission.NewStore(cfg.Mission.Directory)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	s.missions = missions

	if cfg.Storage.Enabled {
		dbPath := filepath.Join(cfg.Storage.DataDirectory, "flightlog.sqlite")
		s.flightLog = storage.New(dbPath)
	}
	if cfg.Stream.Enabled {
		s.hub = stream.NewHub(stream.WithLogger(s.logger))
	}

	return s, nil
}

// Connect opens the transport and waits for the vehicle's first heartbeat.
// The wait is bounded by ctx; pass a deadline to avoid blocking on a silent
// link. After a lost link, calling Connect again starts a fresh episode.
func (s *Session) Connect(ctx context.Context) error {
	if s.monitor != nil {
		if s.monitor.Connected() {
			return nil
		}
		// Stale episode from a previous disconnect; start over.
		_ = s.monitor.Close()
		s.monitor = nil
	}

	tr, err := s.dial(s.cfg.Link.Descriptor, s.cfg.Link.BaudRate, s.codec)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	monitor := link.NewMonitor(tr, s.modes,
		link.WithLogger(s.logger),
		link.WithHeartbeatTimeout(secondsOr(s.cfg.Link.HeartbeatTimeout, link.DefaultHeartbeatTimeout)))

	if err := monitor.Connect(ctx); err != nil {
		_ = monitor.Close()
		return fmt.Errorf("connect: %w", err)
	}

	s.monitor = monitor
	s.dispatcher = command.NewDispatcher(monitor, s.modes, command.WithLogger(s.logger))
	s.uploader = mission.NewUploader(monitor,
		mission.WithLogger(s.logger),
		mission.WithStepTimeout(secondsOr(s.cfg.Mission.StepTimeout, 0)),
		mission.WithMaxRetries(s.cfg.Mission.MaxRetries))
	s.params = param.NewSyncer(monitor,
		param.WithLogger(s.logger),
		param.WithIdleTimeout(secondsOr(s.cfg.Parameters.IdleTimeout, 0)),
		param.WithMaxRetries(s.cfg.Parameters.MaxRetries))

	if s.flightLog != nil {
		vehicle, _ := s.monitor.Identity()
		id, err := s.flightLog.CreateFlight(ctx, s.cfg.Link.Descriptor, vehicle)
		if err != nil {
			s.logger.Error("flight log unavailable", slog.String("error", err.Error()))
		} else {
			s.flightID = id
		}
	}

	return nil
}

// Poll drains pending telemetry, refreshes the snapshot and applies the
// heartbeat timeout. When enabled, the fresh snapshot is appended to the
// flight log and broadcast to stream subscribers.
func (s *Session) Poll() error {
	if s.monitor == nil {
		return link.ErrNotConnected
	}

	if err := s.monitor.Poll(); err != nil {
		return err
	}

	snap := s.monitor.Snapshot()
	if s.flightLog != nil && s.flightID != "" {
		if err := s.flightLog.Append(context.Background(), s.flightID, snap); err != nil {
			s.logger.Error("recording telemetry", slog.String("error", err.Error()))
		}
	}
	if s.hub != nil {
		s.hub.Publish(snap)
	}

	return nil
}

// Connected reports link liveness as of the last poll.
func (s *Session) Connected() bool {
	return s.monitor != nil && s.monitor.Connected()
}

// Snapshot returns a copy of the latest telemetry state.
func (s *Session) Snapshot() telemetry.Snapshot {
	if s.monitor == nil {
		return telemetry.NewSnapshot()
	}
	return s.monitor.Snapshot()
}

// Arm requests motor arming; fire-and-forget.
func (s *Session) Arm() error {
	if s.dispatcher == nil {
		return link.ErrNotConnected
	}
	return s.dispatcher.Arm()
}

// Disarm requests motor disarming; fire-and-forget.
func (s *Session) Disarm() error {
	if s.dispatcher == nil {
		return link.ErrNotConnected
	}
	return s.dispatcher.Disarm()
}

// SetMode switches the flight mode by name.
func (s *Session) SetMode(name string) error {
	if s.dispatcher == nil {
		return link.ErrNotConnected
	}
	return s.dispatcher.SetMode(name)
}

// StartMission asks the vehicle to fly its stored mission.
func (s *Session) StartMission() error {
	if s.dispatcher == nil {
		return link.ErrNotConnected
	}
	return s.dispatcher.StartMission()
}

// UploadMission transfers an ordered waypoint list to the vehicle. The
// transfer is atomic; on error rerun from scratch.
func (s *Session) UploadMission(ctx context.Context, waypoints []mission.Waypoint) error {
	if s.uploader == nil {
		return link.ErrNotConnected
	}
	return s.uploader.Upload(ctx, waypoints)
}

// FetchParameters retrieves the full onboard parameter table.
func (s *Session) FetchParameters(ctx context.Context) (param.Table, error) {
	if s.params == nil {
		return nil, link.ErrNotConnected
	}
	return s.params.FetchAll(ctx)
}

// SetParameter writes one parameter without awaiting confirmation.
func (s *Session) SetParameter(name string, value float64) error {
	if s.params == nil {
		return link.ErrNotConnected
	}
	return s.params.Set(name, value)
}

// Missions is the on-disk mission store.
func (s *Session) Missions() *mission.Store { return s.missions }

// StreamHandler returns the websocket telemetry endpoint, or nil when
// streaming is disabled.
func (s *Session) StreamHandler() http.Handler {
	if s.hub == nil {
		return nil
	}
	return s.hub.Handler()
}

// Close releases the link, flushes the flight log and disconnects stream
// subscribers. Safe to call more than once.
func (s *Session) Close() error {
	var firstErr error

	if s.monitor != nil {
		if err := s.monitor.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.monitor = nil
		s.dispatcher = nil
		s.uploader = nil
		s.params = nil
	}

	if s.flightLog != nil {
		if err := s.flightLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.hub != nil {
		s.hub.Close()
	}

	return firstErr
}
