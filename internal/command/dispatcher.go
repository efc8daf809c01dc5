// Package command sends fire-and-forget vehicle commands. No acknowledgment
// is awaited: a nil error means the frame was handed to the transport, not
// that the vehicle obeyed.
package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/uavlink/gcs/internal/link"
	"github.com/uavlink/gcs/internal/mav"
)

// ErrUnknownMode is returned by SetMode for a name absent from the
// vehicle's mode table; nothing is sent in that case.
var ErrUnknownMode = errors.New("unknown flight mode")

// Link is the slice of the link monitor the dispatcher needs.
type Link interface {
	Connected() bool
	Identity() (mav.Identity, bool)
	Send(msg mav.Message) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger.With(slog.String("component", "command"))
	}
}

// Dispatcher builds command frames addressed to the vehicle identity the
// link captured at first heartbeat.
type Dispatcher struct {
	link   Link
	modes  mav.ModeTable
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over an established link.
func NewDispatcher(link Link, modes mav.ModeTable, options ...Option) *Dispatcher {
	d := &Dispatcher{
		link:   link,
		modes:  modes,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(d)
	}

	return d
}

// Arm requests motor arming.
func (d *Dispatcher) Arm() error {
	return d.armDisarm(1, "arm")
}

// Disarm requests motor disarming.
func (d *Dispatcher) Disarm() error {
	return d.armDisarm(0, "disarm")
}

func (d *Dispatcher) armDisarm(param1 float32, op string) error {
	vehicle, err := d.target()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = d.link.Send(mav.Message{Frame: mav.CommandLong{
		Target:  vehicle,
		Command: mav.CmdComponentArm,
		Param1:  param1,
	}})
	if err != nil {
		d.logger.Error(op+" failed", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	d.logger.Info(op+" requested", slog.String("vehicle", vehicle.String()))
	return nil
}

// SetMode switches the flight mode by name. An unknown name fails without
// sending anything.
func (d *Dispatcher) SetMode(name string) error {
	vehicle, err := d.target()
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}

	code, ok := d.modes.Code(name)
	if !ok {
		d.logger.Error("mode not in vehicle table", slog.String("mode", name))
		return fmt.Errorf("set mode %q: %w", name, ErrUnknownMode)
	}

	err = d.link.Send(mav.Message{Frame: mav.SetMode{
		TargetSystem: vehicle.SystemID,
		BaseMode:     mav.ModeFlagCustomModeEnabled,
		CustomMode:   code,
	}})
	if err != nil {
		d.logger.Error("set mode failed", slog.String("mode", name), slog.String("error", err.Error()))
		return fmt.Errorf("set mode %q: %w", name, err)
	}

	d.logger.Info("mode change requested", slog.String("mode", name))
	return nil
}

// StartMission asks the vehicle to begin its stored mission.
func (d *Dispatcher) StartMission() error {
	vehicle, err := d.target()
	if err != nil {
		return fmt.Errorf("start mission: %w", err)
	}

	err = d.link.Send(mav.Message{Frame: mav.CommandLong{
		Target:  vehicle,
		Command: mav.CmdMissionStart,
	}})
	if err != nil {
		d.logger.Error("start mission failed", slog.String("error", err.Error()))
		return fmt.Errorf("start mission: %w", err)
	}

	d.logger.Info("mission start requested", slog.String("vehicle", vehicle.String()))
	return nil
}

func (d *Dispatcher) target() (mav.Identity, error) {
	vehicle, ok := d.link.Identity()
	if !d.link.Connected() || !ok {
		return mav.Identity{}, link.ErrNotConnected
	}
	return vehicle, nil
}
