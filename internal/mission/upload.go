package mission

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

// ErrEmptyMission is returned when an upload is attempted with no
// waypoints; nothing is sent.
var ErrEmptyMission = errors.New("mission has no waypoints")

// State is the position of an upload inside its handshake.
type State int

const (
	StateIdle State = iota
	StateClearing
	StateCountSent
	StateAwaitRequest
	StateSendingItem
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClearing:
		return "clearing"
	case StateCountSent:
		return "count-sent"
	case StateAwaitRequest:
		return "await-request"
	case StateSendingItem:
		return "sending-item"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ProtocolError reports a frame the handshake did not expect in its current
// state. The transfer is atomic: after a ProtocolError the vehicle-side
// mission state is unknown and the caller must restart from the beginning.
type ProtocolError struct {
	State  State
	Frame  mav.Type
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mission upload: unexpected %s in state %s: %s", e.Frame, e.State, e.Detail)
}

// Link is the slice of the link monitor the uploader needs.
type Link interface {
	Connected() bool
	Identity() (mav.Identity, bool)
	Local() mav.Identity
	Send(msg mav.Message) error
	Await(ctx context.Context, timeout time.Duration, accept func(mav.Message) bool) (mav.Message, error)
}

const (
	defaultStepTimeout = 1500 * time.Millisecond
	defaultMaxRetries  = 3
)

// UploadOption configures an Uploader.
type UploadOption func(*Uploader)

// WithLogger sets the uploader logger.
func WithLogger(logger *slog.Logger) UploadOption {
	return func(u *Uploader) {
		u.logger = logger.With(slog.String("component", "mission"))
	}
}

// WithStepTimeout bounds how long each handshake step waits before the
// outbound frame is resent. Non-positive values keep the default.
func WithStepTimeout(d time.Duration) UploadOption {
	return func(u *Uploader) {
		if d > 0 {
			u.stepTimeout = d
		}
	}
}

// WithMaxRetries bounds how many times a step frame is sent in total.
// Non-positive values keep the default.
func WithMaxRetries(n int) UploadOption {
	return func(u *Uploader) {
		if n > 0 {
			u.maxRetries = n
		}
	}
}

// Uploader drives the mission transfer handshake:
//
//	IDLE -> CLEARING -> COUNT_SENT -> AWAIT_REQUEST -> SENDING_ITEM(seq)
//	     -> DONE | FAILED
//
// The transfer is all-or-nothing; there is no partial success and no
// resume. Every waiting step is bounded by a per-step timeout with a fixed
// number of resends and honors ctx cancellation.
type Uploader struct {
	link        Link
	stepTimeout time.Duration
	maxRetries  int
	logger      *slog.Logger

	state State
}

// NewUploader creates an uploader over an established link.
func NewUploader(link Link, options ...UploadOption) *Uploader {
	u := &Uploader{
		link:        link,
		stepTimeout: defaultStepTimeout,
		maxRetries:  defaultMaxRetries,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(u)
	}

	return u
}

// State returns where the last upload got to.
func (u *Uploader) State() State { return u.state }

// Upload transfers the ordered waypoint list to the vehicle. On any error
// the vehicle-side mission state must be treated as unknown; rerun Upload
// from scratch to retry.
func (u *Uploader) Upload(ctx context.Context, waypoints []Waypoint) error {
	if len(waypoints) == 0 {
		return ErrEmptyMission
	}

	vehicle, ok := u.link.Identity()
	if !u.link.Connected() || !ok {
		return fmt.Errorf("mission upload: %w", link.ErrNotConnected)
	}
	local := u.link.Local()

	u.state = StateClearing
	u.logger.Info("mission upload started",
		slog.Int("waypoints", len(waypoints)),
		slog.String("vehicle", vehicle.String()))

	// Drop whatever mission the vehicle holds; the ack is the gate into the
	// transfer proper. Frames of any other kind are ignored until it comes.
	ack, err := u.transact(ctx, mav.MissionClearAll{
		Target:      vehicle,
		MissionType: mav.MissionTypeMission,
	}, acceptAck)
	if err != nil {
		return u.fail(fmt.Errorf("clearing mission: %w", err))
	}
	if err := checkAck(u.state, ack); err != nil {
		return u.fail(err)
	}

	u.state = StateCountSent
	msg, err := u.transact(ctx, mav.MissionCount{
		Target:      vehicle,
		Count:       uint16(len(waypoints)),
		MissionType: mav.MissionTypeMission,
	}, acceptRequestFor(local))
	if err != nil {
		return u.fail(fmt.Errorf("awaiting first item request: %w", err))
	}
	u.state = StateAwaitRequest

	for seq := 0; seq < len(waypoints); seq++ {
		req := msg.Frame.(mav.MissionRequest)
		if int(req.Seq) != seq {
			return u.fail(&ProtocolError{
				State: u.state,
				Frame: msg.Type(),
				Detail: fmt.Sprintf("vehicle requested item %d, expected %d",
					req.Seq, seq),
			})
		}

		u.state = StateSendingItem
		item := encodeItem(vehicle, uint16(seq), waypoints[seq])

		last := seq == len(waypoints)-1
		msg, err = u.transact(ctx, item, acceptRequestOrAck(local))
		if err != nil {
			return u.fail(fmt.Errorf("sending item %d: %w", seq, err))
		}

		if ackFrame, isAck := msg.Frame.(mav.MissionAck); isAck {
			if !last {
				return u.fail(&ProtocolError{
					State:  u.state,
					Frame:  msg.Type(),
					Detail: fmt.Sprintf("acknowledgment after item %d of %d", seq+1, len(waypoints)),
				})
			}
			if ackFrame.Result != mav.MissionAccepted {
				return u.fail(&ProtocolError{
					State:  u.state,
					Frame:  msg.Type(),
					Detail: fmt.Sprintf("vehicle rejected mission (result %d)", ackFrame.Result),
				})
			}

			u.state = StateDone
			u.logger.Info("mission upload complete", slog.Int("waypoints", len(waypoints)))
			return nil
		}

		switch req := msg.Frame.(mav.MissionRequest); int(req.Seq) {
		case seq:
			// The vehicle re-requested the item it just got; let the loop
			// iteration for this seq run again.
			seq--
			u.state = StateAwaitRequest
		case seq + 1:
			u.state = StateAwaitRequest
		default:
			return u.fail(&ProtocolError{
				State: u.state,
				Frame: msg.Type(),
				Detail: fmt.Sprintf("vehicle requested item %d while sending %d",
					req.Seq, seq),
			})
		}
	}

	// Every item was requested and sent but the loop left without a
	// terminal acknowledgment.
	return u.fail(&ProtocolError{
		State:  u.state,
		Frame:  msg.Type(),
		Detail: "item request beyond final sequence",
	})
}

// transact sends frame and waits for an accepted reply, resending on
// timeout up to the retry budget.
func (u *Uploader) transact(ctx context.Context, frame mav.Frame, accept func(mav.Message) bool) (mav.Message, error) {
	for attempt := 1; ; attempt++ {
		if err := u.link.Send(mav.Message{Frame: frame}); err != nil {
			return mav.Message{}, err
		}

		msg, err := u.link.Await(ctx, u.stepTimeout, accept)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, link.ErrTimeout) || attempt >= u.maxRetries {
			return mav.Message{}, err
		}

		u.logger.Warn("step timed out, resending",
			slog.String("state", u.state.String()),
			slog.Int("attempt", attempt))
	}
}

func (u *Uploader) fail(err error) error {
	u.state = StateFailed
	u.logger.Error("mission upload failed", slog.String("error", err.Error()))
	return err
}

func acceptAck(msg mav.Message) bool {
	_, ok := msg.Frame.(mav.MissionAck)
	return ok
}

// acceptRequestFor matches item requests addressed to this station;
// misdirected requests are discarded.
func acceptRequestFor(local mav.Identity) func(mav.Message) bool {
	return func(msg mav.Message) bool {
		req, ok := msg.Frame.(mav.MissionRequest)
		return ok && req.Target == local
	}
}

// acceptRequestOrAck matches any addressed item request or the terminal
// acknowledgment. Sequence validation happens in the upload loop so an
// out-of-window request is classified as a protocol error, not a timeout.
func acceptRequestOrAck(local mav.Identity) func(mav.Message) bool {
	return func(msg mav.Message) bool {
		switch f := msg.Frame.(type) {
		case mav.MissionAck:
			return true
		case mav.MissionRequest:
			return f.Target == local
		default:
			return false
		}
	}
}

func checkAck(state State, msg mav.Message) error {
	ack := msg.Frame.(mav.MissionAck)
	if ack.Result != mav.MissionAccepted {
		return &ProtocolError{
			State:  state,
			Frame:  msg.Type(),
			Detail: fmt.Sprintf("vehicle refused (result %d)", ack.Result),
		}
	}
	return nil
}

// encodeItem maps a waypoint onto its wire item. The command code follows
// the waypoint type; LOITER_TIME repurposes param1 to carry the hold time.
func encodeItem(vehicle mav.Identity, seq uint16, wp Waypoint) mav.MissionItem {
	item := mav.MissionItem{
		Target:      vehicle,
		Seq:         seq,
		Frame:       mav.FrameGlobalRelativeAlt,
		Current:     0,
		Param1:      float32(wp.Speed),
		Param2:      float32(wp.AcceptRadius),
		Param3:      float32(wp.PassRadius),
		Param4:      float32(wp.YawAngle),
		X:           float32(wp.Latitude),
		Y:           float32(wp.Longitude),
		Z:           float32(wp.Altitude),
		MissionType: mav.MissionTypeMission,
	}
	if wp.Autocontinue {
		item.Autocontinue = 1
	}

	switch wp.Type {
	case TypeTakeoff:
		item.Command = mav.CmdNavTakeoff
	case TypeLand:
		item.Command = mav.CmdNavLand
	case TypeReturnToLaunch:
		item.Command = mav.CmdNavReturnToLaunch
	case TypeLoiterTime:
		item.Command = mav.CmdNavLoiterTime
		item.Param1 = float32(wp.HoldTime)
	default:
		item.Command = mav.CmdNavWaypoint
	}

	return item
}
