package mission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uavlink/gcs/internal/link"
	"github.com/uavlink/gcs/internal/link/linktest"
	"github.com/uavlink/gcs/internal/mav"
)

func uploadLink(t *testing.T, tr *linktest.Transport) *link.Monitor {
	t.Helper()

	tr.Push(mav.Heartbeat{BaseMode: mav.ModeFlagCustomModeEnabled, SystemStatus: 3})

	m := link.NewMonitor(tr, mav.ArduCopterModes)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	return m
}

func testWaypoints(n int) []Waypoint {
	wps := make([]Waypoint, n)
	for i := range wps {
		wps[i] = NewWaypoint(-33.85+float64(i)*0.001, 151.21, 30)
	}
	return wps
}

// scriptVehicle answers the handshake like a well-behaved autopilot.
func scriptVehicle(tr *linktest.Transport, n int) {
	local := mav.GroundStation
	tr.OnSend = func(msg mav.Message) []mav.Frame {
		switch f := msg.Frame.(type) {
		case mav.MissionClearAll:
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		case mav.MissionCount:
			return []mav.Frame{mav.MissionRequest{Target: local, Seq: 0}}
		case mav.MissionItem:
			if int(f.Seq) == n-1 {
				return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
			}
			return []mav.Frame{mav.MissionRequest{Target: local, Seq: f.Seq + 1}}
		}
		return nil
	}
}

func TestUpload(t *testing.T) {
	tr := linktest.New()
	m := uploadLink(t, tr)
	scriptVehicle(tr, 3)

	u := NewUploader(m)
	if err := u.Upload(context.Background(), testWaypoints(3)); err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if u.State() != StateDone {
		t.Errorf("state = %s, want done", u.State())
	}

	frames := tr.SentFrames()
	if len(frames) != 5 {
		t.Fatalf("sent %d frames, want 5 (clear, count, 3 items)", len(frames))
	}
	if _, ok := frames[0].(mav.MissionClearAll); !ok {
		t.Errorf("frame 0 = %T, want mav.MissionClearAll", frames[0])
	}
	count, ok := frames[1].(mav.MissionCount)
	if !ok || count.Count != 3 {
		t.Errorf("frame 1 = %+v, want mav.MissionCount with count 3", frames[1])
	}
	for i := 0; i < 3; i++ {
		item, ok := frames[2+i].(mav.MissionItem)
		if !ok {
			t.Fatalf("frame %d = %T, want mav.MissionItem", 2+i, frames[2+i])
		}
		if int(item.Seq) != i {
			t.Errorf("item %d sent with seq %d", i, item.Seq)
		}
	}
}

func TestUploadEmpty(t *testing.T) {
	tr := linktest.New()
	m := uploadLink(t, tr)

	u := NewUploader(m)
	if err := u.Upload(context.Background(), nil); !errors.Is(err, ErrEmptyMission) {
		t.Fatalf("Upload() = %v, want ErrEmptyMission", err)
	}
	if len(tr.SentFrames()) != 0 {
		t.Error("frames sent for an empty mission")
	}
	if u.State() != StateIdle {
		t.Errorf("state = %s, want idle", u.State())
	}
}

func TestUploadNotConnected(t *testing.T) {
	tr := linktest.New()
	m := link.NewMonitor(tr, mav.ArduCopterModes)

	u := NewUploader(m)
	err := u.Upload(context.Background(), testWaypoints(1))
	if !errors.Is(err, link.ErrNotConnected) {
		t.Fatalf("Upload() = %v, want ErrNotConnected", err)
	}
}

func TestUploadResendsOnTimeout(t *testing.T) {
	tr := linktest.New()
	m := uploadLink(t, tr)

	clearSends := 0
	local := mav.GroundStation
	tr.OnSend = func(msg mav.Message) []mav.Frame {
		switch msg.Frame.(type) {
		case mav.MissionClearAll:
			clearSends++
			if clearSends == 1 {
				// Swallow the first attempt; the uploader must resend.
				return nil
			}
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		case mav.MissionCount:
			return []mav.Frame{mav.MissionRequest{Target: local, Seq: 0}}
		case mav.MissionItem:
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		}
		return nil
	}

	u := NewUploader(m, WithStepTimeout(20*time.Millisecond))
	if err := u.Upload(context.Background(), testWaypoints(1)); err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if clearSends != 2 {
		t.Errorf("clear sent %d times, want 2", clearSends)
	}
}

func TestUploadRetryBudgetExhausted(t *testing.T) {
	tr := linktest.New()
	m := uploadLink(t, tr)
	// The vehicle never answers anything.

	u := NewUploader(m, WithStepTimeout(10*time.Millisecond), WithMaxRetries(2))
	err := u.Upload(context.Background(), testWaypoints(1))
	if !errors.Is(err, link.ErrTimeout) {
		t.Fatalf("Upload() = %v, want wrapped ErrTimeout", err)
	}
	if u.State() != StateFailed {
		t.Errorf("state = %s, want failed", u.State())
	}

	clears := 0
	for _, f := range tr.SentFrames() {
		if _, ok := f.(mav.MissionClearAll); ok {
			clears++
		}
	}
	if clears != 2 {
		t.Errorf("clear sent %d times, want 2", clears)
	}
}

func TestUploadIgnoresMisdirectedRequest(t *testing.T) {
	tr := linktest.New()
	m := uploadLink(t, tr)

	local := mav.GroundStation
	other := mav.Identity{SystemID: 254, ComponentID: 190}
	tr.OnSend = func(msg mav.Message) []mav.Frame {
		switch msg.Frame.(type) {
		case mav.MissionClearAll:
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		case mav.MissionCount:
			// A request for another station arrives first and must be skipped.
			return []mav.Frame{
				mav.MissionRequest{Target: other, Seq: 7},
				mav.MissionRequest{Target: local, Seq: 0},
			}
		case mav.MissionItem:
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		}
		return nil
	}

	u := NewUploader(m)
	if err := u.Upload(context.Background(), testWaypoints(1)); err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if u.State() != StateDone {
		t.Errorf("state = %s, want done", u.State())
	}
}

func TestUploadHandlesReRequest(t *testing.T) {
	tr := linktest.New()
	m := uploadLink(t, tr)

	local := mav.GroundStation
	itemSends := map[uint16]int{}
	tr.OnSend = func(msg mav.Message) []mav.Frame {
		switch f := msg.Frame.(type) {
		case mav.MissionClearAll:
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		case mav.MissionCount:
			return []mav.Frame{mav.MissionRequest{Target: local, Seq: 0}}
		case mav.MissionItem:
			itemSends[f.Seq]++
			if f.Seq == 0 && itemSends[0] == 1 {
				// Ask for item 0 again, as after a dropped datagram.
				return []mav.Frame{mav.MissionRequest{Target: local, Seq: 0}}
			}
			if f.Seq == 0 {
				return []mav.Frame{mav.MissionRequest{Target: local, Seq: 1}}
			}
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		}
		return nil
	}

	u := NewUploader(m)
	if err := u.Upload(context.Background(), testWaypoints(2)); err != nil {
		t.Fatalf("Upload() = %v", err)
	}
	if itemSends[0] != 2 {
		t.Errorf("item 0 sent %d times, want 2", itemSends[0])
	}
	if itemSends[1] != 1 {
		t.Errorf("item 1 sent %d times, want 1", itemSends[1])
	}
}

func TestUploadProtocolErrors(t *testing.T) {
	local := mav.GroundStation

	testCases := []struct {
		name      string
		waypoints int
		onSend    func(msg mav.Message) []mav.Frame
	}{
		{
			name:      "clear refused",
			waypoints: 1,
			onSend: func(msg mav.Message) []mav.Frame {
				if _, ok := msg.Frame.(mav.MissionClearAll); ok {
					return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionError}}
				}
				return nil
			},
		},
		{
			name:      "first request out of order",
			waypoints: 2,
			onSend: func(msg mav.Message) []mav.Frame {
				switch msg.Frame.(type) {
				case mav.MissionClearAll:
					return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
				case mav.MissionCount:
					return []mav.Frame{mav.MissionRequest{Target: local, Seq: 1}}
				}
				return nil
			},
		},
		{
			name:      "acknowledgment before final item",
			waypoints: 2,
			onSend: func(msg mav.Message) []mav.Frame {
				switch msg.Frame.(type) {
				case mav.MissionClearAll:
					return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
				case mav.MissionCount:
					return []mav.Frame{mav.MissionRequest{Target: local, Seq: 0}}
				case mav.MissionItem:
					return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
				}
				return nil
			},
		},
		{
			name:      "mid-transfer request out of window",
			waypoints: 3,
			onSend: func(msg mav.Message) []mav.Frame {
				switch msg.Frame.(type) {
				case mav.MissionClearAll:
					return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
				case mav.MissionCount:
					return []mav.Frame{mav.MissionRequest{Target: local, Seq: 0}}
				case mav.MissionItem:
					return []mav.Frame{mav.MissionRequest{Target: local, Seq: 7}}
				}
				return nil
			},
		},
		{
			name:      "mission rejected at the end",
			waypoints: 1,
			onSend: func(msg mav.Message) []mav.Frame {
				switch msg.Frame.(type) {
				case mav.MissionClearAll:
					return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
				case mav.MissionCount:
					return []mav.Frame{mav.MissionRequest{Target: local, Seq: 0}}
				case mav.MissionItem:
					return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionError}}
				}
				return nil
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr := linktest.New()
			m := uploadLink(t, tr)
			tr.OnSend = tc.onSend

			u := NewUploader(m)
			err := u.Upload(context.Background(), testWaypoints(tc.waypoints))

			var protoErr *ProtocolError
			if !errors.As(err, &protoErr) {
				t.Fatalf("Upload() = %v, want *ProtocolError", err)
			}
			if u.State() != StateFailed {
				t.Errorf("state = %s, want failed", u.State())
			}
		})
	}
}

func TestUploadStateAtEachSend(t *testing.T) {
	tr := linktest.New()
	m := uploadLink(t, tr)

	u := NewUploader(m)

	local := mav.GroundStation
	states := map[mav.Type]State{}
	tr.OnSend = func(msg mav.Message) []mav.Frame {
		states[msg.Type()] = u.State()
		switch msg.Frame.(type) {
		case mav.MissionClearAll:
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		case mav.MissionCount:
			return []mav.Frame{mav.MissionRequest{Target: local, Seq: 0}}
		case mav.MissionItem:
			return []mav.Frame{mav.MissionAck{Target: local, Result: mav.MissionAccepted}}
		}
		return nil
	}

	if err := u.Upload(context.Background(), testWaypoints(1)); err != nil {
		t.Fatalf("Upload() = %v", err)
	}

	want := map[mav.Type]State{
		mav.TypeMissionClearAll: StateClearing,
		mav.TypeMissionCount:    StateCountSent,
		mav.TypeMissionItem:     StateSendingItem,
	}
	for kind, state := range want {
		if states[kind] != state {
			t.Errorf("%s sent in state %s, want %s", kind, states[kind], state)
		}
	}
	if u.State() != StateDone {
		t.Errorf("state = %s, want done", u.State())
	}
}

func TestEncodeItem(t *testing.T) {
	vehicle := mav.Identity{SystemID: 1, ComponentID: 1}

	testCases := []struct {
		name        string
		wp          Waypoint
		wantCommand uint16
		wantParam1  float32
	}{
		{
			name:        "waypoint carries speed",
			wp:          Waypoint{Type: TypeWaypoint, Speed: 12},
			wantCommand: mav.CmdNavWaypoint,
			wantParam1:  12,
		},
		{
			name:        "takeoff",
			wp:          Waypoint{Type: TypeTakeoff},
			wantCommand: mav.CmdNavTakeoff,
		},
		{
			name:        "land",
			wp:          Waypoint{Type: TypeLand},
			wantCommand: mav.CmdNavLand,
		},
		{
			name:        "return to launch",
			wp:          Waypoint{Type: TypeReturnToLaunch},
			wantCommand: mav.CmdNavReturnToLaunch,
		},
		{
			name:        "loiter repurposes param1 for hold time",
			wp:          Waypoint{Type: TypeLoiterTime, Speed: 12, HoldTime: 45},
			wantCommand: mav.CmdNavLoiterTime,
			wantParam1:  45,
		},
		{
			name:        "unrecognized type falls back to waypoint",
			wp:          Waypoint{Type: "teleport"},
			wantCommand: mav.CmdNavWaypoint,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			item := encodeItem(vehicle, 3, tc.wp)

			if item.Command != tc.wantCommand {
				t.Errorf("command = %d, want %d", item.Command, tc.wantCommand)
			}
			if item.Param1 != tc.wantParam1 {
				t.Errorf("param1 = %v, want %v", item.Param1, tc.wantParam1)
			}
			if item.Seq != 3 {
				t.Errorf("seq = %d, want 3", item.Seq)
			}
			if item.Frame != mav.FrameGlobalRelativeAlt {
				t.Errorf("frame = %d, want %d", item.Frame, mav.FrameGlobalRelativeAlt)
			}
		})
	}
}

func TestEncodeItemCoordinates(t *testing.T) {
	wp := NewWaypoint(-33.8568, 151.2153, 30)
	wp.YawAngle = 90

	item := encodeItem(mav.Identity{SystemID: 1, ComponentID: 1}, 0, wp)

	if item.X != float32(-33.8568) || item.Y != float32(151.2153) || item.Z != 30 {
		t.Errorf("position = (%v, %v, %v), want (-33.8568, 151.2153, 30)", item.X, item.Y, item.Z)
	}
	if item.Param2 != 5 || item.Param3 != 2 {
		t.Errorf("radii = (%v, %v), want defaults (5, 2)", item.Param2, item.Param3)
	}
	if item.Param4 != 90 {
		t.Errorf("yaw = %v, want 90", item.Param4)
	}
	if item.Autocontinue != 1 {
		t.Errorf("autocontinue = %d, want 1", item.Autocontinue)
	}
}
