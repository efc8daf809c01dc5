// Package linktest provides an in-memory transport double for exercising
// link, command and handshake logic without a vehicle.
package linktest

import (
	"sync"

	"github.com/uavlink/gcs/internal/link"
	"github.com/uavlink/gcs/internal/mav"
)

// Vehicle is the identity the double answers from.
var Vehicle = mav.Identity{SystemID: 1, ComponentID: 1}

// Transport is a scripted link.Transport. Tests enqueue inbound frames with
// Push and may install OnSend to answer outbound frames, which is enough to
// play the vehicle side of the mission and parameter handshakes.
type Transport struct {
	mu        sync.Mutex
	inbound   []mav.Message
	sent      []mav.Message
	delivered uint64
	closed    bool

	// SendErr, when set, is returned by every Send.
	SendErr error

	// NextErr, when set, is returned by every Next, simulating a broken
	// read path.
	NextErr error

	// OnSend, when set, is invoked with each outbound message; returned
	// frames are enqueued as inbound replies from Vehicle.
	OnSend func(msg mav.Message) []mav.Frame
}

// New returns an empty scripted transport.
func New() *Transport {
	return &Transport{}
}

// Push enqueues inbound frames as if sent by the vehicle.
func (t *Transport) Push(frames ...mav.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range frames {
		t.inbound = append(t.inbound, mav.Message{Sender: Vehicle, Frame: f})
	}
}

// PushFrom enqueues inbound frames from an arbitrary sender.
func (t *Transport) PushFrom(sender mav.Identity, frames ...mav.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range frames {
		t.inbound = append(t.inbound, mav.Message{Sender: sender, Frame: f})
	}
}

func (t *Transport) Send(msg mav.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return link.ErrClosed
	}
	if t.SendErr != nil {
		return t.SendErr
	}

	t.sent = append(t.sent, msg)

	if t.OnSend != nil {
		for _, f := range t.OnSend(msg) {
			t.inbound = append(t.inbound, mav.Message{Sender: Vehicle, Frame: f})
		}
	}
	return nil
}

func (t *Transport) Next() (mav.Message, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.NextErr != nil {
		return mav.Message{}, false, t.NextErr
	}
	if len(t.inbound) == 0 {
		return mav.Message{}, false, nil
	}

	msg := t.inbound[0]
	t.inbound = t.inbound[1:]
	t.delivered++
	return msg, true, nil
}

func (t *Transport) Stats() link.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return link.Stats{
		FramesIn:  t.delivered,
		FramesOut: uint64(len(t.sent)),
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Sent returns a copy of every message handed to Send, in order.
func (t *Transport) Sent() []mav.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]mav.Message, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentFrames returns just the frames of every sent message.
func (t *Transport) SentFrames() []mav.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]mav.Frame, len(t.sent))
	for i, m := range t.sent {
		out[i] = m.Frame
	}
	return out
}
