// Package link owns the byte-oriented vehicle link: transport
// implementations over UDP and serial, and the Monitor that tracks link
// liveness from heartbeats.
package link

import (
	"errors"
	"strconv"
	"strings"

	"github.com/uavlink/gcs/internal/mav"
)

var (
	// ErrNotConnected is returned when an operation requires a live link.
	ErrNotConnected = errors.New("link not connected")

	// ErrHeartbeatTimeout is returned by the poll that first observes the
	// heartbeat window expire.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrTimeout is returned by Await when no matching frame arrived
	// within the deadline.
	ErrTimeout = errors.New("timed out waiting for frame")

	// ErrClosed is returned on use of a closed transport.
	ErrClosed = errors.New("transport closed")

	// ErrNoPeer is returned when sending on a datagram link before the
	// remote endpoint has been learned from its first packet.
	ErrNoPeer = errors.New("no peer address known yet")
)

// Stats counts traffic through a transport since it was opened.
type Stats struct {
	BytesIn   uint64
	BytesOut  uint64
	FramesIn  uint64
	FramesOut uint64
	Dropped   uint64 // inbound frames discarded because the queue was full
}

// Transport is an open half-duplex-style frame link to the vehicle.
// Send hands one frame to the wire; Next polls for one pending inbound
// frame without blocking.
type Transport interface {
	Send(msg mav.Message) error

	// Next returns the next pending inbound message. ok is false when
	// nothing is pending. A non-nil error means the link is broken.
	Next() (msg mav.Message, ok bool, err error)

	Stats() Stats
	Close() error
}

// inboundQueueSize bounds how many decoded frames may be pending between
// polls. A full second of 50 Hz streams fits with room to spare.
const inboundQueueSize = 256

// Dial opens a transport for a descriptor. Two forms are accepted:
//
//	udp:host:port      listen for datagrams on host:port
//	/dev/ttyUSB0       serial device path, opened at baud
//
// The codec translates wire bytes; one codec instance must not be shared
// across transports.
func Dial(descriptor string, baud int, codec mav.Codec) (Transport, error) {
	if codec == nil {
		return nil, errors.New("dial: codec must not be nil")
	}

	if rest, ok := strings.CutPrefix(descriptor, "udp:"); ok {
		return dialUDP(rest, codec)
	}
	if rest, ok := strings.CutPrefix(descriptor, "udpin:"); ok {
		return dialUDP(rest, codec)
	}
	if strings.Contains(descriptor, ":") && !strings.HasPrefix(descriptor, "/") {
		// Bare host:port is treated as a datagram endpoint.
		if _, err := strconv.Atoi(descriptor[strings.LastIndex(descriptor, ":")+1:]); err == nil {
			return dialUDP(descriptor, codec)
		}
	}

	return dialSerial(descriptor, baud, codec)
}
