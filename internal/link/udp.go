package link

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/uavlink/gcs/internal/mav"
)

// udpTransport listens for vehicle datagrams and learns the peer address
// from the first packet, matching the udpin behavior of common GCS tools.
// A datagram socket has no session of its own; liveness is the Monitor's
// job, not this transport's.
type udpTransport struct {
	conn  *net.UDPConn
	codec mav.Codec

	peer atomic.Pointer[net.UDPAddr]

	inbound chan mav.Message
	readErr atomic.Pointer[error]
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error

	bytesIn, bytesOut   atomic.Uint64
	framesIn, framesOut atomic.Uint64
	dropped             atomic.Uint64

	wg sync.WaitGroup
}

func dialUDP(hostport string, codec mav.Codec) (Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", hostport, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", hostport, err)
	}

	t := &udpTransport{
		conn:    conn,
		codec:   codec,
		inbound: make(chan mav.Message, inboundQueueSize),
		done:    make(chan struct{}),
	}

	t.wg.Add(1)
	go t.readLoop()

	return t, nil
}

func (t *udpTransport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, raddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done: // closed locally, not an error
			default:
				readErr := fmt.Errorf("reading datagram: %w", err)
				t.readErr.Store(&readErr)
			}
			return
		}

		t.peer.Store(raddr)
		t.bytesIn.Add(uint64(n))

		msgs, err := t.codec.Decode(buf[:n])
		if err != nil {
			// A malformed datagram is dropped; the stream recovers on the
			// next frame boundary.
			t.dropped.Add(1)
			continue
		}

		for _, msg := range msgs {
			select {
			case t.inbound <- msg:
				t.framesIn.Add(1)
			default:
				t.dropped.Add(1)
			}
		}
	}
}

func (t *udpTransport) Send(msg mav.Message) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	peer := t.peer.Load()
	if peer == nil {
		return ErrNoPeer
	}

	b, err := t.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Type(), err)
	}

	n, err := t.conn.WriteToUDP(b, peer)
	if err != nil {
		return fmt.Errorf("sending %s: %w", msg.Type(), err)
	}

	t.bytesOut.Add(uint64(n))
	t.framesOut.Add(1)
	return nil
}

func (t *udpTransport) Next() (mav.Message, bool, error) {
	select {
	case msg := <-t.inbound:
		return msg, true, nil
	default:
	}

	if errp := t.readErr.Load(); errp != nil {
		return mav.Message{}, false, *errp
	}

	select {
	case <-t.done:
		return mav.Message{}, false, ErrClosed
	default:
		return mav.Message{}, false, nil
	}
}

func (t *udpTransport) Stats() Stats {
	return Stats{
		BytesIn:   t.bytesIn.Load(),
		BytesOut:  t.bytesOut.Load(),
		FramesIn:  t.framesIn.Load(),
		FramesOut: t.framesOut.Load(),
		Dropped:   t.dropped.Load(),
	}
}

func (t *udpTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.closeErr = t.conn.Close()
		t.wg.Wait()
	})
	if t.closeErr != nil && !errors.Is(t.closeErr, net.ErrClosed) {
		return t.closeErr
	}
	return nil
}
