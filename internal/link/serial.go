package link

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/uavlink/gcs/internal/mav"
)

// DefaultBaudRate is used when a serial descriptor carries no baud rate.
const DefaultBaudRate = 57600

// serialTransport reads the byte stream from a local serial device and
// feeds it through the codec, which reassembles frame boundaries.
type serialTransport struct {
	port  serial.Port
	codec mav.Codec

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

func dialSerial(device string, baud int, codec mav.Codec) (Transport, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", device, err)
	}

	// A short read timeout keeps the read loop responsive to Close without
	// busy-waiting on an idle line.
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("configuring %q: %w", device, err)
	}

	t := &serialTransport{
		port:    port,
		codec:   codec,
		inbound: make(chan mav.Message, inboundQueueSize),
		done:    make(chan struct{}),
	}

	t.wg.Add(1)
	go t.readLoop()

	return t, nil
}

func (t *serialTransport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, 1024)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			select {
			case <-t.done:
			default:
				readErr := fmt.Errorf("reading serial: %w", err)
				t.readErr.Store(&readErr)
			}
			return
		}
		if n == 0 {
			continue // read timeout, line idle
		}

		t.bytesIn.Add(uint64(n))

		msgs, err := t.codec.Decode(buf[:n])
		if err != nil {
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

func (t *serialTransport) Send(msg mav.Message) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	b, err := t.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Type(), err)
	}

	n, err := t.port.Write(b)
	if err != nil {
		return fmt.Errorf("sending %s: %w", msg.Type(), err)
	}

	t.bytesOut.Add(uint64(n))
	t.framesOut.Add(1)
	return nil
}

func (t *serialTransport) Next() (mav.Message, bool, error) {
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

func (t *serialTransport) Stats() Stats {
	return Stats{
		BytesIn:   t.bytesIn.Load(),
		BytesOut:  t.bytesOut.Load(),
		FramesIn:  t.framesIn.Load(),
		FramesOut: t.framesOut.Load(),
		Dropped:   t.dropped.Load(),
	}
}

func (t *serialTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.closeErr = t.port.Close()
		t.wg.Wait()
	})
	return t.closeErr
}
