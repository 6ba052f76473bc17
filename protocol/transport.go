package protocol

import (
	"context"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Transport owns one open serial port at one baud rate and performs
// write-then-read-until-terminator transactions. It does not know about
// framing or checksums; Engine is the layer that parses bytes.
type Transport interface {
	// Transact flushes residual input, writes frame, then reads bytes
	// until the ACK byte (0x5E) is observed or timeout elapses.
	Transact(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, *Error)
	// Close releases the underlying handle. Idempotent.
	Close() *Error
}

// readChunk bounds how long a single underlying Read call blocks, so the
// read loop can re-check the overall timeout and ctx cancellation between
// chunks instead of blocking for the whole transaction timeout at once.
const readChunk = 50 * time.Millisecond

// SerialTransport is the real Transport, backed by go.bug.st/serial.
type SerialTransport struct {
	mu     sync.Mutex
	port   serial.Port
	closed bool
}

// OpenSerial opens portName at baudRate, 8 data bits, no parity, 1 stop
// bit, no flow control, per the serial line contract.
func OpenSerial(portName string, baudRate int) (*SerialTransport, *Error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, wrapIo(err, "open "+portName)
	}
	return &SerialTransport{port: p}, nil
}

func (t *SerialTransport) Transact(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, *Error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, newErr(ConnectionClosed, "transport closed")
	}

	if err := t.port.ResetInputBuffer(); err != nil {
		return nil, wrapIo(err, "flush input")
	}
	if _, err := t.port.Write(frame); err != nil {
		return nil, wrapIo(err, "write frame")
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	buf := make([]byte, 0, inboundLen)
	tmp := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return nil, newErr(Timeout, "context done before ACK")
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.discardPending()
			return nil, newErr(Timeout, "no ACK before deadline")
		}
		chunkTimeout := readChunk
		if remaining < chunkTimeout {
			chunkTimeout = remaining
		}
		if err := t.port.SetReadTimeout(chunkTimeout); err != nil {
			return nil, wrapIo(err, "set read timeout")
		}
		n, err := t.port.Read(tmp)
		if err != nil {
			return nil, wrapIo(err, "read")
		}
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if idx := indexByte(buf, ack); idx >= 0 {
				return buf[:idx+1], nil
			}
		}
	}
}

func (t *SerialTransport) discardPending() {
	_ = t.port.ResetInputBuffer()
}

func (t *SerialTransport) Close() *Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return wrapIo(err, "close port")
	}
	return nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
