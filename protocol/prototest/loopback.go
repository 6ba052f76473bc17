// Package prototest provides a scriptable fake protocol.Transport for
// unit tests in this module's other packages (device, detect), so they
// can exercise session/detector logic without real serial hardware —
// the "loopback" transport spec.md's testable-properties section calls
// for.
package prototest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"ledctl/protocol"
)

// FakeTransport is a protocol.Transport whose responses are driven by a
// caller-supplied Handler, keyed on the raw outbound frame bytes.
type FakeTransport struct {
	mu      sync.Mutex
	Handler func(frame []byte) ([]byte, *protocol.Error)
	Calls   [][]byte
	Closed  bool
}

func (f *FakeTransport) Transact(ctx context.Context, frame []byte, timeout time.Duration) ([]byte, *protocol.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return nil, &protocol.Error{Kind: protocol.ConnectionClosed, Msg: "transport closed"}
	}
	cp := append([]byte(nil), frame...)
	f.Calls = append(f.Calls, cp)
	if f.Handler == nil {
		return nil, &protocol.Error{Kind: protocol.Timeout, Msg: "no handler installed"}
	}
	return f.Handler(frame)
}

func (f *FakeTransport) Close() *protocol.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// CallCount returns the number of Transact calls observed so far.
func (f *FakeTransport) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// EncodeOkFrame builds a well-formed STX DDDD SS ACK response carrying data.
func EncodeOkFrame(data uint16) []byte {
	dddd := hex4(data)
	ss := hex2(checksumOf(dddd))
	out := make([]byte, 0, 8)
	out = append(out, 0x2A)
	out = append(out, dddd...)
	out = append(out, ss...)
	out = append(out, 0x5E)
	return out
}

// EncodeChecksumEchoFrame builds a frame the codec must classify as
// ChecksumRejected regardless of the data field.
func EncodeChecksumEchoFrame() []byte {
	out := []byte{0x2A, 'x', 'x', 'x', 'x', '6', '0', 0x5E}
	return out
}

func checksumOf(s string) uint8 {
	var sum int
	for i := 0; i < len(s); i++ {
		sum += int(s[i])
	}
	return uint8(sum % 256)
}

func hex2(v uint8) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[v>>4], digits[v&0xf]})
}

func hex4(v uint16) string {
	return hex2(uint8(v>>8)) + hex2(uint8(v&0xff))
}

// DecodeCommand parses an outbound *CCDDDDSS\r frame back into its
// command code and data, for handlers that need to branch on what was
// actually sent.
func DecodeCommand(frame []byte) (code uint8, data uint16, ok bool) {
	if len(frame) != 10 || frame[0] != 0x2A || frame[9] != 0x0D {
		return 0, 0, false
	}
	c, err := parseHexByte(string(frame[1:3]))
	if err != nil {
		return 0, 0, false
	}
	d, err := parseHex4(string(frame[3:7]))
	if err != nil {
		return 0, 0, false
	}
	return c, d, true
}

func parseHexByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	return uint8(v), err
}

func parseHex4(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	return uint16(v), err
}

// HandlerAlwaysOk returns a Handler that replies Ok with a fixed data
// value to every request, regardless of the command sent.
func HandlerAlwaysOk(data uint16) func([]byte) ([]byte, *protocol.Error) {
	return func([]byte) ([]byte, *protocol.Error) {
		return EncodeOkFrame(data), nil
	}
}
