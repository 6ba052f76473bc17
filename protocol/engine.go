package protocol

import (
	"context"
	"time"
)

// DefaultBackoff is the minimum back-off between retried attempts.
const DefaultBackoff = 50 * time.Millisecond

// Engine composes a Transport with the frame codec into typed
// request/response operations, retrying transient failures.
type Engine struct {
	Transport Transport
	// MaxAttempts bounds how many times a single Execute call writes the
	// command before giving up. 1 means no retry.
	MaxAttempts int
	// Backoff is the pause between retried attempts.
	Backoff time.Duration
}

// NewEngine returns an Engine with the operational default of a single
// attempt (no retry). Use WithAttempts for detection probes, which
// default to 2.
func NewEngine(t Transport) *Engine {
	return &Engine{Transport: t, MaxAttempts: 1, Backoff: DefaultBackoff}
}

// WithAttempts returns a copy of e with MaxAttempts set to n.
func (e *Engine) WithAttempts(n int) *Engine {
	cp := *e
	cp.MaxAttempts = n
	return &cp
}

// Execute encodes cmd, transacts it, and decodes the response. Timeout
// and malformed-frame failures are retried up to MaxAttempts with
// Backoff between attempts; a checksum-rejection is never retried since
// it indicates a bug in the caller's framing, not a line error.
func (e *Engine) Execute(ctx context.Context, cmd Command, timeout time.Duration) (Response, *Error) {
	frame := EncodeCommand(cmd)
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := e.Transport.Transact(ctx, frame, timeout)
		if err != nil {
			lastErr = err
			if err.Kind != Timeout && err.Kind != MalformedFrame {
				return Response{}, err
			}
			if attempt < attempts {
				sleep(ctx, e.Backoff)
				continue
			}
			return Response{}, err
		}

		resp, derr := DecodeResponse(raw)
		if derr != nil {
			lastErr = derr
			if attempt < attempts {
				sleep(ctx, e.Backoff)
				continue
			}
			return Response{}, derr
		}

		// ChecksumRejected is returned immediately, retried never.
		return resp, nil
	}
	return Response{}, lastErr
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
