package device

import (
	"context"
	"fmt"
	"time"

	"ledctl/protocol"
)

// exec runs cmd through e and additionally classifies a checksum-echo
// response as an error, so callers above this layer only ever see a
// successful 16-bit value or a *protocol.Error.
func exec(ctx context.Context, e *protocol.Engine, timeout time.Duration, cmd protocol.Command) (uint16, *protocol.Error) {
	resp, err := e.Execute(ctx, cmd, timeout)
	if err != nil {
		return 0, err
	}
	if resp.Kind == protocol.ChecksumRejected {
		return 0, &protocol.Error{
			Kind: protocol.ChecksumRejected,
			Msg:  fmt.Sprintf("controller rejected checksum for command 0x%02x", cmd.Code),
		}
	}
	return resp.Data, nil
}
