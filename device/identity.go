package device

import (
	"context"
	"time"

	"ledctl/protocol"
)

// DeviceIdentity holds the smart card's identifying metadata.
type DeviceIdentity struct {
	FirmwareRevision uint16
	Model            string
	Serial           string
	Wavelength       string
}

// readIdentity issues the firmware, model, serial, and wavelength
// character reads in the exact command order the protocol requires and
// assembles them into a DeviceIdentity. Each character command returns a
// 16-bit value whose low byte is the ASCII codepoint; trailing 0x00 or
// 0x20 bytes are trimmed.
func readIdentity(ctx context.Context, e *protocol.Engine, timeout time.Duration) (DeviceIdentity, *protocol.Error) {
	firmware, err := exec(ctx, e, timeout, protocol.Command{Code: cmdFirmwareRevision})
	if err != nil {
		return DeviceIdentity{}, err
	}

	model, err := readCharString(ctx, e, timeout, sequentialCodes(cmdModelCharBase, modelCharCount))
	if err != nil {
		return DeviceIdentity{}, err
	}
	serial, err := readCharString(ctx, e, timeout, sequentialCodes(cmdSerialCharBase, serialCharCount))
	if err != nil {
		return DeviceIdentity{}, err
	}
	wavelength, err := readCharString(ctx, e, timeout, wavelengthChars[:])
	if err != nil {
		return DeviceIdentity{}, err
	}

	return DeviceIdentity{
		FirmwareRevision: firmware,
		Model:            model,
		Serial:           serial,
		Wavelength:       wavelength,
	}, nil
}

func sequentialCodes(base uint8, n int) []uint8 {
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		out[i] = base + uint8(i)
	}
	return out
}

func readCharString(ctx context.Context, e *protocol.Engine, timeout time.Duration, codes []uint8) (string, *protocol.Error) {
	raw := make([]byte, 0, len(codes))
	for _, code := range codes {
		data, err := exec(ctx, e, timeout, protocol.Command{Code: code})
		if err != nil {
			return "", err
		}
		raw = append(raw, byte(data&0xff))
	}
	return trimTail(raw), nil
}

// trimTail drops trailing 0x00 and 0x20 bytes, the tail-fill characters
// the smart card pads fixed-width string fields with.
func trimTail(raw []byte) string {
	end := len(raw)
	for end > 0 && (raw[end-1] == 0x00 || raw[end-1] == 0x20) {
		end--
	}
	return string(raw[:end])
}
