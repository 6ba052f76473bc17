// Package cache persists the last known-good port/baud combination so
// auto-connect can skip full detection on a subsequent run, falling
// back to full detection whenever the cached combination no longer
// works.
package cache

import (
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ConnectionRecord is the on-disk record of the last successful connection.
type ConnectionRecord struct {
	PortName        string    `cbor:"port_name"`
	BaudRate        int       `cbor:"baud_rate"`
	FirmwareRev     uint16    `cbor:"firmware_rev"`
	Model           string    `cbor:"model"`
	Serial          string    `cbor:"serial"`
	LastSuccessTime time.Time `cbor:"last_success_time"`
}

// Load reads and decodes a ConnectionRecord from path. A missing file is
// not an error: it reports (nil, nil), the expected state on first run.
func Load(path string) (*ConnectionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rec ConnectionRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Store CBOR-encodes rec and writes it to path, replacing any existing
// file.
func Store(path string, rec ConnectionRecord) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
