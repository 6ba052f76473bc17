package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsNilNil(t *testing.T) {
	rec, err := Load(filepath.Join(t.TempDir(), "nope.cbor"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStoreThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.cbor")
	want := ConnectionRecord{
		PortName:        "/dev/ttyUSB0",
		BaudRate:        19200,
		FirmwareRev:     0x0102,
		Model:           "LX2-100",
		Serial:          "SN12345",
		LastSuccessTime: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, Store(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.PortName, got.PortName)
	assert.Equal(t, want.BaudRate, got.BaudRate)
	assert.Equal(t, want.FirmwareRev, got.FirmwareRev)
	assert.Equal(t, want.Model, got.Model)
	assert.Equal(t, want.Serial, got.Serial)
	assert.True(t, want.LastSuccessTime.Equal(got.LastSuccessTime))
}

func TestStore_OverwritesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.cbor")
	require.NoError(t, Store(path, ConnectionRecord{PortName: "/dev/ttyUSB0", BaudRate: 9600}))
	require.NoError(t, Store(path, ConnectionRecord{PortName: "/dev/ttyUSB1", BaudRate: 115200}))

	got, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/dev/ttyUSB1", got.PortName)
	assert.Equal(t, 115200, got.BaudRate)
}
