package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand_Checksum040000(t *testing.T) {
	got := EncodeCommand(Command{Code: 0x04, Data: 0x0000})
	want := []byte{0x2A, '0', '4', '0', '0', '0', '0', '2', '4', 0x0D}
	assert.Equal(t, want, got)
}

func TestEncodeCommand_Checksum150001(t *testing.T) {
	got := EncodeCommand(Command{Code: 0x15, Data: 0x0001})
	want := []byte{0x2A, '1', '5', '0', '0', '0', '1', '2', '7', 0x0D}
	assert.Equal(t, want, got)
}

func TestChecksumOverSixChars(t *testing.T) {
	// For all 6-character CCDDDD sequences, checksum == sum(ord) mod 256.
	cases := []string{"040000", "150001", "ffffff", "000000", "abcdef"}
	for _, c := range cases {
		var want int
		for i := 0; i < len(c); i++ {
			want += int(c[i])
		}
		assert.Equal(t, uint8(want%256), checksumOf(c), c)
	}
}

func TestDecodeResponse_RoundTrip(t *testing.T) {
	for _, data := range []uint16{0x0000, 0x0001, 0xBB8, 0xFFFF, 0x1234} {
		dddd := hex4(data)
		ss := hex2(checksumOf(dddd))
		raw := append([]byte{stx}, []byte(dddd+ss)...)
		raw = append(raw, ack)
		resp, err := DecodeResponse(raw)
		require.Nil(t, err)
		assert.Equal(t, Ok, resp.Kind)
		assert.Equal(t, data, resp.Data)
	}
}

func TestDecodeResponse_ChecksumEchoSentinel(t *testing.T) {
	// Scenario 4: 2A 58 58 58 58 36 30 5E classified ChecksumRejected
	// regardless of the XXXX bytes.
	raw := []byte{0x2A, 0x58, 0x58, 0x58, 0x58, 0x36, 0x30, 0x5E}
	resp, err := DecodeResponse(raw)
	require.Nil(t, err)
	assert.Equal(t, ChecksumRejected, resp.Kind)
}

func TestDecodeResponse_BadChecksumIsMalformed(t *testing.T) {
	dddd := hex4(0x1234)
	raw := append([]byte{stx}, []byte(dddd+"00")...)
	raw = append(raw, ack)
	_, err := DecodeResponse(raw)
	require.NotNil(t, err)
	assert.Equal(t, MalformedFrame, err.Kind)
}

func TestDecodeResponse_WrongLengthIsMalformed(t *testing.T) {
	_, err := DecodeResponse([]byte{stx, 'a', 'b', ack})
	require.NotNil(t, err)
	assert.Equal(t, MalformedFrame, err.Kind)
}

func TestDecodeResponse_MissingSTXOrACK(t *testing.T) {
	dddd := hex4(0x1234)
	ss := hex2(checksumOf(dddd))
	bad := append([]byte{0x00}, []byte(dddd+ss)...)
	bad = append(bad, ack)
	_, err := DecodeResponse(bad)
	require.NotNil(t, err)

	bad2 := append([]byte{stx}, []byte(dddd+ss)...)
	bad2 = append(bad2, 0x00)
	_, err2 := DecodeResponse(bad2)
	require.NotNil(t, err2)
}
