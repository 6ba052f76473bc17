package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledctl/protocol"
	"ledctl/protocol/prototest"
)

// scriptedDevice routes outbound frames to canned responses keyed by
// command code, simulating a controller that answers every read/write
// with Ok and a fixed data value (0 unless overridden).
type scriptedDevice struct {
	byCode map[uint8]uint16
}

func newScriptedDevice() *scriptedDevice {
	return &scriptedDevice{byCode: map[uint8]uint16{}}
}

func (d *scriptedDevice) set(code uint8, data uint16) *scriptedDevice {
	d.byCode[code] = data
	return d
}

func (d *scriptedDevice) handler() func([]byte) ([]byte, *protocol.Error) {
	return func(frame []byte) ([]byte, *protocol.Error) {
		code, _, ok := prototest.DecodeCommand(frame)
		if !ok {
			return nil, &protocol.Error{Kind: protocol.MalformedFrame, Msg: "bad test frame"}
		}
		return prototest.EncodeOkFrame(d.byCode[code]), nil
	}
}

func TestFireStage_UncachedStage_IssuesExactlyThreeTransactions(t *testing.T) {
	// Scenario 3: stage 1 fire current is 0x0BB8 (3000 mA).
	dev := newScriptedDevice().set(stageCommand(1, stageOffsetFire), 0x0BB8)
	ft := &prototest.FakeTransport{Handler: dev.handler()}
	s := Open(ft)

	require.Nil(t, s.EnterRemote(context.Background(), ModeOutputOff, time.Second))
	assert.Equal(t, RemoteOutputOff, s.State())
	callsBefore := ft.CallCount()

	err := s.FireStage(context.Background(), time.Second, 1)
	require.Nil(t, err)
	assert.Equal(t, RemoteFiring, s.State())
	assert.Equal(t, 3, ft.CallCount()-callsBefore, "uncached fire_stage: read fire current + set state + write current")
}

func TestFireStage_CachedStage_IssuesExactlyTwoTransactions(t *testing.T) {
	dev := newScriptedDevice().
		set(stageCommand(1, stageOffsetArm), 100).
		set(stageCommand(1, stageOffsetFire), 0x0BB8).
		set(stageCommand(1, stageOffsetVoltLimit), 500).
		set(stageCommand(1, stageOffsetVoltStart), 100).
		set(stageCommand(1, stageOffsetPowerTotal), 50).
		set(stageCommand(1, stageOffsetPowerPerLED), 10).
		set(stageCommand(1, stageOffsetUnitsTotal), 1).
		set(stageCommand(1, stageOffsetUnitsPerLED), 1)
	ft := &prototest.FakeTransport{Handler: dev.handler()}
	s := Open(ft)
	require.Nil(t, s.EnterRemote(context.Background(), ModeOutputOff, time.Second))

	_, err := s.ReadStage(context.Background(), time.Second, 1)
	require.Nil(t, err)

	callsBefore := ft.CallCount()
	err2 := s.FireStage(context.Background(), time.Second, 1)
	require.Nil(t, err2)
	assert.Equal(t, 2, ft.CallCount()-callsBefore, "cached fire_stage: set state + write current")
}

func TestPreconditionViolated_BeforeAnyRemoteEntry(t *testing.T) {
	ft := &prototest.FakeTransport{Handler: newScriptedDevice().handler()}
	s := Open(ft)
	callsBefore := ft.CallCount()

	_, err := s.ReadStage(context.Background(), time.Second, 1)
	require.NotNil(t, err)
	assert.Equal(t, protocol.PreconditionViolated, err.Kind)
	assert.Equal(t, callsBefore, ft.CallCount(), "rejected locally before reaching a gated remote state")
}

func TestPreconditionViolated_AfterOff(t *testing.T) {
	ft := &prototest.FakeTransport{Handler: newScriptedDevice().handler()}
	s := Open(ft)
	// Reach RemoteOutputOff first so the ModeOff transition is legal.
	require.Nil(t, s.EnterRemote(context.Background(), ModeOutputOff, time.Second))
	require.Nil(t, s.EnterRemote(context.Background(), ModeOff, time.Second))
	assert.Equal(t, RemoteOff, s.State())

	callsBefore := ft.CallCount()
	_, err := s.ReadStage(context.Background(), time.Second, 1)
	require.NotNil(t, err)
	assert.Equal(t, protocol.PreconditionViolated, err.Kind)
	assert.Equal(t, callsBefore, ft.CallCount(), "rejected locally, never touches the wire")

	err2 := s.Arm(context.Background(), time.Second)
	require.NotNil(t, err2)
	assert.Equal(t, protocol.PreconditionViolated, err2.Kind)
	assert.Equal(t, callsBefore, ft.CallCount())
}

func TestFireCurrent_ZeroAccepted(t *testing.T) {
	ft := &prototest.FakeTransport{Handler: newScriptedDevice().handler()}
	s := Open(ft)
	require.Nil(t, s.EnterRemote(context.Background(), ModeOutputOff, time.Second))
	err := s.FireCurrent(context.Background(), time.Second, 0)
	require.Nil(t, err)
	assert.Equal(t, RemoteFiring, s.State())
}

func TestFireCurrent_RejectsAboveKnownStage5Limit(t *testing.T) {
	dev := newScriptedDevice().
		set(stageCommand(5, stageOffsetArm), 100).
		set(stageCommand(5, stageOffsetFire), 2000).
		set(stageCommand(5, stageOffsetVoltLimit), 100).
		set(stageCommand(5, stageOffsetVoltStart), 50).
		set(stageCommand(5, stageOffsetPowerTotal), 10).
		set(stageCommand(5, stageOffsetPowerPerLED), 5).
		set(stageCommand(5, stageOffsetUnitsTotal), 0).
		set(stageCommand(5, stageOffsetUnitsPerLED), 0)
	ft := &prototest.FakeTransport{Handler: dev.handler()}
	s := Open(ft)
	require.Nil(t, s.EnterRemote(context.Background(), ModeOutputOff, time.Second))
	_, err := s.ReadStage(context.Background(), time.Second, 5)
	require.Nil(t, err)

	err2 := s.FireCurrent(context.Background(), time.Second, 2001)
	require.NotNil(t, err2)
	assert.Equal(t, protocol.PreconditionViolated, err2.Kind)

	err3 := s.FireCurrent(context.Background(), time.Second, 2000)
	assert.Nil(t, err3)
}

func TestClose_FromRemoteState_IssuesExactlyOneTransaction_NeverRaises(t *testing.T) {
	ft := &prototest.FakeTransport{Handler: newScriptedDevice().handler()}
	s := Open(ft)
	require.Nil(t, s.EnterRemote(context.Background(), ModeArmed, time.Second))

	callsBefore := ft.CallCount()
	s.Close()
	assert.Equal(t, 1, ft.CallCount()-callsBefore)
	assert.True(t, ft.Closed)

	// Close is idempotent and never raises (no return value to check).
	s.Close()
}

func TestClose_FromLocalUnknown_IssuesNoTransaction(t *testing.T) {
	ft := &prototest.FakeTransport{Handler: newScriptedDevice().handler()}
	s := Open(ft)
	callsBefore := ft.CallCount()
	s.Close()
	assert.Equal(t, callsBefore, ft.CallCount())
}

func TestOperationAfterClose_ReturnsConnectionClosed(t *testing.T) {
	ft := &prototest.FakeTransport{Handler: newScriptedDevice().handler()}
	s := Open(ft)
	s.Close()
	_, err := s.ReadStage(context.Background(), time.Second, 1)
	require.NotNil(t, err)
	assert.Equal(t, protocol.ConnectionClosed, err.Kind)
}

func TestReadIdentity_TrimsTrailingNul(t *testing.T) {
	dev := newScriptedDevice()
	model := "LX2-100\x00"
	for i := 0; i < modelCharCount; i++ {
		dev.set(cmdModelCharBase+uint8(i), uint16(model[i]))
	}
	for i := 0; i < serialCharCount; i++ {
		dev.set(cmdSerialCharBase+uint8(i), uint16(' '))
	}
	for _, c := range wavelengthChars {
		dev.set(c, uint16(' '))
	}
	ft := &prototest.FakeTransport{Handler: dev.handler()}
	s := Open(ft)

	id, err := s.ReadIdentity(context.Background(), time.Second)
	require.Nil(t, err)
	assert.Equal(t, "LX2-100", id.Model)
	assert.Equal(t, "", id.Serial)
	assert.Equal(t, "", id.Wavelength)
}
