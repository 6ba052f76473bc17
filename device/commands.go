// Package device implements the controller state machine layered on top
// of the protocol engine: remote-mode gating, arm/fire transitions,
// identity and stage-parameter retrieval with unit decoding.
package device

// Command codes, per the controller's command table. All data fields
// are 0x0000 when reading.
const (
	cmdFirmwareRevision uint8 = 0x02
	cmdReadRemoteState  uint8 = 0x13
	cmdSetRemoteState   uint8 = 0x15
	cmdArmCurrentRead   uint8 = 0x20
	cmdFireCurrentRead  uint8 = 0x21
	cmdArmCurrentWrite  uint8 = 0x40
	cmdFireCurrentWrite uint8 = 0x41

	cmdSerialCharBase     uint8 = 0x60 // 0x60..0x6b, 12 chars
	cmdModelCharBase      uint8 = 0x6c // 0x6c..0x73, 8 chars
	serialCharCount             = 12
	modelCharCount              = 8
)

// wavelengthChars gives the exact, non-contiguous command order for the
// 5-character wavelength string.
var wavelengthChars = [5]uint8{0x76, 0x81, 0x82, 0x89, 0x8a}

// stageBase is the first command byte of stage n's parameter block.
// Stage parameter commands are base+k for k in 0..7 in the fixed order
// arm, fire, vlim, vstart, ptot, pled, units_total, units_per_led.
func stageBase(n int) uint8 {
	switch n {
	case 1:
		return 0x77
	case 2:
		return 0x7f
	case 3:
		return 0x87
	case 4:
		return 0x8f
	case 5:
		return 0x97
	default:
		panic("device: stage index out of range 1..5")
	}
}

const (
	stageOffsetArm uint8 = iota
	stageOffsetFire
	stageOffsetVoltLimit
	stageOffsetVoltStart
	stageOffsetPowerTotal
	stageOffsetPowerPerLED
	stageOffsetUnitsTotal
	stageOffsetUnitsPerLED
)

// stageCommand returns the command byte for stage n's parameter at the
// given offset (one of the stageOffset* constants).
func stageCommand(n int, offset uint8) uint8 {
	return stageBase(n) + offset
}

// RemoteStateCode is the 0..3 payload written with cmdSetRemoteState.
type RemoteStateCode uint16

const (
	RemoteCodeOff       RemoteStateCode = 0
	RemoteCodeOutputOff RemoteStateCode = 1
	RemoteCodeArmed     RemoteStateCode = 2
	RemoteCodeFiring    RemoteStateCode = 3
)
