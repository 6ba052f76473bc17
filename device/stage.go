package device

import (
	"context"
	"time"

	"ledctl/protocol"
)

// UnitTotal enumerates the closed set of "total" unit kinds a stage's
// power/current reading can be expressed in. Index values outside the
// known set decode to UnitTotalUnknown, never discarded or fatal.
type UnitTotal int

const (
	UnitTotalWattsTotalRadiantPower UnitTotal = iota
	UnitTotalMilliwattsTotalRadiantPower
	UnitTotalWattsPerCm2Irradiance
	UnitTotalMilliwattsPerCm2Irradiance
	UnitTotalBlank
	UnitTotalAmpsTotalCurrent
	UnitTotalMilliampsTotalCurrent
	unitTotalKnownCount
	UnitTotalUnknown // distinguished fallback, carries Raw
)

func (u UnitTotal) String() string {
	switch u {
	case UnitTotalWattsTotalRadiantPower:
		return "W_TOTAL_RADIANT_POWER"
	case UnitTotalMilliwattsTotalRadiantPower:
		return "mW_TOTAL_RADIANT_POWER"
	case UnitTotalWattsPerCm2Irradiance:
		return "W_per_cm2_IRRADIANCE"
	case UnitTotalMilliwattsPerCm2Irradiance:
		return "mW_per_cm2_IRRADIANCE"
	case UnitTotalBlank:
		return "BLANK"
	case UnitTotalAmpsTotalCurrent:
		return "A_TOTAL_CURRENT"
	case UnitTotalMilliampsTotalCurrent:
		return "mA_TOTAL_CURRENT"
	default:
		return "Unknown"
	}
}

// UnitPerLED enumerates the closed set of per-LED unit kinds.
type UnitPerLED int

const (
	UnitPerLEDWattsPerWell UnitPerLED = iota
	UnitPerLEDMilliwattsPerWell
	UnitPerLEDWattsTotalRadiantPower
	UnitPerLEDMilliwattsTotalRadiantPower
	UnitPerLEDMilliwattsPerCm2PerWell
	UnitPerLEDMilliwattsPerCm2
	UnitPerLEDJoulesPerSecond
	UnitPerLEDBlank
	UnitPerLEDAmpsPerWell
	UnitPerLEDMilliampsPerWell
	unitPerLEDKnownCount
	UnitPerLEDUnknown
)

func (u UnitPerLED) String() string {
	switch u {
	case UnitPerLEDWattsPerWell:
		return "W_PER_WELL"
	case UnitPerLEDMilliwattsPerWell:
		return "mW_PER_WELL"
	case UnitPerLEDWattsTotalRadiantPower:
		return "W_TOTAL_RADIANT_POWER"
	case UnitPerLEDMilliwattsTotalRadiantPower:
		return "mW_TOTAL_RADIANT_POWER"
	case UnitPerLEDMilliwattsPerCm2PerWell:
		return "mW_per_cm2_PER_WELL"
	case UnitPerLEDMilliwattsPerCm2:
		return "mW_per_cm2"
	case UnitPerLEDJoulesPerSecond:
		return "J_per_s"
	case UnitPerLEDBlank:
		return "BLANK"
	case UnitPerLEDAmpsPerWell:
		return "A_PER_WELL"
	case UnitPerLEDMilliampsPerWell:
		return "mA_PER_WELL"
	default:
		return "Unknown"
	}
}

// DecodedUnitTotal pairs the decoded enum with the raw index, since
// UnitTotalUnknown on its own loses the original value.
type DecodedUnitTotal struct {
	Unit UnitTotal
	Raw  uint16
}

// DecodedUnitPerLED pairs the decoded enum with the raw index.
type DecodedUnitPerLED struct {
	Unit UnitPerLED
	Raw  uint16
}

func decodeUnitTotal(raw uint16) DecodedUnitTotal {
	if uint16(unitTotalKnownCount) > raw {
		return DecodedUnitTotal{Unit: UnitTotal(raw), Raw: raw}
	}
	return DecodedUnitTotal{Unit: UnitTotalUnknown, Raw: raw}
}

func decodeUnitPerLED(raw uint16) DecodedUnitPerLED {
	if uint16(unitPerLEDKnownCount) > raw {
		return DecodedUnitPerLED{Unit: UnitPerLED(raw), Raw: raw}
	}
	return DecodedUnitPerLED{Unit: UnitPerLEDUnknown, Raw: raw}
}

// StageParameters holds one stage's pre-programmed operating point, as
// read from the smart card over the protocol. Voltage fields are
// raw/100, power fields are raw/10.
type StageParameters struct {
	ArmCurrentMA   uint16
	FireCurrentMA  uint16
	VoltLimitV     float32
	VoltStartV     float32
	PowerTotal     float32
	PowerPerLED    float32
	TotalUnits     DecodedUnitTotal
	PerLEDUnits    DecodedUnitPerLED
}

// readStageParameters issues the 8 parameter reads for stage n and
// assembles a StageParameters. It does not touch the session's cache;
// callers decide whether to memoize the result.
func readStageParameters(ctx context.Context, e *protocol.Engine, timeout time.Duration, n int) (StageParameters, *protocol.Error) {
	read := func(offset uint8) (uint16, *protocol.Error) {
		return exec(ctx, e, timeout, protocol.Command{Code: stageCommand(n, offset), Data: 0})
	}

	arm, err := read(stageOffsetArm)
	if err != nil {
		return StageParameters{}, err
	}
	fire, err := read(stageOffsetFire)
	if err != nil {
		return StageParameters{}, err
	}
	vlim, err := read(stageOffsetVoltLimit)
	if err != nil {
		return StageParameters{}, err
	}
	vstart, err := read(stageOffsetVoltStart)
	if err != nil {
		return StageParameters{}, err
	}
	ptot, err := read(stageOffsetPowerTotal)
	if err != nil {
		return StageParameters{}, err
	}
	pled, err := read(stageOffsetPowerPerLED)
	if err != nil {
		return StageParameters{}, err
	}
	unitsTotal, err := read(stageOffsetUnitsTotal)
	if err != nil {
		return StageParameters{}, err
	}
	unitsPerLED, err := read(stageOffsetUnitsPerLED)
	if err != nil {
		return StageParameters{}, err
	}

	return StageParameters{
		ArmCurrentMA:  arm,
		FireCurrentMA: fire,
		VoltLimitV:    float32(vlim) / 100,
		VoltStartV:    float32(vstart) / 100,
		PowerTotal:    float32(ptot) / 10,
		PowerPerLED:   float32(pled) / 10,
		TotalUnits:    decodeUnitTotal(unitsTotal),
		PerLEDUnits:   decodeUnitPerLED(unitsPerLED),
	}, nil
}
