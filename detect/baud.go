package detect

import (
	"context"
	"time"

	"ledctl/device"
)

// BaudDetectionConfig controls which rates are tried, how many times
// each is tried, and whether detection stops at the first good rate.
type BaudDetectionConfig struct {
	TestBaudRates        []int
	AttemptsPerRate      int
	ComprehensiveTesting bool
	TestTimeout          time.Duration
	// Logger optionally traces each rate's attempts and outcome; nil
	// (the default) logs nothing.
	Logger Logger
}

// NewBaudDetectionConfig returns the documented defaults.
func NewBaudDetectionConfig() BaudDetectionConfig {
	return BaudDetectionConfig{
		TestBaudRates:        []int{19200, 9600, 38400, 57600, 115200},
		AttemptsPerRate:      2,
		ComprehensiveTesting: false,
		TestTimeout:          1500 * time.Millisecond,
	}
}

// BaudResult is one rate's detection outcome.
type BaudResult struct {
	BaudRate         int
	Success          bool
	QualityScore     int
	ObservedIdentity *device.DeviceIdentity // not populated by baud probing; see DetectBaud doc
	Attempts         int
	LatencyMs        int64
}

// orderedRates puts the controller's documented default (19200) first
// regardless of list position, then the configured rates in their given
// order, with duplicates dropped.
func orderedRates(configured []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(configured)+1)
	add := func(r int) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	add(referenceBaud)
	for _, r := range configured {
		add(r)
	}
	return out
}

// DetectBaud probes portName at each configured rate (19200 first),
// scoring consistency across attempts_per_rate repeated identification
// probes. A probe only reads the firmware revision (via
// Session.ProbeIdentification), so BaudResult.ObservedIdentity is always
// nil here; full identity is populated once the auto-connector actually
// opens a session on the winning rate.
func DetectBaud(ctx context.Context, portName string, cfg BaudDetectionConfig, open Opener) ([]BaudResult, error) {
	attempts := cfg.AttemptsPerRate
	if attempts < 1 {
		attempts = 1
	}

	var results []BaudResult
	for _, rate := range orderedRates(cfg.TestBaudRates) {
		result := probeRate(ctx, portName, rate, attempts, cfg.TestTimeout, open)
		cfg.Logger.logf("detect: %s @ %d: success=%t quality=%d (%d attempts)", portName, rate, result.Success, result.QualityScore, result.Attempts)
		results = append(results, result)
		if !cfg.ComprehensiveTesting && result.QualityScore >= 80 {
			return results, nil
		}
	}
	return results, nil
}

func probeRate(ctx context.Context, portName string, rate int, attempts int, timeout time.Duration, open Opener) BaudResult {
	successes := 0
	consistent := true
	var firstData uint16
	haveFirst := false
	var totalLatency time.Duration

	for i := 0; i < attempts; i++ {
		start := time.Now()
		ok, data := attemptProbe(ctx, portName, rate, timeout, open)
		totalLatency += time.Since(start)
		if !ok {
			continue
		}
		successes++
		if !haveFirst {
			firstData = data
			haveFirst = true
		} else if data != firstData {
			consistent = false
		}
	}

	quality := 100 * successes / attempts
	avgLatency := totalLatency / time.Duration(attempts)
	if avgLatency > time.Second {
		quality -= 20
		if quality < 0 {
			quality = 0
		}
	}

	return BaudResult{
		BaudRate:     rate,
		Success:      successes == attempts && consistent,
		QualityScore: quality,
		Attempts:     attempts,
		LatencyMs:    totalLatency.Milliseconds() / int64(attempts),
	}
}

func attemptProbe(ctx context.Context, portName string, rate int, timeout time.Duration, open Opener) (bool, uint16) {
	transport, err := open(portName, rate)
	if err != nil {
		return false, 0
	}
	s := device.OpenForDetection(transport)
	defer s.Close()

	data, perr := s.ProbeIdentification(ctx, timeout)
	if perr != nil {
		return false, 0
	}
	return true, data
}
