package detect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ledctl/cache"
	"ledctl/device"
	"ledctl/protocol"
)

// AutoConnectConfig bundles the port and baud detection settings and the
// overall time budget auto-connect is allowed to spend before giving up.
type AutoConnectConfig struct {
	PortConfig PortDetectionConfig
	BaudConfig BaudDetectionConfig
	TimeBudget time.Duration
	// Logger optionally traces cache/port/baud decisions; nil (the
	// default) logs nothing.
	Logger Logger
	// Verbose, when true, also threads Logger down into PortConfig and
	// BaudConfig (if they don't already carry one of their own), so a
	// host gets per-candidate scoring and per-rate probe traces in
	// addition to this package's own milestone lines.
	Verbose bool
}

// NewAutoConnectConfig returns the documented defaults: the port and
// baud detection defaults, a 30s overall time budget, no-op logging.
func NewAutoConnectConfig() AutoConnectConfig {
	return AutoConnectConfig{
		PortConfig: NewPortDetectionConfig(),
		BaudConfig: NewBaudDetectionConfig(),
		TimeBudget: 30 * time.Second,
	}
}

// Diagnostic records one port (and, if reached, baud) combination
// auto-connect tried, for surfacing to a caller when every candidate
// fails.
type Diagnostic struct {
	PortName string
	BaudRate int
	Reason   string
}

// AutoConnectResult is a live, opened Session plus the parameters that
// worked and the trail of attempts that didn't.
type AutoConnectResult struct {
	Session     *device.Session
	PortName    string
	BaudRate    int
	Identity    device.DeviceIdentity
	UsedCache   bool
	Diagnostics []Diagnostic
}

// AutoConnect tries the cached port/baud first (if cached is non-nil),
// then falls back to full port and baud detection within cfg.TimeBudget.
// It returns protocol.NoDeviceFound, carrying the collected Diagnostics
// in its Diag field, when nothing answers.
func AutoConnect(ctx context.Context, cfg AutoConnectConfig, enumerate Enumerator, open Opener, cached *cache.ConnectionRecord) (*AutoConnectResult, *protocol.Error) {
	if cfg.Verbose {
		if cfg.PortConfig.Logger == nil {
			cfg.PortConfig.Logger = cfg.Logger
		}
		if cfg.BaudConfig.Logger == nil {
			cfg.BaudConfig.Logger = cfg.Logger
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeBudget)
	defer cancel()

	var diagnostics []Diagnostic

	if cached != nil {
		cfg.Logger.logf("autoconnect: trying cached %s@%d with one probe", cached.PortName, cached.BaudRate)
		if result := tryCachedRecord(ctx, cached, cfg.PortConfig.IdentificationTimeout, open); result != nil {
			cfg.Logger.logf("autoconnect: cached combination still responds, skipping full detection")
			result.Diagnostics = diagnostics
			return result, nil
		}
		cfg.Logger.logf("autoconnect: cached combination no longer responds, falling back to full detection")
		diagnostics = append(diagnostics, Diagnostic{
			PortName: cached.PortName, BaudRate: cached.BaudRate, Reason: "cached combination no longer responds",
		})
	}

	candidates, err := DetectPorts(ctx, cfg.PortConfig, enumerate, open)
	if err != nil {
		return nil, wrapEnumerationError(err)
	}

	for _, candidate := range candidates {
		select {
		case <-ctx.Done():
			diagnostics = append(diagnostics, Diagnostic{PortName: candidate.PortName, Reason: "time budget exhausted"})
			return nil, noDeviceFound(diagnostics)
		default:
		}

		cfg.Logger.logf("autoconnect: trying port %s", candidate.PortName)
		baudResults, err := DetectBaud(ctx, candidate.PortName, cfg.BaudConfig, open)
		if err != nil {
			diagnostics = append(diagnostics, Diagnostic{PortName: candidate.PortName, Reason: err.Error()})
			continue
		}

		winner, ok := bestBaudResult(baudResults)
		if !ok {
			if len(baudResults) > 0 {
				best := baudResults[0]
				for _, br := range baudResults[1:] {
					if br.QualityScore > best.QualityScore {
						best = br
					}
				}
				diagnostics = append(diagnostics, Diagnostic{PortName: candidate.PortName, BaudRate: best.BaudRate, Reason: "no successful identification probe"})
			}
			continue
		}

		result, openErr := finalizeConnection(ctx, candidate.PortName, winner.BaudRate, open)
		if openErr != nil {
			diagnostics = append(diagnostics, Diagnostic{PortName: candidate.PortName, BaudRate: winner.BaudRate, Reason: openErr.Error()})
			continue
		}
		cfg.Logger.logf("autoconnect: connected on %s@%d", candidate.PortName, winner.BaudRate)
		result.Diagnostics = diagnostics
		return result, nil
	}

	return nil, noDeviceFound(diagnostics)
}

// ToCacheRecord builds the record a caller should persist after a
// successful AutoConnect, so the next run can try this combination
// first.
func (r *AutoConnectResult) ToCacheRecord() cache.ConnectionRecord {
	return cache.ConnectionRecord{
		PortName:        r.PortName,
		BaudRate:        r.BaudRate,
		FirmwareRev:     r.Identity.FirmwareRevision,
		Model:           r.Identity.Model,
		Serial:          r.Identity.Serial,
		LastSuccessTime: time.Now(),
	}
}

// tryCachedRecord validates a cached port/baud combination with exactly
// one probe, two wire transactions (enter_remote(OutputOff) + firmware
// read via Session.ProbeIdentification), per spec.md §4.8 step 1 — it must not
// fall back to a full read_identity() just to check the cache is still
// good. On success the returned Identity is the cached record's own
// fields, not a freshly read one.
func tryCachedRecord(ctx context.Context, cached *cache.ConnectionRecord, probeTimeout time.Duration, open Opener) *AutoConnectResult {
	transport, err := open(cached.PortName, cached.BaudRate)
	if err != nil {
		return nil
	}
	s := device.OpenForDetection(transport)
	if _, err := s.ProbeIdentification(ctx, probeTimeout); err != nil {
		s.Close()
		return nil
	}
	return &AutoConnectResult{
		Session:  s,
		PortName: cached.PortName,
		BaudRate: cached.BaudRate,
		Identity: device.DeviceIdentity{
			FirmwareRevision: cached.FirmwareRev,
			Model:            cached.Model,
			Serial:           cached.Serial,
		},
		UsedCache: true,
	}
}

func bestBaudResult(results []BaudResult) (BaudResult, bool) {
	for _, r := range results {
		if r.Success {
			return r, true
		}
	}
	return BaudResult{}, false
}

func finalizeConnection(ctx context.Context, portName string, baudRate int, open Opener) (*AutoConnectResult, *protocol.Error) {
	transport, err := open(portName, baudRate)
	if err != nil {
		return nil, err
	}
	s := device.Open(transport)
	identity, err := s.ReadIdentity(ctx, device.DefaultOperationalTimeout)
	if err != nil {
		s.Close()
		return nil, err
	}
	return &AutoConnectResult{Session: s, PortName: portName, BaudRate: baudRate, Identity: identity}, nil
}

func wrapEnumerationError(err error) *protocol.Error {
	return &protocol.Error{Kind: protocol.Io, Msg: "port enumeration failed", Err: err}
}

func noDeviceFound(diagnostics []Diagnostic) *protocol.Error {
	lines := make([]string, 0, len(diagnostics))
	for _, d := range diagnostics {
		if d.BaudRate != 0 {
			lines = append(lines, fmt.Sprintf("%s@%d: %s", d.PortName, d.BaudRate, d.Reason))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", d.PortName, d.Reason))
		}
	}
	return &protocol.Error{
		Kind: protocol.NoDeviceFound,
		Msg:  "no device found",
		Diag: strings.Join(lines, "; "),
	}
}
