// Package detect implements the port and baud auto-detection subsystem:
// it locates the correct serial port and baud rate by probing
// candidates with protocol-level identification queries and scoring the
// results, then orchestrates both under a global time budget.
package detect

import (
	"context"
	"sort"
	"strings"
	"time"

	"ledctl/device"
	"ledctl/protocol"
)

// referenceBaud is the baud rate port detection probes at, per the
// controller's documented default.
const referenceBaud = 19200

// USBDescriptor is the subset of USB device metadata the host's port
// enumerator can supply for a candidate.
type USBDescriptor struct {
	VID, PID     uint16
	Manufacturer string
	Product      string
	Serial       string
}

// PortInfo is one OS-visible serial port, as returned by the host's
// enumerator.
type PortInfo struct {
	Name string
	USB  *USBDescriptor
}

// PortCandidate is a scored, rankable port.
type PortCandidate struct {
	PortName           string
	USB                *USBDescriptor
	CompatibilityScore int
	ScoreReason        string
}

// Enumerator lists the OS-visible serial ports. The host supplies this;
// see DefaultEnumerator for the go.bug.st/serial-backed implementation.
type Enumerator func() ([]PortInfo, error)

// Opener opens a Transport on portName at baudRate. The host supplies
// this; see DefaultOpener for the go.bug.st/serial-backed implementation.
type Opener func(portName string, baudRate int) (protocol.Transport, *protocol.Error)

// PortDetectionConfig controls port enumeration, filtering, and scoring.
type PortDetectionConfig struct {
	UsbPortsOnly             bool
	TestDeviceIdentification bool
	PreferredVendorIDs       []uint16
	IdentificationTimeout    time.Duration
	// Logger optionally traces enumeration and scoring; nil (the
	// default) logs nothing.
	Logger Logger
}

// NewPortDetectionConfig returns the documented defaults: USB-only,
// identification probing enabled, FTDI's vendor ID preferred, a 2s probe
// timeout, no-op logging.
func NewPortDetectionConfig() PortDetectionConfig {
	return PortDetectionConfig{
		UsbPortsOnly:             true,
		TestDeviceIdentification: true,
		PreferredVendorIDs:       []uint16{0x0403},
		IdentificationTimeout:    2 * time.Second,
	}
}

// DetectPorts enumerates, filters, scores, and ranks candidate ports.
func DetectPorts(ctx context.Context, cfg PortDetectionConfig, enumerate Enumerator, open Opener) ([]PortCandidate, error) {
	ports, err := enumerate()
	if err != nil {
		return nil, err
	}
	cfg.Logger.logf("detect: enumerated %d port(s)", len(ports))

	candidates := make([]PortCandidate, 0, len(ports))
	for _, p := range ports {
		if cfg.UsbPortsOnly && p.USB == nil {
			cfg.Logger.logf("detect: skipping %s, no usb descriptor", p.Name)
			continue
		}
		c := scorePort(ctx, p, cfg, open)
		cfg.Logger.logf("detect: scored %s = %d (%s)", c.PortName, c.CompatibilityScore, c.ScoreReason)
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CompatibilityScore != candidates[j].CompatibilityScore {
			return candidates[i].CompatibilityScore > candidates[j].CompatibilityScore
		}
		return candidates[i].PortName < candidates[j].PortName
	})
	return candidates, nil
}

func scorePort(ctx context.Context, p PortInfo, cfg PortDetectionConfig, open Opener) PortCandidate {
	var reasons []string
	score := 0

	if p.USB != nil {
		score += 40
		reasons = append(reasons, "usb descriptor present")
		if vidPreferred(cfg.PreferredVendorIDs, p.USB.VID) {
			score += 30
			reasons = append(reasons, "preferred vendor id")
		}
	}

	if cfg.TestDeviceIdentification {
		ok, probeErr := probeIdentification(ctx, p.Name, open, cfg.IdentificationTimeout)
		switch {
		case probeErr != nil && probeErr.Kind == protocol.Io:
			// A port that raises on open is scored 0 regardless of any
			// USB descriptor signal already accumulated.
			return PortCandidate{
				PortName:           p.Name,
				USB:                p.USB,
				CompatibilityScore: 0,
				ScoreReason:        "open failed: " + probeErr.Error(),
			}
		case ok:
			score += 30 + 10
			reasons = append(reasons, "identification probe ok")
		case probeErr != nil:
			reasons = append(reasons, "identification probe failed: "+probeErr.Error())
		default:
			reasons = append(reasons, "identification probe returned no response")
		}
	}

	if score > 100 {
		score = 100
	}
	reason := strings.Join(reasons, "; ")
	if reason == "" {
		reason = "no usb descriptor, identification test disabled"
	}
	return PortCandidate{PortName: p.Name, USB: p.USB, CompatibilityScore: score, ScoreReason: reason}
}

func vidPreferred(preferred []uint16, vid uint16) bool {
	for _, v := range preferred {
		if v == vid {
			return true
		}
	}
	return false
}

// probeIdentification opens a throwaway transport at the reference baud,
// issues enter_remote(OutputOff) + firmware read, and closes it. Any Ok
// counts as success.
func probeIdentification(ctx context.Context, portName string, open Opener, timeout time.Duration) (bool, *protocol.Error) {
	transport, err := open(portName, referenceBaud)
	if err != nil {
		return false, err
	}
	defer transport.Close()

	s := device.OpenForDetection(transport)
	defer s.Close()

	if _, err := s.ProbeIdentification(ctx, timeout); err != nil {
		return false, err
	}
	return true, nil
}
