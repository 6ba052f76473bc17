package detect

import (
	"strconv"

	"go.bug.st/serial/enumerator"

	"ledctl/protocol"
)

// DefaultEnumerator lists the OS's serial ports via
// go.bug.st/serial/enumerator, which reports USB VID/PID/serial metadata
// where the platform exposes it; ports without USB metadata are still
// returned (PortInfo.USB is nil for them) so a PortDetectionConfig with
// UsbPortsOnly disabled can still see them.
func DefaultEnumerator() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Name: d.Name}
		if d.IsUSB {
			info.USB = &USBDescriptor{
				VID:     parseHexVendorID(d.VID),
				PID:     parseHexVendorID(d.PID),
				Serial:  d.SerialNumber,
				Product: d.Product,
			}
		}
		ports = append(ports, info)
	}
	return ports, nil
}

func parseHexVendorID(s string) uint16 {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

// DefaultOpener opens portName at baudRate with the controller's serial
// line contract (8N1, no flow control) via protocol.OpenSerial.
func DefaultOpener(portName string, baudRate int) (protocol.Transport, *protocol.Error) {
	t, err := protocol.OpenSerial(portName, baudRate)
	if err != nil {
		return nil, err
	}
	return t, nil
}
