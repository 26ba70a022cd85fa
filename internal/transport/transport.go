// internal/transport/transport.go
package transport

import (
	"fmt"
	"strings"
)

// SkippedSample is the value a stream read reports in place of a sample the
// device could not acquire in time.
const SkippedSample = -9999.0

// DeviceType identifies the LabJack model family.
type DeviceType int

const (
	DeviceAny   DeviceType = 0
	DeviceT4    DeviceType = 4
	DeviceT7    DeviceType = 7
	DeviceT8    DeviceType = 8
	DeviceDigit DeviceType = 200
)

var deviceNames = map[DeviceType]string{
	DeviceAny:   "ANY",
	DeviceT4:    "T4",
	DeviceT7:    "T7",
	DeviceT8:    "T8",
	DeviceDigit: "DIGIT",
}

func (d DeviceType) String() string {
	if s, ok := deviceNames[d]; ok {
		return s
	}
	return fmt.Sprintf("DeviceType(%d)", int(d))
}

// ParseDeviceType maps a name such as "T7" to its DeviceType.
func ParseDeviceType(s string) (DeviceType, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for d, name := range deviceNames {
		if name == want {
			return d, nil
		}
	}
	return 0, fmt.Errorf("transport: unknown device type %q", s)
}

// ConnectionType identifies the physical link to the device.
type ConnectionType int

const (
	ConnectionAny      ConnectionType = 0
	ConnectionUSB      ConnectionType = 1
	ConnectionEthernet ConnectionType = 3
	ConnectionWiFi     ConnectionType = 4
)

var connectionNames = map[ConnectionType]string{
	ConnectionAny:      "ANY",
	ConnectionUSB:      "USB",
	ConnectionEthernet: "ETHERNET",
	ConnectionWiFi:     "WIFI",
}

func (c ConnectionType) String() string {
	if s, ok := connectionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ConnectionType(%d)", int(c))
}

// ParseConnectionType maps a name such as "ETHERNET" to its ConnectionType.
func ParseConnectionType(s string) (ConnectionType, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for c, name := range connectionNames {
		if name == want {
			return c, nil
		}
	}
	return 0, fmt.Errorf("transport: unknown connection type %q", s)
}

// IdentifierAny selects the first device found.
const IdentifierAny = "ANY"

// Info is the identity the transport learned during the open handshake.
type Info struct {
	DeviceType        DeviceType
	ConnectionType    ConnectionType
	SerialNumber      int
	IPAddress         string
	Port              int
	MaxBytesPerPacket int
}

// ReadResult is the payload of one buffered stream read.
// Samples are interleaved across the scan list in round-robin order.
type ReadResult struct {
	Samples       []float64
	DeviceBacklog int
	DriverBacklog int
}

// Opener opens connections to devices.
type Opener interface {
	Open(deviceType DeviceType, connectionType ConnectionType, identifier string) (Conn, error)
}

// Conn is one open handle to one device.
// A Conn is not safe for concurrent use.
type Conn interface {
	Close() error

	// Info returns the identity cached at open. It performs no device I/O.
	Info() Info

	WriteNames(names []string, values []float64) error
	WriteNameString(name, value string) error

	WriteLibraryConfig(name string, value float64) error
	WriteLibraryConfigString(name, value string) error

	StreamStart(scansPerRead int, addresses []int, scanRate float64) (actualScanRate float64, err error)
	StreamRead() (ReadResult, error)
	StreamStop() error
}
