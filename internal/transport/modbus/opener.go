// internal/transport/modbus/opener.go
package modbus

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/logging"
	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

const (
	DefaultPort    = 502
	DefaultTimeout = 2 * time.Second

	// LabJack ignores the unit id; 1 is what LJM sends.
	unitID = 1
)

// Max bytes per Modbus packet, by link.
var maxBytesPerPacket = map[transport.ConnectionType]int{
	transport.ConnectionUSB:      64,
	transport.ConnectionEthernet: 1040,
	transport.ConnectionWiFi:     500,
}

// Opener opens LabJack T-series devices over Modbus.
type Opener struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

var _ transport.Opener = (*Opener)(nil)

// Open connects over TCP for Ethernet and WiFi and over USB bulk endpoints
// for USB. ConnectionAny picks TCP when identifier is a host, USB otherwise.
func (o *Opener) Open(dt transport.DeviceType, ct transport.ConnectionType, identifier string) (transport.Conn, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := logging.OrNop(o.Logger).Named("modbus")

	if ct == transport.ConnectionAny {
		ct = transport.ConnectionUSB
		if looksLikeHost(identifier) {
			ct = transport.ConnectionEthernet
		}
	}

	var (
		bus    Bus
		closer io.Closer
		setTO  func(time.Duration)
		host   string
		port   int
	)
	switch ct {
	case transport.ConnectionEthernet, transport.ConnectionWiFi:
		if !looksLikeHost(identifier) {
			return nil, transport.NewError("open", transport.CodeDeviceNotFound,
				fmt.Errorf("%s needs an IP address or host name, got %q", ct, identifier))
		}
		addr, h, p := hostPort(identifier)
		handler := modbus.NewTCPClientHandler(addr)
		handler.Timeout = timeout
		handler.SlaveId = unitID
		if err := handler.Connect(); err != nil {
			return nil, transport.NewError("open "+addr, transport.CodeDeviceNotOpen, err)
		}
		bus, closer, host, port = modbus.NewClient(handler), handler, h, p
		setTO = func(d time.Duration) { handler.Timeout = d }

	case transport.ConnectionUSB:
		tr, err := openUSB(dt, identifier, timeout)
		if err != nil {
			return nil, err
		}
		packager := modbus.NewTCPClientHandler("")
		packager.SlaveId = unitID
		bus, closer = modbus.NewClient2(packager, tr), tr
		setTO = tr.SetTimeout

	default:
		return nil, transport.NewError("open", transport.CodeDeviceNotFound, fmt.Errorf("unsupported connection type %s", ct))
	}

	client := newRegisterClient(bus, maxBytesPerPacket[ct])
	client.setTimeout = setTO

	info, err := handshake(client, dt, ct, host, port)
	if err != nil {
		closer.Close()
		return nil, err
	}
	log.Debug("handshake", zap.Int("serial_number", info.SerialNumber), zap.Stringer("device", info.DeviceType))
	return newConn(client, closer, info, log.With(zap.Int("serial_number", info.SerialNumber))), nil
}

// handshake reads the device identity once.
func handshake(c *registerClient, want transport.DeviceType, ct transport.ConnectionType, host string, port int) (transport.Info, error) {
	info := transport.Info{
		ConnectionType:    ct,
		IPAddress:         host,
		Port:              port,
		MaxBytesPerPacket: maxBytesPerPacket[ct],
	}

	product, err := c.Read(mustRegister("PRODUCT_ID"))
	if err != nil {
		return info, err
	}
	info.DeviceType = transport.DeviceType(int(product))
	if want != transport.DeviceAny && info.DeviceType != want {
		return info, transport.NewError("open", transport.CodeDeviceNotFound,
			fmt.Errorf("found %s, want %s", info.DeviceType, want))
	}

	serial, err := c.Read(mustRegister("SERIAL_NUMBER"))
	if err != nil {
		return info, err
	}
	info.SerialNumber = int(serial)

	ipReg := "ETHERNET_IP"
	if ct == transport.ConnectionWiFi {
		ipReg = "WIFI_IP"
	}
	if ip, err := c.Read(mustRegister(ipReg)); err == nil && ip != 0 {
		info.IPAddress = formatIPv4(uint32(ip))
	}
	return info, nil
}

func mustRegister(name string) regmap.Register {
	r, err := regmap.Resolve(name)
	if err != nil {
		panic(err)
	}
	return r
}

func formatIPv4(v uint32) string {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).String()
}

func looksLikeHost(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || strings.EqualFold(id, transport.IdentifierAny) {
		return false
	}
	if _, err := strconv.Atoi(id); err == nil {
		// A bare number is a serial number.
		return false
	}
	return true
}

// hostPort returns the dial address plus its host and port parts.
func hostPort(id string) (string, string, int) {
	id = strings.TrimSpace(id)
	host, p, err := net.SplitHostPort(id)
	if err != nil {
		return net.JoinHostPort(id, strconv.Itoa(DefaultPort)), id, DefaultPort
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), host, port
}
