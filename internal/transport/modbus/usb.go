// internal/transport/modbus/usb.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/libusb"

	"github.com/tamzrod/labjack-streamer/internal/transport"
)

const (
	labjackVendorID = 0x0cd5

	usbEndpointOut = 0x01
	usbEndpointIn  = 0x82
	usbPacketSize  = 64

	// MBAP header up to and including the length field.
	mbapLengthEnd = 6
)

var labjackProducts = map[transport.DeviceType]uint16{
	transport.DeviceT4: 0x0004,
	transport.DeviceT7: 0x0007,
	transport.DeviceT8: 0x0008,
}

var errUSBClosed = errors.New("usb link closed")

// usbTransporter carries Modbus TCP frames over the T-series USB bulk
// endpoints. It implements modbus.Transporter.
type usbTransporter struct {
	mu      sync.Mutex
	ctx     *libusb.Context
	dh      *libusb.DeviceHandle
	timeout int // ms
}

// openUSB finds the first matching LabJack, or the one whose serial number
// equals identifier, and claims its bulk interface.
func openUSB(dt transport.DeviceType, identifier string, timeout time.Duration) (*usbTransporter, error) {
	ctx, err := libusb.NewContext()
	if err != nil {
		return nil, transport.NewError("open usb", transport.CodeDeviceNotOpen, err)
	}

	dh, err := findUSB(ctx, dt, strings.TrimSpace(identifier))
	if err != nil {
		ctx.Close()
		return nil, err
	}
	if err := dh.ClaimInterface(0); err != nil {
		dh.Close()
		ctx.Close()
		return nil, transport.NewError("open usb", transport.CodeDeviceNotOpen, fmt.Errorf("claim interface: %w", err))
	}
	return &usbTransporter{ctx: ctx, dh: dh, timeout: int(timeout / time.Millisecond)}, nil
}

func findUSB(ctx *libusb.Context, dt transport.DeviceType, identifier string) (*libusb.DeviceHandle, error) {
	anySerial := identifier == "" || strings.EqualFold(identifier, transport.IdentifierAny)
	if !anySerial {
		if _, err := strconv.Atoi(identifier); err != nil {
			return nil, transport.NewError("open usb", transport.CodeDeviceNotFound,
				fmt.Errorf("usb identifier must be a serial number, got %q", identifier))
		}
	}

	devices, err := ctx.GetDeviceList()
	if err != nil {
		return nil, transport.NewError("open usb", transport.CodeDeviceNotOpen, fmt.Errorf("device list: %w", err))
	}
	for _, dev := range devices {
		desc, err := dev.GetDeviceDescriptor()
		if err != nil {
			continue
		}
		if desc.VendorID != labjackVendorID || !productMatches(dt, desc.ProductID) {
			continue
		}
		dh, err := dev.Open()
		if err != nil {
			continue
		}
		if anySerial {
			return dh, nil
		}
		sn, err := dh.GetStringDescriptorASCII(desc.SerialNumberIndex)
		if err == nil && strings.TrimSpace(sn) == identifier {
			return dh, nil
		}
		dh.Close()
	}
	return nil, transport.NewError("open usb", transport.CodeDeviceNotFound,
		fmt.Errorf("no %s with serial %q on usb", dt, identifier))
}

func productMatches(dt transport.DeviceType, pid uint16) bool {
	if dt == transport.DeviceAny {
		for _, p := range labjackProducts {
			if p == pid {
				return true
			}
		}
		return false
	}
	want, ok := labjackProducts[dt]
	return ok && want == pid
}

// Send writes one request frame and reads the full response frame, which may
// span several bulk packets.
func (t *usbTransporter) Send(aduRequest []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dh == nil {
		return nil, errUSBClosed
	}

	if _, err := t.dh.BulkTransfer(usbEndpointOut, aduRequest, len(aduRequest), t.timeout); err != nil {
		return nil, fmt.Errorf("usb write: %w", err)
	}

	resp := make([]byte, 0, usbPacketSize)
	packet := make([]byte, usbPacketSize)
	want := -1
	for want < 0 || len(resp) < want {
		n, err := t.dh.BulkTransfer(usbEndpointIn, packet, len(packet), t.timeout)
		if err != nil {
			return nil, fmt.Errorf("usb read: %w", err)
		}
		if n == 0 {
			return nil, errors.New("usb read: empty packet")
		}
		resp = append(resp, packet[:n]...)
		if want < 0 && len(resp) >= mbapLengthEnd {
			want = mbapLengthEnd + int(binary.BigEndian.Uint16(resp[4:mbapLengthEnd]))
		}
	}
	return resp[:want], nil
}

func (t *usbTransporter) SetTimeout(d time.Duration) {
	t.mu.Lock()
	t.timeout = int(d / time.Millisecond)
	t.mu.Unlock()
}

// Close releases the interface and the libusb context.
func (t *usbTransporter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dh == nil {
		return nil
	}
	err := t.dh.ReleaseInterface(0)
	t.dh.Close()
	t.ctx.Close()
	t.dh = nil
	if err != nil {
		return fmt.Errorf("usb release interface: %w", err)
	}
	return nil
}
