// internal/transport/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Bus is the subset of modbus.Client the transport uses.
type Bus interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// Modbus PDU limits for FC 3 and FC 16.
const (
	maxReadRegs  = 125
	maxWriteRegs = 123

	// MBAP(7) + FC(1) + byte count(1).
	readOverhead = 9
	// MBAP(7) + FC(1) + address(2) + quantity(2) + byte count(1).
	writeOverhead = 13
)

// registerClient serializes register I/O on one bus and turns Modbus
// exceptions into device error codes.
type registerClient struct {
	mu  sync.Mutex
	bus Bus

	maxRead  int
	maxWrite int

	// setTimeout adjusts the send/receive timeout of the underlying link.
	setTimeout func(time.Duration)
}

func newRegisterClient(bus Bus, maxBytesPerPacket int) *registerClient {
	c := &registerClient{bus: bus, maxRead: maxReadRegs, maxWrite: maxWriteRegs}
	if maxBytesPerPacket > 0 {
		c.maxRead = clamp((maxBytesPerPacket-readOverhead)/2, 1, maxReadRegs)
		c.maxWrite = clamp((maxBytesPerPacket-writeOverhead)/2, 1, maxWriteRegs)
	}
	return c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ReadWords reads qty consecutive registers starting at addr, splitting the
// request to fit the packet size.
func (c *registerClient) ReadWords(addr, qty int) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]uint16, 0, qty)
	for done := 0; done < qty; {
		n := qty - done
		if n > c.maxRead {
			n = c.maxRead
		}
		raw, err := c.bus.ReadHoldingRegisters(uint16(addr+done), uint16(n))
		if err != nil {
			return nil, c.wrap(fmt.Sprintf("read %d", addr+done), err)
		}
		if len(raw) < 2*n {
			return nil, transport.NewError(fmt.Sprintf("read %d", addr+done), transport.CodeUnknown,
				fmt.Errorf("short response: %d bytes for %d registers", len(raw), n))
		}
		out = append(out, unpackRegisters(raw[:2*n])...)
		done += n
	}
	return out, nil
}

// WriteWords writes regs starting at addr.
func (c *registerClient) WriteWords(addr int, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for done := 0; done < len(regs); {
		n := len(regs) - done
		if n > c.maxWrite {
			n = c.maxWrite
		}
		chunk := regs[done : done+n]
		if _, err := c.bus.WriteMultipleRegisters(uint16(addr+done), uint16(n), packRegisters(chunk)); err != nil {
			return c.wrap(fmt.Sprintf("write %d", addr+done), err)
		}
		done += n
	}
	return nil
}

// Read decodes one register.
func (c *registerClient) Read(r regmap.Register) (float64, error) {
	words, err := c.ReadWords(r.Address, r.Words())
	if err != nil {
		return 0, err
	}
	v, err := r.Decode(words)
	if err != nil {
		return 0, transport.NewError("read "+r.Name, transport.CodeUnknown, err)
	}
	return v, nil
}

func (c *registerClient) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setTimeout != nil {
		c.setTimeout(d)
	}
}

// wrap maps a bus failure to a transport error. A Modbus exception is
// resolved by reading LAST_ERR_DETAIL. Caller holds mu.
func (c *registerClient) wrap(op string, err error) error {
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		code := transport.CodeUnknown
		if raw, derr := c.bus.ReadHoldingRegisters(lastErrDetail, 2); derr == nil && len(raw) >= 4 {
			w := unpackRegisters(raw[:4])
			if v := uint32(w[0])<<16 | uint32(w[1]); v != 0 {
				code = transport.Code(v)
			}
		}
		return transport.NewError(op, code, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return transport.NewError(op, transport.CodeReceiveTimeout, err)
	}
	return transport.NewError(op, transport.CodeUnknown, err)
}

var lastErrDetail = uint16(mustAddress("LAST_ERR_DETAIL"))

func mustAddress(name string) int {
	r, err := regmap.Resolve(name)
	if err != nil {
		panic(err)
	}
	return r.Address
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
