// internal/transport/modbus/bus_test.go
package modbus

import (
	"sync"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// fakeBus is an in-memory register file.
type fakeBus struct {
	mu   sync.Mutex
	regs map[uint16]uint16

	// reject makes writes to an address fail with a Modbus exception and
	// leaves code in LAST_ERR_DETAIL.
	reject map[uint16]uint32

	reads  int
	writes []fakeWrite
}

type fakeWrite struct {
	Address uint16
	Words   []uint16
}

func newFakeBus() *fakeBus {
	return &fakeBus{regs: make(map[uint16]uint16), reject: make(map[uint16]uint32)}
}

func (b *fakeBus) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = b.regs[address+uint16(i)]
	}
	return packRegisters(words), nil
}

func (b *fakeBus) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, ok := b.reject[address]; ok {
		b.regs[lastErrDetail] = uint16(code >> 16)
		b.regs[lastErrDetail+1] = uint16(code)
		return nil, &modbus.ModbusError{FunctionCode: modbus.FuncCodeWriteMultipleRegisters, ExceptionCode: modbus.ExceptionCodeServerDeviceFailure}
	}
	words := unpackRegisters(value)
	b.writes = append(b.writes, fakeWrite{Address: address, Words: words})
	for i, w := range words {
		b.regs[address+uint16(i)] = w
	}
	return nil, nil
}

// set stores v in the named register.
func (b *fakeBus) set(name string, v float64) {
	r, err := regmap.Resolve(name)
	if err != nil {
		panic(err)
	}
	words, err := r.Encode(v)
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range words {
		b.regs[uint16(r.Address+i)] = w
	}
}

func (b *fakeBus) get(name string) float64 {
	r, err := regmap.Resolve(name)
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	words := make([]uint16, r.Words())
	for i := range words {
		words[i] = b.regs[uint16(r.Address+i)]
	}
	v, err := r.Decode(words)
	if err != nil {
		panic(err)
	}
	return v
}

func newTestConn(bus *fakeBus) *Conn {
	return newConn(newRegisterClient(bus, 1040), nil, transport.Info{SerialNumber: 470010001}, zap.NewNop())
}
