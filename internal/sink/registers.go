// internal/sink/registers.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	cfg "github.com/tamzrod/labjack-streamer/internal/config"
	"github.com/tamzrod/labjack-streamer/internal/status"
	"github.com/tamzrod/labjack-streamer/internal/stream"
)

// maxWriteRegisters is the FC16 quantity limit, rounded down to keep
// float32 pairs together.
const maxWriteRegisters = 122

// registerWriter writes holding registers on a remote register server.
type registerWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
	Close() error
}

// StatusRegisters mirrors the run status block, and optionally the channel
// means, into holding registers.
type StatusRegisters struct {
	cli      registerWriter
	unitID   uint8
	baseAddr uint16
	values   *uint16
}

// NewStatusRegisters connects to the configured register server.
func NewStatusRegisters(c cfg.StatusSinkConfig) (*StatusRegisters, error) {
	base := int(c.BaseSlot) * status.SlotsPerRun
	if base+status.SlotsPerRun > math.MaxUint16+1 {
		return nil, fmt.Errorf("status sink: base slot %d out of range", c.BaseSlot)
	}
	timeout := time.Duration(c.TimeoutMs) * time.Millisecond

	var (
		cli registerWriter
		err error
	)
	switch c.Protocol {
	case cfg.StatusProtocolIngest:
		cli, err = newIngestWriter(c.Endpoint, timeout)
	default:
		cli, err = newModbusWriter(c.Endpoint, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("status sink: %w", err)
	}
	return newStatusRegisters(cli, uint8(c.UnitID), uint16(base), c.ValuesAddress), nil
}

func newStatusRegisters(cli registerWriter, unitID uint8, baseAddr uint16, values *uint16) *StatusRegisters {
	return &StatusRegisters{cli: cli, unitID: unitID, baseAddr: baseAddr, values: values}
}

func (s *StatusRegisters) Name() string { return "status" }

// Deliver writes the full status block, then the channel means. Runs without
// a result still write their status block.
func (s *StatusRegisters) Deliver(_ context.Context, run *Run) error {
	if err := s.cli.WriteRegisters(s.unitID, s.baseAddr, status.Encode(run.Status)); err != nil {
		return fmt.Errorf("status block write failed: %w", err)
	}
	if s.values == nil || run.Result == nil {
		return nil
	}

	regs := meanRegisters(run.Result)
	if int(*s.values)+len(regs) > math.MaxUint16+1 {
		return fmt.Errorf("values block at %d does not fit %d registers", *s.values, len(regs))
	}
	for off := 0; off < len(regs); off += maxWriteRegisters {
		end := min(off+maxWriteRegisters, len(regs))
		if err := s.cli.WriteRegisters(s.unitID, *s.values+uint16(off), regs[off:end]); err != nil {
			return fmt.Errorf("values write at %d failed: %w", int(*s.values)+off, err)
		}
	}
	return nil
}

func (s *StatusRegisters) Close() error { return s.cli.Close() }

// meanRegisters encodes the mean of each channel as a float32, high word
// first. Channels without samples encode NaN.
func meanRegisters(res *stream.Result) []uint16 {
	out := make([]uint16, 0, 2*len(res.Channels))
	for _, ch := range res.Channels {
		bits := math.Float32bits(float32(mean(res.Records[ch].Values)))
		out = append(out, uint16(bits>>16), uint16(bits))
	}
	return out
}

// mean skips NaN samples.
func mean(v []float64) float64 {
	var (
		sum float64
		n   int
	)
	for _, x := range v {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// ------------------------------------------------------------
// Modbus TCP
// ------------------------------------------------------------

// modbusWriter is a single TCP connection. It serializes requests because
// it mutates SlaveId per write.
type modbusWriter struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func newModbusWriter(endpoint string, timeout time.Duration) (*modbusWriter, error) {
	h := modbus.NewTCPClientHandler(endpoint)
	h.Timeout = timeout
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus connect %s: %w", endpoint, err)
	}
	return &modbusWriter{handler: h, client: modbus.NewClient(h)}, nil
}

func (w *modbusWriter) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handler.SlaveId = unitID
	_, err := w.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	return err
}

func (w *modbusWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handler.Close()
}

// ------------------------------------------------------------
// Raw Ingest v1 (one packet per connection)
//
// Header is 10 bytes, big-endian:
// 0-1  magic "RI"
// 2    version 0x01
// 3    area (3 = holding registers)
// 4-5  unit id
// 6-7  address
// 8-9  count
// 10+  payload
//
// The server answers one status byte.
// ------------------------------------------------------------

const (
	ingestMagicHi byte = 0x52
	ingestMagicLo byte = 0x49
	ingestV1      byte = 0x01

	ingestAreaHoldingRegisters byte = 3

	ingestOK       byte = 0x00
	ingestRejected byte = 0x01
)

type ingestWriter struct {
	endpoint string
	timeout  time.Duration
	dial     func(network, addr string, timeout time.Duration) (net.Conn, error)
}

func newIngestWriter(endpoint string, timeout time.Duration) (*ingestWriter, error) {
	if endpoint == "" {
		return nil, errors.New("ingest: endpoint required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ingestWriter{endpoint: endpoint, timeout: timeout, dial: net.DialTimeout}, nil
}

func (w *ingestWriter) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	pkt := buildIngestPacket(ingestAreaHoldingRegisters, unitID, addr, uint16(len(regs)), packRegisters(regs))

	conn, err := w.dial("tcp", w.endpoint, w.timeout)
	if err != nil {
		return fmt.Errorf("ingest: dial: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(w.timeout))
	if _, err := conn.Write(pkt); err != nil {
		return fmt.Errorf("ingest: write: %w", err)
	}

	var resp [1]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return fmt.Errorf("ingest: read status: %w", err)
	}
	switch resp[0] {
	case ingestOK:
		return nil
	case ingestRejected:
		return errors.New("ingest: rejected")
	default:
		return fmt.Errorf("ingest: unknown status 0x%02x", resp[0])
	}
}

func (w *ingestWriter) Close() error { return nil }

func buildIngestPacket(area byte, unitID uint8, addr, count uint16, payload []byte) []byte {
	pkt := make([]byte, 10, 10+len(payload))
	pkt[0] = ingestMagicHi
	pkt[1] = ingestMagicLo
	pkt[2] = ingestV1
	pkt[3] = area
	putU16(pkt[4:6], uint16(unitID))
	putU16(pkt[6:8], addr)
	putU16(pkt[8:10], count)
	return append(pkt, payload...)
}

func putU16(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}

// packRegisters lays registers out in Modbus memory order.
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		putU16(out[2*i:], r)
	}
	return out
}
