// internal/transport/modbus/conn.go
package modbus

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// activeStream is one running polled stream.
type activeStream struct {
	cancel       context.CancelFunc
	done         chan struct{}
	buf          *backlog
	scansPerRead int
}

// Conn is a transport.Conn over Modbus TCP or Modbus over USB.
type Conn struct {
	client *registerClient
	closer io.Closer
	info   transport.Info
	log    *zap.Logger

	mu             sync.Mutex
	scansReturn    int
	receiveTimeout time.Duration
	libExtra       map[string]string

	// Trigger registers as last written, so a polled stream can honour
	// STREAM_TRIGGER_INDEX the way the device stream engine would.
	triggerIndex int
	efIndex      map[int]int
	efConfigA    map[int]int

	stream *activeStream
}

var _ transport.Conn = (*Conn)(nil)

func newConn(client *registerClient, closer io.Closer, info transport.Info, log *zap.Logger) *Conn {
	return &Conn{
		client:      client,
		closer:      closer,
		info:        info,
		log:         log,
		scansReturn: transport.ScansReturnAll,
		libExtra:    make(map[string]string),
		efIndex:     make(map[int]int),
		efConfigA:   make(map[int]int),
	}
}

// Close stops a running stream and closes the link.
func (c *Conn) Close() error {
	c.mu.Lock()
	s := c.stream
	c.stream = nil
	c.mu.Unlock()
	if s != nil {
		s.cancel()
		<-s.done
	}
	if c.closer == nil {
		return nil
	}
	if err := c.closer.Close(); err != nil {
		return transport.NewError("close", transport.CodeUnknown, err)
	}
	return nil
}

func (c *Conn) Info() transport.Info { return c.info }

// WriteNames writes numeric registers in order. Stream registers are
// rejected while a stream runs, as the device does.
func (c *Conn) WriteNames(names []string, values []float64) error {
	if len(names) != len(values) {
		return transport.NewError("write names", transport.CodeUnknown,
			fmt.Errorf("%d names for %d values", len(names), len(values)))
	}
	if c.streaming() {
		for _, n := range names {
			if strings.HasPrefix(strings.ToUpper(n), "STREAM_") {
				return transport.NewError("write "+n, transport.CodeStreamIsActive, nil)
			}
		}
	}

	for i, n := range names {
		r, err := regmap.Resolve(n)
		if err != nil {
			return transport.NewError("write "+n, transport.CodeInvalidName, err)
		}
		words, err := r.Encode(values[i])
		if err != nil {
			return transport.NewError("write "+n, transport.CodeUnknown, err)
		}
		if err := c.client.WriteWords(r.Address, words); err != nil {
			return err
		}
		c.observe(r, values[i])
	}
	return nil
}

// WriteNameString writes a string register.
func (c *Conn) WriteNameString(name, value string) error {
	r, err := regmap.Resolve(name)
	if err != nil {
		return transport.NewError("write "+name, transport.CodeInvalidName, err)
	}
	words, err := r.EncodeString(value)
	if err != nil {
		return transport.NewError("write "+name, transport.CodeUnknown, err)
	}
	return c.client.WriteWords(r.Address, words)
}

// observe records trigger related writes.
func (c *Conn) observe(r regmap.Register, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Name == "STREAM_TRIGGER_INDEX" {
		c.triggerIndex = int(v)
		return
	}
	for _, suffix := range []string{"_EF_INDEX", "_EF_CONFIG_A"} {
		if !strings.HasSuffix(r.Name, suffix) {
			continue
		}
		dio, ok := regmap.DIOIndex(strings.TrimSuffix(r.Name, suffix))
		if !ok {
			return
		}
		if suffix == "_EF_INDEX" {
			c.efIndex[dio] = int(v)
		} else {
			c.efConfigA[dio] = int(v)
		}
	}
}

// WriteLibraryConfig applies a numeric library option to this connection.
func (c *Conn) WriteLibraryConfig(name string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch name {
	case transport.LibStreamScansReturn:
		v := int(value)
		if v != transport.ScansReturnAll && v != transport.ScansReturnAllOrNone {
			return transport.NewError("library "+name, transport.CodeUnknown, fmt.Errorf("unsupported value %g", value))
		}
		c.scansReturn = v
	case transport.LibStreamReceiveTimeoutMS:
		if value < 0 {
			return transport.NewError("library "+name, transport.CodeUnknown, fmt.Errorf("negative timeout %g", value))
		}
		c.receiveTimeout = time.Duration(value * float64(time.Millisecond))
	case transport.LibSendReceiveTimeoutMS:
		if value <= 0 {
			return transport.NewError("library "+name, transport.CodeUnknown, fmt.Errorf("timeout must be > 0, got %g", value))
		}
		c.client.SetTimeout(time.Duration(value * float64(time.Millisecond)))
	case transport.LibStreamTransfersPerSecond, transport.LibDebugLogMode:
		c.libExtra[name] = fmt.Sprint(value)
	default:
		return transport.NewError("library "+name, transport.CodeInvalidName, nil)
	}
	c.log.Debug("library option", zap.String("name", name), zap.Float64("value", value))
	return nil
}

// WriteLibraryConfigString applies a text library option.
func (c *Conn) WriteLibraryConfigString(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name != transport.LibDebugLogFile {
		return transport.NewError("library "+name, transport.CodeInvalidName, nil)
	}
	c.libExtra[name] = value
	c.log.Debug("library option", zap.String("name", name), zap.String("value", value))
	return nil
}

func (c *Conn) streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// StreamStart starts a polled stream of the scan list at scanRate.
func (c *Conn) StreamStart(scansPerRead int, addresses []int, scanRate float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return 0, transport.NewError("stream start", transport.CodeStreamIsActive, nil)
	}
	if scansPerRead <= 0 {
		return 0, transport.NewError("stream start", transport.CodeUnknown, fmt.Errorf("scans per read must be > 0, got %d", scansPerRead))
	}

	regs := make([]regmap.Register, 0, len(addresses))
	for _, a := range addresses {
		r, ok := regmap.ByAddress(a)
		if !ok {
			return 0, transport.NewError("stream start", transport.CodeInvalidName, fmt.Errorf("address %d cannot be streamed", a))
		}
		regs = append(regs, r)
	}

	p, err := newScanPoller(c.client, regs, scanRate, c.triggerWait(), c.log)
	if err != nil {
		return 0, transport.NewError("stream start", transport.CodeUnknown, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &activeStream{
		cancel:       cancel,
		done:         make(chan struct{}),
		buf:          newBacklog(len(regs)),
		scansPerRead: scansPerRead,
	}
	go func() {
		defer close(s.done)
		p.Run(ctx, s.buf)
	}()
	c.stream = s

	c.log.Info("polled stream started",
		zap.Int("channels", len(regs)),
		zap.Int("blocks", len(p.blocks)),
		zap.Float64("scan_rate", scanRate),
		zap.Duration("period", p.period),
		zap.Bool("triggered", p.trigger != nil),
	)
	return scanRate, nil
}

// triggerWait derives the edge to wait for from the trigger registers.
// Caller holds mu.
func (c *Conn) triggerWait() *triggerWait {
	if c.triggerIndex == 0 {
		return nil
	}
	r, ok := regmap.ByAddress(c.triggerIndex)
	if !ok {
		return nil
	}
	dio, ok := regmap.DIOIndex(r.Name)
	if !ok {
		return nil
	}
	rising := true
	switch c.efIndex[dio] {
	case 4:
		rising = false
	case 12:
		rising = c.efConfigA[dio] == 1
	}
	return &triggerWait{dio: dio, rising: rising}
}

// StreamRead returns one chunk of scansPerRead scans.
func (c *Conn) StreamRead() (transport.ReadResult, error) {
	c.mu.Lock()
	s := c.stream
	allOrNone := c.scansReturn == transport.ScansReturnAllOrNone
	timeout := c.receiveTimeout
	c.mu.Unlock()

	if s == nil {
		return transport.ReadResult{}, transport.NewError("stream read", transport.CodeStreamNotRunning, nil)
	}
	samples, queued, err := s.buf.take(s.scansPerRead, allOrNone, timeout)
	if err != nil {
		return transport.ReadResult{}, err
	}
	return transport.ReadResult{Samples: samples, DriverBacklog: queued}, nil
}

// StreamStop stops the polled stream and discards unread scans.
func (c *Conn) StreamStop() error {
	c.mu.Lock()
	s := c.stream
	c.stream = nil
	c.mu.Unlock()

	if s == nil {
		return transport.NewError("stream stop", transport.CodeStreamNotRunning, nil)
	}
	s.cancel()
	<-s.done
	c.log.Info("polled stream stopped", zap.Int("discarded_scans", s.buf.queued()))
	return nil
}
