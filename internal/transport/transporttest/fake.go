// internal/transport/transporttest/fake.go
package transporttest

import (
	"errors"
	"sync"

	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// ErrScriptExhausted is returned by StreamRead when no scripted step is left.
var ErrScriptExhausted = errors.New("transporttest: read script exhausted")

// Call records one operation issued against a Conn.
type Call struct {
	Op     string
	Names  []string
	Values []float64
	Text   string
}

// ReadStep is one scripted StreamRead outcome.
type ReadStep struct {
	Result transport.ReadResult
	Err    error
}

// Conn is a scripted transport.Conn that records every call.
type Conn struct {
	mu sync.Mutex

	InfoValue transport.Info
	Calls     []Call

	WriteNamesFunc      func(names []string, values []float64) error
	WriteNameStringFunc func(name, value string) error
	LibraryFunc         func(name string) error
	StreamStartFunc     func(scansPerRead int, addresses []int, scanRate float64) (float64, error)
	StreamStopFunc      func() error
	CloseErr            error

	Reads   []ReadStep
	readIdx int
	Closed  bool
}

func (c *Conn) record(call Call) {
	c.mu.Lock()
	c.Calls = append(c.Calls, call)
	c.mu.Unlock()
}

func (c *Conn) Close() error {
	c.record(Call{Op: "Close"})
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	return c.CloseErr
}

func (c *Conn) Info() transport.Info { return c.InfoValue }

func (c *Conn) WriteNames(names []string, values []float64) error {
	c.record(Call{
		Op:     "WriteNames",
		Names:  append([]string(nil), names...),
		Values: append([]float64(nil), values...),
	})
	if c.WriteNamesFunc != nil {
		return c.WriteNamesFunc(names, values)
	}
	return nil
}

func (c *Conn) WriteNameString(name, value string) error {
	c.record(Call{Op: "WriteNameString", Names: []string{name}, Text: value})
	if c.WriteNameStringFunc != nil {
		return c.WriteNameStringFunc(name, value)
	}
	return nil
}

func (c *Conn) WriteLibraryConfig(name string, value float64) error {
	c.record(Call{Op: "WriteLibraryConfig", Names: []string{name}, Values: []float64{value}})
	if c.LibraryFunc != nil {
		return c.LibraryFunc(name)
	}
	return nil
}

func (c *Conn) WriteLibraryConfigString(name, value string) error {
	c.record(Call{Op: "WriteLibraryConfigString", Names: []string{name}, Text: value})
	if c.LibraryFunc != nil {
		return c.LibraryFunc(name)
	}
	return nil
}

func (c *Conn) StreamStart(scansPerRead int, addresses []int, scanRate float64) (float64, error) {
	vals := make([]float64, 0, len(addresses)+2)
	vals = append(vals, float64(scansPerRead), scanRate)
	for _, a := range addresses {
		vals = append(vals, float64(a))
	}
	c.record(Call{Op: "StreamStart", Values: vals})
	if c.StreamStartFunc != nil {
		return c.StreamStartFunc(scansPerRead, addresses, scanRate)
	}
	return scanRate, nil
}

func (c *Conn) StreamRead() (transport.ReadResult, error) {
	c.record(Call{Op: "StreamRead"})
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readIdx >= len(c.Reads) {
		return transport.ReadResult{}, ErrScriptExhausted
	}
	step := c.Reads[c.readIdx]
	c.readIdx++
	return step.Result, step.Err
}

func (c *Conn) StreamStop() error {
	c.record(Call{Op: "StreamStop"})
	if c.StreamStopFunc != nil {
		return c.StreamStopFunc()
	}
	return nil
}

// Count returns how many calls of op were recorded.
func (c *Conn) Count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.Calls {
		if call.Op == op {
			n++
		}
	}
	return n
}

// Ops returns the recorded operation names in order.
func (c *Conn) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Calls))
	for i, call := range c.Calls {
		out[i] = call.Op
	}
	return out
}

// Writes returns the recorded WriteNames calls in order.
func (c *Conn) Writes() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.Calls {
		if call.Op == "WriteNames" {
			out = append(out, call)
		}
	}
	return out
}

// Opener hands out Conn, or fails with Err.
type Opener struct {
	Conn  *Conn
	Err   error
	Opens int
}

func (o *Opener) Open(transport.DeviceType, transport.ConnectionType, string) (transport.Conn, error) {
	o.Opens++
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Conn, nil
}

// Samples builds a ReadResult from values.
func Samples(values ...float64) transport.ReadResult {
	return transport.ReadResult{Samples: values}
}
