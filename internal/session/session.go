// internal/session/session.go
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/logging"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Analog input defaults: single-ended against ground, ±10 V.
const (
	NegativeChannelGND = 199
	DefaultRangeVolts  = 10.0
)

// Target identifies the device a Session connects to.
type Target struct {
	DeviceType     transport.DeviceType
	ConnectionType transport.ConnectionType
	Identifier     string
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s/%s", t.DeviceType, t.ConnectionType, t.Identifier)
}

// Session owns the single connection handle to one device.
// It is not safe for concurrent use.
type Session struct {
	opener transport.Opener
	target Target
	log    *zap.Logger

	conn transport.Conn
	info transport.Info
}

// New returns an unconnected session.
func New(opener transport.Opener, target Target, logger *zap.Logger) *Session {
	if target.Identifier == "" {
		target.Identifier = transport.IdentifierAny
	}
	return &Session{
		opener: opener,
		target: target,
		log:    logging.OrNop(logger).With(zap.Stringer("target", target)),
	}
}

// Open returns a connected session.
func Open(opener transport.Opener, target Target, logger *zap.Logger) (*Session, error) {
	s := New(opener, target, logger)
	if err := s.Connect(); err != nil {
		return nil, err
	}
	return s, nil
}

// With connects, runs fn, and disconnects on every path.
// A disconnect failure is reported only when fn itself succeeded.
func With(opener transport.Opener, target Target, logger *zap.Logger, fn func(*Session) error) (err error) {
	s, err := Open(opener, target, logger)
	if err != nil {
		return err
	}
	defer func() {
		cerr := s.Close()
		if err == nil {
			err = cerr
		} else if cerr != nil {
			s.log.Warn("disconnect after failure", zap.Error(cerr))
		}
	}()
	return fn(s)
}

// Connect opens the transport handle and caches the device identity.
// Calling Connect on a connected session is a no-op.
func (s *Session) Connect() error {
	if s.conn != nil {
		return nil
	}
	if s.opener == nil {
		return fault.New(fault.KindConnection, "no transport configured", errors.New("nil opener"))
	}

	start := time.Now()
	conn, err := s.opener.Open(s.target.DeviceType, s.target.ConnectionType, s.target.Identifier)
	if err != nil {
		// fault.New flags causes that are not *transport.Error.
		return fault.New(fault.KindConnection, "open "+s.target.String(), err)
	}

	s.conn = conn
	s.info = conn.Info()
	s.log.Info("connected",
		zap.Int("serial_number", s.info.SerialNumber),
		zap.String("ip", s.info.IPAddress),
		zap.Int("port", s.info.Port),
		zap.Int("max_bytes_per_packet", s.info.MaxBytesPerPacket),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Connected reports whether the session holds a live handle.
func (s *Session) Connected() bool { return s.conn != nil }

// Disconnect closes the handle. It fails with a NoConnection fault when the
// session is not connected. The handle is released even if closing fails.
func (s *Session) Disconnect() error {
	if s.conn == nil {
		return fault.New(fault.KindNoConnection, "connection handle is not assigned", nil)
	}

	start := time.Now()
	conn := s.conn
	s.conn = nil
	s.info = transport.Info{}

	if err := conn.Close(); err != nil {
		return fault.New(fault.KindDisconnection, "close "+s.target.String(), err)
	}
	s.log.Info("disconnected", zap.Duration("took", time.Since(start)))
	return nil
}

// Close is the teardown path: a no-op on a disconnected session.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.Disconnect()
}

// Target returns the connection target.
func (s *Session) Target() Target { return s.target }

// Info returns the identity cached at connect.
func (s *Session) Info() transport.Info { return s.info }

// Conn returns the live handle, or a NoConnection fault.
func (s *Session) Conn() (transport.Conn, error) {
	if s.conn == nil {
		return nil, fault.New(fault.KindNoConnection, "connection handle is not assigned", nil)
	}
	return s.conn, nil
}

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger { return s.log }

// ConfigureLibrary applies library options. Text options use the string
// call path.
func (s *Session) ConfigureLibrary(opts LibraryOptions) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}
	if err := opts.validate(); err != nil {
		return err
	}

	for _, name := range opts.sortedNames() {
		v := opts[name]
		if v.IsText() {
			err = conn.WriteLibraryConfigString(string(name), v.TextValue())
		} else {
			err = conn.WriteLibraryConfig(string(name), v.Float())
		}
		if err != nil {
			return fault.New(fault.KindLibraryConfig, fmt.Sprintf("%s = %s", name, v), err)
		}
	}
	s.log.Debug("library configured", zap.Int("options", len(opts)))
	return nil
}

// ConfigureRegisters writes device registers. Text registers are written one
// by one through the string path, numeric ones in a single batch.
func (s *Session) ConfigureRegisters(opts RegisterOptions) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}
	if err := opts.validate(); err != nil {
		return err
	}

	textNames, numNames, numValues := opts.split()
	for _, name := range textNames {
		if err := conn.WriteNameString(name, opts[name].TextValue()); err != nil {
			return fault.New(fault.KindRegisterConfig, "write "+name, err)
		}
	}
	if len(numNames) > 0 {
		if err := conn.WriteNames(numNames, numValues); err != nil {
			return fault.New(fault.KindRegisterConfig, "write "+strings.Join(numNames, ","), err)
		}
	}
	s.log.Debug("registers configured", zap.Strings("names", append(textNames, numNames...)))
	return nil
}

// AnalogInputOptions sets the negative channel and range of every analog
// input, plus any extra register options. Extra options win on conflict.
func AnalogInputOptions(negativeChannel int, rangeVolts float64, extra RegisterOptions) RegisterOptions {
	opts := RegisterOptions{
		"AIN_ALL_NEGATIVE_CH": Number(float64(negativeChannel)),
		"AIN_ALL_RANGE":       Number(rangeVolts),
	}
	for k, v := range extra {
		opts[k] = v
	}
	return opts
}

func (s *Session) String() string {
	var b strings.Builder
	b.WriteString("LabJack session:")
	fmt.Fprintf(&b, "\n\tDevice type: %s", s.target.DeviceType)
	fmt.Fprintf(&b, "\n\tConnection type: %s", s.target.ConnectionType)
	if s.conn == nil {
		b.WriteString("\n\tnot connected")
		return b.String()
	}
	fmt.Fprintf(&b, "\n\tIP address: %s, Port: %d", s.info.IPAddress, s.info.Port)
	fmt.Fprintf(&b, "\n\tSerial number: %d", s.info.SerialNumber)
	fmt.Fprintf(&b, "\n\tMax bytes per packet: %d", s.info.MaxBytesPerPacket)
	return b.String()
}
