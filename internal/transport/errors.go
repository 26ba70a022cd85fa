// internal/transport/errors.go
package transport

import (
	"errors"
	"fmt"
)

// Code is a LabJack library or device error code.
type Code int

const (
	CodeNone             Code = 0
	CodeNoScansReturned  Code = 1221
	CodeDeviceNotOpen    Code = 1224
	CodeDeviceNotFound   Code = 1227
	CodeStreamNotRunning Code = 1229
	CodeReceiveTimeout   Code = 1293
	CodeStreamIsActive   Code = 2605
	CodeInvalidName      Code = 1294
	CodeUnknown          Code = 1
)

var codeNames = map[Code]string{
	CodeNoScansReturned:  "NO_SCANS_RETURNED",
	CodeDeviceNotOpen:    "DEVICE_NOT_OPEN",
	CodeDeviceNotFound:   "DEVICE_NOT_FOUND",
	CodeStreamNotRunning: "STREAM_NOT_RUNNING",
	CodeReceiveTimeout:   "RECEIVE_TIMEOUT",
	CodeStreamIsActive:   "STREAM_IS_ACTIVE",
	CodeInvalidName:      "INVALID_NAME",
	CodeUnknown:          "UNKNOWN",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("LJ_ERROR_%d", int(c))
}

// Error is a failure reported by the transport.
type Error struct {
	Op   string
	Code Code
	Err  error
}

// NewError builds a transport error for op.
func NewError(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: error code %d %s", e.Op, int(e.Code), e.Code)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Code, true
	}
	return CodeNone, false
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
