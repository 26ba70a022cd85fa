// internal/fault/fault.go
package fault

import (
	"errors"
	"fmt"

	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Kind classifies a fault by the operation that raised it.
type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindConnection
	KindDisconnection
	KindNoConnection
	KindLibraryConfig
	KindRegisterConfig
	KindStreamRead
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConnection:
		return "connection"
	case KindDisconnection:
		return "disconnection"
	case KindNoConnection:
		return "no connection"
	case KindLibraryConfig:
		return "library config"
	case KindRegisterConfig:
		return "register config"
	case KindStreamRead:
		return "stream read"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation     = &Fault{Kind: KindValidation}
	ErrConnection     = &Fault{Kind: KindConnection}
	ErrDisconnection  = &Fault{Kind: KindDisconnection}
	ErrNoConnection   = &Fault{Kind: KindNoConnection}
	ErrLibraryConfig  = &Fault{Kind: KindLibraryConfig}
	ErrRegisterConfig = &Fault{Kind: KindRegisterConfig}
	ErrStreamRead     = &Fault{Kind: KindStreamRead}
)

// Stage names the acquisition step a StreamRead fault came from.
type Stage string

const (
	StageNone      Stage = ""
	StageConfigure Stage = "configure"
	StageTrigger   Stage = "trigger"
	StageStart     Stage = "start"
	StageRead      Stage = "read"
	StageStop      Stage = "stop"
)

// Fault is the typed error surfaced by the acquisition core.
// Err, when set, is the underlying cause (usually a *transport.Error).
type Fault struct {
	Kind  Kind
	Stage Stage
	Msg   string

	// NonTransport is set when the cause was not a recognized transport error.
	NonTransport bool

	Err error
}

// New builds a fault of the given kind wrapping cause.
func New(kind Kind, msg string, cause error) *Fault {
	f := &Fault{Kind: kind, Msg: msg, Err: cause}
	if cause != nil {
		var te *transport.Error
		f.NonTransport = !errors.As(cause, &te)
	}
	return f
}

// Validation builds a ValidationFault; no I/O has been attempted.
func Validation(format string, args ...any) *Fault {
	return &Fault{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// WithStage returns f tagged with stage.
func (f *Fault) WithStage(s Stage) *Fault {
	f.Stage = s
	return f
}

func (f *Fault) Error() string {
	prefix := f.Kind.String()
	if f.Stage != StageNone {
		prefix += " (" + string(f.Stage) + ")"
	}
	msg := prefix + " fault"
	if f.Msg != "" {
		msg += ": " + f.Msg
	}
	if f.Err != nil {
		if f.NonTransport {
			msg += ": non-transport error"
		}
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Fault) Unwrap() error { return f.Err }

// Is matches sentinel faults by kind, and by stage when the target sets one.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok {
		return false
	}
	if t.Kind != f.Kind {
		return false
	}
	return t.Stage == StageNone || t.Stage == f.Stage
}

// KindOf reports the kind of the outermost fault in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// IsStopFailure reports whether err is a stream-stop failure raised after the
// read loop itself completed or aborted.
func IsStopFailure(err error) bool {
	return errors.Is(err, &Fault{Kind: KindStreamRead, Stage: StageStop})
}

// CauseCode extracts the transport error code carried by err, if any.
func CauseCode(err error) (transport.Code, bool) {
	return transport.CodeOf(err)
}
