// internal/stream/state.go
package stream

// State is the stream driver lifecycle position.
type State uint8

const (
	StateIdle State = iota
	StateConfiguring
	StateArmingTrigger
	StateStarted
	StateReading
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateArmingTrigger:
		return "arming_trigger"
	case StateStarted:
		return "started"
	case StateReading:
		return "reading"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
