// internal/status/constants.go
package status

// Run status block layout.
// Consumers decode telemetry by slot, so the layout is fixed.

// SlotsPerRun is the fixed number of 16-bit slots in one status block.
const SlotsPerRun = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the run health.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last transport error code, 0 if none.
const SlotLastErrorCode = 1

// SlotFaultKind holds the fault kind, 0 if none.
const SlotFaultKind = 2

// 32-bit counters occupy two slots, high word first.
const (
	SlotReads     = 3
	SlotSkipped   = 5
	SlotElapsedMS = 7
)

// SlotFlags holds FlagPartial and friends.
const SlotFlags = 9

// Slot 10 is reserved.
const SlotReserved = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// The name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// DeviceNameMaxChars is the maximum number of ASCII characters stored for the name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents a run that never produced an outcome.
const HealthUnknown uint16 = 0

// HealthOK represents a completed acquisition.
const HealthOK uint16 = 1

// HealthError represents an acquisition fault.
const HealthError uint16 = 2

// HealthStopFailed represents a complete read whose stream could not be stopped.
const HealthStopFailed uint16 = 3

// ---- FLAGS ----

// FlagPartial marks records cut short by a read fault.
const FlagPartial uint16 = 1 << 0

// FlagSkipped marks a run with at least one skipped sample.
const FlagSkipped uint16 = 1 << 1
