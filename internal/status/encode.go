// internal/status/encode.go
package status

import "time"

// Encode converts a Snapshot into a full status block.
// Layout is fixed. No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerRun)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotFaultKind] = s.FaultKind
	putU32(regs, SlotReads, s.Reads)
	putU32(regs, SlotSkipped, s.Skipped)
	putU32(regs, SlotElapsedMS, elapsedMS(s.Elapsed))

	var flags uint16
	if s.Partial {
		flags |= FlagPartial
	}
	if s.Skipped > 0 {
		flags |= FlagSkipped
	}
	regs[SlotFlags] = flags

	copy(regs[SlotDeviceNameStart:], encodeDeviceName(s.DeviceName))
	return regs
}

func putU32(regs []uint16, slot int, v uint32) {
	regs[slot] = uint16(v >> 16)
	regs[slot+1] = uint16(v)
}

// elapsedMS saturates instead of wrapping.
func elapsedMS(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	if ms > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(ms)
}

// encodeDeviceName packs up to 16 ASCII characters into 8 slots.
// Each slot stores two ASCII bytes in big-endian order.
func encodeDeviceName(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
