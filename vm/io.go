package vm

import "strconv"

// ScheduledInput is one entry of an input schedule: at cycle Cycle, byte
// Data becomes available to read from port 0. Ties at the same cycle are
// delivered in the order they appear in the schedule (spec §5 ordering
// guarantee).
type ScheduledInput struct {
	Cycle int
	Data  byte
}

// Reserved port numbers with fixed semantics (spec §6); everything >= 3 is
// a generic word-addressable register.
const (
	PortIn       = 0 // IN: non-blocking byte input, 0 when nothing is pending
	PortOutDigit = 0 // OUT: decimal ASCII expansion of the value
	PortOutCStr  = 1 // OUT: NUL-terminated string read from the data segment
	PortOutByte  = 2 // OUT: single raw byte
	firstGeneric = 3
)

// IOController owns the scheduled-input queue, the non-blocking port-0
// input buffer it feeds, the accumulated output byte stream, and the
// generic port-register file for ports >= 3. It is driven once per
// processor tick by Update and is otherwise purely synchronous — spec §5
// rules out any background goroutine touching this state.
type IOController struct {
	scheduled    []ScheduledInput
	nextSched    int
	inputBuffer  []byte
	Output       []byte
	registers    map[uint32]uint32
	inputReadyAt int // cycle of the most recent delivery, for diagnostics
}

// NewIOController returns a controller with the given schedule, sorted by
// cycle with ties resolved by original document order (stable sort).
func NewIOController(schedule []ScheduledInput) *IOController {
	sorted := make([]ScheduledInput, len(schedule))
	copy(sorted, schedule)
	stableSortByCycle(sorted)
	return &IOController{scheduled: sorted, registers: make(map[uint32]uint32)}
}

func stableSortByCycle(s []ScheduledInput) {
	// Insertion sort: schedules are small (test/golden fixtures), and
	// insertion sort is stable without extra bookkeeping.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Cycle < s[j-1].Cycle; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Update delivers every scheduled event due at or before cycle into the
// input buffer and reports how many bytes newly arrived, so the processor
// can queue one INPUT_READY hardware interrupt request per delivered byte.
func (io *IOController) Update(cycle int) int {
	delivered := 0
	for io.nextSched < len(io.scheduled) && io.scheduled[io.nextSched].Cycle <= cycle {
		io.inputBuffer = append(io.inputBuffer, io.scheduled[io.nextSched].Data)
		io.nextSched++
		delivered++
	}
	if delivered > 0 {
		io.inputReadyAt = cycle
	}
	return delivered
}

// ReadPort implements IN. Port 0 is non-blocking: it returns the next
// pending input byte, or 0 if none is ready. Ports >= 3 read back whatever
// was last written to that generic register (0 if never written).
func (io *IOController) ReadPort(port uint32) uint32 {
	switch port {
	case PortIn:
		if len(io.inputBuffer) == 0 {
			return 0
		}
		b := io.inputBuffer[0]
		io.inputBuffer = io.inputBuffer[1:]
		return uint32(b)
	default:
		return io.registers[port]
	}
}

// WritePort implements OUT. Port 0 expands value as decimal ASCII digits;
// port 1 treats value as an address and copies the NUL-terminated string
// found there (falling back to the decimal expansion of value itself if
// the address is out of bounds, matching the original's fallback
// behavior); port 2 appends the single low byte of value; any other port
// is a generic register write with no effect on Output.
func (io *IOController) WritePort(port uint32, value uint32, mem *Memory) {
	switch port {
	case PortOutDigit:
		io.Output = append(io.Output, []byte(strconv.FormatUint(uint64(value), 10))...)
	case PortOutCStr:
		if s, ok := mem.ReadCString(value); ok {
			io.Output = append(io.Output, []byte(s)...)
		} else {
			io.Output = append(io.Output, []byte(strconv.FormatUint(uint64(value), 10))...)
		}
	case PortOutByte:
		io.Output = append(io.Output, byte(value))
	default:
		io.registers[port] = value
	}
}

// PendingInputCount reports how many bytes are buffered and unread.
func (io *IOController) PendingInputCount() int { return len(io.inputBuffer) }
