package vm

import (
	"fmt"
	"runtime/debug"
)

// Resource limits (spec §3). The data stack and call stack are each
// bounded so a runaway program faults deterministically instead of
// exhausting host memory. DefaultMemorySize is the data segment's size
// when the compiled image's own data is smaller than it — the image never
// shrinks memory below this floor, matching the architecture's fixed
// 64KB address space.
const (
	MaxDataStackDepth = 1 << 16
	MaxCallStackDepth = 1 << 12
	maxLogLines       = 1000
	logTruncateTo     = 500
	DefaultMemorySize = 65536
)

// IRQInputReady is the hardware interrupt vector raised when the I/O
// controller delivers scheduled input bytes. Every delivered byte queues
// one request, whether or not interrupts are enabled yet; queued requests
// are dispatched once interrupts are enabled, and a request whose vector
// has no handler installed (via set_interrupt_handler) at dispatch time is
// silently dropped, matching every other vector-table miss in this design.
const IRQInputReady uint32 = 0

// Software-interrupt control vectors, passed as INT's operand (spec §4.F).
// The first three are exported so the code generator can emit them
// without duplicating the numeric convention.
const (
	IntInstallHandler uint32 = 0x80
	IntEnableIRQ      uint32 = 0x81
	IntDisableIRQ     uint32 = 0x82
	intSysPrint       uint32 = 0x00
	intSysZero        uint32 = 0x01
)

// State is the processor's run state.
type State int

const (
	Running State = iota
	Halted
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "halted"
}

// Processor is the cycle-accurate stack-and-vector CPU core (spec §4.F):
// fetch/execute pipeline, data and call stacks, interrupt controller, and
// execution log, wired to its Memory, IOController, and VectorUnit.
type Processor struct {
	Program []Instruction
	Memory  *Memory
	IO      *IOController
	Vector  *VectorUnit

	PC    uint32
	stack []uint32 // data stack, stack[len-1] is top
	calls []uint32 // call/return address stack

	State State
	Err   error

	CycleCount       uint64
	InstructionCount uint64

	remaining   int
	execAddr    uint32
	execPending bool

	interruptsEnabled bool
	inInterrupt       bool
	handlers          map[uint32]uint32
	pending           []uint32 // FIFO of pending interrupt vectors

	Log []string
}

// NewProcessor wires a processor around the given program, data segment,
// and input schedule.
func NewProcessor(program []Instruction, data []byte, schedule []ScheduledInput) *Processor {
	size := DefaultMemorySize
	if len(data) > size {
		size = len(data)
	}
	mem := NewMemory(size)
	mem.Load(data)
	return &Processor{
		Program:  program,
		Memory:   mem,
		IO:       NewIOController(schedule),
		Vector:   NewVectorUnit(),
		State:    Running,
		handlers: make(map[uint32]uint32),
	}
}

func (p *Processor) fault(err error) {
	p.State = Halted
	p.Err = err
}

func (p *Processor) push(v uint32) error {
	if len(p.stack) >= MaxDataStackDepth {
		return errStackOverflow(p.PC)
	}
	p.stack = append(p.stack, v)
	return nil
}

func (p *Processor) pop() (uint32, error) {
	if len(p.stack) == 0 {
		return 0, errStackUnderflow(p.PC)
	}
	v := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return v, nil
}

func (p *Processor) peek() (uint32, bool) {
	if len(p.stack) == 0 {
		return 0, false
	}
	return p.stack[len(p.stack)-1], true
}

// Stack returns a copy of the data stack, bottom first, for debuggers and
// tests that want to inspect final state without reaching into unexported
// fields.
func (p *Processor) Stack() []uint32 {
	out := make([]uint32, len(p.stack))
	copy(out, p.stack)
	return out
}

// CallStack returns a copy of the call stack, bottom first.
func (p *Processor) CallStack() []uint32 {
	out := make([]uint32, len(p.calls))
	copy(out, p.calls)
	return out
}

// StackTop returns the top of the data stack and whether it exists.
func (p *Processor) StackTop() (uint32, bool) { return p.peek() }

func (p *Processor) pushCall(addr uint32) error {
	if len(p.calls) >= MaxCallStackDepth {
		return errCallStackOverflow(p.PC)
	}
	p.calls = append(p.calls, addr)
	return nil
}

func (p *Processor) popCall() (uint32, error) {
	if len(p.calls) == 0 {
		return 0, errCallStackUnderflow(p.PC)
	}
	v := p.calls[len(p.calls)-1]
	p.calls = p.calls[:len(p.calls)-1]
	return v, nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Step advances the processor by one clock tick (spec §4.F): it drains due
// I/O events, dispatches at most one pending interrupt at an instruction
// boundary, fetches the next instruction if none is in flight, and commits
// an in-flight instruction's semantics the tick its remaining cycle count
// reaches zero. It is a no-op once State != Running.
func (p *Processor) Step() {
	if p.State != Running {
		return
	}

	for delivered := p.IO.Update(int(p.CycleCount)); delivered > 0; delivered-- {
		p.pending = append(p.pending, IRQInputReady)
	}

	if !p.execPending {
		if p.interruptsEnabled && !p.inInterrupt && len(p.pending) > 0 {
			vector := p.pending[0]
			p.pending = p.pending[1:]
			if handler, ok := p.handlers[vector]; ok {
				if err := p.pushCall(p.PC); err != nil {
					p.fault(err)
					return
				}
				p.inInterrupt = true
				p.logf("ENTER_IRQ vec=%d -> PC=%04X", vector, handler)
				p.PC = handler
			}
		}

		if p.PC >= uint32(len(p.Program)) {
			p.fault(newError("MemoryOutOfBounds", p.PC, "program counter past end of program"))
			return
		}
		p.execAddr = p.PC
		p.remaining = p.Program[p.PC].Opcode.Cycles()
		p.execPending = true
	}

	p.remaining--
	p.CycleCount++

	if p.remaining > 0 {
		return
	}

	instr := p.Program[p.execAddr]
	p.PC = p.execAddr + 1
	p.execPending = false

	if err := p.execute(instr); err != nil {
		p.fault(err)
	}
	p.InstructionCount++
	p.log(instr)
}

// Run steps the processor until it halts or maxCycles ticks have elapsed,
// whichever comes first. Garbage collection is disabled for the duration
// of the hot loop and restored on return, following the teacher's own
// run-loop technique of trading a larger live heap for fewer GC pauses
// during a tight, allocation-light dispatch loop.
func (p *Processor) Run(maxCycles uint64) {
	old := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(old)

	for p.State == Running && (maxCycles == 0 || p.CycleCount < maxCycles) {
		p.Step()
	}
}

func (p *Processor) logf(format string, args ...any) {
	p.Log = append(p.Log, fmt.Sprintf(format, args...))
	p.truncateLog()
}

func (p *Processor) log(instr Instruction) {
	top := ""
	if v, ok := p.peek(); ok {
		top = fmt.Sprintf(" TOS=%d", int32(v))
	}
	p.Log = append(p.Log, fmt.Sprintf(
		"Cycle %06d: PC=%04X %s Stack[%d]%s",
		p.CycleCount, p.execAddr, instr, len(p.stack), top,
	))
	p.truncateLog()
}

func (p *Processor) truncateLog() {
	if len(p.Log) > maxLogLines {
		p.Log = append([]string(nil), p.Log[len(p.Log)-logTruncateTo:]...)
	}
}

// execute commits one instruction's semantics. p.PC has already been
// tentatively advanced to the following address; branch/call/return
// opcodes override it directly.
func (p *Processor) execute(instr Instruction) error {
	op, arg := instr.Opcode, instr.Operand
	switch op {
	case NOP:
		return nil

	case PUSH:
		return p.push(signExtend24(arg))

	case POP, DROP:
		_, err := p.pop()
		return err

	case DUP:
		v, ok := p.peek()
		if !ok {
			return errStackUnderflow(p.PC)
		}
		return p.push(v)

	case SWAP:
		b, err := p.pop()
		if err != nil {
			return err
		}
		a, err := p.pop()
		if err != nil {
			return err
		}
		if err := p.push(b); err != nil {
			return err
		}
		return p.push(a)

	case ADD:
		return p.binary(func(a, b uint32) uint32 { return a + b })
	case SUB:
		return p.binary(func(a, b uint32) uint32 { return a - b })
	case MUL:
		return p.binary(func(a, b uint32) uint32 { return a * b })
	case DIV:
		return p.binaryErr(func(a, b uint32) (uint32, error) {
			if b == 0 {
				return 0, errDivideByZero(p.PC)
			}
			return a / b, nil
		})
	case MOD:
		return p.binaryErr(func(a, b uint32) (uint32, error) {
			if b == 0 {
				return 0, errDivideByZero(p.PC)
			}
			return a % b, nil
		})
	case NEG:
		return p.unary(func(a uint32) uint32 { return -a })

	case AND:
		return p.binary(func(a, b uint32) uint32 { return a & b })
	case OR:
		return p.binary(func(a, b uint32) uint32 { return a | b })
	case XOR:
		return p.binary(func(a, b uint32) uint32 { return a ^ b })
	case NOT:
		return p.unary(func(a uint32) uint32 { return ^a })

	case EQ:
		return p.binary(func(a, b uint32) uint32 { return boolWord(a == b) })
	case NE:
		return p.binary(func(a, b uint32) uint32 { return boolWord(a != b) })
	case LT:
		return p.binary(func(a, b uint32) uint32 { return boolWord(a < b) })
	case LE:
		return p.binary(func(a, b uint32) uint32 { return boolWord(a <= b) })
	case GT:
		return p.binary(func(a, b uint32) uint32 { return boolWord(a > b) })
	case GE:
		return p.binary(func(a, b uint32) uint32 { return boolWord(a >= b) })

	case JMP:
		p.PC = arg
		return nil
	case JZ:
		v, err := p.pop()
		if err != nil {
			return err
		}
		if v == 0 {
			p.PC = arg
		}
		return nil
	case JNZ:
		v, err := p.pop()
		if err != nil {
			return err
		}
		if v != 0 {
			p.PC = arg
		}
		return nil
	case CALL:
		if err := p.pushCall(p.PC); err != nil {
			return err
		}
		p.PC = arg
		return nil
	case RET:
		if len(p.calls) == 0 {
			// An empty call stack on RET is how main's implicit return
			// terminates the program (spec §4.F) — not a fault.
			p.State = Halted
			return nil
		}
		addr, err := p.popCall()
		if err != nil {
			return err
		}
		p.PC = addr
		return nil

	case LOAD:
		addr, err := p.pop()
		if err != nil {
			return err
		}
		v, err := p.Memory.ReadWord(addr)
		if err != nil {
			return err
		}
		return p.push(v)
	case STORE:
		addr, err := p.pop()
		if err != nil {
			return err
		}
		value, err := p.pop()
		if err != nil {
			return err
		}
		return p.Memory.WriteWord(addr, value)
	case LOADB:
		addr, err := p.pop()
		if err != nil {
			return err
		}
		v, err := p.Memory.ReadByte(addr)
		if err != nil {
			return err
		}
		return p.push(uint32(v))
	case STOREB:
		addr, err := p.pop()
		if err != nil {
			return err
		}
		value, err := p.pop()
		if err != nil {
			return err
		}
		return p.Memory.WriteByte(addr, byte(value))
	case LOAD_I:
		addr, err := p.pop()
		if err != nil {
			return err
		}
		if addr >= uint32(len(p.Program)) {
			return errMemoryOutOfBounds(p.PC, addr)
		}
		return p.push(p.Program[addr].Encode())

	case IN:
		return p.push(p.IO.ReadPort(arg))
	case OUT:
		value, err := p.pop()
		if err != nil {
			return err
		}
		p.IO.WritePort(arg, value, p.Memory)
		return nil

	case HALT:
		p.State = Halted
		return nil

	case INT:
		return p.softwareInterrupt(arg)
	case IRET:
		addr, err := p.popCall()
		if err != nil {
			return errIllegalInterrupt(p.PC, arg)
		}
		p.PC = addr
		p.inInterrupt = false
		return nil

	case V_LOAD:
		reg, length, addr, err := p.pop3()
		if err != nil {
			return err
		}
		return p.Vector.Load(int(reg), p.Memory, addr, int(int32(length)))
	case V_STORE:
		reg, addr, err := p.pop2()
		if err != nil {
			return err
		}
		return p.Vector.Store(int(reg), p.Memory, addr)
	case V_ADD:
		return p.vecBinary(p.Vector.Add)
	case V_SUB:
		return p.vecBinary(p.Vector.Sub)
	case V_MUL:
		return p.vecBinary(p.Vector.Mul)
	case V_DIV:
		return p.vecBinary(p.Vector.Div)
	case V_CMP:
		return p.vecBinary(p.Vector.Cmp)
	case V_DOT:
		b, a, err := p.pop2()
		if err != nil {
			return err
		}
		return p.push(p.Vector.Dot(int(a), int(b)))
	case V_NORM:
		return p.vecScalar(p.Vector.Norm)
	case V_SUM:
		return p.vecScalar(p.Vector.Sum)
	case V_AVG:
		return p.vecScalar(p.Vector.Avg)
	case V_MAX:
		return p.vecScalar(p.Vector.Max)
	case V_MIN:
		return p.vecScalar(p.Vector.Min)
	case V_SCALE:
		dst, src, scalar, err := p.pop3()
		if err != nil {
			return err
		}
		p.Vector.Scale(int(dst), int(src), scalar)
		return nil
	case V_COPY:
		dst, src, err := p.pop2()
		if err != nil {
			return err
		}
		p.Vector.Copy(int(dst), int(src))
		return nil
	case V_SET:
		value, reg, err := p.pop2()
		if err != nil {
			return err
		}
		p.Vector.Set(int(reg), int(arg), value)
		return nil

	default:
		return errUnknownOpcode(p.PC, op)
	}
}

func signExtend24(v uint32) uint32 {
	return uint32(int32(v<<8) >> 8)
}

func (p *Processor) binary(f func(a, b uint32) uint32) error {
	b, err := p.pop()
	if err != nil {
		return err
	}
	a, err := p.pop()
	if err != nil {
		return err
	}
	return p.push(f(a, b))
}

func (p *Processor) binaryErr(f func(a, b uint32) (uint32, error)) error {
	b, err := p.pop()
	if err != nil {
		return err
	}
	a, err := p.pop()
	if err != nil {
		return err
	}
	v, err := f(a, b)
	if err != nil {
		return err
	}
	return p.push(v)
}

func (p *Processor) unary(f func(a uint32) uint32) error {
	a, err := p.pop()
	if err != nil {
		return err
	}
	return p.push(f(a))
}

// pop2 pops two stack words for opcodes whose operands are register
// indices or addresses rather than arithmetic values; it returns them in
// (first-popped, second-popped) order, i.e. (top, next).
func (p *Processor) pop2() (uint32, uint32, error) {
	top, err := p.pop()
	if err != nil {
		return 0, 0, err
	}
	next, err := p.pop()
	if err != nil {
		return 0, 0, err
	}
	return top, next, nil
}

func (p *Processor) pop3() (uint32, uint32, uint32, error) {
	top, err := p.pop()
	if err != nil {
		return 0, 0, 0, err
	}
	mid, next, err := p.pop2()
	if err != nil {
		return 0, 0, 0, err
	}
	return top, mid, next, nil
}

// vecBinary implements the V_ADD/SUB/MUL/DIV/CMP family: the data stack
// holds (reg1, reg2, dst) pushed in that order by the code generator, so
// the opcode pops dst first, then reg2, then reg1.
func (p *Processor) vecBinary(f func(dst, a, b int)) error {
	dst, reg2, reg1, err := p.pop3()
	if err != nil {
		return err
	}
	f(int(dst), int(reg1), int(reg2))
	return nil
}

func (p *Processor) vecScalar(f func(reg int) uint32) error {
	reg, err := p.pop()
	if err != nil {
		return err
	}
	return p.push(f(int(reg)))
}

func (p *Processor) softwareInterrupt(vector uint32) error {
	switch vector {
	case IntInstallHandler:
		handler, irq, err := p.pop2()
		if err != nil {
			return err
		}
		p.handlers[irq] = handler
		return nil
	case IntEnableIRQ:
		p.interruptsEnabled = true
		return nil
	case IntDisableIRQ:
		p.interruptsEnabled = false
		return nil
	case intSysPrint:
		value, err := p.pop()
		if err != nil {
			return err
		}
		p.IO.WritePort(PortOutCStr, value, p.Memory)
		return nil
	case intSysZero:
		return p.push(0)
	default:
		return newError("UnknownSystemCall", p.PC, "INT with unrecognized vector %d", vector)
	}
}
