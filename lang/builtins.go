package lang

import "vsm/vm"

// builtinFunc expands one builtin call inline at its call site, rather
// than emitting a CALL — the code generator's builtin table is checked
// before the user-function table (spec §4.C).
type builtinFunc func(g *CodeGenerator, args []Expr) error

// builtins is filled from builtinTable in init: initializing it directly
// would be an initialization cycle, since the expanders reach emitCall,
// which reads this map.
var builtins map[string]builtinFunc

func init() { builtins = builtinTable }

var builtinTable = map[string]builtinFunc{
	"print":                 builtinPrint,
	"print_number":          builtinPrintNumber,
	"putc":                  builtinPutc,
	"read":                  builtinRead,
	"readInt":               builtinRead,
	"readLine":              builtinReadLine,
	"readLineBuf":           builtinReadLineBuf,
	"alloc":                 builtinAlloc,
	"len":                   builtinLen,
	"chr":                   builtinChr,
	"v_load":                builtinVLoad,
	"v_add":                 builtinVAdd,
	"v_dot":                 builtinVDot,
	"v_store":               builtinVStore,
	"v_sum":                 builtinVSum,
	"set_interrupt_handler": builtinSetInterruptHandler,
	"enable_interrupts":     builtinEnableInterrupts,
	"disable_interrupts":    builtinDisableInterrupts,
}

func requireArgs(name string, args []Expr, n int) error {
	if len(args) != n {
		return genErr("%s expects exactly %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func (g *CodeGenerator) emitArgs(args ...Expr) error {
	for _, a := range args {
		if err := g.emitExpr(a); err != nil {
			return err
		}
	}
	return nil
}

// builtinPrint treats its argument as a data-memory address holding a
// NUL-terminated string (spec §4.C) and prints it via port 1.
func builtinPrint(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("print", args, 1); err != nil {
		return err
	}
	if err := g.emitArgs(args[0]); err != nil {
		return err
	}
	g.img.Emit(vm.OUT, vm.PortOutCStr)
	return nil
}

// builtinPrintNumber formats the argument as decimal ASCII via port 0.
func builtinPrintNumber(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("print_number", args, 1); err != nil {
		return err
	}
	if err := g.emitArgs(args[0]); err != nil {
		return err
	}
	g.img.Emit(vm.OUT, vm.PortOutDigit)
	return nil
}

// builtinPutc writes a single raw byte via port 2.
func builtinPutc(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("putc", args, 1); err != nil {
		return err
	}
	if err := g.emitArgs(args[0]); err != nil {
		return err
	}
	g.img.Emit(vm.OUT, vm.PortOutByte)
	return nil
}

// builtinRead implements both read() and readInt(): a non-blocking byte
// read from port 0 (spec §4.C — the input is assumed already numeric for
// readInt, since the ISA has no type distinction on the stack).
func builtinRead(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("read/readInt", args, 0); err != nil {
		return err
	}
	g.img.Emit(vm.IN, vm.PortIn)
	return nil
}

// builtinAlloc reserves a compile-time-constant number of bytes in the
// data segment and pushes the base address. The size must be an integer
// literal — alloc(n) with a runtime-computed n is a code-gen error (spec
// §4.C, §7).
func builtinAlloc(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("alloc", args, 1); err != nil {
		return err
	}
	lit, ok := args[0].(*NumberLiteral)
	if !ok || !lit.IsInt {
		return genErr("alloc requires a compile-time-constant integer literal size")
	}
	size := int(lit.Value)
	if size < 0 {
		return genErr("alloc size must not be negative")
	}
	addr := g.img.AddBytes(make([]byte, size))
	g.img.Emit(vm.PUSH, addr)
	return nil
}

// builtinLen reads a vector/array's length prefix word (spec §4.C).
func builtinLen(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("len", args, 1); err != nil {
		return err
	}
	if err := g.emitArgs(args[0]); err != nil {
		return err
	}
	g.img.Emit(vm.LOAD, 0)
	return nil
}

// builtinChr is a type-level no-op: characters are just words on this
// architecture, so chr(n) evaluates n and leaves it untouched (spec §9,
// kept for source compatibility with programs written against the
// original's richer value model).
func builtinChr(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("chr", args, 1); err != nil {
		return err
	}
	return g.emitArgs(args[0])
}

// builtinReadLine reads bytes from port 0 until NUL or newline, echoing
// each one through the string-print port as it goes, then leaves 0 on the
// stack — the unbuffered sibling of readLineBuf (spec §9).
func builtinReadLine(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("readLine", args, 0); err != nil {
		return err
	}
	loopStart := g.img.Here()
	g.img.Emit(vm.IN, vm.PortIn)
	g.img.Emit(vm.DUP, 0)
	g.img.Emit(vm.PUSH, 0)
	g.img.Emit(vm.EQ, 0)
	jZero := g.img.Emit(vm.JNZ, 0)
	g.img.Emit(vm.DUP, 0)
	g.img.Emit(vm.PUSH, 10)
	g.img.Emit(vm.EQ, 0)
	jNewline := g.img.Emit(vm.JNZ, 0)
	// Echoes via port 1 (not the raw-byte port), matching the original
	// compiler's readLine exactly (codegen.py's OUTPUT_PORT = 1): a small
	// character code is usually out of the data segment's range, which
	// the OUT-port-1 fallback then prints as a decimal number instead of
	// the character itself. Kept byte-for-byte faithful rather than
	// "corrected", since original_source is authoritative here.
	g.img.Emit(vm.OUT, vm.PortOutCStr)
	g.img.Emit(vm.JMP, loopStart)
	end := g.img.Here()
	g.img.Patch(jZero, end)
	g.img.Patch(jNewline, end)
	g.img.Emit(vm.POP, 0)
	g.img.Emit(vm.PUSH, 0)
	return nil
}

// builtinReadLineBuf expands readLineBuf(buf, maxLen) into an inline loop
// that reads bytes from port 0 into a buffer, stopping at NUL, newline, or
// maxLen-1 bytes, and always NUL-terminates the result (spec §4.C).
func builtinReadLineBuf(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("readLineBuf", args, 2); err != nil {
		return err
	}
	pAddr := g.img.AddWord(0)

	if err := g.emitArgs(args[0]); err != nil { // buf
		return err
	}
	g.img.Emit(vm.PUSH, pAddr)
	g.img.Emit(vm.STORE, 0) // p = buf

	loopStart := g.img.Here()
	g.img.Emit(vm.PUSH, pAddr)
	g.img.Emit(vm.LOAD, 0) // p
	if err := g.emitArgs(args[0]); err != nil {
		return err
	}
	g.img.Emit(vm.SUB, 0) // p - buf
	if err := g.emitArgs(args[1]); err != nil {
		return err
	}
	g.img.Emit(vm.PUSH, 1)
	g.img.Emit(vm.SUB, 0)               // maxLen - 1
	g.img.Emit(vm.GE, 0)                // (p-buf) >= (maxLen-1)
	jEndFull := g.img.Emit(vm.JNZ, 0)

	g.img.Emit(vm.IN, vm.PortIn)
	g.img.Emit(vm.DUP, 0)
	g.img.Emit(vm.PUSH, 0)
	g.img.Emit(vm.EQ, 0)
	jEndZero := g.img.Emit(vm.JNZ, 0)
	g.img.Emit(vm.DUP, 0)
	g.img.Emit(vm.PUSH, 10)
	g.img.Emit(vm.EQ, 0)
	jEndNewline := g.img.Emit(vm.JNZ, 0)

	g.img.Emit(vm.PUSH, pAddr)
	g.img.Emit(vm.LOAD, 0) // ch, p (p on top)
	g.img.Emit(vm.STOREB, 0)

	g.img.Emit(vm.PUSH, pAddr)
	g.img.Emit(vm.LOAD, 0)
	g.img.Emit(vm.PUSH, 1)
	g.img.Emit(vm.ADD, 0)
	g.img.Emit(vm.PUSH, pAddr)
	g.img.Emit(vm.STORE, 0) // p += 1
	g.img.Emit(vm.JMP, loopStart)

	// jEndZero/jEndNewline still have the terminating byte sitting on the
	// stack (only the comparison result was consumed by JNZ) — drain it
	// before falling into the shared exit path.
	drain := g.img.Here()
	g.img.Emit(vm.POP, 0)
	end := g.img.Here()
	g.img.Patch(jEndFull, end)
	g.img.Patch(jEndZero, drain)
	g.img.Patch(jEndNewline, drain)

	g.img.Emit(vm.PUSH, pAddr)
	g.img.Emit(vm.LOAD, 0)
	g.img.Emit(vm.PUSH, 0)
	g.img.Emit(vm.SWAP, 0) // 0, p
	g.img.Emit(vm.STOREB, 0)
	return nil
}

// builtinVLoad: v_load(addr, length, reg) — args pushed in call order,
// matching V_LOAD's stack convention.
func builtinVLoad(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("v_load", args, 3); err != nil {
		return err
	}
	if err := g.emitArgs(args[0], args[1], args[2]); err != nil {
		return err
	}
	g.img.Emit(vm.V_LOAD, 0)
	return nil
}

// builtinVAdd: v_add(reg1, reg2, resultReg).
func builtinVAdd(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("v_add", args, 3); err != nil {
		return err
	}
	if err := g.emitArgs(args[0], args[1], args[2]); err != nil {
		return err
	}
	g.img.Emit(vm.V_ADD, 0)
	return nil
}

// builtinVDot: v_dot(reg1, reg2), leaves the dot product on the stack.
func builtinVDot(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("v_dot", args, 2); err != nil {
		return err
	}
	if err := g.emitArgs(args[0], args[1]); err != nil {
		return err
	}
	g.img.Emit(vm.V_DOT, 0)
	return nil
}

// builtinVStore: v_store(reg, addr) — V_STORE expects (addr, reg) on the
// stack with reg on top, so the arguments are pushed out of call order.
func builtinVStore(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("v_store", args, 2); err != nil {
		return err
	}
	if err := g.emitArgs(args[1], args[0]); err != nil {
		return err
	}
	g.img.Emit(vm.V_STORE, 0)
	return nil
}

// builtinVSum: v_sum(reg), leaves the sum on the stack.
func builtinVSum(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("v_sum", args, 1); err != nil {
		return err
	}
	if err := g.emitArgs(args[0]); err != nil {
		return err
	}
	g.img.Emit(vm.V_SUM, 0)
	return nil
}

// builtinSetInterruptHandler: set_interrupt_handler(vector, address) —
// installs a handler via the INT 0x80 system call (spec §4.C, §4.F).
func builtinSetInterruptHandler(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("set_interrupt_handler", args, 2); err != nil {
		return err
	}
	if err := g.emitArgs(args[0], args[1]); err != nil {
		return err
	}
	g.img.Emit(vm.INT, vm.IntInstallHandler)
	return nil
}

func builtinEnableInterrupts(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("enable_interrupts", args, 0); err != nil {
		return err
	}
	g.img.Emit(vm.INT, vm.IntEnableIRQ)
	return nil
}

func builtinDisableInterrupts(g *CodeGenerator, args []Expr) error {
	if err := requireArgs("disable_interrupts", args, 0); err != nil {
		return err
	}
	g.img.Emit(vm.INT, vm.IntDisableIRQ)
	return nil
}
