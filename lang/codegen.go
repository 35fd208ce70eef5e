package lang

import (
	"fmt"
	"math"

	"vsm/vm"
)

// CodeGenError reports a fatal compile-time error detected while walking
// the AST: an unknown identifier, assignment to a const binding, wrong
// arity to a builtin, a non-literal size to alloc, or an unsupported
// operator (spec §4.C, §7).
type CodeGenError struct {
	Message string
}

func (e *CodeGenError) Error() string { return e.Message }

func genErr(format string, args ...any) error {
	return &CodeGenError{Message: fmt.Sprintf(format, args...)}
}

// CodeGenerator walks a Program and emits instructions and data into a
// vm.Image. Expression emission leaves one value on the data stack (spec
// §4.C), except calls to builtins that produce no value (print, putc,
// readLineBuf, ...) and calls to functions that end without a return
// statement, which leave none. Statement emission leaves the stack as it
// found it, except a bare call statement, which keeps whatever value the
// call left (see emitExprStmt).
type CodeGenerator struct {
	img     *vm.Image
	symbols *SymbolTable
}

// NewCodeGenerator returns a generator with a fresh image and a global
// scope.
func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{img: vm.NewImage(), symbols: NewSymbolTable()}
}

// GenerateImage walks prog and returns the completed machine-code image,
// terminated by a single HALT (spec §4.C).
func (g *CodeGenerator) GenerateImage(prog *Program) (*vm.Image, error) {
	for _, stmt := range prog.Statements {
		if err := g.emitStmt(stmt); err != nil {
			return nil, err
		}
	}
	g.img.Emit(vm.HALT, 0)
	return g.img, nil
}

// Generate is a convenience entry point used by Compile and the CLI.
func Generate(prog *Program) (*vm.Image, error) {
	return NewCodeGenerator().GenerateImage(prog)
}

// Compile runs the full front end — lex, parse, generate — over source
// text, returning the finished image or the first error from whichever
// stage detected it.
func Compile(source string) (*vm.Image, error) {
	tokens, err := NewLexer(source).Tokenize()
	if err != nil {
		return nil, err
	}
	prog, err := Parse(tokens)
	if err != nil {
		return nil, err
	}
	return Generate(prog)
}

// --- expressions -----------------------------------------------------

func (g *CodeGenerator) emitExpr(e Expr) error {
	switch n := e.(type) {
	case *NumberLiteral:
		return g.emitNumberLiteral(n)
	case *StringLiteral:
		addr := g.symbols.InternString(g.img, n.Value)
		g.img.Emit(vm.PUSH, addr)
		return nil
	case *BoolLiteral:
		g.img.Emit(vm.PUSH, boolOperand(n.Value))
		return nil
	case *NullLiteral:
		g.img.Emit(vm.PUSH, 0)
		return nil
	case *Identifier:
		return g.emitIdentifier(n)
	case *BinaryExpr:
		return g.emitBinary(n)
	case *UnaryExpr:
		return g.emitUnary(n)
	case *CallExpr:
		return g.emitCall(n)
	case *VectorLiteral:
		return g.emitVectorLiteral(n)
	case *IndexExpr:
		return g.emitIndex(n)
	default:
		return genErr("unsupported expression node %T", e)
	}
}

func boolOperand(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// emitNumberLiteral pushes an integer literal directly as PUSH's operand;
// a float literal is bit-preserved in the data segment and loaded, since
// PUSH's operand can't carry a non-integer value (spec §4.C Non-goals:
// floating-point correctness beyond bit-preserved storage).
func (g *CodeGenerator) emitNumberLiteral(n *NumberLiteral) error {
	if n.IsInt {
		g.img.Emit(vm.PUSH, uint32(int32(n.Value)))
		return nil
	}
	addr := g.img.AddWord(math.Float32bits(float32(n.Value)))
	g.img.Emit(vm.PUSH, addr)
	g.img.Emit(vm.LOAD, 0)
	return nil
}

// emitIdentifier reads a variable's current value, or — if the name is a
// declared function rather than a variable — pushes the function's entry
// address, so a function name can be passed as a value (e.g. to
// set_interrupt_handler) as well as called directly.
func (g *CodeGenerator) emitIdentifier(n *Identifier) error {
	if addr, ok := g.symbols.ResolveFunction(n.Name); ok {
		g.img.Emit(vm.PUSH, addr)
		return nil
	}
	b, ok := g.symbols.Resolve(n.Name)
	if !ok {
		return genErr("undefined variable: %s", n.Name)
	}
	g.img.Emit(vm.PUSH, b.Address)
	g.img.Emit(vm.LOAD, 0)
	return nil
}

var binaryOpcodes = map[string]vm.Opcode{
	"+": vm.ADD, "-": vm.SUB, "*": vm.MUL, "/": vm.DIV, "%": vm.MOD,
	"==": vm.EQ, "!=": vm.NE, "<": vm.LT, "<=": vm.LE, ">": vm.GT, ">=": vm.GE,
	"&&": vm.AND, "||": vm.OR, "and": vm.AND, "or": vm.OR,
}

// emitBinary evaluates the left operand, then the right, leaving
// (left, right) on the stack with right on top, then emits the matching
// opcode — SUB/DIV/MOD/comparisons treat the deeper element (left) as the
// first argument (spec §4.C).
func (g *CodeGenerator) emitBinary(n *BinaryExpr) error {
	if err := g.emitExpr(n.Left); err != nil {
		return err
	}
	if err := g.emitExpr(n.Right); err != nil {
		return err
	}
	op, ok := binaryOpcodes[n.Operator]
	if !ok {
		return genErr("unsupported binary operator: %s", n.Operator)
	}
	g.img.Emit(op, 0)
	return nil
}

func (g *CodeGenerator) emitUnary(n *UnaryExpr) error {
	if err := g.emitExpr(n.Operand); err != nil {
		return err
	}
	switch n.Operator {
	case "-":
		g.img.Emit(vm.NEG, 0)
	case "!", "not":
		g.img.Emit(vm.NOT, 0)
	default:
		return genErr("unsupported unary operator: %s", n.Operator)
	}
	return nil
}

func (g *CodeGenerator) emitCall(n *CallExpr) error {
	if fn, ok := builtins[n.Name]; ok {
		return fn(g, n.Arguments)
	}
	addr, ok := g.symbols.ResolveFunction(n.Name)
	if !ok {
		return genErr("undefined function: %s", n.Name)
	}
	for _, arg := range n.Arguments {
		if err := g.emitExpr(arg); err != nil {
			return err
		}
	}
	g.img.Emit(vm.CALL, addr)
	return nil
}

// emitVectorLiteral materializes a length-prefixed block of words in the
// data segment and pushes its base address (spec §4.C). Elements must be
// numeric literals, evaluated at compile time — a vector literal can't
// embed a runtime-computed element.
func (g *CodeGenerator) emitVectorLiteral(n *VectorLiteral) error {
	base := g.img.AddWord(uint32(len(n.Elements)))
	for _, el := range n.Elements {
		num, ok := el.(*NumberLiteral)
		if !ok {
			return genErr("vector literal elements must be numeric literals")
		}
		if num.IsInt {
			g.img.AddWord(uint32(int32(num.Value)))
		} else {
			g.img.AddWord(math.Float32bits(float32(num.Value)))
		}
	}
	g.img.Emit(vm.PUSH, base)
	return nil
}

// emitIndex implements a[i]: skip the vector's length prefix and index
// into the element array (spec §4.C).
func (g *CodeGenerator) emitIndex(n *IndexExpr) error {
	if err := g.emitExpr(n.Array); err != nil {
		return err
	}
	if err := g.emitExpr(n.Index); err != nil {
		return err
	}
	g.img.Emit(vm.PUSH, 4)
	g.img.Emit(vm.MUL, 0)
	g.img.Emit(vm.PUSH, 4)
	g.img.Emit(vm.ADD, 0)
	g.img.Emit(vm.ADD, 0)
	g.img.Emit(vm.LOAD, 0)
	return nil
}

// --- statements --------------------------------------------------------

// emitStmt records the source line a statement started on against the
// instruction it's about to emit, then dispatches on its concrete type
// (spec §4.G; the debug-symbol map itself lives on vm.Image, populated
// here rather than at image-build time since only the generator knows
// which AST node produced which instruction).
func (g *CodeGenerator) emitStmt(s Stmt) error {
	if line := stmtLine(s); line > 0 {
		addr := int(g.img.Here())
		if _, ok := g.img.DebugSym[addr]; !ok {
			g.img.DebugSym[addr] = fmt.Sprintf("line %d", line)
		}
	}
	switch n := s.(type) {
	case *ExprStmt:
		return g.emitExprStmt(n)
	case *VarDecl:
		return g.emitVarDecl(n)
	case *Assignment:
		return g.emitAssignment(n)
	case *Block:
		return g.emitBlock(n)
	case *IfStmt:
		return g.emitIf(n)
	case *WhileStmt:
		return g.emitWhile(n)
	case *ForStmt:
		return g.emitFor(n)
	case *FuncDecl:
		return g.emitFuncDecl(n)
	case *ReturnStmt:
		return g.emitReturn(n)
	default:
		return genErr("unsupported statement node %T", s)
	}
}

// emitExprStmt discards an ordinary expression's leftover value with POP,
// but a call — builtin or user-defined — is left alone: any value it
// produces (a return value, or the result of a value-producing builtin
// such as read or readLine) stays on the stack, as the original compiler
// never pops a call's result at a bare call-statement site either (spec
// §4.C, mirroring codegen.py's visit_expression_statement).
func (g *CodeGenerator) emitExprStmt(n *ExprStmt) error {
	if _, ok := n.Expression.(*CallExpr); ok {
		return g.emitExpr(n.Expression)
	}
	if err := g.emitExpr(n.Expression); err != nil {
		return err
	}
	g.img.Emit(vm.POP, 0)
	return nil
}

func (g *CodeGenerator) emitVarDecl(n *VarDecl) error {
	if n.Initializer != nil {
		if err := g.emitExpr(n.Initializer); err != nil {
			return err
		}
	} else {
		g.img.Emit(vm.PUSH, 0)
	}
	addr := g.img.AddWord(0)
	g.img.Emit(vm.PUSH, addr)
	g.img.Emit(vm.STORE, 0)
	g.symbols.Declare(n.Name, addr, n.IsConst)
	return nil
}

// emitAssignment stores a new value into an existing, non-const binding.
// For += and -=, the incoming value is pushed first and the current
// target value second — reproducing the original compiler's exact push
// order (codegen.py._generate_assignment). SUB subtracts the top word from
// the one beneath it, so -= emits a SWAP first and computes target - value.
func (g *CodeGenerator) emitAssignment(n *Assignment) error {
	b, ok := g.symbols.Resolve(n.Target.Name)
	if !ok {
		return genErr("undefined variable: %s", n.Target.Name)
	}
	if b.Const {
		return genErr("cannot assign to const: %s", n.Target.Name)
	}
	if err := g.emitExpr(n.Value); err != nil {
		return err
	}
	switch n.Operator {
	case "=":
		// value is already the whole of the new contents
	case "+=":
		if err := g.emitIdentifier(n.Target); err != nil {
			return err
		}
		g.img.Emit(vm.ADD, 0)
	case "-=":
		if err := g.emitIdentifier(n.Target); err != nil {
			return err
		}
		g.img.Emit(vm.SWAP, 0)
		g.img.Emit(vm.SUB, 0)
	default:
		return genErr("unsupported assignment operator: %s", n.Operator)
	}
	g.img.Emit(vm.PUSH, b.Address)
	g.img.Emit(vm.STORE, 0)
	return nil
}

func (g *CodeGenerator) emitBlock(n *Block) error {
	g.symbols.PushScope()
	defer g.symbols.PopScope()
	for _, stmt := range n.Statements {
		if err := g.emitStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (g *CodeGenerator) emitIf(n *IfStmt) error {
	if err := g.emitExpr(n.Condition); err != nil {
		return err
	}
	jumpToElse := g.img.Emit(vm.JZ, 0)

	if err := g.emitStmt(n.Then); err != nil {
		return err
	}

	if n.Else != nil {
		jumpToEnd := g.img.Emit(vm.JMP, 0)
		g.img.Patch(jumpToElse, g.img.Here())
		if err := g.emitStmt(n.Else); err != nil {
			return err
		}
		g.img.Patch(jumpToEnd, g.img.Here())
	} else {
		g.img.Patch(jumpToElse, g.img.Here())
	}
	return nil
}

func (g *CodeGenerator) emitWhile(n *WhileStmt) error {
	loopStart := g.img.Here()
	if err := g.emitExpr(n.Condition); err != nil {
		return err
	}
	jumpToEnd := g.img.Emit(vm.JZ, 0)

	if err := g.emitStmt(n.Body); err != nil {
		return err
	}
	g.img.Emit(vm.JMP, loopStart)
	g.img.Patch(jumpToEnd, g.img.Here())
	return nil
}

func (g *CodeGenerator) emitFor(n *ForStmt) error {
	g.symbols.PushScope()
	defer g.symbols.PopScope()

	if n.Init != nil {
		if err := g.emitStmt(n.Init); err != nil {
			return err
		}
	}

	loopStart := g.img.Here()
	var jumpToEnd int
	hasCond := n.Condition != nil
	if hasCond {
		if err := g.emitExpr(n.Condition); err != nil {
			return err
		}
		jumpToEnd = g.img.Emit(vm.JZ, 0)
	}

	if err := g.emitStmt(n.Body); err != nil {
		return err
	}

	if n.Update != nil {
		if err := g.emitExpr(n.Update); err != nil {
			return err
		}
		g.img.Emit(vm.POP, 0)
	}

	g.img.Emit(vm.JMP, loopStart)
	if hasCond {
		g.img.Patch(jumpToEnd, g.img.Here())
	}
	return nil
}

// emitFuncDecl emits the function body inline, guarded by an unconditional
// jump so top-level execution skips over it (spec §4.C). Parameters have
// already been pushed by the caller in source order, so the callee pops
// them in reverse and binds each to a freshly allocated memory word.
func (g *CodeGenerator) emitFuncDecl(n *FuncDecl) error {
	skipJump := g.img.Emit(vm.JMP, 0)

	addr := g.img.Here()
	g.symbols.DeclareFunction(n.Name, addr)

	g.symbols.PushScope()
	for i := len(n.Parameters) - 1; i >= 0; i-- {
		paramAddr := g.img.AddWord(0)
		g.img.Emit(vm.PUSH, paramAddr)
		g.img.Emit(vm.STORE, 0)
		g.symbols.Declare(n.Parameters[i], paramAddr, false)
	}

	for _, stmt := range n.Body.Statements {
		if err := g.emitStmt(stmt); err != nil {
			g.symbols.PopScope()
			return err
		}
	}
	g.img.Emit(vm.RET, 0)
	g.symbols.PopScope()

	g.img.Patch(skipJump, g.img.Here())
	return nil
}

func (g *CodeGenerator) emitReturn(n *ReturnStmt) error {
	if n.Value != nil {
		if err := g.emitExpr(n.Value); err != nil {
			return err
		}
	} else {
		g.img.Emit(vm.PUSH, 0)
	}
	g.img.Emit(vm.RET, 0)
	return nil
}
