package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	toks, err := NewLexer(src).Tokenize()
	assert.NoError(t, err)
	prog, err := Parse(toks)
	assert.NoError(t, err)
	return prog
}

func TestParseVarDeclAndExprStmt(t *testing.T) {
	prog := mustParse(t, "var x = 1 + 2; x;")
	assert.Len(t, prog.Statements, 2)

	decl, ok := prog.Statements[0].(*VarDecl)
	assert.True(t, ok)
	assert.Equal(t, "x", decl.Name)
	bin, ok := decl.Initializer.(*BinaryExpr)
	assert.True(t, ok)
	assert.Equal(t, "+", bin.Operator)

	_, ok = prog.Statements[1].(*ExprStmt)
	assert.True(t, ok)
}

func TestParseIfElse(t *testing.T) {
	prog := mustParse(t, "if (x < 1) { y = 1; } else { y = 2; }")
	ifStmt, ok := prog.Statements[0].(*IfStmt)
	assert.True(t, ok)
	assert.NotNil(t, ifStmt.Then)
	assert.NotNil(t, ifStmt.Else)
}

func TestParseWhileAndFor(t *testing.T) {
	// The for-loop's update clause parses a plain expression, not an
	// assignment (the grammar's assignment form only exists at statement
	// level, matching the original compiler's parser.py exactly).
	prog := mustParse(t, "while (x < 10) { x += 1; } for (var i = 0; i < 10; i) { y; }")
	_, ok := prog.Statements[0].(*WhileStmt)
	assert.True(t, ok)
	forStmt, ok := prog.Statements[1].(*ForStmt)
	assert.True(t, ok)
	assert.NotNil(t, forStmt.Init)
	assert.NotNil(t, forStmt.Condition)
	assert.NotNil(t, forStmt.Update)
}

func TestParseFunctionDeclaration(t *testing.T) {
	prog := mustParse(t, "function f(n) { return n + 1; }")
	fn, ok := prog.Statements[0].(*FuncDecl)
	assert.True(t, ok)
	assert.Equal(t, "f", fn.Name)
	assert.Equal(t, []string{"n"}, fn.Parameters)
	assert.Len(t, fn.Body.Statements, 1)
}

func TestParseVectorLiteralAndIndex(t *testing.T) {
	prog := mustParse(t, "var v = <|1,2,3|>; v[0];")
	decl := prog.Statements[0].(*VarDecl)
	vec, ok := decl.Initializer.(*VectorLiteral)
	assert.True(t, ok)
	assert.Len(t, vec.Elements, 3)

	exprStmt := prog.Statements[1].(*ExprStmt)
	idx, ok := exprStmt.Expression.(*IndexExpr)
	assert.True(t, ok)
	assert.NotNil(t, idx.Array)
	assert.NotNil(t, idx.Index)
}

func TestParseCallExpression(t *testing.T) {
	prog := mustParse(t, "print_number(1 + 2);")
	exprStmt := prog.Statements[0].(*ExprStmt)
	call, ok := exprStmt.Expression.(*CallExpr)
	assert.True(t, ok)
	assert.Equal(t, "print_number", call.Name)
	assert.Len(t, call.Arguments, 1)
}

func TestParseErrorOnUnexpectedToken(t *testing.T) {
	toks, err := NewLexer("var = 1;").Tokenize()
	assert.NoError(t, err)
	_, err = Parse(toks)
	assert.Error(t, err)
}

func TestParsePrecedenceOfComparisonAndLogical(t *testing.T) {
	prog := mustParse(t, "x < 1 and y > 2;")
	exprStmt := prog.Statements[0].(*ExprStmt)
	top, ok := exprStmt.Expression.(*BinaryExpr)
	assert.True(t, ok)
	assert.Equal(t, "and", top.Operator)
	_, ok = top.Left.(*BinaryExpr)
	assert.True(t, ok)
	_, ok = top.Right.(*BinaryExpr)
	assert.True(t, ok)
}
