package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func tokenKinds(t *testing.T, src string) []TokenKind {
	t.Helper()
	toks, err := NewLexer(src).Tokenize()
	assert.NoError(t, err)
	var kinds []TokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	return kinds
}

func TestLexerKeywordsAndIdentifiers(t *testing.T) {
	kinds := tokenKinds(t, "var x = 1; const y = 2;")
	assert.Equal(t, []TokenKind{
		TokVar, TokIdentifier, TokAssign, TokNumber, TokSemicolon,
		TokConst, TokIdentifier, TokAssign, TokNumber, TokSemicolon,
		TokEOF,
	}, kinds)
}

func TestLexerVectorBrackets(t *testing.T) {
	kinds := tokenKinds(t, "<|1,2,3|>")
	assert.Equal(t, []TokenKind{
		TokVectorOpen, TokNumber, TokComma, TokNumber, TokComma, TokNumber, TokVectorClose, TokEOF,
	}, kinds)
}

func TestLexerCompoundAssignOperators(t *testing.T) {
	kinds := tokenKinds(t, "x += 1; x -= 1;")
	assert.Equal(t, []TokenKind{
		TokIdentifier, TokPlusAssign, TokNumber, TokSemicolon,
		TokIdentifier, TokMinusAssign, TokNumber, TokSemicolon,
		TokEOF,
	}, kinds)
}

func TestLexerStringLiteral(t *testing.T) {
	toks, err := NewLexer(`"hello"`).Tokenize()
	assert.NoError(t, err)
	assert.Equal(t, TokString, toks[0].Kind)
	assert.Equal(t, "hello", toks[0].Text)
}

func TestLexerNumberLiteralIntVsFloat(t *testing.T) {
	toks, err := NewLexer("42 3.5").Tokenize()
	assert.NoError(t, err)
	assert.Equal(t, TokNumber, toks[0].Kind)
	assert.Equal(t, TokNumber, toks[1].Kind)
	assert.True(t, toks[0].IsInt)
	assert.False(t, toks[1].IsInt)
}

func TestLexerUnterminatedStringIsAnError(t *testing.T) {
	_, err := NewLexer(`"unterminated`).Tokenize()
	assert.Error(t, err)
}

// TestLexerSymbolicAndKeywordLogicalOperatorsAreEquivalent asserts that
// both spellings of the logical operators (&&/and, ||/or, !/not) lex to
// the same token kinds, matching the original compiler's dual-spelling
// support.
func TestLexerSymbolicAndKeywordLogicalOperatorsAreEquivalent(t *testing.T) {
	symbolic := tokenKinds(t, "a && b || !c")
	keyword := tokenKinds(t, "a and b or not c")
	assert.Equal(t, keyword, symbolic)
	assert.Equal(t, []TokenKind{
		TokIdentifier, TokAnd, TokIdentifier, TokOr, TokNot, TokIdentifier, TokEOF,
	}, symbolic)
}
