package lang

import "github.com/davecgh/go-spew/spew"

// astDumpConfig mirrors hejops-gone's use of spew for structured
// dumps: no pointer addresses (they're meaningless across runs), method
// calls disabled (String() on token types would collapse detail spew is
// meant to reveal).
var astDumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableMethods:          true,
	DisableCapacities:       true,
}

// DumpAST renders prog as an indented, field-by-field dump — used by
// `vsm compile --ast` to inspect the parser's output without a debugger.
func DumpAST(prog *Program) string {
	return astDumpConfig.Sdump(prog)
}
