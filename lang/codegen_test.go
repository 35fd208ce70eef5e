package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vsm/vm"
)

func compileAndRun(t *testing.T, src string, maxCycles uint64) *vm.Processor {
	t.Helper()
	img, err := Compile(src)
	assert.NoError(t, err)
	p := vm.NewProcessor(img.Instructions, img.Data, nil)
	p.Run(maxCycles)
	return p
}

func TestCompileSimpleArithmetic(t *testing.T) {
	p := compileAndRun(t, "print_number(2 + 3 * 4);", 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "14", string(p.IO.Output))
}

func TestCompileVarDeclAndAssignment(t *testing.T) {
	p := compileAndRun(t, "var x = 10; x = x + 5; print_number(x);", 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "15", string(p.IO.Output))
}

func TestCompileIfElse(t *testing.T) {
	p := compileAndRun(t, `
		var x = 5;
		if (x > 3) {
			print_number(1);
		} else {
			print_number(0);
		}
	`, 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "1", string(p.IO.Output))
}

func TestCompileWhileLoop(t *testing.T) {
	p := compileAndRun(t, `
		var i = 0;
		var sum = 0;
		while (i < 5) {
			sum += i;
			i += 1;
		}
		print_number(sum);
	`, 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "10", string(p.IO.Output))
}

// TestCompileRecursion is spec §8 S4.
func TestCompileRecursion(t *testing.T) {
	p := compileAndRun(t, `
		function f(n) {
			if (n <= 0) { return 0; }
			return n + f(n - 1);
		}
		print_number(f(5));
	`, 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "15", string(p.IO.Output))
}

func TestCompileStringLiteralPrint(t *testing.T) {
	p := compileAndRun(t, `print("Hello");`, 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "Hello", string(p.IO.Output))
}

func TestCompileVectorDotBuiltin(t *testing.T) {
	p := compileAndRun(t, `
		var a = <|1,2,3,4|>;
		var b = <|1,2,3,4|>;
		v_load(a, 4, 0);
		v_load(b, 4, 1);
		print_number(v_dot(0, 1));
	`, 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "30", string(p.IO.Output))
}

func TestCompileUndefinedVariableIsCodeGenError(t *testing.T) {
	_, err := Compile("print_number(undefinedVar);")
	assert.Error(t, err)
	var genErr *CodeGenError
	assert.ErrorAs(t, err, &genErr)
}

func TestCompileAssignToConstIsCodeGenError(t *testing.T) {
	_, err := Compile("const x = 1; x = 2;")
	assert.Error(t, err)
}

func TestCompileAllocRequiresLiteralSize(t *testing.T) {
	_, err := Compile("var n = 4; var buf = alloc(n);")
	assert.Error(t, err)
}

func TestCompileIndexIntoVectorLiteral(t *testing.T) {
	p := compileAndRun(t, `
		var v = <|10,20,30|>;
		print_number(v[1]);
	`, 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "20", string(p.IO.Output))
}

func TestCompileSetInterruptHandlerWithFunctionValue(t *testing.T) {
	p := compileAndRun(t, `
		function onInput() {
			return 0;
		}
		set_interrupt_handler(0, onInput);
		enable_interrupts();
		print_number(1);
	`, 0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "1", string(p.IO.Output))
}
