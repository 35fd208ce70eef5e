package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vsm/vm"
)

// TestReadLineBufStopsAtNul exercises the NUL exit path of the readLineBuf
// expansion: a scheduled NUL byte should stop the read and leave the data
// stack balanced (regression coverage for the leftover byte readLineBuf's
// zero/newline branches used to leave behind).
func TestReadLineBufStopsAtNul(t *testing.T) {
	img, err := Compile(`
		var buf = alloc(8);
		readLineBuf(buf, 8);
		print(buf);
	`)
	assert.NoError(t, err)

	schedule := []vm.ScheduledInput{
		{Cycle: 0, Data: 'h'},
		{Cycle: 1, Data: 'i'},
		{Cycle: 2, Data: 0},
	}
	p := vm.NewProcessor(img.Instructions, img.Data, schedule)
	p.Run(0)

	assert.Nil(t, p.Err)
	assert.Equal(t, "hi", string(p.IO.Output))
}

// TestReadLineBufStopsAtNewline mirrors the above for the newline exit
// path, which — like the NUL path — must drain the terminating byte
// before falling through to the shared NUL-termination tail.
func TestReadLineBufStopsAtNewline(t *testing.T) {
	img, err := Compile(`
		var buf = alloc(8);
		readLineBuf(buf, 8);
		print(buf);
	`)
	assert.NoError(t, err)

	schedule := []vm.ScheduledInput{
		{Cycle: 0, Data: 'o'},
		{Cycle: 1, Data: 'k'},
		{Cycle: 2, Data: '\n'},
	}
	p := vm.NewProcessor(img.Instructions, img.Data, schedule)
	p.Run(0)

	assert.Nil(t, p.Err)
	assert.Equal(t, "ok", string(p.IO.Output))
}

// TestReadLineBufStopsAtCapacity covers the max-length exit path, which
// never has a leftover byte to drain.
func TestReadLineBufStopsAtCapacity(t *testing.T) {
	img, err := Compile(`
		var buf = alloc(4);
		readLineBuf(buf, 3);
		print(buf);
	`)
	assert.NoError(t, err)

	schedule := []vm.ScheduledInput{
		{Cycle: 0, Data: 'a'},
		{Cycle: 1, Data: 'b'},
		{Cycle: 2, Data: 'c'},
		{Cycle: 3, Data: 'd'},
	}
	p := vm.NewProcessor(img.Instructions, img.Data, schedule)
	p.Run(0)

	assert.Nil(t, p.Err)
	assert.Equal(t, "ab", string(p.IO.Output))
}

func TestChrIsIdentityOnWords(t *testing.T) {
	img, err := Compile(`print_number(chr(65));`)
	assert.NoError(t, err)
	p := vm.NewProcessor(img.Instructions, img.Data, nil)
	p.Run(0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "65", string(p.IO.Output))
}

func TestLenReadsVectorLengthPrefix(t *testing.T) {
	img, err := Compile(`
		var v = <|1,2,3|>;
		print_number(len(v));
	`)
	assert.NoError(t, err)
	p := vm.NewProcessor(img.Instructions, img.Data, nil)
	p.Run(0)
	assert.Nil(t, p.Err)
	assert.Equal(t, "3", string(p.IO.Output))
}
