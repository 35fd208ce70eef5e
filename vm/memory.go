package vm

import "encoding/binary"

// Memory is the byte-addressable data segment (spec §3). All multi-byte
// accesses are little-endian and bounds-checked; out-of-range accesses
// report a MemoryOutOfBounds ProcessorError rather than panicking, so the
// processor can fault cleanly instead of crashing the host process.
type Memory struct {
	bytes       []byte
	accessCount uint64
}

// NewMemory allocates a zeroed data segment of the given size in bytes.
func NewMemory(size int) *Memory {
	return &Memory{bytes: make([]byte, size)}
}

// Load replaces the contents of the data segment up to len(data), growing
// the segment if data is larger than its current size.
func (m *Memory) Load(data []byte) {
	if len(data) > len(m.bytes) {
		grown := make([]byte, len(data))
		copy(grown, m.bytes)
		m.bytes = grown
	}
	copy(m.bytes, data)
}

// Size returns the data segment's current size in bytes.
func (m *Memory) Size() int { return len(m.bytes) }

// AccessCount returns the number of word/byte reads and writes performed so
// far.
func (m *Memory) AccessCount() uint64 { return m.accessCount }

func (m *Memory) boundsCheck(addr uint32, width int) bool {
	return uint64(addr)+uint64(width) <= uint64(len(m.bytes))
}

// ReadWord reads a 32-bit little-endian word at addr.
func (m *Memory) ReadWord(addr uint32) (uint32, error) {
	if !m.boundsCheck(addr, 4) {
		return 0, errMemoryOutOfBounds(0, addr)
	}
	m.accessCount++
	return binary.LittleEndian.Uint32(m.bytes[addr : addr+4]), nil
}

// WriteWord writes a 32-bit little-endian word at addr.
func (m *Memory) WriteWord(addr uint32, v uint32) error {
	if !m.boundsCheck(addr, 4) {
		return errMemoryOutOfBounds(0, addr)
	}
	m.accessCount++
	binary.LittleEndian.PutUint32(m.bytes[addr:addr+4], v)
	return nil
}

// ReadByte reads a single byte at addr.
func (m *Memory) ReadByte(addr uint32) (byte, error) {
	if !m.boundsCheck(addr, 1) {
		return 0, errMemoryOutOfBounds(0, addr)
	}
	m.accessCount++
	return m.bytes[addr], nil
}

// WriteByte writes a single byte at addr.
func (m *Memory) WriteByte(addr uint32, v byte) error {
	if !m.boundsCheck(addr, 1) {
		return errMemoryOutOfBounds(0, addr)
	}
	m.accessCount++
	m.bytes[addr] = v
	return nil
}

// ReadCString reads bytes starting at addr up to (not including) the first
// NUL or the end of memory, whichever comes first — used by OUT port 1.
func (m *Memory) ReadCString(addr uint32) (string, bool) {
	if addr >= uint32(len(m.bytes)) {
		return "", false
	}
	end := addr
	for end < uint32(len(m.bytes)) && m.bytes[end] != 0 {
		end++
	}
	return string(m.bytes[addr:end]), true
}
