package vm

import "encoding/binary"

// DefaultStackSize is the stack capacity of a usecode process.
const DefaultStackSize = 0x1000

// Stack is a process-private byte-addressable stack. It grows downwards:
// pushing lowers SP, and offsets are absolute positions inside the buffer,
// so BP-relative and pointer addressing stay valid for the process's life.
//
// Out-of-range accesses never touch memory. They return zero values and
// record a sticky fault that the dispatcher inspects after every
// instruction.
type Stack struct {
	buf []byte
	sp  int
	err error
}

// NewStack creates an empty stack with the given capacity.
func NewStack(size int) *Stack {
	if size <= 0 || size > 0x10000 {
		size = DefaultStackSize
	}
	return &Stack{buf: make([]byte, size), sp: size}
}

// SP returns the current stack pointer.
func (s *Stack) SP() int { return s.sp }

// Capacity returns the size of the underlying buffer.
func (s *Stack) Capacity() int { return len(s.buf) }

// Size returns the number of bytes in use.
func (s *Stack) Size() int { return len(s.buf) - s.sp }

// Err returns the first fault recorded on the stack.
func (s *Stack) Err() error { return s.err }

// ClearErr forgets a recorded fault.
func (s *Stack) ClearErr() { s.err = nil }

func (s *Stack) fault(format string, args ...any) {
	if s.err == nil {
		s.err = NewRuntimeError(ErrorStackFault, format, args...)
	}
}

func (s *Stack) inRange(off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(s.buf)
}

// SetSP moves the stack pointer to an absolute offset.
func (s *Stack) SetSP(sp int) {
	if sp < 0 || sp > len(s.buf) {
		s.fault("set sp %d outside stack of %d bytes", sp, len(s.buf))
		return
	}
	s.sp = sp
}

// AddSP moves the stack pointer without touching memory. A positive delta
// discards bytes, a negative delta reserves them.
func (s *Stack) AddSP(delta int) {
	s.SetSP(s.sp + delta)
}

func (s *Stack) reserve(n int) (int, bool) {
	if n < 0 || s.sp-n < 0 {
		s.fault("stack overflow pushing %d bytes at sp %d", n, s.sp)
		return 0, false
	}
	s.sp -= n
	return s.sp, true
}

// Push copies data onto the stack.
func (s *Stack) Push(data []byte) {
	if off, ok := s.reserve(len(data)); ok {
		copy(s.buf[off:], data)
	}
}

// Push0 pushes n zero bytes.
func (s *Stack) Push0(n int) {
	if off, ok := s.reserve(n); ok {
		clear(s.buf[off : off+n])
	}
}

func (s *Stack) Push1(v uint8) {
	if off, ok := s.reserve(1); ok {
		s.buf[off] = v
	}
}

func (s *Stack) Push2(v uint16) {
	if off, ok := s.reserve(2); ok {
		binary.LittleEndian.PutUint16(s.buf[off:], v)
	}
}

func (s *Stack) Push4(v uint32) {
	if off, ok := s.reserve(4); ok {
		binary.LittleEndian.PutUint32(s.buf[off:], v)
	}
}

func (s *Stack) release(n int) (int, bool) {
	if n < 0 || s.sp+n > len(s.buf) {
		s.fault("stack underflow popping %d bytes at sp %d", n, s.sp)
		return 0, false
	}
	off := s.sp
	s.sp += n
	return off, true
}

// Pop removes n bytes and returns a copy of them.
func (s *Stack) Pop(n int) []byte {
	out := make([]byte, max(n, 0))
	if off, ok := s.release(n); ok {
		copy(out, s.buf[off:off+n])
	}
	return out
}

func (s *Stack) Pop1() uint8 {
	if off, ok := s.release(1); ok {
		return s.buf[off]
	}
	return 0
}

func (s *Stack) Pop2() uint16 {
	if off, ok := s.release(2); ok {
		return binary.LittleEndian.Uint16(s.buf[off:])
	}
	return 0
}

func (s *Stack) Pop4() uint32 {
	if off, ok := s.release(4); ok {
		return binary.LittleEndian.Uint32(s.buf[off:])
	}
	return 0
}

// Access returns a copy of n bytes at an absolute offset.
func (s *Stack) Access(off, n int) []byte {
	out := make([]byte, max(n, 0))
	if !s.inRange(off, n) {
		s.fault("read of %d bytes at %d outside stack of %d bytes", n, off, len(s.buf))
		return out
	}
	copy(out, s.buf[off:off+n])
	return out
}

func (s *Stack) Access1(off int) uint8 {
	if !s.inRange(off, 1) {
		s.fault("read byte at %d outside stack", off)
		return 0
	}
	return s.buf[off]
}

func (s *Stack) Access2(off int) uint16 {
	if !s.inRange(off, 2) {
		s.fault("read word at %d outside stack", off)
		return 0
	}
	return binary.LittleEndian.Uint16(s.buf[off:])
}

func (s *Stack) Access4(off int) uint32 {
	if !s.inRange(off, 4) {
		s.fault("read dword at %d outside stack", off)
		return 0
	}
	return binary.LittleEndian.Uint32(s.buf[off:])
}

// Assign overwrites bytes at an absolute offset.
func (s *Stack) Assign(off int, data []byte) {
	if !s.inRange(off, len(data)) {
		s.fault("write of %d bytes at %d outside stack of %d bytes", len(data), off, len(s.buf))
		return
	}
	copy(s.buf[off:], data)
}

func (s *Stack) Assign1(off int, v uint8) {
	if !s.inRange(off, 1) {
		s.fault("write byte at %d outside stack", off)
		return
	}
	s.buf[off] = v
}

func (s *Stack) Assign2(off int, v uint16) {
	if !s.inRange(off, 2) {
		s.fault("write word at %d outside stack", off)
		return
	}
	binary.LittleEndian.PutUint16(s.buf[off:], v)
}

func (s *Stack) Assign4(off int, v uint32) {
	if !s.inRange(off, 4) {
		s.fault("write dword at %d outside stack", off)
		return
	}
	binary.LittleEndian.PutUint32(s.buf[off:], v)
}
