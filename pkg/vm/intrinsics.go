package vm

import (
	"encoding/binary"
	"maps"
	"slices"
	"strconv"
)

// Intrinsic is a native function callable from usecode by index. args
// holds the argument bytes as they lie on the caller's stack, last pushed
// first. The result is stored in the caller's temp register.
type Intrinsic func(m *Machine, args []byte) uint32

// Args reads intrinsic arguments in order. Reading past the end yields
// zeros.
type Args struct {
	m   *Machine
	buf []byte
	pos int
}

// NewArgs wraps an argument buffer.
func (m *Machine) NewArgs(args []byte) *Args {
	return &Args{m: m, buf: args}
}

func (a *Args) next(n int) []byte {
	out := make([]byte, n)
	if a.pos < len(a.buf) {
		copy(out, a.buf[a.pos:])
	}
	a.pos += n
	return out
}

// Len returns the size of the argument buffer.
func (a *Args) Len() int { return len(a.buf) }

// Uint8 reads a byte argument. Bytes are passed as words.
func (a *Args) Uint8() uint8 { return a.next(2)[0] }

func (a *Args) Uint16() uint16 { return binary.LittleEndian.Uint16(a.next(2)) }
func (a *Args) Sint16() int16  { return int16(a.Uint16()) }
func (a *Args) Uint32() uint32 { return binary.LittleEndian.Uint32(a.next(4)) }
func (a *Args) Sint32() int32  { return int32(a.Uint32()) }

// Ptr reads a segmented pointer.
func (a *Args) Ptr() Pointer { return Pointer(a.Uint32()) }

// ObjID reads a pointer and resolves it to an object id.
func (a *Args) ObjID() uint16 { return a.m.PtrToObject(a.Ptr()) }

// String reads a string handle and returns its text.
func (a *Args) String() string { return a.m.heap.String(a.Uint16()) }

// intrinsic returns the native function at id, or nil.
func (m *Machine) intrinsic(id uint16) Intrinsic {
	if int(id) >= len(m.intrinsics) {
		return nil
	}
	return m.intrinsics[id]
}

// IntrinsicTrue returns 1.
func IntrinsicTrue(*Machine, []byte) uint32 { return 1 }

// IntrinsicFalse returns 0.
func IntrinsicFalse(*Machine, []byte) uint32 { return 0 }

// IntrinsicNumToStr formats a signed word as a new string.
func IntrinsicNumToStr(m *Machine, args []byte) uint32 {
	num := m.NewArgs(args).Sint16()
	return uint32(m.heap.NewString(strconv.Itoa(int(num))))
}

// IntrinsicURandom returns a random value in [0, n), or 0 if n <= 1.
func IntrinsicURandom(m *Machine, args []byte) uint32 {
	n := m.NewArgs(args).Uint16()
	if n <= 1 {
		return 0
	}
	return uint32(m.rand.IntN(int(n)))
}

// IntrinsicRndRange returns a random value in [lo, hi], or lo if hi <= lo.
func IntrinsicRndRange(m *Machine, args []byte) uint32 {
	a := m.NewArgs(args)
	lo := a.Sint16()
	hi := a.Sint16()
	if hi <= lo {
		return uint32(int32(lo))
	}
	return uint32(int32(int(lo) + m.rand.IntN(int(hi)-int(lo)+1)))
}

// IntrinsicGetName returns the avatar's name as a new string.
func IntrinsicGetName(m *Machine, _ []byte) uint32 {
	return uint32(m.heap.NewString(m.avatarName))
}

// builtinIntrinsics maps configuration names to the intrinsics the machine
// provides itself. Their indices differ between games.
var builtinIntrinsics = map[string]Intrinsic{
	"true":     IntrinsicTrue,
	"false":    IntrinsicFalse,
	"numToStr": IntrinsicNumToStr,
	"urandom":  IntrinsicURandom,
	"rndRange": IntrinsicRndRange,
	"getName":  IntrinsicGetName,
}

// BuiltinIntrinsic returns the built-in intrinsic called name.
func BuiltinIntrinsic(name string) (Intrinsic, bool) {
	fn, ok := builtinIntrinsics[name]
	return fn, ok
}

// BuiltinIntrinsicNames returns the names accepted by BuiltinIntrinsic.
func BuiltinIntrinsicNames() []string {
	return slices.Sorted(maps.Keys(builtinIntrinsics))
}
