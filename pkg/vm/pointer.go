package vm

import (
	"encoding/binary"
	"fmt"
)

// Pointer is a 32-bit segmented usecode address: the high 16 bits select an
// address space, the low 16 bits are the offset inside it.
type Pointer uint32

// Segment tags.
const (
	SegStackFirst uint16 = 0x0001 // stack of process (tag - SegStackBase)
	SegStackLast  uint16 = 0x7FFE
	SegString     uint16 = 0x8000
	SegList       uint16 = 0x8001
	SegObject     uint16 = 0x8002
	SegGlobal     uint16 = 0x8003

	SegStackBase uint16 = 0x0000
)

func makePointer(seg, off uint16) Pointer {
	return Pointer(uint32(seg)<<16 | uint32(off))
}

func (p Pointer) Segment() uint16 { return uint16(p >> 16) }
func (p Pointer) Offset() uint16  { return uint16(p) }

func (p Pointer) String() string {
	return fmt.Sprintf("%04X:%04X", p.Segment(), p.Offset())
}

// Ref is a decoded pointer. Exactly one of the concrete Ref types below is
// produced for every valid pointer.
type Ref interface {
	Pointer() Pointer
}

// StackRef addresses a byte of a process's stack.
type StackRef struct{ PID, Offset uint16 }

// GlobalRef addresses an entry of the global store.
type GlobalRef struct{ Offset uint16 }

// ObjectRef carries an object id.
type ObjectRef struct{ ID uint16 }

// StringRef carries a string handle.
type StringRef struct{ Handle uint16 }

// ListRef carries a list handle.
type ListRef struct{ Handle uint16 }

func (r StackRef) Pointer() Pointer  { return makePointer(SegStackBase+r.PID, r.Offset) }
func (r GlobalRef) Pointer() Pointer { return makePointer(SegGlobal, r.Offset) }
func (r ObjectRef) Pointer() Pointer { return makePointer(SegObject, r.ID) }
func (r StringRef) Pointer() Pointer { return makePointer(SegString, r.Handle) }
func (r ListRef) Pointer() Pointer   { return makePointer(SegList, r.Handle) }

// StackPtr returns a pointer into the stack of process pid.
func StackPtr(pid, offset uint16) Pointer { return StackRef{pid, offset}.Pointer() }

// StringPtr returns a pointer naming string handle h.
func StringPtr(h uint16) Pointer { return StringRef{h}.Pointer() }

// ListPtr returns a pointer naming list handle h.
func ListPtr(h uint16) Pointer { return ListRef{h}.Pointer() }

// ObjectPtr returns a pointer naming object id.
func ObjectPtr(id uint16) Pointer { return ObjectRef{id}.Pointer() }

// GlobalPtr returns a pointer into the global store.
func GlobalPtr(offset uint16) Pointer { return GlobalRef{offset}.Pointer() }

// Decode classifies p by segment.
func Decode(p Pointer) (Ref, error) {
	seg, off := p.Segment(), p.Offset()
	switch {
	case seg >= SegStackFirst && seg <= SegStackLast:
		return StackRef{PID: seg - SegStackBase, Offset: off}, nil
	case seg == SegString:
		return StringRef{Handle: off}, nil
	case seg == SegList:
		return ListRef{Handle: off}, nil
	case seg == SegObject:
		return ObjectRef{ID: off}, nil
	case seg == SegGlobal:
		return GlobalRef{Offset: off}, nil
	default:
		return nil, NewRuntimeError(ErrorBadSegment, "access to segment %04X", seg)
	}
}

// stackOf returns the stack of the live process pid.
func (m *Machine) stackOf(pid uint16) (*Stack, error) {
	var proc *Process
	if m.sched != nil {
		proc = m.sched.Process(pid)
	}
	if proc == nil || proc.Flags&FlagTerminated != 0 {
		return nil, NewRuntimeError(ErrorDeadProcess, "access to stack of non-existent process %d", pid)
	}
	return proc.Stack, nil
}

// Dereference reads size bytes from the location p names.
// Global reads of other than 1 or 2 bytes are reported with a non-fatal
// error and read as zeros.
func (m *Machine) Dereference(p Pointer, size int) ([]byte, error) {
	ref, err := Decode(p)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	switch r := ref.(type) {
	case StackRef:
		st, err := m.stackOf(r.PID)
		if err != nil {
			return nil, err
		}
		if !st.inRange(int(r.Offset), size) {
			return nil, NewRuntimeError(ErrorStackFault, "pointer %s reads %d bytes past stack of process %d", p, size, r.PID)
		}
		copy(data, st.buf[r.Offset:])
	case ObjectRef:
		if size != 2 {
			return nil, NewRuntimeError(ErrorBadOperand, "read of %d bytes from object pointer %s", size, p)
		}
		binary.LittleEndian.PutUint16(data, r.ID)
	case GlobalRef:
		if m.ruleset == RulesetU8 {
			m.log.Warn("global pointers not supported by ruleset", "ruleset", m.ruleset, "pointer", p.String())
		}
		switch size {
		case 1:
			data[0] = byte(m.globals.Get(uint(r.Offset), 1))
		case 2:
			binary.LittleEndian.PutUint16(data, uint16(m.globals.Get(uint(r.Offset), 2)))
		default:
			return data, NewRuntimeError(ErrorGlobalWidth, "global pointers must be size 1 or 2, got %d", size)
		}
	default:
		return nil, NewRuntimeError(ErrorBadSegment, "dereference of %T pointer %s", ref, p)
	}
	return data, nil
}

// AssignPointer writes data to the location p names. Only stack and global
// pointers are writable.
func (m *Machine) AssignPointer(p Pointer, data []byte) error {
	ref, err := Decode(p)
	if err != nil {
		return err
	}
	switch r := ref.(type) {
	case StackRef:
		st, err := m.stackOf(r.PID)
		if err != nil {
			return err
		}
		if !st.inRange(int(r.Offset), len(data)) {
			return NewRuntimeError(ErrorStackFault, "pointer %s writes %d bytes past stack of process %d", p, len(data), r.PID)
		}
		copy(st.buf[r.Offset:], data)
	case GlobalRef:
		if m.ruleset == RulesetU8 {
			m.log.Warn("global pointers not supported by ruleset", "ruleset", m.ruleset, "pointer", p.String())
		}
		switch len(data) {
		case 1:
			m.globals.Set(uint(r.Offset), 1, uint32(data[0]))
		case 2:
			m.globals.Set(uint(r.Offset), 2, uint32(binary.LittleEndian.Uint16(data)))
		default:
			return NewRuntimeError(ErrorGlobalWidth, "global pointers must be size 1 or 2, got %d", len(data))
		}
	default:
		return NewRuntimeError(ErrorBadSegment, "assignment through %T pointer %s", ref, p)
	}
	return nil
}

// PtrToObject extracts an object id from p: the word a stack pointer
// points at, the offset of object and string pointers, or the 2-byte
// global a global pointer names. Failures yield 0.
func (m *Machine) PtrToObject(p Pointer) uint16 {
	ref, err := Decode(p)
	if err != nil {
		m.log.Warn("pointer to object", "pointer", p.String(), "error", err)
		return 0
	}
	switch r := ref.(type) {
	case StackRef:
		st, err := m.stackOf(r.PID)
		if err != nil {
			m.log.Warn("pointer to object", "pointer", p.String(), "error", err)
			return 0
		}
		if !st.inRange(int(r.Offset), 2) {
			m.log.Warn("pointer to object past end of stack", "pointer", p.String(), "size", st.Capacity())
			return 0
		}
		return binary.LittleEndian.Uint16(st.buf[r.Offset:])
	case ObjectRef:
		return r.ID
	case StringRef:
		return r.Handle
	case GlobalRef:
		return uint16(m.globals.Get(uint(r.Offset), 2))
	default:
		m.log.Warn("pointer to object", "pointer", p.String(), "segment", p.Segment())
		return 0
	}
}
