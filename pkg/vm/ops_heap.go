package vm

import (
	"encoding/binary"

	"github.com/zurustar/ucvm/pkg/opcode"
)

// String and list instructions. Binary list operations pop the operand
// list first and the destination second, and push the destination.

func init() {
	register(opcode.PushString, func(x *exec) error {
		n := int(x.u16())
		text := string(x.bytes(n))
		if x.u8() != 0 {
			return NewRuntimeError(ErrorBadOperand, "zero terminator missing in push string")
		}
		x.p.Stack.Push2(x.m.heap.NewString(text))
		return nil
	})
	register(opcode.PushVarString, func(x *exec) error {
		off := x.s8()
		x.p.Stack.Push2(x.m.heap.DuplicateString(x.p.Stack.Access2(x.bp(off))))
		return nil
	})
	register(opcode.Concat, opConcat)
	register(opcode.StrCmp, func(x *exec) error {
		a := x.p.Stack.Pop2()
		b := x.p.Stack.Pop2()
		h := x.m.heap
		x.p.Stack.Push2(boolWord(h.String(b) == h.String(a)))
		h.FreeString(a)
		h.FreeString(b)
		return nil
	})

	register(opcode.CreateList, opCreateList)
	register(opcode.PushVarList, func(x *exec) error {
		off := x.s8()
		size := int(x.u8())
		src := x.m.heap.List(x.p.Stack.Access2(x.bp(off)))
		l := NewList(size)
		if src != nil {
			// absence is an empty list
			l = src.Copy()
		}
		x.p.Stack.Push2(x.m.heap.AddList(l))
		return nil
	})
	register(opcode.PushVarSList, func(x *exec) error {
		off := x.s8()
		src := x.m.heap.List(x.p.Stack.Access2(x.bp(off)))
		l := NewStringList()
		if src != nil {
			l = x.m.heap.CopyStringList(src)
		}
		x.p.Stack.Push2(x.m.heap.AddList(l))
		return nil
	})
	register(opcode.PushElement, opPushElement)
	register(opcode.PopElement, opPopElement)

	register(opcode.AppendList, opAppendList)
	register(opcode.UnionSList, func(x *exec) error {
		if size := x.u8(); size != 2 {
			return NewRuntimeError(ErrorBadOperand, "unhandled operand %d to union slist", size)
		}
		return x.stringListOp("union slist", func(dst, src *List) {
			x.m.heap.UnionStrings(dst, src)
		})
	})
	register(opcode.SubtractSList, func(x *exec) error {
		x.u8() // element size, always 2
		return x.stringListOp("remove slist", func(dst, src *List) {
			x.m.heap.SubtractStrings(dst, src)
		})
	})
	register(opcode.SubtractList, func(x *exec) error {
		x.u8() // element size
		a := x.p.Stack.Pop2()
		b := x.p.Stack.Pop2()
		src, dst := x.m.heap.List(a), x.m.heap.List(b)
		if src == nil || dst == nil {
			return NewRuntimeError(ErrorMissingList, "invalid list param to remove list (%d, %d)", b, a)
		}
		if src.ElementSize() != dst.ElementSize() {
			return NewSizeMismatchError(dst.ElementSize(), src.ElementSize())
		}
		if a != b {
			dst.Subtract(src)
			x.m.heap.FreeList(a)
		} else {
			x.warn("list subtracted from itself", "list", a)
		}
		x.p.Stack.Push2(b)
		return nil
	})
	register(opcode.InList, opInList)

	register(opcode.FreeString, func(x *exec) error {
		x.m.heap.FreeString(x.p.Stack.Access2(x.bp(x.s8())))
		return nil
	})
	register(opcode.FreeSList, func(x *exec) error {
		x.m.heap.FreeStringList(x.p.Stack.Access2(x.bp(x.s8())))
		return nil
	})
	register(opcode.FreeList, func(x *exec) error {
		x.m.heap.FreeList(x.p.Stack.Access2(x.bp(x.s8())))
		return nil
	})
	// The SP-relative frees sometimes find a 32-bit string pointer; its low
	// word is the handle.
	register(opcode.FreeStringSP, func(x *exec) error {
		x.m.heap.FreeString(x.p.Stack.Access2(x.sp(int(x.s8()))))
		return nil
	})
	register(opcode.FreeListSP, func(x *exec) error {
		x.m.heap.FreeList(x.p.Stack.Access2(x.sp(int(x.s8()))))
		return nil
	})
	register(opcode.FreeSListSP, func(x *exec) error {
		x.m.heap.FreeStringList(x.p.Stack.Access2(x.sp(int(x.s8()))))
		return nil
	})

	register(opcode.ParamPIDChg, opParamPIDChange)
}

// opConcat appends the string popped first to the one popped second and
// frees the former. Appending to a missing string yields a new string.
func opConcat(x *exec) error {
	a := x.p.Stack.Pop2()
	b := x.p.Stack.Pop2()
	h := x.m.heap
	if b == a {
		h.AppendString(b, a)
		x.p.Stack.Push2(b)
		return nil
	}
	if !h.AppendString(b, a) {
		s := h.NewString(h.String(a))
		h.FreeString(a)
		x.p.Stack.Push2(s)
		return NewRuntimeError(ErrorInvalidHandle, "append to invalid string %d", b)
	}
	h.FreeString(a)
	x.p.Stack.Push2(b)
	return nil
}

// opCreateList pops count values of size bytes into a new list, keeping
// the order they were pushed in.
func opCreateList(x *exec) error {
	size := int(x.u8())
	count := int(x.u8())
	l := NewList(size)
	st := x.p.Stack
	for i := count - 1; i >= 0; i-- {
		l.Append(st.Access(x.sp(i*size), size))
	}
	st.AddSP(size * count)
	st.Push2(x.m.heap.AddList(l))
	return nil
}

// opPushElement pushes element index-1 of a list. A missing list pushes
// zeros; string elements are duplicated.
func opPushElement(x *exec) error {
	size := int(x.u8())
	slist := x.u8() != 0
	idx := int(x.p.Stack.Pop2() - 1)
	handle := x.p.Stack.Pop2()
	l := x.m.heap.List(handle)
	switch {
	case l == nil:
		x.p.Stack.Push0(size)
	case slist:
		x.p.Stack.Push2(x.m.heap.DuplicateString(l.Uint16(idx)))
	case idx >= l.Len():
		x.warn("push element past end of list", "list", handle, "index", idx, "len", l.Len())
		x.p.Stack.Push0(size)
	default:
		e := make([]byte, size)
		copy(e, l.Element(idx))
		x.p.Stack.Push(e)
	}
	return nil
}

// opPopElement pops a 1-based index, then a value, into an element of the
// list at bp+xx. For string lists the overwritten string is freed.
func opPopElement(x *exec) error {
	off := x.s8()
	size := int(x.u8())
	slist := x.s8() != 0
	idx := int(x.p.Stack.Pop2() - 1)
	handle := x.p.Stack.Access2(x.bp(off))
	l := x.m.heap.List(handle)
	if l == nil {
		return NewMissingListError("assign element", handle)
	}
	if slist {
		if size != 2 {
			return NewRuntimeError(ErrorBadOperand, "unhandled operand %d to pop slist", size)
		}
		l.MarkStrings()
		old := l.Uint16(idx)
		v := x.p.Stack.Pop2()
		if idx >= l.Len() {
			x.warn("pop element past end of string list", "list", handle, "index", idx, "len", l.Len())
			x.m.heap.FreeString(v)
			return nil
		}
		if old != v {
			x.m.heap.FreeString(old)
		}
		l.Assign(idx, binary.LittleEndian.AppendUint16(nil, v))
		return nil
	}
	l.Assign(idx, x.p.Stack.Pop(size))
	return nil
}

// opAppendList appends the list popped first to the one popped second and
// releases the former. Lists of different element sizes are left alone.
func opAppendList(x *exec) error {
	a := x.p.Stack.Pop2()
	b := x.p.Stack.Pop2()
	h := x.m.heap
	la, lb := h.List(a), h.List(b)
	switch {
	case la == nil && lb == nil:
		x.p.Stack.Push2(0)
		return nil
	case lb == nil:
		x.p.Stack.Push2(a)
		return nil
	case la == nil:
		x.p.Stack.Push2(b)
		return nil
	}
	if a == b {
		dup := la.Copy()
		if la.IsStringList() {
			dup = h.CopyStringList(la)
		}
		x.p.Stack.Push2(b)
		return lb.AppendList(dup)
	}
	if err := lb.AppendList(la); err != nil {
		x.p.Stack.Push2(b)
		return err
	}
	if la.IsStringList() {
		lb.MarkStrings()
	}
	// the elements now belong to b
	la.Clear()
	h.DiscardList(a)
	x.p.Stack.Push2(b)
	return nil
}

// stringListOp runs a two-operand string list operation and frees the
// operand list.
func (x *exec) stringListOp(name string, f func(dst, src *List)) error {
	a := x.p.Stack.Pop2()
	b := x.p.Stack.Pop2()
	src, dst := x.m.heap.List(a), x.m.heap.List(b)
	if src == nil || dst == nil {
		return NewRuntimeError(ErrorMissingList, "invalid list param to %s (%d, %d)", name, b, a)
	}
	if src.ElementSize() != 2 || dst.ElementSize() != 2 {
		return NewSizeMismatchError(dst.ElementSize(), src.ElementSize())
	}
	// lists built by create list learn here that they hold strings
	src.MarkStrings()
	dst.MarkStrings()
	if a == b {
		x.warn(name+" with itself", "list", a)
	} else {
		f(dst, src)
		x.m.heap.FreeStringList(a)
	}
	x.p.Stack.Push2(b)
	return nil
}

// opInList pops a list, then an element, pushes whether the element is in
// the list and frees the list.
func opInList(x *exec) error {
	size := int(x.u8())
	slist := x.u8() != 0
	handle := x.p.Stack.Pop2()
	l := x.m.heap.List(handle)
	if l == nil {
		return NewMissingListError("in list", handle)
	}
	if slist {
		if size != 2 {
			return NewRuntimeError(ErrorBadOperand, "unhandled operand %d to in slist", size)
		}
		l.MarkStrings()
		found := x.m.heap.StringInList(l, x.p.Stack.Pop2())
		x.p.Stack.Push2(boolWord(found))
		x.m.heap.FreeStringList(handle)
		return nil
	}
	found := l.Contains(x.p.Stack.Pop(size))
	x.p.Stack.Push2(boolWord(found))
	x.m.heap.FreeList(handle)
	return nil
}

// opParamPIDChange replaces the string, string list or list at bp+xx with
// a copy owned by the current process.
func opParamPIDChange(x *exec) error {
	off := x.s8()
	kind := OwnedKind(x.u8())
	h := x.m.heap
	src := x.p.Stack.Access2(x.bp(off))

	var dup uint16
	var err error
	switch kind {
	case OwnedString:
		dup = h.DuplicateString(src)
	case OwnedStringList:
		if l := h.List(src); l != nil {
			dup = h.AddList(h.CopyStringList(l))
		} else {
			x.warn("invalid src list passed to slist copy", "list", src)
		}
	case OwnedList:
		if l := h.List(src); l != nil {
			dup = h.AddList(l.Copy())
		} else {
			x.warn("invalid src list passed to list copy", "list", src)
		}
	default:
		err = NewRuntimeError(ErrorBadOperand, "invalid param pid change type %d", kind)
	}
	x.p.Stack.Assign2(x.bp(off), dup)
	x.p.Own(dup, kind)
	return err
}
