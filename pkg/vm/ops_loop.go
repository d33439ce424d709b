package vm

import "github.com/zurustar/ucvm/pkg/opcode"

// maxLoopScript is the longest loopscript a search can carry.
const maxLoopScript = 0x20

// Search loops keep their state in an area reserved on the operand stack.
// From SP upwards: item list handle, index into the list, the bp offset of
// the loop variable, the loopscript length, the loopscript, filler. The
// area has the ruleset's size for the search type.

func init() {
	register(opcode.Loop, opLoop)
	register(opcode.LoopNext, opLoopNext)
	register(opcode.LoopScript, func(x *exec) error {
		x.p.Stack.Push1(x.u8())
		return nil
	})
	register(opcode.Foreach, opForeach)
	register(opcode.ForeachString, opForeach)
}

// opLoop pops the search arguments and the loopscript, runs the search and
// lays out the loop area, then fetches the first item.
func opLoop(x *exec) error {
	slot := int16(x.s8())
	scriptSize := int(x.u8())
	searchType := x.u8()
	a := x.p.Stack.Pop2()
	b := x.p.Stack.Pop2()
	if scriptSize > maxLoopScript {
		return NewRuntimeError(ErrorLoopScript, "loopscript too long (%d bytes)", scriptSize)
	}
	script := x.p.Stack.Pop(scriptSize)

	q := SearchQuery{Script: script}
	var origin uint16
	switch searchType {
	case 2, 3:
		q.Kind = SearchArea
		q.Recurse = searchType == 3
		q.Item = a
		q.Range = x.m.ruleset.SearchRange(b)
		origin = a
	case 4, 5:
		q.Kind = SearchContainer
		q.Recurse = searchType == 5
		q.Item = b
		origin = b
		if a != 0xFFFF {
			x.warn("non-FFFF value passed to container search", "value", a)
		}
	case 6:
		q.Kind = SearchSurface
		q.Above = a != 0xFFFF
		q.Below = b != 0xFFFF
		q.Item = a
		if q.Below {
			q.Item = b
		}
		origin = q.Item
	default:
		return NewRuntimeError(ErrorBadOperand, "unhandled search type %d", searchType)
	}

	items := NewList(2)
	switch {
	case x.m.world == nil:
		x.warn("search without a world", "search", q.Kind)
	case !x.m.world.ItemExists(origin):
		x.warn("invalid item passed to search", "search", q.Kind, "item", origin)
	default:
		ids, err := x.m.world.Search(q)
		if err != nil {
			x.warn("search failed", "search", q.Kind, "error", err)
		}
		for _, id := range ids {
			items.AppendUint16(id)
		}
	}

	st := x.p.Stack
	size := x.m.ruleset.LoopAreaSize(q.Kind, q.Recurse)
	st.Push0(size - scriptSize - 8)
	st.Push(script)
	st.Push2(uint16(scriptSize))
	st.Push2(uint16(slot))
	st.Push2(0)
	st.Push2(x.m.heap.AddList(items))
	return opLoopNext(x)
}

// opLoopNext stores the next live item of the loop list in the loop
// variable and pushes 1, or frees the list and pushes 0 when none is left.
func opLoopNext(x *exec) error {
	st := x.p.Stack
	sp := st.SP()
	handle := st.Access2(sp)
	index := int(st.Access2(sp + 2))
	slot := int8(int16(st.Access2(sp + 4)))
	items := x.m.heap.List(handle)
	if items == nil {
		return NewMissingListError("loopnext", handle)
	}

	valid := false
	for ; index < items.Len(); index++ {
		id := items.Uint16(index)
		st.Assign2(x.bp(slot), id)
		if x.m.world != nil && x.m.world.ItemExists(id) {
			valid = true
			break
		}
	}
	if !valid {
		st.Push2(0)
		x.m.heap.FreeList(handle)
		return nil
	}
	st.Push2(1)
	st.Assign2(sp+2, uint16(index+1))
	return nil
}

// opForeach advances a (index, list) pair left on the stack, starting
// from 0xFFFF. Each iteration copies the next element into bp+xx; strings
// are not duplicated. When the list is exhausted it is freed, the pair is
// popped and execution jumps past the loop.
func opForeach(x *exec) error {
	slot := x.s8()
	size := int(x.u8())
	rel := x.s16()
	if x.op == opcode.ForeachString && size != 2 {
		return NewRuntimeError(ErrorBadOperand, "foreach over string list with element size %d", size)
	}

	st := x.p.Stack
	sp := st.SP()
	index := st.Access2(sp)
	handle := st.Access2(sp + 2)
	if index == 0xFFFF {
		index = 0
	} else {
		index++
	}

	l := x.m.heap.List(handle)
	if l == nil {
		x.warn("foreach over invalid list", "list", handle)
	} else if x.op == opcode.ForeachString {
		l.MarkStrings()
	}
	if l == nil || int(index) >= l.Len() {
		if x.op == opcode.ForeachString {
			x.m.heap.FreeStringList(handle)
		} else {
			x.m.heap.FreeList(handle)
		}
		st.AddSP(4)
		x.pc = int(uint16(x.pc + int(rel)))
		return nil
	}
	st.Assign2(sp, index)
	e := make([]byte, size)
	copy(e, l.Element(int(index)))
	st.Assign(x.bp(slot), e)
	return nil
}
