package vm

import "github.com/zurustar/ucvm/pkg/opcode"

// Stack, frame and register moves.

func init() {
	register(opcode.PopByte, func(x *exec) error {
		off := x.s8()
		v := x.p.Stack.Pop2()
		x.p.Stack.Assign1(x.bp(off), uint8(v))
		return nil
	})
	register(opcode.Pop, func(x *exec) error {
		off := x.s8()
		x.p.Stack.Assign2(x.bp(off), x.p.Stack.Pop2())
		return nil
	})
	register(opcode.PopDword, func(x *exec) error {
		off := x.s8()
		x.p.Stack.Assign4(x.bp(off), x.p.Stack.Pop4())
		return nil
	})
	register(opcode.PopHuge, func(x *exec) error {
		off := x.s8()
		size := int(x.u8())
		x.p.Stack.Assign(x.bp(off), x.p.Stack.Pop(size))
		return nil
	})
	register(opcode.PopResult, func(x *exec) error {
		x.p.Result = x.p.Stack.Pop4()
		return nil
	})

	register(opcode.PushSByte, func(x *exec) error {
		x.p.Stack.Push2(uint16(int16(x.s8())))
		return nil
	})
	register(opcode.PushWord, func(x *exec) error {
		x.p.Stack.Push2(x.u16())
		return nil
	})
	register(opcode.PushDword, func(x *exec) error {
		x.p.Stack.Push4(x.u32())
		return nil
	})

	register(opcode.PopTemp, func(x *exec) error {
		x.p.Temp32 = uint32(x.p.Stack.Pop2())
		return nil
	})
	register(opcode.PopTempDword, func(x *exec) error {
		x.p.Temp32 = x.p.Stack.Pop4()
		return nil
	})
	register(opcode.PushTempByte, func(x *exec) error {
		x.p.Stack.Push2(uint16(uint8(x.p.Temp32)))
		return nil
	})
	register(opcode.PushTemp, func(x *exec) error {
		x.p.Stack.Push2(uint16(x.p.Temp32))
		return nil
	})
	register(opcode.PushTempDword, func(x *exec) error {
		x.p.Stack.Push4(x.p.Temp32)
		return nil
	})
	register(opcode.PushResult, func(x *exec) error {
		x.p.Stack.Push4(x.p.Result)
		return nil
	})

	register(opcode.IntToLong, func(x *exec) error {
		x.p.Stack.Push4(uint32(int32(int16(x.p.Stack.Pop2()))))
		return nil
	})
	register(opcode.LongToInt, func(x *exec) error {
		x.p.Stack.Push2(uint16(x.p.Stack.Pop4()))
		return nil
	})

	register(opcode.PushVarByte, func(x *exec) error {
		off := x.s8()
		x.p.Stack.Push2(uint16(int16(int8(x.p.Stack.Access1(x.bp(off))))))
		return nil
	})
	register(opcode.PushVar, func(x *exec) error {
		off := x.s8()
		x.p.Stack.Push2(x.p.Stack.Access2(x.bp(off)))
		return nil
	})
	register(opcode.PushVarDword, func(x *exec) error {
		off := x.s8()
		x.p.Stack.Push4(x.p.Stack.Access4(x.bp(off)))
		return nil
	})
	register(opcode.PushHuge, func(x *exec) error {
		off := x.s8()
		size := int(x.u8())
		x.p.Stack.Push(x.p.Stack.Access(x.bp(off), size))
		return nil
	})

	register(opcode.PushPID, func(x *exec) error {
		x.p.Stack.Push2(x.p.PID)
		return nil
	})
	register(opcode.Init, func(x *exec) error {
		n := int(x.u8())
		if n&1 != 0 {
			n++
		}
		if n > 0 {
			x.p.Stack.Push0(n)
		}
		return nil
	})
	register(opcode.MoveSP, func(x *exec) error {
		x.p.Stack.AddSP(-int(x.s8()))
		return nil
	})

	register(opcode.LineNumber, func(x *exec) error {
		line := x.u16()
		if x.trace {
			x.m.log.Debug("line number", "pid", x.p.PID, "line", line)
		}
		return nil
	})
	register(opcode.SymbolInfo, func(x *exec) error {
		line := x.u16()
		name := cstring(x.bytes(9))
		if x.trace {
			x.m.log.Debug("line number", "pid", x.p.PID, "line", line, "name", name)
		}
		return nil
	})

	register(opcode.SetInfo, func(x *exec) error {
		x.p.ItemNum = x.p.Stack.Pop2()
		x.p.Type = x.p.Stack.Pop2()
		return nil
	})
	register(opcode.ProcessExcl, func(x *exec) error {
		if x.m.sched != nil && x.m.sched.CountProcesses(x.p.ItemNum, x.p.Type) > 1 {
			// another process already owns (item, type)
			x.p.TerminateDeferred()
		}
		return nil
	})
}

// cstring returns b up to its first NUL.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Globals and pointers.

func init() {
	register(opcode.PushGlobal, func(x *exec) error {
		pos := uint(x.u16())
		width := uint(x.u8())
		x.p.Stack.Push2(uint16(x.m.globals.Get(pos, width)))
		if !x.m.globals.Valid(pos, width) {
			return NewRuntimeError(ErrorGlobalWidth, "read of global [%04X %02X] outside store", pos, width)
		}
		return nil
	})
	register(opcode.PopGlobal, func(x *exec) error {
		pos := uint(x.u16())
		width := uint(x.u8())
		v := uint32(x.p.Stack.Pop2())
		if !x.m.globals.Valid(pos, width) {
			return NewRuntimeError(ErrorGlobalWidth, "write of global [%04X %02X] outside store", pos, width)
		}
		x.m.globals.Set(pos, width, v)
		if bits := x.m.ruleset.GlobalWidthBits(width); bits < 16 && v>>bits != 0 {
			x.warn("value popped into a global it doesn't fit in", "global", pos, "width", width, "value", v)
		}
		return nil
	})
	register(opcode.PushGlobalPtr, func(x *exec) error {
		x.p.Stack.Push4(uint32(GlobalPtr(x.u16())))
		return nil
	})

	register(opcode.PushAddr, func(x *exec) error {
		off := x.s8()
		x.p.Stack.Push4(uint32(StackPtr(x.p.PID, uint16(x.bp(off)))))
		return nil
	})
	register(opcode.PushAddrSP, func(x *exec) error {
		off := int(x.s8())
		x.p.Stack.Push4(uint32(StackPtr(x.p.PID, uint16(x.sp(-off)))))
		return nil
	})
	register(opcode.StrToPtr, func(x *exec) error {
		off := x.s8()
		x.p.Stack.Push4(uint32(StringPtr(x.p.Stack.Access2(x.bp(off)))))
		return nil
	})
	register(opcode.PopStrToPtr, func(x *exec) error {
		x.p.Stack.Push4(uint32(StringPtr(x.p.Stack.Pop2())))
		return nil
	})

	register(opcode.PushIndirect, func(x *exec) error {
		size := int(x.u8())
		ptr := Pointer(x.p.Stack.Pop4())
		data, err := x.m.Dereference(ptr, size)
		if err != nil && IsFatalError(err) {
			return err
		}
		x.p.Stack.Push(data)
		return err
	})
	register(opcode.PopIndirect, func(x *exec) error {
		size := int(x.u8())
		ptr := Pointer(x.p.Stack.Pop4())
		err := x.m.AssignPointer(ptr, x.p.Stack.Access(x.sp(0), size))
		if err != nil && IsFatalError(err) {
			return err
		}
		x.p.Stack.AddSP(size)
		return err
	})
}
