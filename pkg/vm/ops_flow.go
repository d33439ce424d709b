package vm

import "github.com/zurustar/ucvm/pkg/opcode"

// Calls, jumps and process control.

func init() {
	register(opcode.CallIntrinsic, opCallIntrinsic)
	register(opcode.Call, func(x *exec) error {
		class := x.u16()
		offset := x.u16()
		if x.m.ruleset.EventCalls() {
			offset = x.m.code.ClassEvent(class, offset)
		}
		x.p.IP = uint16(x.pc) // truncates
		x.p.call(class, offset)
		if err := x.p.Stack.Err(); err != nil {
			return err
		}
		return x.jump()
	})
	register(opcode.Ret, func(x *exec) error {
		if x.p.ret() {
			// The result may still be collected by a waiting process, so
			// the process is only marked.
			x.p.TerminateDeferred()
			return nil
		}
		if err := x.p.Stack.Err(); err != nil {
			return err
		}
		return x.jump()
	})
	register(opcode.Jne, func(x *exec) error {
		rel := x.s16()
		if x.p.Stack.Pop2() == 0 {
			x.pc = int(uint16(x.pc + int(rel)))
		}
		return nil
	})
	register(opcode.Jmp, func(x *exec) error {
		rel := x.s16()
		x.pc = int(uint16(x.pc + int(rel)))
		return nil
	})
	register(opcode.Suspend, func(x *exec) error {
		x.goUntilCede = false
		x.cede = true
		return nil
	})
	register(opcode.Implies, opImplies)
	register(opcode.Spawn, opSpawn)
	register(opcode.SpawnInline, opSpawnInline)
	register(opcode.End, func(x *exec) error {
		return NewRuntimeError(ErrorEndOfFunction, "end of function opcode %02X reached", byte(x.op))
	})
}

// opCallIntrinsic calls a native function with the argument bytes on top
// of the stack. The arguments stay on the stack.
func opCallIntrinsic(x *exec) error {
	argBytes := int(x.u8())
	id := x.u16()
	args := x.p.Stack.Access(x.sp(0), argBytes)
	fn := x.m.intrinsic(id)
	if fn == nil {
		x.p.Temp32 = 0
		if argBytes >= 4 {
			a := x.m.NewArgs(args)
			if item := a.ObjID(); x.m.world != nil && x.m.world.ItemExists(item) {
				return NewRuntimeError(ErrorUnknownIntrinsic, "unhandled intrinsic %04X called (item %d + %d bytes)", id, item, argBytes-4)
			}
		}
		return NewRuntimeError(ErrorUnknownIntrinsic, "unhandled intrinsic %04X called (%d bytes)", id, argBytes)
	}
	x.p.Temp32 = fn(x.m, args)
	return nil
}

// opImplies pops pids a and b and makes b wait for a. The current slice
// keeps running until it cedes on its own, since b may be this process
// and its pops have already happened.
func opImplies(x *exec) error {
	x.u16() // process counts, always 01 01
	a := x.p.Stack.Pop2()
	b := x.p.Stack.Pop2()
	x.p.Stack.Push2(a)

	var procA, procB *Process
	if x.m.sched != nil {
		procA = x.m.sched.Process(a)
		procB = x.m.sched.Process(b)
	}
	if procA != nil && procB != nil {
		x.m.sched.WaitFor(procB, a)
		x.goUntilCede = true
		return nil
	}
	x.warn("non-existent process in implies", "a", a, "b", b)
	// pid 0 names nobody and is tolerated
	if (a != 0 && procA == nil) || (b != 0 && procB == nil) {
		return NewRuntimeError(ErrorUnknownProcess, "non-existent process in implies (%d, %d)", a, b)
	}
	return nil
}

// opSpawn starts a process with a copy of the argument bytes on top of the
// stack. The new process runs once before this one continues; its pid is
// left in the temp register.
func opSpawn(x *exec) error {
	argBytes := int(x.u8())
	thisSize := int(x.u8())
	class := x.u16()
	offset := x.u16()
	this := Pointer(x.p.Stack.Pop4())
	if x.m.ruleset.EventCalls() {
		offset = x.m.code.ClassEvent(class, offset)
	}
	if x.m.sched == nil {
		return NewRuntimeError(ErrorUnknownProcess, "spawn of %04X:%04X without a scheduler", class, offset)
	}
	args := x.p.Stack.Access(x.sp(0), argBytes)
	np, err := x.m.NewProcess(class, offset, this, thisSize, args)
	if err != nil {
		return err
	}
	x.p.Temp32 = uint32(x.m.sched.RunNow(np))
	if x.trace {
		x.m.log.Debug("(still) running process", x.attrs()...)
	}
	return nil
}

// opSpawnInline starts a process running code inside the current
// function, passing this process's 'this' pointer. The new pid is pushed.
func opSpawnInline(x *exec) error {
	class := x.u16()
	offset := x.u16()
	delta := x.u16()
	thisSize := int(x.u8())
	x.u8() // unused by the compiler
	if x.m.ruleset.EventCalls() {
		x.warn("inline spawn outside of u8 usecode", "ruleset", x.m.ruleset)
	}
	if x.m.sched == nil {
		return NewRuntimeError(ErrorUnknownProcess, "inline spawn of %04X:%04X without a scheduler", class, offset+delta)
	}
	var this Pointer
	if thisSize > 0 {
		this = Pointer(x.p.Stack.Access4(x.bp(6)))
	}
	np, err := x.m.NewProcess(class, offset+delta, this, thisSize, nil)
	if err != nil {
		return err
	}
	x.p.Stack.Push2(x.m.sched.RunNow(np))
	if x.trace {
		x.m.log.Debug("(still) running process", x.attrs()...)
	}
	return nil
}
