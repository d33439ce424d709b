package vm

import (
	"encoding/binary"
	"errors"

	"github.com/zurustar/ucvm/pkg/opcode"
)

// State is the outcome of running a process until it gives up control.
type State int

const (
	// StateCeded means the process suspended itself or is waiting.
	StateCeded State = iota
	// StateTerminated means the process returned from its outermost frame
	// or was marked for termination.
	StateTerminated
	// StateErrored means an instruction fault aborted the slice; the
	// process has been marked for termination.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateCeded:
		return "ceded"
	case StateTerminated:
		return "terminated"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// exec is the state of one Run call.
type exec struct {
	m *Machine
	p *Process

	code  []byte
	pc    int // next code byte
	start int // first byte of the current instruction
	op    opcode.Op

	cede        bool
	goUntilCede bool
	trace       bool

	err error // sticky code-read fault
}

type handler func(x *exec) error

// handlers is indexed by opcode. A nil entry is an unknown opcode, which is
// logged and skipped.
var handlers [256]handler

func register(op opcode.Op, h handler) {
	handlers[op] = h
}

// Run executes p until it cedes, terminates or faults. It is the single
// entry point the scheduler drives each tick.
func (m *Machine) Run(p *Process) State {
	x := &exec{m: m, p: p, trace: m.tracing(p)}
	if x.trace {
		m.log.Debug("running process", x.attrs()...)
	}
	if err := x.load(); err != nil {
		return x.fail(err)
	}
	x.pc = int(p.IP)

	for !x.cede && !p.Terminated() {
		x.start = x.pc
		x.op = opcode.Op(x.u8())
		if x.err != nil {
			return x.fail(x.err)
		}
		if x.trace {
			x.traceOp()
		}

		var err error
		if h := handlers[x.op]; h != nil {
			err = h(x)
		} else {
			x.warn("unhandled opcode", "opcode", byte(x.op))
		}
		if err == nil {
			err = x.err
		}
		if err == nil {
			err = p.Stack.Err()
		}
		if err != nil {
			if IsFatalError(err) {
				return x.fail(err)
			}
			x.report(err)
		}

		p.IP = uint16(x.pc) // truncates
		if p.Suspended() && !x.goUntilCede {
			x.cede = true
		}
	}
	if p.Terminated() {
		return StateTerminated
	}
	return StateCeded
}

// load fetches the code of the process's current class.
func (x *exec) load() error {
	var code []byte
	if x.m.code != nil {
		code = x.m.code.Code(x.p.ClassID)
	}
	if code == nil {
		return NewRuntimeError(ErrorCodeFault, "class %04X does not exist", x.p.ClassID)
	}
	x.code = code
	return nil
}

// jump moves execution to p.ClassID:p.IP after a call or return.
func (x *exec) jump() error {
	if err := x.load(); err != nil {
		return err
	}
	x.pc = int(x.p.IP)
	return nil
}

// fail aborts the slice. The instruction pointer is left at the start of
// the faulting instruction.
func (x *exec) fail(err error) State {
	var re *RuntimeError
	if errors.As(err, &re) {
		re.at(x.p)
	}
	x.m.log.Error("process caused an error, killing process",
		append(x.attrs(), "opcode", x.op.String(), "error", err)...)
	x.p.Stack.ClearErr()
	x.p.TerminateDeferred()
	return StateErrored
}

// report logs a recoverable error.
func (x *exec) report(err error) {
	var re *RuntimeError
	if errors.As(err, &re) {
		re.at(x.p)
		x.m.log.Warn(re.Message, append(x.attrs(), "type", re.Type)...)
		return
	}
	x.m.log.Warn(err.Error(), x.attrs()...)
}

// warn logs a recoverable condition with the location of the current
// instruction.
func (x *exec) warn(msg string, args ...any) {
	x.m.log.Warn(msg, append(x.attrs(), args...)...)
}

func (x *exec) attrs() []any {
	return []any{"pid", x.p.PID, "class", x.p.ClassID, "ip", x.start, "item", x.p.ItemNum}
}

func (x *exec) traceOp() {
	in, err := opcode.Decode(x.code, x.start)
	if err != nil {
		x.m.log.Debug("trace", "pid", x.p.PID, "sp", x.p.Stack.SP(), "error", err)
		return
	}
	x.m.log.Debug("trace", "pid", x.p.PID, "class", x.p.ClassID, "sp", x.p.Stack.SP(), "op", in.String())
}

// Code reading. Reading past the end of the class records a fault and
// yields zeros.

func (x *exec) bytes(n int) []byte {
	if x.pc+n > len(x.code) {
		if x.err == nil {
			x.err = NewRuntimeError(ErrorCodeFault, "read of %d bytes at %04X past end of class (%d bytes)", n, x.pc, len(x.code))
		}
		x.pc = len(x.code)
		return make([]byte, n)
	}
	b := x.code[x.pc : x.pc+n]
	x.pc += n
	return b
}

func (x *exec) u8() uint8   { return x.bytes(1)[0] }
func (x *exec) s8() int8    { return int8(x.u8()) }
func (x *exec) u16() uint16 { return binary.LittleEndian.Uint16(x.bytes(2)) }
func (x *exec) s16() int16  { return int16(x.u16()) }
func (x *exec) u32() uint32 { return binary.LittleEndian.Uint32(x.bytes(4)) }

// bp returns the absolute stack offset of bp+off.
func (x *exec) bp(off int8) int { return int(x.p.BP) + int(off) }

// sp returns the absolute stack offset of sp+off.
func (x *exec) sp(off int) int { return x.p.Stack.SP() + off }

func boolWord(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
