package vm

// ProcessFlags is the status word of a process.
type ProcessFlags uint32

const (
	FlagActive ProcessFlags = 1 << iota
	FlagSuspended
	FlagTerminated
	FlagTermDeferred
)

// OwnedKind says how a handle owned by a process is released.
type OwnedKind uint8

const (
	OwnedString     OwnedKind = 1
	OwnedStringList OwnedKind = 2
	OwnedList       OwnedKind = 3
)

type ownedHandle struct {
	handle uint16
	kind   OwnedKind
}

// noFrame marks the return class and address of a process's outermost
// call frame.
const noFrame = 0xFFFF

// Process is a usecode process: a call stack executing class code.
// The scheduler owns its lifecycle; the machine mutates it while running.
type Process struct {
	PID     uint16
	ItemNum uint16
	Type    uint16
	ClassID uint16
	IP      uint16
	BP      uint16
	Stack   *Stack
	// Temp32 receives intrinsic and call results.
	Temp32 uint32
	// Result is handed to processes waiting for this one.
	Result uint32
	Flags  ProcessFlags
	// Waiting lists the processes suspended until this one terminates.
	Waiting []uint16

	owned []ownedHandle
}

func newProcess(stackSize int) *Process {
	return &Process{
		ClassID: noFrame,
		IP:      noFrame,
		Stack:   NewStack(stackSize),
		Flags:   FlagActive,
	}
}

// Suspended reports whether the process is waiting.
func (p *Process) Suspended() bool { return p.Flags&FlagSuspended != 0 }

// Suspend marks the process as waiting.
func (p *Process) Suspend() { p.Flags |= FlagSuspended }

// Wake clears the waiting state.
func (p *Process) Wake() { p.Flags &^= FlagSuspended }

// Terminated reports whether the process has finished or is about to.
func (p *Process) Terminated() bool {
	return p.Flags&(FlagTerminated|FlagTermDeferred) != 0
}

// TerminateDeferred marks the process for termination without releasing
// anything, so the current slice can finish and a pending result is kept.
func (p *Process) TerminateDeferred() { p.Flags |= FlagTermDeferred }

// Own registers handle to be released when the process terminates.
func (p *Process) Own(handle uint16, kind OwnedKind) {
	if handle == 0 {
		return
	}
	p.owned = append(p.owned, ownedHandle{handle: handle, kind: kind})
}

// Owned returns the number of handles the process will release.
func (p *Process) Owned() int { return len(p.owned) }

// ReleaseOwned frees every handle registered with Own.
func (p *Process) ReleaseOwned(h *Heap) {
	for _, o := range p.owned {
		switch o.kind {
		case OwnedString:
			h.FreeString(o.handle)
		case OwnedStringList:
			h.FreeStringList(o.handle)
		case OwnedList:
			h.FreeList(o.handle)
		}
	}
	p.owned = nil
}

// call pushes a frame returning to the current position and enters
// classID at offset.
func (p *Process) call(classID, offset uint16) {
	p.Stack.Push2(p.ClassID) // BP+04 prev class
	p.Stack.Push2(p.IP)      // BP+02 prev IP
	p.Stack.Push2(p.BP)      // BP+00 prev BP
	p.ClassID = classID
	p.IP = offset
	p.BP = uint16(p.Stack.SP())
}

// ret unwinds one frame. It reports true when the outermost frame was
// left and the process has nothing to return to.
func (p *Process) ret() bool {
	p.Stack.SetSP(int(p.BP))
	p.BP = p.Stack.Pop2()
	p.IP = p.Stack.Pop2()
	p.ClassID = p.Stack.Pop2()
	return p.IP == noFrame && p.ClassID == noFrame
}
