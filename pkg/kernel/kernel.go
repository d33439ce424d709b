// Package kernel provides the cooperative process scheduler that drives the
// usecode machine. It implements:
// - A process table with recycled process ids
// - Run-now spawning (a new process runs once before its spawner resumes)
// - Waiting with result handoff when the awaited process terminates
// - Two-phase termination that releases the heap handles a process owns
// - A tick loop with context cancellation
package kernel

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zurustar/ucvm/pkg/logger"
	"github.com/zurustar/ucvm/pkg/vm"
)

// ErrStalled is returned by Run when live processes remain but none of
// them can make progress.
var ErrStalled = errors.New("all processes are waiting")

// ErrTickLimit is returned by Run when the tick budget is exhausted.
var ErrTickLimit = errors.New("tick limit reached")

// Kernel is the process table. Processes run in the order they were
// added; a process added during a tick runs in the same tick.
type Kernel struct {
	m     *vm.Machine
	pids  *vm.IDMan
	procs map[uint16]*vm.Process
	order []uint16
	tick  uint32

	log *slog.Logger
}

// Option is a functional option for configuring the Kernel.
type Option func(*Kernel)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(k *Kernel) {
		k.log = log
	}
}

// New creates a Kernel and attaches it to m as its scheduler.
func New(m *vm.Machine, opts ...Option) *Kernel {
	k := &Kernel{
		m:     m,
		pids:  vm.NewIDMan(vm.SegStackFirst, vm.SegStackLast),
		procs: make(map[uint16]*vm.Process),
		log:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(k)
	}
	m.SetScheduler(k)
	return k
}

// Machine returns the machine the kernel drives.
func (k *Kernel) Machine() *vm.Machine { return k.m }

// Tick returns the number of ticks run so far.
func (k *Kernel) Tick() uint32 { return k.tick }

// Count returns the number of processes in the table.
func (k *Kernel) Count() int { return len(k.procs) }

// Process returns the process with the given id, or nil.
func (k *Kernel) Process(pid uint16) *vm.Process {
	return k.procs[pid]
}

// AssignPID gives p the lowest free process id and enters it in the table.
// It returns 0 when the table is full.
func (k *Kernel) AssignPID(p *vm.Process) uint16 {
	if p.PID != 0 && k.procs[p.PID] == p {
		return p.PID
	}
	pid := k.pids.Allocate()
	if pid == 0 {
		k.log.Error("process table full")
		return 0
	}
	p.PID = pid
	k.procs[pid] = p
	return pid
}

// Add queues p to run from the next scheduling point and returns its id.
func (k *Kernel) Add(p *vm.Process) uint16 {
	if k.AssignPID(p) == 0 {
		return 0
	}
	k.order = append(k.order, p.PID)
	k.log.Debug("process added", "pid", p.PID, "class", p.ClassID, "ip", p.IP)
	return p.PID
}

// RunNow queues p and runs it once immediately.
func (k *Kernel) RunNow(p *vm.Process) uint16 {
	pid := k.Add(p)
	if pid == 0 {
		return 0
	}
	k.run(p)
	return pid
}

// CountProcesses counts live processes bound to (item, typ). Item 0
// matches every item.
func (k *Kernel) CountProcesses(item, typ uint16) int {
	n := 0
	for _, p := range k.procs {
		if p.Terminated() {
			continue
		}
		if (item == 0 || p.ItemNum == item) && p.Type == typ {
			n++
		}
	}
	return n
}

// WaitFor suspends waiter until pid terminates.
func (k *Kernel) WaitFor(waiter *vm.Process, pid uint16) bool {
	target := k.procs[pid]
	if target == nil || target.Flags&vm.FlagTerminated != 0 {
		return false
	}
	target.Waiting = append(target.Waiting, waiter.PID)
	waiter.Suspend()
	return true
}

// Kill terminates pid immediately.
func (k *Kernel) Kill(pid uint16) bool {
	p := k.procs[pid]
	if p == nil {
		return false
	}
	k.terminate(p)
	return true
}

// terminate wakes the waiters of p with its result, releases the heap
// handles it owns and removes it from the table.
func (k *Kernel) terminate(p *vm.Process) {
	if p.Flags&vm.FlagTerminated != 0 {
		return
	}
	p.Flags |= vm.FlagTerminated
	for _, w := range p.Waiting {
		if wp := k.procs[w]; wp != nil {
			wp.Result = p.Result
			wp.Wake()
		}
	}
	p.Waiting = nil
	p.ReleaseOwned(k.m.Heap())
	delete(k.procs, p.PID)
	k.pids.Release(p.PID)
	k.log.Debug("process terminated", "pid", p.PID, "result", p.Result)
}

func (k *Kernel) run(p *vm.Process) vm.State {
	state := k.m.Run(p)
	if state == vm.StateErrored {
		k.log.Warn("process errored", "pid", p.PID, "class", p.ClassID, "ip", p.IP, "item", p.ItemNum)
	}
	return state
}

// RunTick gives every runnable process one slice and finishes the
// terminations deferred during the previous tick. It returns the number of
// processes that ran or finished.
func (k *Kernel) RunTick() int {
	k.tick++
	ran := 0
	// a pid released and reused within the tick appears twice in order
	seen := make(map[uint16]bool, len(k.order))
	for i := 0; i < len(k.order); i++ {
		pid := k.order[i]
		p := k.procs[pid]
		if p == nil || seen[pid] {
			continue
		}
		seen[pid] = true
		if p.Flags&vm.FlagTermDeferred != 0 {
			k.terminate(p)
			ran++
			continue
		}
		if p.Suspended() {
			continue
		}
		k.run(p)
		ran++
	}

	live := k.order[:0]
	clear(seen)
	for _, pid := range k.order {
		if k.procs[pid] != nil && !seen[pid] {
			seen[pid] = true
			live = append(live, pid)
		}
	}
	k.order = live
	return ran
}

// Run runs ticks until no process is left. It stops early when ctx is
// done, when maxTicks ticks have run (0 means no limit), or when every
// remaining process is waiting.
func (k *Kernel) Run(ctx context.Context, maxTicks uint32) error {
	start := k.tick
	for len(k.procs) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if maxTicks != 0 && k.tick-start >= maxTicks {
			return ErrTickLimit
		}
		if k.RunTick() == 0 && len(k.procs) > 0 {
			return ErrStalled
		}
	}
	return nil
}
