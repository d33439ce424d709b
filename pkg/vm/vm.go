// Package vm provides the virtual machine for executing usecode.
// It implements:
// - The per-process stack machine and instruction dispatcher
// - The string and list heap with recycled handles
// - The packed global variable store
// - Segmented pointers across process stacks, globals and objects
// - Persistence of the global, string and list tables
package vm

import (
	"encoding/binary"
	"log/slog"
	"math/rand/v2"

	"github.com/zurustar/ucvm/pkg/logger"
)

// Machine executes usecode processes. It owns the heap and the global
// store, which are shared by every process it runs. A Machine is not safe
// for concurrent use; the scheduler runs one process at a time.
type Machine struct {
	code    Usecode
	ruleset Ruleset
	globals GlobalStore
	heap    *Heap

	intrinsics []Intrinsic

	sched Scheduler
	world World
	rand  Random

	stackSize  int
	avatarName string

	// Tracing
	trace        bool
	tracePIDs    map[uint16]bool
	traceClasses map[uint16]bool

	log *slog.Logger
}

// Option is a functional option for configuring the Machine.
type Option func(*Machine)

// WithRuleset selects the game variant.
func WithRuleset(r Ruleset) Option {
	return func(m *Machine) {
		m.ruleset = r
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Machine) {
		m.log = log
	}
}

// WithIntrinsics installs the native function table. The table is copied.
func WithIntrinsics(table []Intrinsic) Option {
	return func(m *Machine) {
		m.intrinsics = append([]Intrinsic(nil), table...)
	}
}

// WithIntrinsic installs fn at index id, growing the table as needed.
func WithIntrinsic(id uint16, fn Intrinsic) Option {
	return func(m *Machine) {
		if int(id) >= len(m.intrinsics) {
			m.intrinsics = append(m.intrinsics, make([]Intrinsic, int(id)+1-len(m.intrinsics))...)
		}
		m.intrinsics[id] = fn
	}
}

// WithScheduler sets the process table the machine spawns into and
// resolves stack pointers against.
func WithScheduler(s Scheduler) Option {
	return func(m *Machine) {
		m.sched = s
	}
}

// WithWorld sets the world consulted by loop instructions.
func WithWorld(w World) Option {
	return func(m *Machine) {
		m.world = w
	}
}

// WithRandom sets the random source of the built-in intrinsics.
func WithRandom(r Random) Option {
	return func(m *Machine) {
		m.rand = r
	}
}

// WithStackSize sets the stack capacity of new processes.
func WithStackSize(n int) Option {
	return func(m *Machine) {
		m.stackSize = n
	}
}

// WithAvatarName sets the name returned by IntrinsicGetName.
func WithAvatarName(name string) Option {
	return func(m *Machine) {
		m.avatarName = name
	}
}

// WithTrace enables per-instruction debug logging. Empty pid and class
// sets trace every process.
func WithTrace(pids, classes []uint16) Option {
	return func(m *Machine) {
		m.trace = true
		m.tracePIDs = make(map[uint16]bool, len(pids))
		for _, pid := range pids {
			m.tracePIDs[pid] = true
		}
		m.traceClasses = make(map[uint16]bool, len(classes))
		for _, c := range classes {
			m.traceClasses[c] = true
		}
	}
}

// New creates a Machine running code and resets it.
func New(code Usecode, opts ...Option) *Machine {
	m := &Machine{
		code:      code,
		ruleset:   RulesetU8,
		stackSize: DefaultStackSize,
		log:       logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.stackSize <= 0 || m.stackSize > 0x10000 {
		m.stackSize = DefaultStackSize
	}
	if m.rand == nil {
		m.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	m.globals = m.ruleset.NewGlobals()
	m.heap = NewHeap(m.log)
	m.Reset()
	return m
}

// Reset clears the heap and the global store and seeds the avatar global.
func (m *Machine) Reset() {
	m.log.Debug("resetting usecode machine", "ruleset", m.ruleset)
	m.heap.Reset()
	m.globals.Reset()
	if pos, width, ok := m.ruleset.AvatarGlobal(); ok {
		m.globals.Set(pos, width, 1)
	}
}

// Ruleset returns the game variant the machine was built for.
func (m *Machine) Ruleset() Ruleset { return m.ruleset }

// Globals returns the global store.
func (m *Machine) Globals() GlobalStore { return m.globals }

// Heap returns the string and list heap.
func (m *Machine) Heap() *Heap { return m.heap }

// SetScheduler attaches the process table after construction. The kernel
// uses it when it is created around an existing machine.
func (m *Machine) SetScheduler(s Scheduler) { m.sched = s }

// Logger returns the machine's logger.
func (m *Machine) Logger() *slog.Logger { return m.log }

// Stats describes heap usage.
type Stats struct {
	Strings     int
	Lists       int
	MaxHandles  int
	GlobalsSize uint
}

// Stats reports heap usage.
func (m *Machine) Stats() Stats {
	s, l := m.heap.Stats()
	return Stats{
		Strings:     s,
		Lists:       l,
		MaxHandles:  MaxHandle - MinHandle + 1,
		GlobalsSize: m.globals.Size(),
	}
}

// NewProcess creates a process that will run classID from offset. If this
// is non-zero and thisSize positive, thisSize bytes are copied from the
// location this points at into the new stack and a pointer to the copy is
// passed after args. The process gets its id from the scheduler only once
// its stack is laid out; the pointer to the copy is patched in then.
func (m *Machine) NewProcess(classID, offset uint16, this Pointer, thisSize int, args []byte) (*Process, error) {
	if m.code == nil || m.code.Code(classID) == nil {
		m.log.Warn("process started in unknown class", "class", classID, "offset", offset)
	}
	var thisData []byte
	if this != 0 && thisSize > 0 {
		data, err := m.Dereference(this, thisSize)
		if err != nil && IsFatalError(err) {
			return nil, err
		}
		thisData = data
	}
	if need := max(thisSize, 0) + len(args) + 4 + 6; need > m.stackSize {
		return nil, NewRuntimeError(ErrorStackFault, "process arguments of %d bytes exceed stack of %d bytes", need, m.stackSize)
	}

	p := newProcess(m.stackSize)
	var thisCopy int
	if thisData != nil {
		p.Stack.Push(thisData)
		thisCopy = p.Stack.SP()
		if thisSize >= 2 {
			p.ItemNum = binary.LittleEndian.Uint16(thisData)
		}
	}
	p.Stack.Push(args)
	thisPtr := -1
	if thisSize > 0 {
		p.Stack.Push4(0)
		thisPtr = p.Stack.SP()
	}
	p.call(classID, offset)
	if err := p.Stack.Err(); err != nil {
		return nil, err
	}

	if m.sched != nil {
		p.PID = m.sched.AssignPID(p)
	}
	if thisPtr >= 0 {
		p.Stack.Assign4(thisPtr, uint32(StackPtr(p.PID, uint16(thisCopy))))
	}
	return p, nil
}

// tracing reports whether instructions of p are logged.
func (m *Machine) tracing(p *Process) bool {
	if !m.trace {
		return false
	}
	if len(m.tracePIDs) == 0 && len(m.traceClasses) == 0 {
		return true
	}
	return m.tracePIDs[p.PID] || m.traceClasses[p.ClassID]
}
