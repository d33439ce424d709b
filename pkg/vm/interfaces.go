package vm

// Scheduler is the process table the machine runs under. The machine never
// creates, schedules or destroys processes on its own; it asks the
// scheduler.
type Scheduler interface {
	// Process returns the live usecode process with the given id, or nil.
	Process(pid uint16) *Process
	// AssignPID gives p a process id before it is loaded.
	AssignPID(p *Process) uint16
	// RunNow queues p and runs it once immediately, before control returns
	// to the spawning process. It returns p's id.
	RunNow(p *Process) uint16
	// CountProcesses counts live processes bound to (item, typ).
	CountProcesses(item, typ uint16) int
	// WaitFor suspends waiter until the process pid terminates. It reports
	// false if pid names no live process.
	WaitFor(waiter *Process, pid uint16) bool
}

// SearchKind selects the spatial query a loop instruction performs.
type SearchKind int

const (
	SearchArea SearchKind = iota
	SearchContainer
	SearchSurface
)

func (k SearchKind) String() string {
	switch k {
	case SearchArea:
		return "area"
	case SearchContainer:
		return "container"
	case SearchSurface:
		return "surface"
	default:
		return "unknown"
	}
}

// SearchQuery describes a spatial search. Script is the loopscript that
// filters candidates, in stack order.
type SearchQuery struct {
	Kind    SearchKind
	Script  []byte
	Item    uint16 // origin item, container, or surface item
	Range   uint16
	Recurse bool
	Above   bool
	Below   bool
}

// World is the game-world model the machine consults.
type World interface {
	// ItemExists reports whether id names a live entity.
	ItemExists(id uint16) bool
	// Search returns the ids of the items matching q.
	Search(q SearchQuery) ([]uint16, error)
}

// Usecode gives access to compiled class code.
type Usecode interface {
	// Code returns the code of a class starting at its base offset, or nil
	// if the class does not exist.
	Code(classID uint16) []byte
	// ClassEvent translates an event number into a code offset.
	ClassEvent(classID, event uint16) uint16
}

// Random is the random source used by the built-in intrinsics.
// *math/rand/v2.Rand satisfies it.
type Random interface {
	IntN(n int) int
}
