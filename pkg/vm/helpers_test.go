package vm

import (
	"testing"

	"github.com/zurustar/ucvm/pkg/logger"
)

var testLogger = logger.Discard()

// testCode is an in-memory Usecode. events maps (class, event) to an
// offset for rulesets that call by event number.
type testCode struct {
	classes map[uint16][]byte
	events  map[[2]uint16]uint16
}

func (c *testCode) Code(classID uint16) []byte { return c.classes[classID] }

func (c *testCode) ClassEvent(classID, event uint16) uint16 {
	return c.events[[2]uint16{classID, event}]
}

// testSched is a process table that runs spawned processes immediately
// and never reaps them.
type testSched struct {
	m     *Machine
	procs map[uint16]*Process
	next  uint16
}

func (s *testSched) Process(pid uint16) *Process { return s.procs[pid] }

func (s *testSched) AssignPID(p *Process) uint16 {
	s.next++
	s.procs[s.next] = p
	return s.next
}

func (s *testSched) RunNow(p *Process) uint16 {
	s.m.Run(p)
	return p.PID
}

func (s *testSched) CountProcesses(item, typ uint16) int {
	n := 0
	for _, p := range s.procs {
		if !p.Terminated() && p.ItemNum == item && p.Type == typ {
			n++
		}
	}
	return n
}

func (s *testSched) WaitFor(waiter *Process, pid uint16) bool {
	target := s.procs[pid]
	if target == nil || target.Terminated() {
		return false
	}
	target.Waiting = append(target.Waiting, waiter.PID)
	waiter.Suspend()
	return true
}

// testWorld answers every search with result.
type testWorld struct {
	items  map[uint16]bool
	result []uint16
	query  SearchQuery
}

func (w *testWorld) ItemExists(id uint16) bool { return w.items[id] }

func (w *testWorld) Search(q SearchQuery) ([]uint16, error) {
	w.query = q
	return w.result, nil
}

// newTestMachine builds a machine running class 1 = code with a testSched
// attached.
func newTestMachine(t *testing.T, code []byte, opts ...Option) (*Machine, *testSched) {
	t.Helper()
	uc := &testCode{classes: map[uint16][]byte{1: code}}
	return newTestMachineFor(t, uc, opts...)
}

func newTestMachineFor(t *testing.T, uc *testCode, opts ...Option) (*Machine, *testSched) {
	t.Helper()
	s := &testSched{procs: make(map[uint16]*Process)}
	opts = append([]Option{WithLogger(testLogger), WithScheduler(s)}, opts...)
	m := New(uc, opts...)
	s.m = m
	return m, s
}

// start creates a process at class:offset or fails the test.
func start(t *testing.T, m *Machine, class, offset uint16) *Process {
	t.Helper()
	p, err := m.NewProcess(class, offset, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	return p
}
