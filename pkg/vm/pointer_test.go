package vm

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		p    Pointer
		want Ref
	}{
		{"stack", 0x0003_0FF0, StackRef{PID: 3, Offset: 0x0FF0}},
		{"last stack", 0x7FFE_0000, StackRef{PID: 0x7FFE}},
		{"string", 0x8000_0005, StringRef{Handle: 5}},
		{"list", 0x8001_0006, ListRef{Handle: 6}},
		{"object", 0x8002_0007, ObjectRef{ID: 7}},
		{"global", 0x8003_0010, GlobalRef{Offset: 0x10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.p)
			if err != nil {
				t.Fatalf("Decode(%s): %v", tt.p, err)
			}
			if got != tt.want {
				t.Errorf("Decode(%s) = %#v, want %#v", tt.p, got, tt.want)
			}
			if got.Pointer() != tt.p {
				t.Errorf("round trip = %s", got.Pointer())
			}
		})
	}

	for _, p := range []Pointer{0x0000_0001, 0x7FFF_0000, 0x8004_0000, 0xFFFF_FFFF} {
		var re *RuntimeError
		if _, err := Decode(p); !errors.As(err, &re) || re.Type != ErrorBadSegment {
			t.Errorf("Decode(%s) error = %v", p, err)
		}
	}
}

func TestDereference(t *testing.T) {
	m, s := newTestMachine(t, []byte{0x50})
	p := start(t, m, 1, 0)
	p.Stack.Push2(0xBEEF)
	at := uint16(p.Stack.SP())

	t.Run("live stack", func(t *testing.T) {
		data, err := m.Dereference(StackPtr(p.PID, at), 2)
		if err != nil || data[0] != 0xEF || data[1] != 0xBE {
			t.Errorf("Dereference = %x, %v", data, err)
		}
		if got := m.PtrToObject(StackPtr(p.PID, at)); got != 0xBEEF {
			t.Errorf("PtrToObject = %#x", got)
		}
	})

	t.Run("past end of stack", func(t *testing.T) {
		_, err := m.Dereference(StackPtr(p.PID, uint16(p.Stack.Capacity()-1)), 2)
		if !IsFatalError(err) {
			t.Errorf("err = %v, want stack fault", err)
		}
	})

	t.Run("dead process", func(t *testing.T) {
		_, err := m.Dereference(StackPtr(9, 0), 2)
		var re *RuntimeError
		if !errors.As(err, &re) || re.Type != ErrorDeadProcess {
			t.Errorf("err = %v, want dead process", err)
		}
		p.Flags |= FlagTerminated
		defer func() { p.Flags &^= FlagTerminated }()
		if _, err := m.Dereference(StackPtr(p.PID, at), 2); err == nil {
			t.Error("read through a terminated process succeeded")
		}
		if got := m.PtrToObject(StackPtr(p.PID, at)); got != 0 {
			t.Errorf("PtrToObject of dead stack = %d", got)
		}
	})

	t.Run("object", func(t *testing.T) {
		data, err := m.Dereference(ObjectPtr(0x1234), 2)
		if err != nil || data[0] != 0x34 || data[1] != 0x12 {
			t.Errorf("Dereference = %x, %v", data, err)
		}
		if _, err := m.Dereference(ObjectPtr(1), 4); !IsFatalError(err) {
			t.Errorf("4-byte object read: %v", err)
		}
	})

	t.Run("string", func(t *testing.T) {
		if _, err := m.Dereference(StringPtr(1), 2); err == nil {
			t.Error("string pointer dereferenced")
		}
		if got := m.PtrToObject(StringPtr(7)); got != 7 {
			t.Errorf("PtrToObject = %d", got)
		}
	})

	if len(s.procs) != 1 {
		t.Errorf("dereference created processes: %d", len(s.procs))
	}
}

func TestGlobalPointers(t *testing.T) {
	m, _ := newTestMachine(t, []byte{0x50}, WithRuleset(RulesetRemorse))

	if err := m.AssignPointer(GlobalPtr(0x20), []byte{0x05, 0x01}); err != nil {
		t.Fatalf("AssignPointer: %v", err)
	}
	if got := m.Globals().Get(0x20, 2); got != 0x105 {
		t.Errorf("global = %#x, want 0x105", got)
	}
	data, err := m.Dereference(GlobalPtr(0x20), 1)
	if err != nil || data[0] != 0x05 {
		t.Errorf("Dereference = %x, %v", data, err)
	}

	data, err = m.Dereference(GlobalPtr(0x20), 4)
	if err == nil || IsFatalError(err) {
		t.Errorf("4-byte global read: %v, want non-fatal error", err)
	}
	if len(data) != 4 || data[0] != 0 {
		t.Errorf("4-byte global read returned %x, want zeros", data)
	}

	if got := m.PtrToObject(GlobalPtr(0x20)); got != 0x105 {
		t.Errorf("PtrToObject = %#x", got)
	}
	if err := m.AssignPointer(ObjectPtr(3), []byte{1, 0}); !IsFatalError(err) {
		t.Errorf("assignment through object pointer: %v", err)
	}
}

func TestRuntimeError(t *testing.T) {
	err := NewDivisionByZeroError("0x20")
	if err.IsFatal() || IsFatalError(err) {
		t.Error("division by zero is fatal")
	}
	if !IsFatalError(NewMissingListError("x", 3)) {
		t.Error("missing list is not fatal")
	}
	if !IsFatalError(errors.New("plain")) || IsFatalError(nil) {
		t.Error("IsFatalError on non-runtime errors")
	}

	p := &Process{PID: 2, ClassID: 0x10, IP: 0x20, ItemNum: 5}
	got := NewSizeMismatchError(2, 4).at(p).Error()
	want := "[ELEMENT_SIZE_MISMATCH] lists with different element sizes (2 != 4) (pid 2 at 0010:0020, item 5)"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestProperty_PointerRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("valid pointers decode to their segment and back", prop.ForAll(
		func(seg, off uint16) bool {
			p := makePointer(seg, off)
			ref, err := Decode(p)
			valid := (seg >= SegStackFirst && seg <= SegStackLast) || (seg >= SegString && seg <= SegGlobal)
			if !valid {
				return err != nil
			}
			return err == nil && ref.Pointer() == p
		},
		gen.UInt16(), gen.UInt16(),
	))

	properties.TestingRun(t)
}
