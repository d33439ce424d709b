package vm

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestStack(t *testing.T) {
	s := NewStack(16)
	if s.SP() != 16 || s.Size() != 0 {
		t.Fatalf("new stack: sp %d size %d", s.SP(), s.Size())
	}

	s.Push2(0x1234)
	s.Push4(0xDEADBEEF)
	s.Push1(0x7F)
	if s.SP() != 9 || s.Size() != 7 {
		t.Errorf("after pushes: sp %d size %d", s.SP(), s.Size())
	}
	if got := s.Access4(10); got != 0xDEADBEEF {
		t.Errorf("Access4 = %#x", got)
	}
	if got := s.Pop1(); got != 0x7F {
		t.Errorf("Pop1 = %#x", got)
	}
	if got := s.Pop4(); got != 0xDEADBEEF {
		t.Errorf("Pop4 = %#x", got)
	}
	s.Assign2(14, 0xBEEF)
	if got := s.Pop2(); got != 0xBEEF {
		t.Errorf("Pop2 = %#x", got)
	}
	if s.Err() != nil {
		t.Fatalf("unexpected fault: %v", s.Err())
	}
}

func TestStack_Faults(t *testing.T) {
	tests := []struct {
		name string
		op   func(s *Stack)
	}{
		{"underflow", func(s *Stack) { s.Pop2() }},
		{"overflow", func(s *Stack) { s.Push(make([]byte, 9)) }},
		{"access past end", func(s *Stack) { s.Access4(6) }},
		{"assign before start", func(s *Stack) { s.Assign2(-1, 1) }},
		{"sp past end", func(s *Stack) { s.AddSP(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStack(8)
			tt.op(s)
			if !IsFatalError(s.Err()) {
				t.Fatalf("Err = %v, want stack fault", s.Err())
			}
			first := s.Err()
			s.Pop4()
			if s.Err() != first {
				t.Error("fault is not sticky")
			}
			if s.SP() != 8 {
				t.Errorf("faulting access moved sp to %d", s.SP())
			}
			s.ClearErr()
			if s.Err() != nil {
				t.Error("ClearErr did not clear")
			}
		})
	}
}

func TestProperty_StackRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("words pop in reverse push order", prop.ForAll(
		func(values []uint16) bool {
			s := NewStack(DefaultStackSize)
			for _, v := range values {
				s.Push2(v)
			}
			for i := len(values) - 1; i >= 0; i-- {
				if s.Pop2() != values[i] {
					return false
				}
			}
			return s.Size() == 0 && s.Err() == nil
		},
		gen.SliceOfN(64, gen.UInt16()),
	))

	properties.Property("pushed bytes are readable at sp", prop.ForAll(
		func(data []byte) bool {
			s := NewStack(DefaultStackSize)
			s.Push(data)
			return bytes.Equal(s.Access(s.SP(), len(data)), data) &&
				bytes.Equal(s.Pop(len(data)), data)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
