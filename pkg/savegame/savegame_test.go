package savegame

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/zurustar/ucvm/pkg/vm"
)

func newMachine(r vm.Ruleset) *vm.Machine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return vm.New(nil, vm.WithRuleset(r), vm.WithLogger(log))
}

func TestWriteRead(t *testing.T) {
	src := newMachine(vm.RulesetU8)
	h := src.Heap()
	s := h.NewString("hello")
	l := h.NewList(2, false)
	h.List(l).AppendUint16(0x1234)
	src.Globals().Set(10, 3, 5)

	var buf bytes.Buffer
	if err := Write(&buf, src); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dst := newMachine(vm.RulesetU8)
	if err := Read(&buf, dst); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := dst.Heap().String(s); got != "hello" {
		t.Errorf("string %d = %q", s, got)
	}
	if got := dst.Heap().List(l); got == nil || got.Len() != 1 || got.Uint16(0) != 0x1234 {
		t.Errorf("list %d not restored", l)
	}
	if got := dst.Globals().Get(10, 3); got != 5 {
		t.Errorf("global = %d, want 5", got)
	}

	// restored allocators hand out fresh handles
	if n := dst.Heap().NewString("x"); n == s {
		t.Errorf("restored heap reused live handle %d", n)
	}
}

func TestRead_RulesetMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, newMachine(vm.RulesetRemorse)); err != nil {
		t.Fatal(err)
	}
	err := Read(&buf, newMachine(vm.RulesetU8))
	if !errors.Is(err, ErrRuleset) {
		t.Errorf("got %v, want ErrRuleset", err)
	}
}

func TestRead_Corrupt(t *testing.T) {
	m := newMachine(vm.RulesetU8)
	keep := m.Heap().NewString("keep")

	t.Run("not cbor", func(t *testing.T) {
		if err := Read(bytes.NewReader([]byte{0xFF}), m); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("bad version", func(t *testing.T) {
		f, err := Capture(m)
		if err != nil {
			t.Fatal(err)
		}
		f.Version = vm.SaveVersion + 1
		if err := f.Restore(m); !errors.Is(err, vm.ErrCorruptSave) {
			t.Errorf("got %v, want ErrCorruptSave", err)
		}
	})

	t.Run("truncated section", func(t *testing.T) {
		f, err := Capture(m)
		if err != nil {
			t.Fatal(err)
		}
		f.Strings = f.Strings[:len(f.Strings)/2]
		if err := f.Restore(m); err == nil {
			t.Error("expected error")
		}
		if m.Heap().String(keep) != "keep" {
			t.Error("failed load changed the string heap")
		}
	})
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "save.cbor")
	src := newMachine(vm.RulesetRegret)
	src.Globals().Set(0x40, 2, 0xBEEF)
	if err := WriteFile(path, src); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	dst := newMachine(vm.RulesetRegret)
	if err := ReadFile(path, dst); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := dst.Globals().Get(0x40, 2); got != 0xBEEF {
		t.Errorf("global = %#x", got)
	}
	if err := ReadFile(filepath.Join(t.TempDir(), "missing"), dst); err == nil {
		t.Error("expected error for missing file")
	}
}
