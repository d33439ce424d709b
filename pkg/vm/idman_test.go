package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestIDMan(t *testing.T) {
	im := NewIDMan(1, 4)
	for want := uint16(1); want <= 4; want++ {
		if got := im.Allocate(); got != want {
			t.Fatalf("Allocate = %d, want %d", got, want)
		}
	}
	if got := im.Allocate(); got != 0 {
		t.Errorf("Allocate on full range = %d, want 0", got)
	}

	im.Release(3)
	im.Release(2)
	im.Release(2) // no-op
	if im.Count() != 2 {
		t.Errorf("Count = %d, want 2", im.Count())
	}
	if got := im.Allocate(); got != 2 {
		t.Errorf("Allocate after release = %d, want lowest free 2", got)
	}
	if got := im.Allocate(); got != 3 {
		t.Errorf("Allocate = %d, want 3", got)
	}

	im.Release(0)
	im.Release(9)
	if im.Count() != 4 {
		t.Errorf("out-of-range release changed count to %d", im.Count())
	}
	if im.Reserve(2) {
		t.Error("Reserve of a used id succeeded")
	}

	im.Clear()
	if im.Count() != 0 || im.IsUsed(1) {
		t.Error("Clear left ids allocated")
	}
	if !im.Reserve(4) || im.Allocate() != 1 {
		t.Error("Reserve/Allocate after Clear")
	}
}

func TestIDMan_SaveLoad(t *testing.T) {
	im := NewIDMan(MinHandle, 100)
	for range 5 {
		im.Allocate()
	}
	im.Release(2)

	var buf bytes.Buffer
	if err := im.Save(&buf); err != nil {
		t.Fatal(err)
	}
	loaded := NewIDMan(1, 1)
	if err := loaded.Load(bytes.NewReader(buf.Bytes()), SaveVersion); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Capacity() != 100 || loaded.Count() != 4 || loaded.IsUsed(2) || !loaded.IsUsed(5) {
		t.Errorf("loaded state: capacity %d count %d", loaded.Capacity(), loaded.Count())
	}
	if got := loaded.Allocate(); got != 2 {
		t.Errorf("Allocate after load = %d, want 2", got)
	}

	if err := loaded.Load(bytes.NewReader(buf.Bytes()[:9]), SaveVersion); !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated load: %v", err)
	}
	corrupt := bytes.Clone(buf.Bytes())
	corrupt[8], corrupt[9] = 0x00, 0x02 // first id 0x200 is out of range
	if err := loaded.Load(bytes.NewReader(corrupt), SaveVersion); !errors.Is(err, ErrCorruptSave) {
		t.Errorf("corrupt load: %v", err)
	}
	if loaded.Count() != 5 {
		t.Errorf("failed load changed state: count %d", loaded.Count())
	}
}

func TestProperty_IDManLowestFree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Allocate returns the lowest released id", prop.ForAll(
		func(n int, released []uint16) bool {
			im := NewIDMan(MinHandle, MaxHandle)
			for range n {
				im.Allocate()
			}
			lowest := uint16(n + 1)
			for _, r := range released {
				id := r%uint16(n) + 1
				im.Release(id)
				lowest = min(lowest, id)
			}
			return im.Allocate() == lowest && im.IsUsed(lowest)
		},
		gen.IntRange(1, 200),
		gen.SliceOf(gen.UInt16()),
	))

	properties.TestingRun(t)
}
