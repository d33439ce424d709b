package vm

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func stringList(h *Heap, values ...string) *List {
	l := NewStringList()
	for _, s := range values {
		l.AppendUint16(h.NewString(s))
	}
	return l
}

func texts(h *Heap, l *List) []string {
	var out []string
	for i := 0; i < l.Len(); i++ {
		out = append(out, h.String(l.Uint16(i)))
	}
	return out
}

func TestHeap_Strings(t *testing.T) {
	h := NewHeap(testLogger)
	a := h.NewString("abc")
	b := h.DuplicateString(a)
	if a == b || h.String(b) != "abc" {
		t.Fatalf("DuplicateString = %d %q", b, h.String(b))
	}
	if !h.AppendString(a, b) || h.String(a) != "abcabc" {
		t.Errorf("AppendString: %q", h.String(a))
	}
	if h.AppendString(99, a) {
		t.Error("AppendString to unknown handle succeeded")
	}

	h.FreeString(a)
	h.FreeString(a)
	h.FreeString(0)
	if h.HasString(a) || !h.HasString(b) {
		t.Error("double free disturbed other strings")
	}
	if got := h.NewString("x"); got != a {
		t.Errorf("freed handle not reused: got %d, want %d", got, a)
	}
	if h.String(0) != "" {
		t.Error("handle 0 is not empty")
	}
}

func TestHeap_Lists(t *testing.T) {
	h := NewHeap(testLogger)
	words := h.NewList(2, false)
	dwords := h.NewList(4, false)
	h.List(words).AppendUint16(1)
	h.List(dwords).Append([]byte{1, 0, 0, 0})

	err := h.List(words).AppendList(h.List(dwords))
	var re *RuntimeError
	if !errors.As(err, &re) || re.Type != ErrorSizeMismatch {
		t.Errorf("AppendList error = %v", err)
	}
	if h.List(words).Len() != 1 || h.List(dwords).Len() != 1 {
		t.Error("mismatched append modified a list")
	}

	h.FreeList(words)
	h.FreeList(words)
	if h.List(words) != nil || h.List(dwords) == nil {
		t.Error("FreeList")
	}
	if _, lists := h.Stats(); lists != 1 {
		t.Errorf("lists = %d, want 1", lists)
	}
}

func TestHeap_FreeStringList(t *testing.T) {
	h := NewHeap(testLogger)
	handle := h.AddList(stringList(h, "a", "b"))
	h.FreeStringList(handle)
	if s, l := h.Stats(); s != 0 || l != 0 {
		t.Errorf("after FreeStringList: %d strings, %d lists", s, l)
	}

	// a plain free of a list marked as holding strings releases them too
	handle = h.AddList(stringList(h, "c"))
	h.FreeList(handle)
	if s, _ := h.Stats(); s != 0 {
		t.Errorf("FreeList leaked %d strings", s)
	}

	// lists not marked as holding strings keep their elements alive
	kept := h.NewString("kept")
	for _, size := range []int{2, 4} {
		l := NewList(size)
		e := make([]byte, size)
		e[0] = byte(kept)
		l.Append(e)
		h.FreeStringList(h.AddList(l))
		if !h.HasString(kept) || h.String(kept) != "kept" {
			t.Errorf("FreeStringList freed through a plain list of size %d", size)
		}
	}
	if _, lists := h.Stats(); lists != 0 {
		t.Errorf("%d lists left", lists)
	}
}

func TestHeap_StringListOps(t *testing.T) {
	h := NewHeap(testLogger)

	dst := stringList(h, "a", "b")
	h.UnionStrings(dst, stringList(h, "b", "c"))
	if got := texts(h, dst); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("union = %q", got)
	}
	if s, _ := h.Stats(); s != 3 {
		t.Errorf("union left %d strings, want 3", s)
	}

	h.SubtractStrings(dst, stringList(h, "a", "c"))
	if got := texts(h, dst); !slices.Equal(got, []string{"b"}) {
		t.Errorf("subtract = %q", got)
	}

	probe := h.NewString("b")
	if !h.StringInList(dst, probe) {
		t.Error("StringInList compares handles, not text")
	}

	cp := h.CopyStringList(dst)
	if cp.Uint16(0) == dst.Uint16(0) || !cp.IsStringList() {
		t.Error("CopyStringList shares handles")
	}
}

func TestList(t *testing.T) {
	l := NewList(2)
	for _, v := range []uint16{5, 6, 5, 7} {
		l.AppendUint16(v)
	}
	if !l.Contains([]byte{6, 0}) || l.Contains([]byte{8, 0}) {
		t.Error("Contains")
	}
	l.Remove([]byte{5, 0})
	if l.Len() != 2 || l.Uint16(0) != 6 || l.Uint16(1) != 7 {
		t.Errorf("Remove left %d elements", l.Len())
	}
	l.Assign(1, []byte{9})
	l.Assign(5, []byte{1, 1})
	if l.Uint16(1) != 9 || l.Len() != 2 {
		t.Errorf("Assign: %d", l.Uint16(1))
	}
	if l.Element(2) != nil || l.Uint16(-1) != 0 {
		t.Error("out-of-range reads")
	}

	other := NewList(2)
	other.AppendUint16(7)
	l.Subtract(other)
	if l.Len() != 1 || l.Uint16(0) != 6 {
		t.Errorf("Subtract left %d elements", l.Len())
	}

	cp := l.Copy()
	cp.AppendUint16(1)
	if l.Len() != 1 {
		t.Error("Copy shares storage")
	}
	l.MarkStrings()
	if l.Copy().IsStringList() {
		t.Error("Copy kept string ownership")
	}
	wide := NewList(4)
	wide.MarkStrings()
	if wide.IsStringList() {
		t.Error("dword list marked as string list")
	}
}

func TestHeap_SaveLoad(t *testing.T) {
	h := NewHeap(testLogger)
	h.NewString("one")
	two := h.NewString("two")
	h.NewString("three")
	h.AddList(stringList(h, "x"))
	h.FreeString(two)
	nums := NewList(4)
	nums.Append([]byte{1, 2, 3, 4})
	numsHandle := h.AddList(nums)

	var strs, lists bytes.Buffer
	if err := h.SaveStrings(&strs); err != nil {
		t.Fatal(err)
	}
	if err := h.SaveLists(&lists); err != nil {
		t.Fatal(err)
	}

	loaded := NewHeap(testLogger)
	if err := loaded.LoadStrings(bytes.NewReader(strs.Bytes()), SaveVersion); err != nil {
		t.Fatalf("LoadStrings: %v", err)
	}
	if err := loaded.LoadLists(bytes.NewReader(lists.Bytes()), SaveVersion); err != nil {
		t.Fatalf("LoadLists: %v", err)
	}
	if !slices.Equal(loaded.StringHandles(), h.StringHandles()) {
		t.Errorf("handles = %v, want %v", loaded.StringHandles(), h.StringHandles())
	}
	if loaded.String(1) != "one" || loaded.HasString(two) {
		t.Error("string contents")
	}
	if got := loaded.NewString("again"); got != two {
		t.Errorf("allocator not restored: got %d, want %d", got, two)
	}
	l := loaded.List(numsHandle)
	if l == nil || l.ElementSize() != 4 || !bytes.Equal(l.Element(0), []byte{1, 2, 3, 4}) {
		t.Errorf("list %d not restored", numsHandle)
	}
	if sl := loaded.List(1); sl == nil || !sl.IsStringList() {
		t.Error("string list flag lost")
	}

	// a truncated section leaves the heap as it was
	before := loaded.StringHandles()
	if err := loaded.LoadStrings(bytes.NewReader(strs.Bytes()[:strs.Len()-2]), SaveVersion); err == nil {
		t.Error("truncated strings loaded")
	}
	if !slices.Equal(loaded.StringHandles(), before) {
		t.Error("failed load changed the heap")
	}
}

func TestProperty_HeapHandles(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("live handles are unique and read back their text", prop.ForAll(
		func(values []string, frees []uint8) bool {
			h := NewHeap(testLogger)
			live := map[uint16]string{}
			for _, v := range values {
				id := h.NewString(v)
				if id == 0 {
					return false
				}
				if _, dup := live[id]; dup {
					return false
				}
				live[id] = v
			}
			for _, f := range frees {
				id := uint16(f)
				h.FreeString(id)
				delete(live, id)
			}
			for id, v := range live {
				if h.String(id) != v {
					return false
				}
			}
			s, _ := h.Stats()
			return s == len(live)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
