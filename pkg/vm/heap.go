package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
)

// Heap owns every usecode string and list. Strings and lists live in
// separate handle namespaces, so the same number may name one of each.
// Handle 0 is never allocated and reads as empty.
type Heap struct {
	strings   map[uint16]string
	lists     map[uint16]*List
	stringIDs *IDMan
	listIDs   *IDMan
	log       *slog.Logger
}

// NewHeap creates an empty heap.
func NewHeap(log *slog.Logger) *Heap {
	if log == nil {
		log = slog.Default()
	}
	return &Heap{
		strings:   make(map[uint16]string),
		lists:     make(map[uint16]*List),
		stringIDs: NewIDMan(MinHandle, MaxHandle),
		listIDs:   NewIDMan(MinHandle, MaxHandle),
		log:       log,
	}
}

// Reset frees every string and list.
func (h *Heap) Reset() {
	clear(h.strings)
	clear(h.lists)
	h.stringIDs.Clear()
	h.listIDs.Clear()
}

// NewString stores text and returns its handle, or 0 when the string
// namespace is exhausted.
func (h *Heap) NewString(text string) uint16 {
	id := h.stringIDs.Allocate()
	if id == 0 {
		h.log.Warn("string heap exhausted")
		return 0
	}
	h.strings[id] = text
	return id
}

// String returns the text of handle, or "" if it is unknown.
func (h *Heap) String(handle uint16) string {
	return h.strings[handle]
}

// HasString reports whether handle names a live string.
func (h *Heap) HasString(handle uint16) bool {
	_, ok := h.strings[handle]
	return ok
}

// DuplicateString stores a copy of handle's text under a new handle.
// Duplicating an unknown handle yields a new empty string.
func (h *Heap) DuplicateString(handle uint16) uint16 {
	return h.NewString(h.String(handle))
}

// AppendString appends src's text to dst in place. It reports false if dst
// is not a live string.
func (h *Heap) AppendString(dst, src uint16) bool {
	s, ok := h.strings[dst]
	if !ok {
		return false
	}
	h.strings[dst] = s + h.String(src)
	return true
}

// FreeString releases handle. Unknown handles, including 0 and handles
// already freed, are ignored.
func (h *Heap) FreeString(handle uint16) {
	if _, ok := h.strings[handle]; !ok {
		return
	}
	delete(h.strings, handle)
	h.stringIDs.Release(handle)
}

// NewList creates an empty list and returns its handle.
func (h *Heap) NewList(elemSize int, stringList bool) uint16 {
	var l *List
	if stringList {
		l = NewStringList()
	} else {
		l = NewList(elemSize)
	}
	return h.AddList(l)
}

// AddList takes ownership of l and returns its handle, or 0 when the list
// namespace is exhausted.
func (h *Heap) AddList(l *List) uint16 {
	id := h.listIDs.Allocate()
	if id == 0 {
		h.log.Warn("list heap exhausted")
		return 0
	}
	h.lists[id] = l
	return id
}

// List returns the list named by handle, or nil.
func (h *Heap) List(handle uint16) *List {
	return h.lists[handle]
}

// FreeList releases a plain list. If the list turns out to hold strings
// they are released too, since the list knows what it owns.
func (h *Heap) FreeList(handle uint16) {
	l, ok := h.lists[handle]
	if !ok {
		return
	}
	if l.strings {
		h.log.Warn("string list freed as plain list", "list", handle)
		h.freeContents(l)
	}
	h.dropList(handle)
}

// FreeStringList releases every string held by the list, then the list.
// A list not marked as holding strings keeps its elements untouched.
func (h *Heap) FreeStringList(handle uint16) {
	l, ok := h.lists[handle]
	if !ok {
		return
	}
	if l.strings {
		h.freeContents(l)
	} else {
		h.log.Warn("plain list freed as string list", "list", handle, "size", l.elemSize)
	}
	h.dropList(handle)
}

// DiscardList releases the list handle without freeing any element. It is
// used once the elements have been moved elsewhere.
func (h *Heap) DiscardList(handle uint16) {
	if _, ok := h.lists[handle]; ok {
		h.dropList(handle)
	}
}

// Free releases handle with the semantics its list carries.
func (h *Heap) Free(handle uint16) {
	l, ok := h.lists[handle]
	if !ok {
		return
	}
	if l.strings {
		h.freeContents(l)
	}
	h.dropList(handle)
}

func (h *Heap) freeContents(l *List) {
	for i := 0; i < l.Len(); i++ {
		h.FreeString(l.Uint16(i))
	}
	l.Clear()
}

func (h *Heap) dropList(handle uint16) {
	delete(h.lists, handle)
	h.listIDs.Release(handle)
}

// StringInList reports whether a string list holds a string with the
// same text as handle.
func (h *Heap) StringInList(l *List, handle uint16) bool {
	text := h.String(handle)
	for i := 0; i < l.Len(); i++ {
		if h.String(l.Uint16(i)) == text {
			return true
		}
	}
	return false
}

// UnionStrings moves every string of src whose text is not already in dst
// to the end of dst and frees the duplicates. src is left empty.
func (h *Heap) UnionStrings(dst, src *List) {
	for i := 0; i < src.Len(); i++ {
		s := src.Uint16(i)
		if h.StringInList(dst, s) {
			h.FreeString(s)
		} else {
			dst.AppendUint16(s)
		}
	}
	src.Clear()
}

// RemoveString deletes and frees every string of l whose text equals the
// text of handle.
func (h *Heap) RemoveString(l *List, handle uint16) {
	text := h.String(handle)
	out := l.data[:0]
	for i := 0; i < l.Len(); i++ {
		s := l.Uint16(i)
		if h.String(s) == text {
			if s != handle {
				h.FreeString(s)
			}
			continue
		}
		out = binary.LittleEndian.AppendUint16(out, s)
	}
	l.data = out
}

// SubtractStrings removes from dst every string whose text occurs in src.
func (h *Heap) SubtractStrings(dst, src *List) {
	for i := 0; i < src.Len(); i++ {
		h.RemoveString(dst, src.Uint16(i))
	}
}

// CopyStringList returns a new string list holding duplicates of every
// string in src.
func (h *Heap) CopyStringList(src *List) *List {
	l := NewStringList()
	for i := 0; i < src.Len(); i++ {
		l.AppendUint16(h.DuplicateString(src.Uint16(i)))
	}
	return l
}

// Stats reports heap usage.
func (h *Heap) Stats() (strings, lists int) {
	return len(h.strings), len(h.lists)
}

// StringHandles returns the live string handles in ascending order.
func (h *Heap) StringHandles() []uint16 {
	return slices.Sorted(maps.Keys(h.strings))
}

// SaveStrings writes the string allocator, the count, then
// (handle, length, bytes) per string in handle order.
func (h *Heap) SaveStrings(w io.Writer) error {
	if err := h.stringIDs.Save(w); err != nil {
		return err
	}
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(h.strings)))
	for _, id := range slices.Sorted(maps.Keys(h.strings)) {
		s := h.strings[id]
		buf = binary.LittleEndian.AppendUint16(buf, id)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	_, err := w.Write(buf)
	return err
}

// SaveLists writes the list allocator, the count, then (handle, list) per
// list in handle order.
func (h *Heap) SaveLists(w io.Writer) error {
	if err := h.listIDs.Save(w); err != nil {
		return err
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(h.lists)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, id := range slices.Sorted(maps.Keys(h.lists)) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], id)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
		if err := h.lists[id].Save(w); err != nil {
			return err
		}
	}
	return nil
}

// maxHeapEntries bounds the declared number of entries in a loaded section.
const maxHeapEntries = 0x10000

// maxStringLen bounds the declared length of a loaded string.
const maxStringLen = 0x100000

// LoadStrings replaces the string heap with a section written by
// SaveStrings. The heap is unchanged if the section is malformed.
func (h *Heap) LoadStrings(r io.Reader, version uint32) error {
	ids := NewIDMan(MinHandle, MaxHandle)
	if err := ids.Load(r, version); err != nil {
		return fmt.Errorf("string ids: %w", err)
	}
	var hdr [4]byte
	if err := readFull(r, hdr[:]); err != nil {
		return err
	}
	count := binary.LittleEndian.Uint32(hdr[:])
	if count > maxHeapEntries {
		return fmt.Errorf("improbable number of strings %d: %w", count, ErrCorruptSave)
	}
	strs := make(map[uint16]string, count)
	var entry [6]byte
	for i := uint32(0); i < count; i++ {
		if err := readFull(r, entry[:]); err != nil {
			return err
		}
		id := binary.LittleEndian.Uint16(entry[0:])
		n := binary.LittleEndian.Uint32(entry[2:])
		if n > maxStringLen {
			return fmt.Errorf("string %d of length %d: %w", id, n, ErrCorruptSave)
		}
		buf := make([]byte, n)
		if err := readFull(r, buf); err != nil {
			return err
		}
		strs[id] = string(buf)
		ids.Reserve(id)
	}
	h.strings, h.stringIDs = strs, ids
	return nil
}

// LoadLists replaces the list heap with a section written by SaveLists.
// The heap is unchanged if the section is malformed.
func (h *Heap) LoadLists(r io.Reader, version uint32) error {
	ids := NewIDMan(MinHandle, MaxHandle)
	if err := ids.Load(r, version); err != nil {
		return fmt.Errorf("list ids: %w", err)
	}
	var hdr [4]byte
	if err := readFull(r, hdr[:]); err != nil {
		return err
	}
	count := binary.LittleEndian.Uint32(hdr[:])
	if count > maxHeapEntries {
		return fmt.Errorf("improbable number of lists %d: %w", count, ErrCorruptSave)
	}
	lists := make(map[uint16]*List, count)
	var b [2]byte
	for i := uint32(0); i < count; i++ {
		if err := readFull(r, b[:]); err != nil {
			return err
		}
		id := binary.LittleEndian.Uint16(b[:])
		l, err := LoadList(r, version)
		if err != nil {
			return fmt.Errorf("list %d: %w", id, err)
		}
		lists[id] = l
		ids.Reserve(id)
	}
	h.lists, h.listIDs = lists, ids
	return nil
}
