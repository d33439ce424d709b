package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// List is an ordered sequence of fixed-width elements. A string list holds
// 2-byte string handles that it owns; the flag travels with the value so
// freeing never depends on the caller remembering what the list holds.
type List struct {
	elemSize int
	strings  bool
	data     []byte
}

// NewList creates an empty list of elemSize-byte elements.
func NewList(elemSize int) *List {
	if elemSize <= 0 {
		elemSize = 2
	}
	return &List{elemSize: elemSize}
}

// NewStringList creates an empty list of string handles.
func NewStringList() *List {
	return &List{elemSize: 2, strings: true}
}

func (l *List) Len() int           { return len(l.data) / l.elemSize }
func (l *List) ElementSize() int   { return l.elemSize }
func (l *List) IsStringList() bool { return l.strings }

// MarkStrings records that the list holds string handles. Only lists of
// 2-byte elements can.
func (l *List) MarkStrings() {
	if l.elemSize == 2 {
		l.strings = true
	}
}

// Element returns a copy of element i, or nil if i is out of range.
func (l *List) Element(i int) []byte {
	if i < 0 || i >= l.Len() {
		return nil
	}
	out := make([]byte, l.elemSize)
	copy(out, l.data[i*l.elemSize:])
	return out
}

// Uint16 returns the first two bytes of element i as a little-endian
// value, or 0 if i is out of range.
func (l *List) Uint16(i int) uint16 {
	if i < 0 || i >= l.Len() {
		return 0
	}
	off := i * l.elemSize
	if l.elemSize == 1 {
		return uint16(l.data[off])
	}
	return binary.LittleEndian.Uint16(l.data[off:])
}

// fit pads or truncates e to exactly one element.
func (l *List) fit(e []byte) []byte {
	if len(e) == l.elemSize {
		return e
	}
	out := make([]byte, l.elemSize)
	copy(out, e)
	return out
}

// Append adds e to the end of the list.
func (l *List) Append(e []byte) {
	l.data = append(l.data, l.fit(e)...)
}

// AppendUint16 adds a 2-byte element.
func (l *List) AppendUint16(v uint16) {
	l.Append(binary.LittleEndian.AppendUint16(nil, v))
}

// Assign overwrites element i. Out-of-range indices are ignored.
func (l *List) Assign(i int, e []byte) {
	if i < 0 || i >= l.Len() {
		return
	}
	copy(l.data[i*l.elemSize:(i+1)*l.elemSize], l.fit(e))
}

// AppendList appends every element of other. Lists of different element
// sizes are never combined; both are left untouched.
func (l *List) AppendList(other *List) error {
	if l.elemSize != other.elemSize {
		return NewSizeMismatchError(l.elemSize, other.elemSize)
	}
	l.data = append(l.data, other.data...)
	return nil
}

// Contains reports whether e is an element of the list.
func (l *List) Contains(e []byte) bool {
	e = l.fit(e)
	for i := 0; i < l.Len(); i++ {
		if bytes.Equal(l.data[i*l.elemSize:(i+1)*l.elemSize], e) {
			return true
		}
	}
	return false
}

// Remove deletes every occurrence of e.
func (l *List) Remove(e []byte) {
	e = l.fit(e)
	out := l.data[:0]
	for i := 0; i < l.Len(); i++ {
		el := l.data[i*l.elemSize : (i+1)*l.elemSize]
		if !bytes.Equal(el, e) {
			out = append(out, el...)
		}
	}
	l.data = out
}

// Subtract removes every element of other from the list.
func (l *List) Subtract(other *List) {
	for i := 0; i < other.Len(); i++ {
		l.Remove(other.Element(i))
	}
}

// Copy returns a copy of the elements. The copy never owns strings, since
// the handles would be shared; use Heap.CopyStringList to duplicate them.
func (l *List) Copy() *List {
	return &List{elemSize: l.elemSize, data: bytes.Clone(l.data)}
}

// Clear drops every element without freeing anything.
func (l *List) Clear() {
	l.data = l.data[:0]
}

// Save writes the list in its self-describing format:
// element size, element count, string flag, raw elements.
func (l *List) Save(w io.Writer) error {
	buf := make([]byte, 0, 9+len(l.data))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(l.elemSize))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(l.Len()))
	var flag byte
	if l.strings {
		flag = 1
	}
	buf = append(buf, flag)
	buf = append(buf, l.data...)
	_, err := w.Write(buf)
	return err
}

// maxListElements bounds the element count of a loaded list.
const maxListElements = 0x10000

// LoadList reads a list written by Save.
func LoadList(r io.Reader, version uint32) (*List, error) {
	var hdr [9]byte
	if err := readFull(r, hdr[:]); err != nil {
		return nil, err
	}
	elemSize := binary.LittleEndian.Uint32(hdr[0:])
	count := binary.LittleEndian.Uint32(hdr[4:])
	if elemSize == 0 || elemSize > 0xFF || count > maxListElements {
		return nil, fmt.Errorf("list of %d elements of size %d: %w", count, elemSize, ErrCorruptSave)
	}
	l := &List{elemSize: int(elemSize), strings: hdr[8] != 0}
	if l.strings && elemSize != 2 {
		return nil, fmt.Errorf("string list with element size %d: %w", elemSize, ErrCorruptSave)
	}
	l.data = make([]byte, int(elemSize)*int(count))
	if err := readFull(r, l.data); err != nil {
		return nil, err
	}
	return l, nil
}
