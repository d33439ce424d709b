package vm

import (
	"encoding/binary"
	"fmt"
	"io"
)

// GlobalsSize is the capacity of the global store in entries (bits for a
// BitSet, bytes for a ByteSet).
const GlobalsSize = 0x1000

// GlobalStore is the process-wide packed global variable table.
// Entries are addressed by (position, width); the unit of both depends on
// the implementation.
type GlobalStore interface {
	// Get returns width entries starting at pos. Invalid ranges read as 0.
	Get(pos, width uint) uint32
	// Set stores value masked to width entries starting at pos.
	// Invalid ranges are ignored.
	Set(pos, width uint, value uint32)
	// Valid reports whether (pos, width) addresses storage in the table.
	Valid(pos, width uint) bool
	// MaxWidth returns the largest width a single access may use.
	MaxWidth() uint
	Size() uint
	// Reset clears every entry.
	Reset()
	Save(w io.Writer) error
	Load(r io.Reader, version uint32) error
}

// BitSet packs globals bit by bit, least significant bit first.
type BitSet struct {
	size uint
	data []byte
}

// NewBitSet creates a BitSet holding size bits.
func NewBitSet(size uint) *BitSet {
	return &BitSet{size: size, data: make([]byte, (size+7)/8)}
}

func (b *BitSet) Size() uint     { return b.size }
func (b *BitSet) MaxWidth() uint { return 32 }

func (b *BitSet) Valid(pos, width uint) bool {
	return width >= 1 && width <= 32 && pos+width <= b.size
}

func (b *BitSet) Get(pos, width uint) uint32 {
	if !b.Valid(pos, width) {
		return 0
	}
	var v uint32
	for i := uint(0); i < width; i++ {
		bit := pos + i
		if b.data[bit/8]&(1<<(bit%8)) != 0 {
			v |= 1 << i
		}
	}
	return v
}

func (b *BitSet) Set(pos, width uint, value uint32) {
	if !b.Valid(pos, width) {
		return
	}
	for i := uint(0); i < width; i++ {
		bit := pos + i
		if value&(1<<i) != 0 {
			b.data[bit/8] |= 1 << (bit % 8)
		} else {
			b.data[bit/8] &^= 1 << (bit % 8)
		}
	}
}

func (b *BitSet) Reset() {
	clear(b.data)
}

func (b *BitSet) Save(w io.Writer) error {
	return saveTable(w, uint32(b.size), b.data)
}

func (b *BitSet) Load(r io.Reader, version uint32) error {
	size, data, err := loadTable(r, func(n uint32) uint32 { return (n + 7) / 8 })
	if err != nil {
		return err
	}
	b.size, b.data = uint(size), data
	return nil
}

// ByteSet stores globals as little-endian byte runs.
type ByteSet struct {
	data []byte
}

// NewByteSet creates a ByteSet holding size bytes.
func NewByteSet(size uint) *ByteSet {
	return &ByteSet{data: make([]byte, size)}
}

func (b *ByteSet) Size() uint     { return uint(len(b.data)) }
func (b *ByteSet) MaxWidth() uint { return 4 }

func (b *ByteSet) Valid(pos, width uint) bool {
	return width >= 1 && width <= 4 && pos+width <= uint(len(b.data))
}

func (b *ByteSet) Get(pos, width uint) uint32 {
	if !b.Valid(pos, width) {
		return 0
	}
	var v uint32
	for i := uint(0); i < width; i++ {
		v |= uint32(b.data[pos+i]) << (8 * i)
	}
	return v
}

func (b *ByteSet) Set(pos, width uint, value uint32) {
	if !b.Valid(pos, width) {
		return
	}
	for i := uint(0); i < width; i++ {
		b.data[pos+i] = byte(value >> (8 * i))
	}
}

func (b *ByteSet) Reset() {
	clear(b.data)
}

func (b *ByteSet) Save(w io.Writer) error {
	return saveTable(w, uint32(len(b.data)), b.data)
}

func (b *ByteSet) Load(r io.Reader, version uint32) error {
	_, data, err := loadTable(r, func(n uint32) uint32 { return n })
	if err != nil {
		return err
	}
	b.data = data
	return nil
}

func saveTable(w io.Writer, size uint32, data []byte) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], size)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// maxGlobalsSize bounds the declared size of a loaded table.
const maxGlobalsSize = 0x10000 * 8

func loadTable(r io.Reader, bytesFor func(uint32) uint32) (uint32, []byte, error) {
	var hdr [4]byte
	if err := readFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	size := binary.LittleEndian.Uint32(hdr[:])
	if size > maxGlobalsSize {
		return 0, nil, fmt.Errorf("globals size %d: %w", size, ErrCorruptSave)
	}
	data := make([]byte, bytesFor(size))
	if err := readFull(r, data); err != nil {
		return 0, nil, err
	}
	return size, data, nil
}
