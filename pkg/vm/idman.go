package vm

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// MinHandle is the first handle an IDMan hands out. 0 is reserved as
	// the "allocation failed / no object" sentinel.
	MinHandle = 1
	// MaxHandle is the last valid handle.
	MaxHandle = 65534
)

// IDMan is a recycling integer handle allocator bounded to [begin, end].
// Allocate always returns the lowest free handle, so freed handles are
// reused by subsequent calls.
type IDMan struct {
	begin, end uint16
	used       []bool // indexed by id-begin
	count      int
	lowest     int // no free id below this index
}

// NewIDMan creates an allocator for the range [begin, end].
func NewIDMan(begin, end uint16) *IDMan {
	if end < begin {
		begin, end = end, begin
	}
	return &IDMan{
		begin: begin,
		end:   end,
		used:  make([]bool, int(end-begin)+1),
	}
}

// Allocate returns the lowest free handle, or 0 if the range is exhausted.
func (im *IDMan) Allocate() uint16 {
	for i := im.lowest; i < len(im.used); i++ {
		if !im.used[i] {
			im.used[i] = true
			im.count++
			im.lowest = i + 1
			return im.begin + uint16(i)
		}
	}
	im.lowest = len(im.used)
	return 0
}

// Reserve marks id as used. It reports false if id is out of range or
// already allocated.
func (im *IDMan) Reserve(id uint16) bool {
	if !im.inRange(id) || im.used[id-im.begin] {
		return false
	}
	im.used[id-im.begin] = true
	im.count++
	return true
}

// Release returns id to the pool. Releasing a handle that is not
// allocated is a no-op.
func (im *IDMan) Release(id uint16) {
	if !im.inRange(id) || !im.used[id-im.begin] {
		return
	}
	i := int(id - im.begin)
	im.used[i] = false
	im.count--
	if i < im.lowest {
		im.lowest = i
	}
}

// IsUsed reports whether id is currently allocated.
func (im *IDMan) IsUsed(id uint16) bool {
	return im.inRange(id) && im.used[id-im.begin]
}

// Count returns the number of allocated handles.
func (im *IDMan) Count() int {
	return im.count
}

// Capacity returns the size of the handle range.
func (im *IDMan) Capacity() int {
	return len(im.used)
}

// Clear releases every handle.
func (im *IDMan) Clear() {
	for i := range im.used {
		im.used[i] = false
	}
	im.count = 0
	im.lowest = 0
}

func (im *IDMan) inRange(id uint16) bool {
	return id >= im.begin && id <= im.end
}

// Save writes the allocator state: begin, end, count, then every
// allocated id in ascending order.
func (im *IDMan) Save(w io.Writer) error {
	buf := make([]byte, 0, 8+2*im.count)
	buf = binary.LittleEndian.AppendUint16(buf, im.begin)
	buf = binary.LittleEndian.AppendUint16(buf, im.end)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(im.count))
	for i, u := range im.used {
		if u {
			buf = binary.LittleEndian.AppendUint16(buf, im.begin+uint16(i))
		}
	}
	_, err := w.Write(buf)
	return err
}

// Load replaces the allocator state with one written by Save.
func (im *IDMan) Load(r io.Reader, version uint32) error {
	var hdr [8]byte
	if err := readFull(r, hdr[:]); err != nil {
		return err
	}
	begin := binary.LittleEndian.Uint16(hdr[0:])
	end := binary.LittleEndian.Uint16(hdr[2:])
	count := binary.LittleEndian.Uint32(hdr[4:])
	if end < begin || count > uint32(end-begin)+1 {
		return fmt.Errorf("handle range %d-%d with %d ids: %w", begin, end, count, ErrCorruptSave)
	}
	loaded := NewIDMan(begin, end)
	var b [2]byte
	for i := uint32(0); i < count; i++ {
		if err := readFull(r, b[:]); err != nil {
			return err
		}
		if !loaded.Reserve(binary.LittleEndian.Uint16(b[:])) {
			return fmt.Errorf("handle %d: %w", binary.LittleEndian.Uint16(b[:]), ErrCorruptSave)
		}
	}
	*im = *loaded
	return nil
}

// readFull reads exactly len(buf) bytes, mapping short reads to ErrTruncated.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrTruncated
		}
		return err
	}
	return nil
}
