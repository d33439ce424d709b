// Package usecode loads compiled usecode images.
//
// An image is a CBOR document holding every class of a game: its code
// bytes, the offset at which executable code starts, and, for Crusader,
// the table translating event numbers into code offsets.
package usecode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the image format version written by Save.
const ImageVersion = 1

var (
	ErrVersion        = errors.New("unsupported image version")
	ErrDuplicateClass = errors.New("duplicate class")
	ErrBadBase        = errors.New("class base offset past end of code")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("usecode: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Class is one compiled usecode class.
type Class struct {
	ID   uint16 `cbor:"id"`
	Name string `cbor:"name,omitempty"`
	// Base is the offset of the first code byte; the bytes before it are
	// the class header.
	Base uint16 `cbor:"base"`
	Code []byte `cbor:"code"`
	// Events maps event numbers to code offsets.
	Events []uint16 `cbor:"events,omitempty"`
}

// Image is a set of classes. It implements vm.Usecode.
type Image struct {
	Version int     `cbor:"version"`
	Ruleset string  `cbor:"ruleset,omitempty"`
	Classes []Class `cbor:"classes"`

	index map[uint16]int
}

// NewImage creates an empty image for ruleset.
func NewImage(ruleset string) *Image {
	return &Image{
		Version: ImageVersion,
		Ruleset: ruleset,
		index:   make(map[uint16]int),
	}
}

// Add adds a class to the image.
func (img *Image) Add(c Class) error {
	if int(c.Base) > len(c.Code) {
		return fmt.Errorf("class %04X: %w", c.ID, ErrBadBase)
	}
	if _, ok := img.index[c.ID]; ok {
		return fmt.Errorf("class %04X: %w", c.ID, ErrDuplicateClass)
	}
	img.index[c.ID] = len(img.Classes)
	img.Classes = append(img.Classes, c)
	return nil
}

// Class returns the class with the given id.
func (img *Image) Class(id uint16) (*Class, bool) {
	i, ok := img.index[id]
	if !ok {
		return nil, false
	}
	return &img.Classes[i], true
}

// Code returns the executable code of a class, or nil.
func (img *Image) Code(classID uint16) []byte {
	c, ok := img.Class(classID)
	if !ok {
		return nil
	}
	return c.Code[c.Base:]
}

// ClassEvent returns the code offset of an event of a class. Unknown
// classes and events give offset 0.
func (img *Image) ClassEvent(classID, event uint16) uint16 {
	c, ok := img.Class(classID)
	if !ok || int(event) >= len(c.Events) {
		return 0
	}
	return c.Events[event]
}

// Marshal encodes the image in canonical CBOR.
func (img *Image) Marshal() ([]byte, error) {
	return encMode.Marshal(img)
}

// Save writes the image to w.
func (img *Image) Save(w io.Writer) error {
	data, err := img.Marshal()
	if err != nil {
		return fmt.Errorf("usecode: marshal image: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Unmarshal decodes and validates an image.
func Unmarshal(data []byte) (*Image, error) {
	var raw Image
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("usecode: unmarshal image: %w", err)
	}
	if raw.Version != ImageVersion {
		return nil, fmt.Errorf("usecode: version %d: %w", raw.Version, ErrVersion)
	}
	img := NewImage(raw.Ruleset)
	for _, c := range raw.Classes {
		if err := img.Add(c); err != nil {
			return nil, fmt.Errorf("usecode: %w", err)
		}
	}
	return img, nil
}

// Load reads an image from r.
func Load(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("usecode: read image: %w", err)
	}
	return Unmarshal(data)
}

// LoadFile reads an image file.
func LoadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return Unmarshal(data)
}
