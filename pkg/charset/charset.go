// Package charset converts heap strings between the games' 8-bit text
// encodings and UTF-8.
package charset

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Names of the supported charsets.
const (
	CP437       = "cp437"
	Latin1      = "latin1"
	Windows1252 = "windows1252"
	Raw         = "raw"
)

// Codec converts between a legacy encoding and UTF-8.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// Lookup returns the codec called name. The empty name selects CP437, the
// DOS code page the games shipped with.
func Lookup(name string) (*Codec, error) {
	switch strings.ToLower(name) {
	case "", CP437, "ibm437":
		return &Codec{name: CP437, enc: charmap.CodePage437}, nil
	case Latin1, "iso-8859-1", "iso8859-1":
		return &Codec{name: Latin1, enc: charmap.ISO8859_1}, nil
	case Windows1252, "cp1252":
		return &Codec{name: Windows1252, enc: charmap.Windows1252}, nil
	case Raw:
		return &Codec{name: Raw, enc: encoding.Nop}, nil
	default:
		return nil, fmt.Errorf("unknown charset %q", name)
	}
}

// Name returns the canonical charset name.
func (c *Codec) Name() string { return c.name }

// Decode converts game bytes to UTF-8.
func (c *Codec) Decode(b []byte) (string, error) {
	out, _, err := transform.Bytes(c.enc.NewDecoder(), b)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", c.name, err)
	}
	return string(out), nil
}

// Encode converts UTF-8 text to game bytes. Characters the charset lacks
// are an error.
func (c *Codec) Encode(s string) ([]byte, error) {
	out, _, err := transform.Bytes(c.enc.NewEncoder(), []byte(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", c.name, err)
	}
	return out, nil
}

// Display decodes b, replacing undecodable bytes. It is meant for log
// output.
func (c *Codec) Display(b []byte) string {
	s, err := c.Decode(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return s
}
