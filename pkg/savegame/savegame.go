// Package savegame frames the usecode machine's persistent sections (the
// global store, the string heap and the list heap) in a CBOR file.
package savegame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/zurustar/ucvm/pkg/vm"
)

// ErrRuleset is returned when a save was written by a machine of another
// game.
var ErrRuleset = errors.New("save was made for a different ruleset")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("savegame: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// File is the on-disk form of a save.
type File struct {
	Version uint32 `cbor:"version"`
	Ruleset string `cbor:"ruleset"`
	Globals []byte `cbor:"globals"`
	Strings []byte `cbor:"strings"`
	Lists   []byte `cbor:"lists"`
}

// Capture collects the sections of m.
func Capture(m *vm.Machine) (*File, error) {
	f := &File{Version: vm.SaveVersion, Ruleset: m.Ruleset().String()}
	var buf bytes.Buffer
	if err := m.SaveGlobals(&buf); err != nil {
		return nil, fmt.Errorf("savegame: globals: %w", err)
	}
	f.Globals = bytes.Clone(buf.Bytes())
	buf.Reset()
	if err := m.SaveStrings(&buf); err != nil {
		return nil, fmt.Errorf("savegame: strings: %w", err)
	}
	f.Strings = bytes.Clone(buf.Bytes())
	buf.Reset()
	if err := m.SaveLists(&buf); err != nil {
		return nil, fmt.Errorf("savegame: lists: %w", err)
	}
	f.Lists = bytes.Clone(buf.Bytes())
	return f, nil
}

// Restore loads the sections of f into m. A section that fails to load
// leaves that part of m unchanged.
func (f *File) Restore(m *vm.Machine) error {
	if f.Ruleset != m.Ruleset().String() {
		return fmt.Errorf("savegame: %s save on %s machine: %w", f.Ruleset, m.Ruleset(), ErrRuleset)
	}
	if err := m.LoadGlobals(bytes.NewReader(f.Globals), f.Version); err != nil {
		return fmt.Errorf("savegame: %w", err)
	}
	if err := m.LoadStrings(bytes.NewReader(f.Strings), f.Version); err != nil {
		return fmt.Errorf("savegame: %w", err)
	}
	if err := m.LoadLists(bytes.NewReader(f.Lists), f.Version); err != nil {
		return fmt.Errorf("savegame: %w", err)
	}
	return nil
}

// Write encodes the sections of m to w.
func Write(w io.Writer, m *vm.Machine) error {
	f, err := Capture(m)
	if err != nil {
		return err
	}
	data, err := encMode.Marshal(f)
	if err != nil {
		return fmt.Errorf("savegame: marshal: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Read decodes a save from r and restores it into m.
func Read(r io.Reader, m *vm.Machine) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("savegame: read: %w", err)
	}
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("savegame: unmarshal: %w", err)
	}
	return f.Restore(m)
}

// WriteFile saves m to path.
func WriteFile(path string, m *vm.Machine) error {
	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write save: %w", err)
	}
	return nil
}

// ReadFile restores m from the save at path.
func ReadFile(path string, m *vm.Machine) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open save: %w", err)
	}
	defer fh.Close()
	return Read(fh, m)
}
