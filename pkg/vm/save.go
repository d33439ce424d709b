package vm

import (
	"fmt"
	"io"
)

// SaveVersion is the section format version written by this package.
const SaveVersion uint32 = 1

// SaveGlobals writes the global store section.
func (m *Machine) SaveGlobals(w io.Writer) error {
	return m.globals.Save(w)
}

// SaveStrings writes the string heap section.
func (m *Machine) SaveStrings(w io.Writer) error {
	return m.heap.SaveStrings(w)
}

// SaveLists writes the list heap section.
func (m *Machine) SaveLists(w io.Writer) error {
	return m.heap.SaveLists(w)
}

// LoadGlobals reads a global store section.
func (m *Machine) LoadGlobals(r io.Reader, version uint32) error {
	if err := checkVersion(version); err != nil {
		return err
	}
	if err := m.globals.Load(r, version); err != nil {
		return fmt.Errorf("globals: %w", err)
	}
	return nil
}

// LoadStrings reads a string heap section.
func (m *Machine) LoadStrings(r io.Reader, version uint32) error {
	if err := checkVersion(version); err != nil {
		return err
	}
	if err := m.heap.LoadStrings(r, version); err != nil {
		return fmt.Errorf("strings: %w", err)
	}
	return nil
}

// LoadLists reads a list heap section.
func (m *Machine) LoadLists(r io.Reader, version uint32) error {
	if err := checkVersion(version); err != nil {
		return err
	}
	if err := m.heap.LoadLists(r, version); err != nil {
		return fmt.Errorf("lists: %w", err)
	}
	return nil
}

func checkVersion(version uint32) error {
	if version == 0 || version > SaveVersion {
		return fmt.Errorf("unsupported section version %d: %w", version, ErrCorruptSave)
	}
	return nil
}
