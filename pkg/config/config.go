// Package config handles ucvm.toml run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/zurustar/ucvm/pkg/charset"
	"github.com/zurustar/ucvm/pkg/fileutil"
	"github.com/zurustar/ucvm/pkg/vm"
)

// FileName is the name FindAndLoad looks for.
const FileName = "ucvm.toml"

// Config represents a ucvm.toml file.
type Config struct {
	Ruleset    string `toml:"ruleset"`
	LogLevel   string `toml:"log_level"`
	Charset    string `toml:"charset"`
	StackSize  int    `toml:"stack_size"`
	AvatarName string `toml:"avatar_name"`

	Trace  Trace  `toml:"trace"`
	Kernel Kernel `toml:"kernel"`
	Entry  Entry  `toml:"entry"`
	World  World  `toml:"world"`

	// Intrinsics installs built-in intrinsics by name at the given index.
	Intrinsics map[string]uint16 `toml:"intrinsics"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// Trace selects the processes whose instructions are logged. Empty lists
// trace everything.
type Trace struct {
	Enabled bool     `toml:"enabled"`
	PIDs    []uint16 `toml:"pids"`
	Classes []uint16 `toml:"classes"`
}

// Kernel bounds a run.
type Kernel struct {
	MaxTicks uint32        `toml:"max_ticks"`
	Timeout  time.Duration `toml:"timeout"`
}

// Entry is the process started by a run.
type Entry struct {
	Class  uint16 `toml:"class"`
	Offset uint16 `toml:"offset"`
	Item   uint16 `toml:"item"`
}

// World seeds the in-memory world.
type World struct {
	Items []Item `toml:"items"`
}

// Item is one world item.
type Item struct {
	ID        uint16 `toml:"id"`
	Shape     uint16 `toml:"shape"`
	Frame     uint16 `toml:"frame"`
	Quality   uint16 `toml:"quality"`
	X         int32  `toml:"x"`
	Y         int32  `toml:"y"`
	Z         int32  `toml:"z"`
	XLen      int32  `toml:"xlen"`
	YLen      int32  `toml:"ylen"`
	ZLen      int32  `toml:"zlen"`
	Container uint16 `toml:"container"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Ruleset:    vm.RulesetU8.String(),
		LogLevel:   "info",
		Charset:    charset.CP437,
		StackSize:  vm.DefaultStackSize,
		AvatarName: "Avatar",
	}
}

// Load parses a configuration file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a ucvm.toml file and loads
// it. It returns the defaults if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if path, err := fileutil.FindFileCaseInsensitive(dir, FileName); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks values that the toml types cannot express.
func (c *Config) Validate() error {
	if _, err := vm.ParseRuleset(c.Ruleset); err != nil {
		return err
	}
	if _, err := charset.Lookup(c.Charset); err != nil {
		return err
	}
	if c.StackSize <= 0 || c.StackSize > 0x10000 {
		return fmt.Errorf("stack_size %d out of range", c.StackSize)
	}
	if c.Kernel.Timeout < 0 {
		return fmt.Errorf("negative timeout %v", c.Kernel.Timeout)
	}
	for name := range c.Intrinsics {
		if _, ok := vm.BuiltinIntrinsic(name); !ok {
			return fmt.Errorf("unknown intrinsic %q (known: %s)", name, strings.Join(vm.BuiltinIntrinsicNames(), ", "))
		}
	}
	seen := make(map[uint16]bool, len(c.World.Items))
	for _, it := range c.World.Items {
		if it.ID == 0 || seen[it.ID] {
			return fmt.Errorf("world item id %d is zero or duplicated", it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}

// RulesetValue returns the parsed ruleset.
func (c *Config) RulesetValue() vm.Ruleset {
	r, err := vm.ParseRuleset(c.Ruleset)
	if err != nil {
		return vm.RulesetU8
	}
	return r
}
