package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zurustar/ucvm/pkg/vm"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
ruleset = "remorse"
log_level = "debug"
avatar_name = "Silencer"

[trace]
enabled = true
pids = [1, 2]
classes = [0x100]

[kernel]
max_ticks = 500
timeout = "2s"

[entry]
class = 1
offset = 0x20
item = 7

[intrinsics]
numToStr = 0x0D
getName = 0x11

[[world.items]]
id = 7
shape = 1
x = 10
y = 20

[[world.items]]
id = 8
shape = 2
container = 7
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.RulesetValue() != vm.RulesetRemorse {
		t.Errorf("ruleset = %v", c.RulesetValue())
	}
	if c.LogLevel != "debug" || c.AvatarName != "Silencer" {
		t.Errorf("scalars = %q %q", c.LogLevel, c.AvatarName)
	}
	if c.Charset != "cp437" || c.StackSize != vm.DefaultStackSize {
		t.Errorf("defaults not kept: charset %q stack %d", c.Charset, c.StackSize)
	}
	if !c.Trace.Enabled || len(c.Trace.PIDs) != 2 || c.Trace.Classes[0] != 0x100 {
		t.Errorf("trace = %+v", c.Trace)
	}
	if c.Kernel.MaxTicks != 500 || c.Kernel.Timeout != 2*time.Second {
		t.Errorf("kernel = %+v", c.Kernel)
	}
	if c.Entry != (Entry{Class: 1, Offset: 0x20, Item: 7}) {
		t.Errorf("entry = %+v", c.Entry)
	}
	if len(c.World.Items) != 2 || c.World.Items[1].Container != 7 {
		t.Errorf("world = %+v", c.World)
	}
	if c.Intrinsics["numToStr"] != 0x0D || c.Intrinsics["getName"] != 0x11 {
		t.Errorf("intrinsics = %v", c.Intrinsics)
	}
	if c.Dir == "" {
		t.Error("Dir not set")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "ruleset = ", "parse error"},
		{"unknown key", "rulset = \"u8\"", "unknown key"},
		{"ruleset", "ruleset = \"u9\"", "invalid ruleset"},
		{"charset", "charset = \"ebcdic\"", "unknown charset"},
		{"stack size", "stack_size = 0", "stack_size"},
		{"intrinsic", "[intrinsics]\nfly = 1\n", "unknown intrinsic"},
		{"duplicate item", "[[world.items]]\nid = 3\n[[world.items]]\nid = 3\n", "duplicated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `ruleset = "regret"`)
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c.RulesetValue() != vm.RulesetRegret {
		t.Errorf("ruleset = %q, want regret", c.Ruleset)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if c.RulesetValue() != vm.RulesetU8 {
		t.Errorf("default ruleset = %v", c.RulesetValue())
	}
}
