package app

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zurustar/ucvm/pkg/logger"
	"github.com/zurustar/ucvm/pkg/savegame"
	"github.com/zurustar/ucvm/pkg/usecode"
	"github.com/zurustar/ucvm/pkg/vm"
)

// entryProgram stores "hello", calls getName, computes 5-3 into a global
// and returns.
var entryProgram = []byte{
	0x0D, 0x05, 0x00, 'h', 'e', 'l', 'l', 'o', 0x00, // push string
	0x12,                   // pop temp
	0x0F, 0x00, 0x02, 0x00, // calli 0002
	0x0A, 0x05, // push sbyte 5
	0x0A, 0x03, // push sbyte 3
	0x1C,                   // sub
	0x4F, 0x10, 0x00, 0x08, // pop global [0010 08]
	0x50, // ret
}

const testConfig = `
avatar_name = "Lord British"

[intrinsics]
getName = 2

[entry]
class = 1
`

func setup(t *testing.T) (dir, image, conf string) {
	t.Helper()
	t.Setenv("TIMEOUT", "")
	t.Setenv("LOG_LEVEL", "")

	dir = t.TempDir()
	img := usecode.NewImage("u8")
	if err := img.Add(usecode.Class{ID: 1, Name: "ENTRY", Code: entryProgram}); err != nil {
		t.Fatal(err)
	}
	image = filepath.Join(dir, "game.cbor")
	var buf bytes.Buffer
	if err := img.Save(&buf); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(image, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	conf = filepath.Join(dir, "ucvm.toml")
	if err := os.WriteFile(conf, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, image, conf
}

func TestRun_EntryToCompletion(t *testing.T) {
	dir, image, conf := setup(t)
	save := filepath.Join(dir, "out.sav")

	var out bytes.Buffer
	app := NewWithOutput(&out, io.Discard)
	if err := app.Run([]string{"-c", conf, "--stats", "--save", save, image}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{"processes: 0", `string 1: "hello"`, `string 2: "Lord British"`} {
		if !strings.Contains(got, want) {
			t.Errorf("stats output missing %q:\n%s", want, got)
		}
	}

	m := vm.New(nil, vm.WithLogger(logger.Discard()))
	if err := savegame.ReadFile(save, m); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if v := m.Globals().Get(0x10, 8); v != 2 {
		t.Errorf("saved global = %d, want 2", v)
	}
}

func TestRun_Disasm(t *testing.T) {
	_, image, conf := setup(t)

	var out bytes.Buffer
	app := NewWithOutput(&out, io.Discard)
	if err := app.Run([]string{"--config", conf, "--disasm", image}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{"class 0001", "push string\t\"hello\"", "calli", "0017: 50\tret"} {
		if !strings.Contains(got, want) {
			t.Errorf("disassembly missing %q:\n%s", want, got)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	_, image, conf := setup(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no image", []string{"-c", conf}},
		{"missing image", []string{"-c", conf, filepath.Join(t.TempDir(), "none.cbor")}},
		{"bad ruleset", []string{"-c", conf, "--ruleset", "u7", image}},
		{"missing class", []string{"-c", conf, "--class", "9", "--disasm", image}},
		{"missing save", []string{"-c", conf, "--load", filepath.Join(t.TempDir(), "none.sav"), image}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewWithOutput(io.Discard, io.Discard)
			if err := app.Run(tt.args); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
