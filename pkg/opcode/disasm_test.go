package opcode

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		pos  int
		op   Op
		len  int
	}{
		{"no operands", []byte{0x14}, 0, Add, 1},
		{"byte operand", []byte{0x0A, 0xFF}, 0, PushSByte, 2},
		{"call", []byte{0x11, 0x01, 0x00, 0x20, 0x00}, 0, Call, 5},
		{"push string", []byte{0x0D, 0x02, 0x00, 'h', 'i', 0x00}, 0, PushString, 6},
		{"second instruction", []byte{0x14, 0x0B, 0x34, 0x12}, 1, PushWord, 3},
		{"unknown opcode", []byte{0x04}, 0, Op(0x04), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode(tt.code, tt.pos)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if in.Op != tt.op || in.Len() != tt.len || in.Offset != tt.pos {
				t.Errorf("Decode = %+v (len %d), want op %02X len %d", in, in.Len(), byte(tt.op), tt.len)
			}
		})
	}
}

func TestDecode_Truncated(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		pos  int
	}{
		{"past end", []byte{0x14}, 1},
		{"negative", []byte{0x14}, -1},
		{"missing operand", []byte{0x0B, 0x01}, 0},
		{"missing string length", []byte{0x0D, 0x01}, 0},
		{"short string", []byte{0x0D, 0x05, 0x00, 'a'}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.code, tt.pos)
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("Decode error = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want string
	}{
		{"plain", []byte{0x14}, "0000: 14\tadd"},
		{"operands", []byte{0x4F, 0x10, 0x00, 0x08}, "0000: 4F\tpop global 10 00 08"},
		{"string", []byte{0x0D, 0x02, 0x00, 'h', 'i', 0x00}, "0000: 0D\tpush string\t\"hi\""},
		{"jump target", []byte{0x52, 0xFD, 0xFF}, "0000: 52\tjmp\t0000"},
		{"call", []byte{0x11, 0x34, 0x12, 0x20, 0x00}, "0000: 11\tcall\t1234:0020"},
		{"intrinsic", []byte{0x0F, 0x04, 0x11, 0x00}, "0000: 0F\tcalli\t0011 (04 arg bytes)"},
		{"unknown", []byte{0x04}, "0000: 04\top_04"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode(tt.code, 0)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := in.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisassemble(t *testing.T) {
	code := []byte{
		0x0A, 0x05, // push sbyte
		0x51, 0x01, 0x00, // jne +1
		0x53, // suspend
		0x50, // ret
	}
	var buf bytes.Buffer
	if err := Disassemble(&buf, code); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"0000: 0A\tpush sbyte 05",
		"0002: 51\tjne\t0006",
		"0005: 53\tsuspend",
		"0006: 50\tret",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	buf.Reset()
	if err := Disassemble(&buf, []byte{0x14, 0x0B}); !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated code: err = %v", err)
	}
	if !strings.Contains(buf.String(), "add") {
		t.Errorf("instructions before the fault not written: %q", buf.String())
	}
}

func TestLookup(t *testing.T) {
	if info, ok := Lookup(Spawn); !ok || info.Operands != 6 {
		t.Errorf("Lookup(Spawn) = %+v, %v", info, ok)
	}
	if info, ok := Lookup(PushString); !ok || info.Operands != Variable {
		t.Errorf("Lookup(PushString) = %+v, %v", info, ok)
	}
	if _, ok := Lookup(Op(0x04)); ok {
		t.Error("Lookup(0x04) reported a known opcode")
	}
}
