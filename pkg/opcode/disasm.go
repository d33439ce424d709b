package opcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrTruncated is returned when an instruction runs past the end of the code.
var ErrTruncated = errors.New("instruction truncated")

// Instruction is one decoded instruction.
type Instruction struct {
	Offset   int
	Op       Op
	Operands []byte
}

// Len returns the encoded length including the opcode byte.
func (in Instruction) Len() int {
	return 1 + len(in.Operands)
}

// Decode decodes the instruction starting at code[pos].
func Decode(code []byte, pos int) (Instruction, error) {
	if pos < 0 || pos >= len(code) {
		return Instruction{}, fmt.Errorf("offset %04X: %w", pos, ErrTruncated)
	}
	op := Op(code[pos])
	n := 0
	if info, ok := Lookup(op); ok {
		n = info.Operands
	}
	if n == Variable {
		// 0D ll ll text.. 00
		if pos+3 > len(code) {
			return Instruction{}, fmt.Errorf("offset %04X: %w", pos, ErrTruncated)
		}
		n = 2 + int(binary.LittleEndian.Uint16(code[pos+1:])) + 1
	}
	if pos+1+n > len(code) {
		return Instruction{}, fmt.Errorf("offset %04X: %w", pos, ErrTruncated)
	}
	return Instruction{Offset: pos, Op: op, Operands: code[pos+1 : pos+1+n]}, nil
}

// String formats the instruction the way a usecode listing shows it.
func (in Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04X: %02X\t%s", in.Offset, byte(in.Op), in.Op)
	switch in.Op {
	case PushString:
		text := in.Operands[2 : len(in.Operands)-1]
		fmt.Fprintf(&sb, "\t%q", string(text))
	case Jne, Jmp:
		rel := int16(binary.LittleEndian.Uint16(in.Operands))
		fmt.Fprintf(&sb, "\t%04X", in.Offset+in.Len()+int(rel))
	case Call:
		fmt.Fprintf(&sb, "\t%04X:%04X",
			binary.LittleEndian.Uint16(in.Operands), binary.LittleEndian.Uint16(in.Operands[2:]))
	case CallIntrinsic:
		fmt.Fprintf(&sb, "\t%04X (%02X arg bytes)",
			binary.LittleEndian.Uint16(in.Operands[1:]), in.Operands[0])
	default:
		for _, b := range in.Operands {
			fmt.Fprintf(&sb, " %02X", b)
		}
	}
	return sb.String()
}

// Disassemble writes one line per instruction of code to w. Decoding stops
// at the first truncated instruction, which is reported as an error.
func Disassemble(w io.Writer, code []byte) error {
	for pos := 0; pos < len(code); {
		in, err := Decode(code, pos)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, in.String()); err != nil {
			return err
		}
		pos += in.Len()
	}
	return nil
}
