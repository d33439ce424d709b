package world

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Loopscript tokens. A loopscript is a postfix expression over the
// candidate item, ended by TokenEnd or the end of the script. An empty
// script matches every item.
const (
	TokenFalse   byte = 0x00
	TokenTrue    byte = 0x01
	TokenAnd     byte = '&'
	TokenOr      byte = '+'
	TokenNot     byte = '!'
	TokenEnd     byte = '$'
	TokenInt     byte = '*' // followed by a little-endian uint16
	TokenEq      byte = '='
	TokenNe      byte = '#'
	TokenLt      byte = '<'
	TokenLe      byte = '['
	TokenGt      byte = '>'
	TokenGe      byte = ']'
	TokenShape   byte = 'S'
	TokenFrame   byte = 'F'
	TokenQuality byte = 'Q'
	TokenX       byte = 'X'
	TokenY       byte = 'Y'
	TokenZ       byte = 'Z'
)

var (
	ErrScriptUnderflow = errors.New("loopscript stack underflow")
	ErrScriptToken     = errors.New("unknown loopscript token")
	ErrScriptResult    = errors.New("loopscript must leave exactly one value")
)

// Match evaluates script against it.
func Match(script []byte, it *Item) (bool, error) {
	var st []int32
	pop := func() (int32, bool) {
		if len(st) == 0 {
			return 0, false
		}
		v := st[len(st)-1]
		st = st[:len(st)-1]
		return v, true
	}
	b2i := func(b bool) int32 {
		if b {
			return 1
		}
		return 0
	}

	for i := 0; i < len(script); i++ {
		tok := script[i]
		switch tok {
		case TokenEnd:
			i = len(script)
			continue
		case TokenFalse:
			st = append(st, 0)
		case TokenTrue:
			st = append(st, 1)
		case TokenInt:
			if i+2 >= len(script) {
				return false, fmt.Errorf("offset %d: truncated constant: %w", i, ErrScriptUnderflow)
			}
			st = append(st, int32(int16(binary.LittleEndian.Uint16(script[i+1:]))))
			i += 2
		case TokenShape:
			st = append(st, int32(it.Shape))
		case TokenFrame:
			st = append(st, int32(it.Frame))
		case TokenQuality:
			st = append(st, int32(it.Quality))
		case TokenX:
			st = append(st, it.X)
		case TokenY:
			st = append(st, it.Y)
		case TokenZ:
			st = append(st, it.Z)
		case TokenNot:
			a, ok := pop()
			if !ok {
				return false, fmt.Errorf("offset %d: %w", i, ErrScriptUnderflow)
			}
			st = append(st, b2i(a == 0))
		case TokenAnd, TokenOr, TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe:
			b, ok1 := pop()
			a, ok2 := pop()
			if !ok1 || !ok2 {
				return false, fmt.Errorf("offset %d: %w", i, ErrScriptUnderflow)
			}
			var r bool
			switch tok {
			case TokenAnd:
				r = a != 0 && b != 0
			case TokenOr:
				r = a != 0 || b != 0
			case TokenEq:
				r = a == b
			case TokenNe:
				r = a != b
			case TokenLt:
				r = a < b
			case TokenLe:
				r = a <= b
			case TokenGt:
				r = a > b
			case TokenGe:
				r = a >= b
			}
			st = append(st, b2i(r))
		default:
			return false, fmt.Errorf("offset %d: token %#02x: %w", i, tok, ErrScriptToken)
		}
	}

	switch len(st) {
	case 0:
		return true, nil
	case 1:
		return st[0] != 0, nil
	default:
		return false, ErrScriptResult
	}
}
