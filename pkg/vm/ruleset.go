package vm

import (
	"fmt"
	"strings"
)

// Ruleset selects the game variant whose usecode the machine executes.
// It is fixed at construction and consulted at the few points where the
// variants disagree.
type Ruleset int

const (
	RulesetU8 Ruleset = iota
	RulesetRemorse
	RulesetRegret
)

// ParseRuleset parses a ruleset name as used in configuration files.
func ParseRuleset(s string) (Ruleset, error) {
	switch strings.ToLower(s) {
	case "u8", "ultima8":
		return RulesetU8, nil
	case "remorse", "crusader":
		return RulesetRemorse, nil
	case "regret":
		return RulesetRegret, nil
	default:
		return 0, fmt.Errorf("invalid ruleset: %s (must be u8, remorse, or regret)", s)
	}
}

func (r Ruleset) String() string {
	switch r {
	case RulesetU8:
		return "u8"
	case RulesetRemorse:
		return "remorse"
	case RulesetRegret:
		return "regret"
	default:
		return fmt.Sprintf("Ruleset(%d)", int(r))
	}
}

// IsCrusader reports whether r is one of the Crusader games.
func (r Ruleset) IsCrusader() bool {
	return r == RulesetRemorse || r == RulesetRegret
}

// NewGlobals returns an empty global store with the packing of r.
func (r Ruleset) NewGlobals() GlobalStore {
	if r == RulesetU8 {
		return NewBitSet(GlobalsSize)
	}
	return NewByteSet(GlobalsSize)
}

// AvatarGlobal returns the global that holds the avatar's object id at
// reset, if r seeds one.
func (r Ruleset) AvatarGlobal() (pos, width uint, ok bool) {
	switch r {
	case RulesetRemorse:
		return 0x3C, 2, true
	case RulesetRegret:
		return 0x1E, 2, true
	default:
		return 0, 0, false
	}
}

// ShiftValueFirst reports whether the value to shift is popped before the
// shift count. U8 and Crusader compile shifts with opposite operand order.
func (r Ruleset) ShiftValueFirst() bool {
	return r == RulesetU8
}

// GlobalWidthBits converts a global access width to bits.
func (r Ruleset) GlobalWidthBits(width uint) uint {
	if r == RulesetU8 {
		return width
	}
	return width * 8
}

// EventCalls reports whether call and spawn operands name an event number
// that must be translated through the class event table.
func (r Ruleset) EventCalls() bool {
	return r.IsCrusader()
}

// SearchRange scales a script-supplied area search range.
func (r Ruleset) SearchRange(n uint16) uint16 {
	if r.IsCrusader() {
		return n * 2
	}
	return n
}

// LoopAreaSize returns the number of stack bytes a loop of the given
// search type reserves, including the loopscript.
func (r Ruleset) LoopAreaSize(kind SearchKind, recurse bool) int {
	u8 := r == RulesetU8
	switch kind {
	case SearchArea:
		if u8 {
			return 0x34
		}
		return 0x3A
	case SearchContainer:
		n := 0x2A
		if u8 {
			n = 0x28
		}
		if recurse {
			n += 2
		}
		return n
	case SearchSurface:
		if u8 {
			return 0x3D
		}
		return 0x43
	default:
		return 0
	}
}
