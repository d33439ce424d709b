package vm

import "github.com/zurustar/ucvm/pkg/opcode"

// Binary operators pop a (the right operand) first, then b, and push b op a.

func binary16(op opcode.Op, f func(b, a int16) uint16) {
	register(op, func(x *exec) error {
		a := int16(x.p.Stack.Pop2())
		b := int16(x.p.Stack.Pop2())
		x.p.Stack.Push2(f(b, a))
		return nil
	})
}

func binary32(op opcode.Op, f func(b, a int32) uint32) {
	register(op, func(x *exec) error {
		a := int32(x.p.Stack.Pop4())
		b := int32(x.p.Stack.Pop4())
		x.p.Stack.Push4(f(b, a))
		return nil
	})
}

// compare32 pops two dwords and pushes a word.
func compare32(op opcode.Op, f func(b, a int32) bool) {
	register(op, func(x *exec) error {
		a := int32(x.p.Stack.Pop4())
		b := int32(x.p.Stack.Pop4())
		x.p.Stack.Push2(boolWord(f(b, a)))
		return nil
	})
}

func div16(name string, f func(b, a int16) int16) handler {
	return func(x *exec) error {
		a := int16(x.p.Stack.Pop2())
		b := int16(x.p.Stack.Pop2())
		if a == 0 {
			x.p.Stack.Push2(0)
			return NewDivisionByZeroError(name)
		}
		x.p.Stack.Push2(uint16(f(b, a)))
		return nil
	}
}

func div32(name string, f func(b, a int32) int32) handler {
	return func(x *exec) error {
		a := int32(x.p.Stack.Pop4())
		b := int32(x.p.Stack.Pop4())
		if a == 0 {
			x.p.Stack.Push4(0)
			return NewDivisionByZeroError(name)
		}
		x.p.Stack.Push4(uint32(f(b, a)))
		return nil
	}
}

func init() {
	binary16(opcode.Add, func(b, a int16) uint16 { return uint16(b + a) })
	binary16(opcode.Sub, func(b, a int16) uint16 { return uint16(b - a) })
	binary16(opcode.Mul, func(b, a int16) uint16 { return uint16(b * a) })
	binary32(opcode.AddDword, func(b, a int32) uint32 { return uint32(b + a) })
	binary32(opcode.SubDword, func(b, a int32) uint32 { return uint32(b - a) })
	binary32(opcode.MulDword, func(b, a int32) uint32 { return uint32(b * a) })

	register(opcode.Div, div16("0x20", func(b, a int16) int16 { return b / a }))
	register(opcode.Mod, div16("0x22", func(b, a int16) int16 { return b % a }))
	register(opcode.DivDword, div32("0x21", func(b, a int32) int32 { return b / a }))
	register(opcode.ModDword, div32("0x23", func(b, a int32) int32 { return b % a }))

	binary16(opcode.Cmp, func(b, a int16) uint16 { return boolWord(b == a) })
	binary16(opcode.Ne, func(b, a int16) uint16 { return boolWord(b != a) })
	binary16(opcode.Lt, func(b, a int16) uint16 { return boolWord(b < a) })
	binary16(opcode.Le, func(b, a int16) uint16 { return boolWord(b <= a) })
	binary16(opcode.Gt, func(b, a int16) uint16 { return boolWord(b > a) })
	binary16(opcode.Ge, func(b, a int16) uint16 { return boolWord(b >= a) })
	compare32(opcode.CmpDword, func(b, a int32) bool { return b == a })
	compare32(opcode.NeDword, func(b, a int32) bool { return b != a })
	compare32(opcode.LtDword, func(b, a int32) bool { return b < a })
	compare32(opcode.LeDword, func(b, a int32) bool { return b <= a })
	compare32(opcode.GtDword, func(b, a int32) bool { return b > a })
	compare32(opcode.GeDword, func(b, a int32) bool { return b >= a })

	binary16(opcode.And, func(b, a int16) uint16 { return boolWord(a != 0 && b != 0) })
	binary16(opcode.Or, func(b, a int16) uint16 { return boolWord(a != 0 || b != 0) })
	binary32(opcode.AndDword, func(b, a int32) uint32 { return uint32(boolWord(a != 0 && b != 0)) })
	binary32(opcode.OrDword, func(b, a int32) uint32 { return uint32(boolWord(a != 0 || b != 0)) })
	register(opcode.Not, func(x *exec) error {
		x.p.Stack.Push2(boolWord(x.p.Stack.Pop2() == 0))
		return nil
	})
	register(opcode.NotDword, func(x *exec) error {
		x.p.Stack.Push2(boolWord(x.p.Stack.Pop4() == 0))
		return nil
	})

	binary16(opcode.BitAnd, func(b, a int16) uint16 { return uint16(b & a) })
	binary16(opcode.BitOr, func(b, a int16) uint16 { return uint16(b | a) })
	register(opcode.BitNot, func(x *exec) error {
		x.p.Stack.Push2(^x.p.Stack.Pop2())
		return nil
	})

	register(opcode.Lsh, shift(func(v int16, n uint16) int16 { return v << n }))
	register(opcode.Rsh, shift(func(v int16, n uint16) int16 { return v >> n }))
}

// shift pops the value and the count in the order the ruleset compiles
// them. Right shifts are arithmetic.
func shift(f func(v int16, n uint16) int16) handler {
	return func(x *exec) error {
		var v int16
		var n uint16
		if x.m.ruleset.ShiftValueFirst() {
			v = int16(x.p.Stack.Pop2())
			n = x.p.Stack.Pop2()
		} else {
			n = x.p.Stack.Pop2()
			v = int16(x.p.Stack.Pop2())
		}
		x.p.Stack.Push2(uint16(f(v, n)))
		return nil
	}
}
