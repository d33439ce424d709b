// Package opcode defines the usecode instruction set.
// This package is the foundation that both the VM and the tooling depend on.
// The VM dispatches on Op values, the disassembler decodes them for humans.
package opcode

import "fmt"

// Op is a single usecode opcode byte.
type Op byte

// Opcodes understood by the machine. Gaps in the numbering are opcodes that
// exist in the instruction encoding but are never emitted by the compiler.
const (
	PopByte       Op = 0x00 // 00 xx: pop 16 bit, store low byte at bp+xx
	Pop           Op = 0x01 // 01 xx: pop 16 bit into bp+xx
	PopDword      Op = 0x02 // 02 xx: pop 32 bit into bp+xx
	PopHuge       Op = 0x03 // 03 xx yy: pop yy bytes into bp+xx
	PopResult     Op = 0x08 // 08: pop 32 bit into process result
	PopElement    Op = 0x09 // 09 xx yy zz: pop yy bytes into list element
	PushSByte     Op = 0x0A // 0A xx: push sign-extended byte as 16 bit
	PushWord      Op = 0x0B // 0B xx xx
	PushDword     Op = 0x0C // 0C xx xx xx xx
	PushString    Op = 0x0D // 0D ll ll text.. 00
	CreateList    Op = 0x0E // 0E xx yy: pop yy values of size xx into a list
	CallIntrinsic Op = 0x0F // 0F xx yy yy
	Call          Op = 0x11 // 11 cc cc oo oo
	PopTemp       Op = 0x12
	PopTempDword  Op = 0x13
	Add           Op = 0x14
	AddDword      Op = 0x15
	Concat        Op = 0x16
	AppendList    Op = 0x17
	UnionSList    Op = 0x19 // 19 02
	SubtractSList Op = 0x1A // 1A 02
	SubtractList  Op = 0x1B // 1B xx
	Sub           Op = 0x1C
	SubDword      Op = 0x1D
	Mul           Op = 0x1E
	MulDword      Op = 0x1F
	Div           Op = 0x20
	DivDword      Op = 0x21
	Mod           Op = 0x22
	ModDword      Op = 0x23
	Cmp           Op = 0x24
	CmpDword      Op = 0x25
	StrCmp        Op = 0x26
	Lt            Op = 0x28
	LtDword       Op = 0x29
	Le            Op = 0x2A
	LeDword       Op = 0x2B
	Gt            Op = 0x2C
	GtDword       Op = 0x2D
	Ge            Op = 0x2E
	GeDword       Op = 0x2F
	Not           Op = 0x30
	NotDword      Op = 0x31
	And           Op = 0x32
	AndDword      Op = 0x33
	Or            Op = 0x34
	OrDword       Op = 0x35
	Ne            Op = 0x36
	NeDword       Op = 0x37
	InList        Op = 0x38 // 38 xx yy
	BitAnd        Op = 0x39
	BitOr         Op = 0x3A
	BitNot        Op = 0x3B
	Lsh           Op = 0x3C
	Rsh           Op = 0x3D
	PushVarByte   Op = 0x3E // 3E xx
	PushVar       Op = 0x3F // 3F xx
	PushVarDword  Op = 0x40 // 40 xx
	PushVarString Op = 0x41 // 41 xx
	PushVarList   Op = 0x42 // 42 xx yy
	PushVarSList  Op = 0x43 // 43 xx
	PushElement   Op = 0x44 // 44 xx yy
	PushHuge      Op = 0x45 // 45 xx yy
	PushAddr      Op = 0x4B // 4B xx
	PushIndirect  Op = 0x4C // 4C xx
	PopIndirect   Op = 0x4D // 4D xx
	PushGlobal    Op = 0x4E // 4E xx xx yy
	PopGlobal     Op = 0x4F // 4F xx xx yy
	Ret           Op = 0x50
	Jne           Op = 0x51 // 51 xx xx
	Jmp           Op = 0x52 // 52 xx xx
	Suspend       Op = 0x53
	Implies       Op = 0x54 // 54 01 01
	Spawn         Op = 0x57 // 57 aa tt cc cc oo oo
	SpawnInline   Op = 0x58 // 58 cc cc oo oo dd dd tt uu
	PushPID       Op = 0x59
	Init          Op = 0x5A // 5A xx
	LineNumber    Op = 0x5B // 5B xx xx
	SymbolInfo    Op = 0x5C // 5C xx xx name[9]
	PushTempByte  Op = 0x5D
	PushTemp      Op = 0x5E
	PushTempDword Op = 0x5F
	IntToLong     Op = 0x60
	LongToInt     Op = 0x61
	FreeString    Op = 0x62 // 62 xx
	FreeSList     Op = 0x63 // 63 xx
	FreeList      Op = 0x64 // 64 xx
	FreeStringSP  Op = 0x65 // 65 xx
	FreeListSP    Op = 0x66 // 66 xx
	FreeSListSP   Op = 0x67 // 67 xx
	StrToPtr      Op = 0x69 // 69 xx
	PopStrToPtr   Op = 0x6B
	ParamPIDChg   Op = 0x6C // 6C xx yy
	PushResult    Op = 0x6D
	MoveSP        Op = 0x6E // 6E xx
	PushAddrSP    Op = 0x6F // 6F xx
	Loop          Op = 0x70 // 70 xx yy zz
	LoopNext      Op = 0x73
	LoopScript    Op = 0x74 // 74 xx
	Foreach       Op = 0x75 // 75 xx yy zz zz
	ForeachString Op = 0x76 // 76 xx yy zz zz
	SetInfo       Op = 0x77
	ProcessExcl   Op = 0x78
	PushGlobalPtr Op = 0x79 // 79 xx xx
	End           Op = 0x7A
)

// Variable marks an instruction whose length depends on its operands.
const Variable = -1

// Info describes the static shape of an opcode.
type Info struct {
	Name string
	// Operands is the number of operand bytes following the opcode byte,
	// or Variable.
	Operands int
}

var table = [256]*Info{
	PopByte:       {"pop byte", 1},
	Pop:           {"pop", 1},
	PopDword:      {"pop dword", 1},
	PopHuge:       {"pop huge", 2},
	PopResult:     {"pop result", 0},
	PopElement:    {"assign element", 3},
	PushSByte:     {"push sbyte", 1},
	PushWord:      {"push", 2},
	PushDword:     {"push dword", 4},
	PushString:    {"push string", Variable},
	CreateList:    {"create list", 2},
	CallIntrinsic: {"calli", 3},
	Call:          {"call", 4},
	PopTemp:       {"pop temp", 0},
	PopTempDword:  {"pop temp dword", 0},
	Add:           {"add", 0},
	AddDword:      {"add long", 0},
	Concat:        {"concat", 0},
	AppendList:    {"append", 0},
	UnionSList:    {"union slist", 1},
	SubtractSList: {"remove slist", 1},
	SubtractList:  {"remove list", 1},
	Sub:           {"sub", 0},
	SubDword:      {"sub long", 0},
	Mul:           {"mul", 0},
	MulDword:      {"mul long", 0},
	Div:           {"div", 0},
	DivDword:      {"div long", 0},
	Mod:           {"mod", 0},
	ModDword:      {"mod long", 0},
	Cmp:           {"cmp", 0},
	CmpDword:      {"cmp long", 0},
	StrCmp:        {"strcmp", 0},
	Lt:            {"lt", 0},
	LtDword:       {"lt long", 0},
	Le:            {"le", 0},
	LeDword:       {"le long", 0},
	Gt:            {"gt", 0},
	GtDword:       {"gt long", 0},
	Ge:            {"ge", 0},
	GeDword:       {"ge long", 0},
	Not:           {"not", 0},
	NotDword:      {"not long", 0},
	And:           {"and", 0},
	AndDword:      {"and long", 0},
	Or:            {"or", 0},
	OrDword:       {"or long", 0},
	Ne:            {"ne", 0},
	NeDword:       {"ne long", 0},
	InList:        {"in list", 2},
	BitAnd:        {"bit_and", 0},
	BitOr:         {"bit_or", 0},
	BitNot:        {"bit_not", 0},
	Lsh:           {"lsh", 0},
	Rsh:           {"rsh", 0},
	PushVarByte:   {"push byte", 1},
	PushVar:       {"push", 1},
	PushVarDword:  {"push dword", 1},
	PushVarString: {"push string", 1},
	PushVarList:   {"push list", 2},
	PushVarSList:  {"push slist", 1},
	PushElement:   {"push element", 2},
	PushHuge:      {"push huge", 2},
	PushAddr:      {"push addr", 1},
	PushIndirect:  {"push indirect", 1},
	PopIndirect:   {"pop indirect", 1},
	PushGlobal:    {"push global", 3},
	PopGlobal:     {"pop global", 3},
	Ret:           {"ret", 0},
	Jne:           {"jne", 2},
	Jmp:           {"jmp", 2},
	Suspend:       {"suspend", 0},
	Implies:       {"implies", 2},
	Spawn:         {"spawn", 6},
	SpawnInline:   {"spawn inline", 8},
	PushPID:       {"push pid", 0},
	Init:          {"init", 1},
	LineNumber:    {"line number", 2},
	SymbolInfo:    {"symbol info", 11},
	PushTempByte:  {"push byte retval", 0},
	PushTemp:      {"push retval", 0},
	PushTempDword: {"push long retval", 0},
	IntToLong:     {"int to long", 0},
	LongToInt:     {"long to int", 0},
	FreeString:    {"free string", 1},
	FreeSList:     {"free slist", 1},
	FreeList:      {"free list", 1},
	FreeStringSP:  {"free string sp", 1},
	FreeListSP:    {"free list sp", 1},
	FreeSListSP:   {"free slist sp", 1},
	StrToPtr:      {"str to ptr", 1},
	PopStrToPtr:   {"pop str to ptr", 0},
	ParamPIDChg:   {"param pid chg", 2},
	PushResult:    {"push result", 0},
	MoveSP:        {"move sp", 1},
	PushAddrSP:    {"push addr sp", 1},
	Loop:          {"loop", 3},
	LoopNext:      {"loopnext", 0},
	LoopScript:    {"loopscr", 1},
	Foreach:       {"foreach list", 4},
	ForeachString: {"foreach slist", 4},
	SetInfo:       {"set info", 0},
	ProcessExcl:   {"process exclude", 0},
	PushGlobalPtr: {"push global addr", 2},
	End:           {"end", 0},
}

// Lookup returns the static description of op, or false if the machine
// does not implement it.
func Lookup(op Op) (Info, bool) {
	info := table[op]
	if info == nil {
		return Info{}, false
	}
	return *info, true
}

// String returns the mnemonic of op.
func (op Op) String() string {
	if info := table[op]; info != nil {
		return info.Name
	}
	return fmt.Sprintf("op_%02X", byte(op))
}
