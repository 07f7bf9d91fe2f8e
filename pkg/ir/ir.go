// Package ir implements the intermediate representation.
//
// Design: Three-address code, explicit control flow, strongly typed.
// Variables live in stack slots accessed by load/store; every block ends in
// exactly one terminator. Simple enough to interpret, close enough to LLVM
// to lower one instruction at a time.
package ir

import "fmt"

// Module is the top-level IR container
type Module struct {
	Name      string
	Functions []*Function
}

// Function represents a compiled function
type Function struct {
	Name       string
	Params     []*Param
	ReturnType Type
	Blocks     []*Block

	tempID int
	slotID int
	labels map[string]int
}

// Block is a basic block - straight-line code ending in a terminator
type Block struct {
	Label string
	Insts []Inst
	Term  Terminator
}

// Inst is a three-address code instruction
type Inst interface {
	inst()
}

// Terminator ends a basic block (branch, return, etc.)
type Terminator interface {
	term()
}

// Instructions

// Alloca reserves the storage location of one variable.
type Alloca struct {
	Dest *Slot
}

func (*Alloca) inst() {}

type Load struct {
	Dest *Temp
	Src  *Slot
}

func (*Load) inst() {}

type Store struct {
	Dest *Slot
	Src  Value
}

func (*Store) inst() {}

type BinOp struct {
	Dest *Temp
	Op   Op
	L    Value
	R    Value
}

func (*BinOp) inst() {}

// Terminators
type Return struct {
	Value Value
}

func (*Return) term() {}

type Branch struct {
	Target string
}

func (*Branch) term() {}

type CondBranch struct {
	Cond       Value
	TrueBlock  string
	FalseBlock string
}

func (*CondBranch) term() {}

// Values and types
type Value interface {
	value()
	Type() Type
	String() string
}

// Temp is the result of an instruction.
type Temp struct {
	ID  int
	Typ Type
}

func (*Temp) value()           {}
func (t *Temp) Type() Type     { return t.Typ }
func (t *Temp) String() string { return fmt.Sprintf("%%%d", t.ID) }

type Const struct {
	Val int64
	Typ Type
}

func (*Const) value()       {}
func (c *Const) Type() Type { return c.Typ }
func (c *Const) String() string {
	if _, ok := c.Typ.(BoolType); ok {
		if c.Val != 0 {
			return "true"
		}
		return "false"
	}
	return fmt.Sprintf("%d", c.Val)
}

type Param struct {
	Name string
	Typ  Type
}

func (*Param) value()           {}
func (p *Param) Type() Type     { return p.Typ }
func (p *Param) String() string { return "%" + p.Name }

// Slot is a variable's storage location. Its value is the address.
type Slot struct {
	Name string
	ID   int
}

func (*Slot) value()           {}
func (s *Slot) Type() Type     { return PtrType{Elem: IntType{}} }
func (s *Slot) String() string { return "%" + s.Name + ".addr" }

type Type interface {
	typ()
	String() string
}

// IntType is the language's single integer type: 32-bit signed.
type IntType struct{}

func (IntType) typ()           {}
func (IntType) String() string { return "i32" }

// BoolType is the result of a comparison.
type BoolType struct{}

func (BoolType) typ()           {}
func (BoolType) String() string { return "i1" }

// ByteType only appears behind pointers, in main's argv.
type ByteType struct{}

func (ByteType) typ()           {}
func (ByteType) String() string { return "i8" }

type PtrType struct {
	Elem Type
}

func (PtrType) typ()             {}
func (p PtrType) String() string { return p.Elem.String() + "*" }

// Operations
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var opNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "sdiv", OpRem: "srem",
	OpAnd: "and", OpOr: "or",
	OpEq: "eq", OpNe: "ne", OpLt: "slt", OpLe: "sle", OpGt: "sgt", OpGe: "sge",
}

func (o Op) String() string {
	if int(o) >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// IsCompare reports whether o is an icmp predicate yielding i1.
func (o Op) IsCompare() bool {
	return o >= OpEq && o <= OpGe
}

// Block returns the block with the given label, or nil.
func (f *Function) Block(label string) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// Successors returns the labels b may branch to.
func (b *Block) Successors() []string {
	switch t := b.Term.(type) {
	case *Branch:
		return []string{t.Target}
	case *CondBranch:
		return []string{t.TrueBlock, t.FalseBlock}
	}
	return nil
}

// InstCount returns the number of instructions in all blocks, terminators included.
func (f *Function) InstCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Insts)
		if b.Term != nil {
			n++
		}
	}
	return n
}
