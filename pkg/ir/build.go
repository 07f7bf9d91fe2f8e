// Package ir - Builder API used by front ends to emit IR
// Design: an insertion point plus helpers that allocate typed temporaries,
// in the spirit of LLVM's IRBuilder.
package ir

import "fmt"

func NewModule(name string) *Module {
	return &Module{Name: name}
}

// NewFunction adds a function with no blocks to the module.
func (m *Module) NewFunction(name string, ret Type, params ...*Param) *Function {
	fn := &Function{
		Name:       name,
		Params:     params,
		ReturnType: ret,
		labels:     make(map[string]int),
	}
	m.Functions = append(m.Functions, fn)
	return fn
}

// Function returns the function with the given name, or nil.
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// NewBlock appends a block labelled name, suffixed with a counter when name
// is already taken.
func (f *Function) NewBlock(name string) *Block {
	b := f.CreateBlock(name)
	f.AppendBlock(b)
	return b
}

// CreateBlock reserves a unique label but leaves the block out of the layout
// until AppendBlock. Forward branch targets are created this way.
func (f *Function) CreateBlock(name string) *Block {
	if f.labels == nil {
		f.labels = make(map[string]int)
	}
	label := name
	if n, taken := f.labels[name]; taken {
		label = fmt.Sprintf("%s.%d", name, n)
	}
	f.labels[name]++
	return &Block{Label: label}
}

func (f *Function) AppendBlock(b *Block) {
	f.Blocks = append(f.Blocks, b)
}

type Builder struct {
	fn  *Function
	cur *Block
}

func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

func (b *Builder) Function() *Function { return b.fn }

// SetInsertPoint makes blk the target of subsequent instructions.
func (b *Builder) SetInsertPoint(blk *Block) {
	b.cur = blk
}

func (b *Builder) InsertBlock() *Block { return b.cur }

func (b *Builder) emit(inst Inst) {
	if b.cur == nil {
		panic("ir: no insertion point")
	}
	if b.cur.Term != nil {
		panic(fmt.Sprintf("ir: emit into terminated block %s", b.cur.Label))
	}
	b.cur.Insts = append(b.cur.Insts, inst)
}

func (b *Builder) terminate(t Terminator) {
	if b.cur == nil {
		panic("ir: no insertion point")
	}
	if b.cur.Term != nil {
		panic(fmt.Sprintf("ir: block %s already terminated", b.cur.Label))
	}
	b.cur.Term = t
}

func (b *Builder) newTemp(typ Type) *Temp {
	t := &Temp{ID: b.fn.tempID, Typ: typ}
	b.fn.tempID++
	return t
}

// Alloca reserves a slot for the named variable.
func (b *Builder) Alloca(name string) *Slot {
	s := &Slot{Name: name, ID: b.fn.slotID}
	b.fn.slotID++
	b.emit(&Alloca{Dest: s})
	return s
}

func (b *Builder) Load(src *Slot) *Temp {
	t := b.newTemp(IntType{})
	b.emit(&Load{Dest: t, Src: src})
	return t
}

func (b *Builder) Store(val Value, dest *Slot) {
	b.emit(&Store{Dest: dest, Src: val})
}

// BinOp emits l op r. Comparisons yield i1, everything else the type of l.
func (b *Builder) BinOp(op Op, l, r Value) *Temp {
	var typ Type = l.Type()
	if op.IsCompare() {
		typ = BoolType{}
	}
	t := b.newTemp(typ)
	b.emit(&BinOp{Dest: t, Op: op, L: l, R: r})
	return t
}

func (b *Builder) Br(target *Block) {
	b.terminate(&Branch{Target: target.Label})
}

func (b *Builder) CondBr(cond Value, then, els *Block) {
	b.terminate(&CondBranch{Cond: cond, TrueBlock: then.Label, FalseBlock: els.Label})
}

func (b *Builder) Ret(val Value) {
	b.terminate(&Return{Value: val})
}

// ConstInt materializes an i32 constant.
func ConstInt(v int64) *Const {
	return &Const{Val: v, Typ: IntType{}}
}

func ConstBool(v bool) *Const {
	c := &Const{Typ: BoolType{}}
	if v {
		c.Val = 1
	}
	return c
}
