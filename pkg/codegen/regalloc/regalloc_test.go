package regalloc

import (
	"testing"

	"github.com/gsm-lang/gsmc/pkg/ir"
)

// chain builds n loads that are all live until a final sum.
func chain(n int) (*ir.Function, []*ir.Temp) {
	fn := ir.NewModule("m").NewFunction("main", ir.IntType{})
	b := ir.NewBuilder(fn)
	b.SetInsertPoint(fn.NewBlock("entry"))

	slot := b.Alloca("x")
	var temps []*ir.Temp
	for i := 0; i < n; i++ {
		temps = append(temps, b.Load(slot))
	}
	var acc ir.Value = temps[0]
	for _, t := range temps[1:] {
		acc = b.BinOp(ir.OpAdd, acc, t)
	}
	b.Ret(acc)
	return fn, temps
}

func TestAllocateFitsInRegisters(t *testing.T) {
	fn, temps := chain(2)
	a := NewAllocator(fn, &Config{Available: []string{"r1", "r2", "r3"}, SlotSize: 4})
	if err := a.Allocate(); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	for _, tmp := range temps {
		if _, ok := a.GetRegister(tmp); !ok {
			t.Errorf("%s not in a register", tmp)
		}
	}
	if a.GetStackSize() != 0 {
		t.Errorf("stack size = %d, want 0", a.GetStackSize())
	}
	if used := a.UsedRegisters(); len(used) == 0 || used[0] != "r1" {
		t.Errorf("used registers = %v, want r1 first", used)
	}
}

func TestAllocateSpills(t *testing.T) {
	fn, temps := chain(4)
	a := NewAllocator(fn, &Config{Available: []string{"r1", "r2"}, SlotSize: 4})
	if err := a.Allocate(); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	spilled := 0
	for _, tmp := range temps {
		_, inReg := a.GetRegister(tmp)
		_, inSlot := a.GetSpillSlot(tmp)
		if inReg == inSlot {
			t.Errorf("%s: register=%v spill=%v, want exactly one", tmp, inReg, inSlot)
		}
		if inSlot {
			spilled++
		}
	}
	if spilled == 0 {
		t.Fatal("expected spills with two registers and four live values")
	}
	if a.GetStackSize() < spilled*4 {
		t.Errorf("stack size = %d, want at least %d", a.GetStackSize(), spilled*4)
	}
}

func TestAllocateReusesExpiredRegisters(t *testing.T) {
	fn := ir.NewModule("m").NewFunction("main", ir.IntType{})
	b := ir.NewBuilder(fn)
	b.SetInsertPoint(fn.NewBlock("entry"))
	slot := b.Alloca("x")
	for i := 0; i < 5; i++ {
		b.Store(b.BinOp(ir.OpAdd, b.Load(slot), ir.ConstInt(1)), slot)
	}
	b.Ret(ir.ConstInt(0))

	a := NewAllocator(fn, &Config{Available: []string{"r1", "r2"}, SlotSize: 4})
	if err := a.Allocate(); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if a.GetStackSize() != 0 {
		t.Errorf("short-lived temporaries spilled: stack size %d", a.GetStackSize())
	}
}
