// Package regalloc implements linear scan register allocation with liveness intervals.
//
// Design: Fast linear scan over the function's block layout, after Poletto &
// Sarkar. Only temporaries are allocated; variable slots live in the frame.
// Intervals are computed on layout positions, which is exact for temporaries
// that do not outlive their block (the only kind the code generator emits).
package regalloc

import (
	"fmt"
	"sort"

	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

// Interval represents the live range of a temporary
type Interval struct {
	Value *ir.Temp
	Start int // Position of the defining instruction
	End   int // Position of the last use
	Reg   string
	Spill int // Spill offset, -1 when in a register
}

// Config holds register allocation configuration for an architecture
type Config struct {
	Available []string // Registers handed out to temporaries
	SlotSize  int      // Bytes per spill slot
}

// Allocator performs linear scan register allocation
type Allocator struct {
	fn            *ir.Function
	cfg           *Config
	intervals     []*Interval
	active        []*Interval
	free          []string
	regMap        map[*ir.Temp]string
	spillMap      map[*ir.Temp]int
	nextSpillSlot int
	used          map[string]bool
}

// NewAllocator creates a new register allocator
func NewAllocator(fn *ir.Function, cfg *Config) *Allocator {
	free := make([]string, len(cfg.Available))
	// Hand out registers in the order given.
	for i, r := range cfg.Available {
		free[len(free)-1-i] = r
	}
	if cfg.SlotSize <= 0 {
		cfg.SlotSize = 8
	}
	return &Allocator{
		fn:       fn,
		cfg:      cfg,
		free:     free,
		regMap:   make(map[*ir.Temp]string),
		spillMap: make(map[*ir.Temp]int),
		used:     make(map[string]bool),
	}
}

// Allocate performs register allocation
func (a *Allocator) Allocate() error {
	logger.Debug("Starting register allocation", "function", a.fn.Name)

	if err := a.computeLiveness(); err != nil {
		return err
	}

	sort.Slice(a.intervals, func(i, j int) bool {
		return a.intervals[i].Start < a.intervals[j].Start
	})

	for _, interval := range a.intervals {
		a.allocateInterval(interval)
	}

	logger.Debug("Register allocation complete",
		"function", a.fn.Name,
		"allocated", len(a.regMap),
		"spilled", len(a.spillMap))
	return nil
}

// computeLiveness numbers instructions in layout order (even positions,
// terminators included) and derives one interval per temporary.
func (a *Allocator) computeLiveness() error {
	defs := make(map[*ir.Temp]int)
	ends := make(map[*ir.Temp]int)
	var order []*ir.Temp

	use := func(v ir.Value, pos int) error {
		t, ok := v.(*ir.Temp)
		if !ok {
			return nil
		}
		if _, defined := defs[t]; !defined {
			return fmt.Errorf("regalloc: %s used before definition in %s", t, a.fn.Name)
		}
		if pos > ends[t] {
			ends[t] = pos
		}
		return nil
	}

	pos := 0
	for _, block := range a.fn.Blocks {
		for _, inst := range block.Insts {
			for _, v := range Uses(inst) {
				if err := use(v, pos); err != nil {
					return err
				}
			}
			if def := Def(inst); def != nil {
				defs[def] = pos
				ends[def] = pos
				order = append(order, def)
			}
			pos += 2
		}
		for _, v := range TermUses(block.Term) {
			if err := use(v, pos); err != nil {
				return err
			}
		}
		pos += 2
	}

	for _, t := range order {
		a.intervals = append(a.intervals, &Interval{
			Value: t,
			Start: defs[t],
			End:   ends[t],
			Spill: -1,
		})
	}
	return nil
}

// allocateInterval allocates a register or spills an interval
func (a *Allocator) allocateInterval(interval *Interval) {
	a.expireOldIntervals(interval)

	if len(a.free) > 0 {
		reg := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		interval.Reg = reg
		a.regMap[interval.Value] = reg
		a.used[reg] = true
		a.active = append(a.active, interval)
		a.sortActiveByEnd()
		return
	}

	a.spillAtInterval(interval)
}

// expireOldIntervals removes intervals that are no longer active
func (a *Allocator) expireOldIntervals(interval *Interval) {
	newActive := make([]*Interval, 0, len(a.active))
	for _, active := range a.active {
		if active.End >= interval.Start {
			newActive = append(newActive, active)
		} else {
			a.free = append(a.free, active.Reg)
		}
	}
	a.active = newActive
}

// spillAtInterval spills either the current interval or the active one that
// ends last
func (a *Allocator) spillAtInterval(interval *Interval) {
	spill := a.active[len(a.active)-1]

	if spill.End > interval.End {
		interval.Reg = spill.Reg
		a.regMap[interval.Value] = spill.Reg
		delete(a.regMap, spill.Value)

		spill.Reg = ""
		spill.Spill = a.nextSpillSlot
		a.spillMap[spill.Value] = a.nextSpillSlot
		a.nextSpillSlot += a.cfg.SlotSize

		logger.Debug("Spilled interval", "value", spill.Value.String(), "slot", spill.Spill)

		a.active[len(a.active)-1] = interval
		a.sortActiveByEnd()
		return
	}

	interval.Spill = a.nextSpillSlot
	a.spillMap[interval.Value] = a.nextSpillSlot
	a.nextSpillSlot += a.cfg.SlotSize

	logger.Debug("Spilled new interval", "value", interval.Value.String(), "slot", interval.Spill)
}

func (a *Allocator) sortActiveByEnd() {
	sort.Slice(a.active, func(i, j int) bool {
		return a.active[i].End < a.active[j].End
	})
}

// GetRegister returns the register assigned to a temporary
func (a *Allocator) GetRegister(t *ir.Temp) (string, bool) {
	reg, ok := a.regMap[t]
	return reg, ok
}

// GetSpillSlot returns the spill offset for a temporary
func (a *Allocator) GetSpillSlot(t *ir.Temp) (int, bool) {
	slot, ok := a.spillMap[t]
	return slot, ok
}

// GetStackSize returns total stack space needed for spills
func (a *Allocator) GetStackSize() int {
	return a.nextSpillSlot
}

// UsedRegisters returns the registers handed out at least once, in
// configuration order.
func (a *Allocator) UsedRegisters() []string {
	var regs []string
	for _, r := range a.cfg.Available {
		if a.used[r] {
			regs = append(regs, r)
		}
	}
	return regs
}

// Uses returns the values read by inst.
func Uses(inst ir.Inst) []ir.Value {
	switch i := inst.(type) {
	case *ir.BinOp:
		return []ir.Value{i.L, i.R}
	case *ir.Store:
		return []ir.Value{i.Src}
	}
	return nil
}

// Def returns the temporary inst defines, or nil.
func Def(inst ir.Inst) *ir.Temp {
	switch i := inst.(type) {
	case *ir.BinOp:
		return i.Dest
	case *ir.Load:
		return i.Dest
	}
	return nil
}

// TermUses returns the values read by a terminator.
func TermUses(term ir.Terminator) []ir.Value {
	switch t := term.(type) {
	case *ir.Return:
		if t.Value != nil {
			return []ir.Value{t.Value}
		}
	case *ir.CondBranch:
		return []ir.Value{t.Cond}
	}
	return nil
}
