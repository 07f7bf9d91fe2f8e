// Package interp executes IR modules directly.
//
// Design: blocks are walked one instruction at a time, with 32-bit
// two's complement arithmetic so results match the native backends.
// Used by "gsmc run" and by semantic tests of the code generator.
package interp

import (
	"context"
	"errors"
	"fmt"

	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

// DefaultMaxSteps bounds execution of programs whose loops never exit.
const DefaultMaxSteps = 10_000_000

var (
	ErrDivideByZero = errors.New("division by zero")
	ErrStepLimit    = errors.New("step limit exceeded")
	ErrMalformed    = errors.New("malformed IR")
)

// RuntimeError reports where execution stopped. It unwraps to one of the
// Err* sentinels.
type RuntimeError struct {
	Block string
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error in block %s: %v", e.Block, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

type Options struct {
	// MaxSteps counts executed instructions and terminators. Zero means
	// DefaultMaxSteps.
	MaxSteps int
	// Argc is passed to main's first parameter.
	Argc int32
}

// Var is a program variable and its value when main returned.
type Var struct {
	Name  string
	Value int32
}

type Result struct {
	ExitCode int32
	Vars     []Var
	Steps    int
	// Blocks counts how often each block of main was entered.
	Blocks map[string]uint64
}

// Lookup returns the final value of the named variable.
func (r *Result) Lookup(name string) (int32, bool) {
	for _, v := range r.Vars {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

type frame struct {
	temps map[*ir.Temp]int64
	slots map[*ir.Slot]int32
	order []*ir.Slot
	args  map[string]int64
}

// Run executes m's main function.
func Run(ctx context.Context, m *ir.Module, opts Options) (*Result, error) {
	fn := m.Function("main")
	if fn == nil {
		return nil, fmt.Errorf("%w: module %s has no main function", ErrMalformed, m.Name)
	}
	if len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("%w: main has no blocks", ErrMalformed)
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	fr := &frame{
		temps: make(map[*ir.Temp]int64),
		slots: make(map[*ir.Slot]int32),
		args:  map[string]int64{"argc": int64(opts.Argc)},
	}

	steps := 0
	counts := make(map[string]uint64)
	blk := fn.Blocks[0]
	for visited := 0; ; visited++ {
		if visited%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		counts[blk.Label]++

		for _, inst := range blk.Insts {
			steps++
			if err := fr.exec(inst); err != nil {
				return nil, &RuntimeError{Block: blk.Label, Err: err}
			}
		}

		steps++
		if steps > maxSteps {
			return nil, &RuntimeError{Block: blk.Label, Err: ErrStepLimit}
		}

		switch t := blk.Term.(type) {
		case *ir.Return:
			var code int32
			if t.Value != nil {
				v, err := fr.eval(t.Value)
				if err != nil {
					return nil, &RuntimeError{Block: blk.Label, Err: err}
				}
				code = int32(v)
			}
			res := &Result{ExitCode: code, Steps: steps, Blocks: counts}
			for _, s := range fr.order {
				res.Vars = append(res.Vars, Var{Name: s.Name, Value: fr.slots[s]})
			}
			logger.Debug("Execution complete", "module", m.Name, "steps", steps, "exit", code)
			return res, nil

		case *ir.Branch:
			blk = fn.Block(t.Target)

		case *ir.CondBranch:
			c, err := fr.eval(t.Cond)
			if err != nil {
				return nil, &RuntimeError{Block: blk.Label, Err: err}
			}
			if c != 0 {
				blk = fn.Block(t.TrueBlock)
			} else {
				blk = fn.Block(t.FalseBlock)
			}

		default:
			return nil, &RuntimeError{Block: blk.Label, Err: fmt.Errorf("%w: missing terminator", ErrMalformed)}
		}

		if blk == nil {
			return nil, fmt.Errorf("%w: branch to unknown block", ErrMalformed)
		}
	}
}

func (fr *frame) exec(inst ir.Inst) error {
	switch i := inst.(type) {
	case *ir.Alloca:
		if _, seen := fr.slots[i.Dest]; !seen {
			fr.order = append(fr.order, i.Dest)
		}
		fr.slots[i.Dest] = 0
	case *ir.Load:
		v, ok := fr.slots[i.Src]
		if !ok {
			return fmt.Errorf("%w: load from unallocated %s", ErrMalformed, i.Src)
		}
		fr.temps[i.Dest] = int64(v)
	case *ir.Store:
		if _, ok := fr.slots[i.Dest]; !ok {
			return fmt.Errorf("%w: store to unallocated %s", ErrMalformed, i.Dest)
		}
		v, err := fr.eval(i.Src)
		if err != nil {
			return err
		}
		fr.slots[i.Dest] = int32(v)
	case *ir.BinOp:
		l, err := fr.eval(i.L)
		if err != nil {
			return err
		}
		r, err := fr.eval(i.R)
		if err != nil {
			return err
		}
		v, err := Apply(i.Op, int32(l), int32(r))
		if err != nil {
			return err
		}
		fr.temps[i.Dest] = int64(v)
	default:
		return fmt.Errorf("%w: unknown instruction %T", ErrMalformed, inst)
	}
	return nil
}

func (fr *frame) eval(v ir.Value) (int64, error) {
	switch x := v.(type) {
	case *ir.Const:
		return x.Val, nil
	case *ir.Temp:
		val, ok := fr.temps[x]
		if !ok {
			return 0, fmt.Errorf("%w: %s used before definition", ErrMalformed, x)
		}
		return val, nil
	case *ir.Param:
		return fr.args[x.Name], nil
	}
	return 0, fmt.Errorf("%w: cannot evaluate %s", ErrMalformed, v)
}

// Apply computes l op r with 32-bit wrapping. Comparisons yield 0 or 1.
// The optimizer folds constants through the same function.
func Apply(op ir.Op, l, r int32) (int32, error) {
	switch op {
	case ir.OpAdd:
		return l + r, nil
	case ir.OpSub:
		return l - r, nil
	case ir.OpMul:
		return l * r, nil
	case ir.OpDiv:
		if r == 0 {
			return 0, ErrDivideByZero
		}
		return l / r, nil
	case ir.OpRem:
		if r == 0 {
			return 0, ErrDivideByZero
		}
		return l % r, nil
	case ir.OpAnd:
		return l & r, nil
	case ir.OpOr:
		return l | r, nil
	case ir.OpEq:
		return b2i(l == r), nil
	case ir.OpNe:
		return b2i(l != r), nil
	case ir.OpLt:
		return b2i(l < r), nil
	case ir.OpLe:
		return b2i(l <= r), nil
	case ir.OpGt:
		return b2i(l > r), nil
	case ir.OpGe:
		return b2i(l >= r), nil
	}
	return 0, fmt.Errorf("%w: unknown op %s", ErrMalformed, op)
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
