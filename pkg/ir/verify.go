// Package ir - Structural verification of generated IR
package ir

import (
	"fmt"
	"strings"
)

// VerifyError describes one malformed construct.
type VerifyError struct {
	Function string
	Block    string
	Message  string
}

func (e *VerifyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("%s: %s", e.Function, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s", e.Function, e.Block, e.Message)
}

// VerifyErrors is returned when Verify finds problems.
type VerifyErrors []*VerifyError

func (es VerifyErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "invalid IR: " + strings.Join(msgs, "; ")
}

// Verify checks that every function has an entry block, labels are unique,
// every block is terminated, branch targets exist and slots are allocated
// before they are used (in layout order).
func Verify(m *Module) error {
	var errs VerifyErrors

	for _, fn := range m.Functions {
		add := func(block, format string, args ...any) {
			errs = append(errs, &VerifyError{Function: fn.Name, Block: block, Message: fmt.Sprintf(format, args...)})
		}

		if len(fn.Blocks) == 0 {
			add("", "function has no blocks")
			continue
		}

		labels := make(map[string]bool, len(fn.Blocks))
		for _, b := range fn.Blocks {
			if labels[b.Label] {
				add(b.Label, "duplicate block label")
			}
			labels[b.Label] = true
		}

		allocated := make(map[*Slot]bool)
		checkSlot := func(block string, s *Slot) {
			if !allocated[s] {
				add(block, "slot %s used before alloca", s)
			}
		}

		for _, b := range fn.Blocks {
			for _, inst := range b.Insts {
				switch i := inst.(type) {
				case *Alloca:
					if allocated[i.Dest] {
						add(b.Label, "slot %s allocated twice", i.Dest)
					}
					allocated[i.Dest] = true
				case *Load:
					checkSlot(b.Label, i.Src)
				case *Store:
					checkSlot(b.Label, i.Dest)
				}
			}

			if b.Term == nil {
				add(b.Label, "block has no terminator")
				continue
			}
			for _, succ := range b.Successors() {
				if !labels[succ] {
					add(b.Label, "branch to unknown block %q", succ)
				}
			}
			if cb, ok := b.Term.(*CondBranch); ok {
				if _, isBool := cb.Cond.Type().(BoolType); !isBool {
					add(b.Label, "branch condition %s is %s, want i1", cb.Cond, cb.Cond.Type())
				}
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
