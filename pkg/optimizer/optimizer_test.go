package optimizer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gsm-lang/gsmc/pkg/codegen"
	"github.com/gsm-lang/gsmc/pkg/frontend"
	"github.com/gsm-lang/gsmc/pkg/interp"
	"github.com/gsm-lang/gsmc/pkg/ir"
)

func compile(t *testing.T, src string) (*frontend.Program, *ir.Module) {
	t.Helper()
	prog, errs := frontend.ParseSource(src)
	if len(errs) > 0 {
		t.Fatalf("parse %q: %v", src, errs[0])
	}
	mod, err := codegen.Generate(prog)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return prog, mod
}

func run(t *testing.T, mod *ir.Module) *interp.Result {
	t.Helper()
	res, err := interp.Run(context.Background(), mod, interp.Options{})
	if err != nil {
		t.Fatalf("run: %v\n%s", err, mod)
	}
	return res
}

func countInsts[T ir.Inst](fn *ir.Function) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if _, ok := inst.(T); ok {
				n++
			}
		}
	}
	return n
}

var programs = map[string]string{
	"straight line": "int a = 2, b = a * 3, c; c = b ^ 3 - a;",
	"identities":    "int a = 7, b; b = a + 0; b = b * 1; b = b - 0; b = b / 1; a = a - a;",
	"conditional":   "int x = 4, y; if x > 3: begin y = 1; end elif x > 1: begin y = 2; end else: begin y = 3; end",
	"folded branch": "int y; if 1 == 2: begin y = 1; end else: begin y = 2; end",
	"loop":          "int i, s; loopc i < 10: begin i += 1; s += i * i; end",
	"logic":         "int a = 3, r; if a > 1 and a < 5 or a == 9: begin r = 1; end",
	"dead vars":     "int i, junk = 5, r; loopc i < 4: begin i += 1; junk = junk * 3; r += i; end",
	"skipped loop":  "int x = 1; loopc 1 == 2: begin x = 5; end",
}

func TestOptimizePreservesSemantics(t *testing.T) {
	for name, src := range programs {
		for level := 1; level <= MaxLevel; level++ {
			t.Run(name, func(t *testing.T) {
				_, want := compile(t, src)
				wantRes := run(t, want)

				_, mod := compile(t, src)
				if _, err := Optimize(mod, Options{Level: level}); err != nil {
					t.Fatalf("optimize: %v\n%s", err, mod)
				}
				got := run(t, mod)

				for _, v := range wantRes.Vars {
					if gv, ok := got.Lookup(v.Name); !ok || gv != v.Value {
						t.Errorf("level %d: %s = %d (present %v), want %d\n%s", level, v.Name, gv, ok, v.Value, mod)
					}
				}
				if got.Steps > wantRes.Steps {
					t.Errorf("level %d: optimized program took %d steps, unoptimized %d", level, got.Steps, wantRes.Steps)
				}
			})
		}
	}
}

func TestLevelZeroIsIdentity(t *testing.T) {
	_, mod := compile(t, programs["straight line"])
	before := mod.String()

	stats, err := Optimize(mod, Options{Level: 0})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total() != 0 || mod.String() != before {
		t.Errorf("level 0 changed the module:\n%s", mod)
	}
}

func TestConstantPropagation(t *testing.T) {
	_, mod := compile(t, "int a = 2, b = a * 3;")
	stats, err := Optimize(mod, Options{Level: 1})
	if err != nil {
		t.Fatal(err)
	}

	fn := mod.Function("main")
	if n := countInsts[*ir.BinOp](fn); n != 0 {
		t.Errorf("%d binops left after folding:\n%s", n, mod)
	}
	if n := countInsts[*ir.Load](fn); n != 0 {
		t.Errorf("%d loads left after forwarding:\n%s", n, mod)
	}
	if !strings.Contains(mod.String(), "store i32 6, i32* %b.addr") {
		t.Errorf("folded store missing:\n%s", mod)
	}
	if stats["constant-fold"] == 0 || stats["peephole"] == 0 {
		t.Errorf("stats = %v, want constant-fold and peephole", stats)
	}
}

func TestBranchFolding(t *testing.T) {
	_, mod := compile(t, programs["folded branch"])
	if _, err := Optimize(mod, Options{Level: 1}); err != nil {
		t.Fatal(err)
	}

	fn := mod.Function("main")
	if len(fn.Blocks) != 1 {
		t.Errorf("got %d blocks, want the conditional folded into entry:\n%s", len(fn.Blocks), mod)
	}
	if !strings.Contains(mod.String(), "store i32 2, i32* %y.addr") {
		t.Errorf("else branch store missing:\n%s", mod)
	}
}

func TestDivisionByZeroIsKept(t *testing.T) {
	_, mod := compile(t, "int a = 1; a = a / 0;")
	if _, err := Optimize(mod, Options{Level: 1}); err != nil {
		t.Fatal(err)
	}

	_, err := interp.Run(context.Background(), mod, interp.Options{})
	if !errors.Is(err, interp.ErrDivideByZero) {
		t.Errorf("err = %v, want ErrDivideByZero\n%s", err, mod)
	}
}

func TestEmptyInfiniteLoop(t *testing.T) {
	_, mod := compile(t, "int x; loopc 1 == 1: begin end")
	if _, err := Optimize(mod, Options{Level: MaxLevel}); err != nil {
		t.Fatalf("optimize: %v\n%s", err, mod)
	}

	_, err := interp.Run(context.Background(), mod, interp.Options{MaxSteps: 1000})
	if !errors.Is(err, interp.ErrStepLimit) {
		t.Errorf("err = %v, want the loop to keep running\n%s", err, mod)
	}
}

func TestDeadSlotElimination(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		result string
		want   int32
		pruned []string
	}{
		{
			name:   "unused declaration",
			src:    "int a = 1, b = 2, c; c = a + 1;",
			result: "c",
			want:   2,
			pruned: []string{"b"},
		},
		{
			name:   "dead accumulator in loop",
			src:    programs["dead vars"],
			result: "r",
			want:   10,
			pruned: []string{"junk"},
		},
		{
			name:   "conditional on dead variable",
			src:    "int z = 3, w, r = 7; if z > 0: begin w = 1; end elif z < 0: begin w = 2; end else: begin w = 3; end",
			result: "r",
			want:   7,
			pruned: []string{"z", "w"},
		},
		{
			name:   "loop counter kept",
			src:    "int i, j, r = 1; loopc i < 3: begin i += 1; j += 2; end",
			result: "r",
			want:   1,
			pruned: []string{"j"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, mod := compile(t, tt.src)
			live := frontend.LiveDeclarations(prog, tt.result)

			stats, err := Optimize(mod, Options{Level: 2, Live: live})
			if err != nil {
				t.Fatalf("optimize: %v\n%s", err, mod)
			}
			if stats["dead-slots"] == 0 {
				t.Errorf("stats = %v, want dead-slots", stats)
			}

			res := run(t, mod)
			if got, ok := res.Lookup(tt.result); !ok || got != tt.want {
				t.Errorf("%s = %d (present %v), want %d\n%s", tt.result, got, ok, tt.want, mod)
			}
			for _, name := range tt.pruned {
				if _, ok := res.Lookup(name); ok {
					t.Errorf("%s still allocated:\n%s", name, mod)
				}
			}
		})
	}
}

func TestDeadSlotsNeedClosedLiveSet(t *testing.T) {
	_, mod := compile(t, "int a = 1, r; r = a + 1;")

	_, err := Optimize(mod, Options{Level: 2, Live: map[string]bool{"r": true}})
	if err == nil || !strings.Contains(err.Error(), `variable "a" was pruned but is still read`) {
		t.Errorf("err = %v, want pruned variable error\n%s", err, mod)
	}
}

func TestSimplifyCFGMergesChains(t *testing.T) {
	m := ir.NewModule("chain")
	fn := m.NewFunction("main", ir.IntType{})
	b := ir.NewBuilder(fn)

	entry := fn.NewBlock("entry")
	mid := fn.CreateBlock("mid")
	empty := fn.CreateBlock("empty")
	exit := fn.CreateBlock("exit")

	b.SetInsertPoint(entry)
	b.Br(mid)
	fn.AppendBlock(mid)
	b.SetInsertPoint(mid)
	b.BinOp(ir.OpAdd, ir.ConstInt(40), ir.ConstInt(2))
	b.Br(empty)
	fn.AppendBlock(empty)
	b.SetInsertPoint(empty)
	b.Br(exit)
	fn.AppendBlock(exit)
	b.SetInsertPoint(exit)
	b.Ret(ir.ConstInt(0))

	if n := SimplifyCFG(fn); n == 0 {
		t.Fatal("SimplifyCFG made no changes")
	}
	for DeadCodeElimination(fn)+SimplifyCFG(fn) > 0 {
	}

	if len(fn.Blocks) != 1 {
		t.Errorf("got %d blocks, want 1:\n%s", len(fn.Blocks), m)
	}
	if err := ir.Verify(m); err != nil {
		t.Errorf("verify: %v\n%s", err, m)
	}
}

func TestReorderBlocks(t *testing.T) {
	_, mod := compile(t, programs["loop"])
	res := run(t, mod)

	profile := NewProfile("main", res.Blocks)
	if len(profile.Hotspots) == 0 || profile.Hotspots[0].Block != "loop.cond" {
		t.Fatalf("hotspots = %+v, want loop.cond first", profile.Hotspots)
	}

	path := filepath.Join(t.TempDir(), "profile.json")
	if err := profile.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Functions["main"].Blocks["loop.cond"] != 11 {
		t.Errorf("loaded profile = %+v", loaded.Functions["main"])
	}

	if _, err := Optimize(mod, Options{Level: 1, Profile: loaded}); err != nil {
		t.Fatal(err)
	}
	if got := run(t, mod); got.Vars[1].Value != res.Vars[1].Value {
		t.Errorf("s = %d after reordering, want %d", got.Vars[1].Value, res.Vars[1].Value)
	}
}

func TestReorderBlocksHottestFirst(t *testing.T) {
	fn := &ir.Function{Name: "main"}
	for _, label := range []string{"entry", "a", "b", "c"} {
		fn.Blocks = append(fn.Blocks, &ir.Block{Label: label, Term: &ir.Return{}})
	}
	profile := NewProfile("main", map[string]uint64{"entry": 1, "a": 2, "c": 9})

	if moved := ReorderBlocks(fn, profile); moved != 3 {
		t.Errorf("moved = %d, want 3", moved)
	}
	var got []string
	for _, b := range fn.Blocks {
		got = append(got, b.Label)
	}
	if strings.Join(got, ",") != "entry,c,a,b" {
		t.Errorf("layout = %v, want entry,c,a,b", got)
	}

	other := NewProfile("helper", map[string]uint64{"a": 5})
	if moved := ReorderBlocks(fn, other); moved != 0 {
		t.Errorf("profile of another function moved %d blocks", moved)
	}
}

func TestLoadProfileErrors(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing profile")
	}
}
