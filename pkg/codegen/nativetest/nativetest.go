// Package nativetest runs generated assembly on the host and checks it
// against the interpreter. It is imported by backend tests only.
package nativetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gsm-lang/gsmc/pkg/codegen"
	"github.com/gsm-lang/gsmc/pkg/frontend"
	"github.com/gsm-lang/gsmc/pkg/interp"
	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/linker"
	"github.com/gsm-lang/gsmc/pkg/optimizer"
)

// Programs leave their answer in r. They cover register pressure, loops,
// branch chains, negative results and i32 wraparound.
var Programs = map[string]string{
	"spills":   "int a = 3, b = 5, c = 7, d = 11, e = 13, f = 17, g = 19, h = 23, r; r = a * (b + (c * (d - (e + (f * (g - h)))))) % 251;",
	"loop":     "int i, s, r; loopc i < 20: begin i += 1; s += i * i % 7; end r = s;",
	"branches": "int x = 37, r; if x % 3 == 0: begin r = 1; end elif x % 3 == 1 and x > 30: begin r = 2; end else: begin r = 3; end",
	"negative": "int b = 3, r; r = b ^ 5 / 7 - 100;",
	"wrap":     "int x = 65536, r; r = x * x + 7;",
	"logic":    "int a = 5, b = 9, r = 1; loopc r < 200 and a != b: begin r = r * 2 + a; a += 1; end",
}

// Generator turns a module into assembly for the host, using prefix for
// global symbols.
type Generator func(m *ir.Module, prefix string) (string, error)

// Compile parses and generates src, then makes main return the final value
// of the variable result.
func Compile(src, result string) (*ir.Module, error) {
	prog, errs := frontend.ParseSource(src)
	if len(errs) > 0 {
		return nil, fmt.Errorf("parse: %v", errs)
	}
	mod, err := codegen.Generate(prog)
	if err != nil {
		return nil, err
	}
	if err := ReturnVariable(mod, result); err != nil {
		return nil, err
	}
	return mod, ir.Verify(mod)
}

// ReturnVariable rewrites every return of main to yield the variable name.
func ReturnVariable(m *ir.Module, name string) error {
	fn := m.Function("main")
	if fn == nil {
		return errors.New("no main function")
	}

	var slot *ir.Slot
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			if a, ok := inst.(*ir.Alloca); ok && a.Dest.Name == name {
				slot = a.Dest
			}
		}
	}
	if slot == nil {
		return fmt.Errorf("no variable %s", name)
	}

	b := ir.NewBuilder(fn)
	for _, blk := range fn.Blocks {
		if _, ok := blk.Term.(*ir.Return); ok {
			blk.Term = nil
			b.SetInsertPoint(blk)
			b.Ret(b.Load(slot))
		}
	}
	return nil
}

// Run links asm with cc into dir and returns the exit status of the
// resulting executable.
func Run(ctx context.Context, cc, dir, asm string) (int, error) {
	asmPath := filepath.Join(dir, "prog.s")
	bin := filepath.Join(dir, "prog")
	if err := os.WriteFile(asmPath, []byte(asm), 0o644); err != nil {
		return 0, err
	}
	if out, err := exec.CommandContext(ctx, cc, "-o", bin, asmPath).CombinedOutput(); err != nil {
		return 0, fmt.Errorf("cc: %w: %s", err, out)
	}

	err := exec.CommandContext(ctx, bin).Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

// MatchInterpreter builds every program at every optimization level with
// gen, runs it and compares the exit status with the interpreter. It skips
// unless the host is arch and has a C compiler.
func MatchInterpreter(t *testing.T, arch string, gen Generator) {
	t.Helper()
	if runtime.GOARCH != arch || (runtime.GOOS != "linux" && runtime.GOOS != "darwin") {
		t.Skipf("native %s execution unsupported on %s/%s", arch, runtime.GOOS, runtime.GOARCH)
	}
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("cc not available")
	}

	ctx := context.Background()
	for name, src := range Programs {
		for level := 0; level <= optimizer.MaxLevel; level++ {
			t.Run(fmt.Sprintf("%s/O%d", name, level), func(t *testing.T) {
				mod, err := Compile(src, "r")
				if err != nil {
					t.Fatal(err)
				}
				if _, err := optimizer.Optimize(mod, optimizer.Options{Level: level}); err != nil {
					t.Fatal(err)
				}

				want, err := interp.Run(ctx, mod, interp.Options{})
				if err != nil {
					t.Fatalf("interp: %v", err)
				}

				asm, err := gen(mod, linker.SymbolPrefix(runtime.GOOS))
				if err != nil {
					t.Fatalf("%v\n%s", err, asm)
				}

				got, err := Run(ctx, cc, t.TempDir(), asm)
				if err != nil {
					t.Fatalf("%v\n%s", err, asm)
				}
				// exit statuses keep the low byte
				if wantCode := int(uint8(want.ExitCode)); got != wantCode {
					t.Errorf("exit status %d, interpreter returned %d (low byte %d)\n%s", got, want.ExitCode, wantCode, asm)
				}
			})
		}
	}
}
