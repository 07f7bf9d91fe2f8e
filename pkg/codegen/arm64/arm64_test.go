// Package arm64 - Unit tests for AArch64 code generation
package arm64

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/gsm-lang/gsmc/pkg/codegen"
	"github.com/gsm-lang/gsmc/pkg/frontend"
	"github.com/gsm-lang/gsmc/pkg/ir"
)

func compile(t testing.TB, src string) *ir.Module {
	t.Helper()
	prog, errs := frontend.ParseSource(src)
	if len(errs) > 0 {
		t.Fatalf("parse: %v", errs)
	}
	mod, err := codegen.Generate(prog)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return mod
}

func generate(t testing.TB, src string) string {
	t.Helper()
	asm, err := NewGenerator(nil).GenerateWithValidation(compile(t, src))
	if err != nil {
		t.Fatalf("arm64: %v\n%s", err, asm)
	}
	return asm
}

func TestArithmeticOperations(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantInst []string
	}{
		{"addition", "int a = 1; a += 2;", []string{"movz w10, #2", "add w"}},
		{"subtraction", "int a = 1; a -= 2;", []string{"sub w"}},
		{"multiplication", "int a = 1; a *= 3;", []string{"movz w10, #3", "mul w"}},
		{"division", "int a = 9; a /= 2;", []string{"cbz w10, .Lmain.divzero", "sdiv w", ".Lmain.divzero:", "brk #1"}},
		{"remainder", "int a = 9; a %= 2;", []string{"sdiv w12, ", "msub w", ", w12, w10, "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := generate(t, tt.src)
			for _, inst := range tt.wantInst {
				if !strings.Contains(asm, inst) {
					t.Errorf("expected instruction %q not found in:\n%s", inst, asm)
				}
			}
		})
	}
}

func TestNoTrapWithoutDivision(t *testing.T) {
	asm := generate(t, "int a = 9; a = a * 2;")
	if strings.Contains(asm, "divzero") || strings.Contains(asm, "brk") {
		t.Errorf("trap emitted without a division:\n%s", asm)
	}
}

func TestComparisonOperations(t *testing.T) {
	tests := []struct {
		op   string
		cond string
	}{
		{"==", "eq"},
		{"!=", "ne"},
		{"<", "lt"},
		{"<=", "le"},
		{">", "gt"},
		{">=", "ge"},
	}

	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			asm := generate(t, "int a, b; if a "+tt.op+" 1: begin b = 1; end")
			for _, inst := range []string{"cmp w", ", " + tt.cond + "\n", "cbnz w", ".Lmain.if.then"} {
				if !strings.Contains(asm, inst) {
					t.Errorf("expected %q not found in:\n%s", inst, asm)
				}
			}
		})
	}
}

func TestWideImmediates(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
		not  string
	}{
		{"small", "int a = 42;", []string{"movz w9, #42"}, "movk"},
		{"high half", "int a = 100000;", []string{"movz w9, #34464", "movk w9, #1, lsl #16"}, ""},
		{"int max", "int a = 2147483647;", []string{"movz w9, #65535", "movk w9, #32767, lsl #16"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := generate(t, tt.src)
			for _, want := range tt.want {
				if !strings.Contains(asm, want) {
					t.Errorf("missing %q in:\n%s", want, asm)
				}
			}
			if tt.not != "" && strings.Contains(asm, tt.not) {
				t.Errorf("unexpected %q in:\n%s", tt.not, asm)
			}
		})
	}
}

func TestFunctionFrame(t *testing.T) {
	asm := generate(t, "int a = 1, b = 2, c;")

	for _, want := range []string{
		"\t.globl _main\n\t.p2align 2\n_main:\n",
		"stp x29, x30, [sp, #-16]!",
		"mov x29, sp",
		"sub sp, sp, #16",
		"str w9, [sp, #0]",
		"str w9, [sp, #4]",
		"str w9, [sp, #8]",
		"movz w9, #0\n\tmov w0, w9",
		"mov sp, x29",
		"ldp x29, x30, [sp], #16",
		"ret",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("missing %q in:\n%s", want, asm)
		}
	}
}

func TestLargeFrame(t *testing.T) {
	// 1100 slots need 4400 bytes, more than one sub can encode
	var src strings.Builder
	for i := 0; i < 1100; i++ {
		fmt.Fprintf(&src, "int v%d;", i)
	}

	asm := generate(t, src.String())
	for _, want := range []string{"sub sp, sp, #1, lsl #12\n", "sub sp, sp, #304\n", "str w9, [sp, #4396]"} {
		if !strings.Contains(asm, want) {
			t.Errorf("missing %q in frame setup", want)
		}
	}
}

func TestSymbolPrefix(t *testing.T) {
	var buf bytes.Buffer
	g := NewGenerator(&buf)
	g.SymbolPrefix = ""
	if err := g.Generate(compile(t, "")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), ".globl main\n") || !strings.Contains(buf.String(), "\nmain:\n") {
		t.Errorf("unprefixed symbol not emitted:\n%s", buf.String())
	}
}

func TestLoopControlFlow(t *testing.T) {
	asm := generate(t, "int i; loopc i < 10: begin i += 1; end")

	for _, want := range []string{
		"b .Lmain.loop.cond",
		".Lmain.loop.cond:",
		"cbnz w",
		", .Lmain.loop.body",
		"b .Lmain.loop.end",
		".Lmain.loop.end:",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("missing %q in:\n%s", want, asm)
		}
	}
}

func TestCalleeSavedRegistersRestored(t *testing.T) {
	asm := generate(t, "int a = 1, b = 2; a = a + b;")

	saves := strings.Count(asm, "str x19, [sp, #")
	restores := strings.Count(asm, "ldr x19, [sp, #")
	if saves != 1 || restores != 1 {
		t.Errorf("str x19=%d ldr x19=%d, want 1 each:\n%s", saves, restores, asm)
	}
	if strings.Index(asm, "str x19") > strings.Index(asm, "ldr w19") {
		t.Errorf("x19 used before it was saved:\n%s", asm)
	}
}

func TestSpilledTemporaries(t *testing.T) {
	src := "int a, b, c, d, e, f, g, h, i, j, k, r; r = a + (b + (c + (d + (e + (f + (g + (h + (i + (j + k)))))))));"

	asm := generate(t, src)
	// twelve variable slots occupy 0 .. 44; spills go above them
	if !strings.Contains(asm, "str w11, [sp, #48]") {
		t.Errorf("expected a spill slot above the variables:\n%s", asm)
	}
	if !strings.Contains(asm, "ldr w9, [sp, #48]") && !strings.Contains(asm, "ldr w10, [sp, #48]") {
		t.Errorf("spilled temporary never reloaded:\n%s", asm)
	}
}

func TestGenerateWithValidation(t *testing.T) {
	srcs := map[string]string{
		"empty":       "",
		"arithmetic":  "int a = 7, b = 3; a = (a + b) * (a - b) / 2 % 5;",
		"power":       "int b = 3, x; x = b ^ 5;",
		"conditional": "int x = 2, y; if x > 3: begin y = 1; end elif x > 1 and x < 3: begin y = 2; end else: begin y = 3; end",
		"loop":        "int i, s; loopc i < 10 or s == 0: begin i += 1; s += i; end",
	}

	for name, src := range srcs {
		t.Run(name, func(t *testing.T) {
			generate(t, src)
		})
	}
}

func BenchmarkGenerate(b *testing.B) {
	mod := compile(b, "int i, s; loopc i < 100: begin i += 1; s += i * i; end")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		_ = NewGenerator(&buf).Generate(mod)
	}
}
