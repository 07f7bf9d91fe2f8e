// Package amd64 - Unit tests for x86-64 code generation
package amd64

import (
	"bytes"
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
	var buf bytes.Buffer
	if err := NewGenerator(&buf).Generate(compile(t, src)); err != nil {
		t.Fatalf("amd64: %v", err)
	}
	return buf.String()
}

func TestArithmeticOperations(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantInst []string
	}{
		{"addition", "int a = 1; a += 2;", []string{"movl", "addl $2, %eax"}},
		{"subtraction", "int a = 1; a -= 2;", []string{"subl $2, %eax"}},
		{"multiplication", "int a = 1; a *= 3;", []string{"imull $3, %eax"}},
		{"division", "int a = 9; a /= 2;", []string{"movl $2, %ecx", "cltd", "idivl %ecx"}},
		{"remainder", "int a = 9; a %= 2;", []string{"cltd", "idivl %ecx", "movl %edx, %eax"}},
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

func TestComparisonOperations(t *testing.T) {
	tests := []struct {
		op   string
		want string
	}{
		{"==", "sete"},
		{"!=", "setne"},
		{"<", "setl"},
		{"<=", "setle"},
		{">", "setg"},
		{">=", "setge"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			asm := generate(t, "int a, b; if a "+tt.op+" 1: begin b = 1; end")
			for _, inst := range []string{"cmpl $1, %eax", tt.want + " %al", "movzbl %al, %eax", "testl %eax, %eax", "jnz .Lmain.if.then"} {
				if !strings.Contains(asm, inst) {
					t.Errorf("expected instruction %q not found in:\n%s", inst, asm)
				}
			}
		})
	}
}

func TestFunctionFrame(t *testing.T) {
	asm := generate(t, "int a = 1, b = 2, c;")

	for _, want := range []string{
		"\t.globl _main\n_main:\n",
		"pushq %rbp",
		"movq %rsp, %rbp",
		"subq $16, %rsp",
		"movl $1, -4(%rbp)",
		"movl $2, -8(%rbp)",
		"movl $0, -12(%rbp)",
		"movl $0, %eax",
		"leave",
		"retq",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("missing %q in:\n%s", want, asm)
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
	if !strings.Contains(buf.String(), ".globl main\nmain:") {
		t.Errorf("unprefixed symbol not emitted:\n%s", buf.String())
	}
}

func TestLoopControlFlow(t *testing.T) {
	asm := generate(t, "int i; loopc i < 10: begin i += 1; end")

	for _, want := range []string{
		"jmp .Lmain.loop.cond",
		".Lmain.loop.cond:",
		"jnz .Lmain.loop.body",
		"jmp .Lmain.loop.end",
		".Lmain.loop.end:",
	} {
		if !strings.Contains(asm, want) {
			t.Errorf("missing %q in:\n%s", want, asm)
		}
	}
}

func TestCalleeSavedRegistersRestored(t *testing.T) {
	asm := generate(t, "int a = 1, b = 2; a = a + b;")

	pushes := strings.Count(asm, "pushq %rbx")
	pops := strings.Count(asm, "popq %rbx")
	if pushes != 1 || pops != 1 {
		t.Errorf("pushq %%rbx=%d popq %%rbx=%d, want 1 each:\n%s", pushes, pops, asm)
	}
}

func TestSpilledTemporaries(t *testing.T) {
	src := "int a, b, c, d, e, f, g, r; r = a + (b + (c + (d + (e + (f + g)))));"

	asm, err := NewGenerator(nil).GenerateWithValidation(compile(t, src))
	if err != nil {
		t.Fatalf("generation failed: %v\n%s", err, asm)
	}
	// eight variable slots occupy -4 .. -32; spills go below them
	if !strings.Contains(asm, "-36(%rbp)") {
		t.Errorf("expected a spill slot below the variables:\n%s", asm)
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
			asm, err := NewGenerator(nil).GenerateWithValidation(compile(t, src))
			if err != nil {
				t.Fatalf("%v\n%s", err, asm)
			}
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
