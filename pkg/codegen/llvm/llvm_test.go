package llvm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gsm-lang/gsmc/pkg/codegen"
	"github.com/gsm-lang/gsmc/pkg/frontend"
	"github.com/gsm-lang/gsmc/pkg/ir"
)

func compile(t *testing.T, src string) *ir.Module {
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

func TestEmit(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "entry function",
			src:  "",
			want: []string{
				`source_filename = "calc.expr"`,
				"define i32 @main(i32 %argc, i8** %argv)",
				"entry:",
				"ret i32 0",
			},
		},
		{
			name: "declaration",
			src:  "int a = 4, b;",
			want: []string{"%a.addr = alloca i32", "%b.addr = alloca i32", "store i32 4, i32* %a.addr", "store i32 0, i32* %b.addr"},
		},
		{
			name: "arithmetic carries nsw",
			src:  "int a = 1; a = a + 2 - 3 * 4;",
			want: []string{"add nsw i32", "sub nsw i32", "mul nsw i32", "load i32, i32* %a.addr"},
		},
		{
			name: "signed division and remainder",
			src:  "int a = 9; a /= 2; a %= 2;",
			want: []string{"sdiv i32", "srem i32"},
		},
		{
			name: "comparisons and logic",
			src:  "int a; if a < 1 and a >= 0 or a != 5: begin a = 1; end",
			want: []string{"icmp slt i32", "icmp sge i32", "icmp ne i32", "and i1", "or i1", "br i1"},
		},
		{
			name: "loop blocks",
			src:  "int i; loopc i <= 3: begin i += 1; end",
			want: []string{"br label %loop.cond", "loop.body:", "loop.end:", "icmp sle i32"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Emit(&buf, compile(t, tt.src)); err != nil {
				t.Fatalf("emit: %v", err)
			}
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestAllocasInEntryBlock(t *testing.T) {
	src := "int a; if a > 0: begin a = 1; end int b = 2; loopc b < 5: begin b += 1; end int c = b;"

	var buf bytes.Buffer
	if err := Emit(&buf, compile(t, src)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := buf.String()

	entryEnd := strings.Index(out, "if.then:")
	if entryEnd < 0 {
		t.Fatalf("no if.then block:\n%s", out)
	}
	entry := out[:entryEnd]
	for _, name := range []string{"%a.addr", "%b.addr", "%c.addr"} {
		alloca := name + " = alloca i32"
		if strings.Count(out, alloca) != 1 {
			t.Errorf("want exactly one %q:\n%s", alloca, out)
		}
		if !strings.Contains(entry, alloca) {
			t.Errorf("%q is not in the entry block:\n%s", alloca, out)
		}
	}
	if strings.Index(entry, "%c.addr = alloca") > strings.Index(entry, "store i32 0, i32* %a.addr") {
		t.Errorf("allocas do not lead the entry block:\n%s", out)
	}
}

func TestLowerRejectsBrokenIR(t *testing.T) {
	m := ir.NewModule("broken")
	fn := m.NewFunction("main", ir.IntType{})
	blk := fn.NewBlock("entry")
	blk.Insts = append(blk.Insts, &ir.Load{Dest: &ir.Temp{ID: 0, Typ: ir.IntType{}}, Src: &ir.Slot{Name: "x"}})
	blk.Term = &ir.Return{Value: ir.ConstInt(0)}

	_, err := Lower(m)
	if err == nil || !strings.Contains(err.Error(), "unallocated") {
		t.Errorf("got %v, want unallocated slot error", err)
	}
}
