package main

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gsm-lang/gsmc/pkg/driver"
	"github.com/gsm-lang/gsmc/pkg/optimizer"
)

// execute runs the root command in a fresh working directory. Flag values
// are package state, so they are reset before every run.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func writeSource(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"build", "check", "compile", "run", "version", "watch"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	testChdir(t, t.TempDir())
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "gsmc "+Version) || !strings.Contains(out, runtime.GOOS) {
		t.Errorf("unexpected version output:\n%s", out)
	}
}

func TestCompileCommand(t *testing.T) {
	testChdir(t, t.TempDir())
	src := writeSource(t, "prog.gsm", "int a = 2, b; b = a ^ 3;")
	x86 := writeSource(t, "amd64.yaml", "compile:\n  arch: amd64\n")
	arm := writeSource(t, "arm64.yaml", "compile:\n  arch: arm64\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default llvm", []string{"compile", src}, "define i32 @main(i32 %argc, i8** %argv)"},
		{"ir", []string{"compile", src, "--emit", "ir", "-O", "0"}, "%b.addr"},
		{"asm amd64 config", []string{"compile", src, "--emit", "asm", "-c", x86}, "pushq %rbp"},
		{"asm arm64 config", []string{"compile", src, "--emit", "asm", "-c", arm}, "stp x29, x30, [sp, #-16]!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestCompileCommandOutputFile(t *testing.T) {
	testChdir(t, t.TempDir())
	src := writeSource(t, "prog.gsm", "int a = 1;")
	dst := filepath.Join(t.TempDir(), "prog.ll")

	out, err := execute(t, "compile", src, "-o", dst)
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Errorf("unexpected stdout with -o: %q", out)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "@main") {
		t.Errorf("output file missing main:\n%s", data)
	}
}

func TestCompileCommandErrors(t *testing.T) {
	testChdir(t, t.TempDir())
	good := writeSource(t, "good.gsm", "int a;")
	bad := writeSource(t, "bad.gsm", "int = 5; int x = 1; y 3;")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"syntax errors", []string{"compile", bad}, "2 syntax errors"},
		{"bad level", []string{"compile", good, "-O", "5"}, "invalid optimization level"},
		{"missing file", []string{"compile", filepath.Join(t.TempDir(), "none.gsm")}, "failed to read source"},
		{"missing config", []string{"compile", good, "-c", "nope.yaml"}, "failed to load configuration"},
		{"no args", []string{"compile"}, "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestCheckCommand(t *testing.T) {
	testChdir(t, t.TempDir())
	good := writeSource(t, "good.gsm", "int a = 1; a += 2;")
	bad := writeSource(t, "bad.gsm", "int a; b = a;")

	out, err := execute(t, "check", good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files have errors") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(out, good+": ok") {
		t.Errorf("good file not reported ok:\n%s", out)
	}
	if !strings.Contains(out, bad) {
		t.Errorf("bad file not reported:\n%s", out)
	}
}

func TestRunCommand(t *testing.T) {
	testChdir(t, t.TempDir())
	src := writeSource(t, "squares.gsm", "int i, s; loopc i < 10: begin i += 1; s += i * i; end")
	prof := filepath.Join(t.TempDir(), "squares.prof")

	out, err := execute(t, "run", src, "--profile", prof)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "i = 10\n") || !strings.Contains(out, "s = 385\n") {
		t.Errorf("unexpected variables:\n%s", out)
	}

	profile, err := optimizer.LoadProfile(prof)
	if err != nil {
		t.Fatal(err)
	}
	if fp := profile.Functions["main"]; fp == nil || fp.Total == 0 {
		t.Errorf("empty profile: %+v", profile)
	}
}

func TestRunCommandStepLimit(t *testing.T) {
	testChdir(t, t.TempDir())
	src := writeSource(t, "spin.gsm", "int i; loopc i == 0: begin i = 0; end")

	if _, err := execute(t, "run", src, "--max-steps", "500"); err == nil || !strings.Contains(err.Error(), "step limit") {
		t.Errorf("error = %v, want step limit", err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		src, emit, want string
	}{
		{"dir/prog.gsm", "llvm", "dir/prog.ll"},
		{"prog.gsm", "asm", "prog.s"},
		{"prog.gsm", "ir", "prog.ir"},
	}
	for _, tt := range tests {
		if got := outputPath(tt.src, tt.emit); got != tt.want {
			t.Errorf("outputPath(%q, %q) = %q, want %q", tt.src, tt.emit, got, tt.want)
		}
	}
}

func TestBuildCommand(t *testing.T) {
	if runtime.GOOS != "linux" || !driver.SupportsArch(runtime.GOARCH) {
		t.Skipf("native build unsupported on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	for _, tool := range []string{"as", "cc"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not installed", tool)
		}
	}

	testChdir(t, t.TempDir())
	src := writeSource(t, "prog.gsm", "int i, s; loopc i < 5: begin i += 1; s += i; end")
	exe := filepath.Join(t.TempDir(), "prog")

	if _, err := execute(t, "build", src, "-o", exe); err != nil {
		t.Fatal(err)
	}
	if err := exec.Command(exe).Run(); err != nil {
		t.Errorf("built program failed: %v", err)
	}
}

func TestBuildCommandUnsupportedHost(t *testing.T) {
	testChdir(t, t.TempDir())
	src := writeSource(t, "prog.gsm", "int a;")

	old := hostArch
	hostArch = "riscv64"
	t.Cleanup(func() { hostArch = old })

	_, err := execute(t, "build", src)
	if err == nil || !strings.Contains(err.Error(), "unsupported host architecture riscv64") {
		t.Errorf("expected unsupported host architecture, got %v", err)
	}
}
