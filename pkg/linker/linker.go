// Package linker handles object file generation and linking.
//
// Design: Shell out to the system toolchain. The generated assembly defines
// main, so the C driver supplies crt startup and the result is a standalone
// executable whose exit status is main's return value.
package linker

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/gsm-lang/gsmc/pkg/logger"
)

// Linker links object files into executables
type Linker struct {
	target  string
	objects []string
	output  string
	cc      string
}

// New returns a linker for target ("linux", "darwin"); an empty target means
// the host. cc defaults to "cc".
func New(target, output, cc string) *Linker {
	if target == "" {
		target = runtime.GOOS
	}
	if cc == "" {
		cc = "cc"
	}
	return &Linker{
		target: target,
		output: output,
		cc:     cc,
	}
}

func (l *Linker) AddObject(path string) {
	l.objects = append(l.objects, path)
}

// Command returns the link command without running it.
func (l *Linker) Command(ctx context.Context) *exec.Cmd {
	args := []string{"-o", l.output}
	if l.target == "linux" {
		args = append(args, "-no-pie")
	}
	args = append(args, l.objects...)
	return exec.CommandContext(ctx, l.cc, args...)
}

// Link produces the final executable
func (l *Linker) Link(ctx context.Context) error {
	if len(l.objects) == 0 {
		return fmt.Errorf("linker: no objects to link")
	}
	cmd := l.Command(ctx)
	logger.Info("Linking", "output", l.output, "objects", len(l.objects), "cc", l.cc)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("linker: %s failed: %w: %s", l.cc, err, out)
	}
	return nil
}

// EmitObject assembles asmPath into objPath with the system assembler
func EmitObject(ctx context.Context, asmPath, objPath string) error {
	cmd := exec.CommandContext(ctx, "as", "-o", objPath, asmPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("assembler failed: %w: %s", err, out)
	}
	return nil
}

// SymbolPrefix returns the C symbol prefix of target ("_" on Mach-O).
func SymbolPrefix(target string) string {
	if target == "" {
		target = runtime.GOOS
	}
	if target == "darwin" {
		return "_"
	}
	return ""
}
