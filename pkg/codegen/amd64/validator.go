// Package amd64 - Assembly validation and correctness verification
package amd64

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gsm-lang/gsmc/pkg/logger"
)

// ValidationError represents an assembly validation error
type ValidationError struct {
	Line    int
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("line %d: %s\n  %s", e.Line, e.Message, e.Code)
}

// ValidationErrors is returned by Validate when any check fails.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("Assembly validation failed:\n")
	for _, err := range es {
		sb.WriteString("  " + err.Error() + "\n")
	}
	return sb.String()
}

// asmLine is one non-empty source line. Exactly one of label, directive
// and mnemonic is set.
type asmLine struct {
	num       int
	text      string
	label     string
	directive string
	mnemonic  string
	operands  []string
}

func (l *asmLine) dest() string {
	if len(l.operands) == 0 {
		return ""
	}
	return l.operands[len(l.operands)-1]
}

// Validator checks the AT&T assembly the generator emits: known mnemonics
// and registers, operand forms x86-64 can encode, balanced callee-saved
// pushes, aligned frames and defined jump targets.
type Validator struct {
	lines  []asmLine
	labels map[string]bool

	errors []ValidationError
	warns  []ValidationError
}

// NewValidator creates a new assembly validator
func NewValidator() *Validator {
	return &Validator{labels: make(map[string]bool)}
}

// Validate runs every check and returns ValidationErrors if any failed.
// Warnings are logged.
func (v *Validator) Validate(assembly string) error {
	v.parse(assembly)

	v.validateSyntax()
	v.validateRegisters()
	v.validateOperands()
	v.validateFrames()
	v.validateJumps()

	if len(v.warns) > 0 {
		v.logWarnings()
	}
	if len(v.errors) > 0 {
		return ValidationErrors(append([]ValidationError(nil), v.errors...))
	}
	return nil
}

func (v *Validator) parse(assembly string) {
	for i, raw := range strings.Split(assembly, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		l := asmLine{num: i + 1, text: text}

		switch {
		case strings.HasSuffix(text, ":") && !strings.HasPrefix(raw, "\t"):
			l.label = strings.TrimSuffix(text, ":")
			v.labels[l.label] = true
		case strings.HasPrefix(text, "."):
			l.directive = text
		default:
			mnemonic, rest, _ := strings.Cut(text, " ")
			l.mnemonic = mnemonic
			l.operands = splitOperands(rest)
		}
		v.lines = append(v.lines, l)
	}
}

// splitOperands splits on commas outside parentheses.
func splitOperands(s string) []string {
	var ops []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				ops = append(ops, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		ops = append(ops, rest)
	}
	return ops
}

var mnemonics = map[string]bool{
	"movl": true, "movq": true, "movzbl": true,
	"addl": true, "subl": true, "imull": true, "andl": true, "orl": true, "xorl": true,
	"addq": true, "subq": true,
	"cltd": true, "idivl": true,
	"cmpl": true, "testl": true,
	"sete": true, "setne": true, "setl": true, "setle": true, "setg": true, "setge": true,
	"jmp": true, "jnz": true, "jz": true, "je": true, "jne": true,
	"pushq": true, "popq": true, "leave": true, "retq": true, "ret": true,
}

func isJump(mnemonic string) bool {
	return strings.HasPrefix(mnemonic, "j")
}

func (v *Validator) validateSyntax() {
	for _, l := range v.lines {
		if l.label != "" && strings.ContainsAny(l.label, " \t") {
			v.addError(l.num, "invalid label format (contains spaces)", l.text)
		}
		if l.mnemonic != "" && !mnemonics[l.mnemonic] {
			v.addError(l.num, "malformed instruction", l.text)
		}
	}
}

var validRegs = map[string]bool{
	"%rax": true, "%rbx": true, "%rcx": true, "%rdx": true,
	"%rsi": true, "%rdi": true, "%rbp": true, "%rsp": true,
	"%r8": true, "%r9": true, "%r10": true, "%r11": true,
	"%r12": true, "%r13": true, "%r14": true, "%r15": true,
	"%eax": true, "%ebx": true, "%ecx": true, "%edx": true,
	"%esi": true, "%edi": true, "%ebp": true, "%esp": true,
	"%r8d": true, "%r9d": true, "%r10d": true, "%r11d": true,
	"%r12d": true, "%r13d": true, "%r14d": true, "%r15d": true,
	"%al": true, "%bl": true, "%cl": true, "%dl": true,
}

var (
	regPattern    = regexp.MustCompile(`%[a-z0-9]+`)
	scaledPattern = regexp.MustCompile(`\(%[a-z0-9]+,%[a-z0-9]+,(\d+)\)`)
	framePattern  = regexp.MustCompile(`^\$(\d+)$`)
)

func (v *Validator) validateRegisters() {
	for _, l := range v.lines {
		if l.mnemonic == "" {
			continue
		}
		for _, reg := range regPattern.FindAllString(l.text, -1) {
			if !validRegs[reg] {
				v.addError(l.num, fmt.Sprintf("invalid register: %s", reg), l.text)
			}
		}
	}
}

func isMemoryOperand(operand string) bool {
	return strings.Contains(operand, "(") && strings.Contains(operand, ")")
}

func (v *Validator) validateOperands() {
	for i, l := range v.lines {
		if l.mnemonic == "" {
			continue
		}

		if len(l.operands) == 2 {
			if strings.HasPrefix(l.dest(), "$") {
				v.addError(l.num, "immediate value cannot be destination", l.text)
			}
			if isMemoryOperand(l.operands[0]) && isMemoryOperand(l.operands[1]) {
				v.addError(l.num, "x86-64 doesn't support memory-to-memory moves", l.text)
			}
		}

		for _, m := range scaledPattern.FindAllStringSubmatch(l.text, -1) {
			if s := m[1]; s != "1" && s != "2" && s != "4" && s != "8" {
				v.addError(l.num, fmt.Sprintf("invalid scale factor: %s (must be 1, 2, 4, or 8)", s), l.text)
			}
		}

		switch {
		case l.mnemonic == "idivl":
			if strings.HasPrefix(l.dest(), "$") {
				v.addError(l.num, "idivl cannot take an immediate divisor", l.text)
			}
			if i == 0 || v.lines[i-1].mnemonic != "cltd" {
				v.addWarn(l.num, "division without cltd may cause incorrect results", l.text)
			}
		case strings.HasPrefix(l.mnemonic, "set"):
			if !strings.HasSuffix(l.dest(), "l") || strings.HasPrefix(l.dest(), "%r") {
				v.addError(l.num, "setcc needs an 8-bit register", l.text)
			}
		}
	}
}

// validateFrames walks each function and checks that callee-saved pushes
// are popped in reverse order before every return and that the frame keeps
// %rsp 16-byte aligned. Blocks laid out after a return start from the frame
// the prologue built.
func (v *Validator) validateFrames() {
	fn := ""
	var pushed, prologue []string

	for _, l := range v.lines {
		if l.label != "" {
			if !strings.HasPrefix(l.label, ".L") {
				fn = l.label
				pushed, prologue = nil, nil
			} else if prologue == nil {
				prologue = append([]string{}, pushed...)
			}
			continue
		}
		if fn == "" || l.mnemonic == "" {
			continue
		}

		switch l.mnemonic {
		case "pushq":
			pushed = append(pushed, l.dest())

		case "popq":
			reg := l.dest()
			if n := len(pushed); n > 0 && pushed[n-1] == reg {
				pushed = pushed[:n-1]
				break
			}
			if n := len(pushed); n > 0 {
				v.addError(l.num, fmt.Sprintf("popq %s does not match pushq %s", reg, pushed[n-1]), l.text)
			} else {
				v.addError(l.num, "stack underflow detected", l.text)
			}
			for i := len(pushed) - 1; i >= 0; i-- {
				if pushed[i] == reg {
					pushed = append(pushed[:i], pushed[i+1:]...)
					break
				}
			}

		case "leave":
			if n := len(pushed); n == 0 || pushed[n-1] != "%rbp" {
				v.addError(l.num, "leave without a saved %rbp on top of the stack", l.text)
			} else {
				pushed = pushed[:n-1]
			}

		case "subq", "addq":
			if l.dest() != "%rsp" {
				break
			}
			if m := framePattern.FindStringSubmatch(l.operands[0]); m != nil {
				if size, _ := strconv.Atoi(m[1]); size%16 != 0 {
					v.addError(l.num, fmt.Sprintf("frame size %d is not 16-byte aligned", size), l.text)
				}
			}

		case "retq", "ret":
			if len(pushed) > 0 {
				v.addError(l.num, fmt.Sprintf("callee-saved registers not restored in %s: %v", fn, pushed), l.text)
			}
			pushed = append([]string(nil), prologue...)
		}
	}
}

func (v *Validator) validateJumps() {
	for _, l := range v.lines {
		if !isJump(l.mnemonic) {
			continue
		}
		if target := l.dest(); target == "" || !v.labels[target] {
			v.addError(l.num, fmt.Sprintf("jump to undefined label %q", target), l.text)
		}
	}
}

func (v *Validator) addError(line int, msg, code string) {
	v.errors = append(v.errors, ValidationError{Line: line, Message: msg, Code: code})
}

func (v *Validator) addWarn(line int, msg, code string) {
	v.warns = append(v.warns, ValidationError{Line: line, Message: msg, Code: code})
}

func (v *Validator) logWarnings() {
	for _, warn := range v.warns {
		logger.Warn("Assembly validation warning", "line", warn.Line, "msg", warn.Message)
	}
}

func (v *Validator) instructions() int {
	n := 0
	for _, l := range v.lines {
		if l.mnemonic != "" {
			n++
		}
	}
	return n
}

// ValidateProgram validates an entire generated program
func ValidateProgram(assembly string) error {
	return NewValidator().Validate(assembly)
}

// QuickValidate checks only mnemonics and registers.
func QuickValidate(assembly string) bool {
	v := NewValidator()
	v.parse(assembly)
	v.validateSyntax()
	v.validateRegisters()
	return len(v.errors) == 0
}

// ValidateAndReport validates assembly and returns a detailed report
func ValidateAndReport(assembly string) (bool, string) {
	v := NewValidator()
	err := v.Validate(assembly)

	var report strings.Builder
	report.WriteString("=== Assembly Validation Report ===\n\n")

	if err != nil {
		fmt.Fprintf(&report, "Status: FAILED\n\nErrors:\n%s\n", err)
		return false, report.String()
	}

	report.WriteString("Status: PASSED\n\n")
	if len(v.warns) > 0 {
		report.WriteString("Warnings:\n")
		for _, warn := range v.warns {
			fmt.Fprintf(&report, "  Line %d: %s\n", warn.Line, warn.Message)
		}
	} else {
		report.WriteString("No warnings.\n")
	}

	fmt.Fprintf(&report, "\nStatistics:\n  Lines: %d\n  Labels: %d\n  Instructions: %d\n",
		len(v.lines), len(v.labels), v.instructions())

	logger.Info("Assembly validation passed", "instructions", v.instructions(), "warnings", len(v.warns))
	return true, report.String()
}
