// Package arm64 - Assembly validation and correctness verification
package arm64

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

type asmLine struct {
	num       int
	text      string
	label     string
	directive string
	mnemonic  string
	operands  []string
}

// Validator checks the GNU-syntax AArch64 assembly the generator emits:
// known mnemonics and registers, consistent operand widths, encodable
// immediates and addressing modes, AAPCS64 frame discipline and defined
// branch targets.
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
	v.validateMemoryAddressing()
	v.validateCallingConvention()
	v.validateBranches()

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
		if text == "" || strings.HasPrefix(text, "//") {
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

// splitOperands splits on commas outside brackets.
func splitOperands(s string) []string {
	var ops []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
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
	"mov": true, "movz": true, "movk": true,
	"add": true, "sub": true, "mul": true, "sdiv": true, "msub": true,
	"and": true, "orr": true,
	"cmp": true, "cset": true,
	"ldr": true, "str": true, "ldp": true, "stp": true,
	"b": true, "cbz": true, "cbnz": true, "ret": true, "brk": true,
}

func isBranch(mnemonic string) bool {
	return mnemonic == "b" || mnemonic == "cbz" || mnemonic == "cbnz" || strings.HasPrefix(mnemonic, "b.")
}

func (v *Validator) validateSyntax() {
	for _, l := range v.lines {
		if l.label != "" && strings.ContainsAny(l.label, " \t") {
			v.addError(l.num, "invalid label format (contains spaces)", l.text)
		}
		if l.mnemonic != "" && !mnemonics[l.mnemonic] && !strings.HasPrefix(l.mnemonic, "b.") {
			v.addError(l.num, "malformed instruction", l.text)
		}
	}
}

var (
	regPattern = regexp.MustCompile(`^([wx])([0-9]+)$`)
	immPattern = regexp.MustCompile(`^#(-?[0-9]+)$`)
	memPattern = regexp.MustCompile(`^\[(x[0-9]+|sp)(, #(-?[0-9]+))?\](!?)$`)
)

// register reports whether op names a general purpose register and its
// width in bits.
func register(op string) (width int, ok bool) {
	switch op {
	case "sp", "xzr":
		return 64, true
	case "wzr":
		return 32, true
	}
	m := regPattern.FindStringSubmatch(op)
	if m == nil {
		return 0, false
	}
	if n, _ := strconv.Atoi(m[2]); n > 30 {
		return 0, false
	}
	if m[1] == "w" {
		return 32, true
	}
	return 64, true
}

func (v *Validator) validateRegisters() {
	for _, l := range v.lines {
		if l.mnemonic == "" || isBranch(l.mnemonic) && l.mnemonic != "cbz" && l.mnemonic != "cbnz" {
			continue
		}
		for i, op := range l.operands {
			if strings.HasPrefix(op, "#") || strings.HasPrefix(op, "[") || strings.HasPrefix(op, "lsl ") {
				continue
			}
			if l.mnemonic == "cset" && i == 1 {
				continue
			}
			if isBranch(l.mnemonic) && i == len(l.operands)-1 {
				continue
			}
			if _, ok := register(op); !ok {
				v.addError(l.num, fmt.Sprintf("invalid register: %s", op), l.text)
			}
		}
	}
}

// validateOperands checks immediates and that data processing instructions
// do not mix w and x registers.
func (v *Validator) validateOperands() {
	for _, l := range v.lines {
		if l.mnemonic == "" || len(l.operands) == 0 {
			continue
		}

		if strings.HasPrefix(l.operands[0], "#") && l.mnemonic != "brk" {
			v.addError(l.num, "immediate value cannot be destination", l.text)
		}

		switch l.mnemonic {
		case "add", "sub", "mul", "sdiv", "msub", "and", "orr", "cmp", "mov":
			widths := map[int]bool{}
			for _, op := range l.operands {
				if w, ok := register(op); ok {
					widths[w] = true
				}
			}
			if len(widths) > 1 {
				v.addError(l.num, "mixed register widths", l.text)
			}
			if l.mnemonic == "mov" && len(l.operands) == 2 && l.operands[0] == l.operands[1] {
				v.addWarn(l.num, "redundant move: source equals destination", l.text)
			}

		case "movz", "movk":
			if len(l.operands) < 2 {
				v.addError(l.num, "malformed instruction", l.text)
				break
			}
			m := immPattern.FindStringSubmatch(l.operands[1])
			if m == nil {
				v.addError(l.num, fmt.Sprintf("%s needs an immediate", l.mnemonic), l.text)
				break
			}
			if n, _ := strconv.Atoi(m[1]); n < 0 || n > 0xffff {
				v.addError(l.num, fmt.Sprintf("immediate %d out of range for %s", n, l.mnemonic), l.text)
			}

		case "cset":
			if len(l.operands) != 2 {
				v.addError(l.num, "malformed instruction", l.text)
			} else if _, ok := condCodes[l.operands[1]]; !ok {
				v.addError(l.num, fmt.Sprintf("invalid condition: %s", l.operands[1]), l.text)
			}
		}
	}
}

var condCodes = map[string]bool{
	"eq": true, "ne": true, "lt": true, "le": true, "gt": true, "ge": true,
	"hi": true, "hs": true, "lo": true, "ls": true, "mi": true, "pl": true,
}

// validateMemoryAddressing checks the base+offset forms ldr/str/ldp/stp
// accept and that unsigned offsets are scaled to the access size.
func (v *Validator) validateMemoryAddressing() {
	for _, l := range v.lines {
		if l.mnemonic == "" {
			continue
		}
		for _, op := range l.operands {
			if !strings.HasPrefix(op, "[") {
				continue
			}
			m := memPattern.FindStringSubmatch(op)
			if m == nil {
				v.addError(l.num, fmt.Sprintf("invalid memory addressing mode: %s", op), l.text)
				continue
			}
			if l.mnemonic != "ldr" && l.mnemonic != "str" || m[3] == "" || m[4] != "" {
				continue
			}

			size := 8
			if w, _ := register(l.operands[0]); w == 32 {
				size = 4
			}
			off, _ := strconv.Atoi(m[3])
			switch {
			case off < 0 || off > 4095*size:
				v.addError(l.num, fmt.Sprintf("offset %d out of range", off), l.text)
			case off%size != 0:
				v.addError(l.num, fmt.Sprintf("offset %d is not a multiple of %d", off, size), l.text)
			}
		}
	}
}

func isCalleeSaved(reg string) bool {
	m := regPattern.FindStringSubmatch(reg)
	if m == nil {
		return false
	}
	n, _ := strconv.Atoi(m[2])
	return n >= 19 && n <= 28
}

// frameState is what validateCallingConvention tracks within a function.
type frameState struct {
	record bool            // x29/x30 pushed and not yet popped
	saved  map[string]bool // callee-saved registers stored and not yet reloaded
}

func (s frameState) clone() frameState {
	c := frameState{record: s.record, saved: make(map[string]bool, len(s.saved))}
	for r := range s.saved {
		c.saved[r] = true
	}
	return c
}

// validateCallingConvention walks each function and checks AAPCS64 frame
// discipline: callee-saved registers are stored before they are written
// and reloaded before every return, the frame record is restored, and sp
// moves in 16-byte steps. Blocks laid out after a return start from the
// frame the prologue built.
func (v *Validator) validateCallingConvention() {
	fn := ""
	var (
		state    frameState
		prologue *frameState
		stored   map[string]bool
	)

	for _, l := range v.lines {
		if l.label != "" {
			if !strings.HasPrefix(l.label, ".L") {
				fn = l.label
				state = frameState{saved: map[string]bool{}}
				prologue = nil
				stored = map[string]bool{}
			} else if prologue == nil {
				snap := state.clone()
				prologue = &snap
			}
			continue
		}
		if fn == "" || l.mnemonic == "" {
			continue
		}

		switch l.mnemonic {
		case "stp":
			if len(l.operands) == 3 && l.operands[0] == "x29" && l.operands[1] == "x30" {
				if l.operands[2] != "[sp, #-16]!" {
					v.addError(l.num, "frame record must be pushed with pre-index [sp, #-16]!", l.text)
				}
				state.record = true
			}

		case "ldp":
			if len(l.operands) >= 2 && l.operands[0] == "x29" && l.operands[1] == "x30" {
				state.record = false
			}

		case "str":
			if len(l.operands) == 2 && isCalleeSaved(l.operands[0]) && strings.HasPrefix(l.operands[0], "x") {
				state.saved[l.operands[0]] = true
				stored[l.operands[0]] = true
			}

		case "ldr":
			if len(l.operands) == 2 && isCalleeSaved(l.operands[0]) && strings.HasPrefix(l.operands[0], "x") {
				if !state.saved[l.operands[0]] {
					v.addError(l.num, fmt.Sprintf("%s reloaded but never saved", l.operands[0]), l.text)
				}
				delete(state.saved, l.operands[0])
			}

		case "sub", "add":
			if len(l.operands) >= 3 && l.operands[0] == "sp" && l.operands[1] == "sp" {
				if m := immPattern.FindStringSubmatch(l.operands[2]); m != nil && len(l.operands) == 3 {
					if n, _ := strconv.Atoi(m[1]); n%16 != 0 {
						v.addError(l.num, fmt.Sprintf("frame size %d is not 16-byte aligned", n), l.text)
					}
				}
			}

		case "ret":
			if len(state.saved) > 0 {
				v.addError(l.num, fmt.Sprintf("callee-saved registers not restored in %s: %v", fn, savedList(state.saved)), l.text)
			}
			if state.record {
				v.addError(l.num, fmt.Sprintf("frame record not restored before return in %s", fn), l.text)
			}
			if prologue != nil {
				state = prologue.clone()
			}
		}

		// writes to callee-saved registers need a save in this function
		if writesDest(l) && isCalleeSaved(l.operands[0]) {
			if !stored["x"+l.operands[0][1:]] {
				v.addError(l.num, fmt.Sprintf("callee-saved register %s written without being saved", l.operands[0]), l.text)
			}
		}
	}
}

// writesDest reports whether l overwrites its first operand. Reloading an
// x register is a restore and does not count.
func writesDest(l asmLine) bool {
	if len(l.operands) == 0 {
		return false
	}
	switch l.mnemonic {
	case "mov", "movz", "movk", "add", "sub", "mul", "sdiv", "msub", "and", "orr", "cset":
		return true
	case "ldr":
		return strings.HasPrefix(l.operands[0], "w")
	}
	return false
}

// savedList returns the registers in m in CalleeSaved order.
func savedList(m map[string]bool) []string {
	var keys []string
	for _, r := range CalleeSaved {
		if m[r] {
			keys = append(keys, r)
		}
	}
	return keys
}

func (v *Validator) validateBranches() {
	for _, l := range v.lines {
		if !isBranch(l.mnemonic) {
			continue
		}
		target := ""
		if len(l.operands) > 0 {
			target = l.operands[len(l.operands)-1]
		}
		if target == "" || !v.labels[target] {
			v.addError(l.num, fmt.Sprintf("branch to undefined label %q", target), l.text)
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
	report.WriteString("=== ARM64 Assembly Validation Report ===\n\n")

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

	logger.Info("ARM64 assembly validation passed", "instructions", v.instructions(), "warnings", len(v.warns))
	return true, report.String()
}
