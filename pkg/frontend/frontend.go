// Package frontend implements GSM lexing, parsing and AST construction.
//
// Design: Minimal, focused on correctness. The parser keeps going after a
// syntax error so a single run reports every malformed statement.
package frontend

// ParseSource tokenizes and parses src. The returned program is partial when
// errs is non-empty.
func ParseSource(src string) (prog *Program, errs []*SyntaxError) {
	p := NewParser(Tokenize(src))
	prog, _ = p.Parse()
	return prog, p.Errors()
}
