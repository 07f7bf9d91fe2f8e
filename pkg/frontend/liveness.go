package frontend

// LiveDeclarations returns the declared variables whose values can flow into
// result or into a loop condition, so removing every other variable changes
// neither result nor termination. A variable assigned under a condition or
// loop also depends on the variables that condition reads. If result is not
// declared the set is empty.
func LiveDeclarations(prog *Program, result string) map[string]bool {
	w := &depWalker{
		edges:    make(map[string]map[string]bool),
		declared: make(map[string]bool),
	}
	_ = prog.Accept(w)

	live := make(map[string]bool)
	if !w.declared[result] {
		return live
	}

	stack := append([]string{result}, w.loopReads...)
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if live[name] {
			continue
		}
		live[name] = true
		for dep := range w.edges[name] {
			if !live[dep] {
				stack = append(stack, dep)
			}
		}
	}

	for name := range live {
		if !w.declared[name] {
			delete(live, name)
		}
	}
	return live
}

// depWalker records def -> use edges. guards holds the variables read by the
// conditions enclosing the current statement.
type depWalker struct {
	edges    map[string]map[string]bool
	declared map[string]bool
	guards   [][]string
	uses     []string

	loopReads []string
}

func (w *depWalker) def(name string, uses []string) {
	set := w.edges[name]
	if set == nil {
		set = make(map[string]bool)
		w.edges[name] = set
	}
	for _, u := range uses {
		set[u] = true
	}
	for _, g := range w.guards {
		for _, u := range g {
			set[u] = true
		}
	}
}

// collect returns the identifiers read by e.
func (w *depWalker) collect(e Expr) []string {
	saved := w.uses
	w.uses = nil
	_ = e.Accept(w)
	uses := w.uses
	w.uses = saved
	return uses
}

func (w *depWalker) VisitProgram(prog *Program) error {
	for _, s := range prog.Stmts {
		if err := s.Accept(w); err != nil {
			return err
		}
	}
	return nil
}

func (w *depWalker) VisitLiteral(l *Literal) error {
	if l.Kind == LitId {
		w.uses = append(w.uses, l.Value)
	}
	return nil
}

func (w *depWalker) VisitBinaryExpr(b *BinaryExpr) error {
	if err := b.Left.Accept(w); err != nil {
		return err
	}
	return b.Right.Accept(w)
}

func (w *depWalker) VisitDeclaration(d *Declaration) error {
	for i, name := range d.Names {
		w.declared[name] = true
		var uses []string
		if init := d.Init(i); init != nil {
			uses = w.collect(init)
		}
		w.def(name, uses)
	}
	return nil
}

func (w *depWalker) VisitAssignment(a *Assignment) error {
	uses := w.collect(a.Value)
	if a.Op != Assign {
		uses = append(uses, a.Target)
	}
	w.def(a.Target, uses)
	return nil
}

func (w *depWalker) VisitBlock(b *Block) error {
	for _, a := range b.Stmts {
		if err := a.Accept(w); err != nil {
			return err
		}
	}
	return nil
}

func (w *depWalker) VisitConditional(c *Conditional) error {
	// Reaching a later branch depends on every earlier condition too.
	depth := len(w.guards)
	for i, cond := range c.Conds {
		w.guards = append(w.guards, w.collect(cond))
		if err := c.Blocks[i].Accept(w); err != nil {
			return err
		}
	}
	if c.Else != nil {
		if err := c.Else.Accept(w); err != nil {
			return err
		}
	}
	w.guards = w.guards[:depth]
	return nil
}

func (w *depWalker) VisitLoop(l *Loop) error {
	reads := w.collect(l.Cond)
	w.loopReads = append(w.loopReads, reads...)
	w.guards = append(w.guards, reads)
	err := l.Body.Accept(w)
	w.guards = w.guards[:len(w.guards)-1]
	return err
}
