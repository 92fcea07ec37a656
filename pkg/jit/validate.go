package jit

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
)

// validate checks every function and returns all problems at once.
func (c *Context) validate() error {
	var problems []Problem
	for _, f := range c.funcs {
		problems = append(problems, f.validate()...)
	}
	logger.LogValidation(len(c.funcs), len(problems))
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (f *Function) validate() []Problem {
	var problems []Problem
	reported := make(map[*Label]bool)
	for _, st := range f.stmts {
		if st.target != nil && !st.target.Placed() && !reported[st.target] {
			reported[st.target] = true
			problems = append(problems, Problem{Function: f.name, Label: st.target.name, Message: "referenced but never placed"})
		}
	}
	if !f.ret.IsVoid() && f.fallsOffEnd() {
		problems = append(problems, Problem{Function: f.name, Message: "control reaches end of non-void function"})
	}
	return problems
}

// fallsOffEnd reports whether some path from the first statement reaches
// the end of the sequence without returning. Jumps to unplaced labels are
// reported separately and contribute no edge.
func (f *Function) fallsOffEnd() bool {
	n := len(f.stmts)
	seen := make([]bool, n+1)
	work := []int{0}
	for len(work) > 0 {
		pos := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[pos] {
			continue
		}
		seen[pos] = true
		if pos == n {
			return true
		}
		st := f.stmts[pos]
		switch st.kind {
		case stmtReturn:
		case stmtJump:
			if st.target.Placed() {
				work = append(work, st.target.pos)
			}
		case stmtConditional:
			work = append(work, pos+1)
			if st.target.Placed() {
				work = append(work, st.target.pos)
			}
		default:
			work = append(work, pos+1)
		}
	}
	return false
}
