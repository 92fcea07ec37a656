package jit

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a C-like rendering of every function.
func (c *Context) Dump(w io.Writer) error {
	for i, f := range c.funcs {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, f.String()); err != nil {
			return err
		}
	}
	return nil
}

func (f *Function) String() string {
	var sb strings.Builder
	if f.vis == Internal {
		sb.WriteString("static ")
	}
	fmt.Fprintf(&sb, "%s\n%s (", f.ret, f.name)
	for i, p := range f.params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", p.typ, p.name)
	}
	sb.WriteString(")\n{\n")
	for _, l := range f.locals {
		fmt.Fprintf(&sb, "  %s %s;\n", l.typ, l.name)
	}
	if len(f.locals) > 0 {
		sb.WriteByte('\n')
	}

	at := make(map[int][]*Label)
	for _, l := range f.labels {
		if l.Placed() {
			at[l.pos] = append(at[l.pos], l)
		}
	}
	for i := 0; i <= len(f.stmts); i++ {
		for _, l := range at[i] {
			fmt.Fprintf(&sb, "%s:\n", l.name)
		}
		if i == len(f.stmts) {
			break
		}
		sb.WriteString("  ")
		sb.WriteString(formatStmt(f.stmts[i]))
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n")
	return sb.String()
}

func formatStmt(st statement) string {
	switch st.kind {
	case stmtAssign:
		return fmt.Sprintf("%s = %s;", st.dest.name, formatExpr(st.value))
	case stmtAssignOp:
		return fmt.Sprintf("%s %s= %s;", st.dest.name, st.op, formatExpr(st.value.y))
	case stmtConditional:
		return fmt.Sprintf("if (%s) goto %s;", formatExpr(st.value), st.target.name)
	case stmtJump:
		return fmt.Sprintf("goto %s;", st.target.name)
	case stmtReturn:
		if st.value == nil {
			return "return;"
		}
		return fmt.Sprintf("return %s;", formatExpr(st.value))
	}
	return "?"
}

func formatExpr(r *Rvalue) string {
	switch r.kind {
	case exprConst:
		switch {
		case r.typ.IsBool():
			return fmt.Sprint(r.val != 0)
		case r.typ.IsPointer():
			return fmt.Sprintf("(%s)NULL", r.typ)
		case r.typ.Signed():
			return fmt.Sprintf("(%s)%d", r.typ, r.val)
		}
		return fmt.Sprintf("(%s)%d", r.typ, uint64(r.val))
	case exprParam:
		return r.param.name
	case exprLocal:
		return r.local.name
	case exprBinary:
		return fmt.Sprintf("%s %s %s", operand(r.x), BinaryOp(r.op), operand(r.y))
	case exprComparison:
		return fmt.Sprintf("%s %s %s", operand(r.x), ComparisonOp(r.op), operand(r.y))
	case exprUnary:
		return fmt.Sprintf("%s%s", UnaryOp(r.op), operand(r.x))
	}
	return "?"
}

// operand parenthesizes compound subexpressions.
func operand(r *Rvalue) string {
	switch r.kind {
	case exprBinary, exprComparison, exprUnary:
		return "(" + formatExpr(r) + ")"
	}
	return formatExpr(r)
}
