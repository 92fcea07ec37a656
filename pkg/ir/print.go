package ir

import (
	"fmt"
	"io"
	"strings"
)

// String renders the program in a compact textual form.
func (p *Program) String() string {
	var sb strings.Builder
	for i, fn := range p.Functions {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(fn.String())
	}
	return sb.String()
}

// Fprint writes the textual form of p to w.
func Fprint(w io.Writer, p *Program) error {
	_, err := io.WriteString(w, p.String())
	return err
}

func (f *Function) String() string {
	var sb strings.Builder
	vis := "internal"
	if f.Exported {
		vis = "exported"
	}
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s %s", p.Name, p.Type)
	}
	ret := "void"
	if !IsVoid(f.ReturnType) {
		ret = f.ReturnType.String()
	}
	fmt.Fprintf(&sb, "%s func %s(%s) %s {\n", vis, f.Name, strings.Join(params, ", "), ret)
	for _, l := range f.Locals {
		fmt.Fprintf(&sb, "  local %s %s\n", FormatValue(l), l.Type)
	}
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b)
		for _, inst := range b.Insts {
			fmt.Fprintf(&sb, "  %s\n", FormatInst(inst))
		}
		if b.Term != nil {
			fmt.Fprintf(&sb, "  %s\n", FormatTerm(b.Term))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// FormatValue renders a single operand.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case *Const:
		if _, ok := x.Type.(BoolType); ok {
			return fmt.Sprintf("%t", x.Val != 0)
		}
		if !x.Type.Signed() && x.Val < 0 {
			return fmt.Sprintf("%d", uint64(x.Val))
		}
		return fmt.Sprintf("%d", x.Val)
	case *Param:
		return "%" + x.Name
	case *Local:
		return fmt.Sprintf("$%s.%d", x.Name, x.Index)
	case *Temp:
		return fmt.Sprintf("t%d", x.ID)
	}
	return fmt.Sprintf("%v", v)
}

// FormatInst renders a single instruction.
func FormatInst(inst Inst) string {
	switch i := inst.(type) {
	case *Move:
		return fmt.Sprintf("%s = %s", FormatValue(i.Dest), FormatValue(i.Src))
	case *BinOp:
		return fmt.Sprintf("%s = %s %s %s, %s", FormatValue(i.Dest), i.Op,
			i.L.ValueType(), FormatValue(i.L), FormatValue(i.R))
	case *UnOp:
		return fmt.Sprintf("%s = %s %s %s", FormatValue(i.Dest), i.Op,
			i.X.ValueType(), FormatValue(i.X))
	}
	return fmt.Sprintf("%T", inst)
}

// FormatTerm renders a terminator.
func FormatTerm(term Terminator) string {
	switch t := term.(type) {
	case *Return:
		if t.Value == nil {
			return "ret"
		}
		return "ret " + FormatValue(t.Value)
	case *Branch:
		return fmt.Sprintf("br %s", t.Target)
	case *CondBranch:
		return fmt.Sprintf("br %s, %s, %s", FormatValue(t.Cond), t.True, t.False)
	}
	return fmt.Sprintf("%T", term)
}
