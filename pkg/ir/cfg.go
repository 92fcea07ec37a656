package ir

// Control-flow graph and dataflow analysis over lowered functions.

// Successors returns the blocks term may transfer control to.
func Successors(term Terminator) []*Block {
	switch t := term.(type) {
	case *Branch:
		return []*Block{t.Target}
	case *CondBranch:
		if t.True == t.False {
			return []*Block{t.True}
		}
		return []*Block{t.True, t.False}
	}
	return nil
}

// ComputeCFG rebuilds Preds and Succs for every block.
func (f *Function) ComputeCFG() {
	for _, b := range f.Blocks {
		b.Preds = nil
		b.Succs = nil
	}
	for _, b := range f.Blocks {
		b.Succs = Successors(b.Term)
		for _, s := range b.Succs {
			s.Preds = append(s.Preds, b)
		}
	}
}

// Reachable returns the set of blocks reachable from the entry block.
func (f *Function) Reachable() map[*Block]bool {
	seen := make(map[*Block]bool, len(f.Blocks))
	entry := f.Entry()
	if entry == nil {
		return seen
	}
	work := []*Block{entry}
	seen[entry] = true
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range Successors(b.Term) {
			if !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}
	return seen
}

// IsVar reports whether v names storage (param, local or temp).
func IsVar(v Value) bool {
	switch v.(type) {
	case *Param, *Local, *Temp:
		return true
	}
	return false
}

// Uses returns the variables read by inst.
func Uses(inst Inst) []Value {
	var vals []Value
	switch i := inst.(type) {
	case *Move:
		vals = []Value{i.Src}
	case *BinOp:
		vals = []Value{i.L, i.R}
	case *UnOp:
		vals = []Value{i.X}
	}
	return filterVars(vals)
}

// TermUses returns the variables read by term.
func TermUses(term Terminator) []Value {
	switch t := term.(type) {
	case *Return:
		if t.Value != nil {
			return filterVars([]Value{t.Value})
		}
	case *CondBranch:
		return filterVars([]Value{t.Cond})
	}
	return nil
}

// Def returns the variable written by inst.
func Def(inst Inst) Value {
	switch i := inst.(type) {
	case *Move:
		return i.Dest
	case *BinOp:
		return i.Dest
	case *UnOp:
		return i.Dest
	}
	return nil
}

func filterVars(vals []Value) []Value {
	out := vals[:0]
	for _, v := range vals {
		if v != nil && IsVar(v) {
			out = append(out, v)
		}
	}
	return out
}

// Liveness holds per-block live-in and live-out variable sets.
type Liveness struct {
	In  map[*Block]map[Value]bool
	Out map[*Block]map[Value]bool
}

// ComputeLiveness runs backward dataflow to a fixed point.
func ComputeLiveness(f *Function) *Liveness {
	gen := make(map[*Block]map[Value]bool, len(f.Blocks))
	kill := make(map[*Block]map[Value]bool, len(f.Blocks))
	lv := &Liveness{
		In:  make(map[*Block]map[Value]bool, len(f.Blocks)),
		Out: make(map[*Block]map[Value]bool, len(f.Blocks)),
	}

	for _, b := range f.Blocks {
		g, k := map[Value]bool{}, map[Value]bool{}
		for _, inst := range b.Insts {
			for _, u := range Uses(inst) {
				if !k[u] {
					g[u] = true
				}
			}
			if d := Def(inst); d != nil {
				k[d] = true
			}
		}
		for _, u := range TermUses(b.Term) {
			if !k[u] {
				g[u] = true
			}
		}
		gen[b], kill[b] = g, k
		lv.In[b] = map[Value]bool{}
		lv.Out[b] = map[Value]bool{}
	}

	for changed := true; changed; {
		changed = false
		for i := len(f.Blocks) - 1; i >= 0; i-- {
			b := f.Blocks[i]
			out := lv.Out[b]
			for _, s := range Successors(b.Term) {
				for v := range lv.In[s] {
					if !out[v] {
						out[v] = true
						changed = true
					}
				}
			}
			in := lv.In[b]
			for v := range gen[b] {
				if !in[v] {
					in[v] = true
					changed = true
				}
			}
			for v := range out {
				if !kill[b][v] && !in[v] {
					in[v] = true
					changed = true
				}
			}
		}
	}
	return lv
}
