package codegen

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/codegen/regalloc"
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/pkg/errors"
)

// Reg is an architecture register number.
type Reg = int

// Label is a branch target inside one function.
type Label int

// Machine encodes instructions for one function. Values are canonical
// 64-bit integers (see ir.Canon); Binary and Unary may leave the upper bits
// of narrow results unnormalized, Generate calls Extend afterwards.
//
// Register contract: in Binary and Unary dst may equal a (or x) but never b.
// Scratch registers are never handed out by the allocator.
type Machine interface {
	Arch() string
	ArgRegs() []Reg
	ResultReg() Reg
	Scratch() (a, b Reg)
	Allocatable() []Reg

	Prologue(frameSize int)
	Epilogue()
	MovImm(dst Reg, v int64)
	MovReg(dst, src Reg)
	Load(dst Reg, slot int)
	Store(slot int, src Reg)
	Binary(op ir.Op, t ir.Type, dst, a, b Reg)
	Unary(op ir.Op, t ir.Type, dst, x Reg)
	Extend(dst Reg, bits int, signed bool)

	NewLabel() Label
	Bind(l Label)
	Jump(l Label)
	JumpIfZero(r Reg, l Label)
	JumpIfNonZero(r Reg, l Label)

	// Finish resolves branches and returns the code and its listing.
	Finish() ([]byte, []string, error)
}

// FrameSize returns the aligned frame size for n slots.
func FrameSize(slots, align int) int {
	size := slots * SlotSize
	if rem := size % align; rem != 0 {
		size += align - rem
	}
	return size
}

type generator struct {
	fn     *ir.Function
	m      Machine
	alloc  *regalloc.Allocation
	base   int // first allocator slot; slots below stage incoming arguments
	labels map[*ir.Block]Label
}

// Generate compiles fn with m.
func Generate(fn *ir.Function, m Machine, opts Options) (*Object, error) {
	if len(fn.Params) > MaxParams || len(fn.Params) > len(m.ArgRegs()) {
		return nil, errors.Wrapf(ErrTooManyParams, "%s has %d parameters, limit is %d", fn.Name, len(fn.Params), MaxParams)
	}
	if len(fn.Blocks) == 0 {
		return nil, errors.Wrapf(ErrMalformedIR, "%s has no blocks", fn.Name)
	}

	cfg := &regalloc.Config{}
	if opts.OptLevel >= 1 {
		cfg.Available = m.Allocatable()
	}
	g := &generator{
		fn:     fn,
		m:      m,
		alloc:  regalloc.Allocate(fn, cfg),
		base:   len(fn.Params),
		labels: make(map[*ir.Block]Label, len(fn.Blocks)),
	}

	slots := g.base + g.alloc.NumSlots
	if slots*SlotSize > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%s needs %d bytes, limit is %d", fn.Name, slots*SlotSize, MaxFrameSize)
	}

	for _, b := range fn.Blocks {
		g.labels[b] = m.NewLabel()
	}

	m.Prologue(slots * SlotSize)
	g.stageParams()
	for i, b := range fn.Blocks {
		var next *ir.Block
		if i+1 < len(fn.Blocks) {
			next = fn.Blocks[i+1]
		}
		m.Bind(g.labels[b])
		for _, inst := range b.Insts {
			g.inst(inst)
		}
		if err := g.term(b, next); err != nil {
			return nil, err
		}
	}

	code, listing, err := m.Finish()
	if err != nil {
		return nil, errors.Wrapf(err, "assembling %s", fn.Name)
	}
	logger.LogCodeGen(m.Arch(), fn.Name, len(code))
	return &Object{
		Name:      fn.Name,
		Arch:      m.Arch(),
		Code:      code,
		Listing:   listing,
		FrameSize: slots * SlotSize,
	}, nil
}

// stageParams spills every incoming argument first and only then loads the
// ones living in registers, so argument registers may be reused freely.
func (g *generator) stageParams() {
	args := g.m.ArgRegs()
	for i := range g.fn.Params {
		g.m.Store(i, args[i])
	}
	scratch, _ := g.m.Scratch()
	for i, p := range g.fn.Params {
		loc, ok := g.alloc.Locs[p]
		if !ok {
			continue
		}
		if loc.InReg() {
			g.m.Load(loc.Reg, i)
			continue
		}
		g.m.Load(scratch, i)
		g.m.Store(g.base+loc.Slot, scratch)
	}
}

// operand materializes v, using scratch when v is not in a register.
func (g *generator) operand(v ir.Value, scratch Reg) Reg {
	if c, ok := v.(*ir.Const); ok {
		g.m.MovImm(scratch, c.Val)
		return scratch
	}
	loc, ok := g.alloc.Locs[v]
	if !ok {
		g.m.MovImm(scratch, 0)
		return scratch
	}
	if loc.InReg() {
		return loc.Reg
	}
	g.m.Load(scratch, g.base+loc.Slot)
	return scratch
}

// dest returns the register receiving v and a function committing it.
func (g *generator) dest(v ir.Value) (Reg, func()) {
	scratch, _ := g.m.Scratch()
	loc, ok := g.alloc.Locs[v]
	if ok && loc.InReg() {
		return loc.Reg, func() {}
	}
	if !ok {
		return scratch, func() {}
	}
	return scratch, func() { g.m.Store(g.base+loc.Slot, scratch) }
}

func (g *generator) inst(inst ir.Inst) {
	a, b := g.m.Scratch()
	switch i := inst.(type) {
	case *ir.Move:
		dst, commit := g.dest(i.Dest)
		if c, ok := i.Src.(*ir.Const); ok {
			g.m.MovImm(dst, c.Val)
		} else if src := g.operand(i.Src, dst); src != dst {
			g.m.MovReg(dst, src)
		}
		commit()

	case *ir.BinOp:
		t := i.L.ValueType()
		l := g.operand(i.L, a)
		r := g.operand(i.R, b)
		dst, commit := g.dest(i.Dest)
		g.m.Binary(i.Op, t, dst, l, r)
		if !i.Op.IsComparison() {
			g.normalize(dst, t)
		}
		commit()

	case *ir.UnOp:
		t := i.X.ValueType()
		x := g.operand(i.X, a)
		dst, commit := g.dest(i.Dest)
		g.m.Unary(i.Op, t, dst, x)
		g.normalize(dst, t)
		commit()
	}
}

func (g *generator) normalize(dst Reg, t ir.Type) {
	if it, ok := t.(ir.IntType); ok && it.Width < 64 {
		g.m.Extend(dst, it.Width, !it.Unsigned)
	}
}

func (g *generator) term(b, next *ir.Block) error {
	a, _ := g.m.Scratch()
	switch t := b.Term.(type) {
	case *ir.Return:
		res := g.m.ResultReg()
		if t.Value == nil {
			g.m.MovImm(res, 0)
		} else if r := g.operand(t.Value, res); r != res {
			g.m.MovReg(res, r)
		}
		g.m.Epilogue()
	case *ir.Branch:
		if t.Target != next {
			g.m.Jump(g.labels[t.Target])
		}
	case *ir.CondBranch:
		c := g.operand(t.Cond, a)
		switch {
		case t.False == next:
			g.m.JumpIfNonZero(c, g.labels[t.True])
		case t.True == next:
			g.m.JumpIfZero(c, g.labels[t.False])
		default:
			g.m.JumpIfNonZero(c, g.labels[t.True])
			g.m.Jump(g.labels[t.False])
		}
	default:
		return errors.Wrapf(ErrMalformedIR, "block %s of %s has no terminator", b, g.fn.Name)
	}
	return nil
}
