// Package ir - construction helpers
// Design: Current-block cursor, typed temporaries, first terminator wins
package ir

import "github.com/GriffinCanCode/typthon-jit/pkg/logger"

// Builder appends instructions to a Function one block at a time.
type Builder struct {
	fn        *Function
	currentBl *Block
	blockID   int
}

// NewBuilder starts a function with an empty entry block.
func NewBuilder(fn *Function) *Builder {
	b := &Builder{fn: fn}
	entry := b.NewBlock("entry")
	b.Append(entry)
	b.SetBlock(entry)
	return b
}

// Function returns the function under construction.
func (b *Builder) Function() *Function { return b.fn }

// Current returns the block receiving instructions.
func (b *Builder) Current() *Block { return b.currentBl }

// NewBlock creates a detached block. Append adds it to the function.
func (b *Builder) NewBlock(name string) *Block {
	bl := &Block{ID: b.blockID, Label: name}
	b.blockID++
	return bl
}

// Append adds bl to the function's block list.
func (b *Builder) Append(bl *Block) {
	b.fn.Blocks = append(b.fn.Blocks, bl)
}

// SetBlock moves the cursor to bl.
func (b *Builder) SetBlock(bl *Block) {
	b.currentBl = bl
}

// Terminated reports whether the current block already has a terminator.
func (b *Builder) Terminated() bool {
	return b.currentBl.Term != nil
}

// NewTemp allocates a fresh temporary.
func (b *Builder) NewTemp(t Type) *Temp {
	temp := &Temp{ID: b.fn.NumTemps, Type: t}
	b.fn.NumTemps++
	return temp
}

// Emit appends inst to the current block. Instructions after a terminator
// are unreachable and dropped.
func (b *Builder) Emit(inst Inst) {
	if b.Terminated() {
		return
	}
	b.currentBl.Insts = append(b.currentBl.Insts, inst)
}

// Terminate ends the current block unless it is already terminated.
func (b *Builder) Terminate(term Terminator) {
	if b.Terminated() {
		return
	}
	b.currentBl.Term = term
}

// StartBlock terminates the current block with a fallthrough branch to bl,
// appends bl and moves the cursor there.
func (b *Builder) StartBlock(bl *Block) {
	b.Terminate(&Branch{Target: bl})
	b.Append(bl)
	b.SetBlock(bl)
}

// BinOp emits dest = l op r and returns dest. Comparisons yield a bool.
func (b *Builder) BinOp(op Op, l, r Value) *Temp {
	t := l.ValueType()
	if op.IsComparison() {
		t = Bool
	}
	dest := b.NewTemp(t)
	b.Emit(&BinOp{Dest: dest, Op: op, L: l, R: r})
	return dest
}

// UnOp emits dest = op x and returns dest.
func (b *Builder) UnOp(op Op, x Value) *Temp {
	dest := b.NewTemp(x.ValueType())
	b.Emit(&UnOp{Dest: dest, Op: op, X: x})
	return dest
}

// Move emits dest = src.
func (b *Builder) Move(dest, src Value) {
	b.Emit(&Move{Dest: dest, Src: src})
}

// Finish computes the CFG and returns the function.
func (b *Builder) Finish() *Function {
	b.fn.ComputeCFG()
	logger.LogLowering(b.fn.Name, len(b.fn.Blocks))
	return b.fn
}
