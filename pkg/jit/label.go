package jit

import (
	"github.com/pkg/errors"
)

// Label marks a position in a Function's statement sequence. A forward
// label may be jumped to before it is placed; it is placed at most once.
type Label struct {
	name string
	id   int
	fn   *Function
	pos  int // statement index the label precedes, -1 while forward
}

func (l *Label) Name() string        { return l.name }
func (l *Label) Function() *Function { return l.fn }
func (l *Label) Placed() bool        { return l.pos >= 0 }

func (l *Label) String() string { return l.name }

// NewForwardLabel declares a label without a position.
func (f *Function) NewForwardLabel(name string) (*Label, error) {
	if err := f.ctx.mutable(); err != nil {
		return nil, err
	}
	l := &Label{name: name, id: len(f.labels), fn: f, pos: -1}
	f.labels = append(f.labels, l)
	return l, nil
}

// PlaceForwardLabel binds l to the current end of the statement sequence.
// Placing a label twice is unrecoverable: the Context moves to StateFailed.
func (f *Function) PlaceForwardLabel(l *Label) error {
	if err := f.ctx.mutable(); err != nil {
		return err
	}
	if l == nil || l.fn != f {
		return errors.Wrapf(ErrForeignObject, "%s: label not declared in this function", f.name)
	}
	if l.Placed() {
		f.ctx.poison()
		return errors.Wrapf(ErrLabelAlreadyPlaced, "%s: %s", f.name, l.name)
	}
	l.pos = len(f.stmts)
	return nil
}

// AddLabel declares a label and places it immediately.
func (f *Function) AddLabel(name string) (*Label, error) {
	l, err := f.NewForwardLabel(name)
	if err != nil {
		return nil, err
	}
	l.pos = len(f.stmts)
	return l, nil
}

func (f *Function) target(l *Label) error {
	if l == nil || l.fn != f {
		return errors.Wrapf(ErrForeignObject, "%s: jump to a label of another function", f.name)
	}
	return nil
}
