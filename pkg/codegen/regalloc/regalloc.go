// Package regalloc implements linear scan register allocation with liveness intervals.
//
// Design: Fast linear scan algorithm over dataflow liveness, with spilling.
// Based on Poletto & Sarkar's linear scan algorithm. Spilled values share
// stack slots whenever their intervals do not overlap, so the same pass packs
// the frame when no registers are available at all.
package regalloc

import (
	"sort"

	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
)

// Interval represents the live range of a value
type Interval struct {
	Value ir.Value
	Start int // First position where the value is live
	End   int // Last position where the value is live
	Reg   int // -1 if not in a register
	Slot  int // Stack slot index (-1 if not spilled)
}

// Location is where a value lives for its whole lifetime.
type Location struct {
	Reg  int // -1 when the value lives in Slot
	Slot int
}

// InReg reports whether the value is held in a register.
func (l Location) InReg() bool { return l.Reg >= 0 }

// Config holds register allocation configuration for an architecture
type Config struct {
	Available []int // Allocatable registers; empty means everything spills
}

// Allocation is the result of register allocation.
type Allocation struct {
	Locs      map[ir.Value]Location
	Intervals []*Interval
	NumSlots  int
	UsedRegs  []int
}

// Allocator performs linear scan register allocation
type Allocator struct {
	fn        *ir.Function
	cfg       *Config
	intervals []*Interval
	active    []*Interval
	free      []int
	freeSlots []int
	numSlots  int
	used      map[int]bool
}

// NewAllocator creates a new register allocator
func NewAllocator(fn *ir.Function, cfg *Config) *Allocator {
	if cfg == nil {
		cfg = &Config{}
	}
	free := make([]int, len(cfg.Available))
	// Pop from the end hands out registers in the configured order
	for i, r := range cfg.Available {
		free[len(free)-1-i] = r
	}
	return &Allocator{
		fn:   fn,
		cfg:  cfg,
		free: free,
		used: make(map[int]bool),
	}
}

// Allocate runs linear scan over fn.
func Allocate(fn *ir.Function, cfg *Config) *Allocation {
	return NewAllocator(fn, cfg).Allocate()
}

// Allocate performs register allocation
func (a *Allocator) Allocate() *Allocation {
	logger.Debug("Starting register allocation", "function", a.fn.Name)

	a.computeIntervals()
	sort.Slice(a.intervals, func(i, j int) bool {
		x, y := a.intervals[i], a.intervals[j]
		if x.Start != y.Start {
			return x.Start < y.Start
		}
		return valueRank(x.Value) < valueRank(y.Value)
	})
	logger.Debug("Computed liveness intervals", "count", len(a.intervals))

	for _, interval := range a.intervals {
		a.allocateInterval(interval)
	}

	res := &Allocation{
		Locs:      make(map[ir.Value]Location, len(a.intervals)),
		Intervals: a.intervals,
		NumSlots:  a.numSlots,
	}
	spilled := 0
	for _, iv := range a.intervals {
		res.Locs[iv.Value] = Location{Reg: iv.Reg, Slot: iv.Slot}
		if iv.Reg < 0 {
			spilled++
		}
	}
	for _, r := range a.cfg.Available {
		if a.used[r] {
			res.UsedRegs = append(res.UsedRegs, r)
		}
	}

	logger.Debug("Register allocation complete",
		"function", a.fn.Name,
		"allocated", len(a.intervals)-spilled,
		"spilled", spilled,
		"slots", a.numSlots)
	return res
}

// computeIntervals numbers instructions and derives one interval per value
// from definitions, uses and block-level liveness. Parameters are defined at
// position 0; block i's instructions follow at even positions.
func (a *Allocator) computeIntervals() {
	lv := ir.ComputeLiveness(a.fn)
	byValue := make(map[ir.Value]*Interval)

	touch := func(v ir.Value, pos int) {
		iv, ok := byValue[v]
		if !ok {
			iv = &Interval{Value: v, Start: pos, End: pos, Reg: -1, Slot: -1}
			byValue[v] = iv
			return
		}
		if pos < iv.Start {
			iv.Start = pos
		}
		if pos > iv.End {
			iv.End = pos
		}
	}

	for _, p := range a.fn.Params {
		touch(p, 0)
	}

	pos := 2
	for _, block := range a.fn.Blocks {
		start := pos
		for v := range lv.In[block] {
			touch(v, start)
		}
		for _, inst := range block.Insts {
			for _, u := range ir.Uses(inst) {
				touch(u, pos)
			}
			if d := ir.Def(inst); d != nil {
				touch(d, pos)
			}
			pos += 2
		}
		for _, u := range ir.TermUses(block.Term) {
			touch(u, pos)
		}
		for v := range lv.Out[block] {
			touch(v, pos)
		}
		pos += 2
	}

	for _, iv := range byValue {
		a.intervals = append(a.intervals, iv)
	}
}

// allocateInterval allocates a register or spills an interval
func (a *Allocator) allocateInterval(interval *Interval) {
	a.expireOldIntervals(interval)

	if len(a.free) > 0 {
		reg := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		interval.Reg = reg
		a.used[reg] = true
		a.active = append(a.active, interval)
		a.sortActiveByEnd()
		return
	}

	a.spillAtInterval(interval)
}

// expireOldIntervals releases registers and slots of intervals that ended
// before interval starts.
func (a *Allocator) expireOldIntervals(interval *Interval) {
	newActive := make([]*Interval, 0, len(a.active))
	for _, active := range a.active {
		if active.End >= interval.Start {
			newActive = append(newActive, active)
			continue
		}
		if active.Reg >= 0 {
			a.free = append(a.free, active.Reg)
		}
		if active.Slot >= 0 {
			a.freeSlots = append(a.freeSlots, active.Slot)
		}
	}
	a.active = newActive
}

// spillAtInterval spills either the current interval or the active one that
// ends last.
func (a *Allocator) spillAtInterval(interval *Interval) {
	var victim *Interval
	for i := len(a.active) - 1; i >= 0; i-- {
		if a.active[i].Reg >= 0 {
			victim = a.active[i]
			break
		}
	}

	if victim != nil && victim.End > interval.End {
		interval.Reg = victim.Reg
		victim.Reg = -1
		// The victim has been live since before any freed slot was released
		victim.Slot = a.newSlot()
		logger.Debug("Spilled interval", "value", ir.FormatValue(victim.Value), "slot", victim.Slot)
	} else {
		interval.Slot = a.takeSlot()
	}
	a.active = append(a.active, interval)
	a.sortActiveByEnd()
}

func (a *Allocator) takeSlot() int {
	if n := len(a.freeSlots); n > 0 {
		slot := a.freeSlots[n-1]
		a.freeSlots = a.freeSlots[:n-1]
		return slot
	}
	return a.newSlot()
}

func (a *Allocator) newSlot() int {
	slot := a.numSlots
	a.numSlots++
	return slot
}

// sortActiveByEnd sorts active intervals by end position
func (a *Allocator) sortActiveByEnd() {
	sort.Slice(a.active, func(i, j int) bool {
		x, y := a.active[i], a.active[j]
		if x.End != y.End {
			return x.End < y.End
		}
		return valueRank(x.Value) < valueRank(y.Value)
	})
}

// valueRank orders values deterministically: params, locals, then temps.
func valueRank(v ir.Value) int {
	const stride = 1 << 20
	switch x := v.(type) {
	case *ir.Param:
		return x.Index
	case *ir.Local:
		return stride + x.Index
	case *ir.Temp:
		return 2*stride + x.ID
	}
	return 3 * stride
}
