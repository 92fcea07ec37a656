package ir

// Arithmetic semantics shared by every backend, the interpreter and the
// constant folder. Values are canonical: sign-extended for signed types,
// zero-extended for unsigned ones, 0/1 for bool. Nothing traps:
//
//	x / 0 == 0, x % 0 == x, MIN / -1 == MIN, MIN % -1 == 0
//
// Shift counts are reduced modulo the operand width.

// Canon normalizes v to the canonical 64-bit form of t.
func Canon(t Type, v int64) int64 {
	switch t.(type) {
	case BoolType:
		if v != 0 {
			return 1
		}
		return 0
	case VoidType:
		return 0
	}
	w := t.Bits()
	if w >= 64 || w <= 0 {
		return v
	}
	shift := uint(64 - w)
	if t.Signed() {
		return (v << shift) >> shift
	}
	return int64(uint64(v) << shift >> shift)
}

// EvalBinary evaluates op over canonical operands of type t.
func EvalBinary(op Op, t Type, l, r int64) int64 {
	signed := t.Signed()
	switch op {
	case OpEq:
		return b2i(l == r)
	case OpNe:
		return b2i(l != r)
	case OpLt:
		if signed {
			return b2i(l < r)
		}
		return b2i(uint64(l) < uint64(r))
	case OpLe:
		if signed {
			return b2i(l <= r)
		}
		return b2i(uint64(l) <= uint64(r))
	case OpGt:
		if signed {
			return b2i(l > r)
		}
		return b2i(uint64(l) > uint64(r))
	case OpGe:
		if signed {
			return b2i(l >= r)
		}
		return b2i(uint64(l) >= uint64(r))
	}

	var v int64
	switch op {
	case OpAdd:
		v = l + r
	case OpSub:
		v = l - r
	case OpMul:
		v = l * r
	case OpDiv:
		switch {
		case r == 0:
			v = 0
		case signed && r == -1:
			v = -l
		case signed:
			v = l / r
		default:
			v = int64(uint64(l) / uint64(r))
		}
	case OpMod:
		switch {
		case r == 0:
			v = l
		case signed && r == -1:
			v = 0
		case signed:
			v = l % r
		default:
			v = int64(uint64(l) % uint64(r))
		}
	case OpAnd:
		v = l & r
	case OpOr:
		v = l | r
	case OpXor:
		v = l ^ r
	case OpShl:
		v = l << ShiftCount(t, r)
	case OpShr:
		n := ShiftCount(t, r)
		if signed {
			v = l >> n
		} else {
			v = int64(uint64(l) >> n)
		}
	}
	return Canon(t, v)
}

// EvalUnary evaluates op over a canonical operand of type t.
func EvalUnary(op Op, t Type, x int64) int64 {
	switch op {
	case OpNeg:
		return Canon(t, -x)
	case OpNot:
		return Canon(t, ^x)
	}
	return x
}

// ShiftCount reduces a shift amount modulo the width of t.
func ShiftCount(t Type, r int64) uint {
	w := t.Bits()
	if w <= 1 {
		return 0
	}
	return uint(uint64(r) & uint64(w-1))
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
