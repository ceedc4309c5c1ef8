package vm

import "math"

// ---------------------------------------------------------------------------
// Integer arithmetic
// ---------------------------------------------------------------------------

// arithOp numbers the integer operations in primitive order: primitive n
// (1-17) performs arithOp(n-1) on SmallIntegers and primitive n+20 performs
// it on 64-bit LargeIntegers.
type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opLess
	opGreater
	opLessEqual
	opGreaterEqual
	opEqual
	opNotEqual
	opMul
	opDivide
	opMod
	opDiv
	opQuo
	opBitAnd
	opBitOr
	opBitXor
	opBitShift

	opNone arithOp = -1
)

// specialArithOps maps the sixteen arithmetic special selectors to their
// operation. @ has no integer form.
var specialArithOps = [16]arithOp{
	opAdd, opSub, opLess, opGreater, opLessEqual, opGreaterEqual, opEqual, opNotEqual,
	opMul, opDivide, opMod, opNone, opBitShift, opDiv, opBitAnd, opBitOr,
}

// compareSmallInts evaluates a comparison special selector. ok is false
// when idx is not a comparison.
func compareSmallInts(idx int, x, y int64) (result, ok bool) {
	return compareInts(specialArithOps[idx], x, y)
}

// smallIntArith evaluates an arithmetic special selector. ok is false when
// idx is not arithmetic or the result is not a SmallInteger.
func smallIntArith(idx int, x, y int64) (int64, bool) {
	r, ok := intArith(specialArithOps[idx], x, y)
	if !ok || !IsSmallIntRange(r) {
		return 0, false
	}
	return r, true
}

func compareInts(op arithOp, x, y int64) (result, ok bool) {
	switch op {
	case opLess:
		return x < y, true
	case opGreater:
		return x > y, true
	case opLessEqual:
		return x <= y, true
	case opGreaterEqual:
		return x >= y, true
	case opEqual:
		return x == y, true
	case opNotEqual:
		return x != y, true
	}
	return false, false
}

// intArith performs op on x and y. It fails on overflow of int64, on
// division by zero and on an inexact /.
func intArith(op arithOp, x, y int64) (int64, bool) {
	switch op {
	case opAdd:
		r := x + y
		if (x >= 0) == (y >= 0) && (r >= 0) != (x >= 0) {
			return 0, false
		}
		return r, true
	case opSub:
		r := x - y
		if (x >= 0) != (y >= 0) && (r >= 0) != (x >= 0) {
			return 0, false
		}
		return r, true
	case opMul:
		return safeMul(x, y)
	case opDivide:
		if y == 0 || (x == math.MinInt64 && y == -1) || x%y != 0 {
			return 0, false
		}
		return x / y, true
	case opMod:
		if y == 0 {
			return 0, false
		}
		if y == -1 {
			return 0, true
		}
		return floorMod(x, y), true
	case opDiv:
		if y == 0 || (x == math.MinInt64 && y == -1) {
			return 0, false
		}
		return floorDiv(x, y), true
	case opQuo:
		if y == 0 || (x == math.MinInt64 && y == -1) {
			return 0, false
		}
		return x / y, true
	case opBitAnd:
		return x & y, true
	case opBitOr:
		return x | y, true
	case opBitXor:
		return x ^ y, true
	case opBitShift:
		return safeShift(x, y)
	}
	return 0, false
}

func safeMul(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	r := x * y
	if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	return r, true
}

// safeShift shifts left for positive y and arithmetically right for
// negative y. Left shifts that lose bits fail.
func safeShift(x, y int64) (int64, bool) {
	if y >= 0 {
		if y > 62 {
			if x == 0 {
				return 0, true
			}
			return 0, false
		}
		r := x << uint(y)
		if r>>uint(y) != x {
			return 0, false
		}
		return r, true
	}
	if y < -63 {
		y = -63
	}
	return x >> uint(-y), true
}

func floorDiv(x, y int64) int64 {
	q := x / y
	if x%y != 0 && (x < 0) != (y < 0) {
		q--
	}
	return q
}

func floorMod(x, y int64) int64 {
	r := x % y
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return r
}

// ---------------------------------------------------------------------------
// Integer primitives
// ---------------------------------------------------------------------------

// smallIntPrimitive builds primitives 1-17: both operands must be
// SmallIntegers and so must the result.
func smallIntPrimitive(op arithOp) primitiveFunc {
	return func(in *Interpreter, argCount int) bool {
		if argCount != 1 {
			return false
		}
		x, ok1 := in.stackSmallInt(1)
		y, ok2 := in.stackSmallInt(0)
		if !ok1 || !ok2 {
			return false
		}
		if cmp, ok := compareInts(op, x, y); ok {
			in.popNandPush(2, in.mem.Bool(cmp))
			return true
		}
		r, ok := intArith(op, x, y)
		if !ok {
			return false
		}
		v, ok := TryFromSmallInt(r)
		if !ok {
			return false
		}
		in.popNandPush(2, v)
		return true
	}
}

// largeIntPrimitive builds primitives 21-37: operands may be SmallIntegers
// or LargeIntegers of at most 64 bits, and so may the result.
func largeIntPrimitive(op arithOp) primitiveFunc {
	return func(in *Interpreter, argCount int) bool {
		if argCount != 1 {
			return false
		}
		x, ok1 := in.mem.Int64Of(in.stackValue(1))
		y, ok2 := in.mem.Int64Of(in.stackValue(0))
		if !ok1 || !ok2 {
			return false
		}
		if cmp, ok := compareInts(op, x, y); ok {
			in.popNandPush(2, in.mem.Bool(cmp))
			return true
		}
		r, ok := intArith(op, x, y)
		if !ok {
			return false
		}
		in.popNandPush(2, in.mem.Int64Value(r))
		return true
	}
}

// primitiveMakePoint answers x@y for two SmallIntegers.
func (in *Interpreter) primitiveMakePoint(argCount int) bool {
	if argCount != 1 {
		return false
	}
	x, y := in.stackValue(1), in.stackValue(0)
	if !x.IsSmallInt() || !y.IsSmallInt() {
		return false
	}
	in.popNandPush(2, in.mem.NewPoint(x, y))
	return true
}
