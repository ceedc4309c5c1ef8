package vm

import "math"

// ---------------------------------------------------------------------------
// Float arithmetic
// ---------------------------------------------------------------------------

// floatOrInt returns the numeric value of a Float or a SmallInteger.
func (in *Interpreter) floatOrInt(v Value) (float64, bool) {
	if v.IsSmallInt() {
		return float64(v.SmallInt()), true
	}
	obj := in.mem.Get(v)
	if obj == nil {
		return 0, false
	}
	return obj.Float()
}

// compareFloats evaluates comparison selector idx (2-7). ok is false for
// any other idx.
func compareFloats(idx int, x, y float64) (result, ok bool) {
	switch arithOp(idx) {
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

// floatArith evaluates + - * / (idx 0, 1, 8, 9). Division by zero fails.
func floatArith(idx int, x, y float64) (float64, bool) {
	switch arithOp(idx) {
	case opAdd:
		return x + y, true
	case opSub:
		return x - y, true
	case opMul:
		return x * y, true
	case opDivide:
		if y == 0 {
			return 0, false
		}
		return x / y, true
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Float primitives
// ---------------------------------------------------------------------------

// stackFloat returns the receiver Float n entries below the top of stack.
func (in *Interpreter) stackFloat(n int) (float64, bool) {
	obj := in.mem.Get(in.stackValue(n))
	if obj == nil {
		return 0, false
	}
	return obj.Float()
}

// floatPrimitive builds primitives 41-50. The receiver must be a Float;
// the argument may be a Float or a SmallInteger.
func floatPrimitive(idx int) primitiveFunc {
	return func(in *Interpreter, argCount int) bool {
		if argCount != 1 {
			return false
		}
		x, ok1 := in.stackFloat(1)
		y, ok2 := in.floatOrInt(in.stackValue(0))
		if !ok1 || !ok2 {
			return false
		}
		if cmp, ok := compareFloats(idx, x, y); ok {
			in.popNandPush(2, in.mem.Bool(cmp))
			return true
		}
		r, ok := floatArith(idx, x, y)
		if !ok {
			return false
		}
		in.popNandPush(2, in.mem.NewFloat(r))
		return true
	}
}

// floatFunc is a one-argument float function that may refuse its input.
type floatFunc func(float64) (float64, bool)

func floatSqrt(x float64) (float64, bool) {
	if x < 0 {
		return 0, false
	}
	return math.Sqrt(x), true
}

func floatSin(x float64) (float64, bool)    { return math.Sin(x), true }
func floatArctan(x float64) (float64, bool) { return math.Atan(x), true }
func floatExp(x float64) (float64, bool)    { return math.Exp(x), true }

func floatLn(x float64) (float64, bool) {
	if x <= 0 {
		return 0, false
	}
	return math.Log(x), true
}

func floatUnary(fn floatFunc) primitiveFunc {
	return func(in *Interpreter, argCount int) bool {
		if argCount != 0 {
			return false
		}
		x, ok := in.stackFloat(0)
		if !ok {
			return false
		}
		r, ok := fn(x)
		if !ok {
			return false
		}
		in.popNandPush(1, in.mem.NewFloat(r))
		return true
	}
}

func (in *Interpreter) primitiveAsFloat(argCount int) bool {
	n, ok := in.stackSmallInt(0)
	if !ok || argCount != 0 {
		return false
	}
	in.popNandPush(1, in.mem.NewFloat(float64(n)))
	return true
}

// primitiveTruncated answers the integer part of a Float when it is a
// SmallInteger.
func (in *Interpreter) primitiveTruncated(argCount int) bool {
	x, ok := in.stackFloat(0)
	if !ok || argCount != 0 || math.IsNaN(x) {
		return false
	}
	t := math.Trunc(x)
	if t < float64(MinSmallInt) || t > float64(MaxSmallInt) {
		return false
	}
	in.popNandPush(1, FromSmallInt(int64(t)))
	return true
}

func (in *Interpreter) primitiveFractionalPart(argCount int) bool {
	x, ok := in.stackFloat(0)
	if !ok || argCount != 0 {
		return false
	}
	_, frac := math.Modf(x)
	in.popNandPush(1, in.mem.NewFloat(frac))
	return true
}

// primitiveExponent answers the binary exponent e with 1 <= |x|/2^e < 2.
func (in *Interpreter) primitiveExponent(argCount int) bool {
	x, ok := in.stackFloat(0)
	if !ok || argCount != 0 {
		return false
	}
	exp := 0
	if x != 0 && !math.IsInf(x, 0) && !math.IsNaN(x) {
		_, e := math.Frexp(x)
		exp = e - 1
	}
	in.popNandPush(1, FromSmallInt(int64(exp)))
	return true
}

func (in *Interpreter) primitiveTimesTwoPower(argCount int) bool {
	x, ok1 := in.stackFloat(1)
	n, ok2 := in.stackSmallInt(0)
	if !ok1 || !ok2 || argCount != 1 {
		return false
	}
	in.popNandPush(2, in.mem.NewFloat(math.Ldexp(x, int(n))))
	return true
}
