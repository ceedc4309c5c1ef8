package vm

import (
	"math"
	"testing"
)

func TestDivModIdentity(t *testing.T) {
	values := []int64{-17, -7, -1, 0, 1, 3, 7, 17, MaxSmallInt, MinSmallInt}
	divisors := []int64{-7, -3, -2, -1, 1, 2, 3, 7, MaxSmallInt}
	for _, a := range values {
		for _, b := range divisors {
			q, ok1 := intArith(opDiv, a, b)
			r, ok2 := intArith(opMod, a, b)
			if !ok1 || !ok2 {
				t.Errorf("%d // %d or %d \\\\ %d failed", a, b, a, b)
				continue
			}
			if q*b+r != a {
				t.Errorf("(%d // %d) * %d + (%d \\\\ %d) = %d, want %d", a, b, b, a, b, q*b+r, a)
			}
			if r != 0 && (r < 0) != (b < 0) {
				t.Errorf("%d \\\\ %d = %d should take the sign of the divisor", a, b, r)
			}
		}
	}
}

func TestDivisionByZeroFails(t *testing.T) {
	for _, op := range []arithOp{opDivide, opMod, opDiv, opQuo} {
		if _, ok := intArith(op, 7, 0); ok {
			t.Errorf("op %d by zero should fail", op)
		}
	}
}

func TestExactDivide(t *testing.T) {
	if r, ok := intArith(opDivide, 12, -4); !ok || r != -3 {
		t.Errorf("12 / -4 = %d, %v; want -3", r, ok)
	}
	if _, ok := intArith(opDivide, 7, 2); ok {
		t.Error("7 / 2 is not exact and should fail")
	}
}

func TestQuoTruncates(t *testing.T) {
	if r, _ := intArith(opQuo, -7, 2); r != -3 {
		t.Errorf("-7 quo: 2 = %d, want -3", r)
	}
	if r, _ := intArith(opDiv, -7, 2); r != -4 {
		t.Errorf("-7 // 2 = %d, want -4", r)
	}
}

func TestOverflowFails(t *testing.T) {
	tests := []struct {
		name string
		op   arithOp
		x, y int64
	}{
		{"mul", opMul, math.MaxInt64 / 2, 3},
		{"mul negative", opMul, math.MinInt64, -1},
		{"add", opAdd, math.MaxInt64, 1},
		{"sub", opSub, math.MinInt64, 1},
		{"shift loses bits", opBitShift, 3, 62},
		{"shift too far", opBitShift, 1, 70},
		{"divide min by -1", opDivide, math.MinInt64, -1},
	}
	for _, tt := range tests {
		if r, ok := intArith(tt.op, tt.x, tt.y); ok {
			t.Errorf("%s: got %d, want failure", tt.name, r)
		}
	}
	if r, ok := intArith(opBitShift, -8, -2); !ok || r != -2 {
		t.Errorf("-8 bitShift: -2 = %d, %v; want -2", r, ok)
	}
	if r, ok := intArith(opBitShift, 0, 100); !ok || r != 0 {
		t.Errorf("0 bitShift: 100 = %d, %v; want 0", r, ok)
	}
}

func TestSmallIntArithRange(t *testing.T) {
	if _, ok := smallIntArith(0, MaxSmallInt, 1); ok {
		t.Error("MaxSmallInt + 1 is not a SmallInteger")
	}
	if _, ok := smallIntArith(8, 1<<20, 1<<20); ok {
		t.Error("2^40 is not a SmallInteger")
	}
	if r, ok := smallIntArith(1, MinSmallInt+1, 1); !ok || r != MinSmallInt {
		t.Errorf("MinSmallInt+1 - 1 = %d, %v", r, ok)
	}
	if _, ok := smallIntArith(11, 1, 2); ok {
		t.Error("@ has no integer result")
	}
}

func TestMultiplyOverflowLeavesStack(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	pushAll(in, FromSmallInt(1<<20), FromSmallInt(1<<20))
	depth := in.StackDepth()
	if primitiveTable[9](in, 1) {
		t.Fatal("SmallInteger * overflowing should fail")
	}
	if in.StackDepth() != depth || in.StackValue(0) != FromSmallInt(1<<20) {
		t.Error("failed primitive must leave the stack untouched")
	}
}

func TestLargeIntegerPrimitives(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()

	// 21 is +, 29 is *
	pushAll(in, FromSmallInt(MaxSmallInt), FromSmallInt(1))
	if !primitiveTable[21](in, 1) {
		t.Fatal("large + failed")
	}
	sum := in.pop()
	if sum.IsSmallInt() || ti.Mem.ClassOf(sum) != ti.Mem.Special(SpecialClassLargePositive) {
		t.Fatal("MaxSmallInt + 1 should be a LargePositiveInteger")
	}
	if n, ok := ti.Mem.Int64Of(sum); !ok || n != MaxSmallInt+1 {
		t.Errorf("sum = %d, want %d", n, MaxSmallInt+1)
	}

	pushAll(in, sum, FromSmallInt(-2))
	if !primitiveTable[29](in, 1) {
		t.Fatal("large * failed")
	}
	neg := in.pop()
	if ti.Mem.ClassOf(neg) != ti.Mem.Special(SpecialClassLargeNegative) {
		t.Error("-2^31 should be a LargeNegativeInteger")
	}
	if n, _ := ti.Mem.Int64Of(neg); n != -2*(MaxSmallInt+1) {
		t.Errorf("product = %d, want %d", n, -2*(MaxSmallInt+1))
	}

	pushAll(in, sum, FromSmallInt(-1))
	if !primitiveTable[21](in, 1) {
		t.Fatal("large + failed")
	}
	if got := in.pop(); got != FromSmallInt(MaxSmallInt) {
		t.Errorf("demoted result = %s, want SmallInteger %d", describe(got), MaxSmallInt)
	}

	// 27 is =
	pushAll(in, sum, ti.Mem.Int64Value(MaxSmallInt+1))
	if !primitiveTable[27](in, 1) || in.pop() != ti.Mem.True() {
		t.Error("equal large integers should compare equal")
	}
}

func TestInt64RoundTrip(t *testing.T) {
	m := NewBootstrap(MemoryOptions{}).Mem
	for _, n := range []int64{0, 1, -1, MaxSmallInt, MaxSmallInt + 1, MinSmallInt - 1, 1 << 40, -(1 << 40), math.MaxInt64, math.MinInt64} {
		v := m.Int64Value(n)
		got, ok := m.Int64Of(v)
		if !ok || got != n {
			t.Errorf("Int64Of(Int64Value(%d)) = %d, %v", n, got, ok)
		}
		if IsSmallIntRange(n) != v.IsSmallInt() {
			t.Errorf("%d: SmallInteger form = %v, want %v", n, v.IsSmallInt(), IsSmallIntRange(n))
		}
	}
}

func TestPos32BitInt(t *testing.T) {
	m := NewBootstrap(MemoryOptions{}).Mem
	for _, n := range []uint32{0, 5, uint32(MaxSmallInt), uint32(MaxSmallInt) + 1, math.MaxUint32} {
		got, ok := m.Pos32BitValue(m.Pos32BitInt(n))
		if !ok || got != n {
			t.Errorf("Pos32BitValue(Pos32BitInt(%d)) = %d, %v", n, got, ok)
		}
	}
	if _, ok := m.Pos32BitValue(FromSmallInt(-1)); ok {
		t.Error("negative values are not positive 32-bit integers")
	}
}

func TestMakePoint(t *testing.T) {
	ti := newTestImage(t)
	m := ti.method(0, ti.smallInts(3, 4),
		BytecodePushLiteralConstant+0,
		BytecodePushLiteralConstant+1,
		BytecodeSpecialAdd+11,
	)
	in := ti.start(m, ti.Mem.Nil())
	ti.steps(in, 3)
	p := ti.Mem.Get(in.StackValue(0))
	if p == nil || p.Class != ti.Mem.Special(SpecialClassPoint) {
		t.Fatal("3 @ 4 should answer a Point")
	}
	x, _ := p.Fetch(PointX)
	y, _ := p.Fetch(PointY)
	if x != FromSmallInt(3) || y != FromSmallInt(4) {
		t.Errorf("point = %s@%s, want 3@4", describe(x), describe(y))
	}
}
