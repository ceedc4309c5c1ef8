package vm

import (
	"testing"

	"github.com/pkg/errors"
)

// ---------------------------------------------------------------------------
// Special selector fast paths
// ---------------------------------------------------------------------------

func TestSmallIntegerAddWithoutSend(t *testing.T) {
	ti := newTestImage(t)
	m := ti.method(0, ti.smallInts(3, 4),
		BytecodePushLiteralConstant+0,
		BytecodePushLiteralConstant+1,
		BytecodeSpecialAdd,
	)
	in := ti.start(m, ti.Mem.Nil())
	ti.steps(in, 3)

	if got := in.StackValue(0); got != FromSmallInt(7) {
		t.Errorf("top = %s, want 7", describe(got))
	}
	if in.Stats().Sends != 0 {
		t.Errorf("sends = %d, want 0", in.Stats().Sends)
	}
	if in.StackDepth() != 1 {
		t.Errorf("depth = %d, want 1", in.StackDepth())
	}
}

func TestArithmeticFastPaths(t *testing.T) {
	tests := []struct {
		name string
		x, y int64
		op   byte
		want int64
	}{
		{"sub", 10, 3, 1, 7},
		{"mul", 6, 7, 8, 42},
		{"div exact", 12, 4, 9, 3},
		{"mod negative", -7, 2, 10, 1},
		{"floor div", -7, 2, 13, -4},
		{"shift left", 1, 10, 12, 1024},
		{"bit and", 12, 10, 14, 8},
		{"bit or", 12, 10, 15, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := newTestImage(t)
			m := ti.method(0, ti.smallInts(tt.x, tt.y),
				BytecodePushLiteralConstant+0,
				BytecodePushLiteralConstant+1,
				BytecodeSpecialAdd+tt.op,
			)
			in := ti.start(m, ti.Mem.Nil())
			ti.steps(in, 3)
			if got := in.StackValue(0); got != FromSmallInt(tt.want) {
				t.Errorf("got %s, want %d", describe(got), tt.want)
			}
			if in.Stats().Sends != 0 {
				t.Errorf("sends = %d, want 0", in.Stats().Sends)
			}
		})
	}
}

func TestComparisonFusesWithJump(t *testing.T) {
	ti := newTestImage(t)
	// 3 < 4 ifFalse: [push 1] ; push 2
	m := ti.method(0, ti.smallInts(3, 4),
		BytecodePushLiteralConstant+0,
		BytecodePushLiteralConstant+1,
		BytecodeSpecialAdd+2,
		BytecodeShortJumpIfFalse+0,
		BytecodePushOne,
		BytecodePushTwo,
	)
	in := ti.start(m, ti.Mem.Nil())
	ti.steps(in, 5)

	if in.StackDepth() != 2 {
		t.Fatalf("depth = %d, want 2", in.StackDepth())
	}
	if in.StackValue(1) != FromSmallInt(1) || in.StackValue(0) != FromSmallInt(2) {
		t.Errorf("stack = %s %s, want 1 2", describe(in.StackValue(1)), describe(in.StackValue(0)))
	}
}

func TestEqualityBytecode(t *testing.T) {
	ti := newTestImage(t)
	m := ti.method(0, nil,
		BytecodePushNil,
		BytecodePushNil,
		BytecodeSpecialAdd+22,
		BytecodePushTrue,
		BytecodePushFalse,
		BytecodeSpecialAdd+22,
	)
	in := ti.start(m, ti.Mem.Nil())
	ti.steps(in, 6)
	if in.StackValue(1) != ti.Mem.True() || in.StackValue(0) != ti.Mem.False() {
		t.Error("== should answer true for nil == nil and false for true == false")
	}
}

func TestFloatFastPath(t *testing.T) {
	ti := newTestImage(t)
	m := ti.method(0, []Value{ti.Mem.NewFloat(1.5), FromSmallInt(2)},
		BytecodePushLiteralConstant+0,
		BytecodePushLiteralConstant+1,
		BytecodeSpecialAdd+8,
	)
	in := ti.start(m, ti.Mem.Nil())
	ti.steps(in, 3)

	f, ok := ti.Mem.Get(in.StackValue(0)).Float()
	if !ok || f != 3.0 {
		t.Errorf("1.5 * 2 = %v, %v; want 3.0", f, ok)
	}
	if in.Stats().Sends != 0 {
		t.Errorf("sends = %d, want 0", in.Stats().Sends)
	}
}

// ---------------------------------------------------------------------------
// Sends and returns
// ---------------------------------------------------------------------------

func TestSendAndReturn(t *testing.T) {
	ti := newTestImage(t)
	answer := ti.method(0, ti.smallInts(42), BytecodePushLiteralConstant+0, BytecodeReturnTop)
	ti.AddMethod("UndefinedObject", "answer", answer)

	main := ti.method(0, []Value{ti.Symbol("answer")},
		BytecodePushSelf,
		BytecodeSendLiteral0+0,
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 4)

	if got := in.StackValue(0); got != FromSmallInt(42) {
		t.Errorf("top = %s, want 42", describe(got))
	}
	if in.Stats().Sends != 1 {
		t.Errorf("sends = %d, want 1", in.Stats().Sends)
	}
}

func TestSendWithArguments(t *testing.T) {
	ti := newTestImage(t)
	// second: a with: b  ^b
	second := ti.method(2, nil, BytecodePushTemporary+1, BytecodeReturnTop)
	ti.AddMethod("UndefinedObject", "first:second:", second)

	main := ti.method(0, []Value{ti.Symbol("first:second:")},
		BytecodePushSelf,
		BytecodePushOne,
		BytecodePushTwo,
		BytecodeSendLiteral2+0,
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 6)

	if got := in.StackValue(0); got != FromSmallInt(2) {
		t.Errorf("top = %s, want 2", describe(got))
	}
	if in.StackDepth() != 1 {
		t.Errorf("depth = %d, want 1", in.StackDepth())
	}
}

func TestSuperSend(t *testing.T) {
	ti := newTestImage(t)
	ti.DefineClass("Base", "Object", 0, FormatFixed)
	ti.DefineClass("Derived", "Base", 0, FormatFixed)
	ti.AddMethod("Base", "value", ti.method(0, nil, BytecodePushOne, BytecodeReturnTop))
	ti.AddMethod("Derived", "value", ti.method(0, nil, BytecodePushTwo, BytecodeReturnTop))

	// super value, compiled in Derived
	main := ti.method(0, []Value{ti.Symbol("value"), ti.MethodClassLiteral("Derived")},
		BytecodePushSelf,
		BytecodeSingleExtendedSuper, 0,
	)
	rcvr, _ := ti.Mem.Instantiate(ti.Class("Derived"), 0)
	in := ti.start(main, rcvr)
	ti.steps(in, 4)

	if got := in.StackValue(0); got != FromSmallInt(1) {
		t.Errorf("super value = %s, want 1", describe(got))
	}
}

func TestTemporariesAndReceiverVariables(t *testing.T) {
	ti := newTestImage(t)
	ti.DefineClass("Pair", "Object", 2, FormatFixed)
	rcvr, _ := ti.Mem.Instantiate(ti.Class("Pair"), 0)

	mb := NewMethodBuilder(0).SetNumTemps(1)
	mb.Emit(
		BytecodePushTwo,
		BytecodeStorePopTemporary+0,
		BytecodePushTemporary+0,
		BytecodeStorePopReceiverVar+1,
		BytecodePushReceiverVariable+1,
	)
	in := ti.start(mb.Build(ti.Mem), rcvr)
	ti.steps(in, 5)

	if got := in.StackValue(0); got != FromSmallInt(2) {
		t.Errorf("top = %s, want 2", describe(got))
	}
	if v, _ := ti.Mem.Get(rcvr).Fetch(1); v != FromSmallInt(2) {
		t.Errorf("receiver field 1 = %s, want 2", describe(v))
	}
}

func TestLiteralVariables(t *testing.T) {
	ti := newTestImage(t)
	global := ti.NewAssociation(ti.Symbol("Answer"), FromSmallInt(0))
	m := ti.method(0, []Value{global},
		BytecodePushOne,
		BytecodeExtendedStorePop, 3<<6|0,
		BytecodePushLiteralVariable+0,
	)
	in := ti.start(m, ti.Mem.Nil())
	ti.steps(in, 3)

	if got := in.StackValue(0); got != FromSmallInt(1) {
		t.Errorf("top = %s, want 1", describe(got))
	}
	if v, _ := ti.Mem.Get(global).Fetch(AssociationValue); v != FromSmallInt(1) {
		t.Errorf("Answer = %s, want 1", describe(v))
	}
}

func TestDoesNotUnderstandBuildsMessage(t *testing.T) {
	ti := newTestImage(t)
	ti.DefineClass("Catcher", "Object", 0, FormatFixed)
	ti.AddMethod("Catcher", "doesNotUnderstand:", ti.method(1, nil, BytecodePushTemporary+0, BytecodeReturnTop))
	rcvr, _ := ti.Mem.Instantiate(ti.Class("Catcher"), 0)

	main := ti.method(0, []Value{ti.Symbol("zork:")},
		BytecodePushSelf,
		BytecodePushTwo,
		BytecodeSendLiteral1+0,
	)
	in := ti.start(main, rcvr)
	ti.steps(in, 5)

	msg := ti.Mem.Get(in.StackValue(0))
	if msg == nil || msg.Class != ti.Mem.Special(SpecialClassMessage) {
		t.Fatalf("top is not a Message")
	}
	sel, _ := msg.Fetch(MessageSelector)
	if sel != ti.Symbol("zork:") {
		t.Errorf("selector = %s, want #zork:", ti.Mem.Names().Describe(sel))
	}
	argsV, _ := msg.Fetch(MessageArguments)
	args, _ := ti.Mem.Get(argsV).Pointers()
	if len(args) != 1 || args[0] != FromSmallInt(2) {
		t.Errorf("arguments = %v, want [2]", args)
	}
	if lc, _ := msg.Fetch(MessageLookupClass); lc != ti.Class("Catcher") {
		t.Error("lookup class should be Catcher")
	}
}

func TestRecursiveDoesNotUnderstandIsFatal(t *testing.T) {
	ti := newTestImage(t)
	main := ti.method(0, []Value{ti.Symbol("zork")},
		BytecodePushSelf,
		BytecodeSendLiteral0+0,
	)
	in := ti.start(main, ti.Mem.Nil())
	err := in.RunSteps(2)
	if errors.Cause(err) != ErrRecursiveDNU {
		t.Errorf("err = %v, want %v", err, ErrRecursiveDNU)
	}
}

func TestReturnToNilIsFatal(t *testing.T) {
	ti := newTestImage(t)
	m := ti.method(0, nil, BytecodePushOne, BytecodeReturnTop)
	in := ti.start(m, ti.Mem.Nil())
	err := in.RunSteps(2)
	if errors.Cause(err) != ErrCannotReturn {
		t.Errorf("err = %v, want %v", err, ErrCannotReturn)
	}
}

func TestUnknownBytecodeIsFatal(t *testing.T) {
	for _, b := range []byte{126, 127, 138, 143} {
		ti := newTestImage(t)
		in := ti.start(ti.method(0, nil, b), ti.Mem.Nil())
		if err := in.RunSteps(1); errors.Cause(err) != ErrUnknownBytecode {
			t.Errorf("bytecode %d: err = %v, want %v", b, err, ErrUnknownBytecode)
		}
	}
}

func TestContextRecycling(t *testing.T) {
	ti := newTestImage(t)
	ti.AddMethod("UndefinedObject", "foo", ti.method(0, nil, BytecodeReturnSelf))
	main := ti.method(0, []Value{ti.Symbol("foo")},
		BytecodePushSelf,
		BytecodeSendLiteral0+0,
		BytecodePop,
		BytecodePushSelf,
		BytecodeSendLiteral0+0,
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 2)
	first := in.ActiveContext()

	ti.steps(in, 4)
	if in.ActiveContext() != first {
		t.Error("second activation should reuse the returned context")
	}
	if in.Stats().ContextsRecycled != 1 {
		t.Errorf("recycled = %d, want 1", in.Stats().ContextsRecycled)
	}
}

func TestThisContextDisablesRecycling(t *testing.T) {
	ti := newTestImage(t)
	ti.AddMethod("UndefinedObject", "leak", ti.method(0, nil, BytecodePushThisContext, BytecodeReturnTop))
	main := ti.method(0, []Value{ti.Symbol("leak")},
		BytecodePushSelf,
		BytecodeSendLiteral0+0,
		BytecodePushSelf,
		BytecodeSendLiteral0+0,
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 8)

	if in.Stats().ContextsRecycled != 0 {
		t.Errorf("recycled = %d, want 0", in.Stats().ContextsRecycled)
	}
	if in.StackValue(0) == in.StackValue(1) {
		t.Error("a context reached through thisContext must not be reused")
	}
}

func TestBackwardJumpLoop(t *testing.T) {
	ti := newTestImage(t)
	// t := 0. [t < 5] whileTrue: [t := t + 1]. ^t
	mb := NewMethodBuilder(0).SetNumTemps(1)
	five := mb.AddLiteral(FromSmallInt(5))
	mb.Emit(
		BytecodePushZero,
		BytecodeStorePopTemporary+0,
		BytecodePushTemporary+0, // 2
		BytecodePushLiteralConstant+byte(five),
		BytecodeSpecialAdd+2,
		BytecodeShortJumpIfFalse+5, // to 12
		BytecodePushTemporary+0,
		BytecodePushOne,
		BytecodeSpecialAdd,
		BytecodeStorePopTemporary+0,
		BytecodeLongJump+3, 256-10, // back to 2
		BytecodePushTemporary+0, // 12
	)
	in := ti.start(mb.Build(ti.Mem), ti.Mem.Nil())
	// setup, five iterations, the failing test and the final push
	ti.steps(in, 2+5*8+3+1)

	if got := in.StackValue(0); got != FromSmallInt(5) {
		t.Errorf("t = %s, want 5", describe(got))
	}
}

func TestMustBeBooleanSend(t *testing.T) {
	ti := newTestImage(t)
	ti.AddMethod("SmallInteger", "mustBeBoolean", ti.method(0, nil, BytecodeReturnTrue))
	m := ti.method(0, nil,
		BytecodePushOne,
		BytecodeShortJumpIfFalse+0,
	)
	in := ti.start(m, ti.Mem.Nil())
	ti.steps(in, 3)
	if in.StackValue(0) != ti.Mem.True() {
		t.Errorf("top = %s, want true", ti.Mem.Names().Describe(in.StackValue(0)))
	}
}
