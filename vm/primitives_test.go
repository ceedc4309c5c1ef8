package vm

import (
	"testing"
)

// idle starts a method that does nothing so primitives can be driven
// directly against its stack.
func (ti *testImage) idle() *Interpreter {
	ti.t.Helper()
	mb := NewMethodBuilder(0).SetLargeFrame()
	mb.Emit(BytecodeReturnSelf)
	return ti.start(mb.Build(ti.Mem), ti.Mem.Nil())
}

func pushAll(in *Interpreter, vs ...Value) {
	for _, v := range vs {
		in.push(v)
	}
}

// ---------------------------------------------------------------------------
// Indexed access
// ---------------------------------------------------------------------------

func TestAtPutIndexZeroFails(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	arr := ti.Mem.NewArray(ti.smallInts(1, 2, 3, 4, 5)...)
	pushAll(in, arr, FromSmallInt(0), FromSmallInt(9))
	depth := in.StackDepth()

	if in.primitiveAtPut(2) {
		t.Fatal("at: 0 put: should fail")
	}
	if in.StackDepth() != depth || in.StackValue(0) != FromSmallInt(9) || in.StackValue(2) != arr {
		t.Error("failed primitive must leave the stack untouched")
	}
	got, _ := ti.Mem.Get(arr).Pointers()
	for i, v := range got {
		if v != FromSmallInt(int64(i+1)) {
			t.Errorf("slot %d = %s, want %d", i, describe(v), i+1)
		}
	}
}

func TestAtPutFailureFallsBackToMethod(t *testing.T) {
	ti := newTestImage(t)
	ti.AddMethod("Array", "at:put:", ti.primitiveMethod(2, 61))
	arr := ti.Mem.NewArray(ti.smallInts(1, 2, 3, 4, 5)...)
	main := ti.method(0, []Value{arr},
		BytecodePushLiteralConstant+0,
		BytecodePushZero,
		BytecodePushTwo,
		BytecodeSpecialAt+1,
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 5)

	if in.StackValue(0) != ti.Mem.Nil() {
		t.Errorf("fallback answered %s, want nil", describe(in.StackValue(0)))
	}
	if s := in.Stats(); s.PrimitiveFailures != 1 {
		t.Errorf("primitive failures = %d, want 1", s.PrimitiveFailures)
	}
	if v, _ := ti.Mem.Get(arr).Fetch(0); v != FromSmallInt(1) {
		t.Error("array must be unchanged")
	}
}

func TestAtAndAtPut(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()

	tests := []struct {
		name  string
		array Value
		value Value
	}{
		{"array", ti.Mem.NewArray(ti.Mem.Nil(), ti.Mem.Nil()), ti.Mem.True()},
		{"bytes", ti.Mem.NewBytes(ti.Class("ByteArray"), []byte{0, 0}), FromSmallInt(200)},
		{"words", ti.Mem.NewWords(ti.Class("Bitmap"), 2), FromSmallInt(70000)},
	}
	for _, tt := range tests {
		pushAll(in, tt.array, FromSmallInt(2), tt.value)
		if !in.primitiveAtPut(2) {
			t.Errorf("%s: at:put: failed", tt.name)
			continue
		}
		in.popN(1)
		pushAll(in, tt.array, FromSmallInt(2))
		if !in.primitiveAt(1) {
			t.Errorf("%s: at: failed", tt.name)
			continue
		}
		if got := in.pop(); got != tt.value {
			t.Errorf("%s: at: 2 = %s, want %s", tt.name, describe(got), describe(tt.value))
		}

		pushAll(in, tt.array, FromSmallInt(3))
		if in.primitiveAt(1) {
			t.Errorf("%s: at: 3 should fail", tt.name)
		}
		in.popN(2)
	}
}

func TestByteAtPutRejectsOutOfRange(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	b := ti.Mem.NewBytes(ti.Class("ByteArray"), []byte{1})
	for _, v := range []Value{FromSmallInt(256), FromSmallInt(-1), ti.Mem.Nil()} {
		pushAll(in, b, FromSmallInt(1), v)
		if in.primitiveAtPut(2) {
			t.Errorf("at: 1 put: %s should fail", describe(v))
		}
		in.popN(3)
	}
}

func TestStringAtAnswersCharacters(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	s := ti.Mem.NewString([]byte("hi"))
	pushAll(in, s, FromSmallInt(2))
	if !in.primitiveStringAt(1) {
		t.Fatal("stringAt failed")
	}
	c, ok := in.characterValue(in.pop())
	if !ok || c != 'i' {
		t.Errorf("char = %q, %v; want 'i'", c, ok)
	}

	pushAll(in, s, FromSmallInt(1), in.mem.Special(SpecialNil))
	if in.primitiveStringAtPut(2) {
		t.Error("storing nil into a String should fail")
	}
	in.popN(3)
}

func TestAtCacheServesRepeatedAccess(t *testing.T) {
	ti := newTestImage(t)
	ti.AddMethod("Array", "at:", ti.primitiveMethod(1, 60))
	arr := ti.Mem.NewArray(ti.smallInts(10, 20, 30)...)
	main := ti.method(0, []Value{arr},
		BytecodePushLiteralConstant+0,
		BytecodePushOne,
		BytecodeSpecialAt,
		BytecodePushLiteralConstant+0,
		BytecodePushLiteralConstant+0,
		BytecodePushTwo,
		BytecodeSpecialAt,
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 7)

	if in.StackValue(1) != arr || in.StackValue(0) != FromSmallInt(20) {
		t.Errorf("stack = %s %s", describe(in.StackValue(1)), describe(in.StackValue(0)))
	}
	if in.StackValue(2) != FromSmallInt(10) {
		t.Errorf("first at: = %s, want 10", describe(in.StackValue(2)))
	}
	if in.Stats().Sends != 1 {
		t.Errorf("sends = %d, want 1", in.Stats().Sends)
	}
}

func TestSizePrimitive(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	tests := []struct {
		v    Value
		want int64
	}{
		{ti.Mem.NewArray(ti.smallInts(1, 2, 3)...), 3},
		{ti.Mem.NewString([]byte("hello")), 5},
		{ti.Mem.NewWords(ti.Class("Bitmap"), 7), 7},
		{ti.Mem.NewFloat(1), 2},
	}
	for _, tt := range tests {
		in.push(tt.v)
		if !in.primitiveSize(0) {
			t.Errorf("size of %s failed", ti.Mem.Names().Describe(tt.v))
			in.popN(1)
			continue
		}
		if got := in.pop(); got != FromSmallInt(tt.want) {
			t.Errorf("size = %s, want %d", describe(got), tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------------

func TestReadStreamNext(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	rs := ti.DefineClass("ReadStream", "Object", 3, FormatFixed)
	stream, _ := ti.Mem.Instantiate(rs, 0)
	obj := ti.Mem.Get(stream)
	obj.Store(StreamArray, ti.Mem.NewArray(ti.smallInts(10, 20)...))
	obj.Store(StreamPosition, FromSmallInt(0))
	obj.Store(StreamLimit, FromSmallInt(2))

	for _, want := range []int64{10, 20} {
		in.push(stream)
		if !in.primitiveNext(0) {
			t.Fatalf("next failed before the limit")
		}
		if got := in.pop(); got != FromSmallInt(want) {
			t.Errorf("next = %s, want %d", describe(got), want)
		}
	}
	in.push(stream)
	if in.primitiveNext(0) {
		t.Error("next past the limit should fail")
	}
	in.push(stream)
	if !in.primitiveAtEnd(0) || in.pop() != ti.Mem.True() {
		t.Error("atEnd should answer true")
	}
}

func TestWriteStreamNextPut(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	ws := ti.DefineClass("WriteStream", "Object", 4, FormatFixed)
	stream, _ := ti.Mem.Instantiate(ws, 0)
	str := ti.Mem.NewString([]byte("__"))
	obj := ti.Mem.Get(stream)
	obj.Store(StreamArray, str)
	obj.Store(StreamPosition, FromSmallInt(0))
	obj.Store(StreamLimit, FromSmallInt(0))
	obj.Store(StreamWriteLimit, FromSmallInt(2))

	for _, ch := range []byte("ok") {
		c, _ := in.characterFor(ch)
		pushAll(in, stream, c)
		if !in.primitiveNextPut(1) {
			t.Fatalf("nextPut: %q failed", ch)
		}
		in.popN(1)
	}
	c, _ := in.characterFor('!')
	pushAll(in, stream, c)
	if in.primitiveNextPut(1) {
		t.Error("nextPut: past the write limit should fail")
	}
	in.popN(2)

	if b, _ := ti.Mem.Get(str).Bytes(); string(b) != "ok" {
		t.Errorf("string = %q, want \"ok\"", b)
	}
	if lim, _ := obj.Fetch(StreamLimit); lim != FromSmallInt(2) {
		t.Errorf("read limit = %s, want 2", describe(lim))
	}
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func TestByteWritesRefreshCachedNames(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	names := ti.Mem.Names()
	s := ti.Mem.NewString([]byte("cat"))
	if got, _ := names.StringOf(s); got != "cat" {
		t.Fatalf("StringOf = %q, want cat", got)
	}

	b, ok := in.characterFor('b')
	if !ok {
		t.Fatal("no Character table")
	}
	pushAll(in, s, FromSmallInt(1), b)
	if !in.primitiveStringAtPut(2) {
		t.Fatal("at: 1 put: $b failed")
	}
	in.popN(1)
	if got, _ := names.StringOf(s); got != "bat" {
		t.Errorf("after at:put: StringOf = %q, want bat", got)
	}

	pushAll(in, s, FromSmallInt(1), FromSmallInt(2), ti.Mem.NewString([]byte("xy")), FromSmallInt(1))
	if !in.primitiveStringReplace(4) {
		t.Fatal("replaceFrom:to:with:startingAt: failed")
	}
	in.popN(1)
	if got, _ := names.StringOf(s); got != "xyt" {
		t.Errorf("after replace StringOf = %q, want xyt", got)
	}

	pushAll(in, s, FromSmallInt('a'))
	if !in.primitiveConstantFill(1) {
		t.Fatal("atAllPut: failed")
	}
	in.popN(1)
	if got, _ := names.StringOf(s); got != "aaa" {
		t.Errorf("after fill StringOf = %q, want aaa", got)
	}
}

func TestNewWithArg(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	pushAll(in, ti.Class("Array"), FromSmallInt(4))
	if !in.primitiveNewWithArg(1) {
		t.Fatal("Array new: 4 failed")
	}
	arr := ti.Mem.Get(in.pop())
	if arr.PointerCount() != 4 {
		t.Errorf("size = %d, want 4", arr.PointerCount())
	}
	if v, _ := arr.Fetch(3); v != ti.Mem.Nil() {
		t.Error("new slots must be nil")
	}

	pushAll(in, ti.Class("Point"), FromSmallInt(4))
	if in.primitiveNewWithArg(1) {
		t.Error("Point new: 4 should fail")
	}
	in.popN(2)

	pushAll(in, ti.Class("Array"), FromSmallInt(MaxSmallInt))
	if in.primitiveNewWithArg(1) {
		t.Error("Array new: MaxSmallInt should fail")
	}
	in.popN(2)
}

func TestInstantiateHonorsMaxObjectWords(t *testing.T) {
	b := NewBootstrap(MemoryOptions{MaxObjectWords: 8})
	tests := []struct {
		class string
		size  int
		ok    bool
	}{
		{"Array", 8, true},
		{"Array", 9, false},
		{"ByteArray", 32, true},
		{"ByteArray", 33, false},
		{"Bitmap", 8, true},
		{"Bitmap", 9, false},
	}
	for _, tt := range tests {
		if _, ok := b.Mem.Instantiate(b.Class(tt.class), tt.size); ok != tt.ok {
			t.Errorf("%s new: %d ok = %v, want %v", tt.class, tt.size, ok, tt.ok)
		}
	}
}

func TestInstVarAtAndPut(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	p := ti.Mem.NewPoint(FromSmallInt(3), FromSmallInt(4))

	pushAll(in, p, FromSmallInt(2), FromSmallInt(9))
	if !in.primitiveInstVarAtPut(2) {
		t.Fatal("instVarAt:put: failed")
	}
	in.popN(1)
	pushAll(in, p, FromSmallInt(2))
	if !in.primitiveInstVarAt(1) || in.pop() != FromSmallInt(9) {
		t.Error("instVarAt: 2 should answer 9")
	}
	pushAll(in, p, FromSmallInt(3))
	if in.primitiveInstVarAt(1) {
		t.Error("instVarAt: 3 should fail")
	}
	in.popN(2)
}

func TestEnumerationPrimitives(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	class := ti.DefineClass("Thing", "Object", 0, FormatFixed)
	a, _ := ti.Mem.Instantiate(class, 0)
	b, _ := ti.Mem.Instantiate(class, 0)

	in.push(class)
	if !in.primitiveSomeInstance(0) || in.StackValue(0) != a {
		t.Fatal("someInstance should answer the first instance")
	}
	if !in.primitiveNextInstance(0) || in.StackValue(0) != b {
		t.Fatal("nextInstance should answer the second instance")
	}
	if in.primitiveNextInstance(0) {
		t.Error("nextInstance of the last instance should fail")
	}
	in.popN(1)

	in.push(b)
	if !in.primitiveNextObject(0) {
		t.Fatal("nextObject failed")
	}
	in.popN(1)
}

func TestCloneIsShallowAndDistinct(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	arr := ti.Mem.NewArray(ti.smallInts(1, 2)...)
	in.push(arr)
	if !in.primitiveClone(0) {
		t.Fatal("clone failed")
	}
	c := in.pop()
	if c == arr {
		t.Fatal("clone must be a new object")
	}
	ti.Mem.Get(c).Store(0, FromSmallInt(7))
	if v, _ := ti.Mem.Get(arr).Fetch(0); v != FromSmallInt(1) {
		t.Error("clone must not share storage")
	}
}

func TestArrayBecomePrimitive(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	a := ti.Mem.NewString([]byte("a"))
	b := ti.Mem.NewString([]byte("b"))
	holder := ti.Mem.NewArray(a, b)
	pushAll(in, ti.Mem.NewArray(a), ti.Mem.NewArray(b))
	depth := in.StackDepth()

	if !in.primitiveArrayBecome(1) {
		t.Fatal("elementsExchangeIdentityWith: failed")
	}
	if in.StackDepth() != depth-1 {
		t.Errorf("depth = %d, want %d", in.StackDepth(), depth-1)
	}
	slots, _ := ti.Mem.Get(holder).Pointers()
	if slots[0] != b || slots[1] != a {
		t.Error("two-way become should swap references")
	}
}

// ---------------------------------------------------------------------------
// Control
// ---------------------------------------------------------------------------

func TestBlockValue(t *testing.T) {
	ti := newTestImage(t)
	main := ti.method(0, ti.smallInts(42),
		BytecodePushThisContext,
		BytecodePushZero,
		BytecodeSpecialAdd+24, // blockCopy:
		BytecodeLongJump+4, 2,
		BytecodePushLiteralConstant+0,
		BytecodeBlockReturnTop,
		BytecodeSpecialAdd+25, // value
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 7)

	if got := in.StackValue(0); got != FromSmallInt(42) {
		t.Errorf("block value = %s, want 42", describe(got))
	}
	if in.StackDepth() != 1 {
		t.Errorf("depth = %d, want 1", in.StackDepth())
	}
	if in.Stats().Sends != 0 {
		t.Errorf("sends = %d, want 0", in.Stats().Sends)
	}
}

func TestBlockWithArgumentUsesHomeTemps(t *testing.T) {
	ti := newTestImage(t)
	// [:x | x + 1] value: 4, with x stored in the home context's temp 0.
	mb := NewMethodBuilder(0).SetNumTemps(1)
	four := mb.AddLiteral(FromSmallInt(4))
	mb.Emit(
		BytecodePushThisContext,
		BytecodePushOne,
		BytecodeSpecialAdd+24,
		BytecodeLongJump+4, 5,
		BytecodeStorePopTemporary+0,
		BytecodePushTemporary+0,
		BytecodePushOne,
		BytecodeSpecialAdd,
		BytecodeBlockReturnTop,
		BytecodePushLiteralConstant+byte(four),
		BytecodeSpecialAdd+26, // value:
	)
	in := ti.start(mb.Build(ti.Mem), ti.Mem.Nil())
	ti.steps(in, 4+2+5)

	if got := in.StackValue(0); got != FromSmallInt(5) {
		t.Errorf("block value: 4 = %s, want 5", describe(got))
	}
}

func TestValueWithWrongArgCountFails(t *testing.T) {
	ti := newTestImage(t)
	main := ti.method(0, nil,
		BytecodePushThisContext,
		BytecodePushZero,
		BytecodeSpecialAdd+24,
		BytecodeLongJump+4, 1,
		BytecodeBlockReturnTop,
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 4)

	in.push(FromSmallInt(1))
	depth := in.StackDepth()
	if in.primitiveValue(1) {
		t.Error("value: on a zero-argument block should fail")
	}
	if in.StackDepth() != depth {
		t.Error("failed value: must leave the stack untouched")
	}
}

func TestPerform(t *testing.T) {
	ti := newTestImage(t)
	ti.AddMethod("UndefinedObject", "perform:", ti.primitiveMethod(1, 83))
	ti.AddMethod("UndefinedObject", "answer", ti.method(0, ti.smallInts(99), BytecodePushLiteralConstant+0, BytecodeReturnTop))
	main := ti.method(0, []Value{ti.Symbol("answer"), ti.Symbol("perform:")},
		BytecodePushSelf,
		BytecodePushLiteralConstant+0,
		BytecodeSendLiteral1+1,
	)
	in := ti.start(main, ti.Mem.Nil())
	ti.steps(in, 5)

	if got := in.StackValue(0); got != FromSmallInt(99) {
		t.Errorf("perform: #answer = %s, want 99", describe(got))
	}
	if in.StackDepth() != 1 {
		t.Errorf("depth = %d, want 1", in.StackDepth())
	}
}

func TestPerformArityMismatchFails(t *testing.T) {
	ti := newTestImage(t)
	in := ti.idle()
	ti.AddMethod("UndefinedObject", "with:", ti.method(1, nil, BytecodeReturnSelf))
	pushAll(in, ti.Mem.Nil(), ti.Symbol("with:"))
	if in.primitivePerform(1) {
		t.Error("perform: #with: without an argument should fail")
	}
	in.popN(2)
}

func TestPrimitiveTableCoverage(t *testing.T) {
	for _, idx := range []int{1, 17, 21, 37, 40, 50, 51, 55, 60, 62, 63, 64, 70, 71, 75, 80, 83, 85, 86, 110, 111, 128, 135, 148, 167} {
		if primitiveTable[idx] == nil {
			t.Errorf("primitive %d is not registered", idx)
		}
	}
	if primitiveTable[76] != nil {
		t.Error("primitive 76 should be unassigned")
	}
}
