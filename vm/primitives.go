package vm

// ---------------------------------------------------------------------------
// Primitive table
// ---------------------------------------------------------------------------

// maxPrimitive is the highest primitive number dispatched through the
// table. Quick primitives above it are resolved in primitiveResponse.
const maxPrimitive = 255

// primitiveFunc runs one primitive. It returns false to fall back to the
// method body; a failing primitive must leave the stack untouched.
type primitiveFunc func(in *Interpreter, argCount int) bool

var primitiveTable [maxPrimitive + 1]primitiveFunc

func registerPrimitives(first int, fns ...primitiveFunc) {
	for i, fn := range fns {
		primitiveTable[first+i] = fn
	}
}

func init() {
	// Integer
	for p := 1; p <= 17; p++ {
		primitiveTable[p] = smallIntPrimitive(arithOp(p - 1))
	}
	primitiveTable[18] = (*Interpreter).primitiveMakePoint
	for p := 21; p <= 37; p++ {
		primitiveTable[p] = largeIntPrimitive(arithOp(p - 21))
	}

	// Float
	primitiveTable[40] = (*Interpreter).primitiveAsFloat
	for p := 41; p <= 50; p++ {
		primitiveTable[p] = floatPrimitive(p - 41)
	}
	registerPrimitives(51,
		(*Interpreter).primitiveTruncated,
		(*Interpreter).primitiveFractionalPart,
		(*Interpreter).primitiveExponent,
		(*Interpreter).primitiveTimesTwoPower,
		floatUnary(floatSqrt),
		floatUnary(floatSin),
		floatUnary(floatArctan),
		floatUnary(floatLn),
		floatUnary(floatExp),
	)

	// Subscripts and streams
	registerPrimitives(60,
		(*Interpreter).primitiveAt,
		(*Interpreter).primitiveAtPut,
		(*Interpreter).primitiveSize,
		(*Interpreter).primitiveStringAt,
		(*Interpreter).primitiveStringAtPut,
		(*Interpreter).primitiveNext,
		(*Interpreter).primitiveNextPut,
		(*Interpreter).primitiveAtEnd,
	)

	// Storage management
	registerPrimitives(68,
		(*Interpreter).primitiveObjectAt,
		(*Interpreter).primitiveObjectAtPut,
		(*Interpreter).primitiveNew,
		(*Interpreter).primitiveNewWithArg,
		(*Interpreter).primitiveBecome,
		(*Interpreter).primitiveInstVarAt,
		(*Interpreter).primitiveInstVarAtPut,
		(*Interpreter).primitiveAsOop,
		nil,
		(*Interpreter).primitiveSomeInstance,
		(*Interpreter).primitiveNextInstance,
		(*Interpreter).primitiveNewMethod,
	)

	// Control
	registerPrimitives(80,
		(*Interpreter).primitiveBlockCopy,
		(*Interpreter).primitiveValue,
		(*Interpreter).primitiveValueWithArgs,
		(*Interpreter).primitivePerform,
		(*Interpreter).primitivePerformWithArgs,
		(*Interpreter).primitiveSignal,
		(*Interpreter).primitiveWait,
		(*Interpreter).primitiveResume,
		(*Interpreter).primitiveSuspend,
		(*Interpreter).primitiveFlushCache,
	)

	// Input/output
	registerPrimitives(90,
		(*Interpreter).primitiveMousePoint,
		nil,
		nil,
		(*Interpreter).primitiveInputSemaphore,
		nil,
		nil,
		(*Interpreter).primitiveCopyBits,
		(*Interpreter).primitiveSnapshot,
		nil,
		nil,
		(*Interpreter).primitivePerformInSuperclass,
		(*Interpreter).primitiveBeCursor,
		(*Interpreter).primitiveBeDisplay,
		nil,
		nil,
		(*Interpreter).primitiveStringReplace,
		(*Interpreter).primitiveScreenSize,
		(*Interpreter).primitiveMouseButtons,
		(*Interpreter).primitiveKbdNext,
		(*Interpreter).primitiveKbdPeek,
	)

	// System
	registerPrimitives(110,
		(*Interpreter).primitiveEquivalent,
		(*Interpreter).primitiveClass,
		(*Interpreter).primitiveBytesLeft,
		(*Interpreter).primitiveQuit,
	)
	primitiveTable[116] = (*Interpreter).primitiveFlushCacheByMethod
	primitiveTable[119] = (*Interpreter).primitiveFlushCacheSelective
	primitiveTable[121] = (*Interpreter).primitiveImageName
	primitiveTable[124] = (*Interpreter).primitiveLowSpaceSemaphore
	primitiveTable[125] = (*Interpreter).primitiveSignalAtBytesLeft
	registerPrimitives(126,
		(*Interpreter).primitiveDeferDisplayUpdates,
		(*Interpreter).primitiveShowDisplayRect,
		(*Interpreter).primitiveArrayBecome,
		(*Interpreter).primitiveSpecialObjectsOop,
		(*Interpreter).primitiveFullGC,
		(*Interpreter).primitiveIncrementalGC,
		(*Interpreter).primitiveObjectPointsTo,
		(*Interpreter).primitiveSetInterruptKey,
		(*Interpreter).primitiveInterruptSemaphore,
		(*Interpreter).primitiveMillisecondClock,
		(*Interpreter).primitiveSignalAtMilliseconds,
		(*Interpreter).primitiveSecondsClock,
		(*Interpreter).primitiveSomeObject,
		(*Interpreter).primitiveNextObject,
		nil,
		(*Interpreter).primitiveClipboardText,
		(*Interpreter).primitiveVMPath,
	)
	primitiveTable[145] = (*Interpreter).primitiveConstantFill
	primitiveTable[148] = (*Interpreter).primitiveClone
	primitiveTable[149] = (*Interpreter).primitiveGetAttribute
	primitiveTable[161] = (*Interpreter).primitiveDirectoryDelimiter
	primitiveTable[167] = (*Interpreter).primitiveYield

	// Other
	primitiveTable[230] = (*Interpreter).primitiveRelinquishProcessor
	primitiveTable[233] = (*Interpreter).primitiveSetFullScreen
}

// ---------------------------------------------------------------------------
// Argument access
// ---------------------------------------------------------------------------

// stackSmallInt returns the SmallInteger n entries below the top of stack.
func (in *Interpreter) stackSmallInt(n int) (int64, bool) {
	v := in.stackValue(n)
	if !v.IsSmallInt() {
		return 0, false
	}
	return v.SmallInt(), true
}

// stackObject returns the heap object n entries below the top of stack.
func (in *Interpreter) stackObject(n int) (Value, *Object, bool) {
	v := in.stackValue(n)
	obj := in.mem.Get(v)
	return v, obj, obj != nil
}

// isInstanceOf reports whether the class of v is special object index.
func (in *Interpreter) isInstanceOf(v Value, index int) bool {
	return in.mem.ClassOf(v) == in.mem.Special(index)
}

// inheritsFrom reports whether class is ancestor or one of its subclasses.
func (in *Interpreter) inheritsFrom(class, ancestor Value) bool {
	for c := class; c != in.mem.nilObj; c = in.superclassOf(c) {
		if c == ancestor {
			return true
		}
		if in.mem.Get(c) == nil {
			return false
		}
	}
	return false
}

// characterFor returns the Character with the given byte value.
func (in *Interpreter) characterFor(b byte) (Value, bool) {
	table := in.mem.Get(in.mem.Special(SpecialCharacterTable))
	if table == nil {
		return Invalid, false
	}
	return table.Fetch(int(b))
}

// characterValue decodes a Character to its byte value.
func (in *Interpreter) characterValue(v Value) (byte, bool) {
	if !in.isInstanceOf(v, SpecialClassCharacter) {
		return 0, false
	}
	n, _ := in.mem.Get(v).Fetch(CharacterValue)
	if !n.IsSmallInt() || n.SmallInt() < 0 || n.SmallInt() > 255 {
		return 0, false
	}
	return byte(n.SmallInt()), true
}

// newString creates a String holding s converted to MacRoman.
func (in *Interpreter) newString(s string) Value {
	return in.mem.NewString(encodeMacRoman(s))
}
