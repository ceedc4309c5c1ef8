package vm

// ---------------------------------------------------------------------------
// Bytecode numbering
// ---------------------------------------------------------------------------

// First bytecode of each range.
const (
	BytecodePushReceiverVariable = 0
	BytecodePushTemporary        = 16
	BytecodePushLiteralConstant  = 32
	BytecodePushLiteralVariable  = 64
	BytecodeStorePopReceiverVar  = 96
	BytecodeStorePopTemporary    = 104
	BytecodePushSelf             = 112
	BytecodePushTrue             = 113
	BytecodePushFalse            = 114
	BytecodePushNil              = 115
	BytecodePushMinusOne         = 116
	BytecodePushZero             = 117
	BytecodePushOne              = 118
	BytecodePushTwo              = 119
	BytecodeReturnSelf           = 120
	BytecodeReturnTrue           = 121
	BytecodeReturnFalse          = 122
	BytecodeReturnNil            = 123
	BytecodeReturnTop            = 124
	BytecodeBlockReturnTop       = 125
	BytecodeExtendedPush         = 128
	BytecodeExtendedStore        = 129
	BytecodeExtendedStorePop     = 130
	BytecodeSingleExtendedSend   = 131
	BytecodeDoubleExtended       = 132
	BytecodeSingleExtendedSuper  = 133
	BytecodeSecondExtendedSend   = 134
	BytecodePop                  = 135
	BytecodeDup                  = 136
	BytecodePushThisContext      = 137
	BytecodeShortJump            = 144
	BytecodeShortJumpIfFalse     = 152
	BytecodeLongJump             = 160
	BytecodeLongJumpIfTrue       = 168
	BytecodeLongJumpIfFalse      = 172
	BytecodeSpecialAdd           = 176
	BytecodeSpecialAt            = 192
	BytecodeSendLiteral0         = 208
	BytecodeSendLiteral1         = 224
	BytecodeSendLiteral2         = 240
)

type bytecodeHandler func(in *Interpreter, b byte)

// bytecodeTable dispatches every bytecode by range.
var bytecodeTable [256]bytecodeHandler

func init() {
	fill := func(from, to int, h bytecodeHandler) {
		for b := from; b <= to; b++ {
			bytecodeTable[b] = h
		}
	}
	fill(0, 15, (*Interpreter).pushReceiverVariableBytecode)
	fill(16, 31, (*Interpreter).pushTemporaryBytecode)
	fill(32, 63, (*Interpreter).pushLiteralConstantBytecode)
	fill(64, 95, (*Interpreter).pushLiteralVariableBytecode)
	fill(96, 103, (*Interpreter).storeAndPopReceiverVariableBytecode)
	fill(104, 111, (*Interpreter).storeAndPopTemporaryBytecode)
	fill(112, 119, (*Interpreter).pushConstantBytecode)
	fill(120, 125, (*Interpreter).returnBytecode)
	fill(126, 127, (*Interpreter).unknownBytecode)
	fill(128, 128, (*Interpreter).extendedPushBytecode)
	fill(129, 129, (*Interpreter).extendedStoreBytecode)
	fill(130, 130, (*Interpreter).extendedStoreAndPopBytecode)
	fill(131, 131, (*Interpreter).singleExtendedSendBytecode)
	fill(132, 132, (*Interpreter).doubleExtendedDoAnythingBytecode)
	fill(133, 133, (*Interpreter).singleExtendedSuperBytecode)
	fill(134, 134, (*Interpreter).secondExtendedSendBytecode)
	fill(135, 135, (*Interpreter).popStackBytecode)
	fill(136, 136, (*Interpreter).duplicateTopBytecode)
	fill(137, 137, (*Interpreter).pushActiveContextBytecode)
	fill(138, 143, (*Interpreter).unknownBytecode)
	fill(144, 151, (*Interpreter).shortUnconditionalJump)
	fill(152, 159, (*Interpreter).shortConditionalJump)
	fill(160, 167, (*Interpreter).longUnconditionalJump)
	fill(168, 171, (*Interpreter).longJumpIfTrue)
	fill(172, 175, (*Interpreter).longJumpIfFalse)
	fill(176, 191, (*Interpreter).arithmeticSelectorBytecode)
	fill(192, 207, (*Interpreter).commonSelectorBytecode)
	fill(208, 223, (*Interpreter).sendLiteralSelector0)
	fill(224, 239, (*Interpreter).sendLiteralSelector1)
	fill(240, 255, (*Interpreter).sendLiteralSelector2)
}

func (in *Interpreter) fetchByte() byte {
	b := in.bytecodes[in.pc]
	in.pc++
	return b
}

func (in *Interpreter) literal(i int) Value {
	return in.literals[1+i]
}

// ---------------------------------------------------------------------------
// Variable access
// ---------------------------------------------------------------------------

func (in *Interpreter) receiverVariable(i int) Value {
	if obj := in.mem.Get(in.receiver); obj != nil {
		if v, ok := obj.Fetch(i); ok {
			return v
		}
	}
	return in.mem.nilObj
}

func (in *Interpreter) storeReceiverVariable(i int, v Value) {
	if obj := in.mem.Get(in.receiver); obj != nil {
		obj.Store(i, v)
	}
}

func (in *Interpreter) literalVariable(i int) Value {
	if assoc := in.mem.Get(in.literal(i)); assoc != nil {
		if v, ok := assoc.Fetch(AssociationValue); ok {
			return v
		}
	}
	return in.mem.nilObj
}

func (in *Interpreter) storeLiteralVariable(i int, v Value) {
	if assoc := in.mem.Get(in.literal(i)); assoc != nil {
		assoc.Store(AssociationValue, v)
	}
}

func (in *Interpreter) pushReceiverVariableBytecode(b byte) {
	in.push(in.receiverVariable(int(b & 15)))
}

func (in *Interpreter) pushTemporaryBytecode(b byte) {
	in.push(in.homeSlots[ContextTempFrameStart+int(b&15)])
}

func (in *Interpreter) pushLiteralConstantBytecode(b byte) {
	in.push(in.literal(int(b & 31)))
}

func (in *Interpreter) pushLiteralVariableBytecode(b byte) {
	in.push(in.literalVariable(int(b & 31)))
}

func (in *Interpreter) storeAndPopReceiverVariableBytecode(b byte) {
	in.storeReceiverVariable(int(b&7), in.pop())
}

func (in *Interpreter) storeAndPopTemporaryBytecode(b byte) {
	in.homeSlots[ContextTempFrameStart+int(b&7)] = in.pop()
}

func (in *Interpreter) pushConstantBytecode(b byte) {
	switch b {
	case BytecodePushSelf:
		in.push(in.receiver)
	case BytecodePushTrue:
		in.push(in.mem.trueObj)
	case BytecodePushFalse:
		in.push(in.mem.falseObj)
	case BytecodePushNil:
		in.push(in.mem.nilObj)
	default:
		in.push(FromSmallInt(int64(b) - BytecodePushZero))
	}
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

func (in *Interpreter) returnBytecode(b byte) {
	sender := in.homeSlots[ContextSender]
	switch b {
	case BytecodeReturnSelf:
		in.returnValue(in.receiver, sender)
	case BytecodeReturnTrue:
		in.returnValue(in.mem.trueObj, sender)
	case BytecodeReturnFalse:
		in.returnValue(in.mem.falseObj, sender)
	case BytecodeReturnNil:
		in.returnValue(in.mem.nilObj, sender)
	case BytecodeReturnTop:
		in.returnValue(in.pop(), sender)
	case BytecodeBlockReturnTop:
		in.returnValue(in.pop(), in.activeSlots[BlockCaller])
	}
}

func (in *Interpreter) unknownBytecode(b byte) {
	fatal(ErrUnknownBytecode, "bytecode %d at pc %d", b, in.pc-1)
}

// ---------------------------------------------------------------------------
// Extended forms
// ---------------------------------------------------------------------------

func (in *Interpreter) extendedPushBytecode(byte) {
	d := in.fetchByte()
	i := int(d & 63)
	switch d >> 6 {
	case 0:
		in.push(in.receiverVariable(i))
	case 1:
		in.push(in.homeSlots[ContextTempFrameStart+i])
	case 2:
		in.push(in.literal(i))
	case 3:
		in.push(in.literalVariable(i))
	}
}

func (in *Interpreter) extendedStore(d byte) {
	i := int(d & 63)
	switch d >> 6 {
	case 0:
		in.storeReceiverVariable(i, in.top())
	case 1:
		in.homeSlots[ContextTempFrameStart+i] = in.top()
	case 2:
		fatal(ErrUnknownBytecode, "illegal store into a literal constant at pc %d", in.pc-2)
	case 3:
		in.storeLiteralVariable(i, in.top())
	}
}

func (in *Interpreter) extendedStoreBytecode(byte) {
	in.extendedStore(in.fetchByte())
}

func (in *Interpreter) extendedStoreAndPopBytecode(byte) {
	in.extendedStore(in.fetchByte())
	in.popN(1)
}

func (in *Interpreter) singleExtendedSendBytecode(byte) {
	d := in.fetchByte()
	in.send(in.literal(int(d&31)), int(d>>5), false)
}

func (in *Interpreter) doubleExtendedDoAnythingBytecode(byte) {
	d := in.fetchByte()
	e := in.fetchByte()
	switch d >> 5 {
	case 0:
		in.send(in.literal(int(e)), int(d&31), false)
	case 1:
		in.send(in.literal(int(e)), int(d&31), true)
	case 2:
		in.push(in.receiverVariable(int(e)))
	case 3:
		in.push(in.literal(int(e)))
	case 4:
		in.push(in.literalVariable(int(e)))
	case 5:
		in.storeReceiverVariable(int(e), in.top())
	case 6:
		in.storeReceiverVariable(int(e), in.pop())
	case 7:
		in.storeLiteralVariable(int(e), in.top())
	}
}

func (in *Interpreter) singleExtendedSuperBytecode(byte) {
	d := in.fetchByte()
	in.send(in.literal(int(d&31)), int(d>>5), true)
}

func (in *Interpreter) secondExtendedSendBytecode(byte) {
	d := in.fetchByte()
	in.send(in.literal(int(d&63)), int(d>>6), false)
}

// ---------------------------------------------------------------------------
// Stack manipulation
// ---------------------------------------------------------------------------

func (in *Interpreter) popStackBytecode(byte) {
	in.popN(1)
}

func (in *Interpreter) duplicateTopBytecode(byte) {
	in.push(in.top())
}

func (in *Interpreter) pushActiveContextBytecode(byte) {
	in.reclaimableContextCount = 0
	in.push(in.activeContext)
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

func (in *Interpreter) jumpIf(condition bool, offset int) {
	v := in.pop()
	switch v {
	case in.mem.Bool(condition):
		in.pc += offset
	case in.mem.Bool(!condition):
	default:
		in.push(v)
		in.send(in.mem.Special(SpecialSelectorMustBeBoolean), 0, false)
	}
}

func (in *Interpreter) shortUnconditionalJump(b byte) {
	in.pc += int(b&7) + 1
}

func (in *Interpreter) shortConditionalJump(b byte) {
	in.jumpIf(false, int(b&7)+1)
}

func (in *Interpreter) longUnconditionalJump(b byte) {
	offset := (int(b&7)-4)*256 + int(in.fetchByte())
	in.pc += offset
	if offset < 0 {
		in.checkForInterrupts()
	}
}

func (in *Interpreter) longJumpIfTrue(b byte) {
	in.jumpIf(true, int(b&3)*256+int(in.fetchByte()))
}

func (in *Interpreter) longJumpIfFalse(b byte) {
	in.jumpIf(false, int(b&3)*256+int(in.fetchByte()))
}

// pushBool pushes a comparison result. When the next bytecode is a
// conditional jump on false it is executed directly.
func (in *Interpreter) pushBool(result bool) {
	if in.pc < len(in.bytecodes) {
		next := in.bytecodes[in.pc]
		switch {
		case next >= BytecodeShortJumpIfFalse && next < BytecodeLongJump:
			in.pc++
			if !result {
				in.pc += int(next&7) + 1
			}
			return
		case next >= BytecodeLongJumpIfFalse && next < BytecodeSpecialAdd:
			in.pc++
			offset := int(next&3)*256 + int(in.fetchByte())
			if !result {
				in.pc += offset
			}
			return
		}
	}
	in.push(in.mem.Bool(result))
}

// ---------------------------------------------------------------------------
// Special selectors
// ---------------------------------------------------------------------------

func (in *Interpreter) arithmeticSelectorBytecode(b byte) {
	idx := int(b - BytecodeSpecialAdd)
	rcvr, arg := in.stackValue(1), in.stackValue(0)
	if rcvr.IsSmallInt() && arg.IsSmallInt() {
		x, y := rcvr.SmallInt(), arg.SmallInt()
		if cmp, ok := compareSmallInts(idx, x, y); ok {
			in.popN(2)
			in.pushBool(cmp)
			return
		}
		if r, ok := smallIntArith(idx, x, y); ok {
			in.popNandPush(2, FromSmallInt(r))
			return
		}
	}
	if idx == 11 && in.primitiveMakePoint(1) {
		return
	}
	if idx < 10 && in.floatSpecial(idx, rcvr, arg) {
		return
	}
	in.sendSpecial(idx)
}

// floatSpecial handles + - < > <= >= = ~= * / on two Floats (or a Float and
// a SmallInteger).
func (in *Interpreter) floatSpecial(idx int, rcvr, arg Value) bool {
	if !rcvr.IsObject() && !arg.IsObject() {
		return false
	}
	x, ok1 := in.floatOrInt(rcvr)
	y, ok2 := in.floatOrInt(arg)
	if !ok1 || !ok2 {
		return false
	}
	if cmp, ok := compareFloats(idx, x, y); ok {
		in.popN(2)
		in.pushBool(cmp)
		return true
	}
	r, ok := floatArith(idx, x, y)
	if !ok {
		return false
	}
	in.popNandPush(2, in.mem.NewFloat(r))
	return true
}

func (in *Interpreter) commonSelectorBytecode(b byte) {
	idx := int(b - BytecodeSpecialAdd)
	switch idx {
	case 16:
		if in.quickAt() {
			return
		}
	case 17:
		if in.quickAtPut() {
			return
		}
	case 18:
		if info, ok := in.atCache.lookup(in.top(), in.mem.HashOf(in.top())); ok {
			in.popNandPush(1, FromSmallInt(int64(info.size)))
			return
		}
	case 22:
		arg := in.pop()
		rcvr := in.pop()
		in.pushBool(rcvr == arg)
		return
	case 23:
		in.popNandPush(1, in.mem.ClassOf(in.top()))
		return
	case 24:
		if in.isContext(in.stackValue(1)) && in.primitiveBlockCopy(1) {
			return
		}
	case 25:
		if in.isBlockContext(in.top()) && in.primitiveValue(0) {
			return
		}
	case 26:
		if in.isBlockContext(in.stackValue(1)) && in.primitiveValue(1) {
			return
		}
	}
	in.sendSpecial(idx)
}

// ---------------------------------------------------------------------------
// Literal selector sends
// ---------------------------------------------------------------------------

func (in *Interpreter) sendLiteralSelector0(b byte) {
	in.send(in.literal(int(b&15)), 0, false)
}

func (in *Interpreter) sendLiteralSelector1(b byte) {
	in.send(in.literal(int(b&15)), 1, false)
}

func (in *Interpreter) sendLiteralSelector2(b byte) {
	in.send(in.literal(int(b&15)), 2, false)
}
