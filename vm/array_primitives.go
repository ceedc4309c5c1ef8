package vm

// ---------------------------------------------------------------------------
// Indexable layout
// ---------------------------------------------------------------------------

// Special selector slots of at: and at:put: in the special selectors array.
const (
	specialSelectorAt    = 16
	specialSelectorAtPut = 17
)

// specialSelector returns special selector i (0-31).
func (in *Interpreter) specialSelector(i int) Value {
	specials := in.mem.Get(in.mem.Special(SpecialSpecialSelectors))
	if specials == nil {
		return Invalid
	}
	sel, _ := specials.Fetch(i * 2)
	return sel
}

// atInfoFor describes the indexable part of array. It reports false for
// SmallIntegers and objects without indexable fields.
func (in *Interpreter) atInfoFor(array Value, convertChars bool) (atInfo, bool) {
	obj := in.mem.Get(array)
	if obj == nil {
		return atInfo{}, false
	}
	info := atInfo{array: array}
	switch b := obj.Body.(type) {
	case *PointersBody:
		if obj.Format < FormatIndexable {
			return atInfo{}, false
		}
		info.kind = atPointers
		info.ivarOffset = in.mem.InstSize(array)
		info.size = len(b.Slots) - info.ivarOffset
		if in.isContext(array) {
			sp := b.Slots[ContextSP]
			if !sp.IsSmallInt() {
				return atInfo{}, false
			}
			info.size = int(sp.SmallInt())
		}
	case *WordsBody:
		info.kind = atWords
		info.size = len(b.Words)
	case *BytesBody:
		info.kind = atBytes
		info.size = len(b.Bytes)
		info.convertChars = convertChars
	case *MethodBody:
		info.kind = atMethodBytes
		info.ivarOffset = len(b.Literals) * 4
		info.size = info.ivarOffset + len(b.Bytecodes)
	case *FloatBody:
		info.kind = atFloat
		info.size = 2
	default:
		return atInfo{}, false
	}
	return info, true
}

// commonAt reads element index (one-based) of info.array.
func (in *Interpreter) commonAt(info *atInfo, index int64) (Value, bool) {
	if index < 1 || index > int64(info.size) {
		return Invalid, false
	}
	i := int(index - 1)
	obj := in.mem.Get(info.array)
	switch info.kind {
	case atPointers:
		return obj.Fetch(i + info.ivarOffset)
	case atWords:
		w, ok := obj.WordAt(i)
		if !ok {
			return Invalid, false
		}
		return in.mem.Pos32BitInt(w), true
	case atBytes:
		b, ok := obj.ByteAt(i)
		if !ok {
			return Invalid, false
		}
		if info.convertChars {
			return in.characterFor(b)
		}
		return FromSmallInt(int64(b)), true
	case atMethodBytes:
		if i < info.ivarOffset {
			return Invalid, false
		}
		b, ok := obj.ByteAt(i - info.ivarOffset)
		if !ok {
			return Invalid, false
		}
		return FromSmallInt(int64(b)), true
	case atFloat:
		f, _ := obj.Float()
		hi, lo := floatWords(f)
		if i == 0 {
			return in.mem.Pos32BitInt(hi), true
		}
		return in.mem.Pos32BitInt(lo), true
	}
	return Invalid, false
}

// commonAtPut writes v into element index (one-based) of info.array.
func (in *Interpreter) commonAtPut(info *atInfo, index int64, v Value) bool {
	if index < 1 || index > int64(info.size) {
		return false
	}
	i := int(index - 1)
	obj := in.mem.Get(info.array)
	switch info.kind {
	case atPointers:
		return obj.Store(i+info.ivarOffset, v)
	case atWords:
		w, ok := in.mem.Pos32BitValue(v)
		return ok && obj.WordAtPut(i, w)
	case atBytes:
		b, ok := in.byteToStore(v, info.convertChars)
		if !ok || !obj.ByteAtPut(i, b) {
			return false
		}
		in.mem.Names().Forget(info.array)
		return true
	case atMethodBytes:
		if i < info.ivarOffset {
			return false
		}
		b, ok := in.byteToStore(v, false)
		return ok && obj.ByteAtPut(i-info.ivarOffset, b)
	case atFloat:
		w, ok := in.mem.Pos32BitValue(v)
		if !ok {
			return false
		}
		body := obj.Body.(*FloatBody)
		hi, lo := floatWords(body.Float)
		if i == 0 {
			hi = w
		} else {
			lo = w
		}
		body.Float = floatFromWords(hi, lo)
		return true
	}
	return false
}

func (in *Interpreter) byteToStore(v Value, asChar bool) (byte, bool) {
	if asChar {
		return in.characterValue(v)
	}
	if !v.IsSmallInt() || v.SmallInt() < 0 || v.SmallInt() > 255 {
		return 0, false
	}
	return byte(v.SmallInt()), true
}

// ---------------------------------------------------------------------------
// at: and at:put:
// ---------------------------------------------------------------------------

// cacheableAt reports whether the layout of array may be remembered for
// the at: or at:put: bytecode. Only receivers reached by an ordinary send
// of exactly that selector qualify, and never contexts, whose size follows
// their stack pointer.
func (in *Interpreter) cacheableAt(array Value, selector int) bool {
	return in.verifyAtSelector == in.specialSelector(selector) &&
		in.verifyAtClass == in.mem.ClassOf(array) &&
		!in.isContext(array)
}

func (in *Interpreter) primitiveAtCommon(argCount int, convertChars bool) bool {
	if argCount != 1 {
		return false
	}
	array := in.stackValue(1)
	index, ok := in.stackSmallInt(0)
	if !ok {
		return false
	}
	info, ok := in.atInfoFor(array, convertChars)
	if !ok {
		return false
	}
	v, ok := in.commonAt(&info, index)
	if !ok {
		return false
	}
	if in.cacheableAt(array, specialSelectorAt) {
		in.atCache.store(info, in.mem.HashOf(array))
	}
	in.popNandPush(2, v)
	return true
}

func (in *Interpreter) primitiveAtPutCommon(argCount int, convertChars bool) bool {
	if argCount != 2 {
		return false
	}
	array := in.stackValue(2)
	index, ok := in.stackSmallInt(1)
	if !ok {
		return false
	}
	v := in.stackValue(0)
	info, ok := in.atInfoFor(array, convertChars)
	if !ok || !in.commonAtPut(&info, index, v) {
		return false
	}
	if in.cacheableAt(array, specialSelectorAtPut) {
		in.atPutCache.store(info, in.mem.HashOf(array))
	}
	in.popNandPush(3, v)
	return true
}

func (in *Interpreter) primitiveAt(argCount int) bool {
	return in.primitiveAtCommon(argCount, false)
}

func (in *Interpreter) primitiveAtPut(argCount int) bool {
	return in.primitiveAtPutCommon(argCount, false)
}

func (in *Interpreter) primitiveStringAt(argCount int) bool {
	return in.primitiveAtCommon(argCount, true)
}

func (in *Interpreter) primitiveStringAtPut(argCount int) bool {
	return in.primitiveAtPutCommon(argCount, true)
}

// quickAt serves the at: bytecode from the at cache.
func (in *Interpreter) quickAt() bool {
	array := in.stackValue(1)
	index := in.top()
	if !index.IsSmallInt() || !array.IsObject() {
		return false
	}
	info, ok := in.atCache.lookup(array, in.mem.HashOf(array))
	if !ok {
		return false
	}
	v, ok := in.commonAt(info, index.SmallInt())
	if !ok {
		return false
	}
	in.popNandPush(2, v)
	return true
}

// quickAtPut serves the at:put: bytecode from the at:put: cache.
func (in *Interpreter) quickAtPut() bool {
	array := in.stackValue(2)
	index := in.stackValue(1)
	v := in.top()
	if !index.IsSmallInt() || !array.IsObject() {
		return false
	}
	info, ok := in.atPutCache.lookup(array, in.mem.HashOf(array))
	if !ok || !in.commonAtPut(info, index.SmallInt(), v) {
		return false
	}
	in.popNandPush(3, v)
	return true
}

func (in *Interpreter) primitiveSize(argCount int) bool {
	if argCount != 0 {
		return false
	}
	info, ok := in.atInfoFor(in.top(), false)
	if !ok {
		return false
	}
	in.popNandPush(1, FromSmallInt(int64(info.size)))
	return true
}

// ---------------------------------------------------------------------------
// Streams
// ---------------------------------------------------------------------------

// streamState decodes a positionable stream: its collection, position and
// the limit in slot limitSlot.
func (in *Interpreter) streamState(stream Value, limitSlot int) (obj *Object, info atInfo, pos, limit int64, ok bool) {
	obj = in.mem.Get(stream)
	if obj == nil || obj.PointerCount() <= limitSlot {
		return nil, atInfo{}, 0, 0, false
	}
	array, _ := obj.Fetch(StreamArray)
	p, _ := obj.Fetch(StreamPosition)
	l, _ := obj.Fetch(limitSlot)
	if !p.IsSmallInt() || !l.IsSmallInt() {
		return nil, atInfo{}, 0, 0, false
	}
	convert := in.isInstanceOf(array, SpecialClassString)
	info, ok = in.atInfoFor(array, convert)
	if !ok || in.isContext(array) {
		return nil, atInfo{}, 0, 0, false
	}
	return obj, info, p.SmallInt(), l.SmallInt(), true
}

// primitiveNext answers the next element of a ReadStream.
func (in *Interpreter) primitiveNext(argCount int) bool {
	if argCount != 0 {
		return false
	}
	obj, info, pos, limit, ok := in.streamState(in.top(), StreamLimit)
	if !ok || pos >= limit {
		return false
	}
	v, ok := in.commonAt(&info, pos+1)
	if !ok {
		return false
	}
	obj.Store(StreamPosition, FromSmallInt(pos+1))
	in.popNandPush(1, v)
	return true
}

// primitiveNextPut appends to a WriteStream within its write limit.
func (in *Interpreter) primitiveNextPut(argCount int) bool {
	if argCount != 1 {
		return false
	}
	v := in.stackValue(0)
	obj, info, pos, limit, ok := in.streamState(in.stackValue(1), StreamWriteLimit)
	if !ok || pos >= limit || !in.commonAtPut(&info, pos+1, v) {
		return false
	}
	obj.Store(StreamPosition, FromSmallInt(pos+1))
	if readLimit, _ := obj.Fetch(StreamLimit); readLimit.IsSmallInt() && readLimit.SmallInt() < pos+1 {
		obj.Store(StreamLimit, FromSmallInt(pos+1))
	}
	in.popNandPush(2, v)
	return true
}

func (in *Interpreter) primitiveAtEnd(argCount int) bool {
	if argCount != 0 {
		return false
	}
	_, _, pos, limit, ok := in.streamState(in.top(), StreamLimit)
	if !ok {
		return false
	}
	in.popNandPush(1, in.mem.Bool(pos >= limit))
	return true
}

// ---------------------------------------------------------------------------
// Bulk copy and fill
// ---------------------------------------------------------------------------

// primitiveStringReplace implements replaceFrom:to:with:startingAt: between
// objects of the same storage family.
func (in *Interpreter) primitiveStringReplace(argCount int) bool {
	if argCount != 4 {
		return false
	}
	dstV, dst, ok1 := in.stackObject(4)
	start, ok2 := in.stackSmallInt(3)
	stop, ok3 := in.stackSmallInt(2)
	srcV, src, ok4 := in.stackObject(1)
	srcStart, ok5 := in.stackSmallInt(0)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return false
	}
	count := int(stop - start + 1)
	if count < 0 {
		return false
	}
	dstPos, srcPos := int(start-1), int(srcStart-1)
	inRange := func(pos, n int) bool { return pos >= 0 && pos+count <= n }

	switch d := dst.Body.(type) {
	case *PointersBody:
		s, ok := src.Body.(*PointersBody)
		if !ok || dst.Format < FormatIndexable || src.Format < FormatIndexable {
			return false
		}
		dstPos += in.mem.InstSize(dstV)
		srcPos += in.mem.InstSize(srcV)
		if !inRange(dstPos, len(d.Slots)) || !inRange(srcPos, len(s.Slots)) {
			return false
		}
		copy(d.Slots[dstPos:dstPos+count], s.Slots[srcPos:srcPos+count])
	case *WordsBody:
		s, ok := src.Body.(*WordsBody)
		if !ok || !inRange(dstPos, len(d.Words)) || !inRange(srcPos, len(s.Words)) {
			return false
		}
		copy(d.Words[dstPos:dstPos+count], s.Words[srcPos:srcPos+count])
	case *BytesBody:
		s, ok := src.Bytes()
		if !ok || !inRange(dstPos, len(d.Bytes)) || !inRange(srcPos, len(s)) {
			return false
		}
		copy(d.Bytes[dstPos:dstPos+count], s[srcPos:srcPos+count])
		in.mem.Names().Forget(dstV)
	default:
		return false
	}
	in.popN(4)
	return true
}

// primitiveConstantFill sets every element of a words or bytes object.
func (in *Interpreter) primitiveConstantFill(argCount int) bool {
	if argCount != 1 {
		return false
	}
	v, obj, ok := in.stackObject(1)
	if !ok {
		return false
	}
	fill, ok := in.mem.Pos32BitValue(in.stackValue(0))
	if !ok {
		return false
	}
	switch b := obj.Body.(type) {
	case *WordsBody:
		for i := range b.Words {
			b.Words[i] = fill
		}
	case *BytesBody:
		if fill > 255 {
			return false
		}
		for i := range b.Bytes {
			b.Bytes[i] = byte(fill)
		}
		in.mem.Names().Forget(v)
	default:
		return false
	}
	in.popN(1)
	return true
}
