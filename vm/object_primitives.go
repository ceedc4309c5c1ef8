package vm

// ---------------------------------------------------------------------------
// Storage management primitives
// ---------------------------------------------------------------------------

// primitiveObjectAt reads the header or a literal of a compiled method.
func (in *Interpreter) primitiveObjectAt(argCount int) bool {
	if argCount != 1 {
		return false
	}
	_, obj, ok := in.stackObject(1)
	index, ok2 := in.stackSmallInt(0)
	if !ok || !ok2 || !obj.IsMethod() {
		return false
	}
	v, ok := obj.Fetch(int(index - 1))
	if !ok {
		return false
	}
	in.popNandPush(2, v)
	return true
}

func (in *Interpreter) primitiveObjectAtPut(argCount int) bool {
	if argCount != 2 {
		return false
	}
	method, obj, ok := in.stackObject(2)
	index, ok2 := in.stackSmallInt(1)
	if !ok || !ok2 || !obj.IsMethod() {
		return false
	}
	v := in.stackValue(0)
	if index == 1 && !v.IsSmallInt() {
		return false
	}
	if !obj.Store(int(index-1), v) {
		return false
	}
	in.methodCache.FlushMethod(method)
	in.popNandPush(3, v)
	return true
}

func (in *Interpreter) primitiveNew(argCount int) bool {
	if argCount != 0 {
		return false
	}
	v, ok := in.mem.Instantiate(in.top(), 0)
	if !ok {
		return false
	}
	in.popNandPush(1, v)
	return true
}

func (in *Interpreter) primitiveNewWithArg(argCount int) bool {
	if argCount != 1 {
		return false
	}
	size, ok := in.mem.Pos32BitValue(in.stackValue(0))
	if !ok || int64(size) > MaxSmallInt {
		return false
	}
	spec, ok := in.mem.SpecOf(in.stackValue(1))
	if !ok || spec.Format < FormatIndexable {
		return false
	}
	v, ok := in.mem.Instantiate(in.stackValue(1), int(size))
	if !ok {
		return false
	}
	in.popNandPush(2, v)
	return true
}

// primitiveNewMethod creates a CompiledMethod with nil literals and zeroed
// bytecodes: class newMethod: byteCount header: header.
func (in *Interpreter) primitiveNewMethod(argCount int) bool {
	if argCount != 2 {
		return false
	}
	class := in.stackValue(2)
	byteCount, ok1 := in.stackSmallInt(1)
	header, ok2 := in.stackSmallInt(0)
	if !ok1 || !ok2 || byteCount < 0 || in.mem.Get(class) == nil {
		return false
	}
	if !in.mem.Fits(MethodHeader(header).NumLiterals() + int(byteCount+3)/4) {
		return false
	}
	lits := make([]Value, MethodHeader(header).NumLiterals())
	for i := range lits {
		lits[i] = in.mem.nilObj
	}
	method := in.mem.NewMethod(header, lits, make([]byte, byteCount))
	in.mem.Get(method).Class = class
	in.popNandPush(3, method)
	return true
}

// primitiveInstVarAt reads any pointer field, named or indexed.
func (in *Interpreter) primitiveInstVarAt(argCount int) bool {
	if argCount != 1 {
		return false
	}
	_, obj, ok := in.stackObject(1)
	index, ok2 := in.stackSmallInt(0)
	if !ok || !ok2 || obj.IsMethod() {
		return false
	}
	v, ok := obj.Fetch(int(index - 1))
	if !ok {
		return false
	}
	in.popNandPush(2, v)
	return true
}

func (in *Interpreter) primitiveInstVarAtPut(argCount int) bool {
	if argCount != 2 {
		return false
	}
	_, obj, ok := in.stackObject(2)
	index, ok2 := in.stackSmallInt(1)
	if !ok || !ok2 || obj.IsMethod() {
		return false
	}
	v := in.stackValue(0)
	if !obj.Store(int(index-1), v) {
		return false
	}
	in.popNandPush(3, v)
	return true
}

// primitiveAsOop answers the identity hash.
func (in *Interpreter) primitiveAsOop(argCount int) bool {
	v := in.top()
	if argCount != 0 || !v.IsObject() {
		return false
	}
	in.popNandPush(1, FromSmallInt(int64(in.mem.HashOf(v))))
	return true
}

func (in *Interpreter) primitiveSomeInstance(argCount int) bool {
	if argCount != 0 {
		return false
	}
	v := in.mem.NextInstance(0, in.top())
	if v == Invalid {
		return false
	}
	in.popNandPush(1, v)
	return true
}

func (in *Interpreter) primitiveNextInstance(argCount int) bool {
	if argCount != 0 || !in.top().IsObject() {
		return false
	}
	v := in.mem.InstanceAfter(in.top())
	if v == Invalid {
		return false
	}
	in.popNandPush(1, v)
	return true
}

func (in *Interpreter) primitiveSomeObject(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.popNandPush(1, in.mem.At(0))
	return true
}

// primitiveNextObject answers the object created after the receiver, or 0
// at the end of memory.
func (in *Interpreter) primitiveNextObject(argCount int) bool {
	if argCount != 0 || !in.top().IsObject() {
		return false
	}
	v := in.mem.ObjectAfter(in.top())
	if v == Invalid {
		v = FromSmallInt(0)
	}
	in.popNandPush(1, v)
	return true
}

func (in *Interpreter) primitiveClone(argCount int) bool {
	if argCount != 0 || !in.top().IsObject() {
		return false
	}
	in.popNandPush(1, in.mem.Clone(in.top()))
	return true
}

// ---------------------------------------------------------------------------
// become
// ---------------------------------------------------------------------------

func (in *Interpreter) become(argCount int, twoWay bool) bool {
	if argCount != 1 {
		return false
	}
	_, rcvr, ok1 := in.stackObject(1)
	_, arg, ok2 := in.stackObject(0)
	if !ok1 || !ok2 {
		return false
	}
	fromSlots, ok1 := rcvr.Body.(*PointersBody)
	toSlots, ok2 := arg.Body.(*PointersBody)
	if !ok1 || !ok2 {
		return false
	}
	from := append([]Value(nil), fromSlots.Slots...)
	to := append([]Value(nil), toSlots.Slots...)
	in.storeContextRegisters()
	if !in.mem.BulkBecome(from, to, twoWay) {
		return false
	}
	in.fetchContextRegisters()
	in.popN(1)
	return true
}

// primitiveBecome is the one-way form kept at its historical number.
func (in *Interpreter) primitiveBecome(argCount int) bool {
	return in.become(argCount, false)
}

// primitiveArrayBecome exchanges the identities of corresponding elements.
func (in *Interpreter) primitiveArrayBecome(argCount int) bool {
	return in.become(argCount, true)
}

// ---------------------------------------------------------------------------
// Identity and class
// ---------------------------------------------------------------------------

func (in *Interpreter) primitiveEquivalent(argCount int) bool {
	if argCount != 1 {
		return false
	}
	in.popNandPush(2, in.mem.Bool(in.stackValue(1) == in.stackValue(0)))
	return true
}

func (in *Interpreter) primitiveClass(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.popNandPush(1, in.mem.ClassOf(in.top()))
	return true
}

func (in *Interpreter) primitiveSpecialObjectsOop(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.popNandPush(1, in.mem.SpecialObjects())
	return true
}

// primitiveObjectPointsTo answers whether the receiver holds a reference
// to the argument in any pointer field.
func (in *Interpreter) primitiveObjectPointsTo(argCount int) bool {
	if argCount != 1 {
		return false
	}
	target := in.stackValue(0)
	found := false
	if obj := in.mem.Get(in.stackValue(1)); obj != nil {
		if target == obj.Class {
			found = true
		}
		slots, _ := obj.Pointers()
		for _, v := range slots {
			if v == target {
				found = true
				break
			}
		}
	}
	in.popNandPush(2, in.mem.Bool(found))
	return true
}
