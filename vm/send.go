package vm

// ---------------------------------------------------------------------------
// Message sending
// ---------------------------------------------------------------------------

// send dispatches selector to the receiver argCount entries below the top
// of stack. Super sends start the lookup above the class the current
// method was compiled in.
func (in *Interpreter) send(selector Value, argCount int, super bool) {
	in.stats.Sends++
	in.messageSelector = selector
	in.argumentCount = argCount
	if super {
		in.lookupClass = in.superclassOf(in.methodClassForSuper())
	} else {
		in.lookupClass = in.mem.ClassOf(in.stackValue(argCount))
	}
	in.findNewMethodInClass(in.lookupClass)
	if in.primitiveIndex > 0 {
		if super {
			in.verifyAtSelector = Invalid
			in.verifyAtClass = Invalid
		} else {
			in.verifyAtSelector = in.messageSelector
			in.verifyAtClass = in.lookupClass
		}
	}
	in.executeNewMethod()
}

// sendSpecial sends special selector i (0-31).
func (in *Interpreter) sendSpecial(i int) {
	specials := in.mem.Get(in.mem.Special(SpecialSpecialSelectors))
	sel, _ := specials.Fetch(i * 2)
	n, _ := specials.Fetch(i*2 + 1)
	in.send(sel, int(n.SmallInt()), false)
}

// methodClassForSuper returns the class stored in the value of the
// method's last literal.
func (in *Interpreter) methodClassForSuper() Value {
	assoc := in.mem.Get(in.literals[in.header.NumLiterals()])
	if assoc == nil {
		return in.mem.nilObj
	}
	v, _ := assoc.Fetch(AssociationValue)
	return v
}

func (in *Interpreter) superclassOf(class Value) Value {
	obj := in.mem.Get(class)
	if obj == nil {
		return in.mem.nilObj
	}
	v, ok := obj.Fetch(ClassSuperclass)
	if !ok {
		return in.mem.nilObj
	}
	return v
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

func (in *Interpreter) findNewMethodInClass(class Value) {
	hash := in.mem.HashOf(in.messageSelector) ^ in.mem.HashOf(class)
	if e, ok := in.methodCache.Lookup(in.messageSelector, class, hash); ok {
		in.newMethod = e.Method
		in.primitiveIndex = e.Primitive
		return
	}
	in.lookupMethodInClass(class)
	hash = in.mem.HashOf(in.messageSelector) ^ in.mem.HashOf(class)
	in.methodCache.Add(in.messageSelector, class, hash, in.newMethod, in.primitiveIndex)
}

// lookupMethodInClass walks the superclass chain from class. When the chain
// is exhausted the send is rewritten into doesNotUnderstand: with a Message.
func (in *Interpreter) lookupMethodInClass(class Value) {
	for current := class; current != in.mem.nilObj; current = in.superclassOf(current) {
		if in.mem.Get(current) == nil {
			break
		}
		if method, ok := in.lookupInDictionary(current, in.messageSelector); ok {
			in.newMethod = method
			in.primitiveIndex = in.mem.HeaderOf(method).PrimitiveIndex()
			return
		}
	}
	dnu := in.mem.Special(SpecialSelectorDoesNotUnderstand)
	if in.messageSelector == dnu {
		fatal(ErrRecursiveDNU, "%s does not understand #doesNotUnderstand:", in.mem.names.Describe(in.stackValue(in.argumentCount)))
	}
	in.createActualMessage(class)
	in.messageSelector = dnu
	in.argumentCount = 1
	in.lookupMethodInClass(class)
}

// lookupInDictionary probes the method dictionary of class.
func (in *Interpreter) lookupInDictionary(class, selector Value) (Value, bool) {
	dictV, _ := in.mem.Get(class).Fetch(ClassMethodDict)
	dict := in.mem.Get(dictV)
	if dict == nil {
		return Invalid, false
	}
	n := dict.PointerCount() - MethodDictSelectorStart
	if n <= 0 {
		return Invalid, false
	}
	mask := n - 1
	idx := in.mem.HashOf(selector) & mask
	for probe := 0; probe < n; probe++ {
		key, _ := dict.Fetch(MethodDictSelectorStart + idx)
		if key == in.mem.nilObj {
			return Invalid, false
		}
		if key == selector {
			arrV, _ := dict.Fetch(MethodDictArray)
			arr := in.mem.Get(arrV)
			if arr == nil {
				return Invalid, false
			}
			method, ok := arr.Fetch(idx)
			return method, ok
		}
		idx = (idx + 1) & mask
	}
	return Invalid, false
}

// LookupSelector resolves selector for instances of class without
// touching the stack or the cache. It reports false when no method is found.
func (in *Interpreter) LookupSelector(selector, class Value) (Value, bool) {
	for current := class; current != in.mem.nilObj; current = in.superclassOf(current) {
		if in.mem.Get(current) == nil {
			break
		}
		if method, ok := in.lookupInDictionary(current, selector); ok {
			return method, true
		}
	}
	return Invalid, false
}

// createActualMessage replaces the arguments on the stack with a Message.
func (in *Interpreter) createActualMessage(lookupClass Value) {
	argCount := in.argumentCount
	args := in.mem.NewPointers(in.mem.Special(SpecialClassArray), FormatIndexable, argCount)
	argsObj := in.mem.Get(args)
	for i := 0; i < argCount; i++ {
		argsObj.Store(i, in.stackValue(argCount-1-i))
	}
	msgClass := in.mem.Special(SpecialClassMessage)
	msg, ok := in.mem.Instantiate(msgClass, 0)
	if !ok {
		msg = in.mem.NewPointers(msgClass, FormatFixed, 3)
	}
	msgObj := in.mem.Get(msg)
	msgObj.Store(MessageSelector, in.messageSelector)
	msgObj.Store(MessageArguments, args)
	if msgObj.PointerCount() > MessageLookupClass {
		msgObj.Store(MessageLookupClass, lookupClass)
	}
	in.popNandPush(argCount, msg)
}

// ---------------------------------------------------------------------------
// Activation
// ---------------------------------------------------------------------------

func (in *Interpreter) executeNewMethod() {
	p := in.opts.Profiler
	method := in.newMethod
	if p != nil {
		p.RecordInvocation(method, in.messageSelector, in.lookupClass)
	}
	if in.primitiveIndex > 0 && in.primitiveResponse() {
		// perform: primitives re-enter, so newMethod may have changed.
		if p != nil {
			p.RecordPrimitiveHit(method)
		}
		return
	}
	in.activateNewMethod()
	in.checkForInterrupts()
}

// activateNewMethod builds a context for newMethod, moves the receiver and
// arguments into it and makes it active.
func (in *Interpreter) activateNewMethod() {
	h := in.mem.HeaderOf(in.newMethod)
	ctx, obj := in.newContext(h.LargeFrame())
	slots := obj.Body.(*PointersBody).Slots
	argCount := in.argumentCount
	slots[ContextSender] = in.activeContext
	slots[ContextIP] = encodePC(0, h)
	slots[ContextSP] = encodeSP(ContextTempFrameStart + h.NumTemps() - 1)
	slots[ContextMethod] = in.newMethod
	for i := 0; i <= argCount; i++ {
		slots[ContextReceiver+i] = in.stackValue(argCount - i)
	}
	in.popN(argCount + 1)
	in.reclaimableContextCount++
	in.newActiveContext(ctx)
}

// primitiveResponse runs the primitive of newMethod. Quick primitives are
// resolved inline.
func (in *Interpreter) primitiveResponse() bool {
	idx := in.primitiveIndex
	in.stats.PrimitiveCalls++
	if idx >= 256 {
		switch {
		case idx == 256:
			return true
		case idx <= 259:
			v := [...]Value{in.mem.trueObj, in.mem.falseObj, in.mem.nilObj}[idx-257]
			in.popNandPush(1, v)
			return true
		case idx <= 263:
			in.popNandPush(1, FromSmallInt(int64(idx-261)))
			return true
		case idx <= 519:
			obj := in.mem.Get(in.top())
			if obj == nil {
				break
			}
			v, ok := obj.Fetch(idx - 264)
			if !ok {
				break
			}
			in.popNandPush(1, v)
			return true
		}
		in.stats.PrimitiveFailures++
		return false
	}
	fn := primitiveTable[idx]
	in.success = true
	if fn == nil || !fn(in, in.argumentCount) {
		in.success = false
		in.stats.PrimitiveFailures++
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

// returnValue unwinds from the active context to target and pushes v there.
func (in *Interpreter) returnValue(v, target Value) {
	tobj := in.mem.Get(target)
	if target == in.mem.nilObj || tobj == nil {
		fatal(ErrCannotReturn, "to nil from %s", in.describeMethod())
	}
	if ip, _ := tobj.Fetch(ContextIP); ip == in.mem.nilObj {
		fatal(ErrCannotReturn, "to a dead context from %s", in.describeMethod())
	}
	for c := in.activeContext; c != target; {
		obj := in.mem.Get(c)
		if c == in.mem.nilObj || obj == nil {
			fatal(ErrCannotReturn, "target is not on the sender chain of %s", in.describeMethod())
		}
		c, _ = obj.Fetch(ContextSender)
	}

	this := in.activeContext
	for this != target {
		obj := in.mem.Get(this)
		next, _ := obj.Fetch(ContextSender)
		obj.Store(ContextSender, in.mem.nilObj)
		obj.Store(ContextIP, in.mem.nilObj)
		if in.reclaimableContextCount > 0 {
			in.reclaimableContextCount--
			in.recycleContext(this)
		}
		this = next
	}
	in.activeContext = this
	in.fetchContextRegisters()
	in.push(v)
}
