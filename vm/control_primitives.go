package vm

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

// primitiveBlockCopy creates a BlockContext whose code starts after the
// jump that follows the blockCopy: send.
func (in *Interpreter) primitiveBlockCopy(argCount int) bool {
	if argCount != 1 {
		return false
	}
	ctx := in.stackValue(1)
	nargs := in.stackValue(0)
	if !nargs.IsSmallInt() || !in.isContext(ctx) {
		return false
	}
	home := ctx
	if m, _ := in.mem.Get(ctx).Fetch(ContextMethod); m.IsSmallInt() {
		home, _ = in.mem.Get(ctx).Fetch(BlockHome)
	}
	homeObj := in.mem.Get(home)
	if homeObj == nil {
		return false
	}
	in.reclaimableContextCount = 0
	block := in.mem.NewPointers(in.mem.Special(SpecialClassBlockContext), FormatFixedIndexable, homeObj.PointerCount())
	obj := in.mem.Get(block)
	initialIP := encodePC(in.pc+2, in.header)
	obj.Store(BlockInitialIP, initialIP)
	obj.Store(ContextIP, initialIP)
	obj.Store(ContextSP, encodeSP(ContextTempFrameStart-1))
	obj.Store(BlockArgumentCount, nargs)
	obj.Store(BlockHome, home)
	in.popNandPush(2, block)
	return true
}

// activateBlock starts block with args, which have already been checked
// against its argument count.
func (in *Interpreter) activateBlock(block Value, args []Value, pop int) {
	obj := in.mem.Get(block)
	for i, a := range args {
		obj.Store(ContextTempFrameStart+i, a)
	}
	ip, _ := obj.Fetch(BlockInitialIP)
	obj.Store(ContextIP, ip)
	obj.Store(ContextSP, encodeSP(ContextTempFrameStart-1+len(args)))
	obj.Store(BlockCaller, in.activeContext)
	in.popN(pop)
	in.newActiveContext(block)
}

// blockAccepts checks that block is an idle BlockContext taking n arguments.
func (in *Interpreter) blockAccepts(block Value, n int) bool {
	if !in.isBlockContext(block) {
		return false
	}
	obj := in.mem.Get(block)
	count, _ := obj.Fetch(BlockArgumentCount)
	caller, _ := obj.Fetch(BlockCaller)
	return count.IsSmallInt() && int(count.SmallInt()) == n &&
		caller == in.mem.nilObj &&
		obj.PointerCount() >= ContextTempFrameStart+n
}

// primitiveValue runs a block with argCount stacked arguments. A block
// that is already running (its caller is set) cannot be re-entered.
func (in *Interpreter) primitiveValue(argCount int) bool {
	block := in.stackValue(argCount)
	if !in.blockAccepts(block, argCount) {
		return false
	}
	args := make([]Value, argCount)
	for i := range args {
		args[i] = in.stackValue(argCount - 1 - i)
	}
	in.activateBlock(block, args, argCount+1)
	return true
}

func (in *Interpreter) primitiveValueWithArgs(argCount int) bool {
	if argCount != 1 {
		return false
	}
	block := in.stackValue(1)
	argsObj := in.mem.Get(in.stackValue(0))
	if argsObj == nil || argsObj.Class != in.mem.Special(SpecialClassArray) {
		return false
	}
	args, _ := argsObj.Pointers()
	if !in.blockAccepts(block, len(args)) {
		return false
	}
	in.activateBlock(block, append([]Value(nil), args...), 2)
	return true
}

// ---------------------------------------------------------------------------
// perform
// ---------------------------------------------------------------------------

// arityMismatch reports whether selector resolves, from lookupClass, to a
// method that does not take n arguments. Unresolved selectors are left to
// doesNotUnderstand:.
func (in *Interpreter) arityMismatch(selector, lookupClass Value, n int) bool {
	method, ok := in.LookupSelector(selector, lookupClass)
	return ok && in.mem.HeaderOf(method).NumArgs() != n
}

// dispatchPerform sends selector to the receiver n entries below the top.
func (in *Interpreter) dispatchPerform(selector Value, n int, lookupClass Value) {
	in.stats.Sends++
	in.messageSelector = selector
	in.argumentCount = n
	in.lookupClass = lookupClass
	in.verifyAtSelector = Invalid
	in.verifyAtClass = Invalid
	in.findNewMethodInClass(lookupClass)
	in.executeNewMethod()
}

// primitivePerform implements perform: and perform:with:... by sliding the
// arguments over the selector.
func (in *Interpreter) primitivePerform(argCount int) bool {
	if argCount < 1 {
		return false
	}
	selector := in.stackValue(argCount - 1)
	rcvr := in.stackValue(argCount)
	n := argCount - 1
	lookupClass := in.mem.ClassOf(rcvr)
	if !selector.IsObject() || in.arityMismatch(selector, lookupClass, n) {
		return false
	}
	selIdx := in.sp - n
	copy(in.activeSlots[selIdx:in.sp], in.activeSlots[selIdx+1:in.sp+1])
	in.sp--
	in.dispatchPerform(selector, n, lookupClass)
	return true
}

// performWithArgs handles rcvr perform: sel withArguments: array, with the
// receiver depth entries below the top of stack.
func (in *Interpreter) performWithArgs(depth int, lookupClass Value) bool {
	selector := in.stackValue(depth - 1)
	argsObj := in.mem.Get(in.stackValue(depth - 2))
	if !selector.IsObject() || argsObj == nil || argsObj.Class != in.mem.Special(SpecialClassArray) {
		return false
	}
	args, _ := argsObj.Pointers()
	rcvrIdx := in.sp - depth
	if rcvrIdx+len(args) >= len(in.activeSlots) || in.arityMismatch(selector, lookupClass, len(args)) {
		return false
	}
	in.sp = rcvrIdx
	for _, a := range args {
		in.push(a)
	}
	in.dispatchPerform(selector, len(args), lookupClass)
	return true
}

func (in *Interpreter) primitivePerformWithArgs(argCount int) bool {
	if argCount != 2 {
		return false
	}
	return in.performWithArgs(2, in.mem.ClassOf(in.stackValue(2)))
}

// primitivePerformInSuperclass starts the lookup at a class the receiver
// inherits from.
func (in *Interpreter) primitivePerformInSuperclass(argCount int) bool {
	if argCount != 3 {
		return false
	}
	lookupClass := in.stackValue(0)
	if !in.inheritsFrom(in.mem.ClassOf(in.stackValue(3)), lookupClass) {
		return false
	}
	return in.performWithArgs(3, lookupClass)
}

// ---------------------------------------------------------------------------
// Processes and semaphores
// ---------------------------------------------------------------------------

func (in *Interpreter) primitiveSignal(argCount int) bool {
	sem := in.top()
	if argCount != 0 || !in.isInstanceOf(sem, SpecialClassSemaphore) {
		return false
	}
	in.synchronousSignal(sem)
	return true
}

func (in *Interpreter) primitiveWait(argCount int) bool {
	sem := in.top()
	if argCount != 0 || !in.isInstanceOf(sem, SpecialClassSemaphore) {
		return false
	}
	in.semaphoreWait(sem)
	return true
}

func (in *Interpreter) primitiveResume(argCount int) bool {
	proc := in.top()
	if argCount != 0 || !in.isInstanceOf(proc, SpecialClassProcess) {
		return false
	}
	if ctx, _ := in.mem.Get(proc).Fetch(ProcessSuspendedContext); !in.isContext(ctx) {
		return false
	}
	in.resume(proc)
	return true
}

// primitiveSuspend stops the active process. Suspending any other process
// fails.
func (in *Interpreter) primitiveSuspend(argCount int) bool {
	if argCount != 0 || in.top() != in.activeProcess() {
		return false
	}
	in.popNandPush(1, in.mem.nilObj)
	in.suspendActive()
	return true
}

// primitiveYield moves the active process behind its peers.
func (in *Interpreter) primitiveYield(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.yield()
	return true
}

// ---------------------------------------------------------------------------
// Cache control
// ---------------------------------------------------------------------------

func (in *Interpreter) primitiveFlushCache(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.methodCache.Flush()
	return true
}

func (in *Interpreter) primitiveFlushCacheByMethod(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.methodCache.FlushMethod(in.top())
	return true
}

func (in *Interpreter) primitiveFlushCacheSelective(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.methodCache.FlushSelector(in.top())
	return true
}
