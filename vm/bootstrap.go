package vm

// ---------------------------------------------------------------------------
// Bootstrap: a minimal object graph built without an image file
// ---------------------------------------------------------------------------

// Priority levels of the bootstrap scheduler.
const (
	BootstrapPriorities    = 8
	UserSchedulingPriority = 4
)

// classDef describes one bootstrap class.
type classDef struct {
	name     string
	super    string
	instSize int
	format   uint8
}

var bootstrapClasses = []classDef{
	{"Object", "", 0, FormatEmpty},
	{"UndefinedObject", "Object", 0, FormatEmpty},
	{"Boolean", "Object", 0, FormatEmpty},
	{"True", "Boolean", 0, FormatEmpty},
	{"False", "Boolean", 0, FormatEmpty},
	{"Class", "Object", 7, FormatFixed},
	{"MethodDictionary", "Object", 2, FormatFixedIndexable},
	{"CompiledMethod", "Object", 0, FormatMethod},
	{"SmallInteger", "Object", 0, FormatEmpty},
	{"Float", "Object", 0, FormatWords},
	{"LargePositiveInteger", "Object", 0, FormatBytes},
	{"LargeNegativeInteger", "LargePositiveInteger", 0, FormatBytes},
	{"Character", "Object", 1, FormatFixed},
	{"Point", "Object", 2, FormatFixed},
	{"Array", "Object", 0, FormatIndexable},
	{"String", "Object", 0, FormatBytes},
	{"Symbol", "String", 0, FormatBytes},
	{"ByteArray", "Object", 0, FormatBytes},
	{"Bitmap", "Object", 0, FormatWords},
	{"Association", "Object", 2, FormatFixed},
	{"Message", "Object", 3, FormatFixed},
	{"MethodContext", "Object", ContextTempFrameStart, FormatFixedIndexable},
	{"BlockContext", "Object", ContextTempFrameStart, FormatFixedIndexable},
	{"LinkedList", "Object", 2, FormatFixed},
	{"Semaphore", "LinkedList", 3, FormatFixed},
	{"Link", "Object", 1, FormatFixed},
	{"Process", "Link", 4, FormatFixed},
	{"ProcessorScheduler", "Object", 2, FormatFixed},
	{"Form", "Object", 5, FormatFixed},
}

var bootstrapSpecialClasses = map[int]string{
	SpecialClassBitmap:         "Bitmap",
	SpecialClassInteger:        "SmallInteger",
	SpecialClassString:         "String",
	SpecialClassArray:          "Array",
	SpecialClassFloat:          "Float",
	SpecialClassMethodContext:  "MethodContext",
	SpecialClassBlockContext:   "BlockContext",
	SpecialClassPoint:          "Point",
	SpecialClassLargePositive:  "LargePositiveInteger",
	SpecialClassMessage:        "Message",
	SpecialClassCompiledMethod: "CompiledMethod",
	SpecialClassSemaphore:      "Semaphore",
	SpecialClassCharacter:      "Character",
	SpecialClassByteArray:      "ByteArray",
	SpecialClassProcess:        "Process",
	SpecialClassLargeNegative:  "LargeNegativeInteger",
}

// Bootstrap builds and extends a minimal image in memory.
type Bootstrap struct {
	Mem     *Memory
	symbols map[string]Value
	classes map[string]Value
}

// NewBootstrap creates the kernel classes, special objects and an idle
// scheduler.
func NewBootstrap(opts MemoryOptions) *Bootstrap {
	m := NewMemory(opts)
	b := &Bootstrap{Mem: m, symbols: make(map[string]Value), classes: make(map[string]Value)}

	raw := func(format uint8, n int) Value {
		return m.Register(&Object{Format: format, Hash: m.newHash(), Body: &PointersBody{Slots: make([]Value, n)}})
	}
	nilObj := raw(FormatEmpty, 0)
	falseObj := raw(FormatEmpty, 0)
	trueObj := raw(FormatEmpty, 0)
	specials := raw(FormatIndexable, SpecialObjectsSize)
	for i := range m.Get(specials).Body.(*PointersBody).Slots {
		m.Get(specials).Store(i, nilObj)
	}
	m.SetSpecialObjects(specials)
	m.SetSpecial(SpecialNil, nilObj)
	m.SetSpecial(SpecialFalse, falseObj)
	m.SetSpecial(SpecialTrue, trueObj)

	for _, def := range bootstrapClasses {
		class := m.NewPointers(Invalid, FormatFixed, 7)
		obj := m.Get(class)
		if def.super != "" {
			obj.Store(ClassSuperclass, b.classes[def.super])
		}
		obj.Store(ClassFormat, FromSmallInt(EncodeClassSpec(def.instSize, def.format)))
		b.classes[def.name] = class
	}
	for i, name := range bootstrapSpecialClasses {
		m.SetSpecial(i, b.classes[name])
	}
	classClass := b.classes["Class"]
	for _, def := range bootstrapClasses {
		m.Get(b.classes[def.name]).Class = classClass
	}
	m.Get(specials).Class = b.classes["Array"]
	m.Get(nilObj).Class = b.classes["UndefinedObject"]
	m.Get(falseObj).Class = b.classes["False"]
	m.Get(trueObj).Class = b.classes["True"]

	for _, def := range bootstrapClasses {
		class := m.Get(b.classes[def.name])
		class.Store(ClassName, b.Symbol(def.name))
		class.Store(ClassMethodDict, b.newMethodDictionary(32))
	}

	m.SetSpecial(SpecialSelectorDoesNotUnderstand, b.Symbol("doesNotUnderstand:"))
	m.SetSpecial(SpecialSelectorCannotReturn, b.Symbol("cannotReturn:"))
	m.SetSpecial(SpecialSelectorMustBeBoolean, b.Symbol("mustBeBoolean"))
	m.SetSpecial(SpecialSelectorCannotInterpret, b.Symbol("cannotInterpret:"))

	selectors := make([]Value, 0, 64)
	for i, name := range specialSelectorNames {
		selectors = append(selectors, b.Symbol(name), FromSmallInt(int64(specialSelectorArgs[i])))
	}
	m.SetSpecial(SpecialSpecialSelectors, m.NewArray(selectors...))

	chars := make([]Value, 256)
	for i := range chars {
		c := m.NewPointers(b.classes["Character"], FormatFixed, 1)
		m.Get(c).Store(CharacterValue, FromSmallInt(int64(i)))
		chars[i] = c
	}
	m.SetSpecial(SpecialCharacterTable, m.NewArray(chars...))
	m.SetSpecial(SpecialCompactClasses, m.NewArray(make31(nilObj)...))
	m.SetSpecial(SpecialExternalObjectsArray, m.NewArray())

	lists := make([]Value, BootstrapPriorities)
	for i := range lists {
		lists[i] = m.NewPointers(b.classes["LinkedList"], FormatFixed, 2)
	}
	sched := m.NewPointers(b.classes["ProcessorScheduler"], FormatFixed, 2)
	m.Get(sched).Store(SchedulerProcessLists, m.NewArray(lists...))
	m.SetSpecial(SpecialSchedulerAssociation, b.NewAssociation(b.Symbol("Processor"), sched))

	b.SetInstVarNames("Point", "x", "y")
	b.SetInstVarNames("Association", "key", "value")
	b.SetInstVarNames("Message", "selector", "args", "lookupClass")

	quit := NewMethodBuilder(0).SetPrimitive(113).Emit(BytecodeReturnSelf).Build(m)
	b.AddMethod("Object", "quit", quit)
	m.SafePoint()
	return b
}

func make31(v Value) []Value {
	out := make([]Value, 31)
	for i := range out {
		out[i] = v
	}
	return out
}

// Symbol interns name.
func (b *Bootstrap) Symbol(name string) Value {
	if s, ok := b.symbols[name]; ok {
		return s
	}
	s := b.Mem.NewBytes(b.classes["Symbol"], []byte(name))
	b.symbols[name] = s
	return s
}

// Class returns a bootstrap class by name, or Invalid.
func (b *Bootstrap) Class(name string) Value {
	return b.classes[name]
}

// DefineClass creates a class with a fresh method dictionary.
func (b *Bootstrap) DefineClass(name, super string, instSize int, format uint8) Value {
	m := b.Mem
	class := m.NewPointers(b.classes["Class"], FormatFixed, 7)
	obj := m.Get(class)
	obj.Store(ClassSuperclass, b.classes[super])
	obj.Store(ClassMethodDict, b.newMethodDictionary(32))
	obj.Store(ClassFormat, FromSmallInt(EncodeClassSpec(instSize, format)))
	obj.Store(ClassName, b.Symbol(name))
	b.classes[name] = class
	return class
}

// SetInstVarNames records the instance variable names of a class, for
// inspection.
func (b *Bootstrap) SetInstVarNames(class string, names ...string) {
	elems := make([]Value, len(names))
	for i, n := range names {
		elems[i] = b.Mem.NewString([]byte(n))
	}
	b.Mem.Get(b.classes[class]).Store(ClassInstVars, b.Mem.NewArray(elems...))
}

// NewAssociation creates a key/value Association.
func (b *Bootstrap) NewAssociation(key, value Value) Value {
	a := b.Mem.NewPointers(b.classes["Association"], FormatFixed, 2)
	b.Mem.Get(a).Store(AssociationKey, key)
	b.Mem.Get(a).Store(AssociationValue, value)
	return a
}

// MethodClassLiteral returns the association compiled into methods of
// class that perform super sends; it must be their last literal.
func (b *Bootstrap) MethodClassLiteral(class string) Value {
	return b.NewAssociation(b.Mem.nilObj, b.classes[class])
}

// ---------------------------------------------------------------------------
// Method dictionaries
// ---------------------------------------------------------------------------

func (b *Bootstrap) newMethodDictionary(capacity int) Value {
	m := b.Mem
	dict := m.NewPointers(b.classes["MethodDictionary"], FormatFixedIndexable, MethodDictSelectorStart+capacity)
	m.Get(dict).Store(MethodDictTally, FromSmallInt(0))
	m.Get(dict).Store(MethodDictArray, m.NewPointers(b.classes["Array"], FormatIndexable, capacity))
	return dict
}

// AddMethod installs method under selector in the named class.
func (b *Bootstrap) AddMethod(class, selector string, method Value) {
	m := b.Mem
	classObj := m.Get(b.classes[class])
	dictV, _ := classObj.Fetch(ClassMethodDict)
	dict := m.Get(dictV)
	capacity := dict.PointerCount() - MethodDictSelectorStart
	tally, _ := dict.Fetch(MethodDictTally)
	if int(tally.SmallInt()+1)*4 > capacity*3 {
		dictV = b.growMethodDictionary(dictV, capacity*2)
		classObj.Store(ClassMethodDict, dictV)
		dict = m.Get(dictV)
	}
	b.insert(dict, b.Symbol(selector), method)
}

func (b *Bootstrap) insert(dict *Object, sel, method Value) {
	m := b.Mem
	capacity := dict.PointerCount() - MethodDictSelectorStart
	arrV, _ := dict.Fetch(MethodDictArray)
	arr := m.Get(arrV)
	mask := capacity - 1
	idx := m.HashOf(sel) & mask
	for {
		key, _ := dict.Fetch(MethodDictSelectorStart + idx)
		if key == m.nilObj || key == sel {
			if key == m.nilObj {
				tally, _ := dict.Fetch(MethodDictTally)
				dict.Store(MethodDictTally, FromSmallInt(tally.SmallInt()+1))
			}
			dict.Store(MethodDictSelectorStart+idx, sel)
			arr.Store(idx, method)
			return
		}
		idx = (idx + 1) & mask
	}
}

func (b *Bootstrap) growMethodDictionary(old Value, capacity int) Value {
	m := b.Mem
	oldObj := m.Get(old)
	arrV, _ := oldObj.Fetch(MethodDictArray)
	arr := m.Get(arrV)
	dictV := b.newMethodDictionary(capacity)
	dict := m.Get(dictV)
	for i := 0; i < oldObj.PointerCount()-MethodDictSelectorStart; i++ {
		key, _ := oldObj.Fetch(MethodDictSelectorStart + i)
		if key == m.nilObj {
			continue
		}
		method, _ := arr.Fetch(i)
		b.insert(dict, key, method)
	}
	return dictV
}

// ---------------------------------------------------------------------------
// Processes
// ---------------------------------------------------------------------------

// NewContext creates a method context ready to run method with the given
// receiver and arguments.
func (b *Bootstrap) NewContext(method, receiver Value, args ...Value) Value {
	m := b.Mem
	h := m.HeaderOf(method)
	frame := SmallFrameSize
	if h.LargeFrame() {
		frame = LargeFrameSize
	}
	ctx := m.NewPointers(m.Special(SpecialClassMethodContext), FormatFixedIndexable, ContextTempFrameStart+frame)
	obj := m.Get(ctx)
	obj.Store(ContextIP, encodePC(0, h))
	obj.Store(ContextSP, encodeSP(ContextTempFrameStart+h.NumTemps()-1))
	obj.Store(ContextMethod, method)
	obj.Store(ContextReceiver, receiver)
	for i, a := range args {
		obj.Store(ContextTempFrameStart+i, a)
	}
	return ctx
}

// NewProcess creates a suspended process.
func (b *Bootstrap) NewProcess(priority int, ctx Value) Value {
	p := b.Mem.NewPointers(b.classes["Process"], FormatFixed, 4)
	obj := b.Mem.Get(p)
	obj.Store(ProcessSuspendedContext, ctx)
	obj.Store(ProcessPriority, FromSmallInt(int64(priority)))
	return p
}

// Scheduler returns the ProcessorScheduler.
func (b *Bootstrap) Scheduler() Value {
	assoc := b.Mem.Get(b.Mem.Special(SpecialSchedulerAssociation))
	v, _ := assoc.Fetch(AssociationValue)
	return v
}

// SetActiveProcess makes p the process that runs when the image starts.
func (b *Bootstrap) SetActiveProcess(p Value) {
	b.Mem.Get(b.Scheduler()).Store(SchedulerActiveProcess, p)
}

// Start creates a user-priority process running method on receiver and
// makes it active.
func (b *Bootstrap) Start(method, receiver Value, args ...Value) Value {
	p := b.NewProcess(UserSchedulingPriority, b.NewContext(method, receiver, args...))
	b.SetActiveProcess(p)
	return p
}

// NewSemaphore creates a Semaphore with no excess signals.
func (b *Bootstrap) NewSemaphore() Value {
	s := b.Mem.NewPointers(b.classes["Semaphore"], FormatFixed, 3)
	b.Mem.Get(s).Store(SemaphoreExcess, FromSmallInt(0))
	return s
}

// HelloMethod returns a method that computes 3 + 4 and quits.
func (b *Bootstrap) HelloMethod() Value {
	mb := NewMethodBuilder(0)
	three := mb.AddLiteral(FromSmallInt(3))
	four := mb.AddLiteral(FromSmallInt(4))
	quit := mb.AddLiteral(b.Symbol("quit"))
	mb.Emit(
		BytecodePushLiteralConstant+byte(three),
		BytecodePushLiteralConstant+byte(four),
		BytecodeSpecialAdd,
		BytecodePop,
		BytecodePushSelf,
		BytecodeSendLiteral0+byte(quit),
		BytecodePop,
		BytecodeReturnSelf,
	)
	return mb.Build(b.Mem)
}
