package vm

// ---------------------------------------------------------------------------
// Context register encoding
// ---------------------------------------------------------------------------

// The interpreter keeps a zero-based index of the next bytecode to fetch.
// Contexts store the one-based byte index within the whole method object,
// literal frame included.

func encodePC(pc int, h MethodHeader) Value {
	return FromSmallInt(int64(pc + (h.NumLiterals()+1)*4 + 1))
}

func decodePC(ip Value, h MethodHeader) int {
	return int(ip.SmallInt()) - (h.NumLiterals()+1)*4 - 1
}

// The interpreter keeps the absolute slot index of the stack top. Contexts
// store the number of temporaries and stack entries above the header.

func encodeSP(sp int) Value {
	return FromSmallInt(int64(sp - (ContextTempFrameStart - 1)))
}

func decodeSP(sp Value) int {
	return int(sp.SmallInt()) + ContextTempFrameStart - 1
}

// ---------------------------------------------------------------------------
// Context allocation and recycling
// ---------------------------------------------------------------------------

// contextPool threads recycled method contexts through their sender slot.
type contextPool struct {
	small Value
	large Value
}

func (p *contextPool) reset() {
	p.small = Invalid
	p.large = Invalid
}

// newContext returns a nil-filled method context, preferring a recycled one.
func (in *Interpreter) newContext(large bool) (Value, *Object) {
	head := &in.pool.small
	frame := SmallFrameSize
	if large {
		head = &in.pool.large
		frame = LargeFrameSize
	}
	if *head != Invalid {
		ctx := *head
		obj := in.mem.Get(ctx)
		slots := obj.Body.(*PointersBody).Slots
		*head = slots[ContextSender]
		for i := range slots {
			slots[i] = in.mem.nilObj
		}
		in.stats.ContextsRecycled++
		return ctx, obj
	}
	ctx := in.mem.NewPointers(in.mem.Special(SpecialClassMethodContext), FormatFixedIndexable, ContextTempFrameStart+frame)
	return ctx, in.mem.Get(ctx)
}

// recycleContext puts a returned method context on its free list. Only
// contexts of exactly the small or large size qualify.
func (in *Interpreter) recycleContext(ctx Value) {
	obj := in.mem.Get(ctx)
	if obj == nil || obj.Class != in.mem.Special(SpecialClassMethodContext) {
		return
	}
	switch obj.PointerCount() {
	case ContextTempFrameStart + SmallFrameSize:
		obj.Store(ContextSender, in.pool.small)
		in.pool.small = ctx
	case ContextTempFrameStart + LargeFrameSize:
		obj.Store(ContextSender, in.pool.large)
		in.pool.large = ctx
	}
}

// isContext reports whether v is a method or block context.
func (in *Interpreter) isContext(v Value) bool {
	class := in.mem.ClassOf(v)
	return class == in.mem.Special(SpecialClassMethodContext) || class == in.mem.Special(SpecialClassBlockContext)
}

func (in *Interpreter) isBlockContext(v Value) bool {
	return v.IsObject() && in.mem.ClassOf(v) == in.mem.Special(SpecialClassBlockContext)
}
