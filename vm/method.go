package vm

// ---------------------------------------------------------------------------
// MethodHeader: the SmallInteger in slot 0 of every compiled method
// ---------------------------------------------------------------------------

// MethodHeader is the decoded header word of a compiled method.
type MethodHeader int64

// NumLiterals returns the number of literals after the header.
func (h MethodHeader) NumLiterals() int { return int(h>>9) & 0xFF }

// NumArgs returns the argument count.
func (h MethodHeader) NumArgs() int { return int(h>>24) & 0xF }

// NumTemps returns the number of temporaries, arguments included.
func (h MethodHeader) NumTemps() int { return int(h>>18) & 0x3F }

// LargeFrame reports whether activations need a large context.
func (h MethodHeader) LargeFrame() bool { return h&0x20000 != 0 }

// PrimitiveIndex returns the primitive number, 0 for none.
func (h MethodHeader) PrimitiveIndex() int {
	pb := int(h) & 0x300001FF
	if pb > 0x1FF {
		return (pb & 0x1FF) + (pb >> 19)
	}
	return pb
}

// EncodeMethodHeader builds a header word.
func EncodeMethodHeader(numArgs, numTemps, numLits, primitive int, largeFrame bool) int64 {
	h := int64(numArgs&0xF)<<24 | int64(numTemps&0x3F)<<18 | int64(numLits&0xFF)<<9
	h |= int64(primitive & 0x1FF)
	h |= int64(primitive&0x600) << 19
	if largeFrame {
		h |= 0x20000
	}
	return h
}

// HeaderOf returns the header of a compiled method.
func (m *Memory) HeaderOf(method Value) MethodHeader {
	obj := m.Get(method)
	if obj == nil {
		return 0
	}
	body, ok := obj.Body.(*MethodBody)
	if !ok || len(body.Literals) == 0 || !body.Literals[0].IsSmallInt() {
		return 0
	}
	return MethodHeader(body.Literals[0].SmallInt())
}

// Literal returns literal i (zero-based, after the header) of method.
func (m *Memory) Literal(method Value, i int) Value {
	obj := m.Get(method)
	if obj == nil {
		return m.nilObj
	}
	v, ok := obj.Fetch(i + 1)
	if !ok {
		return m.nilObj
	}
	return v
}

// ---------------------------------------------------------------------------
// MethodBuilder: helper for constructing compiled methods
// ---------------------------------------------------------------------------

// MethodBuilder assembles a compiled method.
type MethodBuilder struct {
	numArgs    int
	numTemps   int
	primitive  int
	largeFrame bool
	literals   []Value
	code       []byte
}

// NewMethodBuilder creates a builder for a method taking numArgs arguments.
func NewMethodBuilder(numArgs int) *MethodBuilder {
	return &MethodBuilder{numArgs: numArgs, numTemps: numArgs}
}

// SetNumTemps sets the total number of temporaries, arguments included.
func (b *MethodBuilder) SetNumTemps(n int) *MethodBuilder {
	b.numTemps = n
	return b
}

// SetPrimitive sets the primitive index.
func (b *MethodBuilder) SetPrimitive(n int) *MethodBuilder {
	b.primitive = n
	return b
}

// SetLargeFrame requests large contexts for activations.
func (b *MethodBuilder) SetLargeFrame() *MethodBuilder {
	b.largeFrame = true
	return b
}

// AddLiteral adds a literal and returns its index.
func (b *MethodBuilder) AddLiteral(v Value) int {
	b.literals = append(b.literals, v)
	return len(b.literals) - 1
}

// Emit appends raw bytecodes.
func (b *MethodBuilder) Emit(code ...byte) *MethodBuilder {
	b.code = append(b.code, code...)
	return b
}

// Len returns the number of bytecodes emitted so far.
func (b *MethodBuilder) Len() int {
	return len(b.code)
}

// Build creates the method in m.
func (b *MethodBuilder) Build(m *Memory) Value {
	h := EncodeMethodHeader(b.numArgs, b.numTemps, len(b.literals), b.primitive, b.largeFrame)
	return m.NewMethod(h, b.literals, b.code)
}
