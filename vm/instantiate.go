package vm

// ---------------------------------------------------------------------------
// Object creation
// ---------------------------------------------------------------------------

// NewPointers creates a pointer object of the given format with n
// nil-filled slots.
func (m *Memory) NewPointers(class Value, format uint8, n int) Value {
	slots := make([]Value, n)
	for i := range slots {
		slots[i] = m.nilObj
	}
	return m.Register(&Object{Class: class, Format: format, Hash: m.newHash(), Body: &PointersBody{Slots: slots}})
}

// NewWords creates a zeroed words object.
func (m *Memory) NewWords(class Value, n int) Value {
	return m.Register(&Object{Class: class, Format: FormatWords, Hash: m.newHash(), Body: &WordsBody{Words: make([]uint32, n)}})
}

// NewBytes creates a bytes object holding a copy of b.
func (m *Memory) NewBytes(class Value, b []byte) Value {
	format := uint8(FormatBytes + (-len(b))&3)
	return m.Register(&Object{Class: class, Format: format, Hash: m.newHash(), Body: &BytesBody{Bytes: append([]byte(nil), b...)}})
}

// NewMethod creates a compiled method whose literal frame starts with header.
func (m *Memory) NewMethod(header int64, literals []Value, bytecodes []byte) Value {
	lits := make([]Value, 1+len(literals))
	lits[0] = FromSmallInt(header)
	copy(lits[1:], literals)
	format := uint8(FormatMethod + (-len(bytecodes))&3)
	return m.Register(&Object{
		Class:  m.Special(SpecialClassCompiledMethod),
		Format: format,
		Hash:   m.newHash(),
		Body:   &MethodBody{Literals: lits, Bytecodes: append([]byte(nil), bytecodes...)},
	})
}

// NewFloat boxes f as an instance of the Float class.
func (m *Memory) NewFloat(f float64) Value {
	return m.Register(&Object{Class: m.Special(SpecialClassFloat), Format: FormatWords, Hash: m.newHash(), Body: &FloatBody{Float: f}})
}

// NewString creates a String from image-encoded bytes.
func (m *Memory) NewString(b []byte) Value {
	return m.NewBytes(m.Special(SpecialClassString), b)
}

// NewArray creates an Array holding elems.
func (m *Memory) NewArray(elems ...Value) Value {
	arr := m.NewPointers(m.Special(SpecialClassArray), FormatIndexable, len(elems))
	copy(m.Get(arr).Body.(*PointersBody).Slots, elems)
	return arr
}

// NewPoint creates a Point.
func (m *Memory) NewPoint(x, y Value) Value {
	p := m.NewPointers(m.Special(SpecialClassPoint), FormatFixed, 2)
	obj := m.Get(p)
	obj.Store(PointX, x)
	obj.Store(PointY, y)
	return p
}

// Clone creates a shallow copy of v with a fresh identity hash.
func (m *Memory) Clone(v Value) Value {
	obj := m.Get(v)
	if obj == nil {
		return v
	}
	c := obj.clone()
	c.Hash = m.newHash()
	return m.Register(c)
}

// ---------------------------------------------------------------------------
// Instantiation from a class format word
// ---------------------------------------------------------------------------

// ClassSpec decodes the instance specification of a class.
type ClassSpec struct {
	InstSize int
	Format   uint8
}

// SpecOf returns the instance specification stored in class.
func (m *Memory) SpecOf(class Value) (ClassSpec, bool) {
	obj := m.Get(class)
	if obj == nil {
		return ClassSpec{}, false
	}
	w, ok := obj.Fetch(ClassFormat)
	if !ok || !w.IsSmallInt() {
		return ClassSpec{}, false
	}
	spec := w.SmallInt()
	return ClassSpec{
		InstSize: int(((spec >> 1) & 0x3F) + ((spec >> 10) & 0xC0) - 1),
		Format:   uint8((spec >> 7) & 0xF),
	}, true
}

// EncodeClassSpec builds the format word for a class whose instances have
// instSize named fields and the given format.
func EncodeClassSpec(instSize int, format uint8) int64 {
	n := int64(instSize + 1)
	return (n&0x3F)<<1 | (n&0xC0)<<10 | int64(format)<<7
}

// Fits reports whether an object with a body of words words may be created.
func (m *Memory) Fits(words int) bool {
	return words >= 0 && words <= m.maxWords
}

// Instantiate creates an instance of class with indexable extra elements.
// It reports false when the class word is malformed, indexable is given
// for a fixed-size class or the body would exceed MaxObjectWords.
func (m *Memory) Instantiate(class Value, indexable int) (Value, bool) {
	spec, ok := m.SpecOf(class)
	if !ok || indexable < 0 {
		return Invalid, false
	}
	words := spec.InstSize + indexable
	if spec.Format >= FormatBytes {
		words = (indexable + 3) / 4
	}
	switch {
	case !m.Fits(words):
		return Invalid, false
	case spec.Format < FormatIndexable && indexable > 0:
		return Invalid, false
	case spec.Format == FormatWords:
		return m.NewWords(class, indexable), true
	case spec.Format >= FormatBytes && spec.Format < FormatMethod:
		return m.NewBytes(class, make([]byte, indexable)), true
	case spec.Format >= FormatMethod:
		return Invalid, false
	}
	return m.NewPointers(class, spec.Format, spec.InstSize+indexable), true
}

// InstSize returns the number of named fields of the object behind v.
func (m *Memory) InstSize(v Value) int {
	obj := m.Get(v)
	if obj == nil {
		return 0
	}
	switch {
	case obj.Format > FormatWeak || obj.Format == FormatIndexable:
		return 0
	case obj.Format < FormatIndexable:
		return obj.PointerCount()
	}
	spec, ok := m.SpecOf(obj.Class)
	if !ok {
		return 0
	}
	return spec.InstSize
}
