package vm

import "math"

// ---------------------------------------------------------------------------
// Object: a heap object addressed through the object table
// ---------------------------------------------------------------------------

// Object formats.
const (
	FormatEmpty          = 0
	FormatFixed          = 1
	FormatIndexable      = 2
	FormatFixedIndexable = 3
	FormatWeak           = 4
	FormatWords          = 6
	FormatBytes          = 8
	FormatMethod         = 12
)

// Object is the heap representation shared by every non-SmallInteger value.
// The Body variant is fixed by the format family and never changes except
// through become.
type Object struct {
	Class  Value
	Format uint8
	Hash   uint16
	Body   Body
}

// Body is the storage of an object. Exactly one variant applies.
type Body interface {
	isBody()
}

// PointersBody holds object references (formats 0-4, contexts included).
type PointersBody struct {
	Slots []Value
}

// WordsBody holds raw 32-bit words (format 6).
type WordsBody struct {
	Words []uint32
}

// BytesBody holds raw bytes (formats 8-11).
type BytesBody struct {
	Bytes []byte
}

// MethodBody holds a compiled method: header and literal frame, then bytecodes.
type MethodBody struct {
	Literals  []Value
	Bytecodes []byte
}

// FloatBody holds a boxed double (instances of the Float class).
type FloatBody struct {
	Float float64
}

func (*PointersBody) isBody() {}
func (*WordsBody) isBody()    {}
func (*BytesBody) isBody()    {}
func (*MethodBody) isBody()   {}
func (*FloatBody) isBody()    {}

// ---------------------------------------------------------------------------
// Variant access
// ---------------------------------------------------------------------------

// Pointers returns the pointer fields of o. Methods expose their literal
// frame. Raw-data objects return false.
func (o *Object) Pointers() ([]Value, bool) {
	switch b := o.Body.(type) {
	case *PointersBody:
		return b.Slots, true
	case *MethodBody:
		return b.Literals, true
	}
	return nil, false
}

// Bytes returns the raw bytes of a bytes object or a method's bytecodes.
func (o *Object) Bytes() ([]byte, bool) {
	switch b := o.Body.(type) {
	case *BytesBody:
		return b.Bytes, true
	case *MethodBody:
		return b.Bytecodes, true
	}
	return nil, false
}

// Words returns the raw words of a words object.
func (o *Object) Words() ([]uint32, bool) {
	if b, ok := o.Body.(*WordsBody); ok {
		return b.Words, true
	}
	return nil, false
}

// Float returns the value of a boxed float.
func (o *Object) Float() (float64, bool) {
	if b, ok := o.Body.(*FloatBody); ok {
		return b.Float, true
	}
	return 0, false
}

// IsMethod reports whether o is a compiled method.
func (o *Object) IsMethod() bool {
	_, ok := o.Body.(*MethodBody)
	return ok
}

// Fetch returns pointer slot i (zero-based). It reports false for raw
// objects and out-of-range indices.
func (o *Object) Fetch(i int) (Value, bool) {
	slots, ok := o.Pointers()
	if !ok || i < 0 || i >= len(slots) {
		return Invalid, false
	}
	return slots[i], true
}

// Store writes pointer slot i (zero-based).
func (o *Object) Store(i int, v Value) bool {
	slots, ok := o.Pointers()
	if !ok || i < 0 || i >= len(slots) {
		return false
	}
	slots[i] = v
	return true
}

// PointerCount returns the number of pointer slots, zero for raw objects.
func (o *Object) PointerCount() int {
	slots, _ := o.Pointers()
	return len(slots)
}

// ByteAt returns byte i (zero-based) of a bytes object.
func (o *Object) ByteAt(i int) (byte, bool) {
	b, ok := o.Bytes()
	if !ok || i < 0 || i >= len(b) {
		return 0, false
	}
	return b[i], true
}

// ByteAtPut writes byte i (zero-based) of a bytes object.
func (o *Object) ByteAtPut(i int, v byte) bool {
	b, ok := o.Bytes()
	if !ok || i < 0 || i >= len(b) {
		return false
	}
	b[i] = v
	return true
}

// WordAt returns word i (zero-based) of a words object.
func (o *Object) WordAt(i int) (uint32, bool) {
	w, ok := o.Words()
	if !ok || i < 0 || i >= len(w) {
		return 0, false
	}
	return w[i], true
}

// WordAtPut writes word i (zero-based) of a words object.
func (o *Object) WordAtPut(i int, v uint32) bool {
	w, ok := o.Words()
	if !ok || i < 0 || i >= len(w) {
		return false
	}
	w[i] = v
	return true
}

// BodyWords returns the size of the body in 32-bit words, as the image
// format would store it.
func (o *Object) BodyWords() int {
	switch b := o.Body.(type) {
	case *PointersBody:
		return len(b.Slots)
	case *WordsBody:
		return len(b.Words)
	case *BytesBody:
		return (len(b.Bytes) + 3) / 4
	case *MethodBody:
		return len(b.Literals) + (len(b.Bytecodes)+3)/4
	case *FloatBody:
		return 2
	}
	return 0
}

// clone returns a shallow copy of o with its own body storage.
func (o *Object) clone() *Object {
	c := &Object{Class: o.Class, Format: o.Format}
	switch b := o.Body.(type) {
	case *PointersBody:
		c.Body = &PointersBody{Slots: append([]Value(nil), b.Slots...)}
	case *WordsBody:
		c.Body = &WordsBody{Words: append([]uint32(nil), b.Words...)}
	case *BytesBody:
		c.Body = &BytesBody{Bytes: append([]byte(nil), b.Bytes...)}
	case *MethodBody:
		c.Body = &MethodBody{
			Literals:  append([]Value(nil), b.Literals...),
			Bytecodes: append([]byte(nil), b.Bytecodes...),
		}
	case *FloatBody:
		c.Body = &FloatBody{Float: b.Float}
	}
	return c
}

// floatWords splits a double into its high and low words.
func floatWords(f float64) (hi, lo uint32) {
	bits := math.Float64bits(f)
	return uint32(bits >> 32), uint32(bits)
}

func floatFromWords(hi, lo uint32) float64 {
	return math.Float64frombits(uint64(hi)<<32 | uint64(lo))
}
