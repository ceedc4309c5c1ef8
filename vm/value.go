package vm

// Value is a tagged 32-bit object reference.
//
// Encoding scheme (identical to the image word layout):
//   - SmallInteger: low bit 1, 31-bit signed payload in the upper bits
//   - Object: low bit 0, object table handle shifted left by one
//
// The zero Value is never a valid reference; it marks empty cache slots
// and free-list ends.
type Value uint32

// Oop is the stable handle of an object in the object table.
type Oop uint32

// Invalid is the zero Value.
const Invalid Value = 0

// SmallInt range (31-bit signed)
const (
	MaxSmallInt int64 = 0x3FFFFFFF
	MinSmallInt int64 = -0x40000000
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsSmallInt returns true if v represents a small integer.
func (v Value) IsSmallInt() bool {
	return v&1 == 1
}

// IsObject returns true if v refers to a heap object.
func (v Value) IsObject() bool {
	return v&1 == 0 && v != Invalid
}

// ---------------------------------------------------------------------------
// SmallInt operations
// ---------------------------------------------------------------------------

// SmallInt returns v as an int64.
// Panics if v is not a small integer.
func (v Value) SmallInt() int64 {
	if !v.IsSmallInt() {
		panic("Value.SmallInt: not a small integer")
	}
	return int64(int32(v) >> 1)
}

// FromSmallInt creates a Value from an int64.
// Panics if n is outside the SmallInt range.
func FromSmallInt(n int64) Value {
	if n > MaxSmallInt || n < MinSmallInt {
		panic("FromSmallInt: value out of range")
	}
	return Value(uint32(n)<<1 | 1)
}

// TryFromSmallInt creates a Value from an int64, returning false if out of range.
func TryFromSmallInt(n int64) (Value, bool) {
	if n > MaxSmallInt || n < MinSmallInt {
		return Invalid, false
	}
	return Value(uint32(n)<<1 | 1), true
}

// IsSmallIntRange reports whether n fits in a SmallInteger.
func IsSmallIntRange(n int64) bool {
	return n >= MinSmallInt && n <= MaxSmallInt
}

// ---------------------------------------------------------------------------
// Object handles
// ---------------------------------------------------------------------------

// Oop returns the object handle of v.
// Panics if v is not an object reference.
func (v Value) Oop() Oop {
	if !v.IsObject() {
		panic("Value.Oop: not an object")
	}
	return Oop(v >> 1)
}

// FromOop creates an object reference Value.
func FromOop(o Oop) Value {
	return Value(o << 1)
}
