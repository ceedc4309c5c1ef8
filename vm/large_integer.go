package vm

// ---------------------------------------------------------------------------
// LargeInteger conversion
// ---------------------------------------------------------------------------

// Pos32BitInt returns n as a SmallInteger when it fits, otherwise as a
// four-byte LargePositiveInteger.
func (m *Memory) Pos32BitInt(n uint32) Value {
	if int64(n) <= MaxSmallInt {
		return FromSmallInt(int64(n))
	}
	b := []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
	return m.NewBytes(m.Special(SpecialClassLargePositive), b)
}

// Pos32BitValue decodes a non-negative SmallInteger or a LargePositiveInteger
// of at most four bytes.
func (m *Memory) Pos32BitValue(v Value) (uint32, bool) {
	if v.IsSmallInt() {
		n := v.SmallInt()
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	}
	obj := m.Get(v)
	if obj == nil || obj.Class != m.Special(SpecialClassLargePositive) {
		return 0, false
	}
	b, ok := obj.Bytes()
	if !ok || len(b) > 4 {
		return 0, false
	}
	var n uint32
	for i := len(b) - 1; i >= 0; i-- {
		n = n<<8 | uint32(b[i])
	}
	return n, true
}

// Int64Of decodes a SmallInteger or a Large(Positive|Negative)Integer that
// fits in an int64.
func (m *Memory) Int64Of(v Value) (int64, bool) {
	if v.IsSmallInt() {
		return v.SmallInt(), true
	}
	obj := m.Get(v)
	if obj == nil {
		return 0, false
	}
	negative := false
	switch obj.Class {
	case m.Special(SpecialClassLargePositive):
	case m.Special(SpecialClassLargeNegative):
		negative = true
	default:
		return 0, false
	}
	b, ok := obj.Bytes()
	if !ok {
		return 0, false
	}
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	if len(b) > 8 {
		return 0, false
	}
	var mag uint64
	for i := len(b) - 1; i >= 0; i-- {
		mag = mag<<8 | uint64(b[i])
	}
	if negative {
		if mag > 1<<63 {
			return 0, false
		}
		return -int64(mag), true
	}
	if mag > 1<<63-1 {
		return 0, false
	}
	return int64(mag), true
}

// Int64Value returns n as a SmallInteger when it fits, otherwise as a
// normalized LargeInteger.
func (m *Memory) Int64Value(n int64) Value {
	if v, ok := TryFromSmallInt(n); ok {
		return v
	}
	class := m.Special(SpecialClassLargePositive)
	mag := uint64(n)
	if n < 0 {
		class = m.Special(SpecialClassLargeNegative)
		mag = uint64(-n)
	}
	var b []byte
	for mag != 0 {
		b = append(b, byte(mag))
		mag >>= 8
	}
	return m.NewBytes(class, b)
}
