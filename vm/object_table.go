package vm

import (
	"time"
)

// ---------------------------------------------------------------------------
// Memory: the object table and object model operations
// ---------------------------------------------------------------------------

// Default table sizing.
const (
	DefaultTableCapacity = 120000
	DefaultTableGrowth   = 10000
	reclaimRounds        = 5

	// DefaultMaxObjectWords bounds a single allocation requested by the
	// image, 64 MiB of body.
	DefaultMaxObjectWords = 1 << 24
)

// MemoryOptions configures a Memory.
type MemoryOptions struct {
	InitialCapacity int
	Growth          int

	// ReclaimAfter triggers a reclamation at the next safepoint once this
	// many objects have been allocated since the last one. Zero disables it.
	ReclaimAfter int

	// MaxObjectWords is the largest body Instantiate will create.
	MaxObjectWords int
}

// RootProvider supplies the references the interpreter holds outside the
// object graph, and drops cached identities on request.
type RootProvider interface {
	EnumerateRoots(visit func(Value))
	FlushCaches()
}

// Memory owns every object. Handles are stable for the lifetime of an
// object; enumeration follows creation order.
type Memory struct {
	slots    []*Object // indexed by Oop; slot 0 is unused
	free     []Oop     // released handles, reused LIFO
	order    []Oop     // live handles in creation order
	capacity int
	growth   int

	lastIndex int // indexOf hint into order
	lastHash  uint32

	specialObjects Value
	nilObj         Value
	trueObj        Value
	falseObj       Value

	// young holds objects created since the last safepoint; they are
	// treated as roots because Go code may still hold their handles.
	young        []Oop
	roots        RootProvider
	reclaimAfter int
	allocated    int
	maxWords     int

	reclaimCount uint64
	lastStats    *ReclaimStats

	names *Names
}

// NewMemory creates an empty object memory.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.InitialCapacity <= 0 {
		opts.InitialCapacity = DefaultTableCapacity
	}
	if opts.Growth <= 0 {
		opts.Growth = DefaultTableGrowth
	}
	if opts.MaxObjectWords <= 0 {
		opts.MaxObjectWords = DefaultMaxObjectWords
	}
	m := &Memory{
		slots:        make([]*Object, 1, 1024),
		capacity:     opts.InitialCapacity,
		growth:       opts.Growth,
		reclaimAfter: opts.ReclaimAfter,
		maxWords:     opts.MaxObjectWords,
		lastHash:     uint32(time.Now().UnixNano()),
	}
	m.names = newNames(m)
	return m
}

// SetRoots installs the interpreter's root provider.
func (m *Memory) SetRoots(r RootProvider) {
	m.roots = r
}

// Names returns the memory's class and symbol name cache.
func (m *Memory) Names() *Names {
	return m.names
}

// ---------------------------------------------------------------------------
// Registration and lookup
// ---------------------------------------------------------------------------

// Register adds obj to the table and returns its reference. When the table
// is full it first reclaims and then grows.
func (m *Memory) Register(obj *Object) Value {
	if m.Count() >= m.capacity {
		m.makeRoom()
	}
	var oop Oop
	if n := len(m.free); n > 0 {
		oop = m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[oop] = obj
	} else {
		oop = Oop(len(m.slots))
		m.slots = append(m.slots, obj)
	}
	m.order = append(m.order, oop)
	m.young = append(m.young, oop)
	m.allocated++
	return FromOop(oop)
}

// Get returns the object behind v, or nil if v is not a live object.
func (m *Memory) Get(v Value) *Object {
	if !v.IsObject() {
		return nil
	}
	oop := v.Oop()
	if int(oop) >= len(m.slots) {
		return nil
	}
	return m.slots[oop]
}

// Count returns the number of live entries.
func (m *Memory) Count() int {
	return len(m.order)
}

// Capacity returns the current table capacity.
func (m *Memory) Capacity() int {
	return m.capacity
}

// FreeSlots returns how many objects can be created before the table is full.
func (m *Memory) FreeSlots() int {
	return m.capacity - m.Count()
}

// IndexOf returns the enumeration position of v, or -1.
func (m *Memory) IndexOf(v Value) int {
	if !v.IsObject() {
		return -1
	}
	oop := v.Oop()
	if m.lastIndex < len(m.order) && m.order[m.lastIndex] == oop {
		return m.lastIndex
	}
	if next := m.lastIndex + 1; next < len(m.order) && m.order[next] == oop {
		m.lastIndex = next
		return next
	}
	for i, o := range m.order {
		if o == oop {
			m.lastIndex = i
			return i
		}
	}
	return -1
}

// At returns the object reference at enumeration position i.
func (m *Memory) At(i int) Value {
	if i < 0 || i >= len(m.order) {
		return Invalid
	}
	return FromOop(m.order[i])
}

// Each calls fn for every live object in creation order until fn returns false.
func (m *Memory) Each(fn func(v Value, obj *Object) bool) {
	for _, oop := range m.order {
		if !fn(FromOop(oop), m.slots[oop]) {
			return
		}
	}
}

// NextInstance scans forward from enumeration position start for an
// instance of class. A class of Invalid matches any object. Returns
// Invalid when none is found.
func (m *Memory) NextInstance(start int, class Value) Value {
	if start < 0 {
		start = 0
	}
	for i := start; i < len(m.order); i++ {
		obj := m.slots[m.order[i]]
		if class == Invalid || obj.Class == class {
			m.lastIndex = i
			return FromOop(m.order[i])
		}
	}
	return Invalid
}

// InstanceAfter returns the next instance of the same class as v.
func (m *Memory) InstanceAfter(v Value) Value {
	obj := m.Get(v)
	if obj == nil {
		return Invalid
	}
	idx := m.IndexOf(v)
	if idx < 0 {
		return Invalid
	}
	return m.NextInstance(idx+1, obj.Class)
}

// ObjectAfter returns the object created after v, or Invalid.
func (m *Memory) ObjectAfter(v Value) Value {
	idx := m.IndexOf(v)
	if idx < 0 {
		return Invalid
	}
	return m.At(idx + 1)
}

// ---------------------------------------------------------------------------
// Become
// ---------------------------------------------------------------------------

// BulkBecome replaces every reference to from[i] with to[i] across all live
// objects, and the reverse when twoWay is set. It validates first and
// mutates nothing on failure.
func (m *Memory) BulkBecome(from, to []Value, twoWay bool) bool {
	if len(from) != len(to) {
		return false
	}
	mapping := make(map[Value]Value, len(from)*2)
	for i := range from {
		if !from[i].IsObject() || !to[i].IsObject() {
			return false
		}
		if m.Get(from[i]) == nil || m.Get(to[i]) == nil {
			return false
		}
		if _, dup := mapping[from[i]]; dup {
			return false
		}
		mapping[from[i]] = to[i]
	}
	if twoWay {
		for i := range to {
			if _, dup := mapping[to[i]]; dup {
				return false
			}
			mapping[to[i]] = from[i]
		}
	}

	for _, oop := range m.order {
		obj := m.slots[oop]
		if r, ok := mapping[obj.Class]; ok {
			obj.Class = r
		}
		if slots, ok := obj.Pointers(); ok {
			for i, v := range slots {
				if r, ok := mapping[v]; ok {
					slots[i] = r
				}
			}
		}
	}
	if r, ok := mapping[m.specialObjects]; ok {
		m.specialObjects = r
	}
	m.refreshSpecials()
	m.names.Purge()
	if m.roots != nil {
		m.roots.FlushCaches()
	}
	return true
}

// ---------------------------------------------------------------------------
// Special objects
// ---------------------------------------------------------------------------

// SetSpecialObjects installs the special objects array.
func (m *Memory) SetSpecialObjects(v Value) {
	m.specialObjects = v
	m.refreshSpecials()
}

// SpecialObjects returns the special objects array.
func (m *Memory) SpecialObjects() Value {
	return m.specialObjects
}

func (m *Memory) refreshSpecials() {
	m.nilObj = m.Special(SpecialNil)
	m.trueObj = m.Special(SpecialTrue)
	m.falseObj = m.Special(SpecialFalse)
}

// Special returns slot i of the special objects array.
func (m *Memory) Special(i int) Value {
	arr := m.Get(m.specialObjects)
	if arr == nil {
		return Invalid
	}
	v, _ := arr.Fetch(i)
	return v
}

// SetSpecial replaces slot i of the special objects array.
func (m *Memory) SetSpecial(i int, v Value) bool {
	arr := m.Get(m.specialObjects)
	if arr == nil || !arr.Store(i, v) {
		return false
	}
	if i <= SpecialTrue {
		m.refreshSpecials()
	}
	return true
}

// Nil, True and False return the image's singletons.
func (m *Memory) Nil() Value   { return m.nilObj }
func (m *Memory) True() Value  { return m.trueObj }
func (m *Memory) False() Value { return m.falseObj }

// Bool converts a Go bool to the image's true or false.
func (m *Memory) Bool(b bool) Value {
	if b {
		return m.trueObj
	}
	return m.falseObj
}

// ClassOf returns the class of any value.
func (m *Memory) ClassOf(v Value) Value {
	if v.IsSmallInt() {
		return m.Special(SpecialClassInteger)
	}
	if obj := m.Get(v); obj != nil {
		return obj.Class
	}
	return m.nilObj
}

// HashOf returns the identity hash of an object, or the value of a
// SmallInteger.
func (m *Memory) HashOf(v Value) int {
	if v.IsSmallInt() {
		return int(v.SmallInt())
	}
	if obj := m.Get(v); obj != nil {
		return int(obj.Hash)
	}
	return 0
}

func (m *Memory) newHash() uint16 {
	m.lastHash = 13849 + 27181*m.lastHash
	return uint16(m.lastHash & 0xFFF)
}

// SetLastHash seeds the identity hash generator.
func (m *Memory) SetLastHash(h uint32) {
	m.lastHash = h
}

// LastHash returns the identity hash generator state.
func (m *Memory) LastHash() uint32 {
	return m.lastHash
}
