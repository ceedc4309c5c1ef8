package vm

// Global method cache
//
// Lookups are keyed by selector hash xor class hash. A key may live in any
// of four consecutive entries; on a miss the victim among them is chosen
// by a rotating counter so the same hot entry is not evicted every time.

// methodCacheProbes is the number of entries examined per key.
const methodCacheProbes = 4

// MethodCacheEntry holds a single cached lookup result.
type MethodCacheEntry struct {
	Selector  Value
	Class     Value
	Method    Value
	Primitive int
}

// MethodCache maps (selector, class) to the method found by lookup.
type MethodCache struct {
	entries   []MethodCacheEntry
	mask      int
	randomish int

	// Statistics for profiling
	Hits   uint64
	Misses uint64
}

// NewMethodCache creates a cache; size is rounded up to a power of two.
func NewMethodCache(size int) *MethodCache {
	n := methodCacheProbes
	for n < size {
		n <<= 1
	}
	return &MethodCache{entries: make([]MethodCacheEntry, n), mask: n - 1}
}

// Size returns the number of entries.
func (mc *MethodCache) Size() int {
	return len(mc.entries)
}

// Lookup returns the entry for (selector, class), if cached.
func (mc *MethodCache) Lookup(selector, class Value, hash int) (*MethodCacheEntry, bool) {
	for p := 0; p < methodCacheProbes; p++ {
		e := &mc.entries[(hash+p)&mc.mask]
		if e.Selector == selector && e.Class == class {
			mc.Hits++
			return e, true
		}
	}
	mc.Misses++
	return nil, false
}

// Add records a lookup result. An empty entry among the probes is used
// first, otherwise the rotating victim.
func (mc *MethodCache) Add(selector, class Value, hash int, method Value, primitive int) {
	var victim *MethodCacheEntry
	for p := 0; p < methodCacheProbes; p++ {
		e := &mc.entries[(hash+p)&mc.mask]
		if e.Selector == Invalid {
			victim = e
			break
		}
	}
	if victim == nil {
		victim = &mc.entries[(hash+mc.randomish)&mc.mask]
		mc.randomish = (mc.randomish + 1) % methodCacheProbes
	}
	*victim = MethodCacheEntry{Selector: selector, Class: class, Method: method, Primitive: primitive}
}

// Flush clears every entry.
func (mc *MethodCache) Flush() {
	for i := range mc.entries {
		mc.entries[i] = MethodCacheEntry{}
	}
}

// FlushSelector clears the entries for selector only.
func (mc *MethodCache) FlushSelector(selector Value) {
	for i := range mc.entries {
		if mc.entries[i].Selector == selector {
			mc.entries[i] = MethodCacheEntry{}
		}
	}
}

// FlushMethod clears the entries that resolve to method.
func (mc *MethodCache) FlushMethod(method Value) {
	for i := range mc.entries {
		if mc.entries[i].Method == method {
			mc.entries[i] = MethodCacheEntry{}
		}
	}
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (mc *MethodCache) HitRate() float64 {
	total := mc.Hits + mc.Misses
	if total == 0 {
		return 0
	}
	return float64(mc.Hits) * 100 / float64(total)
}
