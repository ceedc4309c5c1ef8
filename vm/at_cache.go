package vm

// ---------------------------------------------------------------------------
// AtCache: direct-mapped cache of indexable layouts for at: and at:put:
// ---------------------------------------------------------------------------

// atKind selects how an indexable object is accessed.
type atKind uint8

const (
	atPointers atKind = iota
	atWords
	atBytes
	atMethodBytes
	atFloat
)

// atInfo describes the indexable part of one object.
type atInfo struct {
	array        Value
	kind         atKind
	size         int
	ivarOffset   int
	convertChars bool
}

// AtCache remembers atInfo for recently accessed receivers, keyed by
// identity hash.
type AtCache struct {
	entries []atInfo
	mask    int
}

// NewAtCache creates a cache; size is rounded up to a power of two.
func NewAtCache(size int) *AtCache {
	n := 1
	for n < size {
		n <<= 1
	}
	return &AtCache{entries: make([]atInfo, n), mask: n - 1}
}

func (c *AtCache) lookup(array Value, hash int) (*atInfo, bool) {
	e := &c.entries[hash&c.mask]
	if e.array == array && array != Invalid {
		return e, true
	}
	return nil, false
}

func (c *AtCache) store(info atInfo, hash int) {
	c.entries[hash&c.mask] = info
}

// Flush clears every entry.
func (c *AtCache) Flush() {
	for i := range c.entries {
		c.entries[i] = atInfo{}
	}
}
