package vm

import (
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// namesCacheSize bounds the number of decoded names kept around.
const namesCacheSize = 4096

// Names decodes class names and symbols for diagnostics and reports.
// Decoded strings are cached by handle. Entries are dropped when a bytes
// object is written and the whole cache is purged whenever handles may
// have been reused or rebound.
type Names struct {
	mem   *Memory
	cache *lru.Cache
}

func newNames(m *Memory) *Names {
	cache, err := lru.New(namesCacheSize)
	if err != nil {
		panic(err)
	}
	return &Names{mem: m, cache: cache}
}

// Purge drops every cached name.
func (n *Names) Purge() {
	n.cache.Purge()
}

// Forget drops the cached text of v after its bytes change.
func (n *Names) Forget(v Value) {
	n.cache.Remove(v)
}

// StringOf returns the text of a bytes object, converted from MacRoman.
func (n *Names) StringOf(v Value) (string, bool) {
	if cached, ok := n.cache.Get(v); ok {
		return cached.(string), true
	}
	obj := n.mem.Get(v)
	if obj == nil {
		return "", false
	}
	b, ok := obj.Body.(*BytesBody)
	if !ok {
		return "", false
	}
	s, err := charmap.Macintosh.NewDecoder().Bytes(b.Bytes)
	if err != nil {
		return "", false
	}
	n.cache.Add(v, string(s))
	return string(s), true
}

// ClassName returns the name of a class, or "X class" for a metaclass.
func (n *Names) ClassName(class Value) string {
	obj := n.mem.Get(class)
	if obj == nil {
		return "?"
	}
	if name, ok := obj.Fetch(ClassName); ok {
		if s, ok := n.StringOf(name); ok {
			return s
		}
	}
	if this, ok := obj.Fetch(MetaclassThis); ok && this != class {
		if thisObj := n.mem.Get(this); thisObj != nil {
			if name, ok := thisObj.Fetch(ClassName); ok {
				if s, ok := n.StringOf(name); ok {
					return s + " class"
				}
			}
		}
	}
	return "a class"
}

// Describe returns a short printable description of any value.
func (n *Names) Describe(v Value) string {
	if v.IsSmallInt() {
		return describe(v)
	}
	obj := n.mem.Get(v)
	if obj == nil {
		return "invalid " + describe(v)
	}
	switch obj.Class {
	case n.mem.Special(SpecialClassString):
		if s, ok := n.StringOf(v); ok {
			return "'" + s + "'"
		}
	case n.mem.ClassOf(n.mem.Special(SpecialSelectorDoesNotUnderstand)):
		if s, ok := n.StringOf(v); ok {
			return "#" + s
		}
	}
	return "a " + n.ClassName(obj.Class)
}

// encodeMacRoman converts s to the image's MacRoman encoding. Characters
// without a MacRoman form become the substitute byte 0x1A.
func encodeMacRoman(s string) []byte {
	b, err := encoding.ReplaceUnsupported(charmap.Macintosh.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}
