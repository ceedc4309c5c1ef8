package vm

import (
	"fmt"
	"strings"
)

// Inspector provides debugging inspection of object memory. It can
// recursively inspect objects and their instance variables, providing a
// structured view of any value.
type Inspector struct {
	mem *Memory
}

// InspectionResult contains structured information about an inspected value.
type InspectionResult struct {
	Type      string // SmallInteger, Float, String, Symbol, Class, Object, Words, Bytes, CompiledMethod, Nil, True, False, Invalid
	Value     string
	ClassName string
	Hash      int
	InstVars  []InstVarInfo
	Size      int                 // indexable size
	Elements  []*InspectionResult // preview of indexable elements
}

// InstVarInfo contains information about a single instance variable.
type InstVarInfo struct {
	Name  string
	Value *InspectionResult
}

// MaxElementPreview is the maximum number of indexable elements shown.
const MaxElementPreview = 10

// DefaultMaxDepth is the default recursion depth for inspection.
const DefaultMaxDepth = 2

// NewInspector creates an inspector over mem.
func NewInspector(mem *Memory) *Inspector {
	return &Inspector{mem: mem}
}

// Inspect inspects a value with the default maximum depth.
func (i *Inspector) Inspect(v Value) *InspectionResult {
	return i.InspectDepth(v, DefaultMaxDepth)
}

// InspectDepth inspects a value with a specified maximum recursion depth.
// When depth reaches 0, nested objects are shown as summaries only.
func (i *Inspector) InspectDepth(v Value, depth int) *InspectionResult {
	m := i.mem
	switch {
	case v.IsSmallInt():
		return &InspectionResult{Type: "SmallInteger", Value: describe(v), ClassName: "SmallInteger"}
	case v == m.Nil():
		return &InspectionResult{Type: "Nil", Value: "nil", ClassName: "UndefinedObject"}
	case v == m.True():
		return &InspectionResult{Type: "True", Value: "true", ClassName: "True"}
	case v == m.False():
		return &InspectionResult{Type: "False", Value: "false", ClassName: "False"}
	}

	obj := m.Get(v)
	if obj == nil {
		return &InspectionResult{Type: "Invalid", Value: "<invalid " + describe(v) + ">"}
	}
	names := m.Names()
	result := &InspectionResult{
		ClassName: names.ClassName(obj.Class),
		Hash:      m.HashOf(v),
	}

	switch b := obj.Body.(type) {
	case *FloatBody:
		result.Type = "Float"
		result.Value = fmt.Sprintf("%g", b.Float)

	case *BytesBody:
		result.Size = len(b.Bytes)
		switch desc := names.Describe(v); {
		case strings.HasPrefix(desc, "'"):
			result.Type = "String"
			result.Value = desc
		case strings.HasPrefix(desc, "#"):
			result.Type = "Symbol"
			result.Value = desc
		default:
			result.Type = "Bytes"
			result.Value = fmt.Sprintf("a %s (%d bytes)", result.ClassName, len(b.Bytes))
		}

	case *WordsBody:
		result.Type = "Words"
		result.Size = len(b.Words)
		result.Value = fmt.Sprintf("a %s (%d words)", result.ClassName, len(b.Words))
		for idx := 0; idx < len(b.Words) && idx < MaxElementPreview; idx++ {
			result.Elements = append(result.Elements, &InspectionResult{
				Type:  "Word",
				Value: fmt.Sprintf("16r%08X", b.Words[idx]),
			})
		}

	case *MethodBody:
		i.inspectMethod(result, v, b, depth)

	case *PointersBody:
		if i.isClass(obj) {
			i.inspectClass(result, v, obj, depth)
		} else {
			i.inspectObject(result, v, obj, b.Slots, depth)
		}
	}
	return result
}

// isClass reports whether obj has the shape of a Behavior named by a
// Symbol.
func (i *Inspector) isClass(obj *Object) bool {
	if obj.Format != FormatFixed {
		return false
	}
	format, ok := obj.Fetch(ClassFormat)
	if !ok || !format.IsSmallInt() {
		return false
	}
	name, ok := obj.Fetch(ClassName)
	if !ok {
		return false
	}
	return i.mem.ClassOf(name) == i.mem.ClassOf(i.mem.Special(SpecialSelectorDoesNotUnderstand))
}

// inspectObject handles pointer objects: named slots first, then a preview
// of the indexable part.
func (i *Inspector) inspectObject(result *InspectionResult, v Value, obj *Object, slots []Value, depth int) {
	result.Type = "Object"
	result.Value = "a " + result.ClassName
	if depth <= 0 {
		return
	}

	named := i.mem.InstSize(v)
	ivars := i.instVarNames(obj.Class)
	for idx := 0; idx < named && idx < len(slots); idx++ {
		name := fmt.Sprintf("slot%d", idx)
		if idx < len(ivars) {
			name = ivars[idx]
		}
		result.InstVars = append(result.InstVars, InstVarInfo{
			Name:  name,
			Value: i.InspectDepth(slots[idx], depth-1),
		})
	}

	if named < len(slots) {
		result.Size = len(slots) - named
		for idx := named; idx < len(slots) && idx-named < MaxElementPreview; idx++ {
			result.Elements = append(result.Elements, i.InspectDepth(slots[idx], depth-1))
		}
	}
}

// inspectClass handles class objects.
func (i *Inspector) inspectClass(result *InspectionResult, v Value, obj *Object, depth int) {
	result.Type = "Class"
	result.Value = i.mem.Names().ClassName(v)
	if depth <= 0 {
		return
	}

	super, _ := obj.Fetch(ClassSuperclass)
	result.InstVars = append(result.InstVars, InstVarInfo{
		Name:  "superclass",
		Value: i.InspectDepth(super, 0),
	})

	ivars := i.instVarNames(v)
	result.InstVars = append(result.InstVars, InstVarInfo{
		Name: "instanceVariables",
		Value: &InspectionResult{
			Type:  "Array",
			Value: fmt.Sprintf("#(%s)", strings.Join(ivars, " ")),
			Size:  len(ivars),
		},
	})

	if spec, ok := i.mem.SpecOf(v); ok {
		result.InstVars = append(result.InstVars, InstVarInfo{
			Name:  "format",
			Value: &InspectionResult{Type: "SmallInteger", Value: fmt.Sprintf("%d (instSize %d)", spec.Format, spec.InstSize)},
		})
	}

	methodCount := 0
	if dict := i.mem.Get(mustFetch(obj, ClassMethodDict)); dict != nil {
		if tally, ok := dict.Fetch(MethodDictTally); ok && tally.IsSmallInt() {
			methodCount = int(tally.SmallInt())
		}
	}
	result.InstVars = append(result.InstVars, InstVarInfo{
		Name:  "methodCount",
		Value: &InspectionResult{Type: "SmallInteger", Value: fmt.Sprintf("%d", methodCount)},
	})
}

// inspectMethod handles compiled methods: the decoded header and the
// literal frame.
func (i *Inspector) inspectMethod(result *InspectionResult, v Value, b *MethodBody, depth int) {
	h := i.mem.HeaderOf(v)
	result.Type = "CompiledMethod"
	result.Size = len(b.Bytecodes)
	result.Value = fmt.Sprintf("a CompiledMethod (%d args, %d temps, %d bytecodes)",
		h.NumArgs(), h.NumTemps(), len(b.Bytecodes))
	if prim := h.PrimitiveIndex(); prim > 0 {
		result.Value += fmt.Sprintf(" <primitive: %d>", prim)
	}
	if depth <= 0 {
		return
	}
	// Literal 0 is the header.
	for idx := 1; idx < len(b.Literals); idx++ {
		result.InstVars = append(result.InstVars, InstVarInfo{
			Name:  fmt.Sprintf("literal%d", idx),
			Value: i.InspectDepth(b.Literals[idx], depth-1),
		})
	}
}

// instVarNames collects the instance variable names of class and its
// superclasses, superclass names first. Classes without names contribute
// nothing.
func (i *Inspector) instVarNames(class Value) []string {
	var chain []*Object
	for c, n := class, 0; n < 1000; n++ {
		obj := i.mem.Get(c)
		if obj == nil || c == i.mem.Nil() {
			break
		}
		chain = append(chain, obj)
		c = mustFetch(obj, ClassSuperclass)
	}

	names := i.mem.Names()
	var vars []string
	for idx := len(chain) - 1; idx >= 0; idx-- {
		arr := i.mem.Get(mustFetch(chain[idx], ClassInstVars))
		if arr == nil {
			continue
		}
		elems, ok := arr.Pointers()
		if !ok {
			continue
		}
		for _, e := range elems {
			if s, ok := names.StringOf(e); ok {
				vars = append(vars, s)
			}
		}
	}
	return vars
}

// mustFetch returns slot i of obj, or Invalid.
func mustFetch(obj *Object, i int) Value {
	v, _ := obj.Fetch(i)
	return v
}

// String returns a pretty-printed representation of the inspection result.
func (r *InspectionResult) String() string {
	return r.stringWithIndent(0)
}

func (r *InspectionResult) stringWithIndent(indent int) string {
	var sb strings.Builder
	prefix := strings.Repeat("  ", indent)

	sb.WriteString(prefix)
	sb.WriteString(r.Type)
	sb.WriteString(": ")
	sb.WriteString(r.Value)
	sb.WriteString("\n")

	if r.ClassName != "" && r.ClassName != r.Type {
		sb.WriteString(prefix)
		sb.WriteString("  class: ")
		sb.WriteString(r.ClassName)
		sb.WriteString("\n")
	}

	if len(r.InstVars) > 0 {
		sb.WriteString(prefix)
		sb.WriteString("  instance variables:\n")
		for _, iv := range r.InstVars {
			sb.WriteString(prefix)
			sb.WriteString("    ")
			sb.WriteString(iv.Name)
			sb.WriteString(": ")
			if iv.Value != nil {
				sb.WriteString(iv.Value.Value)
			} else {
				sb.WriteString("<nil>")
			}
			sb.WriteString("\n")
		}
	}

	if len(r.Elements) > 0 {
		sb.WriteString(prefix)
		sb.WriteString(fmt.Sprintf("  elements (showing %d of %d):\n", len(r.Elements), r.Size))
		for idx, elem := range r.Elements {
			sb.WriteString(prefix)
			sb.WriteString(fmt.Sprintf("    [%d]: %s\n", idx+1, elem.Value))
		}
	}

	return sb.String()
}
