package vm

import (
	"strings"
	"testing"
)

func TestInspectImmediates(t *testing.T) {
	ti := newTestImage(t)
	insp := NewInspector(ti.Mem)

	tests := []struct {
		v         Value
		typ, text string
	}{
		{FromSmallInt(-42), "SmallInteger", "-42"},
		{ti.Mem.Nil(), "Nil", "nil"},
		{ti.Mem.True(), "True", "true"},
		{ti.Mem.False(), "False", "false"},
		{ti.Mem.NewFloat(2.5), "Float", "2.5"},
		{ti.Mem.NewString([]byte("hello")), "String", "'hello'"},
		{ti.Symbol("at:put:"), "Symbol", "#at:put:"},
	}
	for _, tt := range tests {
		r := insp.Inspect(tt.v)
		if r.Type != tt.typ || r.Value != tt.text {
			t.Errorf("Inspect(%s) = %s %q, want %s %q", describe(tt.v), r.Type, r.Value, tt.typ, tt.text)
		}
	}
	if r := insp.Inspect(FromOop(999999)); r.Type != "Invalid" {
		t.Errorf("dangling oop type = %s, want Invalid", r.Type)
	}
}

func TestInspectObjectUsesInstVarNames(t *testing.T) {
	ti := newTestImage(t)
	p := ti.Mem.NewPoint(FromSmallInt(3), FromSmallInt(4))

	r := NewInspector(ti.Mem).Inspect(p)
	if r.Type != "Object" || r.ClassName != "Point" || r.Value != "a Point" {
		t.Fatalf("Inspect(3@4) = %+v", r)
	}
	if len(r.InstVars) != 2 {
		t.Fatalf("inst vars = %d, want 2", len(r.InstVars))
	}
	if r.InstVars[0].Name != "x" || r.InstVars[0].Value.Value != "3" {
		t.Errorf("first inst var = %s: %s, want x: 3", r.InstVars[0].Name, r.InstVars[0].Value.Value)
	}
	if r.InstVars[1].Name != "y" || r.InstVars[1].Value.Value != "4" {
		t.Errorf("second inst var = %s: %s, want y: 4", r.InstVars[1].Name, r.InstVars[1].Value.Value)
	}
}

func TestInspectUnnamedSlots(t *testing.T) {
	ti := newTestImage(t)
	foo := ti.DefineClass("Foo", "Object", 2, FormatFixed)
	inst, _ := ti.Mem.Instantiate(foo, 0)

	r := NewInspector(ti.Mem).Inspect(inst)
	if len(r.InstVars) != 2 || r.InstVars[0].Name != "slot0" || r.InstVars[1].Value.Type != "Nil" {
		t.Errorf("inst vars = %+v", r.InstVars)
	}
}

func TestInspectArrayPreview(t *testing.T) {
	ti := newTestImage(t)
	elems := make([]Value, 25)
	for i := range elems {
		elems[i] = FromSmallInt(int64(i))
	}
	r := NewInspector(ti.Mem).Inspect(ti.Mem.NewArray(elems...))
	if r.Size != 25 || len(r.Elements) != MaxElementPreview {
		t.Fatalf("size %d with %d elements, want 25 with %d", r.Size, len(r.Elements), MaxElementPreview)
	}
	if r.Elements[9].Value != "9" {
		t.Errorf("element 10 = %s, want 9", r.Elements[9].Value)
	}
	if !strings.Contains(r.String(), "elements (showing 10 of 25)") {
		t.Errorf("String() = %q", r.String())
	}
}

func TestInspectDepthLimit(t *testing.T) {
	ti := newTestImage(t)
	inner := ti.Mem.NewArray(FromSmallInt(1))
	outer := ti.Mem.NewArray(inner)

	r := NewInspector(ti.Mem).InspectDepth(outer, 1)
	if len(r.Elements) != 1 {
		t.Fatalf("elements = %d, want 1", len(r.Elements))
	}
	if nested := r.Elements[0]; nested.Value != "a Array" || len(nested.Elements) != 0 {
		t.Errorf("nested = %+v, want a summary only", nested)
	}
}

func TestInspectClass(t *testing.T) {
	ti := newTestImage(t)
	ti.AddMethod("Point", "yourself", ti.method(0, nil, BytecodeReturnSelf))

	r := NewInspector(ti.Mem).Inspect(ti.Class("Point"))
	if r.Type != "Class" || r.Value != "Point" {
		t.Fatalf("Inspect(Point) = %s %q", r.Type, r.Value)
	}
	got := map[string]string{}
	for _, iv := range r.InstVars {
		got[iv.Name] = iv.Value.Value
	}
	if got["superclass"] != "Object" {
		t.Errorf("superclass = %q, want Object", got["superclass"])
	}
	if got["instanceVariables"] != "#(x y)" {
		t.Errorf("instanceVariables = %q, want #(x y)", got["instanceVariables"])
	}
	if got["methodCount"] != "1" {
		t.Errorf("methodCount = %q, want 1", got["methodCount"])
	}
}

func TestInspectMethod(t *testing.T) {
	ti := newTestImage(t)
	m := NewMethodBuilder(1).SetPrimitive(60).Emit(BytecodePushSelf, BytecodeReturnTop).Build(ti.Mem)
	m2 := ti.method(0, []Value{ti.Symbol("foo")}, BytecodeReturnSelf)
	insp := NewInspector(ti.Mem)

	r := insp.Inspect(m)
	if r.Type != "CompiledMethod" || !strings.Contains(r.Value, "1 args") || !strings.Contains(r.Value, "<primitive: 60>") {
		t.Errorf("Inspect(method) = %s %q", r.Type, r.Value)
	}
	r = insp.Inspect(m2)
	if len(r.InstVars) != 1 || r.InstVars[0].Name != "literal1" || r.InstVars[0].Value.Value != "#foo" {
		t.Errorf("literals = %+v", r.InstVars)
	}
}
