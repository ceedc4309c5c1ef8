package vm

import (
	"bytes"
	"testing"
)

// ---------------------------------------------------------------------------
// FuzzReadImage: the image reader must never panic or exhaust memory on
// arbitrary input. Errors are expected and acceptable; panics are bugs.
// ---------------------------------------------------------------------------

// buildFuzzImage snapshots a bootstrap image with a few extra objects of
// every body kind, giving the fuzzer a well-formed starting point.
func buildFuzzImage(t testing.TB, opts ImageWriterOptions) []byte {
	t.Helper()
	b := NewBootstrap(MemoryOptions{})
	m := b.Mem
	b.DefineClass("FuzzClass", "Object", 1, FormatFixed)
	b.AddMethod("FuzzClass", "getX", NewMethodBuilder(0).
		Emit(BytecodePushReceiverVariable, BytecodeReturnTop).Build(m))
	m.SetSpecial(SpecialExternalObjectsArray, m.NewArray(
		m.NewFloat(-0.5),
		m.NewString([]byte("fuzz")),
		m.NewWords(m.Special(SpecialClassBitmap), 2),
		m.Int64Value(1<<40),
	))
	b.Start(b.HelloMethod(), m.Nil())

	var buf bytes.Buffer
	if err := WriteImage(&buf, m, opts); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	return buf.Bytes()
}

func FuzzReadImage(f *testing.F) {
	valid := buildFuzzImage(f, ImageWriterOptions{})
	f.Add(valid)
	f.Add(buildFuzzImage(f, ImageWriterOptions{LittleEndian: true}))
	f.Add(buildFuzzImage(f, ImageWriterOptions{Gzip: true}))
	for _, n := range []int{0, 3, imageHeaderBytes, imageWriterHeaderSize + 5, len(valid) / 2, len(valid) - 1} {
		f.Add(valid[:n])
	}
	f.Add(headerBytes(ImageVersion, 36, 0xFFFFFFF0, 0, 0, 0, 0, 0, 0, 0xFFFFFFFC|headerTypeSizeAndClass, 0, 0))

	f.Fuzz(func(t *testing.T, data []byte) {
		img, err := ReadImage(bytes.NewReader(data), MemoryOptions{})
		if err != nil {
			return
		}
		// Anything that loads must save and load again.
		var buf bytes.Buffer
		if err := WriteImage(&buf, img.Memory, ImageWriterOptions{}); err != nil {
			t.Fatalf("WriteImage after load: %v", err)
		}
		again, err := ReadImage(&buf, MemoryOptions{})
		if err != nil {
			t.Fatalf("reloading a saved image: %v", err)
		}
		if again.Objects != img.Memory.Count() {
			t.Errorf("reloaded %d objects, saved %d", again.Objects, img.Memory.Count())
		}
	})
}

func TestOversizedObjectIsRejected(t *testing.T) {
	// The size word claims far more words than the object data holds.
	data := headerBytes(ImageVersion, 36, 12, 0, 0, 0, 0, 0, 0,
		1000<<2|headerTypeSizeAndClass, 0, 0)
	if _, err := ReadImage(bytes.NewReader(data), MemoryOptions{}); err == nil {
		t.Error("an object overrunning the object data should fail")
	}
}
