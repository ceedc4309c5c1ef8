package vm

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Written header size. Readers skip anything past the nine header words.
const imageWriterHeaderSize = 64

// ImageWriterOptions controls how a snapshot is written.
type ImageWriterOptions struct {
	WindowWidth  int
	WindowHeight int
	FullScreen   bool

	// Gzip compresses the output. SaveImage also compresses when the
	// path ends in ".gz".
	Gzip bool

	// LittleEndian writes a byte-swapped image.
	LittleEndian bool
}

// ---------------------------------------------------------------------------
// ImageWriter: Serializes object memory to a snapshot
// ---------------------------------------------------------------------------

// ImageWriter writes every live object with a three word header. Objects
// are laid out in enumeration order.
type ImageWriter struct {
	mem   *Memory
	opts  ImageWriterOptions
	order binary.ByteOrder

	objects []Value
	addr    map[Value]uint32
	end     uint32
	buf     [4]byte
}

// NewImageWriter prepares a writer for mem.
func NewImageWriter(mem *Memory, opts ImageWriterOptions) *ImageWriter {
	iw := &ImageWriter{mem: mem, opts: opts, order: binary.BigEndian}
	if opts.LittleEndian {
		iw.order = binary.LittleEndian
	}
	return iw
}

// layout assigns each object the address of its base header word.
func (iw *ImageWriter) layout() {
	iw.objects = iw.objects[:0]
	iw.addr = make(map[Value]uint32, iw.mem.Count())
	var off uint32
	iw.mem.Each(func(v Value, obj *Object) bool {
		iw.objects = append(iw.objects, v)
		iw.addr[v] = off + 8
		off += uint32(3+obj.BodyWords()) * 4
		return true
	})
	iw.end = off
}

func (iw *ImageWriter) ref(v Value) uint32 {
	if v.IsSmallInt() {
		return uint32(v)
	}
	if a, ok := iw.addr[v]; ok {
		return a
	}
	return iw.addr[iw.mem.Nil()]
}

func (iw *ImageWriter) word(w io.Writer, x uint32) error {
	iw.order.PutUint32(iw.buf[:], x)
	_, err := w.Write(iw.buf[:])
	return err
}

func (iw *ImageWriter) bytes(w io.Writer, b []byte) error {
	for i := 0; i < len(b); i += 4 {
		var chunk [4]byte
		copy(chunk[:], b[i:])
		if err := iw.word(w, binary.BigEndian.Uint32(chunk[:])); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo writes the snapshot to w.
func (iw *ImageWriter) WriteTo(w io.Writer) (int64, error) {
	iw.layout()
	bw := bufio.NewWriterSize(w, 64*1024)

	header := [imageHeaderWords]uint32{
		ImageVersion,
		imageWriterHeaderSize,
		iw.end,
		0,
		iw.ref(iw.mem.SpecialObjects()),
		iw.mem.LastHash(),
		uint32(iw.opts.WindowWidth)<<16 | uint32(iw.opts.WindowHeight)&0xFFFF,
		0,
		0,
	}
	if iw.opts.FullScreen {
		header[7] = 1
	}
	for _, x := range header {
		if err := iw.word(bw, x); err != nil {
			return 0, errors.Wrap(err, "write image header")
		}
	}
	for i := imageHeaderBytes; i < imageWriterHeaderSize; i += 4 {
		if err := iw.word(bw, 0); err != nil {
			return 0, errors.Wrap(err, "write image header")
		}
	}

	for _, v := range iw.objects {
		if err := iw.writeObject(bw, v, iw.mem.Get(v)); err != nil {
			return 0, errors.Wrapf(err, "write %s", describe(v))
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, errors.Wrap(err, "write image")
	}
	return int64(imageWriterHeaderSize) + int64(iw.end), nil
}

func (iw *ImageWriter) writeObject(w io.Writer, v Value, obj *Object) error {
	format := uint32(obj.Format)
	switch b := obj.Body.(type) {
	case *FloatBody:
		format = FormatWords
	case *BytesBody:
		format = FormatBytes | uint32(-len(b.Bytes))&3
	case *MethodBody:
		format = FormatMethod | uint32(-len(b.Bytecodes))&3
	}

	size := uint32(1+obj.BodyWords())<<2 | headerTypeSizeAndClass
	base := format<<8 | uint32(obj.Hash&0xFFF)<<17 | headerTypeSizeAndClass
	for _, x := range [...]uint32{size, iw.ref(obj.Class) | headerTypeSizeAndClass, base} {
		if err := iw.word(w, x); err != nil {
			return err
		}
	}

	switch b := obj.Body.(type) {
	case *PointersBody:
		for _, s := range b.Slots {
			if err := iw.word(w, iw.ref(s)); err != nil {
				return err
			}
		}
	case *WordsBody:
		for _, x := range b.Words {
			if err := iw.word(w, x); err != nil {
				return err
			}
		}
	case *FloatBody:
		hi, lo := floatWords(b.Float)
		if err := iw.word(w, hi); err != nil {
			return err
		}
		return iw.word(w, lo)
	case *BytesBody:
		return iw.bytes(w, b.Bytes)
	case *MethodBody:
		for _, lit := range b.Literals {
			if err := iw.word(w, iw.ref(lit)); err != nil {
				return err
			}
		}
		return iw.bytes(w, b.Bytecodes)
	}
	return nil
}

// WriteImage writes mem to w.
func WriteImage(w io.Writer, mem *Memory, opts ImageWriterOptions) error {
	if opts.Gzip {
		zw := gzip.NewWriter(w)
		if _, err := NewImageWriter(mem, opts).WriteTo(zw); err != nil {
			return err
		}
		return errors.Wrap(zw.Close(), "gzip")
	}
	_, err := NewImageWriter(mem, opts).WriteTo(w)
	return err
}

// SaveImage writes mem to path, replacing any existing file only once the
// new snapshot is complete.
func SaveImage(path string, mem *Memory, opts ImageWriterOptions) error {
	if strings.HasSuffix(path, ".gz") {
		opts.Gzip = true
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "save image")
	}
	defer os.Remove(tmp.Name())

	if err := WriteImage(tmp, mem, opts); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "save %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	log.Infof("saved image %s (%d objects)", path, mem.Count())
	return nil
}
