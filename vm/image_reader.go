package vm

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Image file layout constants.
const (
	ImageVersion      = 6502
	imageHeaderWords  = 9
	imageHeaderBytes  = imageHeaderWords * 4
	compactClassCount = 31
)

// Object header types, stored in the low two bits of the first header word.
const (
	headerTypeSizeAndClass = 0
	headerTypeClass        = 1
	headerTypeFree         = 2
	headerTypeShort        = 3
)

// ---------------------------------------------------------------------------
// ImageHeader: Parsed header information
// ---------------------------------------------------------------------------

// ImageHeader holds the nine header words of a snapshot.
type ImageHeader struct {
	Version           uint32
	HeaderSize        uint32
	EndOfMemory       uint32 // bytes of object data after the header
	OldBaseAddr       uint32
	SpecialObjectsOop uint32
	LastHash          uint32
	SavedWindowSize   uint32 // width<<16 | height
	FullScreen        bool
	ExtraVMMemory     uint32

	// Swapped is set when the file was written little-endian.
	Swapped bool
}

// WindowSize unpacks the saved window size.
func (h *ImageHeader) WindowSize() (width, height int) {
	return int(h.SavedWindowSize >> 16), int(h.SavedWindowSize & 0xFFFF)
}

// Image is a loaded snapshot: its header and a populated object memory.
type Image struct {
	Header  ImageHeader
	Memory  *Memory
	Objects int

	// Skipped counts objects whose install failed and were left empty.
	Skipped int
}

// imageRecord is an object as it appears on disk, before its words are
// turned into values.
type imageRecord struct {
	addr     uint32
	classRef uint32 // old oop, or compact class index when compact is set
	compact  bool
	format   uint8
	hash     uint16
	words    []uint32
	value    Value
}

// ---------------------------------------------------------------------------
// Word stream
// ---------------------------------------------------------------------------

type wordReader struct {
	r     *bufio.Reader
	order binary.ByteOrder
	buf   [4]byte
	pos   uint32
}

func (wr *wordReader) word() (uint32, error) {
	if _, err := io.ReadFull(wr.r, wr.buf[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	wr.pos += 4
	return wr.order.Uint32(wr.buf[:]), nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadImage opens path and reads the snapshot it contains. Compressed and
// uncompressed files are both accepted.
func LoadImage(path string, opts MemoryOptions) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	defer f.Close()

	img, err := ReadImage(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return img, nil
}

// ReadImage parses a snapshot from r into a fresh object memory.
func ReadImage(r io.Reader, opts MemoryOptions) (*Image, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "gzip")
		}
		defer zr.Close()
		br = bufio.NewReaderSize(zr, 64*1024)
	}

	header, wr, err := readImageHeader(br)
	if err != nil {
		return nil, err
	}

	records, err := readImageRecords(wr, header)
	if err != nil {
		return nil, err
	}

	if need := len(records) + max(opts.Growth, DefaultTableGrowth); opts.InitialCapacity < need {
		opts.InitialCapacity = need
	}
	mem := NewMemory(opts)
	mem.SetLastHash(header.LastHash)

	inst := &installer{
		mem:     mem,
		byAddr:  make(map[uint32]Value, len(records)),
		records: make(map[uint32]*imageRecord, len(records)),
	}
	for _, rec := range records {
		rec.value = mem.Register(&Object{Hash: rec.hash, Format: rec.format})
		inst.byAddr[rec.addr] = rec.value
		inst.records[rec.addr] = rec
	}

	img := &Image{Header: *header, Memory: mem, Objects: len(records)}

	specialRec, ok := inst.records[header.SpecialObjectsOop]
	if !ok {
		return nil, errors.Errorf("special objects array at %#x not found", header.SpecialObjectsOop)
	}
	if len(specialRec.words) <= SpecialCompactClasses {
		return nil, errors.Errorf("special objects array has only %d slots", len(specialRec.words))
	}
	inst.nilObj = inst.byAddr[specialRec.words[SpecialNil]]
	inst.floatClass = inst.byAddr[specialRec.words[SpecialClassFloat]]
	if err := inst.compactClasses(specialRec.words[SpecialCompactClasses]); err != nil {
		return nil, err
	}

	for _, rec := range records {
		if err := inst.install(rec); err != nil {
			log.Warningf("image object at %#x: %s", rec.addr, err.Error())
			img.Skipped++
		}
	}

	mem.SetSpecialObjects(specialRec.value)
	mem.young = mem.young[:0]
	mem.allocated = 0

	log.Infof("loaded image: %d objects, %d skipped, swapped=%t", img.Objects, img.Skipped, header.Swapped)
	return img, nil
}

func readImageHeader(br *bufio.Reader) (*ImageHeader, *wordReader, error) {
	wr := &wordReader{r: br, order: binary.BigEndian}
	version, err := wr.word()
	if err != nil {
		return nil, nil, errors.Wrap(err, "image header")
	}
	header := &ImageHeader{}
	if version != ImageVersion {
		swapped := binary.LittleEndian.Uint32(wr.buf[:])
		if swapped != ImageVersion {
			return nil, nil, errors.Wrapf(ErrBadImageVersion, "got %d", version)
		}
		wr.order = binary.LittleEndian
		header.Swapped = true
		version = swapped
	}
	header.Version = version

	var words [imageHeaderWords - 1]uint32
	for i := range words {
		if words[i], err = wr.word(); err != nil {
			return nil, nil, errors.Wrap(err, "image header")
		}
	}
	header.HeaderSize = words[0]
	header.EndOfMemory = words[1]
	header.OldBaseAddr = words[2]
	header.SpecialObjectsOop = words[3]
	header.LastHash = words[4]
	header.SavedWindowSize = words[5]
	header.FullScreen = words[6] != 0
	header.ExtraVMMemory = words[7]

	if header.HeaderSize < imageHeaderBytes {
		return nil, nil, errors.Errorf("image header size %d is too small", header.HeaderSize)
	}
	if _, err := io.CopyN(io.Discard, br, int64(header.HeaderSize-imageHeaderBytes)); err != nil {
		return nil, nil, errors.Wrap(err, "image header")
	}
	wr.pos = 0
	return header, wr, nil
}

const maxPreallocWords = 4096

func readImageRecords(wr *wordReader, header *ImageHeader) ([]*imageRecord, error) {
	var records []*imageRecord
	for wr.pos < header.EndOfMemory {
		rec := &imageRecord{}
		word, err := wr.word()
		if err != nil {
			return nil, errors.Wrapf(err, "object header at %#x", wr.pos)
		}
		var nWords uint32
		switch word & 3 {
		case headerTypeSizeAndClass:
			nWords = word >> 2
			if rec.classRef, err = wr.word(); err != nil {
				return nil, errors.Wrap(err, "class word")
			}
			if word, err = wr.word(); err != nil {
				return nil, errors.Wrap(err, "base header")
			}
		case headerTypeClass:
			rec.classRef = word - headerTypeClass
			if word, err = wr.word(); err != nil {
				return nil, errors.Wrap(err, "base header")
			}
			nWords = (word >> 2) & 63
		case headerTypeFree:
			return nil, errors.Wrapf(ErrUnexpectedFreeBlock, "at %#x", wr.pos-4)
		case headerTypeShort:
			rec.classRef = (word >> 12) & 31
			rec.compact = true
			nWords = (word >> 2) & 63
		}
		if nWords == 0 {
			return nil, errors.Errorf("object at %#x has no base header", wr.pos-4)
		}
		nWords--

		rec.addr = wr.pos - 4 + header.OldBaseAddr
		rec.format = uint8((word >> 8) & 15)
		rec.hash = uint16((word >> 17) & 4095)
		if uint64(wr.pos)+uint64(nWords)*4 > uint64(header.EndOfMemory) {
			return nil, errors.Errorf("object at %#x overruns the object data", rec.addr)
		}
		// Grown as words arrive, so a corrupt size cannot force a huge
		// allocation before the data runs out.
		rec.words = make([]uint32, 0, min(nWords, maxPreallocWords))
		for i := uint32(0); i < nWords; i++ {
			w, err := wr.word()
			if err != nil {
				return nil, errors.Wrapf(err, "body of object at %#x", rec.addr)
			}
			rec.words = append(rec.words, w)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ---------------------------------------------------------------------------
// Install pass
// ---------------------------------------------------------------------------

type installer struct {
	mem        *Memory
	byAddr     map[uint32]Value
	records    map[uint32]*imageRecord
	compact    [compactClassCount]Value
	floatClass Value
	nilObj     Value
}

// compactClasses resolves the table used by short headers. Slots holding
// nil, a SmallInteger or a dangling address stay Invalid and make the
// objects using them fail to install.
func (inst *installer) compactClasses(ref uint32) error {
	rec, ok := inst.records[ref]
	if !ok {
		return errors.Errorf("compact class array at %#x not found", ref)
	}
	for i := 0; i < compactClassCount && i < len(rec.words); i++ {
		if v, ok := inst.byAddr[rec.words[i]]; ok && v != inst.nilObj {
			inst.compact[i] = v
		}
	}
	return nil
}

// pointer converts a stored word into a value. Unknown addresses become nil.
func (inst *installer) pointer(word uint32) Value {
	if word&1 == 1 {
		return Value(word)
	}
	if v, ok := inst.byAddr[word]; ok {
		return v
	}
	log.Debugf("dangling reference %#x replaced by nil", word)
	return inst.nilObj
}

func (inst *installer) install(rec *imageRecord) error {
	obj := inst.mem.Get(rec.value)
	if rec.compact {
		if rec.classRef == 0 || int(rec.classRef) > compactClassCount {
			obj.Body = &PointersBody{}
			return errors.Errorf("bad compact class index %d", rec.classRef)
		}
		obj.Class = inst.compact[rec.classRef-1]
		if obj.Class == Invalid {
			obj.Class = inst.nilObj
			obj.Body = &PointersBody{}
			return errors.Errorf("compact class %d is not set", rec.classRef)
		}
	} else {
		cls, ok := inst.byAddr[rec.classRef]
		if !ok {
			obj.Class = inst.nilObj
			obj.Body = &PointersBody{}
			return errors.Errorf("class %#x not found", rec.classRef)
		}
		obj.Class = cls
	}

	switch f := rec.format; {
	case f <= FormatWeak:
		slots := make([]Value, len(rec.words))
		for i, w := range rec.words {
			slots[i] = inst.pointer(w)
		}
		obj.Body = &PointersBody{Slots: slots}
	case f < FormatBytes:
		if obj.Class == inst.floatClass && len(rec.words) == 2 {
			obj.Body = &FloatBody{Float: floatFromWords(rec.words[0], rec.words[1])}
		} else {
			obj.Body = &WordsBody{Words: rec.words}
		}
	case f < FormatMethod:
		obj.Body = &BytesBody{Bytes: wordsToBytes(rec.words, int(f&3))}
	default:
		if len(rec.words) == 0 {
			obj.Body = &MethodBody{}
			return errors.New("method without header")
		}
		header := Value(rec.words[0])
		if !header.IsSmallInt() {
			obj.Body = &MethodBody{}
			return errors.Errorf("method header %#x is not a SmallInteger", rec.words[0])
		}
		n := 1 + MethodHeader(header.SmallInt()).NumLiterals()
		if n > len(rec.words) {
			obj.Body = &MethodBody{}
			return errors.Errorf("method claims %d literals in %d words", n-1, len(rec.words))
		}
		lits := make([]Value, n)
		lits[0] = header
		for i := 1; i < n; i++ {
			lits[i] = inst.pointer(rec.words[i])
		}
		obj.Body = &MethodBody{Literals: lits, Bytecodes: wordsToBytes(rec.words[n:], int(f&3))}
	}
	return nil
}

// wordsToBytes unpacks big-endian words, dropping the trailing pad bytes.
func wordsToBytes(words []uint32, pad int) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.BigEndian.PutUint32(b[i*4:], w)
	}
	if pad > len(b) {
		pad = len(b)
	}
	return b[:len(b)-pad]
}
