// Package census counts the objects in an image by class and keeps a
// history of counts so growth can be tracked across runs.
package census

import (
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"github.com/chazu/gosqueak/vm"
)

var log = commonlog.GetLogger("gosqueak.census")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("census: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Entry counts the instances of one class.
type Entry struct {
	Class     string `cbor:"1,keyasint"`
	Instances int    `cbor:"2,keyasint"`
	Words     int    `cbor:"3,keyasint"` // including object headers
}

// Report is a census of one object memory.
type Report struct {
	ID      string    `cbor:"1,keyasint"`
	Image   string    `cbor:"2,keyasint"`
	Taken   time.Time `cbor:"3,keyasint"`
	Objects int       `cbor:"4,keyasint"`
	Words   int       `cbor:"5,keyasint"`
	Entries []Entry   `cbor:"6,keyasint"`
}

// objectHeaderWords is the per-object overhead counted in Words.
const objectHeaderWords = 3

// Take counts every object in mem. Entries are sorted by instance count,
// largest first.
func Take(mem *vm.Memory, image string) *Report {
	type tally struct{ instances, words int }
	byClass := make(map[vm.Value]*tally)
	r := &Report{ID: uuid.New().String(), Image: image, Taken: time.Now().UTC()}

	mem.Each(func(_ vm.Value, obj *vm.Object) bool {
		t := byClass[obj.Class]
		if t == nil {
			t = &tally{}
			byClass[obj.Class] = t
		}
		w := objectHeaderWords + obj.BodyWords()
		t.instances++
		t.words += w
		r.Objects++
		r.Words += w
		return true
	})

	names := mem.Names()
	merged := make(map[string]*Entry, len(byClass))
	for class, t := range byClass {
		name := names.ClassName(class)
		e := merged[name]
		if e == nil {
			e = &Entry{Class: name}
			merged[name] = e
		}
		e.Instances += t.instances
		e.Words += t.words
	}
	for _, e := range merged {
		r.Entries = append(r.Entries, *e)
	}
	r.sort()
	log.Debugf("census %s: %d objects in %d classes", r.ID, r.Objects, len(r.Entries))
	return r
}

func (r *Report) sort() {
	sort.Slice(r.Entries, func(i, j int) bool {
		a, b := r.Entries[i], r.Entries[j]
		if a.Instances != b.Instances {
			return a.Instances > b.Instances
		}
		return a.Class < b.Class
	})
}

// Top returns the n most populous classes.
func (r *Report) Top(n int) []Entry {
	if n < 0 || n > len(r.Entries) {
		n = len(r.Entries)
	}
	return r.Entries[:n]
}

// Find returns the entry for class.
func (r *Report) Find(class string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Class == class {
			return e, true
		}
	}
	return Entry{}, false
}

// MarshalReport serializes a Report to canonical CBOR.
func MarshalReport(r *Report) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalReport deserializes a Report from CBOR bytes.
func UnmarshalReport(data []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "census: unmarshal report")
	}
	return &r, nil
}
