package host

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/chazu/gosqueak/vm"
)

// macRomanSubstitute replaces characters that MacRoman cannot encode.
const macRomanSubstitute = 0x1A

// ToMacRoman converts UTF-8 text to the image's byte encoding.
func ToMacRoman(s string) []byte {
	b, err := encoding.ReplaceUnsupported(charmap.Macintosh.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}

// FromMacRoman converts image bytes to UTF-8.
func FromMacRoman(b []byte) (string, error) {
	s, err := charmap.Macintosh.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrap(err, "decode MacRoman")
	}
	return string(s), nil
}

// ---------------------------------------------------------------------------
// Clipboard
// ---------------------------------------------------------------------------

// Clipboard holds text in UTF-8 and hands it to the image as MacRoman.
// An optional System clipboard is written through on every write and
// preferred on reads when its text differs from what the image last wrote.
type Clipboard struct {
	mu     sync.Mutex
	text   string
	set    bool
	System SystemClipboard
}

// SystemClipboard is the host operating system's clipboard.
type SystemClipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

var _ vm.Clipboard = (*Clipboard)(nil)

// NewClipboard returns an empty in-memory clipboard.
func NewClipboard() *Clipboard {
	return &Clipboard{}
}

// ReadText returns the clipboard text in MacRoman.
func (c *Clipboard) ReadText() ([]byte, error) {
	text, err := c.Text()
	if err != nil {
		return nil, err
	}
	return ToMacRoman(text), nil
}

// WriteText stores MacRoman text from the image.
func (c *Clipboard) WriteText(text []byte) error {
	s, err := FromMacRoman(text)
	if err != nil {
		return err
	}
	return c.SetText(s)
}

// Text returns the clipboard contents in UTF-8.
func (c *Clipboard) Text() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.System == nil {
		return c.text, nil
	}
	sys, err := c.System.ReadAll()
	if err != nil {
		if c.set {
			log.Warningf("system clipboard: %s", err)
			return c.text, nil
		}
		return "", errors.Wrap(err, "read system clipboard")
	}
	return sys, nil
}

// SetText replaces the clipboard contents.
func (c *Clipboard) SetText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text, c.set = s, true
	if c.System != nil {
		if err := c.System.WriteAll(s); err != nil {
			return errors.Wrap(err, "write system clipboard")
		}
	}
	return nil
}
