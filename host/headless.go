// Package host provides the display, input and clipboard collaborators the
// interpreter talks to. Headless keeps everything in memory, which makes it
// usable both for batch runs and for tests that script mouse and keyboard.
package host

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"github.com/chazu/gosqueak/vm"
)

var log = commonlog.GetLogger("gosqueak.host")

// DefaultNotifyInterval is how often the notifier wakes an idle image.
const DefaultNotifyInterval = 33 * time.Millisecond

// Frame is the last picture the image asked to show.
type Frame struct {
	Bits          []uint32
	Width, Height int
	Depth         int
}

// Rect is a damaged area in display coordinates.
type Rect struct {
	Left, Top, Right, Bottom int
}

// ---------------------------------------------------------------------------
// Headless: in-memory display and input
// ---------------------------------------------------------------------------

// Headless implements vm.Display and vm.Input without a window.
type Headless struct {
	mu sync.Mutex

	width, height int
	fullScreen    bool
	frame         Frame
	damage        []Rect
	cursor        []uint32
	cursorX       int
	cursorY       int

	mouseX, mouseY int
	buttons        int
	keys           []int

	interruptKey int
	onInterrupt  func()

	events chan struct{}

	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}
}

var (
	_ vm.Display             = (*Headless)(nil)
	_ vm.Input               = (*Headless)(nil)
	_ vm.InterruptKeyWatcher = (*Headless)(nil)
)

// NewHeadless creates a headless host with the given screen size.
func NewHeadless(width, height int) *Headless {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &Headless{
		width:    width,
		height:   height,
		events:   make(chan struct{}, 1),
		interval: DefaultNotifyInterval,
	}
}

// SetNotifyInterval changes the notifier period. It takes effect on the
// next StartNotifier.
func (h *Headless) SetNotifyInterval(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d > 0 {
		h.interval = d
	}
}

// ---------------------------------------------------------------------------
// vm.Display
// ---------------------------------------------------------------------------

// ShowDisplay records bits as the current frame.
func (h *Headless) ShowDisplay(bits []uint32, width, height, depth int) error {
	switch depth {
	case 1, 2, 4, 8, 16, 32:
	default:
		return errors.Errorf("unsupported display depth %d", depth)
	}
	if width <= 0 || height <= 0 {
		return errors.Errorf("bad display extent %dx%d", width, height)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = Frame{Bits: bits, Width: width, Height: height, Depth: depth}
	h.damage = h.damage[:0]
	log.Debugf("display %dx%dx%d", width, height, depth)
	return nil
}

// Redisplay records a damaged area of the current frame.
func (h *Headless) Redisplay(bits []uint32, width, height, depth, left, top, right, bottom int) {
	left, top = max(left, 0), max(top, 0)
	right, bottom = min(right, width), min(bottom, height)
	if left >= right || top >= bottom {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = Frame{Bits: bits, Width: width, Height: height, Depth: depth}
	h.damage = append(h.damage, Rect{left, top, right, bottom})
}

func (h *Headless) SetCursor(bits []uint32, offsetX, offsetY int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cursor = append(h.cursor[:0], bits...)
	h.cursorX, h.cursorY = offsetX, offsetY
}

func (h *Headless) ScreenSize() (width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

func (h *Headless) SetFullScreen(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fullScreen = on
}

// Frame returns the current frame.
func (h *Headless) Frame() Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame
}

// TakeDamage returns and clears the damaged areas since the last call.
func (h *Headless) TakeDamage() []Rect {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := h.damage
	h.damage = nil
	return d
}

// FullScreen reports the last SetFullScreen request.
func (h *Headless) FullScreen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fullScreen
}

// Cursor returns the cursor bits and hot spot offset.
func (h *Headless) Cursor() ([]uint32, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor, h.cursorX, h.cursorY
}

// ---------------------------------------------------------------------------
// vm.Input
// ---------------------------------------------------------------------------

func (h *Headless) MousePoint() (x, y int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mouseX, h.mouseY
}

func (h *Headless) MouseButtons() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buttons
}

// NextKey removes and returns the oldest queued key.
func (h *Headless) NextKey() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.keys) == 0 {
		return 0, false
	}
	k := h.keys[0]
	h.keys = h.keys[1:]
	return k, true
}

// PeekKey returns the oldest queued key without removing it.
func (h *Headless) PeekKey() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.keys) == 0 {
		return 0, false
	}
	return h.keys[0], true
}

func (h *Headless) Events() <-chan struct{} {
	return h.events
}

// SetMouse moves the pointer and sets the button state.
func (h *Headless) SetMouse(x, y, buttons int) {
	h.mu.Lock()
	h.mouseX, h.mouseY = min(max(x, 0), h.width-1), min(max(y, 0), h.height-1)
	h.buttons = buttons
	h.mu.Unlock()
	h.notify()
}

// WatchInterruptKey makes PostKey call interrupt for key instead of
// queuing it.
func (h *Headless) WatchInterruptKey(key int, interrupt func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interruptKey = key
	h.onInterrupt = interrupt
}

// PostKey queues a key code. Modifier bits go above the low byte.
func (h *Headless) PostKey(code int) {
	h.mu.Lock()
	if h.onInterrupt != nil && code == h.interruptKey {
		interrupt := h.onInterrupt
		h.mu.Unlock()
		interrupt()
		h.notify()
		return
	}
	h.keys = append(h.keys, code)
	h.mu.Unlock()
	h.notify()
}

// PostText queues each character of s in MacRoman. Characters without a
// MacRoman form are dropped.
func (h *Headless) PostText(s string) {
	for _, b := range ToMacRoman(s) {
		if b != macRomanSubstitute {
			h.PostKey(int(b))
		}
	}
}

// notify wakes a relinquishing interpreter. Pending wakeups coalesce.
func (h *Headless) notify() {
	select {
	case h.events <- struct{}{}:
	default:
	}
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

// StartNotifier begins waking the image periodically so idle loops that
// relinquish the processor still poll for input. Calling it twice is a
// no-op.
func (h *Headless) StartNotifier() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return
	}
	h.stop = make(chan struct{})
	h.stopped = make(chan struct{})
	go h.loop(h.interval, h.stop, h.stopped)
}

// StopNotifier halts the notifier and waits for it to exit. It is safe to
// call on a notifier that was never started.
func (h *Headless) StopNotifier() {
	h.mu.Lock()
	stopCh, stoppedCh := h.stop, h.stopped
	h.stop, h.stopped = nil, nil
	h.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

func (h *Headless) loop(interval time.Duration, stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			log.Debug("notifier stopped")
			return
		case <-ticker.C:
			h.notify()
		}
	}
}
