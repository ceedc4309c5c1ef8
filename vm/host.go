package vm

// ---------------------------------------------------------------------------
// Host collaborators
// ---------------------------------------------------------------------------

// Mouse button bits reported by Input.MouseButtons.
const (
	RedButton    = 4
	YellowButton = 2
	BlueButton   = 1
)

// Display is the pixel surface behind the image's display Form.
type Display interface {
	ShowDisplay(bits []uint32, width, height, depth int) error
	Redisplay(bits []uint32, width, height, depth, left, top, right, bottom int)
	SetCursor(bits []uint32, offsetX, offsetY int)
	ScreenSize() (width, height int)
	SetFullScreen(on bool)
	CopyBits(blt *BitBlt) bool
}

// Input reports mouse and keyboard state.
type Input interface {
	MousePoint() (x, y int)
	MouseButtons() int
	NextKey() (int, bool)
	PeekKey() (int, bool)

	// Events delivers a value whenever new input arrives.
	Events() <-chan struct{}
}

// InterruptKeyWatcher is implemented by inputs that catch the interrupt key
// as it arrives instead of queuing it. Inputs without it are checked at the
// head of their key queue.
type InterruptKeyWatcher interface {
	WatchInterruptKey(key int, interrupt func())
}

// Clipboard exchanges text in the image's byte encoding.
type Clipboard interface {
	ReadText() ([]byte, error)
	WriteText(text []byte) error
}

// Form is a decoded Form object.
type Form struct {
	Bits          []uint32
	Width, Height int
	Depth         int
}

// BitBlt carries the decoded fields of a BitBlt receiver.
type BitBlt struct {
	Dest, Source          *Form
	Halftone              []uint32
	Rule                  int
	DestX, DestY          int
	Width, Height         int
	SourceX, SourceY      int
	ClipX, ClipY          int
	ClipWidth, ClipHeight int
}
