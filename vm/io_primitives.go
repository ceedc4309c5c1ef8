package vm

import "time"

// BitBlt field indices.
const (
	bbDestForm = iota
	bbSourceForm
	bbHalftoneForm
	bbCombinationRule
	bbDestX
	bbDestY
	bbWidth
	bbHeight
	bbSourceX
	bbSourceY
	bbClipX
	bbClipY
	bbClipWidth
	bbClipHeight
)

// ---------------------------------------------------------------------------
// Forms
// ---------------------------------------------------------------------------

// decodeForm reads a Form whose bits are a word object. The returned Bits
// share storage with the heap.
func (in *Interpreter) decodeForm(v Value) (*Form, bool) {
	obj := in.mem.Get(v)
	if obj == nil || obj.PointerCount() <= FormDepth {
		return nil, false
	}
	bitsV, _ := obj.Fetch(FormBits)
	bitsObj := in.mem.Get(bitsV)
	if bitsObj == nil {
		return nil, false
	}
	bits, ok := bitsObj.Words()
	if !ok {
		return nil, false
	}
	f := &Form{Bits: bits}
	for i, dst := range []*int{&f.Width, &f.Height, &f.Depth} {
		n, _ := obj.Fetch(FormWidth + i)
		if !n.IsSmallInt() {
			return nil, false
		}
		*dst = int(n.SmallInt())
	}
	return f, true
}

func (in *Interpreter) decodeBitBlt(v Value) (*BitBlt, bool) {
	obj := in.mem.Get(v)
	if obj == nil || obj.PointerCount() <= bbClipHeight {
		return nil, false
	}
	blt := &BitBlt{}
	dest, _ := obj.Fetch(bbDestForm)
	var ok bool
	if blt.Dest, ok = in.decodeForm(dest); !ok {
		return nil, false
	}
	if src, _ := obj.Fetch(bbSourceForm); src != in.mem.nilObj {
		if blt.Source, ok = in.decodeForm(src); !ok {
			return nil, false
		}
	}
	if ht, _ := obj.Fetch(bbHalftoneForm); ht != in.mem.nilObj {
		if f, ok := in.decodeForm(ht); ok {
			blt.Halftone = f.Bits
		} else if htObj := in.mem.Get(ht); htObj != nil {
			blt.Halftone, _ = htObj.Words()
		}
	}
	fields := []*int{
		&blt.Rule, &blt.DestX, &blt.DestY, &blt.Width, &blt.Height,
		&blt.SourceX, &blt.SourceY, &blt.ClipX, &blt.ClipY, &blt.ClipWidth, &blt.ClipHeight,
	}
	for i, dst := range fields {
		n, _ := obj.Fetch(bbCombinationRule + i)
		switch {
		case n.IsSmallInt():
			*dst = int(n.SmallInt())
		case n == in.mem.nilObj:
			*dst = 0
		default:
			f, ok := in.floatOrInt(n)
			if !ok {
				return nil, false
			}
			*dst = int(f)
		}
	}
	return blt, true
}

// redisplayIfScreen pushes the rectangle to the host when form is the
// current display.
func (in *Interpreter) redisplayIfScreen(form *Form, left, top, right, bottom int) {
	screen, ok := in.decodeForm(in.mem.Special(SpecialTheDisplay))
	if !ok || len(screen.Bits) == 0 || len(form.Bits) == 0 || &screen.Bits[0] != &form.Bits[0] {
		return
	}
	left, top = max(left, 0), max(top, 0)
	right, bottom = min(right, form.Width), min(bottom, form.Height)
	if left >= right || top >= bottom {
		return
	}
	in.opts.Display.Redisplay(form.Bits, form.Width, form.Height, form.Depth, left, top, right, bottom)
}

// ---------------------------------------------------------------------------
// Display primitives
// ---------------------------------------------------------------------------

func (in *Interpreter) primitiveCopyBits(argCount int) bool {
	if in.opts.Display == nil || argCount > 1 {
		return false
	}
	blt, ok := in.decodeBitBlt(in.stackValue(argCount))
	if !ok || !in.opts.Display.CopyBits(blt) {
		return false
	}
	left := max(blt.DestX, blt.ClipX)
	top := max(blt.DestY, blt.ClipY)
	right := min(blt.DestX+blt.Width, blt.ClipX+blt.ClipWidth)
	bottom := min(blt.DestY+blt.Height, blt.ClipY+blt.ClipHeight)
	in.redisplayIfScreen(blt.Dest, left, top, right, bottom)
	in.popN(argCount)
	return true
}

// primitiveBeCursor installs a cursor Form. The optional mask argument is
// ignored.
func (in *Interpreter) primitiveBeCursor(argCount int) bool {
	if in.opts.Display == nil || argCount > 1 {
		return false
	}
	cursor := in.stackValue(argCount)
	form, ok := in.decodeForm(cursor)
	if !ok {
		return false
	}
	offsetV, _ := in.mem.Get(cursor).Fetch(FormOffset)
	offset := in.mem.Get(offsetV)
	if offset == nil || !in.isInstanceOf(offsetV, SpecialClassPoint) {
		return false
	}
	x, _ := offset.Fetch(PointX)
	y, _ := offset.Fetch(PointY)
	if !x.IsSmallInt() || !y.IsSmallInt() {
		return false
	}
	in.opts.Display.SetCursor(form.Bits, int(x.SmallInt()), int(y.SmallInt()))
	in.popN(argCount)
	return true
}

func (in *Interpreter) primitiveBeDisplay(argCount int) bool {
	if in.opts.Display == nil || argCount != 0 {
		return false
	}
	form, ok := in.decodeForm(in.top())
	if !ok {
		return false
	}
	if err := in.opts.Display.ShowDisplay(form.Bits, form.Width, form.Height, form.Depth); err != nil {
		log.Warningf("beDisplay: %s", err)
		return false
	}
	in.mem.SetSpecial(SpecialTheDisplay, in.top())
	log.Infof("display is %dx%dx%d", form.Width, form.Height, form.Depth)
	return true
}

func (in *Interpreter) primitiveScreenSize(argCount int) bool {
	if in.opts.Display == nil || argCount != 0 {
		return false
	}
	w, h := in.opts.Display.ScreenSize()
	in.popNandPush(1, in.mem.NewPoint(FromSmallInt(int64(w)), FromSmallInt(int64(h))))
	return true
}

func (in *Interpreter) primitiveSetFullScreen(argCount int) bool {
	if in.opts.Display == nil || argCount != 1 {
		return false
	}
	on := in.top()
	if on != in.mem.trueObj && on != in.mem.falseObj {
		return false
	}
	in.opts.Display.SetFullScreen(on == in.mem.trueObj)
	in.popN(1)
	return true
}

func (in *Interpreter) primitiveDeferDisplayUpdates(argCount int) bool {
	if argCount != 1 {
		return false
	}
	in.popN(1)
	return true
}

// primitiveShowDisplayRect flushes left right top bottom of the display.
func (in *Interpreter) primitiveShowDisplayRect(argCount int) bool {
	if in.opts.Display == nil || argCount != 4 {
		return false
	}
	var r [4]int
	for i := range r {
		n, ok := in.stackSmallInt(3 - i)
		if !ok {
			return false
		}
		r[i] = int(n)
	}
	form, ok := in.decodeForm(in.stackValue(4))
	if !ok {
		return false
	}
	in.redisplayIfScreen(form, r[0], r[2], r[1], r[3])
	in.popN(4)
	return true
}

// ---------------------------------------------------------------------------
// Input primitives
// ---------------------------------------------------------------------------

func (in *Interpreter) primitiveMousePoint(argCount int) bool {
	if in.opts.Input == nil || argCount != 0 {
		return false
	}
	x, y := in.opts.Input.MousePoint()
	in.popNandPush(1, in.mem.NewPoint(FromSmallInt(int64(x)), FromSmallInt(int64(y))))
	return true
}

func (in *Interpreter) primitiveMouseButtons(argCount int) bool {
	if in.opts.Input == nil || argCount != 0 {
		return false
	}
	in.popNandPush(1, FromSmallInt(int64(in.opts.Input.MouseButtons())))
	return true
}

func (in *Interpreter) keyResult(key int, ok bool) Value {
	if !ok {
		return in.mem.nilObj
	}
	return FromSmallInt(int64(key))
}

func (in *Interpreter) primitiveKbdNext(argCount int) bool {
	if in.opts.Input == nil || argCount != 0 {
		return false
	}
	if in.takeInterruptKeys() {
		in.forceInterruptCheck()
	}
	in.popNandPush(1, in.keyResult(in.opts.Input.NextKey()))
	return true
}

func (in *Interpreter) primitiveKbdPeek(argCount int) bool {
	if in.opts.Input == nil || argCount != 0 {
		return false
	}
	if in.takeInterruptKeys() {
		in.forceInterruptCheck()
	}
	in.popNandPush(1, in.keyResult(in.opts.Input.PeekKey()))
	return true
}

// primitiveInputSemaphore registers the semaphore signalled on input. It is
// signalled at the interrupt check that follows a host event.
func (in *Interpreter) primitiveInputSemaphore(argCount int) bool {
	return in.registerSemaphore(argCount, SpecialTheInputSemaphore)
}

// primitiveRelinquishProcessor blocks until input arrives or the yield
// timeout passes. The requested period bounds the wait.
func (in *Interpreter) primitiveRelinquishProcessor(argCount int) bool {
	if argCount > 1 {
		return false
	}
	wait := in.opts.YieldTimeout
	if argCount == 1 {
		micros, ok := in.stackSmallInt(0)
		if !ok {
			return false
		}
		if d := time.Duration(micros) * time.Microsecond; d >= 0 && d < wait {
			wait = d
		}
	}
	var events <-chan struct{}
	if in.opts.Input != nil {
		events = in.opts.Input.Events()
	}
	timer := time.NewTimer(wait)
	select {
	case <-events:
	case <-timer.C:
	}
	timer.Stop()
	in.popN(argCount)
	return true
}

// ---------------------------------------------------------------------------
// Clipboard
// ---------------------------------------------------------------------------

// primitiveClipboardText writes its String argument to the clipboard, or
// answers the clipboard contents when called without one.
func (in *Interpreter) primitiveClipboardText(argCount int) bool {
	if in.opts.Clipboard == nil {
		return false
	}
	switch argCount {
	case 0:
		text, err := in.opts.Clipboard.ReadText()
		if err != nil {
			log.Debugf("clipboard read: %s", err)
			return false
		}
		in.popNandPush(1, in.mem.NewString(text))
		return true
	case 1:
		s := in.top()
		if !in.isInstanceOf(s, SpecialClassString) {
			return false
		}
		text, _ := in.mem.Get(s).Bytes()
		if err := in.opts.Clipboard.WriteText(text); err != nil {
			log.Debugf("clipboard write: %s", err)
			return false
		}
		in.popN(1)
		return true
	}
	return false
}
