package vm

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// squeakEpochOffset is the number of seconds from 1901-01-01 to 1970-01-01.
const squeakEpochOffset = (69*365 + 17) * 86400

// ---------------------------------------------------------------------------
// Memory and lifecycle
// ---------------------------------------------------------------------------

// primitiveBytesLeft answers the number of free object table entries.
func (in *Interpreter) primitiveBytesLeft(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.popNandPush(1, in.mem.Int64Value(int64(in.mem.FreeSlots())))
	return true
}

func (in *Interpreter) primitiveQuit(int) bool {
	log.Info("image requested quit")
	fatal(ErrQuit, "")
	return true
}

func (in *Interpreter) primitiveFullGC(argCount int) bool {
	if argCount != 0 {
		return false
	}
	stats := in.mem.ReclaimNow()
	log.Debugf("full reclamation: %d live, %d freed in %s", stats.Live, stats.Freed, stats.SweepDuration)
	in.popNandPush(1, in.mem.Int64Value(int64(in.mem.FreeSlots())))
	return true
}

// primitiveIncrementalGC reclaims only when the table is close to full.
func (in *Interpreter) primitiveIncrementalGC(argCount int) bool {
	if argCount != 0 {
		return false
	}
	if in.mem.FreeSlots() < in.lowSpaceThreshold {
		in.mem.ReclaimNow()
	}
	in.popNandPush(1, in.mem.Int64Value(int64(in.mem.FreeSlots())))
	return true
}

// primitiveSnapshot writes the image to its current name. The resumed
// image sees true; the running one sees false.
func (in *Interpreter) primitiveSnapshot(argCount int) bool {
	if argCount != 0 || in.opts.ImageName == "" {
		return false
	}
	rcvr := in.top()
	proc := in.mem.Get(in.activeProcess())
	if proc == nil {
		return false
	}
	in.popNandPush(1, in.mem.trueObj)
	in.storeContextRegisters()
	proc.Store(ProcessSuspendedContext, in.activeContext)
	err := SaveImage(in.opts.ImageName, in.mem, ImageWriterOptions{})
	proc.Store(ProcessSuspendedContext, in.mem.nilObj)
	if err != nil {
		log.Errorf("snapshot: %s", err)
		in.popNandPush(1, rcvr)
		return false
	}
	log.Infof("snapshot written to %s", in.opts.ImageName)
	in.popNandPush(1, in.mem.falseObj)
	return true
}

// ---------------------------------------------------------------------------
// Semaphore registration
// ---------------------------------------------------------------------------

// registerSemaphore stores the argument in special slot index, or nil when
// it is not a Semaphore.
func (in *Interpreter) registerSemaphore(argCount, index int) bool {
	if argCount != 1 {
		return false
	}
	sem := in.top()
	if !in.isInstanceOf(sem, SpecialClassSemaphore) {
		sem = in.mem.nilObj
	}
	in.mem.SetSpecial(index, sem)
	in.popN(1)
	return true
}

func (in *Interpreter) primitiveLowSpaceSemaphore(argCount int) bool {
	return in.registerSemaphore(argCount, SpecialTheLowSpaceSemaphore)
}

func (in *Interpreter) primitiveInterruptSemaphore(argCount int) bool {
	return in.registerSemaphore(argCount, SpecialTheInterruptSemaphore)
}

// primitiveSignalAtBytesLeft sets the low space threshold and re-arms the
// low space signal.
func (in *Interpreter) primitiveSignalAtBytesLeft(argCount int) bool {
	if argCount != 1 {
		return false
	}
	n, ok := in.stackSmallInt(0)
	if !ok || n < 0 {
		return false
	}
	in.lowSpaceThreshold = int(n)
	in.lowSpaceSignalled = false
	in.popN(1)
	return true
}

func (in *Interpreter) primitiveSetInterruptKey(argCount int) bool {
	if argCount != 1 {
		return false
	}
	key, ok := in.stackSmallInt(0)
	if !ok {
		return false
	}
	in.interruptKey = int(key)
	in.watchInterruptKey()
	in.popN(1)
	return true
}

// InterruptKey returns the key code that should interrupt the image.
func (in *Interpreter) InterruptKey() int {
	return in.interruptKey
}

func (in *Interpreter) watchInterruptKey() {
	if w, ok := in.opts.Input.(InterruptKeyWatcher); ok {
		w.WatchInterruptKey(in.interruptKey, in.Interrupt)
	}
}

// ---------------------------------------------------------------------------
// Clocks
// ---------------------------------------------------------------------------

func (in *Interpreter) primitiveMillisecondClock(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.popNandPush(1, FromSmallInt(in.MillisecondClock()))
	return true
}

// primitiveSignalAtMilliseconds arms the timer semaphore for an absolute
// millisecond clock value.
func (in *Interpreter) primitiveSignalAtMilliseconds(argCount int) bool {
	if argCount != 2 {
		return false
	}
	ms, ok := in.stackSmallInt(0)
	if !ok {
		return false
	}
	sem := in.stackValue(1)
	if in.isInstanceOf(sem, SpecialClassSemaphore) {
		in.mem.SetSpecial(SpecialTheTimerSemaphore, sem)
		in.nextWakeupTick = ms
	} else {
		in.mem.SetSpecial(SpecialTheTimerSemaphore, in.mem.nilObj)
		in.nextWakeupTick = 0
	}
	in.popN(2)
	return true
}

// primitiveSecondsClock answers local seconds since 1901.
func (in *Interpreter) primitiveSecondsClock(argCount int) bool {
	if argCount != 0 {
		return false
	}
	now := in.opts.Clock()
	_, offset := now.Zone()
	secs := now.Unix() + int64(offset) + squeakEpochOffset
	in.popNandPush(1, in.mem.Pos32BitInt(uint32(secs)))
	return true
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// primitiveImageName answers the image file name, or sets it when given a
// String.
func (in *Interpreter) primitiveImageName(argCount int) bool {
	switch argCount {
	case 0:
		in.popNandPush(1, in.newString(in.opts.ImageName))
		return true
	case 1:
		s, ok := in.mem.names.StringOf(in.top())
		if !ok || !in.isInstanceOf(in.top(), SpecialClassString) {
			return false
		}
		in.opts.ImageName = s
		in.popN(1)
		return true
	}
	return false
}

func (in *Interpreter) vmPath() string {
	path := in.opts.VMPath
	if path == "" {
		if exe, err := os.Executable(); err == nil {
			path = filepath.Dir(exe)
		}
	}
	if path != "" && path[len(path)-1] != os.PathSeparator {
		path += string(os.PathSeparator)
	}
	return path
}

func (in *Interpreter) primitiveVMPath(argCount int) bool {
	if argCount != 0 {
		return false
	}
	in.popNandPush(1, in.newString(in.vmPath()))
	return true
}

// primitiveGetAttribute answers a system attribute string, or nil.
func (in *Interpreter) primitiveGetAttribute(argCount int) bool {
	if argCount != 1 {
		return false
	}
	n, ok := in.stackSmallInt(0)
	if !ok {
		return false
	}
	result := in.mem.nilObj
	switch n {
	case 0:
		result = in.newString(in.vmPath())
	case 1:
		result = in.newString(in.opts.ImageName)
	case 1001:
		result = in.newString(runtime.GOOS)
	case 1002:
		result = in.newString(runtime.Version())
	case 1003:
		result = in.newString(runtime.GOARCH)
	}
	in.popNandPush(2, result)
	return true
}

func (in *Interpreter) primitiveDirectoryDelimiter(argCount int) bool {
	if argCount != 0 {
		return false
	}
	c, ok := in.characterFor(byte(os.PathSeparator))
	if !ok {
		return false
	}
	in.popNandPush(1, c)
	return true
}

// Uptime returns how long the interpreter has been running.
func (in *Interpreter) Uptime() time.Duration {
	return in.opts.Clock().Sub(in.startTime)
}
