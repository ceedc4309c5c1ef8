package vm

// ---------------------------------------------------------------------------
// Interrupt polling
// ---------------------------------------------------------------------------

const (
	interruptFeedbackFloor = 1000
	interruptFastPollMs    = 3
)

// MillisecondClock returns milliseconds since the interpreter started,
// masked to a positive SmallInteger.
func (in *Interpreter) MillisecondClock() int64 {
	return in.opts.Clock().Sub(in.startTime).Milliseconds() & (MaxSmallInt >> 1)
}

// Interrupt requests that the interrupt semaphore be signalled, as if the
// interrupt key had been pressed. Safe to call from any goroutine.
func (in *Interpreter) Interrupt() {
	in.mu.Lock()
	in.interruptPending = true
	in.mu.Unlock()
}

// SignalSemaphoreExternally queues a signal for the semaphore at the
// one-based index of the external objects array. Safe to call from any
// goroutine.
func (in *Interpreter) SignalSemaphoreExternally(index int) {
	in.mu.Lock()
	in.pendingSignals = append(in.pendingSignals, index)
	in.mu.Unlock()
}

// forceInterruptCheck makes the next poll sample the clock.
func (in *Interpreter) forceInterruptCheck() {
	in.interruptCheckCounter = 0
}

// checkForInterrupts is called on every activation and backward jump, both
// of which are safepoints for reclamation. The clock
// is only sampled when the counter runs out; the counter's reset value
// adapts so that sampling happens a few times per millisecond at most.
func (in *Interpreter) checkForInterrupts() {
	in.mem.SafePoint()
	in.interruptCheckCounter--
	if in.interruptCheckCounter > 0 {
		return
	}
	now := in.MillisecondClock()
	if now < in.lastTick {
		// clock wrapped
		if in.nextWakeupTick != 0 {
			in.nextWakeupTick = now + (in.nextWakeupTick - in.lastTick)
		}
	} else if now-in.lastTick < interruptFastPollMs {
		in.interruptFeedback += 10
	} else {
		in.interruptFeedback -= 12
		if in.interruptFeedback < interruptFeedbackFloor {
			in.interruptFeedback = interruptFeedbackFloor
		}
	}
	in.interruptCheckCounter = in.interruptFeedback
	in.lastTick = now

	in.pollInput()

	if !in.lowSpaceSignalled && in.mem.FreeSlots() < in.lowSpaceThreshold {
		in.lowSpaceSignalled = true
		in.signalSpecialSemaphore(SpecialTheLowSpaceSemaphore)
	}

	in.mu.Lock()
	interrupt := in.interruptPending
	in.interruptPending = false
	signals := in.pendingSignals
	in.pendingSignals = nil
	in.mu.Unlock()

	if interrupt {
		in.signalSpecialSemaphore(SpecialTheInterruptSemaphore)
	}
	if in.nextWakeupTick != 0 && now >= in.nextWakeupTick {
		in.nextWakeupTick = 0
		in.signalSpecialSemaphore(SpecialTheTimerSemaphore)
	}
	if len(signals) > 0 {
		external := in.mem.Get(in.mem.Special(SpecialExternalObjectsArray))
		for _, i := range signals {
			if external == nil {
				break
			}
			if sem, ok := external.Fetch(i - 1); ok {
				in.signalSemaphore(sem)
			}
		}
	}
}

// takeInterruptKeys removes interrupt keys from the head of the input
// queue and marks an interrupt pending for each. It reports whether any
// were found.
func (in *Interpreter) takeInterruptKeys() bool {
	if in.opts.Input == nil {
		return false
	}
	found := false
	for {
		key, ok := in.opts.Input.PeekKey()
		if !ok || key != in.interruptKey {
			return found
		}
		in.opts.Input.NextKey()
		in.Interrupt()
		found = true
	}
}

// pollInput signals the input semaphore once per host event, if the image
// registered one.
func (in *Interpreter) pollInput() {
	if in.opts.Input == nil {
		return
	}
	in.takeInterruptKeys()
	if !in.isInstanceOf(in.mem.Special(SpecialTheInputSemaphore), SpecialClassSemaphore) {
		return
	}
	select {
	case <-in.opts.Input.Events():
		in.signalSpecialSemaphore(SpecialTheInputSemaphore)
	default:
	}
}

// signalSpecialSemaphore signals the semaphore in a special objects slot,
// if one is registered.
func (in *Interpreter) signalSpecialSemaphore(index int) {
	in.signalSemaphore(in.mem.Special(index))
}

func (in *Interpreter) signalSemaphore(sem Value) {
	if in.mem.ClassOf(sem) != in.mem.Special(SpecialClassSemaphore) {
		return
	}
	in.synchronousSignal(sem)
}
