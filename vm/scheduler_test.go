package vm

import (
	"testing"

	"github.com/pkg/errors"
)

// idleMethod answers self. Its large frame leaves room for pushes.
func (ti *testImage) idleMethod() Value {
	return NewMethodBuilder(0).SetLargeFrame().Emit(BytecodeReturnSelf).Build(ti.Mem)
}

// startAt makes a process of the given priority active and returns it with
// a started interpreter.
func (ti *testImage) startAt(priority int) (*Interpreter, Value) {
	ti.t.Helper()
	p := ti.NewProcess(priority, ti.NewContext(ti.idleMethod(), ti.Mem.Nil()))
	ti.SetActiveProcess(p)
	in := NewInterpreter(ti.Mem, Options{})
	if err := in.Start(); err != nil {
		ti.t.Fatalf("Start: %v", err)
	}
	return in, p
}

func (ti *testImage) readyProcess(priority int) Value {
	return ti.NewProcess(priority, ti.NewContext(ti.idleMethod(), ti.Mem.Nil()))
}

func readyList(in *Interpreter, priority int) Value {
	v, _ := in.processLists().Fetch(priority - 1)
	return v
}

func catchFatal(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			err = fe.Err
		}
	}()
	fn()
	return nil
}

const (
	primSignal  = 85
	primWait    = 86
	primResume  = 87
	primSuspend = 88
	primYield   = 167
)

func TestExcessSignalThenWait(t *testing.T) {
	ti := newTestImage(t)
	in, p := ti.startAt(4)
	sem := ti.NewSemaphore()

	pushAll(in, sem)
	if !primitiveTable[primSignal](in, 0) {
		t.Fatal("signal failed")
	}
	excess, _ := ti.Mem.Get(sem).Fetch(SemaphoreExcess)
	if excess != FromSmallInt(1) {
		t.Fatalf("excess = %s, want 1", describe(excess))
	}

	if !primitiveTable[primWait](in, 0) {
		t.Fatal("wait failed")
	}
	excess, _ = ti.Mem.Get(sem).Fetch(SemaphoreExcess)
	if excess != FromSmallInt(0) {
		t.Errorf("excess = %s, want 0", describe(excess))
	}
	if in.ActiveProcess() != p {
		t.Error("waiting on a signalled semaphore must not switch processes")
	}
	if in.Stats().ProcessSwitches != 0 {
		t.Errorf("process switches = %d, want 0", in.Stats().ProcessSwitches)
	}
}

func TestResumeHigherPriorityPreempts(t *testing.T) {
	ti := newTestImage(t)
	in, p3 := ti.startAt(3)
	oldCtx := in.ActiveContext()
	p5 := ti.readyProcess(5)
	p5Ctx, _ := ti.Mem.Get(p5).Fetch(ProcessSuspendedContext)

	pushAll(in, p5)
	if !primitiveTable[primResume](in, 0) {
		t.Fatal("resume failed")
	}
	if in.ActiveProcess() != p5 {
		t.Fatal("higher priority process should run immediately")
	}
	if in.ActiveContext() != p5Ctx {
		t.Error("active context should be the resumed process's context")
	}
	proc := ti.Mem.Get(p3)
	if ctx, _ := proc.Fetch(ProcessSuspendedContext); ctx != oldCtx {
		t.Error("preempted process should keep its context")
	}
	if list, _ := proc.Fetch(ProcessMyList); list != readyList(in, 3) {
		t.Error("preempted process should be on the priority 3 ready list")
	}
	if in.Stats().ProcessSwitches != 1 {
		t.Errorf("process switches = %d, want 1", in.Stats().ProcessSwitches)
	}
}

func TestResumeLowerOrEqualPriorityEnqueues(t *testing.T) {
	for _, priority := range []int{3, 4} {
		ti := newTestImage(t)
		in, p4 := ti.startAt(4)
		other := ti.readyProcess(priority)

		pushAll(in, other)
		if !primitiveTable[primResume](in, 0) {
			t.Fatal("resume failed")
		}
		if in.ActiveProcess() != p4 {
			t.Errorf("priority %d: resume should not preempt priority 4", priority)
		}
		first, _ := ti.Mem.Get(readyList(in, priority)).Fetch(LinkedListFirst)
		if first != other {
			t.Errorf("priority %d: resumed process should be first on its ready list", priority)
		}
	}
}

func TestResumeWithoutContextFails(t *testing.T) {
	ti := newTestImage(t)
	in, _ := ti.startAt(4)
	pushAll(in, ti.NewProcess(5, ti.Mem.Nil()))
	if primitiveTable[primResume](in, 0) {
		t.Error("resuming a process without a context should fail")
	}
}

func TestWaitBlocksAndSignalWakes(t *testing.T) {
	ti := newTestImage(t)
	in, p1 := ti.startAt(4)
	p2 := ti.readyProcess(4)
	sem := ti.NewSemaphore()

	pushAll(in, p2)
	primitiveTable[primResume](in, 0)
	in.pop()

	pushAll(in, sem)
	if !primitiveTable[primWait](in, 0) {
		t.Fatal("wait failed")
	}
	if in.ActiveProcess() != p2 {
		t.Fatal("waiting should switch to the next ready process")
	}
	if first, _ := ti.Mem.Get(sem).Fetch(LinkedListFirst); first != p1 {
		t.Error("waiting process should be queued on the semaphore")
	}

	pushAll(in, sem)
	if !primitiveTable[primSignal](in, 0) {
		t.Fatal("signal failed")
	}
	if in.ActiveProcess() != p2 {
		t.Error("waking an equal priority process should not preempt")
	}
	if first, _ := ti.Mem.Get(readyList(in, 4)).Fetch(LinkedListFirst); first != p1 {
		t.Error("woken process should be ready")
	}
	if !in.isEmptyList(sem) {
		t.Error("semaphore should have no waiters")
	}
}

func TestYieldRotatesPeers(t *testing.T) {
	ti := newTestImage(t)
	in, p1 := ti.startAt(4)

	if !primitiveTable[primYield](in, 0) {
		t.Fatal("yield failed")
	}
	if in.ActiveProcess() != p1 || in.Stats().ProcessSwitches != 0 {
		t.Error("yield without peers should keep running")
	}

	p2 := ti.readyProcess(4)
	pushAll(in, p2)
	primitiveTable[primResume](in, 0)
	in.pop()
	primitiveTable[primYield](in, 0)
	if in.ActiveProcess() != p2 {
		t.Error("yield should switch to the waiting peer")
	}
	if first, _ := ti.Mem.Get(readyList(in, 4)).Fetch(LinkedListFirst); first != p1 {
		t.Error("yielding process should go to the back of its list")
	}
}

func TestSuspendSwitchesToHighestReady(t *testing.T) {
	ti := newTestImage(t)
	in, p4 := ti.startAt(4)
	low := ti.readyProcess(2)
	high := ti.readyProcess(3)
	for _, p := range []Value{low, high} {
		pushAll(in, p)
		primitiveTable[primResume](in, 0)
		in.pop()
	}

	pushAll(in, p4)
	if !primitiveTable[primSuspend](in, 0) {
		t.Fatal("suspend failed")
	}
	if in.ActiveProcess() != high {
		t.Error("suspend should run the highest priority ready process")
	}
}

func TestSuspendOtherProcessFails(t *testing.T) {
	ti := newTestImage(t)
	in, _ := ti.startAt(4)
	pushAll(in, ti.readyProcess(3))
	if primitiveTable[primSuspend](in, 0) {
		t.Error("suspending a process that is not running should fail")
	}
}

func TestSuspendWithNothingReadyIsFatal(t *testing.T) {
	ti := newTestImage(t)
	in, p := ti.startAt(4)
	pushAll(in, p)
	err := catchFatal(func() { primitiveTable[primSuspend](in, 0) })
	if errors.Cause(err) != ErrNoRunnableProcess {
		t.Errorf("suspend = %v, want %v", err, ErrNoRunnableProcess)
	}
}

func TestRemoveLink(t *testing.T) {
	ti := newTestImage(t)
	in, _ := ti.startAt(4)
	list := readyList(in, 2)
	a, b, c := ti.readyProcess(2), ti.readyProcess(2), ti.readyProcess(2)
	for _, p := range []Value{a, b, c} {
		in.linkedListAddLast(list, p)
	}

	if !in.removeLink(list, c) {
		t.Fatal("removeLink(c) = false")
	}
	if last, _ := ti.Mem.Get(list).Fetch(LinkedListLast); last != b {
		t.Error("removing the last link should move the tail")
	}
	if in.removeLink(list, c) {
		t.Error("c is no longer on the list")
	}
	if got := in.removeFirstLink(list); got != a {
		t.Error("first link should be a")
	}
	if got := in.removeFirstLink(list); got != b || !in.isEmptyList(list) {
		t.Error("list should be empty after removing b")
	}
}
