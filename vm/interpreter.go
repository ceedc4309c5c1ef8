package vm

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Default interpreter settings.
const (
	DefaultMethodCacheSize   = 1024
	DefaultAtCacheSize       = 32
	DefaultInterruptKey      = 2094
	DefaultLowSpaceThreshold = 2000
	DefaultYieldTimeout      = 33 * time.Millisecond
)

// Options configures an Interpreter.
type Options struct {
	MethodCacheSize   int
	AtCacheSize       int
	InterruptKey      int
	LowSpaceThreshold int
	YieldTimeout      time.Duration
	ImageName         string
	VMPath            string

	// Collaborators. A nil collaborator makes its primitives fail.
	Display   Display
	Input     Input
	Clipboard Clipboard

	// Profiler, when set, counts method invocations.
	Profiler *Profiler

	// Clock overrides the wall clock, for tests.
	Clock func() time.Time
}

// Stats counts interpreter activity.
type Stats struct {
	Bytecodes         uint64
	Sends             uint64
	PrimitiveCalls    uint64
	PrimitiveFailures uint64
	ContextsRecycled  uint64
	ProcessSwitches   uint64
}

// ---------------------------------------------------------------------------
// Interpreter: bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes Squeak bytecodes against a Memory. It is the single
// owner of all machine state; nothing is kept in package globals.
type Interpreter struct {
	mem  *Memory
	opts Options

	// Active context registers
	activeContext Value
	activeSlots   []Value
	homeContext   Value
	homeSlots     []Value
	receiver      Value
	method        Value
	header        MethodHeader
	literals      []Value
	bytecodes     []byte
	pc            int
	sp            int

	// Send state
	messageSelector  Value
	argumentCount    int
	lookupClass      Value
	newMethod        Value
	primitiveIndex   int
	verifyAtSelector Value
	verifyAtClass    Value

	success                 bool
	reclaimableContextCount int
	pool                    contextPool

	methodCache *MethodCache
	atCache     *AtCache
	atPutCache  *AtCache

	// Interrupts
	interruptCheckCounter int
	interruptFeedback     int
	lastTick              int64
	nextWakeupTick        int64
	lowSpaceThreshold     int
	lowSpaceSignalled     bool
	interruptKey          int
	startTime             time.Time

	// Cross-goroutine requests, drained at the next interrupt check.
	mu               sync.Mutex
	interruptPending bool
	pendingSignals   []int

	stats Stats
}

// NewInterpreter creates an interpreter over mem and registers itself as
// the memory's root provider.
func NewInterpreter(mem *Memory, opts Options) *Interpreter {
	if opts.MethodCacheSize <= 0 {
		opts.MethodCacheSize = DefaultMethodCacheSize
	}
	if opts.AtCacheSize <= 0 {
		opts.AtCacheSize = DefaultAtCacheSize
	}
	if opts.InterruptKey == 0 {
		opts.InterruptKey = DefaultInterruptKey
	}
	if opts.LowSpaceThreshold <= 0 {
		opts.LowSpaceThreshold = DefaultLowSpaceThreshold
	}
	if opts.YieldTimeout <= 0 {
		opts.YieldTimeout = DefaultYieldTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	in := &Interpreter{
		mem:                   mem,
		opts:                  opts,
		methodCache:           NewMethodCache(opts.MethodCacheSize),
		atCache:               NewAtCache(opts.AtCacheSize),
		atPutCache:            NewAtCache(opts.AtCacheSize),
		interruptCheckCounter: interruptFeedbackFloor,
		interruptFeedback:     interruptFeedbackFloor,
		lowSpaceThreshold:     opts.LowSpaceThreshold,
		interruptKey:          opts.InterruptKey,
		startTime:             opts.Clock(),
	}
	in.pool.reset()
	in.watchInterruptKey()
	mem.SetRoots(in)
	return in
}

// Memory returns the interpreter's object memory.
func (in *Interpreter) Memory() *Memory {
	return in.mem
}

// Stats returns a copy of the activity counters.
func (in *Interpreter) Stats() Stats {
	return in.stats
}

// MethodCache returns the global method cache.
func (in *Interpreter) MethodCache() *MethodCache {
	return in.methodCache
}

// ActiveContext returns the active context.
func (in *Interpreter) ActiveContext() Value {
	return in.activeContext
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

// Start activates the suspended context of the scheduler's active process.
func (in *Interpreter) Start() error {
	proc := in.mem.Get(in.activeProcess())
	if proc == nil {
		return ErrNoActiveProcess
	}
	ctx, _ := proc.Fetch(ProcessSuspendedContext)
	if in.mem.Get(ctx) == nil {
		return errors.Wrap(ErrNoActiveProcess, "active process has no suspended context")
	}
	proc.Store(ProcessSuspendedContext, in.mem.nilObj)
	in.activeContext = ctx
	in.fetchContextRegisters()
	in.mem.SafePoint()
	return nil
}

// Run executes bytecodes until the image quits or a fatal error occurs.
// Quitting returns nil.
func (in *Interpreter) Run() error {
	return in.execute(-1)
}

// RunSteps executes at most n bytecodes.
func (in *Interpreter) RunSteps(n int) error {
	return in.execute(n)
}

func (in *Interpreter) execute(n int) (err error) {
	if in.activeContext == Invalid {
		if err := in.Start(); err != nil {
			return err
		}
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fe, ok := r.(*FatalError); ok {
			if errors.Is(fe.Err, ErrQuit) {
				err = nil
				return
			}
			err = fe.Err
			log.Errorf("fatal: %s", err)
			return
		}
		err = errors.Errorf("interpreter fault at pc %d in %s: %v", in.pc, in.describeMethod(), r)
		log.Criticalf("%s", err)
	}()
	for i := 0; n < 0 || i < n; i++ {
		in.Step()
	}
	return nil
}

// Step executes one bytecode.
func (in *Interpreter) Step() {
	b := in.bytecodes[in.pc]
	in.pc++
	in.stats.Bytecodes++
	bytecodeTable[b](in, b)
}

func (in *Interpreter) describeMethod() string {
	if in.method == Invalid {
		return "no method"
	}
	return fmt.Sprintf("method of %s", in.mem.names.Describe(in.receiver))
}

// ---------------------------------------------------------------------------
// Context registers
// ---------------------------------------------------------------------------

func (in *Interpreter) fetchContextRegisters() {
	ctx := in.mem.Get(in.activeContext)
	in.activeSlots = ctx.Body.(*PointersBody).Slots
	if in.activeSlots[ContextMethod].IsSmallInt() {
		in.homeContext = in.activeSlots[BlockHome]
	} else {
		in.homeContext = in.activeContext
	}
	in.homeSlots = in.mem.Get(in.homeContext).Body.(*PointersBody).Slots
	in.receiver = in.homeSlots[ContextReceiver]
	in.method = in.homeSlots[ContextMethod]
	body := in.mem.Get(in.method).Body.(*MethodBody)
	in.literals = body.Literals
	in.bytecodes = body.Bytecodes
	in.header = MethodHeader(body.Literals[0].SmallInt())
	in.pc = decodePC(in.activeSlots[ContextIP], in.header)
	in.sp = decodeSP(in.activeSlots[ContextSP])
}

func (in *Interpreter) storeContextRegisters() {
	in.activeSlots[ContextIP] = encodePC(in.pc, in.header)
	in.activeSlots[ContextSP] = encodeSP(in.sp)
}

// newActiveContext saves the registers of the active context and switches
// to ctx.
func (in *Interpreter) newActiveContext(ctx Value) {
	in.storeContextRegisters()
	in.activeContext = ctx
	in.fetchContextRegisters()
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (in *Interpreter) push(v Value) {
	in.sp++
	in.activeSlots[in.sp] = v
}

func (in *Interpreter) pop() Value {
	v := in.activeSlots[in.sp]
	in.sp--
	return v
}

func (in *Interpreter) popN(n int) {
	in.sp -= n
}

func (in *Interpreter) top() Value {
	return in.activeSlots[in.sp]
}

func (in *Interpreter) stackValue(n int) Value {
	return in.activeSlots[in.sp-n]
}

func (in *Interpreter) popNandPush(n int, v Value) {
	in.sp -= n - 1
	in.activeSlots[in.sp] = v
}

// StackValue returns the value n entries below the top of the active stack.
func (in *Interpreter) StackValue(n int) Value {
	return in.stackValue(n)
}

// StackDepth returns the number of temporaries and stack entries of the
// active context.
func (in *Interpreter) StackDepth() int {
	return in.sp - (ContextTempFrameStart - 1)
}

// ---------------------------------------------------------------------------
// Roots
// ---------------------------------------------------------------------------

// EnumerateRoots reports every reference held in interpreter registers.
func (in *Interpreter) EnumerateRoots(visit func(Value)) {
	visit(in.activeContext)
	visit(in.homeContext)
	visit(in.receiver)
	visit(in.method)
	visit(in.messageSelector)
	visit(in.lookupClass)
	visit(in.newMethod)
	visit(in.verifyAtSelector)
	visit(in.verifyAtClass)
}

// FlushCaches drops every cached identity: method and at caches and the
// recycled context lists.
func (in *Interpreter) FlushCaches() {
	in.methodCache.Flush()
	in.atCache.Flush()
	in.atPutCache.Flush()
	in.pool.reset()
	if in.opts.Profiler != nil {
		in.opts.Profiler.Forget(func(v Value) bool { return in.mem.Get(v) != nil })
	}
}
