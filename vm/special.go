package vm

// ---------------------------------------------------------------------------
// Special objects array indices
// ---------------------------------------------------------------------------

const (
	SpecialNil                       = 0
	SpecialFalse                     = 1
	SpecialTrue                      = 2
	SpecialSchedulerAssociation      = 3
	SpecialClassBitmap               = 4
	SpecialClassInteger              = 5
	SpecialClassString               = 6
	SpecialClassArray                = 7
	SpecialSmalltalkDictionary       = 8
	SpecialClassFloat                = 9
	SpecialClassMethodContext        = 10
	SpecialClassBlockContext         = 11
	SpecialClassPoint                = 12
	SpecialClassLargePositive        = 13
	SpecialTheDisplay                = 14
	SpecialClassMessage              = 15
	SpecialClassCompiledMethod       = 16
	SpecialTheLowSpaceSemaphore      = 17
	SpecialClassSemaphore            = 18
	SpecialClassCharacter            = 19
	SpecialSelectorDoesNotUnderstand = 20
	SpecialSelectorCannotReturn      = 21
	SpecialTheInputSemaphore         = 22
	SpecialSpecialSelectors          = 23
	SpecialCharacterTable            = 24
	SpecialSelectorMustBeBoolean     = 25
	SpecialClassByteArray            = 26
	SpecialClassProcess              = 27
	SpecialCompactClasses            = 28
	SpecialTheTimerSemaphore         = 29
	SpecialTheInterruptSemaphore     = 30
	SpecialFloatProto                = 31
	SpecialSelectorCannotInterpret   = 34
	SpecialMethodContextProto        = 35
	SpecialBlockContextProto         = 37
	SpecialExternalObjectsArray      = 38
	SpecialClassPseudoContext        = 39
	SpecialTheFinalizationSemaphore  = 41
	SpecialClassLargeNegative        = 42

	// SpecialObjectsSize is the length of the array written by Bootstrap.
	SpecialObjectsSize = 50
)

// ---------------------------------------------------------------------------
// Field indices of well-known classes
// ---------------------------------------------------------------------------

// Association
const (
	AssociationKey   = 0
	AssociationValue = 1
)

// Behavior
const (
	ClassSuperclass = 0
	ClassMethodDict = 1
	ClassFormat     = 2
	ClassInstVars   = 3
	ClassName       = 6
	MetaclassThis   = 5
)

// MethodDictionary: tally, values array, then selector keys.
const (
	MethodDictTally         = 0
	MethodDictArray         = 1
	MethodDictSelectorStart = 2
)

// Message
const (
	MessageSelector    = 0
	MessageArguments   = 1
	MessageLookupClass = 2
)

// Point
const (
	PointX = 0
	PointY = 1
)

// LinkedList / Link / Semaphore
const (
	LinkedListFirst = 0
	LinkedListLast  = 1
	LinkNext        = 0
	SemaphoreExcess = 2
)

// ProcessorScheduler / Process
const (
	SchedulerProcessLists  = 0
	SchedulerActiveProcess = 1

	ProcessSuspendedContext = 1
	ProcessPriority         = 2
	ProcessMyList           = 3
)

// Contexts
const (
	ContextSender         = 0
	ContextIP             = 1
	ContextSP             = 2
	ContextMethod         = 3
	ContextReceiver       = 5
	ContextTempFrameStart = 6
	BlockCaller           = 0
	BlockArgumentCount    = 3
	BlockInitialIP        = 4
	BlockHome             = 5

	SmallFrameSize = 16
	LargeFrameSize = 56
)

// Form
const (
	FormBits   = 0
	FormWidth  = 1
	FormHeight = 2
	FormDepth  = 3
	FormOffset = 4
)

// Stream
const (
	StreamArray      = 0
	StreamPosition   = 1
	StreamLimit      = 2
	StreamWriteLimit = 3
)

// CharacterValue is the value slot of a Character.
const CharacterValue = 0

// Special selector pairs: selector then argument count.
var specialSelectorNames = [32]string{
	"+", "-", "<", ">", "<=", ">=", "=", "~=",
	"*", "/", "\\\\", "@", "bitShift:", "//", "bitAnd:", "bitOr:",
	"at:", "at:put:", "size", "next", "nextPut:", "atEnd", "==", "class",
	"blockCopy:", "value", "value:", "do:", "new", "new:", "x", "y",
}

var specialSelectorArgs = [32]int{
	1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1,
	1, 2, 0, 0, 1, 0, 1, 0,
	1, 0, 1, 1, 0, 1, 0, 0,
}
