package vm

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("gosqueak.vm")

// ---------------------------------------------------------------------------
// Fatal VM errors
// ---------------------------------------------------------------------------

var (
	ErrBadImageVersion     = errors.New("bad image version")
	ErrUnexpectedFreeBlock = errors.New("unexpected free block")
	ErrRecursiveDNU        = errors.New("recursive not understood error encountered")
	ErrCannotReturn        = errors.New("cannot return")
	ErrNoRunnableProcess   = errors.New("scheduler could not find a runnable process")
	ErrUnknownBytecode     = errors.New("unknown bytecode")
	ErrNoActiveProcess     = errors.New("image has no active process")
	ErrQuit                = errors.New("quit")
)

// FatalError carries an unrecoverable interpreter error from deep inside
// the bytecode loop up to Run.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// fatal aborts the interpreter loop. Run recovers it.
func fatal(err error, format string, args ...any) {
	if format != "" {
		err = errors.Wrapf(err, format, args...)
	}
	panic(&FatalError{Err: err})
}

func describe(v Value) string {
	if v.IsSmallInt() {
		return fmt.Sprintf("%d", v.SmallInt())
	}
	return fmt.Sprintf("oop %d", uint32(v>>1))
}
