package regalloc

import "fmt"

// AllocError reports a register allocation failure, in the same
// fmt.Errorf("%w", ...) wrapping style the teacher uses for
// conversion/memory errors (vm/safeconv.go, vm/memory.go).
type AllocError struct {
	IIdx    int
	Message string
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("regalloc: instruction %d: %s", e.IIdx, e.Message)
}

func newAllocError(iidx int, format string, args ...any) *AllocError {
	return &AllocError{IIdx: iidx, Message: fmt.Sprintf(format, args...)}
}
