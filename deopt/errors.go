package deopt

import "fmt"

// DeoptError reports a problem reconstructing or replaying state during a
// guard-failure stopgap. An Assert terminator failing its expected value
// (spec §4.4) is always a DeoptError: the compiler is presumed correct, so
// any mismatch here is an internal invariant violation, not user error.
type DeoptError struct {
	Message string
}

func (e *DeoptError) Error() string { return fmt.Sprintf("deopt: %s", e.Message) }

func newDeoptError(format string, args ...any) *DeoptError {
	return &DeoptError{Message: fmt.Sprintf(format, args...)}
}
