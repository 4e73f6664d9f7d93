package decoder

import "fmt"

// DecodeError mirrors spec component D's DecodeError kinds. It carries the
// packet offset at which decoding stopped, the same way encoder.EncodingError
// carries a source position, so a caller can report exactly where a trace
// went bad.
type DecodeError struct {
	Kind   DecodeErrorKind
	Offset int // byte offset into the packet buffer
	// Wrapped is set when Kind == NoSuchVAddr or TraceInterrupted and a
	// lower-level lookup produced additional context.
	Wrapped error
}

// DecodeErrorKind enumerates the terminal conditions the iterator can stop
// on (spec §4.2.5).
type DecodeErrorKind int

const (
	// NoMorePackets is the normal end of trace, not really an error.
	NoMorePackets DecodeErrorKind = iota
	// NoSuchVAddr: a TIP or disassembly step referenced an address with no
	// segment coverage.
	NoSuchVAddr
	// TraceBufferOverflow: the processor reported it dropped packets (OVF).
	TraceBufferOverflow
	// TraceInterrupted: a FUP packet appeared without a preceding unbound
	// MODE and did not match the supported [FUP, TIP.PGD, TIP.PGE] async
	// recovery pattern, or a PSB arrived while TNT bits were still pending.
	TraceInterrupted
)

func (k DecodeErrorKind) String() string {
	switch k {
	case NoMorePackets:
		return "NoMorePackets"
	case NoSuchVAddr:
		return "NoSuchVAddr"
	case TraceBufferOverflow:
		return "TraceBufferOverflow"
	case TraceInterrupted:
		return "TraceInterrupted"
	default:
		return "Unknown"
	}
}

// Recoverable reports whether a trace hitting this error should simply be
// discarded (bumping the originating location's error counter) rather than
// killing the recorder outright. Only TraceInterrupted is fatal (spec
// §4.2.5).
func (k DecodeErrorKind) Recoverable() bool {
	return k != TraceInterrupted
}

func (e *DecodeError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("decoder: %s at packet offset %d: %v", e.Kind, e.Offset, e.Wrapped)
	}
	return fmt.Sprintf("decoder: %s at packet offset %d", e.Kind, e.Offset)
}

func (e *DecodeError) Unwrap() error { return e.Wrapped }

func newDecodeError(kind DecodeErrorKind, offset int) *DecodeError {
	return &DecodeError{Kind: kind, Offset: offset}
}

func wrapDecodeError(kind DecodeErrorKind, offset int, err error) *DecodeError {
	return &DecodeError{Kind: kind, Offset: offset, Wrapped: err}
}
