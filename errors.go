package surfrecon

import (
	"fmt"
	"runtime"
)

// ErrorKind classifies a ReconstructionError so a CLI layer can map it to
// an exit code without string-matching messages.
type ErrorKind int

const (
	// ConfigInvalid: nonpositive radius, h, Δ, or zero subdomain size; an
	// AABB with min >= max.
	ConfigInvalid ErrorKind = iota
	// NumericDomain: computed grid size exceeds addressable index space,
	// or subdomain count overflows a 32-bit index.
	NumericDomain
	// EmptyInput: no particle falls inside the clip region.
	EmptyInput
	// Degenerate: iso-surface extraction found zero vertices.
	Degenerate
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case NumericDomain:
		return "NumericDomain"
	case EmptyInput:
		return "EmptyInput"
	case Degenerate:
		return "Degenerate"
	default:
		return "Unknown"
	}
}

// ReconstructionError is the error type returned across the public API
// boundary. EmptyInput and Degenerate are recoverable: a caller driving a
// sequence of frames can treat them as "no surface this frame" and
// continue. ConfigInvalid and NumericDomain abort the single reconstruction.
type ReconstructionError struct {
	Kind ErrorKind
	msg  string
}

func (e *ReconstructionError) Error() string {
	return e.msg
}

// Recoverable reports whether the caller can continue processing further
// frames after receiving this error.
func (e *ReconstructionError) Recoverable() bool {
	return e.Kind == EmptyInput || e.Kind == Degenerate
}

// errMsg builds a ReconstructionError tagged with kind, annotating the
// message with the caller's function name and line for debuggability.
func errMsg(kind ErrorKind, format string, args ...any) *ReconstructionError {
	msg := fmt.Sprintf(format, args...)
	pc, _, line, ok := runtime.Caller(2)
	if !ok {
		return &ReconstructionError{Kind: kind, msg: fmt.Sprintf("%s: %s", kind, msg)}
	}
	fn := runtime.FuncForPC(pc)
	return &ReconstructionError{Kind: kind, msg: fmt.Sprintf("%s: %s line %d: %s", kind, fn.Name(), line, msg)}
}

func newConfigError(format string, args ...any) *ReconstructionError {
	return errMsg(ConfigInvalid, format, args...)
}

func newNumericDomainError(format string, args ...any) *ReconstructionError {
	return errMsg(NumericDomain, format, args...)
}

func newEmptyInputError(format string, args ...any) *ReconstructionError {
	return errMsg(EmptyInput, format, args...)
}

func newDegenerateError(format string, args ...any) *ReconstructionError {
	return errMsg(Degenerate, format, args...)
}
