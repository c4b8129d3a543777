package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Load errors
// ---------------------------------------------------------------------------

// Sentinel load errors. Use errors.Is to classify a *LoadError.
var (
	ErrMalformed        = errors.New("malformed class")
	ErrUnresolvedSymbol = errors.New("unresolved symbol")
	ErrClassNotFound    = errors.New("class not found")
)

// LoadErrorKind classifies a class loading failure.
type LoadErrorKind int

const (
	// LoadMalformed covers format, structural, and verification failures.
	LoadMalformed LoadErrorKind = iota
	// LoadUnresolvedSymbol covers references to classes, fields, or methods
	// that cannot be found.
	LoadUnresolvedSymbol
)

// String implements the Stringer interface.
func (k LoadErrorKind) String() string {
	if k == LoadUnresolvedSymbol {
		return "UnresolvedSymbol"
	}
	return "Malformed"
}

// LoadError is returned by the loader when a class cannot be defined,
// linked, or verified.
type LoadError struct {
	Kind   LoadErrorKind
	Class  string
	Detail string
	Err    error
}

func (e *LoadError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Class != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Class)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *LoadError) Unwrap() []error {
	sentinel := ErrMalformed
	if e.Kind == LoadUnresolvedSymbol {
		sentinel = ErrUnresolvedSymbol
	}
	if e.Err != nil {
		return []error{sentinel, e.Err}
	}
	return []error{sentinel}
}

func malformed(class, format string, args ...any) *LoadError {
	return &LoadError{Kind: LoadMalformed, Class: class, Detail: fmt.Sprintf(format, args...)}
}

func unresolved(class, format string, args ...any) *LoadError {
	return &LoadError{Kind: LoadUnresolvedSymbol, Class: class, Detail: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// Runtime faults
// ---------------------------------------------------------------------------

// FaultKind classifies a runtime fault.
type FaultKind int

const (
	FaultInternal FaultKind = iota
	FaultDivideByZero
	FaultOutOfBounds
	FaultNullReference
	FaultNegativeLength
	FaultHeapExhausted
	FaultUnresolvedNative
	FaultClassCast
	FaultStackOverflow
	FaultUnsupported
	FaultNativeError
	FaultInterrupted
)

// Sentinel runtime errors, one per fault kind.
var (
	ErrInternal         = errors.New("internal error")
	ErrDivideByZero     = errors.New("divide by zero")
	ErrOutOfBounds      = errors.New("index out of bounds")
	ErrNullReference    = errors.New("null reference")
	ErrNegativeLength   = errors.New("negative array length")
	ErrHeapExhausted    = errors.New("heap exhausted")
	ErrUnresolvedNative = errors.New("unresolved native method")
	ErrClassCast        = errors.New("class cast")
	ErrStackOverflow    = errors.New("stack overflow")
	ErrUnsupported      = errors.New("unsupported operation")
	ErrNativeError      = errors.New("native method failed")
	ErrInterrupted      = errors.New("interrupted")
)

var faultSentinels = [...]error{
	FaultInternal:         ErrInternal,
	FaultDivideByZero:     ErrDivideByZero,
	FaultOutOfBounds:      ErrOutOfBounds,
	FaultNullReference:    ErrNullReference,
	FaultNegativeLength:   ErrNegativeLength,
	FaultHeapExhausted:    ErrHeapExhausted,
	FaultUnresolvedNative: ErrUnresolvedNative,
	FaultClassCast:        ErrClassCast,
	FaultStackOverflow:    ErrStackOverflow,
	FaultUnsupported:      ErrUnsupported,
	FaultNativeError:      ErrNativeError,
	FaultInterrupted:      ErrInterrupted,
}

var faultNames = [...]string{
	FaultInternal:         "Internal",
	FaultDivideByZero:     "DivideByZero",
	FaultOutOfBounds:      "OutOfBounds",
	FaultNullReference:    "NullReference",
	FaultNegativeLength:   "NegativeLength",
	FaultHeapExhausted:    "HeapExhausted",
	FaultUnresolvedNative: "UnresolvedNative",
	FaultClassCast:        "ClassCast",
	FaultStackOverflow:    "StackOverflow",
	FaultUnsupported:      "Unsupported",
	FaultNativeError:      "NativeError",
	FaultInterrupted:      "Interrupted",
}

// String implements the Stringer interface.
func (k FaultKind) String() string {
	if int(k) >= 0 && int(k) < len(faultNames) {
		return faultNames[k]
	}
	return fmt.Sprintf("FaultKind(%d)", int(k))
}

// Category returns the fault family the kind belongs to.
func (k FaultKind) Category() string {
	switch k {
	case FaultDivideByZero:
		return "ArithmeticFault"
	case FaultOutOfBounds:
		return "IndexFault"
	case FaultNullReference:
		return "NullFault"
	case FaultNegativeLength, FaultHeapExhausted:
		return "AllocationFault"
	case FaultUnresolvedNative:
		return "LinkFault"
	}
	return k.String()
}

func (k FaultKind) sentinel() error {
	if int(k) >= 0 && int(k) < len(faultSentinels) {
		return faultSentinels[k]
	}
	return ErrInternal
}

// TraceEntry is one frame of an interpreter stack trace.
type TraceEntry struct {
	Class  string
	Method string
	PC     int
}

// String implements the Stringer interface.
func (t TraceEntry) String() string {
	return fmt.Sprintf("%s.%s@%d", t.Class, t.Method, t.PC)
}

// Fault is a runtime error raised while executing bytecode. Faults are not
// catchable by bytecode: they unwind the whole invocation and are returned to
// the host.
type Fault struct {
	Kind       FaultKind
	Message    string
	Class      string
	Method     string
	Descriptor string
	PC         int
	Opcode     string
	Operands   []Value
	Trace      []TraceEntry
	Err        error

	located bool
}

func (f *Fault) Error() string {
	var sb strings.Builder
	sb.WriteString(f.Kind.Category())
	if cat := f.Kind.Category(); cat != f.Kind.String() {
		sb.WriteString("/")
		sb.WriteString(f.Kind.String())
	}
	if f.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(f.Message)
	}
	if f.located {
		fmt.Fprintf(&sb, " at %s.%s%s pc=%d", f.Class, f.Method, f.Descriptor, f.PC)
		if f.Opcode != "" {
			fmt.Fprintf(&sb, " (%s", f.Opcode)
			for _, v := range f.Operands {
				sb.WriteString(" ")
				sb.WriteString(v.String())
			}
			sb.WriteString(")")
		}
	}
	if f.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(f.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes the kind sentinel and the underlying cause.
func (f *Fault) Unwrap() []error {
	if f.Err != nil {
		return []error{f.Kind.sentinel(), f.Err}
	}
	return []error{f.Kind.sentinel()}
}

// StackTrace formats the trace one frame per line, innermost first.
func (f *Fault) StackTrace() string {
	var sb strings.Builder
	for _, t := range f.Trace {
		sb.WriteString("\tat ")
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

func newFault(kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// asFault converts any error raised during execution into a *Fault.
func asFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: FaultInternal, Err: err}
}
