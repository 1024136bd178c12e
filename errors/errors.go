package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister  Phase = "register"   // type registration
	PhaseWrap      Phase = "wrap"       // native to managed
	PhaseUnwrap    Phase = "unwrap"     // managed to native
	PhaseLifecycle Phase = "lifecycle"  // instance allocation and deallocation
	PhaseKeepAlive Phase = "keep_alive" // lifetime coupling
	PhaseHost      Phase = "host"       // managed environment operations
	PhaseMemory    Phase = "memory"     // heap operations
	PhaseConfig    Phase = "config"     // option loading
	PhaseShutdown  Phase = "shutdown"   // context teardown
)

// Kind categorizes the error
type Kind string

const (
	KindInvariant      Kind = "invariant"
	KindDuplicate      Kind = "duplicate"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindNoConversion   Kind = "no_conversion"
	KindInvalidInput   Kind = "invalid_input"
	KindUnsupported    Kind = "unsupported"
	KindAllocation     Kind = "allocation"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindTypeMismatch   Kind = "type_mismatch"
	KindAttribute      Kind = "attribute"
	KindWeakRef        Kind = "weak_reference"
	KindClosed         Kind = "closed"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	TypeName string // registered display name of the native type
	HostType string // name of the managed type object
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.TypeName != "" || e.HostType != "" {
		b.WriteString(": ")
		if e.TypeName != "" && e.HostType != "" {
			b.WriteString("native type ")
			b.WriteString(e.TypeName)
			b.WriteString(", host type ")
			b.WriteString(e.HostType)
		} else if e.TypeName != "" {
			b.WriteString("native type ")
			b.WriteString(e.TypeName)
		} else {
			b.WriteString("host type ")
			b.WriteString(e.HostType)
		}
	}

	if e.Detail != "" {
		if e.TypeName != "" || e.HostType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error belongs to the invariant-violation tier.
func (e *Error) Fatal() bool {
	return e.Kind == KindInvariant
}

// IsFatal reports whether err is, or wraps, an invariant violation.
func IsFatal(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Fatal() {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HasKind reports whether err is, or wraps, an *Error of the given kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// TypeName sets the native type display name
func (b *Builder) TypeName(t string) *Builder {
	b.err.TypeName = t
	return b
}

// HostType sets the managed type name
func (b *Builder) HostType(t string) *Builder {
	b.err.HostType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Invariant creates a fatal invariant-violation error
func Invariant(phase Phase, typeName string, format string, args ...any) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvariant,
		TypeName: typeName,
		Detail:   fmt.Sprintf(format, args...),
	}
}

// NotInitialized creates an error for access to an instance whose payload is not constructed
func NotInitialized(phase Phase, typeName string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindNotInitialized,
		TypeName: typeName,
		Detail:   "attempted to access an uninitialized instance",
	}
}

// NoConversion signals that the caller should try an alternative code path
func NoConversion(phase Phase, typeName, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindNoConversion,
		TypeName: typeName,
		Detail:   detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// OutOfBounds creates an address range error
func OutOfBounds(phase Phase, addr, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%#x, %#x) is not mapped", addr, addr+length),
		Value:  addr,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// TypeMismatch creates a type mismatch error between a native and a host type
func TypeMismatch(phase Phase, typeName, hostType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		TypeName: typeName,
		HostType: hostType,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Attribute creates an attribute access error on a host type
func Attribute(hostType, detail string) *Error {
	return &Error{
		Phase:    PhaseHost,
		Kind:     KindAttribute,
		HostType: hostType,
		Detail:   detail,
	}
}

// Closed creates an error for use of a context after shutdown
func Closed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: "bridge context is closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Leak describes a single object still alive at shutdown
type Leak struct {
	Type string // native type display name, or mangled name when unknown
	Addr uint64
}

// LeaksError is returned when a context is torn down while objects are still alive
type LeaksError struct {
	Instances []Leak
	Types     []string
	KeepAlive int
}

// NewLeaksError creates an error from leaked instances and types
func NewLeaksError(instances []Leak, types []string, keepAlive int) *LeaksError {
	return &LeaksError{
		Instances: instances,
		Types:     types,
		KeepAlive: keepAlive,
	}
}

// Empty reports whether nothing leaked
func (e *LeaksError) Empty() bool {
	return len(e.Instances) == 0 && len(e.Types) == 0 && e.KeepAlive == 0
}

// demangle attempts to extract a readable name from an Itanium-style nested name
func demangle(name string) string {
	s := name
	switch {
	case strings.HasPrefix(s, "_ZN"):
		s = s[3:]
	case strings.HasPrefix(s, "N"):
		s = s[1:]
	default:
		return name
	}

	// Format: <len><name><len><name>...E
	var parts []string

	for len(s) > 0 && s[0] != 'E' {
		// Read length (can be multiple digits)
		lenEnd := 0
		for lenEnd < len(s) && s[lenEnd] >= '0' && s[lenEnd] <= '9' {
			lenEnd++
		}
		if lenEnd == 0 {
			return name
		}

		length := 0
		for i := 0; i < lenEnd; i++ {
			length = length*10 + int(s[i]-'0')
		}
		s = s[lenEnd:]

		if length > len(s) {
			return name
		}

		parts = append(parts, s[:length])
		s = s[length:]
	}

	if len(parts) == 0 {
		return name
	}

	return strings.Join(parts, "::")
}

// Demangle returns a readable form of a mangled native type name, or the name unchanged
func Demangle(name string) string {
	return demangle(name)
}

func (e *LeaksError) Error() string {
	if e.Empty() {
		return "[shutdown] leak: nothing leaked"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("leaked %d instance(s), %d type(s), %d pending keep-alive list(s)",
		len(e.Instances), len(e.Types), e.KeepAlive))

	// Group by type for cleaner output
	byType := make(map[string][]uint64)
	var typeOrder []string
	for _, l := range e.Instances {
		name := demangle(l.Type)
		if _, exists := byType[name]; !exists {
			typeOrder = append(typeOrder, name)
		}
		byType[name] = append(byType[name], l.Addr)
	}
	sort.Strings(typeOrder)

	for _, name := range typeOrder {
		b.WriteString("\n  ")
		b.WriteString(name)
		b.WriteString(":\n")
		for _, addr := range byType[name] {
			b.WriteString(fmt.Sprintf("    - %#x\n", addr))
		}
	}

	if len(e.Types) > 0 {
		b.WriteString("\n  types:\n")
		for _, t := range e.Types {
			b.WriteString("    - ")
			b.WriteString(demangle(t))
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *LeaksError) Is(target error) bool {
	_, ok := target.(*LeaksError)
	return ok
}
