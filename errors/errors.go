package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEnv      Phase = "env"      // environment acquisition
	PhaseWrap     Phase = "wrap"     // native value to host wrapper
	PhaseDerive   Phase = "derive"   // shared reference derivation
	PhaseAccess   Phase = "access"   // borrow of a wrapped value
	PhaseFinalize Phase = "finalize" // host-driven destruction
	PhaseIR       Phase = "ir"       // binding descriptor validation
	PhaseLoad     Phase = "load"     // descriptor decoding
	PhaseHost     Phase = "host"     // host runtime integration
	PhaseCall     Phase = "call"     // dispatch of a bound function
)

// Kind categorizes the error
type Kind string

const (
	KindEnvironmentExpired Kind = "environment_expired"
	KindHostAllocation     Kind = "host_allocation"
	KindDeriveFailure      Kind = "derive_failure"
	KindUseAfterRelease    Kind = "use_after_release"
	KindBorrowConflict     Kind = "borrow_conflict"
	KindDuplicateName      Kind = "duplicate_name"
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidData        Kind = "invalid_data"
	KindNotFound           Kind = "not_found"
	KindTypeMismatch       Kind = "type_mismatch"
	KindUnsupported        Kind = "unsupported"
	KindRegistration       Kind = "registration"
	KindClosed             Kind = "closed"
)

// Sentinels for errors.Is. They carry no Phase and therefore match any phase.
var (
	ErrEnvironmentExpired = &Error{Kind: KindEnvironmentExpired}
	ErrHostAllocation     = &Error{Kind: KindHostAllocation}
	ErrDeriveFailure      = &Error{Kind: KindDeriveFailure}
	ErrUseAfterRelease    = &Error{Kind: KindUseAfterRelease}
	ErrBorrowConflict     = &Error{Kind: KindBorrowConflict}
	ErrDuplicateName      = &Error{Kind: KindDuplicateName}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrClosed             = &Error{Kind: KindClosed}
)

// Error is the structured error type used throughout the library
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	HostType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.HostType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.HostType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", host type ")
			b.WriteString(e.HostType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("host type ")
			b.WriteString(e.HostType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.HostType != "" {
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

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
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

// Path sets the descriptor path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the native type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// HostType sets the host-visible type name
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

// Convenience constructors for the bridge failure taxonomy

// EnvironmentExpired reports an Env used outside the host call it was acquired for.
func EnvironmentExpired(op string) *Error {
	return &Error{
		Phase:  PhaseEnv,
		Kind:   KindEnvironmentExpired,
		Detail: fmt.Sprintf("%s called without a live environment", op),
	}
}

// HostAllocation reports that the host refused to allocate a wrapper object.
func HostAllocation(class string, cause error) *Error {
	return &Error{
		Phase:    PhaseWrap,
		Kind:     KindHostAllocation,
		HostType: class,
		Detail:   "host could not allocate wrapper",
		Cause:    cause,
	}
}

// DeriveFailure wraps the error returned by a derivation function verbatim.
func DeriveFailure(class string, cause error) *Error {
	return &Error{
		Phase:    PhaseDerive,
		Kind:     KindDeriveFailure,
		HostType: class,
		Cause:    cause,
	}
}

// UseAfterRelease reports access through a handle whose storage is gone.
func UseAfterRelease(phase Phase, class string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindUseAfterRelease,
		HostType: class,
		Detail:   "reference already released",
	}
}

// BorrowConflict reports a borrow that would alias an exclusive borrow.
func BorrowConflict(want, held string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindBorrowConflict,
		Detail: fmt.Sprintf("cannot borrow %s while %s borrow is active", want, held),
	}
}

// DuplicateName creates a duplicate host name error
func DuplicateName(path []string, name string) *Error {
	return &Error{
		Phase:  PhaseIR,
		Kind:   KindDuplicateName,
		Path:   path,
		Detail: fmt.Sprintf("host name %q declared more than once", name),
		Value:  name,
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

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, hostType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		HostType: hostType,
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

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Closed reports an operation on a closed table or runtime.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Load creates a descriptor loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
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
