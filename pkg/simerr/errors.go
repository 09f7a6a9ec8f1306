// Package simerr defines the error taxonomy shared by the simulation engine.
//
// Three kinds exist:
//
//   - Configuration: malformed or inconsistent inputs. Fails one seed, never the batch.
//   - StateCorruption: an engine invariant was broken. Fatal for the whole batch.
//   - Export: a sink could not persist a record. The run continues, marked incomplete.
package simerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by errors.Is for each kind.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrStateCorruption = errors.New("state corruption")
	ErrExport          = errors.New("export error")
)

// Kind classifies an Error.
type Kind uint8

const (
	KindConfiguration Kind = iota + 1
	KindStateCorruption
	KindExport
)

// String returns the human-readable kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindStateCorruption:
		return "state corruption"
	case KindExport:
		return "export"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindStateCorruption:
		return ErrStateCorruption
	case KindExport:
		return ErrExport
	default:
		return nil
	}
}

// Unset marks Seed, Timestep or AgentID as not applicable.
const Unset = -1

// Error carries enough context to reproduce a failure given the same seed.
type Error struct {
	Kind     Kind
	Op       string // Operation that failed (e.g., "build", "advance", "emit")
	Seed     int64
	Timestep int
	AgentID  int64
	Field    string // Offending config field or table key
	Context  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Op)

	if e.Seed != Unset {
		fmt.Fprintf(&b, " seed=%d", e.Seed)
	}
	if e.Timestep != Unset {
		fmt.Fprintf(&b, " t=%d", e.Timestep)
	}
	if e.AgentID != Unset {
		fmt.Fprintf(&b, " agent=%d", e.AgentID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s)", e.Field)
	}
	if e.Context != "" {
		fmt.Fprintf(&b, " (%s)", e.Context)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is this error's kind sentinel or matches its cause.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if s := e.Kind.sentinel(); s != nil && target == s {
		return true
	}
	return errors.Is(e.Cause, target)
}

// Builder provides a fluent interface for building Errors.
type Builder struct {
	err Error
}

func newBuilder(kind Kind, op string) *Builder {
	return &Builder{err: Error{
		Kind:     kind,
		Op:       op,
		Seed:     Unset,
		Timestep: Unset,
		AgentID:  Unset,
	}}
}

// Config starts a ConfigurationError for the given operation.
func Config(op string) *Builder { return newBuilder(KindConfiguration, op) }

// Corruption starts a StateCorruptionError for the given operation.
func Corruption(op string) *Builder { return newBuilder(KindStateCorruption, op) }

// Export starts an ExportError for the given operation.
func Export(op string) *Builder { return newBuilder(KindExport, op) }

// Seed sets the Monte Carlo seed.
func (b *Builder) Seed(seed int64) *Builder {
	b.err.Seed = seed
	return b
}

// Timestep sets the simulation timestep.
func (b *Builder) Timestep(t int) *Builder {
	b.err.Timestep = t
	return b
}

// Agent sets the agent id.
func (b *Builder) Agent(id int64) *Builder {
	b.err.AgentID = id
	return b
}

// Field sets the offending field or key.
func (b *Builder) Field(name string) *Builder {
	b.err.Field = name
	return b
}

// Context sets additional context information.
func (b *Builder) Context(ctx string) *Builder {
	b.err.Context = ctx
	return b
}

// Wrap sets cause and returns the error.
func (b *Builder) Wrap(cause error) error {
	b.err.Cause = cause
	return b.Build()
}

// Msg formats a cause message and returns the error.
func (b *Builder) Msg(format string, args ...any) error {
	b.err.Cause = fmt.Errorf(format, args...)
	return b.Build()
}

// Build returns the constructed *Error.
func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsStateCorruption reports whether err is a StateCorruptionError.
func IsStateCorruption(err error) bool { return errors.Is(err, ErrStateCorruption) }

// IsExport reports whether err is an ExportError.
func IsExport(err error) bool { return errors.Is(err, ErrExport) }

// WithSeed stamps seed onto the first *Error in err's chain if it has none.
// Errors outside the taxonomy are returned unchanged.
func WithSeed(err error, seed int64) error {
	var se *Error
	if !errors.As(err, &se) {
		return err
	}
	if se.Seed == Unset {
		se.Seed = seed
	}
	return err
}
