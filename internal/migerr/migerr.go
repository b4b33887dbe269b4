// Package migerr defines the tagged error type shared by every stage of a
// pg2sqlite run. Stages wrap their failures with a Kind so the command layer
// can tell configuration-class problems (a bad schema, an unmappable type)
// apart from failures that happened while writing the destination.
package migerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a migration failure.
type Kind int

const (
	// KindIntrospection means a source metadata query failed or returned
	// something the catalog cannot represent.
	KindIntrospection Kind = iota + 1
	// KindNamespaceConflict means two relations (or two foreign keys) share a name.
	KindNamespaceConflict
	// KindDependencyIntegrity means a foreign key references a relation outside the catalog.
	KindDependencyIntegrity
	// KindGraphCycle means the dependency graph has no topological order.
	KindGraphCycle
	// KindTypeMapping means a source column type has no storage class.
	KindTypeMapping
	// KindCellTranslation means a value does not fit its column's declared type or nullability.
	KindCellTranslation
	// KindDestinationWrite means a statement against the destination failed.
	KindDestinationWrite
)

// String returns the name used in log lines and error messages.
func (k Kind) String() string {
	switch k {
	case KindIntrospection:
		return "introspection"
	case KindNamespaceConflict:
		return "namespace conflict"
	case KindDependencyIntegrity:
		return "dependency integrity"
	case KindGraphCycle:
		return "graph cycle"
	case KindTypeMapping:
		return "type mapping"
	case KindCellTranslation:
		return "cell translation"
	case KindDestinationWrite:
		return "destination write"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its Kind. Op names what was being done.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with kind. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a tagged error from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first tagged error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries a tagged error of the given kind anywhere
// in its chain, including every member of a List.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == kind {
		return true
	}
	switch x := err.(type) {
	case List:
		for _, member := range x {
			if Is(member, kind) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return Is(x.Unwrap(), kind)
	}
	return false
}

// List batches independent validation failures into a single error.
// The message joins every member on its own indented line.
type List []error

func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, err := range l {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n  ")
}

// Unwrap exposes the members to errors.Is and errors.As.
func (l List) Unwrap() []error {
	return l
}

// ErrorOrNil returns nil for an empty list, the sole member for a list of
// one, and the list itself otherwise.
func (l List) ErrorOrNil() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	default:
		return l
	}
}
