package boundary

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// Sentinels matched by errors.Is against an *Error, by error name.
var (
	ErrSyntax    = errors.New("SyntaxError")
	ErrReference = errors.New("ReferenceError")
	ErrType      = errors.New("TypeError")
	ErrRange     = errors.New("RangeError")
	ErrURI       = errors.New("URIError")
	ErrEval      = errors.New("EvalError")
	// ErrThrown matches a generic Error or a thrown primitive.
	ErrThrown = errors.New("thrown value")
)

// Error is a confined exception as seen by Go callers.
type Error struct {
	Name    string
	Message string
	Stack   string
	// Value is the thrown value: a rebuilt error object, or the primitive
	// that was thrown.
	Value goja.Value
	// Cause is the Go error the exception was built from, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for this error's name.
func (e *Error) Is(target error) bool {
	return sentinel(e.Name) == target
}

func sentinel(name string) error {
	switch name {
	case "SyntaxError":
		return ErrSyntax
	case "ReferenceError":
		return ErrReference
	case "TypeError":
		return ErrType
	case "RangeError":
		return ErrRange
	case "URIError":
		return ErrURI
	case "EvalError":
		return ErrEval
	default:
		return ErrThrown
	}
}

// Violation is a fatal breach of a scope invariant. It is deliberately not
// a goja value: the engine only turns its own exception types into JS
// exceptions, so a Violation panic unwinds through confined code without
// running its catch or finally blocks.
type Violation string

func (v Violation) Error() string { return "scope violation: " + string(v) }

// Named is implemented by Go errors that want to surface in confined code
// as a specific error constructor.
type Named interface {
	ErrorName() string
}

// knownNames are the error constructors a rebuilt error may use.
var knownNames = map[string]bool{
	"EvalError":      true,
	"RangeError":     true,
	"ReferenceError": true,
	"SyntaxError":    true,
	"TypeError":      true,
	"URIError":       true,
}

// normalizeName maps a coerced name onto a standard error name.
func normalizeName(name string) string {
	if knownNames[name] {
		return name
	}
	return "Error"
}
