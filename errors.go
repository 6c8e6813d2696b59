// Package scopert is a hierarchical, scoped execution environment:
// entering a scope creates a nested child that propagates typed state,
// coordinates supervised tasks, manages disposable resources, dispatches
// scoped events, and carries observability context; exiting tears it all
// down in a well-defined order. See DESIGN.md for the package layout and grounding notes.
package scopert

import (
	"context"
	"errors"
	"fmt"
)

// MissingAmbientError reports that required scope state/context was
// absent — the "missing ambient context" error kind.
type MissingAmbientError struct {
	Reason string
}

func (e *MissingAmbientError) Error() string {
	return fmt.Sprintf("scopert: missing ambient context: %s", e.Reason)
}

// InvariantViolationError reports a programming error: reentrance of a
// single-use value, unbalanced enter/exit, or spawn outside any runtime.
// These are always fatal — callers should not attempt to recover from
// them, only fix the calling code.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("scopert: invariant violated: %s", e.Reason)
}

// AggregateError carries more than one causal error from an exit-time
// fan-out (the scope body's own error, tasks failing, disposables
// releasing).
type AggregateError struct {
	Causes []error
}

func (e *AggregateError) Error() string {
	if len(e.Causes) == 1 {
		return e.Causes[0].Error()
	}
	s := fmt.Sprintf("scopert: %d errors occurred:", len(e.Causes))
	for _, c := range e.Causes {
		s += "\n  - " + c.Error()
	}
	return s
}

func (e *AggregateError) Unwrap() []error { return e.Causes }

// aggregate joins non-nil errors, returning nil, the single error, or an
// *AggregateError. When several errors are given and any of them is a
// context.Canceled cause, that cause is returned as itself rather than
// wrapped: cancellation takes precedence over any sibling failure.
func aggregate(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		for _, err := range nonNil {
			if errors.Is(err, context.Canceled) {
				return err
			}
		}
		return &AggregateError{Causes: nonNil}
	}
}
