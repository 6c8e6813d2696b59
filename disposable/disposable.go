// Package disposable owns the ordered bundle of async-acquired resources
// whose outputs become part of a scope's initial state and whose release
// is guaranteed at scope exit.
package disposable

import (
	"context"
	"errors"
	"fmt"
)

// Disposable is an async-acquirable resource. Acquire may contribute zero,
// one, or many records to the owning scope's state. Release is always
// called, even if Acquire raised for a later disposable in the same
// bundle, or the scope body raised.
type Disposable interface {
	Acquire(ctx context.Context) ([]any, error)
	Release(ctx context.Context, cause error) error
}

// Func adapts two plain functions into a Disposable, for the common case
// of a resource with no extra fields.
type Func struct {
	AcquireFn func(ctx context.Context) ([]any, error)
	ReleaseFn func(ctx context.Context, cause error) error
}

func (f Func) Acquire(ctx context.Context) ([]any, error) { return f.AcquireFn(ctx) }
func (f Func) Release(ctx context.Context, cause error) error {
	if f.ReleaseFn == nil {
		return nil
	}
	return f.ReleaseFn(ctx, cause)
}

// ErrAlreadyPrepared and ErrNotPrepared guard the single-use invariant:
// Prepare may run at most once per Bundle, and Dispose must be paired with
// exactly one prior Prepare.
var (
	ErrAlreadyPrepared = errors.New("disposable: bundle already prepared")
	ErrNotPrepared     = errors.New("disposable: bundle not prepared")
	ErrAlreadyDisposed = errors.New("disposable: bundle already disposed")
)

// Bundle is an ordered, single-use collection of Disposables.
type Bundle struct {
	items     []Disposable
	acquired  []Disposable // prefix of items successfully acquired, in order
	prepared  bool
	disposed  bool
}

// New builds a bundle that will acquire items in the given order and
// release them in reverse order.
func New(items ...Disposable) *Bundle {
	return &Bundle{items: items}
}

// Len reports how many disposables the bundle holds.
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Prepare acquires every disposable in insertion order, concatenating
// their contributed records. If any Acquire fails, every disposable
// acquired so far is released (in reverse order) before the error is
// returned.
func (b *Bundle) Prepare(ctx context.Context) ([]any, error) {
	if b == nil {
		return nil, nil
	}
	if b.prepared {
		return nil, ErrAlreadyPrepared
	}
	b.prepared = true

	var records []any
	for _, d := range b.items {
		got, err := d.Acquire(ctx)
		if err != nil {
			b.releaseAcquired(ctx, fmt.Errorf("acquiring disposable: %w", err))
			return nil, fmt.Errorf("disposable: acquire failed: %w", err)
		}
		b.acquired = append(b.acquired, d)
		records = append(records, got...)
	}
	return records, nil
}

// Dispose releases every acquired disposable in reverse order, regardless
// of individual failures. cause, when non-nil, is the error the scope
// body raised and is passed through to every Release call. A single
// release failure is returned as-is; multiple are joined with
// errors.Join.
func (b *Bundle) Dispose(ctx context.Context, cause error) error {
	if b == nil {
		return nil
	}
	if !b.prepared {
		return ErrNotPrepared
	}
	if b.disposed {
		return ErrAlreadyDisposed
	}
	b.disposed = true
	return b.releaseAcquired(ctx, cause)
}

func (b *Bundle) releaseAcquired(ctx context.Context, cause error) error {
	var errs []error
	for i := len(b.acquired) - 1; i >= 0; i-- {
		if err := b.acquired[i].Release(ctx, cause); err != nil {
			errs = append(errs, err)
		}
	}
	b.acquired = nil
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
