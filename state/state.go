// Package state implements the immutable, type-indexed, hierarchical
// record registry that backs typed ambient state lookups.
package state

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrMissingState is returned by Get when no record of the requested type
// is reachable through the snapshot chain, no default was supplied, and
// the type could not be default-constructed.
var ErrMissingState = errors.New("state: no record of the requested type in scope")

// Snapshot is an immutable, type-indexed view of records. A child snapshot
// overlays its parent: lookups miss locally fall through to the parent,
// and overlaying never mutates the parent.
type Snapshot struct {
	parent  *Snapshot
	records map[reflect.Type]any

	// synthesized caches default-constructed zero values so a racing set
	// of callers all observe the same instance, keyed per concrete type
	// within one snapshot.
	synthesized sync.Map // reflect.Type -> any
	synthesis   sync.Map // reflect.Type -> *sync.Once
}

// Empty is the snapshot used when no scope has been entered yet.
var Empty = &Snapshot{}

// With returns a new snapshot overlaying records on top of s. Later
// records of the same concrete type override earlier ones in the slice,
// and all of them override entries inherited from s. A fresh Snapshot node
// is always allocated, even when records is empty, so every scope gets its
// own synthesis cache that is torn down with the scope rather than
// accumulating on a shared ancestor (Empty in particular).
func With(s *Snapshot, records ...any) *Snapshot {
	if s == nil {
		s = Empty
	}
	overlay := make(map[reflect.Type]any, len(records))
	for _, r := range records {
		overlay[reflect.TypeOf(r)] = r
	}
	return &Snapshot{parent: s, records: overlay}
}

func (s *Snapshot) lookup(t reflect.Type) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.records[t]; ok {
			return v, true
		}
		if v, ok := cur.synthesized.Load(t); ok {
			return v, true
		}
	}
	return nil, false
}

// Resolve returns the record of concrete type t, synthesizing a zero
// value via reflection if none is present anywhere in the chain and no
// default was requested by the caller. Synthesis happens at most once per
// (snapshot, type) pair, cached on s itself; racing callers block on the same sync.Once
// and observe the same instance, and a constructor that itself calls
// Resolve for a different type cannot deadlock because each type has an
// independent Once.
func (s *Snapshot) Resolve(t reflect.Type, def any) (any, error) {
	if s == nil {
		s = Empty
	}
	if v, ok := s.lookup(t); ok {
		return v, nil
	}
	if def != nil {
		return def, nil
	}

	onceAny, _ := s.synthesis.LoadOrStore(t, &sync.Once{})
	once := onceAny.(*sync.Once)

	var synthErr error
	once.Do(func() {
		v, err := zeroValue(t)
		if err != nil {
			synthErr = err
			return
		}
		s.synthesized.Store(t, v)
	})

	if v, ok := s.synthesized.Load(t); ok {
		return v, nil
	}
	if synthErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingState, t, synthErr)
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingState, t)
}

func zeroValue(t reflect.Type) (any, error) {
	switch t.Kind() {
	case reflect.Ptr:
		return reflect.New(t.Elem()).Interface(), nil
	case reflect.Struct, reflect.Slice, reflect.Map, reflect.Array, reflect.Chan,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool, reflect.String:
		return reflect.Zero(t).Interface(), nil
	default:
		return nil, fmt.Errorf("type %s cannot be default-constructed", t)
	}
}

// Contains reports whether t has an entry reachable from s, without
// triggering synthesis.
func (s *Snapshot) Contains(t reflect.Type) bool {
	if s == nil {
		return false
	}
	_, ok := s.lookup(t)
	return ok
}

// All returns every record reachable from s, nearest-scope entries
// shadowing ancestor entries of the same type, in no particular order.
func (s *Snapshot) All() []any {
	seen := make(map[reflect.Type]any)
	for cur := s; cur != nil; cur = cur.parent {
		for t, v := range cur.records {
			if _, ok := seen[t]; !ok {
				seen[t] = v
			}
		}
		cur.synthesized.Range(func(k, v any) bool {
			t := k.(reflect.Type)
			if _, ok := seen[t]; !ok {
				seen[t] = v
			}
			return true
		})
	}
	out := make([]any, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	return out
}

type contextKey struct{}

// Into installs s as the ambient snapshot for the returned context.
func Into(ctx context.Context, s *Snapshot) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func current(ctx context.Context) *Snapshot {
	if s, ok := ctx.Value(contextKey{}).(*Snapshot); ok && s != nil {
		return s
	}
	return Empty
}

// Get returns the current record of concrete type T from ctx's ambient
// snapshot. If def is supplied its first element is used when no record
// is present anywhere in the chain; otherwise a zero T{} is synthesized
// once and cached, or ErrMissingState is returned if T cannot be
// zero-constructed usefully (e.g. an interface type).
func Get[T any](ctx context.Context, def ...T) (T, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is an interface type; reflect.TypeOf(nil-ish zero) fails, use
		// the generic parameter's static type instead.
		t = reflect.TypeOf((*T)(nil)).Elem()
	}

	var defAny any
	if len(def) > 0 {
		defAny = def[0]
	}

	v, err := current(ctx).Resolve(t, defAny)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("state: resolved value for %s has unexpected type %T", t, v)
	}
	return typed, nil
}

// Contains reports whether a record of concrete type T is reachable from
// ctx's ambient snapshot, without synthesizing a default.
func Contains[T any](ctx context.Context) bool {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		t = reflect.TypeOf((*T)(nil)).Elem()
	}
	return current(ctx).Contains(t)
}

// SnapshotOf returns every record visible in ctx's ambient snapshot.
func SnapshotOf(ctx context.Context) []any {
	return current(ctx).All()
}

// SnapshotFromContext returns the raw ambient Snapshot carried by ctx (or
// Empty if none), for composers that need to overlay a new Snapshot on
// top of it rather than read individual records.
func SnapshotFromContext(ctx context.Context) *Snapshot {
	return current(ctx)
}

// Updating overlays records onto ctx's ambient snapshot for the enclosing
// block and returns the updated context plus a restore function. Restore
// is a convenience for callers that want the exact pre-existing context
// back once the region exits; since context.Context is itself immutable,
// restoring is simply discarding the returned context and continuing to
// use the one captured before calling
// Updating.
func Updating(ctx context.Context, records ...any) (context.Context, func() context.Context) {
	prev := ctx
	next := Into(ctx, With(current(ctx), records...))
	return next, func() context.Context { return prev }
}
