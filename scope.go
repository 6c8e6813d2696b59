package scopert

import (
	"context"

	"github.com/pumped-fn/scopert/disposable"
	"github.com/pumped-fn/scopert/events"
	"github.com/pumped-fn/scopert/identifier"
	"github.com/pumped-fn/scopert/observability"
	"github.com/pumped-fn/scopert/state"
	"github.com/pumped-fn/scopert/tasks"
)

// Option configures a single call to Enter/Run via the functional-options
// idiom.
type Option func(*entryConfig)

type entryConfig struct {
	records       []any
	disposables   []disposable.Disposable
	observability observability.Binding
	isolated      bool
}

// WithState supplies explicit state records, the highest-priority source
// in the composed snapshot.
func WithState(records ...any) Option {
	return func(c *entryConfig) { c.records = append(c.records, records...) }
}

// WithDisposables supplies the scope's own disposable resources, acquired
// in the given order ahead of caller-supplied state but behind presets.
func WithDisposables(ds ...disposable.Disposable) Option {
	return func(c *entryConfig) { c.disposables = append(c.disposables, ds...) }
}

// WithObservability overrides the inherited observability binding for
// this scope and its descendants.
func WithObservability(b observability.Binding) Option {
	return func(c *entryConfig) { c.observability = b }
}

// WithIsolated requests that a nested scope own its own task group and
// events bus rather than sharing its parent's. Root scopes are always
// isolated regardless of this option.
func WithIsolated() Option {
	return func(c *entryConfig) { c.isolated = true }
}

// Handle represents one entered-but-not-yet-exited scope. Exit must be
// called exactly once.
type Handle struct {
	ctx         context.Context
	id          identifier.Identifier
	binding     observability.Binding
	disposePair *dualBundle
	group       *tasks.Group
	bus         *events.Bus
	isolated    bool
	exited      bool
}

// Enter assembles a new scope nested under ctx's current scope (or a root
// scope if ctx carries none) and returns the composed context plus a
// Handle whose Exit must be called to tear it down. This mirrors
// haiway/context/scope.py's ContextScope.__aenter__ ordering: identifier,
// then observability, then disposables, then state, then (if isolated)
// task group and events bus.
func Enter(ctx context.Context, label string, opts ...Option) (context.Context, *Handle, error) {
	cfg := &entryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	parentID, parentErr := identifier.Current(ctx)
	var parent *identifier.Identifier
	if parentErr == nil {
		parent = &parentID
	}
	id := identifier.New(label, parent)
	identifier.Global.Record(id)

	binding := cfg.observability
	if binding == nil {
		binding = observability.From(ctx)
		if id.IsRoot {
			binding = observability.NewSlogBinding(label)
		}
	}
	binding = observability.Guard(binding)
	binding.ScopeEntering(label, id.UniqueName())

	ctx = observability.Into(ctx, binding)
	ctx = identifier.Push(ctx, id)

	preset, hasPreset := PresetFor(label)

	var presetBundle *disposable.Bundle
	if hasPreset && preset.Disposables != nil {
		presetBundle = preset.Disposables()
	}

	explicitBundle := disposable.New(cfg.disposables...)

	var presetRecords, disposableRecords []any
	if presetBundle != nil {
		recs, err := presetBundle.Prepare(ctx)
		if err != nil {
			identifier.Global.Forget(id)
			return ctx, nil, err
		}
		presetRecords = recs
	}
	disposedRecs, err := explicitBundle.Prepare(ctx)
	if err != nil {
		if presetBundle != nil {
			_ = presetBundle.Dispose(ctx, err)
		}
		identifier.Global.Forget(id)
		return ctx, nil, err
	}
	disposableRecords = disposedRecs

	bundle := &dualBundle{preset: presetBundle, own: explicitBundle}

	merged := append([]any{}, preset.Records...)
	merged = append(merged, presetRecords...)
	merged = append(merged, disposableRecords...)
	merged = append(merged, cfg.records...)

	parentSnapshot := stateSnapshotFrom(ctx)
	snapshot := state.With(parentSnapshot, merged...)
	ctx = state.Into(ctx, snapshot)

	h := &Handle{ctx: ctx, id: id, binding: binding, isolated: id.IsRoot || cfg.isolated}

	if h.isolated {
		group := tasks.NewGroup(ctx)
		ctx = tasks.Into(ctx, group)
		bus := events.New()
		ctx = events.Into(ctx, bus)
		h.group = group
		h.bus = bus
	}
	h.ctx = ctx
	h.disposePair = bundle
	return ctx, h, nil
}

// dualBundle composes a preset bundle and the caller's own bundle so they
// dispose in the right relative order (own resources release before
// preset resources, since presets were acquired first).
type dualBundle struct {
	preset *disposable.Bundle
	own    *disposable.Bundle
}

func (d *dualBundle) disposeAll(ctx context.Context, cause error) error {
	ownErr := d.own.Dispose(ctx, cause)
	var presetErr error
	if d.preset != nil {
		presetErr = d.preset.Dispose(ctx, cause)
	}
	return aggregate(ownErr, presetErr)
}

func stateSnapshotFrom(ctx context.Context) *state.Snapshot {
	// state.Into/Get work through context values; we need the raw
	// snapshot to build the child overlay, so route through the state
	// package's raw-snapshot accessor rather than re-deriving it from records.
	return state.SnapshotFromContext(ctx)
}

// Exit tears the scope down in reverse of Enter's composition order and
// returns the aggregate of the body's error, any task failures, and any
// disposal failures. bodyErr is whatever the scope's body returned (or
// nil). Exit must be called exactly once per successful Enter.
func (h *Handle) Exit(bodyErr error) error {
	if h.exited {
		return &InvariantViolationError{Reason: "scope exited more than once"}
	}
	h.exited = true

	var taskErr error
	if h.isolated {
		h.bus.Close()
		if bodyErr != nil {
			h.group.Cancel()
		}
		taskErr = h.group.Wait()
	}

	disposeErr := h.disposePair.disposeAll(h.ctx, aggregate(bodyErr, taskErr))

	identifier.Global.Forget(h.id)
	h.binding.ScopeExiting(h.id.Label, h.id.UniqueName(), bodyErr)

	return aggregate(bodyErr, taskErr, disposeErr)
}

// Run enters a scope, invokes body with the composed context, and exits
// the scope with body's error — the Go analogue of Python's
// `async with ctx.scope(label): ...`.
func Run(ctx context.Context, label string, body func(ctx context.Context) error, opts ...Option) error {
	scoped, h, err := Enter(ctx, label, opts...)
	if err != nil {
		return err
	}
	bodyErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &InvariantViolationError{Reason: "panic in scope body"}
			}
		}()
		return body(scoped)
	}()
	return h.Exit(bodyErr)
}
