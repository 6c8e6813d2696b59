package scopert

import (
	"context"

	"github.com/pumped-fn/scopert/events"
	"github.com/pumped-fn/scopert/observability"
	"github.com/pumped-fn/scopert/state"
	"github.com/pumped-fn/scopert/tasks"
)

// This file is the Go analogue of haiway's ctx module: a flat set of
// convenience free functions mirroring each sub-package's ambient
// operation, so callers working with a plain context.Context rarely need
// to import state/tasks/events/observability directly.

// State returns the current record of type T, falling back to def[0] (or
// a synthesized zero value) when none is present.
func State[T any](ctx context.Context, def ...T) (T, error) {
	return state.Get[T](ctx, def...)
}

// Contains reports whether a record of type T is reachable from ctx.
func Contains[T any](ctx context.Context) bool {
	return state.Contains[T](ctx)
}

// Spawn submits fn to the current scope's supervised task group, or the
// process-wide background group if ctx carries none.
func Spawn[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *tasks.Handle[T] {
	return tasks.Spawn(ctx, fn)
}

// CancelCurrent cancels the task currently executing on ctx's goroutine.
func CancelCurrent(ctx context.Context) error {
	return tasks.CancelCurrent(ctx)
}

// Send publishes payload on the current scope's event bus.
func Send(ctx context.Context, payload any) error {
	return events.Send(ctx, payload)
}

// Subscribe returns a cursor over every event of type T sent on the
// current scope's bus from this call onward.
func Subscribe[T any](ctx context.Context) (*events.Subscription[T], error) {
	bus, err := events.From(ctx)
	if err != nil {
		return nil, err
	}
	return events.Subscribe[T](bus), nil
}

// LogDebug, LogInfo, LogWarning, and LogError forward to the current
// scope's observability binding at the matching level.
func LogDebug(ctx context.Context, message string, args ...any) {
	observability.From(ctx).Log(observability.Debug, message, nil, args...)
}

func LogInfo(ctx context.Context, message string, args ...any) {
	observability.From(ctx).Log(observability.Info, message, nil, args...)
}

func LogWarning(ctx context.Context, message string, args ...any) {
	observability.From(ctx).Log(observability.Warn, message, nil, args...)
}

func LogError(ctx context.Context, message string, err error, args ...any) {
	observability.From(ctx).Log(observability.Error, message, err, args...)
}

// RecordEvent, RecordMetric, and RecordAttributes forward to the current
// scope's observability binding.
func RecordEvent(ctx context.Context, name string, level observability.Level, attributes map[string]any) {
	observability.From(ctx).RecordEvent(name, level, attributes)
}

func RecordMetric(ctx context.Context, name string, value float64, unit string, kind observability.MetricKind, attributes map[string]any) {
	observability.From(ctx).RecordMetric(name, value, unit, kind, attributes)
}

func RecordAttributes(ctx context.Context, attributes map[string]any) {
	observability.From(ctx).RecordAttributes(attributes)
}
