// Package observability defines the uniform logging/metrics/events/span
// surface scopes carry and inherit, and the default logger-backed binding
// used when a root scope supplies none.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
)

// Level mirrors Python logging's numeric levels, as the original
// implementation's ObservabilityLevel does, so severities compare
// numerically.
type Level int

const (
	Debug Level = 10
	Info  Level = 20
	Warn  Level = 30
	Error Level = 40
)

func (l Level) slog() slog.Level {
	switch {
	case l >= Error:
		return slog.LevelError
	case l >= Warn:
		return slog.LevelWarn
	case l >= Info:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// MetricKind classifies a recorded metric.
type MetricKind int

const (
	Counter MetricKind = iota
	Gauge
	Histogram
)

// Missing is the sentinel attribute value filtered out before forwarding,
// distinct from a Go nil so callers can distinguish "explicitly absent"
// from "never set".
var Missing = struct{ missing bool }{true}

// Binding is the set of callables a scope uses to report observability
// data. Every method must be safe to call concurrently; implementations
// that can fail internally should swallow the failure themselves — the
// scope composer additionally wraps every call so a panicking or
// erroring Binding can never reach business logic.
type Binding interface {
	Log(level Level, message string, exception error, args ...any)
	RecordEvent(name string, level Level, attributes map[string]any)
	RecordMetric(name string, value float64, unit string, kind MetricKind, attributes map[string]any)
	RecordAttributes(attributes map[string]any)
	ScopeEntering(label, uniqueName string)
	ScopeExiting(label, uniqueName string, exception error)
}

// FilterAttributes drops nil and Missing values and validates that any
// sequence-valued attribute is homogeneous. Invalid sequences are simply
// dropped rather than propagated, since observability calls must never
// fail the caller.
func FilterAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if v == nil || v == Missing {
			continue
		}
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
			if !homogeneous(rv) {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func homogeneous(rv reflect.Value) bool {
	if rv.Len() == 0 {
		return true
	}
	elemType := func(i int) reflect.Type {
		v := rv.Index(i)
		if v.Kind() == reflect.Interface {
			if v.IsNil() {
				return nil
			}
			v = v.Elem()
		}
		return v.Type()
	}
	first := elemType(0)
	for i := 1; i < rv.Len(); i++ {
		if elemType(i) != first {
			return false
		}
	}
	return true
}

// guarded wraps a Binding so that every outbound call is isolated: panics
// and (where the method can express one) errors are caught, downgraded to
// an Error-level log on a fallback logger, and never reach the caller.
// ScopeEntering/ScopeExiting still "complete" from the caller's
// perspective (they never panic out) even though the underlying call
// failed, so the scope's own lifecycle is never affected by a broken sink.
type guarded struct {
	inner    Binding
	fallback *slog.Logger
}

// Guard wraps b so that failures inside it are isolated from callers.
func Guard(b Binding) Binding {
	if g, ok := b.(*guarded); ok {
		return g
	}
	return &guarded{inner: b, fallback: slog.Default()}
}

func (g *guarded) safe(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.fallback.Error("observability call panicked", "op", op, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func (g *guarded) Log(level Level, message string, exception error, args ...any) {
	g.safe("log", func() { g.inner.Log(level, message, exception, args...) })
}

func (g *guarded) RecordEvent(name string, level Level, attributes map[string]any) {
	g.safe("record_event", func() { g.inner.RecordEvent(name, level, FilterAttributes(attributes)) })
}

func (g *guarded) RecordMetric(name string, value float64, unit string, kind MetricKind, attributes map[string]any) {
	g.safe("record_metric", func() { g.inner.RecordMetric(name, value, unit, kind, FilterAttributes(attributes)) })
}

func (g *guarded) RecordAttributes(attributes map[string]any) {
	g.safe("record_attributes", func() { g.inner.RecordAttributes(FilterAttributes(attributes)) })
}

func (g *guarded) ScopeEntering(label, uniqueName string) {
	g.safe("scope_entering", func() { g.inner.ScopeEntering(label, uniqueName) })
}

func (g *guarded) ScopeExiting(label, uniqueName string, exception error) {
	g.safe("scope_exiting", func() { g.inner.ScopeExiting(label, uniqueName, exception) })
}

// SlogBinding is the default binding used by a root scope that was given
// none: a logger-backed sink keyed by the scope's label, the Go analogue
// of haiway's fallback to logging.getLogger(name).
type SlogBinding struct {
	logger *slog.Logger
}

// NewSlogBinding builds a default binding writing to os.Stderr via
// log/slog.
func NewSlogBinding(label string) *SlogBinding {
	return &SlogBinding{
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)).With("scope", label),
	}
}

func (s *SlogBinding) Log(level Level, message string, exception error, args ...any) {
	attrs := make([]any, 0, len(args)+2)
	attrs = append(attrs, args...)
	if exception != nil {
		attrs = append(attrs, "error", exception)
	}
	s.logger.Log(context.Background(), level.slog(), message, attrs...)
}

func (s *SlogBinding) RecordEvent(name string, level Level, attributes map[string]any) {
	args := make([]any, 0, len(attributes)*2+2)
	args = append(args, "event", name)
	for k, v := range attributes {
		args = append(args, k, v)
	}
	s.logger.Log(context.Background(), level.slog(), "event", args...)
}

func (s *SlogBinding) RecordMetric(name string, value float64, unit string, kind MetricKind, attributes map[string]any) {
	args := []any{"metric", name, "value", value, "unit", unit, "kind", kind}
	for k, v := range attributes {
		args = append(args, k, v)
	}
	s.logger.Info("metric", args...)
}

func (s *SlogBinding) RecordAttributes(attributes map[string]any) {
	args := make([]any, 0, len(attributes)*2)
	for k, v := range attributes {
		args = append(args, k, v)
	}
	s.logger.Info("attributes", args...)
}

func (s *SlogBinding) ScopeEntering(label, uniqueName string) {
	s.logger.Debug("scope entering", "scope", uniqueName)
}

func (s *SlogBinding) ScopeExiting(label, uniqueName string, exception error) {
	if exception != nil {
		s.logger.Error("scope exiting", "scope", uniqueName, "error", exception)
		return
	}
	s.logger.Debug("scope exiting", "scope", uniqueName)
}

type contextKey struct{}

// Into installs b as the ambient binding for the returned context.
func Into(ctx context.Context, b Binding) context.Context {
	return context.WithValue(ctx, contextKey{}, b)
}

// From returns the ambient binding, or a process-default SlogBinding if
// none has been pushed — root scopes always push one, so this fallback
// only matters for code running entirely outside any scope.
func From(ctx context.Context) Binding {
	if b, ok := ctx.Value(contextKey{}).(Binding); ok && b != nil {
		return b
	}
	return Guard(NewSlogBinding("unscoped"))
}
