// Package identifier allocates and stacks scope identities.
//
// An Identifier carries a label, a globally unique scope id, the id of its
// parent scope, and whether it is a root. The ambient "current" identifier
// is carried on a context.Context rather than in package-level storage, so
// sibling goroutines spawned from the same scope never observe each
// other's pushes.
package identifier

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrContextMissing is returned by Current when no scope has been entered
// on the goroutine's ambient context.
var ErrContextMissing = errors.New("identifier: no current scope")

// Identifier is a scope's stable identity for the lifetime of the scope.
type Identifier struct {
	Label    string
	ScopeID  string
	ParentID string
	IsRoot   bool
}

// UniqueName derives "label[short(scope_id)]", the human-readable form
// used in logs and traces.
func (id Identifier) UniqueName() string {
	short := id.ScopeID
	if len(short) > 8 {
		short = short[:8]
	}
	return id.Label + "[" + short + "]"
}

// New allocates a new identifier. When parent is nil the result is a root
// identifier (ParentID == ScopeID); otherwise ParentID is the parent's
// ScopeID.
func New(label string, parent *Identifier) Identifier {
	id := uuid.NewString()
	if parent == nil {
		return Identifier{Label: label, ScopeID: id, ParentID: id, IsRoot: true}
	}
	return Identifier{Label: label, ScopeID: id, ParentID: parent.ScopeID, IsRoot: false}
}

type contextKey struct{}

// Push installs id as the ambient current identifier for the returned
// context; ctx itself is left unchanged. Pop is not a separate call: callers hold onto the returned
// context for the scope body and simply stop using it on exit — the
// enclosing context, captured by the caller before Push, is the "pop".
func Push(ctx context.Context, id Identifier) context.Context {
	return context.WithValue(ctx, contextKey{}, &id)
}

// Current returns the ambient identifier, or ErrContextMissing when none
// has been pushed onto ctx.
func Current(ctx context.Context) (Identifier, error) {
	v, ok := ctx.Value(contextKey{}).(*Identifier)
	if !ok || v == nil {
		return Identifier{}, ErrContextMissing
	}
	return *v, nil
}

// Tree tracks the parent/child adjacency of every scope entered in a
// process, for diagnostics (debug package) and testing.
type Tree struct {
	mu       sync.RWMutex
	byParent map[string][]string
	labels   map[string]string
}

// NewTree creates an empty scope tree.
func NewTree() *Tree {
	return &Tree{
		byParent: make(map[string][]string),
		labels:   make(map[string]string),
	}
}

// Record registers id in the tree, linking it under its parent unless it
// is a root.
func (t *Tree) Record(id Identifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.labels[id.ScopeID] = id.UniqueName()
	if id.IsRoot {
		return
	}
	t.byParent[id.ParentID] = append(t.byParent[id.ParentID], id.ScopeID)
}

// Forget removes id's own entry, its list of recorded children, and its
// link under its parent, called on scope exit so long-lived processes
// don't leak entries. The children's own entries are not removed.
func (t *Tree) Forget(id Identifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.labels, id.ScopeID)
	delete(t.byParent, id.ScopeID)
	if !id.IsRoot {
		children := t.byParent[id.ParentID]
		for i, c := range children {
			if c == id.ScopeID {
				t.byParent[id.ParentID] = append(children[:i], children[i+1:]...)
				break
			}
		}
	}
}

// Children returns the unique names of scopeID's recorded children.
func (t *Tree) Children(scopeID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.byParent[scopeID]
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, t.labels[id])
	}
	return names
}

// ChildIDs returns the scope ids of scopeID's recorded children, in the
// order they were entered.
func (t *Tree) ChildIDs(scopeID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.byParent[scopeID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Label returns the recorded unique name for scopeID, if any.
func (t *Tree) Label(scopeID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.labels[scopeID]
	return name, ok
}

// Walk visits scopeID and every descendant depth-first, root first.
func (t *Tree) Walk(scopeID string, visit func(uniqueName string, depth int)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.walkLocked(scopeID, 0, visit)
}

func (t *Tree) walkLocked(scopeID string, depth int, visit func(string, int)) {
	name, ok := t.labels[scopeID]
	if !ok {
		return
	}
	visit(name, depth)
	for _, child := range t.byParent[scopeID] {
		t.walkLocked(child, depth+1, visit)
	}
}

// Global is the process-wide scope tree used by the root scopert package
// and the debug renderer. Tests should prefer constructing their own Tree
// when they need isolation.
var Global = NewTree()
