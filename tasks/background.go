package tasks

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// backgroundGroup is the process-wide fallback used when Spawn is called
// with no active scope task group — e.g. detached finalizers. It installs
// best-effort OS signal handlers that cancel outstanding background tasks
// on shutdown, the same shape as haiway/context/tasks.py's
// BackgroundTaskGroup (SIGINT/SIGTERM/SIGBREAK there; SIGINT/SIGTERM are
// the portable pair in Go).
type backgroundGroup struct {
	mu          sync.Mutex
	cancels     map[int]context.CancelFunc
	nextID      int
	signalsOnce sync.Once
}

var background = &backgroundGroup{cancels: make(map[int]context.CancelFunc)}

func (g *backgroundGroup) installSignalHandlers() {
	g.signalsOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-ch
			g.shutdown()
		}()
	})
}

func (g *backgroundGroup) shutdown() {
	g.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(g.cancels))
	for _, c := range g.cancels {
		cancels = append(cancels, c)
	}
	g.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// spawnBackground runs fn detached from any scope, returning a Handle
// tracking its terminal state and actual result. The background group's own
// context is independent per task (cancelled individually on completion or
// process shutdown), since there is no owning scope to provide one. This is
// a free function rather than a method because Go methods cannot carry
// their own type parameters.
func spawnBackground[T any](g *backgroundGroup, fn func(ctx context.Context) (T, error)) *Handle[T] {
	g.installSignalHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.cancels[id] = cancel
	g.mu.Unlock()

	h := newHandle[T]()
	go func() {
		defer func() {
			g.mu.Lock()
			delete(g.cancels, id)
			g.mu.Unlock()
			cancel()
		}()
		v, err := runGuardedValue(ctx, fn)
		h.complete(v, err)
	}()
	return h
}
