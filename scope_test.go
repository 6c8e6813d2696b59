package scopert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumped-fn/scopert/disposable"
)

type userID string

func TestEnterRootCreatesIsolatedRuntime(t *testing.T) {
	ctx, h, err := Enter(context.Background(), "root")
	require.NoError(t, err)
	assert.NotNil(t, h.group)
	assert.NotNil(t, h.bus)
	assert.NoError(t, h.Exit(nil))
}

func TestNestedScopeSharesParentRuntimeByDefault(t *testing.T) {
	rootCtx, rootHandle, err := Enter(context.Background(), "root")
	require.NoError(t, err)
	defer rootHandle.Exit(nil)

	childCtx, childHandle, err := Enter(rootCtx, "child")
	require.NoError(t, err)
	assert.Nil(t, childHandle.group)
	assert.Nil(t, childHandle.bus)

	v, err := State[userID](childCtx)
	require.NoError(t, err)
	assert.Equal(t, userID(""), v)

	require.NoError(t, childHandle.Exit(nil))
}

func TestStateShadowsAcrossNesting(t *testing.T) {
	rootCtx, rootHandle, err := Enter(context.Background(), "root", WithState(userID("alice")))
	require.NoError(t, err)
	defer rootHandle.Exit(nil)

	v, err := State[userID](rootCtx)
	require.NoError(t, err)
	assert.Equal(t, userID("alice"), v)

	childCtx, childHandle, err := Enter(rootCtx, "child", WithState(userID("bob")))
	require.NoError(t, err)

	v, err = State[userID](childCtx)
	require.NoError(t, err)
	assert.Equal(t, userID("bob"), v)
	require.NoError(t, childHandle.Exit(nil))

	v, err = State[userID](rootCtx)
	require.NoError(t, err)
	assert.Equal(t, userID("alice"), v)
}

func TestIsolatedNestedScopeGetsOwnRuntime(t *testing.T) {
	rootCtx, rootHandle, err := Enter(context.Background(), "root")
	require.NoError(t, err)
	defer rootHandle.Exit(nil)

	childCtx, childHandle, err := Enter(rootCtx, "child", WithIsolated())
	require.NoError(t, err)
	assert.NotNil(t, childHandle.group)
	assert.NotNil(t, childHandle.bus)

	_ = childCtx
	require.NoError(t, childHandle.Exit(nil))
}

func TestDisposableContributesStateAndReleasesOnExit(t *testing.T) {
	released := false
	d := disposable.Func{
		AcquireFn: func(ctx context.Context) ([]any, error) {
			return []any{userID("from-disposable")}, nil
		},
		ReleaseFn: func(ctx context.Context, cause error) error {
			released = true
			return nil
		},
	}

	ctx, h, err := Enter(context.Background(), "root", WithDisposables(d))
	require.NoError(t, err)

	v, err := State[userID](ctx)
	require.NoError(t, err)
	assert.Equal(t, userID("from-disposable"), v)

	require.NoError(t, h.Exit(nil))
	assert.True(t, released)
}

func TestCallerStateOverridesDisposableState(t *testing.T) {
	d := disposable.Func{
		AcquireFn: func(ctx context.Context) ([]any, error) {
			return []any{userID("from-disposable")}, nil
		},
		ReleaseFn: func(ctx context.Context, cause error) error { return nil },
	}

	ctx, h, err := Enter(context.Background(), "root", WithDisposables(d), WithState(userID("caller")))
	require.NoError(t, err)

	v, err := State[userID](ctx)
	require.NoError(t, err)
	assert.Equal(t, userID("caller"), v)
	require.NoError(t, h.Exit(nil))
}

func TestTaskFailureSurfacesAtExit(t *testing.T) {
	ctx, h, err := Enter(context.Background(), "root")
	require.NoError(t, err)

	Spawn(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, errors.New("task failed")
	})

	exitErr := h.Exit(nil)
	require.Error(t, exitErr)
	assert.Contains(t, exitErr.Error(), "task failed")
}

func TestBodyErrorCancelsOutstandingTasks(t *testing.T) {
	ctx, h, err := Enter(context.Background(), "root")
	require.NoError(t, err)

	cancelled := make(chan struct{})
	Spawn(ctx, func(taskCtx context.Context) (struct{}, error) {
		select {
		case <-taskCtx.Done():
			close(cancelled)
			return struct{}{}, taskCtx.Err()
		case <-time.After(5 * time.Second):
			return struct{}{}, nil
		}
	})

	time.Sleep(10 * time.Millisecond)
	exitErr := h.Exit(errors.New("body failed"))
	require.Error(t, exitErr)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("outstanding task was never cancelled")
	}
}

func TestExitTwiceIsInvariantViolation(t *testing.T) {
	_, h, err := Enter(context.Background(), "root")
	require.NoError(t, err)
	require.NoError(t, h.Exit(nil))

	var invariant *InvariantViolationError
	assert.ErrorAs(t, h.Exit(nil), &invariant)
}

func TestRunEntersAndExits(t *testing.T) {
	called := false
	err := Run(context.Background(), "root", func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRunPropagatesBodyError(t *testing.T) {
	sentinel := errors.New("body error")
	err := Run(context.Background(), "root", func(ctx context.Context) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestRunRecoversPanicAsInvariantViolation(t *testing.T) {
	err := Run(context.Background(), "root", func(ctx context.Context) error {
		panic("boom")
	})
	var invariant *InvariantViolationError
	assert.ErrorAs(t, err, &invariant)
}

func TestPresetSuppliesBaselineRecords(t *testing.T) {
	defer ClearPresets()
	RegisterPreset("worker", Preset{Records: []any{userID("from-preset")}})

	ctx, h, err := Enter(context.Background(), "worker")
	require.NoError(t, err)
	v, err := State[userID](ctx)
	require.NoError(t, err)
	assert.Equal(t, userID("from-preset"), v)
	require.NoError(t, h.Exit(nil))
}
