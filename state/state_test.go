package state

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userID string
type requestID string

func TestGetMissingNoDefaultSynthesizes(t *testing.T) {
	ctx := context.Background()
	v, err := Get[int](ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestGetWithDefault(t *testing.T) {
	ctx := context.Background()
	v, err := Get(ctx, userID("anon"))
	require.NoError(t, err)
	assert.Equal(t, userID("anon"), v)
}

func TestNestedShadowing(t *testing.T) {
	ctx := Into(context.Background(), With(Empty, userID("alice")))
	v, _ := Get[userID](ctx)
	assert.Equal(t, userID("alice"), v)

	childSnap := With(current(ctx), userID("bob"))
	childCtx := Into(ctx, childSnap)
	v2, _ := Get[userID](childCtx)
	assert.Equal(t, userID("bob"), v2)

	// parent ctx is untouched since Snapshot/context are immutable
	v3, _ := Get[userID](ctx)
	assert.Equal(t, userID("alice"), v3)
}

func TestFallthroughToAncestorBeforeSynthesis(t *testing.T) {
	root := With(Empty, requestID("req-1"))
	child := With(root)
	ctx := Into(context.Background(), child)

	v, err := Get[requestID](ctx)
	require.NoError(t, err)
	assert.Equal(t, requestID("req-1"), v)
}

func TestContains(t *testing.T) {
	ctx := Into(context.Background(), With(Empty, userID("alice")))
	assert.True(t, Contains[userID](ctx))
	assert.False(t, Contains[requestID](ctx))
}

func TestUpdatingReturnsRestorableContext(t *testing.T) {
	base := Into(context.Background(), With(Empty, userID("alice")))
	updated, restore := Updating(base, userID("bob"))

	v, _ := Get[userID](updated)
	assert.Equal(t, userID("bob"), v)

	restored := restore()
	v2, _ := Get[userID](restored)
	assert.Equal(t, userID("alice"), v2)
}

type config struct{ N int }

func TestSynthesisRacesShareOneInstance(t *testing.T) {
	snap := Empty
	configType := reflect.TypeOf(config{})
	const goroutines = 50
	results := make(chan any, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			v, err := snap.Resolve(configType, nil)
			if err != nil {
				results <- err
				return
			}
			results <- v
		}()
	}
	var first any
	for i := 0; i < goroutines; i++ {
		v := <-results
		if first == nil {
			first = v
		} else {
			assert.Equal(t, first, v)
		}
	}
}
