package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneration_NextSupersedes(t *testing.T) {
	g := NewGeneration()
	assert.Equal(t, int64(0), g.Current())

	first := g.Next()
	assert.True(t, g.IsCurrent(first))

	second := g.Next()
	assert.False(t, g.IsCurrent(first), "older token must be stale")
	assert.True(t, g.IsCurrent(second))
	assert.Greater(t, second, first)
}

func TestGeneration_ThreadSafe(t *testing.T) {
	g := NewGeneration()
	const goroutines = 50
	const calls = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				g.Next()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*calls), g.Current())
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var got []int
	finished := make(chan struct{})
	for i := 1; i <= 5; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	l.Post(func() { close(finished) })

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	ran := make(chan struct{})
	l.Post(func() { panic("boom") })
	l.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task after panic did not run")
	}
}

func TestLoop_StopDrainsAndReturns(t *testing.T) {
	l := New()

	count := 0
	l.Post(func() { count++ })
	l.Post(func() { count++ })
	l.Stop()

	assert.False(t, l.Post(func() { count++ }), "post after stop must be rejected")

	err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInline_RunsImmediately(t *testing.T) {
	ran := false
	assert.True(t, Inline{}.Post(func() { ran = true }))
	assert.True(t, ran)
	assert.False(t, Inline{}.Post(nil))
}
