package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualTimer_FiresOnlyOnDemand(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timer := NewManualTimer(start)

	ch := timer.After(100 * time.Millisecond)
	assert.Equal(t, 1, timer.Pending())

	select {
	case <-ch:
		t.Fatal("fired before Fire")
	default:
	}

	require.True(t, timer.Fire())
	assert.Equal(t, start, <-ch)
	assert.Equal(t, 0, timer.Pending())
	assert.False(t, timer.Fire())
}

func TestManualTimer_FireAll(t *testing.T) {
	timer := NewManualTimer(time.Time{})
	a := timer.After(time.Second)
	b := timer.After(2 * time.Second)
	timer.Advance(time.Minute)

	assert.Equal(t, 2, timer.FireAll())
	assert.Equal(t, time.Time{}.Add(time.Minute), <-a)
	assert.Equal(t, time.Time{}.Add(time.Minute), <-b)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.Requested())
}

func TestManualDispatcher_RunPendingIncludesNestedPosts(t *testing.T) {
	d := NewManualDispatcher()
	var order []int

	d.Post(func() {
		order = append(order, 1)
		d.Post(func() { order = append(order, 3) })
	})
	d.Post(func() { order = append(order, 2) })
	assert.Equal(t, 2, d.Len())

	assert.Equal(t, 3, d.RunPending())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, d.Len())
}

func TestManualDispatcher_CloseRejects(t *testing.T) {
	d := NewManualDispatcher()
	d.Post(func() { t.Fatal("dropped task ran") })
	d.Close()

	assert.False(t, d.Post(func() {}))
	assert.Equal(t, 0, d.RunPending())
}

func TestScriptedCredentials_AnswersInOrder(t *testing.T) {
	creds := NewScriptedCredentials(Key("k1"), Cancel())
	ctx := context.Background()

	key, err := creds.RequestMasterKey(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("k1"), key)

	key, err = creds.RequestMasterKey(ctx, false)
	require.NoError(t, err)
	assert.Nil(t, key)

	_, err = creds.RequestMasterKey(ctx, true)
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Equal(t, 3, creds.Calls())
	assert.Equal(t, []bool{true, false, true}, creds.AllowCancel())
}

func TestScriptedCredentials_GateHoldsRequest(t *testing.T) {
	creds := NewScriptedCredentials(Key("k"))
	creds.Gate = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	go func() {
		defer wg.Done()
		got, _ = creds.RequestMasterKey(context.Background(), true)
	}()

	require.Eventually(t, func() bool { return creds.Calls() == 1 }, time.Second, time.Millisecond)
	assert.Nil(t, got)

	creds.Gate <- struct{}{}
	wg.Wait()
	assert.Equal(t, []byte("k"), got)
}

func TestScriptedCredentials_GateRespectsContext(t *testing.T) {
	creds := NewScriptedCredentials(Key("k"))
	creds.Gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := creds.RequestMasterKey(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
}
