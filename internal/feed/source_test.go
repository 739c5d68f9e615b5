package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ember/internal/ids"
)

func TestMemorySource_ExpandsScopeAndDelivers(t *testing.T) {
	src := NewMemorySource(ids.NewFixed("sub"))
	src.SetGraph(ScopeFollows, "alice", []string{"bob"})

	f, err := FilterFor(Following, "alice", 10)
	require.NoError(t, err)

	var got []string
	h, err := src.Subscribe(context.Background(), f, func(ev Event) { got = append(got, ev.ID) })
	require.NoError(t, err)
	assert.Equal(t, Handle("sub-1"), h)

	src.Publish(Event{ID: "1", Pubkey: "bob", Kind: KindNote})
	src.Publish(Event{ID: "2", Pubkey: "carol", Kind: KindNote})
	src.Publish(Event{ID: "3", Pubkey: "bob", Kind: KindLongRead})

	assert.Equal(t, []string{"1"}, got)
}

func TestMemorySource_StopIsIdempotent(t *testing.T) {
	src := NewMemorySource(nil)

	var n int
	h, err := src.Subscribe(context.Background(), Filter{}, func(Event) { n++ })
	require.NoError(t, err)

	src.Stop(h)
	src.Stop(h)
	src.StopAll()
	src.Publish(Event{ID: "1"})

	assert.Zero(t, n)
	assert.Empty(t, src.Active())
	assert.Equal(t, 1, src.Opened())
}

func TestMemorySource_FailNext(t *testing.T) {
	src := NewMemorySource(nil)
	boom := errors.New("relay down")
	src.FailNext(boom)

	_, err := src.Subscribe(context.Background(), Filter{}, func(Event) {})
	assert.ErrorIs(t, err, boom)

	_, err = src.Subscribe(context.Background(), Filter{}, func(Event) {})
	assert.NoError(t, err)
}

func TestMemorySource_CancelledContext(t *testing.T) {
	src := NewMemorySource(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Subscribe(ctx, Filter{}, func(Event) {})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.Opened())
}
