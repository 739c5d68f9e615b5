package cell

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive_InitialValue(t *testing.T) {
	a := New(2)
	b := New(3)

	sum := Combine(a, b, func(x, y int) int { return x + y })
	assert.Equal(t, 5, sum.Get())
}

func TestDerive_RecomputesOnEverySourceChange(t *testing.T) {
	a := New(1)
	b := New(10)
	sum := Derive(func() int { return a.Get() + b.Get() }, a, b)

	var got []int
	sum.Subscribe(func(v int) { got = append(got, v) })

	a.Set(2)
	b.Set(20)
	a.Update(func(v int) int { return v * 2 })

	assert.Equal(t, []int{11, 12, 22, 24}, got)
	assert.Equal(t, 24, sum.Get())
}

func TestMap_SingleSource(t *testing.T) {
	n := New(3)
	label := Map(n, func(v int) string { return fmt.Sprintf("n=%d", v) })

	assert.Equal(t, "n=3", label.Get())
	n.Set(4)
	assert.Equal(t, "n=4", label.Get())
}

func TestDerive_Composes(t *testing.T) {
	base := New(2)
	doubled := Map(base, func(v int) int { return v * 2 })
	quadrupled := Map(doubled, func(v int) int { return v * 2 })

	base.Set(5)
	assert.Equal(t, 20, quadrupled.Get())
}

func TestDerive_NeverStaleForSubscribers(t *testing.T) {
	src := New(1)
	view := Map(src, func(v int) int { return v + 100 })

	// A second subscriber on the source reads the view during the same
	// notification. The view subscribed first, so it is already current.
	var seen []int
	src.Subscribe(func(v int) {
		seen = append(seen, view.Get()-v)
	})

	src.Set(2)
	src.Set(3)

	for _, diff := range seen {
		assert.Equal(t, 100, diff)
	}
}

func TestDerive_ReadMidNotificationDoesNotPanic(t *testing.T) {
	src := New(0)
	var view *View[int]
	src.Subscribe(func(int) {
		if view != nil {
			_ = view.Get()
		}
	})
	view = Map(src, func(v int) int { return v })

	assert.NotPanics(t, func() { src.Set(9) })
	assert.Equal(t, 9, view.Get())
}

func TestView_CloseDetaches(t *testing.T) {
	src := New(1)
	view := Map(src, func(v int) int { return v })
	assert.Equal(t, 1, src.Len())

	view.Close()
	view.Close()

	src.Set(5)
	assert.Equal(t, 1, view.Get(), "closed view keeps its last value")
	assert.Equal(t, 0, src.Len())
}

func TestView_ReentrantChangePublishesInOrder(t *testing.T) {
	src := New(1)
	view := Map(src, func(v int) int { return v })

	view.Subscribe(func(v int) {
		if v == 2 {
			src.Set(3)
		}
	})
	var seen []int
	view.Subscribe(func(v int) { seen = append(seen, v) })

	src.Set(2)

	assert.Equal(t, 3, view.Get())
	assert.Equal(t, []int{1, 2, 3}, seen, "later subscribers never see 3 before 2")
}

func TestView_ConcurrentSourcesSettleOnLatest(t *testing.T) {
	a := New(0)
	b := New(0)
	sum := Combine(a, b, func(x, y int) int { return x + y })

	var mu sync.Mutex
	var last int
	sum.Subscribe(func(v int) {
		mu.Lock()
		last = v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, c := range []*Cell[int]{a, b} {
		wg.Add(1)
		go func(c *Cell[int]) {
			defer wg.Done()
			for i := 1; i <= 500; i++ {
				c.Set(i)
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1000, sum.Get())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1000, last, "last delivered value is the latest sum")
}
