package notify

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ember/internal/feed"
	"github.com/roach88/ember/internal/metrics"
	"github.com/roach88/ember/internal/router"
)

type recordingPresenter struct {
	mu    sync.Mutex
	shown []Notification
	err   error
	panic bool
}

func (p *recordingPresenter) Present(title, body, id, deepLink string) error {
	if p.panic {
		panic("display server gone")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, Notification{ID: id, Title: title, Body: body, DeepLink: deepLink})
	return p.err
}

func (p *recordingPresenter) all() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.shown...)
}

func TestDispatcher_PresentsAndAssignsID(t *testing.T) {
	p := &recordingPresenter{}
	d := NewDispatcher(p)

	id := d.Notify(Notification{Title: "hi", DeepLink: "ember://tab/home"})
	d.Notify(Notification{ID: "fixed", Title: "again"})
	d.Wait()

	assert.NotEmpty(t, id)
	shown := p.all()
	require.Len(t, shown, 2)
	ids := []string{shown[0].ID, shown[1].ID}
	assert.Contains(t, ids, id)
	assert.Contains(t, ids, "fixed")
}

func TestDispatcher_FailuresAreContained(t *testing.T) {
	m := metrics.NewCollector("test")

	failing := NewDispatcher(&recordingPresenter{err: errors.New("denied")}, WithMetrics(m))
	failing.Notify(Notification{Title: "x"})
	failing.Wait()

	panicking := NewDispatcher(&recordingPresenter{panic: true}, WithMetrics(m))
	assert.NotPanics(t, func() {
		panicking.Notify(Notification{Title: "y"})
		panicking.Wait()
	})

	count, err := testutil.GatherAndCount(m.Registry(), "test_notify_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one label set: failed")
}

func TestDispatcher_Throttles(t *testing.T) {
	p := &recordingPresenter{}
	d := NewDispatcher(p, WithRate(0.001, 2))

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, d.Notify(Notification{Title: "burst"}))
	}
	d.Wait()

	assert.Len(t, p.all(), 2)
	assert.Equal(t, []string{"", "", ""}, ids[2:])
}

func TestForEvent(t *testing.T) {
	n := ForEvent(feed.Event{ID: "e1", Kind: feed.KindReceipt, Content: strings.Repeat("a", 200)})
	assert.Equal(t, "e1", n.ID)
	assert.Equal(t, "New ember", n.Title)
	assert.Equal(t, "ember://post/e1", n.DeepLink)
	assert.True(t, strings.HasSuffix(n.Body, "…"))

	assert.Equal(t, "New note", ForEvent(feed.Event{Kind: feed.KindNote}).Title)
}

func TestForEvent_NormalizesBody(t *testing.T) {
	// "e" followed by a combining acute accent composes to one rune.
	decomposed := strings.Repeat("e\u0301", maxBody)
	n := ForEvent(feed.Event{ID: "e2", Content: decomposed})
	assert.Equal(t, strings.Repeat("\u00e9", maxBody), n.Body)
}

func TestOpen_FollowsDeepLink(t *testing.T) {
	r := router.New()
	require.NoError(t, Open(r, ForEvent(feed.Event{ID: "e1"}), router.Notifications))
	assert.Equal(t, router.PostDetail{EventID: "e1", OriginTab: router.Notifications}, r.ActiveRoute().Get())

	err := Open(r, Notification{ID: "bad", DeepLink: "https://elsewhere"}, router.Home)
	assert.True(t, router.IsDeepLinkError(err))
}

func TestLogPresenter(t *testing.T) {
	var buf bytes.Buffer
	p := LogPresenter{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, p.Present("Title", "Body", "n1", "ember://tab/home"))
	out := buf.String()
	assert.Contains(t, out, "notification_id=n1")
	assert.Contains(t, out, "deep_link=ember://tab/home")
}
