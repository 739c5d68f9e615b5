// Package ember tracks per-content ember totals: the sum of paid receipts
// referencing a post.
package ember

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ember/internal/cell"
	"github.com/roach88/ember/internal/feed"
	"github.com/roach88/ember/internal/loader"
	"github.com/roach88/ember/internal/metrics"
)

// DefaultConcurrency bounds EnsureAll fan-out.
const DefaultConcurrency = 8

// Fetcher loads the receipt events referencing one piece of content.
type Fetcher interface {
	FetchReceipts(ctx context.Context, contentID string) ([]feed.Event, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, contentID string) ([]feed.Event, error)

// FetchReceipts implements Fetcher.
func (f FetcherFunc) FetchReceipts(ctx context.Context, contentID string) ([]feed.Event, error) {
	return f(ctx, contentID)
}

// Tracker computes and caches totals, one fetch per content at a time.
type Tracker struct {
	fetcher     Fetcher
	loads       *loader.Loader[int64]
	concurrency int
	logger      *slog.Logger

	totals *cell.Cell[map[string]int64]
	errs   *cell.Cell[map[string]string]
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithConcurrency bounds how many fetches EnsureAll runs at once.
func WithConcurrency(n int) Option {
	return func(t *Tracker) { t.concurrency = n }
}

// WithLogger sets the tracker logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker over fetcher. m may be nil.
func NewTracker(fetcher Fetcher, m *metrics.Collector, opts ...Option) *Tracker {
	t := &Tracker{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		totals:      cell.Named("ember.totals", map[string]int64{}),
		errs:        cell.Named("ember.errors", map[string]string{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.loads = loader.New[int64]("embers", loader.WithMetrics(m), loader.WithLogger(t.logger))
	return t
}

// Totals maps content id to its total in sats.
func (t *Tracker) Totals() cell.Readable[map[string]int64] { return t.totals }

// Errors maps content id to the last fetch failure.
func (t *Tracker) Errors() cell.Readable[map[string]string] { return t.errs }

// Total returns the cached total for contentID.
func (t *Tracker) Total(contentID string) (int64, bool) {
	v, ok := t.totals.Get()[contentID]
	return v, ok
}

// Ensure returns the total for contentID, fetching it if it is not cached.
// Concurrent calls for the same id share one fetch. A failure is recorded
// on Errors and returned; nothing is retried until the next call.
func (t *Tracker) Ensure(ctx context.Context, contentID string) (int64, error) {
	if v, ok := t.Total(contentID); ok {
		return v, nil
	}
	return t.load(ctx, contentID)
}

// Refresh refetches contentID even if a total is cached.
func (t *Tracker) Refresh(ctx context.Context, contentID string) (int64, error) {
	return t.load(ctx, contentID)
}

// EnsureAll ensures every id, bounded by the configured concurrency.
// Returns the first failure; the other fetches still complete.
func (t *Tracker) EnsureAll(ctx context.Context, contentIDs []string) error {
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for _, id := range contentIDs {
		g.Go(func() error {
			_, err := t.Ensure(ctx, id)
			return err
		})
	}
	return g.Wait()
}

func (t *Tracker) load(ctx context.Context, contentID string) (int64, error) {
	return t.loads.Ensure(ctx, contentID, func(ctx context.Context) (int64, error) {
		receipts, err := t.fetcher.FetchReceipts(ctx, contentID)
		if err != nil {
			t.logger.Warn("ember fetch failed",
				"content_id", contentID,
				"error", err,
			)
			t.errs.Update(func(m map[string]string) map[string]string {
				next := maps.Clone(m)
				next[contentID] = err.Error()
				return next
			})
			return 0, fmt.Errorf("fetch receipts for %s: %w", contentID, err)
		}

		total := Sum(contentID, receipts)
		t.totals.Update(func(m map[string]int64) map[string]int64 {
			next := maps.Clone(m)
			next[contentID] = total
			return next
		})
		t.errs.Update(func(m map[string]string) map[string]string {
			if _, ok := m[contentID]; !ok {
				return m
			}
			next := maps.Clone(m)
			delete(next, contentID)
			return next
		})
		return total, nil
	})
}

// Sum adds up the receipts for contentID in sats. Receipts that do not
// reference contentID, are not receipts, or repeat an id are skipped. The
// total saturates at math.MaxInt64 msats.
func Sum(contentID string, receipts []feed.Event) int64 {
	seen := make(map[string]struct{}, len(receipts))
	var msats int64
	for _, r := range receipts {
		if r.Kind != feed.KindReceipt {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		if !references(r, contentID) {
			continue
		}
		seen[r.ID] = struct{}{}
		if n, ok := AmountMsats(r); ok {
			if n > math.MaxInt64-msats {
				msats = math.MaxInt64
				break
			}
			msats += n
		}
	}
	return msats / 1000
}

func references(r feed.Event, contentID string) bool {
	for _, id := range r.TagValues("e") {
		if id == contentID {
			return true
		}
	}
	for _, id := range r.TagValues("a") {
		if id == contentID {
			return true
		}
	}
	return false
}
