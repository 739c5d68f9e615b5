package relay

import (
	"context"
	"fmt"

	"github.com/roach88/ember/internal/feed"
)

// Fetcher runs one-shot queries. Implemented by *Source.
type Fetcher interface {
	Fetch(ctx context.Context, f feed.Filter) ([]feed.Event, error)
}

// ContactGraph resolves scopes from the owner's latest contact list. Both
// follows and circles resolve to the "p" tags of that list; events in a
// circle list additionally carry a "circle" marker in the fourth position.
type ContactGraph struct {
	Relay Fetcher
}

// Authors implements GraphResolver.
func (g ContactGraph) Authors(ctx context.Context, scope feed.Scope, owner string) ([]string, error) {
	events, err := g.Relay.Fetch(ctx, feed.Filter{
		Authors: []string{owner},
		Kinds:   []int{feed.KindContacts},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}

	var latest *feed.Event
	for i := range events {
		if latest == nil || events[i].CreatedAt > latest.CreatedAt {
			latest = &events[i]
		}
	}
	if latest == nil {
		return nil, nil
	}

	var authors []string
	for _, tag := range latest.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		if scope == feed.ScopeCircles && (len(tag) < 4 || tag[3] != "circle") {
			continue
		}
		authors = append(authors, tag[1])
	}
	return authors, nil
}
