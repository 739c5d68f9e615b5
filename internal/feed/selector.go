package feed

import (
	"fmt"
	"sync"

	"github.com/roach88/ember/internal/cell"
	"github.com/roach88/ember/internal/store"
)

// Selector identifies which feed is requested.
type Selector string

const (
	Global             Selector = "global"
	Following          Selector = "following"
	Circles            Selector = "circles"
	LongReadsGlobal    Selector = "long-reads-global"
	LongReadsFollowing Selector = "long-reads-following"
	LiveGlobal         Selector = "live-global"
	LiveFollowing      Selector = "live-following"
)

// Category groups selectors that share a feed tab.
type Category string

const (
	CategoryNotes     Category = "notes"
	CategoryLongReads Category = "long-reads"
	CategoryLive      Category = "live"
)

// Selectors lists every selector in display order.
var Selectors = []Selector{
	Global, Following, Circles,
	LongReadsGlobal, LongReadsFollowing,
	LiveGlobal, LiveFollowing,
}

// ParseSelector validates s.
func ParseSelector(s string) (Selector, error) {
	for _, sel := range Selectors {
		if string(sel) == s {
			return sel, nil
		}
	}
	return "", fmt.Errorf("unknown feed selector %q", s)
}

// Category returns the category sel belongs to.
func (s Selector) Category() Category {
	switch s {
	case LongReadsGlobal, LongReadsFollowing:
		return CategoryLongReads
	case LiveGlobal, LiveFollowing:
		return CategoryLive
	default:
		return CategoryNotes
	}
}

// RequiresAuth reports whether sel can only be served for a known identity.
func (s Selector) RequiresAuth() bool {
	switch s {
	case Following, Circles, LongReadsFollowing, LiveFollowing:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known selector.
func (s Selector) Valid() bool {
	_, err := ParseSelector(string(s))
	return err == nil
}

// DefaultFor returns the selector a category opens on when it has never
// been visited.
func DefaultFor(c Category) Selector {
	switch c {
	case CategoryLongReads:
		return LongReadsGlobal
	case CategoryLive:
		return LiveGlobal
	default:
		return Global
	}
}

// selectionKey is where Selection persists its state.
const selectionKey = "feed/selection"

type persistedSelection struct {
	Active Selector              `json:"active"`
	Last   map[Category]Selector `json:"last"`
}

// Selection holds the active selector and the last sub-choice made in
// each category, so returning to a category restores it.
type Selection struct {
	active *cell.Cell[Selector]
	last   *cell.Cell[map[Category]Selector]
	store  store.Store

	mu sync.Mutex // serialises Select so active and last stay in step
}

// NewSelection restores the persisted selection from st, or starts on
// Global. st may be nil for an unpersisted selection.
func NewSelection(st store.Store) *Selection {
	p := persistedSelection{Active: Global, Last: map[Category]Selector{}}
	if st != nil {
		if saved, ok := store.LoadJSON[persistedSelection](st, selectionKey); ok && saved.Active.Valid() {
			p.Active = saved.Active
			for c, sel := range saved.Last {
				if sel.Valid() && sel.Category() == c {
					p.Last[c] = sel
				}
			}
		}
	}

	return &Selection{
		active: cell.Named("feed.selection", p.Active),
		last:   cell.Named("feed.last", p.Last),
		store:  st,
	}
}

// Active is the currently requested selector.
func (s *Selection) Active() cell.Readable[Selector] {
	return s.active
}

// Last returns the remembered sub-choice for c, or its default.
func (s *Selection) Last(c Category) Selector {
	if sel, ok := s.last.Get()[c]; ok {
		return sel
	}
	return DefaultFor(c)
}

// Select makes sel active and remembers it for its category.
func (s *Selection) Select(sel Selector) error {
	if !sel.Valid() {
		return fmt.Errorf("unknown feed selector %q", sel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last.Update(func(m map[Category]Selector) map[Category]Selector {
		next := make(map[Category]Selector, len(m)+1)
		for k, v := range m {
			next[k] = v
		}
		next[sel.Category()] = sel
		return next
	})
	s.active.Set(sel)
	s.persist()
	return nil
}

// SelectCategory switches to c, restoring its last sub-choice.
func (s *Selection) SelectCategory(c Category) Selector {
	sel := s.Last(c)
	_ = s.Select(sel)
	return sel
}

func (s *Selection) persist() {
	if s.store == nil {
		return
	}
	store.SaveJSON(s.store, selectionKey, persistedSelection{
		Active: s.active.Get(),
		Last:   s.last.Get(),
	})
}
