package router

import (
	"log/slog"
	"slices"

	"github.com/roach88/ember/internal/cell"
	"github.com/roach88/ember/internal/feed"
)

// Router owns navigation state.
//
// Thread-safety: mutations are serialised through the state cell's Update.
// Views are derived from the cell and safe to read from any goroutine.
type Router struct {
	state      *cell.Cell[State]
	detailOnly map[Tab]bool
	logger     *slog.Logger

	active    *cell.View[Route]
	tab       *cell.View[Tab]
	history   *cell.View[[]Route]
	canGoBack *cell.View[bool]
}

// Option configures a Router.
type Option func(*Router)

// WithDetailTabs replaces the set of tabs that only ever host detail
// routes. Going back from such a tab with an empty history lands on Home.
// Default: Profile.
func WithDetailTabs(tabs ...Tab) Option {
	return func(r *Router) {
		r.detailOnly = make(map[Tab]bool, len(tabs))
		for _, t := range tabs {
			r.detailOnly[t] = true
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a router on Page(home) with an empty history.
func New(opts ...Option) *Router {
	r := &Router{
		state: cell.Named("router.state", State{
			Active: Page{Name: Home},
			Tab:    Home,
		}),
		detailOnly: map[Tab]bool{Profile: true},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.active = cell.Map[State](r.state, func(s State) Route { return s.Active })
	r.tab = cell.Map[State](r.state, func(s State) Tab { return s.Tab })
	r.history = cell.Map[State](r.state, func(s State) []Route { return s.History })
	r.canGoBack = cell.Map[State](r.state, func(s State) bool { return len(s.History) > 0 })
	return r
}

// State exposes the full navigation state.
func (r *Router) State() cell.Readable[State] { return r.state }

// ActiveRoute is the route currently shown.
func (r *Router) ActiveRoute() cell.Readable[Route] { return r.active }

// VisibleTab is the highlighted tab.
func (r *Router) VisibleTab() cell.Readable[Tab] { return r.tab }

// History is the back stack, oldest first. Treat the slice as read-only.
func (r *Router) History() cell.Readable[[]Route] { return r.history }

// CanGoBack reports whether the back stack is non-empty.
func (r *Router) CanGoBack() cell.Readable[bool] { return r.canGoBack }

// DetailOnly reports whether t only hosts detail routes.
func (r *Router) DetailOnly(t Tab) bool { return r.detailOnly[t] }

// NavigateToPage shows tab and clears the back stack.
func (r *Router) NavigateToPage(tab Tab) {
	r.state.Update(func(State) State {
		return State{Active: Page{Name: tab}, Tab: tab}
	})
	r.logger.Debug("navigated to page", "tab", tab)
}

// OpenPost shows a post on originTab. Re-opening the post that is already
// active does nothing.
func (r *Router) OpenPost(eventID string, originTab Tab, preloaded *feed.Event) {
	r.push(PostDetail{EventID: eventID, OriginTab: originTab, Preloaded: preloaded})
}

// OpenProfile shows a profile on originTab. Re-opening the profile that is
// already active does nothing.
func (r *Router) OpenProfile(pubkey string, originTab Tab) {
	r.push(ProfileDetail{Pubkey: pubkey, OriginTab: originTab})
}

// Open applies a parsed route: Page navigates, detail routes push.
func (r *Router) Open(rt Route) {
	switch v := rt.(type) {
	case Page:
		r.NavigateToPage(v.Name)
	case PostDetail:
		r.OpenPost(v.EventID, v.OriginTab, v.Preloaded)
	case ProfileDetail:
		r.OpenProfile(v.Pubkey, v.OriginTab)
	}
}

// GoBack pops the back stack. With an empty stack it shows the page of
// the current tab, or Home when that tab is detail-only.
func (r *Router) GoBack() {
	var next Route
	r.state.Update(func(s State) State {
		if n := len(s.History); n > 0 {
			next = s.History[n-1]
			return State{
				Active:  next,
				Tab:     next.Tab(),
				History: slices.Clone(s.History[:n-1]),
			}
		}

		tab := s.Active.Tab()
		if r.detailOnly[tab] {
			tab = Home
		}
		next = Page{Name: tab}
		return State{Active: next, Tab: tab}
	})
	r.logger.Debug("navigated back", "route", next.String())
}

func (r *Router) push(rt Route) {
	pushed := false
	r.state.Update(func(s State) State {
		if sameDestination(s.Active, rt) {
			return s
		}
		pushed = true
		history := make([]Route, 0, len(s.History)+1)
		history = append(history, s.History...)
		history = append(history, s.Active)
		return State{Active: rt, Tab: rt.Tab(), History: history}
	})
	if pushed {
		r.logger.Debug("opened detail", "route", rt.String())
	}
}

// Close detaches the derived views.
func (r *Router) Close() {
	r.active.Close()
	r.tab.Close()
	r.history.Close()
	r.canGoBack.Close()
}
