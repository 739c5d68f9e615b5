package feed

import "slices"

// Scope names an author set that the source must resolve for an owner,
// such as the owner's follow list.
type Scope string

const (
	ScopeNone    Scope = ""
	ScopeFollows Scope = "follows"
	ScopeCircles Scope = "circles"
)

// DefaultLimit caps the initial backlog a subscription requests.
const DefaultLimit = 100

// Filter describes the events a subscription wants.
type Filter struct {
	IDs     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Tags    map[string][]string `json:"-"`
	Since   int64               `json:"since,omitempty"`
	Limit   int                 `json:"limit,omitempty"`

	// Scope and Owner ask the source to expand Authors from the owner's
	// social graph. They are not sent on the wire.
	Scope Scope  `json:"-"`
	Owner string `json:"-"`

	// Selector records which feed the filter was built for.
	Selector Selector `json:"-"`
}

// FilterFor builds the filter for sel. identity is the authenticated
// pubkey, empty when logged out. Returns a requires_login *Error when sel
// needs an identity and none is given.
func FilterFor(sel Selector, identity string, limit int) (Filter, error) {
	if !sel.Valid() {
		return Filter{}, &Error{Code: CodeInternal, Selector: sel, Message: "unknown selector"}
	}
	if sel.RequiresAuth() && identity == "" {
		return Filter{}, NewRequiresLoginError(sel)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	f := Filter{Limit: limit, Selector: sel}
	switch sel.Category() {
	case CategoryLongReads:
		f.Kinds = []int{KindLongRead}
	case CategoryLive:
		f.Kinds = []int{KindLiveStream}
	default:
		f.Kinds = []int{KindNote}
	}

	switch sel {
	case Following, LongReadsFollowing, LiveFollowing:
		f.Scope = ScopeFollows
		f.Owner = identity
	case Circles:
		f.Scope = ScopeCircles
		f.Owner = identity
	}

	return f, nil
}

// Matches reports whether ev satisfies f. Scoped filters must have their
// Authors expanded before matching.
func (f Filter) Matches(ev Event) bool {
	if f.Scope != ScopeNone && len(f.Authors) == 0 {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, ev.Pubkey) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since > 0 && ev.CreatedAt < f.Since {
		return false
	}
	for name, want := range f.Tags {
		found := false
		for _, v := range ev.TagValues(name) {
			if slices.Contains(want, v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
