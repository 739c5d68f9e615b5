package router

import (
	"fmt"

	"github.com/roach88/ember/internal/feed"
)

// Tab is a top-level section of the client.
type Tab string

const (
	Home          Tab = "home"
	Discover      Tab = "discover"
	Notifications Tab = "notifications"
	Messages      Tab = "messages"
	Wallet        Tab = "wallet"
	Profile       Tab = "profile"
	Settings      Tab = "settings"
)

// Tabs lists every tab in display order.
var Tabs = []Tab{Home, Discover, Notifications, Messages, Wallet, Profile, Settings}

// ParseTab validates s.
func ParseTab(s string) (Tab, error) {
	for _, t := range Tabs {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// Route is one navigation destination. Implemented by Page, PostDetail and
// ProfileDetail only.
type Route interface {
	// Tab is the tab shown while the route is active.
	Tab() Tab
	String() string
	route()
}

// Page is a top-level tab.
type Page struct {
	Name Tab
}

// PostDetail shows a single post opened from OriginTab. Preloaded carries
// the event when the opener already had it.
type PostDetail struct {
	EventID   string
	OriginTab Tab
	Preloaded *feed.Event
}

// ProfileDetail shows a profile opened from OriginTab.
type ProfileDetail struct {
	Pubkey    string
	OriginTab Tab
}

func (p Page) Tab() Tab          { return p.Name }
func (p PostDetail) Tab() Tab    { return p.OriginTab }
func (p ProfileDetail) Tab() Tab { return p.OriginTab }

func (p Page) String() string { return "page(" + string(p.Name) + ")" }

func (p PostDetail) String() string {
	return fmt.Sprintf("post(%s, %s)", p.EventID, p.OriginTab)
}

func (p ProfileDetail) String() string {
	return fmt.Sprintf("profile(%s, %s)", p.Pubkey, p.OriginTab)
}

func (Page) route()          {}
func (PostDetail) route()    {}
func (ProfileDetail) route() {}

// sameDestination reports whether a and b show the same content. The
// preloaded event and origin tab do not count.
func sameDestination(a, b Route) bool {
	switch x := a.(type) {
	case Page:
		y, ok := b.(Page)
		return ok && x.Name == y.Name
	case PostDetail:
		y, ok := b.(PostDetail)
		return ok && x.EventID == y.EventID
	case ProfileDetail:
		y, ok := b.(ProfileDetail)
		return ok && x.Pubkey == y.Pubkey
	}
	return false
}

// State is the complete navigation state.
type State struct {
	Active  Route
	Tab     Tab
	History []Route
}
