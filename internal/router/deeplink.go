package router

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the URI scheme of in-app deep links.
const Scheme = "ember"

// DeepLinkError reports a malformed deep link. Nothing is navigated.
type DeepLinkError struct {
	URI    string
	Reason string
}

// Error implements the error interface.
func (e *DeepLinkError) Error() string {
	return fmt.Sprintf("invalid deep link %q: %s", e.URI, e.Reason)
}

// IsDeepLinkError returns true if err is a *DeepLinkError.
// Uses errors.As to handle wrapped errors.
func IsDeepLinkError(err error) bool {
	var de *DeepLinkError
	return errors.As(err, &de)
}

// ParseDeepLink parses one of
//
//	ember://post/<event-id>
//	ember://profile/<pubkey>
//	ember://tab/<tab>
//
// Detail routes get originTab as their origin.
func ParseDeepLink(uri string, originTab Tab) (Route, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &DeepLinkError{URI: uri, Reason: err.Error()}
	}
	if u.Scheme != Scheme {
		return nil, &DeepLinkError{URI: uri, Reason: fmt.Sprintf("scheme must be %q", Scheme)}
	}

	target := strings.Trim(u.Path, "/")
	if target == "" || strings.Contains(target, "/") {
		return nil, &DeepLinkError{URI: uri, Reason: "expected exactly one path segment"}
	}

	switch u.Host {
	case "post":
		return PostDetail{EventID: target, OriginTab: originTab}, nil
	case "profile":
		return ProfileDetail{Pubkey: target, OriginTab: originTab}, nil
	case "tab":
		tab, err := ParseTab(target)
		if err != nil {
			return nil, &DeepLinkError{URI: uri, Reason: err.Error()}
		}
		return Page{Name: tab}, nil
	default:
		return nil, &DeepLinkError{URI: uri, Reason: fmt.Sprintf("unknown target %q", u.Host)}
	}
}

// DeepLink renders rt as a deep link.
func DeepLink(rt Route) string {
	switch v := rt.(type) {
	case Page:
		return Scheme + "://tab/" + string(v.Name)
	case PostDetail:
		return Scheme + "://post/" + url.PathEscape(v.EventID)
	case ProfileDetail:
		return Scheme + "://profile/" + url.PathEscape(v.Pubkey)
	}
	return ""
}

// Follow parses uri and navigates to it. A malformed link returns a
// *DeepLinkError and leaves state untouched.
func (r *Router) Follow(uri string, originTab Tab) error {
	rt, err := ParseDeepLink(uri, originTab)
	if err != nil {
		return err
	}
	r.Open(rt)
	return nil
}
