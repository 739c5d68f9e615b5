package router

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeepLink(t *testing.T) {
	tests := []struct {
		uri  string
		want Route
	}{
		{"ember://post/abc123", PostDetail{EventID: "abc123", OriginTab: Notifications}},
		{"ember://profile/npub1xyz", ProfileDetail{Pubkey: "npub1xyz", OriginTab: Notifications}},
		{"ember://tab/wallet", Page{Name: Wallet}},
		{"ember://post/abc123/", PostDetail{EventID: "abc123", OriginTab: Notifications}},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseDeepLink(tt.uri, Notifications)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDeepLink_Malformed(t *testing.T) {
	for _, uri := range []string{
		"",
		"https://post/abc",
		"ember://post/",
		"ember://post/a/b",
		"ember://tab/nowhere",
		"ember://comment/1",
		"ember://%zz",
	} {
		t.Run(fmt.Sprintf("%q", uri), func(t *testing.T) {
			_, err := ParseDeepLink(uri, Home)
			require.Error(t, err)
			assert.True(t, IsDeepLinkError(err))
		})
	}
}

func TestDeepLink_RoundTrip(t *testing.T) {
	for _, rt := range []Route{
		Page{Name: Messages},
		PostDetail{EventID: "e1", OriginTab: Home},
		ProfileDetail{Pubkey: "pk", OriginTab: Home},
	} {
		got, err := ParseDeepLink(DeepLink(rt), Home)
		require.NoError(t, err)
		assert.Equal(t, rt, got)
	}
}

func TestRouter_Follow(t *testing.T) {
	r := New()

	require.NoError(t, r.Follow("ember://post/e9", Notifications))
	assert.Equal(t, PostDetail{EventID: "e9", OriginTab: Notifications}, r.ActiveRoute().Get())
	assert.Equal(t, Notifications, r.VisibleTab().Get())

	before := r.State().Get()
	err := r.Follow("ember://bogus/1", Home)
	assert.True(t, IsDeepLinkError(err))
	assert.Equal(t, before, r.State().Get())

	require.NoError(t, r.Follow("ember://tab/settings", Home))
	assert.Equal(t, Page{Name: Settings}, r.ActiveRoute().Get())
	assert.Empty(t, r.History().Get())
}
