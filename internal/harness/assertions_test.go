package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.AddTrace(KindRoute, "page(home)")
	r.AddTrace(KindStep, "open_post id=e1")
	r.AddTrace(KindRoute, "post(e1, home)")
	r.AddTrace(KindStep, "back")
	r.AddTrace(KindRoute, "page(home)")
	r.State = FinalState{
		Route:         "page(home)",
		Tab:           "home",
		FeedStatus:    "live",
		FeedError:     "none",
		Content:       []string{"n2", "n1"},
		Subscriptions: 1,
		Vault:         "locked",
		Notifications: []string{},
	}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertRoute, Expect: "page(home)"},
		{Type: AssertTab, Expect: "home"},
		{Type: AssertCanGoBack, Expect: "false"},
		{Type: AssertHistoryLen, Count: 0},
		{Type: AssertFeedStatus, Expect: "live"},
		{Type: AssertFeedError, Expect: "none"},
		{Type: AssertContent, IDs: []string{"n2", "n1"}},
		{Type: AssertSubscriptions, Count: 1},
		{Type: AssertVault, Expect: "locked"},
		{Type: AssertNotifications},
		{Type: AssertTraceContains, Kind: KindRoute, Expect: "post(e1, home)"},
		{Type: AssertTraceCount, Kind: KindRoute, Expect: "page(home)", Count: 2},
		{Type: AssertTraceCount, Kind: KindStep, Count: 2},
		{Type: AssertTraceOrder, Kind: KindRoute, Values: []string{"post(e1, home)", "page(home)"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"route", Assertion{Type: AssertRoute, Expect: "page(wallet)"}, `Expected: "page(wallet)"`},
		{"content order", Assertion{Type: AssertContent, IDs: []string{"n1", "n2"}}, "Actual: [n2 n1]"},
		{"subscriptions", Assertion{Type: AssertSubscriptions, Count: 2}, "Actual: 1"},
		{"trace contains", Assertion{Type: AssertTraceContains, Kind: KindRoute, Expect: "page(wallet)"}, "not found in trace"},
		{"trace count", Assertion{Type: AssertTraceCount, Kind: KindRoute, Count: 1}, "3 occurrences"},
		{"trace order", Assertion{Type: AssertTraceOrder, Kind: KindRoute, Values: []string{"post(e1, home)", "post(e1, home)"}}, "missing"},
		{"unknown", Assertion{Type: "vibes"}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceContains,
		Expected: "x",
		Actual:   "y",
		Trace:    []TraceEvent{{Seq: 1, Kind: KindRoute, Value: "page(home)"}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_contains")
	assert.Contains(t, msg, "[1] route page(home)")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
