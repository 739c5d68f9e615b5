package harness

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Kind, event.Value)
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRoute:
			err = assertScalar(assertion, result.State.Route)
		case AssertTab:
			err = assertScalar(assertion, result.State.Tab)
		case AssertCanGoBack:
			err = assertScalar(assertion, strconv.FormatBool(result.State.CanGoBack))
		case AssertHistoryLen:
			err = assertCount(assertion, result.State.HistoryLen)
		case AssertFeedStatus:
			err = assertScalar(assertion, result.State.FeedStatus)
		case AssertFeedError:
			err = assertScalar(assertion, result.State.FeedError)
		case AssertVault:
			err = assertScalar(assertion, result.State.Vault)
		case AssertSubscriptions:
			err = assertCount(assertion, result.State.Subscriptions)
		case AssertContent:
			err = assertIDs(assertion, result.State.Content)
		case AssertNotifications:
			err = assertIDs(assertion, result.State.Notifications)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func assertScalar(a Assertion, actual string) error {
	if actual == a.Expect {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: strconv.Quote(a.Expect),
		Actual:   strconv.Quote(actual),
	}
}

func assertCount(a Assertion, actual int) error {
	if actual == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: strconv.Itoa(a.Count),
		Actual:   strconv.Itoa(actual),
	}
}

func assertIDs(a Assertion, actual []string) error {
	if len(a.IDs) == 0 && len(actual) == 0 {
		return nil
	}
	if slices.Equal(a.IDs, actual) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%v", a.IDs),
		Actual:   fmt.Sprintf("%v", actual),
	}
}

// assertTraceContains checks if the trace contains an event of the given
// kind with the expected value.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Kind == a.Kind && event.Value == a.Expect {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s %q", a.Kind, a.Expect),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks the number of events of the given kind, and
// value when set.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Kind == a.Kind && (a.Expect == "" || event.Value == a.Expect) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d occurrences of %s %q", a.Count, a.Kind, a.Expect),
		Actual:   fmt.Sprintf("%d occurrences", count),
		Trace:    trace,
	}
}

// assertTraceOrder checks that values of the given kind appear in order.
// Other events may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next == len(a.Values) {
			break
		}
		if event.Kind == a.Kind && event.Value == a.Values[next] {
			next++
		}
	}
	if next == len(a.Values) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("%s values in order: %v", a.Kind, a.Values),
		Actual:   fmt.Sprintf("missing %q after position %d", a.Values[next], next),
		Trace:    trace,
	}
}
