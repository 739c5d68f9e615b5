package harness

// Trace event kinds.
const (
	KindStep         = "step"
	KindError        = "error"
	KindRoute        = "route"
	KindTab          = "tab"
	KindFeedStatus   = "feed_status"
	KindFeedError    = "feed_error"
	KindContent      = "content"
	KindVault        = "vault"
	KindNotification = "notification"
)

// TraceEvent is one observed change, or one executed step.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// FinalState is the observable client state after the last step.
type FinalState struct {
	Route         string   `json:"route"`
	Tab           string   `json:"tab"`
	CanGoBack     bool     `json:"can_go_back"`
	HistoryLen    int      `json:"history_len"`
	FeedStatus    string   `json:"feed_status"`
	FeedError     string   `json:"feed_error"`
	Content       []string `json:"content"`
	Subscriptions int      `json:"subscriptions"`
	Vault         string   `json:"vault"`
	Notifications []string `json:"notifications"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds steps and state changes in observation order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State FinalState `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event with the next sequence number.
func (r *Result) AddTrace(kind, value string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:   int64(len(r.Trace) + 1),
		Kind:  kind,
		Value: value,
	})
}
