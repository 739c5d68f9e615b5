package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted client session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Identity is the authenticated pubkey at startup. Empty means logged out.
	Identity string `yaml:"identity,omitempty"`

	// Selector is the persisted feed selector at startup. Defaults to global.
	Selector string `yaml:"selector,omitempty"`

	// Graph seeds the in-memory source's social graph.
	Graph []GraphEntry `yaml:"graph,omitempty"`

	// Credentials answer master key prompts in order.
	Credentials []CredentialStep `yaml:"credentials,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// GraphEntry maps an owner's scope to its authors.
type GraphEntry struct {
	Scope   string   `yaml:"scope"`
	Owner   string   `yaml:"owner"`
	Authors []string `yaml:"authors"`
}

// CredentialStep is one scripted answer to a master key prompt.
type CredentialStep struct {
	Key    string `yaml:"key,omitempty"`
	Cancel bool   `yaml:"cancel,omitempty"`
}

// Step is one user intent or environment event.
type Step struct {
	// Do names the step (e.g. "navigate", "publish").
	Do string `yaml:"do"`

	// Args are the step arguments.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Expect validates the step's outcome. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a step.
type ExpectClause struct {
	// Error is a substring the step's error must contain.
	Error string `yaml:"error,omitempty"`

	// Outcome is the expected wallet_unlock outcome.
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect is the expected value for scalar assertions, and the trace
	// value for trace_contains and trace_count.
	Expect string `yaml:"expect,omitempty"`

	// Kind is the trace event kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is used by history_len, subscriptions and trace_count.
	Count int `yaml:"count,omitempty"`

	// IDs is used by content and notifications.
	IDs []string `yaml:"ids,omitempty"`

	// Values are the trace values expected in order (trace_order).
	Values []string `yaml:"values,omitempty"`
}

// Assertion type constants.
const (
	AssertRoute         = "route"
	AssertTab           = "tab"
	AssertCanGoBack     = "can_go_back"
	AssertHistoryLen    = "history_len"
	AssertFeedStatus    = "feed_status"
	AssertFeedError     = "feed_error"
	AssertContent       = "content"
	AssertSubscriptions = "subscriptions"
	AssertVault         = "vault"
	AssertNotifications = "notifications"
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
)

// Step names.
const (
	StepNavigate          = "navigate"
	StepOpenPost          = "open_post"
	StepOpenProfile       = "open_profile"
	StepBack              = "back"
	StepFollow            = "follow"
	StepSelect            = "select"
	StepSelectCategory    = "select_category"
	StepLogin             = "login"
	StepLogout            = "logout"
	StepSettle            = "settle"
	StepRefresh           = "refresh"
	StepPublish           = "publish"
	StepFailNextSubscribe = "fail_next_subscribe"
	StepWalletConnect     = "wallet_connect"
	StepWalletUnlock      = "wallet_unlock"
	StepWalletLock        = "wallet_lock"
	StepWalletDisconnect  = "wallet_disconnect"
	StepOpenNotification  = "open_notification"
)

var knownSteps = map[string]bool{
	StepNavigate: true, StepOpenPost: true, StepOpenProfile: true,
	StepBack: true, StepFollow: true, StepSelect: true,
	StepSelectCategory: true, StepLogin: true, StepLogout: true,
	StepSettle: true, StepRefresh: true, StepPublish: true,
	StepFailNextSubscribe: true, StepWalletConnect: true,
	StepWalletUnlock: true, StepWalletLock: true,
	StepWalletDisconnect: true, StepOpenNotification: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, g := range s.Graph {
		if g.Scope == "" || g.Owner == "" {
			return fmt.Errorf("graph[%d]: scope and owner are required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Do == "" {
			return fmt.Errorf("steps[%d]: do is required", i)
		}
		if !knownSteps[step.Do] {
			return fmt.Errorf("steps[%d]: unknown step %q", i, step.Do)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRoute, AssertTab, AssertFeedStatus, AssertFeedError, AssertVault, AssertCanGoBack:
		if a.Expect == "" {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertHistoryLen, AssertSubscriptions:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertContent, AssertNotifications:
		// An empty ids list asserts emptiness.
	case AssertTraceContains, AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if a.Kind == "" || len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: kind and values are required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
