// Package harness replays scripted client sessions against a fully wired
// client core and checks the resulting state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	identity: alice
//	graph:
//	  - scope: follows
//	    owner: alice
//	    authors: [bob]
//	credentials:
//	  - key: hunter2
//	  - cancel: true
//	steps:
//	  - do: select
//	    args: { selector: following }
//	  - do: settle
//	  - do: publish
//	    args: { id: n1, pubkey: bob, created_at: 10 }
//	  - do: follow
//	    args: { uri: "ember://tab/lobby" }
//	    expect: { error: "unknown tab" }
//	assertions:
//	  - type: feed_status
//	    expect: live
//	  - type: content
//	    ids: [n1]
//	  - type: trace_contains
//	    kind: route
//	    expect: "post(n1, home)"
//
// # Steps
//
// Navigation: navigate, open_post, open_profile, back, follow. Feed: select,
// select_category, login, logout, settle, refresh, publish,
// fail_next_subscribe. Wallet: wallet_connect, wallet_unlock, wallet_lock,
// wallet_disconnect. Notifications: open_notification.
//
// # Assertion Types
//
//   - route, tab: the active route string and visible tab
//   - can_go_back, history_len: the back stack
//   - feed_status, feed_error: orchestrator status and error code ("none")
//   - content: feed event ids, newest first
//   - subscriptions: number of live source subscriptions
//   - vault: "locked", "unlocked" or "disconnected"
//   - notifications: ids of presented notifications, in order
//   - trace_contains, trace_count: a (kind, value) pair in the trace
//   - trace_order: values of one kind appearing in order, gaps allowed
//
// # Deterministic Testing
//
// Settle waits only elapse on a settle step, and continuations posted by
// the orchestrator run on the harness goroutine after every step. Source
// subscription handles come from a fixed generator. Two runs of the same
// scenario produce identical traces, which RunWithGolden compares against
// testdata/golden.
package harness
