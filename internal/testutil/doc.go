// Package testutil provides deterministic collaborators for tests.
//
// ManualTimer stands in for time.After so settle intervals elapse only when
// a test says so. ManualDispatcher queues loop continuations until the test
// drains them. ScriptedCredentials answers master-key requests from a fixed
// script.
package testutil
