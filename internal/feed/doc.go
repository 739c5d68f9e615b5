// Package feed owns feed selection and the lifecycle of the live feed
// subscription.
//
// # Transition Protocol
//
// Whenever the (selector, identity) pair changes the Orchestrator:
//
//  1. Stops every active feed subscription (idempotent)
//  2. Clears accumulated feed content
//  3. Waits a settle interval (default 100ms) so the previous
//     subscription's transport teardown completes first
//  4. Starts the subscription for the new selector, or records a
//     requires_login error when the selector needs an identity and none
//     is present
//
// Each transition carries a generation token. A transition superseded
// during its settle wait abandons step 4, and events delivered by a
// superseded subscription are dropped, so at rest exactly one subscription
// is live and it matches the latest request.
//
// Failures in any step are caught and surfaced on the orchestrator's Err
// cell. Nothing is retried automatically; Refresh re-applies the current
// request on user demand.
package feed
