// Package loop provides the single logical event loop the client core runs on.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// Every state mutation that happens after a suspension point (a timer, a
// network fetch, a credential prompt) is posted back onto one goroutine
// before it touches shared state. This gives the same guarantees a
// cooperative single-threaded runtime gives:
//   - Cell notifications are never preempted mid-delivery
//   - Continuations commit in the order they were posted
//   - Staleness checks and commits happen in one step
//
// Generation Tokens:
// A Generation is a monotonic counter owned by one orchestrated resource
// (the feed selection, the wallet unlock). Each asynchronous continuation
// captures the token it was started under and compares it against the
// current token before committing. A superseded continuation abandons its
// effect instead of applying it out of order.
package loop
