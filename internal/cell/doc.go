// Package cell implements the observable state primitive every client store
// is built from.
//
// A Cell holds one value and an ordered list of subscribers. Every Set or
// Update notifies every current subscriber synchronously, in subscription
// order, before returning. Subscribe replays the current value immediately
// (replay-last semantics). There is no equality suppression: setting the
// same value twice notifies twice.
//
// A View is a read-only cell whose value is recomputed from one or more
// source cells each time any of them notifies. Recomputation is
// last-writer-wins per notification; there is no batching.
//
// # Failure Semantics
//
// Mutation and subscription never fail. A subscriber that panics is
// recovered and logged; delivery continues with the next subscriber.
//
// # Concurrency
//
// Cells are safe for concurrent use. Update is atomic with respect to other
// Set/Update calls on the same cell. Notification order across goroutines
// is only meaningful when mutations are serialised, which the client does
// by running every mutation on the loop.Loop goroutine.
//
// A View serialises its own recomputation. When two notifications overlap,
// the goroutine already publishing runs one more pass and the other returns
// at once, so a source Set may return before a view fed by it on another
// goroutine has published. The view's final value always reflects the
// latest source state.
package cell
