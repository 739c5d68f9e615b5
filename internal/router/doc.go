// Package router holds the navigation state machine: the active route, the
// visible tab, and the back stack.
//
// All state lives in one cell so the active route and the visible tab can
// never disagree. A detail route is always shown on its origin tab.
// Page navigation resets the back stack; opening the detail route that
// is already active is a no-op.
package router
