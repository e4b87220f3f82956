// ABOUTME: Package documentation for routing
// ABOUTME: Describes the state machine, service shell, and sweeper

// Package routing implements the conversation handoff state machine.
//
// The state machine itself is the pure Apply function in
// transition.go: given a snapshot of a conversation and an input, it
// returns the new state, the new owner, and an ordered list of side
// effects as data. The Service executes a decision in two phases:
// first the matching conditional write against the store (the durable
// transition, exactly-one-winner under races), then the effects
// best-effort. A failed effect is logged and never rolls back the
// transition; the next reconcile pass corrects any visible drift.
//
// The Sweeper periodically reassigns pending_agent conversations whose
// assignment has gone unanswered past the policy timeout. It uses the
// same conditional writes, so an agent acting on the conversation at
// the same instant wins cleanly.
package routing
