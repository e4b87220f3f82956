// ABOUTME: Package documentation for controller
// ABOUTME: Describes the status-message reconciliation loop

// Package controller maintains a single editable status message at the
// top of each conversation thread on the agent platform. Every state
// transition calls Reconcile; a fingerprint of the routing state and
// current owner decides whether the platform needs to be touched at
// all, so repeated reconciles of an unchanged conversation are free.
package controller
