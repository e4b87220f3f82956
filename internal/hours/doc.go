// ABOUTME: Package documentation for business-hours evaluation
// ABOUTME: Explains the pure-function design and region semantics

// Package hours evaluates business-hours rules. Pure functions over rule
// slices and timestamps; no clock or store access, so the matcher can be
// tested exhaustively across timezones and DST transitions.
package hours
