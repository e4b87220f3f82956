// ABOUTME: Package documentation for platform
// ABOUTME: Describes the outbound messaging platform boundary

// Package platform defines the outbound boundary to the agent-facing
// messaging platform. The routing core talks only to the Client
// interface; MatrixClient is the production implementation and
// Recorder backs tests.
//
// ThreadRef and MessageRef are opaque strings. The routing core stores
// and echoes them back but never interprets their contents, so a
// different platform implementation is free to encode whatever it
// needs in them.
package platform
