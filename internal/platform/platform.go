// ABOUTME: Messaging platform client boundary used by the routing core
// ABOUTME: Anchor/thread/update/notice operations against the agent-facing chat platform

package platform

import "context"

// ThreadRef identifies a conversation's anchor thread on the platform.
type ThreadRef string

// MessageRef identifies a single message for later in-place updates.
type MessageRef string

// Client is the minimal contract the routing core needs from the messaging
// platform. Implementations are expected to be safe for concurrent use.
type Client interface {
	// PostAnchor posts a new thread-anchor message into the configured
	// agent channel and returns the thread reference.
	PostAnchor(ctx context.Context, text string) (ThreadRef, error)

	// PostThread posts into an existing thread.
	PostThread(ctx context.Context, ref ThreadRef, text string) (MessageRef, error)

	// UpdateMessage replaces the content of an existing message in place.
	UpdateMessage(ctx context.Context, ref ThreadRef, msg MessageRef, text string) error

	// NotifyUser sends a private notice visible only to the given user.
	NotifyUser(ctx context.Context, userID, text string) error
}
