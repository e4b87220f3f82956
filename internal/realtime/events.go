// ABOUTME: Realtime event model for per-conversation fan-out
// ABOUTME: Sequence numbers are the sole ordering signal; consumers drop stale events

package realtime

import (
	"context"
	"time"
)

// Event kinds published on a conversation's channel.
const (
	KindMessageCreated = "message.created"
	KindAIDelta        = "ai.delta"
	KindAIDone         = "ai.done"
	KindHandoffStarted = "handoff.started"
	KindHandoffEnded   = "handoff.ended"
	KindClosed         = "closed"
)

// Event is one state-visible change on a conversation. Seq is the
// post-increment value of the conversation's event_seq and is the only
// ordering guarantee: transports may reorder, and consumers must discard
// any event whose Seq is below the highest already applied.
type Event struct {
	ConversationID string         `json:"conversation_id"`
	Kind           string         `json:"kind"`
	Seq            int64          `json:"seq"`
	At             time.Time      `json:"t"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events to connected listeners. Best-effort: a failed
// publish is logged by the caller and never rolls back the state transition
// that produced it.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}
