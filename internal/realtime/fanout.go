// ABOUTME: Composite publisher forwarding each event to several transports
// ABOUTME: Individual failures are logged and swallowed; fan-out is best-effort

package realtime

import (
	"context"
	"log/slog"
)

// Fanout forwards every event to each underlying publisher. One transport
// failing (broker down, no subscribers) never affects the others and never
// surfaces to the caller: the durable state transition already happened.
type Fanout struct {
	publishers []Publisher
	logger     *slog.Logger
}

// NewFanout creates a composite publisher. Pass nil logger for default.
func NewFanout(logger *slog.Logger, publishers ...Publisher) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		publishers: publishers,
		logger:     logger.With("component", "realtime"),
	}
}

// Publish forwards the event to every transport. Always returns nil.
func (f *Fanout) Publish(ctx context.Context, event *Event) error {
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			f.logger.Warn("realtime publish failed",
				"error", err,
				"conversation_id", event.ConversationID,
				"kind", event.Kind,
				"seq", event.Seq)
		}
	}
	return nil
}
