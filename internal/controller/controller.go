// ABOUTME: Reconciles the per-conversation status message on the platform
// ABOUTME: Fingerprint comparison skips network calls when nothing changed

package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relayline/switchboard/internal/platform"
	"github.com/relayline/switchboard/internal/store"
)

// Store is the subset of the conversation store the reconciler needs.
type Store interface {
	SetControllerMessage(ctx context.Context, convID, messageRef, fingerprint string) error
}

// Reconciler keeps one status message per conversation thread in sync
// with the conversation's routing state. The message is created on the
// first reconcile and edited in place afterwards.
type Reconciler struct {
	store  Store
	client platform.Client
	logger *slog.Logger
}

// New creates a Reconciler. logger may be nil.
func New(st Store, client platform.Client, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  st,
		client: client,
		logger: logger.With("component", "controller"),
	}
}

// Fingerprint derives the change-detection key for a conversation's
// status message. Two snapshots with the same fingerprint render the
// same message, so a matching stored fingerprint means no platform
// call is needed.
func Fingerprint(conv *store.Conversation) string {
	state := conv.RoutingState
	if conv.Closed() {
		state = store.StatusClosed
	}
	return state + "|" + conv.AssignedAgentID
}

// statusText renders the human-readable status line for the thread.
func statusText(conv *store.Conversation) string {
	if conv.Closed() {
		return "Status: Closed"
	}
	switch conv.RoutingState {
	case store.RoutingPendingAgent:
		if conv.AssignedAgentID != "" {
			return fmt.Sprintf("Status: Waiting for agent (%s)", conv.AssignedAgentID)
		}
		return "Status: Waiting for agent"
	case store.RoutingAgentActive:
		return fmt.Sprintf("Status: Agent active (%s)", conv.AssignedAgentID)
	default:
		return "Status: AI only"
	}
}

// Reconcile brings the conversation's status message in line with its
// current state. It is safe to call after every transition; unchanged
// fingerprints return without touching the platform. Conversations
// with no thread yet are skipped.
func (r *Reconciler) Reconcile(ctx context.Context, conv *store.Conversation) error {
	if conv.ThreadRef == "" {
		return nil
	}

	fp := Fingerprint(conv)
	if conv.ControllerMessageRef != "" && conv.ControllerFingerprint == fp {
		return nil
	}

	text := statusText(conv)
	thread := platform.ThreadRef(conv.ThreadRef)

	if conv.ControllerMessageRef == "" {
		msg, err := r.client.PostThread(ctx, thread, text)
		if err != nil {
			return fmt.Errorf("posting status message: %w", err)
		}
		if err := r.store.SetControllerMessage(ctx, conv.ID, string(msg), fp); err != nil {
			return fmt.Errorf("recording status message: %w", err)
		}
		conv.ControllerMessageRef = string(msg)
		conv.ControllerFingerprint = fp
		r.logger.Debug("status message created", "conversation", conv.ID, "fingerprint", fp)
		return nil
	}

	msg := platform.MessageRef(conv.ControllerMessageRef)
	if err := r.client.UpdateMessage(ctx, thread, msg, text); err != nil {
		return fmt.Errorf("updating status message: %w", err)
	}
	if err := r.store.SetControllerMessage(ctx, conv.ID, conv.ControllerMessageRef, fp); err != nil {
		return fmt.Errorf("recording status fingerprint: %w", err)
	}
	conv.ControllerFingerprint = fp
	r.logger.Debug("status message updated", "conversation", conv.ID, "fingerprint", fp)
	return nil
}
