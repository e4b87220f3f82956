// ABOUTME: Routing service executing state machine decisions against the store
// ABOUTME: Durable conditional write first, then best-effort effects in order

package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relayline/switchboard/internal/assign"
	"github.com/relayline/switchboard/internal/controller"
	"github.com/relayline/switchboard/internal/dedupe"
	"github.com/relayline/switchboard/internal/hours"
	"github.com/relayline/switchboard/internal/platform"
	"github.com/relayline/switchboard/internal/realtime"
	"github.com/relayline/switchboard/internal/store"
)

// Signal kinds delivered by the platform webhook.
const (
	SignalReply    = "reply"
	SignalReaction = "reaction"
	SignalClaim    = "claim"
	SignalRelease  = "release"
	SignalClose    = "close"
)

// Dedupe source namespaces for inbound signals.
const (
	sourcePlatform = "platform"
	sourceWidget   = "widget"
)

const defaultClaimEmoji = "✅"

// Signal is one inbound agent action from the messaging platform.
type Signal struct {
	ThreadRef string
	ActorID   string
	Kind      string
	Text      string // reply body, or the reaction emoji
	IdemKey   string
}

// Profile carries the visitor details rendered into the anchor message.
type Profile struct {
	Email    string
	Name     string
	Business string
	UTM      map[string]string
}

// Status is the read model exposed to callers deciding whether the
// assistant may speak.
type Status struct {
	RoutingState string
	Owner        string
	Closed       bool
}

// Service coordinates the routing state machine with the store, the
// assigner, the dedupe ledger, the controller reconciler, realtime
// publication, and the messaging platform. Safe for concurrent use;
// every ownership mutation is a conditional write.
type Service struct {
	store      store.Store
	assigner   *assign.Assigner
	ledger     *dedupe.Ledger
	reconciler *controller.Reconciler
	publisher  realtime.Publisher
	client     platform.Client
	logger     *slog.Logger

	// ClaimEmoji is the reaction that counts as a claim. Other
	// reactions are ignored.
	ClaimEmoji string

	now func() time.Time
}

// NewService wires the routing core. publisher and client may be nil;
// the corresponding effects become no-ops. logger may be nil.
func NewService(st store.Store, as *assign.Assigner, led *dedupe.Ledger, rec *controller.Reconciler, pub realtime.Publisher, pc platform.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		assigner:   as,
		ledger:     led,
		reconciler: rec,
		publisher:  pub,
		client:     pc,
		logger:     logger.With("component", "routing"),
		ClaimEmoji: defaultClaimEmoji,
		now:        time.Now,
	}
}

// EnsureConversation returns the open conversation for sessionID,
// creating it (and its platform anchor thread) when none exists.
func (s *Service) EnsureConversation(ctx context.Context, sessionID string, profile Profile) (string, bool, error) {
	existing, err := s.store.GetOpenConversationBySession(ctx, sessionID)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, fmt.Errorf("looking up session conversation: %w", err)
	}

	conv := &store.Conversation{
		ID:           uuid.New().String(),
		SessionID:    sessionID,
		RoutingState: store.RoutingAIOnly,
		Status:       store.StatusOpen,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			// Lost a concurrent create for the same session.
			existing, err := s.store.GetOpenConversationBySession(ctx, sessionID)
			if err != nil {
				return "", false, fmt.Errorf("refetching session conversation: %w", err)
			}
			return existing.ID, false, nil
		}
		return "", false, fmt.Errorf("creating conversation: %w", err)
	}

	if s.client != nil {
		ref, err := s.client.PostAnchor(ctx, anchorText(sessionID, profile))
		if err != nil {
			// The conversation exists without a visible thread; agents
			// cannot act on it but the widget side still works.
			s.logger.Error("failed to post anchor message", "conversation", conv.ID, "error", err)
		} else if err := s.store.SetThreadRef(ctx, conv.ID, "", string(ref)); err != nil {
			s.logger.Error("failed to record thread ref", "conversation", conv.ID, "error", err)
		}
	}

	s.logger.Info("conversation created", "conversation", conv.ID, "session", sessionID)
	return conv.ID, true, nil
}

// OnNewConversation routes a freshly created conversation: in hours
// and with an eligible agent it moves to pending_agent, otherwise it
// stays with the assistant.
func (s *Service) OnNewConversation(ctx context.Context, convID string) error {
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	rules, err := s.store.ListHoursRules(ctx)
	if err != nil {
		return fmt.Errorf("loading hours rules: %w", err)
	}
	if !hours.InHours(rules, s.now()) {
		s.logger.Info("out of hours, staying with assistant", "conversation", convID)
		return nil
	}

	agentID, err := s.assigner.Next(ctx)
	if err != nil {
		return fmt.Errorf("assigning agent: %w", err)
	}

	d := Apply(snapshotOf(conv), Input{Kind: InputAssign, Agent: agentID})
	if !d.Transition {
		s.logger.Info("no agent available, staying with assistant", "conversation", convID)
		return nil
	}

	if err := s.store.AssignPending(ctx, convID, agentID, s.now().UTC()); err != nil {
		if conflict(err) {
			s.logger.Info("conversation taken before assignment", "conversation", convID)
			return nil
		}
		return fmt.Errorf("assigning conversation: %w", err)
	}

	s.applyDecision(conv, d)
	s.runEffects(ctx, conv, "", d.Effects, map[string]any{"agent": agentID})
	s.logger.Info("conversation assigned", "conversation", convID, "agent", agentID)
	return nil
}

// OnAgentSignal processes one inbound platform signal. Duplicate
// idempotency keys and signals for unknown or closed conversations are
// silent no-ops.
func (s *Service) OnAgentSignal(ctx context.Context, sig Signal) error {
	if sig.Kind == SignalReaction && sig.Text != s.ClaimEmoji {
		return nil
	}

	seen, err := s.ledger.Seen(ctx, sourcePlatform, sig.IdemKey)
	if err != nil {
		return fmt.Errorf("checking dedupe ledger: %w", err)
	}
	if seen {
		s.logger.Debug("duplicate signal ignored", "idem_key", sig.IdemKey)
		return nil
	}

	conv, err := s.store.GetConversationByThreadRef(ctx, sig.ThreadRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("signal for unknown thread", "thread", sig.ThreadRef)
			return nil
		}
		return fmt.Errorf("loading conversation by thread: %w", err)
	}
	if conv.Closed() {
		return nil
	}

	switch sig.Kind {
	case SignalClaim, SignalReaction:
		return s.handleClaim(ctx, conv, sig.ActorID)
	case SignalReply:
		return s.handleReply(ctx, conv, sig.ActorID, sig.Text)
	case SignalRelease:
		return s.handleRelease(ctx, conv)
	case SignalClose:
		return s.handleClose(ctx, conv)
	default:
		s.logger.Warn("unknown signal kind", "kind", sig.Kind)
		return nil
	}
}

func (s *Service) handleClaim(ctx context.Context, conv *store.Conversation, actor string) error {
	d := Apply(snapshotOf(conv), Input{Kind: InputClaim, Actor: actor})
	if !d.Transition {
		s.runEffects(ctx, conv, actor, d.Effects, nil)
		return nil
	}

	if err := s.store.ClaimConversation(ctx, conv.ID, actor, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrAlreadyOwned) {
			s.notify(ctx, actor, "This conversation is already owned.")
			return nil
		}
		if conflict(err) {
			return nil
		}
		return fmt.Errorf("claiming conversation: %w", err)
	}

	s.applyDecision(conv, d)
	s.runEffects(ctx, conv, actor, d.Effects, map[string]any{"agent": actor})
	s.logger.Info("conversation claimed", "conversation", conv.ID, "agent", actor)
	return nil
}

func (s *Service) handleReply(ctx context.Context, conv *store.Conversation, actor, text string) error {
	if text != "" {
		msg := &store.Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Role:           store.RoleAgent,
			Text:           text,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.store.SaveMessage(ctx, msg); err != nil {
			return fmt.Errorf("saving agent message: %w", err)
		}
		s.publish(ctx, conv, realtime.KindMessageCreated, map[string]any{
			"role": store.RoleAgent,
			"text": text,
		})
	}

	d := Apply(snapshotOf(conv), Input{Kind: InputReply, Actor: actor})
	if d.Transition {
		if conv.AssignedAgentID == "" {
			err := s.store.ClaimConversation(ctx, conv.ID, actor, s.now().UTC())
			switch {
			case err == nil:
				s.applyDecision(conv, d)
			case errors.Is(err, store.ErrAlreadyOwned):
				// Someone else got there between the read and the
				// claim; the reply still refreshes suppression.
				d = Decision{Effects: []Effect{{Kind: EffectSuppress}}}
			case conflict(err):
				return nil
			default:
				return fmt.Errorf("auto-claiming on reply: %w", err)
			}
		} else {
			if err := s.store.ActivateConversation(ctx, conv.ID, conv.AssignedAgentID); err != nil {
				if conflict(err) {
					return nil
				}
				return fmt.Errorf("activating conversation: %w", err)
			}
			s.applyDecision(conv, d)
		}
	}

	s.runEffects(ctx, conv, actor, d.Effects, map[string]any{"agent": actor})
	return nil
}

func (s *Service) handleRelease(ctx context.Context, conv *store.Conversation) error {
	d := Apply(snapshotOf(conv), Input{Kind: InputRelease})
	if !d.Transition {
		return nil
	}
	if err := s.store.ReleaseConversation(ctx, conv.ID); err != nil {
		if conflict(err) {
			return nil
		}
		return fmt.Errorf("releasing conversation: %w", err)
	}
	s.applyDecision(conv, d)
	s.runEffects(ctx, conv, "", d.Effects, nil)
	s.logger.Info("conversation released", "conversation", conv.ID)
	return nil
}

func (s *Service) handleClose(ctx context.Context, conv *store.Conversation) error {
	d := Apply(snapshotOf(conv), Input{Kind: InputClose})
	if !d.Transition {
		return nil
	}
	if err := s.store.CloseConversation(ctx, conv.ID, s.now().UTC()); err != nil {
		if conflict(err) {
			return nil
		}
		return fmt.Errorf("closing conversation: %w", err)
	}
	conv.Status = store.StatusClosed
	s.runEffects(ctx, conv, "", d.Effects, nil)
	s.logger.Info("conversation closed", "conversation", conv.ID)
	return nil
}

// RecordVisitorMessage persists one widget-submitted message and
// publishes it. Duplicate idempotency keys are no-ops; closed
// conversations reject new messages.
func (s *Service) RecordVisitorMessage(ctx context.Context, convID, text, idemKey string) error {
	seen, err := s.ledger.Seen(ctx, sourceWidget, idemKey)
	if err != nil {
		return fmt.Errorf("checking dedupe ledger: %w", err)
	}
	if seen {
		return nil
	}

	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if conv.Closed() {
		return store.ErrConversationClosed
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		Role:           store.RoleUser,
		Text:           text,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("saving visitor message: %w", err)
	}

	s.publish(ctx, conv, realtime.KindMessageCreated, map[string]any{
		"role": store.RoleUser,
		"text": text,
	})

	// Mirror into the agent thread so humans see the visitor side.
	if s.client != nil && conv.ThreadRef != "" {
		if _, err := s.client.PostThread(ctx, platform.ThreadRef(conv.ThreadRef), text); err != nil {
			s.logger.Error("failed to mirror visitor message", "conversation", convID, "error", err)
		}
	}
	return nil
}

// SweepTimeouts reassigns every pending_agent conversation whose
// assignment is older than the policy timeout, falling back to the
// assistant when no other agent is available. Returns the number of
// conversations acted on.
func (s *Service) SweepTimeouts(ctx context.Context) (int, error) {
	policy := s.policy(ctx)
	cutoff := s.now().UTC().Add(-policy.Timeout())

	expired, err := s.store.ListTimedOutPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing timed out conversations: %w", err)
	}

	acted := 0
	for _, conv := range expired {
		next, err := s.assigner.After(ctx, conv.AssignedAgentID)
		if err != nil {
			s.logger.Error("sweep assignment failed", "conversation", conv.ID, "error", err)
			continue
		}

		d := Apply(snapshotOf(conv), Input{Kind: InputTimeout, Agent: next})
		if !d.Transition {
			continue
		}

		if d.NewState == store.RoutingAIOnly {
			err = s.store.DemoteToAIOnly(ctx, conv.ID, conv.AssignedAgentID)
		} else {
			err = s.store.ReassignConversation(ctx, conv.ID, conv.AssignedAgentID, next, s.now().UTC())
		}
		if err != nil {
			if conflict(err) {
				// An agent acted on the conversation mid-sweep and
				// won; nothing to do.
				continue
			}
			s.logger.Error("sweep transition failed", "conversation", conv.ID, "error", err)
			continue
		}

		s.applyDecision(conv, d)
		s.runEffects(ctx, conv, "", d.Effects, map[string]any{"agent": conv.AssignedAgentID})
		acted++
	}

	if acted > 0 {
		s.logger.Info("sweep reassigned conversations", "count", acted)
	}
	return acted, nil
}

// Status returns the routing-relevant state of a conversation.
func (s *Service) Status(ctx context.Context, convID string) (*Status, error) {
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	return &Status{
		RoutingState: conv.RoutingState,
		Owner:        conv.AssignedAgentID,
		Closed:       conv.Closed(),
	}, nil
}

// History returns a conversation's messages in creation order. The caller's
// limit is passed through to the store, which applies its own default.
func (s *Service) History(ctx context.Context, convID string, limit int) ([]*store.Message, error) {
	return s.store.ListMessages(ctx, convID, limit)
}

// Suppressed reports whether the assistant must stay quiet on the
// conversation at the given instant. Human ownership and a live
// suppression window both suppress; closed conversations always do.
func (s *Service) Suppressed(ctx context.Context, convID string, now time.Time) (bool, error) {
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return false, err
	}
	if conv.Closed() || conv.RoutingState != store.RoutingAIOnly {
		return true, nil
	}
	return conv.HumanSuppressedUntil != nil && now.Before(*conv.HumanSuppressedUntil), nil
}

func snapshotOf(conv *store.Conversation) Snapshot {
	return Snapshot{
		RoutingState: conv.RoutingState,
		Owner:        conv.AssignedAgentID,
		Closed:       conv.Closed(),
	}
}

// applyDecision folds the decision's new state into the in-memory
// conversation so downstream effects (reconcile) see it.
func (s *Service) applyDecision(conv *store.Conversation, d Decision) {
	conv.RoutingState = d.NewState
	conv.AssignedAgentID = d.NewOwner
	if d.Close {
		conv.Status = store.StatusClosed
	}
}

// runEffects executes the decision's effects in order. Failures are
// logged and never unwind the durable transition.
func (s *Service) runEffects(ctx context.Context, conv *store.Conversation, actor string, effects []Effect, payload map[string]any) {
	for _, e := range effects {
		switch e.Kind {
		case EffectPublish:
			s.publish(ctx, conv, e.EventKind, payload)
		case EffectReconcile:
			if s.reconciler == nil {
				continue
			}
			if err := s.reconciler.Reconcile(ctx, conv); err != nil {
				s.logger.Error("controller reconcile failed", "conversation", conv.ID, "error", err)
			}
		case EffectPostSystem:
			s.postSystem(ctx, conv, e.Text)
		case EffectNotify:
			s.notify(ctx, actor, e.Text)
		case EffectSuppress:
			until := s.now().UTC().Add(s.policy(ctx).Suppression())
			if err := s.store.SetSuppressedUntil(ctx, conv.ID, until); err != nil {
				s.logger.Error("failed to set suppression", "conversation", conv.ID, "error", err)
			}
		}
	}
}

func (s *Service) publish(ctx context.Context, conv *store.Conversation, kind string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	seq, err := s.store.NextEventSeq(ctx, conv.ID)
	if err != nil {
		s.logger.Error("failed to advance event seq", "conversation", conv.ID, "error", err)
		return
	}
	ev := &realtime.Event{
		ConversationID: conv.ID,
		Kind:           kind,
		Seq:            seq,
		At:             s.now().UTC(),
		Payload:        payload,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("failed to publish event", "conversation", conv.ID, "kind", kind, "error", err)
	}
}

func (s *Service) postSystem(ctx context.Context, conv *store.Conversation, text string) {
	text = "System: " + text
	if s.client != nil && conv.ThreadRef != "" {
		if _, err := s.client.PostThread(ctx, platform.ThreadRef(conv.ThreadRef), text); err != nil {
			s.logger.Error("failed to post system message", "conversation", conv.ID, "error", err)
		}
	}
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleSystem,
		Text:           text,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.logger.Error("failed to save system message", "conversation", conv.ID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, userID, text string) {
	if s.client == nil || userID == "" {
		return
	}
	if err := s.client.NotifyUser(ctx, userID, text); err != nil {
		s.logger.Error("failed to notify user", "user", userID, "error", err)
	}
}

// policy loads the routing policy, falling back to defaults when no
// row exists or the read fails.
func (s *Service) policy(ctx context.Context) *store.RoutingPolicy {
	p, err := s.store.GetRoutingPolicy(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to load routing policy", "error", err)
		}
		return store.DefaultRoutingPolicy()
	}
	return p
}

// conflict reports whether err is an expected conditional-write miss.
func conflict(err error) bool {
	return errors.Is(err, store.ErrAlreadyOwned) ||
		errors.Is(err, store.ErrConversationClosed) ||
		errors.Is(err, store.ErrNotFound)
}

func anchorText(sessionID string, p Profile) string {
	lines := []string{fmt.Sprintf("New conversation (session %s)", sessionID)}
	if p.Name != "" {
		lines = append(lines, "Name: "+p.Name)
	}
	if p.Email != "" {
		lines = append(lines, "Email: "+p.Email)
	}
	if p.Business != "" {
		lines = append(lines, "Business: "+p.Business)
	}
	keys := make([]string, 0, len(p.UTM))
	for k := range p.UTM {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, p.UTM[k]))
	}
	return strings.Join(lines, "\n")
}
