// ABOUTME: Store interface and data types for switchboard persistence
// ABOUTME: Defines Conversation, Agent, HoursRule structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when an open conversation already
// exists for the session
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrAlreadyOwned is returned when a conditional claim finds the
// conversation already has an owner
var ErrAlreadyOwned = errors.New("conversation already owned")

// ErrConversationClosed is returned when a routing mutation targets a
// closed conversation
var ErrConversationClosed = errors.New("conversation closed")

// ErrDuplicateEvent is returned by the dedupe ledger insert when the key
// was already recorded
var ErrDuplicateEvent = errors.New("event already recorded")

// ErrCursorConflict is returned when the round-robin cursor moved between
// read and write; callers retry with a fresh read
var ErrCursorConflict = errors.New("cursor moved")

// RoutingState constants for a conversation's routing_state column
const (
	RoutingAIOnly       = "ai_only"
	RoutingPendingAgent = "pending_agent"
	RoutingAgentActive  = "agent_active"
)

// Status constants for a conversation's lifecycle
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Role constants for message authors
const (
	RoleUser   = "user"
	RoleAI     = "ai"
	RoleAgent  = "agent"
	RoleSystem = "system"
)

// Conversation is a single visitor chat and its routing state.
// ThreadRef is the platform thread anchoring the conversation; it is empty
// until the anchor message has been posted.
type Conversation struct {
	ID                    string
	SessionID             string
	ChannelID             string
	ThreadRef             string
	RoutingState          string
	Status                string
	AssignedAgentID       string // platform user id; empty means unowned
	AssignedAt            *time.Time
	HumanSuppressedUntil  *time.Time
	EventSeq              int64
	ControllerMessageRef  string
	ControllerFingerprint string
	CreatedAt             time.Time
	ClosedAt              *time.Time
}

// Closed reports whether the conversation is terminally closed.
func (c *Conversation) Closed() bool {
	return c.Status == StatusClosed
}

// Agent is one member of the human roster. The roster is managed outside
// the routing core; switchboard only reads the active, ordered subset.
type Agent struct {
	ID             string
	PlatformUserID string
	DisplayName    string
	Active         bool
	OrderIndex     int
	Region         string // wildcard "GLOBAL" means eligible everywhere
}

// HoursRule is one weekly business-hours window, local to its timezone.
type HoursRule struct {
	ID         string
	Region     string
	TZ         string
	Weekday    int    // 0 = Sunday, matching time.Weekday
	StartLocal string // "HH:MM"
	EndLocal   string // "HH:MM", inclusive; end < start never matches
}

// RoutingPolicy is the singleton routing configuration row. Absence of the
// row is not an error; DefaultRoutingPolicy applies.
type RoutingPolicy struct {
	TimeoutSeconds     int
	SuppressionSeconds int
}

// DefaultRoutingPolicy returns the fail-open defaults used when no policy
// row has been configured.
func DefaultRoutingPolicy() *RoutingPolicy {
	return &RoutingPolicy{TimeoutSeconds: 30, SuppressionSeconds: 300}
}

// Timeout returns the pending-agent reassignment window as a duration.
func (p *RoutingPolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Suppression returns the human suppression window as a duration.
func (p *RoutingPolicy) Suppression() time.Duration {
	return time.Duration(p.SuppressionSeconds) * time.Second
}

// Message is one persisted chat message within a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Text           string
	PlatformTS     string
	CreatedAt      time.Time
}

// Store defines the persistence operations the routing core needs.
// Mutations that establish ownership or advance shared cross-conversation
// state are conditional at the SQL level, never read-then-write.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetOpenConversationBySession(ctx context.Context, sessionID string) (*Conversation, error)
	GetConversationByThreadRef(ctx context.Context, threadRef string) (*Conversation, error)
	ListTimedOutPending(ctx context.Context, cutoff time.Time) ([]*Conversation, error)

	// Conditional routing mutations
	ClaimConversation(ctx context.Context, convID, agentID string, now time.Time) error
	AssignPending(ctx context.Context, convID, agentID string, now time.Time) error
	ReassignConversation(ctx context.Context, convID, fromAgentID, toAgentID string, now time.Time) error
	DemoteToAIOnly(ctx context.Context, convID, fromAgentID string) error
	ReleaseConversation(ctx context.Context, convID string) error
	CloseConversation(ctx context.Context, convID string, now time.Time) error
	ActivateConversation(ctx context.Context, convID, agentID string) error
	SetSuppressedUntil(ctx context.Context, convID string, until time.Time) error
	SetThreadRef(ctx context.Context, convID, channelID, threadRef string) error
	SetControllerMessage(ctx context.Context, convID, messageRef, fingerprint string) error

	// Event sequencing
	NextEventSeq(ctx context.Context, convID string) (int64, error)

	// Agents and hours (read-only from the core's perspective)
	ListActiveAgents(ctx context.Context) ([]*Agent, error)
	ListHoursRules(ctx context.Context) ([]*HoursRule, error)

	// Routing policy singleton (fail-open defaults when absent)
	GetRoutingPolicy(ctx context.Context) (*RoutingPolicy, error)

	// Round-robin cursor singleton
	GetCursor(ctx context.Context) (int, error)
	AdvanceCursor(ctx context.Context, from, to int) error

	// Dedupe ledger: insert-if-absent only, existence is the signal
	InsertDedupe(ctx context.Context, source, eventID string) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}
