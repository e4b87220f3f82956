// ABOUTME: Matrix implementation of the platform Client using mautrix
// ABOUTME: Threads via m.thread relations, in-place updates via m.replace edits

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixConfig holds the connection settings for the agent-facing
// Matrix homeserver.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// AgentRoom is the room where anchor threads are posted.
	AgentRoom string
}

// MatrixClient implements Client against a Matrix homeserver. Each
// conversation becomes a thread rooted at its anchor event in the
// agent room.
type MatrixClient struct {
	client    *mautrix.Client
	agentRoom id.RoomID
	logger    *slog.Logger

	// dmRooms caches direct rooms per user so NotifyUser does not
	// create a new room on every notice.
	mu      sync.Mutex
	dmRooms map[id.UserID]id.RoomID
}

// NewMatrixClient connects to the homeserver described by cfg.
func NewMatrixClient(cfg MatrixConfig, logger *slog.Logger) (*MatrixClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return &MatrixClient{
		client:    client,
		agentRoom: id.RoomID(cfg.AgentRoom),
		logger:    logger.With("component", "matrix"),
		dmRooms:   make(map[id.UserID]id.RoomID),
	}, nil
}

// PostAnchor posts a new top-level message into the agent room. The
// returned ThreadRef is the anchor event ID; replies attach to it as a
// Matrix thread.
func (m *MatrixClient) PostAnchor(ctx context.Context, text string) (ThreadRef, error) {
	resp, err := m.client.SendText(ctx, m.agentRoom, text)
	if err != nil {
		return "", fmt.Errorf("posting anchor: %w", err)
	}
	return ThreadRef(resp.EventID), nil
}

// PostThread posts a message into the thread rooted at ref.
func (m *MatrixClient) PostThread(ctx context.Context, ref ThreadRef, text string) (MessageRef, error) {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
		RelatesTo: &event.RelatesTo{
			Type:    event.RelThread,
			EventID: id.EventID(ref),
		},
	}
	resp, err := m.client.SendMessageEvent(ctx, m.agentRoom, event.EventMessage, &content)
	if err != nil {
		return "", fmt.Errorf("posting to thread %s: %w", ref, err)
	}
	return MessageRef(resp.EventID), nil
}

// UpdateMessage edits msg in place. Matrix edits target the original
// event ID directly, so the thread ref is only used for logging.
func (m *MatrixClient) UpdateMessage(ctx context.Context, ref ThreadRef, msg MessageRef, text string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}
	content.SetEdit(id.EventID(msg))
	if _, err := m.client.SendMessageEvent(ctx, m.agentRoom, event.EventMessage, &content); err != nil {
		return fmt.Errorf("updating message %s in thread %s: %w", msg, ref, err)
	}
	return nil
}

// NotifyUser sends a private m.notice to userID in a direct room,
// creating the room on first use.
func (m *MatrixClient) NotifyUser(ctx context.Context, userID, text string) error {
	room, err := m.directRoom(ctx, id.UserID(userID))
	if err != nil {
		return err
	}
	if _, err := m.client.SendNotice(ctx, room, text); err != nil {
		return fmt.Errorf("notifying %s: %w", userID, err)
	}
	return nil
}

func (m *MatrixClient) directRoom(ctx context.Context, user id.UserID) (id.RoomID, error) {
	m.mu.Lock()
	if room, ok := m.dmRooms[user]; ok {
		m.mu.Unlock()
		return room, nil
	}
	m.mu.Unlock()

	resp, err := m.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Invite:   []id.UserID{user},
		IsDirect: true,
		Preset:   "trusted_private_chat",
	})
	if err != nil {
		return "", fmt.Errorf("creating direct room with %s: %w", user, err)
	}

	m.mu.Lock()
	m.dmRooms[user] = resp.RoomID
	m.mu.Unlock()
	return resp.RoomID, nil
}
