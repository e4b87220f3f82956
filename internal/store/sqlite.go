// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Conditional UPDATEs carry the concurrency guarantees the routing core relies on

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id                     TEXT PRIMARY KEY,
			session_id             TEXT NOT NULL,
			channel_id             TEXT NOT NULL DEFAULT '',
			thread_ref             TEXT,
			routing_state          TEXT NOT NULL DEFAULT 'ai_only',
			status                 TEXT NOT NULL DEFAULT 'open',
			assigned_agent_id      TEXT,
			assigned_at            TEXT,
			human_suppressed_until TEXT,
			event_seq              INTEGER NOT NULL DEFAULT 0,
			controller_message_ref TEXT,
			controller_fingerprint TEXT,
			created_at             TEXT NOT NULL,
			closed_at              TEXT,

			CHECK (routing_state IN ('ai_only', 'pending_agent', 'agent_active')),
			CHECK (status IN ('open', 'closed'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_open_session
			ON conversations(session_id) WHERE status = 'open';

		CREATE INDEX IF NOT EXISTS idx_conversations_thread_ref
			ON conversations(thread_ref);

		CREATE INDEX IF NOT EXISTS idx_conversations_pending
			ON conversations(routing_state, assigned_at) WHERE status = 'open';

		CREATE TABLE IF NOT EXISTS agents (
			id               TEXT PRIMARY KEY,
			platform_user_id TEXT NOT NULL UNIQUE,
			display_name     TEXT NOT NULL,
			active           INTEGER NOT NULL DEFAULT 1,
			order_index      INTEGER NOT NULL,
			region           TEXT NOT NULL DEFAULT 'GLOBAL'
		);

		CREATE INDEX IF NOT EXISTS idx_agents_active_order
			ON agents(active, order_index);

		CREATE TABLE IF NOT EXISTS hours_rules (
			id          TEXT PRIMARY KEY,
			region      TEXT NOT NULL DEFAULT 'GLOBAL',
			tz          TEXT NOT NULL,
			weekday     INTEGER NOT NULL,
			start_local TEXT NOT NULL,
			end_local   TEXT NOT NULL,

			CHECK (weekday BETWEEN 0 AND 6)
		);

		CREATE TABLE IF NOT EXISTS routing_policy (
			id                  TEXT PRIMARY KEY CHECK (id = 'policy'),
			timeout_seconds     INTEGER NOT NULL,
			suppression_seconds INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS round_robin_cursor (
			id         TEXT PRIMARY KEY CHECK (id = 'cursor'),
			last_index INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS event_dedupe (
			source     TEXT NOT NULL,
			event_id   TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (source, event_id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			role            TEXT NOT NULL,
			text            TEXT NOT NULL,
			platform_ts     TEXT,
			created_at      TEXT NOT NULL,

			CHECK (role IN ('user', 'ai', 'agent', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// CreateConversation inserts a new conversation row. A second open
// conversation for the same session violates the partial unique index and
// returns ErrDuplicateConversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (
			id, session_id, channel_id, thread_ref, routing_state, status,
			assigned_agent_id, assigned_at, human_suppressed_until, event_seq,
			controller_message_ref, controller_fingerprint, created_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.SessionID,
		conv.ChannelID,
		nullString(conv.ThreadRef),
		orDefault(conv.RoutingState, RoutingAIOnly),
		orDefault(conv.Status, StatusOpen),
		nullString(conv.AssignedAgentID),
		formatTimePtr(conv.AssignedAt),
		formatTimePtr(conv.HumanSuppressedUntil),
		conv.EventSeq,
		nullString(conv.ControllerMessageRef),
		nullString(conv.ControllerFingerprint),
		formatTime(conv.CreatedAt),
		formatTimePtr(conv.ClosedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "session_id", conv.SessionID)
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

const conversationColumns = `
	id, session_id, channel_id, thread_ref, routing_state, status,
	assigned_agent_id, assigned_at, human_suppressed_until, event_seq,
	controller_message_ref, controller_fingerprint, created_at, closed_at
`

func (s *SQLiteStore) scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var conv Conversation
	var threadRef, agentID, assignedAt, suppressedUntil sql.NullString
	var controllerRef, controllerFP, createdAt, closedAt sql.NullString

	err := row.Scan(
		&conv.ID, &conv.SessionID, &conv.ChannelID, &threadRef,
		&conv.RoutingState, &conv.Status, &agentID, &assignedAt,
		&suppressedUntil, &conv.EventSeq, &controllerRef, &controllerFP,
		&createdAt, &closedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.ThreadRef = threadRef.String
	conv.AssignedAgentID = agentID.String
	conv.AssignedAt = parseTimePtr(assignedAt)
	conv.HumanSuppressedUntil = parseTimePtr(suppressedUntil)
	conv.ControllerMessageRef = controllerRef.String
	conv.ControllerFingerprint = controllerFP.String
	conv.CreatedAt = parseTime(createdAt.String)
	conv.ClosedAt = parseTimePtr(closedAt)
	return &conv, nil
}

// GetConversation returns a conversation by id
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return s.scanConversation(row)
}

// GetOpenConversationBySession returns the open conversation for a session,
// or ErrNotFound if the session has none open.
func (s *SQLiteStore) GetOpenConversationBySession(ctx context.Context, sessionID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE session_id = ? AND status = 'open'`,
		sessionID)
	return s.scanConversation(row)
}

// GetConversationByThreadRef resolves a platform thread back to its conversation
func (s *SQLiteStore) GetConversationByThreadRef(ctx context.Context, threadRef string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE thread_ref = ?`, threadRef)
	return s.scanConversation(row)
}

// ListTimedOutPending returns open conversations stuck in pending_agent with
// assigned_at older than the cutoff.
func (s *SQLiteStore) ListTimedOutPending(ctx context.Context, cutoff time.Time) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE routing_state = 'pending_agent' AND status = 'open'
		   AND assigned_at IS NOT NULL AND assigned_at < ?
		 ORDER BY assigned_at ASC`,
		formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("querying timed-out conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// ClaimConversation atomically assigns ownership to agentID, succeeding only
// if the conversation is open and currently unowned. Returns ErrAlreadyOwned
// when the compare-and-set finds an owner, ErrConversationClosed when the
// conversation is closed, ErrNotFound when it does not exist.
func (s *SQLiteStore) ClaimConversation(ctx context.Context, convID, agentID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET assigned_agent_id = ?, assigned_at = ?, routing_state = 'agent_active'
		 WHERE id = ? AND assigned_agent_id IS NULL AND status = 'open'`,
		agentID, formatTime(now), convID)
	if err != nil {
		return fmt.Errorf("claiming conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	return s.classifyConditionalMiss(ctx, convID, ErrAlreadyOwned)
}

// classifyConditionalMiss maps a zero-row conditional update to the most
// specific sentinel error.
func (s *SQLiteStore) classifyConditionalMiss(ctx context.Context, convID string, fallback error) error {
	conv, err := s.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	if conv.Closed() {
		return ErrConversationClosed
	}
	return fallback
}

// AssignPending puts a brand-new conversation into pending_agent with the
// chosen agent as prospective owner. Conditional on the conversation still
// being open and in ai_only with no owner.
func (s *SQLiteStore) AssignPending(ctx context.Context, convID, agentID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET assigned_agent_id = ?, assigned_at = ?, routing_state = 'pending_agent'
		 WHERE id = ? AND status = 'open' AND routing_state = 'ai_only' AND assigned_agent_id IS NULL`,
		agentID, formatTime(now), convID)
	if err != nil {
		return fmt.Errorf("assigning conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	return s.classifyConditionalMiss(ctx, convID, ErrAlreadyOwned)
}

// ReassignConversation moves a pending conversation from one prospective
// owner to the next. Conditional on the current owner so a concurrent human
// claim wins the race.
func (s *SQLiteStore) ReassignConversation(ctx context.Context, convID, fromAgentID, toAgentID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET assigned_agent_id = ?, assigned_at = ?
		 WHERE id = ? AND status = 'open' AND routing_state = 'pending_agent' AND assigned_agent_id = ?`,
		toAgentID, formatTime(now), convID, fromAgentID)
	if err != nil {
		return fmt.Errorf("reassigning conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	return s.classifyConditionalMiss(ctx, convID, ErrAlreadyOwned)
}

// DemoteToAIOnly drops a pending conversation back to ai_only when no agent
// is available. Conditional on the current owner for the same reason as
// ReassignConversation.
func (s *SQLiteStore) DemoteToAIOnly(ctx context.Context, convID, fromAgentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET assigned_agent_id = NULL, routing_state = 'ai_only'
		 WHERE id = ? AND status = 'open' AND routing_state = 'pending_agent' AND assigned_agent_id = ?`,
		convID, fromAgentID)
	if err != nil {
		return fmt.Errorf("demoting conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	return s.classifyConditionalMiss(ctx, convID, ErrAlreadyOwned)
}

// ReleaseConversation clears ownership and returns the conversation to
// ai_only. Releasing an unowned conversation is a no-op, not an error.
func (s *SQLiteStore) ReleaseConversation(ctx context.Context, convID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET assigned_agent_id = NULL, routing_state = 'ai_only'
		 WHERE id = ? AND status = 'open'`,
		convID)
	if err != nil {
		return fmt.Errorf("releasing conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	return s.classifyConditionalMiss(ctx, convID, ErrNotFound)
}

// CloseConversation marks the conversation terminally closed. Closing an
// already-closed conversation returns ErrConversationClosed.
func (s *SQLiteStore) CloseConversation(ctx context.Context, convID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET status = 'closed', closed_at = ?
		 WHERE id = ? AND status = 'open'`,
		formatTime(now), convID)
	if err != nil {
		return fmt.Errorf("closing conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	return s.classifyConditionalMiss(ctx, convID, ErrNotFound)
}

// ActivateConversation promotes a pending conversation to agent_active when
// its prospective owner replies. Conditional on the current owner so a sweep
// that reassigned the conversation in the meantime wins the race.
func (s *SQLiteStore) ActivateConversation(ctx context.Context, convID, agentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET routing_state = 'agent_active'
		 WHERE id = ? AND status = 'open' AND routing_state = 'pending_agent' AND assigned_agent_id = ?`,
		convID, agentID)
	if err != nil {
		return fmt.Errorf("activating conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	return s.classifyConditionalMiss(ctx, convID, ErrAlreadyOwned)
}

// SetSuppressedUntil refreshes the human suppression window
func (s *SQLiteStore) SetSuppressedUntil(ctx context.Context, convID string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET human_suppressed_until = ? WHERE id = ?`,
		formatTime(until), convID)
	if err != nil {
		return fmt.Errorf("setting suppression window: %w", err)
	}
	return nil
}

// SetThreadRef records the platform channel and anchor thread for a conversation
func (s *SQLiteStore) SetThreadRef(ctx context.Context, convID, channelID, threadRef string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET channel_id = ?, thread_ref = ? WHERE id = ?`,
		channelID, threadRef, convID)
	if err != nil {
		return fmt.Errorf("setting thread ref: %w", err)
	}
	return nil
}

// SetControllerMessage records the controller message ref and fingerprint.
// An empty messageRef leaves the stored ref untouched (fingerprint-only update).
func (s *SQLiteStore) SetControllerMessage(ctx context.Context, convID, messageRef, fingerprint string) error {
	var err error
	if messageRef == "" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET controller_fingerprint = ? WHERE id = ?`,
			fingerprint, convID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET controller_message_ref = ?, controller_fingerprint = ? WHERE id = ?`,
			messageRef, fingerprint, convID)
	}
	if err != nil {
		return fmt.Errorf("setting controller message: %w", err)
	}
	return nil
}

// NextEventSeq atomically increments and returns the per-conversation event
// sequence. The RETURNING clause keeps increment and read in one statement
// so concurrent publishers never observe the same value.
func (s *SQLiteStore) NextEventSeq(ctx context.Context, convID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE conversations SET event_seq = event_seq + 1 WHERE id = ? RETURNING event_seq`,
		convID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing event seq: %w", err)
	}
	return seq, nil
}

// ListActiveAgents returns the active roster ordered by order_index
func (s *SQLiteStore) ListActiveAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform_user_id, display_name, active, order_index, region
		 FROM agents WHERE active = 1 ORDER BY order_index ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.PlatformUserID, &a.DisplayName, &a.Active, &a.OrderIndex, &a.Region); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// ListHoursRules returns all configured business-hours rules
func (s *SQLiteStore) ListHoursRules(ctx context.Context) ([]*HoursRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, region, tz, weekday, start_local, end_local FROM hours_rules`)
	if err != nil {
		return nil, fmt.Errorf("querying hours rules: %w", err)
	}
	defer rows.Close()

	var rules []*HoursRule
	for rows.Next() {
		var r HoursRule
		if err := rows.Scan(&r.ID, &r.Region, &r.TZ, &r.Weekday, &r.StartLocal, &r.EndLocal); err != nil {
			return nil, fmt.Errorf("scanning hours rule: %w", err)
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

// GetRoutingPolicy returns the singleton policy row, or the fail-open
// defaults when no row has been configured.
func (s *SQLiteStore) GetRoutingPolicy(ctx context.Context) (*RoutingPolicy, error) {
	var p RoutingPolicy
	err := s.db.QueryRowContext(ctx,
		`SELECT timeout_seconds, suppression_seconds FROM routing_policy WHERE id = 'policy'`,
	).Scan(&p.TimeoutSeconds, &p.SuppressionSeconds)
	if err == sql.ErrNoRows {
		return DefaultRoutingPolicy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying routing policy: %w", err)
	}
	return &p, nil
}

// GetCursor returns the round-robin cursor, creating the row at -1 on first use
func (s *SQLiteStore) GetCursor(ctx context.Context) (int, error) {
	var idx int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_index FROM round_robin_cursor WHERE id = 'cursor'`).Scan(&idx)
	if err == sql.ErrNoRows {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO round_robin_cursor (id, last_index) VALUES ('cursor', -1)`); err != nil {
			return 0, fmt.Errorf("initializing cursor: %w", err)
		}
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying cursor: %w", err)
	}
	return idx, nil
}

// AdvanceCursor moves the round-robin cursor from one value to another.
// The WHERE clause makes the read-modify-write a compare-and-set: if another
// assignment advanced the cursor first, ErrCursorConflict tells the caller
// to re-read and retry.
func (s *SQLiteStore) AdvanceCursor(ctx context.Context, from, to int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE round_robin_cursor SET last_index = ? WHERE id = 'cursor' AND last_index = ?`,
		to, from)
	if err != nil {
		return fmt.Errorf("advancing cursor: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrCursorConflict
	}
	return nil
}

// InsertDedupe records an idempotency key. Insert-if-absent: a duplicate
// returns ErrDuplicateEvent and the row is never updated.
func (s *SQLiteStore) InsertDedupe(ctx context.Context, source, eventID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_dedupe (source, event_id, created_at) VALUES (?, ?, ?)`,
		source, eventID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("inserting dedupe record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

// SaveMessage persists a chat message
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, text, platform_ts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Text,
		nullString(msg.PlatformTS), formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "role", msg.Role)
	return nil
}

// ListMessages returns messages for a conversation in creation order
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, text, platform_ts, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		var platformTS, createdAt sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Text, &platformTS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.PlatformTS = platformTS.String
		m.CreatedAt = parseTime(createdAt.String)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
