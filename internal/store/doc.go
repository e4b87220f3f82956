// Package store provides persistent storage for switchboard using SQLite.
//
// # Architecture
//
// A single Store interface covers what the routing core needs: conversation
// lifecycle, conditional routing mutations, the round-robin cursor, the
// event dedupe ledger, and read access to the agent roster and
// business-hours rules. SQLiteStore is the only implementation; tests use it
// against a temp-dir database.
//
// # Concurrency discipline
//
// Every mutation that establishes ownership or advances shared state is a
// conditional UPDATE (or INSERT OR IGNORE) whose WHERE clause encodes the
// expected prior state:
//
//   - ClaimConversation: WHERE assigned_agent_id IS NULL
//   - ReassignConversation/DemoteToAIOnly: WHERE assigned_agent_id = <old>
//     AND routing_state = 'pending_agent'
//   - AdvanceCursor: WHERE last_index = <old>
//   - InsertDedupe: INSERT OR IGNORE, existence alone is the signal
//
// A zero-row result maps to a sentinel error (ErrAlreadyOwned,
// ErrCursorConflict, ErrDuplicateEvent, ErrConversationClosed) that callers
// treat as an expected outcome, not a failure.
//
// # SQLite Configuration
//
// WAL mode for concurrent readers, foreign keys on:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC 3339 text in UTC.
package store
