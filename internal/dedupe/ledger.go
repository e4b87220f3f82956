// ABOUTME: Idempotency ledger combining a memory cache with durable insert-if-absent
// ABOUTME: Keys are recorded before side effects so replays after a crash stay no-ops

package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayline/switchboard/internal/store"
)

const (
	defaultTTL     = 30 * time.Minute
	defaultMaxSize = 10000
)

// LedgerStore is what the ledger needs from storage.
type LedgerStore interface {
	InsertDedupe(ctx context.Context, source, eventID string) error
}

// Ledger guards inbound signals and outbound posts against duplicate
// processing. The durable tier is the store's insert-if-absent; the memory
// tier short-circuits repeat deliveries without a round trip.
type Ledger struct {
	store  LedgerStore
	cache  *Cache
	logger *slog.Logger
}

// NewLedger creates a Ledger backed by the given store. Pass nil logger for
// default.
func NewLedger(st LedgerStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  st,
		cache:  NewCache(defaultTTL, defaultMaxSize),
		logger: logger.With("component", "dedupe"),
	}
}

// Seen records the key and reports whether it was already present. The key
// is durably recorded BEFORE the caller performs side effects: a crash
// mid-processing leaves the key in place, so redelivery cannot double-apply.
// An empty id is never deduplicated.
func (l *Ledger) Seen(ctx context.Context, source, id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	key := source + ":" + id
	if l.cache.CheckAndMark(key) {
		l.logger.Debug("duplicate signal (memory)", "source", source, "event_id", id)
		return true, nil
	}

	err := l.store.InsertDedupe(ctx, source, id)
	if errors.Is(err, store.ErrDuplicateEvent) {
		l.logger.Debug("duplicate signal (store)", "source", source, "event_id", id)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("recording idempotency key: %w", err)
	}
	return false, nil
}

// Close releases the memory tier's background goroutine.
func (l *Ledger) Close() {
	l.cache.Close()
}
