// ABOUTME: Tests for the two-tier idempotency ledger
// ABOUTME: Covers cache hits, durable fallthrough, and empty-id passthrough

package dedupe

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/switchboard/internal/store"
)

func setupLedger(t *testing.T) *Ledger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	l := NewLedger(s, nil)
	t.Cleanup(func() {
		l.Close()
		s.Close()
	})
	return l
}

func TestLedger_Seen(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	seen, err := l.Seen(ctx, "webhook", "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = l.Seen(ctx, "webhook", "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestLedger_Seen_SourceNamespaces(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	seen, err := l.Seen(ctx, "webhook", "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	// Same id in a different source namespace is distinct
	seen, err = l.Seen(ctx, "widget", "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestLedger_Seen_EmptyKey(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seen, err := l.Seen(ctx, "widget", "")
		require.NoError(t, err)
		assert.False(t, seen, "empty keys are never deduplicated")
	}
}

func TestLedger_Seen_SurvivesColdCache(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	l1 := NewLedger(s, nil)
	seen, err := l1.Seen(ctx, "webhook", "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
	l1.Close()

	// A fresh ledger (restart) still sees the durable record
	l2 := NewLedger(s, nil)
	defer l2.Close()
	seen, err = l2.Seen(ctx, "webhook", "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestLedger_Seen_Concurrent(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	firsts := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen, err := l.Seen(ctx, "webhook", "evt-race")
			if err == nil && !seen {
				firsts <- true
			}
		}()
	}
	wg.Wait()
	close(firsts)

	count := 0
	for range firsts {
		count++
	}
	assert.Equal(t, 1, count, "exactly one delivery wins")
}

func TestCache_CheckAndMark(t *testing.T) {
	c := NewCache(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.CheckAndMark("k1"))
	assert.True(t, c.CheckAndMark("k1"))
}

func TestCache_Eviction(t *testing.T) {
	c := NewCache(time.Minute, 2)
	defer c.Close()

	c.CheckAndMark("k1")
	c.CheckAndMark("k2")
	c.CheckAndMark("k3") // evicts k1

	assert.False(t, c.CheckAndMark("k1"), "oldest entry was evicted")
	assert.True(t, c.CheckAndMark("k3"))
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewCache(10*time.Millisecond, 10)
	defer c.Close()

	c.CheckAndMark("k1")
	time.Sleep(20 * time.Millisecond)

	assert.False(t, c.CheckAndMark("k1"), "expired entry is no longer a duplicate")
}
