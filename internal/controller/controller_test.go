// ABOUTME: Tests for the status-message reconciler
// ABOUTME: Covers create, edit, fingerprint skip, and missing-thread cases

package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/switchboard/internal/platform"
	"github.com/relayline/switchboard/internal/store"
)

type fakeStore struct {
	ref string
	fp  string
	n   int
}

func (f *fakeStore) SetControllerMessage(ctx context.Context, convID, messageRef, fingerprint string) error {
	f.ref = messageRef
	f.fp = fingerprint
	f.n++
	return nil
}

func testConv() *store.Conversation {
	return &store.Conversation{
		ID:           "conv-1",
		ThreadRef:    "thread-1",
		RoutingState: store.RoutingAIOnly,
		Status:       store.StatusOpen,
	}
}

func TestReconciler_CreatesStatusMessage(t *testing.T) {
	rec := platform.NewRecorder()
	fs := &fakeStore{}
	r := New(fs, rec, nil)

	conv := testConv()
	require.NoError(t, r.Reconcile(context.Background(), conv))

	posts := rec.CallsOf("thread")
	require.Len(t, posts, 1)
	assert.Equal(t, platform.ThreadRef("thread-1"), posts[0].Thread)
	assert.Equal(t, "Status: AI only", posts[0].Text)
	assert.Equal(t, string(posts[0].Msg), fs.ref)
	assert.Equal(t, "ai_only|", fs.fp)
	assert.Equal(t, fs.ref, conv.ControllerMessageRef)
}

func TestReconciler_SkipsWhenFingerprintUnchanged(t *testing.T) {
	rec := platform.NewRecorder()
	fs := &fakeStore{}
	r := New(fs, rec, nil)

	conv := testConv()
	require.NoError(t, r.Reconcile(context.Background(), conv))
	require.NoError(t, r.Reconcile(context.Background(), conv))
	require.NoError(t, r.Reconcile(context.Background(), conv))

	assert.Len(t, rec.Calls, 1, "unchanged state must not touch the platform")
	assert.Equal(t, 1, fs.n)
}

func TestReconciler_EditsOnStateChange(t *testing.T) {
	rec := platform.NewRecorder()
	fs := &fakeStore{}
	r := New(fs, rec, nil)

	conv := testConv()
	require.NoError(t, r.Reconcile(context.Background(), conv))

	conv.RoutingState = store.RoutingAgentActive
	conv.AssignedAgentID = "@alice:example.org"
	require.NoError(t, r.Reconcile(context.Background(), conv))

	updates := rec.CallsOf("update")
	require.Len(t, updates, 1)
	assert.Equal(t, platform.MessageRef(conv.ControllerMessageRef), updates[0].Msg)
	assert.Equal(t, "Status: Agent active (@alice:example.org)", updates[0].Text)
	assert.Equal(t, "agent_active|@alice:example.org", fs.fp)

	// Same state again: no further calls.
	require.NoError(t, r.Reconcile(context.Background(), conv))
	assert.Len(t, rec.CallsOf("update"), 1)
}

func TestReconciler_ClosedOverridesRoutingState(t *testing.T) {
	rec := platform.NewRecorder()
	fs := &fakeStore{}
	r := New(fs, rec, nil)

	conv := testConv()
	conv.RoutingState = store.RoutingAgentActive
	conv.AssignedAgentID = "@alice:example.org"
	conv.Status = store.StatusClosed
	require.NoError(t, r.Reconcile(context.Background(), conv))

	posts := rec.CallsOf("thread")
	require.Len(t, posts, 1)
	assert.Equal(t, "Status: Closed", posts[0].Text)
	assert.Equal(t, "closed|@alice:example.org", fs.fp)
}

func TestReconciler_PendingAgentText(t *testing.T) {
	rec := platform.NewRecorder()
	r := New(&fakeStore{}, rec, nil)

	conv := testConv()
	conv.RoutingState = store.RoutingPendingAgent
	conv.AssignedAgentID = "@bob:example.org"
	require.NoError(t, r.Reconcile(context.Background(), conv))

	posts := rec.CallsOf("thread")
	require.Len(t, posts, 1)
	assert.Equal(t, "Status: Waiting for agent (@bob:example.org)", posts[0].Text)
}

func TestReconciler_SkipsConversationWithoutThread(t *testing.T) {
	rec := platform.NewRecorder()
	fs := &fakeStore{}
	r := New(fs, rec, nil)

	conv := testConv()
	conv.ThreadRef = ""
	require.NoError(t, r.Reconcile(context.Background(), conv))

	assert.Empty(t, rec.Calls)
	assert.Equal(t, 0, fs.n)
}
