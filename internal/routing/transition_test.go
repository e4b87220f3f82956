// ABOUTME: Tests for the pure routing transition function
// ABOUTME: Table-style coverage of every input kind and the closed guard

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayline/switchboard/internal/realtime"
	"github.com/relayline/switchboard/internal/store"
)

func effectKinds(d Decision) []string {
	kinds := make([]string, len(d.Effects))
	for i, e := range d.Effects {
		kinds[i] = e.Kind
	}
	return kinds
}

func TestApply_ClosedRejectsEverything(t *testing.T) {
	snap := Snapshot{RoutingState: store.RoutingAgentActive, Owner: "@alice", Closed: true}
	for _, kind := range []string{InputAssign, InputClaim, InputReply, InputRelease, InputClose, InputTimeout} {
		d := Apply(snap, Input{Kind: kind, Actor: "@bob", Agent: "@bob"})
		assert.False(t, d.Transition, "closed conversation must reject %s", kind)
		assert.Empty(t, d.Effects, "closed conversation must emit nothing for %s", kind)
	}
}

func TestApply_AssignMovesToPending(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAIOnly}, Input{Kind: InputAssign, Agent: "@alice"})

	require.True(t, d.Transition)
	assert.Equal(t, store.RoutingPendingAgent, d.NewState)
	assert.Equal(t, "@alice", d.NewOwner)
	assert.Equal(t, []string{EffectPostSystem, EffectReconcile, EffectPublish}, effectKinds(d))
	assert.Equal(t, realtime.KindHandoffStarted, d.Effects[2].EventKind)
}

func TestApply_AssignWithoutAgentIsNoop(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAIOnly}, Input{Kind: InputAssign})
	assert.False(t, d.Transition)
	assert.Empty(t, d.Effects)
}

func TestApply_AssignSkipsOwnedConversation(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingPendingAgent, Owner: "@bob"}, Input{Kind: InputAssign, Agent: "@alice"})
	assert.False(t, d.Transition)
}

func TestApply_ClaimOnUnowned(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAIOnly}, Input{Kind: InputClaim, Actor: "@alice"})

	require.True(t, d.Transition)
	assert.Equal(t, store.RoutingAgentActive, d.NewState)
	assert.Equal(t, "@alice", d.NewOwner)
	assert.Contains(t, effectKinds(d), EffectSuppress)
}

func TestApply_ClaimOnOwnedNotifiesOnly(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingPendingAgent, Owner: "@bob"}, Input{Kind: InputClaim, Actor: "@alice"})

	assert.False(t, d.Transition)
	require.Len(t, d.Effects, 1)
	assert.Equal(t, EffectNotify, d.Effects[0].Kind)
}

func TestApply_ReplyAutoClaims(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAIOnly}, Input{Kind: InputReply, Actor: "@alice"})

	require.True(t, d.Transition)
	assert.Equal(t, store.RoutingAgentActive, d.NewState)
	assert.Equal(t, "@alice", d.NewOwner)
}

func TestApply_ReplyOnOwnedRefreshesSuppression(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAgentActive, Owner: "@bob"}, Input{Kind: InputReply, Actor: "@bob"})

	assert.False(t, d.Transition, "already active: no state write needed")
	assert.Equal(t, []string{EffectSuppress}, effectKinds(d))
}

func TestApply_ReplyOnPendingActivates(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingPendingAgent, Owner: "@bob"}, Input{Kind: InputReply, Actor: "@bob"})

	require.True(t, d.Transition)
	assert.Equal(t, store.RoutingAgentActive, d.NewState)
	assert.Equal(t, "@bob", d.NewOwner, "owner unchanged when already set")
	assert.Equal(t, []string{EffectSuppress, EffectReconcile, EffectPublish}, effectKinds(d),
		"the state change must be published")
	assert.Equal(t, realtime.KindHandoffStarted, d.Effects[2].EventKind)
}

func TestApply_Release(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAgentActive, Owner: "@alice"}, Input{Kind: InputRelease})

	require.True(t, d.Transition)
	assert.Equal(t, store.RoutingAIOnly, d.NewState)
	assert.Empty(t, d.NewOwner)
	assert.Equal(t, realtime.KindHandoffEnded, d.Effects[2].EventKind)
}

func TestApply_ReleaseOnAIOnlyIsNoop(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAIOnly}, Input{Kind: InputRelease})
	assert.False(t, d.Transition)
}

func TestApply_ClosePreservesRoutingState(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAgentActive, Owner: "@alice"}, Input{Kind: InputClose})

	require.True(t, d.Transition)
	assert.True(t, d.Close)
	assert.Equal(t, store.RoutingAgentActive, d.NewState)
	assert.Equal(t, "@alice", d.NewOwner)
	assert.Equal(t, realtime.KindClosed, d.Effects[1].EventKind)
}

func TestApply_TimeoutReassigns(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingPendingAgent, Owner: "@alice"}, Input{Kind: InputTimeout, Agent: "@bob"})

	require.True(t, d.Transition)
	assert.Equal(t, store.RoutingPendingAgent, d.NewState)
	assert.Equal(t, "@bob", d.NewOwner)
	assert.Equal(t, realtime.KindHandoffStarted, d.Effects[2].EventKind)
}

func TestApply_TimeoutWithNoOtherAgentDemotes(t *testing.T) {
	for _, next := range []string{"", "@alice"} {
		d := Apply(Snapshot{RoutingState: store.RoutingPendingAgent, Owner: "@alice"}, Input{Kind: InputTimeout, Agent: next})

		require.True(t, d.Transition)
		assert.Equal(t, store.RoutingAIOnly, d.NewState)
		assert.Empty(t, d.NewOwner)
		assert.Equal(t, realtime.KindHandoffEnded, d.Effects[2].EventKind)
	}
}

func TestApply_TimeoutOnNonPendingIsNoop(t *testing.T) {
	d := Apply(Snapshot{RoutingState: store.RoutingAgentActive, Owner: "@alice"}, Input{Kind: InputTimeout, Agent: "@bob"})
	assert.False(t, d.Transition)
}
