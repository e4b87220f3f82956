// ABOUTME: Pure routing state machine for conversations
// ABOUTME: Maps a state snapshot plus an input to a decision with ordered effects

package routing

import (
	"fmt"

	"github.com/relayline/switchboard/internal/realtime"
	"github.com/relayline/switchboard/internal/store"
)

// Snapshot is the routing-relevant slice of a conversation's state.
type Snapshot struct {
	RoutingState string
	Owner        string
	Closed       bool
}

// Input kinds accepted by Apply.
const (
	InputAssign  = "assign"  // new conversation routed to an agent
	InputClaim   = "claim"   // explicit claim or qualifying reaction
	InputReply   = "reply"   // agent message in the thread
	InputRelease = "release" // owner hands back to the assistant
	InputClose   = "close"   // terminal close
	InputTimeout = "timeout" // sweep found an expired pending assignment
)

// Input is one signal fed to the state machine. Actor is the agent
// performing the action; Agent is the assignment target for assign and
// timeout inputs.
type Input struct {
	Kind  string
	Actor string
	Agent string
}

// Effect kinds. Effects are data; the Service executes them after the
// durable write, best-effort and in order.
const (
	EffectPublish    = "publish"
	EffectReconcile  = "reconcile"
	EffectPostSystem = "post_system"
	EffectNotify     = "notify"
	EffectSuppress   = "suppress"
)

// Effect is one side effect a transition requests.
type Effect struct {
	Kind      string
	EventKind string // set for EffectPublish
	Text      string // set for EffectPostSystem and EffectNotify
}

// Decision is the outcome of applying an input to a snapshot. When
// Transition is false nothing may be written; Effects may still carry a
// notice (e.g. telling a losing claimant the conversation is owned).
type Decision struct {
	Transition bool
	NewState   string
	NewOwner   string
	Close      bool
	Effects    []Effect
}

// noop is a Decision that writes nothing and does nothing.
var noop = Decision{}

// Apply computes the transition for input in on snapshot snap. It is
// pure: the caller performs the matching conditional write and runs the
// effects only if that write succeeds. Closed conversations reject
// every input.
func Apply(snap Snapshot, in Input) Decision {
	if snap.Closed {
		return noop
	}

	switch in.Kind {
	case InputAssign:
		if in.Agent == "" || snap.Owner != "" || snap.RoutingState != store.RoutingAIOnly {
			return noop
		}
		return Decision{
			Transition: true,
			NewState:   store.RoutingPendingAgent,
			NewOwner:   in.Agent,
			Effects: []Effect{
				{Kind: EffectPostSystem, Text: fmt.Sprintf("Assigned to %s", in.Agent)},
				{Kind: EffectReconcile},
				{Kind: EffectPublish, EventKind: realtime.KindHandoffStarted},
			},
		}

	case InputClaim:
		if snap.Owner != "" {
			// Claim races resolve at the store; an occupied snapshot
			// never reaches the conditional write.
			return Decision{
				Effects: []Effect{
					{Kind: EffectNotify, Text: "This conversation is already owned."},
				},
			}
		}
		return Decision{
			Transition: true,
			NewState:   store.RoutingAgentActive,
			NewOwner:   in.Actor,
			Effects: []Effect{
				{Kind: EffectSuppress},
				{Kind: EffectReconcile},
				{Kind: EffectPublish, EventKind: realtime.KindHandoffStarted},
			},
		}

	case InputReply:
		if snap.Owner == "" {
			// Unowned thread: the reply auto-claims.
			return Decision{
				Transition: true,
				NewState:   store.RoutingAgentActive,
				NewOwner:   in.Actor,
				Effects: []Effect{
					{Kind: EffectSuppress},
					{Kind: EffectReconcile},
					{Kind: EffectPublish, EventKind: realtime.KindHandoffStarted},
				},
			}
		}
		// Owned already: make sure the state reflects an active human
		// and keep the assistant quiet a while longer.
		d := Decision{
			Effects: []Effect{{Kind: EffectSuppress}},
		}
		if snap.RoutingState != store.RoutingAgentActive {
			d.Transition = true
			d.NewState = store.RoutingAgentActive
			d.NewOwner = snap.Owner
			d.Effects = append(d.Effects,
				Effect{Kind: EffectReconcile},
				Effect{Kind: EffectPublish, EventKind: realtime.KindHandoffStarted})
		}
		return d

	case InputRelease:
		if snap.Owner == "" && snap.RoutingState == store.RoutingAIOnly {
			return noop
		}
		return Decision{
			Transition: true,
			NewState:   store.RoutingAIOnly,
			NewOwner:   "",
			Effects: []Effect{
				{Kind: EffectPostSystem, Text: "Continuing with AI"},
				{Kind: EffectReconcile},
				{Kind: EffectPublish, EventKind: realtime.KindHandoffEnded},
			},
		}

	case InputClose:
		return Decision{
			Transition: true,
			NewState:   snap.RoutingState,
			NewOwner:   snap.Owner,
			Close:      true,
			Effects: []Effect{
				{Kind: EffectReconcile},
				{Kind: EffectPublish, EventKind: realtime.KindClosed},
			},
		}

	case InputTimeout:
		if snap.RoutingState != store.RoutingPendingAgent {
			return noop
		}
		if in.Agent == "" || in.Agent == snap.Owner {
			// No other agent available: hand back to the assistant.
			return Decision{
				Transition: true,
				NewState:   store.RoutingAIOnly,
				NewOwner:   "",
				Effects: []Effect{
					{Kind: EffectPostSystem, Text: "Continuing with AI"},
					{Kind: EffectReconcile},
					{Kind: EffectPublish, EventKind: realtime.KindHandoffEnded},
				},
			}
		}
		return Decision{
			Transition: true,
			NewState:   store.RoutingPendingAgent,
			NewOwner:   in.Agent,
			Effects: []Effect{
				{Kind: EffectPostSystem, Text: fmt.Sprintf("Reassigning to %s due to no response", in.Agent)},
				{Kind: EffectReconcile},
				{Kind: EffectPublish, EventKind: realtime.KindHandoffStarted},
			},
		}
	}

	return noop
}
