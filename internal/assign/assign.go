// ABOUTME: Round-robin agent assignment with regional eligibility filtering
// ABOUTME: Next advances the shared cursor via compare-and-set; After never touches it

package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayline/switchboard/internal/hours"
	"github.com/relayline/switchboard/internal/store"
)

// cursorRetries bounds the compare-and-set retry loop in Next. Contention on
// the cursor resolves in one or two laps in practice.
const cursorRetries = 5

// ErrCursorContention is returned when the cursor compare-and-set kept
// losing; callers may retry the whole assignment.
var ErrCursorContention = errors.New("round-robin cursor contention")

// RosterStore is what the assigner needs from storage.
type RosterStore interface {
	ListActiveAgents(ctx context.Context) ([]*store.Agent, error)
	ListHoursRules(ctx context.Context) ([]*store.HoursRule, error)
	GetCursor(ctx context.Context) (int, error)
	AdvanceCursor(ctx context.Context, from, to int) error
}

// Assigner picks agents from the active roster in round-robin order,
// filtered by regional business hours.
type Assigner struct {
	store  RosterStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Assigner. Pass nil logger for default.
func New(st RosterStore, logger *slog.Logger) *Assigner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assigner{
		store:  st,
		logger: logger.With("component", "assign"),
		now:    time.Now,
	}
}

// Next picks the next agent for a brand-new conversation and advances the
// shared cursor. Returns the chosen agent's platform user id, or "" when the
// roster is empty.
func (a *Assigner) Next(ctx context.Context) (string, error) {
	agents, eligible, err := a.roster(ctx)
	if err != nil {
		return "", err
	}
	if len(agents) == 0 {
		return "", nil
	}

	for attempt := 0; attempt < cursorRetries; attempt++ {
		last, err := a.store.GetCursor(ctx)
		if err != nil {
			return "", fmt.Errorf("reading cursor: %w", err)
		}

		idx := scanFrom(last, agents, eligible)
		if err := a.store.AdvanceCursor(ctx, last, idx); err != nil {
			if errors.Is(err, store.ErrCursorConflict) {
				continue
			}
			return "", fmt.Errorf("advancing cursor: %w", err)
		}

		a.logger.Debug("assigned next agent",
			"agent", agents[idx].PlatformUserID,
			"index", idx)
		return agents[idx].PlatformUserID, nil
	}

	return "", ErrCursorContention
}

// After picks the next eligible agent after the given one, for timeout
// reassignment. It never reads or writes the shared cursor, so reassignment
// cannot corrupt the round-robin order used for new conversations. An
// unknown currentAgentID falls back to Next.
func (a *Assigner) After(ctx context.Context, currentAgentID string) (string, error) {
	if currentAgentID == "" {
		return a.Next(ctx)
	}

	agents, eligible, err := a.roster(ctx)
	if err != nil {
		return "", err
	}
	if len(agents) == 0 {
		return "", nil
	}

	cur := -1
	for i, ag := range agents {
		if ag.PlatformUserID == currentAgentID {
			cur = i
			break
		}
	}
	if cur < 0 {
		// Agent left the roster; treat as unassigned
		return a.Next(ctx)
	}

	idx := scanFrom(cur, agents, eligible)
	a.logger.Debug("assigned agent after timeout",
		"previous", currentAgentID,
		"agent", agents[idx].PlatformUserID,
		"index", idx)
	return agents[idx].PlatformUserID, nil
}

// roster loads the active agents and computes per-index eligibility from the
// current business-hours state. With zero active regions overall, filtering
// is skipped entirely so an incomplete hours table never starves assignment.
func (a *Assigner) roster(ctx context.Context) ([]*store.Agent, func(int) bool, error) {
	agents, err := a.store.ListActiveAgents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing agents: %w", err)
	}

	rules, err := a.store.ListHoursRules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing hours rules: %w", err)
	}

	active := hours.ActiveRegions(rules, a.now())
	if len(active) == 0 {
		return agents, func(int) bool { return true }, nil
	}

	eligible := func(i int) bool {
		r := hours.Normalize(agents[i].Region)
		return r == hours.WildcardRegion || active[r]
	}
	return agents, eligible, nil
}

// scanFrom walks forward from last+1 (mod roster size) for at most one full
// lap and returns the first eligible index. If nothing is eligible it falls
// back to the plain next index so assignment never deadlocks.
func scanFrom(last int, agents []*store.Agent, eligible func(int) bool) int {
	n := len(agents)
	cursor := last
	for i := 0; i < n; i++ {
		cursor = (cursor + 1) % n
		if eligible(cursor) {
			return cursor
		}
	}
	return (last + 1) % n
}
