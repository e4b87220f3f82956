// ABOUTME: Management writes for agents, hours rules, and the routing policy
// ABOUTME: Used by the external admin surface and tests; the routing core only reads these

package store

import (
	"context"
	"fmt"
)

// UpsertAgent inserts or replaces an agent row keyed by platform user id.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, a *Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, platform_user_id, display_name, active, order_index, region)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(platform_user_id) DO UPDATE SET
			display_name = excluded.display_name,
			active = excluded.active,
			order_index = excluded.order_index,
			region = excluded.region`,
		a.ID, a.PlatformUserID, a.DisplayName, a.Active, a.OrderIndex,
		orDefault(a.Region, "GLOBAL"))
	if err != nil {
		return fmt.Errorf("upserting agent: %w", err)
	}
	return nil
}

// AddHoursRule inserts a business-hours rule.
func (s *SQLiteStore) AddHoursRule(ctx context.Context, r *HoursRule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hours_rules (id, region, tz, weekday, start_local, end_local)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, orDefault(r.Region, "GLOBAL"), r.TZ, r.Weekday, r.StartLocal, r.EndLocal)
	if err != nil {
		return fmt.Errorf("inserting hours rule: %w", err)
	}
	return nil
}

// SetRoutingPolicy writes the singleton policy row.
func (s *SQLiteStore) SetRoutingPolicy(ctx context.Context, p *RoutingPolicy) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routing_policy (id, timeout_seconds, suppression_seconds)
		 VALUES ('policy', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			timeout_seconds = excluded.timeout_seconds,
			suppression_seconds = excluded.suppression_seconds`,
		p.TimeoutSeconds, p.SuppressionSeconds)
	if err != nil {
		return fmt.Errorf("setting routing policy: %w", err)
	}
	return nil
}
