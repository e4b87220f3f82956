// ABOUTME: Pure business-hours evaluation over timezone-tagged weekly windows
// ABOUTME: Answers "is now in hours" and "which regions are active right now"

package hours

import (
	"strings"
	"time"

	"github.com/relayline/switchboard/internal/store"
)

// WildcardRegion matches every active region and is the default when a rule
// or agent has no region configured.
const WildcardRegion = "GLOBAL"

// Normalize upper-cases a region tag, mapping empty to the wildcard.
func Normalize(region string) string {
	r := strings.ToUpper(strings.TrimSpace(region))
	if r == "" {
		return WildcardRegion
	}
	return r
}

// InHours reports whether now falls inside any configured window. An empty
// rule set is always in hours (fail-open default for missing configuration).
func InHours(rules []*store.HoursRule, now time.Time) bool {
	if len(rules) == 0 {
		return true
	}
	for _, r := range rules {
		if ruleMatches(r, now) {
			return true
		}
	}
	return false
}

// InHoursForRegion is InHours restricted to rules carrying the given region.
// An empty region filter considers all rules.
func InHoursForRegion(rules []*store.HoursRule, now time.Time, region string) bool {
	if region == "" {
		return InHours(rules, now)
	}
	region = Normalize(region)
	var filtered []*store.HoursRule
	for _, r := range rules {
		if Normalize(r.Region) == region {
			filtered = append(filtered, r)
		}
	}
	return InHours(filtered, now)
}

// ActiveRegions returns the set of regions with at least one matching window
// right now. An empty rule set yields an empty set; consumers treat that as
// "no region filtering" so missing configuration never starves assignment.
func ActiveRegions(rules []*store.HoursRule, now time.Time) map[string]bool {
	active := make(map[string]bool)
	for _, r := range rules {
		if ruleMatches(r, now) {
			active[Normalize(r.Region)] = true
		}
	}
	return active
}

// ruleMatches converts now into the rule's timezone and compares the local
// weekday and HH:MM against the window. The comparison is a literal string
// compare, inclusive on both ends; a window with end < start therefore never
// matches (documented simplification, no midnight wrap).
func ruleMatches(r *store.HoursRule, now time.Time) bool {
	loc, err := time.LoadLocation(r.TZ)
	if err != nil {
		// Unknown timezone: the rule never matches rather than failing the
		// whole evaluation.
		return false
	}
	local := now.In(loc)
	if int(local.Weekday()) != r.Weekday {
		return false
	}
	cur := local.Format("15:04")
	return cur >= r.StartLocal && cur <= r.EndLocal
}
