// Package rules turns forwarding configuration text into a validated
// routing table.
package rules

import (
	"strconv"
	"strings"

	"tgrelay/internal/domain"
)

// RoutingTable maps a source chat to the ordered list of targets its
// messages are relayed to. Built once at startup, read-only afterwards, so
// concurrent handlers need no synchronization around it.
type RoutingTable map[int64][]int64

// Targets returns the target list for a source.
func (t RoutingTable) Targets(source int64) ([]int64, bool) {
	targets, ok := t[source]
	return targets, ok
}

// SourceIDs returns the set of source chats, used to filter the subscription.
func (t RoutingTable) SourceIDs() []int64 {
	ids := make([]int64, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	return ids
}

// Parse builds a RoutingTable from the two supported configuration forms.
//
// The legacy single-pair form (SOURCE_ID/TARGET_ID) takes precedence: when
// both are set, multiRules is silently ignored. Existing deployments rely on
// that early return, so it is kept rather than merged.
//
// The multi-rule form is a comma-separated list of source:target[:target...]
// rules. Rules sharing a source are merged with targets concatenated in
// first-seen order; duplicate targets are kept as written. Empty rule
// strings are skipped after trimming.
func Parse(legacySource, legacyTarget, multiRules string) (RoutingTable, error) {
	if legacySource != "" && legacyTarget != "" {
		source, err := parseID(legacySource)
		if err != nil {
			return nil, domain.NewConfigError("SOURCE_ID and TARGET_ID must be valid integers")
		}
		target, err := parseID(legacyTarget)
		if err != nil {
			return nil, domain.NewConfigError("SOURCE_ID and TARGET_ID must be valid integers")
		}
		return RoutingTable{source: {target}}, nil
	}

	table := make(RoutingTable)
	for _, rule := range strings.Split(multiRules, ",") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}

		parts := strings.Split(rule, ":")
		if len(parts) < 2 {
			return nil, domain.NewConfigError("invalid forwarding rule format: %s", rule)
		}

		source, err := parseID(parts[0])
		if err != nil {
			return nil, domain.NewConfigError("invalid source in rule %q: %v", rule, err)
		}

		targets := make([]int64, 0, len(parts)-1)
		for _, p := range parts[1:] {
			target, err := parseID(p)
			if err != nil {
				return nil, domain.NewConfigError("invalid target in rule %q: %v", rule, err)
			}
			targets = append(targets, target)
		}

		table[source] = append(table[source], targets...)
	}

	if len(table) == 0 {
		return nil, domain.NewConfigError("no forwarding rules configured. Set either SOURCE_ID/TARGET_ID or FORWARDING_RULES")
	}
	return table, nil
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
