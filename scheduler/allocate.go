package scheduler

import (
	"fmt"

	customerrors "bpo-assigner/errors"
	"bpo-assigner/models"
)

// Allocation summarizes one allocator pass.
type Allocation struct {
	// Remaining quota per agent when the pass started.
	Remaining map[string]int
	// Assigned counts records given out within quota.
	Assigned int
	// Overflow counts records given to OverflowAgent after every quota ran out.
	Overflow      int
	OverflowAgent string
}

// Allocate assigns every still-unassigned record.
//
// Each agent starts with max(0, quota - records it already owns). The roster
// is swept in order, handing the next unassigned record (input order) to
// every agent with quota left. When a full sweep hands out nothing, all
// remaining records go to the agent with the largest remaining quota, ties
// broken by roster order.
// Time: O(n + a) per sweep, at most n/a + 1 sweeps.
func Allocate(records []models.Record, rc *models.RunContext, quotas map[string]int) ([]models.Record, Allocation, error) {
	out := append([]models.Record(nil), records...)
	agents := rc.AgentNames()

	owned := make(map[string]int, len(agents))
	pending := make([]int, 0, len(out))
	for i, r := range out {
		if r.Assigned() {
			owned[r.AssignedAgent]++
			continue
		}
		pending = append(pending, i)
	}

	remaining := make(map[string]int, len(agents))
	for _, a := range agents {
		remaining[a] = max(0, quotas[a]-owned[a])
	}
	alloc := Allocation{Remaining: make(map[string]int, len(agents))}
	for a, q := range remaining {
		alloc.Remaining[a] = q
	}

	if len(pending) == 0 {
		return out, alloc, nil
	}
	if len(agents) == 0 {
		return nil, alloc, &customerrors.ConfigError{
			Field: "roster",
			Err:   fmt.Errorf("%w: %d records left to distribute", customerrors.ErrEmptyRoster, len(pending)),
		}
	}

	next := 0
	for next < len(pending) {
		progressed := false
		for _, a := range agents {
			if next >= len(pending) {
				break
			}
			if remaining[a] <= 0 {
				continue
			}
			idx := pending[next]
			out[idx].AssignedAgent = a
			out[idx].AssignedBy = models.SourceQuota
			remaining[a]--
			next++
			alloc.Assigned++
			progressed = true
		}
		if !progressed {
			break
		}
	}

	if next < len(pending) {
		target := agents[0]
		for _, a := range agents[1:] {
			if remaining[a] > remaining[target] {
				target = a
			}
		}
		for _, idx := range pending[next:] {
			out[idx].AssignedAgent = target
			out[idx].AssignedBy = models.SourceOverflow
			alloc.Overflow++
		}
		alloc.OverflowAgent = target
	}

	return out, alloc, nil
}
