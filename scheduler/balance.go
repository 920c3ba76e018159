package scheduler

import (
	"sort"

	"bpo-assigner/models"
)

type load struct {
	agent    string
	distance int
}

// Balance moves records from agents above average+1 to agents below
// average. Every move brings both agents one step closer to average; the
// pass ends when either side runs out or no movable record remains.
//
// Only full-weight roster agents take part: the weighted-down agent keeps its
// lighter share and sentinel records never move. Forced overrides
// (exclusive and reason rules) stay with their agent; quota and overflow
// records move before priority ones, latest input row first.
// Returns the balanced copy and the number of records moved.
func Balance(records []models.Record, rc *models.RunContext) ([]models.Record, int) {
	out := append([]models.Record(nil), records...)

	var eligible []string
	for _, e := range rc.Roster {
		if e.Sentinel || e.Weighted() {
			continue
		}
		eligible = append(eligible, e.Name)
	}
	if len(eligible) < 2 {
		return out, 0
	}

	counts := make(map[string]int, len(eligible))
	movable := make(map[string][]int, len(eligible))
	for _, a := range eligible {
		counts[a] = 0
	}
	for _, r := range out {
		if _, ok := counts[r.AssignedAgent]; !ok {
			continue
		}
		counts[r.AssignedAgent]++
	}
	for _, a := range eligible {
		movable[a] = movableRecords(out, a)
	}

	sum := 0
	for _, a := range eligible {
		sum += counts[a]
	}
	average := sum / len(eligible)

	var over, under []load
	for _, a := range eligible {
		c := counts[a]
		switch {
		case c > average+1:
			over = append(over, load{agent: a, distance: c - average})
		case c < average:
			under = append(under, load{agent: a, distance: average - c})
		}
	}
	sort.SliceStable(over, func(i, j int) bool { return over[i].distance > over[j].distance })
	sort.SliceStable(under, func(i, j int) bool { return under[i].distance > under[j].distance })

	// Each move shrinks both distances; a pair advances once its side is
	// settled or the source has nothing left to give.
	transfers := 0
	i, j := 0, 0
	for i < len(over) && j < len(under) {
		src, dst := &over[i], &under[j]
		if src.distance == 0 || len(movable[src.agent]) == 0 {
			i++
			continue
		}
		if dst.distance == 0 {
			j++
			continue
		}

		idx := movable[src.agent][0]
		movable[src.agent] = movable[src.agent][1:]
		out[idx].AssignedAgent = dst.agent
		out[idx].AssignedBy = models.SourceBalance
		src.distance--
		dst.distance--
		transfers++
	}

	return out, transfers
}

// movableRecords lists agent's records the balancer may reassign, in the
// order they should be taken.
func movableRecords(records []models.Record, agent string) []int {
	var general, priority []int
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.AssignedAgent != agent || r.AssignedBy.Forced() {
			continue
		}
		if r.AssignedBy == models.SourcePriority {
			priority = append(priority, i)
			continue
		}
		general = append(general, i)
	}
	return append(general, priority...)
}
