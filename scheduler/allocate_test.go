package scheduler_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customerrors "bpo-assigner/errors"
	"bpo-assigner/models"
	"bpo-assigner/scheduler"
)

func contextFor(entries ...models.AgentEntry) *models.RunContext {
	return &models.RunContext{RunID: "test", Roster: entries}
}

func agent(name string) models.AgentEntry {
	return models.AgentEntry{Name: name, Weight: 1}
}

func blank(n int) []models.Record {
	records := make([]models.Record, n)
	for i := range records {
		records[i].Row = i + 2
	}
	return records
}

func owners(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.AssignedAgent
	}
	return out
}

func TestAllocate(t *testing.T) {
	tests := map[string]struct {
		roster        []models.AgentEntry
		quotas        map[string]int
		preassigned   map[int]string
		records       int
		expected      []string
		overflow      int
		overflowAgent string
	}{
		"RoundRobin_WithinQuota": {
			roster:   []models.AgentEntry{agent("A"), agent("B"), agent("C")},
			quotas:   map[string]int{"A": 2, "B": 2, "C": 2},
			records:  6,
			expected: []string{"A", "B", "C", "A", "B", "C"},
		},
		"SkipsExhaustedAgents": {
			roster:   []models.AgentEntry{agent("A"), agent("B"), agent("C")},
			quotas:   map[string]int{"A": 3, "B": 1, "C": 2},
			records:  6,
			expected: []string{"A", "B", "C", "A", "C", "A"},
		},
		"Overflow_TieGoesToFirstInRosterOrder": {
			roster:        []models.AgentEntry{agent("A"), agent("B")},
			quotas:        map[string]int{"A": 1, "B": 1},
			records:       4,
			expected:      []string{"A", "B", "A", "A"},
			overflow:      2,
			overflowAgent: "A",
		},
		"PreassignedRecordsConsumeQuota": {
			roster:      []models.AgentEntry{agent("A"), agent("B")},
			quotas:      map[string]int{"A": 2, "B": 2},
			preassigned: map[int]string{0: "A", 1: "A"},
			records:     4,
			expected:    []string{"A", "A", "B", "B"},
		},
		"PreassignedBeyondQuotaClampsToZero": {
			roster:      []models.AgentEntry{agent("A"), agent("B")},
			quotas:      map[string]int{"A": 1, "B": 2},
			preassigned: map[int]string{0: "A", 1: "A", 2: "A"},
			records:     5,
			expected:    []string{"A", "A", "A", "B", "B"},
		},
		"NothingPending": {
			roster:      []models.AgentEntry{agent("A")},
			quotas:      map[string]int{"A": 0},
			preassigned: map[int]string{0: "A"},
			records:     1,
			expected:    []string{"A"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			records := blank(tt.records)
			for i, a := range tt.preassigned {
				records[i].AssignedAgent = a
				records[i].AssignedBy = models.SourceExclusive
			}

			out, alloc, err := scheduler.Allocate(records, contextFor(tt.roster...), tt.quotas)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, owners(out))
			assert.Equal(t, tt.overflow, alloc.Overflow)
			assert.Equal(t, tt.overflowAgent, alloc.OverflowAgent)
			for _, r := range records {
				if _, pre := tt.preassigned[r.Row-2]; !pre {
					assert.False(t, r.Assigned(), "input must not be mutated")
				}
			}
		})
	}
}

func TestAllocate_OverflowAfterForcedRecords(t *testing.T) {
	rc := contextFor(agent("A"), agent("B"), agent("C"))
	records := blank(3)
	extra := blank(2)
	extra[0].AssignedAgent, extra[0].AssignedBy = "B", models.SourceReason
	extra[1].AssignedAgent, extra[1].AssignedBy = "B", models.SourceReason
	records = append(extra, records...)

	out, alloc, err := scheduler.Allocate(records, rc, map[string]int{"A": 0, "B": 0, "C": 0})
	require.NoError(t, err)

	assert.Equal(t, 3, alloc.Overflow)
	assert.Equal(t, "A", alloc.OverflowAgent)
	assert.Equal(t, []string{"B", "B", "A", "A", "A"}, owners(out))
	assert.Equal(t, models.SourceOverflow, out[2].AssignedBy)
}

func TestAllocate_EmptyRoster(t *testing.T) {
	_, _, err := scheduler.Allocate(blank(2), contextFor(), map[string]int{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, customerrors.ErrEmptyRoster))

	var cfgErr *customerrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestAllocate_Deterministic(t *testing.T) {
	rc := contextFor(agent("A"), agent("B"), models.AgentEntry{Name: "W", Weight: 0.75})
	quotas := map[string]int{"A": 10, "B": 10, "W": 7}

	first, _, err := scheduler.Allocate(blank(31), rc, quotas)
	require.NoError(t, err)
	second, _, err := scheduler.Allocate(blank(31), rc, quotas)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
