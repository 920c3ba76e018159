package scheduler_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customerrors "bpo-assigner/errors"
	"bpo-assigner/models"
	"bpo-assigner/roster"
	"bpo-assigner/scheduler"
)

const sentinelLabel = "Incontactables"

var (
	monday   = time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	saturday = time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC)
)

func buildRoster(t *testing.T, runDate time.Time, edits ...models.RosterEdit) *roster.Roster {
	t.Helper()
	r, err := roster.Build(roster.Options{
		Agents:         []string{"Ana Paniagua", "Alysson Garcia", "Julio de Leon", "Nancy Zet", "Melissa Florian"},
		WeightedAgent:  "Melissa Florian",
		WeightedWeight: 0.75,
		ExtraAgent:     "Karla Mendez",
		ExtraWeekday:   time.Saturday,
		Reserved:       []string{sentinelLabel},
	}, runDate, edits)
	require.NoError(t, err)
	return r
}

func options(sentinels []string) scheduler.Options {
	return scheduler.Options{
		SentinelLabel:    sentinelLabel,
		Sentinels:        sentinels,
		ExclusiveClients: []string{"OXXO", "Axionlog"},
		ExclusiveAgent:   "Melissa Florian",
		ReasonKeyword:    "Reprogramacion",
		ReasonAgent:      "Julio de Leon",
		PriorityClients:  []string{"La Comer", "Fresko", "Sumesa", "City Market"},
	}
}

func input(destinations ...string) []models.Record {
	records := make([]models.Record, len(destinations))
	for i, d := range destinations {
		records[i] = models.Record{
			Row:               i + 2,
			PartyID:           fmt.Sprint(1000 + i),
			DestinationName:   d,
			Scheme:            "Regular",
			CollectionDateRaw: "AD",
		}
	}
	return records
}

func generic(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Walmart %d", i)
	}
	return out
}

func run(t *testing.T, r *roster.Roster, runDate time.Time, opts scheduler.Options, records []models.Record) *models.Result {
	t.Helper()
	res, err := scheduler.New(r, opts).Run(records, r.Context("test-run", runDate))
	require.NoError(t, err)
	return res
}

func assertCoverage(t *testing.T, res *models.Result) {
	t.Helper()
	total := res.SentinelCount
	for _, n := range res.Counts {
		total += n
	}
	assert.Equal(t, len(res.Records), total)
	for _, rec := range res.Records {
		assert.True(t, rec.Assigned(), "row %d unassigned", rec.Row)
	}
}

func TestRun_TenRecordScenario(t *testing.T) {
	r := buildRoster(t, monday)
	res := run(t, r, monday, options(nil), input(generic(10)...))

	assert.Equal(t, map[string]int{
		"Ana Paniagua": 2, "Alysson Garcia": 2, "Julio de Leon": 2, "Nancy Zet": 2, "Melissa Florian": 1,
	}, res.Quotas)
	assert.Equal(t, map[string]int{
		"Ana Paniagua": 3, "Alysson Garcia": 2, "Julio de Leon": 2, "Nancy Zet": 2, "Melissa Florian": 1,
	}, res.Counts)

	last := res.Records[9]
	assert.Equal(t, "Ana Paniagua", last.AssignedAgent)
	assert.Equal(t, models.SourceOverflow, last.AssignedBy)
	assert.Equal(t, 1, res.Overflow)
	assert.Zero(t, res.Transfers)
	assertCoverage(t, res)
}

func TestRun_DerivedFields(t *testing.T) {
	r := buildRoster(t, monday)
	records := input("Walmart Centro")
	records[0].Reason = "Reprogramación solicitada"
	records[0].CollectionDateRaw = " od "

	res := run(t, r, monday, options(nil), records)
	rec := res.Records[0]

	assert.Equal(t, "Walmart Centro 7-abr-2025", rec.OpportunityName)
	assert.Equal(t, "7/4/2025", rec.CloseDate)
	assert.Equal(t, "8/4/2025", rec.CollectionDate)
	assert.Equal(t, "Reprogramacion solicitada", rec.Reason)
	assert.Equal(t, "Pendiente de Contacto", rec.Stage)
	assert.Equal(t, "Julio de Leon", rec.AssignedAgent)
	assert.Equal(t, models.SourceReason, rec.AssignedBy)
}

func TestRun_OXXOAlwaysToExclusiveAgent(t *testing.T) {
	tests := map[string]struct {
		runDate  time.Time
		edits    []models.RosterEdit
		expected string
	}{
		"Weekday": {
			runDate:  monday,
			expected: "Melissa Florian",
		},
		"ExtraCoverageDay": {
			runDate:  saturday,
			expected: "Melissa Florian",
		},
		"ExclusiveAgentSubstituted": {
			runDate:  monday,
			edits:    []models.RosterEdit{roster.NewEdit("Melissa Florian", "Sofia Ruiz")},
			expected: "Sofia Ruiz",
		},
		"OtherAgentAbsent": {
			runDate:  saturday,
			edits:    []models.RosterEdit{roster.NewEdit("Ana Paniagua", "")},
			expected: "Melissa Florian",
		},
	}

	destinations := append(generic(20), "OXXO Centro", "Tiendas oxxo Sur", "AXIONLOG Bodega", "OXXO Norte")

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := buildRoster(t, tt.runDate, tt.edits...)
			res := run(t, r, tt.runDate, options(nil), input(destinations...))

			for _, rec := range res.Records {
				if strings.Contains(strings.ToLower(rec.DestinationName), "oxxo") {
					assert.Equal(t, tt.expected, rec.AssignedAgent, "row %d", rec.Row)
					assert.Equal(t, models.SourceExclusive, rec.AssignedBy)
				}
			}
			assertCoverage(t, res)
		})
	}
}

func TestRun_ExclusiveAgentRemoved(t *testing.T) {
	r := buildRoster(t, monday, roster.NewEdit("Melissa Florian", ""))
	res := run(t, r, monday, options(nil), input("OXXO Centro", "Walmart", "Soriana"))

	require.Len(t, res.Warnings, 1)
	assert.True(t, errors.Is(res.Warnings[0], customerrors.ErrUnknownAgent))
	assert.NotEqual(t, models.SourceExclusive, res.Records[0].AssignedBy)
	assertCoverage(t, res)
}

func TestRun_SentinelImmutability(t *testing.T) {
	r := buildRoster(t, monday)
	records := input("OXXO Centro", "La Comer Sur", "Walmart", "Walmart", "Walmart")
	records[2].Reason = "Reprogramacion"
	// Spreadsheet readers may render numeric IDs as floats.
	sentinels := []string{"1000.0", " 1001 ", "1002"}

	res := run(t, r, monday, options(sentinels), records)

	for _, rec := range res.Records[:3] {
		assert.Equal(t, sentinelLabel, rec.AssignedAgent)
		assert.Equal(t, models.SourceSentinel, rec.AssignedBy)
	}
	assert.Equal(t, 3, res.SentinelCount)
	assert.NotContains(t, res.Counts, sentinelLabel)

	// The sentinel records are excluded from the distributable count.
	total := 0
	for _, q := range res.Quotas {
		total += q
	}
	assert.LessOrEqual(t, total, 2)
	assertCoverage(t, res)
}

func TestRun_SubstitutionKeepsSeat(t *testing.T) {
	base := run(t, buildRoster(t, monday), monday, options(nil), input(generic(19)...))

	r := buildRoster(t, monday, roster.NewEdit("Alysson Garcia", "Pedro Ruiz"))
	res := run(t, r, monday, options(nil), input(generic(19)...))

	assert.Equal(t, []string{"Ana Paniagua", "Pedro Ruiz", "Julio de Leon", "Nancy Zet", "Melissa Florian"}, res.Agents)
	assert.Equal(t, base.Quotas["Alysson Garcia"], res.Quotas["Pedro Ruiz"])
	assert.Equal(t, base.Counts["Alysson Garcia"], res.Counts["Pedro Ruiz"])
	assert.NotContains(t, res.Counts, "Alysson Garcia")
	assertCoverage(t, res)
}

func TestRun_BalancedUnderNormalLoad(t *testing.T) {
	for _, n := range []int{47, 100, 200, 333} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			destinations := generic(n)
			destinations[3] = "La Comer 3"
			destinations[7] = "Fresko 7"

			r := buildRoster(t, monday)
			res := run(t, r, monday, options(nil), input(destinations...))

			eligible := []string{"Ana Paniagua", "Alysson Garcia", "Julio de Leon", "Nancy Zet"}
			sum := 0
			for _, a := range eligible {
				sum += res.Counts[a]
			}
			avg := sum / len(eligible)
			for _, a := range eligible {
				assert.InDelta(t, avg, res.Counts[a], 1, "agent %s", a)
			}
			assert.Less(t, res.Counts["Melissa Florian"], res.Counts["Nancy Zet"])
			assertCoverage(t, res)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	destinations := append(generic(37), "OXXO 1", "La Comer 2", "Sumesa 3")
	sentinels := []string{"1004", "1010"}

	first := run(t, buildRoster(t, saturday), saturday, options(sentinels), input(destinations...))
	second := run(t, buildRoster(t, saturday), saturday, options(sentinels), input(destinations...))

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.Counts, second.Counts)
}

func TestRun_InputNotMutated(t *testing.T) {
	records := input("OXXO Centro", "Walmart")
	records[1].Reason = "N/A"
	snapshot := append([]models.Record(nil), records...)

	run(t, buildRoster(t, monday), monday, options([]string{"1001"}), records)

	assert.Equal(t, snapshot, records)
}

func TestRun_UnparseableDateIsWarning(t *testing.T) {
	records := input("Walmart")
	records[0].CollectionDateRaw = "cuando se pueda"

	res := run(t, buildRoster(t, monday), monday, options(nil), records)

	require.Len(t, res.Warnings, 1)
	var dataErr *customerrors.DataError
	require.True(t, errors.As(res.Warnings[0], &dataErr))
	assert.Equal(t, 2, dataErr.Row)
	assert.True(t, errors.Is(dataErr, customerrors.ErrUnparseableDate))
	assert.Equal(t, "cuando se pueda", res.Records[0].CollectionDate)
	assertCoverage(t, res)
}

func TestRun_EmptyInput(t *testing.T) {
	res := run(t, buildRoster(t, monday), monday, options(nil), nil)

	assert.Empty(t, res.Records)
	for _, n := range res.Counts {
		assert.Zero(t, n)
	}
}
