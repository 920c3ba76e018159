// Package roster builds the per-run agent roster: the fixed base agents, the
// extra-coverage agent on its weekday, and the manual absence edits. It also
// owns the weighted quota formula.
package roster

import (
	"fmt"
	"math"
	"strings"
	"time"

	customerrors "bpo-assigner/errors"
	"bpo-assigner/models"
)

// DefaultWeight is the share of every agent except the weighted-down one.
const DefaultWeight = 1.0

// Options describe the fixed part of the roster.
type Options struct {
	// Agents in display order.
	Agents []string

	// WeightedAgent carries WeightedWeight instead of DefaultWeight.
	WeightedAgent  string
	WeightedWeight float64

	// ExtraAgent joins the end of the roster when the run date falls on
	// ExtraWeekday. Empty disables extra coverage.
	ExtraAgent   string
	ExtraWeekday time.Weekday

	// Reserved names can never be used as substitutes (sentinel labels).
	Reserved []string
}

// Roster is the ordered list of active agents for one run.
type Roster struct {
	entries []models.AgentEntry

	// holders maps each seat's original name to its current holder.
	// Removed seats map to "".
	holders map[string]string

	substitutions map[string]string
	removed       []string
	extra         bool
	reserved      []string
}

// NewEdit builds the edit for an absent agent. A blank substitute removes
// the seat instead of replacing it.
func NewEdit(absent, substitute string) models.RosterEdit {
	substitute = strings.TrimSpace(substitute)
	if substitute == "" {
		return models.RosterEdit{Kind: models.EditRemove, Absent: strings.TrimSpace(absent)}
	}
	return models.RosterEdit{
		Kind:       models.EditSubstitute,
		Absent:     strings.TrimSpace(absent),
		Substitute: substitute,
	}
}

// Build assembles the roster for runDate and applies edits in order.
func Build(opts Options, runDate time.Time, edits []models.RosterEdit) (*Roster, error) {
	if len(opts.Agents) == 0 {
		return nil, &customerrors.ConfigError{Field: "roster.agents", Err: customerrors.ErrEmptyRoster}
	}
	weighted := opts.WeightedWeight
	if opts.WeightedAgent != "" && (weighted <= 0 || weighted >= DefaultWeight) {
		return nil, &customerrors.ConfigError{
			Field: "roster.weighted_weight",
			Err:   fmt.Errorf("%w: weight %.2f must be in (0, 1)", customerrors.ErrInvalidConfig, weighted),
		}
	}

	names := append([]string(nil), opts.Agents...)
	r := &Roster{
		holders:       make(map[string]string, len(names)+1),
		substitutions: make(map[string]string),
		reserved:      opts.Reserved,
	}
	if opts.ExtraAgent != "" && runDate.Weekday() == opts.ExtraWeekday {
		names = append(names, opts.ExtraAgent)
		r.extra = true
	}

	foundWeighted := opts.WeightedAgent == ""
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &customerrors.ConfigError{
				Field: "roster.agents",
				Err:   fmt.Errorf("%w: blank agent name", customerrors.ErrInvalidConfig),
			}
		}
		if _, dup := r.holders[name]; dup {
			return nil, &customerrors.ConfigError{Field: name, Err: customerrors.ErrNameCollision}
		}
		entry := models.AgentEntry{Name: name, Weight: DefaultWeight}
		if name == opts.WeightedAgent {
			entry.Weight = weighted
			foundWeighted = true
		}
		r.entries = append(r.entries, entry)
		r.holders[name] = name
	}
	if !foundWeighted {
		return nil, &customerrors.ConfigError{Field: opts.WeightedAgent, Err: customerrors.ErrUnknownAgent}
	}

	for _, edit := range edits {
		if err := r.apply(edit); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Roster) apply(edit models.RosterEdit) error {
	idx := r.indexOf(edit.Absent)
	if idx < 0 {
		return &customerrors.ConfigError{Field: edit.Absent, Err: customerrors.ErrUnknownAgent}
	}

	switch edit.Kind {
	case models.EditSubstitute:
		if r.collides(edit.Substitute) {
			return &customerrors.ConfigError{Field: edit.Substitute, Err: customerrors.ErrNameCollision}
		}
		r.entries[idx].Name = edit.Substitute
		r.substitutions[edit.Absent] = edit.Substitute
		r.rebind(edit.Absent, edit.Substitute)

	case models.EditRemove:
		if len(r.entries) == 1 {
			return &customerrors.ConfigError{Field: edit.Absent, Err: customerrors.ErrEmptyRoster}
		}
		r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
		r.removed = append(r.removed, edit.Absent)
		r.rebind(edit.Absent, "")

	default:
		return &customerrors.ConfigError{
			Field: edit.Absent,
			Err:   fmt.Errorf("%w: unknown roster edit kind %d", customerrors.ErrInvalidConfig, edit.Kind),
		}
	}
	return nil
}

func (r *Roster) rebind(from, to string) {
	for seat, holder := range r.holders {
		if holder == from {
			r.holders[seat] = to
		}
	}
}

func (r *Roster) indexOf(name string) int {
	for i, e := range r.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (r *Roster) collides(name string) bool {
	for _, e := range r.entries {
		if strings.EqualFold(e.Name, name) {
			return true
		}
	}
	for _, res := range r.reserved {
		if strings.EqualFold(res, name) {
			return true
		}
	}
	return false
}

// Entries returns a copy of the roster in display order.
func (r *Roster) Entries() []models.AgentEntry {
	return append([]models.AgentEntry(nil), r.entries...)
}

// Names returns the active agent names in roster order.
func (r *Roster) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Size is the number of active agents.
func (r *Roster) Size() int {
	return len(r.entries)
}

// ExtraCoverage reports whether the extra-coverage agent joined this run.
func (r *Roster) ExtraCoverage() bool {
	return r.extra
}

// Resolve returns who currently holds the seat originally named name. It
// follows substitutions and reports false for removed or unknown seats.
func (r *Roster) Resolve(name string) (string, bool) {
	holder, ok := r.holders[name]
	if !ok || holder == "" {
		return "", false
	}
	return holder, true
}

// Weighted returns the entry carrying the reduced share, if any.
func (r *Roster) Weighted() (models.AgentEntry, bool) {
	for _, e := range r.entries {
		if e.Weighted() {
			return e, true
		}
	}
	return models.AgentEntry{}, false
}

// Quotas computes each active agent's theoretical quota for distributable
// records. See Quotas.
func (r *Roster) Quotas(distributable int) map[string]int {
	return Quotas(r.entries, distributable)
}

// Context freezes the roster into the run context handed to every stage.
func (r *Roster) Context(runID string, runDate time.Time) *models.RunContext {
	subs := make(map[string]string, len(r.substitutions))
	for k, v := range r.substitutions {
		subs[k] = v
	}
	return &models.RunContext{
		RunID:         runID,
		RunDate:       runDate,
		NextDate:      runDate.AddDate(0, 0, 1),
		ExtraCoverage: r.extra,
		Roster:        r.Entries(),
		Substitutions: subs,
		Removed:       append([]string(nil), r.removed...),
	}
}

// Quotas computes floor(distributable × weight / Σweights) per agent.
// Sentinel entries are ignored. The quotas sum to at most distributable;
// the allocator absorbs the shortfall.
func Quotas(entries []models.AgentEntry, distributable int) map[string]int {
	quotas := make(map[string]int, len(entries))
	total := 0.0
	for _, e := range entries {
		if e.Sentinel {
			continue
		}
		total += e.Weight
	}
	for _, e := range entries {
		if e.Sentinel {
			continue
		}
		if total <= 0 || distributable <= 0 {
			quotas[e.Name] = 0
			continue
		}
		quotas[e.Name] = int(math.Floor(float64(distributable) * e.Weight / total))
	}
	return quotas
}
