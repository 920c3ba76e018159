// Package rules tags records with their owner before general distribution.
//
// Rules run in a fixed order. Every rule except the sentinel rule only
// writes records that are still unassigned; sentinel records are never
// touched again by any later stage.
package rules

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"bpo-assigner/logging"
	"bpo-assigner/models"
	"bpo-assigner/normalizer"
)

// Rule classifies records in place and returns how many it assigned.
type Rule interface {
	Name() string
	Apply(records []models.Record, rc *models.RunContext) int
}

// Engine applies rules in order.
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

// NewEngine creates an engine running rules in the given order.
func NewEngine(logger *zap.Logger, rules ...Rule) *Engine {
	return &Engine{rules: rules, logger: logging.OrNop(logger)}
}

// Apply returns a classified copy of records together with the number of
// records each rule assigned, keyed by rule name.
func (e *Engine) Apply(records []models.Record, rc *models.RunContext) ([]models.Record, map[string]int) {
	out := append([]models.Record(nil), records...)
	matched := make(map[string]int, len(e.rules))

	for _, rule := range e.rules {
		n := rule.Apply(out, rc)
		matched[rule.Name()] = n
		e.logger.Debug("rule applied",
			zap.String("run_id", rc.RunID),
			zap.String("rule", rule.Name()),
			zap.Int("count", n),
		)
	}
	return out, matched
}

// PartyKey canonicalizes a party ID for membership tests. Integral numbers
// lose the trailing ".0" spreadsheets add to numeric cells.
func PartyKey(id string) string {
	id = strings.TrimSpace(id)
	if f, err := strconv.ParseFloat(id, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return id
}

func containsAny(s string, tokens []string) bool {
	s = strings.ToLower(s)
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" && strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// SentinelRule tags every record whose party ID is on the unreachable list.
type SentinelRule struct {
	label   string
	parties map[string]struct{}
}

// NewSentinelRule builds the rule from the external party ID list.
func NewSentinelRule(label string, partyIDs []string) *SentinelRule {
	parties := make(map[string]struct{}, len(partyIDs))
	for _, id := range partyIDs {
		if key := PartyKey(id); key != "" {
			parties[key] = struct{}{}
		}
	}
	return &SentinelRule{label: label, parties: parties}
}

func (r *SentinelRule) Name() string { return string(models.SourceSentinel) }

// Apply may overwrite any previous owner.
func (r *SentinelRule) Apply(records []models.Record, _ *models.RunContext) int {
	if len(r.parties) == 0 {
		return 0
	}
	n := 0
	for i := range records {
		if _, ok := r.parties[PartyKey(records[i].PartyID)]; ok {
			records[i].AssignedAgent = r.label
			records[i].AssignedBy = models.SourceSentinel
			n++
		}
	}
	return n
}

// ExclusiveRule routes exclusive clients to a single agent.
type ExclusiveRule struct {
	agent   string
	clients []string
}

// NewExclusiveRule sends records whose opportunity name mentions any of
// clients to agent. An empty agent disables the rule.
func NewExclusiveRule(agent string, clients []string) *ExclusiveRule {
	return &ExclusiveRule{agent: agent, clients: clients}
}

func (r *ExclusiveRule) Name() string { return string(models.SourceExclusive) }

func (r *ExclusiveRule) Apply(records []models.Record, _ *models.RunContext) int {
	if r.agent == "" {
		return 0
	}
	n := 0
	for i := range records {
		if records[i].Assigned() || !containsAny(records[i].OpportunityName, r.clients) {
			continue
		}
		records[i].AssignedAgent = r.agent
		records[i].AssignedBy = models.SourceExclusive
		n++
	}
	return n
}

// ReasonRule routes records whose reason mentions a keyword.
type ReasonRule struct {
	agent   string
	keyword string
}

// NewReasonRule builds the rule. An empty agent or keyword disables it.
// Matching ignores case and accents.
func NewReasonRule(agent, keyword string) *ReasonRule {
	return &ReasonRule{agent: agent, keyword: normalizer.StripAccents(strings.TrimSpace(keyword))}
}

func (r *ReasonRule) Name() string { return string(models.SourceReason) }

func (r *ReasonRule) Apply(records []models.Record, _ *models.RunContext) int {
	if r.agent == "" || strings.TrimSpace(r.keyword) == "" {
		return 0
	}
	tokens := []string{r.keyword}
	n := 0
	for i := range records {
		if records[i].Assigned() || !containsAny(normalizer.StripAccents(records[i].Reason), tokens) {
			continue
		}
		records[i].AssignedAgent = r.agent
		records[i].AssignedBy = models.SourceReason
		n++
	}
	return n
}

// PriorityRule spreads priority clients round-robin over the roster before
// quota filling.
type PriorityRule struct {
	clients []string
}

// NewPriorityRule builds the rule for the given client tokens.
func NewPriorityRule(clients []string) *PriorityRule {
	return &PriorityRule{clients: clients}
}

func (r *PriorityRule) Name() string { return string(models.SourcePriority) }

func (r *PriorityRule) Apply(records []models.Record, rc *models.RunContext) int {
	agents := rc.AgentNames()
	if len(agents) == 0 {
		return 0
	}
	n := 0
	for i := range records {
		if records[i].Assigned() || !containsAny(records[i].OpportunityName, r.clients) {
			continue
		}
		records[i].AssignedAgent = agents[n%len(agents)]
		records[i].AssignedBy = models.SourcePriority
		n++
	}
	return n
}
