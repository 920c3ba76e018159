// Package scheduler distributes the records of one roster run among the
// agents: rule classification, weighted quota allocation and balancing.
package scheduler

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	customerrors "bpo-assigner/errors"
	"bpo-assigner/logging"
	"bpo-assigner/metrics"
	"bpo-assigner/models"
	"bpo-assigner/normalizer"
	"bpo-assigner/roster"
	"bpo-assigner/rules"
)

// Options configure the rule stage of a run.
type Options struct {
	// Stage written on every processed record.
	Stage string

	SentinelLabel string
	// Sentinels are the unreachable party IDs. Nil skips the sentinel rule.
	Sentinels []string

	// ExclusiveAgent and ReasonAgent name roster seats; the rules follow
	// substitutions to whoever holds the seat in this run.
	ExclusiveClients []string
	ExclusiveAgent   string
	ReasonKeyword    string
	ReasonAgent      string

	PriorityClients []string

	Logger *zap.Logger
}

// Scheduler runs the assignment pipeline for one roster.
type Scheduler struct {
	roster *roster.Roster
	opts   Options
	logger *zap.Logger
}

// New creates a scheduler for r.
func New(r *roster.Roster, opts Options) *Scheduler {
	return &Scheduler{roster: r, opts: opts, logger: logging.OrNop(opts.Logger)}
}

// Run normalizes, classifies, allocates and balances records. The input is
// never modified; the returned result owns its records.
func (s *Scheduler) Run(records []models.Record, rc *models.RunContext) (*models.Result, error) {
	start := time.Now()
	res, err := s.run(records, rc)
	metrics.PipelineDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("run failed", zap.String("run_id", rc.RunID), zap.Error(err))
		return nil, err
	}
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	metrics.ObserveResult(res)
	return res, nil
}

func (s *Scheduler) run(records []models.Record, rc *models.RunContext) (*models.Result, error) {
	log := s.logger.With(zap.String("run_id", rc.RunID))
	res := &models.Result{
		RunID:         rc.RunID,
		RunDate:       rc.RunDate,
		Agents:        rc.AgentNames(),
		SentinelLabel: s.opts.SentinelLabel,
	}

	normalized, dataErrs := normalizer.Normalize(records, rc, s.opts.Stage)
	for _, de := range dataErrs {
		metrics.DataErrorsTotal.WithLabelValues(de.Column).Inc()
		log.Warn("data error", zap.Int("row", de.Row), zap.String("column", de.Column), zap.String("value", de.Value))
		res.Warnings = append(res.Warnings, de)
	}
	log.Debug("stage complete", zap.String("stage", "normalize"), zap.Int("count", len(normalized)))

	exclusiveAgent := s.resolve(s.opts.ExclusiveAgent, "rules.exclusive_agent", res)
	reasonAgent := s.resolve(s.opts.ReasonAgent, "rules.reason_agent", res)

	var ruleset []rules.Rule
	if s.opts.Sentinels != nil {
		ruleset = append(ruleset, rules.NewSentinelRule(s.opts.SentinelLabel, s.opts.Sentinels))
	}
	ruleset = append(ruleset,
		rules.NewExclusiveRule(exclusiveAgent, s.opts.ExclusiveClients),
		rules.NewReasonRule(reasonAgent, s.opts.ReasonKeyword),
		rules.NewPriorityRule(s.opts.PriorityClients),
	)
	classified, matched := rules.NewEngine(s.logger, ruleset...).Apply(normalized, rc)

	distributable := len(classified) - matched[string(models.SourceSentinel)]
	res.Quotas = roster.Quotas(rc.Roster, distributable)

	allocated, alloc, err := Allocate(classified, rc, res.Quotas)
	if err != nil {
		return nil, err
	}
	res.Overflow = alloc.Overflow
	if alloc.Overflow > 0 {
		log.Info("quota overflow",
			zap.String("agent", alloc.OverflowAgent),
			zap.Int("count", alloc.Overflow),
		)
	}
	log.Debug("stage complete", zap.String("stage", "allocate"), zap.Int("count", alloc.Assigned+alloc.Overflow))

	balanced, transfers := Balance(allocated, rc)
	res.Transfers = transfers
	log.Debug("stage complete", zap.String("stage", "balance"), zap.Int("count", transfers))

	res.Records = balanced
	tally(res, rc)

	if err := verify(res, classified); err != nil {
		return nil, err
	}

	log.Info("run complete",
		zap.Int("records", len(res.Records)),
		zap.Int("agents", len(res.Agents)),
		zap.Int("sentinel", res.SentinelCount),
		zap.Int("overflow", res.Overflow),
		zap.Int("transfers", res.Transfers),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

// resolve maps a configured seat to its holder for this run. A seat that
// was removed disables its rule and adds a warning.
func (s *Scheduler) resolve(seat, field string, res *models.Result) string {
	if seat == "" {
		return ""
	}
	holder, ok := s.roster.Resolve(seat)
	if !ok {
		err := &customerrors.ConfigError{Field: field, Err: fmt.Errorf("%w: %s", customerrors.ErrUnknownAgent, seat)}
		s.logger.Warn("rule target not in roster, rule skipped", zap.String("agent", seat), zap.String("field", field))
		res.Warnings = append(res.Warnings, err)
		return ""
	}
	return holder
}

func tally(res *models.Result, rc *models.RunContext) {
	res.Counts = make(map[string]int, len(rc.Roster))
	res.BySource = make(map[string]map[models.Source]int, len(rc.Roster))
	for _, a := range res.Agents {
		res.Counts[a] = 0
		res.BySource[a] = make(map[models.Source]int)
	}
	for _, r := range res.Records {
		if r.AssignedBy == models.SourceSentinel {
			res.SentinelCount++
			continue
		}
		res.Counts[r.AssignedAgent]++
		if _, ok := res.BySource[r.AssignedAgent]; !ok {
			res.BySource[r.AssignedAgent] = make(map[models.Source]int)
		}
		res.BySource[r.AssignedAgent][r.AssignedBy]++
	}
}

// verify checks the result before it leaves the pipeline: every record is
// owned by a roster agent or the sentinel label, sentinel tags survived
// every later stage, and the counts add up.
func verify(res *models.Result, classified []models.Record) error {
	if len(res.Records) != len(classified) {
		return fmt.Errorf("%w: %d records in, %d out", customerrors.ErrInvariant, len(classified), len(res.Records))
	}

	onRoster := make(map[string]bool, len(res.Agents))
	for _, a := range res.Agents {
		onRoster[a] = true
	}

	for i, r := range res.Records {
		if !r.Assigned() {
			return fmt.Errorf("%w: row %d left unassigned", customerrors.ErrInvariant, r.Row)
		}
		wasSentinel := classified[i].AssignedBy == models.SourceSentinel
		isSentinel := r.AssignedBy == models.SourceSentinel
		if wasSentinel != isSentinel || (isSentinel && r.AssignedAgent != classified[i].AssignedAgent) {
			return fmt.Errorf("%w: row %d sentinel tag changed", customerrors.ErrInvariant, r.Row)
		}
		if !isSentinel && !onRoster[r.AssignedAgent] {
			return fmt.Errorf("%w: row %d assigned to %q outside the roster", customerrors.ErrInvariant, r.Row, r.AssignedAgent)
		}
	}

	total := res.SentinelCount
	for _, n := range res.Counts {
		total += n
	}
	if total != len(res.Records) {
		return fmt.Errorf("%w: counts sum to %d for %d records", customerrors.ErrInvariant, total, len(res.Records))
	}
	return nil
}
