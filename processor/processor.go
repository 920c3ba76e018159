// Package processor turns one uploaded roster into processed artifacts: it
// reads the input, builds the run roster, runs the scheduler and renders
// the workbook, CSV and distribution report.
package processor

import (
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bpo-assigner/config"
	"bpo-assigner/formatter"
	"bpo-assigner/logging"
	"bpo-assigner/models"
	"bpo-assigner/parser"
	"bpo-assigner/roster"
	"bpo-assigner/scheduler"
)

// Request is one processing job.
type Request struct {
	Input     io.Reader
	InputName string
	Sheet     string

	// Sentinels is the optional unreachable-party list. SentinelsPath is
	// read instead when Sentinels is nil.
	Sentinels     io.Reader
	SentinelsName string
	SentinelsPath string

	// Absent names the agent missing today; a blank Substitute removes the
	// seat instead of filling it.
	Absent     string
	Substitute string

	RunDate time.Time
}

// Output is everything a finished run produced.
type Output struct {
	Table     *models.Table
	Result    *models.Result
	Artifacts []formatter.Artifact
	Report    *formatter.Report
}

// Processor runs requests against a fixed configuration.
type Processor struct {
	cfg    *config.AppConfig
	logger *zap.Logger
}

// New creates a processor.
func New(cfg *config.AppConfig, logger *zap.Logger) *Processor {
	return &Processor{cfg: cfg, logger: logging.OrNop(logger)}
}

// Process runs req. Fatal problems (unreadable input, missing column,
// invalid roster edit) are returned as errors; an unreadable sentinel list
// only adds a warning to the result.
func (p *Processor) Process(req Request) (*Output, error) {
	runID := uuid.NewString()
	log := p.logger.With(zap.String("run_id", runID))

	table, err := parser.Parse(req.Input, req.InputName, req.Sheet)
	if err != nil {
		return nil, err
	}
	log.Info("input read", zap.String("file", req.InputName), zap.Int("count", len(table.Records)))

	var sentinels []string
	var sentinelErr error
	switch {
	case req.Sentinels != nil:
		sentinels, sentinelErr = parser.ReadSentinels(req.Sentinels, req.SentinelsName)
	case req.SentinelsPath != "":
		sentinels, sentinelErr = parser.ReadSentinelsFile(req.SentinelsPath)
	}
	if sentinelErr != nil {
		log.Warn("sentinel list skipped", zap.Error(sentinelErr))
	}

	opts, err := p.cfg.RosterOptions()
	if err != nil {
		return nil, err
	}
	var edits []models.RosterEdit
	if req.Absent != "" {
		edits = append(edits, roster.NewEdit(req.Absent, req.Substitute))
	}
	r, err := roster.Build(opts, req.RunDate, edits)
	if err != nil {
		return nil, err
	}
	rc := r.Context(runID, req.RunDate)
	log.Info("roster built",
		zap.Strings("agents", r.Names()),
		zap.Bool("extra_coverage", rc.ExtraCoverage),
	)

	sched := scheduler.New(r, scheduler.Options{
		Stage:            p.cfg.Output.Stage,
		SentinelLabel:    p.cfg.Rules.SentinelLabel,
		Sentinels:        sentinels,
		ExclusiveClients: p.cfg.Rules.ExclusiveClients,
		ExclusiveAgent:   p.cfg.Rules.ExclusiveAgent,
		ReasonKeyword:    p.cfg.Rules.ReasonKeyword,
		ReasonAgent:      p.cfg.Rules.ReasonAgent,
		PriorityClients:  p.cfg.Rules.PriorityClients,
		Logger:           p.logger,
	})
	res, err := sched.Run(table.Records, rc)
	if err != nil {
		return nil, err
	}
	if sentinelErr != nil {
		res.Warnings = append([]error{sentinelErr}, res.Warnings...)
	}

	artifacts, err := formatter.Artifacts(res, table, p.cfg.Output.FilePrefix, p.cfg.Output.Sheet)
	if err != nil {
		return nil, err
	}

	return &Output{
		Table:     table,
		Result:    res,
		Artifacts: artifacts,
		Report:    formatter.NewReport(res, artifacts...),
	}, nil
}
