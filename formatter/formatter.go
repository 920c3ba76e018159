package formatter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"bpo-assigner/models"
)

// Report holds the distribution summary used by all report formatters
type Report struct {
	RunID     string        `json:"run_id"`
	RunDate   string        `json:"run_date"`
	Total     int           `json:"total"`
	Agents    []AgentLine   `json:"agents"`
	Sentinel  *SentinelLine `json:"sentinel,omitempty"`
	Overflow  int           `json:"overflow"`
	Transfers int           `json:"transfers"`
	Warnings  []string      `json:"warnings,omitempty"`
	Files     []FileInfo    `json:"files,omitempty"`
}

// AgentLine is one agent's share of the run
type AgentLine struct {
	Agent    string         `json:"agent"`
	Records  int            `json:"records"`
	Quota    int            `json:"quota"`
	BySource map[string]int `json:"by_source,omitempty"`
}

// SentinelLine counts the records held by the sentinel label
type SentinelLine struct {
	Label   string `json:"label"`
	Records int    `json:"records"`
}

// FileInfo describes a rendered artifact
type FileInfo struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Digest string `json:"digest"`
}

// NewReport extracts the distribution summary of res, agents in roster order
func NewReport(res *models.Result, artifacts ...Artifact) *Report {
	report := &Report{
		RunID:     res.RunID,
		RunDate:   res.RunDate.Format("2006-01-02"),
		Total:     len(res.Records),
		Overflow:  res.Overflow,
		Transfers: res.Transfers,
	}

	for _, agent := range res.Agents {
		line := AgentLine{
			Agent:   agent,
			Records: res.Counts[agent],
			Quota:   res.Quotas[agent],
		}
		if sources := res.BySource[agent]; len(sources) > 0 {
			line.BySource = make(map[string]int, len(sources))
			for src, n := range sources {
				line.BySource[string(src)] = n
			}
		}
		report.Agents = append(report.Agents, line)
	}

	if res.SentinelCount > 0 {
		report.Sentinel = &SentinelLine{Label: res.SentinelLabel, Records: res.SentinelCount}
	}
	for _, w := range res.Warnings {
		report.Warnings = append(report.Warnings, w.Error())
	}
	for _, a := range artifacts {
		report.Files = append(report.Files, FileInfo{Name: a.Name, Size: len(a.Data), Digest: a.Digest})
	}
	return report
}

// FormatText returns the text representation of the report
func FormatText(report *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("run %s %s : total=%d ; overflow=%d ; transfers=%d\n",
		report.RunID, report.RunDate, report.Total, report.Overflow, report.Transfers))

	for _, line := range report.Agents {
		sb.WriteString(formatAgentLine(line))
		sb.WriteString("\n")
	}
	if report.Sentinel != nil {
		sb.WriteString(fmt.Sprintf("  %s : records=%d\n", report.Sentinel.Label, report.Sentinel.Records))
	}

	for _, w := range report.Warnings {
		sb.WriteString(fmt.Sprintf("  ⚠️  WARNING: %s\n", w))
	}
	for _, f := range report.Files {
		sb.WriteString(fmt.Sprintf("  • %s (%d bytes, xxh3=%s)\n", f.Name, f.Size, f.Digest))
	}

	return sb.String()
}

// FormatJSON returns the JSON representation of the report
func FormatJSON(report *Report) string {
	jsonBytes, _ := json.MarshalIndent(report, "", "  ")
	return string(jsonBytes)
}

// formatAgentLine formats a single agent line for text output
func formatAgentLine(line AgentLine) string {
	if len(line.BySource) == 0 {
		return fmt.Sprintf("  %s : records=%d quota=%d ; none", line.Agent, line.Records, line.Quota)
	}

	sources := getSortedSources(line.BySource)
	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = fmt.Sprintf("%s=%d", src, line.BySource[src])
	}
	return fmt.Sprintf("  %s : records=%d quota=%d ; [%s]", line.Agent, line.Records, line.Quota, strings.Join(parts, ", "))
}

// getSortedSources returns sorted source names
func getSortedSources(bySource map[string]int) []string {
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
