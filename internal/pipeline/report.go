package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/enrich"
	"github.com/PolloDK/FK01-Encuestas/internal/features"
	"github.com/PolloDK/FK01-Encuestas/internal/frame"
	"github.com/PolloDK/FK01-Encuestas/internal/scoring"
)

// Report is everything one run did. It is stored as the run's JSON summary.
type Report struct {
	RunID       string                 `json:"run_id"`
	StartedAt   time.Time              `json:"started_at"`
	Duration    time.Duration          `json:"duration_ns"`
	Status      string                 `json:"status"`
	Stages      []StageReport          `json:"stages"`
	Predictions int                    `json:"predictions"`
	Latest      *scoring.PredictionRow `json:"latest,omitempty"`
	Change      *scoring.PredictionRow `json:"change,omitempty"` // latest minus the previous row
}

// Stage returns the named stage's report, if it ran.
func (r *Report) Stage(name string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}

// RenderMarkdown renders the run_summary.md artifact.
func RenderMarkdown(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Pipeline run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", FormatDurationShort(r.Duration.Milliseconds()))
	fmt.Fprintf(&b, "- Predictions: %d\n\n", r.Predictions)

	b.WriteString("## Stages\n\n")
	b.WriteString("| Stage | Status | Duration | Notes |\n")
	b.WriteString("|-------|--------|----------|-------|\n")
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			s.Name, s.Status, FormatDurationShort(s.Duration.Milliseconds()), stageNotes(s))
	}

	b.WriteString("\n## Latest prediction\n\n")
	if r.Latest == nil {
		b.WriteString("No predictions were produced.\n")
		return b.String()
	}
	var dA, dD *float64
	if r.Change != nil {
		dA, dD = r.Change.Approval, r.Change.Disapproval
	}
	fmt.Fprintf(&b, "Date: %s\n\n", r.Latest.Date.Format(frame.DateLayout))
	b.WriteString("| Target | Value | Change vs previous day |\n")
	b.WriteString("|--------|-------|------------------------|\n")
	fmt.Fprintf(&b, "| approval | %s | %s |\n", formatShare(r.Latest.Approval), formatDelta(dA))
	fmt.Fprintf(&b, "| disapproval | %s | %s |\n", formatShare(r.Latest.Disapproval), formatDelta(dD))
	return b.String()
}

func stageNotes(s StageReport) string {
	switch {
	case s.Error != "":
		return TruncateMiddle(s.Error, 80)
	case s.Reason != "":
		return s.Reason
	}
	switch d := s.Detail.(type) {
	case enrich.Report:
		return fmt.Sprintf("%d enriched, %d rejected, %d substituted in %d chunk(s)",
			d.Enriched, d.Rejected, d.SubstitutedSentiment+d.SubstitutedEmbedding, d.Chunks)
	case features.StageReport:
		return fmt.Sprintf("%d records over %d days (%d filled, %d labeled)",
			d.Records, d.Days, d.FilledDays, d.LabeledDays)
	case []scoring.PathReport:
		parts := make([]string, len(d))
		for i, pr := range d {
			parts[i] = fmt.Sprintf("%s %d/%d", pr.Target, pr.Scored, pr.Eligible)
			if pr.Error != "" {
				parts[i] = pr.Target + " failed: " + TruncateMiddle(pr.Error, 40)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]int:
		return fmt.Sprintf("%d days", d["days"])
	}
	return ""
}

// PrintSummary writes the end-of-run summary to w, as indented JSON when asJSON.
func PrintSummary(w io.Writer, r *Report, asJSON bool) {
	if asJSON {
		data, _ := json.MarshalIndent(r, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	fmt.Fprintf(w, "\n[run] === Summary ===\n")
	fmt.Fprintf(w, "  Run:              %s\n", r.RunID)
	fmt.Fprintf(w, "  Status:           %s\n", r.Status)
	fmt.Fprintf(w, "  Predictions:      %d\n", r.Predictions)
	if r.Latest != nil {
		var dA *float64
		if r.Change != nil {
			dA = r.Change.Approval
		}
		fmt.Fprintf(w, "  Latest approval:  %s (%s) on %s\n",
			formatShare(r.Latest.Approval), formatDelta(dA), r.Latest.Date.Format(frame.DateLayout))
	}
	fmt.Fprintf(w, "  Total duration:   %s\n", FormatDurationShort(r.Duration.Milliseconds()))

	fmt.Fprintf(w, "\n  Stages:\n")
	for i, s := range r.Stages {
		fmt.Fprintf(w, "    %d. [%s] %s %s -- %s\n",
			i+1, strings.ToUpper(string(s.Status)), s.Name,
			FormatDurationShort(s.Duration.Milliseconds()), stageNotes(s))
	}
}
