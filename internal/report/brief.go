package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"insight/internal/domain"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05 UTC"

	maxSignalBullets   = 3
	maxPressureBullets = 3
	actionScanLimit    = 5
	volumeDriftPct     = 20.0
	deferralDriftMin   = 2
)

// RenderBrief renders the Markdown brief. Each narrative section uses the
// enhancement's items when present and non-empty, otherwise deterministic
// bullets derived from findings and deltas.
func RenderBrief(in Input) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# Weekly Strategic Brief")
	line("**Period:** %s to %s", in.WeekStart.UTC().Format(dateLayout), in.WeekEnd.UTC().Format(dateLayout))
	line("")

	line("## Executive Summary")
	line("- **Total Events:** %d (%+d, %+.1f%%)", in.Week.TotalEvents, in.Deltas.TotalEventsDelta, in.Deltas.TotalEventsPctChange)
	line("- **High Urgency:** %d events", in.Week.Urgency.High)
	line("- **Decisions Made:** %d", in.Week.Decisions.Made)
	line("- **Decisions Deferred:** %d", in.Week.Decisions.Deferred)
	line("- **Topics Identified:** %d", len(in.Topics))
	line("- **Critical Findings:** %d", len(highFindings(in.Findings)))
	line("")

	section(&b, "Signals", enhancementItems(in.Enhancement, func(e *domain.Enhancement) []string { return e.Signals }), signalBullets(in))
	section(&b, "Drift", enhancementItems(in.Enhancement, func(e *domain.Enhancement) []string { return e.Drift }), driftBullets(in))
	section(&b, "Decision Pressure", enhancementItems(in.Enhancement, func(e *domain.Enhancement) []string { return e.DecisionPressure }), pressureBullets(in))
	section(&b, "Recommended Actions", enhancementItems(in.Enhancement, func(e *domain.Enhancement) []string { return e.RecommendedActions }), actionBullets(in))

	line("---")
	b.WriteString("*Generated: " + in.GeneratedAt.UTC().Format(timestampLayout) + "*")
	if in.Enhancement != nil {
		b.WriteString("\n*Enhanced with LLM analysis*")
	}
	return b.String()
}

func section(b *strings.Builder, title string, preferred, fallback []string) {
	items := preferred
	if len(items) == 0 {
		items = fallback
	}
	b.WriteString("## " + title + "\n")
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString("\n")
}

func enhancementItems(e *domain.Enhancement, pick func(*domain.Enhancement) []string) []string {
	if e == nil {
		return nil
	}
	return pick(e)
}

func highFindings(findings []domain.Finding) []domain.Finding {
	var out []domain.Finding
	for _, f := range findings {
		if f.Severity == domain.SeverityHigh {
			out = append(out, f)
		}
	}
	return out
}

func signalBullets(in Input) []string {
	high := highFindings(in.Findings)
	if len(high) == 0 {
		return []string{"No critical signals detected"}
	}
	var out []string
	for _, f := range high[:min(len(high), maxSignalBullets)] {
		out = append(out, fmt.Sprintf("**%s:** %s", f.Type.Title(), f.Description))
	}
	return out
}

func driftBullets(in Input) []string {
	d := in.Deltas
	volumeShift := math.Abs(d.TotalEventsPctChange) > volumeDriftPct
	var out []string
	if volumeShift {
		out = append(out, fmt.Sprintf("Event volume shifted %+.1f%% from baseline", d.TotalEventsPctChange))
	}
	if d.UrgencyShifts.HighDelta > 0 {
		out = append(out, fmt.Sprintf("High-urgency events increased by %d", d.UrgencyShifts.HighDelta))
	}
	if d.DecisionShifts.DeferredDelta > deferralDriftMin {
		out = append(out, fmt.Sprintf("Decision deferrals up by %d", d.DecisionShifts.DeferredDelta))
	}
	if !volumeShift && d.UrgencyShifts.HighDelta <= 0 {
		out = append(out, "Activity patterns stable relative to baseline")
	}
	return out
}

func pressureBullets(in Input) []string {
	var out []string
	for _, f := range in.Findings {
		if f.Type != domain.FindingDecisionPressure && f.Type != domain.FindingAvoidedDecision {
			continue
		}
		out = append(out, f.Description)
		if len(out) == maxPressureBullets {
			break
		}
	}
	if len(out) == 0 {
		return []string{"No significant decision pressure detected"}
	}
	return out
}

func actionBullets(in Input) []string {
	var out []string
	for _, f := range in.Findings[:min(len(in.Findings), actionScanLimit)] {
		if f.Severity == domain.SeverityHigh {
			out = append(out, fmt.Sprintf("Address %s: %s", f.Type.Phrase(), f.Description))
		}
	}
	if len(out) == 0 {
		return []string{"Continue current trajectory, maintain monitoring"}
	}
	return out
}

// formatAverage prints an average the way it appears in the watchlist:
// at least one decimal, at most two.
func formatAverage(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
