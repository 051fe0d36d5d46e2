package export

import (
	"fmt"
	"strings"
	"time"

	"trialdesk/internal/domain"
	"trialdesk/internal/schedule"
)

var severityDefinitions = []struct {
	Severity domain.Severity
	Text     string
}{
	{domain.SeverityHigh, "Variance greater than 365 days"},
	{domain.SeverityMedium, "Variance between 90 and 365 days"},
	{domain.SeverityLow, "Variance less than 90 days"},
	{domain.SeverityNegative, "Negative variance indicating early completion"},
	{domain.SeverityNone, "No variance between planned and actual dates"},
}

// BuildSummaryMarkdown renders the comparison summary as a markdown report.
func BuildSummaryMarkdown(s schedule.Summary, reportDate time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# LN vs CLB Dates Comparison - %s\n\n", reportDate.Format("2006-01-02"))

	b.WriteString("### Summary of Variance\n")
	fmt.Fprintf(&b, "- **Total Records:** %d\n", s.Variance.Total)
	fmt.Fprintf(&b, "- **Positive Variance:** %d\n", s.Variance.Positive)
	fmt.Fprintf(&b, "- **Negative Variance:** %d\n\n", s.Variance.Negative)

	b.WriteString("### Severity-Wise Summary\n")
	for _, sev := range domain.Severities {
		fmt.Fprintf(&b, "- **%s:** %d\n", sev.Label(), s.Severities[sev])
	}
	b.WriteString("\n")

	b.WriteString("### Missing Dates\n")
	for _, g := range s.Gaps {
		fmt.Fprintf(&b, "- **%s:** %d (%.1f%%)\n", g.Label, g.Count, g.Percent)
	}
	b.WriteString("\n")

	b.WriteString("### Severity Definitions\n")
	for _, d := range severityDefinitions {
		fmt.Fprintf(&b, "- **%s:** %s\n", d.Severity.Label(), d.Text)
	}
	return b.String()
}

// BuildSlackSummary is the short plain-text form posted to chat.
func BuildSlackSummary(s schedule.Summary) string {
	var parts []string
	for _, sev := range domain.Severities {
		if n := s.Severities[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", sev.Label(), n))
		}
	}
	line := fmt.Sprintf("LN vs CLB comparison: %d rows, %d with positive variance, %d with negative variance.",
		s.Variance.Total, s.Variance.Positive, s.Variance.Negative)
	if len(parts) > 0 {
		line += "\n" + strings.Join(parts, " | ")
	}
	return line
}

func WriteSummaryReport(outputDir string, s schedule.Summary, reportDate time.Time) (string, error) {
	name := fmt.Sprintf("comparison_summary_%s.md", reportDate.Format("20060102"))
	return WriteFile(outputDir, name, []byte(BuildSummaryMarkdown(s, reportDate)))
}
