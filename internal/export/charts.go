package export

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"trialdesk/internal/domain"
	"trialdesk/internal/schedule"
)

const ChartsFile = "comparison_charts.html"

func chartInit(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "800px", Height: "600px"})
}

func pieLabels() charts.SeriesOpts {
	return charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)})
}

// VariancePie shows total rows against rows with any positive or negative
// variance.
func VariancePie(s schedule.Summary) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		chartInit("Summary of Variance"),
		charts.WithTitleOpts(opts.Title{Title: "Summary of Variance"}),
	)
	pie.AddSeries("Variance", []opts.PieData{
		{Name: "Total Records", Value: s.Variance.Total},
		{Name: "Positive Variance", Value: s.Variance.Positive},
		{Name: "Negative Variance", Value: s.Variance.Negative},
	}).SetSeriesOptions(pieLabels())
	return pie
}

// SeverityPie shows row counts per severity tier. Empty tiers are left out.
func SeverityPie(s schedule.Summary) *charts.Pie {
	var data []opts.PieData
	for _, sev := range domain.Severities {
		if n := s.Severities[sev]; n > 0 {
			data = append(data, opts.PieData{Name: sev.Label(), Value: n})
		}
	}
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		chartInit("Severity-Wise Summary"),
		charts.WithTitleOpts(opts.Title{Title: "Severity-Wise Summary"}),
	)
	pie.AddSeries("Severity", data).SetSeriesOptions(pieLabels())
	return pie
}

// GapBar shows the six gap-case counts with their share of all rows.
func GapBar(s schedule.Summary) *charts.Bar {
	labels := make([]string, 0, len(s.Gaps))
	data := make([]opts.BarData, 0, len(s.Gaps))
	for _, g := range s.Gaps {
		labels = append(labels, fmt.Sprintf("%s (%.1f%%)", g.Label, g.Percent))
		data = append(data, opts.BarData{Name: g.Label, Value: g.Count})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		chartInit("Counts and Percentages of Missing Dates"),
		charts.WithTitleOpts(opts.Title{Title: "Counts and Percentages of Missing Dates"}),
	)
	bar.SetXAxis(labels).AddSeries("Rows", data).SetSeriesOptions(pieLabels())
	return bar
}

// RenderCharts renders the three comparison charts as one HTML page.
func RenderCharts(s schedule.Summary) ([]byte, error) {
	page := components.NewPage()
	page.PageTitle = "LN vs CLB Dates Comparison"
	page.AddCharts(VariancePie(s), SeverityPie(s), GapBar(s))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("rendering charts: %w", err)
	}
	return buf.Bytes(), nil
}

func WriteCharts(outputDir string, s schedule.Summary) (string, error) {
	html, err := RenderCharts(s)
	if err != nil {
		return "", err
	}
	return WriteFile(outputDir, ChartsFile, html)
}
