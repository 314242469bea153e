package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Timeline renders an HTML page with one row per track showing its
// segments over video time, followed by a bar chart of boxes per track.
func Timeline(w io.Writer, vid string, summaries []TrackSummary) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracks " + vid, Width: "100%", Height: fmt.Sprintf("%dpx", 160+40*len(summaries))}),
		charts.WithTitleOpts(opts.Title{Title: "Track segments", Subtitle: fmt.Sprintf("video=%s tracks=%d", vid, len(summaries))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Track", Min: -1, Max: len(summaries)}),
	)

	for row, s := range summaries {
		for _, sp := range s.Spans {
			data := []opts.LineData{
				{Value: []interface{}{sp.Start, row}, Name: s.Root},
				{Value: []interface{}{sp.End, row}, Name: s.Root},
			}
			line.AddSeries(s.Root, data,
				charts.WithLineStyleOpts(opts.LineStyle{Width: 8}),
				charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(row, len(summaries))}),
			)
		}
	}

	names := make([]string, len(summaries))
	counts := make([]opts.BarData, len(summaries))
	for i, s := range summaries {
		names[i] = s.Root
		counts[i] = opts.BarData{Value: s.Boxes}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Boxes per track"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("boxes", counts,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	page := components.NewPage()
	page.PageTitle = "Tracks " + vid
	page.AddCharts(line, bar)
	return page.Render(w)
}
