package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/corridor.report/internal/aggregate"
	"github.com/banshee-data/corridor.report/internal/sim"
	"github.com/banshee-data/corridor.report/internal/units"
)

// AssetsHost serves the echarts scripts. Empty uses the go-echarts default CDN.
var AssetsHost = ""

// RunInfo heads a rendered page.
type RunInfo struct {
	ID      string
	Comment string
	Horizon int
}

// noValue is how echarts is told a point is missing.
const noValue = "-"

func chartValue(v float64) interface{} {
	if v == units.NoObservation {
		return noValue
	}
	return v
}

func initOpts(title string) charts.GlobalOpts {
	init := opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}
	if AssetsHost != "" {
		init.AssetsHost = AssetsHost
	}
	return charts.WithInitializationOpts(init)
}

// OverallBar charts the whole-run value of every display column of res.
func OverallBar(info RunInfo, l *sim.Layout, res aggregate.Result) (*charts.Bar, error) {
	values, err := DisplayRow(l, res.Kind, res.Overall)
	if err != nil {
		return nil, err
	}
	data := make([]opts.BarData, len(values))
	for i, v := range values {
		data[i] = opts.BarData{Value: chartValue(v)}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(info.ID),
		charts.WithTitleOpts(opts.Title{
			Title:    Title(res.Kind) + " (overall)",
			Subtitle: fmt.Sprintf("run=%s horizon=%ds unit=%s", info.ID, info.Horizon, res.Kind.Unit()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(Columns(l, res.Kind)).
		AddSeries(res.Kind.String(), data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(len(values) <= 16), Position: "top"}),
		)
	return bar, nil
}

// HourlyLine charts the hourly values of res, one series per display column.
func HourlyLine(info RunInfo, l *sim.Layout, res aggregate.Result) (*charts.Line, error) {
	hours := make([]string, len(res.Hourly))
	wide := make([][]float64, len(res.Hourly))
	for h, row := range res.Hourly {
		hours[h] = strconv.Itoa(h + 1)
		w, err := DisplayRow(l, res.Kind, row)
		if err != nil {
			return nil, err
		}
		wide[h] = w
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		initOpts(info.ID),
		charts.WithTitleOpts(opts.Title{Title: Title(res.Kind) + " (hourly)", Subtitle: info.Comment}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Hour", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: res.Kind.Unit()}),
	)
	line.SetXAxis(hours)
	for col, label := range Columns(l, res.Kind) {
		data := make([]opts.LineData, len(wide))
		for h, row := range wide {
			data[h] = opts.LineData{Value: chartValue(row[col])}
		}
		line.AddSeries(label, data)
	}
	return line, nil
}

// RenderHTML writes a page with an overall bar chart and an hourly line chart
// for every kind in sum that has columns.
func RenderHTML(w io.Writer, info RunInfo, l *sim.Layout, sum *aggregate.Summary) error {
	page := components.NewPage()
	page.PageTitle = "Corridor run " + info.ID
	if AssetsHost != "" {
		page.SetAssetsHost(AssetsHost)
	}
	for _, res := range sum.Results {
		if len(Columns(l, res.Kind)) == 0 {
			continue
		}
		bar, err := OverallBar(info, l, res)
		if err != nil {
			return fmt.Errorf("%s overall: %w", res.Kind, err)
		}
		line, err := HourlyLine(info, l, res)
		if err != nil {
			return fmt.Errorf("%s hourly: %w", res.Kind, err)
		}
		page.AddCharts(bar, line)
	}
	return page.Render(w)
}
