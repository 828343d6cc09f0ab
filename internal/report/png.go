package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/corridor.report/internal/aggregate"
	"github.com/banshee-data/corridor.report/internal/sim"
	"github.com/banshee-data/corridor.report/internal/units"
)

// maxPlotLines caps the legend; wider series plot their first columns only.
const maxPlotLines = 24

// HourlyPlot builds a line plot of res with one line per display column.
// Hours without an observation leave a gap in their line.
func HourlyPlot(l *sim.Layout, res aggregate.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = Title(res.Kind)
	p.X.Label.Text = "Hour"
	p.Y.Label.Text = res.Kind.Unit()
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	rows := make([][]float64, len(res.Hourly))
	for h, row := range res.Hourly {
		wide, err := DisplayRow(l, res.Kind, row)
		if err != nil {
			return nil, fmt.Errorf("%s hour %d: %w", res.Kind, h+1, err)
		}
		rows[h] = wide
	}
	labels := Columns(l, res.Kind)
	width := len(labels)
	if width > maxPlotLines {
		width = maxPlotLines
	}
	colors := generateColors(width)

	for col := 0; col < width; col++ {
		var segment plotter.XYs
		flush := func(first bool) error {
			if len(segment) == 0 {
				return nil
			}
			line, err := plotter.NewLine(segment)
			if err != nil {
				return err
			}
			line.Color = colors[col]
			line.Width = vg.Points(1)
			p.Add(line)
			if first {
				p.Legend.Add(labels[col], line)
			}
			segment = nil
			return nil
		}
		legend := true
		for h, row := range rows {
			if col >= len(row) || row[col] == units.NoObservation {
				if len(segment) > 0 {
					if err := flush(legend); err != nil {
						return nil, err
					}
					legend = false
				}
				continue
			}
			segment = append(segment, plotter.XY{X: float64(h + 1), Y: row[col]})
		}
		if err := flush(legend); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WritePNG renders the hourly plot of res as a PNG image.
func WritePNG(w io.Writer, l *sim.Layout, res aggregate.Result) error {
	p, err := HourlyPlot(l, res)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNGs writes one <kind>.png per result into dir and returns the paths.
func SavePNGs(dir string, l *sim.Layout, sum *aggregate.Summary) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, res := range sum.Results {
		if len(Columns(l, res.Kind)) == 0 {
			continue
		}
		p, err := HourlyPlot(l, res)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, res.Kind.String()+".png")
		if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
