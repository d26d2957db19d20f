package report

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"strconv"

	"symptomsim/domain/run"
	"symptomsim/internal/errors"
	"symptomsim/ports"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ChartWriter draws the criteria view as a bar chart of mean probability with
// one standard deviation error bars. Bars are in rank order and labelled by
// rank.
type ChartWriter struct {
	out    io.Writer
	format string
	width  vg.Length
	height vg.Length
}

var _ ports.ReportWriter = (*ChartWriter)(nil)

// NewChartWriter draws a png, svg or pdf chart to out
func NewChartWriter(out io.Writer, format string) (*ChartWriter, error) {
	switch format {
	case FormatPNG, FormatSVG, FormatPDF:
	default:
		return nil, errors.ConfigInvalidf("unsupported chart format %q", format)
	}
	return &ChartWriter{out: out, format: format, width: 8 * vg.Inch, height: 4 * vg.Inch}, nil
}

// Format identifies the writer
func (c *ChartWriter) Format() string {
	return c.format
}

// errorPoints carries bar heights and their symmetric error bars
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// Plot builds the chart for a report
func Plot(r *run.Report) (*plot.Plot, error) {
	rows := r.Criteria
	if len(rows) == 0 {
		return nil, errors.ReportError("no combination meets the diagnostic criteria", nil)
	}

	values := make(plotter.Values, len(rows))
	pts := errorPoints{
		XYs:     make(plotter.XYs, len(rows)),
		YErrors: make(plotter.YErrors, len(rows)),
	}
	labels := make([]string, len(rows))
	for i, row := range rows {
		values[i] = row.MeanProbability
		pts.XYs[i].X = float64(i)
		pts.XYs[i].Y = row.MeanProbability
		pts.YErrors[i].Low = row.SDProbability
		pts.YErrors[i].High = row.SDProbability
		labels[i] = strconv.Itoa(row.Rank)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Combinations meeting %s criteria", r.Manifest.Rule)
	p.X.Label.Text = "Rank"
	p.Y.Label.Text = "Mean probability"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(10))
	if err != nil {
		return nil, errors.ReportError("failed to build bar chart", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 70, G: 110, B: 160, A: 255}

	errBars, err := plotter.NewYErrorBars(pts)
	if err != nil {
		return nil, errors.ReportError("failed to build error bars", err)
	}

	p.Add(bars, errBars)
	p.NominalX(labels...)
	return p, nil
}

// Write renders the chart
func (c *ChartWriter) Write(ctx context.Context, r *run.Report) error {
	if err := checkReport(r); err != nil {
		return err
	}
	p, err := Plot(r)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(c.width, c.height, c.format)
	if err != nil {
		return errors.ReportError("failed to render chart", err)
	}
	if _, err := wt.WriteTo(c.out); err != nil {
		return errors.ReportError("failed to write chart", err)
	}
	return nil
}
