// Package report renders simulation reports as text, CSV, Markdown, HTML and
// bar charts.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"symptomsim/adapters/excel"
	"symptomsim/domain/run"
	"symptomsim/internal/errors"
	"symptomsim/ports"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format names
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatPNG      = "png"
	FormatSVG      = "svg"
	FormatPDF      = "pdf"
	FormatXLSX     = "xlsx"
)

// Formats lists every supported format
var Formats = []string{FormatText, FormatCSV, FormatMarkdown, FormatHTML, FormatXLSX, FormatPNG, FormatSVG, FormatPDF}

// IsFormat reports whether format is supported
func IsFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// New returns the writer for format. all selects the full table for text
// output; the other formats always carry every combination.
func New(format string, out io.Writer, all bool) (ports.ReportWriter, error) {
	switch format {
	case FormatText:
		return NewTextWriter(out, all), nil
	case FormatCSV:
		return NewCSVWriter(out), nil
	case FormatMarkdown:
		return NewMarkdownWriter(out), nil
	case FormatHTML:
		return NewHTMLWriter(out), nil
	case FormatXLSX:
		return excel.NewWorkbookWriter(out), nil
	case FormatPNG, FormatSVG, FormatPDF:
		cw, err := NewChartWriter(out, format)
		if err != nil {
			return nil, err
		}
		return cw, nil
	default:
		return nil, errors.ConfigInvalidf("unknown report format %q", format)
	}
}

// Extension returns the file extension used for a format
func Extension(format string) string {
	switch format {
	case FormatText:
		return ".txt"
	case FormatMarkdown:
		return ".md"
	default:
		return "." + format
	}
}

// printer groups thousands in counts shown to people
var printer = message.NewPrinter(language.English)

func formatProbability(p float64) string {
	return strconv.FormatFloat(p, 'f', 6, 64)
}

// header returns the lines describing the run, shared by text and Markdown
func header(r *run.Report) []string {
	m := r.Manifest
	lines := []string{
		fmt.Sprintf("run %s (fingerprint %s)", m.RunID, m.Fingerprint.Short()),
		printer.Sprintf("population %d, replicates %d (%d succeeded, %d skipped), seed %d",
			m.Population, m.Replicates, r.Succeeded, len(r.Failures), m.Seed),
		fmt.Sprintf("rule %s at threshold %.2f, estimator %s", m.Rule, m.Threshold, m.Estimator),
		printer.Sprintf("mean cases per replicate %.1f", r.MeanCases),
	}
	if len(r.IndicatorNames) > 0 {
		lines = append(lines, "digit order "+strings.Join(r.IndicatorNames, " "))
	}
	return lines
}

func checkReport(r *run.Report) error {
	if r == nil || r.Manifest == nil {
		return errors.ReportError("report has no manifest", nil)
	}
	if len(r.Rows) == 0 {
		return errors.ReportError("report has no rows", nil)
	}
	return nil
}

// errWriter remembers the first write error so renderers can write freely
// and check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
