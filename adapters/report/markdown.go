package report

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"symptomsim/domain/run"
	"symptomsim/internal/errors"
	"symptomsim/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

const title = "Symptom combinations among cases"

// MarkdownWriter renders the report as a Markdown document, or as a complete
// HTML page converted from that document.
type MarkdownWriter struct {
	out  io.Writer
	html bool
}

var _ ports.ReportWriter = (*MarkdownWriter)(nil)

// NewMarkdownWriter writes Markdown to out
func NewMarkdownWriter(out io.Writer) *MarkdownWriter {
	return &MarkdownWriter{out: out}
}

// NewHTMLWriter writes a standalone HTML page to out
func NewHTMLWriter(out io.Writer) *MarkdownWriter {
	return &MarkdownWriter{out: out, html: true}
}

// Format identifies the writer
func (m *MarkdownWriter) Format() string {
	if m.html {
		return FormatHTML
	}
	return FormatMarkdown
}

// Write renders the report
func (m *MarkdownWriter) Write(ctx context.Context, r *run.Report) error {
	if err := checkReport(r); err != nil {
		return err
	}
	doc := Markdown(r)
	if m.html {
		doc = ToHTML(doc)
	}
	if _, err := m.out.Write(doc); err != nil {
		return errors.ReportError(fmt.Sprintf("failed to write %s report", m.Format()), err)
	}
	return nil
}

// Markdown builds the Markdown document for a report
func Markdown(r *run.Report) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", title)
	for _, line := range header(r) {
		fmt.Fprintf(&buf, "- %s\n", line)
	}

	fmt.Fprintf(&buf, "\n## Combinations meeting criteria\n\n")
	markdownTable(&buf, r.Criteria)

	fmt.Fprintf(&buf, "\n## All combinations\n\n")
	markdownTable(&buf, r.Rows)

	if len(r.Profiles) > 0 {
		fmt.Fprintf(&buf, "\n## Indicator shape among cases\n\n")
		fmt.Fprintf(&buf, "| indicator | mean | sd | median | skewness | kurtosis | normality p | positive rate |\n")
		fmt.Fprintf(&buf, "|---|---:|---:|---:|---:|---:|---:|---:|\n")
		for _, p := range r.Profiles {
			fmt.Fprintf(&buf, "| %s | %.3f | %.3f | %.3f | %.3f | %.3f | %.4f | %.3f |\n",
				p.Name, p.Mean, p.SD, p.Median, p.Skewness, p.Kurtosis, p.NormalityP, p.PositiveRate)
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(&buf, "\n## Skipped replicates\n\n")
		fmt.Fprintf(&buf, "| replicate | code | combination | message |\n")
		fmt.Fprintf(&buf, "|---:|---|---|---|\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&buf, "| %d | %s | %s | %s |\n", f.Replicate, f.Code, f.Combination, f.Message)
		}
	}
	return buf.Bytes()
}

func markdownTable(buf *bytes.Buffer, rows []run.CombinationRow) {
	fmt.Fprintf(buf, "| %s | %s | symptoms | %s | %s | observed | %s |\n",
		run.ColumnRank, run.ColumnCombination, run.ColumnMeanProbability, run.ColumnSDProbability, run.ColumnMeetsCriteria)
	fmt.Fprintf(buf, "|---:|---|---|---:|---:|---:|---|\n")
	for _, row := range rows {
		fmt.Fprintf(buf, "| %d | `%s` | %s | %s | %s | %.4f | %t |\n",
			row.Rank, row.Combination, row.Description,
			formatProbability(row.MeanProbability), formatProbability(row.SDProbability),
			row.ObservedFrequency, row.MeetsCriteria)
	}
}

// ToHTML converts a Markdown document to a complete HTML page
func ToHTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: title,
	})
	return markdown.ToHTML(md, p, renderer)
}
