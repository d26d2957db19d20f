package report

import (
	"context"
	"io"
	"text/tabwriter"

	"symptomsim/domain/run"
	"symptomsim/internal/errors"
	"symptomsim/ports"

	"gonum.org/v1/gonum/floats"
)

// TextWriter prints aligned tables for a terminal
type TextWriter struct {
	out io.Writer
	all bool
}

var _ ports.ReportWriter = (*TextWriter)(nil)

// NewTextWriter prints the criteria view; with all set it also prints every
// combination.
func NewTextWriter(out io.Writer, all bool) *TextWriter {
	return &TextWriter{out: out, all: all}
}

// Format identifies the writer
func (t *TextWriter) Format() string {
	return FormatText
}

// Write renders the report
func (t *TextWriter) Write(ctx context.Context, r *run.Report) error {
	if err := checkReport(r); err != nil {
		return err
	}

	ew := &errWriter{w: t.out}
	ew.printf("Symptom combinations among cases\n")
	for _, line := range header(r) {
		ew.printf("  %s\n", line)
	}

	ew.printf("\nCombinations meeting criteria (%d of %d)\n", len(r.Criteria), len(r.Rows))
	t.table(ew, r.Criteria)

	if t.all {
		means := make([]float64, len(r.Rows))
		for i, row := range r.Rows {
			means[i] = row.MeanProbability
		}
		ew.printf("\nAll combinations (total probability %.4f)\n", floats.Sum(means))
		t.table(ew, r.Rows)
	}

	if len(r.Profiles) > 0 {
		ew.printf("\nIndicator shape among cases\n")
		tw := tabwriter.NewWriter(ew.w, 0, 0, 2, ' ', tabwriter.AlignRight)
		ew.w = tw
		ew.printf("INDICATOR\tMEAN\tSD\tMEDIAN\tSKEW\tKURTOSIS\tNORMALITY P\tPOSITIVE\t\n")
		for _, p := range r.Profiles {
			ew.printf("%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.4f\t%.3f\t\n",
				p.Name, p.Mean, p.SD, p.Median, p.Skewness, p.Kurtosis, p.NormalityP, p.PositiveRate)
		}
		if err := tw.Flush(); err != nil && ew.err == nil {
			ew.err = err
		}
		ew.w = t.out
	}

	if len(r.Failures) > 0 {
		ew.printf("\nSkipped replicates\n")
		tw := tabwriter.NewWriter(ew.w, 0, 0, 2, ' ', 0)
		ew.w = tw
		ew.printf("REPLICATE\tCODE\tCOMBINATION\tMESSAGE\n")
		for _, f := range r.Failures {
			combination := f.Combination
			if combination == "" {
				combination = "-"
			}
			ew.printf("%d\t%s\t%s\t%s\n", f.Replicate, f.Code, combination, f.Message)
		}
		if err := tw.Flush(); err != nil && ew.err == nil {
			ew.err = err
		}
		ew.w = t.out
	}

	if ew.err != nil {
		return errors.ReportError("failed to write text report", ew.err)
	}
	return nil
}

func (t *TextWriter) table(ew *errWriter, rows []run.CombinationRow) {
	if ew.err != nil {
		return
	}
	tw := tabwriter.NewWriter(ew.w, 0, 0, 2, ' ', tabwriter.AlignRight)
	out := ew.w
	ew.w = tw
	ew.printf("RANK\tCOMBINATION\tSYMPTOMS\tMEAN\tSD\tOBSERVED\tCRITERIA\t\n")
	for _, row := range rows {
		criteria := "no"
		if row.MeetsCriteria {
			criteria = "yes"
		}
		ew.printf("%d\t%s\t%s\t%.4f\t%.4f\t%.4f\t%s\t\n",
			row.Rank, row.Combination, row.Description,
			row.MeanProbability, row.SDProbability, row.ObservedFrequency, criteria)
	}
	if err := tw.Flush(); err != nil && ew.err == nil {
		ew.err = err
	}
	ew.w = out
}
