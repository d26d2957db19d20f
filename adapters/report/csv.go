package report

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"symptomsim/domain/run"
	"symptomsim/internal/errors"
	"symptomsim/ports"
)

// CSVWriter writes the contract columns, one row per combination in rank order
type CSVWriter struct {
	out          io.Writer
	criteriaOnly bool
}

var _ ports.ReportWriter = (*CSVWriter)(nil)

// NewCSVWriter writes every combination to out
func NewCSVWriter(out io.Writer) *CSVWriter {
	return &CSVWriter{out: out}
}

// NewCriteriaCSVWriter writes only the combinations that meet the criteria
func NewCriteriaCSVWriter(out io.Writer) *CSVWriter {
	return &CSVWriter{out: out, criteriaOnly: true}
}

// Format identifies the writer
func (c *CSVWriter) Format() string {
	return FormatCSV
}

// Write renders the report
func (c *CSVWriter) Write(ctx context.Context, r *run.Report) error {
	if err := checkReport(r); err != nil {
		return err
	}
	rows := r.Rows
	if c.criteriaOnly {
		rows = r.Criteria
	}

	w := csv.NewWriter(c.out)
	if err := w.Write(run.Columns); err != nil {
		return errors.ReportError("failed to write csv header", err)
	}
	for _, row := range rows {
		record := []string{
			row.Combination,
			formatProbability(row.MeanProbability),
			formatProbability(row.SDProbability),
			strconv.FormatBool(row.MeetsCriteria),
			strconv.Itoa(row.Rank),
		}
		if err := w.Write(record); err != nil {
			return errors.ReportError("failed to write csv row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.ReportError("failed to flush csv", err)
	}
	return nil
}
