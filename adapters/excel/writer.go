package excel

import (
	"context"
	"io"

	"symptomsim/domain/run"
	"symptomsim/internal/errors"
	"symptomsim/ports"

	"github.com/xuri/excelize/v2"
)

// Sheet names in the workbook
const (
	SheetCombinations = "combinations"
	SheetCriteria     = "criteria"
	SheetFailures     = "failures"
	SheetIndicators   = "indicators"
	SheetManifest     = "manifest"
)

// WorkbookWriter writes a report as an xlsx workbook: every combination, the
// criteria view, skipped replicates, indicator profiles and the run manifest
// each get a sheet.
type WorkbookWriter struct {
	out io.Writer
}

var _ ports.ReportWriter = (*WorkbookWriter)(nil)

// NewWorkbookWriter writes the workbook to out
func NewWorkbookWriter(out io.Writer) *WorkbookWriter {
	return &WorkbookWriter{out: out}
}

// Format identifies the writer
func (w *WorkbookWriter) Format() string {
	return "xlsx"
}

// Write renders the report
func (w *WorkbookWriter) Write(ctx context.Context, r *run.Report) error {
	if r == nil || r.Manifest == nil {
		return errors.ReportError("report has no manifest", nil)
	}

	f := excelize.NewFile()
	defer f.Close()

	// The default sheet becomes the full table.
	if err := f.SetSheetName("Sheet1", SheetCombinations); err != nil {
		return errors.ReportError("failed to name sheet", err)
	}
	for _, name := range []string{SheetCriteria, SheetFailures, SheetIndicators, SheetManifest} {
		if _, err := f.NewSheet(name); err != nil {
			return errors.ReportError("failed to add sheet "+name, err)
		}
	}

	header := append(append([]interface{}{}, toCells(run.Columns)...), "description", "observed_frequency")
	if err := writeRows(f, SheetCombinations, header, combinationCells(r.Rows)); err != nil {
		return err
	}
	if err := writeRows(f, SheetCriteria, header, combinationCells(r.Criteria)); err != nil {
		return err
	}

	failures := make([][]interface{}, len(r.Failures))
	for i, fl := range r.Failures {
		failures[i] = []interface{}{fl.Replicate, fl.Code, fl.Combination, fl.Message}
	}
	if err := writeRows(f, SheetFailures,
		[]interface{}{"replicate", "code", "combination", "message"}, failures); err != nil {
		return err
	}

	profiles := make([][]interface{}, len(r.Profiles))
	for i, p := range r.Profiles {
		profiles[i] = []interface{}{p.Name, p.Mean, p.SD, p.Median, p.Skewness, p.Kurtosis, p.NormalityP, p.PositiveRate}
	}
	if err := writeRows(f, SheetIndicators,
		[]interface{}{"indicator", "mean", "sd", "median", "skewness", "kurtosis", "normality_p", "positive_rate"},
		profiles); err != nil {
		return err
	}

	m := r.Manifest
	manifest := [][]interface{}{
		{"run_id", m.RunID.String()},
		{"seed", m.Seed},
		{"population", m.Population},
		{"replicates", m.Replicates},
		{"succeeded", r.Succeeded},
		{"threshold", m.Threshold},
		{"rule", m.Rule.String()},
		{"estimator", m.Estimator},
		{"mean_cases", r.MeanCases},
		{"config_hash", m.ConfigHash.String()},
		{"fingerprint", m.Fingerprint.String()},
		{"code_version", m.CodeVersion},
		{"created_at", m.CreatedAt.String()},
	}
	for _, ind := range m.Indicators {
		manifest = append(manifest, []interface{}{"indicator " + ind.Name, ind.Loading, ind.NoiseSD})
	}
	if err := writeRows(f, SheetManifest, []interface{}{"field", "value"}, manifest); err != nil {
		return err
	}

	if _, err := f.WriteTo(w.out); err != nil {
		return errors.ReportError("failed to write workbook", err)
	}
	return nil
}

func combinationCells(rows []run.CombinationRow) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		out[i] = []interface{}{
			row.Combination,
			row.MeanProbability,
			row.SDProbability,
			row.MeetsCriteria,
			row.Rank,
			row.Description,
			row.ObservedFrequency,
		}
	}
	return out
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// writeRows fills sheet with a header row followed by rows
func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	for c, h := range header {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return errors.ReportError("failed to write header on "+sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return errors.ReportError("failed to write cell on "+sheet, err)
			}
		}
	}
	return nil
}
