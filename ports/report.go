package ports

import (
	"context"

	"symptomsim/domain/run"
)

// ReportWriter renders a finished simulation report to some destination
type ReportWriter interface {
	// Format names the output, e.g. "csv" or "xlsx"
	Format() string

	Write(ctx context.Context, report *run.Report) error
}
