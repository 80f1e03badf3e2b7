package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-members/models"
)

// FieldFill is one column's fill count.
type FieldFill struct {
	Name   string
	Filled int
}

// Report summarizes data quality over the exported records.
type Report struct {
	Rows        int
	TotalCells  int
	FilledCells int
	Fields      []FieldFill
}

// BuildReport computes total and per-column fill rates, in column order.
func BuildReport(members []*models.Member) *Report {
	report := &Report{
		Rows:       len(members),
		TotalCells: len(members) * len(models.Fields),
		Fields:     make([]FieldFill, len(models.Fields)),
	}
	for i, name := range models.Fields {
		report.Fields[i].Name = name
	}

	for _, member := range members {
		for i, value := range member.Row() {
			if value != models.Placeholder {
				report.Fields[i].Filled++
				report.FilledCells++
			}
		}
	}
	return report
}

// FillRate is the overall share of populated cells, in percent.
func (r *Report) FillRate() float64 {
	if r.TotalCells == 0 {
		return 0
	}
	return float64(r.FilledCells) / float64(r.TotalCells) * 100
}

// Log emits the data quality summary.
func (r *Report) Log() {
	slog.Info("data quality summary",
		slog.Int("total_cells", r.TotalCells),
		slog.Int("filled_cells", r.FilledCells),
		slog.String("fill_rate", fmt.Sprintf("%.1f%%", r.FillRate())),
	)
	for _, field := range r.Fields {
		rate := 0.0
		if r.Rows > 0 {
			rate = float64(field.Filled) / float64(r.Rows) * 100
		}
		slog.Info("field fill rate",
			slog.String("field", field.Name),
			slog.String("filled", fmt.Sprintf("%d/%d", field.Filled, r.Rows)),
			slog.String("rate", fmt.Sprintf("%.1f%%", rate)),
		)
	}
}
