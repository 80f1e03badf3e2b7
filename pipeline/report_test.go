package pipeline

import (
	"testing"

	"github.com/aluiziolira/go-scrape-members/models"
)

func TestBuildReport(t *testing.T) {
	full := testMember("http://example.test/members/acme") // 4 populated fields
	sparse := models.NewMember()                           // all placeholder

	report := BuildReport([]*models.Member{full, sparse})

	if report.Rows != 2 {
		t.Fatalf("rows = %d, want 2", report.Rows)
	}
	if want := 2 * len(models.Fields); report.TotalCells != want {
		t.Fatalf("total cells = %d, want %d", report.TotalCells, want)
	}
	if report.FilledCells != 4 {
		t.Fatalf("filled cells = %d, want 4", report.FilledCells)
	}

	byName := make(map[string]int, len(report.Fields))
	for _, field := range report.Fields {
		byName[field.Name] = field.Filled
	}
	if byName["Organization Name"] != 1 {
		t.Fatalf("organization fill = %d, want 1", byName["Organization Name"])
	}
	if byName["Fax"] != 0 {
		t.Fatalf("fax fill = %d, want 0", byName["Fax"])
	}

	if rate := report.FillRate(); rate <= 0 || rate >= 100 {
		t.Fatalf("fill rate = %.1f, want between 0 and 100", rate)
	}
}

func TestBuildReportEmpty(t *testing.T) {
	report := BuildReport(nil)
	if report.TotalCells != 0 || report.FillRate() != 0 {
		t.Fatalf("empty report = %+v, want zeroes", report)
	}
}
