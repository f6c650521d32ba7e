package export_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/export"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func sampleDaily() *domain.DailyReport {
	return &domain.DailyReport{
		Date: "2024-05-10",
		ByTypeSaving: []domain.DailyTypeTotals{
			{TypeID: 1, TypeName: "No term", TotalDeposits: decimal.NewFromInt(100), TotalWithdrawals: decimal.NewFromInt(30), Difference: decimal.NewFromInt(70)},
		},
		Summary: domain.DailySummary{
			TotalDeposits: decimal.NewFromInt(100), TotalWithdrawals: decimal.NewFromInt(30),
			Difference: decimal.NewFromInt(70), TransactionCount: 3,
		},
	}
}

func sampleMonthly() *domain.MonthlyReport {
	typeID := int64(2)
	return &domain.MonthlyReport{
		Month: 2, Year: 2024, TypeID: &typeID, TypeName: "3 months",
		ByDay: []domain.MonthlyDay{
			{Day: 1, BookCounts: domain.BookCounts{NewSavingBooks: 2, ClosedSavingBooks: 1, Difference: 1}},
			{Day: 2},
		},
		Summary: domain.BookCounts{NewSavingBooks: 2, ClosedSavingBooks: 1, Difference: 1},
	}
}

func TestDailyXLSX_Readable(t *testing.T) {
	out, err := export.Exporter{}.Daily(sampleDaily(), domain.FormatXLSX)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Name != "daily-report-2024-05-10.xlsx" {
		t.Errorf("unexpected name %q", out.Name)
	}

	f, err := excelize.OpenReader(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("daily", "A5")
	if err != nil || got != "No term" {
		t.Errorf("expected 'No term' in A5, got %q (%v)", got, err)
	}
	diff, _ := f.GetCellValue("daily", "D5")
	if diff != "70" {
		t.Errorf("expected difference 70, got %q", diff)
	}
}

func TestDailyPDF(t *testing.T) {
	out, err := export.Exporter{}.Daily(sampleDaily(), domain.FormatPDF)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !bytes.HasPrefix(out.Data, []byte("%PDF")) {
		t.Error("expected PDF header")
	}
	if out.ContentType != "application/pdf" {
		t.Errorf("unexpected content type %q", out.ContentType)
	}
}

func TestMonthlyXLSX_Sheets(t *testing.T) {
	r := sampleMonthly()
	r.ByType = []domain.MonthlyType{{TypeID: 2, TypeName: "3 months", BookCounts: r.Summary}}

	out, err := export.Exporter{}.Monthly(r, domain.FormatXLSX)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Name != "monthly-report-2024-02-type-2.xlsx" {
		t.Errorf("unexpected name %q", out.Name)
	}

	f, err := excelize.OpenReader(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex("by_type"); idx < 0 {
		t.Error("expected by_type sheet")
	}
	newBooks, _ := f.GetCellValue("by_day", "B6")
	if newBooks != "2" {
		t.Errorf("expected 2 new books on day 1, got %q", newBooks)
	}
}

func TestMonthlyPDF(t *testing.T) {
	out, err := export.Exporter{}.Monthly(sampleMonthly(), domain.FormatPDF)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !bytes.HasPrefix(out.Data, []byte("%PDF")) {
		t.Error("expected PDF header")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := export.Exporter{}.Daily(sampleDaily(), "csv")
	var v *domain.ErrValidation
	if !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
