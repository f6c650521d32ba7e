// Package export renders reports as XLSX workbooks and PDF documents.
package export

import (
	"bytes"
	"fmt"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/port"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

var _ port.ReportExporter = Exporter{}

// Exporter dispatches a report to the renderer for the requested format.
type Exporter struct{}

// Daily renders a daily report.
func (Exporter) Daily(r *domain.DailyReport, format string) (*domain.ExportFile, error) {
	name := "daily-report-" + r.Date
	switch format {
	case domain.FormatXLSX:
		data, err := BuildDailyXLSX(r)
		return file(name, format, contentTypeXLSX, data, err)
	case domain.FormatPDF:
		data, err := BuildDailyPDF(r)
		return file(name, format, contentTypePDF, data, err)
	}
	return nil, unsupported(format)
}

// Monthly renders a monthly report.
func (Exporter) Monthly(r *domain.MonthlyReport, format string) (*domain.ExportFile, error) {
	name := fmt.Sprintf("monthly-report-%04d-%02d", r.Year, r.Month)
	if r.TypeID != nil {
		name += fmt.Sprintf("-type-%d", *r.TypeID)
	}
	switch format {
	case domain.FormatXLSX:
		data, err := BuildMonthlyXLSX(r)
		return file(name, format, contentTypeXLSX, data, err)
	case domain.FormatPDF:
		data, err := BuildMonthlyPDF(r)
		return file(name, format, contentTypePDF, data, err)
	}
	return nil, unsupported(format)
}

func file(name, ext, contentType string, data []byte, err error) (*domain.ExportFile, error) {
	if err != nil {
		return nil, err
	}
	return &domain.ExportFile{Name: name + "." + ext, ContentType: contentType, Data: data}, nil
}

func unsupported(format string) error {
	return &domain.ErrValidation{Field: "format", Message: fmt.Sprintf("unsupported export format %q, expected xlsx or pdf", format)}
}

// ============================================================
// Daily
// ============================================================

// BuildDailyXLSX renders a daily report as a single-sheet workbook.
func BuildDailyXLSX(r *domain.DailyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "daily"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(sheet, "A1", "Daily Transaction Report")
	_ = f.SetCellValue(sheet, "A2", "Date")
	_ = f.SetCellValue(sheet, "B2", r.Date)

	headers := []string{"Saving type", "Total deposits", "Total withdrawals", "Difference"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		_ = f.SetCellValue(sheet, cell, h)
	}
	row := 5
	for _, b := range r.ByTypeSaving {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), b.TypeName)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), b.TotalDeposits.InexactFloat64())
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), b.TotalWithdrawals.InexactFloat64())
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), b.Difference.InexactFloat64())
		row++
	}
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Total")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), r.Summary.TotalDeposits.InexactFloat64())
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), r.Summary.TotalWithdrawals.InexactFloat64())
	_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), r.Summary.Difference.InexactFloat64())
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row+1), "Transactions")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row+1), r.Summary.TransactionCount)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDailyPDF renders a daily report as a one-table PDF.
func BuildDailyPDF(r *domain.DailyReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Transaction Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", r.Date))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Transactions: %d", r.Summary.TransactionCount))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	for _, h := range []string{"Saving type", "Deposits", "Withdrawals", "Difference"} {
		pdf.CellFormat(45, 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, b := range r.ByTypeSaving {
		pdf.CellFormat(45, 6, b.TypeName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, b.TotalDeposits.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, b.TotalWithdrawals.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, b.Difference.String(), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Total", "1", 0, "L", false, 0, "")
	pdf.CellFormat(45, 6, r.Summary.TotalDeposits.String(), "1", 0, "R", false, 0, "")
	pdf.CellFormat(45, 6, r.Summary.TotalWithdrawals.String(), "1", 0, "R", false, 0, "")
	pdf.CellFormat(45, 6, r.Summary.Difference.String(), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ============================================================
// Monthly
// ============================================================

// BuildMonthlyXLSX renders a monthly report: one sheet by day and, for
// all-product reports, one sheet by type.
func BuildMonthlyXLSX(r *domain.MonthlyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	daySheet := "by_day"
	if err := f.SetSheetName("Sheet1", daySheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(daySheet, "A1", "Monthly Saving Book Report")
	_ = f.SetCellValue(daySheet, "A2", "Month")
	_ = f.SetCellValue(daySheet, "B2", fmt.Sprintf("%04d-%02d", r.Year, r.Month))
	_ = f.SetCellValue(daySheet, "A3", "Saving type")
	_ = f.SetCellValue(daySheet, "B3", r.TypeName)

	writeCounts(f, daySheet, 5, "Day", len(r.ByDay), func(i int) (any, domain.BookCounts) {
		return r.ByDay[i].Day, r.ByDay[i].BookCounts
	})
	last := 6 + len(r.ByDay)
	_ = f.SetCellValue(daySheet, fmt.Sprintf("A%d", last), "Total")
	_ = f.SetCellValue(daySheet, fmt.Sprintf("B%d", last), r.Summary.NewSavingBooks)
	_ = f.SetCellValue(daySheet, fmt.Sprintf("C%d", last), r.Summary.ClosedSavingBooks)
	_ = f.SetCellValue(daySheet, fmt.Sprintf("D%d", last), r.Summary.Difference)

	if len(r.ByType) > 0 {
		typeSheet := "by_type"
		if _, err := f.NewSheet(typeSheet); err != nil {
			return nil, err
		}
		writeCounts(f, typeSheet, 1, "Saving type", len(r.ByType), func(i int) (any, domain.BookCounts) {
			return r.ByType[i].TypeName, r.ByType[i].BookCounts
		})
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCounts(f *excelize.File, sheet string, headerRow int, label string, n int, at func(int) (any, domain.BookCounts)) {
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", headerRow), label)
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", headerRow), "New books")
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", headerRow), "Closed books")
	_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", headerRow), "Difference")
	for i := 0; i < n; i++ {
		key, c := at(i)
		row := headerRow + 1 + i
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), key)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), c.NewSavingBooks)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), c.ClosedSavingBooks)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), c.Difference)
	}
}

// BuildMonthlyPDF renders the per-day table of a monthly report.
func BuildMonthlyPDF(r *domain.MonthlyReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Monthly Saving Book Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Month: %04d-%02d", r.Year, r.Month))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Saving type: %s", r.TypeName))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	for _, h := range []string{"Day", "New books", "Closed books", "Difference"} {
		pdf.CellFormat(40, 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, d := range r.ByDay {
		pdf.CellFormat(40, 6, fmt.Sprintf("%02d", d.Day), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", d.NewSavingBooks), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", d.ClosedSavingBooks), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%+d", d.Difference), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, fmt.Sprintf("%d", r.Summary.NewSavingBooks), "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 6, fmt.Sprintf("%d", r.Summary.ClosedSavingBooks), "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 6, fmt.Sprintf("%+d", r.Summary.Difference), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
