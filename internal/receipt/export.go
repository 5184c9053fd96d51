package receipt

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{"Date", "Merchant", "Amount", "Currency", "Category", "Status", "URL"}

// WriteCSV writes the receipts as CSV in export column order. Commas are
// stripped from free-text fields so the file opens cleanly in spreadsheet
// tools that mishandle quoted cells.
func WriteCSV(w io.Writer, receipts []*Receipt) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range receipts {
		date := ""
		if r.Date != nil {
			date = r.Date.Format("2006-01-02")
		}
		record := []string{
			date,
			strings.ReplaceAll(r.Merchant, ",", " "),
			fmt.Sprintf("%.2f", r.Amount),
			r.Currency,
			strings.ReplaceAll(r.Category, ",", " "),
			r.Status,
			r.URL,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildWorkbook renders the receipts as a styled spreadsheet.
func BuildWorkbook(receipts []*Receipt) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Expenses"
	f.SetSheetName("Sheet1", sheetName)

	headers := []string{"No", "Date", "Merchant", "Amount", "Currency", "Category", "Account", "Status"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("building header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4F46E5"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "H1", headerStyle); err != nil {
		return nil, fmt.Errorf("styling header: %w", err)
	}

	for i, r := range receipts {
		row := i + 2
		date := ""
		if r.Date != nil {
			date = r.Date.Format("2006-01-02")
		}
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), i+1)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), date)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), r.Merchant)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), r.Amount)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), r.Currency)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), r.Category)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), r.Account)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), r.Status)
	}

	f.SetColWidth(sheetName, "A", "A", 5)
	f.SetColWidth(sheetName, "B", "B", 12)
	f.SetColWidth(sheetName, "C", "C", 30)
	f.SetColWidth(sheetName, "D", "E", 10)
	f.SetColWidth(sheetName, "F", "G", 22)
	f.SetColWidth(sheetName, "H", "H", 12)

	return f, nil
}
