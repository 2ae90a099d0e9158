package interfaces

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	closing "agreement-closing/internal/closing/domain"
)

var reportColumns = []string{"Agreement", "Open_Value", "Open_Accruals", "Credit_Memo", "Message"}

// BuildReportXLSX renders the run results as a styled workbook.
// Header cells are orange with white bold text, all columns are
// centered and the open value columns use a money format.
func BuildReportXLSX(results []closing.Result, sheetName string) ([]byte, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	moneyFmt := "#,##0.00"
	center := &excelize.Alignment{Horizontal: "center"}

	generalStyle, err := f.NewStyle(&excelize.Style{Alignment: center})
	if err != nil {
		return nil, err
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{Alignment: center, CustomNumFmt: &moneyFmt})
	if err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Alignment: center,
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F06B00"}},
	})
	if err != nil {
		return nil, err
	}

	for idx, name := range reportColumns {
		col, err := excelize.ColumnNumberToName(idx + 1)
		if err != nil {
			return nil, err
		}

		style := generalStyle
		if name == "Open_Value" || name == "Open_Accruals" {
			style = moneyStyle
		}
		if err := f.SetColStyle(sheetName, col, style); err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidth(name, columnValues(name, results))); err != nil {
			return nil, err
		}

		_ = f.SetCellValue(sheetName, col+"1", strings.ReplaceAll(name, "_", " "))
	}

	for i, res := range results {
		row := strconv.Itoa(i + 2)
		_ = f.SetCellValue(sheetName, "A"+row, res.Agreement)
		if res.HasVolumes {
			_ = f.SetCellValue(sheetName, "B"+row, res.OpenValue)
			_ = f.SetCellValue(sheetName, "C"+row, res.OpenAccruals)
		}
		if res.CreditMemo != 0 {
			_ = f.SetCellValue(sheetName, "D"+row, res.CreditMemo)
		}
		_ = f.SetCellValue(sheetName, "E"+row, res.Message)
	}

	lastCol, err := excelize.ColumnNumberToName(len(reportColumns))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSummaryPDF renders a short run summary for the notification.
func BuildSummaryPDF(country, companyCode string, results []closing.Result) ([]byte, error) {
	sum := closing.Summarize(results)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Agreement Closing Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Country: %s", country))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Company code: %s", companyCode))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Agreements processed: %d", sum.Items))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Settled: %d", sum.Info))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Warnings: %d", sum.Warnings))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Errors: %d", sum.Errors))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Documents created: %d", sum.Documents))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(28, 6, "Agreement", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Credit Memo", "1", 0, "C", false, 0, "")
	pdf.CellFormat(120, 6, "Message", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, res := range results {
		memo := ""
		if res.CreditMemo != 0 {
			memo = strconv.Itoa(res.CreditMemo)
		}
		pdf.CellFormat(28, 6, strconv.Itoa(res.Agreement), "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, memo, "1", 0, "C", false, 0, "")
		pdf.CellFormat(120, 6, res.Message, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// columnWidth follows the fixed width table for known columns and
// falls back to the longest value plus one.
func columnWidth(name string, values []string) float64 {
	if isNumericName(name) {
		return 14
	}
	switch name {
	case "Agreement":
		return 11
	case "Valid_From", "Valid_To":
		return 11
	case "Payments":
		return 12
	}

	width := len(name)
	for _, value := range values {
		if len(value) > width {
			width = len(value)
		}
	}
	return float64(width + 1)
}

func columnValues(name string, results []closing.Result) []string {
	values := make([]string, 0, len(results))
	for _, res := range results {
		switch name {
		case "Agreement":
			values = append(values, strconv.Itoa(res.Agreement))
		case "Open_Value":
			if res.HasVolumes {
				values = append(values, strconv.FormatFloat(res.OpenValue, 'f', 2, 64))
			}
		case "Open_Accruals":
			if res.HasVolumes {
				values = append(values, strconv.FormatFloat(res.OpenAccruals, 'f', 2, 64))
			}
		case "Credit_Memo":
			if res.CreditMemo != 0 {
				values = append(values, strconv.Itoa(res.CreditMemo))
			}
		case "Message":
			values = append(values, res.Message)
		}
	}
	return values
}

func isNumericName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
