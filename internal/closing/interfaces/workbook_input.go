package interfaces

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	closing "agreement-closing/internal/closing/domain"
)

// headerOffset is the number of leading workbook rows above the
// column header.
const headerOffset = 1

var companyCodePattern = regexp.MustCompile(`(?im)Company code:\s*(\d{4})`)

// ParseAgreementWorkbook reads the mailed workbook. Agreement numbers
// sit in the first column below the header; the companion attachment
// column is ignored.
func ParseAgreementWorkbook(path string) ([]closing.WorkItem, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, err
	}

	var items []closing.WorkItem
	for i, row := range rows {
		if i <= headerOffset {
			continue
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("workbook row %d: invalid agreement number %q", i+1, row[0])
		}
		items = append(items, closing.WorkItem{Agreement: num})
	}
	return items, nil
}

// ExtractCompanyCode pulls the 4-digit company code out of the
// request mail body.
func ExtractCompanyCode(body string) (string, error) {
	match := companyCodePattern.FindStringSubmatch(body)
	if match == nil {
		return "", closing.ErrNoCompanyCode
	}
	return match[1], nil
}
