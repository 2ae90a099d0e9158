package sapgui

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAmount converts an amount in the GUI display format into a float.
// The format uses "." as the thousands separator, "," as the decimal mark
// and a trailing "-" for negative values, e.g. "1.234,56-".
func ParseAmount(value string) (float64, error) {
	stripped := strings.TrimSpace(value)
	if stripped == "" {
		return 0, fmt.Errorf("sapgui: empty amount")
	}
	sign := 1.0
	if strings.HasSuffix(stripped, "-") {
		sign = -1.0
		stripped = strings.TrimSuffix(stripped, "-")
	}
	stripped = strings.ReplaceAll(stripped, ".", "")
	stripped = strings.ReplaceAll(stripped, ",", ".")
	parsed, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return 0, fmt.Errorf("sapgui: parse amount %q: %w", value, err)
	}
	return parsed * sign, nil
}
