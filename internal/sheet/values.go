package sheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"trialdesk/internal/domain"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-06",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"2 Jan 2006",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
}

// ParseDate reads a date cell. Blank cells are null. Plain numbers are taken
// as spreadsheet serial dates.
func ParseDate(s string) (domain.Date, error) {
	s = strings.TrimSpace(s)
	if IsBlank(s) {
		return domain.Date{}, nil
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return domain.Date{}, fmt.Errorf("invalid date serial %q: %w", s, err)
		}
		return domain.NewDate(t), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.NewDate(t), nil
		}
	}
	return domain.Date{}, fmt.Errorf("unrecognized date %q", s)
}

// IsBlank reports whether a cell holds no value, including the "nan"/"nat"
// markers left by spreadsheet exports.
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "nat")
}

// ParseNumber reads a numeric cell.
func ParseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	return strconv.ParseFloat(s, 64)
}
