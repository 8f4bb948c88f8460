package core

// convert.go turns raw spreadsheet cells into typed field values.
//
// Spreadsheet exports are messy:
//   - several date formats, plus Excel serial numbers
//   - units and thousand separators in numbers ("12 cm", "1,200")
//   - yes/no, y/n, true/false, 1/0 for booleans
//   - Excel formula prefixes (="value")

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates a number after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years more than this many years in the future go to the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
		"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05",
		"20060102",
	}
	excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
)

// ParseDate converts a cell to a date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), nil
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return truncateDay(t), nil
		}
	}

	// Excel stores dates as days since 1899-12-30.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		return truncateDay(excelEpoch.AddDate(0, 0, int(serial))), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseNumber converts a cell to a float64. Accounting negatives "(12)",
// thousands separators and trailing units ("12 cm", "30%") are tolerated.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimRight(s, "%")
	for _, unit := range []string{"cm", "mm", "in", "\""} {
		s = strings.TrimSuffix(s, unit)
	}
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}
	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return strconv.ParseFloat(s, 64)
}

// ParseBool accepts true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// ParseEnum resolves s against the field's allowed values and aliases,
// case-insensitively.
func ParseEnum(spec FieldSpec, s string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := spec.Aliases[key]; ok {
		return canonical, nil
	}
	for _, v := range spec.EnumValues {
		if strings.ToLower(v) == key {
			return v, nil
		}
	}
	return "", fmt.Errorf("must be one of %s", strings.Join(spec.EnumValues, ", "))
}

// Coerce converts a cleaned, non-empty cell value to the field's type.
func Coerce(spec FieldSpec, s string) (any, error) {
	if spec.Normalizer != nil {
		s = spec.Normalizer(s)
	}
	switch spec.Type {
	case FieldDate:
		return ParseDate(s)
	case FieldNumber:
		return ParseNumber(s)
	case FieldBool:
		return ParseBool(s)
	case FieldEnum:
		return ParseEnum(spec, s)
	default:
		return s, nil
	}
}

// RestoreFieldTypes converts date fields that went through a JSON round
// trip back to time.Time. Numbers and bools survive JSON unchanged.
func RestoreFieldTypes(kind EntityKind, fields Fields) error {
	for _, spec := range kind.Fields {
		if spec.Type != FieldDate {
			continue
		}
		str, ok := fields[spec.Name].(string)
		if !ok || str == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return fmt.Errorf("field %s: %w", spec.Name, err)
		}
		fields[spec.Name] = t
	}
	return nil
}

// FormatValue renders a typed field value as text, for search keys and display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix (="...") and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// HeaderIndex maps lower-cased column names to their position in a record.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a header record.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// Lookup returns the index of column name, case-insensitively.
func (h HeaderIndex) Lookup(name string) (int, bool) {
	i, ok := h[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}
