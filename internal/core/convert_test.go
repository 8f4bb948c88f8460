package core

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseNumber Tests
// ----------------------------------------------------------------------------

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "integer", input: "123", want: 123},
		{name: "negative integer", input: "-456", want: -456},
		{name: "decimal", input: "12.5", want: 12.5},
		{name: "leading decimal point", input: ".75", want: 0.75},
		{name: "thousands separator", input: "1,200", want: 1200},
		{name: "accounting negative", input: "( 3.5 )", want: -3.5},
		{name: "centimetres suffix", input: "14 cm", want: 14},
		{name: "inches suffix", input: "6in", want: 6},
		{name: "percent", input: "30%", want: 30},
		{name: "scientific notation", input: "1.5e2", want: 150},
		{name: "surrounding whitespace", input: "  42  ", want: 42},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "alphabetic", input: "large", wantErr: true},
		{name: "mixed", input: "12abc", wantErr: true},
		{name: "two decimal points", input: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNumber(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNumber(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "ISO", input: "2024-03-15", want: day(2024, 3, 15)},
		{name: "ISO slashes", input: "2024/03/15", want: day(2024, 3, 15)},
		{name: "US", input: "3/15/2024", want: day(2024, 3, 15)},
		{name: "US padded", input: "03/05/2024", want: day(2024, 3, 5)},
		{name: "month name", input: "Mar 15, 2024", want: day(2024, 3, 15)},
		{name: "long month name", input: "March 15, 2024", want: day(2024, 3, 15)},
		{name: "day first month name", input: "15 Mar 2024", want: day(2024, 3, 15)},
		{name: "compact", input: "20240315", want: day(2024, 3, 15)},
		{name: "timestamp truncated", input: "2024-03-15 18:30:00", want: day(2024, 3, 15)},
		{name: "two digit year", input: "3/15/24", want: day(2024, 3, 15)},
		{name: "excel serial", input: "45366", want: day(2024, 3, 15)},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "last spring", wantErr: true},
		{name: "invalid month", input: "2024-13-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYearPivot(t *testing.T) {
	farFuture := (time.Now().Year() + TwoDigitYearPivot + 5) % 100
	input := "1/1/" + twoDigits(farFuture)

	got, err := ParseDate(input)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", input, err)
	}
	if got.Year() > time.Now().Year()+TwoDigitYearPivot {
		t.Errorf("ParseDate(%q) year = %d, want previous century", input, got.Year())
	}
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

// ----------------------------------------------------------------------------
// ParseBool / ParseEnum Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"YES", true, false},
		{"y", true, false},
		{"1", true, false},
		{"False", false, false},
		{"no", false, false},
		{"0", false, false},
		{"maybe", false, true},
		{"", false, true},
	}

	for _, tt := range tests {
		got, err := ParseBool(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBool(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBool(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseEnum(t *testing.T) {
	spec := FieldSpec{
		Name:       "care_level",
		Type:       FieldEnum,
		EnumValues: []string{"easy", "moderate", "difficult"},
		Aliases:    map[string]string{"beginner": "easy", "hard": "difficult"},
	}

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"easy", "easy", false},
		{"Moderate", "moderate", false},
		{" beginner ", "easy", false},
		{"HARD", "difficult", false},
		{"impossible", "", true},
	}

	for _, tt := range tests {
		got, err := ParseEnum(spec, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEnum(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEnum(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// CleanCell / MakeHeaderIndex Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Monstera  ", "Monstera"},
		{`="00123"`, "00123"},
		{"=SUM", "SUM"},
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMakeHeaderIndex_DuplicateHeaders(t *testing.T) {
	idx := MakeHeaderIndex([]string{"Genus", " genus ", "Species"})

	if i, ok := idx.Lookup("GENUS"); !ok || i != 0 {
		t.Errorf("Lookup(GENUS) = %d, %v; want 0, true", i, ok)
	}
	if i, ok := idx.Lookup("species"); !ok || i != 2 {
		t.Errorf("Lookup(species) = %d, %v; want 2, true", i, ok)
	}
	if _, ok := idx.Lookup("family"); ok {
		t.Error("Lookup(family) should not be found")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{nil, ""},
		{"Ficus", "Ficus"},
		{12.5, "12.5"},
		{true, "true"},
		{time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), "2024-03-15"},
	}

	for _, tt := range tests {
		if got := FormatValue(tt.input); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
