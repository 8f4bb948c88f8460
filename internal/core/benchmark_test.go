package core

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
)

// ============================================================================
// Conversion Benchmarks
// ============================================================================

// BenchmarkParseNumber runs for every number cell of an import.
func BenchmarkParseNumber(b *testing.B) {
	testCases := []string{
		"12",
		"-4.5",
		"1,234.56",
		"  18  ",
		"(3)",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_, _ = ParseNumber(tc)
		}
	}
}

// BenchmarkParseDate runs for every date cell of an import.
func BenchmarkParseDate(b *testing.B) {
	testCases := []string{
		"2024-01-15",   // ISO format
		"01/15/2024",   // US format
		"Jan 15, 2024", // Text month
		"1/5/24",       // 2-digit year
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_, _ = ParseDate(tc)
		}
	}
}

// BenchmarkCleanCell is called for every cell, so it should stay cheap.
func BenchmarkCleanCell(b *testing.B) {
	testCases := []string{
		"Monstera deliciosa",
		`="0042"`,        // Excel text formula
		`"quoted"`,       // Quoted
		"  whitespace  ", // Whitespace
		"'single'",       // Single quotes
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			CleanCell(tc)
		}
	}
}

func BenchmarkMakeHeaderIndex(b *testing.B) {
	headers := []string{
		"Family", "Genus", "Species", "Cultivar",
		"Common Name", "Light", "Water", "Care", "Notes", "Image",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MakeHeaderIndex(headers)
	}
}

// ============================================================================
// Parsing Benchmarks
// ============================================================================

func generateTaxonCSV(rows int) []byte {
	var buf bytes.Buffer
	buf.WriteString("Family,Genus,Species,Cultivar,Common Name,Care,Image\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&buf, "Araceae,Genus%d,species%d,'Var %d',Plant number %d,easy,https://img.example/%d.jpg\n", i, i, i, i, i)
	}
	return buf.Bytes()
}

// BenchmarkParser_Parse measures the full parse path: decode, header
// binding, transforms and coercion.
func BenchmarkParser_Parse(b *testing.B) {
	for _, size := range []int{100, 1000} {
		b.Run(fmt.Sprintf("rows=%d", size), func(b *testing.B) {
			data := generateTaxonCSV(size)
			p := NewParser(testRegistry(), ParseOptions{})
			mapping := taxonMapping()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := p.Parse(context.Background(), Source{FileName: "plants.csv", Reader: bytes.NewReader(data)}, mapping, "alice"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkIsEmptyRecord(b *testing.B) {
	tests := []struct {
		name  string
		cells []string
	}{
		{"empty", make([]string, 10)},
		{"whitespace", strings.Split(strings.Repeat(" ,", 9)+" ", ",")},
		{"first_filled", append([]string{"x"}, make([]string, 9)...)},
	}

	for _, tt := range tests {
		b.Run(tt.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				isEmptyRecord(tt.cells)
			}
		})
	}
}

// ============================================================================
// Similarity Benchmarks
// ============================================================================

// BenchmarkFieldSimilarity_Score runs once per candidate entity per row.
func BenchmarkFieldSimilarity_Score(b *testing.B) {
	kind, _ := testRegistry().Get("plant_taxon")
	sim := DefaultFieldSimilarity()
	candidate := Candidate{Kind: "plant_taxon", Fields: Fields{"genus": "Philodendron", "species": "hederaceum", "common_name": "Heartleaf philodendron"}}
	entities := []Entity{
		{ID: "a", Fields: Fields{"genus": "Philodendron", "species": "hederaceum", "common_name": "Heartleaf philodendron"}},
		{ID: "b", Fields: Fields{"genus": "Philodendron", "species": "hederaceum", "cultivar": "Brasil", "common_name": "Philodendron brasil"}},
		{ID: "c", Fields: Fields{"genus": "Epipremnum", "species": "aureum", "common_name": "Golden pothos"}},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, e := range entities {
			sim.Score(kind, candidate, e)
		}
	}
}
