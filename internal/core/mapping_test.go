package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnMapping_Validate(t *testing.T) {
	reg := testRegistry()

	require.NoError(t, taxonMapping().Validate(reg))

	bad := ColumnMapping{
		Name: "broken",
		Kind: "plant_taxon",
		Columns: []ColumnRule{
			{Source: "Genus", Target: "genus"},
			{Source: "Genus again", Target: "genus"},
			{Source: "Colour", Target: "colour"},
			{Source: "Name", Target: "common_name", Transform: "shout"},
			{Source: "", Target: "cultivar"},
		},
	}
	err := bad.Validate(reg)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	msg := err.Error()
	for _, want := range []string{
		`target field "genus" mapped more than once`,
		`unknown target field "colour"`,
		`unknown transform "shout"`,
		`required field "species" is not mapped`,
		"Source",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestColumnMapping_ValidateUnknownKind(t *testing.T) {
	err := ColumnMapping{Name: "x", Kind: "fungus", Columns: []ColumnRule{{Source: "a", Target: "b"}}}.Validate(testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown entity kind "fungus"`)

	err = ColumnMapping{Name: "empty", Kind: "plant_taxon"}.Validate(testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Columns")
}

func TestDefaultMapping(t *testing.T) {
	reg := testRegistry()
	kind, _ := reg.Get("plant_instance")

	m := DefaultMapping(kind)
	require.NoError(t, m.Validate(reg))
	assert.Equal(t, "plant_instance", m.Name)
	assert.Len(t, m.Columns, len(kind.Fields))
	assert.True(t, m.Columns[0].Required)
}

func TestMappingProfiles_LoadYAML(t *testing.T) {
	reg := testRegistry()
	profiles := NewMappingProfiles(reg)

	_, ok := profiles.Get("plant_taxon")
	require.True(t, ok, "defaults are seeded per kind")

	doc := `
mappings:
  - name: nursery-export
    kind: plant_taxon
    columns:
      - source: Botanical Genus
        target: genus
        required: true
        transform: capitalize
      - source: Botanical Species
        target: species
        required: true
      - source: Sold As
        target: common_name
        required: true
        transform: collapse_space
      - source: Difficulty
        target: care_level
        default: moderate
`
	require.NoError(t, profiles.LoadYAML(strings.NewReader(doc), reg))

	m, ok := profiles.Get("nursery-export")
	require.True(t, ok)
	assert.Equal(t, "plant_taxon", m.Kind)
	require.Len(t, m.Columns, 4)
	assert.Equal(t, "moderate", m.Columns[3].Default)

	names := make([]string, 0)
	for _, p := range profiles.All() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"nursery-export", "plant_instance", "plant_taxon"}, names)
}

func TestMappingProfiles_LoadYAMLRejects(t *testing.T) {
	reg := testRegistry()

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "mappings:\n  - name: a\n    kind: plant_taxon\n    colums: []\n"},
		{"invalid mapping", "mappings:\n  - name: a\n    kind: plant_taxon\n    columns:\n      - source: G\n        target: genus\n"},
		{"not yaml", "mappings: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := NewMappingProfiles(reg)
			err := profiles.LoadYAML(strings.NewReader(tt.doc), reg)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			_, ok := profiles.Get("a")
			assert.False(t, ok)
		})
	}
}

func TestTransforms(t *testing.T) {
	for name, tc := range map[string][2]string{
		"trim":           {"  fern ", "fern"},
		"lower":          {"FERN", "fern"},
		"upper":          {"fern", "FERN"},
		"title":          {"boston  fern", "Boston Fern"},
		"capitalize":     {"nephrolepis", "Nephrolepis"},
		"collapse_space": {"boston   fern", "boston fern"},
		"strip_accents":  {"Begónia", "Begonia"},
	} {
		fn, ok := LookupTransform(name)
		require.True(t, ok, name)
		got, err := fn(tc[0])
		require.NoError(t, err)
		assert.Equal(t, tc[1], got, name)
	}

	assert.Contains(t, TransformNames(), "collapse_space")
}

func TestMappingProfiles_Match(t *testing.T) {
	p := &MappingProfiles{profiles: map[string]ColumnMapping{
		"taxa": taxonMapping(),
		"latin": {Name: "latin", Kind: "plant_taxon", Columns: []ColumnRule{
			{Source: "Genus", Target: "genus", Required: true},
			{Source: "Latin", Target: "species", Required: true},
		}},
		"unrelated": {Name: "unrelated", Kind: "plant_taxon", Columns: []ColumnRule{
			{Source: "Sku", Target: "notes"},
		}},
	}}

	matches := p.Match([]string{" genus", "Species", "COMMON NAME", "Care"})
	require.Len(t, matches, 2)

	assert.Equal(t, "taxa", matches[0].Mapping.Name)
	assert.InDelta(t, 4.0/7.0, matches[0].Score, 1e-9)
	assert.Empty(t, matches[0].Missing)

	assert.Equal(t, "latin", matches[1].Mapping.Name)
	assert.Equal(t, []string{"Latin"}, matches[1].Missing)
}

func TestParser_ReadHeader(t *testing.T) {
	p := NewParser(testRegistry(), ParseOptions{MaxFileSize: 1 << 20})

	header, err := p.ReadHeader(Source{FileName: "plants.csv", Reader: strings.NewReader("\n\nGenus, Species ,Common Name\nHoya,carnosa,Wax plant\n")}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Genus", "Species", "Common Name"}, header)

	_, err = p.ReadHeader(Source{FileName: "empty.csv", Reader: strings.NewReader("")}, "")
	assert.Equal(t, KindValidation, KindOf(err))
}
