package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseCommand(t *testing.T) {
	path := writeFile(t, "plants.csv", "genus,species,common_name\n"+
		"Hoya,carnosa,Wax plant\n"+
		"Ficus,,Mystery fig\n")

	out, err := run(t, "parse", path, "--kind", "plant_taxon")
	require.NoError(t, err, out)

	var got parseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "plant_taxon", got.Kind)
	assert.Equal(t, 2, got.Rows)
	assert.Equal(t, 1, got.ValidRows)
	assert.Equal(t, 1, got.InvalidRows)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "species", got.Errors[0].Field)
}

func TestParseCommandNeedsMapping(t *testing.T) {
	path := writeFile(t, "plants.csv", "genus,species,common_name\n")
	_, err := run(t, "parse", path)
	assert.Error(t, err)

	_, err = run(t, "parse", path, "--profile", "missing")
	assert.Error(t, err)
}

func TestMappingsValidate(t *testing.T) {
	good := writeFile(t, "good.yaml", `mappings:
  - name: nursery_list
    kind: plant_taxon
    columns:
      - source: Genus
        target: genus
        required: true
      - source: Species
        target: species
        required: true
      - source: Name
        target: common_name
        transform: title
`)
	out, err := run(t, "mappings", "validate", good)
	require.NoError(t, err, out)
	assert.Contains(t, out, "ok")

	bad := writeFile(t, "bad.yaml", `mappings:
  - name: broken
    kind: plant_taxon
    columns:
      - source: Genus
        target: no_such_field
`)
	_, err = run(t, "mappings", "validate", bad)
	assert.Error(t, err)
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	_, err := run(t, "migrate", "sideways", "--database-url", "postgres://localhost/x")
	assert.Error(t, err)
}
