package kinds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

func TestKindsAreRegistered(t *testing.T) {
	taxon, ok := core.DefaultRegistry.Get("plant_taxon")
	require.True(t, ok)
	assert.Equal(t, core.ScopeShared, taxon.Scope)
	assert.Equal(t, []string{"genus", "species", "cultivar"}, taxon.IdentityFields)

	instance, ok := core.DefaultRegistry.Get("plant_instance")
	require.True(t, ok)
	assert.Equal(t, core.ScopeOwner, instance.Scope)

	for _, kind := range []core.EntityKind{taxon, instance} {
		require.NoError(t, core.DefaultMapping(kind).Validate(core.DefaultRegistry), kind.Key)
	}
}

func TestCareLevelAliases(t *testing.T) {
	taxon, _ := core.DefaultRegistry.Get("plant_taxon")
	spec, ok := taxon.Field("care_level")
	require.True(t, ok)

	tests := map[string]string{
		"Easy":         "easy",
		"beginner":     "easy",
		"Intermediate": "moderate",
		"EXPERT":       "difficult",
	}
	for in, want := range tests {
		got, err := core.Coerce(spec, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := core.Coerce(spec, "impossible")
	assert.Error(t, err)
}

func TestNormalizers(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"epithet lower", NormalizeEpithet, "Deliciosa", "deliciosa"},
		{"epithet placeholder", NormalizeEpithet, "SPP", "sp."},
		{"cultivar quotes", NormalizeCultivar, "'thai constellation'", "Thai Constellation"},
		{"cultivar prefix", NormalizeCultivar, "cv. Albo Variegata", "Albo Variegata"},
		{"cultivar curly quotes", NormalizeCultivar, "‘Pink Princess’", "Pink Princess"},
		{"schedule plural", NormalizeSchedule, "Every 2 Weeks", "every 2 weeks"},
		{"schedule singular", NormalizeSchedule, "every 1 month", "every 1 month"},
		{"schedule free text", NormalizeSchedule, "  when  dry ", "when dry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func TestCultivarSpellingsShareIdentity(t *testing.T) {
	taxon, _ := core.DefaultRegistry.Get("plant_taxon")
	a := core.Fields{"genus": "Monstera", "species": "deliciosa", "cultivar": NormalizeCultivar("'Thai Constellation'")}
	b := core.Fields{"genus": "Monstera", "species": "deliciosa", "cultivar": NormalizeCultivar("cv. thai constellation")}
	assert.Equal(t, core.IdentityKey(taxon, a), core.IdentityKey(taxon, b))
}
