package kinds

import (
	"strings"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

func init() {
	registerPlantTaxon()
}

func registerPlantTaxon() {
	core.Register(core.EntityKind{
		Key:   "plant_taxon",
		Label: "Plant taxonomy",
		Scope: core.ScopeShared,
		Fields: []core.FieldSpec{
			{Name: "family", Normalizer: core.Capitalize},
			{Name: "genus", Required: true, Normalizer: core.Capitalize},
			{Name: "species", Required: true, Normalizer: NormalizeEpithet},
			{Name: "cultivar", Normalizer: NormalizeCultivar},
			{Name: "common_name", Required: true, Normalizer: core.CollapseSpace},
			{Name: "light", Type: core.FieldEnum, EnumValues: LightLevels, Aliases: lightAliases},
			{Name: "water", Type: core.FieldEnum, EnumValues: WaterNeeds, Aliases: waterAliases},
			{Name: "care_level", Type: core.FieldEnum, EnumValues: CareLevels, Aliases: careAliases},
			{Name: "notes"},
			{Name: "image_url", Normalizer: strings.TrimSpace},
		},
		IdentityFields:    []string{"genus", "species", "cultivar"},
		DescriptiveFields: []string{"common_name", "genus", "species"},
		AssetFields:       []string{"image_url"},
	})
}
