package kinds

import (
	"strings"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

func init() {
	registerPlantInstance()
}

func registerPlantInstance() {
	core.Register(core.EntityKind{
		Key:   "plant_instance",
		Label: "My plants",
		Scope: core.ScopeOwner,
		Fields: []core.FieldSpec{
			{Name: "nickname", Required: true, Normalizer: core.CollapseSpace},
			{Name: "taxon", Normalizer: core.CollapseSpace},
			{Name: "location", Normalizer: core.Title},
			{Name: "acquired_on", Type: core.FieldDate},
			{Name: "pot_size_cm", Type: core.FieldNumber},
			{Name: "outdoor", Type: core.FieldBool},
			{Name: "last_fertilized", Type: core.FieldDate},
			{Name: "fertilizer_schedule", Normalizer: NormalizeSchedule},
			{Name: "image_url", Normalizer: strings.TrimSpace},
		},
		IdentityFields:    []string{"nickname", "location"},
		DescriptiveFields: []string{"nickname", "taxon"},
		AssetFields:       []string{"image_url"},
	})
}
