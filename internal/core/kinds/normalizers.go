package kinds

import (
	"regexp"
	"strings"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

// Canonical enum values.
var (
	CareLevels  = []string{"easy", "moderate", "difficult"}
	LightLevels = []string{"low", "medium", "bright_indirect", "direct"}
	WaterNeeds  = []string{"low", "moderate", "high"}
)

var careAliases = map[string]string{
	"beginner":     "easy",
	"low":          "easy",
	"simple":       "easy",
	"medium":       "moderate",
	"intermediate": "moderate",
	"average":      "moderate",
	"hard":         "difficult",
	"expert":       "difficult",
	"advanced":     "difficult",
	"high":         "difficult",
}

var lightAliases = map[string]string{
	"shade":            "low",
	"low light":        "low",
	"partial":          "medium",
	"partial shade":    "medium",
	"medium light":     "medium",
	"bright":           "bright_indirect",
	"bright indirect":  "bright_indirect",
	"indirect":         "bright_indirect",
	"full sun":         "direct",
	"sun":              "direct",
	"direct sun":       "direct",
	"bright direct":    "direct",
	"bright-indirect":  "bright_indirect",
	"bright, indirect": "bright_indirect",
}

var waterAliases = map[string]string{
	"dry":      "low",
	"sparse":   "low",
	"sparing":  "low",
	"average":  "moderate",
	"medium":   "moderate",
	"regular":  "moderate",
	"moist":    "high",
	"frequent": "high",
	"wet":      "high",
}

// NormalizeEpithet lower-cases a species epithet. The unnamed-species
// placeholders "sp", "spp" and "spp." all become "sp.".
func NormalizeEpithet(s string) string {
	s = strings.ToLower(core.CollapseSpace(s))
	switch s {
	case "sp", "spp", "spp.":
		return "sp."
	}
	return s
}

var cultivarQuotes = strings.NewReplacer("'", "", "‘", "", "’", "", `"`, "")

// NormalizeCultivar strips the quotes cultivar names are usually written
// with and a "cv." prefix, so 'Thai Constellation' and cv. Thai
// Constellation compare equal.
func NormalizeCultivar(s string) string {
	s = core.CollapseSpace(cultivarQuotes.Replace(s))
	lower := strings.ToLower(s)
	for _, prefix := range []string{"cv. ", "cv "} {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return core.Title(s)
}

var everyN = regexp.MustCompile(`(?i)^every\s+(\d+)\s*(day|week|month)s?$`)

// NormalizeSchedule rewrites free-form fertilizer schedules such as
// "Every 2 Weeks" to "every 2 weeks". Unrecognized text is kept as is.
func NormalizeSchedule(s string) string {
	s = core.CollapseSpace(s)
	m := everyN.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	unit := strings.ToLower(m[2])
	if m[1] != "1" {
		unit += "s"
	}
	return "every " + m[1] + " " + unit
}
