package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ligatures = strings.NewReplacer("æ", "ae", "œ", "oe", "×", "x")

// stripMarks decomposes s and removes combining marks: "Begónia"
// becomes "Begonia".
func stripMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseSpace trims s and collapses internal runs of whitespace.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeText is the comparison form of a value: accents stripped,
// case folded and whitespace collapsed.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = stripMarks(s)
	// Casers keep state and are not shared between goroutines.
	s = cases.Fold().String(s)
	s = ligatures.Replace(s)
	return CollapseSpace(s)
}

// NormalizeValue converts any typed field value to its comparison form.
func NormalizeValue(v any) string {
	return NormalizeText(FormatValue(v))
}

// keyEscaper escapes the identity key separator inside values, so
// {"a|b","c"} and {"a","b|c"} never share a key.
var keyEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// IdentityKey joins the normalized identity fields of a record. Two
// records with equal keys are the same entity.
func IdentityKey(kind EntityKind, fields Fields) string {
	parts := make([]string, len(kind.IdentityFields))
	for i, name := range kind.IdentityFields {
		parts[i] = keyEscaper.Replace(NormalizeValue(fields[name]))
	}
	return strings.Join(parts, "|")
}

// SearchText is the normalized text of a record's descriptive fields,
// used by stores to prefilter similar entities.
func SearchText(kind EntityKind, fields Fields) string {
	parts := make([]string, 0, len(kind.DescriptiveFields))
	for _, name := range kind.DescriptiveFields {
		if v := NormalizeValue(fields[name]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// Title converts s to title case.
func Title(s string) string {
	return cases.Title(language.Und).String(CollapseSpace(s))
}

// Capitalize upper-cases the first letter and lower-cases the rest, the
// way genus names are written.
func Capitalize(s string) string {
	s = CollapseSpace(s)
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
