package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TransformFunc rewrites a cleaned cell value before type coercion.
type TransformFunc func(string) (string, error)

// ColumnRule maps one source column to a target field.
type ColumnRule struct {
	Source    string `yaml:"source" json:"source" validate:"required"`
	Target    string `yaml:"target" json:"target" validate:"required"`
	Required  bool   `yaml:"required" json:"required"`
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
	Default   string `yaml:"default,omitempty" json:"default,omitempty"`

	// TransformFunc takes precedence over Transform when set from Go code.
	TransformFunc TransformFunc `yaml:"-" json:"-"`
}

// ColumnMapping declares how the columns of a file become fields of an
// entity kind.
type ColumnMapping struct {
	Name    string       `yaml:"name" json:"name" validate:"required"`
	Kind    string       `yaml:"kind" json:"kind" validate:"required"`
	Sheet   string       `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	Columns []ColumnRule `yaml:"columns" json:"columns" validate:"required,min=1,dive"`
}

var (
	transformsMu sync.RWMutex
	transforms   = map[string]TransformFunc{
		"trim":           func(s string) (string, error) { return strings.TrimSpace(s), nil },
		"lower":          func(s string) (string, error) { return strings.ToLower(s), nil },
		"upper":          func(s string) (string, error) { return strings.ToUpper(s), nil },
		"title":          func(s string) (string, error) { return Title(s), nil },
		"capitalize":     func(s string) (string, error) { return Capitalize(s), nil },
		"collapse_space": func(s string) (string, error) { return CollapseSpace(s), nil },
		"strip_accents":  func(s string) (string, error) { return stripMarks(s), nil },
	}
)

// RegisterTransform makes a named transform available to column mappings.
func RegisterTransform(name string, fn TransformFunc) {
	transformsMu.Lock()
	defer transformsMu.Unlock()
	transforms[name] = fn
}

// LookupTransform returns the named transform.
func LookupTransform(name string) (TransformFunc, bool) {
	transformsMu.RLock()
	defer transformsMu.RUnlock()
	fn, ok := transforms[name]
	return fn, ok
}

// TransformNames lists the registered transform names.
func TransformNames() []string {
	transformsMu.RLock()
	defer transformsMu.RUnlock()
	names := make([]string, 0, len(transforms))
	for n := range transforms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the mapping against the registry. All problems are
// reported together as one ValidationError.
func (m ColumnMapping) Validate(reg *Registry) error {
	var errs []string

	if err := validate.Struct(m); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	kind, ok := reg.Get(m.Kind)
	if m.Kind != "" && !ok {
		errs = append(errs, fmt.Sprintf("unknown entity kind %q", m.Kind))
	}

	if ok {
		targets := make(map[string]bool)
		for _, col := range m.Columns {
			if col.Target == "" {
				continue
			}
			if _, known := kind.Field(col.Target); !known {
				errs = append(errs, fmt.Sprintf("column %q: unknown target field %q", col.Source, col.Target))
			}
			if targets[col.Target] {
				errs = append(errs, fmt.Sprintf("target field %q mapped more than once", col.Target))
			}
			targets[col.Target] = true
			if col.Transform != "" && col.TransformFunc == nil {
				if _, found := LookupTransform(col.Transform); !found {
					errs = append(errs, fmt.Sprintf("column %q: unknown transform %q", col.Source, col.Transform))
				}
			}
		}
		for _, f := range kind.Fields {
			if f.Required && !targets[f.Name] {
				errs = append(errs, fmt.Sprintf("required field %q is not mapped", f.Name))
			}
		}
	}

	if len(errs) > 0 {
		return ValidationErrorf("mapping", "invalid column mapping %q:\n  - %s", m.Name, strings.Join(errs, "\n  - "))
	}
	return nil
}

// DefaultMapping maps every field of kind from a column of the same name.
func DefaultMapping(kind EntityKind) ColumnMapping {
	m := ColumnMapping{Name: kind.Key, Kind: kind.Key}
	for _, f := range kind.Fields {
		m.Columns = append(m.Columns, ColumnRule{Source: f.Name, Target: f.Name, Required: f.Required, Transform: "collapse_space"})
	}
	return m
}

// MappingProfiles is a named set of column mappings.
type MappingProfiles struct {
	mu       sync.RWMutex
	profiles map[string]ColumnMapping
}

type profilesFile struct {
	Mappings []ColumnMapping `yaml:"mappings"`
}

// NewMappingProfiles seeds a profile set with the default mapping of
// every registered kind.
func NewMappingProfiles(reg *Registry) *MappingProfiles {
	p := &MappingProfiles{profiles: make(map[string]ColumnMapping)}
	for _, k := range reg.All() {
		p.profiles[k.Key] = DefaultMapping(k)
	}
	return p
}

// LoadYAML reads profiles from r and validates each one. Profiles with the
// same name as an existing one replace it.
func (p *MappingProfiles) LoadYAML(r io.Reader, reg *Registry) error {
	var f profilesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil
		}
		return ValidationErrorf("mapping", "decode mapping profiles: %v", err)
	}

	for _, m := range f.Mappings {
		if err := m.Validate(reg); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range f.Mappings {
		p.profiles[m.Name] = m
	}
	return nil
}

// LoadFile reads profiles from a YAML file.
func (p *MappingProfiles) LoadFile(path string, reg *Registry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mapping profiles: %w", err)
	}
	defer f.Close()
	return p.LoadYAML(f, reg)
}

// Get returns a profile by name.
func (p *MappingProfiles) Get(name string) (ColumnMapping, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.profiles[name]
	return m, ok
}

// All returns every profile sorted by name.
func (p *MappingProfiles) All() []ColumnMapping {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ColumnMapping, 0, len(p.profiles))
	for _, m := range p.profiles {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ProfileMatchThreshold is the share of a profile's source columns a
// header must contain for the profile to be offered as a match.
const ProfileMatchThreshold = 0.5

// ProfileMatch is a profile that fits a file header.
type ProfileMatch struct {
	Mapping ColumnMapping `json:"mapping"`
	Score   float64       `json:"score"`
	Missing []string      `json:"missing,omitempty"` // required sources absent from the header
}

// Match scores every profile against header, best first. A profile
// scores the share of its source columns present in the header.
func (p *MappingProfiles) Match(header []string) []ProfileMatch {
	idx := MakeHeaderIndex(header)

	var matches []ProfileMatch
	for _, m := range p.All() {
		if len(m.Columns) == 0 {
			continue
		}
		found := 0
		var missing []string
		for _, col := range m.Columns {
			if _, ok := idx.Lookup(col.Source); ok {
				found++
			} else if col.Required && col.Default == "" {
				missing = append(missing, col.Source)
			}
		}
		score := float64(found) / float64(len(m.Columns))
		if score >= ProfileMatchThreshold {
			matches = append(matches, ProfileMatch{Mapping: m, Score: score, Missing: missing})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if len(matches[i].Missing) != len(matches[j].Missing) {
			return len(matches[i].Missing) < len(matches[j].Missing)
		}
		return matches[i].Score > matches[j].Score
	})
	return matches
}
