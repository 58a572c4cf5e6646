// Package docs loads the target system's documentation bundle: the summary,
// story-writing guideline, user groups, pillars with their non-functional
// clusters, use-case type table, and conflict technique notes.
package docs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Bundle file names.
const (
	SystemSummaryFile        = "system_summary.md"
	StoryGuidelinesFile      = "user_story_guidelines.md"
	LanguageHintFile         = "language_hint.md"
	UserGroupsFile           = "user_groups.yaml"
	PillarsFile              = "pillars.yaml"
	UseCaseTypesFile         = "use_case_types.json"
	FunctionalTechniquesFile = "conflict_techniques_functional.md"
	NFTechniquesFile         = "conflict_techniques_non_functional.md"
)

// GroupRule constrains the user groups of the personas in one use case.
type GroupRule string

const (
	GroupsAny       GroupRule = "any"
	GroupsSame      GroupRule = "same"
	GroupsDifferent GroupRule = "different"
)

// PersonaConstraint says how many personas a use case involves and how their
// groups relate.
type PersonaConstraint struct {
	Count  int       `json:"count"`
	Groups GroupRule `json:"groups"`
}

// PillarConstraint says how many pillars a use case touches and which pillars
// are eligible. An empty list means every pillar.
type PillarConstraint struct {
	Count   int      `json:"count"`
	Pillars []string `json:"pillars"`
}

// UseCaseType is one row of the use-case type table.
type UseCaseType struct {
	Name     string            `json:"-"`
	Count    int               `json:"count"`
	Personas PersonaConstraint `json:"persona_constraints"`
	Pillars  PillarConstraint  `json:"pillar_constraints"`
}

// Bundle is the loaded documentation.
type Bundle struct {
	SystemSummary           string
	StoryGuidelines         string
	LanguageHint            string
	UserGroups              []models.UserGroup
	Pillars                 []models.Pillar
	UseCaseTypes            []UseCaseType
	FunctionalTechniques    string
	NonFunctionalTechniques string
}

// Load reads the bundle from dir. The summary, user groups, pillars, and
// use-case types are required; the rest default to empty.
func Load(dir string) (*Bundle, error) {
	b := &Bundle{}
	var err error

	if b.SystemSummary, err = readText(dir, SystemSummaryFile, true); err != nil {
		return nil, err
	}
	if b.StoryGuidelines, err = readText(dir, StoryGuidelinesFile, false); err != nil {
		return nil, err
	}
	if b.LanguageHint, err = readText(dir, LanguageHintFile, false); err != nil {
		return nil, err
	}
	if b.FunctionalTechniques, err = readText(dir, FunctionalTechniquesFile, false); err != nil {
		return nil, err
	}
	if b.NonFunctionalTechniques, err = readText(dir, NFTechniquesFile, false); err != nil {
		return nil, err
	}

	if err := readYAML(dir, UserGroupsFile, &b.UserGroups); err != nil {
		return nil, err
	}
	if err := readYAML(dir, PillarsFile, &b.Pillars); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, UseCaseTypesFile))
	if err != nil {
		return nil, fmt.Errorf("docs: read %s: %w", UseCaseTypesFile, err)
	}
	types := map[string]UseCaseType{}
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, fmt.Errorf("docs: parse %s: %w", UseCaseTypesFile, err)
	}
	for name, t := range types {
		t.Name = name
		b.UseCaseTypes = append(b.UseCaseTypes, t)
	}
	sort.Slice(b.UseCaseTypes, func(i, j int) bool {
		return b.UseCaseTypes[i].Name < b.UseCaseTypes[j].Name
	})

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks cross references inside the bundle.
func (b *Bundle) Validate() error {
	if len(b.UserGroups) == 0 {
		return fmt.Errorf("docs: %s defines no user groups", UserGroupsFile)
	}
	seen := map[string]bool{}
	for _, g := range b.UserGroups {
		if g.Key == "" || g.Name == "" {
			return fmt.Errorf("docs: user group needs key and name: %+v", g)
		}
		if seen[g.Key] {
			return fmt.Errorf("docs: duplicate user group key %q", g.Key)
		}
		seen[g.Key] = true
	}
	if len(b.Pillars) == 0 {
		return fmt.Errorf("docs: %s defines no pillars", PillarsFile)
	}
	for _, p := range b.Pillars {
		if len(p.Clusters) == 0 {
			return fmt.Errorf("docs: pillar %q defines no clusters", p.Name)
		}
	}
	for _, t := range b.UseCaseTypes {
		if t.Count < 0 || t.Personas.Count < 1 || t.Pillars.Count < 0 {
			return fmt.Errorf("docs: use case type %q has invalid counts", t.Name)
		}
		switch t.Personas.Groups {
		case "", GroupsAny, GroupsSame, GroupsDifferent:
		default:
			return fmt.Errorf("docs: use case type %q: unknown group rule %q", t.Name, t.Personas.Groups)
		}
		for _, p := range t.Pillars.Pillars {
			if _, ok := b.Pillar(p); !ok {
				return fmt.Errorf("docs: use case type %q references unknown pillar %q", t.Name, p)
			}
		}
	}
	return nil
}

// Group returns the user group with key.
func (b *Bundle) Group(key string) (models.UserGroup, bool) {
	for _, g := range b.UserGroups {
		if g.Key == key {
			return g, true
		}
	}
	return models.UserGroup{}, false
}

// GroupNames lists the group names in configured order.
func (b *Bundle) GroupNames() []string {
	names := make([]string, len(b.UserGroups))
	for i, g := range b.UserGroups {
		names[i] = g.Name
	}
	return names
}

// GroupByName resolves a display name to its group.
func (b *Bundle) GroupByName(name string) (models.UserGroup, bool) {
	for _, g := range b.UserGroups {
		if g.Name == name {
			return g, true
		}
	}
	return models.UserGroup{}, false
}

// Pillar returns the named pillar.
func (b *Bundle) Pillar(name string) (models.Pillar, bool) {
	for _, p := range b.Pillars {
		if p.Name == name {
			return p, true
		}
	}
	return models.Pillar{}, false
}

// PillarNames lists every pillar name in configured order.
func (b *Bundle) PillarNames() []string {
	names := make([]string, len(b.Pillars))
	for i, p := range b.Pillars {
		names[i] = p.Name
	}
	return names
}

// NFClusters returns every non-functional cluster across pillars.
func (b *Bundle) NFClusters() []models.ClusterDefinition {
	var out []models.ClusterDefinition
	for _, p := range b.Pillars {
		out = append(out, p.Clusters...)
	}
	return out
}

// IsNFCluster reports whether name is a defined cluster of the pillar.
func (b *Bundle) IsNFCluster(pillar, name string) bool {
	p, ok := b.Pillar(pillar)
	if !ok {
		return false
	}
	for _, c := range p.Clusters {
		if c.Name == name {
			return true
		}
	}
	return false
}

func readText(dir, name string, required bool) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("docs: read %s: %w", name, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func readYAML(dir, name string, out any) error {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("docs: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("docs: parse %s: %w", name, err)
	}
	return nil
}
