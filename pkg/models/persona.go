// Package models defines the requirements-engineering entities exchanged
// between pipeline phases and persisted in the artifact store.
package models

import (
	"fmt"
	"regexp"
)

var personaIDPattern = regexp.MustCompile(`^P-\d+$`)

// UserGroup is a coarse category every persona belongs to.
type UserGroup struct {
	// Key is the filesystem-safe identifier used in result file names.
	Key string `json:"key" yaml:"key"`
	// Name is the exact label the classifier must answer with.
	Name string `json:"name" yaml:"name"`
	// Guideline is embedded into prompts that concern this group.
	Guideline string `json:"guideline" yaml:"guideline"`
}

// Persona is a user archetype loaded from the persona directory.
// The pipeline never mutates a persona after loading.
type Persona struct {
	ID            string   `json:"Id"`
	Name          string   `json:"Name"`
	Role          string   `json:"Role"`
	Tagline       string   `json:"Tagline,omitempty"`
	Demographics  any      `json:"Demographics,omitempty"`
	CoreGoals     []string `json:"CoreGoals,omitempty"`
	Challenges    []string `json:"Challenges,omitempty"`
	Singularities []string `json:"Singularities,omitempty"`
	MainActions   []string `json:"MainActions,omitempty"`
	WorkSituation string   `json:"WorkSituation,omitempty"`
	Expertise     string   `json:"Expertise,omitempty"`
	UserGroup     string   `json:"-"`
}

// Validate checks the minimum recognized keys.
func (p *Persona) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("persona: missing Id")
	}
	if !personaIDPattern.MatchString(p.ID) {
		return fmt.Errorf("persona: Id %q does not match P-NNN", p.ID)
	}
	if p.Name == "" {
		return fmt.Errorf("persona %s: missing Name", p.ID)
	}
	return nil
}
