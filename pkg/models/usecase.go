package models

import "time"

// UseCase ties one or more personas to one or more pillars. It starts as a
// skeleton and is enriched with name/description, then with a scenario.
type UseCase struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Pillars     []string   `json:"pillars"`
	Personas    []string   `json:"personas"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Scenario    string     `json:"scenario,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// HasContent reports whether the raw content sub-phase has completed.
func (u *UseCase) HasContent() bool {
	return u.Name != "" && u.Description != ""
}

// HasScenario reports whether scenario enrichment has completed.
func (u *UseCase) HasScenario() bool {
	return u.HasContent() && u.Scenario != ""
}

// Involves reports whether the persona participates in the use case.
func (u *UseCase) Involves(personaID string) bool {
	for _, id := range u.Personas {
		if id == personaID {
			return true
		}
	}
	return false
}
