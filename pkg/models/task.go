package models

// Task is a persona-scoped activity extracted from a use-case scenario.
type Task struct {
	ID          string `json:"id"`
	UseCaseID   string `json:"useCaseId"`
	PersonaID   string `json:"personaId"`
	Description string `json:"description"`
}

// PersonaTasks is the per-persona task file after regrouping and deduplication.
type PersonaTasks struct {
	PersonaID string `json:"personaId"`
	// Before is the task count prior to deduplication.
	Before int    `json:"before"`
	Tasks  []Task `json:"tasks"`
}

// UseCaseExtraction is the raw per-use-case extraction record.
type UseCaseExtraction struct {
	UseCaseID string `json:"useCaseId"`
	Tasks     []Task `json:"tasks"`
}
