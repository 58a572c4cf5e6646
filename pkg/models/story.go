package models

import "strings"

// StoryType classifies a user story.
type StoryType string

const (
	StoryFunctional    StoryType = "Functional"
	StoryNonFunctional StoryType = "Non-Functional"
	StoryUnknown       StoryType = "Unknown"
)

// Unclustered is the cluster label for functional stories that fit no cluster.
const Unclustered = "(Unclustered)"

// Typed reports whether the type is one of the two eligible labels.
func (t StoryType) Typed() bool {
	return t == StoryFunctional || t == StoryNonFunctional
}

// ParseStoryType canonicalizes a classifier answer. Only an exact label match
// (ignoring surrounding whitespace) is accepted.
func ParseStoryType(s string) (StoryType, bool) {
	return matchEnum(s, StoryFunctional, StoryNonFunctional)
}

// UserStory is a persona-perspective statement of intent.
type UserStory struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"persona"`
	UserGroup string    `json:"user_group"`
	UseCaseID string    `json:"use_case"`
	TaskID    string    `json:"task"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	Pillar    string    `json:"pillar,omitempty"`
	Type      StoryType `json:"type,omitempty"`
	Cluster   *string   `json:"cluster,omitempty"`
}

// Complete reports whether synthesis filled every generated field.
func (s *UserStory) Complete() bool {
	return s.Title != "" && s.Summary != "" && s.Priority >= 1 && s.Priority <= 5 && s.Pillar != ""
}

// ClusterName returns the assigned cluster or "".
func (s *UserStory) ClusterName() string {
	if s.Cluster == nil {
		return ""
	}
	return *s.Cluster
}

// SetCluster assigns the cluster label.
func (s *UserStory) SetCluster(name string) {
	s.Cluster = &name
}

// PersonaStories is the content of User_stories_for_P-NNN.json.
type PersonaStories struct {
	PersonaID string      `json:"persona"`
	UserGroup string      `json:"user_group"`
	Stories   []UserStory `json:"stories"`
	// Discarded lists stories removed by conflict resolution; they are never
	// synthesized again.
	Discarded []string `json:"discarded,omitempty"`
}

// Find returns the story with the given id.
func (p *PersonaStories) Find(id string) (*UserStory, bool) {
	for i := range p.Stories {
		if p.Stories[i].ID == id {
			return &p.Stories[i], true
		}
	}
	return nil, false
}

// Remove deletes the story with the given id and reports whether it existed.
func (p *PersonaStories) Remove(id string) bool {
	for i := range p.Stories {
		if p.Stories[i].ID == id {
			p.Stories = append(p.Stories[:i], p.Stories[i+1:]...)
			return true
		}
	}
	return false
}

// Discard removes the story and remembers its id.
func (p *PersonaStories) Discard(id string) bool {
	if !p.Remove(id) {
		return false
	}
	if !p.IsDiscarded(id) {
		p.Discarded = append(p.Discarded, id)
	}
	return true
}

// IsDiscarded reports whether id was removed by conflict resolution.
func (p *PersonaStories) IsDiscarded(id string) bool {
	for _, d := range p.Discarded {
		if d == id {
			return true
		}
	}
	return false
}

// NFDecomposition is the atomic NFR list backing a non-functional story.
// Summary is the story summary the list was derived from.
type NFDecomposition struct {
	Summary       string   `json:"summary"`
	Decomposition []string `json:"decomposition"`
}

// matchEnum accepts only an exact label; surrounding whitespace is the one
// thing trimmed.
func matchEnum[T ~string](s string, values ...T) (T, bool) {
	s = strings.TrimSpace(s)
	for _, v := range values {
		if s == string(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
