// Package prompt assembles the per-phase prompts. Every builder method is a
// pure function of its arguments and the documentation strings captured at
// construction.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/reqflow/internal/docs"
	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Builder renders prompts from the documentation bundle.
type Builder struct {
	summary         string
	storyGuidelines string
	languageHint    string
	fTechniques     string
	nfTechniques    string
	groups          []models.UserGroup
	pillars         []models.Pillar
}

// New captures the strings a Builder needs from b.
func New(b *docs.Bundle) *Builder {
	return &Builder{
		summary:         b.SystemSummary,
		storyGuidelines: b.StoryGuidelines,
		languageHint:    b.LanguageHint,
		fTechniques:     b.FunctionalTechniques,
		nfTechniques:    b.NonFunctionalTechniques,
		groups:          append([]models.UserGroup(nil), b.UserGroups...),
		pillars:         append([]models.Pillar(nil), b.Pillars...),
	}
}

// WithLanguageHint returns a copy whose resolution prompts carry hint.
func (b *Builder) WithLanguageHint(hint string) *Builder {
	c := *b
	c.languageHint = hint
	return &c
}

// doc accumulates prompt sections.
type doc struct {
	sb strings.Builder
}

func newDoc(marker, summary string) *doc {
	d := &doc{}
	d.sb.WriteString(marker)
	d.sb.WriteString("\n\n")
	d.section("System summary", summary)
	return d
}

func (d *doc) section(title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(&d.sb, "%s:\n%s\n\n", title, body)
}

func (d *doc) entity(title string, v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", v))
	}
	d.section(title, string(raw))
}

func (d *doc) list(title string, items []string) {
	if len(items) == 0 {
		return
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	d.section(title, sb.String())
}

// finish appends the instruction, the output contract, and the closing rule.
func (d *doc) finish(instruction, output, closing string) string {
	d.section("Instruction", instruction)
	d.section("Output format", output)
	d.sb.WriteString(closing)
	return strings.TrimSpace(d.sb.String()) + "\n"
}

func (b *Builder) groupGuidelines(keys ...string) string {
	var sb strings.Builder
	for _, g := range b.groups {
		if len(keys) > 0 && !contains(keys, g.Key) {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", g.Name, g.Guideline)
	}
	return sb.String()
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// storyView is the subset of a story shown to the model.
type storyView struct {
	ID        string `json:"id"`
	Persona   string `json:"persona"`
	UserGroup string `json:"user_group"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary"`
	Pillar    string `json:"pillar,omitempty"`
	Cluster   string `json:"cluster,omitempty"`
}

func viewStory(s models.UserStory) storyView {
	return storyView{
		ID:        s.ID,
		Persona:   s.PersonaID,
		UserGroup: s.UserGroup,
		Title:     s.Title,
		Summary:   s.Summary,
		Pillar:    s.Pillar,
		Cluster:   s.ClusterName(),
	}
}
