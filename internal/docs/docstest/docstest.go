// Package docstest writes a small documentation bundle for tests.
package docstest

import (
	"os"
	"path/filepath"
	"testing"
)

// Files is the sample bundle, keyed by file name.
var Files = map[string]string{
	"system_summary.md":        "Harbor is a shared scheduling platform for clinics.",
	"user_story_guidelines.md": "Write one sentence per story. Keep it testable.",
	"language_hint.md":         "Readers have B2 English proficiency.",
	"user_groups.yaml": `- key: end_users
  name: End Users
  guideline: People booking and attending appointments.
- key: operators
  name: Operators
  guideline: Staff who run the clinic schedule.
`,
	"pillars.yaml": `- name: Performance
  clusters:
    - name: Responsiveness
      description: Screens react quickly.
    - name: Throughput
      description: Many bookings at once.
- name: Usability
  clusters:
    - name: Accessibility
      description: Usable with assistive technology.
    - name: Learnability
      description: Easy to pick up.
`,
	"use_case_types.json": `{
  "two_same_group": {
    "count": 1,
    "persona_constraints": {"count": 2, "groups": "same"},
    "pillar_constraints": {"count": 1, "pillars": ["Performance"]}
  }
}`,
	"conflict_techniques_functional.md":     "Look for actions one persona starts and another forbids.",
	"conflict_techniques_non_functional.md": "Look for quality goals that cannot both hold.",
}

// Write materializes the sample bundle into dir, overriding files with extra.
func Write(t testing.TB, dir string, extra map[string]string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for name, body := range Files {
		if v, ok := extra[name]; ok {
			body = v
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}
