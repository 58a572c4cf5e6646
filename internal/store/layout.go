package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Fixed keys of the result layout.
const (
	PersonaGroupsKey        = "persona_user_groups.json"
	UseCasesDir             = "use_cases"
	TaskExtractionDir       = "use_case_task_extraction"
	UserStoriesDir          = "user_stories"
	DecompositionKey        = "non_functional_user_story_decomposition.json"
	FunctionalClusterSetKey = "functional_user_story_cluster_set.json"
	AnalysisDir             = "analysis"
)

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ResultRoot returns <resultsDir>/<system>/<fingerprint>/<model>.
func ResultRoot(resultsDir, system, fingerprint, model string) string {
	return filepath.Join(resultsDir, Segment(system), Segment(fingerprint), Segment(model))
}

// Segment makes an arbitrary name safe for a single path segment.
func Segment(name string) string {
	s := unsafeSegment.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "_"
	}
	return s
}

// Fingerprint identifies a persona set by its directory, so adding or removing
// persona files keeps artifacts under the same root.
func Fingerprint(personasDir string) (string, error) {
	abs, err := filepath.Abs(personasDir)
	if err != nil {
		return "", fmt.Errorf("store: resolve %s: %w", personasDir, err)
	}
	sum := sha256.Sum256([]byte(filepath.ToSlash(abs)))
	return Segment(filepath.Base(abs)) + "-" + hex.EncodeToString(sum[:4]), nil
}

// PersonaDigest hashes the canonical (RFC 8785) JSON form of the persona set,
// independent of file order and key order.
func PersonaDigest(personas []models.Persona) (string, error) {
	raw, err := json.Marshal(personas)
	if err != nil {
		return "", fmt.Errorf("store: encode personas: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("store: canonicalize personas: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// UseCaseKey is the key of one use-case file.
func UseCaseKey(id string) string {
	return path.Join(UseCasesDir, id+".json")
}

// ExtractionKey is the raw per-use-case task extraction record.
func ExtractionKey(useCaseID string) string {
	return path.Join(TaskExtractionDir, "by_use_case", useCaseID+".json")
}

// PersonaTasksKey is the deduplicated per-persona task file.
func PersonaTasksKey(personaID string) string {
	return path.Join(TaskExtractionDir, "Extracted_tasks_for_"+personaID+".json")
}

// PersonaStoriesKey is the per-persona user story file.
func PersonaStoriesKey(personaID string) string {
	return path.Join(UserStoriesDir, "User_stories_for_"+personaID+".json")
}

// ScopeDir is the top-level directory of a conflict scope.
func ScopeDir(scope models.Scope) string {
	if scope == models.ScopeAcross {
		return "conflicts_across_two_groups"
	}
	return "conflicts_within_one_group"
}

// KindDir is the per-story-type directory inside a conflict scope.
func KindDir(kind models.StoryType) string {
	if kind == models.StoryNonFunctional {
		return "non_functional_user_stories"
	}
	return "functional_user_stories"
}

// ConflictKey is the conflict file of one group key (or group pair key).
func ConflictKey(f models.Family, groupKey string, invalid bool) string {
	parts := []string{ScopeDir(f.Scope)}
	if invalid {
		parts = append(parts, "invalid")
	}
	parts = append(parts, KindDir(f.Kind), Segment(groupKey)+".json")
	return path.Join(parts...)
}

// ConflictDir lists the directory holding a family's conflict files.
func ConflictDir(f models.Family, invalid bool) string {
	parts := []string{ScopeDir(f.Scope)}
	if invalid {
		parts = append(parts, "invalid")
	}
	parts = append(parts, KindDir(f.Kind))
	return path.Join(parts...)
}

// PairCheckpointKey records per-pair identification progress for a group key.
func PairCheckpointKey(f models.Family, groupKey string) string {
	return path.Join(ScopeDir(f.Scope), "pairs", KindDir(f.Kind), Segment(groupKey)+".json")
}

// CrossGroupKey names the file for a pair of user groups, ordered so the
// same pair always maps to one key.
func CrossGroupKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_vs_" + b
}

// AnalysisKey is an analysis CSV.
func AnalysisKey(name string) string {
	return path.Join(AnalysisDir, name)
}
