package prompt

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/reqflow/pkg/models"
)

// Markers open each prompt and identify its phase.
const (
	MarkerClassify       = "## Task: assign a user group"
	MarkerUseCase        = "## Task: draft a use case"
	MarkerScenario       = "## Task: write a use case scenario"
	MarkerExtractTasks   = "## Task: extract persona tasks"
	MarkerDuplicateTask  = "## Task: detect a duplicate task"
	MarkerUserStory      = "## Task: write a user story"
	MarkerStoryType      = "## Task: classify a user story"
	MarkerNFCluster      = "## Task: choose a non-functional cluster"
	MarkerDeriveClusters = "## Task: derive functional clusters"
	MarkerMergeClusters  = "## Task: merge functional clusters"
	MarkerFCluster       = "## Task: choose a functional cluster"
	MarkerDecompose      = "## Task: decompose a non-functional user story"
	MarkerIdentifyNF     = "## Task: identify a non-functional conflict"
	MarkerIdentifyF      = "## Task: identify a functional conflict"
	MarkerVerify         = "## Task: verify a conflict"
	MarkerResolve        = "## Task: resolve a conflict"
)

// Labels used inside prompts for the entities being compared.
const (
	LabelKeptTask      = "Kept task"
	LabelCandidateTask = "Candidate task"
	LabelStoryA        = "User story A"
	LabelStoryB        = "User story B"
)

const (
	closingJSON = "Return ONLY the JSON described above. Do not add explanations, comments, or markdown."
	closingText = "Return ONLY the requested text. Do not add headings, explanations, or markdown."
	closingWord = "Answer with the exact option text only. Do not add explanations, punctuation, or markdown."
	closingNone = "Return ONLY None or the JSON described above. Do not add explanations, comments, or markdown."
)

// ClassifyPersona asks which configured user group a persona belongs to.
func (b *Builder) ClassifyPersona(p models.Persona) string {
	d := newDoc(MarkerClassify, b.summary)
	d.section("User groups", b.groupGuidelines())
	d.entity("Persona "+p.ID, p)
	return d.finish(
		"Decide which single user group this persona belongs to, based on the persona's role, goals and main actions.",
		"One of: "+quoteJoin(groupNames(b.groups)),
		closingWord,
	)
}

// UseCaseContent asks for a use case name and description.
func (b *Builder) UseCaseContent(uc models.UseCase, personas []models.Persona) string {
	d := newDoc(MarkerUseCase, b.summary)
	d.section("User groups", b.groupGuidelines(personaGroups(personas)...))
	for _, p := range personas {
		d.entity("Persona "+p.ID, p)
	}
	d.list("Pillars in focus", uc.Pillars)
	return d.finish(
		fmt.Sprintf("Propose one realistic use case of type %q in which all listed personas take part and which exercises the pillars in focus. The name is a short noun phrase; the description is two or three sentences.", uc.Type),
		`{"name": "<use case name>", "description": "<use case description>"}`,
		closingJSON,
	)
}

// UseCaseScenario asks for a narrative scenario. previous holds one-line
// summaries of scenarios already written, to avoid repetition.
func (b *Builder) UseCaseScenario(uc models.UseCase, personas []models.Persona, previous []string) string {
	d := newDoc(MarkerScenario, b.summary)
	for _, p := range personas {
		d.entity("Persona "+p.ID, p)
	}
	d.entity("Use case "+uc.ID, map[string]any{
		"name":        uc.Name,
		"description": uc.Description,
		"pillars":     uc.Pillars,
	})
	d.list("Scenarios already written (do not repeat them)", previous)
	return d.finish(
		"Write a realistic scenario of 4 to 8 sentences describing how the personas carry out this use case with the system. Refer to each persona by name and make each persona's actions concrete.",
		"Plain prose, a single paragraph.",
		closingText,
	)
}

// ExtractTasks asks for per-persona tasks found in a scenario.
func (b *Builder) ExtractTasks(uc models.UseCase, personas []models.Persona) string {
	d := newDoc(MarkerExtractTasks, b.summary)
	for _, p := range personas {
		d.entity("Persona "+p.ID, p)
	}
	d.section("Scenario of "+uc.ID, uc.Scenario)
	return d.finish(
		"For every persona listed, extract the tasks that persona performs or needs in the scenario. About 60-70% of the tasks should be functional actions; the rest should be quality or experience concerns. Each task is one short sentence written from the persona's point of view. Use only the persona ids given above.",
		`{"personas": [{"personaId": "P-001", "tasks": ["<task>", "<task>"]}]}`,
		closingJSON,
	)
}

// DuplicateTask asks whether candidate repeats kept for the same persona.
func (b *Builder) DuplicateTask(p models.Persona, kept, candidate string) string {
	d := newDoc(MarkerDuplicateTask, b.summary)
	d.section("Persona", fmt.Sprintf("%s (%s, %s)", p.ID, p.Name, p.Role))
	d.section(LabelKeptTask, kept)
	d.section(LabelCandidateTask, candidate)
	return d.finish(
		"Decide whether the candidate task expresses the same need as the kept task, so that keeping both would be redundant.",
		`"Yes" or "No"`,
		closingWord,
	)
}

// UserStory asks for title, summary, priority, and pillar of one task.
func (b *Builder) UserStory(p models.Persona, group models.UserGroup, uc models.UseCase, t models.Task) string {
	d := newDoc(MarkerUserStory, b.summary)
	d.section("User story guidelines", b.storyGuidelines)
	d.section("User group", fmt.Sprintf("%s: %s", group.Name, group.Guideline))
	d.entity("Persona "+p.ID, p)
	d.entity("Use case "+uc.ID, map[string]any{
		"name":        uc.Name,
		"description": uc.Description,
		"scenario":    uc.Scenario,
	})
	d.section("Task "+t.ID, t.Description)
	d.list("Pillars", pillarNames(b.pillars))
	return d.finish(
		`Turn the task into one user story. The summary follows "As a [role], I want to [goal], so that [reason]" in 10 to 25 words. The persona's own perspective takes priority over what would be ideal for the system. Priority is an integer from 1 (lowest) to 5 (highest). The pillar must be one of the pillars listed.`,
		`{"title": "<short title>", "summary": "<one sentence>", "priority": 3, "pillar": "<pillar>"}`,
		closingJSON,
	)
}

// StoryType asks whether a story is functional.
func (b *Builder) StoryType(s models.UserStory) string {
	d := newDoc(MarkerStoryType, b.summary)
	d.entity("User story "+s.ID, viewStory(s))
	return d.finish(
		"Classify the user story. Functional stories describe something the system does; non-functional stories describe a quality the system has.",
		quoteJoin([]string{string(models.StoryFunctional), string(models.StoryNonFunctional)}),
		closingWord,
	)
}

// NFCluster asks which of a pillar's clusters fits a non-functional story.
func (b *Builder) NFCluster(s models.UserStory, candidates []models.ClusterDefinition) string {
	d := newDoc(MarkerNFCluster, b.summary)
	d.entity("User story "+s.ID, viewStory(s))
	lines := make([]string, len(candidates))
	names := make([]string, len(candidates))
	for i, c := range candidates {
		lines[i] = c.Name + ": " + c.Description
		names[i] = c.Name
	}
	d.list("Clusters of pillar "+s.Pillar, lines)
	return d.finish(
		"Choose the one cluster that best matches the quality this story asks for.",
		"One of: "+quoteJoin(names),
		closingWord,
	)
}

// DeriveClusters asks for one functional cluster name per non-functional story.
func (b *Builder) DeriveClusters(stories []models.UserStory) string {
	d := newDoc(MarkerDeriveClusters, b.summary)
	views := make([]storyView, len(stories))
	for i, s := range stories {
		views[i] = viewStory(s)
	}
	d.entity("Non-functional user stories", views)
	return d.finish(
		"For each non-functional user story, name the functional area of the system that would have to deliver it. Cluster names are short noun phrases describing system functionality.",
		`[{"nfus_id": "US-001", "nfus_summary": "<summary>", "cluster_name": "<cluster name>"}]`,
		closingJSON,
	)
}

// MergeClusters asks to reduce cluster names to about target names.
func (b *Builder) MergeClusters(names []string, target int) string {
	d := newDoc(MarkerMergeClusters, b.summary)
	d.list("Initial functional clusters", names)
	return d.finish(
		fmt.Sprintf("Merge overlapping clusters so that about %d distinct functional clusters remain. Keep names short and mutually exclusive.", target),
		`[{"cluster_name": "<cluster name>"}]`,
		closingJSON,
	)
}

// FunctionalCluster asks which functional cluster fits a story.
func (b *Builder) FunctionalCluster(s models.UserStory, clusters []string) string {
	d := newDoc(MarkerFCluster, b.summary)
	d.entity("User story "+s.ID, viewStory(s))
	d.list("Functional clusters", clusters)
	return d.finish(
		fmt.Sprintf("Choose the one cluster this functional story belongs to. If none fits, answer %s.", models.Unclustered),
		"One of: "+quoteJoin(append(append([]string(nil), clusters...), models.Unclustered)),
		closingWord,
	)
}

// Decompose asks for the atomic NFRs behind a non-functional story.
func (b *Builder) Decompose(s models.UserStory) string {
	d := newDoc(MarkerDecompose, b.summary)
	d.entity("User story "+s.ID, viewStory(s))
	return d.finish(
		"Decompose the story into atomic non-functional requirements. Keep the list small: 1 to 3 items, more only when essential. Each item is one measurable statement.",
		`{"decomposition": ["<requirement>"]}`,
		closingJSON,
	)
}

// StoryPair is two stories compared for a conflict, with decompositions for
// non-functional pairs.
type StoryPair struct {
	A, B           models.UserStory
	DecompositionA []string
	DecompositionB []string
}

// Identify asks whether a pair of stories conflicts.
func (b *Builder) Identify(kind models.StoryType, pair StoryPair) string {
	marker, techniques := MarkerIdentifyF, b.fTechniques
	if kind == models.StoryNonFunctional {
		marker, techniques = MarkerIdentifyNF, b.nfTechniques
	}
	d := newDoc(marker, b.summary)
	d.section("User groups", b.groupGuidelines(pair.A.UserGroup, pair.B.UserGroup))
	d.section("Conflict identification techniques", techniques)
	d.entity(LabelStoryA, viewStory(pair.A))
	if kind == models.StoryNonFunctional {
		d.list(LabelStoryA+" requirements", pair.DecompositionA)
	}
	d.entity(LabelStoryB, viewStory(pair.B))
	if kind == models.StoryNonFunctional {
		d.list(LabelStoryB+" requirements", pair.DecompositionB)
	}

	var types []string
	if kind == models.StoryNonFunctional {
		for _, t := range models.NonFunctionalConflictTypes {
			types = append(types, string(t))
		}
	} else {
		for _, t := range models.FunctionalConflictTypes {
			types = append(types, string(t))
		}
	}

	instruction := "Decide whether the two stories genuinely conflict: satisfying one makes satisfying the other impossible or substantially harder. Ignore mild disagreements and mere differences in preference. When in doubt, report no conflict."
	output := fmt.Sprintf(`{} when there is no conflict, otherwise {"conflictType": <one of %s>, "conflictDescription": "<one or two sentences>"}`, quoteJoin(types))
	if kind == models.StoryNonFunctional {
		instruction += " For a conflict, list every pair of requirements (one from each story) that cannot both hold."
		output = fmt.Sprintf(`{} when there is no conflict, otherwise {"conflictType": <one of %s>, "conflictDescription": "<one or two sentences>", "conflictingNfrPairs": [["<requirement of A>", "<requirement of B>"]]}`, quoteJoin(types))
	}
	return d.finish(instruction, output, closingJSON)
}

// Verify is the short second-opinion prompt for a recorded conflict.
func (b *Builder) Verify(c models.Conflict) string {
	d := newDoc(MarkerVerify, b.summary)
	d.section("User groups", b.groupGuidelines(c.UserGroups...))
	d.section(LabelStoryA, c.UserStoryASummary)
	d.section(LabelStoryB, c.UserStoryBSummary)
	return d.finish(
		"Do these two user stories truly conflict with each other?",
		`"Yes" or "No"`,
		closingWord,
	)
}

// Resolution is the current state of a conflict's stories.
type Resolution struct {
	Conflict       models.Conflict
	Kind           models.StoryType
	SummaryA       string
	SummaryB       string
	DecompositionA []string
	DecompositionB []string
}

// Resolve asks for a resolution strategy and rewritten stories.
func (b *Builder) Resolve(r Resolution) string {
	d := newDoc(MarkerResolve, b.summary)
	d.section("User groups", b.groupGuidelines(r.Conflict.UserGroups...))
	d.section("User story guidelines", b.storyGuidelines)
	d.entity("Conflict "+r.Conflict.ID, map[string]any{
		"conflictType":        r.Conflict.ConflictType,
		"conflictDescription": r.Conflict.ConflictDescription,
		"conflictingNfrPairs": r.Conflict.ConflictingNFRPairs,
	})
	d.section(LabelStoryA+" ("+r.Conflict.UserStoryAID+", current)", r.SummaryA)
	d.section(LabelStoryB+" ("+r.Conflict.UserStoryBID+", current)", r.SummaryB)
	nf := r.Kind == models.StoryNonFunctional
	if nf {
		d.list(LabelStoryA+" requirements", r.DecompositionA)
		d.list(LabelStoryB+" requirements", r.DecompositionB)
	}
	d.section("Language", b.languageHint)

	strategies := make([]string, len(models.ResolutionTypes))
	for i, t := range models.ResolutionTypes {
		strategies[i] = string(t)
	}
	instruction := fmt.Sprintf("If the current stories no longer conflict, answer None. Otherwise choose one strategy from %s and rewrite the stories accordingly. An empty new summary discards that story. Keep rewritten summaries in the \"As a [role], I want to [goal], so that [reason]\" form.", quoteJoin(strategies))
	output := `None, or {"generalResolutionType": "<strategy>", "resolutionDescription": "<how the conflict is resolved>", "newUserStoryASummary": "<summary or empty>", "newUserStoryBSummary": "<summary or empty>"}`
	if nf {
		output = `None, or {"generalResolutionType": "<strategy>", "resolutionDescription": "<how the conflict is resolved>", "newUserStoryASummary": "<summary or empty>", "newUserStoryBSummary": "<summary or empty>", "newDecompositionA": ["<requirement>"], "newDecompositionB": ["<requirement>"]}`
	}
	return d.finish(instruction, output, closingNone)
}

func quoteJoin(xs []string) string {
	q := make([]string, len(xs))
	for i, x := range xs {
		q[i] = fmt.Sprintf("%q", x)
	}
	return strings.Join(q, ", ")
}

func groupNames(groups []models.UserGroup) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Name
	}
	return out
}

func pillarNames(pillars []models.Pillar) []string {
	out := make([]string, len(pillars))
	for i, p := range pillars {
		out[i] = p.Name
	}
	return out
}

func personaGroups(personas []models.Persona) []string {
	var keys []string
	for _, p := range personas {
		if p.UserGroup != "" && !contains(keys, p.UserGroup) {
			keys = append(keys, p.UserGroup)
		}
	}
	return keys
}
