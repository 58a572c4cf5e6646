package models

// ConflictType is drawn from a small fixed taxonomy per story type.
type ConflictType string

// Functional conflict types.
const (
	ConflictStartForbid           ConflictType = "Start-Forbid"
	ConflictForbidStop            ConflictType = "Forbid-Stop"
	ConflictTwoConditionEvents    ConflictType = "Two Condition Events"
	ConflictTwoOperationFrequency ConflictType = "Two Operation Frequencies Conflict"
)

// Non-functional conflict types.
const (
	ConflictMutuallyExclusive ConflictType = "Mutually Exclusive"
	ConflictPartial           ConflictType = "Partial"
)

// FunctionalConflictTypes lists the functional taxonomy in prompt order.
var FunctionalConflictTypes = []ConflictType{
	ConflictStartForbid, ConflictForbidStop, ConflictTwoConditionEvents, ConflictTwoOperationFrequency,
}

// NonFunctionalConflictTypes lists the non-functional taxonomy in prompt order.
var NonFunctionalConflictTypes = []ConflictType{ConflictMutuallyExclusive, ConflictPartial}

// ParseConflictType canonicalizes an identifier answer against the taxonomy
// for the given story type.
func ParseConflictType(s string, kind StoryType) (ConflictType, bool) {
	if kind == StoryNonFunctional {
		return matchEnum(s, NonFunctionalConflictTypes...)
	}
	return matchEnum(s, FunctionalConflictTypes...)
}

// ResolutionType is the strategy a resolver used.
type ResolutionType string

const (
	ResolutionUpdateBoth          ResolutionType = "Update both"
	ResolutionUpdateOneKeepOne    ResolutionType = "Update one and keep one remain the same"
	ResolutionUpdateOneDiscardOne ResolutionType = "Update one and discard one"
	ResolutionKeepOneDiscardOne   ResolutionType = "Keep one and discard one"
)

// ResolutionTypes lists the four strategies in prompt order.
var ResolutionTypes = []ResolutionType{
	ResolutionUpdateBoth, ResolutionUpdateOneKeepOne, ResolutionUpdateOneDiscardOne, ResolutionKeepOneDiscardOne,
}

// ParseResolutionType canonicalizes a resolver answer.
func ParseResolutionType(s string) (ResolutionType, bool) {
	return matchEnum(s, ResolutionTypes...)
}

// Scope distinguishes conflicts inside one user group from those across two.
type Scope string

const (
	ScopeWithin Scope = "within"
	ScopeAcross Scope = "across"
)

// Family identifies one conflict id sequence and its storage subtree.
type Family struct {
	Prefix string
	Scope  Scope
	Kind   StoryType
}

// The four conflict families.
var (
	FamilyFunctionalWithin    = Family{Prefix: "FCWI", Scope: ScopeWithin, Kind: StoryFunctional}
	FamilyNonFunctionalWithin = Family{Prefix: "NFCWI", Scope: ScopeWithin, Kind: StoryNonFunctional}
	FamilyFunctionalAcross    = Family{Prefix: "FCAG", Scope: ScopeAcross, Kind: StoryFunctional}
	FamilyNonFunctionalAcross = Family{Prefix: "NFCAG", Scope: ScopeAcross, Kind: StoryNonFunctional}
)

// Families lists every family in pipeline order.
var Families = []Family{
	FamilyNonFunctionalWithin, FamilyFunctionalWithin, FamilyNonFunctionalAcross, FamilyFunctionalAcross,
}

// Conflict is a recorded incompatibility between two stories of two personas.
type Conflict struct {
	ID                  string       `json:"id"`
	UserStoryAID        string       `json:"userStoryAId"`
	UserStoryBID        string       `json:"userStoryBId"`
	PersonaAID          string       `json:"personaAId"`
	PersonaBID          string       `json:"personaBId"`
	UserGroups          []string     `json:"userGroups"`
	Cluster             string       `json:"cluster"`
	UserStoryASummary   string       `json:"userStoryASummary"`
	UserStoryBSummary   string       `json:"userStoryBSummary"`
	ConflictType        ConflictType `json:"conflictType"`
	ConflictDescription string       `json:"conflictDescription"`
	ConflictingNFRPairs [][2]string  `json:"conflictingNfrPairs,omitempty"`
	Verified            bool         `json:"verified,omitempty"`

	// GeneralResolutionType is nil until a resolution was attempted; an empty
	// string records that the resolver answered "None".
	GeneralResolutionType *string  `json:"generalResolutionType,omitempty"`
	ResolutionDescription string   `json:"resolutionDescription,omitempty"`
	NewUserStoryASummary  string   `json:"newUserStoryASummary,omitempty"`
	NewUserStoryBSummary  string   `json:"newUserStoryBSummary,omitempty"`
	NewDecompositionA     []string `json:"newDecompositionA,omitempty"`
	NewDecompositionB     []string `json:"newDecompositionB,omitempty"`
}

// ResolutionAttempted reports whether the resolver already ran for this conflict.
func (c *Conflict) ResolutionAttempted() bool {
	return c.GeneralResolutionType != nil
}

// ConflictFile is the persisted content of one group-key conflict file.
type ConflictFile struct {
	GroupKey  string     `json:"groupKey"`
	Conflicts []Conflict `json:"conflicts"`
}
