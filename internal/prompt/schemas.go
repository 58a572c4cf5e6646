package prompt

import "github.com/ShayCichocki/reqflow/internal/reply"

// Response contracts, one per JSON-returning prompt.
var (
	UseCaseContentSchema = reply.MustSchema("use-case-content", `{
  "type": "object",
  "required": ["name", "description"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string", "minLength": 1}
  }
}`)

	TaskExtractionSchema = reply.MustSchema("task-extraction", `{
  "type": "object",
  "required": ["personas"],
  "properties": {
    "personas": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["personaId", "tasks"],
        "properties": {
          "personaId": {"type": "string", "minLength": 1},
          "tasks": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`)

	UserStorySchema = reply.MustSchema("user-story", `{
  "type": "object",
  "required": ["title", "summary", "priority", "pillar"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "summary": {"type": "string", "minLength": 1},
    "priority": {"type": "integer", "minimum": 1, "maximum": 5},
    "pillar": {"type": "string", "minLength": 1}
  }
}`)

	DerivedClustersSchema = reply.MustSchema("derived-clusters", `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["nfus_id", "cluster_name"],
    "properties": {
      "nfus_id": {"type": "string", "minLength": 1},
      "nfus_summary": {"type": "string"},
      "cluster_name": {"type": "string", "minLength": 1}
    }
  }
}`)

	MergedClustersSchema = reply.MustSchema("merged-clusters", `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["cluster_name"],
    "properties": {
      "cluster_name": {"type": "string", "minLength": 1}
    }
  }
}`)

	DecompositionSchema = reply.MustSchema("decomposition", `{
  "type": "object",
  "required": ["decomposition"],
  "properties": {
    "decomposition": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`)

	FunctionalConflictSchema = reply.MustSchema("functional-conflict", `{
  "type": "object",
  "properties": {
    "conflictType": {"type": "string"},
    "conflictDescription": {"type": "string"}
  }
}`)

	NonFunctionalConflictSchema = reply.MustSchema("non-functional-conflict", `{
  "type": "object",
  "properties": {
    "conflictType": {"type": "string"},
    "conflictDescription": {"type": "string"},
    "conflictingNfrPairs": {
      "type": "array",
      "items": {
        "type": "array",
        "minItems": 2,
        "maxItems": 2,
        "items": {"type": "string"}
      }
    }
  }
}`)

	ResolutionSchema = reply.MustSchema("resolution", `{
  "type": "object",
  "required": ["generalResolutionType", "resolutionDescription", "newUserStoryASummary", "newUserStoryBSummary"],
  "properties": {
    "generalResolutionType": {"type": "string"},
    "resolutionDescription": {"type": "string"},
    "newUserStoryASummary": {"type": "string"},
    "newUserStoryBSummary": {"type": "string"},
    "newDecompositionA": {"type": "array", "items": {"type": "string"}},
    "newDecompositionB": {"type": "array", "items": {"type": "string"}}
  }
}`)
)
