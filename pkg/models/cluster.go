package models

// ClusterDefinition is a predefined non-functional cluster for a pillar.
type ClusterDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Pillar is a concern area with its non-functional clusters.
type Pillar struct {
	Name     string              `json:"name" yaml:"name"`
	Clusters []ClusterDefinition `json:"clusters" yaml:"clusters"`
}

// DerivedCluster is one functional cluster proposed from a non-functional story.
type DerivedCluster struct {
	NFUSID      string `json:"nfus_id"`
	NFUSSummary string `json:"nfus_summary"`
	ClusterName string `json:"cluster_name"`
}

// FunctionalClusterSet is the content of functional_user_story_cluster_set.json.
type FunctionalClusterSet struct {
	Initial     []DerivedCluster `json:"initial"`
	TargetCount int              `json:"target_count"`
	Clusters    []string         `json:"clusters,omitempty"`
}

// Contains reports whether name is one of the final clusters.
func (f *FunctionalClusterSet) Contains(name string) bool {
	for _, c := range f.Clusters {
		if c == name {
			return true
		}
	}
	return false
}
