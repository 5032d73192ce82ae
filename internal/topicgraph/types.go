package topicgraph

// ============================================================================
// Topic Graph Types
// ============================================================================

// Kind distinguishes the two entity classes stored in the graph.
type Kind string

const (
	KindTopic  Kind = "topic"
	KindPerson Kind = "person"
)

// Topic categories produced by extraction. Free-form values are accepted;
// these are the ones the extraction prompt asks for.
const (
	CategoryPeople       = "people"
	CategoryProjects     = "projects"
	CategoryPlaces       = "places"
	CategoryActivities   = "activities"
	CategoryConcepts     = "concepts"
	CategoryTechnologies = "technologies"
	CategoryObjects      = "objects"
)

// Entity is a topic or person node in the knowledge graph. Names keep their
// original language; ids are stable once assigned.
type Entity struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Category   string   `json:"category,omitempty"`
	TopicType  string   `json:"topicType,omitempty"`
	Importance int      `json:"importance"`
	Sentiment  float64  `json:"sentiment"`
	Context    string   `json:"context,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
	Role       string   `json:"role,omitempty"`
}

// Relation is a directed edge between two entities. Strength is 1-5.
// The dedup key is (source, target, type); strength does not participate.
type Relation struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Type     string `json:"type"`
	Strength int    `json:"strength"`
}

// Key returns the relation's dedup key.
func (r Relation) Key() string {
	return r.Source + "\x00" + r.Target + "\x00" + r.Type
}

// Graph is the persisted node/edge collection.
type Graph struct {
	Nodes []Entity   `json:"nodes"`
	Edges []Relation `json:"edges"`
}

// Extraction is the normalized output of one LLM extraction call.
type Extraction struct {
	Topics    []Entity   `json:"topics"`
	People    []Entity   `json:"people"`
	Relations []Relation `json:"relations"`
}

// Entities returns topics and people as a single slice.
func (e *Extraction) Entities() []Entity {
	out := make([]Entity, 0, len(e.Topics)+len(e.People))
	out = append(out, e.Topics...)
	out = append(out, e.People...)
	return out
}

// IsEmpty reports whether the extraction carries no results.
func (e *Extraction) IsEmpty() bool {
	return len(e.Topics) == 0 && len(e.People) == 0 && len(e.Relations) == 0
}

// EmptyExtraction is the safe fallback shape returned on any extraction
// failure so callers never have to branch on nil.
func EmptyExtraction() *Extraction {
	return &Extraction{
		Topics:    []Entity{},
		People:    []Entity{},
		Relations: []Relation{},
	}
}

// CleanupStats summarizes an in-place deduplication pass.
type CleanupStats struct {
	NodesBefore  int `json:"nodes_before"`
	NodesAfter   int `json:"nodes_after"`
	NodesMerged  int `json:"nodes_merged"`
	EdgesBefore  int `json:"edges_before"`
	EdgesAfter   int `json:"edges_after"`
	EdgesDropped int `json:"edges_dropped"`
}
