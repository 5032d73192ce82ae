package topicgraph

import (
	"context"

	"github.com/miofuku/ai-diary/internal/storage"
)

// graphDocument is the on-disk name of the topic graph.
const graphDocument = "topic_graph.json"

// FilePersistence stores the graph as a JSON document in the data directory.
// This is the default backend.
type FilePersistence struct {
	store *storage.JSONStore
}

// NewFilePersistence returns a file-backed graph persistence.
func NewFilePersistence(store *storage.JSONStore) *FilePersistence {
	return &FilePersistence{store: store}
}

// Load reads the persisted graph, healing a missing or corrupt document to
// the empty graph.
func (p *FilePersistence) Load(_ context.Context) (*Graph, error) {
	g := &Graph{Nodes: []Entity{}, Edges: []Relation{}}
	if err := p.store.Load(graphDocument, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Save writes the graph document.
func (p *FilePersistence) Save(_ context.Context, g *Graph) error {
	return p.store.Save(graphDocument, g)
}
