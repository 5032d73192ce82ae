package topicgraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/miofuku/ai-diary/pkg/logger"
	"go.uber.org/zap"
)

// ============================================================================
// Topic Graph Store
// ============================================================================

// Persistence is the durable backend for the graph document. The file-backed
// implementation is the default; a Neo4j implementation is available for
// deployments that want the graph queryable.
type Persistence interface {
	Load(ctx context.Context) (*Graph, error)
	Save(ctx context.Context, g *Graph) error
}

// Store holds the in-memory topic graph and serializes every mutation behind
// a single writer lock. Each successful mutation is written through to the
// persistence backend before returning; a persistence failure is surfaced to
// the caller rather than silently dropped.
type Store struct {
	mu      sync.Mutex
	graph   Graph
	persist Persistence
	logger  *zap.Logger
}

// NewStore loads the persisted graph and returns a store over it.
func NewStore(ctx context.Context, persist Persistence) (*Store, error) {
	g, err := persist.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic graph: %w", err)
	}
	if g == nil {
		g = &Graph{}
	}
	return &Store{
		graph:   *g,
		persist: persist,
		logger:  logger.Get(),
	}, nil
}

// Snapshot returns a copy of the current graph.
func (s *Store) Snapshot() Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyGraphLocked()
}

func (s *Store) copyGraphLocked() Graph {
	g := Graph{
		Nodes: make([]Entity, len(s.graph.Nodes)),
		Edges: make([]Relation, len(s.graph.Edges)),
	}
	copy(g.Nodes, s.graph.Nodes)
	copy(g.Edges, s.graph.Edges)
	return g
}

// FindByID returns the node with the given id.
func (s *Store) FindByID(id string) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.graph.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Entity{}, false
}

// Resolve returns the existing node the entity would merge into on upsert, if
// any. The detection pipeline uses this to separate known entities (written
// directly) from newly seen ones (routed through the suggestion queue).
func (s *Store) Resolve(e Entity) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.matchLocked(e)
	if idx < 0 {
		return Entity{}, false
	}
	return s.graph.Nodes[idx], true
}

// matchLocked scans existing nodes of the same kind and returns the index of
// the first merge candidate, or -1. People only merge above their strict
// threshold. Topics merge above their category threshold, and additionally
// above the looser bar against already-canonical nodes so the graph does not
// fragment into near-duplicates over time.
func (s *Store) matchLocked(e Entity) int {
	for i, existing := range s.graph.Nodes {
		if existing.Kind != e.Kind {
			continue
		}
		sim := Similarity(existing, e)
		if e.Kind == KindPerson {
			if sim >= MergeThreshold(KindPerson, "") {
				return i
			}
			continue
		}
		if sim >= MergeThreshold(e.Kind, e.Category) || sim > upsertMergeBar {
			return i
		}
	}
	return -1
}

// UpsertBatch folds one extraction batch into the graph. Every incoming
// entity either merges into its first matching existing node or is inserted
// with a unique id. Incoming edges are remapped through merged/rewritten ids,
// deduplicated by (source, target, type) and dropped when either endpoint is
// absent, so the no-dangling-edges guarantee holds on return.
func (s *Store) UpsertBatch(ctx context.Context, nodes []Entity, edges []Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idMap := make(map[string]string, len(nodes))
	merged, inserted := 0, 0

	for _, incoming := range nodes {
		if incoming.Name == "" {
			continue
		}
		if idx := s.matchLocked(incoming); idx >= 0 {
			existing := s.graph.Nodes[idx]
			combined := Merge([]Entity{existing, incoming})
			combined.ID = existing.ID // ids are immutable once created
			s.graph.Nodes[idx] = combined
			if incoming.ID != "" {
				idMap[incoming.ID] = existing.ID
			}
			merged++
			continue
		}

		node := incoming
		originalID := node.ID
		if LooksGenerated(node.ID) || s.idTakenLocked(node.ID) {
			node.ID = GenerateID(node.Name, node.Kind, s.idTakenLocked)
		}
		if originalID != "" && originalID != node.ID {
			idMap[originalID] = node.ID
		}
		s.graph.Nodes = append(s.graph.Nodes, node)
		inserted++
	}

	existingKeys := make(map[string]struct{}, len(s.graph.Edges))
	for _, e := range s.graph.Edges {
		existingKeys[e.Key()] = struct{}{}
	}
	nodeIDs := s.nodeIDSetLocked()

	added, dropped := 0, 0
	for _, edge := range edges {
		if mapped, ok := idMap[edge.Source]; ok {
			edge.Source = mapped
		}
		if mapped, ok := idMap[edge.Target]; ok {
			edge.Target = mapped
		}
		if _, ok := nodeIDs[edge.Source]; !ok {
			dropped++
			continue
		}
		if _, ok := nodeIDs[edge.Target]; !ok {
			dropped++
			continue
		}
		key := edge.Key()
		if _, ok := existingKeys[key]; ok {
			// first write wins; a differing strength on an equal edge is discarded
			continue
		}
		existingKeys[key] = struct{}{}
		s.graph.Edges = append(s.graph.Edges, edge)
		added++
	}

	s.logger.Debug("Topic graph batch upserted",
		zap.Int("merged", merged),
		zap.Int("inserted", inserted),
		zap.Int("edges_added", added),
		zap.Int("edges_dropped", dropped),
	)

	return s.saveLocked(ctx)
}

// DedupeAll re-runs pairwise similarity over the whole graph, merging groups
// of near-duplicates in place and rewriting edges through the old-id to
// new-id map. Edges whose endpoints vanished are dropped, as are exact
// duplicates by key.
func (s *Store) DedupeAll(ctx context.Context) (CleanupStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := CleanupStats{
		NodesBefore: len(s.graph.Nodes),
		EdgesBefore: len(s.graph.Edges),
	}

	byKind := map[Kind][][]Entity{}
	for _, node := range s.graph.Nodes {
		groups := byKind[node.Kind]
		placed := false
		for gi, group := range groups {
			if Similarity(group[0], node) >= MergeThreshold(node.Kind, group[0].Category) {
				groups[gi] = append(group, node)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []Entity{node})
		}
		byKind[node.Kind] = groups
	}

	idMap := make(map[string]string)
	var newNodes []Entity
	for _, groups := range byKind {
		for _, group := range groups {
			combined := Merge(group)
			combined.ID = group[0].ID
			newNodes = append(newNodes, combined)
			for _, member := range group {
				idMap[member.ID] = combined.ID
			}
		}
	}
	s.graph.Nodes = newNodes

	nodeIDs := s.nodeIDSetLocked()
	seenKeys := make(map[string]struct{}, len(s.graph.Edges))
	var newEdges []Relation
	for _, edge := range s.graph.Edges {
		if mapped, ok := idMap[edge.Source]; ok {
			edge.Source = mapped
		}
		if mapped, ok := idMap[edge.Target]; ok {
			edge.Target = mapped
		}
		if _, ok := nodeIDs[edge.Source]; !ok {
			continue
		}
		if _, ok := nodeIDs[edge.Target]; !ok {
			continue
		}
		key := edge.Key()
		if _, ok := seenKeys[key]; ok {
			continue
		}
		seenKeys[key] = struct{}{}
		newEdges = append(newEdges, edge)
	}
	s.graph.Edges = newEdges

	stats.NodesAfter = len(s.graph.Nodes)
	stats.NodesMerged = stats.NodesBefore - stats.NodesAfter
	stats.EdgesAfter = len(s.graph.Edges)
	stats.EdgesDropped = stats.EdgesBefore - stats.EdgesAfter

	s.logger.Info("Topic graph deduplicated",
		zap.Int("nodes_merged", stats.NodesMerged),
		zap.Int("edges_dropped", stats.EdgesDropped),
	)

	return stats, s.saveLocked(ctx)
}

// Clear empties the graph. Used by full rebuild before re-extracting the
// whole diary corpus.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = Graph{}
	s.logger.Info("Topic graph cleared for rebuild")
	return s.saveLocked(ctx)
}

func (s *Store) idTakenLocked(id string) bool {
	for _, n := range s.graph.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) nodeIDSetLocked() map[string]struct{} {
	set := make(map[string]struct{}, len(s.graph.Nodes))
	for _, n := range s.graph.Nodes {
		set[n.ID] = struct{}{}
	}
	return set
}

func (s *Store) saveLocked(ctx context.Context) error {
	g := s.copyGraphLocked()
	if err := s.persist.Save(ctx, &g); err != nil {
		return fmt.Errorf("failed to persist topic graph: %w", err)
	}
	return nil
}
