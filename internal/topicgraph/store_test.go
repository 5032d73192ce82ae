package topicgraph

import (
	"context"
	"errors"
	"testing"
)

// memPersistence keeps the graph in memory for tests.
type memPersistence struct {
	graph   *Graph
	saveErr error
	saves   int
}

func (m *memPersistence) Load(ctx context.Context) (*Graph, error) {
	return m.graph, nil
}

func (m *memPersistence) Save(ctx context.Context, g *Graph) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.graph = g
	m.saves++
	return nil
}

func newTestStore(t *testing.T) (*Store, *memPersistence) {
	t.Helper()
	persist := &memPersistence{}
	store, err := NewStore(context.Background(), persist)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store, persist
}

func TestUpsertBatch_InsertAndSnapshot(t *testing.T) {
	store, persist := newTestStore(t)
	ctx := context.Background()

	nodes := []Entity{
		{ID: "topic_golang", Name: "Golang", Kind: KindTopic, Category: CategoryTechnologies, Importance: 4},
		{ID: "person_zhang_wei", Name: "Zhang Wei", Kind: KindPerson, Importance: 3},
	}
	edges := []Relation{
		{Source: "person_zhang_wei", Target: "topic_golang", Type: "works_on", Strength: 4},
	}

	if err := store.UpsertBatch(ctx, nodes, edges); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	g := store.Snapshot()
	if len(g.Nodes) != 2 {
		t.Errorf("Expected 2 nodes, got %d", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Errorf("Expected 1 edge, got %d", len(g.Edges))
	}
	if persist.saves == 0 {
		t.Error("Expected the batch to be written through to persistence")
	}
}

func TestUpsertBatch_MergeKeepsExistingID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := []Entity{
		{ID: "topic_oa", Name: "OA系统", Kind: KindTopic, Keywords: []string{"oa", "办公", "系统"}},
	}
	if err := store.UpsertBatch(ctx, first, nil); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	second := []Entity{
		{ID: "topic_bangong", Name: "办公自动化系统", Kind: KindTopic, Keywords: []string{"oa", "办公", "系统"}},
	}
	if err := store.UpsertBatch(ctx, second, nil); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	g := store.Snapshot()
	if len(g.Nodes) != 1 {
		t.Fatalf("Expected the near-duplicate to merge into 1 node, got %d", len(g.Nodes))
	}
	if g.Nodes[0].ID != "topic_oa" {
		t.Errorf("Expected the existing id to survive the merge, got %s", g.Nodes[0].ID)
	}
	if g.Nodes[0].Name != "办公自动化系统" {
		t.Errorf("Expected the longer name after merge, got %s", g.Nodes[0].Name)
	}
}

func TestUpsertBatch_EdgeRemapThroughMerge(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertBatch(ctx, []Entity{
		{ID: "topic_oa", Name: "OA系统", Kind: KindTopic, Keywords: []string{"oa", "办公", "系统"}},
		{ID: "person_liu", Name: "刘健", Kind: KindPerson},
	}, nil); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	// Incoming batch merges into topic_oa; its edge must follow the remap
	err := store.UpsertBatch(ctx, []Entity{
		{ID: "topic_bangong", Name: "办公自动化系统", Kind: KindTopic, Keywords: []string{"oa", "办公", "系统"}},
	}, []Relation{
		{Source: "person_liu", Target: "topic_bangong", Type: "works_on", Strength: 3},
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	g := store.Snapshot()
	if len(g.Edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(g.Edges))
	}
	if g.Edges[0].Target != "topic_oa" {
		t.Errorf("Expected edge target remapped to topic_oa, got %s", g.Edges[0].Target)
	}
}

func TestUpsertBatch_EdgeFirstWriteWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	nodes := []Entity{
		{ID: "topic_a", Name: "alpha work", Kind: KindTopic},
		{ID: "topic_b", Name: "beta work", Kind: KindTopic},
	}
	if err := store.UpsertBatch(ctx, nodes, []Relation{
		{Source: "topic_a", Target: "topic_b", Type: "related", Strength: 3},
	}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	// Same key with a differing strength must be discarded
	if err := store.UpsertBatch(ctx, nil, []Relation{
		{Source: "topic_a", Target: "topic_b", Type: "related", Strength: 5},
	}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	g := store.Snapshot()
	if len(g.Edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(g.Edges))
	}
	if g.Edges[0].Strength != 3 {
		t.Errorf("Expected the first-written strength 3 to survive, got %d", g.Edges[0].Strength)
	}
}

func TestUpsertBatch_DropsDanglingEdges(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertBatch(ctx, []Entity{
		{ID: "topic_a", Name: "alpha work", Kind: KindTopic},
	}, []Relation{
		{Source: "topic_a", Target: "topic_missing", Type: "related", Strength: 2},
		{Source: "topic_missing", Target: "topic_a", Type: "related", Strength: 2},
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	if g := store.Snapshot(); len(g.Edges) != 0 {
		t.Errorf("Expected dangling edges dropped, got %d", len(g.Edges))
	}
}

func TestUpsertBatch_ReplacesGeneratedIDs(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertBatch(ctx, []Entity{
		{ID: "topic_1", Name: "Machine Learning", Kind: KindTopic},
	}, nil)
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	g := store.Snapshot()
	if g.Nodes[0].ID != "topic_machine_learning" {
		t.Errorf("Expected placeholder id replaced by a name-derived one, got %s", g.Nodes[0].ID)
	}
}

func TestUpsertBatch_EdgeFollowsRegeneratedID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.UpsertBatch(ctx, []Entity{
		{ID: "topic_1", Name: "Machine Learning", Kind: KindTopic},
		{ID: "person_1", Name: "Zhang Wei", Kind: KindPerson},
	}, []Relation{
		{Source: "person_1", Target: "topic_1", Type: "studies", Strength: 4},
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	g := store.Snapshot()
	if len(g.Edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(g.Edges))
	}
	if g.Edges[0].Source != "person_zhang_wei" || g.Edges[0].Target != "topic_machine_learning" {
		t.Errorf("Expected edge endpoints remapped to regenerated ids, got %s -> %s",
			g.Edges[0].Source, g.Edges[0].Target)
	}
}

func TestUpsertBatch_SkipsNamelessEntities(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.UpsertBatch(context.Background(), []Entity{
		{ID: "topic_x", Name: "", Kind: KindTopic},
	}, nil); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	if g := store.Snapshot(); len(g.Nodes) != 0 {
		t.Errorf("Expected nameless entity skipped, got %d nodes", len(g.Nodes))
	}
}

func TestUpsertBatch_PersistFailureSurfaces(t *testing.T) {
	persist := &memPersistence{}
	store, err := NewStore(context.Background(), persist)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	persist.saveErr = errors.New("disk full")
	err = store.UpsertBatch(context.Background(), []Entity{
		{ID: "topic_a", Name: "alpha", Kind: KindTopic},
	}, nil)
	if err == nil {
		t.Error("Expected UpsertBatch to surface the persistence error")
	}
}

func TestResolve(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertBatch(ctx, []Entity{
		{ID: "topic_golang", Name: "Golang", Kind: KindTopic, Category: CategoryTechnologies},
	}, nil); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	if existing, ok := store.Resolve(Entity{Name: "golang", Kind: KindTopic}); !ok {
		t.Error("Expected exact-name entity to resolve")
	} else if existing.ID != "topic_golang" {
		t.Errorf("Expected resolution to topic_golang, got %s", existing.ID)
	}

	if _, ok := store.Resolve(Entity{Name: "kubernetes", Kind: KindTopic}); ok {
		t.Error("Expected unrelated entity not to resolve")
	}

	// A person never resolves against a topic of the same name
	if _, ok := store.Resolve(Entity{Name: "Golang", Kind: KindPerson}); ok {
		t.Error("Expected kind mismatch to block resolution")
	}
}

func TestDedupeAll(t *testing.T) {
	persist := &memPersistence{graph: &Graph{
		Nodes: []Entity{
			{ID: "topic_ml", Name: "machine learning", Kind: KindTopic},
			{ID: "topic_ml2", Name: "Machine-Learning", Kind: KindTopic},
			{ID: "topic_go", Name: "golang backend", Kind: KindTopic},
			{ID: "person_liu", Name: "刘健", Kind: KindPerson},
			{ID: "person_liu2", Name: "刘健（老师）", Kind: KindPerson},
		},
		Edges: []Relation{
			{Source: "person_liu2", Target: "topic_ml2", Type: "studies", Strength: 3},
			{Source: "person_liu", Target: "topic_ml", Type: "studies", Strength: 4},
			{Source: "topic_go", Target: "topic_ml", Type: "related", Strength: 2},
		},
	}}

	store, err := NewStore(context.Background(), persist)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	stats, err := store.DedupeAll(context.Background())
	if err != nil {
		t.Fatalf("DedupeAll failed: %v", err)
	}

	if stats.NodesBefore != 5 || stats.NodesAfter != 3 {
		t.Errorf("Expected 5 nodes deduped to 3, got %d -> %d", stats.NodesBefore, stats.NodesAfter)
	}
	if stats.NodesMerged != 2 {
		t.Errorf("Expected 2 nodes merged away, got %d", stats.NodesMerged)
	}

	g := store.Snapshot()
	nodeIDs := make(map[string]struct{})
	for _, n := range g.Nodes {
		nodeIDs[n.ID] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := nodeIDs[e.Source]; !ok {
			t.Errorf("Edge source %s dangles after dedupe", e.Source)
		}
		if _, ok := nodeIDs[e.Target]; !ok {
			t.Errorf("Edge target %s dangles after dedupe", e.Target)
		}
	}

	// The two studies edges collapse onto the same key after remapping
	if len(g.Edges) != 2 {
		t.Errorf("Expected 2 edges after dedupe, got %d", len(g.Edges))
	}
	if stats.EdgesDropped != 1 {
		t.Errorf("Expected 1 edge dropped, got %d", stats.EdgesDropped)
	}
}

func TestClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertBatch(ctx, []Entity{
		{ID: "topic_a", Name: "alpha", Kind: KindTopic},
	}, nil); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	g := store.Snapshot()
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Errorf("Expected empty graph after clear, got %d nodes %d edges", len(g.Nodes), len(g.Edges))
	}
}
