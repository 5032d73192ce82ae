package topicgraph

import (
	"context"
	"fmt"

	apperrors "github.com/miofuku/ai-diary/pkg/errors"
	"github.com/miofuku/ai-diary/pkg/logger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jPersistence mirrors the topic graph into Neo4j so the diary's
// knowledge graph can be explored with Cypher. Nodes carry the Entity label;
// relations are RELATES edges with the free-form predicate kept as a `type`
// property, since Cypher relationship types cannot be parameterized.
type Neo4jPersistence struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jPersistence verifies connectivity and returns a Neo4j-backed graph
// persistence.
func NewNeo4jPersistence(ctx context.Context, uri, user, password string) (*Neo4jPersistence, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	return &Neo4jPersistence{
		driver: driver,
		logger: logger.Get(),
	}, nil
}

// Close closes the underlying driver.
func (p *Neo4jPersistence) Close(ctx context.Context) error {
	return p.driver.Close(ctx)
}

// Load reads the full graph.
func (p *Neo4jPersistence) Load(ctx context.Context) (*Graph, error) {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	g := &Graph{Nodes: []Entity{}, Edges: []Relation{}}

	nodeQuery := `
		MATCH (e:Entity)
		RETURN e.id as id, e.name as name, e.kind as kind, e.category as category,
		       e.topic_type as topic_type, e.importance as importance,
		       e.sentiment as sentiment, e.context as context,
		       e.keywords as keywords, e.aliases as aliases, e.role as role
	`
	result, err := session.Run(ctx, nodeQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph nodes: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		g.Nodes = append(g.Nodes, Entity{
			ID:         recordString(record, "id"),
			Name:       recordString(record, "name"),
			Kind:       Kind(recordString(record, "kind")),
			Category:   recordString(record, "category"),
			TopicType:  recordString(record, "topic_type"),
			Importance: recordInt(record, "importance"),
			Sentiment:  recordFloat(record, "sentiment"),
			Context:    recordString(record, "context"),
			Keywords:   recordStringSlice(record, "keywords"),
			Aliases:    recordStringSlice(record, "aliases"),
			Role:       recordString(record, "role"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read graph nodes: %w", err)
	}

	edgeQuery := `
		MATCH (a:Entity)-[r:RELATES]->(b:Entity)
		RETURN a.id as source, b.id as target, r.type as type, r.strength as strength
	`
	result, err = session.Run(ctx, edgeQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph edges: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		g.Edges = append(g.Edges, Relation{
			Source:   recordString(record, "source"),
			Target:   recordString(record, "target"),
			Type:     recordString(record, "type"),
			Strength: recordInt(record, "strength"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read graph edges: %w", err)
	}

	return g, nil
}

// Save replaces the mirrored graph in one write transaction. The graph is
// small (hundreds of nodes), so rewrite-on-save keeps the mirror trivially
// consistent with the canonical in-memory state.
func (p *Neo4jPersistence) Save(ctx context.Context, g *Graph) error {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	nodes := make([]map[string]any, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, map[string]any{
			"id":         n.ID,
			"name":       n.Name,
			"kind":       string(n.Kind),
			"category":   n.Category,
			"topic_type": n.TopicType,
			"importance": n.Importance,
			"sentiment":  n.Sentiment,
			"context":    n.Context,
			"keywords":   n.Keywords,
			"aliases":    n.Aliases,
			"role":       n.Role,
		})
	}
	edges := make([]map[string]any, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, map[string]any{
			"source":   e.Source,
			"target":   e.Target,
			"type":     e.Type,
			"strength": e.Strength,
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (e:Entity) DETACH DELETE e`, nil); err != nil {
			return nil, err
		}
		nodeQuery := `
			UNWIND $nodes as node
			CREATE (e:Entity)
			SET e = node
		`
		if _, err := tx.Run(ctx, nodeQuery, map[string]any{"nodes": nodes}); err != nil {
			return nil, err
		}
		edgeQuery := `
			UNWIND $edges as edge
			MATCH (a:Entity {id: edge.source})
			MATCH (b:Entity {id: edge.target})
			CREATE (a)-[:RELATES {type: edge.type, strength: edge.strength}]->(b)
		`
		if _, err := tx.Run(ctx, edgeQuery, map[string]any{"edges": edges}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to save graph to Neo4j: %w", err)
	}

	p.logger.Debug("Topic graph mirrored to Neo4j",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
	)
	return nil
}

// Record helpers

func recordString(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func recordInt(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func recordFloat(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func recordStringSlice(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok {
		return nil
	}
	slice, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
