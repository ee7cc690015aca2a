package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

// Neo4jGraph implements GraphIndex on a Neo4j database. Nodes are labeled
// Entity and keyed by (id, namespace); edges carry the relationship type and
// strength.
type Neo4jGraph struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jGraph creates a new Neo4j-backed graph index.
func NewNeo4jGraph(uri, username, password, database string) (*Neo4jGraph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jGraph{client: driver, database: database}, nil
}

// UpsertNode implements NodeMirror.
func (g *Neo4jGraph) UpsertNode(ctx context.Context, entity *types.Entity) error {
	session := g.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (n:Entity {id: $id, namespace: $namespace})
			SET n.name = $name,
			    n.normalized_name = $normalizedName,
			    n.entity_type = $entityType,
			    n.source_count = $sourceCount
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":             entity.ID,
			"namespace":      entity.Namespace,
			"name":           entity.CanonicalName,
			"normalizedName": utils.NormalizeName(entity.CanonicalName),
			"entityType":     string(entity.EntityType),
			"sourceCount":    entity.SourceCount,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", entity.ID, err)
	}
	return nil
}

// UpsertEdge implements EdgeMirror.
func (g *Neo4jGraph) UpsertEdge(ctx context.Context, rel *types.Relationship) error {
	session := g.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a:Entity {id: $e1, namespace: $namespace})
			MATCH (b:Entity {id: $e2, namespace: $namespace})
			MERGE (a)-[r:RELATED {rel_type: $relType}]->(b)
			SET r.strength = $strength,
			    r.validated = $validated
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"e1":        rel.Entity1ID,
			"e2":        rel.Entity2ID,
			"namespace": rel.Namespace,
			"relType":   string(rel.Type),
			"strength":  rel.Strength,
			"validated": rel.Validated,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s: %w", rel.ID, err)
	}
	return nil
}

// Search implements Traverser.
func (g *Neo4jGraph) Search(ctx context.Context, namespace, query string, maxDepth, limit int) ([]Hit, error) {
	tokens := strings.Fields(utils.NormalizeName(query))
	if len(tokens) == 0 {
		return nil, nil
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	if limit <= 0 {
		limit = 20
	}

	session := g.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
	defer session.Close(ctx)

	// Variable-length bounds cannot be parameterized in Cypher, so the
	// depth is inlined after validation.
	cypher := fmt.Sprintf(`
		MATCH (seed:Entity {namespace: $namespace})
		WHERE any(token IN $tokens WHERE seed.normalized_name CONTAINS token)
		WITH seed,
		     toFloat(size([token IN $tokens WHERE seed.normalized_name CONTAINS token])) / size($tokens) AS seedScore
		MATCH path = (seed)-[*0..%d]-(m:Entity)
		WHERE m.namespace = $namespace
		WITH m, seedScore / (1 + length(path)) AS score, length(path) AS depth,
		     [r IN relationships(path) | r.rel_type] AS via
		ORDER BY score DESC
		WITH m, collect({score: score, depth: depth, via: via})[0] AS bestHit
		RETURN m.id AS id, m.name AS name, m.entity_type AS entityType,
		       bestHit.score AS score, bestHit.depth AS depth, bestHit.via AS via
		ORDER BY score DESC
		LIMIT $limit
	`, maxDepth)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"namespace": namespace,
			"tokens":    tokens,
			"limit":     limit,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("graph search failed: %w", err)
	}

	records, ok := result.([]*neo4j.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected graph search result type %T", result)
	}
	return recordsToHits(records), nil
}

// Neighbors implements Traverser.
func (g *Neo4jGraph) Neighbors(ctx context.Context, namespace, entityID string, maxDepth int) ([]Hit, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	session := g.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
	defer session.Close(ctx)

	cypher := fmt.Sprintf(`
		MATCH path = (seed:Entity {id: $id, namespace: $namespace})-[*1..%d]-(m:Entity)
		WHERE m.namespace = $namespace AND m.id <> $id
		WITH m, min(length(path)) AS depth
		RETURN m.id AS id, m.name AS name, m.entity_type AS entityType,
		       1.0 / (1 + depth) AS score, depth AS depth, [] AS via
		ORDER BY depth, id
	`, maxDepth)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"id":        entityID,
			"namespace": namespace,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neighbor traversal failed: %w", err)
	}

	records, ok := result.([]*neo4j.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected neighbor result type %T", result)
	}
	return recordsToHits(records), nil
}

func recordsToHits(records []*neo4j.Record) []Hit {
	hits := make([]Hit, 0, len(records))
	for _, record := range records {
		hit := Hit{}
		if v, ok := record.Get("id"); ok {
			hit.EntityID, _ = v.(string)
		}
		if v, ok := record.Get("name"); ok {
			hit.Name, _ = v.(string)
		}
		if v, ok := record.Get("entityType"); ok {
			if s, ok := v.(string); ok {
				hit.EntityType = types.EntityType(s)
			}
		}
		if v, ok := record.Get("score"); ok {
			hit.Score = toFloat(v)
		}
		if v, ok := record.Get("depth"); ok {
			hit.Depth = int(toInt(v))
		}
		if v, ok := record.Get("via"); ok {
			if list, ok := v.([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						hit.Via = append(hit.Via, types.RelationshipType(s))
					}
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// Close implements GraphIndex.
func (g *Neo4jGraph) Close(ctx context.Context) error {
	return g.client.Close(ctx)
}

var _ GraphIndex = (*Neo4jGraph)(nil)
