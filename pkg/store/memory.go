package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

// MemoryStore is an in-process KnowledgeStore used for tests and ephemeral
// runs. All reads return deep copies so callers can never mutate shared
// state behind the version check.
type MemoryStore struct {
	mu            sync.RWMutex
	entities      map[string]map[string]*types.Entity       // namespace -> id
	relationships map[string]map[string]*types.Relationship // namespace -> id
	relKeys       map[string]string                         // upsert key -> id
	patterns      map[string]*types.Pattern
	audits        []*types.AuditRecord
	auditsByID    map[string]*types.AuditRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:      make(map[string]map[string]*types.Entity),
		relationships: make(map[string]map[string]*types.Relationship),
		relKeys:       make(map[string]string),
		patterns:      make(map[string]*types.Pattern),
		auditsByID:    make(map[string]*types.AuditRecord),
	}
}

func cloneJSON[T any](in *T) *T {
	raw, err := json.Marshal(in)
	if err != nil {
		panic(fmt.Sprintf("memory store clone: %v", err))
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("memory store clone: %v", err))
	}
	return out
}

func relKey(namespace string, relType types.RelationshipType, e1, e2 string) string {
	t, a, b := types.NormalizePair(relType, e1, e2)
	return namespace + "|" + string(t) + "|" + a + "|" + b
}

// GetEntity implements EntityStore.
func (m *MemoryStore) GetEntity(ctx context.Context, namespace, id string) (*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entities[namespace][id]; ok {
		return cloneJSON(e), nil
	}
	return nil, ErrNotFound
}

// ListEntities implements EntityStore.
func (m *MemoryStore) ListEntities(ctx context.Context, namespace string, entityType types.EntityType) ([]*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Entity
	for _, e := range m.entities[namespace] {
		if e.EntityType == entityType {
			out = append(out, cloneJSON(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEntitiesByType implements EntityStore.
func (m *MemoryStore) ListEntitiesByType(ctx context.Context, entityType types.EntityType) ([]*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Entity
	for _, ns := range m.entities {
		for _, e := range ns {
			if e.EntityType == entityType {
				out = append(out, cloneJSON(e))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateEntity implements EntityStore.
func (m *MemoryStore) CreateEntity(ctx context.Context, entity *types.Entity) error {
	if err := entity.ValidateForCreate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.entities[entity.Namespace]
	if !ok {
		ns = make(map[string]*types.Entity)
		m.entities[entity.Namespace] = ns
	}
	if _, exists := ns[entity.ID]; exists {
		return ErrDuplicateID
	}
	stored := cloneJSON(entity)
	stored.Version = 1
	ns[entity.ID] = stored
	entity.Version = 1
	return nil
}

// UpdateEntity implements EntityStore.
func (m *MemoryStore) UpdateEntity(ctx context.Context, entity *types.Entity, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.entities[entity.Namespace][entity.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	stored := cloneJSON(entity)
	stored.Version = expectedVersion + 1
	m.entities[entity.Namespace][entity.ID] = stored
	entity.Version = stored.Version
	return nil
}

// GetRelationship implements RelationshipStore.
func (m *MemoryStore) GetRelationship(ctx context.Context, namespace, id string) (*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.relationships[namespace][id]; ok {
		return cloneJSON(r), nil
	}
	return nil, ErrNotFound
}

// GetRelationshipByKey implements RelationshipStore.
func (m *MemoryStore) GetRelationshipByKey(ctx context.Context, namespace string, relType types.RelationshipType, entity1ID, entity2ID string) (*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.relKeys[relKey(namespace, relType, entity1ID, entity2ID)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJSON(m.relationships[namespace][id]), nil
}

// ListRelationships implements RelationshipStore.
func (m *MemoryStore) ListRelationships(ctx context.Context, namespace, entityID string) ([]*types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Relationship
	for _, r := range m.relationships[namespace] {
		if r.Entity1ID == entityID || r.Entity2ID == entityID {
			out = append(out, cloneJSON(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateRelationship implements RelationshipStore.
func (m *MemoryStore) CreateRelationship(ctx context.Context, rel *types.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if rel.ID == "" {
		return types.ErrEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := relKey(rel.Namespace, rel.Type, rel.Entity1ID, rel.Entity2ID)
	if _, exists := m.relKeys[key]; exists {
		return ErrDuplicateID
	}
	ns, ok := m.relationships[rel.Namespace]
	if !ok {
		ns = make(map[string]*types.Relationship)
		m.relationships[rel.Namespace] = ns
	}
	stored := cloneJSON(rel)
	stored.Version = 1
	ns[rel.ID] = stored
	m.relKeys[key] = rel.ID
	rel.Version = 1
	return nil
}

// UpdateRelationship implements RelationshipStore.
func (m *MemoryStore) UpdateRelationship(ctx context.Context, rel *types.Relationship, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.relationships[rel.Namespace][rel.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	stored := cloneJSON(rel)
	stored.Version = expectedVersion + 1
	m.relationships[rel.Namespace][rel.ID] = stored
	rel.Version = stored.Version
	return nil
}

// GetPattern implements PatternStore.
func (m *MemoryStore) GetPattern(ctx context.Context, id string) (*types.Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.patterns[id]; ok {
		return cloneJSON(p), nil
	}
	return nil, ErrNotFound
}

// ListPatterns implements PatternStore.
func (m *MemoryStore) ListPatterns(ctx context.Context) ([]*types.Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, cloneJSON(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriorityScore > out[j].PriorityScore })
	return out, nil
}

// UpsertPattern implements PatternStore.
func (m *MemoryStore) UpsertPattern(ctx context.Context, pattern *types.Pattern) error {
	if err := pattern.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[pattern.ID] = cloneJSON(pattern)
	return nil
}

// AppendAudit implements AuditStore.
func (m *MemoryStore) AppendAudit(ctx context.Context, record *types.AuditRecord) error {
	if record.ID == "" {
		return types.ErrEmptyID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.auditsByID[record.ID]; exists {
		return ErrDuplicateID
	}
	stored := cloneJSON(record)
	m.audits = append(m.audits, stored)
	m.auditsByID[record.ID] = stored
	return nil
}

// GetAudit implements AuditStore.
func (m *MemoryStore) GetAudit(ctx context.Context, id string) (*types.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.auditsByID[id]; ok {
		return cloneJSON(r), nil
	}
	return nil, ErrNotFound
}

// ListAudits implements AuditStore.
func (m *MemoryStore) ListAudits(ctx context.Context, namespace string, limit int) ([]*types.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.AuditRecord
	for i := len(m.audits) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.audits[i].Namespace == namespace {
			out = append(out, cloneJSON(m.audits[i]))
		}
	}
	return out, nil
}

// SearchEntitiesByEmbedding implements VectorSearcher.
func (m *MemoryStore) SearchEntitiesByEmbedding(ctx context.Context, namespace string, vector []float32, limit int) ([]*types.Entity, []float64, error) {
	if len(vector) == 0 {
		return nil, nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		entity *types.Entity
		score  float64
	}
	var ranked []scored
	for _, e := range m.entities[namespace] {
		if len(e.DescriptionEmbedding) == 0 {
			continue
		}
		score := utils.CosineSimilarity(vector, e.DescriptionEmbedding)
		ranked = append(ranked, scored{entity: e, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].entity.ID < ranked[j].entity.ID
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	entities := make([]*types.Entity, len(ranked))
	scores := make([]float64, len(ranked))
	for i, r := range ranked {
		entities[i] = cloneJSON(r.entity)
		scores[i] = r.score
	}
	return entities, scores, nil
}

// Stats implements Admin.
func (m *MemoryStore) Stats(ctx context.Context, namespace string) (*NamespaceStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &NamespaceStats{Namespace: namespace}
	stats.Entities = len(m.entities[namespace])
	stats.Relationships = len(m.relationships[namespace])
	for _, a := range m.audits {
		if a.Namespace == namespace {
			stats.AuditRecords++
		}
	}
	return stats, nil
}

// Close implements Admin.
func (m *MemoryStore) Close() error { return nil }

var _ KnowledgeStore = (*MemoryStore)(nil)
