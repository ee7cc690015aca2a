package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

// SQLStore implements KnowledgeStore on database/sql. It supports external
// PostgreSQL (lib/pq) and embedded SQLite (modernc.org/sqlite) behind the
// same schema: set-valued and structured columns are JSON-encoded, and every
// mutable table carries an optimistic version column.
//
// Vector ranking loads the namespace's embedded entities and scores them in
// process; native vector indexes are a backend concern this store does not
// assume.
type SQLStore struct {
	db     *sql.DB
	driver string
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '{}',
	observations TEXT NOT NULL DEFAULT '{}',
	mentioned_in TEXT NOT NULL DEFAULT '[]',
	source_count INTEGER NOT NULL DEFAULT 0,
	consensus_confidence REAL NOT NULL DEFAULT 0,
	has_contradictions INTEGER NOT NULL DEFAULT 0,
	contradiction_details TEXT NOT NULL DEFAULT '[]',
	description_embedding TEXT NOT NULL DEFAULT '[]',
	name_embedding TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	last_enriched_at TEXT NOT NULL,
	enrichment_count INTEGER NOT NULL DEFAULT 0,
	version BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_entities_partition ON entities (namespace, entity_type);

CREATE TABLE IF NOT EXISTS relationships (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	rel_type TEXT NOT NULL,
	entity1_id TEXT NOT NULL,
	entity2_id TEXT NOT NULL,
	strength REAL NOT NULL DEFAULT 0,
	source_refs TEXT NOT NULL DEFAULT '[]',
	validated INTEGER NOT NULL DEFAULT 0,
	validation_type TEXT NOT NULL DEFAULT 'single_source',
	confidence REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	UNIQUE (namespace, rel_type, entity1_id, entity2_id)
);
CREATE INDEX IF NOT EXISTS idx_relationships_entities ON relationships (namespace, entity1_id, entity2_id);

CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	pattern_type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	frequency INTEGER NOT NULL DEFAULT 0,
	member_entity_ids TEXT NOT NULL DEFAULT '[]',
	namespaces_involved TEXT NOT NULL DEFAULT '[]',
	priority_score REAL NOT NULL DEFAULT 0,
	recommended_action TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	last_updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS consolidation_audit (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	ts TEXT NOT NULL,
	merged_entity_ids TEXT NOT NULL DEFAULT '[]',
	resulting_entity_id TEXT NOT NULL,
	similarity_score REAL NOT NULL DEFAULT 0,
	decision TEXT NOT NULL,
	rollback_snapshot TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_namespace ON consolidation_audit (namespace, ts);
`

// NewSQLStore opens the database, configures pooling, and ensures the
// schema. driver is "postgres" or "sqlite".
func NewSQLStore(driver, dsn string, maxOpenConns int) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	if driver == "sqlite" {
		// modernc sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY churn.
		maxOpenConns = 1
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s store: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureSchema() error {
	for _, stmt := range strings.Split(createTablesSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $N for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func marshalJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func unmarshalJSON(raw string, v interface{}) {
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

const entityColumns = `id, namespace, entity_type, canonical_name, description,
	attributes, observations, mentioned_in, source_count, consensus_confidence,
	has_contradictions, contradiction_details, description_embedding,
	name_embedding, created_at, last_enriched_at, enrichment_count, version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var e types.Entity
	var attrs, obs, mentioned, details, descEmb, nmEmb string
	var createdAt, enrichedAt string
	var contradictions int
	err := row.Scan(&e.ID, &e.Namespace, &e.EntityType, &e.CanonicalName,
		&e.Description, &attrs, &obs, &mentioned, &e.SourceCount,
		&e.ConsensusConfidence, &contradictions, &details, &descEmb, &nmEmb,
		&createdAt, &enrichedAt, &e.EnrichmentCount, &e.Version)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(attrs, &e.Attributes)
	unmarshalJSON(obs, &e.Observations)
	unmarshalJSON(mentioned, &e.MentionedIn)
	unmarshalJSON(details, &e.ContradictionDetails)
	unmarshalJSON(descEmb, &e.DescriptionEmbedding)
	unmarshalJSON(nmEmb, &e.NameEmbedding)
	e.HasContradictions = contradictions != 0
	e.CreatedAt = parseTime(createdAt)
	e.LastEnrichedAt = parseTime(enrichedAt)
	return &e, nil
}

// GetEntity implements EntityStore.
func (s *SQLStore) GetEntity(ctx context.Context, namespace, id string) (*types.Entity, error) {
	query := s.rebind(`SELECT ` + entityColumns + ` FROM entities WHERE namespace = ? AND id = ?`)
	entity, err := scanEntity(s.db.QueryRowContext(ctx, query, namespace, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

func (s *SQLStore) queryEntities(ctx context.Context, query string, args ...interface{}) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []*types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

// ListEntities implements EntityStore.
func (s *SQLStore) ListEntities(ctx context.Context, namespace string, entityType types.EntityType) ([]*types.Entity, error) {
	return s.queryEntities(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE namespace = ? AND entity_type = ? ORDER BY id`,
		namespace, string(entityType))
}

// ListEntitiesByType implements EntityStore.
func (s *SQLStore) ListEntitiesByType(ctx context.Context, entityType types.EntityType) ([]*types.Entity, error) {
	return s.queryEntities(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = ? ORDER BY id`,
		string(entityType))
}

// CreateEntity implements EntityStore.
func (s *SQLStore) CreateEntity(ctx context.Context, entity *types.Entity) error {
	if err := entity.ValidateForCreate(); err != nil {
		return err
	}
	query := s.rebind(`INSERT INTO entities (` + entityColumns + `, normalized_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		entity.ID, entity.Namespace, string(entity.EntityType), entity.CanonicalName,
		entity.Description, marshalJSON(entity.Attributes), marshalJSON(entity.Observations),
		marshalJSON(entity.MentionedIn), entity.SourceCount, entity.ConsensusConfidence,
		boolToInt(entity.HasContradictions), marshalJSON(entity.ContradictionDetails),
		marshalJSON(entity.DescriptionEmbedding), marshalJSON(entity.NameEmbedding),
		formatTime(entity.CreatedAt), formatTime(entity.LastEnrichedAt),
		entity.EnrichmentCount, int64(1), utils.NormalizeName(entity.CanonicalName))
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}
	entity.Version = 1
	return nil
}

// UpdateEntity implements EntityStore.
func (s *SQLStore) UpdateEntity(ctx context.Context, entity *types.Entity, expectedVersion int64) error {
	query := s.rebind(`UPDATE entities SET canonical_name = ?, normalized_name = ?,
		description = ?, attributes = ?, observations = ?, mentioned_in = ?,
		source_count = ?, consensus_confidence = ?, has_contradictions = ?,
		contradiction_details = ?, description_embedding = ?, name_embedding = ?,
		last_enriched_at = ?, enrichment_count = ?, version = version + 1
		WHERE namespace = ? AND id = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, query,
		entity.CanonicalName, utils.NormalizeName(entity.CanonicalName),
		entity.Description, marshalJSON(entity.Attributes), marshalJSON(entity.Observations),
		marshalJSON(entity.MentionedIn), entity.SourceCount, entity.ConsensusConfidence,
		boolToInt(entity.HasContradictions), marshalJSON(entity.ContradictionDetails),
		marshalJSON(entity.DescriptionEmbedding), marshalJSON(entity.NameEmbedding),
		formatTime(entity.LastEnrichedAt), entity.EnrichmentCount,
		entity.Namespace, entity.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or someone updated it underneath us.
		if _, getErr := s.GetEntity(ctx, entity.Namespace, entity.ID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	entity.Version = expectedVersion + 1
	return nil
}

const relationshipColumns = `id, namespace, rel_type, entity1_id, entity2_id,
	strength, source_refs, validated, validation_type, confidence,
	created_at, updated_at, version`

func scanRelationship(row rowScanner) (*types.Relationship, error) {
	var (
		r                    types.Relationship
		refs                 string
		validated            int
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.Namespace, &r.Type, &r.Entity1ID, &r.Entity2ID,
		&r.Strength, &refs, &validated, &r.ValidationType, &r.Confidence,
		&createdAt, &updatedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(refs, &r.SourceRefs)
	r.Validated = validated != 0
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// GetRelationship implements RelationshipStore.
func (s *SQLStore) GetRelationship(ctx context.Context, namespace, id string) (*types.Relationship, error) {
	query := s.rebind(`SELECT ` + relationshipColumns + ` FROM relationships WHERE namespace = ? AND id = ?`)
	rel, err := scanRelationship(s.db.QueryRowContext(ctx, query, namespace, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return rel, nil
}

// GetRelationshipByKey implements RelationshipStore.
func (s *SQLStore) GetRelationshipByKey(ctx context.Context, namespace string, relType types.RelationshipType, entity1ID, entity2ID string) (*types.Relationship, error) {
	t, e1, e2 := types.NormalizePair(relType, entity1ID, entity2ID)
	query := s.rebind(`SELECT ` + relationshipColumns + ` FROM relationships
		WHERE namespace = ? AND rel_type = ? AND entity1_id = ? AND entity2_id = ?`)
	rel, err := scanRelationship(s.db.QueryRowContext(ctx, query, namespace, string(t), e1, e2))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship by key: %w", err)
	}
	return rel, nil
}

// ListRelationships implements RelationshipStore.
func (s *SQLStore) ListRelationships(ctx context.Context, namespace, entityID string) ([]*types.Relationship, error) {
	query := s.rebind(`SELECT ` + relationshipColumns + ` FROM relationships
		WHERE namespace = ? AND (entity1_id = ? OR entity2_id = ?) ORDER BY id`)
	rows, err := s.db.QueryContext(ctx, query, namespace, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var out []*types.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// CreateRelationship implements RelationshipStore.
func (s *SQLStore) CreateRelationship(ctx context.Context, rel *types.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if rel.ID == "" {
		return types.ErrEmptyID
	}
	t, e1, e2 := rel.UpsertKey()
	query := s.rebind(`INSERT INTO relationships (` + relationshipColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		rel.ID, rel.Namespace, string(t), e1, e2, rel.Strength,
		marshalJSON(rel.SourceRefs), boolToInt(rel.Validated),
		string(rel.ValidationType), rel.Confidence,
		formatTime(rel.CreatedAt), formatTime(rel.UpdatedAt), int64(1))
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to create relationship: %w", err)
	}
	rel.Entity1ID, rel.Entity2ID = e1, e2
	rel.Version = 1
	return nil
}

// UpdateRelationship implements RelationshipStore.
func (s *SQLStore) UpdateRelationship(ctx context.Context, rel *types.Relationship, expectedVersion int64) error {
	query := s.rebind(`UPDATE relationships SET strength = ?, source_refs = ?,
		validated = ?, validation_type = ?, confidence = ?, updated_at = ?,
		version = version + 1
		WHERE namespace = ? AND id = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, query,
		rel.Strength, marshalJSON(rel.SourceRefs), boolToInt(rel.Validated),
		string(rel.ValidationType), rel.Confidence, formatTime(rel.UpdatedAt),
		rel.Namespace, rel.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update relationship: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetRelationship(ctx, rel.Namespace, rel.ID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	rel.Version = expectedVersion + 1
	return nil
}

// GetPattern implements PatternStore.
func (s *SQLStore) GetPattern(ctx context.Context, id string) (*types.Pattern, error) {
	query := s.rebind(`SELECT id, pattern_type, description, frequency,
		member_entity_ids, namespaces_involved, priority_score,
		recommended_action, confidence, created_at, last_updated_at
		FROM patterns WHERE id = ?`)
	p, err := scanPattern(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return p, nil
}

func scanPattern(row rowScanner) (*types.Pattern, error) {
	var (
		p                        types.Pattern
		members, namespaces      string
		createdAt, lastUpdatedAt string
	)
	err := row.Scan(&p.ID, &p.PatternType, &p.Description, &p.Frequency,
		&members, &namespaces, &p.PriorityScore, &p.RecommendedAction,
		&p.Confidence, &createdAt, &lastUpdatedAt)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(members, &p.MemberEntityIDs)
	unmarshalJSON(namespaces, &p.NamespacesInvolved)
	p.CreatedAt = parseTime(createdAt)
	p.LastUpdatedAt = parseTime(lastUpdatedAt)
	return &p, nil
}

// ListPatterns implements PatternStore.
func (s *SQLStore) ListPatterns(ctx context.Context) ([]*types.Pattern, error) {
	query := s.rebind(`SELECT id, pattern_type, description, frequency,
		member_entity_ids, namespaces_involved, priority_score,
		recommended_action, confidence, created_at, last_updated_at
		FROM patterns ORDER BY priority_score DESC`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()

	var out []*types.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPattern implements PatternStore.
func (s *SQLStore) UpsertPattern(ctx context.Context, pattern *types.Pattern) error {
	if err := pattern.Validate(); err != nil {
		return err
	}
	query := s.rebind(`INSERT INTO patterns (id, pattern_type, description,
		frequency, member_entity_ids, namespaces_involved, priority_score,
		recommended_action, confidence, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		pattern_type = excluded.pattern_type,
		description = excluded.description,
		frequency = excluded.frequency,
		member_entity_ids = excluded.member_entity_ids,
		namespaces_involved = excluded.namespaces_involved,
		priority_score = excluded.priority_score,
		recommended_action = excluded.recommended_action,
		confidence = excluded.confidence,
		last_updated_at = excluded.last_updated_at`)
	_, err := s.db.ExecContext(ctx, query,
		pattern.ID, string(pattern.PatternType), pattern.Description,
		pattern.Frequency, marshalJSON(pattern.MemberEntityIDs),
		marshalJSON(pattern.NamespacesInvolved), pattern.PriorityScore,
		pattern.RecommendedAction, pattern.Confidence,
		formatTime(pattern.CreatedAt), formatTime(pattern.LastUpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert pattern: %w", err)
	}
	return nil
}

// AppendAudit implements AuditStore.
func (s *SQLStore) AppendAudit(ctx context.Context, record *types.AuditRecord) error {
	if record.ID == "" {
		return types.ErrEmptyID
	}
	query := s.rebind(`INSERT INTO consolidation_audit (id, namespace, ts,
		merged_entity_ids, resulting_entity_id, similarity_score, decision,
		rollback_snapshot) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Namespace, formatTime(record.Timestamp),
		marshalJSON(record.MergedEntityIDs), record.ResultingEntityID,
		record.SimilarityScore, string(record.Decision),
		string(record.RollbackSnapshot))
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

func scanAudit(row rowScanner) (*types.AuditRecord, error) {
	var (
		r          types.AuditRecord
		ts, merged string
		snapshot   string
	)
	err := row.Scan(&r.ID, &r.Namespace, &ts, &merged, &r.ResultingEntityID,
		&r.SimilarityScore, &r.Decision, &snapshot)
	if err != nil {
		return nil, err
	}
	unmarshalJSON(merged, &r.MergedEntityIDs)
	r.Timestamp = parseTime(ts)
	if snapshot != "" {
		r.RollbackSnapshot = json.RawMessage(snapshot)
	}
	return &r, nil
}

// GetAudit implements AuditStore.
func (s *SQLStore) GetAudit(ctx context.Context, id string) (*types.AuditRecord, error) {
	query := s.rebind(`SELECT id, namespace, ts, merged_entity_ids,
		resulting_entity_id, similarity_score, decision, rollback_snapshot
		FROM consolidation_audit WHERE id = ?`)
	record, err := scanAudit(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return record, nil
}

// ListAudits implements AuditStore.
func (s *SQLStore) ListAudits(ctx context.Context, namespace string, limit int) ([]*types.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.rebind(`SELECT id, namespace, ts, merged_entity_ids,
		resulting_entity_id, similarity_score, decision, rollback_snapshot
		FROM consolidation_audit WHERE namespace = ? ORDER BY ts DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var out []*types.AuditRecord
	for rows.Next() {
		record, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// SearchEntitiesByEmbedding implements VectorSearcher.
func (s *SQLStore) SearchEntitiesByEmbedding(ctx context.Context, namespace string, vector []float32, limit int) ([]*types.Entity, []float64, error) {
	if len(vector) == 0 {
		return nil, nil, nil
	}
	candidates, err := s.queryEntities(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE namespace = ? AND description_embedding != '[]'`,
		namespace)
	if err != nil {
		return nil, nil, err
	}

	type scored struct {
		entity *types.Entity
		score  float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, e := range candidates {
		if len(e.DescriptionEmbedding) == 0 {
			continue
		}
		ranked = append(ranked, scored{entity: e, score: utils.CosineSimilarity(vector, e.DescriptionEmbedding)})
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
		entities[i] = r.entity
		scores[i] = r.score
	}
	return entities, scores, nil
}

// Stats implements Admin.
func (s *SQLStore) Stats(ctx context.Context, namespace string) (*NamespaceStats, error) {
	stats := &NamespaceStats{Namespace: namespace}
	queries := []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM entities WHERE namespace = ?`, &stats.Entities},
		{`SELECT COUNT(*) FROM relationships WHERE namespace = ?`, &stats.Relationships},
		{`SELECT COUNT(*) FROM consolidation_audit WHERE namespace = ?`, &stats.AuditRecords},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, s.rebind(q.sql), namespace).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to read stats: %w", err)
		}
	}
	return stats, nil
}

// Close implements Admin.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isDuplicateKey detects unique constraint violations across both backends.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || // postgres
		strings.Contains(msg, "unique constraint") // sqlite
}

var _ KnowledgeStore = (*SQLStore)(nil)
