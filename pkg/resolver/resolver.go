// Package resolver consolidates extraction candidates into canonical
// entities. It is the only writer of entities: every mutation happens under a
// per-(namespace, entity_type) lock and an optimistic version check, so two
// concurrent resolves of similar candidates can never produce twin entities.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/consolidato/pkg/config"
	"github.com/soundprediction/consolidato/pkg/graph"
	"github.com/soundprediction/consolidato/pkg/similarity"
	"github.com/soundprediction/consolidato/pkg/store"
	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	store.EntityStore
	store.RelationshipStore
	store.AuditStore
}

// Invalidator drops cached retrieval results for a namespace after a
// mutation.
type Invalidator interface {
	Invalidate(namespace string) error
}

// Resolution is the outcome of resolving one candidate.
type Resolution struct {
	Decision types.Decision `json:"decision"`
	// EntityID is the entity the candidate ended up on: the merge target for
	// a merge, the freshly created entity otherwise.
	EntityID string `json:"entity_id"`
	// MatchedEntityID is the best-scoring existing entity for merge and link
	// decisions; empty for new.
	MatchedEntityID string  `json:"matched_entity_id,omitempty"`
	Similarity      float64 `json:"similarity"`
	Contradiction   bool    `json:"contradiction"`
	AuditID         string  `json:"audit_id"`
}

// RetryExhaustedError reports that the resolver lost the optimistic version
// race on every attempt.
type RetryExhaustedError struct {
	Namespace string
	EntityID  string
	Attempts  int
	Err       error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("resolve retries exhausted after %d attempts on entity %s in %s: %v",
		e.Attempts, e.EntityID, e.Namespace, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Resolver decides, for each candidate, whether to create a new entity,
// merge into an existing one, or create a new entity linked as a possible
// duplicate.
type Resolver struct {
	store  Store
	scorer *similarity.Scorer
	graph  graph.NodeMirror
	cache  Invalidator
	locks  *utils.KeyedMutex
	logger *slog.Logger
	cfg    config.ConsolidationConfig

	now func() time.Time
}

// New creates a resolver. graphIndex and invalidator may be nil when no graph
// mirror or result cache is wired.
func New(st Store, scorer *similarity.Scorer, graphIndex graph.NodeMirror, invalidator Invalidator, cfg config.ConsolidationConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.LinkThreshold <= 0 {
		cfg.LinkThreshold = 0.8
	}
	if cfg.MergeThreshold <= 0 {
		cfg.MergeThreshold = 0.9
	}
	if cfg.NumericTolerance <= 0 {
		cfg.NumericTolerance = 0.5
	}
	return &Resolver{
		store:  st,
		scorer: scorer,
		graph:  graphIndex,
		cache:  invalidator,
		locks:  utils.NewKeyedMutex(),
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Resolve consolidates one candidate into the knowledge store.
func (r *Resolver) Resolve(ctx context.Context, candidate *types.CandidateEntity) (*Resolution, error) {
	if err := candidate.Validate(); err != nil {
		return nil, fmt.Errorf("invalid candidate %q: %w", candidate.CanonicalName, err)
	}

	unlock := r.locks.Lock(partitionKey(candidate.Namespace, candidate.EntityType))
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		res, err := r.resolveOnce(ctx, candidate)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		r.logger.WarnContext(ctx, "version conflict during resolve, retrying",
			"namespace", candidate.Namespace,
			"candidate", candidate.CanonicalName,
			"attempt", attempt+1)
	}

	return nil, &RetryExhaustedError{
		Namespace: candidate.Namespace,
		EntityID:  candidate.CanonicalName,
		Attempts:  r.cfg.MaxRetries,
		Err:       lastErr,
	}
}

// resolveOnce runs one full read-decide-write cycle. A version conflict from
// the store aborts the cycle; the caller retries with a fresh read.
func (r *Resolver) resolveOnce(ctx context.Context, candidate *types.CandidateEntity) (*Resolution, error) {
	peers, err := r.store.ListEntities(ctx, candidate.Namespace, candidate.EntityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list partition %s/%s: %w", candidate.Namespace, candidate.EntityType, err)
	}

	subject := similarity.FromCandidate(candidate)
	var best *types.Entity
	bestScore := 0.0
	for _, peer := range peers {
		score := r.scorer.Score(subject, similarity.FromEntity(peer))
		if score > bestScore || (score == bestScore && best != nil && peer.ID < best.ID) {
			best = peer
			bestScore = score
		}
	}

	now := r.now().UTC()
	switch {
	case best != nil && bestScore >= r.cfg.MergeThreshold:
		return r.merge(ctx, candidate, best, bestScore, now)
	case best != nil && bestScore >= r.cfg.LinkThreshold:
		return r.createLinked(ctx, candidate, best, bestScore, now)
	default:
		return r.createNew(ctx, candidate, now)
	}
}

func (r *Resolver) merge(ctx context.Context, candidate *types.CandidateEntity, target *types.Entity, score float64, now time.Time) (*Resolution, error) {
	snapshot, err := types.Snapshot(target)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot entity %s: %w", target.ID, err)
	}
	expectedVersion := target.Version

	merged := target
	applyCandidate(merged, candidate, r.cfg.NumericTolerance, now)

	if err := r.store.UpdateEntity(ctx, merged, expectedVersion); err != nil {
		return nil, err
	}

	audit := &types.AuditRecord{
		ID:                uuid.New().String(),
		Namespace:         candidate.Namespace,
		Timestamp:         now,
		MergedEntityIDs:   []string{merged.ID},
		ResultingEntityID: merged.ID,
		SimilarityScore:   score,
		Decision:          types.DecisionMerge,
		RollbackSnapshot:  snapshot,
	}
	if err := r.store.AppendAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("failed to append audit record: %w", err)
	}

	r.afterWrite(ctx, merged)

	if merged.HasContradictions {
		r.logger.InfoContext(ctx, "merge recorded contradictions",
			"namespace", merged.Namespace,
			"entity_id", merged.ID,
			"details", merged.ContradictionDetails)
	}

	return &Resolution{
		Decision:        types.DecisionMerge,
		EntityID:        merged.ID,
		MatchedEntityID: merged.ID,
		Similarity:      score,
		Contradiction:   merged.HasContradictions,
		AuditID:         audit.ID,
	}, nil
}

func (r *Resolver) createNew(ctx context.Context, candidate *types.CandidateEntity, now time.Time) (*Resolution, error) {
	entity := entityFromCandidate(candidate, now)
	if err := r.store.CreateEntity(ctx, entity); err != nil {
		return nil, fmt.Errorf("failed to create entity %q: %w", candidate.CanonicalName, err)
	}

	audit := &types.AuditRecord{
		ID:                uuid.New().String(),
		Namespace:         candidate.Namespace,
		Timestamp:         now,
		ResultingEntityID: entity.ID,
		Decision:          types.DecisionNew,
	}
	if err := r.store.AppendAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("failed to append audit record: %w", err)
	}

	r.afterWrite(ctx, entity)

	return &Resolution{
		Decision: types.DecisionNew,
		EntityID: entity.ID,
		AuditID:  audit.ID,
	}, nil
}

// createLinked creates a fresh entity and marks it as a possible duplicate of
// the near-miss match for later human review.
func (r *Resolver) createLinked(ctx context.Context, candidate *types.CandidateEntity, match *types.Entity, score float64, now time.Time) (*Resolution, error) {
	entity := entityFromCandidate(candidate, now)
	if err := r.store.CreateEntity(ctx, entity); err != nil {
		return nil, fmt.Errorf("failed to create entity %q: %w", candidate.CanonicalName, err)
	}

	relType, e1, e2 := types.NormalizePair(types.RelPossibleDuplicateOf, entity.ID, match.ID)
	rel := &types.Relationship{
		ID:             uuid.New().String(),
		Namespace:      candidate.Namespace,
		Type:           relType,
		Entity1ID:      e1,
		Entity2ID:      e2,
		Strength:       score,
		SourceRefs:     []string{candidate.SourceRef},
		Validated:      false,
		ValidationType: types.ValidationSingleSource,
		Confidence:     score,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.CreateRelationship(ctx, rel); err != nil && !errors.Is(err, store.ErrDuplicateID) {
		return nil, fmt.Errorf("failed to create duplicate link: %w", err)
	}

	audit := &types.AuditRecord{
		ID:                uuid.New().String(),
		Namespace:         candidate.Namespace,
		Timestamp:         now,
		MergedEntityIDs:   []string{match.ID},
		ResultingEntityID: entity.ID,
		SimilarityScore:   score,
		Decision:          types.DecisionLink,
	}
	if err := r.store.AppendAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("failed to append audit record: %w", err)
	}

	r.afterWrite(ctx, entity)

	return &Resolution{
		Decision:        types.DecisionLink,
		EntityID:        entity.ID,
		MatchedEntityID: match.ID,
		Similarity:      score,
		AuditID:         audit.ID,
	}, nil
}

// Rollback restores the pre-merge state recorded in a merge audit record.
func (r *Resolver) Rollback(ctx context.Context, namespace, auditID string) error {
	audit, err := r.store.GetAudit(ctx, auditID)
	if err != nil {
		return fmt.Errorf("failed to load audit record %s: %w", auditID, err)
	}
	if audit.Decision != types.DecisionMerge || len(audit.RollbackSnapshot) == 0 {
		return fmt.Errorf("audit record %s is not a rollbackable merge", auditID)
	}
	if audit.Namespace != namespace {
		return fmt.Errorf("audit record %s does not belong to namespace %s", auditID, namespace)
	}

	restored, err := types.RestoreSnapshot(audit.RollbackSnapshot)
	if err != nil {
		return fmt.Errorf("failed to decode rollback snapshot: %w", err)
	}

	unlock := r.locks.Lock(partitionKey(restored.Namespace, restored.EntityType))
	defer unlock()

	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		current, err := r.store.GetEntity(ctx, restored.Namespace, restored.ID)
		if err != nil {
			return fmt.Errorf("failed to load entity %s for rollback: %w", restored.ID, err)
		}
		err = r.store.UpdateEntity(ctx, restored, current.Version)
		if err == nil {
			r.afterWrite(ctx, restored)
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}
	return &RetryExhaustedError{
		Namespace: restored.Namespace,
		EntityID:  restored.ID,
		Attempts:  r.cfg.MaxRetries,
		Err:       store.ErrVersionConflict,
	}
}

// afterWrite mirrors the entity into the graph index and drops cached
// retrieval results. Both are best-effort; the store is the source of truth.
func (r *Resolver) afterWrite(ctx context.Context, entity *types.Entity) {
	if r.graph != nil {
		if err := r.graph.UpsertNode(ctx, entity); err != nil {
			r.logger.ErrorContext(ctx, "graph node write-through failed",
				"entity_id", entity.ID, "error", err)
		}
	}
	if r.cache != nil {
		if err := r.cache.Invalidate(entity.Namespace); err != nil {
			r.logger.ErrorContext(ctx, "cache invalidation failed",
				"namespace", entity.Namespace, "error", err)
		}
	}
}

func partitionKey(namespace string, entityType types.EntityType) string {
	return namespace + "|" + string(entityType)
}
