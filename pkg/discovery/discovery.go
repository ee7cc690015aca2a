// Package discovery finds and validates relationships between consolidated
// entities from co-occurrence within sources. It is the only writer of
// relationships: upserts are serialized per normalized (type, entity1,
// entity2) key, and re-processing a source never double-counts.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/consolidato/pkg/config"
	"github.com/soundprediction/consolidato/pkg/graph"
	"github.com/soundprediction/consolidato/pkg/similarity"
	"github.com/soundprediction/consolidato/pkg/store"
	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

const (
	// Confidence caps per validation state.
	singleSourceConfidence   = 0.7
	crossValidatedConfidence = 0.95

	maxUpsertRetries = 3
)

// Store is the persistence surface the discoverer needs.
type Store interface {
	store.EntityStore
	store.RelationshipStore
}

// Discoverer derives relationship upserts from co-mentions.
type Discoverer struct {
	store  Store
	scorer *similarity.Scorer
	graph  graph.EdgeMirror
	rules  *RuleTable
	locks  *utils.KeyedMutex
	logger *slog.Logger
	cfg    config.DiscoveryConfig

	now func() time.Time
}

// New creates a discoverer. graphIndex may be nil when no graph mirror is
// wired; a nil rules table uses the compiled-in defaults.
func New(st Store, scorer *similarity.Scorer, graphIndex graph.EdgeMirror, rules *RuleTable, cfg config.DiscoveryConfig, logger *slog.Logger) *Discoverer {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PainPointSimilarity <= 0 {
		cfg.PainPointSimilarity = 0.85
	}
	return &Discoverer{
		store:  st,
		scorer: scorer,
		graph:  graphIndex,
		rules:  rules,
		locks:  utils.NewKeyedMutex(),
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Discover derives relationships from the entities observed together in one
// source. An optional directional label from extraction overrides the rule
// table for the pair order given. Returns the upserted relationships.
func (d *Discoverer) Discover(ctx context.Context, namespace string, mention types.CandidateMention) ([]*types.Relationship, error) {
	if namespace == "" {
		return nil, types.ErrEmptyNamespace
	}
	if mention.SourceRef == "" {
		return nil, types.ErrEmptySourceRef
	}

	entities := make([]*types.Entity, 0, len(mention.EntityIDs))
	for _, id := range mention.EntityIDs {
		entity, err := d.store.GetEntity(ctx, namespace, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				d.logger.WarnContext(ctx, "co-mentioned entity not found, skipping",
					"namespace", namespace, "entity_id", id, "source_ref", mention.SourceRef)
				continue
			}
			return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
		}
		entities = append(entities, entity)
	}

	var upserted []*types.Relationship
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			relType, e1, e2, ok := d.classify(mention.Label, entities[i], entities[j])
			if !ok {
				continue
			}
			rel, err := d.upsert(ctx, namespace, relType, e1.ID, e2.ID, mention.SourceRef, 0)
			if err != nil {
				return upserted, err
			}
			upserted = append(upserted, rel)
		}
	}
	return upserted, nil
}

// classify decides the relationship type for one entity pair. Priority:
// explicit extraction label, then pain-point similarity, then the rule table.
func (d *Discoverer) classify(label string, a, b *types.Entity) (types.RelationshipType, *types.Entity, *types.Entity, bool) {
	if label != "" {
		relType := types.RelationshipType(label)
		if types.ValidRelationshipType(relType) {
			return relType, a, b, true
		}
	}

	if a.EntityType == types.EntityTypePainPoint && b.EntityType == types.EntityTypePainPoint {
		score := d.scorer.Score(similarity.FromEntity(a), similarity.FromEntity(b))
		if score >= d.cfg.PainPointSimilarity {
			return types.RelSharesPainPoint, a, b, true
		}
		return "", nil, nil, false
	}

	relType, swapped, ok := d.rules.Lookup(a.EntityType, b.EntityType)
	if !ok {
		return "", nil, nil, false
	}
	if swapped {
		return relType, b, a, true
	}
	return relType, a, b, true
}

// LinkSimilarPainPoints links independently resolved pain points whose
// similarity clears the threshold, using their combined provenance. This is
// how near-duplicate complaints that never merged still connect for
// pattern analysis.
func (d *Discoverer) LinkSimilarPainPoints(ctx context.Context, namespace string) ([]*types.Relationship, error) {
	painPoints, err := d.store.ListEntities(ctx, namespace, types.EntityTypePainPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list pain points in %s: %w", namespace, err)
	}

	var upserted []*types.Relationship
	for i := 0; i < len(painPoints); i++ {
		for j := i + 1; j < len(painPoints); j++ {
			a, b := painPoints[i], painPoints[j]
			score := d.scorer.Score(similarity.FromEntity(a), similarity.FromEntity(b))
			if score < d.cfg.PainPointSimilarity {
				continue
			}
			refs := utils.UnionNormalized(a.MentionedIn, b.MentionedIn)
			for _, ref := range refs {
				rel, err := d.upsert(ctx, namespace, types.RelSharesPainPoint, a.ID, b.ID, ref, score)
				if err != nil {
					return upserted, err
				}
				if ref == refs[len(refs)-1] {
					upserted = append(upserted, rel)
				}
			}
		}
	}
	return upserted, nil
}

// upsert creates or enriches the relationship for one (type, pair, source)
// observation under the pair's lock. Adding an already-recorded source_ref is
// a no-op on the derived fields.
func (d *Discoverer) upsert(ctx context.Context, namespace string, relType types.RelationshipType, entity1ID, entity2ID, sourceRef string, strengthFloor float64) (*types.Relationship, error) {
	relType, e1, e2 := types.NormalizePair(relType, entity1ID, entity2ID)

	unlock := d.locks.Lock(upsertLockKey(namespace, relType, e1, e2))
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxUpsertRetries; attempt++ {
		rel, err := d.store.GetRelationshipByKey(ctx, namespace, relType, e1, e2)
		switch {
		case errors.Is(err, store.ErrNotFound):
			rel = d.newRelationship(namespace, relType, e1, e2, sourceRef, strengthFloor)
			if err := d.store.CreateRelationship(ctx, rel); err != nil {
				if errors.Is(err, store.ErrDuplicateID) {
					lastErr = err
					continue
				}
				return nil, fmt.Errorf("failed to create relationship %s(%s,%s): %w", relType, e1, e2, err)
			}
			d.mirror(ctx, rel)
			return rel, nil
		case err != nil:
			return nil, fmt.Errorf("failed to load relationship %s(%s,%s): %w", relType, e1, e2, err)
		}

		if rel.HasSourceRef(sourceRef) {
			return rel, nil
		}

		expectedVersion := rel.Version
		rel.SourceRefs = append(rel.SourceRefs, sourceRef)
		applyDerived(rel, strengthFloor)
		rel.UpdatedAt = d.now().UTC()

		err = d.store.UpdateRelationship(ctx, rel, expectedVersion)
		if err == nil {
			d.mirror(ctx, rel)
			return rel, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("relationship upsert retries exhausted for %s(%s,%s) from %s: %w",
		relType, e1, e2, sourceRef, lastErr)
}

func (d *Discoverer) newRelationship(namespace string, relType types.RelationshipType, e1, e2, sourceRef string, strengthFloor float64) *types.Relationship {
	now := d.now().UTC()
	rel := &types.Relationship{
		ID:         uuid.New().String(),
		Namespace:  namespace,
		Type:       relType,
		Entity1ID:  e1,
		Entity2ID:  e2,
		SourceRefs: []string{sourceRef},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	applyDerived(rel, strengthFloor)
	return rel
}

// applyDerived recomputes strength, validation, and confidence from the
// source_refs set. strengthFloor lets similarity-derived links start at their
// similarity rather than the co-occurrence floor.
func applyDerived(rel *types.Relationship, strengthFloor float64) {
	n := len(rel.SourceRefs)
	rel.Strength = math.Max(strengthFloor, math.Min(float64(n)/10.0, 1.0))
	if n >= 2 {
		rel.Validated = true
		rel.ValidationType = types.ValidationCrossValidated
		rel.Confidence = crossValidatedConfidence
	} else {
		rel.Validated = false
		rel.ValidationType = types.ValidationSingleSource
		rel.Confidence = singleSourceConfidence
	}
}

func (d *Discoverer) mirror(ctx context.Context, rel *types.Relationship) {
	if d.graph == nil {
		return
	}
	if err := d.graph.UpsertEdge(ctx, rel); err != nil {
		d.logger.ErrorContext(ctx, "graph edge write-through failed",
			"relationship_id", rel.ID, "error", err)
	}
}

func upsertLockKey(namespace string, relType types.RelationshipType, e1, e2 string) string {
	return namespace + "|" + string(relType) + "|" + e1 + "|" + e2
}
