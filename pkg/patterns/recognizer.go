// Package patterns surfaces recurring concepts from the consolidated store.
// A periodic pass greedily clusters entities of a target type by similarity;
// clusters large enough to matter become prioritized pattern records.
package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/consolidato/pkg/config"
	"github.com/soundprediction/consolidato/pkg/similarity"
	"github.com/soundprediction/consolidato/pkg/store"
	"github.com/soundprediction/consolidato/pkg/types"
)

// severityField is the numeric attribute consulted for priority scoring.
// Entities without it contribute severity 0.
const severityField = "severity"

// ErrRunInProgress is returned when a recognition pass is already running.
var ErrRunInProgress = fmt.Errorf("pattern recognition already in progress")

// Store is the persistence surface the recognizer needs.
type Store interface {
	store.EntityStore
	store.PatternStore
}

// Recognizer clusters consolidated entities into recurring patterns. It is
// the only writer of pattern records and never runs concurrently with itself.
type Recognizer struct {
	store  Store
	scorer *similarity.Scorer
	logger *slog.Logger
	cfg    config.PatternsConfig

	pending atomic.Int64
	running atomic.Bool
	mu      sync.Mutex // guards clusterIDs across passes
	// clusterIDs keeps pattern ids stable across passes for the same
	// representative entity.
	clusterIDs map[string]string

	now func() time.Time
}

// New creates a pattern recognizer.
func New(st Store, scorer *similarity.Scorer, cfg config.PatternsConfig, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchTrigger <= 0 {
		cfg.BatchTrigger = 5
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = 3
	}
	if cfg.RepresentativeSimilarity <= 0 {
		cfg.RepresentativeSimilarity = 0.8
	}
	if cfg.TargetEntityType == "" {
		cfg.TargetEntityType = string(types.EntityTypePainPoint)
	}
	return &Recognizer{
		store:      st,
		scorer:     scorer,
		logger:     logger,
		cfg:        cfg,
		clusterIDs: make(map[string]string),
		now:        time.Now,
	}
}

// Observe counts one consolidation event toward the batch trigger.
func (r *Recognizer) Observe() {
	r.pending.Add(1)
}

// MaybeRecognize runs a recognition pass when enough consolidation events
// accumulated since the last pass. It returns (nil, nil) below the trigger.
func (r *Recognizer) MaybeRecognize(ctx context.Context) ([]*types.Pattern, error) {
	if r.pending.Load() < int64(r.cfg.BatchTrigger) {
		return nil, nil
	}
	patterns, err := r.Recognize(ctx)
	if err == nil {
		r.pending.Store(0)
	}
	return patterns, err
}

// Recognize runs one full clustering pass over the target entity type.
// Passes are single-flight: a second call while one runs returns
// ErrRunInProgress instead of clustering over a half-updated view.
func (r *Recognizer) Recognize(ctx context.Context) ([]*types.Pattern, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	entities, err := r.store.ListEntitiesByType(ctx, types.EntityType(r.cfg.TargetEntityType))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entities: %w", r.cfg.TargetEntityType, err)
	}

	clusters := r.cluster(ctx, entities)

	now := r.now().UTC()
	var patterns []*types.Pattern
	for _, cluster := range clusters {
		if len(cluster) < r.cfg.MinClusterSize {
			continue
		}
		pattern := r.buildPattern(cluster, now)
		if err := r.store.UpsertPattern(ctx, pattern); err != nil {
			return patterns, fmt.Errorf("failed to upsert pattern %s: %w", pattern.ID, err)
		}
		patterns = append(patterns, pattern)
	}

	r.logger.InfoContext(ctx, "pattern recognition pass complete",
		"entities", len(entities), "clusters", len(clusters), "patterns", len(patterns))
	return patterns, nil
}

// cluster greedily assigns entities, most-corroborated first, to the first
// cluster whose representative scores above the threshold. Malformed entities
// are skipped and logged; the batch completes.
func (r *Recognizer) cluster(ctx context.Context, entities []*types.Entity) [][]*types.Entity {
	sorted := make([]*types.Entity, 0, len(entities))
	for _, e := range entities {
		if err := e.ValidateForCreate(); err != nil {
			r.logger.WarnContext(ctx, "skipping malformed entity during clustering",
				"entity_id", e.ID, "error", err)
			continue
		}
		sorted = append(sorted, e)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SourceCount != sorted[j].SourceCount {
			return sorted[i].SourceCount > sorted[j].SourceCount
		}
		return sorted[i].ID < sorted[j].ID
	})

	var clusters [][]*types.Entity
	for _, entity := range sorted {
		placed := false
		subject := similarity.FromEntity(entity)
		for i, cluster := range clusters {
			representative := similarity.FromEntity(cluster[0])
			if r.scorer.Score(subject, representative) >= r.cfg.RepresentativeSimilarity {
				clusters[i] = append(clusters[i], entity)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []*types.Entity{entity})
		}
	}
	return clusters
}

// buildPattern derives the pattern record for one cluster. The first member
// is the representative: it has the highest source count.
func (r *Recognizer) buildPattern(cluster []*types.Entity, now time.Time) *types.Pattern {
	representative := cluster[0]

	memberIDs := make([]string, len(cluster))
	namespaceSet := make(map[string]bool)
	var severitySum float64
	for i, member := range cluster {
		memberIDs[i] = member.ID
		namespaceSet[member.Namespace] = true
		severitySum += member.Attributes.Numeric[severityField]
	}
	namespaces := make([]string, 0, len(namespaceSet))
	for ns := range namespaceSet {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	frequency := len(cluster)
	avgSeverity := severitySum / float64(frequency)

	r.mu.Lock()
	id, ok := r.clusterIDs[representative.ID]
	if !ok {
		id = uuid.New().String()
		r.clusterIDs[representative.ID] = id
	}
	r.mu.Unlock()

	return &types.Pattern{
		ID:          id,
		PatternType: types.PatternRecurringConcept,
		Description: fmt.Sprintf("recurring %s: %s", representative.EntityType, representative.CanonicalName),

		Frequency:          frequency,
		MemberEntityIDs:    memberIDs,
		NamespacesInvolved: namespaces,
		PriorityScore:      priorityScore(frequency, len(namespaces), avgSeverity),
		RecommendedAction:  fmt.Sprintf("review %d related reports of %q", frequency, representative.CanonicalName),
		Confidence:         math.Min(1.0, 0.85+0.03*float64(frequency)),

		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// priorityScore weighs how often a pattern recurs, how widely it spreads
// across namespaces, and how severe its members are, capped at 10.
func priorityScore(frequency, namespaceCount int, avgSeverity float64) float64 {
	return math.Min(10.0, 2.0*math.Log2(float64(frequency)+1)+float64(namespaceCount)+avgSeverity)
}
