package consolidato

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soundprediction/consolidato/pkg/alert"
	"github.com/soundprediction/consolidato/pkg/cache"
	"github.com/soundprediction/consolidato/pkg/config"
	"github.com/soundprediction/consolidato/pkg/discovery"
	"github.com/soundprediction/consolidato/pkg/embedder"
	"github.com/soundprediction/consolidato/pkg/graph"
	"github.com/soundprediction/consolidato/pkg/patterns"
	"github.com/soundprediction/consolidato/pkg/resolver"
	"github.com/soundprediction/consolidato/pkg/retrieval"
	"github.com/soundprediction/consolidato/pkg/similarity"
	"github.com/soundprediction/consolidato/pkg/store"
	"github.com/soundprediction/consolidato/pkg/telemetry"
	"github.com/soundprediction/consolidato/pkg/types"
	"github.com/soundprediction/consolidato/pkg/utils"
)

// Source is one source document's extraction output.
type Source struct {
	Namespace  string                   `json:"namespace"`
	SourceRef  string                   `json:"source_ref"`
	Candidates []*types.CandidateEntity `json:"candidates"`
	Mentions   []types.CandidateMention `json:"mentions,omitempty"`
}

// SourceResult reports what consolidating one source produced.
type SourceResult struct {
	SourceRef     string                 `json:"source_ref"`
	Resolutions   []*resolver.Resolution `json:"resolutions"`
	Relationships []*types.Relationship  `json:"relationships,omitempty"`
	// SkippedCandidates counts candidates rejected by validation.
	SkippedCandidates int `json:"skipped_candidates"`
}

// Client is the main implementation of the Consolidato interface.
type Client struct {
	store      store.KnowledgeStore
	graph      graph.GraphIndex
	cache      *cache.ResultCache
	embedder   embedder.Client
	resolver   *resolver.Resolver
	discoverer *discovery.Discoverer
	recognizer *patterns.Recognizer
	scheduler  *patterns.Scheduler
	retriever  *retrieval.Retriever
	alerter    alert.Alerter
	logger     *slog.Logger
	config     *config.Config
}

// New wires the full engine from configuration.
func New(cfg *config.Config) (*Client, error) {
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ParquetPath)

	st, err := store.New(&store.Config{
		Type:         store.BackendType(cfg.Store.Backend),
		DSN:          cfg.Store.DSN,
		MaxOpenConns: cfg.Store.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}

	var graphIndex graph.GraphIndex
	switch cfg.Graph.Driver {
	case "neo4j":
		graphIndex, err = graph.NewNeo4jGraph(cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open graph index: %w", err)
		}
	default:
		graphIndex = graph.NewMemoryGraph()
	}

	resultCache, err := cache.New(cfg.Retrieval.CachePath, cfg.Retrieval.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to open result cache: %w", err)
	}

	var alerter alert.Alerter = &alert.NoOpAlerter{}
	if cfg.Alert.Enabled {
		alerter = alert.NewEmailAlerter(cfg.Alert)
	}

	// Query embedding is optional: without a working provider, searches must
	// carry their own embedding or run graph-only.
	var embedClient embedder.Client
	if client, err := embedder.New(cfg.Embedding); err != nil {
		logger.Warn("embedding provider unavailable, queries must supply embeddings",
			"provider", cfg.Embedding.Provider, "error", err)
	} else {
		embedClient = client
		if cfg.CircuitBreaker.Enabled {
			embedClient = embedder.NewCircuitBreakerClient(embedClient, cfg.CircuitBreaker, alerter, "embedder")
		}
	}

	var rules *discovery.RuleTable
	if cfg.Discovery.RulesPath != "" {
		rules, err = discovery.LoadRules(cfg.Discovery.RulesPath)
		if err != nil {
			return nil, err
		}
	}

	scorer := similarity.NewScorer()
	res := resolver.New(st, scorer, graphIndex, resultCache, cfg.Consolidation, logger)
	disc := discovery.New(st, scorer, graphIndex, rules, cfg.Discovery, logger)
	recog := patterns.New(st, scorer, cfg.Patterns, logger)
	retr := retrieval.New(st, graphIndex, resultCache, embedClient, cfg.Retrieval, logger)

	var scheduler *patterns.Scheduler
	if cfg.Patterns.Schedule != "" {
		scheduler, err = patterns.NewScheduler(recog, cfg.Patterns.Schedule, logger)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		store:      st,
		graph:      graphIndex,
		cache:      resultCache,
		embedder:   embedClient,
		resolver:   res,
		discoverer: disc,
		recognizer: recog,
		scheduler:  scheduler,
		retriever:  retr,
		alerter:    alerter,
		logger:     logger,
		config:     cfg,
	}, nil
}

// Resolve implements Consolidator.
func (c *Client) Resolve(ctx context.Context, candidate *types.CandidateEntity) (*resolver.Resolution, error) {
	resolution, err := c.resolver.Resolve(ctx, candidate)
	if err != nil {
		return nil, err
	}
	c.recognizer.Observe()
	return resolution, nil
}

// Discover implements Consolidator.
func (c *Client) Discover(ctx context.Context, namespace string, mention types.CandidateMention) ([]*types.Relationship, error) {
	return c.discoverer.Discover(ctx, namespace, mention)
}

// ConsolidateSource implements Consolidator. Candidates resolve sequentially
// in source order; mentions then link whatever resolved. A candidate that
// fails validation is logged and skipped, the rest of the source completes.
func (c *Client) ConsolidateSource(ctx context.Context, source Source) (*SourceResult, error) {
	result := &SourceResult{SourceRef: source.SourceRef}

	// Extraction identifies entities by name within its own output; map
	// those local references onto resolved entity ids for discovery.
	localIDs := make(map[string]string)

	for _, candidate := range source.Candidates {
		if candidate.Namespace == "" {
			candidate.Namespace = source.Namespace
		}
		if candidate.SourceRef == "" {
			candidate.SourceRef = source.SourceRef
		}
		resolution, err := c.Resolve(ctx, candidate)
		if err != nil {
			var retryErr *resolver.RetryExhaustedError
			if errors.As(err, &retryErr) {
				if alertErr := c.alerter.Alert("consolidation retries exhausted",
					fmt.Sprintf("namespace %s source %s candidate %q: %v",
						candidate.Namespace, candidate.SourceRef, candidate.CanonicalName, err)); alertErr != nil {
					c.logger.WarnContext(ctx, "alert delivery failed", "error", alertErr)
				}
				return result, err
			}
			c.logger.WarnContext(ctx, "rejected malformed candidate",
				"source_ref", candidate.SourceRef,
				"namespace", candidate.Namespace,
				"name", candidate.CanonicalName,
				"error", err)
			result.SkippedCandidates++
			continue
		}
		result.Resolutions = append(result.Resolutions, resolution)
		localIDs[utils.NormalizeName(candidate.CanonicalName)] = resolution.EntityID
	}

	for _, mention := range source.Mentions {
		if mention.SourceRef == "" {
			mention.SourceRef = source.SourceRef
		}
		remapped := make([]string, 0, len(mention.EntityIDs))
		for _, id := range mention.EntityIDs {
			if resolved, ok := localIDs[utils.NormalizeName(id)]; ok {
				id = resolved
			}
			remapped = append(remapped, id)
		}
		mention.EntityIDs = remapped

		rels, err := c.discoverer.Discover(ctx, source.Namespace, mention)
		if err != nil {
			return result, err
		}
		result.Relationships = append(result.Relationships, rels...)
	}

	if _, err := c.recognizer.MaybeRecognize(ctx); err != nil && !errors.Is(err, patterns.ErrRunInProgress) {
		c.logger.ErrorContext(ctx, "triggered pattern recognition failed", "error", err)
	}

	return result, nil
}

// ConsolidateStream implements Consolidator: a bounded pool of workers, one
// per in-flight source document. Results and errors align with sources.
func (c *Client) ConsolidateStream(ctx context.Context, sources []Source) ([]*SourceResult, []error) {
	pool := utils.NewWorkerPool(c.config.Consolidation.Workers,
		func(ctx context.Context, source Source) (*SourceResult, error) {
			return c.ConsolidateSource(ctx, source)
		})
	return pool.ProcessItems(ctx, sources)
}

// Recognize implements PatternAnalyzer.
func (c *Client) Recognize(ctx context.Context) ([]*types.Pattern, error) {
	return c.recognizer.Recognize(ctx)
}

// Patterns implements PatternAnalyzer.
func (c *Client) Patterns(ctx context.Context) ([]*types.Pattern, error) {
	return c.store.ListPatterns(ctx)
}

// Search implements Searcher.
func (c *Client) Search(ctx context.Context, query retrieval.Query) (*retrieval.Result, error) {
	return c.retriever.Search(ctx, query)
}

// Audits implements Auditor.
func (c *Client) Audits(ctx context.Context, namespace string, limit int) ([]*types.AuditRecord, error) {
	return c.store.ListAudits(ctx, namespace, limit)
}

// Rollback implements Auditor.
func (c *Client) Rollback(ctx context.Context, namespace, auditID string) error {
	return c.resolver.Rollback(ctx, namespace, auditID)
}

// Stats summarizes one namespace of the store.
func (c *Client) Stats(ctx context.Context, namespace string) (*store.NamespaceStats, error) {
	return c.store.Stats(ctx, namespace)
}

// StartPatternSchedule begins the periodic pattern recognition pass when a
// schedule is configured.
func (c *Client) StartPatternSchedule() {
	if c.scheduler != nil {
		c.scheduler.Start()
	}
}

// Close releases all resources.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.graph.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
