package consolidato

import (
	"context"

	"github.com/soundprediction/consolidato/pkg/discovery"
	"github.com/soundprediction/consolidato/pkg/resolver"
	"github.com/soundprediction/consolidato/pkg/retrieval"
	"github.com/soundprediction/consolidato/pkg/store"
	"github.com/soundprediction/consolidato/pkg/types"
)

// This file defines focused interfaces that follow the Interface Segregation
// Principle. The full Consolidato interface is composed from them; consumers
// should depend on the smallest interface that meets their needs.

// Consolidator processes extraction output into the knowledge base.
type Consolidator interface {
	// Resolve consolidates one candidate: create, merge, or link.
	Resolve(ctx context.Context, candidate *types.CandidateEntity) (*resolver.Resolution, error)

	// Discover derives relationships from the entities co-mentioned in one
	// source.
	Discover(ctx context.Context, namespace string, mention types.CandidateMention) ([]*types.Relationship, error)

	// ConsolidateSource resolves a source document's candidates in order and
	// then discovers relationships from its mentions.
	ConsolidateSource(ctx context.Context, source Source) (*SourceResult, error)

	// ConsolidateStream processes many source documents concurrently, one
	// worker per in-flight document.
	ConsolidateStream(ctx context.Context, sources []Source) ([]*SourceResult, []error)
}

// PatternAnalyzer runs and reads pattern recognition.
type PatternAnalyzer interface {
	// Recognize forces one pattern recognition pass.
	Recognize(ctx context.Context) ([]*types.Pattern, error)

	// Patterns lists recognized patterns, highest priority first.
	Patterns(ctx context.Context) ([]*types.Pattern, error)
}

// Searcher provides read-only hybrid retrieval.
type Searcher interface {
	// Search fuses vector and graph search over a namespace.
	Search(ctx context.Context, query retrieval.Query) (*retrieval.Result, error)
}

// Auditor reads and reverses consolidation decisions.
type Auditor interface {
	// Audits lists the most recent consolidation decisions for a namespace.
	Audits(ctx context.Context, namespace string, limit int) ([]*types.AuditRecord, error)

	// Rollback restores the pre-merge entity state recorded in a merge
	// audit record.
	Rollback(ctx context.Context, namespace, auditID string) error
}

// Consolidato is the full engine surface.
type Consolidato interface {
	Consolidator
	PatternAnalyzer
	Searcher
	Auditor

	// Stats summarizes one namespace of the store.
	Stats(ctx context.Context, namespace string) (*store.NamespaceStats, error)

	// Close releases all resources.
	Close(ctx context.Context) error
}

// Compile-time checks that the client satisfies every focused interface.
var _ Consolidato = (*Client)(nil)

var _ discovery.Store = (store.KnowledgeStore)(nil)
