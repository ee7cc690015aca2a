// Package types defines the shared data model for the consolidation engine:
// entities, relationships, patterns, audit records, and the candidate
// contracts consumed from the external extraction pipeline.
//
// Entities, relationships, and patterns each have exactly one mutating owner
// (resolver, discoverer, recognizer); the types here carry the invariants
// those owners maintain, such as optimistic version columns and
// source-reference sets.
package types
