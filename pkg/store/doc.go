// Package store defines the knowledge store contract and its backends.
//
// The store is partitioned per (namespace, entity_type): every query and
// index is scoped so one tenant's consolidation never contends with
// another's. Entities and relationships carry optimistic version columns;
// a failed version check surfaces as ErrVersionConflict and the owning
// component retries with a fresh read.
//
// Backends: PostgreSQL for deployments, embedded SQLite for single-node
// runs, and an in-memory store for tests.
package store
