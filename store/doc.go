// Package store documents the persistence backends for onboard.
//
// Each backend package implements progress.KV, the three-operation
// durable key-value contract the progress store is built on:
//
//   - memory: in-process maps; unit tests and development
//   - redis: Redis strings via go-redis
//   - sqlite: a single blob table via database/sql + mattn/go-sqlite3
//   - postgres: a single blob table via pgx/v5 with embedded migration
//   - bun: the same table through the Bun ORM (Postgres dialect)
//   - mongo: a single collection via the official Mongo driver
//
// Backends hold no flow semantics. The progress layer owns key naming,
// the snapshot codec, and degradation to in-memory operation when a
// backend fails.
package store
