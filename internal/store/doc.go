// Package store provides SQLite-backed persistence for flows.
//
// Each flow is stored as its full JSON body (unknown platform fields
// included) alongside a content hash and a version counter. Writes use
// optimistic concurrency: the caller passes the version it read, and the
// write is rejected with ErrVersionConflict when someone else got there
// first. A write whose content hash matches the stored one is skipped.
//
// Every accepted write appends a revision row (UUIDv7 id, version, hash,
// body, note) so earlier bodies can be listed and restored.
//
// # Ordering
//
//   - Versions are logical counters starting at 1, never timestamps
//   - Revision queries use ORDER BY version ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Content hashes come from ir.FlowHash (SHA-256 with domain separation).
package store
