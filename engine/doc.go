// Package engine implements the ordered key/value layer the record store
// is built on: named tables keyed by a URI, positioned cursors,
// point get/insert/remove, range truncate, and a random cursor, all backed
// by a write-ahead log for durability.
//
// The key/value engine itself is an external collaborator from the record
// store's point of view (it is not part of the record identity, capped
// eviction, oplog stone, or MVCC-cursor subsystems), so this package keeps
// its own scope narrow: an ordered keyspace per table, crash recovery via
// WAL replay, and the creation-config surface the record store needs to
// express checksum/compression/oplog intent. It does not implement
// multi-level compaction, SST files, or column-family-as-object semantics.
package engine
