// Package journal implements the journaling/deduplication layer of
// component C8: content-defined fragments, an append-only fragment
// table, version transactions, a logical rollback view, and an
// out-of-core compaction pass.
//
// This is the spec's most direct generalization of the teacher's
// content-addressable Merkle-tree database (db/db.go, db/tree.go,
// db/blob.go): "one Merkle tree per labeled stream, stored as files
// in a hash-sharded directory" becomes "one fragment table plus flat
// version records, stored as segments inside a single container
// file" — no recursive tree-of-trees, since a path's bytes are just
// the ordered concatenation of its fragment list.
package journal

// Fragment is a content-defined chunk of a user file, content
// addressed the way the teacher's Blob is, but by SHA-1 (spec's wire
// contract) and located by (blockID, offset, length) inside the
// container archive rather than by a sharded directory path.
type Fragment struct {
	SHA1    [20]byte
	BlockID uint64
	Offset  uint32
	Length  uint32
}
