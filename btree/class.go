// Package btree implements the B-Tree Engine (spec.md §4.2): a B+-tree-shaped
// index over a pmm.Manager pool. Inner nodes hold only routing keys and child
// identifiers; every record lives at a leaf, addressed by a hashed key (HKey)
// the tree compares as raw bytes and a record class (package classes)
// interprets.
//
// The engine is class-agnostic: it never looks inside a record body. All key
// generation, equality-on-collision, allocation, and rendering is delegated
// to the Class vtable, mirroring the teacher's comparer/NodeRepository split
// between "how nodes are stored" (this package) and "what a key/value means"
// (the Class implementation).
package btree

import (
	"context"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/pmm"
)

// FetchResult is the outcome of fetching a record's value, modeling the
// borrowed-pointer-vs-caller-buffer protocol from spec.md §4.2: when the
// caller supplies a buffer too small for the value, Value holds the
// truncated prefix and Truncated is true rather than the call failing.
type FetchResult struct {
	// Value holds the fetched bytes. If the caller passed a nil destination
	// buffer to RecFetch, this aliases engine/class-owned memory (a
	// "borrowed pointer") and must not be retained past the current
	// transaction. If the caller passed a buffer, Value is that buffer
	// sliced to the copied length.
	Value []byte
	// Truncated is true when Value holds only a prefix of the full record
	// because the caller's destination buffer was smaller than it.
	Truncated bool
}

// Class is the per-record-class vtable (spec.md §4.3): it is how NV, UV, and
// EC plug their key/value semantics into the shared engine.
type Class interface {
	// ID uniquely identifies this class; stored in RootDescriptor.ClassID and
	// checked on OpenInPlace so a tree can't be opened with the wrong class.
	ID() uint32
	// Name is a short diagnostic label (e.g. "nv", "uv", "ec").
	Name() string
	// HKeySize is the fixed width, in bytes, of the keys this class
	// generates via HKeyGen. The engine uses it to size node slots.
	HKeySize() int
	// HKeyGen derives the fixed-width key the engine indexes and orders on
	// from a caller-supplied raw key. It preserves the raw key's order only
	// for classes whose HKey is the key itself (UV, EC); NV's is a hash.
	HKeyGen(key []byte) ([]byte, error)
	// KeyCmp disambiguates an HKey collision: it fetches the record at
	// bodyID and reports how its true key compares to the raw key,
	// negative/zero/positive per the usual Compare convention.
	KeyCmp(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, key []byte) (int, error)
	// RecAlloc allocates a new record body holding key and value and
	// returns its persistent identifier. Must run inside an active
	// transaction.
	RecAlloc(ctx context.Context, mgr pmm.Manager, key, value []byte) (pmtree.UUID, error)
	// RecFree releases a record body. Must run inside an active
	// transaction.
	RecFree(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) error
	// RecFetch reads a record's value per the fetch-buffer protocol: if dst
	// is nil, the result borrows a pointer into the record's own storage;
	// otherwise the value is copied into dst (truncated if dst is
	// shorter).
	RecFetch(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, dst []byte) (FetchResult, error)
	// RecKey returns the record's original (pre-hash) key, as stored
	// alongside its value — what a cursor reports back to the façade
	// during iteration, since the tree itself only indexes on HKey.
	RecKey(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) ([]byte, error)
	// RecUpdate replaces a record's value in place if it fits the existing
	// allocation, or reallocates it otherwise, returning the (possibly
	// unchanged) body identifier. Must run inside an active transaction.
	RecUpdate(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, value []byte) (pmtree.UUID, error)
	// RecString renders a record for diagnostics, per spec.md §7. No code
	// in this module calls it: errors carry the raw key and the façade
	// logs keys as name:hex.
	RecString(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (string, error)
	// Tombstoned reports whether a record is a provisional-delete tombstone
	// (spec.md §9 "Tombstones": only EC's zero-length-update convention uses
	// this; NV and UV always report false, since they free a record's body
	// outright on delete rather than marking it). Cursor iteration consults
	// this to implement EC's "provisional compatibility operation": skipping
	// tombstoned records during FIRST/LAST/GE/LE probes and during
	// Next/Prev, and reporting NonExistent immediately for an EQ probe that
	// lands on one.
	Tombstoned(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (bool, error)
}

// Feature bits for RootDescriptor.Features. The engine stores and reports
// them but does not act on any; the field exists so classes/nesting can mark
// tree-wide behavior (e.g. nesting marks a child tree) without growing the
// descriptor.
const (
	FeatureNone uint64 = 0
	// FeatureNestedChild marks a tree created as another tree's child via
	// package nesting (spec.md §4.4), informing Destroy's caller that the
	// owning parent record, not this tree alone, governs its lifetime.
	FeatureNestedChild uint64 = 1 << 0
)

// RootDescriptor is the fixed-size record spec.md §4.2 requires at a tree's
// well-known root identifier: everything needed to open the tree without
// scanning it.
type RootDescriptor struct {
	ClassID    uint32
	Features   uint64
	Order      uint16
	RootNodeID pmtree.UUID
	Version    uint32
}

const rootDescriptorSize = 4 + 8 + 2 + 16 + 4
