// Package pmm defines the Persistent Memory Manager contract (spec.md §4.1):
// the abstract allocator and transaction coordinator the B-Tree Engine builds
// on. A Manager owns a pool of addressable memory, hands out opaque
// identifiers in place of raw pointers, and enrolls any region the engine is
// about to mutate into an undo log so a transaction can be rolled back
// cleanly.
//
// This mirrors the teacher's Transaction/TwoPhaseCommitTransaction contract
// (Begin/Commit/Rollback/HasBegun/GetMode) generalized from a store-level
// transaction to a memory-level one: TxBegin/TxCommit/TxAbort/TxStage take the
// place of Begin/Commit/Rollback/HasBegun, and Alloc/Zalloc/Free/IDToPtr/TxAdd
// take the place of the node persistence the teacher delegates to its
// NodeRepository.
package pmm

import (
	"context"

	"github.com/sharedcode/pmtree"
)

// Stage reports where an in-flight transaction is in its lifecycle.
type Stage int

const (
	// StageNone means no transaction has begun.
	StageNone Stage = iota
	// StageWorking means a transaction has begun and is accepting mutations.
	StageWorking
	// StageCommitted means the transaction's changes were durably applied.
	StageCommitted
	// StageAborted means the transaction's changes were rolled back.
	StageAborted
)

// Manager is the contract the B-Tree Engine (package btree) requires of the
// persistent memory substrate. Implementations may back it with real
// persistent memory, a memory-mapped file, or (as here) a plain in-process
// map for testing.
//
// Every method that can fail returns a pmtree.Error carrying the
// appropriate ErrorCode: OutOfMemory on allocation failure, NoHandle for an
// identifier the manager doesn't recognize, IoFailure for a backing-store
// failure, StageViolation for an operation attempted outside its required
// transaction stage.
type Manager interface {
	// TxBegin starts a new transaction. Returns StageViolation if one is
	// already in progress on this Manager.
	TxBegin(ctx context.Context) error

	// TxCommit durably applies all mutations made since TxBegin and clears
	// the undo log. Returns StageViolation if no transaction has begun.
	TxCommit(ctx context.Context) error

	// TxAbort discards all mutations made since TxBegin, restoring every
	// enrolled region to its pre-transaction contents, and frees anything
	// allocated during the transaction. cause is recorded for diagnostics
	// and may be nil for a caller-requested abort.
	TxAbort(ctx context.Context, cause error) error

	// TxStage reports the current transaction stage.
	TxStage() Stage

	// Alloc reserves size bytes and returns a fresh identifier for them.
	// The returned region's initial contents are unspecified (garbage),
	// mirroring a raw allocator; see Zalloc for zero-initialized memory.
	// Must be called within an active transaction.
	Alloc(ctx context.Context, size int) (pmtree.UUID, error)

	// Zalloc is Alloc followed by a zero-fill.
	Zalloc(ctx context.Context, size int) (pmtree.UUID, error)

	// Free releases the region identified by id. The caller must have
	// enrolled id via TxAdd first if the region still holds data other
	// parts of the tree may reference before this transaction commits.
	Free(ctx context.Context, id pmtree.UUID) error

	// IDToPtr resolves id to a direct, mutable view of its bytes. The
	// returned slice aliases the manager's backing storage: writes through
	// it are visible immediately, but are only made durable (survive a
	// crash or a concurrent reader) once the enclosing transaction commits.
	// Callers MUST call TxAdd(id) before the first write in a transaction
	// so the manager can undo the write on abort. Returns NoHandle if id is
	// unknown.
	IDToPtr(ctx context.Context, id pmtree.UUID) ([]byte, error)

	// TxAdd enrolls the region identified by id into the current
	// transaction's undo log, snapshotting its current contents, before the
	// caller mutates it via a pointer obtained from IDToPtr. A region is
	// snapshotted at most once per transaction (the first enrollment wins).
	TxAdd(ctx context.Context, id pmtree.UUID) error

	// TxAddPtr is TxAdd for a region the caller already holds a pointer
	// into (e.g. a sub-slice returned from an earlier IDToPtr), letting
	// the engine enroll-then-mutate without a second ID lookup. The id
	// must be the same one IDToPtr returned ptr from.
	TxAddPtr(ctx context.Context, id pmtree.UUID, ptr []byte) error
}
