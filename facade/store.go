// Package facade is the typed layer spec.md §4.5 describes: a generic
// Store[K, V] wrapping a btree.Handle so callers work with Go key/value
// types instead of raw bytes, plus per-class constructors (NewNVStore,
// NewUVStore, NewECStore) that wire up the right key codec for each
// record class. Grounded on the teacher's generic Btree[TK, TV]/StoreInterface
// surface (Add/Update/Find/Remove/GetCurrentValue) and its
// encoding.Marshaler idiom for value (de)serialization.
package facade

import (
	"context"
	"encoding/hex"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/nesting"
	"github.com/sharedcode/pmtree/pmm"
)

// KeyCodec converts a façade's typed key to the raw bytes the engine indexes
// on. Each per-class constructor supplies the codec matching its record
// class's expected key shape (see nv/uv/ec KeyCodec implementations in
// stores.go).
type KeyCodec[K any] interface {
	Encode(key K) []byte
}

// Store is a typed façade over one open tree. K is the class's native key
// type (string for NV, pmtree.UUID for UV, uint64 for EC); V is any
// value type the Marshaler can (de)serialize.
type Store[K any, V any] struct {
	mgr       pmm.Manager
	class     btree.Class
	handle    *btree.Handle
	keyCodec  KeyCodec[K]
	marshaler Marshaler
	opts      pmtree.StoreOptions
}

func newStore[K any, V any](mgr pmm.Manager, class btree.Class, codec KeyCodec[K], marshaler Marshaler, opts pmtree.StoreOptions) *Store[K, V] {
	if marshaler == nil {
		marshaler = DefaultMarshaler
	}
	return &Store[K, V]{mgr: mgr, class: class, keyCodec: codec, marshaler: marshaler, opts: opts}
}

// CreateTree allocates a fresh, empty tree for this Store, per opts.
// Must run inside an active transaction.
func (s *Store[K, V]) CreateTree(ctx context.Context) error {
	if err := s.opts.Validate(); err != nil {
		return err
	}
	h, err := btree.CreateInPlace(ctx, s.mgr, s.class, pmtree.NormalizeSlotLength(s.opts.SlotLength))
	if err != nil {
		pmtree.Log(ctx, pmtree.LogWarn, "facade: CreateTree failed", s.opts.Name, err)
		return err
	}
	s.handle = h
	return nil
}

// OpenTree reopens a tree previously created by CreateTree (directly, or
// nested under a parent record via package nesting), identified by rootID.
func (s *Store[K, V]) OpenTree(ctx context.Context, rootID pmtree.UUID) error {
	h, err := btree.OpenInPlace(ctx, s.mgr, s.class, rootID)
	if err != nil {
		return err
	}
	s.handle = h
	return nil
}

// DestroyTree frees every node and record in the tree. Must run inside an
// active transaction.
func (s *Store[K, V]) DestroyTree(ctx context.Context) error {
	return s.handle.Destroy(ctx)
}

// RootID returns the identifier to pass to OpenTree later, or to store as a
// parent record's value when nesting this tree (package nesting).
func (s *Store[K, V]) RootID() pmtree.UUID { return s.handle.RootID() }

// Update creates or replaces the record for key with the marshaled value
// (spec.md §9: Update is an upsert). Must run inside an active transaction.
func (s *Store[K, V]) Update(ctx context.Context, key K, value V) error {
	raw, err := s.marshaler.Marshal(value)
	if err != nil {
		return pmtree.New(pmtree.Invalid, err, nil)
	}
	if err := s.handle.Put(ctx, s.keyCodec.Encode(key), raw); err != nil {
		pmtree.Log(ctx, pmtree.LogWarn, "facade: Update failed", s.renderKey(ctx, key), err)
		return err
	}
	return nil
}

// Lookup fetches and unmarshals the value for key. A NonExistent error logs
// at Debug (spec.md §7: missed lookups are routine, not exceptional); any
// other error logs at Warn.
func (s *Store[K, V]) Lookup(ctx context.Context, key K) (V, error) {
	var zero V
	res, err := s.handle.Lookup(ctx, s.keyCodec.Encode(key))
	if err != nil {
		s.logLookupErr(ctx, key, err)
		return zero, err
	}
	var v V
	if err := s.marshaler.Unmarshal(res.Value, &v); err != nil {
		return zero, pmtree.New(pmtree.Invalid, err, nil)
	}
	return v, nil
}

// LookupBorrow fetches the raw, still-marshaled bytes for key without
// unmarshaling, borrowing a pointer into the engine's storage per the
// fetch-buffer protocol (btree.FetchResult). Useful when a caller only
// needs to inspect or forward the bytes.
func (s *Store[K, V]) LookupBorrow(ctx context.Context, key K) (btree.FetchResult, error) {
	res, err := s.handle.Lookup(ctx, s.keyCodec.Encode(key))
	if err != nil {
		s.logLookupErr(ctx, key, err)
		return btree.FetchResult{}, err
	}
	return res, nil
}

// Delete removes the record for key.
func (s *Store[K, V]) Delete(ctx context.Context, key K) error {
	if err := s.handle.Delete(ctx, s.keyCodec.Encode(key)); err != nil {
		if pmtree.CodeOf(err) == pmtree.NonExistent {
			pmtree.Log(ctx, pmtree.LogDebug, "facade: Delete found no record", s.renderKey(ctx, key), nil)
		} else {
			pmtree.Log(ctx, pmtree.LogWarn, "facade: Delete failed", s.renderKey(ctx, key), err)
		}
		return err
	}
	return nil
}

func (s *Store[K, V]) logLookupErr(ctx context.Context, key K, err error) {
	if pmtree.CodeOf(err) == pmtree.NonExistent {
		pmtree.Log(ctx, pmtree.LogDebug, "facade: Lookup found no record", s.renderKey(ctx, key), nil)
		return
	}
	pmtree.Log(ctx, pmtree.LogWarn, "facade: Lookup failed", s.renderKey(ctx, key), err)
}

func (s *Store[K, V]) renderKey(ctx context.Context, key K) string {
	return s.opts.Name + ":" + hex.EncodeToString(s.keyCodec.Encode(key))
}

// Handle returns the underlying open tree, for callers (package nesting)
// that need the raw btree.Handle rather than the typed façade.
func (s *Store[K, V]) Handle() *btree.Handle { return s.handle }

// CreateChild creates a new child tree under parent's record at key,
// wiring the nesting helper (spec.md §4.4) through the typed façade:
// the returned Store lets the caller work with the child's native key and
// value types instead of raw bytes. Must run inside an active transaction
// shared with parent, so an abort undoes the child's creation along with
// the parent record that would have pointed to it.
func CreateChild[K, V, CK, CV any](ctx context.Context, parent *Store[K, V], key K, childClass btree.Class, childCodec KeyCodec[CK], childMarshaler Marshaler, childOpts pmtree.StoreOptions) (*Store[CK, CV], error) {
	h, err := nesting.CreateChild(ctx, parent.mgr, parent.handle, parent.keyCodec.Encode(key), childClass, pmtree.NormalizeSlotLength(childOpts.SlotLength))
	if err != nil {
		pmtree.Log(ctx, pmtree.LogWarn, "facade: CreateChild failed", parent.renderKey(ctx, key), err)
		return nil, err
	}
	child := newStore[CK, CV](parent.mgr, childClass, childCodec, childMarshaler, childOpts)
	child.handle = h
	return child, nil
}

// OpenChild reopens a child tree previously created by CreateChild at
// parent's record for key.
func OpenChild[K, V, CK, CV any](ctx context.Context, parent *Store[K, V], key K, childClass btree.Class, childCodec KeyCodec[CK], childMarshaler Marshaler, childOpts pmtree.StoreOptions) (*Store[CK, CV], error) {
	h, err := nesting.OpenChild(ctx, parent.mgr, parent.handle, parent.keyCodec.Encode(key), childClass)
	if err != nil {
		pmtree.Log(ctx, pmtree.LogWarn, "facade: OpenChild failed", parent.renderKey(ctx, key), err)
		return nil, err
	}
	child := newStore[CK, CV](parent.mgr, childClass, childCodec, childMarshaler, childOpts)
	child.handle = h
	return child, nil
}

// DestroyChild destroys the child tree at parent's record for key and
// removes that record, atomically within the active transaction.
func DestroyChild[K, V any](ctx context.Context, parent *Store[K, V], key K, childClass btree.Class) error {
	if err := nesting.DestroyChild(ctx, parent.mgr, parent.handle, parent.keyCodec.Encode(key), childClass); err != nil {
		pmtree.Log(ctx, pmtree.LogWarn, "facade: DestroyChild failed", parent.renderKey(ctx, key), err)
		return err
	}
	return nil
}
