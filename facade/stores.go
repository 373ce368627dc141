package facade

import (
	"context"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/classes"
	"github.com/sharedcode/pmtree/pmm"
)

type stringKeyCodec struct{}

func (stringKeyCodec) Encode(key string) []byte { return []byte(key) }

type uuidKeyCodec struct{}

func (uuidKeyCodec) Encode(key pmtree.UUID) []byte { return key.Bytes() }

type counterKeyCodec struct{}

func (counterKeyCodec) Encode(key uint64) []byte { return classes.EncodeCounter(key) }

// NewNVStore builds a façade Store over the NV (name -> blob) record class,
// keyed by string. V is the caller's value type, (de)serialized with
// marshaler (DefaultMarshaler/JSON if nil).
func NewNVStore[V any](mgr pmm.Manager, opts pmtree.StoreOptions, marshaler Marshaler) *Store[string, V] {
	return newStore[string, V](mgr, classes.NV{}, stringKeyCodec{}, marshaler, opts)
}

// NewUVStore builds a façade Store over the UV (UUID -> blob) record class.
func NewUVStore[V any](mgr pmm.Manager, opts pmtree.StoreOptions, marshaler Marshaler) *Store[pmtree.UUID, V] {
	return newStore[pmtree.UUID, V](mgr, classes.UV{}, uuidKeyCodec{}, marshaler, opts)
}

// NewECStore builds a façade Store over the EC (epoch counter -> blob)
// record class, keyed by uint64. Pass CounterMarshaler (not nil) for
// NewECStore[uint64] to enforce the literal 8-byte epoch-counter value
// contract instead of the default JSON encoding.
func NewECStore[V any](mgr pmm.Manager, opts pmtree.StoreOptions, marshaler Marshaler) *Store[uint64, V] {
	return newStore[uint64, V](mgr, classes.EC{}, counterKeyCodec{}, marshaler, opts)
}

// CreateNestedNVStore creates an NV-classed child tree owned by parent's
// record at key (spec.md §4.4), returning a typed façade over it.
func CreateNestedNVStore[K, V, CV any](ctx context.Context, parent *Store[K, V], key K, childOpts pmtree.StoreOptions, childMarshaler Marshaler) (*Store[string, CV], error) {
	return CreateChild[K, V, string, CV](ctx, parent, key, classes.NV{}, stringKeyCodec{}, childMarshaler, childOpts)
}

// OpenNestedNVStore reopens an NV-classed child tree previously created by
// CreateNestedNVStore at parent's record for key.
func OpenNestedNVStore[K, V, CV any](ctx context.Context, parent *Store[K, V], key K, childOpts pmtree.StoreOptions, childMarshaler Marshaler) (*Store[string, CV], error) {
	return OpenChild[K, V, string, CV](ctx, parent, key, classes.NV{}, stringKeyCodec{}, childMarshaler, childOpts)
}

// CreateNestedUVStore creates a UV-classed child tree owned by parent's
// record at key.
func CreateNestedUVStore[K, V, CV any](ctx context.Context, parent *Store[K, V], key K, childOpts pmtree.StoreOptions, childMarshaler Marshaler) (*Store[pmtree.UUID, CV], error) {
	return CreateChild[K, V, pmtree.UUID, CV](ctx, parent, key, classes.UV{}, uuidKeyCodec{}, childMarshaler, childOpts)
}

// OpenNestedUVStore reopens a UV-classed child tree previously created by
// CreateNestedUVStore at parent's record for key.
func OpenNestedUVStore[K, V, CV any](ctx context.Context, parent *Store[K, V], key K, childOpts pmtree.StoreOptions, childMarshaler Marshaler) (*Store[pmtree.UUID, CV], error) {
	return OpenChild[K, V, pmtree.UUID, CV](ctx, parent, key, classes.UV{}, uuidKeyCodec{}, childMarshaler, childOpts)
}

// CreateNestedECStore creates an EC-classed child tree owned by parent's
// record at key.
func CreateNestedECStore[K, V, CV any](ctx context.Context, parent *Store[K, V], key K, childOpts pmtree.StoreOptions, childMarshaler Marshaler) (*Store[uint64, CV], error) {
	return CreateChild[K, V, uint64, CV](ctx, parent, key, classes.EC{}, counterKeyCodec{}, childMarshaler, childOpts)
}

// OpenNestedECStore reopens an EC-classed child tree previously created by
// CreateNestedECStore at parent's record for key.
func OpenNestedECStore[K, V, CV any](ctx context.Context, parent *Store[K, V], key K, childOpts pmtree.StoreOptions, childMarshaler Marshaler) (*Store[uint64, CV], error) {
	return OpenChild[K, V, uint64, CV](ctx, parent, key, classes.EC{}, counterKeyCodec{}, childMarshaler, childOpts)
}
