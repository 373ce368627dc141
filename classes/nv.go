// Package classes implements the three record classes spec.md §4.3
// requires — NV (name to blob), UV (UUID to blob), EC (epoch counter to
// blob) — each satisfying btree.Class. Semantics are grounded on
// original_source/src/common/btree_class.c, the DAOS C implementation this
// module's tree design was distilled from: nv_hkey_gen/nv_key_cmp/
// nv_rec_alloc/nv_rec_free/nv_rec_fetch/nv_rec_update/nv_rec_string for NV,
// and their uv_*/ec_* counterparts for UV and EC.
package classes

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/pmm"
)

// nvBodyHeader is the header size of one NV record's on-media layout: a (nameLen, valueLen)
// header followed by the name (the original C nv_rec's variable-length
// nr_name) and then the value (nr_value). valueLen is tracked separately
// from the allocation's actual size so an in-place RecUpdate can shrink a
// value without the leftover padding being mistaken for value bytes.
const nvBodyHeader = 8 // uint32 nameLen, uint32 valueLen

// NV is the name-keyed record class: a 32-bit hash of the name (truncated
// xxhash.Sum64, in place of the original's string hash — same "hashed key
// plus collision compare" shape) orders the tree, with the stored name used
// to break hash collisions via a byte-wise compare (nv_key_cmp).
type NV struct{}

const classIDNV uint32 = 1

func (NV) ID() uint32    { return classIDNV }
func (NV) Name() string  { return "nv" }
func (NV) HKeySize() int { return 4 }

func (NV) HKeyGen(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("nv: name must not be empty")
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(xxhash.Sum64(key)))
	return b[:], nil
}

func (NV) KeyCmp(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, key []byte) (int, error) {
	name, _, err := nvSplit(ctx, mgr, bodyID)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(name, key), nil
}

func (NV) RecAlloc(ctx context.Context, mgr pmm.Manager, key, value []byte) (pmtree.UUID, error) {
	if len(key) == 0 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("nv: name must not be empty"), nil)
	}
	if len(value) == 0 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("nv: value must not be empty"), key)
	}
	buf := make([]byte, nvBodyHeader+len(key)+len(value))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(value)))
	copy(buf[nvBodyHeader:], key)
	copy(buf[nvBodyHeader+len(key):], value)
	id, err := mgr.Alloc(ctx, len(buf))
	if err != nil {
		return pmtree.NilUUID, pmtree.New(pmtree.OutOfMemory, err, nil)
	}
	ptr, err := mgr.IDToPtr(ctx, id)
	if err != nil {
		return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
	}
	copy(ptr, buf)
	return id, nil
}

func (NV) RecFree(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) error {
	if err := mgr.Free(ctx, bodyID); err != nil {
		return pmtree.New(pmtree.IoFailure, err, bodyID)
	}
	return nil
}

func (NV) RecFetch(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, dst []byte) (btree.FetchResult, error) {
	_, value, err := nvSplit(ctx, mgr, bodyID)
	if err != nil {
		return btree.FetchResult{}, err
	}
	return fetchInto(value, dst), nil
}

func (NV) RecKey(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) ([]byte, error) {
	name, _, err := nvSplit(ctx, mgr, bodyID)
	return name, err
}

// RecUpdate mirrors nv_rec_update's reuse-or-reallocate rule: if the new
// value fits within the record's current allocation, it is rewritten in
// place; otherwise a fresh, larger record is allocated and the old one
// freed.
func (NV) RecUpdate(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, value []byte) (pmtree.UUID, error) {
	if len(value) == 0 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("nv: value must not be empty"), nil)
	}
	ptr, err := mgr.IDToPtr(ctx, bodyID)
	if err != nil {
		return pmtree.NilUUID, pmtree.New(pmtree.NoHandle, err, nil)
	}
	nameLen := int(binary.BigEndian.Uint32(ptr[0:4]))
	needed := nvBodyHeader + nameLen + len(value)
	if needed <= len(ptr) {
		if err := mgr.TxAddPtr(ctx, bodyID, ptr); err != nil {
			return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
		}
		binary.BigEndian.PutUint32(ptr[4:8], uint32(len(value)))
		copy(ptr[nvBodyHeader+nameLen:], value)
		for i := nvBodyHeader + nameLen + len(value); i < len(ptr); i++ {
			ptr[i] = 0
		}
		return bodyID, nil
	}
	name := append([]byte(nil), ptr[nvBodyHeader:nvBodyHeader+nameLen]...)
	newID, err := NV{}.RecAlloc(ctx, mgr, name, value)
	if err != nil {
		return pmtree.NilUUID, err
	}
	if err := mgr.Free(ctx, bodyID); err != nil {
		return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
	}
	return newID, nil
}

// Tombstoned is always false: NV has no tombstone convention, since delete
// frees the record body outright (see classes.NV's use from btree.Delete).
func (NV) Tombstoned(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (bool, error) {
	return false, nil
}

func (NV) RecString(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (string, error) {
	name, value, err := nvSplit(ctx, mgr, bodyID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("nv{name:%q, len(value):%d}", name, len(value)), nil
}

func nvSplit(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (name, value []byte, err error) {
	ptr, err := mgr.IDToPtr(ctx, bodyID)
	if err != nil {
		return nil, nil, pmtree.New(pmtree.NoHandle, err, nil)
	}
	if len(ptr) < nvBodyHeader {
		return nil, nil, pmtree.New(pmtree.IoFailure, fmt.Errorf("nv: corrupt record body (%d bytes)", len(ptr)), nil)
	}
	nameLen := int(binary.BigEndian.Uint32(ptr[0:4]))
	valueLen := int(binary.BigEndian.Uint32(ptr[4:8]))
	if nvBodyHeader+nameLen+valueLen > len(ptr) {
		return nil, nil, pmtree.New(pmtree.IoFailure, fmt.Errorf("nv: corrupt record body: header exceeds body"), nil)
	}
	name = ptr[nvBodyHeader : nvBodyHeader+nameLen]
	value = ptr[nvBodyHeader+nameLen : nvBodyHeader+nameLen+valueLen]
	return name, value, nil
}

func fetchInto(value, dst []byte) btree.FetchResult {
	if dst == nil {
		return btree.FetchResult{Value: value}
	}
	n := copy(dst, value)
	return btree.FetchResult{Value: dst[:n], Truncated: n < len(value)}
}
