package classes

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/pmm"
)

// ecBodyHeader: 8-byte counter (er_counter), 1-byte deleted flag
// (er_deleted), 4-byte valueLen.
const ecBodyHeader = 8 + 1 + 4

// EC is the epoch-counter-keyed record class: an 8-byte key orders
// numerically (no hashing — HKeyGen is the identity encoding, big-endian so
// byte compare agrees with numeric compare), and delete is a tombstone: per
// ec_rec_update/ec_rec_fetch, writing a zero-length value marks the record
// deleted in place rather than freeing its slot, and a deleted record
// fetches as zero-length rather than NonExistent. A later non-empty update
// un-deletes it. Slot reclamation (compaction) is not implemented, matching
// the original and spec.md's Non-goals.
type EC struct{}

const classIDEC uint32 = 3

func (EC) ID() uint32    { return classIDEC }
func (EC) Name() string  { return "ec" }
func (EC) HKeySize() int { return 8 }

func (EC) HKeyGen(key []byte) ([]byte, error) {
	if len(key) != 8 {
		return nil, fmt.Errorf("ec: key must be exactly 8 bytes, got %d", len(key))
	}
	return append([]byte(nil), key...), nil
}

func (EC) KeyCmp(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, key []byte) (int, error) {
	// Numeric keys never collide in HKey (HKeyGen is the identity), so any
	// leaf entry reached by HKey lookup already matches.
	return 0, nil
}

func (EC) RecAlloc(ctx context.Context, mgr pmm.Manager, key, value []byte) (pmtree.UUID, error) {
	if len(key) != 8 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("ec: key must be exactly 8 bytes, got %d", len(key)), nil)
	}
	buf := make([]byte, ecBodyHeader+len(value))
	copy(buf[0:8], key)
	buf[8] = 0
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(value)))
	copy(buf[ecBodyHeader:], value)
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

func (EC) RecFree(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) error {
	if err := mgr.Free(ctx, bodyID); err != nil {
		return pmtree.New(pmtree.IoFailure, err, bodyID)
	}
	return nil
}

// RecFetch reports a tombstoned record as a zero-length value rather than
// an error, per ec_rec_fetch.
func (EC) RecFetch(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, dst []byte) (btree.FetchResult, error) {
	_, deleted, value, err := ecSplit(ctx, mgr, bodyID)
	if err != nil {
		return btree.FetchResult{}, err
	}
	if deleted {
		return fetchInto(nil, dst), nil
	}
	return fetchInto(value, dst), nil
}

func (EC) RecKey(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) ([]byte, error) {
	key, _, _, err := ecSplit(ctx, mgr, bodyID)
	return key, err
}

// RecUpdate applies ec_rec_update's tombstone convention: an empty value
// marks the record deleted in place; a non-empty value writes a fresh
// payload and clears the deleted flag, reallocating if it no longer fits.
func (EC) RecUpdate(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, value []byte) (pmtree.UUID, error) {
	ptr, err := mgr.IDToPtr(ctx, bodyID)
	if err != nil {
		return pmtree.NilUUID, pmtree.New(pmtree.NoHandle, err, nil)
	}
	if len(value) == 0 {
		if err := mgr.TxAddPtr(ctx, bodyID, ptr); err != nil {
			return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
		}
		ptr[8] = 1
		return bodyID, nil
	}
	needed := ecBodyHeader + len(value)
	if needed <= len(ptr) {
		if err := mgr.TxAddPtr(ctx, bodyID, ptr); err != nil {
			return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
		}
		ptr[8] = 0
		binary.BigEndian.PutUint32(ptr[9:13], uint32(len(value)))
		copy(ptr[ecBodyHeader:], value)
		for i := needed; i < len(ptr); i++ {
			ptr[i] = 0
		}
		return bodyID, nil
	}
	key := append([]byte(nil), ptr[0:8]...)
	newID, err := EC{}.RecAlloc(ctx, mgr, key, value)
	if err != nil {
		return pmtree.NilUUID, err
	}
	if err := mgr.Free(ctx, bodyID); err != nil {
		return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
	}
	return newID, nil
}

// Tombstoned reports the er_deleted flag, letting Cursor skip provisionally
// deleted records during ordered iteration per spec.md §4.3's ec_fetch.
func (EC) Tombstoned(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (bool, error) {
	_, deleted, _, err := ecSplit(ctx, mgr, bodyID)
	return deleted, err
}

func (EC) RecString(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (string, error) {
	key, deleted, value, err := ecSplit(ctx, mgr, bodyID)
	if err != nil {
		return "", err
	}
	counter := binary.BigEndian.Uint64(key)
	return fmt.Sprintf("ec{counter:%d, deleted:%t, len(value):%d}", counter, deleted, len(value)), nil
}

func ecSplit(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (key []byte, deleted bool, value []byte, err error) {
	ptr, err := mgr.IDToPtr(ctx, bodyID)
	if err != nil {
		return nil, false, nil, pmtree.New(pmtree.NoHandle, err, nil)
	}
	if len(ptr) < ecBodyHeader {
		return nil, false, nil, pmtree.New(pmtree.IoFailure, fmt.Errorf("ec: corrupt record body (%d bytes)", len(ptr)), nil)
	}
	key = ptr[0:8]
	deleted = ptr[8] == 1
	valueLen := int(binary.BigEndian.Uint32(ptr[9:13]))
	if ecBodyHeader+valueLen > len(ptr) {
		return nil, false, nil, pmtree.New(pmtree.IoFailure, fmt.Errorf("ec: corrupt record body: header exceeds body"), nil)
	}
	value = ptr[ecBodyHeader : ecBodyHeader+valueLen]
	return key, deleted, value, nil
}

// EncodeCounter renders a uint64 epoch counter as the 8-byte big-endian key
// EC expects, since numeric order must agree with byte-wise order.
func EncodeCounter(counter uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], counter)
	return b[:]
}

// DecodeCounter is EncodeCounter's inverse.
func DecodeCounter(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
