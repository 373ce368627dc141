package classes

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/pmm"
)

// uvBodyHeader mirrors nvBodyHeader: a valueLen field so an in-place
// RecUpdate can shrink without leaking padding into the fetched value.
// The key itself needs no length field — it is always exactly 16 bytes.
const uvBodyHeader = 4 + 16 // uint32 valueLen, 16-byte key

// UV is the UUID-keyed record class: the raw 16-byte key is used directly
// as the hashed key (uv_hkey_gen is the identity function in the original —
// no collision compare is needed since the key already occupies the full
// hash-comparable width).
type UV struct{}

const classIDUV uint32 = 2

func (UV) ID() uint32    { return classIDUV }
func (UV) Name() string  { return "uv" }
func (UV) HKeySize() int { return 16 }

func (UV) HKeyGen(key []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("uv: key must be exactly 16 bytes, got %d", len(key))
	}
	return append([]byte(nil), key...), nil
}

// KeyCmp byte-compares the stored key against key. Two distinct UUIDs never
// share an HKey, so this agrees with the HKey match; the compare is kept
// exact rather than assumed.
func (UV) KeyCmp(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, key []byte) (int, error) {
	stored, err := UV{}.RecKey(ctx, mgr, bodyID)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(stored, key), nil
}

func (UV) RecAlloc(ctx context.Context, mgr pmm.Manager, key, value []byte) (pmtree.UUID, error) {
	if len(key) != 16 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("uv: key must be exactly 16 bytes, got %d", len(key)), nil)
	}
	if len(value) == 0 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("uv: value must not be empty"), key)
	}
	buf := make([]byte, uvBodyHeader+len(value))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(value)))
	copy(buf[4:20], key)
	copy(buf[uvBodyHeader:], value)
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

func (UV) RecFree(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) error {
	if err := mgr.Free(ctx, bodyID); err != nil {
		return pmtree.New(pmtree.IoFailure, err, bodyID)
	}
	return nil
}

func (UV) RecFetch(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, dst []byte) (btree.FetchResult, error) {
	_, value, err := uvSplit(ctx, mgr, bodyID)
	if err != nil {
		return btree.FetchResult{}, err
	}
	return fetchInto(value, dst), nil
}

func (UV) RecKey(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) ([]byte, error) {
	key, _, err := uvSplit(ctx, mgr, bodyID)
	return key, err
}

func (UV) RecUpdate(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID, value []byte) (pmtree.UUID, error) {
	if len(value) == 0 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("uv: value must not be empty"), nil)
	}
	ptr, err := mgr.IDToPtr(ctx, bodyID)
	if err != nil {
		return pmtree.NilUUID, pmtree.New(pmtree.NoHandle, err, nil)
	}
	needed := uvBodyHeader + len(value)
	if needed <= len(ptr) {
		if err := mgr.TxAddPtr(ctx, bodyID, ptr); err != nil {
			return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
		}
		binary.BigEndian.PutUint32(ptr[0:4], uint32(len(value)))
		copy(ptr[uvBodyHeader:], value)
		for i := needed; i < len(ptr); i++ {
			ptr[i] = 0
		}
		return bodyID, nil
	}
	key := append([]byte(nil), ptr[4:20]...)
	newID, err := UV{}.RecAlloc(ctx, mgr, key, value)
	if err != nil {
		return pmtree.NilUUID, err
	}
	if err := mgr.Free(ctx, bodyID); err != nil {
		return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
	}
	return newID, nil
}

// Tombstoned is always false: UV has no tombstone convention.
func (UV) Tombstoned(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (bool, error) {
	return false, nil
}

func (UV) RecString(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (string, error) {
	key, value, err := uvSplit(ctx, mgr, bodyID)
	if err != nil {
		return "", err
	}
	id, err := pmtree.ParseUUIDBytes(key)
	if err != nil {
		return "", pmtree.New(pmtree.IoFailure, err, nil)
	}
	return fmt.Sprintf("uv{key:%s, len(value):%d}", id, len(value)), nil
}

func uvSplit(ctx context.Context, mgr pmm.Manager, bodyID pmtree.UUID) (key, value []byte, err error) {
	ptr, err := mgr.IDToPtr(ctx, bodyID)
	if err != nil {
		return nil, nil, pmtree.New(pmtree.NoHandle, err, nil)
	}
	if len(ptr) < uvBodyHeader {
		return nil, nil, pmtree.New(pmtree.IoFailure, fmt.Errorf("uv: corrupt record body (%d bytes)", len(ptr)), nil)
	}
	valueLen := int(binary.BigEndian.Uint32(ptr[0:4]))
	if uvBodyHeader+valueLen > len(ptr) {
		return nil, nil, pmtree.New(pmtree.IoFailure, fmt.Errorf("uv: corrupt record body: header exceeds body"), nil)
	}
	key = ptr[4:20]
	value = ptr[uvBodyHeader : uvBodyHeader+valueLen]
	return key, value, nil
}
