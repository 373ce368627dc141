// Package pmtree provides shared value types used across the persistent-memory
// tree framework: persistent identifiers, the error taxonomy surfaced at the
// façade boundary, and process-wide logging setup. Concrete behavior lives in
// the subpackages: pmm (the persistent memory manager contract), btree (the
// engine), classes (NV/UV/EC), nesting, and facade.
package pmtree

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// UUID is a persistent identifier: an opaque, cheap-to-copy reference to an
// allocated persistent object or to a tree's root descriptor. It is never a
// transient pointer — translation to a transient address only happens through
// pmm.Manager.IDToPtr.
type UUID uuid.UUID

// ParseUUID converts a string to a UUID, erroring if the input is malformed.
func ParseUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	return UUID(u), err
}

// ParseUUIDBytes reinterprets a 16-byte slice as a UUID, as used when
// decoding a UUID out of a persisted node or root descriptor blob.
func ParseUUIDBytes(b []byte) (UUID, error) {
	u, err := uuid.FromBytes(b)
	return UUID(u), err
}

// Bytes returns the UUID's 16-byte representation, suitable for writing into
// a persisted blob.
func (id UUID) Bytes() []byte {
	b := [16]byte(id)
	return b[:]
}

// NewUUID returns a new randomly generated persistent identifier. Generation
// retries a handful of times with a short backoff before giving up, since the
// only realistic failure mode is transient entropy starvation.
func NewUUID() UUID {
	var err error
	for i := 0; i < 10; i++ {
		var id uuid.UUID
		id, err = uuid.NewRandom()
		if err == nil {
			return UUID(id)
		}
		time.Sleep(time.Millisecond)
	}
	panic(err)
}

// NilUUID is the zero-value UUID, used for "no root node" / "no allocation".
var NilUUID UUID

// IsNil reports whether id is the zero-value UUID.
func (id UUID) IsNil() bool {
	return bytes.Equal(id[:], NilUUID[:])
}

// String returns the canonical string representation of id.
func (id UUID) String() string {
	return uuid.UUID(id).String()
}

// Compare orders two UUIDs byte-wise: -1 if x < y, 1 if x > y, 0 if equal.
// This is the same byte order UV trees use as their key order (the hashed key
// is the raw UUID).
func (x UUID) Compare(y UUID) int {
	return bytes.Compare(x[:], y[:])
}
