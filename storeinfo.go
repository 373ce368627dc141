package pmtree

import "fmt"

// StoreOptions configures a new tree at creation time (spec §3.3, §6). It is
// the façade-level input; the engine turns it into a btree.RootDescriptor.
type StoreOptions struct {
	// Name identifies the store for diagnostics; not itself persisted in the
	// root descriptor, but rendered into log messages and errors.
	Name string
	// SlotLength is the tree's order (fan-out): how many records/children a
	// node holds. Normalized to an even number in [2, 10000], mirroring the
	// teacher's NewStoreInfo slot-length normalization.
	SlotLength int
	// Description optionally documents the store's purpose.
	Description string
}

const (
	minSlotLength = 2
	maxSlotLength = 10000
)

// NormalizeSlotLength applies the even/min/max slot-length rule used when
// turning StoreOptions into a root descriptor's Order field.
func NormalizeSlotLength(n int) uint16 {
	if n%2 != 0 {
		n--
	}
	if n < minSlotLength {
		n = minSlotLength
	}
	if n > maxSlotLength {
		n = maxSlotLength
	}
	return uint16(n)
}

// Validate reports an Invalid error if the options cannot back a tree.
func (so StoreOptions) Validate() error {
	if so.Name == "" {
		return New(Invalid, fmt.Errorf("store name must not be empty"), so.Name)
	}
	return nil
}
