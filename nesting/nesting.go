// Package nesting implements the nesting helper (spec.md §4.4): embedding a
// whole child tree as the value of a parent record. The child tree's root
// identifier is what gets stored as the parent record's value, so opening
// the child later is just "look up the parent key, parse the value as a
// UUID, OpenInPlace it" — and because both the parent record write and the
// child tree's creation/destruction happen under the same caller-managed
// pmm.Manager transaction, the whole operation is atomic: an abort before
// TxCommit undoes the child tree's allocation and the parent record
// together.
package nesting

import (
	"context"
	"fmt"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/pmm"
)

// CreateChild creates a new tree governed by childClass and order, stores
// its root identifier as parent's value for parentKey, and returns a Handle
// to the new child tree. Must run inside an active transaction.
func CreateChild(ctx context.Context, mgr pmm.Manager, parent *btree.Handle, parentKey []byte, childClass btree.Class, order uint16) (*btree.Handle, error) {
	child, err := btree.CreateInPlaceWithFeatures(ctx, mgr, childClass, order, btree.FeatureNestedChild)
	if err != nil {
		return nil, err
	}
	if err := parent.Put(ctx, parentKey, child.RootID().Bytes()); err != nil {
		return nil, err
	}
	return child, nil
}

// OpenChild opens the child tree stored at parentKey, which must have been
// created by CreateChild (or a CreateInPlaceWithFeatures call marking
// FeatureNestedChild) using childClass.
func OpenChild(ctx context.Context, mgr pmm.Manager, parent *btree.Handle, parentKey []byte, childClass btree.Class) (*btree.Handle, error) {
	rootID, err := childRootID(ctx, parent, parentKey)
	if err != nil {
		return nil, err
	}
	return btree.OpenInPlace(ctx, mgr, childClass, rootID)
}

// DestroyChild destroys the child tree stored at parentKey and removes the
// parent record pointing to it, atomically within the active transaction.
func DestroyChild(ctx context.Context, mgr pmm.Manager, parent *btree.Handle, parentKey []byte, childClass btree.Class) error {
	child, err := OpenChild(ctx, mgr, parent, parentKey, childClass)
	if err != nil {
		return err
	}
	if err := child.Destroy(ctx); err != nil {
		return err
	}
	return parent.Delete(ctx, parentKey)
}

func childRootID(ctx context.Context, parent *btree.Handle, parentKey []byte) (pmtree.UUID, error) {
	res, err := parent.Lookup(ctx, parentKey)
	if err != nil {
		return pmtree.NilUUID, err
	}
	if len(res.Value) != 16 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("nesting: parent value is %d bytes, want 16 (a nested tree's root id)", len(res.Value)), nil)
	}
	return pmtree.ParseUUIDBytes(res.Value)
}
