package btree

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/pmm"
)

// Handle is an open B+-tree: the engine's entry point for Lookup, Update,
// Delete and cursor iteration, grounded on the teacher's BtreeInterface
// surface (Find/Add/Update/Remove/First/Last/Next/Previous) but addressed
// through a pmm.Manager pool instead of an in-process NodeRepository.
type Handle struct {
	mgr    pmm.Manager
	class  Class
	rootID pmtree.UUID // identifier of the persisted RootDescriptor blob
}

// RootID returns the identifier callers pass to OpenInPlace to reopen this
// tree later, and is what a parent record stores when nesting a child tree
// (package nesting).
func (h *Handle) RootID() pmtree.UUID { return h.rootID }

// Features returns the tree's RootDescriptor feature bits (e.g.
// FeatureNestedChild), read fresh from the manager each call.
func (h *Handle) Features(ctx context.Context) (uint64, error) {
	desc, err := readRootDescriptor(ctx, h.mgr, h.rootID)
	if err != nil {
		return 0, err
	}
	return desc.Features, nil
}

func minKeysFor(order uint16) int {
	m := int(order) / 2
	m--
	if m < 0 {
		m = 0
	}
	return m
}

// CreateInPlace allocates a fresh, empty tree governed by class, with the
// given fan-out (order), and returns a Handle positioned on it. Must be
// called within an active transaction.
func CreateInPlace(ctx context.Context, mgr pmm.Manager, class Class, order uint16) (*Handle, error) {
	return CreateInPlaceWithFeatures(ctx, mgr, class, order, FeatureNone)
}

// CreateInPlaceWithFeatures is CreateInPlace with explicit RootDescriptor
// feature bits, used by package nesting to mark a tree as a nested child
// (FeatureNestedChild).
func CreateInPlaceWithFeatures(ctx context.Context, mgr pmm.Manager, class Class, order uint16, features uint64) (*Handle, error) {
	if mgr.TxStage() != pmm.StageWorking {
		return nil, pmtree.New(pmtree.StageViolation, fmt.Errorf("CreateInPlace requires an active transaction"), nil)
	}
	if order < 2 {
		return nil, pmtree.New(pmtree.Invalid, fmt.Errorf("order must be >= 2, got %d", order), order)
	}
	root := newLeaf()
	rootNodeID, err := persistNewNode(ctx, mgr, class, root)
	if err != nil {
		return nil, err
	}
	desc := RootDescriptor{
		ClassID:    class.ID(),
		Features:   features,
		Order:      order,
		RootNodeID: rootNodeID,
		Version:    1,
	}
	descID, err := mgr.Zalloc(ctx, rootDescriptorSize)
	if err != nil {
		return nil, pmtree.New(pmtree.OutOfMemory, err, nil)
	}
	if err := writeRootDescriptor(ctx, mgr, descID, desc); err != nil {
		return nil, err
	}
	return &Handle{mgr: mgr, class: class, rootID: descID}, nil
}

// OpenInPlace opens a tree previously created by CreateInPlace (or a tree
// nested via package nesting), validating that class matches the tree's
// recorded ClassID.
func OpenInPlace(ctx context.Context, mgr pmm.Manager, class Class, rootID pmtree.UUID) (*Handle, error) {
	desc, err := readRootDescriptor(ctx, mgr, rootID)
	if err != nil {
		return nil, err
	}
	if desc.ClassID != class.ID() {
		return nil, pmtree.New(pmtree.Invalid, fmt.Errorf("tree was created with class id %d, opened with %d", desc.ClassID, class.ID()), nil)
	}
	return &Handle{mgr: mgr, class: class, rootID: rootID}, nil
}

// Close releases in-process resources held by h. The engine holds none
// beyond the Handle struct itself, so Close is a no-op kept for symmetry
// with OpenInPlace/CreateInPlace and for façade callers that defer it.
func (h *Handle) Close() error { return nil }

// Destroy frees every node and record body in the tree, then the root
// descriptor itself. Must be called within an active transaction.
func (h *Handle) Destroy(ctx context.Context) error {
	if h.mgr.TxStage() != pmm.StageWorking {
		return pmtree.New(pmtree.StageViolation, fmt.Errorf("Destroy requires an active transaction"), nil)
	}
	desc, err := readRootDescriptor(ctx, h.mgr, h.rootID)
	if err != nil {
		return err
	}
	if err := h.destroyNode(ctx, desc.RootNodeID); err != nil {
		return err
	}
	if err := h.mgr.Free(ctx, h.rootID); err != nil {
		return pmtree.New(pmtree.IoFailure, err, nil)
	}
	return nil
}

func (h *Handle) destroyNode(ctx context.Context, id pmtree.UUID) error {
	n, err := h.fetchNode(ctx, id)
	if err != nil {
		return err
	}
	if n.isLeaf {
		for _, body := range n.bodies {
			if err := h.class.RecFree(ctx, h.mgr, body); err != nil {
				return err
			}
		}
	} else {
		for _, child := range n.children {
			if err := h.destroyNode(ctx, child); err != nil {
				return err
			}
		}
	}
	if err := h.mgr.Free(ctx, id); err != nil {
		return pmtree.New(pmtree.IoFailure, err, nil)
	}
	return nil
}

// --- node persistence helpers ---

func persistNewNode(ctx context.Context, mgr pmm.Manager, class Class, n *node) (pmtree.UUID, error) {
	buf := encodeNode(n, class.HKeySize())
	id, err := mgr.Zalloc(ctx, len(buf))
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

func (h *Handle) fetchNode(ctx context.Context, id pmtree.UUID) (*node, error) {
	ptr, err := h.mgr.IDToPtr(ctx, id)
	if err != nil {
		return nil, pmtree.New(pmtree.NoHandle, err, nil)
	}
	n, err := decodeNode(ptr, h.class.HKeySize())
	if err != nil {
		return nil, pmtree.New(pmtree.IoFailure, err, nil)
	}
	return n, nil
}

// replaceNode frees the old node blob and allocates a fresh one sized for
// n's current contents, returning the new identifier. Used whenever a
// node's encoded size changes (every insert/delete/split/merge), since the
// in-memory pmm backing store has no in-place resize.
func (h *Handle) replaceNode(ctx context.Context, oldID pmtree.UUID, n *node) (pmtree.UUID, error) {
	newID, err := persistNewNode(ctx, h.mgr, h.class, n)
	if err != nil {
		return pmtree.NilUUID, err
	}
	if !oldID.IsNil() {
		if err := h.mgr.Free(ctx, oldID); err != nil {
			return pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
		}
	}
	return newID, nil
}

func readRootDescriptor(ctx context.Context, mgr pmm.Manager, id pmtree.UUID) (RootDescriptor, error) {
	ptr, err := mgr.IDToPtr(ctx, id)
	if err != nil {
		return RootDescriptor{}, pmtree.New(pmtree.NoHandle, err, id)
	}
	d, err := decodeRootDescriptor(ptr)
	if err != nil {
		return RootDescriptor{}, pmtree.New(pmtree.IoFailure, err, nil)
	}
	return d, nil
}

func writeRootDescriptor(ctx context.Context, mgr pmm.Manager, id pmtree.UUID, d RootDescriptor) error {
	if err := mgr.TxAdd(ctx, id); err != nil {
		return pmtree.New(pmtree.IoFailure, err, nil)
	}
	ptr, err := mgr.IDToPtr(ctx, id)
	if err != nil {
		return pmtree.New(pmtree.NoHandle, err, nil)
	}
	copy(ptr, encodeRootDescriptor(d))
	return nil
}

// --- key ordering within a node ---

// searchLeaf returns the index of the first key >= target (lower bound),
// and whether keys[idx] == target exactly (byte-equal HKey; collision
// disambiguation via Class.KeyCmp happens one level up, in Lookup/Update).
func searchLeaf(keys [][]byte, target []byte) (idx int, exact bool) {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(keys) && bytes.Equal(keys[lo], target)
}

// childIndex returns which child to descend into for target: the count of
// separator keys <= target.
func childIndex(keys [][]byte, target []byte) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(keys[mid], target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
