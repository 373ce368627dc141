package btree

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/pmm"
)

// pathFrame records one inner node visited while descending toward a leaf,
// so a mutation can propagate the leaf's (possibly new) identifier back up
// to its ancestors once the leaf edit is known, without recursion.
type pathFrame struct {
	id   pmtree.UUID
	n    *node
	slot int // index into n.children that the descent followed
}

// Put inserts key/value if no record with an equal key exists, or replaces
// the existing record's value otherwise (the façade's Update is an upsert;
// spec.md §9's Open Question on insert-vs-replace is resolved this way — see
// DESIGN.md). Must run inside an active transaction.
func (h *Handle) Put(ctx context.Context, key, value []byte) error {
	if h.mgr.TxStage() != pmm.StageWorking {
		return pmtree.New(pmtree.StageViolation, fmt.Errorf("Put requires an active transaction"), nil)
	}
	hkey, err := h.class.HKeyGen(key)
	if err != nil {
		return pmtree.New(pmtree.Invalid, err, nil)
	}
	if len(hkey) != h.class.HKeySize() {
		return pmtree.New(pmtree.Invalid, fmt.Errorf("HKeyGen returned %d bytes, want %d", len(hkey), h.class.HKeySize()), nil)
	}

	desc, err := readRootDescriptor(ctx, h.mgr, h.rootID)
	if err != nil {
		return err
	}

	rootID := desc.RootNodeID
	rootNode, err := h.fetchNode(ctx, rootID)
	if err != nil {
		return err
	}
	if rootNode.count() == int(desc.Order) {
		newRootID, newRoot, err := h.splitFull(ctx, rootID, rootNode, desc.Order)
		if err != nil {
			return err
		}
		desc.RootNodeID = newRootID
		desc.Version++
		if err := writeRootDescriptor(ctx, h.mgr, h.rootID, desc); err != nil {
			return err
		}
		rootID, rootNode = newRootID, newRoot
	}

	var stack []pathFrame
	curID, cur := rootID, rootNode
	for !cur.isLeaf {
		ci := childIndex(cur.keys, hkey)
		childID := cur.children[ci]
		child, err := h.fetchNode(ctx, childID)
		if err != nil {
			return err
		}
		if child.count() == int(desc.Order) {
			promoted, leftID, rightID, err := h.splitChild(ctx, childID, child)
			if err != nil {
				return err
			}
			cur.keys = insertBytes(cur.keys, ci, promoted)
			cur.children[ci] = leftID
			cur.children = insertID(cur.children, ci+1, rightID)
			if bytes.Compare(hkey, promoted) >= 0 {
				ci++
			}
			childID = cur.children[ci]
			child, err = h.fetchNode(ctx, childID)
			if err != nil {
				return err
			}
		}
		stack = append(stack, pathFrame{id: curID, n: cur, slot: ci})
		curID, cur = childID, child
	}

	idx, exact := searchLeaf(cur.keys, hkey)
	if exact {
		runEnd := idx
		for runEnd < len(cur.keys) && bytes.Equal(cur.keys[runEnd], hkey) {
			runEnd++
		}
		matched := -1
		for i := idx; i < runEnd; i++ {
			cmp, err := h.class.KeyCmp(ctx, h.mgr, cur.bodies[i], key)
			if err != nil {
				return err
			}
			if cmp == 0 {
				matched = i
				break
			}
		}
		if matched >= 0 {
			newBody, err := h.class.RecUpdate(ctx, h.mgr, cur.bodies[matched], value)
			if err != nil {
				return err
			}
			cur.bodies[matched] = newBody
		} else {
			newBody, err := h.class.RecAlloc(ctx, h.mgr, key, value)
			if err != nil {
				return err
			}
			cur.keys = insertBytes(cur.keys, runEnd, append([]byte(nil), hkey...))
			cur.bodies = insertID(cur.bodies, runEnd, newBody)
		}
	} else {
		newBody, err := h.class.RecAlloc(ctx, h.mgr, key, value)
		if err != nil {
			return err
		}
		cur.keys = insertBytes(cur.keys, idx, append([]byte(nil), hkey...))
		cur.bodies = insertID(cur.bodies, idx, newBody)
	}

	newID, err := h.replaceNode(ctx, curID, cur)
	if err != nil {
		return err
	}
	for i := len(stack) - 1; i >= 0; i-- {
		f := stack[i]
		f.n.children[f.slot] = newID
		newID, err = h.replaceNode(ctx, f.id, f.n)
		if err != nil {
			return err
		}
	}
	if newID != desc.RootNodeID {
		desc.RootNodeID = newID
		desc.Version++
		if err := writeRootDescriptor(ctx, h.mgr, h.rootID, desc); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the record matching key. Returns a pmtree.Error with code
// NonExistent if no such record exists.
func (h *Handle) Delete(ctx context.Context, key []byte) error {
	if h.mgr.TxStage() != pmm.StageWorking {
		return pmtree.New(pmtree.StageViolation, fmt.Errorf("Delete requires an active transaction"), nil)
	}
	hkey, err := h.class.HKeyGen(key)
	if err != nil {
		return pmtree.New(pmtree.Invalid, err, nil)
	}

	desc, err := readRootDescriptor(ctx, h.mgr, h.rootID)
	if err != nil {
		return err
	}
	minKeys := minKeysFor(desc.Order)

	rootID := desc.RootNodeID
	rootNode, err := h.fetchNode(ctx, rootID)
	if err != nil {
		return err
	}

	if rootNode.isLeaf {
		removed, err := h.removeFromLeaf(ctx, rootNode, hkey, key)
		if err != nil {
			return err
		}
		if !removed {
			return pmtree.New(pmtree.NonExistent, nil, key)
		}
		newID, err := h.replaceNode(ctx, rootID, rootNode)
		if err != nil {
			return err
		}
		if newID != desc.RootNodeID {
			desc.RootNodeID = newID
			desc.Version++
			return writeRootDescriptor(ctx, h.mgr, h.rootID, desc)
		}
		return nil
	}

	var stack []pathFrame
	curID, cur := rootID, rootNode
	for {
		ci := childIndex(cur.keys, hkey)
		childID := cur.children[ci]
		child, err := h.fetchNode(ctx, childID)
		if err != nil {
			return err
		}
		if child.count() == minKeys {
			newChildID, fixed, newCi, err := h.fixUnderflow(ctx, cur, ci, minKeys)
			if err != nil {
				return err
			}
			ci = newCi
			childID, child = newChildID, fixed

			if len(stack) == 0 && len(cur.keys) == 0 {
				// root collapsed to its single remaining child: drop a level.
				if err := h.mgr.Free(ctx, curID); err != nil {
					return pmtree.New(pmtree.IoFailure, err, nil)
				}
				desc.RootNodeID = childID
				desc.Version++
				if err := writeRootDescriptor(ctx, h.mgr, h.rootID, desc); err != nil {
					return err
				}
				curID, cur = childID, child
				if cur.isLeaf {
					break
				}
				continue
			}
		}
		stack = append(stack, pathFrame{id: curID, n: cur, slot: ci})
		curID, cur = childID, child
		if cur.isLeaf {
			break
		}
	}

	removed, err := h.removeFromLeaf(ctx, cur, hkey, key)
	if err != nil {
		return err
	}
	if !removed {
		return pmtree.New(pmtree.NonExistent, nil, key)
	}

	newID, err := h.replaceNode(ctx, curID, cur)
	if err != nil {
		return err
	}
	for i := len(stack) - 1; i >= 0; i-- {
		f := stack[i]
		f.n.children[f.slot] = newID
		newID, err = h.replaceNode(ctx, f.id, f.n)
		if err != nil {
			return err
		}
	}
	if newID != desc.RootNodeID {
		desc.RootNodeID = newID
		desc.Version++
		return writeRootDescriptor(ctx, h.mgr, h.rootID, desc)
	}
	return nil
}

// removeFromLeaf deletes the record whose true key equals key (disambiguated
// via Class.KeyCmp among an HKey collision run) from leaf n, freeing its
// record body. Reports false if no such record is present.
func (h *Handle) removeFromLeaf(ctx context.Context, n *node, hkey, key []byte) (bool, error) {
	idx, exact := searchLeaf(n.keys, hkey)
	if !exact {
		return false, nil
	}
	runEnd := idx
	for runEnd < len(n.keys) && bytes.Equal(n.keys[runEnd], hkey) {
		runEnd++
	}
	for i := idx; i < runEnd; i++ {
		cmp, err := h.class.KeyCmp(ctx, h.mgr, n.bodies[i], key)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			if err := h.class.RecFree(ctx, h.mgr, n.bodies[i]); err != nil {
				return false, err
			}
			n.keys = removeBytes(n.keys, i)
			n.bodies = removeID(n.bodies, i)
			return true, nil
		}
	}
	return false, nil
}

// splitFull splits a full root node (leaf or inner) and wraps the two
// halves in a brand-new inner root, growing the tree by one level.
func (h *Handle) splitFull(ctx context.Context, oldID pmtree.UUID, n *node, order uint16) (pmtree.UUID, *node, error) {
	promoted, leftID, rightID, err := h.splitChild(ctx, oldID, n)
	if err != nil {
		return pmtree.NilUUID, nil, err
	}
	newRoot := newInner()
	newRoot.keys = [][]byte{promoted}
	newRoot.children = []pmtree.UUID{leftID, rightID}
	newRootID, err := persistNewNode(ctx, h.mgr, h.class, newRoot)
	if err != nil {
		return pmtree.NilUUID, nil, err
	}
	return newRootID, newRoot, nil
}

// splitChild splits a full node n (currently persisted at oldID, which it
// frees) into two freshly persisted siblings, returning the promoted
// separator key and the new left/right identifiers.
func (h *Handle) splitChild(ctx context.Context, oldID pmtree.UUID, n *node) (promoted []byte, leftID, rightID pmtree.UUID, err error) {
	mid := len(n.keys) / 2
	var left, right *node
	if n.isLeaf {
		promoted = append([]byte(nil), n.keys[mid]...)
		left = &node{isLeaf: true, keys: n.keys[:mid], bodies: n.bodies[:mid]}
		right = &node{isLeaf: true, keys: n.keys[mid:], bodies: n.bodies[mid:]}
	} else {
		promoted = append([]byte(nil), n.keys[mid]...)
		left = &node{isLeaf: false, keys: n.keys[:mid], children: n.children[:mid+1]}
		right = &node{isLeaf: false, keys: n.keys[mid+1:], children: n.children[mid+1:]}
	}
	leftID, err = persistNewNode(ctx, h.mgr, h.class, left)
	if err != nil {
		return nil, pmtree.NilUUID, pmtree.NilUUID, err
	}
	rightID, err = persistNewNode(ctx, h.mgr, h.class, right)
	if err != nil {
		return nil, pmtree.NilUUID, pmtree.NilUUID, err
	}
	if err := h.mgr.Free(ctx, oldID); err != nil {
		return nil, pmtree.NilUUID, pmtree.NilUUID, pmtree.New(pmtree.IoFailure, err, nil)
	}
	return promoted, leftID, rightID, nil
}

// fixUnderflow ensures parent.children[ci] has more than minKeys records
// before the caller descends into it, by borrowing a record from a
// sibling with room to spare, or merging with a sibling otherwise. It
// mutates parent's keys/children in place and returns the (possibly new)
// identifier, node, and index of the child to continue descending into.
func (h *Handle) fixUnderflow(ctx context.Context, parent *node, ci int, minKeys int) (pmtree.UUID, *node, int, error) {
	childID := parent.children[ci]
	child, err := h.fetchNode(ctx, childID)
	if err != nil {
		return pmtree.NilUUID, nil, 0, err
	}

	if ci > 0 {
		leftSibID := parent.children[ci-1]
		leftSib, err := h.fetchNode(ctx, leftSibID)
		if err != nil {
			return pmtree.NilUUID, nil, 0, err
		}
		if leftSib.count() > minKeys {
			if child.isLeaf {
				last := len(leftSib.keys) - 1
				k, b := leftSib.keys[last], leftSib.bodies[last]
				leftSib.keys, leftSib.bodies = leftSib.keys[:last], leftSib.bodies[:last]
				child.keys = prependBytes(child.keys, k)
				child.bodies = prependID(child.bodies, b)
				parent.keys[ci-1] = append([]byte(nil), child.keys[0]...)
			} else {
				last := len(leftSib.keys) - 1
				sep := parent.keys[ci-1]
				lastChild := leftSib.children[len(leftSib.children)-1]
				lastKey := leftSib.keys[last]
				leftSib.keys = leftSib.keys[:last]
				leftSib.children = leftSib.children[:len(leftSib.children)-1]
				child.keys = prependBytes(child.keys, sep)
				child.children = prependID(child.children, lastChild)
				parent.keys[ci-1] = lastKey
			}
			newLeftSibID, err := h.replaceNode(ctx, leftSibID, leftSib)
			if err != nil {
				return pmtree.NilUUID, nil, 0, err
			}
			parent.children[ci-1] = newLeftSibID
			newChildID, err := h.replaceNode(ctx, childID, child)
			if err != nil {
				return pmtree.NilUUID, nil, 0, err
			}
			parent.children[ci] = newChildID
			return newChildID, child, ci, nil
		}
	}

	if ci < len(parent.children)-1 {
		rightSibID := parent.children[ci+1]
		rightSib, err := h.fetchNode(ctx, rightSibID)
		if err != nil {
			return pmtree.NilUUID, nil, 0, err
		}
		if rightSib.count() > minKeys {
			if child.isLeaf {
				k, b := rightSib.keys[0], rightSib.bodies[0]
				rightSib.keys, rightSib.bodies = rightSib.keys[1:], rightSib.bodies[1:]
				child.keys = append(child.keys, k)
				child.bodies = append(child.bodies, b)
				parent.keys[ci] = append([]byte(nil), rightSib.keys[0]...)
			} else {
				sep := parent.keys[ci]
				firstChild := rightSib.children[0]
				firstKey := rightSib.keys[0]
				rightSib.keys = rightSib.keys[1:]
				rightSib.children = rightSib.children[1:]
				child.keys = append(child.keys, sep)
				child.children = append(child.children, firstChild)
				parent.keys[ci] = firstKey
			}
			newRightSibID, err := h.replaceNode(ctx, rightSibID, rightSib)
			if err != nil {
				return pmtree.NilUUID, nil, 0, err
			}
			parent.children[ci+1] = newRightSibID
			newChildID, err := h.replaceNode(ctx, childID, child)
			if err != nil {
				return pmtree.NilUUID, nil, 0, err
			}
			parent.children[ci] = newChildID
			return newChildID, child, ci, nil
		}
	}

	// No sibling has a record to spare: merge with one of them.
	if ci > 0 {
		leftSibID := parent.children[ci-1]
		leftSib, err := h.fetchNode(ctx, leftSibID)
		if err != nil {
			return pmtree.NilUUID, nil, 0, err
		}
		merged := mergeNodes(leftSib, child, parent.keys[ci-1])
		if err := h.mgr.Free(ctx, leftSibID); err != nil {
			return pmtree.NilUUID, nil, 0, pmtree.New(pmtree.IoFailure, err, nil)
		}
		if err := h.mgr.Free(ctx, childID); err != nil {
			return pmtree.NilUUID, nil, 0, pmtree.New(pmtree.IoFailure, err, nil)
		}
		parent.keys = removeBytes(parent.keys, ci-1)
		parent.children = removeID(parent.children, ci)
		mergedID, err := persistNewNode(ctx, h.mgr, h.class, merged)
		if err != nil {
			return pmtree.NilUUID, nil, 0, err
		}
		parent.children[ci-1] = mergedID
		return mergedID, merged, ci - 1, nil
	}

	rightSibID := parent.children[ci+1]
	rightSib, err := h.fetchNode(ctx, rightSibID)
	if err != nil {
		return pmtree.NilUUID, nil, 0, err
	}
	merged := mergeNodes(child, rightSib, parent.keys[ci])
	if err := h.mgr.Free(ctx, childID); err != nil {
		return pmtree.NilUUID, nil, 0, pmtree.New(pmtree.IoFailure, err, nil)
	}
	if err := h.mgr.Free(ctx, rightSibID); err != nil {
		return pmtree.NilUUID, nil, 0, pmtree.New(pmtree.IoFailure, err, nil)
	}
	parent.keys = removeBytes(parent.keys, ci)
	parent.children = removeID(parent.children, ci+1)
	mergedID, err := persistNewNode(ctx, h.mgr, h.class, merged)
	if err != nil {
		return pmtree.NilUUID, nil, 0, err
	}
	parent.children[ci] = mergedID
	return mergedID, merged, ci, nil
}

func mergeNodes(a, b *node, sep []byte) *node {
	if a.isLeaf {
		keys := make([][]byte, 0, len(a.keys)+len(b.keys))
		keys = append(keys, a.keys...)
		keys = append(keys, b.keys...)
		bodies := make([]pmtree.UUID, 0, len(a.bodies)+len(b.bodies))
		bodies = append(bodies, a.bodies...)
		bodies = append(bodies, b.bodies...)
		return &node{isLeaf: true, keys: keys, bodies: bodies}
	}
	keys := make([][]byte, 0, len(a.keys)+1+len(b.keys))
	keys = append(keys, a.keys...)
	keys = append(keys, sep)
	keys = append(keys, b.keys...)
	children := make([]pmtree.UUID, 0, len(a.children)+len(b.children))
	children = append(children, a.children...)
	children = append(children, b.children...)
	return &node{isLeaf: false, keys: keys, children: children}
}

func insertBytes(s [][]byte, at int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[at+1:], s[at:])
	s[at] = v
	return s
}

func removeBytes(s [][]byte, at int) [][]byte {
	copy(s[at:], s[at+1:])
	return s[:len(s)-1]
}

func prependBytes(s [][]byte, v []byte) [][]byte {
	return insertBytes(s, 0, v)
}

func insertID(s []pmtree.UUID, at int, v pmtree.UUID) []pmtree.UUID {
	s = append(s, pmtree.NilUUID)
	copy(s[at+1:], s[at:])
	s[at] = v
	return s
}

func removeID(s []pmtree.UUID, at int) []pmtree.UUID {
	copy(s[at:], s[at+1:])
	return s[:len(s)-1]
}

func prependID(s []pmtree.UUID, v pmtree.UUID) []pmtree.UUID {
	return insertID(s, 0, v)
}
