package btree

import (
	"context"

	"github.com/sharedcode/pmtree"
)

// ProbeKind selects how IterProbe positions a Cursor, per spec.md §4.2's
// FIRST/LAST/EQ/GE/LE probe kinds.
type ProbeKind int

const (
	ProbeFirst ProbeKind = iota
	ProbeLast
	ProbeEQ
	ProbeGE
	ProbeLE
)

type cursorFrame struct {
	id  pmtree.UUID
	n   *node
	idx int // for inner frames: child index taken; for the leaf frame: current key index
}

// Cursor iterates a Handle's records in key order without holding the whole
// tree in memory, grounded on the teacher's Cursor/currentItemRef idiom
// (btreecursor.go) but re-expressed over the engine's path-stack
// representation rather than a single node-id + index pair, since there are
// no leaf sibling links here.
type Cursor struct {
	h     *Handle
	stack []cursorFrame
}

// IterPrepare returns a new, unpositioned Cursor over h. Call IterProbe
// before IterFetch/IterNext/IterPrev.
func (h *Handle) IterPrepare(ctx context.Context) (*Cursor, error) {
	return &Cursor{h: h}, nil
}

// IterFinish releases the cursor's in-process state. The engine holds no
// external resources per cursor, so this only clears the cursor's path stack;
// it is kept for symmetry with IterPrepare.
func (c *Cursor) IterFinish() { c.stack = nil }

// IterProbe positions the cursor per kind, descending on key for
// ProbeEQ/ProbeGE/ProbeLE. Returns false if the probe finds no matching
// position (e.g. ProbeEQ on a missing key, or any probe on an empty tree).
func (c *Cursor) IterProbe(ctx context.Context, kind ProbeKind, key []byte) (bool, error) {
	desc, err := readRootDescriptor(ctx, c.h.mgr, c.h.rootID)
	if err != nil {
		return false, err
	}
	var hkey []byte
	if kind == ProbeEQ || kind == ProbeGE || kind == ProbeLE {
		hkey, err = c.h.class.HKeyGen(key)
		if err != nil {
			return false, pmtree.New(pmtree.Invalid, err, nil)
		}
	}

	var stack []cursorFrame
	curID := desc.RootNodeID
	for {
		n, err := c.h.fetchNode(ctx, curID)
		if err != nil {
			return false, err
		}
		if n.isLeaf {
			idx := 0
			switch kind {
			case ProbeFirst:
				idx = 0
			case ProbeLast:
				idx = len(n.keys) - 1
			case ProbeEQ:
				i, exact := searchLeaf(n.keys, hkey)
				if !exact {
					c.stack = nil
					return false, nil
				}
				idx = i
			case ProbeGE:
				idx, _ = searchLeaf(n.keys, hkey)
			case ProbeLE:
				i, exact := searchLeaf(n.keys, hkey)
				if exact {
					idx = i
				} else {
					idx = i - 1
				}
			}
			stack = append(stack, cursorFrame{id: curID, n: n, idx: idx})
			c.stack = stack
			if kind == ProbeGE && idx >= len(n.keys) {
				// Every key in the leaf childIndex routed us to is < target
				// (possible when target falls strictly between this leaf's
				// max and the next separator): the successor, if any, is the
				// first record of the next leaf, not NonExistent.
				ok, err := c.stepNext(ctx)
				if err != nil || !ok {
					return ok, err
				}
				return c.skipTombstones(ctx, kind)
			}
			if kind == ProbeLE && idx < 0 {
				// Every key in the routed leaf is > target (a separator can
				// outlive the key it was copied from once Delete removes it):
				// the predecessor, if any, is the previous leaf's last record.
				ok, err := c.stepPrev(ctx)
				if err != nil || !ok {
					return ok, err
				}
				return c.skipTombstones(ctx, kind)
			}
			if idx < 0 || idx >= len(n.keys) {
				return false, nil
			}
			return c.skipTombstones(ctx, kind)
		}
		var ci int
		switch kind {
		case ProbeFirst:
			ci = 0
		case ProbeLast:
			ci = len(n.children) - 1
		default:
			ci = childIndex(n.keys, hkey)
		}
		stack = append(stack, cursorFrame{id: curID, n: n, idx: ci})
		curID = n.children[ci]
	}
}

// skipTombstones implements spec.md §4.3's provisional ec_fetch operation: an
// EQ probe landing on a tombstone reports NonExistent (false) immediately;
// FIRST/GE advance forward and LAST/LE advance backward until a
// non-tombstoned record is found or the iterator runs off that end. For
// classes with no tombstone convention (NV, UV), Class.Tombstoned always
// reports false, so this is a no-op.
func (c *Cursor) skipTombstones(ctx context.Context, kind ProbeKind) (bool, error) {
	tomb, err := c.currentTombstoned(ctx)
	if err != nil {
		return false, err
	}
	if !tomb {
		return true, nil
	}
	if kind == ProbeEQ {
		c.stack = nil
		return false, nil
	}
	// IterNext/IterPrev are themselves tombstone-skipping, so one call
	// lands on the next/previous non-tombstoned record (or exhausts).
	if kind == ProbeFirst || kind == ProbeGE {
		return c.IterNext(ctx)
	}
	return c.IterPrev(ctx)
}

// IterFetch returns the raw key and value at the cursor's current position.
func (c *Cursor) IterFetch(ctx context.Context, dst []byte) (key []byte, result FetchResult, err error) {
	f, err := c.currentLeafFrame()
	if err != nil {
		return nil, FetchResult{}, err
	}
	bodyID := f.n.bodies[f.idx]
	key, err = c.h.class.RecKey(ctx, c.h.mgr, bodyID)
	if err != nil {
		return nil, FetchResult{}, err
	}
	result, err = c.h.class.RecFetch(ctx, c.h.mgr, bodyID, dst)
	if err != nil {
		return nil, FetchResult{}, err
	}
	return key, result, nil
}

func (c *Cursor) currentLeafFrame() (*cursorFrame, error) {
	if len(c.stack) == 0 {
		return nil, pmtree.New(pmtree.Invalid, nil, "cursor is not positioned")
	}
	f := &c.stack[len(c.stack)-1]
	if f.idx < 0 || f.idx >= len(f.n.keys) {
		return nil, pmtree.New(pmtree.NonExistent, nil, nil)
	}
	return f, nil
}

// IterNext advances the cursor to the next non-tombstoned record in
// ascending key order (spec.md §4.3's ec_fetch: a plain FIRST..LAST walk
// via repeated IterNext must never surface a tombstone). Returns false once
// there is no next record.
func (c *Cursor) IterNext(ctx context.Context) (bool, error) {
	for {
		ok, err := c.stepNext(ctx)
		if err != nil || !ok {
			return ok, err
		}
		tomb, err := c.currentTombstoned(ctx)
		if err != nil {
			return false, err
		}
		if !tomb {
			return true, nil
		}
	}
}

// IterPrev is IterNext's mirror, moving to the previous non-tombstoned
// record.
func (c *Cursor) IterPrev(ctx context.Context) (bool, error) {
	for {
		ok, err := c.stepPrev(ctx)
		if err != nil || !ok {
			return ok, err
		}
		tomb, err := c.currentTombstoned(ctx)
		if err != nil {
			return false, err
		}
		if !tomb {
			return true, nil
		}
	}
}

func (c *Cursor) currentTombstoned(ctx context.Context) (bool, error) {
	f, err := c.currentLeafFrame()
	if err != nil {
		return false, err
	}
	return c.h.class.Tombstoned(ctx, c.h.mgr, f.n.bodies[f.idx])
}

// stepNext/stepPrev move exactly one record without regard to tombstones;
// skipTombstones and IterNext/IterPrev build the tombstone-aware behavior on
// top of these.
func (c *Cursor) stepNext(ctx context.Context) (bool, error) {
	if len(c.stack) == 0 {
		return false, nil
	}
	leaf := &c.stack[len(c.stack)-1]
	if leaf.idx+1 < len(leaf.n.keys) {
		leaf.idx++
		return true, nil
	}
	return c.ascendAndDescend(ctx, +1)
}

func (c *Cursor) stepPrev(ctx context.Context) (bool, error) {
	if len(c.stack) == 0 {
		return false, nil
	}
	leaf := &c.stack[len(c.stack)-1]
	if leaf.idx-1 >= 0 {
		leaf.idx--
		return true, nil
	}
	return c.ascendAndDescend(ctx, -1)
}

// ascendAndDescend pops frames until it finds an ancestor with a next
// (dir>0) or previous (dir<0) child to descend into, then descends to the
// outermost (first, for dir>0; last, for dir<0) leaf record under it.
func (c *Cursor) ascendAndDescend(ctx context.Context, dir int) (bool, error) {
	c.stack = c.stack[:len(c.stack)-1]
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		nextIdx := top.idx + dir
		if nextIdx >= 0 && nextIdx < len(top.n.children) {
			top.idx = nextIdx
			curID := top.n.children[nextIdx]
			for {
				n, err := c.h.fetchNode(ctx, curID)
				if err != nil {
					return false, err
				}
				if n.isLeaf {
					idx := 0
					if dir < 0 {
						idx = len(n.keys) - 1
					}
					c.stack = append(c.stack, cursorFrame{id: curID, n: n, idx: idx})
					return idx >= 0 && idx < len(n.keys), nil
				}
				ci := 0
				if dir < 0 {
					ci = len(n.children) - 1
				}
				c.stack = append(c.stack, cursorFrame{id: curID, n: n, idx: ci})
				curID = n.children[ci]
			}
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	return false, nil
}
