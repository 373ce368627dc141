package btree

import (
	"bytes"
	"context"

	"github.com/sharedcode/pmtree"
)

// Lookup fetches the value for key, borrowing a pointer into class/engine
// storage (see FetchResult) rather than copying. Returns a pmtree.Error with
// code NonExistent if no record matches.
func (h *Handle) Lookup(ctx context.Context, key []byte) (FetchResult, error) {
	return h.lookup(ctx, key, nil)
}

// LookupInto fetches the value for key into dst, truncating (FetchResult.Truncated)
// if dst is smaller than the stored value, per the fetch-buffer protocol.
func (h *Handle) LookupInto(ctx context.Context, key, dst []byte) (FetchResult, error) {
	return h.lookup(ctx, key, dst)
}

func (h *Handle) lookup(ctx context.Context, key, dst []byte) (FetchResult, error) {
	hkey, err := h.class.HKeyGen(key)
	if err != nil {
		return FetchResult{}, pmtree.New(pmtree.Invalid, err, nil)
	}
	desc, err := readRootDescriptor(ctx, h.mgr, h.rootID)
	if err != nil {
		return FetchResult{}, err
	}
	curID := desc.RootNodeID
	for {
		n, err := h.fetchNode(ctx, curID)
		if err != nil {
			return FetchResult{}, err
		}
		if n.isLeaf {
			idx, exact := searchLeaf(n.keys, hkey)
			if !exact {
				return FetchResult{}, pmtree.New(pmtree.NonExistent, nil, key)
			}
			for i := idx; i < len(n.keys) && bytes.Equal(n.keys[i], hkey); i++ {
				cmp, err := h.class.KeyCmp(ctx, h.mgr, n.bodies[i], key)
				if err != nil {
					return FetchResult{}, err
				}
				if cmp == 0 {
					res, err := h.class.RecFetch(ctx, h.mgr, n.bodies[i], dst)
					if err != nil {
						return FetchResult{}, err
					}
					return res, nil
				}
			}
			return FetchResult{}, pmtree.New(pmtree.NonExistent, nil, key)
		}
		ci := childIndex(n.keys, hkey)
		curID = n.children[ci]
	}
}
