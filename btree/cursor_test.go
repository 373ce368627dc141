package btree_test

import (
	"context"
	"testing"

	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/classes"
	"github.com/sharedcode/pmtree/pmm"
	"github.com/stretchr/testify/require"
)

func newECTree(t *testing.T, mgr pmm.Manager, order uint16) *btree.Handle {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.EC{}, order)
	require.NoError(t, err)
	require.NoError(t, mgr.TxCommit(ctx))
	return h
}

func TestCursorOrderedForwardIteration(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newECTree(t, mgr, 4)

	counters := []uint64{30, 10, 20}
	require.NoError(t, mgr.TxBegin(ctx))
	for _, c := range counters {
		require.NoError(t, h.Put(ctx, classes.EncodeCounter(c), classes.EncodeCounter(c*10)))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	cur, err := h.IterPrepare(ctx)
	require.NoError(t, err)
	ok, err := cur.IterProbe(ctx, btree.ProbeFirst, nil)
	require.NoError(t, err)
	require.True(t, ok)

	var got []uint64
	for {
		key, res, err := cur.IterFetch(ctx, nil)
		require.NoError(t, err)
		got = append(got, classes.DecodeCounter(key))
		require.Equal(t, classes.DecodeCounter(key)*10, classes.DecodeCounter(res.Value))
		ok, err = cur.IterNext(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.Equal(t, []uint64{10, 20, 30}, got)
}

func TestCursorBackwardIteration(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newECTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	for _, c := range []uint64{10, 20, 30} {
		require.NoError(t, h.Put(ctx, classes.EncodeCounter(c), classes.EncodeCounter(c)))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	cur, err := h.IterPrepare(ctx)
	require.NoError(t, err)
	ok, err := cur.IterProbe(ctx, btree.ProbeLast, nil)
	require.NoError(t, err)
	require.True(t, ok)

	var got []uint64
	for {
		key, _, err := cur.IterFetch(ctx, nil)
		require.NoError(t, err)
		got = append(got, classes.DecodeCounter(key))
		ok, err = cur.IterPrev(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.Equal(t, []uint64{30, 20, 10}, got)
}

func TestCursorProbeGEAndLE(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newECTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	for _, c := range []uint64{10, 20, 30} {
		require.NoError(t, h.Put(ctx, classes.EncodeCounter(c), classes.EncodeCounter(c*100)))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	cur, err := h.IterPrepare(ctx)
	require.NoError(t, err)

	ok, err := cur.IterProbe(ctx, btree.ProbeGE, classes.EncodeCounter(15))
	require.NoError(t, err)
	require.True(t, ok)
	key, _, err := cur.IterFetch(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(20), classes.DecodeCounter(key))

	ok, err = cur.IterProbe(ctx, btree.ProbeLE, classes.EncodeCounter(25))
	require.NoError(t, err)
	require.True(t, ok)
	key, _, err = cur.IterFetch(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(20), classes.DecodeCounter(key))
}

func TestCursorProbeGECrossesLeafBoundary(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newECTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	for _, c := range []uint64{10, 20, 30, 40, 50} {
		require.NoError(t, h.Put(ctx, classes.EncodeCounter(c), classes.EncodeCounter(c)))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	// Tree is now root[30] -> L[10,20], R[30,40,50]. A GE probe for 25
	// routes into L (every key there is < 25 < 30) and must cross into R
	// to find 30, rather than reporting NonExistent.
	cur, err := h.IterPrepare(ctx)
	require.NoError(t, err)
	ok, err := cur.IterProbe(ctx, btree.ProbeGE, classes.EncodeCounter(25))
	require.NoError(t, err)
	require.True(t, ok)
	key, _, err := cur.IterFetch(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(30), classes.DecodeCounter(key))

	// GE past every key in the tree must still report NonExistent.
	ok, err = cur.IterProbe(ctx, btree.ProbeGE, classes.EncodeCounter(999))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCursorProbeEQMissingReturnsFalse(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newECTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, classes.EncodeCounter(10), classes.EncodeCounter(100)))
	require.NoError(t, mgr.TxCommit(ctx))

	cur, err := h.IterPrepare(ctx)
	require.NoError(t, err)
	ok, err := cur.IterProbe(ctx, btree.ProbeEQ, classes.EncodeCounter(999))
	require.NoError(t, err)
	require.False(t, ok)
}
