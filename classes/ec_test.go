package classes_test

import (
	"context"
	"testing"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/classes"
	"github.com/sharedcode/pmtree/pmm"
	"github.com/stretchr/testify/require"
)

func TestECOrderedFetchScenario(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()

	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.EC{}, 4)
	require.NoError(t, err)
	for _, pair := range [][2]uint64{{10, 100}, {20, 200}, {30, 300}} {
		require.NoError(t, h.Put(ctx, classes.EncodeCounter(pair[0]), classes.EncodeCounter(pair[1])))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	cur, err := h.IterPrepare(ctx)
	require.NoError(t, err)

	ok, err := cur.IterProbe(ctx, btree.ProbeFirst, nil)
	require.NoError(t, err)
	require.True(t, ok)
	key, res, err := cur.IterFetch(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(10), classes.DecodeCounter(key))
	require.Equal(t, uint64(100), classes.DecodeCounter(res.Value))

	ok, err = cur.IterProbe(ctx, btree.ProbeGE, classes.EncodeCounter(15))
	require.NoError(t, err)
	require.True(t, ok)
	key, _, err = cur.IterFetch(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(20), classes.DecodeCounter(key))

	ok, err = cur.IterProbe(ctx, btree.ProbeLE, classes.EncodeCounter(25))
	require.NoError(t, err)
	require.True(t, ok)
	key, _, err = cur.IterFetch(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(20), classes.DecodeCounter(key))

	// Provisional delete: update(20, empty) tombstones it in place.
	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, classes.EncodeCounter(20), nil))
	require.NoError(t, mgr.TxCommit(ctx))

	ok, err = cur.IterProbe(ctx, btree.ProbeGE, classes.EncodeCounter(15))
	require.NoError(t, err)
	require.True(t, ok)
	key, _, err = cur.IterFetch(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(30), classes.DecodeCounter(key), "GE must skip the tombstoned 20 and land on 30")

	ok, err = cur.IterProbe(ctx, btree.ProbeEQ, classes.EncodeCounter(20))
	require.NoError(t, err)
	require.False(t, ok, "EQ on a tombstone must report not-found")

	// Un-delete: a non-empty update clears the tombstone.
	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, classes.EncodeCounter(20), classes.EncodeCounter(999)))
	require.NoError(t, mgr.TxCommit(ctx))

	res2, err := h.Lookup(ctx, classes.EncodeCounter(20))
	require.NoError(t, err)
	require.Equal(t, uint64(999), classes.DecodeCounter(res2.Value))
}

func TestECFetchOfTombstoneIsZeroLengthNotError(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()

	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.EC{}, 4)
	require.NoError(t, err)
	require.NoError(t, h.Put(ctx, classes.EncodeCounter(1), classes.EncodeCounter(42)))
	require.NoError(t, mgr.TxCommit(ctx))

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, classes.EncodeCounter(1), nil))
	require.NoError(t, mgr.TxCommit(ctx))

	res, err := h.Lookup(ctx, classes.EncodeCounter(1))
	require.NoError(t, err)
	require.Empty(t, res.Value)
}

func TestECRejectsWrongKeyLength(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.EC{}, 4)
	require.NoError(t, err)

	err = h.Put(ctx, []byte{1, 2, 3}, classes.EncodeCounter(1))
	require.Equal(t, pmtree.Invalid, pmtree.CodeOf(err))
	require.NoError(t, mgr.TxAbort(ctx, err))
}
