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

func TestNVSingleRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.NV{}, 4)
	require.NoError(t, err)
	require.NoError(t, h.Put(ctx, []byte("answer"), []byte{0x2A}))
	require.NoError(t, mgr.TxCommit(ctx))

	res, err := h.Lookup(ctx, []byte("answer"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x2A}, res.Value)

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Delete(ctx, []byte("answer")))
	require.NoError(t, mgr.TxCommit(ctx))

	_, err = h.Lookup(ctx, []byte("answer"))
	require.Equal(t, pmtree.NonExistent, pmtree.CodeOf(err))
}

func TestNVValueGrowReallocates(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.NV{}, 4)
	require.NoError(t, err)
	require.NoError(t, h.Put(ctx, []byte("k"), []byte("hi")))
	require.NoError(t, h.Put(ctx, []byte("k"), []byte("hello world!")))
	require.NoError(t, mgr.TxCommit(ctx))

	res, err := h.Lookup(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello world!"), res.Value)
}

func TestNVUpdateShrinkReusesAllocationWithoutPaddingLeak(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.NV{}, 4)
	require.NoError(t, err)
	require.NoError(t, h.Put(ctx, []byte("k"), []byte("hello world!")))
	require.NoError(t, h.Put(ctx, []byte("k"), []byte("hi")))
	require.NoError(t, mgr.TxCommit(ctx))

	res, err := h.Lookup(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), res.Value, "shrinking update must not leak trailing padding into the fetched value")
}

func TestNVRejectsEmptyNameAndEmptyValue(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.NV{}, 4)
	require.NoError(t, err)

	err = h.Put(ctx, nil, []byte("v"))
	require.Equal(t, pmtree.Invalid, pmtree.CodeOf(err))

	err = h.Put(ctx, []byte("name"), nil)
	require.Equal(t, pmtree.Invalid, pmtree.CodeOf(err))
	require.NoError(t, mgr.TxAbort(ctx, err))
}

func TestNVHashCollisionsDisambiguatedByName(t *testing.T) {
	// Two different names that happen to hash to the same 32-bit HKey must
	// both be retrievable by their own name and not shadow one another.
	// We can't force a real xxhash collision portably, so this test runs
	// the collision-run scan for runs of length 1 only: with 200 names a
	// 32-bit collision has a chance of about 5 in a million. It asserts that
	// every name round-trips to its own value.
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.NV{}, 8)
	require.NoError(t, err)
	names := make([]string, 200)
	for i := range names {
		names[i] = "name-" + string(rune('a'+i%26)) + string(rune('0'+i%10)) + string(rune(i))
		require.NoError(t, h.Put(ctx, []byte(names[i]), []byte{byte(i)}))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	for i, name := range names {
		res, err := h.Lookup(ctx, []byte(name))
		require.NoError(t, err, name)
		require.Equal(t, []byte{byte(i)}, res.Value, name)
	}
}
