package btree_test

import (
	"context"
	"testing"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/classes"
	"github.com/sharedcode/pmtree/pmm"
	"github.com/stretchr/testify/require"
)

func newNVTree(t *testing.T, mgr pmm.Manager, order uint16) *btree.Handle {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.NV{}, order)
	require.NoError(t, err)
	require.NoError(t, mgr.TxCommit(ctx))
	return h
}

func TestPutLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, []byte("answer"), []byte{0x2A}))
	require.NoError(t, mgr.TxCommit(ctx))

	res, err := h.Lookup(ctx, []byte("answer"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x2A}, res.Value)
}

func TestPutIsUpsertLastWriterWins(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, []byte("k"), []byte("hi")))
	require.NoError(t, mgr.TxCommit(ctx))

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, []byte("k"), []byte("hello world!")))
	require.NoError(t, mgr.TxCommit(ctx))

	res, err := h.Lookup(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello world!"), res.Value)
}

func TestDeleteThenLookupIsNonExistent(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, []byte("answer"), []byte{0x2A}))
	require.NoError(t, mgr.TxCommit(ctx))

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Delete(ctx, []byte("answer")))
	require.NoError(t, mgr.TxCommit(ctx))

	_, err := h.Lookup(ctx, []byte("answer"))
	require.Equal(t, pmtree.NonExistent, pmtree.CodeOf(err))
}

func TestDeleteMissingKeyIsNonExistent(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	err := h.Delete(ctx, []byte("nope"))
	require.Equal(t, pmtree.NonExistent, pmtree.CodeOf(err))
	require.NoError(t, mgr.TxAbort(ctx, err))
}

func TestSplitsAndMergesAcrossManyKeys(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	names := []string{"alfa", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliett", "kilo", "lima"}

	require.NoError(t, mgr.TxBegin(ctx))
	for i, name := range names {
		require.NoError(t, h.Put(ctx, []byte(name), []byte{byte(i)}))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	for i, name := range names {
		res, err := h.Lookup(ctx, []byte(name))
		require.NoError(t, err, name)
		require.Equal(t, []byte{byte(i)}, res.Value)
	}

	require.NoError(t, mgr.TxBegin(ctx))
	for _, name := range names[:8] {
		require.NoError(t, h.Delete(ctx, []byte(name)))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	for _, name := range names[:8] {
		_, err := h.Lookup(ctx, []byte(name))
		require.Equal(t, pmtree.NonExistent, pmtree.CodeOf(err), name)
	}
	for i, name := range names[8:] {
		res, err := h.Lookup(ctx, []byte(name))
		require.NoError(t, err, name)
		require.Equal(t, []byte{byte(i + 8)}, res.Value)
	}
}

func TestLookupIntoTruncatesPerFetchBufferProtocol(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Put(ctx, []byte("k"), []byte("hello world!")))
	require.NoError(t, mgr.TxCommit(ctx))

	dst := make([]byte, 5)
	res, err := h.LookupInto(ctx, []byte("k"), dst)
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Equal(t, []byte("hello"), res.Value)

	dst = make([]byte, 64)
	res, err = h.LookupInto(ctx, []byte("k"), dst)
	require.NoError(t, err)
	require.False(t, res.Truncated)
	require.Equal(t, []byte("hello world!"), res.Value)
}

func TestOpenInPlaceRejectsWrongClass(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	_, err := btree.OpenInPlace(ctx, mgr, classes.UV{}, h.RootID())
	require.Equal(t, pmtree.Invalid, pmtree.CodeOf(err))
}

func TestDestroyFreesEveryAllocation(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	require.NoError(t, mgr.TxBegin(ctx))
	for i := 0; i < 20; i++ {
		require.NoError(t, h.Put(ctx, []byte{byte('a' + i)}, []byte{byte(i)}))
	}
	require.NoError(t, mgr.TxCommit(ctx))

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, h.Destroy(ctx))
	require.NoError(t, mgr.TxCommit(ctx))

	_, err := mgr.IDToPtr(ctx, h.RootID())
	require.Error(t, err, "root descriptor itself must be freed by Destroy")
}

func TestMutationOutsideTransactionIsStageViolation(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	h := newNVTree(t, mgr, 4)

	err := h.Put(ctx, []byte("k"), []byte("v"))
	require.Equal(t, pmtree.StageViolation, pmtree.CodeOf(err))
}
