package nesting_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sharedcode/pmtree"
	"github.com/sharedcode/pmtree/btree"
	"github.com/sharedcode/pmtree/classes"
	"github.com/sharedcode/pmtree/nesting"
	"github.com/sharedcode/pmtree/pmm"
	"github.com/stretchr/testify/require"
)

func newParent(t *testing.T, mgr pmm.Manager) *btree.Handle {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mgr.TxBegin(ctx))
	h, err := btree.CreateInPlace(ctx, mgr, classes.NV{}, 4)
	require.NoError(t, err)
	require.NoError(t, mgr.TxCommit(ctx))
	return h
}

func TestNestedCreateOpenDestroy(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	parent := newParent(t, mgr)

	require.NoError(t, mgr.TxBegin(ctx))
	child, err := nesting.CreateChild(ctx, mgr, parent, []byte("inventory"), classes.NV{}, 4)
	require.NoError(t, err)
	require.NoError(t, child.Put(ctx, []byte("widget"), []byte{1, 2, 3}))
	require.NoError(t, mgr.TxCommit(ctx))

	reopened, err := nesting.OpenChild(ctx, mgr, parent, []byte("inventory"), classes.NV{})
	require.NoError(t, err)
	res, err := reopened.Lookup(ctx, []byte("widget"))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, res.Value)

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, nesting.DestroyChild(ctx, mgr, parent, []byte("inventory"), classes.NV{}))
	require.NoError(t, mgr.TxCommit(ctx))

	_, err = parent.Lookup(ctx, []byte("inventory"))
	require.Equal(t, pmtree.NonExistent, pmtree.CodeOf(err))

	_, err = nesting.OpenChild(ctx, mgr, parent, []byte("inventory"), classes.NV{})
	require.Error(t, err)
}

func TestNestingAbortUndoesParentAndChildTogether(t *testing.T) {
	ctx := context.Background()
	mgr := pmm.NewInMemory()
	parent := newParent(t, mgr)

	require.NoError(t, mgr.TxBegin(ctx))
	require.NoError(t, parent.Put(ctx, []byte("a"), []byte("v1")))
	_, err := nesting.CreateChild(ctx, mgr, parent, []byte("b"), classes.NV{}, 4)
	require.NoError(t, err)
	require.NoError(t, mgr.TxAbort(ctx, errors.New("forced abort")))

	require.NoError(t, mgr.TxBegin(ctx))
	_, err = parent.Lookup(ctx, []byte("a"))
	require.Equal(t, pmtree.NonExistent, pmtree.CodeOf(err))
	_, err = parent.Lookup(ctx, []byte("b"))
	require.Equal(t, pmtree.NonExistent, pmtree.CodeOf(err))
	require.NoError(t, mgr.TxCommit(ctx))
}
