package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"genomarket/core/types"
	"genomarket/storage"
)

type storedSample struct {
	Name   string
	Amount *big.Int
}

func TestKVRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	ok, err := mgr.KVGet([]byte("sample"), new(storedSample))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut([]byte("sample"), &storedSample{Name: "a", Amount: big.NewInt(9)}))
	var out storedSample
	ok, err = mgr.KVGet([]byte("sample"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", out.Name)
	require.Equal(t, int64(9), out.Amount.Int64())

	has, err := mgr.KVHas([]byte("sample"))
	require.NoError(t, err)
	require.True(t, has)
	require.NoError(t, mgr.KVDelete([]byte("sample")))
	has, err = mgr.KVHas([]byte("sample"))
	require.NoError(t, err)
	require.False(t, has)
}

func TestAtomicDiscardsWritesAndHooksOnError(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	fired := false
	boom := errors.New("boom")

	err := mgr.Atomic(func() error {
		require.NoError(t, mgr.KVPut([]byte("k"), uint64(1)))
		mgr.AfterCommit(func() { fired = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, fired)
	require.Equal(t, 0, db.Len())
	require.False(t, mgr.InAtomic())
}

func TestAtomicCommitsAndRunsHooksOnce(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	calls := 0

	err := mgr.Atomic(func() error {
		require.NoError(t, mgr.KVPut([]byte("outer"), uint64(1)))
		mgr.AfterCommit(func() { calls++ })
		innerErr := mgr.Atomic(func() error {
			require.NoError(t, mgr.KVPut([]byte("inner-failed"), uint64(2)))
			mgr.AfterCommit(func() { calls += 100 })
			return errors.New("inner")
		})
		require.Error(t, innerErr)
		return mgr.Atomic(func() error {
			mgr.AfterCommit(func() { calls += 10 })
			return mgr.KVPut([]byte("inner-ok"), uint64(3))
		})
	})
	require.NoError(t, err)
	require.Equal(t, 11, calls)
	require.Equal(t, 2, db.Len())

	var v uint64
	ok, err := mgr.KVGet([]byte("inner-failed"), &v)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAfterCommitOutsideScopeRunsImmediately(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	fired := false
	mgr.AfterCommit(func() { fired = true })
	require.True(t, fired)
}

func TestHashListHelpers(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := []byte("list")
	a, b := types.Hash{1}, types.Hash{2}

	require.NoError(t, mgr.AppendHash(key, a))
	require.NoError(t, mgr.AppendHash(key, b))
	require.NoError(t, mgr.AppendHash(key, a))
	list, err := mgr.HashList(key)
	require.NoError(t, err)
	require.Equal(t, []types.Hash{a, b}, list)

	removed, err := mgr.RemoveHash(key, a)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = mgr.RemoveHash(key, a)
	require.NoError(t, err)
	require.False(t, removed)
	_, err = mgr.RemoveHash(key, b)
	require.NoError(t, err)
	has, err := mgr.KVHas(key)
	require.NoError(t, err)
	require.False(t, has)
}
