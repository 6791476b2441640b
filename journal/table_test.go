package journal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFragmentTableAddAndLookup(t *testing.T) {
	tbl := NewFragmentTable()
	f := Fragment{SHA1: [20]byte{1}, BlockID: 3, Offset: 0, Length: 100}
	tbl.Add(f)

	got, ok := tbl.Lookup(f.SHA1)
	require.True(t, ok)
	require.Equal(t, f, got)
	require.Equal(t, 1, tbl.Len())
}

func TestFragmentTableAddIsIdempotent(t *testing.T) {
	tbl := NewFragmentTable()
	sha1 := [20]byte{7}
	tbl.Add(Fragment{SHA1: sha1, BlockID: 1, Length: 10})
	tbl.Add(Fragment{SHA1: sha1, BlockID: 2, Length: 999})

	got, ok := tbl.Lookup(sha1)
	require.True(t, ok)
	require.Equal(t, uint64(1), got.BlockID, "first writer of a content hash wins")
	require.Equal(t, 1, tbl.Len())
}

func TestFragmentTableLookupMiss(t *testing.T) {
	tbl := NewFragmentTable()
	_, ok := tbl.Lookup([20]byte{99})
	require.False(t, ok)
}

func TestFragmentTableOfReturnsSnapshotAsOfVersionBoundary(t *testing.T) {
	tbl := NewFragmentTable()
	tbl.Add(Fragment{SHA1: [20]byte{1}})
	tbl.Add(Fragment{SHA1: [20]byte{2}})
	tbl.MarkVersionBoundary(1)
	tbl.Add(Fragment{SHA1: [20]byte{3}})
	tbl.MarkVersionBoundary(2)

	snap1 := tbl.TableOf(1)
	require.Equal(t, 2, snap1.Len())
	_, ok := snap1.Lookup([20]byte{3})
	require.False(t, ok)

	snap2 := tbl.TableOf(2)
	require.Equal(t, 3, snap2.Len())
}

func TestFragmentTableOfUnmarkedVersionFallsBackToCurrent(t *testing.T) {
	tbl := NewFragmentTable()
	tbl.Add(Fragment{SHA1: [20]byte{1}})
	snap := tbl.TableOf(500)
	require.Equal(t, 1, snap.Len())
}

func TestFragmentTableAllPreservesInsertionOrder(t *testing.T) {
	tbl := NewFragmentTable()
	tbl.Add(Fragment{SHA1: [20]byte{1}, Length: 1})
	tbl.Add(Fragment{SHA1: [20]byte{2}, Length: 2})
	all := tbl.All()
	require.Len(t, all, 2)
	require.Equal(t, [20]byte{1}, all[0].SHA1)
	require.Equal(t, [20]byte{2}, all[1].SHA1)
}
