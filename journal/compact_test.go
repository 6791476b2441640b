package journal

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactDropsDeadFragmentsAndPreservesLiveBytes(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "src.zpaq")
	dstPath := filepath.Join(t.TempDir(), "dst.zpaq")

	src, err := Open(srcPath)
	require.NoError(t, err)

	oldContent := bytes.Repeat([]byte("superseded content that compact should drop "), 2000)
	newContent := bytes.Repeat([]byte("surviving content that compact should keep "), 2000)

	require.NoError(t, src.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(oldContent), ModTime: 1},
		{Path: "b.txt", Data: bytes.NewReader(newContent), ModTime: 1},
	}))
	require.NoError(t, src.AddVersion(2, 1700000100, "v2", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(newContent), ModTime: 2},
	}))
	fragsBeforeCompact := src.Table().Len()
	require.NoError(t, src.Close())

	require.NoError(t, Compact(srcPath, dstPath))

	dst, err := Open(dstPath)
	require.NoError(t, err)

	require.Less(t, dst.Table().Len(), fragsBeforeCompact, "compact must drop the superseded fragment")

	var a, b bytes.Buffer
	require.NoError(t, dst.Extract("a.txt", 0, &a))
	require.NoError(t, dst.Extract("b.txt", 0, &b))
	require.Equal(t, newContent, a.Bytes())
	require.Equal(t, newContent, b.Bytes())

	require.Empty(t, dst.Verify())
	require.NoError(t, dst.Close())
}

func TestCompactOmitsTombstonedPaths(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "src.zpaq")
	dstPath := filepath.Join(t.TempDir(), "dst.zpaq")

	src, err := Open(srcPath)
	require.NoError(t, err)
	require.NoError(t, src.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "keep.txt", Data: bytes.NewReader([]byte("keep me"))},
		{Path: "gone.txt", Data: bytes.NewReader([]byte("remove me"))},
	}))
	require.NoError(t, src.RemoveVersion(2, 1700000100, []string{"gone.txt"}))
	require.NoError(t, src.Close())

	require.NoError(t, Compact(srcPath, dstPath))

	dst, err := Open(dstPath)
	require.NoError(t, err)
	live := dst.List(0)
	_, goneExists := live["gone.txt"]
	require.False(t, goneExists)
	_, keepExists := live["keep.txt"]
	require.True(t, keepExists)
	require.NoError(t, dst.Close())
}
