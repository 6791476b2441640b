package journal

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	resticRabin "github.com/restic/chunker"
	"github.com/stretchr/testify/require"
)

func archivePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "archive.zpaq")
}

func TestCoordinatorAddVersionPopulatesFragmentTable(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 2000)
	err = c.AddVersion(1, 1700000000, "first", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(content), ModTime: 1, Attrs: 0644},
	})
	require.NoError(t, err)
	require.Greater(t, c.Table().Len(), 0)
	require.NoError(t, c.Close())
}

func TestCoordinatorReplayRebuildsFragmentTableAfterReopen(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("alpha beta gamma delta epsilon "), 3000)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(content)},
	}))
	wantLen := c.Table().Len()
	require.NoError(t, c.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, wantLen, reopened.Table().Len())
	require.NoError(t, reopened.Close())
}

func TestCoordinatorDedupsIdenticalContentAcrossVersions(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("repeated content for dedup test "), 3000)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(content)},
	}))
	afterFirst := c.Table().Len()

	require.NoError(t, c.AddVersion(2, 1700000100, "v2", []FileInput{
		{Path: "b.txt", Data: bytes.NewReader(content)},
	}))
	afterSecond := c.Table().Len()

	require.Equal(t, afterFirst, afterSecond, "identical content must not grow the fragment table")
	require.NoError(t, c.Close())
}

func TestCoordinatorDedupsIdenticalContentWithinSameVersion(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("same version dedup test content "), 3000)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(content)},
		{Path: "b.txt", Data: bytes.NewReader(content)},
	}))

	live := c.List(0)
	require.Equal(t, live["a.txt"].Fragments, live["b.txt"].Fragments, "identical content in the same version must share fragments")

	seen := make(map[[20]byte]bool)
	for _, sha1 := range live["a.txt"].Fragments {
		require.False(t, seen[sha1], "each fragment must be stored exactly once")
		seen[sha1] = true
	}
	require.Equal(t, len(live["a.txt"].Fragments), c.Table().Len(), "the fragment table must not contain a duplicate entry for shared content")

	var a, b bytes.Buffer
	require.NoError(t, c.Extract("a.txt", 0, &a))
	require.NoError(t, c.Extract("b.txt", 0, &b))
	require.Equal(t, content, a.Bytes())
	require.Equal(t, content, b.Bytes())

	require.NoError(t, c.Close())
}

func TestCoordinatorEncryptedArchiveRoundTripsAcrossReopen(t *testing.T) {
	path := archivePath(t)
	c, err := OpenEncrypted(path, []byte("s3cr3t"))
	require.NoError(t, err)

	content := bytes.Repeat([]byte("encrypted journal content "), 3000)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(content)},
	}))
	wantLen := c.Table().Len()
	require.NoError(t, c.Close())

	reopened, err := OpenEncrypted(path, []byte("s3cr3t"))
	require.NoError(t, err)
	require.Equal(t, wantLen, reopened.Table().Len())
	require.NoError(t, reopened.Close())
}

func TestCoordinatorExtractRoundTripsFileBytes(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("extract me please "), 3000)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(content)},
	}))

	var out bytes.Buffer
	require.NoError(t, c.Extract("a.txt", 0, &out))
	require.Equal(t, content, out.Bytes())
	require.NoError(t, c.Close())
}

func TestCoordinatorListReflectsRollbackAcrossVersions(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	v1 := bytes.Repeat([]byte{0x00}, 20000)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "x", Data: bytes.NewReader(v1), ModTime: 100},
	}))
	require.NoError(t, c.AddVersion(2, 1700000100, "v2", []FileInput{
		{Path: "x", Data: bytes.NewReader(v1), ModTime: 200},
	}))

	liveAt1 := c.List(1)
	require.Equal(t, int64(100), liveAt1["x"].ModTime)

	liveAt2 := c.List(2)
	require.Equal(t, int64(200), liveAt2["x"].ModTime)
	require.Equal(t, liveAt1["x"].Fragments, liveAt2["x"].Fragments, "identical content dedups to the same fragment list")

	require.NoError(t, c.Close())
}

func TestCoordinatorListAppliesTombstones(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "gone.txt", Data: bytes.NewReader([]byte("temporary"))},
	}))
	require.NoError(t, c.RemoveVersion(2, 1700000100, []string{"gone.txt"}))

	live := c.List(2)
	_, exists := live["gone.txt"]
	require.False(t, exists)

	liveAt1 := c.List(1)
	_, existedBefore := liveAt1["gone.txt"]
	require.True(t, existedBefore)

	require.NoError(t, c.Close())
}

func TestCoordinatorRemoveVersionWritesNoFragmentBlocks(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader([]byte("some content"))},
	}))
	before := c.Table().Len()

	require.NoError(t, c.RemoveVersion(2, 1700000100, []string{"a.txt"}))
	require.Equal(t, before, c.Table().Len(), "removing a path must not touch the fragment table")

	_, exists := c.List(0)["a.txt"]
	require.False(t, exists)
	require.NoError(t, c.Close())
}

func TestCoordinatorVersionsReturnsCommitLog(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a", Data: bytes.NewReader([]byte("one"))},
	}))
	require.NoError(t, c.AddVersion(2, 1700000100, "v2", []FileInput{
		{Path: "b", Data: bytes.NewReader([]byte("two"))},
	}))

	versions := c.Versions()
	require.Len(t, versions, 2)
	require.Equal(t, uint64(1), versions[0].Version)
	require.Equal(t, uint64(2), versions[1].Version)
	require.NoError(t, c.Close())
}

func TestCoordinatorVerifyPassesOnIntactArchive(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("verify me "), 3000)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(content)},
	}))
	require.Empty(t, c.Verify())
	require.NoError(t, c.Close())
}

func TestCoordinatorAcceptsRabinChunkerFactory(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)
	c.ChunkerFactory = func(r io.Reader) Chunker {
		return NewRabinChunker(r, resticRabin.Pol(0x3DA3358B4DC173), 512<<10, 8<<20)
	}

	content := bytes.Repeat([]byte("rabin chunked content for the optional mode "), 4000)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader(content)},
	}))

	var out bytes.Buffer
	require.NoError(t, c.Extract("a.txt", 0, &out))
	require.Equal(t, content, out.Bytes())
	require.NoError(t, c.Close())
}

func TestCoordinatorIgnoresTrailingGarbageAfterLastCleanBlock(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader([]byte("hello world"))},
	}))
	require.NoError(t, c.Close())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Greater(t, reopened.Table().Len(), 0)
	require.NoError(t, reopened.Close())
}

func TestCoordinatorAddAfterCrashSurvivesSecondReopen(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader([]byte("hello world"))},
	}))
	require.NoError(t, c.Close())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	cleanSize := fi.Size()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xAA, 0xBB, 0xFF, 0x00, 0xFF})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, reopened.AddVersion(2, 1700000100, "v2", []FileInput{
		{Path: "b.txt", Data: bytes.NewReader([]byte("second version"))},
	}))
	require.NoError(t, reopened.Close())

	fi, err = os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, fi.Size(), cleanSize, "version 2 must actually have been appended after the crash tail was discarded")

	final, err := Open(path)
	require.NoError(t, err)
	require.Len(t, final.Versions(), 2)

	var a, b bytes.Buffer
	require.NoError(t, final.Extract("a.txt", 0, &a))
	require.Equal(t, "hello world", a.String())
	require.NoError(t, final.Extract("b.txt", 0, &b))
	require.Equal(t, "second version", b.String())
	require.NoError(t, final.Close())
}

func TestCoordinatorDiscardsFragmentsFromUncommittedTransaction(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader([]byte("hello world"))},
	}))
	committedLen := c.Table().Len()

	// Write a fragment block directly, bypassing AddVersion, so its `d`
	// and `h` segments land without a following `c` commit marker.
	require.NoError(t, c.writeFragmentBlock(
		FragIndexRecord{SHA1: [20]byte{1, 2, 3}, Length: 5},
		[]byte("crash"),
	))
	require.NoError(t, c.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, committedLen, reopened.Table().Len(), "an uncommitted transaction's fragments must not survive replay")
	_, known := reopened.Table().Lookup([20]byte{1, 2, 3})
	require.False(t, known)
	require.NoError(t, reopened.Close())
}
