package journal

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadOptionsRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zpaq")
	require.NoError(t, saveOptions(path, Options{DataMethod: 3}))

	got, err := loadOptions(path)
	require.NoError(t, err)
	require.EqualValues(t, 3, got.DataMethod)
}

func TestLoadOptionsErrorsWhenSidecarMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zpaq")
	_, err := loadOptions(path)
	require.Error(t, err)
}

func TestCoordinatorPersistsDataMethodAcrossReopen(t *testing.T) {
	path := archivePath(t)
	c, err := Open(path)
	require.NoError(t, err)
	c.DataMethod = 2

	require.NoError(t, c.AddVersion(1, 1700000000, "v1", []FileInput{
		{Path: "a.txt", Data: bytes.NewReader([]byte("small file"))},
	}))
	require.NoError(t, c.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.EqualValues(t, 2, reopened.DataMethod)
	require.NoError(t, reopened.Close())
}
