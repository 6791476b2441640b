package journal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionHeaderEncodeDecodeRoundTrip(t *testing.T) {
	hdr := TransactionHeader{Version: 7, Timestamp: 1700000000, EndOffset: 1 << 20}
	got, err := DecodeTransactionHeader(hdr.Encode())
	require.NoError(t, err)
	require.Equal(t, hdr, got)
}

func TestDecodeTransactionHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeTransactionHeader([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestFragIndexEncodeDecodeRoundTrip(t *testing.T) {
	recs := []FragIndexRecord{
		{SHA1: [20]byte{1, 2, 3}, Length: 4096},
		{SHA1: [20]byte{9, 9, 9}, Length: 8192},
	}
	got, err := DecodeFragIndex(EncodeFragIndex(recs))
	require.NoError(t, err)
	require.Equal(t, recs, got)
}

func TestFragIndexEmptyRoundTrips(t *testing.T) {
	got, err := DecodeFragIndex(EncodeFragIndex(nil))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFileIndexEncodeDecodeRoundTrip(t *testing.T) {
	muts := []PathMutation{
		{
			Path: "a/b.txt", Size: 42, ModTime: 1700000001, Attrs: 0644,
			Fragments: [][20]byte{{1}, {2}},
		},
		{
			Path: "a/deleted.txt", Tombstone: true,
		},
	}
	got, err := DecodeFileIndex(EncodeFileIndex(muts))
	require.NoError(t, err)
	require.Equal(t, muts, got)
}

func TestDecodeFileIndexRejectsTruncatedRecord(t *testing.T) {
	buf := EncodeFileIndex([]PathMutation{{Path: "x", Fragments: [][20]byte{{1}}}})
	_, err := DecodeFileIndex(buf[:len(buf)-5])
	require.Error(t, err)
}
