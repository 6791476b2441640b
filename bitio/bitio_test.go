package bitio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/t7a/zpaq/errs"
)

func TestReadExactShortReadIsTruncated(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	buf := make([]byte, 4)
	_, err := r.ReadExact(buf)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Truncated))
}

func TestReadExactCleanEOFIsBareIOEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	buf := make([]byte, 4)
	_, err := r.ReadExact(buf)
	require.Equal(t, io.EOF, err)
}

func TestWriterTellTracksBytes(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	_, err := w.WriteAll([]byte("hello"))
	require.NoError(t, err)
	require.EqualValues(t, 5, w.Tell())
	require.NoError(t, w.WriteByte('!'))
	require.EqualValues(t, 6, w.Tell())
	require.Equal(t, "hello!", out.String())
}

func TestSha1MatchesSum20(t *testing.T) {
	data := []byte("hello")
	s := NewSha1()
	_, err := s.Write(data)
	require.NoError(t, err)
	require.Equal(t, Sum20(data), s.Sum())
}

func TestReaderTell(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("abcdef")))
	buf := make([]byte, 3)
	_, err := r.ReadExact(buf)
	require.NoError(t, err)
	require.EqualValues(t, 3, r.Tell())
}
