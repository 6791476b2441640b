package zpaq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/t7a/zpaq/errs"
)

func TestCompressDecompressRoundTripsStoreMethod(t *testing.T) {
	input := bytes.Repeat([]byte("store method round trip "), 500)

	var coded bytes.Buffer
	require.NoError(t, Compress(bytes.NewReader(input), &coded, 0, nil))

	var out bytes.Buffer
	require.NoError(t, Decompress(&coded, &out, nil))
	require.Equal(t, input, out.Bytes())
}

func TestCompressDecompressRoundTripsPredictorMethod(t *testing.T) {
	input := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 2000)

	var coded bytes.Buffer
	require.NoError(t, Compress(bytes.NewReader(input), &coded, 1, nil))
	require.Less(t, coded.Len(), len(input), "a real predictor preset should shrink repetitive input")

	var out bytes.Buffer
	require.NoError(t, Decompress(&coded, &out, nil))
	require.Equal(t, input, out.Bytes())
}

func TestCompressDecompressRoundTripsWithPassword(t *testing.T) {
	input := bytes.Repeat([]byte("encrypted stream payload "), 1000)

	var coded bytes.Buffer
	require.NoError(t, Compress(bytes.NewReader(input), &coded, 1, []byte("hunter2")))

	var out bytes.Buffer
	require.NoError(t, Decompress(&coded, &out, []byte("hunter2")))
	require.Equal(t, input, out.Bytes())
}

func TestDecompressRejectsWrongPassword(t *testing.T) {
	input := []byte("some sensitive payload")

	var coded bytes.Buffer
	require.NoError(t, Compress(bytes.NewReader(input), &coded, 0, []byte("correct horse")))

	var out bytes.Buffer
	err := Decompress(bytes.NewReader(coded.Bytes()), &out, []byte("wrong password"))
	require.Error(t, err)
}

func TestCompressRejectsUnknownMethod(t *testing.T) {
	var coded bytes.Buffer
	err := Compress(bytes.NewReader([]byte("x")), &coded, 250, nil)
	require.Error(t, err)
	var zerr *errs.Error
	require.ErrorAs(t, err, &zerr)
	require.Equal(t, errs.UnknownMethod, zerr.Kind)
}
