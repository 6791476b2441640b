package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreset0IsStorePassthrough(t *testing.T) {
	model := Presets[0].Model
	require.True(t, model.IsStore())
	data := []byte("stored as-is")

	payload, err := Encode(model, data)
	require.NoError(t, err)
	require.Equal(t, data, payload)

	got, err := Decode(model, payload, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEncodeDecodeRoundTripPreset1(t *testing.T) {
	model := Presets[1].Model
	data := []byte("the quick brown fox jumps over the lazy dog, the quick brown fox again")

	payload, err := Encode(model, data)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	got, err := Decode(model, payload, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEncodeDecodeRoundTripPreset4(t *testing.T) {
	model := Presets[4].Model
	data := []byte("aaaaaaaaaabbbbbbbbbbccccccccccaaaaaaaaaabbbbbbbbbb")

	payload, err := Encode(model, data)
	require.NoError(t, err)

	got, err := Decode(model, payload, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEncodeDecodeRoundTripPreset5WithMatch(t *testing.T) {
	model := Presets[5].Model
	data := []byte("repeat repeat repeat repeat repeat repeat repeat repeat")

	payload, err := Encode(model, data)
	require.NoError(t, err)

	got, err := Decode(model, payload, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	model := Presets[2].Model
	hdr, err := model.EncodeHeader()
	require.NoError(t, err)

	got, n, err := DecodeHeader(hdr)
	require.NoError(t, err)
	require.Equal(t, len(hdr), n)
	require.Equal(t, model.HH, got.HH)
	require.Equal(t, model.HM, got.HM)
	require.Equal(t, model.HComp, got.HComp)
	require.Len(t, got.Comps, 1)
}

func TestHeaderEncodeDecodeRoundTripsWhenHCompContainsInteriorZeroBytes(t *testing.T) {
	// Preset 1's hcomp program legitimately contains interior zero
	// bytes (an Or src-register operand, and the terminating HALT
	// opcode itself is 0x00); DecodeHeader must not truncate on them.
	model := Presets[1].Model
	require.Contains(t, model.HComp, byte(0), "fixture assumption: preset 1's hcomp contains an interior zero byte")

	hdr, err := model.EncodeHeader()
	require.NoError(t, err)

	got, n, err := DecodeHeader(hdr)
	require.NoError(t, err)
	require.Equal(t, len(hdr), n)
	require.Equal(t, model.HComp, got.HComp)
}

func TestEmptyDataRoundTrips(t *testing.T) {
	model := Presets[1].Model
	payload, err := Encode(model, nil)
	require.NoError(t, err)
	got, err := Decode(model, payload, 0)
	require.NoError(t, err)
	require.Empty(t, got)
}
