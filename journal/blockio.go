package journal

import (
	"encoding/binary"

	"github.com/t7a/zpaq/codec"
	"github.com/t7a/zpaq/errs"
)

// payloadRecordHeaderLen is the fixed framing size EncodeRecord
// prepends to every fragment's coded bytes: a 1-byte pcomp marker, an
// 8-byte raw length, and an 8-byte coded length.
const payloadRecordHeaderLen = 1 + 8 + 8

// EncodeRecord frames one fragment's coded bytes as a self-delimiting
// record so several fragments can be concatenated into one `d`
// segment payload and later sliced out independently without decoding
// every record ahead of the one wanted: a leading 0/1 marker for
// whether a pcomp program follows (this module never emits one, since
// none of its presets declare a post-processor, but the marker byte
// is still part of the wire contract so a reader never has to guess),
// the original byte length (needed by the arithmetic decoder, which
// cannot discover it from the coded bytes alone), the coded byte
// length (needed to find the next record), then the coded bytes
// themselves.
func EncodeRecord(model codec.Model, raw []byte) ([]byte, error) {
	coded, err := codec.Encode(model, raw)
	if err != nil {
		return nil, err
	}
	out := make([]byte, payloadRecordHeaderLen, payloadRecordHeaderLen+len(coded))
	out[0] = 0 // no pcomp
	binary.LittleEndian.PutUint64(out[1:9], uint64(len(raw)))
	binary.LittleEndian.PutUint64(out[9:17], uint64(len(coded)))
	out = append(out, coded...)
	return out, nil
}

// RecordLen reports the total framed length of one EncodeRecord
// output, given the record's header (which DecodeRecord also needs to
// have already read to know the coded-length field).
func RecordLen(header [payloadRecordHeaderLen]byte) int {
	return payloadRecordHeaderLen + int(binary.LittleEndian.Uint64(header[9:17]))
}

// DecodeRecord reads one record starting at payload[0] and returns the
// decoded bytes plus the number of bytes consumed, so a caller can
// advance to the next record in a concatenated `d` segment.
func DecodeRecord(model codec.Model, payload []byte) ([]byte, int, error) {
	if len(payload) < payloadRecordHeaderLen {
		return nil, 0, errs.New(errs.Truncated, "fragment record shorter than its own framing")
	}
	if payload[0] != 0 {
		return nil, 0, errs.New(errs.UnknownMethod, "pcomp-bearing segments are not supported")
	}
	rawLen := binary.LittleEndian.Uint64(payload[1:9])
	codedLen := binary.LittleEndian.Uint64(payload[9:17])
	total := payloadRecordHeaderLen + int(codedLen)
	if len(payload) < total {
		return nil, 0, errs.New(errs.Truncated, "fragment record coded bytes truncated")
	}
	raw, err := codec.Decode(model, payload[payloadRecordHeaderLen:total], int(rawLen))
	if err != nil {
		return nil, 0, err
	}
	return raw, total, nil
}
