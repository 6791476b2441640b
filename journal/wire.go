package journal

import (
	"bytes"
	"encoding/binary"

	"github.com/t7a/zpaq/errs"
)

// Segment filename kinds spec section 4.8 names. A plain single byte
// is enough since the journal never mixes it with a user-facing
// filename (those live only in plain data segments the codec writes,
// not these reserved control segments).
const (
	kindTransaction byte = 'c'
	kindData        byte = 'd'
	kindFragIndex   byte = 'h'
	kindFileIndex   byte = 'i'
)

// TransactionHeader is spec's `c` segment, reinterpreted as a
// trailing commit marker rather than a leading header: it is the last
// segment written in a transaction's block sequence (after the
// transaction's `d`/`h` fragment blocks and its `i` file index), and
// EndOffset records the archive byte offset the transaction's writes
// started at. A reader walking the archive forward only learns a
// transaction is intact once it reaches this segment, which is what
// makes an unterminated transaction at the tail detectable by its
// absence rather than by a separate explicit end marker (see
// DESIGN.md's Open Question decisions for why this module departs
// from "a leading header with a matching transaction-end").
type TransactionHeader struct {
	Version   uint64
	Timestamp int64
	EndOffset int64
}

func (h TransactionHeader) Filename() string { return string(kindTransaction) }

func (h TransactionHeader) Encode() []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Timestamp))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.EndOffset))
	return buf
}

func DecodeTransactionHeader(buf []byte) (TransactionHeader, error) {
	if len(buf) < 24 {
		return TransactionHeader{}, errs.New(errs.Truncated, "transaction header segment too short")
	}
	return TransactionHeader{
		Version:   binary.LittleEndian.Uint64(buf[0:8]),
		Timestamp: int64(binary.LittleEndian.Uint64(buf[8:16])),
		EndOffset: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}

// FragIndexRecord is one entry of an `h` segment: the SHA-1 and byte
// length of a fragment stored in the immediately preceding `d`
// segment.
type FragIndexRecord struct {
	SHA1   [20]byte
	Length uint32
}

// EncodeFragIndex serializes a sequence of fragment records as one
// `h` segment payload: a count, then (SHA-1, length) pairs.
func EncodeFragIndex(records []FragIndexRecord) []byte {
	var buf bytes.Buffer
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(records)))
	buf.Write(countBuf[:])
	for _, r := range records {
		buf.Write(r.SHA1[:])
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], r.Length)
		buf.Write(lenBuf[:])
	}
	return buf.Bytes()
}

func DecodeFragIndex(buf []byte) ([]FragIndexRecord, error) {
	if len(buf) < 4 {
		return nil, errs.New(errs.Truncated, "fragment index segment too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	pos := 4
	records := make([]FragIndexRecord, 0, n)
	for i := uint32(0); i < n; i++ {
		if pos+24 > len(buf) {
			return nil, errs.New(errs.Truncated, "fragment index record truncated")
		}
		var rec FragIndexRecord
		copy(rec.SHA1[:], buf[pos:pos+20])
		rec.Length = binary.LittleEndian.Uint32(buf[pos+20 : pos+24])
		records = append(records, rec)
		pos += 24
	}
	return records, nil
}

// PathMutation is one path's record within a version, carried in an
// `i` segment: either an add/update (fragment list non-empty or
// Tombstone false) or a delete (Tombstone true, no fragments).
type PathMutation struct {
	Path      string
	Size      int64
	ModTime   int64
	Attrs     uint32
	Fragments [][20]byte
	Tombstone bool
}

// EncodeFileIndex serializes a version's path mutations as one `i`
// segment payload.
func EncodeFileIndex(muts []PathMutation) []byte {
	var buf bytes.Buffer
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(muts)))
	buf.Write(countBuf[:])
	for _, m := range muts {
		writeCString(&buf, m.Path)
		writeU64(&buf, uint64(m.Size))
		writeU64(&buf, uint64(m.ModTime))
		writeU32(&buf, m.Attrs)
		tomb := byte(0)
		if m.Tombstone {
			tomb = 1
		}
		buf.WriteByte(tomb)
		writeU32(&buf, uint32(len(m.Fragments)))
		for _, sha1 := range m.Fragments {
			buf.Write(sha1[:])
		}
	}
	return buf.Bytes()
}

func DecodeFileIndex(buf []byte) ([]PathMutation, error) {
	if len(buf) < 4 {
		return nil, errs.New(errs.Truncated, "file index segment too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	pos := 4
	muts := make([]PathMutation, 0, n)
	for i := uint32(0); i < n; i++ {
		path, np, err := readCString(buf[pos:])
		if err != nil {
			return nil, err
		}
		pos += np
		if pos+17 > len(buf) {
			return nil, errs.New(errs.Truncated, "file index record truncated")
		}
		size := int64(binary.LittleEndian.Uint64(buf[pos : pos+8]))
		pos += 8
		mtime := int64(binary.LittleEndian.Uint64(buf[pos : pos+8]))
		pos += 8
		attrs := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		tomb := buf[pos] != 0
		pos++
		if pos+4 > len(buf) {
			return nil, errs.New(errs.Truncated, "file index fragment count truncated")
		}
		nFrags := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		var frags [][20]byte // stays nil for a record with no fragments
		for f := uint32(0); f < nFrags; f++ {
			if pos+20 > len(buf) {
				return nil, errs.New(errs.Truncated, "file index fragment list truncated")
			}
			var sha1 [20]byte
			copy(sha1[:], buf[pos:pos+20])
			frags = append(frags, sha1)
			pos += 20
		}
		muts = append(muts, PathMutation{
			Path: path, Size: size, ModTime: mtime, Attrs: attrs,
			Tombstone: tomb, Fragments: frags,
		})
	}
	return muts, nil
}

func writeCString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readCString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, errs.New(errs.Truncated, "string length truncated")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	if uint32(len(buf)) < 4+n {
		return "", 0, errs.New(errs.Truncated, "string body truncated")
	}
	return string(buf[4 : 4+n]), int(4 + n), nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
