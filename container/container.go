// Package container implements the streaming container framer of
// component C7: block and segment framing, headers, trailers, and the
// resynchronization scan a reader falls back to after a malformed
// trailer, grounded on original_source/src/zpaq.rs's block-header byte
// layout. A block is written as magic, level, zpaql_type, the header
// length (u32 LE), then the header bytes codec.EncodeHeader produced
// (hh/hm/ph/pm/n_components, component descriptors, COMP-END, hsize,
// hcomp bytes), then its segments.
package container

import (
	"bytes"
	"io"

	"github.com/t7a/zpaq/bitio"
	"github.com/t7a/zpaq/errs"
)

// Magic anchors every block; no valid inner byte sequence is permitted
// to collide with it, per the container's resynchronization invariant.
var Magic = [13]byte{0x37, 0x6B, 0x53, 0x74, 0xA0, 0x31, 0x83, 0xD3, 0x8C, 0xB2, 0x28, 0xB0, 0xD3}

const (
	blockEndMarker = 0xFF
	segmentMarker  = 0x01 // follows a segment that another segment follows
	checksumFlag   = 0x01
	noChecksumFlag = 0x00
)

// Header is the on-wire block header following the magic: the declared
// ZPAQL level/type byte and the raw hcomp program bytes (itself
// beginning with the hh/hm/ph/pm/n_components header vector and
// component descriptors, which package codec parses).
type Header struct {
	Level byte
	Type  byte
	HComp []byte
}

// Segment is one decoded segment: optional filename/comment, the
// opaque coded payload, and an optional trailer checksum.
type Segment struct {
	Filename string
	Comment  string
	Payload  []byte
	Checksum [20]byte
	HasSum   bool
	Last     bool // true if this segment carries the block-end marker
}

// Block is one parsed container block: its header plus one or more
// segments.
type Block struct {
	Header   Header
	Segments []Segment
}

// Warning reports recoverable framing trouble surfaced while reading,
// such as bytes skipped while resynchronizing on a bad trailer.
type Warning struct {
	Offset      int64
	SkippedBytes int
	Message     string
}

// Writer serializes blocks onto an underlying byte stream.
type Writer struct {
	w *bitio.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: bitio.NewWriter(w)} }

// WriteBlock writes one block: magic, header, then each segment in
// order, each framed with its own header/payload/trailer.
func (bw *Writer) WriteBlock(b Block) error {
	if _, err := bw.w.WriteAll(Magic[:]); err != nil {
		return err
	}
	if err := bw.w.WriteByte(b.Header.Level); err != nil {
		return err
	}
	if err := bw.w.WriteByte(b.Header.Type); err != nil {
		return err
	}
	if err := writeU32(bw.w, uint32(len(b.Header.HComp))); err != nil {
		return err
	}
	if _, err := bw.w.WriteAll(b.Header.HComp); err != nil {
		return err
	}
	for i, seg := range b.Segments {
		seg.Last = i == len(b.Segments)-1
		if err := bw.writeSegment(seg); err != nil {
			return err
		}
	}
	return nil
}

func (bw *Writer) writeSegment(seg Segment) error {
	if err := writeCString(bw.w, seg.Filename); err != nil {
		return err
	}
	if err := writeCString(bw.w, seg.Comment); err != nil {
		return err
	}
	if err := bw.w.WriteByte(0); err != nil { // reserved
		return err
	}
	// Payloads are opaque coded bytes (arithmetic-coded fragment
	// records, binary index records) that routinely contain every byte
	// value including 0xFF, so the length is recorded up front rather
	// than delimited by a sentinel the payload itself could collide
	// with, the same way HComp's length precedes its bytes above.
	if err := writeU32(bw.w, uint32(len(seg.Payload))); err != nil {
		return err
	}
	if _, err := bw.w.WriteAll(seg.Payload); err != nil {
		return err
	}
	if seg.HasSum {
		if err := bw.w.WriteByte(checksumFlag); err != nil {
			return err
		}
		if _, err := bw.w.WriteAll(seg.Checksum[:]); err != nil {
			return err
		}
	} else {
		if err := bw.w.WriteByte(noChecksumFlag); err != nil {
			return err
		}
	}
	if seg.Last {
		return bw.w.WriteByte(blockEndMarker)
	}
	return bw.w.WriteByte(segmentMarker)
}

func writeCString(w *bitio.Writer, s string) error {
	if s == "" {
		return w.WriteByte(0)
	}
	if _, err := w.WriteAll([]byte(s)); err != nil {
		return err
	}
	return w.WriteByte(0)
}

func writeU32(w *bitio.Writer, v uint32) error {
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	_, err := w.WriteAll(buf)
	return err
}

// Reader parses blocks off an underlying byte stream, resynchronizing
// past malformed trailers by scanning for the next occurrence of
// Magic and surfacing a Warning for the caller to log.
type Reader struct {
	r        *bitio.Reader
	Warnings []Warning
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bitio.NewReader(r)}
}

// ReadBlock reads the next block, or io.EOF if the stream is
// exhausted cleanly at a block boundary.
func (br *Reader) ReadBlock() (*Block, error) {
	if err := br.expectMagic(); err != nil {
		return nil, err
	}
	return br.readBlockBody()
}

// ReadBlockAfterResync reads the block immediately following a
// successful Resync call, whose magic bytes Resync already consumed
// while scanning for them.
func (br *Reader) ReadBlockAfterResync() (*Block, error) {
	return br.readBlockBody()
}

func (br *Reader) readBlockBody() (*Block, error) {
	level, err := br.r.ReadByte()
	if err != nil {
		return nil, err
	}
	typ, err := br.r.ReadByte()
	if err != nil {
		return nil, err
	}
	n, err := br.readU32()
	if err != nil {
		return nil, err
	}
	hcomp := make([]byte, n)
	if _, err := br.r.ReadExact(hcomp); err != nil {
		return nil, err
	}

	block := &Block{Header: Header{Level: level, Type: typ, HComp: hcomp}}
	for {
		seg, err := br.readSegment()
		if err != nil {
			return nil, err
		}
		block.Segments = append(block.Segments, *seg)
		if seg.Last {
			break
		}
	}
	return block, nil
}

func (br *Reader) readSegment() (*Segment, error) {
	filename, err := br.readCString()
	if err != nil {
		return nil, err
	}
	comment, err := br.readCString()
	if err != nil {
		return nil, err
	}
	if _, err := br.r.ReadByte(); err != nil { // reserved
		return nil, err
	}

	payload, err := br.readPayload()
	if err != nil {
		return nil, err
	}

	seg := &Segment{Filename: filename, Comment: comment, Payload: payload}
	flag, err := br.r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch flag {
	case checksumFlag:
		var sum [20]byte
		if _, err := br.r.ReadExact(sum[:]); err != nil {
			return nil, err
		}
		seg.Checksum = sum
		seg.HasSum = true
	case noChecksumFlag:
	default:
		return nil, errs.New(errs.BadHeader, "unrecognized segment checksum flag %d", flag)
	}

	// Every segment ends with one marker byte: blockEndMarker after the
	// last segment, segmentMarker when another segment follows. Read it
	// to learn which.
	last, err := br.peekBlockEnd()
	if err != nil {
		return nil, err
	}
	seg.Last = last
	return seg, nil
}

// readPayload reads the length-prefixed segment payload. Opaque coded
// bytes routinely contain every value including 0xFF, so the payload
// is never delimited by a sentinel byte; its length was written ahead
// of it by writeSegment.
func (br *Reader) readPayload() ([]byte, error) {
	n, err := br.readU32()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := br.r.ReadExact(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (br *Reader) peekBlockEnd() (bool, error) {
	b, err := br.r.ReadByte()
	if err != nil {
		return false, err
	}
	return b == blockEndMarker, nil
}

func (br *Reader) readCString() (string, error) {
	var buf bytes.Buffer
	for {
		b, err := br.r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(b)
	}
}

func (br *Reader) readU32() (uint32, error) {
	var buf [4]byte
	if _, err := br.r.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// expectMagic reads 13 bytes and requires them to match Magic exactly;
// no resynchronization happens here, since a caller expecting a block
// boundary that isn't one is a hard BadMagic failure. Resync() is the
// explicit recovery path for a stream whose trailer was corrupted.
func (br *Reader) expectMagic() error {
	var buf [13]byte
	if _, err := br.r.ReadExact(buf[:]); err != nil {
		return err
	}
	if buf != Magic {
		return errs.New(errs.BadMagic, "block magic mismatch")
	}
	return nil
}

// Resync scans forward byte by byte from the current position looking
// for the next occurrence of Magic, appending a Warning recording how
// many bytes were skipped. Used after a trailer fails to parse, so a
// single corrupted block doesn't make the rest of the archive
// unreadable.
func (br *Reader) Resync() error {
	window := make([]byte, 0, len(Magic))
	skipped := 0
	for {
		b, err := br.r.ReadByte()
		if err != nil {
			return err
		}
		window = append(window, b)
		if len(window) > len(Magic) {
			window = window[1:]
		}
		if len(window) == len(Magic) && bytes.Equal(window, Magic[:]) {
			br.Warnings = append(br.Warnings, Warning{
				Offset:       br.r.Tell() - int64(len(Magic)),
				SkippedBytes: skipped - (len(Magic) - 1), // exclude the magic's own leading bytes
				Message:      "resynchronized on block magic after malformed trailer",
			})
			return nil
		}
		skipped++
	}
}
