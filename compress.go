// Package zpaq is the one-shot stream surface external collaborators
// consume: Compress and Decompress, one block in, one block out. The
// path-oriented archive operations (list, add, remove, extract,
// versions, verify) are methods of journal.Coordinator; this package
// has no archive type of its own. Like the teacher's pitbase.go facade
// over Db, it has no logic of its own beyond wiring the layers below
// it together.
package zpaq

import (
	"io"
	"io/ioutil"

	"github.com/t7a/zpaq/bitio"
	"github.com/t7a/zpaq/codec"
	"github.com/t7a/zpaq/container"
	"github.com/t7a/zpaq/crypto"
	"github.com/t7a/zpaq/errs"
	"github.com/t7a/zpaq/journal"
)

// streamSegmentName is the lone segment name a single compress/
// decompress block carries; not a path, since this surface has no
// journaling concept of files.
const streamSegmentName = "stream"

// Compress codes all of r's bytes against the given method preset and
// writes one self-contained block to w, optionally wrapped in the
// crypto envelope when password is non-empty. This is the "headless"
// half of spec section 6's library surface: no journaling, no fragment
// table, just one block in, one block out.
func Compress(r io.Reader, w io.Writer, method byte, password []byte) (err error) {
	if int(method) >= len(codec.Presets) {
		return errs.New(errs.UnknownMethod, "method %d", method)
	}
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return errs.Wrap(errs.IO, "read compress input", err)
	}

	dest := w
	if len(password) > 0 {
		keys, _, err := crypto.WritePreamble(w, password, crypto.Default)
		if err != nil {
			return err
		}
		stream, err := crypto.NewStream(keys)
		if err != nil {
			return err
		}
		dest = crypto.NewWriter(w, stream)
	}

	preset := codec.Presets[method]
	hdrBytes, err := preset.Model.EncodeHeader()
	if err != nil {
		return err
	}
	record, err := journal.EncodeRecord(preset.Model, data)
	if err != nil {
		return err
	}
	sum := bitio.Sum20(data)

	block := container.Block{
		Header: container.Header{Level: 2, Type: preset.Method, HComp: hdrBytes},
		Segments: []container.Segment{
			{Filename: streamSegmentName, Payload: record, HasSum: true, Checksum: sum},
		},
	}
	return container.NewWriter(dest).WriteBlock(block)
}

// Decompress reads one block written by Compress from r and writes
// its decoded bytes to w, validating the per-segment checksum before
// returning success.
func Decompress(r io.Reader, w io.Writer, password []byte) (err error) {
	src := r
	if len(password) > 0 {
		keys, _, err := crypto.ReadPreamble(r, password, crypto.Default)
		if err != nil {
			return err
		}
		stream, err := crypto.NewStream(keys)
		if err != nil {
			return err
		}
		src = crypto.NewReader(r, stream)
	}

	block, err := container.NewReader(src).ReadBlock()
	if err != nil {
		if len(password) > 0 && errs.Is(err, errs.BadMagic) {
			return errs.Wrap(errs.BadKey, "first block magic mismatch after decryption", err)
		}
		return err
	}
	if len(block.Segments) != 1 {
		return errs.New(errs.BadHeader, "expected exactly one stream segment, got %d", len(block.Segments))
	}
	seg := block.Segments[0]

	model, _, err := codec.DecodeHeader(block.Header.HComp)
	if err != nil {
		return err
	}
	decoded, _, err := journal.DecodeRecord(model, seg.Payload)
	if err != nil {
		return err
	}
	if seg.HasSum && bitio.Sum20(decoded) != seg.Checksum {
		return errs.New(errs.ChecksumMismatch, "decompressed stream checksum mismatch")
	}
	if _, err := w.Write(decoded); err != nil {
		return errs.Wrap(errs.IO, "write decompress output", err)
	}
	return nil
}
