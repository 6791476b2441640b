package journal

import (
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"golang.org/x/sync/errgroup"

	"github.com/t7a/zpaq/bitio"
	"github.com/t7a/zpaq/codec"
	"github.com/t7a/zpaq/container"
	"github.com/t7a/zpaq/crypto"
	"github.com/t7a/zpaq/errs"
)

// archiveFile is the minimal file-like surface the coordinator needs:
// satisfied by a plain *os.File, or by *crypto.File when the archive
// is password-protected.
type archiveFile interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	Truncate(size int64) error
}

// Coordinator replaces the teacher's single-writer Db: it owns the
// archive file descriptor (spec section 5's "a single coordinator
// thread owns the archive file descriptor and is the sole writer"),
// chunks and hashes AddVersion's input files on worker goroutines, and
// compresses and appends blocks to the archive tail one at a time
// under its mutex.
type Coordinator struct {
	path   string
	f      archiveFile
	writer *container.Writer

	mu      sync.Mutex // serializes archive writes; workers only chunk and hash concurrently, the coordinator alone compresses and appends
	table   *FragmentTable
	nextSeq uint64

	// blockOffsets maps a fragment block's sequence number (Fragment's
	// BlockID) to the byte offset its magic starts at, so Extract can
	// seek directly back to a fragment's containing block instead of
	// re-scanning the archive from the start.
	blockOffsets map[uint64]int64

	// versions is the flat, in-order log of committed transactions,
	// replacing the teacher's recursive Tree-of-trees with the logical
	// view spec section 3 describes: "the left-fold of all version
	// records from 1..v applying adds/updates/deletes in order."
	versions []VersionRecord

	// DataMethod selects the codec preset new fragment blocks are
	// compressed with; control segments (c/h/i) always use the store
	// preset since they are metadata, not user content.
	DataMethod byte

	// ChunkerFactory builds the content-defined chunker used to split
	// each AddVersion input; defaults to the order-1 splitter. Callers
	// that want Rabin-fingerprint cuts instead set it to wrap
	// NewRabinChunker, per spec section 4.8's optional "generic"
	// chunking mode.
	ChunkerFactory func(io.Reader) Chunker
}

// FileInput is one path submitted to AddVersion.
type FileInput struct {
	Path    string
	Data    io.Reader
	ModTime int64
	Attrs   uint32
}

// VersionRecord is one committed transaction's path mutations, the
// unit Versions and List fold over to build the logical archive view.
type VersionRecord struct {
	Version   uint64
	Timestamp int64
	Mutations []PathMutation
}

// Open opens (creating if necessary) the archive at path and replays
// its existing contents to rebuild the fragment table, the same way
// teacher's db.Open loads config.json before any further writes are
// accepted.
func Open(path string) (c *Coordinator, err error) {
	return open(path, func() (archiveFile, error) {
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	})
}

// OpenEncrypted opens an archive protected by the spec section 4.2
// crypto envelope: a fresh archive gets a new salt and preamble on
// first write, an existing one has its preamble magic checked and its
// keys derived from the stored salt. The preamble carries nothing that
// checks the password: a wrong password shows up when replay finds the
// first block's magic garbled, and the open then fails with BadKey and
// leaves the file as it was.
func OpenEncrypted(path string, password []byte) (c *Coordinator, err error) {
	return open(path, func() (archiveFile, error) {
		return crypto.OpenFile(path, password, crypto.Default)
	})
}

func open(path string, openFile func() (archiveFile, error)) (c *Coordinator, err error) {
	defer Return(&err)

	f, err := openFile()
	Ck(err)

	co := &Coordinator{
		path:           path,
		f:              f,
		table:          NewFragmentTable(),
		blockOffsets:   make(map[uint64]int64),
		DataMethod:     1,
		ChunkerFactory: NewChunker,
	}
	err = co.replay()
	Ck(err)
	co.writer = container.NewWriter(f)

	if opts, err := loadOptions(path); err == nil {
		co.DataMethod = opts.DataMethod
	}
	return co, nil
}

// Close releases the archive file descriptor.
func (c *Coordinator) Close() error { return c.f.Close() }

// Table returns the coordinator's live fragment table, primarily for
// tests and Compact.
func (c *Coordinator) Table() *FragmentTable { return c.table }

// replay scans every committed transaction in the archive to rebuild
// the fragment table and the next sequence number, then truncates away
// any trailing bytes left by a transaction that never reached its
// commit marker, per spec section 4.8's crash-safe append contract
// ("archive remains parseable and exposes all committed prior
// versions" after a crash during add). A transaction's fragments and
// mutations are held as pending state and only folded into the table
// and version log once its `c` (TransactionHeader) segment is seen, so
// an uncommitted transaction never pollutes the dedup table even
// though its blocks were physically written.
func (c *Coordinator) replay() (err error) {
	defer Return(&err)

	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := container.NewReader(c.f)

	var pendingMuts []PathMutation
	var pendingFrags []Fragment
	pendingSeq := c.nextSeq
	var lastCommittedOffset int64

	for {
		offset, err := c.f.Seek(0, io.SeekCurrent)
		Ck(err)

		block, err := r.ReadBlock()
		if err == io.EOF {
			break
		}
		if err != nil {
			if offset == 0 && errs.Is(err, errs.BadMagic) {
				// Not even the first block is readable, so there is no
				// committed prefix to keep: fail instead of truncating.
				if _, encrypted := c.f.(*crypto.File); encrypted {
					return errs.Wrap(errs.BadKey, "first block magic mismatch after decryption", err)
				}
				return err
			}
			log.Warnf("journal replay: stopping at unreadable block: %v", err)
			break
		}
		pendingSeq++
		c.blockOffsets[pendingSeq] = offset
		// A fragment block carries its `d` segment before its `h`
		// segment (writeFragmentBlock's order); the frag-index segment
		// is what actually resolves the fragment's identity and
		// length, but it only becomes visible for dedup once its
		// transaction commits, below.
		for _, seg := range block.Segments {
			switch seg.Filename {
			case string(kindFragIndex):
				recs, err := DecodeFragIndex(seg.Payload)
				Ck(err)
				for i, rec := range recs {
					pendingFrags = append(pendingFrags, Fragment{SHA1: rec.SHA1, BlockID: pendingSeq, Offset: uint32(i), Length: rec.Length})
				}
			case string(kindFileIndex):
				muts, err := DecodeFileIndex(seg.Payload)
				Ck(err)
				pendingMuts = muts
			case string(kindTransaction):
				hdr, err := DecodeTransactionHeader(seg.Payload)
				Ck(err)
				for _, frag := range pendingFrags {
					c.table.Add(frag)
				}
				pendingFrags = nil
				c.table.MarkVersionBoundary(hdr.Version)
				c.versions = append(c.versions, VersionRecord{
					Version: hdr.Version, Timestamp: hdr.Timestamp, Mutations: pendingMuts,
				})
				pendingMuts = nil
				c.nextSeq = pendingSeq

				lastCommittedOffset, err = c.f.Seek(0, io.SeekCurrent)
				Ck(err)
			}
		}
	}

	tailOffset, err := c.f.Seek(0, io.SeekEnd)
	Ck(err)
	if tailOffset > lastCommittedOffset {
		log.Warnf("journal replay: discarding %d uncommitted trailing byte(s) after offset %d", tailOffset-lastCommittedOffset, lastCommittedOffset)
		Ck(c.f.Truncate(lastCommittedOffset))
		for seq := range c.blockOffsets {
			if seq > c.nextSeq {
				delete(c.blockOffsets, seq)
			}
		}
	}
	_, err = c.f.Seek(0, io.SeekStart)
	Ck(err)
	return nil
}

// AddVersion chunks and hashes every file in files concurrently (one
// golang.org/x/sync/errgroup goroutine per file, mirroring the
// teacher's worker-pool-over-channel pattern generalized to a
// structured error group), then, holding the mutex, dedups, compresses
// and writes each new fragment block and the control segments to the
// archive tail in one transaction.
func (c *Coordinator) AddVersion(version uint64, timestamp int64, comment string, files []FileInput) (err error) {
	defer Return(&err)

	type result struct {
		mutation PathMutation
		newRecs  []FragIndexRecord
		blobs    [][]byte
	}

	results := make([]result, len(files))
	g := new(errgroup.Group)
	for i, in := range files {
		i, in := i, in
		g.Go(func() error {
			res, err := c.chunkFile(in)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	Ck(g.Wait())

	c.mu.Lock()
	defer c.mu.Unlock()

	startOffset, err := c.f.Seek(0, io.SeekEnd)
	Ck(err)

	// chunkFile only checks c.table, which isn't populated until this
	// loop runs, so two files in the same batch can independently
	// decide an identical fragment is new. Re-check against the table
	// and a per-batch seen-set here, in the serialized write loop,
	// so a fragment appearing under two paths in the same version is
	// still stored exactly once.
	seen := make(map[[20]byte]bool)
	var muts []PathMutation
	for _, res := range results {
		for j, blob := range res.blobs {
			rec := res.newRecs[j]
			if seen[rec.SHA1] {
				continue
			}
			if _, known := c.table.Lookup(rec.SHA1); known {
				seen[rec.SHA1] = true
				continue
			}
			Ck(c.writeFragmentBlock(rec, blob))
			seen[rec.SHA1] = true
		}
		muts = append(muts, res.mutation)
	}

	// control block: transaction header + file index, store method
	fiPayload := EncodeFileIndex(muts)
	Ck(c.writeControlSegments(kindFileIndex, fiPayload))

	hdr := TransactionHeader{Version: version, Timestamp: timestamp, EndOffset: startOffset}
	Ck(c.writeControlSegments(kindTransaction, hdr.Encode()))

	c.table.MarkVersionBoundary(version)
	c.versions = append(c.versions, VersionRecord{Version: version, Timestamp: timestamp, Mutations: muts})

	if err := saveOptions(c.path, Options{DataMethod: c.DataMethod}); err != nil {
		log.Warnf("journal: failed to persist sidecar options: %v", err)
	}
	return nil
}

// chunkFile splits one file into content-defined fragments, looking
// up each against the table to avoid re-storing already-known
// content, per spec section 4.8's "a hit suppresses the data bytes
// and records only the reference in the file index."
func (c *Coordinator) chunkFile(in FileInput) (out struct {
	mutation PathMutation
	newRecs  []FragIndexRecord
	blobs    [][]byte
}, err error) {
	defer Return(&err)

	chunker := c.ChunkerFactory(in.Data)
	var fragIDs [][20]byte
	var size int64
	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		Ck(err)
		sum := bitio.Sum20(chunk.Data)
		fragIDs = append(fragIDs, sum)
		size += int64(len(chunk.Data))
		if _, known := c.table.Lookup(sum); known {
			continue
		}
		out.newRecs = append(out.newRecs, FragIndexRecord{SHA1: sum, Length: uint32(len(chunk.Data))})
		out.blobs = append(out.blobs, chunk.Data)
	}
	out.mutation = PathMutation{
		Path: in.Path, Size: size, ModTime: in.ModTime, Attrs: in.Attrs, Fragments: fragIDs,
	}
	return out, nil
}

// writeFragmentBlock writes one new fragment as its own block: a `d`
// segment holding its single coded record, followed by an `h` segment
// describing it, matching spec section 4.8's "h... describing the
// fragments in the immediately preceding d segment" (one record each,
// in this implementation — the wire format permits batching several
// fragments per block, but one-per-block keeps dedup bookkeeping
// simple).
func (c *Coordinator) writeFragmentBlock(rec FragIndexRecord, blob []byte) (err error) {
	defer Return(&err)

	preset := codec.Presets[c.DataMethod]
	hdrBytes, err := preset.Model.EncodeHeader()
	Ck(err)

	record, err := EncodeRecord(preset.Model, blob)
	Ck(err)

	offset, err := c.f.Seek(0, io.SeekEnd)
	Ck(err)

	block := container.Block{
		Header: container.Header{Level: 2, Type: preset.Method, HComp: hdrBytes},
		Segments: []container.Segment{
			{Filename: string(kindData), Payload: record},
			{Filename: string(kindFragIndex), Payload: EncodeFragIndex([]FragIndexRecord{rec})},
		},
	}
	Ck(c.writer.WriteBlock(block))

	c.nextSeq++
	c.blockOffsets[c.nextSeq] = offset
	c.table.Add(Fragment{SHA1: rec.SHA1, BlockID: c.nextSeq, Offset: 0, Length: uint32(len(blob))})
	return nil
}

// RemoveVersion commits a version whose mutations are pure tombstones:
// no fragments are chunked or written, since a delete only needs to
// say a path is gone, per spec section 6's "remove(paths, timestamp)
// -> version_id".
func (c *Coordinator) RemoveVersion(version uint64, timestamp int64, paths []string) (err error) {
	defer Return(&err)

	c.mu.Lock()
	defer c.mu.Unlock()

	startOffset, err := c.f.Seek(0, io.SeekEnd)
	Ck(err)

	muts := make([]PathMutation, len(paths))
	for i, p := range paths {
		muts[i] = PathMutation{Path: p, Tombstone: true}
	}

	Ck(c.writeControlSegments(kindFileIndex, EncodeFileIndex(muts)))

	hdr := TransactionHeader{Version: version, Timestamp: timestamp, EndOffset: startOffset}
	Ck(c.writeControlSegments(kindTransaction, hdr.Encode()))

	c.table.MarkVersionBoundary(version)
	c.versions = append(c.versions, VersionRecord{Version: version, Timestamp: timestamp, Mutations: muts})
	return nil
}

// Versions returns every committed transaction, in commit order.
func (c *Coordinator) Versions() []VersionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]VersionRecord, len(c.versions))
	copy(out, c.versions)
	return out
}

// List folds every version's mutations up to and including version
// into the live path set, per spec section 3's "the set of live paths
// is the left-fold of all version records... applying adds/updates/
// deletes in order." A version of 0 means "every committed version."
func (c *Coordinator) List(version uint64) map[string]PathMutation {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := make(map[string]PathMutation)
	for _, v := range c.versions {
		if version != 0 && v.Version > version {
			break
		}
		for _, m := range v.Mutations {
			if m.Tombstone {
				delete(live, m.Path)
				continue
			}
			live[m.Path] = m
		}
	}
	return live
}

// Extract writes path's bytes, as they stood as of version (0 meaning
// the current committed tail), to w: the ordered concatenation of its
// fragment list, per spec section 3.
func (c *Coordinator) Extract(path string, version uint64, w io.Writer) (err error) {
	defer Return(&err)

	live := c.List(version)
	mut, ok := live[path]
	Assert(ok, "no such path at requested version: %s", path)

	for _, sha1 := range mut.Fragments {
		frag, ok := c.table.Lookup(sha1)
		Assert(ok, "fragment table missing a fragment the file index references")
		data, err := c.readFragment(frag)
		Ck(err)
		_, err = w.Write(data)
		Ck(err)
	}
	return nil
}

// readFragment seeks to the block frag lives in and decodes its
// single data record, independent of the coordinator's own append
// position (safe to call concurrently with writes since it never
// touches c.writer).
func (c *Coordinator) readFragment(frag Fragment) (data []byte, err error) {
	defer Return(&err)

	c.mu.Lock()
	defer c.mu.Unlock()

	offset, ok := c.blockOffsets[frag.BlockID]
	Assert(ok, "no known offset for block %d", frag.BlockID)

	cur, err := c.f.Seek(0, io.SeekCurrent)
	Ck(err)
	defer c.f.Seek(cur, io.SeekStart)

	_, err = c.f.Seek(offset, io.SeekStart)
	Ck(err)

	block, err := container.NewReader(c.f).ReadBlock()
	Ck(err)
	Assert(len(block.Segments) >= 1, "fragment block missing its data segment")

	model, _, err := codec.DecodeHeader(block.Header.HComp)
	Ck(err)

	decoded, _, err := DecodeRecord(model, block.Segments[0].Payload)
	Ck(err)
	return decoded, nil
}

// Verify re-decodes every fragment in the table and confirms its bytes still
// hash to the SHA-1 the fragment table recorded, returning one
// ChecksumMismatch error per fragment that fails. Read operations are
// best-effort per spec section 7, so Verify collects every failure
// instead of stopping at the first.
func (c *Coordinator) Verify() []error {
	var problems []error
	for _, frag := range c.table.All() {
		data, err := c.readFragment(frag)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		if bitio.Sum20(data) != frag.SHA1 {
			problems = append(problems, errs.New(errs.ChecksumMismatch, "fragment %x failed verification", frag.SHA1))
		}
	}
	return problems
}

func (c *Coordinator) writeControlSegments(kind byte, payload []byte) (err error) {
	defer Return(&err)

	storeHdr, err := codec.Presets[0].Model.EncodeHeader()
	Ck(err)
	block := container.Block{
		Header: container.Header{Level: 2, Type: 0, HComp: storeHdr},
		Segments: []container.Segment{
			{Filename: string(kind), Payload: payload},
		},
	}
	return c.writer.WriteBlock(block)
}
