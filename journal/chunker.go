package journal

import (
	"io"

	resticRabin "github.com/restic/chunker"
)

// Chunk is one content-defined slice of a path's bytes, in reading
// order.
type Chunk struct {
	Data []byte
}

// Chunker splits a byte stream into content-defined chunks
// deterministically, per spec section 4.8's "rolling hash over a
// sliding window declares a cut where the hash's low k bits are zero,
// with a minimum and maximum size clamp."
type Chunker interface {
	Next() (Chunk, error) // returns io.EOF when exhausted
}

// orderOneSplitter is this module's default chunker: the ZPAQ-style
// order-1 context rolling hash splitter, grounded directly on the
// public-domain reference algorithm ("Split blocks like ZPAQ") —
// an order-1 byte-context model predicts the next byte, and the
// rolling hash folds in two different odd/even multipliers depending
// on whether the prediction was right, so the effective dependency
// window varies with how compressible the recent bytes were instead
// of using a single fixed-size Rabin window.
type orderOneSplitter struct {
	r   io.Reader
	buf []byte // read-ahead buffer reused across Next calls
	pos int
	eof bool

	h   uint32
	c1  byte
	o1  [256]byte
	off int

	minFragment int
	maxFragment int
	maxHash     uint32
}

const (
	splitterMinFragment = 1 << 12 // 4 KiB
	splitterMaxFragment = 1 << 20 // 1 MiB
)

// NewChunker returns the default order-1 content splitter reading
// from r.
func NewChunker(r io.Reader) Chunker {
	return &orderOneSplitter{
		r:           r,
		buf:         make([]byte, 0, 1<<16),
		minFragment: splitterMinFragment,
		maxFragment: splitterMaxFragment,
		maxHash:     1 << 16, // average fragment size ~64 KiB
	}
}

func (s *orderOneSplitter) fill() error {
	if s.pos < len(s.buf) || s.eof {
		return nil
	}
	n, err := s.r.Read(s.buf[:cap(s.buf)])
	s.buf = s.buf[:n]
	s.pos = 0
	if err == io.EOF {
		s.eof = true
		return nil
	}
	return err
}

func (s *orderOneSplitter) Next() (Chunk, error) {
	frag := make([]byte, 0, s.minFragment)
	for {
		if s.pos >= len(s.buf) {
			if s.eof {
				break
			}
			if err := s.fill(); err != nil {
				return Chunk{}, err
			}
			if len(s.buf) == 0 {
				s.eof = true
				break
			}
		}
		c := s.buf[s.pos]
		s.pos++
		if c == s.o1[s.c1] {
			s.h = (s.h + uint32(c) + 1) * 314159265
		} else {
			s.h = (s.h + uint32(c) + 1) * 271828182
		}
		s.o1[s.c1] = c
		s.c1 = c
		frag = append(frag, c)
		s.off++

		if (s.off >= s.minFragment && s.h < s.maxHash) || s.off >= s.maxFragment {
			s.off = 0
			s.h = 0
			s.c1 = 0
			return Chunk{Data: frag}, nil
		}
	}
	if len(frag) == 0 {
		return Chunk{}, io.EOF
	}
	s.off = 0
	s.h = 0
	s.c1 = 0
	return Chunk{Data: frag}, nil
}

// rabinChunker is the non-default "generic" chunking mode: a thin
// wrapper around restic's content-defined chunker, kept available for
// callers that want Rabin-fingerprint boundaries instead of the
// order-1 splitter above, following the teacher's own Rabin wrapper
// (db/chunker.go's Rabin type) one-for-one.
type rabinChunker struct {
	c *resticRabin.Chunker
}

// NewRabinChunker returns the optional restic/chunker-backed chunking
// mode.
func NewRabinChunker(r io.Reader, poly resticRabin.Pol, minSize, maxSize uint) Chunker {
	return &rabinChunker{c: resticRabin.NewWithBoundaries(r, poly, minSize, maxSize)}
}

func (s *rabinChunker) Next() (Chunk, error) {
	buf := make([]byte, 8*1024*1024)
	chunk, err := s.c.Next(buf)
	if err != nil {
		return Chunk{}, err
	}
	out := make([]byte, len(chunk.Data))
	copy(out, chunk.Data)
	return Chunk{Data: out}, nil
}
