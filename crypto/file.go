package crypto

import (
	"io"
	"os"

	"github.com/t7a/zpaq/errs"
)

// File adapts an on-disk archive to the crypto envelope: every byte
// after the plaintext preamble (magic + salt) is enciphered with the
// random-access keystream, so callers above this layer — container
// readers/writers, the journaling coordinator — see a plain
// io.ReadWriteSeeker and never touch ciphertext directly. This plays
// the same role crypto.Stream's ReadAt was built for, generalized
// from "decrypt one region on demand" to "be the archive's file
// handle", the way the teacher's file.go strips a plaintext header
// off an *os.File before handing back Read/Write.
type File struct {
	f        *os.File
	stream   *Stream
	preamble int64
	pos      int64
}

// OpenFile opens (creating if necessary) the archive at path as an
// encrypted file: a fresh file gets a new preamble and salt written
// immediately; an existing file has its preamble read and validated.
// The returned File's logical offset 0 is the first byte after the
// preamble, matching crypto's "the IV depends on the in-archive offset
// of the ciphertext, not the plaintext preamble" contract.
func OpenFile(path string, password []byte, p Params) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "open archive file", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.IO, "stat archive file", err)
	}

	var keys Keys
	var preamble int64
	if fi.Size() == 0 {
		keys, _, err = WritePreamble(f, password, p)
		if err != nil {
			f.Close()
			return nil, err
		}
		preamble = int64(len(Preamble)) + int64(p.SaltLength)
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, errs.Wrap(errs.IO, "seek archive file", err)
		}
		keys, _, err = ReadPreamble(f, password, p)
		if err != nil {
			f.Close()
			return nil, err
		}
		preamble = int64(len(Preamble)) + int64(p.SaltLength)
	}

	stream, err := NewStream(keys)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, stream: stream, preamble: preamble}, nil
}

func (cf *File) Read(p []byte) (int, error) {
	n, err := cf.f.ReadAt(p, cf.pos+cf.preamble)
	if n > 0 {
		cf.stream.XORKeyStreamAt(p[:n], p[:n], cf.pos)
		cf.pos += int64(n)
	}
	if err != nil && err != io.EOF {
		return n, errs.Wrap(errs.IO, "encrypted archive read", err)
	}
	return n, err
}

func (cf *File) Write(p []byte) (int, error) {
	enc := make([]byte, len(p))
	cf.stream.XORKeyStreamAt(enc, p, cf.pos)
	n, err := cf.f.WriteAt(enc, cf.pos+cf.preamble)
	cf.pos += int64(n)
	if err != nil {
		return n, errs.Wrap(errs.IO, "encrypted archive write", err)
	}
	return n, nil
}

func (cf *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		cf.pos = offset
	case io.SeekCurrent:
		cf.pos += offset
	case io.SeekEnd:
		fi, err := cf.f.Stat()
		if err != nil {
			return 0, errs.Wrap(errs.IO, "stat archive file", err)
		}
		cf.pos = fi.Size() - cf.preamble + offset
	default:
		return 0, errs.New(errs.IO, "unsupported seek whence %d", whence)
	}
	return cf.pos, nil
}

// Truncate resizes the archive to size logical (post-preamble) bytes,
// used by the journaling layer to drop an uncommitted trailing
// transaction discovered on replay.
func (cf *File) Truncate(size int64) error {
	if err := cf.f.Truncate(size + cf.preamble); err != nil {
		return errs.Wrap(errs.IO, "truncate encrypted archive file", err)
	}
	return nil
}

func (cf *File) Close() error {
	return cf.f.Close()
}
