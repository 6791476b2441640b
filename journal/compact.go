package journal

import (
	"io"
	"sort"

	. "github.com/stevegt/goadapt"
)

// Compact rewrites the archive at srcPath into a fresh archive at
// dstPath containing only the fragments still referenced by srcPath's
// live path set as of its current committed tail, collapsing its
// whole version history into one version. This is spec section 4.8's
// named-but-unspecified "optional out-of-core operation", grounded in
// the teacher's Tree.Cat() traversal ("walk a tree's live leaf nodes,
// concatenate their content") generalized from one stream's leaves to
// every live path's fragment list. The source archive is left
// untouched.
func Compact(srcPath, dstPath string) (err error) {
	defer Return(&err)

	src, err := Open(srcPath)
	Ck(err)
	defer src.Close()

	live := src.List(0)
	var paths []string
	for p := range live {
		paths = append(paths, p)
	}
	sort.Strings(paths) // deterministic write order, independent of map iteration

	liveSHA1 := make(map[[20]byte]bool)
	for _, p := range paths {
		for _, sha1 := range live[p].Fragments {
			liveSHA1[sha1] = true
		}
	}

	dst, err := Open(dstPath)
	Ck(err)
	defer dst.Close()

	for _, frag := range src.table.All() {
		if !liveSHA1[frag.SHA1] {
			continue
		}
		data, err := src.readFragment(frag)
		Ck(err)
		Ck(dst.writeFragmentBlock(FragIndexRecord{SHA1: frag.SHA1, Length: uint32(len(data))}, data))
	}

	muts := make([]PathMutation, 0, len(paths))
	for _, p := range paths {
		muts = append(muts, live[p])
	}

	startOffset, err := dst.f.Seek(0, io.SeekEnd)
	Ck(err)
	Ck(dst.writeControlSegments(kindFileIndex, EncodeFileIndex(muts)))

	const compactedVersion = 1
	hdr := TransactionHeader{Version: compactedVersion, EndOffset: startOffset}
	Ck(dst.writeControlSegments(kindTransaction, hdr.Encode()))

	dst.table.MarkVersionBoundary(compactedVersion)
	dst.versions = append(dst.versions, VersionRecord{Version: compactedVersion, Mutations: muts})
	return nil
}
