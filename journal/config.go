package journal

import (
	"encoding/json"
	"os"

	"github.com/google/renameio"

	"github.com/t7a/zpaq/errs"
)

// Options is the archive-level configuration persisted next to the
// archive body, the way the teacher's Db persists config.json next to
// its content store: the default codec preset new fragments are coded
// with. Archive-level config is recorded, not negotiated on open, per
// spec section 4.2's "parameters are recorded in the preamble, not
// negotiated."
type Options struct {
	DataMethod byte `json:"data_method"`
}

func sidecarPath(archivePath string) string {
	return archivePath + ".json"
}

// saveOptions atomically rewrites the archive's sidecar config file
// using renameio, so a crash mid-write never leaves a half-written
// config.json behind, matching the teacher's use of renameio for its
// own label symlinks.
func saveOptions(archivePath string, opts Options) error {
	buf, err := json.Marshal(opts)
	if err != nil {
		return errs.Wrap(errs.IO, "marshal archive options", err)
	}
	if err := renameio.WriteFile(sidecarPath(archivePath), buf, 0644); err != nil {
		return errs.Wrap(errs.IO, "write archive options sidecar", err)
	}
	return nil
}

// loadOptions reads back an archive's sidecar config, if one exists.
func loadOptions(archivePath string) (Options, error) {
	var opts Options
	buf, err := os.ReadFile(sidecarPath(archivePath))
	if err != nil {
		return opts, errs.Wrap(errs.IO, "read archive options sidecar", err)
	}
	if err := json.Unmarshal(buf, &opts); err != nil {
		return opts, errs.Wrap(errs.BadHeader, "unmarshal archive options", err)
	}
	return opts, nil
}
