package overlay

import (
	"log/slog"
	"os"

	"github.com/proxyup/proxyup/internal/fsutil"
	"github.com/proxyup/proxyup/internal/schema"
)

// ApplyFile overlays o onto the daemon configuration at path and writes the
// result back to path.
//
// The output is produced in memory before anything is written, so a parse
// or encode failure leaves the file untouched.
func ApplyFile(path string, o schema.Overrides) error {
	info, err := os.Stat(path)
	if err != nil {
		return &schema.IOError{Op: "stat", Path: path, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &schema.IOError{Op: "read", Path: path, Err: err}
	}

	doc, err := Parse(data)
	if err != nil {
		return &schema.ParseError{Path: path, Err: err}
	}
	doc.Apply(o)

	if err := save(path, doc, info.Mode().Perm()); err != nil {
		return err
	}

	slog.Debug("applied overrides", "path", path, "preserved", len(doc.extra))
	return nil
}

func save(path string, doc *Document, perm os.FileMode) error {
	out, err := doc.Marshal()
	if err != nil {
		return &schema.IOError{Op: "encode", Path: path, Err: err}
	}
	if err := fsutil.WriteFileAtomic(path, out, perm); err != nil {
		return &schema.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
