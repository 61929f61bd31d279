// Package archive extracts downloaded daemon releases.
package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/proxyup/proxyup/internal/fsutil"
)

// IsGzip reports whether name looks like a gzip-compressed file.
func IsGzip(name string) bool {
	return strings.HasSuffix(name, ".gz")
}

// Gunzip decompresses src into dest and removes src once dest is complete.
// dest is created with perm.
func Gunzip(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to read gzip header of %s: %w", src, err)
	}
	defer zr.Close()

	tmp := fsutil.TempName(dest)
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, zr)
	if err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to decompress %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := fsutil.Move(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	slog.Debug("extracted archive", "src", src, "dest", dest, "bytes", n)

	in.Close()
	return os.Remove(src)
}
