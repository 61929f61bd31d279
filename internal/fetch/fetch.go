// Package fetch downloads remote files to disk.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/briandowns/spinner"

	"github.com/proxyup/proxyup/internal/fsutil"
)

// Client downloads files. The zero value uses http.DefaultClient and shows
// no progress.
type Client struct {
	HTTP *http.Client
	// Progress shows a spinner on Output while a download runs.
	Progress bool
	// Output receives the spinner. Defaults to os.Stderr.
	Output io.Writer
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// ToFile downloads url into dest and returns the number of bytes written.
// The body is streamed into a temporary file next to dest, which replaces
// dest only after the transfer completed.
func (c *Client) ToFile(ctx context.Context, url, dest string) (int64, error) {
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	if c.Progress {
		out := c.Output
		if out == nil {
			out = os.Stderr
		}
		s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(out))
		s.Suffix = " Downloading " + url
		s.Start()
		defer s.Stop()
	}

	slog.Debug("downloading", "url", url, "dest", dest)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{URL: url, Status: resp.Status, Code: resp.StatusCode}
	}

	if err := fsutil.EnsureParentDir(dest); err != nil {
		return 0, err
	}

	tmp := fsutil.TempName(dest)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return n, fmt.Errorf("failed to download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return n, err
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return n, err
	}
	slog.Debug("downloaded", "url", url, "dest", dest, "bytes", n)
	return n, nil
}
