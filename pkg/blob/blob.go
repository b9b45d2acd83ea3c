// Package blob names and writes files that are sent as attachments.
package blob

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"simplebot/pkg/bus"
)

const (
	MimeHTML    = "text/html"
	MimeHTMLZip = "application/zip"
)

// Store hands out unique paths inside one blob directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("blob dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns a path for basename that does not exist yet. Collisions get a
// counter before the extension, which starts at the first dot:
// "page.html.zip" becomes "page-1.html.zip".
func (s *Store) Path(basename string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uniquePath(basename)
}

func (s *Store) uniquePath(basename string) string {
	basename = filepath.Base(strings.TrimSpace(basename))
	path := filepath.Join(s.dir, basename)

	stem, ext := basename, ""
	if idx := strings.Index(basename, "."); idx >= 0 {
		stem, ext = basename[:idx], basename[idx:]
	}

	for i := 1; exists(path); i++ {
		path = filepath.Join(s.dir, stem+"-"+strconv.Itoa(i)+ext)
	}
	return path
}

// WriteHTML stores html under basename. Archive-origin items get a zip with a
// single index.html entry; everything else gets a plain .html file.
func (s *Store) WriteHTML(basename, html string, origin bus.Origin) (path string, mimeType string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if origin == bus.OriginArchive {
		path = s.uniquePath(basename + ".htmlzip")
		return path, MimeHTMLZip, writeZip(path, html)
	}

	path = s.uniquePath(basename + ".html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", "", fmt.Errorf("write html blob: %w", err)
	}
	return path, MimeHTML, nil
}

func writeZip(path, html string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create zip blob: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()

	archive := zip.NewWriter(file)
	archive.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	entry, err := archive.Create("index.html")
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err := io.WriteString(entry, html); err != nil {
		return fmt.Errorf("write zip entry: %w", err)
	}
	return archive.Close()
}

// DataDir returns base/name, creating it when missing.
func DataDir(base, name string) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid data dir name %q", name)
	}

	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
