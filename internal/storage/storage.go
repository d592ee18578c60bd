// Package storage is the local-disk artifact store behind the upload
// intake and download resolution. Stored names are uuid-prefixed so
// callers can never address files outside the root.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"morpho/internal/config"
)

// ErrTooLarge is returned when an upload exceeds the configured cap.
var ErrTooLarge = errors.New("upload exceeds maximum allowed size")

// Dir is a storage root for uploaded artifacts.
type Dir struct {
	root        string
	maxBytes    int64
	allowedExts map[string]struct{}
}

// New creates the upload directory if needed and returns a Dir
// enforcing the configured size cap and source-extension whitelist
// (an empty whitelist accepts any extension).
func New(cfg config.StorageConfig) (*Dir, error) {
	root := cfg.UploadDir
	if root == "" {
		root = "data/uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	var allowed map[string]struct{}
	if len(cfg.AllowedSourceFormats) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedSourceFormats))
		for _, ext := range cfg.AllowedSourceFormats {
			allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
		}
	}

	return &Dir{
		root:        root,
		maxBytes:    cfg.MaxUploadBytes,
		allowedExts: allowed,
	}, nil
}

// AllowedSource reports whether the filename's extension passes the
// source whitelist.
func (d *Dir) AllowedSource(filename string) bool {
	if d.allowedExts == nil {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	_, ok := d.allowedExts[ext]
	return ok
}

// MaxBytes returns the per-file upload cap (0 means unlimited).
func (d *Dir) MaxBytes() int64 {
	return d.maxBytes
}

// SaveUpload persists a multipart upload under the root with a
// uuid-prefixed name and returns the stored path and size.
func (d *Dir) SaveUpload(fh *multipart.FileHeader) (string, int64, error) {
	if d.maxBytes > 0 && fh.Size > d.maxBytes {
		return "", 0, ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	name := uuid.New().String() + "-" + filepath.Base(fh.Filename)
	path := filepath.Join(d.root, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}

	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}

	return path, n, nil
}

// Exists reports whether the artifact at path is present on disk.
func (d *Dir) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Open returns a streamed reader over the artifact at path.
func (d *Dir) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Remove deletes the artifact at path; an already-absent file is not
// an error.
func (d *Dir) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
