// Package local stores product images on the local filesystem and serves
// them over HTTP.
package local

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

var (
	_ product.ImageStore   = (*Store)(nil)
	_ product.ImageRemover = (*Store)(nil)
)

// Store writes each upload to its own file under dir and returns a URL
// under publicURL.
type Store struct {
	dir       string
	publicURL string
	mountPath string
}

// New returns a Store rooted at dir, creating it if needed. publicURL is
// either a path ("/uploads") or an absolute URL whose path is where Handler
// is mounted.
func New(dir, publicURL string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("image directory is required")
	}
	u, err := url.Parse(publicURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse public url")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create image directory")
	}

	return &Store{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		mountPath: "/" + strings.Trim(u.Path, "/"),
	}, nil
}

// Upload writes img under a fresh name and returns its public URL.
func (s *Store) Upload(ctx context.Context, img product.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.New().String() + extension(img)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "create image file")
	}
	if _, err := f.Write(img.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "write image file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "close image file")
	}

	return s.publicURL + "/" + name, nil
}

// Remove deletes the file behind a URL previously returned by Upload.
// Removing a file that is already gone is not an error.
func (s *Store) Remove(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, ok := strings.CutPrefix(rawURL, s.publicURL+"/")
	if !ok || name == "" || name != filepath.Base(name) {
		return errors.Errorf("url %q is not managed by this store", rawURL)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove image file")
	}
	return nil
}

// MountPath is the request path prefix Handler expects to be mounted at.
func (s *Store) MountPath() string {
	return s.mountPath
}

// Handler serves stored files. It must be mounted at MountPath.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(s.mountPath, http.FileServer(http.Dir(s.dir)))
}

func extension(img product.Image) string {
	if m := mimetype.Lookup(img.ContentType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return mimetype.Detect(img.Data).Extension()
}
