// Package cloudinary uploads product images to Cloudinary.
package cloudinary

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

var (
	_ product.ImageStore   = (*Store)(nil)
	_ product.ImageRemover = (*Store)(nil)
)

// AllowedFormats are the formats Cloudinary accepts for product images.
var AllowedFormats = api.CldAPIArray{"jpg", "jpeg", "png", "webp"}

// uploadAPI is the subset of the Cloudinary upload API used by Store.
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Store uploads images into a Cloudinary folder.
type Store struct {
	api    uploadAPI
	folder string
}

// NewFromURL returns a Store configured from a cloudinary:// URL.
func NewFromURL(cloudinaryURL, folder string) (*Store, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, errors.Wrap(err, "configure cloudinary")
	}
	cld.Config.URL.Secure = true
	return &Store{api: &cld.Upload, folder: folder}, nil
}

// Upload stores img under a fresh public id and returns its secure URL.
func (s *Store) Upload(ctx context.Context, img product.Image) (string, error) {
	res, err := s.api.Upload(ctx, bytes.NewReader(img.Data), uploader.UploadParams{
		PublicID:       uuid.New().String(),
		Folder:         s.folder,
		ResourceType:   "image",
		AllowedFormats: AllowedFormats,
	})
	if err != nil {
		return "", errors.Wrap(err, "cloudinary upload")
	}
	if res.Error.Message != "" {
		return "", errors.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", errors.New("cloudinary upload: empty secure url")
	}
	return res.SecureURL, nil
}

// Remove destroys the asset behind a URL returned by Upload.
func (s *Store) Remove(ctx context.Context, rawURL string) error {
	publicID, err := publicIDFromURL(rawURL)
	if err != nil {
		return err
	}

	res, err := s.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: "image",
	})
	if err != nil {
		return errors.Wrap(err, "cloudinary destroy")
	}
	if res.Error.Message != "" {
		return errors.Errorf("cloudinary destroy %q: %s", publicID, res.Error.Message)
	}
	// "not found" means the asset is already gone.
	if res.Result != "ok" && res.Result != "not found" {
		return errors.Errorf("cloudinary destroy %q: %s", publicID, res.Result)
	}
	return nil
}

// publicIDFromURL extracts the public id from a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v1712/products/abc.jpg,
// which yields "products/abc".
func publicIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "parse image url")
	}

	_, rest, ok := strings.Cut(u.Path, "/upload/")
	if !ok || rest == "" {
		return "", errors.Errorf("not a cloudinary delivery url: %q", rawURL)
	}
	if version, after, found := strings.Cut(rest, "/"); found && isVersion(version) {
		rest = after
	}

	id := strings.TrimSuffix(rest, path.Ext(rest))
	if id == "" {
		return "", errors.Errorf("not a cloudinary delivery url: %q", rawURL)
	}
	return id, nil
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
