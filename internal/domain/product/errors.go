package product

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors returned by the catalog service.
var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrUploadFailed matches every *UploadError.
	ErrUploadFailed = errors.New("image upload failed")
	// ErrStorageUnavailable matches every *StorageError.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError indicates user-fixable bad input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UploadError indicates the image store rejected or failed to store an image.
type UploadError struct {
	Index int
	Name  string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload image %d (%q): %v", e.Index, e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Is reports ErrUploadFailed as a match.
func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }

// StorageError indicates the product repository could not serve a request.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorageUnavailable as a match.
func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
