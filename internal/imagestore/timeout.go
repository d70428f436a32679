// Package imagestore holds image gateway adapters and decorators shared by
// them.
package imagestore

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/boutique-catalog/internal/domain/product"
)

// ErrTimeout is returned when a gateway call exceeds its deadline.
var ErrTimeout = errors.New("image gateway timeout")

type timeoutStore struct {
	next    product.ImageStore
	timeout time.Duration
}

func (s timeoutStore) Upload(ctx context.Context, img product.Image) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url, err := s.next.Upload(ctx, img)
	if err != nil {
		return "", mapDeadline(ctx, err)
	}
	return url, nil
}

type timeoutRemover struct {
	timeoutStore
	remover product.ImageRemover
}

func (s timeoutRemover) Remove(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.remover.Remove(ctx, url); err != nil {
		return mapDeadline(ctx, err)
	}
	return nil
}

// WithTimeout bounds every call to store by d. The returned store keeps
// implementing product.ImageRemover when store does. A non-positive d
// returns store unchanged.
func WithTimeout(store product.ImageStore, d time.Duration) product.ImageStore {
	if d <= 0 {
		return store
	}
	base := timeoutStore{next: store, timeout: d}
	if r, ok := store.(product.ImageRemover); ok {
		return timeoutRemover{timeoutStore: base, remover: r}
	}
	return base
}

func mapDeadline(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	return err
}
