package app

import (
	"context"
	"io"
	"time"

	"cooksmart/pkg/storage"
)

// platformBucket adapts the platform storage API to storage.ObjectStore
// while resolving the client handle per call, so uploads after a
// reinitialization use the fresh transport.
type platformBucket struct {
	app  *App
	name string
}

// Bucket returns an object store backed by the platform's storage API.
func (a *App) Bucket(name string) storage.ObjectStore {
	return &platformBucket{app: a, name: name}
}

func (b *platformBucket) Put(ctx context.Context, token, key string, r io.Reader, size int64, contentType string) error {
	return b.app.Client().Bucket(b.name).Put(ctx, token, key, r, size, contentType)
}

func (b *platformBucket) PublicURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return b.app.Client().Bucket(b.name).PublicURL(ctx, key, expiry)
}

func (b *platformBucket) Delete(ctx context.Context, token, key string) error {
	return b.app.Client().Bucket(b.name).Delete(ctx, token, key)
}
