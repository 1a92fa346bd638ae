// Package store implements blob stores for run artifacts.
package store

import (
	"context"
	"errors"
	"io"
)

var (
	ErrKeyExists      = errors.New("store: key already exists")
	ErrKeyDoesntExist = errors.New("store: key does not exist")
)

// BlobStore persists artifact bytes under run-scoped keys. Put returns an
// opaque location handle that Get accepts. After Put returns the blob is
// durable; concurrent Puts under distinct keys must not interfere.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (location string, err error)
	Get(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
}
