// Package storage persists source and result blobs behind one small
// Get/Put/Delete interface with filesystem and S3 backends.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports a key with no stored blob. Backends translate their
// native miss into it so callers can branch with errors.Is.
var ErrNotFound = errors.New("blob not found")

// Blob is one stored object. ContentType may be empty when the backend does
// not track one; callers sniff the bytes in that case.
type Blob struct {
	Data        []byte
	ContentType string
}

// Store is a flat key to blob namespace. Keys are slash-separated relative
// paths the caller has already normalized.
type Store interface {
	Get(ctx context.Context, key string) (Blob, error)
	Put(ctx context.Context, key string, blob Blob) error
	Delete(ctx context.Context, key string) error
}
