package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("file not found")

// StorageInterface defines the blob backends proof-of-payment images go to.
// Supports the local filesystem mock and Firebase Cloud Storage.
type StorageInterface interface {
	// Put stores content under key and returns the reference persisted on
	// the registration record.
	Put(ctx context.Context, key string, contentType string, r io.Reader) (string, error)

	// URL resolves a reference returned by Put into a download URL valid for
	// expiresIn.
	URL(ctx context.Context, ref string, expiresIn time.Duration) (string, error)

	// FileExists checks if a file exists and returns its size
	FileExists(ctx context.Context, key string) (exists bool, size int64, err error)

	// DeleteFile removes a file from storage
	DeleteFile(ctx context.Context, key string) error
}
