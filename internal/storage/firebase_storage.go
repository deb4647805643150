package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"

	"membership-backend/internal/logger"
)

// FirebaseStorageService stores blobs in the project's Cloud Storage bucket.
type FirebaseStorageService struct {
	bucket *gcs.BucketHandle
	now    func() time.Time
}

// NewFirebaseStorageService opens bucketName, or the app's default bucket
// when bucketName is empty.
func NewFirebaseStorageService(ctx context.Context, app *firebase.App, bucketName string) (*FirebaseStorageService, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage client: %w", err)
	}
	var bucket *gcs.BucketHandle
	if bucketName == "" {
		bucket, err = client.DefaultBucket()
	} else {
		bucket, err = client.Bucket(bucketName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open storage bucket: %w", err)
	}
	return &FirebaseStorageService{bucket: bucket, now: time.Now}, nil
}

func (s *FirebaseStorageService) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	logger.ExternalServiceCall("firebase_storage", "put", "key", key, "content_type", contentType)
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		logger.ExternalServiceResult("firebase_storage", "put", err, "key", key)
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	err := w.Close()
	logger.ExternalServiceResult("firebase_storage", "put", err, "key", key)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

func (s *FirebaseStorageService) URL(ctx context.Context, ref string, expiresIn time.Duration) (string, error) {
	u, err := s.bucket.SignedURL(ref, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: s.now().Add(expiresIn),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", ref, err)
	}
	return u, nil
}

func (s *FirebaseStorageService) FileExists(ctx context.Context, key string) (bool, int64, error) {
	attrs, err := s.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, attrs.Size, nil
}

func (s *FirebaseStorageService) DeleteFile(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
