package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"membership-backend/internal/logger"
	"membership-backend/internal/storage"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ImageStorage stores proof-of-payment images and resolves their URLs.
type ImageStorage struct {
	store     storage.StorageInterface
	maxBytes  int64
	urlExpiry time.Duration
	now       func() time.Time
}

func NewImageStorage(store storage.StorageInterface, maxBytes int64, urlExpiry time.Duration) *ImageStorage {
	return &ImageStorage{
		store:     store,
		maxBytes:  maxBytes,
		urlExpiry: urlExpiry,
		now:       time.Now,
	}
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}

// Upload checks that r holds an image within the size limit and stores it
// under proofs/{unixMillis}_{filename}.
func (s *ImageStorage) Upload(ctx context.Context, filename, contentType string, r io.Reader) (*ProofUpload, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, validationError("Please select a valid image file!")
	}

	limit := s.maxBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, validationError("File is larger than %d MB", limit>>20)
	}
	if len(data) == 0 {
		return nil, validationError("Uploaded file is empty")
	}
	// The declared type comes from the client; sniff the bytes as well.
	if sniffed := http.DetectContentType(data); !strings.HasPrefix(sniffed, "image/") {
		return nil, validationError("Please select a valid image file!")
	}

	key := fmt.Sprintf("proofs/%d_%s", s.now().UnixMilli(), sanitizeFilename(filename))
	logger.ExternalServiceCall("storage", "Put", "key", key, "size", len(data))
	ref, err := s.store.Put(ctx, key, contentType, bytes.NewReader(data))
	logger.ExternalServiceResult("storage", "Put", err)
	if err != nil {
		return nil, fmt.Errorf("%w: upload proof: %w", ErrUnavailable, err)
	}

	url, err := s.URL(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &ProofUpload{Ref: ref, URL: url}, nil
}

// URL resolves a stored reference. References that are already absolute
// URLs, as written by older clients, are returned unchanged.
func (s *ImageStorage) URL(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	url, err := s.store.URL(ctx, ref, s.urlExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: resolve proof url: %w", ErrUnavailable, err)
	}
	return url, nil
}
