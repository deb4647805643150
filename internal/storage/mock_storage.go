package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"membership-backend/internal/logger"
)

// MockStorageService implements blob storage on the local filesystem.
// Download URLs point back at this server and carry an HMAC signature so
// they expire like cloud signed URLs.
type MockStorageService struct {
	baseURL    string // Server URL (e.g., "http://localhost:8080")
	uploadsDir string
	secret     []byte
	now        func() time.Time
}

// NewMockStorageService creates the upload directory if needed. An empty
// secret gets a random per-process one.
func NewMockStorageService(baseURL, uploadsDir, secret string) (*MockStorageService, error) {
	if err := os.MkdirAll(uploadsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	if secret == "" {
		secret = uuid.New().String()
	}
	return &MockStorageService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		uploadsDir: uploadsDir,
		secret:     []byte(secret),
		now:        time.Now,
	}, nil
}

func (m *MockStorageService) localPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(m.uploadsDir, filepath.FromSlash(clean)), nil
}

func (m *MockStorageService) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	logger.ExternalServiceCall("mock_storage", "put", "key", key, "content_type", contentType)
	err := m.SaveFile(key, r)
	logger.ExternalServiceResult("mock_storage", "put", err, "key", key)
	if err != nil {
		return "", err
	}
	return key, nil
}

// URL returns a signed download URL served by the mock file routes.
func (m *MockStorageService) URL(ctx context.Context, ref string, expiresIn time.Duration) (string, error) {
	if _, err := m.localPath(ref); err != nil {
		return "", err
	}
	expires := m.now().Add(expiresIn).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", m.sign(ref, expires))
	return fmt.Sprintf("%s/files/%s?%s", m.baseURL, ref, q.Encode()), nil
}

// Verify checks a signature produced by URL.
func (m *MockStorageService) Verify(key, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || m.now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(m.sign(key, exp)))
}

func (m *MockStorageService) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// FileExists checks if file exists in local filesystem
func (m *MockStorageService) FileExists(ctx context.Context, key string) (bool, int64, error) {
	fullPath, err := m.localPath(key)
	if err != nil {
		return false, 0, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, info.Size(), nil
}

// DeleteFile deletes file from local filesystem
func (m *MockStorageService) DeleteFile(ctx context.Context, key string) error {
	fullPath, err := m.localPath(key)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// SaveFile saves uploaded file to local filesystem
func (m *MockStorageService) SaveFile(key string, reader io.Reader) error {
	fullPath, err := m.localPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err = io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ReadFile opens a stored file for the mock download handler.
func (m *MockStorageService) ReadFile(key string) (io.ReadCloser, error) {
	fullPath, err := m.localPath(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}
