package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStorage_PutReadDelete(t *testing.T) {
	s, err := NewMockStorageService("http://localhost:8080/", t.TempDir(), "secret")
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := s.Put(ctx, "proofs/1_receipt.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "proofs/1_receipt.png", ref)

	exists, size, err := s.FileExists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(9), size)

	f, err := s.ReadFile(ref)
	require.NoError(t, err)
	data, _ := io.ReadAll(f)
	f.Close()
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, s.DeleteFile(ctx, ref))
	_, err = s.ReadFile(ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStorage_RejectsTraversal(t *testing.T) {
	s, err := NewMockStorageService("http://localhost", t.TempDir(), "secret")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../escape.png", "image/png", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestMockStorage_SignedURL(t *testing.T) {
	s, err := NewMockStorageService("http://localhost:8080", t.TempDir(), "secret")
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	raw, err := s.URL(context.Background(), "proofs/a.png", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/files/proofs/a.png", u.Path)

	q := u.Query()
	assert.True(t, s.Verify("proofs/a.png", q.Get("expires"), q.Get("signature")))
	assert.False(t, s.Verify("proofs/b.png", q.Get("expires"), q.Get("signature")))

	now = now.Add(2 * time.Minute)
	assert.False(t, s.Verify("proofs/a.png", q.Get("expires"), q.Get("signature")), "expired")
}
