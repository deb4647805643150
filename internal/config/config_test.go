package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8080
storage:
  upload_dir: /tmp/uploads
  signing_secret: s3cret
jwt:
  secret: 0123456789abcdef0123456789abcdef
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Realtime.Backend)
	assert.Equal(t, "mock", cfg.Storage.Type)
	assert.Equal(t, 7*time.Second, cfg.NotificationTTL())
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes())
	assert.Equal(t, "0 */15 * * * *", cfg.Scheduler.Reconcile)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, ":8080", cfg.GetServerAddress())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("JWT_SECRET", "abcdefghijklmnopqrstuvwxyz0123456789")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz0123456789", cfg.JWT.Secret)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		extra string
	}{
		{"unknown backend", "realtime:\n  backend: redis\n"},
		{"postgres without dsn", "realtime:\n  backend: postgres\n"},
		{"firebase without url", "realtime:\n  backend: firebase\n"},
		{"bad timezone", "allocator:\n  timezone: Mars/Olympus\n"},
		{"plain admin password", "admin:\n  password_hash: hunter2\n"},
		{"grpc port clash", "grpc:\n  port: 8080\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(minimalYAML + tt.extra))
			assert.Error(t, err)
		})
	}
}

func TestParse_ShortSecret(t *testing.T) {
	_, err := Parse([]byte("server:\n  port: 1\nstorage:\n  upload_dir: x\n  signing_secret: y\njwt:\n  secret: short\n"))
	assert.ErrorContains(t, err, "at least 32")
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/uploads", cfg.Storage.UploadDir)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestGetSecurityLevel(t *testing.T) {
	assert.Equal(t, SecurityPublic, GetSecurityLevel("auth.login"))
	assert.Equal(t, SecurityMember, GetSecurityLevel("registration.submit"))
	assert.Equal(t, SecurityAdmin, GetSecurityLevel("admin.members.delete"))
	assert.Equal(t, SecurityAdmin, GetSecurityLevel("something.new"))
}
