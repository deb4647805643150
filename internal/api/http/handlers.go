// Package http exposes the membership services over a JSON API, a
// Server-Sent Events status stream and the mock storage file routes.
package http

import (
	"context"
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"membership-backend/internal/metrics"
	"membership-backend/internal/security"
	"membership-backend/internal/service"
	"membership-backend/internal/statussync"
	"membership-backend/internal/storage"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth         service.AuthService
	Registration service.RegistrationService
	Admin        service.AdminService
	Sessions     *statussync.Registry
	Tokens       security.TokenManager
	Health       HealthChecker
	// Files serves signed download links. Nil unless mock storage is used.
	Files   *storage.MockStorageService
	Metrics *metrics.Recorder
	// MetricsHandler is mounted at MetricsPath when non-nil.
	MetricsHandler http.Handler
	MetricsPath    string
	MaxUploadBytes int64
}

type Handlers struct {
	auth         service.AuthService
	registration service.RegistrationService
	admin        service.AdminService
	sessions     *statussync.Registry
	tokens       security.TokenManager
	health       HealthChecker
	files        *storage.MockStorageService
	metrics      *metrics.Recorder

	metricsHandler http.Handler
	metricsPath    string
	maxUpload      int64
	keepAlive      time.Duration

	validate *validator.Validate
	trans    ut.Translator
}

func NewHandlers(d Deps) *Handlers {
	validate, trans := newValidator()
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	path := d.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	return &Handlers{
		auth:           d.Auth,
		registration:   d.Registration,
		admin:          d.Admin,
		sessions:       d.Sessions,
		tokens:         d.Tokens,
		health:         d.Health,
		files:          d.Files,
		metrics:        d.Metrics,
		metricsHandler: d.MetricsHandler,
		metricsPath:    path,
		maxUpload:      maxUpload,
		keepAlive:      25 * time.Second,
		validate:       validate,
		trans:          trans,
	}
}
