// Package factory builds the store, storage and services every binary
// shares from a loaded configuration.
package factory

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/api/option"

	"membership-backend/internal/config"
	"membership-backend/internal/controlnumber"
	"membership-backend/internal/logger"
	"membership-backend/internal/metrics"
	"membership-backend/internal/realtime"
	"membership-backend/internal/repository/rtdb"
	"membership-backend/internal/security"
	"membership-backend/internal/service"
	"membership-backend/internal/statussync"
	"membership-backend/internal/storage"
)

type Services struct {
	Auth         service.AuthService
	Registration service.RegistrationService
	Admin        service.AdminService
	Email        service.EmailService
}

type Factory struct {
	Config *config.Config
	DB     realtime.Store
	Store  *rtdb.Store
	Blobs  storage.StorageInterface
	// MockFiles is set when storage.type is mock; the HTTP server serves its links.
	MockFiles *storage.MockStorageService
	LastSeen  statussync.LastSeenStore
	Sessions  *statussync.Registry
	Tokens    security.TokenManager
	Metrics   *metrics.Recorder
	// Registry gathers the application and Go runtime collectors.
	Registry *prometheus.Registry
	Services *Services
}

// New wires every component. The returned cleanup closes them in reverse order.
func New(ctx context.Context, cfg *config.Config) (*Factory, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Factory, func(), error) {
		cleanup()
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(reg)

	loc, err := cfg.Location()
	if err != nil {
		return fail(err)
	}

	var app *firebase.App
	if cfg.Realtime.Backend == "firebase" || cfg.Storage.Type == "firebase" {
		app, err = newFirebaseApp(ctx, cfg)
		if err != nil {
			return fail(err)
		}
	}

	db, closeDB, err := openRealtime(ctx, cfg, app)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeDB)

	blobs, mockFiles, err := openStorage(ctx, cfg, app)
	if err != nil {
		return fail(err)
	}

	lastSeen, closeLastSeen, err := openLastSeen(cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeLastSeen)

	store := rtdb.NewStore(db)
	sessions := statussync.NewRegistry(store.Registrations, lastSeen, cfg.NotificationTTL(), rec)
	closers = append(closers, sessions.Close)

	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())
	images := service.NewImageStorage(blobs, cfg.MaxUploadBytes(), cfg.URLExpiry())
	alloc := controlnumber.NewAllocator(loc)

	var email service.EmailService
	if cfg.SendGrid.APIKey != "" {
		email = service.NewSendGridEmailService(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName)
		logger.Info("Using SendGrid for decision emails", "from", cfg.SendGrid.FromEmail)
	} else {
		email = service.NewLogEmailService()
		logger.Info("No SendGrid key configured, decision emails are logged only")
	}

	return &Factory{
		Config:    cfg,
		DB:        db,
		Store:     store,
		Blobs:     blobs,
		MockFiles: mockFiles,
		LastSeen:  lastSeen,
		Sessions:  sessions,
		Tokens:    tokens,
		Metrics:   rec,
		Registry:  reg,
		Services: &Services{
			Auth: service.NewAuthService(store.Users, tokens, service.AdminCredentials{
				Username:     cfg.Admin.Username,
				PasswordHash: cfg.Admin.PasswordHash,
			}, lastSeen, sessions),
			Registration: service.NewRegistrationService(store.Registrations, images, lastSeen),
			Admin:        service.NewAdminService(store.Registrations, store.Roster, store.Users, images, alloc, email, rec),
			Email:        email,
		},
	}, cleanup, nil
}

func newFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	fbCfg := &firebase.Config{
		ProjectID:     cfg.Firebase.ProjectID,
		DatabaseURL:   cfg.Firebase.DatabaseURL,
		StorageBucket: cfg.Firebase.StorageBucket,
	}
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	logger.ExternalServiceCall("firebase", "NewApp", "project_id", cfg.Firebase.ProjectID)
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	logger.ExternalServiceResult("firebase", "NewApp", err)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

func openRealtime(ctx context.Context, cfg *config.Config, app *firebase.App) (realtime.Store, func(), error) {
	switch cfg.Realtime.Backend {
	case "memory":
		logger.Warn("Using in-memory realtime store, data is lost on restart")
		db := realtime.NewMemoryStore()
		return db, func() { db.Close() }, nil

	case "firebase":
		db, err := realtime.NewFirebaseStore(ctx, app, cfg.PollInterval())
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using Firebase Realtime Database", "url", cfg.Firebase.DatabaseURL)
		return db, func() { db.Close() }, nil

	case "postgres":
		conn, err := sqlx.ConnectContext(ctx, "postgres", cfg.Realtime.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		db := realtime.NewPostgresStore(conn, cfg.Realtime.Postgres.Channel)
		if err := db.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
		if cfg.Realtime.Postgres.Listen {
			if err := db.Listen(cfg.Realtime.Postgres.DSN); err != nil {
				db.Close()
				conn.Close()
				return nil, nil, err
			}
		}
		logger.Info("Using Postgres realtime store", "channel", cfg.Realtime.Postgres.Channel, "listen", cfg.Realtime.Postgres.Listen)
		return db, func() {
			db.Close()
			conn.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unsupported realtime backend %q", cfg.Realtime.Backend)
}

func openStorage(ctx context.Context, cfg *config.Config, app *firebase.App) (storage.StorageInterface, *storage.MockStorageService, error) {
	switch cfg.Storage.Type {
	case "mock":
		logger.Info("Using mock storage (local filesystem)", "upload_dir", cfg.Storage.UploadDir)
		mock, err := storage.NewMockStorageService(cfg.Storage.BaseURL, cfg.Storage.UploadDir, cfg.Storage.SigningSecret)
		if err != nil {
			return nil, nil, err
		}
		return mock, mock, nil
	case "firebase":
		fs, err := storage.NewFirebaseStorageService(ctx, app, cfg.Firebase.StorageBucket)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using Firebase Cloud Storage", "bucket", cfg.Firebase.StorageBucket)
		return fs, nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage type %q", cfg.Storage.Type)
}

func openLastSeen(cfg *config.Config) (statussync.LastSeenStore, func(), error) {
	if cfg.Sync.StateDB == "" {
		logger.Info("Last-seen statuses are kept in memory")
		return statussync.NewMemoryLastSeenStore(), func() {}, nil
	}
	s, err := statussync.NewSQLiteLastSeenStore(cfg.Sync.StateDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open last-seen store: %w", err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			logger.Warn("Failed to close last-seen store", "error", err)
		}
	}, nil
}
