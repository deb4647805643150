package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	Storage   StorageConfig   `yaml:"storage"`
	JWT       JWTConfig       `yaml:"jwt"`
	Admin     AdminConfig     `yaml:"admin"`
	SendGrid  SendGridConfig  `yaml:"sendgrid"`
	Sync      SyncConfig      `yaml:"sync"`
	Allocator AllocatorConfig `yaml:"allocator"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// GRPCConfig contains the health endpoint settings. Port 0 disables it.
type GRPCConfig struct {
	Port int `yaml:"port"`
}

// RealtimeConfig selects the realtime database backend
type RealtimeConfig struct {
	Backend             string         `yaml:"backend"` // "memory", "firebase" or "postgres"
	PollIntervalSeconds int            `yaml:"poll_interval_seconds"`
	Postgres            PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN     string `yaml:"dsn"`
	Channel string `yaml:"channel"`
	Listen  bool   `yaml:"listen"`
}

type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id"`
	DatabaseURL     string `yaml:"database_url"`
	StorageBucket   string `yaml:"storage_bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	Type             string `yaml:"type"`       // "mock" or "firebase"
	UploadDir        string `yaml:"upload_dir"` // For mock storage
	BaseURL          string `yaml:"base_url"`   // Server base URL for mock URLs
	MaxFileSize      int64  `yaml:"max_file_size_mb"`
	URLExpiryMinutes int    `yaml:"url_expiry_minutes"`
	SigningSecret    string `yaml:"signing_secret"` // For mock storage URLs
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// AdminConfig holds the single administrator credential
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// SyncConfig contains registration status synchronizer settings
type SyncConfig struct {
	NotificationTTLSeconds int    `yaml:"notification_ttl_seconds"`
	StateDB                string `yaml:"state_db"` // SQLite file for last-seen status; empty keeps it in memory
}

type AllocatorConfig struct {
	Timezone string `yaml:"timezone"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text" or "tint"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Reconcile string `yaml:"reconcile"`
	Repair    bool   `yaml:"repair"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file. A .env file next to the
// working directory is loaded first so its values take part in the
// environment overrides.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes, applies environment
// overrides and defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("GRPC_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.GRPC.Port)
	}

	// Realtime
	if val := os.Getenv("REALTIME_BACKEND"); val != "" {
		c.Realtime.Backend = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		c.Realtime.Postgres.DSN = val
	}

	// Firebase
	if val := os.Getenv("FIREBASE_PROJECT_ID"); val != "" {
		c.Firebase.ProjectID = val
	}
	if val := os.Getenv("FIREBASE_DATABASE_URL"); val != "" {
		c.Firebase.DatabaseURL = val
	}
	if val := os.Getenv("FIREBASE_STORAGE_BUCKET"); val != "" {
		c.Firebase.StorageBucket = val
	}
	if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
		c.Firebase.CredentialsFile = val
	}

	// Storage
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		c.Storage.Type = val
	}
	if val := os.Getenv("UPLOAD_DIR"); val != "" {
		c.Storage.UploadDir = val
	}
	if val := os.Getenv("STORAGE_SIGNING_SECRET"); val != "" {
		c.Storage.SigningSecret = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Admin
	if val := os.Getenv("ADMIN_USERNAME"); val != "" {
		c.Admin.Username = val
	}
	if val := os.Getenv("ADMIN_PASSWORD_HASH"); val != "" {
		c.Admin.PasswordHash = val
	}

	// SendGrid
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}

	// Sync
	if val := os.Getenv("SYNC_STATE_DB"); val != "" {
		c.Sync.StateDB = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}
	if c.Realtime.Backend == "" {
		c.Realtime.Backend = "memory"
	}
	if c.Realtime.PollIntervalSeconds == 0 {
		c.Realtime.PollIntervalSeconds = 2
	}
	if c.Realtime.Postgres.Channel == "" {
		c.Realtime.Postgres.Channel = "realtime_changes"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "mock"
	}
	if c.Storage.MaxFileSize == 0 {
		c.Storage.MaxFileSize = 5
	}
	if c.Storage.URLExpiryMinutes == 0 {
		c.Storage.URLExpiryMinutes = 60
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.SendGrid.FromName == "" {
		c.SendGrid.FromName = "Membership Office"
	}
	if c.Sync.NotificationTTLSeconds == 0 {
		c.Sync.NotificationTTLSeconds = 7
	}
	if c.Allocator.Timezone == "" {
		c.Allocator.Timezone = "Local"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Scheduler.Reconcile == "" {
		c.Scheduler.Reconcile = "0 */15 * * * *" // every 15 minutes
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPC.Port)
	}
	if c.GRPC.Port != 0 && c.GRPC.Port == c.Server.Port {
		return fmt.Errorf("grpc port must differ from server port")
	}

	switch c.Realtime.Backend {
	case "memory":
	case "firebase":
		if c.Firebase.DatabaseURL == "" {
			return fmt.Errorf("firebase database url is required for the firebase backend")
		}
	case "postgres":
		if c.Realtime.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown realtime backend: %q", c.Realtime.Backend)
	}

	switch c.Storage.Type {
	case "mock":
		if c.Storage.UploadDir == "" {
			return fmt.Errorf("upload directory is required")
		}
		if c.Storage.SigningSecret == "" {
			return fmt.Errorf("storage signing secret is required for mock storage")
		}
	case "firebase":
		if c.Firebase.StorageBucket == "" {
			return fmt.Errorf("firebase storage bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", c.Storage.Type)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	if c.Admin.PasswordHash != "" && !strings.HasPrefix(c.Admin.PasswordHash, "$2") {
		return fmt.Errorf("admin password hash must be a bcrypt hash")
	}

	if c.Sync.NotificationTTLSeconds < 0 {
		return fmt.Errorf("invalid notification ttl: %d", c.Sync.NotificationTTLSeconds)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.GRPC.Port)
}

// Location resolves the allocator timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Allocator.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid allocator timezone %q: %w", c.Allocator.Timezone, err)
	}
	return loc, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Realtime.PollIntervalSeconds) * time.Second
}

func (c *Config) NotificationTTL() time.Duration {
	return time.Duration(c.Sync.NotificationTTLSeconds) * time.Second
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenExpiry) * time.Minute
}

func (c *Config) URLExpiry() time.Duration {
	return time.Duration(c.Storage.URLExpiryMinutes) * time.Minute
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// MaxUploadBytes is the proof-of-payment upload limit.
func (c *Config) MaxUploadBytes() int64 {
	return c.Storage.MaxFileSize << 20
}
