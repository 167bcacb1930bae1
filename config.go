package canvass

import (
	"os"
	"strings"
	"time"

	"github.com/hyperengineering/canvass/internal/profile"
)

// Config configures a canvass application instance.
type Config struct {
	// LocalPath is the path to the local SQLite database.
	// If empty, derived from Profile.
	LocalPath string

	// Profile is the local profile to operate against.
	// If empty, resolved using profile resolution (explicit > CANVASS_PROFILE env > "default").
	Profile string

	// RemoteURL is the base URL of a canvass document server.
	// If empty and RemoteDir is empty, an in-process document store is used.
	RemoteURL string

	// RemoteDir is a directory used as a file-backed document store.
	RemoteDir string

	// APIKey authenticates with the document server.
	APIKey string

	// SyncInterval is how often the batched sync window runs.
	// Defaults to 1 hour.
	SyncInterval time.Duration

	// AutoSync enables the periodic sync window.
	// Defaults to true.
	AutoSync bool

	// SignOutSyncTimeout bounds the pre-sign-out sync. Defaults to 10 seconds.
	SignOutSyncTimeout time.Duration

	// GuestSyncTimeout bounds the guest conversion upload. Defaults to 30 seconds.
	GuestSyncTimeout time.Duration

	// PollInterval is the tick used while waiting on sync status. Defaults to 500ms.
	PollInterval time.Duration

	// CacheDir is removed during sign-out. Defaults to the profile cache dir.
	CacheDir string

	// JWTSecret signs local session tokens.
	JWTSecret string

	// LogLevel is passed to the logger ("debug", "info", "warn", "error").
	LogLevel string

	// Debug enables verbose logging of all remote document traffic.
	Debug bool

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Profile:            profile.Default,
		LocalPath:          profile.DBPath(profile.Default),
		CacheDir:           profile.CacheDir(profile.Default),
		SyncInterval:       time.Hour,
		AutoSync:           true,
		SignOutSyncTimeout: 10 * time.Second,
		GuestSyncTimeout:   30 * time.Second,
		PollInterval:       500 * time.Millisecond,
		LogLevel:           "info",
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	CANVASS_DB_PATH       → LocalPath
//	CANVASS_PROFILE       → Profile
//	CANVASS_REMOTE_URL    → RemoteURL
//	CANVASS_REMOTE_DIR    → RemoteDir
//	CANVASS_API_KEY       → APIKey
//	CANVASS_SYNC_INTERVAL → SyncInterval (Go duration, e.g. "30m")
//	CANVASS_JWT_SECRET    → JWTSecret
//	CANVASS_LOG_LEVEL     → LogLevel
//	CANVASS_DEBUG         → Debug (any non-empty value enables)
//	CANVASS_DEBUG_LOG     → DebugLogPath
func ConfigFromEnv() Config {
	cfg := Config{
		LocalPath:    os.Getenv("CANVASS_DB_PATH"),
		Profile:      os.Getenv("CANVASS_PROFILE"),
		RemoteURL:    os.Getenv("CANVASS_REMOTE_URL"),
		RemoteDir:    os.Getenv("CANVASS_REMOTE_DIR"),
		APIKey:       os.Getenv("CANVASS_API_KEY"),
		JWTSecret:    os.Getenv("CANVASS_JWT_SECRET"),
		LogLevel:     strings.ToLower(os.Getenv("CANVASS_LOG_LEVEL")),
		Debug:        os.Getenv("CANVASS_DEBUG") != "",
		DebugLogPath: os.Getenv("CANVASS_DEBUG_LOG"),
		AutoSync:     true,
	}
	if v := os.Getenv("CANVASS_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncInterval = d
		}
	}
	return cfg
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.LocalPath == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to SQLite database"}
	}

	if c.Profile != "" {
		if err := profile.Validate(c.Profile); err != nil {
			return &ValidationError{Field: "Profile", Message: err.Error()}
		}
	}

	if c.RemoteURL != "" && c.RemoteDir != "" {
		return &ValidationError{Field: "RemoteDir", Message: "cannot be combined with RemoteURL"}
	}

	if c.RemoteURL != "" && c.APIKey == "" {
		return &ValidationError{Field: "APIKey", Message: "required when RemoteURL is set"}
	}

	if c.SyncInterval < 0 {
		return &ValidationError{Field: "SyncInterval", Message: "must be non-negative"}
	}
	if c.SignOutSyncTimeout < 0 || c.GuestSyncTimeout < 0 {
		return &ValidationError{Field: "Timeout", Message: "must be non-negative"}
	}
	if c.PollInterval < 0 {
		return &ValidationError{Field: "PollInterval", Message: "must be non-negative"}
	}

	return nil
}

// IsOffline returns true if no shared document store is configured.
func (c *Config) IsOffline() bool {
	return c.RemoteURL == "" && c.RemoteDir == ""
}

// WithDefaults fills in default values for unset fields.
// Profile resolution: explicit Profile field > CANVASS_PROFILE env > "default".
// LocalPath and CacheDir are derived from the resolved profile if not set.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Profile == "" {
		resolved, err := profile.Resolve("")
		if err == nil {
			c.Profile = resolved
		} else {
			c.Profile = profile.Default
		}
	}

	if c.LocalPath == "" {
		c.LocalPath = profile.DBPath(c.Profile)
	}
	if c.CacheDir == "" {
		c.CacheDir = profile.CacheDir(c.Profile)
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = defaults.SyncInterval
	}
	if c.SignOutSyncTimeout == 0 {
		c.SignOutSyncTimeout = defaults.SignOutSyncTimeout
	}
	if c.GuestSyncTimeout == 0 {
		c.GuestSyncTimeout = defaults.GuestSyncTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}

	return c
}
