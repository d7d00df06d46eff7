package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config keys.
const (
	KeyDatabasePath     = "database.path"
	KeyAPIKey           = "firebase.api_key"
	KeyProjectID        = "firebase.project_id"
	KeyDatabaseID       = "firebase.database_id"
	KeyCredentialsFile  = "firebase.credentials_file"
	KeyBatchSize        = "sync.batch_size"
	KeySyncTimeout      = "sync.timeout"
	KeyLogLevel         = "logging.level"
	KeyLogFormat        = "logging.format"
	DefaultDatabasePath = "~/.local/share/tally/tally.db"
)

// Config is the resolved application configuration.
type Config struct {
	DatabasePath string `validate:"required"`
	Firebase     FirebaseConfig
	Sync         SyncConfig
	Logging      LoggingConfig
}

// FirebaseConfig identifies the Firebase project and how to reach it.
type FirebaseConfig struct {
	APIKey          string
	ProjectID       string
	DatabaseID      string
	CredentialsFile string
}

// SyncConfig tunes reconciliation.
type SyncConfig struct {
	Timeout   time.Duration `validate:"gte=0"`
	BatchSize int           `validate:"gte=1,lte=500"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Format string `validate:"oneof=console json"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath)
	v.SetDefault(KeyDatabaseID, "(default)")
	v.SetDefault(KeyBatchSize, 500)
	v.SetDefault(KeySyncTimeout, 2*time.Minute)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// Load resolves configuration from v. Values come from the config file or
// TALLY_ environment variables first, then FIREBASE_* environment variables,
// then defaults.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath: ExpandPath(v.GetString(KeyDatabasePath)),
		Firebase: FirebaseConfig{
			APIKey:          v.GetString(KeyAPIKey),
			ProjectID:       v.GetString(KeyProjectID),
			DatabaseID:      v.GetString(KeyDatabaseID),
			CredentialsFile: ExpandPath(v.GetString(KeyCredentialsFile)),
		},
		Sync: SyncConfig{
			BatchSize: v.GetInt(KeyBatchSize),
			Timeout:   v.GetDuration(KeySyncTimeout),
		},
		Logging: LoggingConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	// Override with direct environment variables if not set
	if cfg.Firebase.APIKey == "" {
		cfg.Firebase.APIKey = os.Getenv("FIREBASE_API_KEY")
	}
	if cfg.Firebase.ProjectID == "" {
		cfg.Firebase.ProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	}
	if cfg.Firebase.CredentialsFile == "" {
		cfg.Firebase.CredentialsFile = ExpandPath(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Remote settings are checked by RequireRemote.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s fails %q (got %v)", common.ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return nil
}

// RequireRemote reports which settings are missing for commands that talk to
// Firebase.
func (c *Config) RequireRemote() error {
	var missing []error
	if c.Firebase.ProjectID == "" {
		missing = append(missing, fmt.Errorf("%w: %s (or FIREBASE_PROJECT_ID)", common.ErrMissingConfig, KeyProjectID))
	}
	if c.Firebase.APIKey == "" {
		missing = append(missing, fmt.Errorf("%w: %s (or FIREBASE_API_KEY)", common.ErrMissingConfig, KeyAPIKey))
	}
	return errors.Join(missing...)
}
