package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/willibrandon/copgy/internal/pg"
)

// EnvPrefix prefixes every environment variable copgy reads, e.g.
// COPGY_SOURCE_URL for source.url.
const EnvPrefix = "COPGY"

// MaxBufferSize caps copy.buffer_size.
const MaxBufferSize = 64 << 20

// Config represents the root configuration structure
type Config struct {
	Source         EndpointConfig `mapstructure:"source"`
	Destination    EndpointConfig `mapstructure:"destination"`
	PromptPassword bool           `mapstructure:"prompt_password"`
	ValidateSQL    bool           `mapstructure:"validate_sql"`
	Copy           CopyConfig     `mapstructure:"copy"`
	StepTimeout    time.Duration  `mapstructure:"step_timeout"`
	ConnectTimeout time.Duration  `mapstructure:"connect_timeout"`
	TLS            TLSConfig      `mapstructure:"tls"`
	Log            LogConfig      `mapstructure:"log"`
	Debug          bool           `mapstructure:"debug"`
}

// EndpointConfig describes one side of a run.
type EndpointConfig struct {
	URL             string `mapstructure:"url"`
	PasswordCommand string `mapstructure:"password_command"`
}

// CopyConfig tunes the copy stage.
type CopyConfig struct {
	BufferSize    int   `mapstructure:"buffer_size"`    // bytes per transfer unit (default: 64KiB)
	ProgressEvery int64 `mapstructure:"progress_every"` // bytes between progress events, 0 disables
}

// TLSConfig selects transport security for both connections.
type TLSConfig struct {
	Mode     string `mapstructure:"mode"`      // insecure, verify-full or disable
	RootCert string `mapstructure:"root_cert"` // PEM bundle for verify-full
}

// LogConfig holds logging settings.
type LogConfig struct {
	File string `mapstructure:"file"` // empty logs to stderr
}

// New returns a viper instance with copgy's defaults and environment
// binding. Callers bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)
	return v
}

// Load reads the optional config file and .env file into v and returns the
// validated configuration. If configPath is empty, default locations are
// searched and a missing file is not an error. Entries of the .env file at
// dotenvPath fill in COPGY_ and PG variables that are not already set.
func Load(v *viper.Viper, configPath, dotenvPath string) (*Config, error) {
	if err := loadDotenv(dotenvPath); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("copgy")
		v.SetConfigType("yaml")

		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "copgy"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "copgy"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.TLS.RootCert = expandPath(cfg.TLS.RootCert)
	cfg.Log.File = expandPath(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. Connection URLs are checked separately by
// RequireEndpoints because not every command connects.
func (c *Config) Validate() error {
	if c.Copy.BufferSize < 1 || c.Copy.BufferSize > MaxBufferSize {
		return fmt.Errorf("copy.buffer_size must be between 1 and %d, got %d", MaxBufferSize, c.Copy.BufferSize)
	}
	if c.Copy.ProgressEvery < 0 {
		return fmt.Errorf("copy.progress_every must be >= 0, got %d", c.Copy.ProgressEvery)
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step_timeout must be >= 0, got %v", c.StepTimeout)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must be >= 0, got %v", c.ConnectTimeout)
	}

	mode, err := pg.ParseTLSMode(c.TLS.Mode)
	if err != nil {
		return fmt.Errorf("tls.mode: %w", err)
	}
	if c.TLS.RootCert != "" && mode != pg.TLSVerifyFull {
		return fmt.Errorf("tls.root_cert is only used with tls.mode verify-full, got %s", mode)
	}

	return nil
}

// RequireEndpoints reports a missing source or destination URL.
func (c *Config) RequireEndpoints() error {
	var missing []string
	if c.Source.URL == "" {
		missing = append(missing, "source.url (--source-db-url or COPGY_SOURCE_URL)")
	}
	if c.Destination.URL == "" {
		missing = append(missing, "destination.url (--dest-db-url or COPGY_DESTINATION_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required connection settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PGOptions returns the connection options for one endpoint.
func (c *Config) PGOptions(e EndpointConfig) pg.Options {
	mode, _ := pg.ParseTLSMode(c.TLS.Mode)
	return pg.Options{
		TLSMode:         mode,
		RootCert:        c.TLS.RootCert,
		PasswordCommand: e.PasswordCommand,
		PromptPassword:  c.PromptPassword,
		ConnectTimeout:  c.ConnectTimeout,
	}
}

// applyDefaults sets default configuration values.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("source.url", "")
	v.SetDefault("source.password_command", "")
	v.SetDefault("destination.url", "")
	v.SetDefault("destination.password_command", "")
	v.SetDefault("prompt_password", false)

	v.SetDefault("validate_sql", true)
	v.SetDefault("copy.buffer_size", 64*1024)
	v.SetDefault("copy.progress_every", 16<<20)
	v.SetDefault("step_timeout", "0s")
	v.SetDefault("connect_timeout", "30s")

	v.SetDefault("tls.mode", string(pg.TLSInsecure))
	v.SetDefault("tls.root_cert", "")

	v.SetDefault("log.file", "")
	v.SetDefault("debug", false)
}

// loadDotenv exports COPGY_ and PG entries of path that are not already set
// in the environment. A missing file is ignored.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to access %s: %w", path, err)
	}
	if info.IsDir() {
		return nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for key, value := range values {
		if !strings.HasPrefix(key, EnvPrefix+"_") && !strings.HasPrefix(key, "PG") {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to export %s: %w", key, err)
		}
	}
	return nil
}

// expandPath expands a leading ~/ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
