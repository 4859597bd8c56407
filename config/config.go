// Package config loads and validates the YAML configuration used by
// the pairstream CLI. Credentials are never stored in the file itself;
// the file names an environment variable and the credential is resolved
// at load time.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/pairstream/endpoint"
	"github.com/c360/pairstream/stream"
)

// Duration wraps time.Duration so YAML values can be written in Go
// duration syntax ("5s", "250ms").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// StreamConfig names one subscription in the config file.
type StreamConfig struct {
	ID     string `yaml:"id"`
	Target string `yaml:"target"`
}

// File is the full CLI configuration.
type File struct {
	// BaseURL is the backend base URL.
	BaseURL string `yaml:"base_url"`
	// CredentialEnv names the environment variable holding the bearer
	// credential.
	CredentialEnv string `yaml:"credential_env"`

	// ReconnectDelay and KeepAliveInterval are optional; absent fields
	// leave the stream package defaults in effect.
	ReconnectDelay    *Duration `yaml:"reconnect_delay,omitempty"`
	KeepAliveInterval *Duration `yaml:"keep_alive_interval,omitempty"`

	// LogLevel is debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level,omitempty"`

	Streams []StreamConfig `yaml:"streams"`
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates configuration bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.LogLevel == "" {
		f.LogLevel = "info"
	}
	for i := range f.Streams {
		if f.Streams[i].ID == "" {
			f.Streams[i].ID = fmt.Sprintf("stream-%d", i+1)
		}
	}
}

// Validate fails fast on configurations the client could never run
// with. The credential itself is checked later, by Credential.
func (f *File) Validate() error {
	if err := endpoint.ValidateBaseURL(f.BaseURL); err != nil {
		return err
	}
	if f.CredentialEnv == "" {
		return fmt.Errorf("credential_env is required")
	}
	if len(f.Streams) == 0 {
		return fmt.Errorf("at least one stream is required")
	}
	seen := make(map[string]struct{}, len(f.Streams))
	for _, s := range f.Streams {
		if err := endpoint.ValidateTarget(s.Target); err != nil {
			return fmt.Errorf("stream %q: %w", s.ID, err)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate stream id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	if _, err := f.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Credential resolves the bearer credential from the configured
// environment variable.
func (f *File) Credential() (string, error) {
	cred := os.Getenv(f.CredentialEnv)
	if cred == "" {
		return "", fmt.Errorf("environment variable %s is not set", f.CredentialEnv)
	}
	return cred, nil
}

// SlogLevel maps the configured log level onto slog.
func (f *File) SlogLevel() (slog.Level, error) {
	switch f.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log_level %q", f.LogLevel)
	}
}

// ReconnectDelayPtr converts the optional field for stream.Config.
func (f *File) ReconnectDelayPtr() *time.Duration {
	if f.ReconnectDelay == nil {
		return nil
	}
	return stream.Duration(time.Duration(*f.ReconnectDelay))
}

// KeepAliveIntervalPtr converts the optional field for stream.Config.
func (f *File) KeepAliveIntervalPtr() *time.Duration {
	if f.KeepAliveInterval == nil {
		return nil
	}
	return stream.Duration(time.Duration(*f.KeepAliveInterval))
}
