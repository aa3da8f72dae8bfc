package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/lsm/agentauth/internal/credential"
)

const (
	// DirEnv overrides the default configuration directory.
	DirEnv = "AGENTAUTH_DIR"

	SettingsFileName    = "settings.yaml"
	CredentialsFileName = "credentials.yaml"

	DefaultListenAddr  = "127.0.0.1:8090"
	DefaultMetricsAddr = ":9090"
)

// ErrNotConfigured is returned when a configuration file does not exist.
var ErrNotConfigured = errors.New("agent is not configured")

// Settings is the non-secret agent configuration.
type Settings struct {
	ServerURL   string          `yaml:"serverUrl"`
	ListenAddr  string          `yaml:"listenAddr,omitempty"`
	MetricsAddr string          `yaml:"metricsAddr,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rateLimit,omitempty"`

	// CredentialsFile overrides the credential file location. Relative
	// paths resolve against the configuration directory.
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
}

// RateLimitConfig limits requests sent to the server. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// CredentialFile is the persisted form of credential.Data.
type CredentialFile struct {
	Scheme string            `yaml:"scheme"`
	Data   map[string]string `yaml:"data,omitempty"`
}

// FromData converts provider data into its persisted form.
func FromData(d *credential.Data) *CredentialFile {
	return &CredentialFile{Scheme: string(d.Scheme()), Data: d.Values()}
}

// ToData converts the persisted form back into provider data.
func (f *CredentialFile) ToData() (*credential.Data, error) {
	if f.Scheme == "" {
		return nil, errors.New("credential file missing 'scheme' field")
	}
	return credential.RestoreData(credential.Scheme(f.Scheme), f.Data), nil
}

// Dir returns the configuration directory: flagDir if set, then
// AGENTAUTH_DIR, then ~/.agentauth.
func Dir(flagDir string) (string, error) {
	if flagDir != "" {
		return flagDir, nil
	}
	if env := os.Getenv(DirEnv); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".agentauth"), nil
}

// LoadSettings reads and validates settings, applying defaults.
func LoadSettings(path string) (*Settings, error) {
	var s Settings
	if err := readYAML(path, &s); err != nil {
		return nil, err
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// SaveSettings validates and writes settings atomically.
func SaveSettings(path string, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return writeYAML(path, s, 0o644)
}

func (s *Settings) applyDefaults() {
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.MetricsAddr == "" {
		s.MetricsAddr = DefaultMetricsAddr
	}
}

// Validate checks that the server URL is an absolute http(s) URL.
func (s *Settings) Validate() error {
	if s.ServerURL == "" {
		return errors.New("serverUrl is required")
	}
	u, err := url.Parse(s.ServerURL)
	if err != nil {
		return fmt.Errorf("serverUrl: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("serverUrl %q must be an absolute http or https URL", s.ServerURL)
	}
	if s.RateLimit.RequestsPerSecond < 0 || s.RateLimit.Burst < 0 {
		return errors.New("rateLimit values must not be negative")
	}
	return nil
}

// CredentialsPath returns the credential file location for dir.
func (s *Settings) CredentialsPath(dir string) string {
	switch {
	case s.CredentialsFile == "":
		return filepath.Join(dir, CredentialsFileName)
	case filepath.IsAbs(s.CredentialsFile):
		return s.CredentialsFile
	default:
		return filepath.Join(dir, s.CredentialsFile)
	}
}

// Server returns the parsed server URL.
func (s *Settings) Server() (*url.URL, error) {
	return url.Parse(s.ServerURL)
}

// LoadCredentials reads the credential file.
func LoadCredentials(path string) (*CredentialFile, error) {
	var f CredentialFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	if f.Scheme == "" {
		return nil, fmt.Errorf("credential file %s missing 'scheme' field", path)
	}
	return &f, nil
}

// SaveCredentials writes the credential file atomically, readable by the owner only.
func SaveCredentials(path string, f *CredentialFile) error {
	if f.Scheme == "" {
		return errors.New("credential file missing 'scheme' field")
	}
	return writeYAML(path, f, 0o600)
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", ErrNotConfigured, path)
		}
		return fmt.Errorf("read file: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse yaml %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic is replaced in tests.
var writeFileAtomic = atomic.WriteFile

func writeYAML(path string, v any, perm os.FileMode) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	// atomic.WriteFile gives the replacement the mode of the file it replaces.
	if err := os.Chmod(path, perm); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := writeFileAtomic(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}
