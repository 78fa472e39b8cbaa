package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/synth"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Store    StoreConfig       `yaml:"store"`
	Images   ImagesConfig      `yaml:"images"`
	Provider ProviderConfig    `yaml:"provider"`
	Git      GitConfig         `yaml:"git"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Images.Validate(); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if err := c.Git.Validate(); err != nil {
		return fmt.Errorf("git: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// TargetConfig names one storage root.
type TargetConfig struct {
	Name string `yaml:"name"`
	Root string `yaml:"root"`
}

// Validate validates the target.
func (c TargetConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Root, validation.Required),
	)
}

// StoreConfig lists the storage targets in scan order. The first one is
// canonical.
type StoreConfig struct {
	Targets       []TargetConfig `yaml:"targets"`
	ExcerptLength int            `yaml:"excerpt_length"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Targets, validation.Required),
		validation.Field(&c.ExcerptLength, validation.Min(20)),
	); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// ImagesConfig holds image storage configuration.
type ImagesConfig struct {
	Root           string `yaml:"root"`
	URLPrefix      string `yaml:"url_prefix"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	MaxWidth       int    `yaml:"max_width"`
}

// Validate validates the images configuration.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.URLPrefix, validation.Required),
		validation.Field(&c.MaxUploadBytes, validation.Min(int64(1024))),
		validation.Field(&c.MaxWidth, validation.Min(0)),
	)
}

// ProviderConfig selects the generative text backend.
//
// An empty APIKey is valid: the server starts and generation requests
// report missing credentials.
type ProviderConfig struct {
	Kind        string        `yaml:"kind"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// Profiles optionally points at a YAML file replacing the built-in
	// category table.
	Profiles string `yaml:"profiles"`
}

// Validate validates the provider configuration.
func (c *ProviderConfig) Validate() error {
	if c.Kind == "" {
		c.Kind = synth.KindOpenAI
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.In(synth.KindOpenAI, synth.KindGemini)),
		validation.Field(&c.MaxTokens, validation.Min(0)),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// GitConfig holds the deploy working copy configuration.
type GitConfig struct {
	RepoRoot   string        `yaml:"repo_root"`
	Remote     string        `yaml:"remote"`
	Branch     string        `yaml:"branch"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// Validate validates the git configuration.
func (c *GitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RepoRoot, validation.Required),
		validation.Field(&c.Remote, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.BatchDelay, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 3001,
			},
		},
		Store: StoreConfig{
			Targets: []TargetConfig{
				{Name: "project", Root: "./src/data/blogs"},
			},
			ExcerptLength: 150,
		},
		Images: ImagesConfig{
			Root:           "./public/images/blog",
			URLPrefix:      "/images/blog",
			MaxUploadBytes: 5 << 20,
		},
		Provider: ProviderConfig{
			Kind:        synth.KindOpenAI,
			MaxTokens:   synth.DefaultMaxTokens,
			Temperature: synth.DefaultTemperature,
			Timeout:     synth.DefaultTimeout,
		},
		Git: GitConfig{
			RepoRoot:   ".",
			Remote:     "origin",
			Branch:     "main",
			BatchDelay: time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "./folio.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
