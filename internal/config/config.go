package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GoogleConfig holds the Google Calendar provider settings. OAuth tokens are
// provisioned out of band and read from TokenFile; this service never runs
// the consent flow itself.
type GoogleConfig struct {
	// ClientID / ClientSecret identify the OAuth application.
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`

	// TokenFile is a JSON-encoded oauth2.Token on disk.
	TokenFile string `yaml:"token_file" json:"token_file"`

	// CalendarID selects the calendar to scan (e.g. "primary").
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
}

// ICSConfig describes a single ICS subscription source used as an
// alternative calendar backend.
type ICSConfig struct {
	ID   string `yaml:"id" json:"id"`
	URL  string `yaml:"url" json:"url"`
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for "today" and all date math
	// (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "0 6 * * *") for
	// periodic recomputation of the next available date.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// FreeDays is how many consecutive days must be free of events for a
	// date to count as available.
	FreeDays int `yaml:"free_days" json:"free_days"`

	// IncludeWeekends controls whether Saturday/Sunday participate in the
	// availability scan and the calendar grid. When false, weekend days
	// neither break nor count toward a free run.
	IncludeWeekends bool `yaml:"include_weekends" json:"include_weekends"`

	// EventsPerDay is the busy threshold: a day with at least this many
	// events is considered occupied.
	EventsPerDay int `yaml:"events_per_day" json:"events_per_day"`

	// MaxSearchYears bounds the year-by-year search. A perpetually full
	// calendar yields "no availability" instead of an endless scan.
	MaxSearchYears int `yaml:"max_search_years" json:"max_search_years"`

	// DateFormat is a Go reference layout for displayed dates.
	DateFormat string `yaml:"date_format" json:"date_format"`

	// DateFallback is shown when no availability can be computed.
	DateFallback string `yaml:"date_fallback" json:"date_fallback"`

	// ContactEmail backs the contact link on the next-available day.
	ContactEmail string `yaml:"contact_email" json:"contact_email"`

	// CachePath is the SQLite file backing the availability cache. Empty
	// means an in-memory cache only.
	CachePath string `yaml:"cache_path" json:"cache_path"`

	// Google configures the Google Calendar backend. Takes precedence over
	// ICS sources when a calendar_id is set.
	Google *GoogleConfig `yaml:"google,omitempty" json:"google,omitempty"`

	// ICS lists subscribed ICS sources for the feed-based backend.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "UTC",
		RefreshCron:     "0 6 * * *",
		FreeDays:        7,
		IncludeWeekends: true,
		EventsPerDay:    1,
		MaxSearchYears:  5,
		DateFormat:      "January 2, 2006",
		DateFallback:    "Contact for availability",
		ICS:             []ICSConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 6 * * *"
	}
	if c.FreeDays <= 0 {
		c.FreeDays = 7
	}
	if c.EventsPerDay <= 0 {
		c.EventsPerDay = 1
	}
	if c.MaxSearchYears <= 0 {
		c.MaxSearchYears = 5
	}
	if c.DateFormat == "" {
		c.DateFormat = "January 2, 2006"
	}
	if c.DateFallback == "" {
		c.DateFallback = "Contact for availability"
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// CalendarID returns the configured calendar identifier, or "" when no
// Google calendar has been selected.
func (c *Config) CalendarID() string {
	if c.Google == nil {
		return ""
	}
	return c.Google.CalendarID
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create parent directory if needed, write
//     a default config with 0600 perms, and return the defaults.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// The write is atomic (temp file + rename) and the final file carries 0600
// permissions since it may include OAuth client secrets.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".nextavail-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
