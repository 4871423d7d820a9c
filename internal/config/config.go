// Package config defines process configuration and how it is loaded.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"voicecal/internal/normalize"
)

// Calendar backends.
const (
	BackendGoogle = "google"
	BackendCalDAV = "caldav"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Timezone is the IANA zone the user speaks in.
	Timezone string `koanf:"timezone"`
	// Language is the transcription language hint.
	Language string `koanf:"language"`

	// Placeholders lists YYYY-MM months the model is known to fall back to.
	Placeholders []string      `koanf:"placeholders"`
	MinLead      time.Duration `koanf:"min_lead"`

	// Backend selects the calendar: google or caldav.
	Backend    string `koanf:"backend"`
	CalendarID string `koanf:"calendar_id"`

	OpenAIAPIKey       string `koanf:"openai_api_key"`
	OpenAIBaseURL      string `koanf:"openai_base_url"`
	CompletionModel    string `koanf:"completion_model"`
	TranscriptionModel string `koanf:"transcription_model"`

	GoogleClientID     string `koanf:"google_client_id"`
	GoogleClientSecret string `koanf:"google_client_secret"`
	TokenFile          string `koanf:"token_file"`

	ICloudEndpoint string `koanf:"icloud_endpoint"`
	ICloudUsername string `koanf:"icloud_username"`
	ICloudPassword string `koanf:"icloud_password"`
	ICloudCalendar string `koanf:"icloud_calendar"`

	// Addr is the HTTP listen address for serve.
	Addr           string   `koanf:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Timezone:           "Asia/Karachi",
		Language:           "ur",
		Placeholders:       []string{"2023-10"},
		MinLead:            normalize.DefaultLead,
		Backend:            BackendGoogle,
		CalendarID:         "primary",
		CompletionModel:    "gpt-4o",
		TranscriptionModel: "whisper-1",
		TokenFile:          "token.json",
		ICloudEndpoint:     "https://caldav.icloud.com/",
		Addr:               ":8080",
		AllowedOrigins:     []string{"*"},
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGoogle, BackendCalDAV:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	loc, err := c.Location()
	if err != nil {
		return err
	}
	ps, err := c.PlaceholderSet()
	if err != nil {
		return err
	}
	now := time.Now()
	for _, p := range ps {
		if !p.Stale(now, loc) {
			return fmt.Errorf("%w: placeholder %s is not in the past", ErrInvalidConfig, p)
		}
	}
	if c.MinLead < 0 {
		return fmt.Errorf("%w: min_lead must not be negative", ErrInvalidConfig)
	}
	if c.Backend == BackendCalDAV && c.ICloudCalendar == "" {
		return fmt.Errorf("%w: icloud_calendar is required for the caldav backend", ErrInvalidConfig)
	}
	return nil
}

// Location loads the configured zone.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return nil, fmt.Errorf("%w: timezone must not be empty", ErrInvalidConfig)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// PlaceholderSet parses the placeholder guard months.
func (c *Config) PlaceholderSet() ([]normalize.Placeholder, error) {
	ps, err := normalize.ParsePlaceholders(c.Placeholders)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return ps, nil
}
