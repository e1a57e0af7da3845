// Package config handles application configuration from environment
// variables and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gazette_bot/internal/model"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string  `yaml:"telegram_bot_token"`
	DatabasePath     string  `yaml:"database_path"`
	LogLevel         string  `yaml:"log_level"`
	AllowedUsers     []int64 `yaml:"allowed_users"`

	CacheDir        string   `yaml:"cache_dir"`
	PublisherURL    string   `yaml:"publisher_url"`
	EditionBase     int      `yaml:"edition_base"`
	DefaultKeywords []string `yaml:"default_keywords"`

	NotifyAt     string `yaml:"notify_at"` // HH:MM
	Timezone     string `yaml:"timezone"`
	RunOnStartup bool   `yaml:"run_on_startup"`

	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	RenderTimeout    time.Duration `yaml:"render_timeout"`
	CheckInterval    time.Duration `yaml:"check_interval"`
	MaxAttachmentMB  int           `yaml:"max_attachment_mb"`
	BroadcastWorkers int           `yaml:"broadcast_workers"`
}

func defaults() *Config {
	return &Config{
		DatabasePath:     "./data/gazette.db",
		LogLevel:         "info",
		CacheDir:         "./data/pdf_cache",
		PublisherURL:     "https://www.diarioficialdosmunicipios.org",
		EditionBase:      5462,
		DefaultKeywords:  append([]string(nil), model.DefaultKeywords...),
		NotifyAt:         "12:00",
		Timezone:         "America/Fortaleza",
		FetchTimeout:     10 * time.Minute,
		RenderTimeout:    5 * time.Minute,
		CheckInterval:    15 * time.Minute,
		MaxAttachmentMB:  50,
		BroadcastWorkers: 4,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	strs := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &c.TelegramBotToken,
		"DATABASE_PATH":      &c.DatabasePath,
		"LOG_LEVEL":          &c.LogLevel,
		"CACHE_DIR":          &c.CacheDir,
		"PUBLISHER_URL":      &c.PublisherURL,
		"NOTIFY_AT":          &c.NotifyAt,
		"TIMEZONE":           &c.Timezone,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EDITION_BASE":      &c.EditionBase,
		"MAX_ATTACHMENT_MB": &c.MaxAttachmentMB,
		"BROADCAST_WORKERS": &c.BroadcastWorkers,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"FETCH_TIMEOUT":  &c.FetchTimeout,
		"RENDER_TIMEOUT": &c.RenderTimeout,
		"CHECK_INTERVAL": &c.CheckInterval,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("RUN_ON_STARTUP"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid RUN_ON_STARTUP %q: %w", v, err)
		}
		c.RunOnStartup = b
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		c.AllowedUsers = nil
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			c.AllowedUsers = append(c.AllowedUsers, uid)
		}
	}
	return nil
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache dir is required")
	}
	if _, _, err := c.NotifyClock(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.MaxAttachmentMB <= 0 {
		return fmt.Errorf("max attachment size must be > 0, got %d", c.MaxAttachmentMB)
	}
	if c.BroadcastWorkers <= 0 {
		return fmt.Errorf("broadcast workers must be > 0, got %d", c.BroadcastWorkers)
	}
	for name, d := range map[string]time.Duration{
		"fetch timeout":  c.FetchTimeout,
		"render timeout": c.RenderTimeout,
		"check interval": c.CheckInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", name, d)
		}
	}
	return nil
}

// NotifyClock returns the daily broadcast time.
func (c *Config) NotifyClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.NotifyAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid notify time %q, want HH:MM", c.NotifyAt)
	}
	return t.Hour(), t.Minute(), nil
}

// Location returns the time zone the broadcast time refers to.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// MaxAttachmentBytes returns the attachment size limit in bytes.
func (c *Config) MaxAttachmentBytes() int64 {
	return int64(c.MaxAttachmentMB) << 20
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
