package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gazette_bot/internal/model"
)

var envKeys = []string{
	"CONFIG_FILE", "TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_USERS",
	"CACHE_DIR", "PUBLISHER_URL", "EDITION_BASE", "NOTIFY_AT", "TIMEZONE", "RUN_ON_STARTUP",
	"FETCH_TIMEOUT", "RENDER_TIMEOUT", "CHECK_INTERVAL", "MAX_ATTACHMENT_MB", "BROADCAST_WORKERS",
}

func withDefaults(token string, mutate func(*Config)) *Config {
	c := defaults()
	c.TelegramBotToken = token
	if mutate != nil {
		mutate(c)
	}
	return c
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	file := writeFile(t, `
telegram_bot_token: file-token
cache_dir: /var/cache/gazette
notify_at: "07:30"
fetch_timeout: 2m
max_attachment_mb: 20
allowed_users: [1, 2]
default_keywords:
  - Convita
  - Lumig
`)

	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: withDefaults("test-token", nil),
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"DATABASE_PATH":      "/tmp/bot.db",
				"LOG_LEVEL":          "debug",
				"ALLOWED_USERS":      "111,222,333",
				"CACHE_DIR":          "/tmp/pdf",
				"PUBLISHER_URL":      "http://localhost:8080",
				"EDITION_BASE":       "6000",
				"NOTIFY_AT":          "08:15",
				"TIMEZONE":           "UTC",
				"RUN_ON_STARTUP":     "true",
				"FETCH_TIMEOUT":      "30s",
				"RENDER_TIMEOUT":     "1m",
				"CHECK_INTERVAL":     "5m",
				"MAX_ATTACHMENT_MB":  "10",
				"BROADCAST_WORKERS":  "2",
			},
			want: withDefaults("tok", func(c *Config) {
				c.DatabasePath = "/tmp/bot.db"
				c.LogLevel = "debug"
				c.AllowedUsers = []int64{111, 222, 333}
				c.CacheDir = "/tmp/pdf"
				c.PublisherURL = "http://localhost:8080"
				c.EditionBase = 6000
				c.NotifyAt = "08:15"
				c.Timezone = "UTC"
				c.RunOnStartup = true
				c.FetchTimeout = 30 * time.Second
				c.RenderTimeout = time.Minute
				c.CheckInterval = 5 * time.Minute
				c.MaxAttachmentMB = 10
				c.BroadcastWorkers = 2
			}),
		},
		{
			name: "allowed users with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      " 10 , 20 , ",
			},
			want: withDefaults("tok", func(c *Config) { c.AllowedUsers = []int64{10, 20} }),
		},
		{
			name: "file values",
			env:  map[string]string{"CONFIG_FILE": file},
			want: withDefaults("file-token", func(c *Config) {
				c.CacheDir = "/var/cache/gazette"
				c.NotifyAt = "07:30"
				c.FetchTimeout = 2 * time.Minute
				c.MaxAttachmentMB = 20
				c.AllowedUsers = []int64{1, 2}
				c.DefaultKeywords = []string{"Convita", "Lumig"}
			}),
		},
		{
			name: "env wins over file",
			env:  map[string]string{"CONFIG_FILE": file, "NOTIFY_AT": "09:00", "ALLOWED_USERS": "5"},
			want: withDefaults("file-token", func(c *Config) {
				c.CacheDir = "/var/cache/gazette"
				c.NotifyAt = "09:00"
				c.FetchTimeout = 2 * time.Minute
				c.MaxAttachmentMB = 20
				c.AllowedUsers = []int64{5}
				c.DefaultKeywords = []string{"Convita", "Lumig"}
			}),
		},
		{
			name:    "missing config file",
			env:     map[string]string{"CONFIG_FILE": filepath.Join(t.TempDir(), "absent.yaml")},
			wantErr: true,
		},
		{
			name:    "invalid user id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "ALLOWED_USERS": "123,abc"},
			wantErr: true,
		},
		{
			name:    "invalid notify time",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "NOTIFY_AT": "25:00"},
			wantErr: true,
		},
		{
			name:    "invalid timezone",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "TIMEZONE": "Mars/Olympus"},
			wantErr: true,
		},
		{
			name:    "invalid duration",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "FETCH_TIMEOUT": "ten minutes"},
			wantErr: true,
		},
		{
			name:    "non-positive workers",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "BROADCAST_WORKERS": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefaultsDoNotAliasKeywords(t *testing.T) {
	c := defaults()
	c.DefaultKeywords[0] = "changed"
	if model.DefaultKeywords[0] == "changed" {
		t.Fatal("defaults must copy the keyword list")
	}
}

func TestDerivedValues(t *testing.T) {
	c := withDefaults("tok", nil)

	h, m, err := c.NotifyClock()
	if err != nil {
		t.Fatalf("notify clock: %v", err)
	}
	if diff := cmp.Diff([2]int{12, 0}, [2]int{h, m}); diff != "" {
		t.Errorf("clock (-want +got):\n%s", diff)
	}
	loc, err := c.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if diff := cmp.Diff("America/Fortaleza", loc.String()); diff != "" {
		t.Errorf("location (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(50<<20), c.MaxAttachmentBytes()); diff != "" {
		t.Errorf("attachment bytes (-want +got):\n%s", diff)
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
