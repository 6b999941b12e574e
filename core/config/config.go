package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token    string  `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"TELEGRAM_ADMIN_IDS"`
	RunMode  string  `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// SheetConfig describes the Google spreadsheet acting as the event database.
type SheetConfig struct {
	ID              string `yaml:"id" envconfig:"SHEET_ID"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"SHEET_CREDENTIALS_FILE"`
	// CredentialsJSON carries the service-account key inline, for
	// deployments where mounting a key file is not practical.
	CredentialsJSON string `yaml:"credentials_json" envconfig:"SHEET_CREDENTIALS_JSON"`
	EventsTab       string `yaml:"events_tab"`
	ContactsTab     string `yaml:"contacts_tab"`
	LogTab          string `yaml:"log_tab"`
}

// GeocodeConfig holds Nominatim client settings.
type GeocodeConfig struct {
	Endpoint  string `yaml:"endpoint" envconfig:"GEOCODE_ENDPOINT"`
	UserAgent string `yaml:"user_agent" envconfig:"GEOCODE_USER_AGENT"`
	// MinIntervalMS is the minimum gap between requests per the Nominatim usage policy.
	MinIntervalMS int    `yaml:"min_interval_ms" envconfig:"GEOCODE_MIN_INTERVAL_MS"`
	CitiesFile    string `yaml:"cities_file"`
}

// CacheConfig configures the on-disk memoization cache.
type CacheConfig struct {
	Dir string `yaml:"dir" envconfig:"CACHE_DIR"`
	// Version busts the cache when bumped; it is part of every cache key.
	Version string `yaml:"version" envconfig:"CACHE_VERSION"`
}

// AnnounceConfig controls event announcements to Telegram groups.
type AnnounceConfig struct {
	// FallbackChatID is used when an event carries no telegram_group_id.
	FallbackChatID string `yaml:"fallback_chat_id" envconfig:"ANNOUNCE_FALLBACK_CHAT_ID"`
	Disabled       bool   `yaml:"disabled" envconfig:"ANNOUNCE_DISABLED"`
}

// SyncConfig drives background synchronization jobs.
type SyncConfig struct {
	// ContactsCron re-syncs the contact cache from the sheet ("@every 15m" etc).
	ContactsCron string `yaml:"contacts_cron"`
	// GitPush enables the fire-and-forget git sync of exported JSON files.
	GitPush   bool     `yaml:"git_push" envconfig:"SYNC_GIT_PUSH"`
	RepoDir   string   `yaml:"repo_dir" envconfig:"SYNC_REPO_DIR"`
	RepoPaths []string `yaml:"repo_paths"`
	ExportDir string   `yaml:"export_dir"`
	WWWDir    string   `yaml:"www_dir"`
	// SessionIdleMinutes expires stalled dialogs; 0 -> default 120.
	SessionIdleMinutes int `yaml:"session_idle_minutes"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for inbound update rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the full application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Sheet     SheetConfig     `yaml:"sheet"`
	Geocode   GeocodeConfig   `yaml:"geocode"`
	Cache     CacheConfig     `yaml:"cache"`
	Announce  AnnounceConfig  `yaml:"announce"`
	Sync      SyncConfig      `yaml:"sync"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsAdmin reports whether the given Telegram ID is in the admin allow-list.
func (t TelegramConfig) IsAdmin(id int64) bool {
	for _, adminID := range t.AdminIDs {
		if adminID == id {
			return true
		}
	}
	return false
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Sheet.ID == "" {
		return fmt.Errorf("sheet.id is required")
	}
	if cfg.Sheet.EventsTab == "" {
		cfg.Sheet.EventsTab = "termine"
	}
	if cfg.Sheet.ContactsTab == "" {
		cfg.Sheet.ContactsTab = "kontakte"
	}
	if cfg.Sheet.LogTab == "" {
		cfg.Sheet.LogTab = "log"
	}

	if cfg.Geocode.Endpoint == "" {
		cfg.Geocode.Endpoint = "https://nominatim.openstreetmap.org"
	}
	if cfg.Geocode.MinIntervalMS <= 0 {
		cfg.Geocode.MinIntervalMS = 1500
	}
	if cfg.Geocode.CitiesFile == "" {
		cfg.Geocode.CitiesFile = "data/cities.json"
	}

	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = ".cache"
	}
	if cfg.Cache.Version == "" {
		cfg.Cache.Version = "v1"
	}

	if cfg.Sync.ContactsCron == "" {
		cfg.Sync.ContactsCron = "@every 15m"
	}
	if cfg.Sync.ExportDir == "" {
		cfg.Sync.ExportDir = "data"
	}
	if cfg.Sync.WWWDir == "" {
		cfg.Sync.WWWDir = "www"
	}
	if cfg.Sync.RepoDir == "" {
		cfg.Sync.RepoDir = "."
	}
	if len(cfg.Sync.RepoPaths) == 0 {
		cfg.Sync.RepoPaths = []string{cfg.Sync.ExportDir, cfg.Sync.WWWDir}
	}
	if cfg.Sync.SessionIdleMinutes <= 0 {
		cfg.Sync.SessionIdleMinutes = 120
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
