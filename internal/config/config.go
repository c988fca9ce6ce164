package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile       = "config.yaml"
	DefaultLedgerFile       = "ledger.db"
	DefaultCheckInterval    = 5 * time.Minute
	DefaultMaxNotifications = 5
	DefaultSound            = "default"
	DefaultSink             = SinkDesktop
	DefaultNotifyDelay      = 500 * time.Millisecond
	DefaultFetchTimeout     = 30 * time.Second
	DefaultConcurrency      = 1
	DefaultTelegramTokenEnv = "FEEDWATCH_TELEGRAM_TOKEN"
)

// Notification sink kinds.
const (
	SinkDesktop  = "desktop"
	SinkTelegram = "telegram"
	SinkLog      = "log"
	SinkNone     = "none"
)

// DefaultMirrors are public nitter instances that serve per-account RSS.
var DefaultMirrors = []string{
	"https://nitter.poast.org",
	"https://xcancel.com",
	"https://nitter.privacyredirect.com",
	"https://lightbrd.com",
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText lets env overrides use the same syntax as the YAML file.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Accounts                 []string           `yaml:"accounts"`
	Mirrors                  []string           `yaml:"mirrors"`
	PreferredMirror          string             `yaml:"preferred_mirror" env:"FEEDWATCH_PREFERRED_MIRROR"`
	CheckInterval            Duration           `yaml:"check_interval" env:"FEEDWATCH_CHECK_INTERVAL"`
	MaxNotificationsPerCheck int                `yaml:"max_notifications_per_check" env:"FEEDWATCH_MAX_NOTIFICATIONS"`
	Notification             NotificationConfig `yaml:"notification"`
	Storage                  StorageConfig      `yaml:"storage"`
	Fetch                    FetchConfig        `yaml:"fetch"`
}

type NotificationConfig struct {
	Sink     string         `yaml:"sink" env:"FEEDWATCH_SINK"`
	Sound    string         `yaml:"sound" env:"FEEDWATCH_SOUND"`
	Delay    Duration       `yaml:"delay"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	TokenEnv string `yaml:"token_env"`
	ChatID   string `yaml:"chat_id"`

	// Resolved from env var at load time.
	Token string `yaml:"-"`
}

type StorageConfig struct {
	Path string `yaml:"path" env:"FEEDWATCH_STORAGE_PATH"`
}

type FetchConfig struct {
	Timeout     Duration `yaml:"timeout" env:"FEEDWATCH_FETCH_TIMEOUT"`
	UserAgent   string   `yaml:"user_agent"`
	Concurrency int      `yaml:"concurrency" env:"FEEDWATCH_CONCURRENCY"`
}

// Load reads config.yaml from dir, applies env overrides and defaults,
// resolves secrets, and validates. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	// Seeded before decoding so an explicit 0 survives: it sends only the
	// overflow summary.
	cfg := Config{MaxNotificationsPerCheck: DefaultMaxNotifications}

	data, err := os.ReadFile(filepath.Join(dir, DefaultConfigFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	applyDefaults(&cfg, dir)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config, dir string) {
	if len(cfg.Mirrors) == 0 {
		cfg.Mirrors = append([]string(nil), DefaultMirrors...)
	}
	if cfg.CheckInterval.Duration == 0 {
		cfg.CheckInterval.Duration = DefaultCheckInterval
	}
	if cfg.Notification.Sink == "" {
		cfg.Notification.Sink = DefaultSink
	}
	if cfg.Notification.Sound == "" {
		cfg.Notification.Sound = DefaultSound
	}
	if cfg.Notification.Delay.Duration == 0 {
		cfg.Notification.Delay.Duration = DefaultNotifyDelay
	}
	if cfg.Notification.Telegram.TokenEnv == "" {
		cfg.Notification.Telegram.TokenEnv = DefaultTelegramTokenEnv
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(dir, DefaultLedgerFile)
	} else if !filepath.IsAbs(cfg.Storage.Path) {
		cfg.Storage.Path = filepath.Join(dir, cfg.Storage.Path)
	}
	if cfg.Fetch.Timeout.Duration == 0 {
		cfg.Fetch.Timeout.Duration = DefaultFetchTimeout
	}
	if cfg.Fetch.Concurrency == 0 {
		cfg.Fetch.Concurrency = DefaultConcurrency
	}

	accounts := make([]string, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		if h := NormalizeHandle(a); h != "" {
			accounts = append(accounts, h)
		}
	}
	cfg.Accounts = accounts
}

func resolveEnv(cfg *Config) {
	if cfg.Notification.Telegram.TokenEnv != "" {
		cfg.Notification.Telegram.Token = os.Getenv(cfg.Notification.Telegram.TokenEnv)
	}
}

func validate(cfg *Config) error {
	for _, m := range cfg.Mirrors {
		if err := ValidateMirror(m); err != nil {
			return fmt.Errorf("mirrors: %w", err)
		}
	}
	if cfg.PreferredMirror != "" {
		if err := ValidateMirror(cfg.PreferredMirror); err != nil {
			return fmt.Errorf("preferred_mirror: %w", err)
		}
	}

	if cfg.CheckInterval.Duration < time.Minute {
		return fmt.Errorf("check_interval: must be at least 1m, got %s", cfg.CheckInterval.Duration)
	}
	if cfg.MaxNotificationsPerCheck < 0 {
		return fmt.Errorf("max_notifications_per_check: must not be negative, got %d", cfg.MaxNotificationsPerCheck)
	}
	if cfg.Notification.Delay.Duration < 0 {
		return errors.New("notification.delay: must not be negative")
	}
	if cfg.Fetch.Timeout.Duration < 0 {
		return errors.New("fetch.timeout: must not be negative")
	}
	if cfg.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency: must be at least 1, got %d", cfg.Fetch.Concurrency)
	}

	switch cfg.Notification.Sink {
	case SinkDesktop, SinkLog, SinkNone:
		// valid
	case SinkTelegram:
		if cfg.Notification.Telegram.ChatID == "" {
			return errors.New("notification.telegram.chat_id: required for the telegram sink")
		}
		if cfg.Notification.Telegram.Token == "" {
			return fmt.Errorf("notification.telegram: env var %s is empty", cfg.Notification.Telegram.TokenEnv)
		}
	default:
		return fmt.Errorf("notification.sink: unknown sink %q (want desktop, telegram, log or none)", cfg.Notification.Sink)
	}

	return nil
}

// ValidateMirror checks that raw is an absolute http(s) URL.
func ValidateMirror(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: host is required", raw)
	}
	return nil
}
