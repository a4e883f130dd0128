package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the tgloop runtime.
type Config struct {
	Telegram TelegramConfig `toml:"telegram"`
	Poll     PollConfig     `toml:"poll"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Status   StatusConfig   `toml:"status"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Security SecurityConfig `toml:"security"`
}

type TelegramConfig struct {
	Token   string `toml:"token" env:"TGLOOP_TOKEN"`
	BaseURL string `toml:"base_url" env:"TGLOOP_BASE_URL"`
}

// PollConfig controls the getUpdates long poll. Durations are written as
// Go duration strings ("30s", "500ms").
type PollConfig struct {
	Timeout        duration `toml:"timeout" env:"TGLOOP_POLL_TIMEOUT"`
	Grace          duration `toml:"grace" env:"TGLOOP_POLL_GRACE"`
	Limit          int      `toml:"limit" env:"TGLOOP_POLL_LIMIT"`
	AllowedUpdates []string `toml:"allowed_updates" env:"TGLOOP_ALLOWED_UPDATES" envSeparator:","`
	IdlePause      duration `toml:"idle_pause" env:"TGLOOP_IDLE_PAUSE"`
	BackoffInitial duration `toml:"backoff_initial" env:"TGLOOP_BACKOFF_INITIAL"`
	BackoffMax     duration `toml:"backoff_max" env:"TGLOOP_BACKOFF_MAX"`
}

type DispatchConfig struct {
	Concurrency int      `toml:"concurrency" env:"TGLOOP_DISPATCH_CONCURRENCY"`
	QueueSize   int      `toml:"queue_size" env:"TGLOOP_DISPATCH_QUEUE_SIZE"`
	Timeout     duration `toml:"timeout" env:"TGLOOP_DISPATCH_TIMEOUT"`
}

type StatusConfig struct {
	Addr string `toml:"addr" env:"TGLOOP_STATUS_ADDR"`
}

type GatewayConfig struct {
	URL   string `toml:"url" env:"TGLOOP_GATEWAY_URL"`
	Token string `toml:"token" env:"TGLOOP_GATEWAY_TOKEN"`
}

// SecurityConfig is the sender allowlist. AllowedUsers are added to the
// default role; Roles can only be set from the config file.
type SecurityConfig struct {
	Mode         string             `toml:"mode" env:"TGLOOP_SECURITY_MODE"`
	AllowedUsers []int64            `toml:"allowed_users" env:"TGLOOP_ALLOWED_USERS" envSeparator:","`
	Roles        map[string][]int64 `toml:"roles"`
	DefaultRole  string             `toml:"default_role" env:"TGLOOP_DEFAULT_ROLE"`
	DenyMessage  string             `toml:"deny_message" env:"TGLOOP_DENY_MESSAGE"`
}

// duration decodes from a TOML or env string such as "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func defaults() Config {
	return Config{
		Telegram: TelegramConfig{
			BaseURL: "https://api.telegram.org",
		},
		Poll: PollConfig{
			Timeout:        duration{30 * time.Second},
			Grace:          duration{10 * time.Second},
			Limit:          100,
			BackoffInitial: duration{500 * time.Millisecond},
			BackoffMax:     duration{30 * time.Second},
		},
		Dispatch: DispatchConfig{
			Concurrency: 4,
			QueueSize:   256,
			Timeout:     duration{30 * time.Second},
		},
		Status: StatusConfig{
			Addr: ":18791",
		},
		Security: SecurityConfig{
			Mode:        "open",
			DefaultRole: "user",
			DenyMessage: "Sorry, you are not authorized to use this bot.",
		},
	}
}

// Load reads configuration from the TOML config file (if it exists) and
// applies environment variable overrides. Env vars always win.
//
// Config file resolution: TGLOOP_CONFIG env var → ~/.config/tgloop/config.toml → skip.
func Load() (*Config, error) {
	cfg := defaults()

	path := configPath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func configPath() string {
	if p := os.Getenv("TGLOOP_CONFIG"); p != "" {
		return expandHome(p)
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "tgloop", "config.toml")
}

// Validate clamps out-of-range values back to their defaults and checks
// that required fields are set.
func (c *Config) Validate() error {
	def := defaults()

	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (set TGLOOP_TOKEN or [telegram] token)")
	}
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = def.Telegram.BaseURL
	}
	c.Telegram.BaseURL = strings.TrimRight(c.Telegram.BaseURL, "/")

	if c.Poll.Timeout.Duration < 0 {
		c.Poll.Timeout = def.Poll.Timeout
	}
	if c.Poll.Grace.Duration <= 0 {
		c.Poll.Grace = def.Poll.Grace
	}
	if c.Poll.Limit < 1 || c.Poll.Limit > 100 {
		c.Poll.Limit = def.Poll.Limit
	}
	if c.Poll.IdlePause.Duration < 0 {
		c.Poll.IdlePause.Duration = 0
	}
	if c.Poll.BackoffInitial.Duration <= 0 {
		c.Poll.BackoffInitial = def.Poll.BackoffInitial
	}
	if c.Poll.BackoffMax.Duration < c.Poll.BackoffInitial.Duration {
		c.Poll.BackoffMax = c.Poll.BackoffInitial
	}

	if c.Dispatch.Concurrency < 1 {
		c.Dispatch.Concurrency = def.Dispatch.Concurrency
	}
	if c.Dispatch.QueueSize < 1 {
		c.Dispatch.QueueSize = def.Dispatch.QueueSize
	}
	if c.Dispatch.Timeout.Duration <= 0 {
		c.Dispatch.Timeout = def.Dispatch.Timeout
	}

	mode := strings.ToLower(c.Security.Mode)
	switch mode {
	case "open", "allowlist":
		c.Security.Mode = mode
	default:
		c.Security.Mode = "open"
	}
	if c.Security.DefaultRole == "" {
		c.Security.DefaultRole = def.Security.DefaultRole
	}

	return nil
}

// AllRoles merges AllowedUsers into Roles under the default role.
func (s SecurityConfig) AllRoles() map[string][]int64 {
	roles := make(map[string][]int64, len(s.Roles)+1)
	for role, ids := range s.Roles {
		roles[role] = append([]int64(nil), ids...)
	}
	if len(s.AllowedUsers) > 0 {
		roles[s.DefaultRole] = append(roles[s.DefaultRole], s.AllowedUsers...)
	}
	return roles
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
