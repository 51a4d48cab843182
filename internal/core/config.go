package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the entire hostsentry configuration.
type Config struct {
	IntervalSeconds int              `yaml:"interval_seconds"`
	Channels        []string         `yaml:"channels"`
	Thresholds      ThresholdsConfig `yaml:"thresholds"`
	Alerts          AlertsConfig     `yaml:"alerts"`
	Database        DatabaseConfig   `yaml:"database"`
	Bus             BusConfig        `yaml:"bus"`
	Metrics         MetricsConfig    `yaml:"metrics"`
	Logging         LoggingConfig    `yaml:"logging"`
}

// ThresholdsConfig holds detector tuning knobs. Defaults are declared
// once in DefaultConfig and validated once at load time.
type ThresholdsConfig struct {
	BruteForceWindowMinutes int `yaml:"brute_force_window_minutes"`
	BruteForceFailures      int `yaml:"brute_force_failures"`
	PowerShellMinBase64Len  int `yaml:"powershell_min_base64_len"`
	USBDedupeSeconds        int `yaml:"usb_dedupe_seconds"`
	CooldownMinutes         int `yaml:"alert_cooldown_minutes"`
}

// BruteForceWindow returns the sliding window as a duration.
func (t ThresholdsConfig) BruteForceWindow() time.Duration {
	return time.Duration(t.BruteForceWindowMinutes) * time.Minute
}

// USBDedupeTTL returns the USB dedupe window as a duration.
func (t ThresholdsConfig) USBDedupeTTL() time.Duration {
	return time.Duration(t.USBDedupeSeconds) * time.Second
}

// Cooldown returns the dispatcher cooldown as a duration.
func (t ThresholdsConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownMinutes) * time.Minute
}

// AlertsConfig holds notification channel settings.
type AlertsConfig struct {
	EnabledChannels []string       `yaml:"enabled_channels"`
	Telegram        TelegramConfig `yaml:"telegram"`
	Discord         DiscordConfig  `yaml:"discord"`
	Email           EmailConfig    `yaml:"email"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// DiscordConfig holds Discord webhook settings.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	To         string `yaml:"to"`
}

// DatabaseConfig holds the embedded store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BusConfig holds NATS alert stream settings.
type BusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	DataDir  string `yaml:"data_dir"`
	Port     int    `yaml:"port"`
}

// MetricsConfig holds the metrics/health listener settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sane defaults so an empty config
// file works out of the box.
func DefaultConfig() *Config {
	return &Config{
		IntervalSeconds: 10,
		Channels: []string{
			"System",
			"Security",
			"Windows PowerShell",
			"Microsoft-Windows-PowerShell/Operational",
		},
		Thresholds: ThresholdsConfig{
			BruteForceWindowMinutes: 10,
			BruteForceFailures:      2,
			PowerShellMinBase64Len:  24,
			USBDedupeSeconds:        8,
			CooldownMinutes:         5,
		},
		Alerts: AlertsConfig{
			EnabledChannels: []string{},
			Email:           EmailConfig{SMTPPort: 587},
		},
		Database: DatabaseConfig{
			Path: "./data/hostsentry.db",
		},
		Bus: BusConfig{
			Enabled:  false,
			URL:      "nats://127.0.0.1:4222",
			Embedded: true,
			DataDir:  "./data/nats",
			Port:     4222,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9310",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to
// defaults for anything the file omits. An empty path returns defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks thresholds and channel configuration. Called once at
// load time so detectors can trust their settings.
func (c *Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive, got %d", c.IntervalSeconds)
	}
	t := c.Thresholds
	if t.BruteForceWindowMinutes <= 0 {
		return fmt.Errorf("brute_force_window_minutes must be positive, got %d", t.BruteForceWindowMinutes)
	}
	if t.BruteForceFailures <= 0 {
		return fmt.Errorf("brute_force_failures must be positive, got %d", t.BruteForceFailures)
	}
	if t.PowerShellMinBase64Len <= 0 {
		return fmt.Errorf("powershell_min_base64_len must be positive, got %d", t.PowerShellMinBase64Len)
	}
	if t.USBDedupeSeconds <= 0 {
		return fmt.Errorf("usb_dedupe_seconds must be positive, got %d", t.USBDedupeSeconds)
	}
	if t.CooldownMinutes <= 0 {
		return fmt.Errorf("alert_cooldown_minutes must be positive, got %d", t.CooldownMinutes)
	}

	for _, ch := range c.Alerts.EnabledChannels {
		switch ch {
		case "telegram":
			if c.Alerts.Telegram.Token == "" || c.Alerts.Telegram.ChatID == "" {
				return fmt.Errorf("telegram channel enabled but token/chat_id missing")
			}
		case "discord":
			if c.Alerts.Discord.WebhookURL == "" {
				return fmt.Errorf("discord channel enabled but webhook_url missing")
			}
		case "email":
			e := c.Alerts.Email
			if e.SMTPServer == "" || e.Username == "" || e.Password == "" || e.To == "" {
				return fmt.Errorf("email channel enabled but smtp settings incomplete")
			}
		default:
			return fmt.Errorf("unknown alert channel %q", ch)
		}
	}
	return nil
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LogLevel returns the configured log level, defaulting to info.
func (c *Config) LogLevel() string {
	if c.Logging.Level == "" {
		return "info"
	}
	return c.Logging.Level
}
