// Package config loads the YAML configuration blob the core consumes
// (but does not own) per spec.md §6: target list, the three live-
// updatable settings (save_logs, alert_email, auto_restore), and the
// ambient settings a standalone binary needs to start without a UI
// driving it.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the conventional config file location.
const DefaultConfigPath = "/etc/ransomguard/config.yaml"

// Config is the full configuration blob. UI-only fields the core ignores
// are intentionally not modeled here — they live in whatever blob the
// desktop layer persists; this type is the core's contract, not the
// whole settings file.
type Config struct {
	Targets  []string       `yaml:"targets"`
	Core     CoreConfig     `yaml:"core"`
	Baseline BaselineConfig `yaml:"baseline"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Audit    AuditConfig    `yaml:"audit"`
}

// CoreConfig holds the three settings spec.md §6 names as live-updatable
// via update_settings, plus the worker-pool and cooldown knobs spec.md
// §5 calls out as policy constants.
type CoreConfig struct {
	SaveLogs         bool    `yaml:"save_logs"`
	AlertEmail       string  `yaml:"alert_email"`
	AutoRestore      bool    `yaml:"auto_restore"`
	CooldownSeconds  int     `yaml:"cooldown_seconds"`
	EntropyThreshold float64 `yaml:"entropy_threshold"`
	WorkerPoolSize   int     `yaml:"worker_pool_size"`
}

// BaselineConfig locates the encrypted baseline store and shadow copy
// directory on disk.
type BaselineConfig struct {
	DBPath    string `yaml:"db_path"`
	KeyPath   string `yaml:"key_path"`
	ShadowDir string `yaml:"shadow_dir"`
}

// AlertsConfig configures the alert sink(s). SMTP is the sink spec.md
// §6 describes in detail; Telegram/Ntfy/Discord/Webhook are additional
// channels adapted from the wider notification stack (see DESIGN.md).
type AlertsConfig struct {
	SMTP     SMTPConfig     `yaml:"smtp"`
	Telegram TelegramConfig `yaml:"telegram"`
	Ntfy     NtfyConfig     `yaml:"ntfy"`
	Discord  DiscordConfig  `yaml:"discord"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type NtfyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
	Server  string `yaml:"server"`
	Token   string `yaml:"token"`
}

type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Method  string `yaml:"method"`
}

// AuditConfig locates the JSON-lines audit sink output.
type AuditConfig struct {
	LogPath string `yaml:"log_path"`
}

// Load reads and parses the config file at path, expanding environment
// variables (so credentials can be injected without touching the file).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns sane defaults, matching spec.md's cooldown
// (2.0s), entropy threshold (7.5), and default worker pool size (4).
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			SaveLogs:         true,
			AutoRestore:      true,
			CooldownSeconds:  2,
			EntropyThreshold: 7.5,
			WorkerPoolSize:   4,
		},
		Baseline: BaselineConfig{
			DBPath:    "integrity.db",
			KeyPath:   "secret.key",
			ShadowDir: ".shadow_copies",
		},
		Audit: AuditConfig{
			LogPath: "security_audit.jsonl",
		},
		Alerts: AlertsConfig{
			SMTP: SMTPConfig{
				Host: "smtp.gmail.com",
				Port: 465,
			},
		},
	}
}

// Validate checks the config for obvious misconfiguration. An invalid
// alert_email (per spec.md §6: "invalid if lacking @") is not itself
// fatal — it just means every SMTP send fails with an error that the
// alert fan-out logs, mirroring the lenient original check — but a
// nonsensical cooldown or worker
// pool size would make the engine misbehave, so those are rejected.
func (c *Config) Validate() error {
	if c.Core.CooldownSeconds < 0 {
		return fmt.Errorf("core.cooldown_seconds must be >= 0")
	}
	if c.Core.WorkerPoolSize < 1 {
		return fmt.Errorf("core.worker_pool_size must be >= 1")
	}
	if c.Core.EntropyThreshold < 0 || c.Core.EntropyThreshold > 8 {
		return fmt.Errorf("core.entropy_threshold must be within [0, 8]")
	}
	return nil
}

// HasValidAlertEmail reports whether AlertEmail looks usable, per
// spec.md §6's "invalid if lacking @" rule.
func (c *Config) HasValidAlertEmail() bool {
	return strings.Contains(c.Core.AlertEmail, "@")
}
