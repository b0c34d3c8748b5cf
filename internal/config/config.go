package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration parameters
type Config struct {
	// Business rules
	OrgDomain              string `json:"org_domain" yaml:"org_domain"`
	RankThreshold          int    `json:"rank_threshold" yaml:"rank_threshold"`
	HighlightRank          int    `json:"highlight_rank" yaml:"highlight_rank"`
	CountResellerAsBuying  bool   `json:"count_reseller_as_buying" yaml:"count_reseller_as_buying"`
	SkipAlreadyBuyingCheck bool   `json:"skip_already_buying_check" yaml:"skip_already_buying_check"`
	AcceptManagerDomain    bool   `json:"accept_manager_domain" yaml:"accept_manager_domain"`

	// Reference list cache
	RankListPath  string `json:"rank_list_path" yaml:"rank_list_path"`
	RankMetaPath  string `json:"rank_meta_path" yaml:"rank_meta_path"`
	RankSourceURL string `json:"rank_source_url" yaml:"rank_source_url"`
	FreshnessDays int    `json:"freshness_days" yaml:"freshness_days"`
	MaxListBytes  int    `json:"max_list_bytes" yaml:"max_list_bytes"`

	// HTTP
	RequestTimeoutMs int    `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	RequestDelayMs   int    `json:"request_delay_ms" yaml:"request_delay_ms"`
	UserAgent        string `json:"user_agent" yaml:"user_agent"`

	// Output
	DBPath      string `json:"db_path" yaml:"db_path"`
	MetricsPath string `json:"metrics_path" yaml:"metrics_path"`
	LogLevel    string `json:"log_level" yaml:"log_level"`

	Email EmailConfig `json:"email" yaml:"email"`
}

// EmailConfig configures the SMTP report delivery
type EmailConfig struct {
	SMTPHost        string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort        int    `json:"smtp_port" yaml:"smtp_port"`
	RecipientDomain string `json:"recipient_domain" yaml:"recipient_domain"`
	SenderEnv       string `json:"sender_env" yaml:"sender_env"`
	PasswordEnv     string `json:"password_env" yaml:"password_env"`
	TimeoutMs       int    `json:"timeout_ms" yaml:"timeout_ms"`
}

// LoadConfig reads and validates configuration from a JSON or YAML file.
// An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config YAML: %w", err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config JSON: %w", err)
			}
		}
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// RequestTimeout returns the per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// RequestDelay returns the fixed pause between outgoing requests
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.OrgDomain == "" {
		cfg.OrgDomain = "onlinemediasolutions.com"
	}
	if cfg.RankThreshold == 0 {
		cfg.RankThreshold = 210000
	}
	if cfg.HighlightRank == 0 {
		cfg.HighlightRank = 50000
	}
	if cfg.RankListPath == "" {
		cfg.RankListPath = filepath.Join(os.TempDir(), "top-1m.csv")
	}
	if cfg.RankMetaPath == "" {
		cfg.RankMetaPath = filepath.Join(os.TempDir(), "tranco_meta.json")
	}
	if cfg.RankSourceURL == "" {
		cfg.RankSourceURL = "https://tranco-list.eu"
	}
	if cfg.FreshnessDays == 0 {
		cfg.FreshnessDays = 14
	}
	if cfg.MaxListBytes == 0 {
		cfg.MaxListBytes = 128 * 1024 * 1024
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 10000
	}
	if cfg.RequestDelayMs == 0 {
		cfg.RequestDelayMs = 100
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "opportunity-finder/1.0"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = "smtp.gmail.com"
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 465
	}
	if cfg.Email.RecipientDomain == "" {
		cfg.Email.RecipientDomain = cfg.OrgDomain
	}
	if cfg.Email.SenderEnv == "" {
		cfg.Email.SenderEnv = "EMAIL_ADDRESS"
	}
	if cfg.Email.PasswordEnv == "" {
		cfg.Email.PasswordEnv = "EMAIL_PASSWORD"
	}
	if cfg.Email.TimeoutMs == 0 {
		cfg.Email.TimeoutMs = 15000
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if strings.Contains(cfg.OrgDomain, "://") {
		return fmt.Errorf("org_domain must be a bare domain, got %q", cfg.OrgDomain)
	}
	if cfg.RankThreshold < 1 {
		return fmt.Errorf("rank_threshold must be >= 1")
	}
	if cfg.FreshnessDays < 1 {
		return fmt.Errorf("freshness_days must be >= 1")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	if cfg.RequestDelayMs < 0 {
		return fmt.Errorf("request_delay_ms must be >= 0")
	}
	if cfg.Email.SMTPPort < 1 || cfg.Email.SMTPPort > 65535 {
		return fmt.Errorf("email.smtp_port must be a valid TCP port")
	}
	return nil
}
