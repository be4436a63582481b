package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file
const (
	EnvListenAddr      = "HTMLMAILER_LISTEN_ADDR"
	EnvStoragePath     = "HTMLMAILER_STORAGE_PATH"
	EnvProviderBaseURL = "HTMLMAILER_PROVIDER_BASE_URL"
	EnvLogLevel        = "HTMLMAILER_LOG_LEVEL"
	EnvAdminToken      = "HTMLMAILER_ADMIN_TOKEN"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"` // Send rate limiting
	Metrics   MetricsConfig   `yaml:"metrics"`    // Prometheus metrics configuration
}

// ServerConfig contains HTTP proxy settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	AdminToken     string        `yaml:"admin_token"`      // Guards template, settings and history routes (empty = open)
	AdminTokenHash string        `yaml:"admin_token_hash"` // bcrypt hash of the admin token, used instead of admin_token
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to use the operator routes (empty = allow all)
	TrustedProxies []string      `yaml:"trusted_proxies"`  // Peers whose X-Forwarded-For/X-Real-IP is honoured (empty = none)
	CORSOrigins    []string      `yaml:"cors_origins"`     // Allowed browser origins (empty = CORS disabled)
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`   // Max JSON body size (default: 1MB)
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 60s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS certificate settings
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig contains Let's Encrypt ACME settings
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	HTTPAddr string   `yaml:"http_addr"` // HTTP-01 challenge listener (default: :80)
}

// ProviderConfig contains the outbound email API settings
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"` // Default: https://api.resend.com
	Timeout time.Duration `yaml:"timeout"`  // Default: 30s
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`

	// Send history retention (0 = keep until the record cap drops them)
	HistoryMaxAge          time.Duration `yaml:"history_max_age"`
	HistoryCleanupInterval time.Duration `yaml:"history_cleanup_interval"` // default: 1h
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RateLimitConfig contains send rate limiting settings
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Global limits (for entire server)
	Global *LimitValues `yaml:"global,omitempty"`

	// Limits per client IP
	PerClient *LimitValues `yaml:"per_client,omitempty"`
}

// LimitValues contains rate limit values
type LimitValues struct {
	SendsPerHour int `yaml:"sends_per_hour"`
	SendsPerDay  int `yaml:"sends_per_day"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`    // Default: :9090
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
	AllowedIPs    []string      `yaml:"allowed_ips"`    // IP addresses/CIDRs allowed to access metrics
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration built from defaults and environment
// overrides only, for running without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.setDefaults()
	return cfg
}

// applyEnv overrides file values with HTMLMAILER_* environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(EnvProviderBaseURL); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvAdminToken); v != "" {
		c.Server.AdminToken = v
	}
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":3000"
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20 // 1 MB
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.TLS.ACME.CacheDir == "" {
		c.Server.TLS.ACME.CacheDir = "/var/lib/htmlmailer/certs"
	}
	if c.Server.TLS.ACME.HTTPAddr == "" {
		c.Server.TLS.ACME.HTTPAddr = ":80"
	}

	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.resend.com"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/htmlmailer/htmlmailer.db"
	}
	if c.Storage.HistoryCleanupInterval == 0 {
		c.Storage.HistoryCleanupInterval = time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Metrics defaults
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	u, err := url.Parse(c.Provider.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid provider.base_url: %q", c.Provider.BaseURL)
	}
	if c.Provider.Timeout < 0 {
		return fmt.Errorf("provider.timeout must not be negative")
	}

	if c.Server.AdminTokenHash != "" {
		if c.Server.AdminToken != "" {
			return fmt.Errorf("server.admin_token and server.admin_token_hash are mutually exclusive")
		}
		if _, err := bcrypt.Cost([]byte(c.Server.AdminTokenHash)); err != nil {
			return fmt.Errorf("invalid server.admin_token_hash: %w", err)
		}
	}

	if c.Storage.HistoryMaxAge < 0 {
		return fmt.Errorf("storage.history_max_age must not be negative")
	}

	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}

	if err := validateIPList("server.allowed_ips", c.Server.AllowedIPs); err != nil {
		return err
	}
	if err := validateIPList("server.trusted_proxies", c.Server.TrustedProxies); err != nil {
		return err
	}
	if err := validateIPList("metrics.allowed_ips", c.Metrics.AllowedIPs); err != nil {
		return err
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == c.Server.ListenAddr {
		return fmt.Errorf("metrics.listen_addr must differ from server.listen_addr")
	}

	if err := c.validateRateLimit(); err != nil {
		return err
	}

	// Validate TLS configuration
	if err := c.validateTLS(); err != nil {
		return err
	}

	return nil
}

// validateTLS validates TLS configuration
func (c *Config) validateTLS() error {
	tls := c.Server.TLS
	hasCerts := tls.CertFile != "" || tls.KeyFile != ""
	hasACME := tls.ACME.Enabled

	if hasCerts && hasACME {
		return fmt.Errorf("cannot use both manual certificates and ACME")
	}

	if hasCerts {
		if tls.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when using manual certificates")
		}
		if tls.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when using manual certificates")
		}
	}

	if hasACME {
		if tls.ACME.Email == "" {
			return fmt.Errorf("server.tls.acme.email is required when ACME is enabled")
		}
		if len(tls.ACME.Domains) == 0 {
			return fmt.Errorf("server.tls.acme.domains must not be empty when ACME is enabled")
		}
	}

	return nil
}

// validateRateLimit validates rate limiting configuration
func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}
	if c.RateLimit.Global == nil && c.RateLimit.PerClient == nil {
		return fmt.Errorf("rate_limit requires global or per_client limits when enabled")
	}
	for name, lv := range map[string]*LimitValues{"global": c.RateLimit.Global, "per_client": c.RateLimit.PerClient} {
		if lv == nil {
			continue
		}
		if lv.SendsPerHour < 0 || lv.SendsPerDay < 0 {
			return fmt.Errorf("rate_limit.%s values must not be negative", name)
		}
	}
	return nil
}

// validateIPList checks that every entry is an IP address or CIDR
func validateIPList(field string, entries []string) error {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if _, err := netip.ParsePrefix(entry); err != nil {
				return fmt.Errorf("invalid %s entry %q: %w", field, entry, err)
			}
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			return fmt.Errorf("invalid %s entry %q: %w", field, entry, err)
		}
	}
	return nil
}

// HasAdminAuth reports whether the operator routes require a token
func (s *ServerConfig) HasAdminAuth() bool {
	return s.AdminToken != "" || s.AdminTokenHash != ""
}

// HasTLS returns true if TLS is configured
func (c *Config) HasTLS() bool {
	return (c.Server.TLS.CertFile != "" && c.Server.TLS.KeyFile != "") || c.Server.TLS.ACME.Enabled
}
