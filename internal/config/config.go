// internal/config/config.go - YAML configuration with include merging
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Prometheus    PrometheusConfig   `yaml:"prometheus"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Snapshot      SnapshotConfig     `yaml:"snapshot"`
	Logs          LogsConfig         `yaml:"logs"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Hosts         []HostConfig       `yaml:"hosts"`
	Include       IncludeConfig      `yaml:"include"`
}

type IncludeConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
	Enabled   bool   `yaml:"enabled"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type PrometheusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MetricsPath string `yaml:"metrics_path"`
}

// MonitoringConfig seeds the runtime settings on first start and holds the
// orchestrator knobs that are not editable at runtime.
type MonitoringConfig struct {
	CheckInterval       time.Duration `yaml:"check_interval"`
	ConfirmationDelay   time.Duration `yaml:"confirmation_delay"`
	Timezone            string        `yaml:"timezone"`
	MinFailingCameras   int           `yaml:"min_failing_cameras"`
	MaxConcurrentChecks int           `yaml:"max_concurrent_checks"`
	RunOnStart          *bool         `yaml:"run_on_start"`
	ShutdownGrace       time.Duration `yaml:"shutdown_grace"` // 0 waits for running checks
	DataDir             string        `yaml:"data_dir"`
}

type SnapshotConfig struct {
	Provider    string        `yaml:"provider"` // html or stats
	Timeout     time.Duration `yaml:"timeout"`
	FailureText string        `yaml:"failure_text"`
	UserAgent   string        `yaml:"user_agent"`
}

type LogsConfig struct {
	Services []string      `yaml:"services"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HostConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Enabled *bool  `yaml:"enabled"`
}

// IsEnabled reports whether the host should be checked by scheduled cycles.
// Hosts are enabled unless explicitly turned off.
func (h HostConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// RunOnStartEnabled reports whether a cycle should run as soon as the scheduler starts.
func (m MonitoringConfig) RunOnStartEnabled() bool {
	return m.RunOnStart == nil || *m.RunOnStart
}

// PartialConfig represents a partial configuration that can be merged
type PartialConfig struct {
	Server        *ServerConfig       `yaml:"server,omitempty"`
	Logging       *LoggingConfig      `yaml:"logging,omitempty"`
	Notifications *NotificationConfig `yaml:"notifications,omitempty"`
	Hosts         []HostConfig        `yaml:"hosts,omitempty"`
}

func Load(filename string) (*Config, error) {
	config, err := loadConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config file: %w", err)
	}

	if config.Include.Enabled && config.Include.Directory != "" {
		if err := loadIncludes(config, filepath.Dir(filename)); err != nil {
			return nil, fmt.Errorf("failed to load includes: %w", err)
		}
	}

	setDefaults(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Parse builds a configuration from raw YAML without include processing.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	setDefaults(&config)
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func loadConfigFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func loadIncludes(config *Config, baseDir string) error {
	includeDir := config.Include.Directory
	if !filepath.IsAbs(includeDir) {
		includeDir = filepath.Join(baseDir, includeDir)
	}

	if _, err := os.Stat(includeDir); os.IsNotExist(err) {
		return fmt.Errorf("include directory does not exist: %s", includeDir)
	}

	pattern := config.Include.Pattern
	if pattern == "" {
		pattern = "*.yaml"
	}

	matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to glob include pattern: %w", err)
	}
	if pattern == "*.yaml" {
		ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
		if err != nil {
			return fmt.Errorf("failed to glob .yml files: %w", err)
		}
		matches = append(matches, ymlMatches...)
	}

	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})

	for _, match := range matches {
		if err := loadAndMergeInclude(config, match); err != nil {
			return fmt.Errorf("failed to load include file %s: %w", match, err)
		}
	}

	return nil
}

func loadAndMergeInclude(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read include file: %w", err)
	}

	var partial PartialConfig
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("failed to parse include file YAML: %w", err)
	}

	mergePartialConfig(config, &partial)
	return nil
}

func mergePartialConfig(config *Config, partial *PartialConfig) {
	// Hosts from includes replace same-id entries, otherwise append.
	for _, host := range partial.Hosts {
		replaced := false
		for i := range config.Hosts {
			if config.Hosts[i].ID == host.ID {
				config.Hosts[i] = host
				replaced = true
				break
			}
		}
		if !replaced {
			config.Hosts = append(config.Hosts, host)
		}
	}

	if partial.Server != nil {
		if partial.Server.Port != "" {
			config.Server.Port = partial.Server.Port
		}
		if partial.Server.ReadTimeout != 0 {
			config.Server.ReadTimeout = partial.Server.ReadTimeout
		}
		if partial.Server.WriteTimeout != 0 {
			config.Server.WriteTimeout = partial.Server.WriteTimeout
		}
	}

	if partial.Logging != nil {
		if partial.Logging.Level != "" {
			config.Logging.Level = partial.Logging.Level
		}
		if partial.Logging.Format != "" {
			config.Logging.Format = partial.Logging.Format
		}
	}

	if partial.Notifications != nil {
		mergeNotificationConfig(&config.Notifications, partial.Notifications)
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// trigger requests run a full check including the confirmation delay
		cfg.Server.WriteTimeout = 15 * time.Minute
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "boltdb"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/camwatch.db"
	}

	if cfg.Include.Pattern == "" {
		cfg.Include.Pattern = "*.yaml"
	}

	if cfg.Monitoring.CheckInterval == 0 {
		cfg.Monitoring.CheckInterval = 10 * time.Minute
	}
	if cfg.Monitoring.ConfirmationDelay == 0 {
		cfg.Monitoring.ConfirmationDelay = 5 * time.Minute
	}
	if cfg.Monitoring.Timezone == "" {
		cfg.Monitoring.Timezone = "America/Sao_Paulo"
	}
	if cfg.Monitoring.MinFailingCameras == 0 {
		cfg.Monitoring.MinFailingCameras = 2
	}
	if cfg.Monitoring.DataDir == "" {
		cfg.Monitoring.DataDir = "./data"
	}

	if cfg.Snapshot.Provider == "" {
		cfg.Snapshot.Provider = "html"
	}
	if cfg.Snapshot.Timeout == 0 {
		cfg.Snapshot.Timeout = 60 * time.Second
	}
	if cfg.Snapshot.FailureText == "" {
		cfg.Snapshot.FailureText = "No frames have been received, check error logs"
	}
	if cfg.Snapshot.UserAgent == "" {
		cfg.Snapshot.UserAgent = "camwatch/1.0"
	}

	if len(cfg.Logs.Services) == 0 {
		cfg.Logs.Services = []string{"go2rtc", "nginx", "frigate"}
	}
	if cfg.Logs.Endpoint == "" {
		cfg.Logs.Endpoint = "/api/logs/{service}"
	}
	if cfg.Logs.Timeout == 0 {
		cfg.Logs.Timeout = 30 * time.Second
	}

	if cfg.Prometheus.MetricsPath == "" {
		cfg.Prometheus.MetricsPath = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	for i := range cfg.Hosts {
		if cfg.Hosts[i].Name == "" {
			cfg.Hosts[i].Name = cfg.Hosts[i].ID
		}
		cfg.Hosts[i].Address = strings.TrimRight(cfg.Hosts[i].Address, "/")
	}

	setNotificationDefaults(&cfg.Notifications)
}

func validate(cfg *Config) error {
	if cfg.Database.Type != "boltdb" {
		return fmt.Errorf("only boltdb is supported currently")
	}

	if cfg.Monitoring.CheckInterval < time.Minute {
		return fmt.Errorf("monitoring.check_interval must be at least 1m")
	}
	if cfg.Monitoring.ConfirmationDelay < 0 {
		return fmt.Errorf("monitoring.confirmation_delay cannot be negative")
	}
	if cfg.Monitoring.MinFailingCameras < 2 {
		return fmt.Errorf("monitoring.min_failing_cameras must be at least 2")
	}
	if cfg.Monitoring.ShutdownGrace < 0 {
		return fmt.Errorf("monitoring.shutdown_grace cannot be negative")
	}
	if cfg.Monitoring.MaxConcurrentChecks < 0 {
		return fmt.Errorf("monitoring.max_concurrent_checks cannot be negative")
	}
	if _, err := time.LoadLocation(cfg.Monitoring.Timezone); err != nil {
		return fmt.Errorf("monitoring.timezone %q is not a valid IANA zone: %w", cfg.Monitoring.Timezone, err)
	}

	switch cfg.Snapshot.Provider {
	case "html", "stats":
	default:
		return fmt.Errorf("snapshot.provider must be html or stats, got %q", cfg.Snapshot.Provider)
	}

	if !strings.Contains(cfg.Logs.Endpoint, "{service}") {
		return fmt.Errorf("logs.endpoint must contain the {service} placeholder")
	}

	if cfg.Include.Enabled {
		if cfg.Include.Directory == "" {
			return fmt.Errorf("include.directory must be specified when include.enabled is true")
		}
		if _, err := filepath.Match(cfg.Include.Pattern, "test"); err != nil {
			return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
		}
	}

	hostIDs := make(map[string]bool)
	for _, host := range cfg.Hosts {
		if host.ID == "" {
			return fmt.Errorf("host %q has no id", host.Name)
		}
		if hostIDs[host.ID] {
			return fmt.Errorf("duplicate host ID: %s", host.ID)
		}
		hostIDs[host.ID] = true
		if !isValidURL(host.Address) {
			return fmt.Errorf("host '%s' address must be an http(s) URL", host.ID)
		}
	}

	return validateNotifications(&cfg.Notifications)
}

func isValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
