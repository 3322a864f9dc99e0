package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".friendcrawl"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the layout of the .friendcrawl YAML file. Zero values leave the
// corresponding Config field untouched.
type File struct {
	APIKey    string `yaml:"apiKey,omitempty"`
	StatePath string `yaml:"stateFile,omitempty"`
	Seed      string `yaml:"seed,omitempty"`
	TargetApp int    `yaml:"targetApp,omitempty"`

	Requests RequestsFile `yaml:"requests,omitempty"`
	Crawl    CrawlFile    `yaml:"crawl,omitempty"`

	Proxy       string `yaml:"proxy,omitempty"`
	Tor         bool   `yaml:"tor,omitempty"`
	MetricsAddr string `yaml:"metricsAddr,omitempty"`
	DBDir       string `yaml:"dbDir,omitempty"`
	LogFormat   string `yaml:"logFormat,omitempty"`
	UserAgent   string `yaml:"userAgent,omitempty"`
}

// RequestsFile groups the Web API pacing options.
type RequestsFile struct {
	BatchSize        int           `yaml:"batchSize,omitempty"`
	Interval         time.Duration `yaml:"interval,omitempty"`
	MaxRetries       int           `yaml:"maxRetries,omitempty"`
	RetryDelay       time.Duration `yaml:"retryDelay,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`
	RateLimitRetries int           `yaml:"rateLimitRetries,omitempty"`
	BackoffInitial   time.Duration `yaml:"backoffInitial,omitempty"`
	BackoffMax       time.Duration `yaml:"backoffMax,omitempty"`
}

// CrawlFile groups the engine options.
type CrawlFile struct {
	CheckpointInterval time.Duration `yaml:"checkpointInterval,omitempty"`
	ProgressInterval   time.Duration `yaml:"progressInterval,omitempty"`
	Workers            int           `yaml:"workers,omitempty"`
	MaxExpandFailures  int           `yaml:"maxExpandFailures,omitempty"`
	MaxExpansions      int           `yaml:"maxExpansions,omitempty"`
}

// LoadConfigFile reads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ApplyTo copies every non-zero value of f onto cfg.
func (f *File) ApplyTo(cfg *Config) {
	setString(&cfg.APIKey, f.APIKey)
	setString(&cfg.StatePath, f.StatePath)
	setString(&cfg.Seed, f.Seed)
	setInt(&cfg.TargetApp, f.TargetApp)

	setInt(&cfg.BatchSize, f.Requests.BatchSize)
	setDuration(&cfg.RequestInterval, f.Requests.Interval)
	setInt(&cfg.MaxRetries, f.Requests.MaxRetries)
	setDuration(&cfg.RetryDelay, f.Requests.RetryDelay)
	setDuration(&cfg.Timeout, f.Requests.Timeout)
	setInt(&cfg.RateLimitRetries, f.Requests.RateLimitRetries)
	setDuration(&cfg.BackoffInitial, f.Requests.BackoffInitial)
	setDuration(&cfg.BackoffMax, f.Requests.BackoffMax)

	setDuration(&cfg.CheckpointInterval, f.Crawl.CheckpointInterval)
	setDuration(&cfg.ProgressInterval, f.Crawl.ProgressInterval)
	setInt(&cfg.Workers, f.Crawl.Workers)
	setInt(&cfg.MaxExpandFailures, f.Crawl.MaxExpandFailures)
	setInt(&cfg.MaxExpansions, f.Crawl.MaxExpansions)

	setString(&cfg.ProxyAddress, f.Proxy)
	if f.Tor {
		cfg.UseTor = true
	}
	setString(&cfg.MetricsAddr, f.MetricsAddr)
	setString(&cfg.DBDir, f.DBDir)
	setString(&cfg.LogFormat, f.LogFormat)
	setString(&cfg.UserAgent, f.UserAgent)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .friendcrawl in the current directory
// 3. Look for .friendcrawl in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}
