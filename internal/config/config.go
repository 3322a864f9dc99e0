package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "friendcrawl"

	// DefaultStateFile is the snapshot file name inside XDGDataDir.
	DefaultStateFile = "players.json"

	// DefaultSeed is the identity a crawl starts from when the store is empty.
	DefaultSeed = "76561199199514290"

	// DefaultTargetApp is the app whose ownership is probed (Team Fortress 2).
	DefaultTargetApp = 440

	// DefaultBatchSize is the number of identities per summaries request.
	// The Web API rejects more than 100.
	DefaultBatchSize = 100

	// MaxBatchSize is the largest batch the summaries endpoint accepts.
	MaxBatchSize = 100

	// DefaultRequestInterval spaces requests across all endpoints.
	DefaultRequestInterval = 1200 * time.Millisecond

	// DefaultMaxRetries is the number of attempts for a transient failure.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the pause between transient retries.
	DefaultRetryDelay = 2 * time.Second

	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimitRetries is the number of extra attempts after a 429.
	DefaultRateLimitRetries = 5

	// DefaultBackoffInitial and DefaultBackoffMax bound the 429 backoff.
	DefaultBackoffInitial = 1 * time.Second
	DefaultBackoffMax     = 60 * time.Second

	// DefaultCheckpointInterval is the minimum time between snapshots.
	DefaultCheckpointInterval = 60 * time.Second

	// DefaultProgressInterval is the period of the progress line.
	DefaultProgressInterval = 10 * time.Second

	// DefaultWorkers is the number of concurrent ownership probes.
	DefaultWorkers = 1

	// DefaultMaxExpandFailures is how many transient friend-list failures an
	// identity may accumulate before it leaves the frontier. Zero means no cap.
	DefaultMaxExpandFailures = 5

	// DefaultTorStartupTimeout bounds the embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultUserAgent identifies friendcrawl in HTTP requests.
	DefaultUserAgent = "friendcrawl/1.0 (+https://github.com/nao1215/friendcrawl)"

	// DefaultLogFormat is the slog handler used on stderr.
	DefaultLogFormat = LogFormatText
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Environment variables consulted for the API key, in order.
const (
	EnvAPIKey      = "FRIENDCRAWL_API_KEY"
	EnvSteamAPIKey = "STEAM_API_KEY"
)

// Config holds every option of a crawl. It is built from defaults, the
// optional .friendcrawl file, the environment and CLI flags, in that order
// of increasing precedence.
type Config struct {
	// APIKey is the Web API key. Required for crawl.
	APIKey string

	// StatePath is the JSON snapshot the store loads from and writes to.
	StatePath string

	// Seed is the identity inserted into an empty store.
	Seed string

	// TargetApp is the app id whose ownership is probed.
	TargetApp int

	BatchSize          int
	RequestInterval    time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	Timeout            time.Duration
	RateLimitRetries   int
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	CheckpointInterval time.Duration
	ProgressInterval   time.Duration
	Workers            int
	MaxExpandFailures  int

	// MaxExpansions stops the crawl after this many friend-list expansions.
	// Zero means unlimited.
	MaxExpansions int

	// ProxyAddress routes API traffic through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes API traffic through it.
	// Mutually exclusive with ProxyAddress.
	UseTor bool

	TorStartupTimeout time.Duration

	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string

	// DBDir is where the SQLite database lives. SaveToDB enables recording
	// crawl runs there.
	DBDir    string
	SaveToDB bool

	// ConfigFilePath is the explicit --config path, if any.
	ConfigFilePath string

	Verbose   bool
	LogFormat string
	UserAgent string

	// BaseURL overrides the Web API root. Used against test servers.
	BaseURL string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		StatePath:          DefaultStatePath(),
		Seed:               DefaultSeed,
		TargetApp:          DefaultTargetApp,
		BatchSize:          DefaultBatchSize,
		RequestInterval:    DefaultRequestInterval,
		MaxRetries:         DefaultMaxRetries,
		RetryDelay:         DefaultRetryDelay,
		Timeout:            DefaultTimeout,
		RateLimitRetries:   DefaultRateLimitRetries,
		BackoffInitial:     DefaultBackoffInitial,
		BackoffMax:         DefaultBackoffMax,
		CheckpointInterval: DefaultCheckpointInterval,
		ProgressInterval:   DefaultProgressInterval,
		Workers:            DefaultWorkers,
		MaxExpandFailures:  DefaultMaxExpandFailures,
		TorStartupTimeout:  DefaultTorStartupTimeout,
		DBDir:              XDGDataDir(),
		LogFormat:          DefaultLogFormat,
		UserAgent:          DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for friendcrawl.
// On Linux: ~/.local/share/friendcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for friendcrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultStatePath returns the default snapshot location.
func DefaultStatePath() string {
	return filepath.Join(XDGDataDir(), DefaultStateFile)
}

// ApplyEnv takes the API key from the environment when one of the
// variables is set. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for _, name := range []string{EnvAPIKey, EnvSteamAPIKey} {
		if v := getenv(name); v != "" {
			c.APIKey = v
			return
		}
	}
}

// Validate checks the options that every command relies on.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return ErrMissingStatePath
	}
	if !isSteamID(c.Seed) {
		return ErrInvalidSeed
	}
	if c.TargetApp <= 0 {
		return ErrInvalidTargetApp
	}
	if c.BatchSize <= 0 || c.BatchSize > MaxBatchSize {
		return ErrInvalidBatchSize
	}
	if c.RequestInterval < 0 {
		return ErrInvalidRequestInterval
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries < 1 || c.RateLimitRetries < 0 || c.RetryDelay < 0 {
		return ErrInvalidRetries
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		return ErrInvalidBackoff
	}
	if c.CheckpointInterval <= 0 {
		return ErrInvalidCheckpointInterval
	}
	if c.ProgressInterval < 0 {
		return ErrInvalidProgressInterval
	}
	if c.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.MaxExpandFailures < 0 {
		return ErrInvalidMaxExpandFailures
	}
	if c.MaxExpansions < 0 {
		return ErrInvalidMaxExpansions
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingTransports
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return ErrInvalidLogFormat
	}
	return nil
}

// ValidateCrawl is Validate plus the API key, which only crawl needs.
func (c *Config) ValidateCrawl() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// isSteamID reports whether s looks like a 64-bit community id.
func isSteamID(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
