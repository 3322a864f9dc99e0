package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/nao1215/friendcrawl/internal/config"
	flog "github.com/nao1215/friendcrawl/internal/log"
	"github.com/spf13/cobra"
)

// binding copies one flag value into the Config when the flag was set
// explicitly on the command line.
type binding struct {
	name string
	set  func(v string) error
}

func stringVar(p *string) func(string) error {
	return func(v string) error {
		*p = v
		return nil
	}
}

func intVar(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func durationVar(p *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}

func boolVar(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

// bindings lists every flag that maps onto a Config field. A command only
// defines the subset it needs; the rest are skipped.
func bindings(cfg *config.Config) []binding {
	return []binding{
		{"verbose", boolVar(&cfg.Verbose)},
		{"log-format", stringVar(&cfg.LogFormat)},
		{"state", stringVar(&cfg.StatePath)},
		{"api-key", stringVar(&cfg.APIKey)},
		{"seed", stringVar(&cfg.Seed)},
		{"app", intVar(&cfg.TargetApp)},
		{"batch", intVar(&cfg.BatchSize)},
		{"interval", durationVar(&cfg.RequestInterval)},
		{"retries", intVar(&cfg.MaxRetries)},
		{"retry-delay", durationVar(&cfg.RetryDelay)},
		{"timeout", durationVar(&cfg.Timeout)},
		{"rate-limit-retries", intVar(&cfg.RateLimitRetries)},
		{"backoff-max", durationVar(&cfg.BackoffMax)},
		{"checkpoint", durationVar(&cfg.CheckpointInterval)},
		{"progress", durationVar(&cfg.ProgressInterval)},
		{"workers", intVar(&cfg.Workers)},
		{"max-failures", intVar(&cfg.MaxExpandFailures)},
		{"max-expansions", intVar(&cfg.MaxExpansions)},
		{"proxy", stringVar(&cfg.ProxyAddress)},
		{"tor", boolVar(&cfg.UseTor)},
		{"tor-timeout", durationVar(&cfg.TorStartupTimeout)},
		{"metrics-addr", stringVar(&cfg.MetricsAddr)},
		{"db", boolVar(&cfg.SaveToDB)},
		{"db-dir", stringVar(&cfg.DBDir)},
		{"base-url", stringVar(&cfg.BaseURL)},
	}
}

// buildConfig layers defaults, the configuration file, the environment and
// explicitly set flags, in that order.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	configPath, err := flagString(cmd, "config")
	if err != nil {
		return nil, err
	}
	cfg.ConfigFilePath = configPath

	// An explicit --config must exist; the implicit lookup may find nothing.
	if found := config.FindConfigFile(configPath); found != "" {
		file, err := config.LoadConfigFile(found)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
		}
		file.ApplyTo(cfg)
	} else if configPath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	cfg.ApplyEnv(os.Getenv)

	for _, b := range bindings(cfg) {
		f := cmd.Flags().Lookup(b.name)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(b.name)
		}
		if f == nil || !f.Changed {
			continue
		}
		if err := b.set(f.Value.String()); err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", b.name, err)
		}
	}

	return cfg, nil
}

// flagString reads a string flag from the command or its parents.
func flagString(cmd *cobra.Command, name string) (string, error) {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Value.String(), nil
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil {
		return f.Value.String(), nil
	}
	return "", fmt.Errorf("flag --%s not defined", name)
}

// setupLogger builds the redacting logger and installs it as the default.
func setupLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := flog.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
	slog.SetDefault(logger)
	return logger
}
