package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/friendcrawl/internal/config"
	"github.com/nao1215/friendcrawl/internal/crawler"
	"github.com/nao1215/friendcrawl/internal/database"
	"github.com/nao1215/friendcrawl/internal/frontier"
	"github.com/nao1215/friendcrawl/internal/metrics"
	"github.com/nao1215/friendcrawl/internal/progress"
	"github.com/nao1215/friendcrawl/internal/resolver"
	"github.com/nao1215/friendcrawl/internal/steamapi"
	"github.com/nao1215/friendcrawl/internal/store"
	"github.com/nao1215/friendcrawl/internal/tor"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the friends graph and record app ownership",
		Long: `Crawl loads the state file, resolves any identity whose visibility or
ownership is still unknown, then repeatedly expands the friends list of a
public, not yet crawled account.

The state file is checkpointed periodically and always written once more
when the crawl ends, including on Ctrl-C. Run the same command again to
resume.

Examples:
  # Crawl with the key from FRIENDCRAWL_API_KEY
  friendcrawl crawl

  # Stop after 500 expansions
  friendcrawl crawl --max-expansions 500

  # Route requests through a local Tor SOCKS port
  friendcrawl crawl --proxy 127.0.0.1:9050

  # Expose Prometheus metrics while crawling
  friendcrawl crawl --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().String("api-key", "", "Web API key (default: $FRIENDCRAWL_API_KEY or $STEAM_API_KEY)")
	cmd.Flags().String("seed", config.DefaultSeed, "Account ensured in the state file on every start")
	cmd.Flags().Int("app", config.DefaultTargetApp, "App id whose ownership is recorded")

	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Identities per summaries request (1-100)")
	cmd.Flags().Duration("interval", config.DefaultRequestInterval, "Minimum spacing between requests")
	cmd.Flags().Int("retries", config.DefaultMaxRetries, "Attempts for a transient failure")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay, "Pause between transient retries")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout of a single HTTP attempt")
	cmd.Flags().Int("rate-limit-retries", config.DefaultRateLimitRetries, "Extra attempts after HTTP 429")
	cmd.Flags().Duration("backoff-max", config.DefaultBackoffMax, "Longest wait between 429 retries")

	cmd.Flags().Duration("checkpoint", config.DefaultCheckpointInterval, "Minimum time between checkpoints")
	cmd.Flags().Duration("progress", config.DefaultProgressInterval, "Progress line period (0 disables it)")
	cmd.Flags().Int("workers", config.DefaultWorkers, "Concurrent owned-games probes")
	cmd.Flags().Int("max-failures", config.DefaultMaxExpandFailures, fmt.Sprintf("Friends-list failures in one run before an account is skipped until the next run (0 = never; retries wait %s)", crawler.DefaultRetryPause))
	cmd.Flags().IntP("max-expansions", "n", 0, "Stop after this many expansions (0 = unlimited)")

	cmd.Flags().String("proxy", "", "Route requests through a SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false, "Route requests through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")

	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Bool("db", false, "Record the run and the players in the SQLite database")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the SQLite database")

	cmd.Flags().String("base-url", steamapi.DefaultBaseURL, "Web API root")
	_ = cmd.Flags().MarkHidden("base-url") //nolint:errcheck // flag defined above

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateCrawl(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, writing final snapshot...")
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err = runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
	return err
}

// runCrawl wires the gateway, resolver, engine, progress reporter and
// metrics listener for one crawl. The error is non-nil when setup fails or
// the final snapshot could not be written.
func runCrawl(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (crawler.Summary, error) {
	startedAt := time.Now()
	runID := database.NewRunID()
	logger = logger.With("run", runID)

	if dir := filepath.Dir(cfg.StatePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return crawler.Summary{}, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	st := store.Load(cfg.StatePath,
		store.WithLogger(logger),
		store.WithMaxExpandFailures(cfg.MaxExpandFailures),
	)
	logger.Info("state loaded", "path", cfg.StatePath, "players", st.Len())

	httpClient, stopTransport, err := newTransport(ctx, cfg, out, logger)
	if err != nil {
		return crawler.Summary{}, err
	}
	defer stopTransport()

	collector := metrics.New()

	gwOpts := []steamapi.Option{
		steamapi.WithRequestInterval(cfg.RequestInterval),
		steamapi.WithRetry(cfg.MaxRetries, cfg.RetryDelay),
		steamapi.WithTimeout(cfg.Timeout),
		steamapi.WithRateLimitBackoff(cfg.RateLimitRetries, cfg.BackoffInitial, cfg.BackoffMax),
		steamapi.WithObserver(collector),
		steamapi.WithLogger(logger),
		steamapi.WithUserAgent(cfg.UserAgent),
	}
	if cfg.BaseURL != "" {
		gwOpts = append(gwOpts, steamapi.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		gwOpts = append(gwOpts, steamapi.WithHTTPClient(httpClient))
	}
	gw := steamapi.New(cfg.APIKey, gwOpts...)

	res := resolver.New(gw, st,
		resolver.WithTargetApp(cfg.TargetApp),
		resolver.WithBatchSize(cfg.BatchSize),
		resolver.WithWorkers(cfg.Workers),
		resolver.WithLogger(logger),
	)

	eng := crawler.New(st, gw, res, cfg.StatePath,
		crawler.WithSeed(cfg.Seed),
		crawler.WithCheckpointInterval(cfg.CheckpointInterval),
		crawler.WithMaxExpansions(cfg.MaxExpansions),
		crawler.WithSelector(frontier.NewSelector(frontier.WithMaxFailures(cfg.MaxExpandFailures))),
		crawler.WithObserver(collector),
		crawler.WithLogger(logger),
	)

	reporter := progress.New(st, out, progress.WithInterval(cfg.ProgressInterval))

	var metricsLn net.Listener
	if cfg.MetricsAddr != "" {
		var lc net.ListenConfig
		metricsLn, err = lc.Listen(ctx, "tcp", cfg.MetricsAddr)
		if err != nil {
			return crawler.Summary{}, fmt.Errorf("failed to listen on %s: %w", cfg.MetricsAddr, err)
		}
	}

	// The engine owns the lifetime of the run; the helpers stop when it does.
	helpersCtx, stopHelpers := context.WithCancel(context.Background())
	defer stopHelpers()

	var (
		g       errgroup.Group
		summary crawler.Summary
		runErr  error
	)
	g.Go(func() error {
		defer stopHelpers()
		summary, runErr = eng.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return reporter.Run(helpersCtx)
	})
	if metricsLn != nil {
		g.Go(func() error {
			if err := metrics.Serve(helpersCtx, metricsLn, collector.Handler(), logger); err != nil {
				logger.Warn("metrics listener stopped", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("progress reporter stopped", "error", err)
	}

	printSummary(out, summary, time.Since(startedAt))

	if cfg.SaveToDB {
		if err := recordCrawl(cfg, st, summary, runID, startedAt, logger); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}

	if summary.Err != nil {
		logger.Error("crawl stopped on an unrecoverable error", "error", summary.Err)
	}
	return summary, runErr
}

// newTransport returns the HTTP client for --proxy or --tor, or nil for a
// direct connection. The returned stop function is always safe to call.
func newTransport(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*http.Client, func(), error) {
	noop := func() {}

	switch {
	case cfg.ProxyAddress != "":
		client, err := tor.NewClient(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create proxy client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, noop, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Error(), cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return client.NewHTTPClient(), noop, nil

	case cfg.UseTor:
		fmt.Fprintln(out, "Starting embedded Tor daemon...")
		fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := embedded.Start(ctx); err != nil {
			return nil, noop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		logger.Info("embedded Tor daemon started",
			"socksAddr", embedded.SocksAddr(),
			"controlAddr", embedded.ControlAddr(),
		)

		client, err := embedded.NewClient(cfg.Timeout)
		if err != nil {
			stop()
			return nil, noop, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			stop()
			return nil, noop, fmt.Errorf("embedded Tor proxy check failed: %s", status)
		}
		return client.NewHTTPClient(), stop, nil
	}

	return nil, noop, nil
}

func printSummary(w io.Writer, s crawler.Summary, elapsed time.Duration) {
	fmt.Fprintf(w, "\ncrawl %s (%s) after %s: %d expansions, %d expanded, %d deferred, %d hidden, %d discovered, %d checkpoints\n",
		s.State, s.Reason, elapsed.Round(time.Second),
		s.Expansions, s.Expanded, s.Deferred, s.Hidden, s.Discovered, s.Checkpoints)
}

// recordCrawl stores the run and a copy of the players in the database.
// It uses its own context so that it still runs after Ctrl-C.
func recordCrawl(cfg *config.Config, st *store.Store, s crawler.Summary, runID string, startedAt time.Time, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	n, err := db.UpsertPlayers(ctx, st.Records())
	if err != nil {
		return err
	}

	run := &database.Run{
		ID:         runID,
		Kind:       database.RunKindCrawl,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		State:      s.State.String(),
		Reason:     s.Reason.String(),
		Expansions: s.Expansions,
		Discovered: s.Discovered,
		Players:    n,
		Owners:     st.Stats().Owning,
		StatePath:  cfg.StatePath,
	}
	if err := db.RecordRun(ctx, run); err != nil {
		return err
	}
	logger.Info("run recorded", "db", db.Path(), "players", n)
	return nil
}
