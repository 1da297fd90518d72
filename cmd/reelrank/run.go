package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/FranksOps/reelrank/internal/config"
	"github.com/FranksOps/reelrank/internal/errlog"
	"github.com/FranksOps/reelrank/internal/exporter"
	"github.com/FranksOps/reelrank/internal/hiker"
	"github.com/FranksOps/reelrank/internal/metrics"
	"github.com/FranksOps/reelrank/internal/model"
	"github.com/FranksOps/reelrank/internal/pipeline"
	"github.com/FranksOps/reelrank/internal/transport"
	"github.com/FranksOps/reelrank/pkg/proxy"
	"github.com/FranksOps/reelrank/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// pacingJitter spreads paced requests by up to this fraction of the interval.
const pacingJitter = 0.1

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search accounts, fetch profiles and reels, rank and export",
		Example: `  reelrank run --query "coffee roaster" --query barista --top-k 5
  REELRANK_TOKEN=... reelrank run -q latte --concurrency 20 --output-prefix out/latte`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}

	d := viper.New()
	config.SetDefaults(d)

	f := cmd.Flags()
	f.StringSliceP(config.KeyQuery, "q", nil, "search keyword (repeatable)")
	f.String(config.KeyToken, "", "HikerAPI access key")
	f.String(config.KeyBaseURL, d.GetString(config.KeyBaseURL), "HikerAPI base URL")
	f.Int(config.KeyMaxAccounts, d.GetInt(config.KeyMaxAccounts), "max unique accounts across all queries (0 = no cap)")
	f.Int(config.KeyRecentReels, d.GetInt(config.KeyRecentReels), "recent reels to fetch per account")
	f.Int(config.KeyTopK, d.GetInt(config.KeyTopK), "top reels to keep per account")
	f.String(config.KeyOutputPrefix, d.GetString(config.KeyOutputPrefix), "output path prefix")
	f.Duration(config.KeyTimeout, d.GetDuration(config.KeyTimeout), "per-request timeout")
	f.Int(config.KeyConcurrency, d.GetInt(config.KeyConcurrency), "accounts processed concurrently")
	f.Int(config.KeyRetries, d.GetInt(config.KeyRetries), "retries per API call after the first attempt")
	f.Duration(config.KeyRetryDelay, d.GetDuration(config.KeyRetryDelay), "delay between retries")
	f.String(config.KeyErrorLog, d.GetString(config.KeyErrorLog), "error log path (appended)")
	f.Float64(config.KeyRPS, d.GetFloat64(config.KeyRPS), "max API requests per second (0 = unpaced)")
	f.String(config.KeyProxyFile, "", "file with one proxy URL per line")
	f.String(config.KeyTLSProfile, d.GetString(config.KeyTLSProfile), "TLS client profile: go, chrome, firefox, safari or random")
	f.Int(config.KeyMetricsPort, 0, "serve Prometheus metrics on this port (0 = disabled)")

	return cmd
}

func (a *app) run(ctx context.Context) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort, logger)
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				logger.Warn("metrics server shutdown", "err", err)
			}
		}()
		logger.Info("metrics server listening", "port", cfg.MetricsPort)
	}

	rt, err := a.transport(cfg)
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if cfg.RPS > 0 {
		limiter = ratelimit.NewLimiter(cfg.RPS, pacingJitter)
	}

	client, err := hiker.New(hiker.Config{
		BaseURL:        cfg.BaseURL,
		Token:          cfg.Token,
		RequestTimeout: cfg.Timeout,
		Retry:          cfg.RetryPolicy(),
		Transport:      rt,
		Limiter:        limiter,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	sink := errlog.New(cfg.ErrorLog, runID, logger)
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close error log", "err", err)
		}
	}()

	logger.Info("run started",
		"queries", strings.Join(cfg.Queries, ","),
		"max_accounts", cfg.MaxAccounts,
		"concurrency", cfg.Concurrency,
		"top_k", cfg.TopK,
	)

	rep := pipeline.New(client, sink, cfg.Pipeline(), logger).Run(ctx, cfg.Queries)
	if ctx.Err() != nil {
		logger.Warn("run interrupted, exporting partial results", "entries", len(rep.Entries), "skipped", rep.Skipped)
	}

	paths, err := exporter.New(logger).Export(rep.Entries, cfg.OutputPrefix)
	if err != nil {
		sink.Record(model.ErrorRecord{
			Context:      model.ContextExport,
			ErrorType:    rootType(err),
			ErrorMessage: err.Error(),
		})
		logger.Error("export failed", "err", err)
		return fmt.Errorf("export: %w", err)
	}

	written, dropped := sink.Stats()
	logger.Info("run complete",
		"accounts", len(rep.Entries),
		"failed", rep.Failed,
		"degraded", rep.Degraded,
		"error_records", written,
		"error_records_dropped", dropped,
		"accounts_jsonl", paths.AccountsJSONL,
		"accounts_csv", paths.AccountsCSV,
		"reels_csv", paths.ReelsCSV,
	)
	return nil
}

func (a *app) transport(cfg config.Config) (http.RoundTripper, error) {
	profile, err := transport.ParseProfile(cfg.TLSProfile)
	if err != nil {
		return nil, err
	}

	var pool *proxy.Pool
	if cfg.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
		a.logger.Info("proxy rotation enabled", "proxies", pool.Len())
	}

	return transport.New(transport.Config{
		Profile: profile,
		Proxies: pool,
		Logger:  a.logger,
	})
}

// rootType names the innermost error's type for the error log.
func rootType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
