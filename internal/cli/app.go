package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"netcraft/internal/config"
	"netcraft/internal/db"
	"netcraft/internal/llm"
	"netcraft/internal/logging"
	"netcraft/internal/metrics"
	"netcraft/internal/provider"
	"netcraft/internal/session"
	"netcraft/internal/tools"
)

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	db       *sql.DB
	session  *session.Session
	closers  []io.Closer
	stopHTTP context.CancelFunc
}

type appOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
	interactive bool // the TUI owns stderr
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.interactive && cfg.Log.File == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			cfg.Log.File = filepath.Join(dir, "netcraft", "netcraft.log")
		}
	}

	a := &app{cfg: cfg, metrics: metrics.New()}
	logger, closer, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	a.closers = append(a.closers, closer)

	if cfg.Metrics.Addr != "" {
		httpCtx, cancel := context.WithCancel(ctx)
		a.stopHTTP = cancel
		go func() {
			if err := a.metrics.Serve(httpCtx, cfg.Metrics.Addr); err != nil {
				a.logger.Error("metrics_server", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	reg := tools.NewRegistry(
		tools.WithTimeout(cfg.Tools.Timeout),
		tools.WithLogger(logger),
		tools.WithObserver(a.metrics.ObserveExecution),
	)
	if err := tools.RegisterBuiltins(reg, tools.Deps{}); err != nil {
		a.Close()
		return nil, fmt.Errorf("register tools: %w", err)
	}

	selector := provider.NewSelector(cfg.ProviderSpecs(), cfg.Preference,
		provider.NewHTTPProber(cfg.Tools.ProbeTimeout), a.buildBackend)

	if !cfg.DB.Disabled {
		path, err := cfg.DBPath()
		if err == nil {
			a.db, err = db.Open(path)
		}
		if err != nil {
			// history is optional; the session runs without an audit trail
			logger.Warn("audit_disabled", "error", err)
		} else {
			a.closers = append(a.closers, a.db)
		}
	}

	a.session = session.New(session.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		StepTimeout:   cfg.Agent.StepTimeout,
		ReasonTimeout: cfg.Agent.ReasonTimeout,
		RingSize:      cfg.Tools.RingSize,
		Memory:        cfg.MemoryConfig(),
	}, session.Deps{
		Registry: reg,
		Selector: selector,
		DB:       a.db,
		Metrics:  a.metrics,
		Logger:   logger,
	})
	logger.Debug("app_ready", "session", a.session.ID(), "audit", a.db != nil)
	return a, nil
}

func (a *app) buildBackend(sp provider.Spec) llm.Backend {
	client := llm.New(llm.Config{
		Provider:    sp.ID,
		Model:       sp.Model,
		APIKey:      sp.APIKey,
		BaseURL:     sp.ChatURL(),
		Temperature: a.cfg.Providers[sp.ID].Temperature,
		MaxRetries:  a.cfg.Agent.MaxRetries,
	}, a.logger, a.metrics)
	return llm.WithRateLimit(client, a.cfg.RateLimit.RequestsPerMinute)
}

func (a *app) Close() error {
	if a.stopHTTP != nil {
		a.stopHTTP()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
