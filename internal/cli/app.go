package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/conversation"
	"github.com/soyeahso/parley/internal/hooks"
	"github.com/soyeahso/parley/internal/llm"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/practice"
	"github.com/soyeahso/parley/internal/scenario"
	"github.com/soyeahso/parley/internal/session"
	"github.com/soyeahso/parley/internal/store"
	"github.com/soyeahso/parley/internal/telemetry"
	"github.com/soyeahso/parley/internal/version"
)

// app is the wired set of components shared by serve and practice.
type app struct {
	hooks    *hooks.Manager
	practice *practice.Service

	closers []func(context.Context) error
}

// loadConfig reads and validates the config file, logging every issue.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// configureLogging replaces the root logger with one at the configured level,
// teeing into a rotating file when logging.file is set.
func configureLogging(cfg config.LoggingConfig, console io.Writer) (io.Closer, error) {
	if cfg.File == "" {
		log = logging.New(console, cfg.Level)
		return nil, nil
	}
	l, closer, err := logging.NewWithFile(console, cfg.Level, logging.FileOptions{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log = l
	return closer, nil
}

// openStore opens the configured session store backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(context.Context) error, error) {
	switch cfg.Driver {
	case "memory":
		log.Info().Msg("using in-memory session store")
		return store.NewMemoryStore(), nil, nil
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("using postgres session store")
		return pg, func(context.Context) error { return pg.Close() }, nil
	default:
		path := cfg.Path
		if path == "" {
			path = paths.Database()
		}
		db, err := store.Open(path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		log.Info().Str("path", path).Msg("using SQLite session store")
		return store.NewSQLiteStore(db), func(context.Context) error { return db.Close() }, nil
	}
}

// newApp wires store, hooks, LLM, telemetry and the practice service.
// Call Close when done.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{hooks: hooks.NewManager(log)}
	if n := a.hooks.RegisterConfig(cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Msg("command hooks registered")
	}

	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	client, registry, err := llm.NewFromConfig(cfg.LLM, log)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	log.Info().Strs("providers", registry.List()).Str("primary", cfg.LLM.Provider).Msg("LLM providers ready")

	tel, err := telemetry.Init(ctx, cfg.Telemetry, version.Version, log)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	a.closers = append(a.closers, tel.Shutdown)

	sessions := session.NewManager(st, log,
		session.WithRetainEnded(cfg.Session.ShouldRetainEnded()),
		session.WithHooks(a.hooks),
	)

	a.practice, err = practice.NewService(
		sessions,
		conversation.NewLLMService(client, log),
		scenario.NewGenerator(),
		log,
		practice.WithHooks(a.hooks),
		practice.WithPracticeConfig(cfg.Practice),
		practice.WithTelemetry(tel.Tracer, tel.Meter),
	)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Close waits for in-flight hooks, then releases resources in reverse
// order of acquisition.
func (a *app) Close(ctx context.Context) {
	if err := a.hooks.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("hooks still running at shutdown")
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("shutdown step failed")
		}
	}
	a.closers = nil
}
