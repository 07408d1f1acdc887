package main

import (
	"context"
	"fmt"
	"sync"

	"dotphrase/internal/config"
	"dotphrase/internal/inject"
	"dotphrase/internal/keystroke"
	"dotphrase/internal/logging"
	"dotphrase/internal/security"
	"dotphrase/internal/store"
)

// app carries what every command needs: the loaded configuration, the
// logger, and the constructors for the OS-facing pieces.
type app struct {
	configPath string
	verbose    bool

	loader *config.Loader
	cfg    *config.Config
	logger *logging.Logger

	newSource   func(keystroke.Options) keystroke.Source
	newInjector func(inject.Options) (inject.Injector, error)

	mu       sync.Mutex
	live     inject.Injector
	watching bool
}

func newApp() *app {
	return &app{
		newSource:   keystroke.New,
		newInjector: inject.New,
	}
}

// setup loads and validates the configuration and builds the logger.
func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		path = config.FindConfigFile()
	}

	a.loader = config.NewLoader(path)
	cfg, err := a.loader.Load()
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a.logger = logger
	logging.SetDefault(logger)
	return nil
}

// teardown releases the logger and config watcher. It is safe to call
// more than once.
func (a *app) teardown() {
	if a.loader != nil {
		a.loader.Close()
		a.loader = nil
	}
	if a.logger != nil {
		a.logger.Close()
		a.logger = nil
	}
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	lc.FilePath = cfg.Logging.FilePath
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxAge = cfg.Logging.MaxAgeDays
	lc.MaxBackups = cfg.Logging.MaxBackups
	lc.Compress = cfg.Logging.Compress
	lc.LogContent = cfg.Logging.LogContent
	return logging.New(lc)
}

// openStore opens the configured backend, sealing expansions when
// storage.encrypt is set.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	sc := a.cfg.Storage
	opts := store.Options{
		Backend:       sc.Backend,
		Path:          sc.Path,
		BusyTimeoutMs: sc.BusyTimeoutMs,
		RedisAddr:     sc.Redis.Addr,
		RedisPassword: sc.Redis.Password,
		RedisDB:       sc.Redis.DB,
		RedisKey:      sc.Redis.Key,
	}

	if sc.Encrypt {
		key, created, err := security.LoadOrCreateKey(sc.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load storage key: %w", err)
		}
		if created {
			a.logger.Info("created storage key", "path", sc.KeyPath)
		}
		opts.SealKey = key
	}

	s, err := store.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", sc.Backend, err)
	}
	return s, nil
}

// withStore runs fn against an open store and closes it afterwards.
func (a *app) withStore(ctx context.Context, fn func(store.Store) error) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
