package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dotphrase/internal/config"
	"dotphrase/internal/expand"
	"dotphrase/internal/inject"
	"dotphrase/internal/keystroke"
	"dotphrase/internal/logging"
	"dotphrase/internal/metrics"
	"dotphrase/internal/notify"
	"dotphrase/internal/phrasebook"
	"dotphrase/internal/security"
	"dotphrase/internal/session"
	"dotphrase/internal/store"
)

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Listen for dot-phrases until the cancel key or Ctrl-C",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.listen(ctx, cmd.OutOrStdout())
		},
	}
}

// keyDelaySetter is implemented by injectors whose pacing can change live.
type keyDelaySetter interface {
	SetKeyDelay(time.Duration)
}

// listen runs one listening session. Only one session per user may listen
// at a time; a second one would expand every trigger twice.
func (a *app) listen(ctx context.Context, out io.Writer) error {
	cfg := a.cfg
	logger := a.logger.WithComponent("session")

	cancelKey, err := config.CancelKind(cfg.Input.CancelKey)
	if err != nil {
		return err
	}

	lock, err := security.AcquireLock(config.LockPath())
	if err != nil {
		if errors.Is(err, security.ErrLocked) {
			return fmt.Errorf("another dotphrase session is already listening: %w", err)
		}
		return err
	}
	defer lock.Release()

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Phrasebook.Path != "" {
		a.loadPhrasebook(ctx, s, logger)
	}

	m := metrics.New()
	notifier := a.openNotifier(logger)
	if c, ok := notifier.(io.Closer); ok {
		defer c.Close()
	}

	inj, err := a.newInjector(inject.Options{
		DeviceName:  cfg.Injection.DeviceName,
		KeyDelay:    cfg.KeyDelay(),
		SettleDelay: cfg.SettleDelay(),
		Unicode:     inject.UnicodeMode(cfg.Injection.UnicodeInput),
	})
	if err != nil {
		return fmt.Errorf("open virtual keyboard: %w", err)
	}
	defer inj.Close()

	src := a.newSource(keystroke.Options{
		Devices:          cfg.Input.Devices,
		SyntheticDevices: []string{cfg.Injection.DeviceName},
		Buffer:           cfg.Input.Buffer,
	})
	if ok, reason := src.Available(); !ok {
		return fmt.Errorf("keyboard input unavailable: %s", reason)
	}

	engine := expand.New(s, inj,
		expand.WithLogger(a.logger.WithComponent("expand").Logger),
		expand.WithMetrics(m),
		expand.WithNotifier(notifier),
	)
	ctrl := session.New(src, engine,
		session.WithCancelKey(cancelKey),
		session.WithLogger(logger.Logger),
		session.WithMetrics(m),
		session.WithNotifier(notifier),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, m, func() (bool, string) {
			st := ctrl.State()
			return st == session.Listening, st.String()
		}, a.logger.WithComponent("metrics").Logger)
		go func() {
			if err := srv.Serve(runCtx); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	a.setLive(inj)
	defer a.setLive(nil)
	a.watchConfig(logger)

	fmt.Fprintf(out, "Listening for dot-phrases. Press %s to stop.\n", cancelKeyName(cancelKey))
	err = ctrl.Run(runCtx)
	switch {
	case err == nil:
		fmt.Fprintln(out, "Stopped listening.")
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, "Stopped listening.")
		return nil
	}
	return err
}

// loadPhrasebook imports the configured phrase file and, when asked,
// keeps re-importing it for the rest of the session.
func (a *app) loadPhrasebook(ctx context.Context, s store.Store, logger *logging.Logger) {
	pb := a.cfg.Phrasebook
	res, err := phrasebook.ImportFile(ctx, s, pb.Path, pb.Replace)
	if err != nil {
		logger.Warn("phrasebook import failed", "path", pb.Path, "error", err)
	} else {
		logger.Info("phrasebook imported", "path", pb.Path,
			"added", res.Added, "replaced", res.Replaced, "skipped", res.Skipped)
	}

	if pb.Watch {
		w := phrasebook.NewWatcher(pb.Path, s, pb.Replace,
			phrasebook.WithLogger(a.logger.WithComponent("phrasebook").Logger))
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("phrasebook watch stopped", "error", err)
			}
		}()
	}
}

func (a *app) openNotifier(logger *logging.Logger) notify.Notifier {
	if !a.cfg.Notify.Enabled {
		return notify.Nop{}
	}
	d, err := notify.NewDBus("dotphrase", int32(a.cfg.Notify.TimeoutMs))
	if err != nil {
		logger.Debug("desktop notifications unavailable", "error", err)
		return notify.Nop{}
	}
	return d
}

// watchConfig starts config hot-reload once per process. Only the log
// level and key pacing apply live; other settings need a restart.
func (a *app) watchConfig(logger *logging.Logger) {
	a.mu.Lock()
	started := a.watching
	a.watching = true
	a.mu.Unlock()
	if started || a.loader == nil {
		return
	}

	a.loader.OnChange(a.applyConfig)
	if err := a.loader.Watch(); err != nil {
		logger.Debug("config hot-reload disabled", "error", err)
		return
	}
	go func() {
		for {
			select {
			case err := <-a.loader.Errors():
				logger.Warn("config reload rejected", "error", err)
			case <-a.loader.Done():
				return
			}
		}
	}()
}

func (a *app) applyConfig(c *config.Config) {
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil && !a.verbose {
		a.logger.SetLevel(level)
	}

	a.mu.Lock()
	inj := a.live
	a.mu.Unlock()
	if d, ok := inj.(keyDelaySetter); ok {
		d.SetKeyDelay(c.KeyDelay())
	}

	a.logger.Info("configuration reloaded", "level", c.Logging.Level, "key_delay", c.KeyDelay())
}

func (a *app) setLive(inj inject.Injector) {
	a.mu.Lock()
	a.live = inj
	a.mu.Unlock()
}

func cancelKeyName(k keystroke.Kind) string {
	switch k {
	case keystroke.KindEscape:
		return "Esc"
	case keystroke.KindDelete:
		return "Delete"
	}
	return k.String()
}
