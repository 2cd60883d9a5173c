package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pacewatch/internal/config"
	"pacewatch/internal/notify"
	"pacewatch/internal/observability/pprof"
	"pacewatch/internal/paceman"
	"pacewatch/internal/runtime/supervisor"
	"pacewatch/internal/schedule"
	"pacewatch/internal/storage"
	"pacewatch/internal/watch"
	logx "pacewatch/pkg/logx"
)

// Options are the process-level toggles from the CLI. They are independently
// combinable and always win over the config document.
type Options struct {
	ConfigPath string
	Once       bool
	DryRun     bool
	Force      bool
	NoQuiet    bool
}

// App owns the whole daemon: config manager, logging service, storage, the
// upstream client, the notify pipeline, the watch service and pprof.
type App struct {
	opts Options

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	client *paceman.Client
	notif  *notify.Service
	watch  *watch.Service
	pprof  *pprof.Service

	// done closes when the watch service exits on its own (Once mode).
	done chan struct{}
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(mapLogging(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		opts: opts,
		cfgm: cfgm,
		log:  log,
		logs: logs,
		done: make(chan struct{}),
	}

	// Storage (optional)
	if cfg.Storage != nil {
		sc, err := mapStorage(*cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		if st != nil {
			log.Info("storage enabled", logx.String("driver", sc.Driver))
		}
	}

	sinks, err := buildSinks(cfg.Notify)
	if err != nil {
		return nil, err
	}
	if len(sinks) == 0 && !opts.DryRun {
		log.Warn("no notification sinks configured; deliveries will be no-ops")
	}
	a.notif = notify.New(a.mapNotify(cfg), sinks, log.With(logx.String("comp", "notify")))

	uc, err := mapUpstream(cfg.Upstream)
	if err != nil {
		return nil, err
	}
	a.client = paceman.New(uc, nil, log.With(logx.String("comp", "upstream")))

	wopts, resync, maint, err := a.mapWatch(cfg.Watch)
	if err != nil {
		return nil, err
	}
	a.watch = watch.NewService(a.client, a.store, a.notif, a.configView, wopts, resync, maint,
		log.With(logx.String("comp", "watch")))

	a.pprof = pprof.New(mapPprof(cfg.Pprof), log.With(logx.String("comp", "pprof")))

	return a, nil
}

// configView adapts the committed config document to the watch service's
// view. Called from watcher ticks, so it must stay cheap.
func (a *App) configView() watch.ConfigView {
	cfg := a.cfgm.Get()
	if cfg == nil {
		return watch.ConfigView{}
	}
	return watch.ConfigView{
		Streamers: cfg.Streamers,
		Defaults:  cfg.Defaults,
		Profiles:  cfg.Profiles,
	}
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if !a.opts.Once {
		a.sup.Go("config.watch", a.cfgm.Watch)

		updates := a.cfgm.Subscribe(4)
		a.sup.Go0("config.apply", func(ctx context.Context) {
			defer a.cfgm.Unsubscribe(updates)
			for {
				select {
				case <-ctx.Done():
					return
				case cfg, ok := <-updates:
					if !ok {
						return
					}
					a.applyReload(ctx, cfg)
				}
			}
		})

		a.pprof.Reconfigure(ctx, mapPprof(a.cfgm.Get().Pprof))
	}

	a.sup.Go("watch.service", func(ctx context.Context) error {
		err := a.watch.Run(ctx)
		close(a.done)
		return err
	})

	a.notifySystemd(daemon.SdNotifyReady)
	a.startWatchdog()
	a.log.Info("pacewatch started",
		logx.Bool("once", a.opts.Once),
		logx.Bool("dry_run", a.opts.DryRun),
		logx.Bool("force", a.opts.Force),
	)
	return nil
}

// Done closes when the watch service finishes on its own, which only happens
// in Once mode.
func (a *App) Done() <-chan struct{} { return a.done }

func (a *App) Stop(ctx context.Context) error {
	a.notifySystemd(daemon.SdNotifyStopping)
	a.log.Info("pacewatch stopping")

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	a.pprof.Stop(ctx)
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return err
}

// applyReload pushes a validated config update into the runtime services.
// Watch loop rules and streamer membership re-read the committed config on
// their own cadence; only the push-style consumers need explicit re-apply.
func (a *App) applyReload(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLogging(cfg.Logging))
	a.notif.Apply(a.mapNotify(cfg))
	a.pprof.Reconfigure(ctx, mapPprof(cfg.Pprof))
	a.log.Info("configuration reloaded", logx.Int("streamers", len(cfg.Streamers)))
}

func (a *App) notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify", logx.String("state", state))
	}
}

// startWatchdog pings the systemd watchdog at half the configured interval
// when WatchdogSec is set on the unit. No-op otherwise.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

// ---- config mapping ----

func mapLogging(lc config.LoggingConfig) logx.Config {
	console := true
	if lc.Console != nil {
		console = *lc.Console
	}
	return logx.Config{
		Level:   lc.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapStorage(sc config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

func (a *App) mapNotify(cfg *config.Config) notify.Config {
	return notify.Config{
		RatePerSec:  cfg.Notify.RatePerSec,
		QuietSpans:  cfg.QuietHours,
		DryRun:      a.opts.DryRun,
		IgnoreQuiet: a.opts.NoQuiet,
	}
}

func buildSinks(nc config.NotifyConfig) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if len(nc.Command) > 0 {
		s, err := notify.NewCommandSink(nc.Command)
		if err != nil {
			return nil, fmt.Errorf("notify.command: %w", err)
		}
		sinks = append(sinks, s)
	}
	if nc.Telegram != nil && strings.TrimSpace(nc.Telegram.Token) != "" {
		s, err := notify.NewTelegramSink(notify.TelegramConfig{
			Token:  nc.Telegram.Token,
			ChatID: nc.Telegram.ChatID,
		})
		if err != nil {
			return nil, fmt.Errorf("notify.telegram: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func mapUpstream(uc config.UpstreamConfig) (paceman.Config, error) {
	timeout, err := config.ParseDurationField("upstream.timeout", uc.Timeout)
	if err != nil {
		return paceman.Config{}, err
	}
	ttl, err := config.ParseDurationField("upstream.live_cache_ttl", uc.LiveCacheTTL)
	if err != nil {
		return paceman.Config{}, err
	}
	return paceman.Config{
		BaseURL:      uc.BaseURL,
		LiveURL:      uc.LiveURL,
		Timeout:      timeout,
		RatePerSec:   uc.RatePerSec,
		LiveCacheTTL: ttl,
	}, nil
}

func (a *App) mapWatch(wc config.WatchConfig) (watch.Options, time.Duration, *schedule.ParsedSpec, error) {
	discovery, err := config.ParseDurationField("watch.discovery_interval", wc.DiscoveryInterval)
	if err != nil {
		return watch.Options{}, 0, nil, err
	}
	run, err := config.ParseDurationField("watch.run_interval", wc.RunInterval)
	if err != nil {
		return watch.Options{}, 0, nil, err
	}
	resync, err := config.ParseDurationOrDefault("watch.resync_interval", wc.ResyncInterval, 5*time.Second)
	if err != nil {
		return watch.Options{}, 0, nil, err
	}
	grace, err := config.ParseDurationField("watch.grace_period", wc.GracePeriod)
	if err != nil {
		return watch.Options{}, 0, nil, err
	}

	var maint *schedule.ParsedSpec
	if strings.TrimSpace(wc.Maintenance) != "" {
		ps, err := schedule.Parse(wc.Maintenance)
		if err != nil {
			return watch.Options{}, 0, nil, fmt.Errorf("watch.maintenance: %w", err)
		}
		maint = &ps
	}

	opts := watch.Options{
		DiscoveryInterval: discovery,
		RunInterval:       run,
		GracePeriod:       grace,
		Once:              a.opts.Once,
		Force:             a.opts.Force,
	}
	return opts, resync, maint, nil
}

func mapPprof(pc config.PprofConfig) pprof.Config {
	return pprof.Config{
		Enabled:       pc.Enabled,
		Addr:          pc.Addr,
		Token:         pc.Token,
		AllowInsecure: pc.AllowInsecure,
	}
}
