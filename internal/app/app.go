package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"birdrelay/internal/config"
	"birdrelay/internal/eventbus"
	"birdrelay/internal/health"
	"birdrelay/internal/metrics"
	"birdrelay/internal/relay"
	"birdrelay/internal/router"
	"birdrelay/internal/runtime/supervisor"
	"birdrelay/internal/schedule"
	"birdrelay/internal/storage"
	kit "birdrelay/internal/transport"
	telegram "birdrelay/internal/transport/telegram/adapter"
	logx "birdrelay/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Settings

	adapter *telegram.Adapter
	relay   *relay.Service
	router  *router.Manager
	sched   *schedule.Service
	metrics *metrics.Collector
	health  *health.Server
	sd      *health.Notifier

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the chat sink off so Apply() does not warn about a
	// missing target, then set the target and apply the final config.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if t := logChatTarget(cfg); !t.IsZero() {
		logSvc.SetChatTarget(t.ChatID, t.ThreadID)
	}
	logSvc.Apply(logCfg)
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver))

	tw, err := NewTwitterClient(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bus := eventbus.New()
	relaySvc := relay.NewService(relay.Deps{
		Log:          log,
		Adapter:      ad,
		Store:        store,
		Source:       NewSelector(cfg, tw, log),
		Bus:          bus,
		Delivery:     mapDeliveryOptions(cfg),
		DefaultCount: cfg.Relay.Count(),
		Probe:        probeFunc(tw),
	})

	sched := schedule.New(relaySvc, log)
	sched.Apply(cfg.Schedules)

	rm := router.NewManager(log.With(logx.String("comp", "router")), ad, cfg.Telegram.OwnerUserIDs)
	rm.SetRegistry(slices.Concat(relaySvc.Commands(), sched.Commands()), relaySvc.Callbacks())

	mc := metrics.New(log.With(logx.String("comp", "metrics")))
	hcfg, err := mapHealthConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	hs := health.New(hcfg, func() any { return relaySvc.Session().Snapshot() }, mc.Handler(), log)

	var sd *health.Notifier
	if cfg.Health.Systemd {
		sd = health.NewNotifier(log.With(logx.String("comp", "systemd")))
	}

	return &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		relay:   relaySvc,
		router:  rm,
		sched:   sched,
		metrics: mc,
		health:  hs,
		sd:      sd,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.router.SetAppSupervisor(a.sup)

	// reject a bad hot reload before it is committed
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapHealthConfig(cfg); err != nil {
			return err
		}
		for _, j := range cfg.Schedules.Jobs {
			if _, err := schedule.NormalizeSpec(j.Spec); err != nil {
				return fmt.Errorf("schedules.jobs %q: %w", j.Name, err)
			}
		}
		_, err := mapStorageConfig(cfg)
		return err
	})

	if err := a.relay.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})
	a.sup.Go0("metrics.collect", func(c context.Context) {
		a.metrics.Run(c, a.bus)
	})

	a.health.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	if a.sd != nil {
		a.sd.Ready()
		a.sup.Go0("systemd.watchdog", a.sd.Watchdog)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts, keep only the latest config
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// restartOnly lists sections that are read once at startup.
var restartOnly = []string{"twitter", "selector", "storage"}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if slices.Contains(restartOnly, s) {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	// target first so Apply() does not warn when the chat sink is enabled
	t := logChatTarget(cfg)
	a.logs.SetChatTarget(t.ChatID, t.ThreadID)
	a.logs.Apply(mapLogConfig(cfg))

	a.router.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.relay.SetDeliveryOptions(mapDeliveryOptions(cfg))
	a.relay.SetDefaultCount(cfg.Relay.Count())
	a.sched.Apply(cfg.Schedules)

	if hc, err := mapHealthConfig(cfg); err != nil {
		a.log.Warn("invalid health config; keeping previous", logx.Err(err))
	} else {
		a.health.Reconfigure(ctx, hc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sd != nil {
		a.sd.Stopping()
	}

	a.sup.Cancel()

	// Each step gets an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("relay", 5*time.Second, a.relay.Stop)
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("health", 1*time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
