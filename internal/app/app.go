// Package app wires alarmd's components together and owns their lifecycle.
package app

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"alarmd/internal/clock"
	"alarmd/internal/config"
	"alarmd/internal/eventbus"
	"alarmd/internal/httpapi"
	"alarmd/internal/intake"
	"alarmd/internal/notifier"
	"alarmd/internal/observability/pprof"
	"alarmd/internal/runtime/supervisor"
	"alarmd/internal/scheduler"
	"alarmd/internal/storage"
	logx "alarmd/pkg/logx"
	"alarmd/pkg/systemd"
)

type StopReason string

const (
	StopSignal   StopReason = "signal"
	StopFatal    StopReason = "fatal_error"
	StopShutdown StopReason = "shutdown"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	router  *notifier.Router
	limited *notifier.Limited
	sched   *scheduler.Service
	intake  *intake.Service
	http    *httpapi.Server
	pprof   *pprof.Server

	stopped atomic.Bool
}

type options struct {
	clock  clock.Clock
	envSrc func() (config.Env, error)
	envSet bool
}

type Option func(*options)

// WithClock replaces the wall clock used for scheduling.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithEnv replaces the environment overlay source. nil disables it.
func WithEnv(fn func() (config.Env, error)) Option {
	return func(o *options) { o.envSrc, o.envSet = fn, true }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	if o.envSet {
		cfgm.SetEnvSource(o.envSrc)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg))
	appLog := log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorage(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("outcome journal enabled", logx.String("driver", sc.Driver))
	}

	router := notifier.NewRouter()
	if err := buildTransports(cfg, router); err != nil {
		closeStore(store)
		return nil, err
	}
	limited := notifier.NewLimited(router, mapLimits(cfg))

	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	sched := scheduler.New(schedCfg, o.clock, limited, log.With(logx.String("comp", "scheduler")), bus, store)

	loc, err := mapLocation(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	in := intake.NewService(sched, loc, log.With(logx.String("comp", "intake")))

	httpCfg, err := mapHTTP(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	deps := httpapi.Deps{Intake: in, Jobs: sched}
	if store != nil {
		deps.Outcomes = store
	}
	srv := httpapi.New(httpCfg, deps, log.With(logx.String("comp", "http")))

	ppCfg, err := mapPprof(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	pp := pprof.New(ppCfg, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logs,
		bus:     bus,
		store:   store,
		router:  router,
		limited: limited,
		sched:   sched,
		intake:  in,
		http:    srv,
		pprof:   pp,
	}, nil
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}

// Handler exposes the HTTP routes without a listener.
func (a *App) Handler() http.Handler { return a.http.Handler() }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sched.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		a.logEvents(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.sup.Go("http", a.http.Run)
	a.sup.Go("systemd.watchdog", systemd.Watchdog)
	// Profiling is optional; a failing listener must not take the app down.
	a.sup.GoRestart("pprof", a.pprof.Run, supervisor.WithRestartBackoff(time.Second, time.Minute))

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify READY failed", logx.Err(err))
	}

	schemes := make([]string, 0, 2)
	for _, s := range a.router.Schemes() {
		schemes = append(schemes, string(s))
	}
	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.String("timezone", a.intake.Location().String()),
		logx.String("transports", strings.Join(schemes, ",")))
	return nil
}

// Stop shuts components down in dependency order. Each step is bounded so a
// stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil || !a.stopped.CompareAndSwap(false, true) {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// Cancels the HTTP server, watchers and the event logger.
	a.sup.Cancel()

	drain := a.sched.Config().DeliveryTimeout + time.Second
	a.step(ctx, "scheduler", drain, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	err := a.sup.Err()
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped (no time left)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Newf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
