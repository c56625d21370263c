package app

import (
	"context"
	"strings"

	"alarmd/internal/config"
	logx "alarmd/pkg/logx"
)

// reloadLoop applies published configs. Logging, notifier throttling and
// transports, scheduler tunables and the intake zone apply live; storage
// and http need a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.Summarize(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}

	if changed["logging"] {
		a.logs.Apply(mapLogging(next))
	}
	if changed["notifier"] {
		a.limited.Apply(mapLimits(next))
		if err := buildTransports(next, a.router); err != nil {
			a.log.Warn("invalid notifier config; keeping previous transports", logx.Err(err))
		}
	}
	if changed["scheduler"] {
		if sc, err := mapScheduler(next); err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			a.sched.Apply(sc)
		}
		if loc, err := mapLocation(next); err != nil {
			a.log.Warn("invalid timezone; keeping previous", logx.Err(err))
		} else {
			a.intake.SetLocation(loc)
		}
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
