package config

import (
	"reflect"
	"sort"
	"strings"

	logx "alarmd/pkg/logx"
)

// Sections that cannot be applied to a running process.
var restartSections = map[string]bool{"storage": true, "http": true, "pprof": true}

// Summarize returns the changed top-level sections and safe log fields
// describing them. Secrets are reported only as set/unset.
func Summarize(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		s := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", s.Timezone),
			logx.String("scheduler.delivery_timeout", s.DeliveryTimeout),
			logx.String("scheduler.retention", s.Retention),
			logx.Int("scheduler.max_pending", s.MaxPending),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		n := newCfg.Notifier
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Any("notifier.rate_per_sec", n.RatePerSec),
			logx.Int("notifier.burst", n.Burst),
			logx.String("notifier.smtp.host", n.SMTP.Host),
			logx.Bool("notifier.smtp.sender_set", strings.TrimSpace(n.SMTP.Sender) != ""),
			logx.Bool("notifier.smtp.password_set", strings.TrimSpace(n.SMTP.Password) != ""),
			logx.Bool("notifier.telegram.token_set", strings.TrimSpace(n.Telegram.Token) != ""),
		)
	}

	if !reflect.DeepEqual(deref(oldCfg.Storage), deref(newCfg.Storage)) {
		st := deref(newCfg.Storage)
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", st.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(st.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.Addr))
	}

	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", newCfg.Pprof.Addr),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed down to sections that only take effect
// after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		if restartSections[c] {
			out = append(out, c)
		}
	}
	return out
}

func deref(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
