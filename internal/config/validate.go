package config

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks every field that would otherwise fail later at wiring
// time. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.Mark(errors.New("config is nil"), ErrInvalid)
	}
	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add(errors.Newf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path is required when file logging is enabled"))
	}

	s := cfg.Scheduler
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(errors.Wrapf(err, "scheduler.timezone %q", tz))
		}
	}
	dur("scheduler.delivery_timeout", s.DeliveryTimeout)
	dur("scheduler.retention", s.Retention)
	dur("scheduler.sweep_interval", s.SweepInterval)
	dur("scheduler.journal_retention", s.JournalRetention)
	if s.MaxPending < 0 {
		add(errors.New("scheduler.max_pending must be >= 0"))
	}

	n := cfg.Notifier
	if n.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec must be >= 0"))
	}
	if n.Burst < 0 {
		add(errors.New("notifier.burst must be >= 0"))
	}
	if n.SMTP.Port < 0 || n.SMTP.Port > 65535 {
		add(errors.Newf("notifier.smtp.port %d out of range", n.SMTP.Port))
	}
	dur("notifier.smtp.timeout", n.SMTP.Timeout)
	dur("notifier.telegram.timeout", n.Telegram.Timeout)

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				add(errors.Newf("storage.path is required for driver %q", st.Driver))
			}
		default:
			add(errors.Newf("storage.driver: unknown driver %q", st.Driver))
		}
		dur("storage.busy_timeout", st.BusyTimeout)
	}

	dur("http.read_timeout", cfg.HTTP.ReadTimeout)
	dur("http.write_timeout", cfg.HTTP.WriteTimeout)

	if len(problems) > 0 {
		return errors.Mark(errors.Newf("%s", strings.Join(problems, "; ")), ErrInvalid)
	}
	return nil
}
