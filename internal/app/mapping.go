package app

import (
	"strings"
	"time"

	"alarmd/internal/config"
	"alarmd/internal/httpapi"
	"alarmd/internal/intake"
	"alarmd/internal/notifier"
	"alarmd/internal/notifier/smtp"
	"alarmd/internal/notifier/telegram"
	"alarmd/internal/observability/pprof"
	"alarmd/internal/scheduler"
	"alarmd/internal/storage"
	logx "alarmd/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	return intake.LoadLocation(cfg.Scheduler.Timezone)
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	s := cfg.Scheduler
	var (
		out scheduler.Config
		err error
	)
	if out.DeliveryTimeout, err = config.ParseDurationField("scheduler.delivery_timeout", s.DeliveryTimeout); err != nil {
		return out, err
	}
	if out.Retention, err = config.ParseDurationField("scheduler.retention", s.Retention); err != nil {
		return out, err
	}
	if out.SweepInterval, err = config.ParseDurationField("scheduler.sweep_interval", s.SweepInterval); err != nil {
		return out, err
	}
	if out.JournalRetention, err = config.ParseDurationField("scheduler.journal_retention", s.JournalRetention); err != nil {
		return out, err
	}
	out.MaxPending = s.MaxPending
	return out, nil
}

func mapLimits(cfg *config.Config) notifier.Config {
	return notifier.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		Burst:       cfg.Notifier.Burst,
		HistorySize: cfg.Notifier.HistorySize,
	}
}

func mapSMTP(cfg *config.Config) (smtp.Config, error) {
	c := cfg.Notifier.SMTP
	timeout, err := config.ParseDurationField("notifier.smtp.timeout", c.Timeout)
	if err != nil {
		return smtp.Config{}, err
	}
	return smtp.Config{
		Host:      c.Host,
		Port:      c.Port,
		Sender:    c.Sender,
		Password:  c.Password,
		Timeout:   timeout,
		Plaintext: c.Plaintext,
	}, nil
}

func mapTelegram(cfg *config.Config) (telegram.Config, error) {
	c := cfg.Notifier.Telegram
	timeout, err := config.ParseDurationField("notifier.telegram.timeout", c.Timeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: c.Token, Timeout: timeout}, nil
}

// mapStorage reports enabled=false when no journal is configured.
func mapStorage(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}

func mapHTTP(cfg *config.Config) (httpapi.Config, error) {
	h := cfg.HTTP
	rt, err := config.ParseDurationField("http.read_timeout", h.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	wt, err := config.ParseDurationField("http.write_timeout", h.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{Addr: h.Addr, ReadTimeout: rt, WriteTimeout: wt}, nil
}

func mapPprof(cfg *config.Config) (pprof.Config, error) {
	p := cfg.Pprof
	out := pprof.Config{Enabled: p.Enabled, Addr: p.Addr, Token: p.Token, AllowInsecure: p.AllowInsecure}
	return out, out.Check()
}

// buildTransports creates the email and telegram senders and registers
// the configured ones on r. Unconfigured transports stay registered so
// deliveries to them fail closed with ErrNotConfigured.
func buildTransports(cfg *config.Config, r *notifier.Router) error {
	sc, err := mapSMTP(cfg)
	if err != nil {
		return err
	}
	tc, err := mapTelegram(cfg)
	if err != nil {
		return err
	}
	tg, err := telegram.New(tc)
	if err != nil {
		return err
	}
	r.Handle(notifier.SchemeEmail, smtp.New(sc))
	r.Handle(notifier.SchemeTelegram, tg)
	return nil
}
