package config

import (
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// Env holds settings that may come from the process environment or a .env
// file. Non-empty values override the file.
type Env struct {
	SenderEmail    string `env:"SENDER_EMAIL"`
	SenderPassword string `env:"SENDER_PASSWORD"`
	Timezone       string `env:"ALARM_TIMEZONE"`
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	HTTPAddr       string `env:"ALARMD_HTTP_ADDR"`
	LogLevel       string `env:"ALARMD_LOG_LEVEL"`
}

// LoadDotenv loads the given .env files (default ".env") without overriding
// variables already set. Missing files are ignored.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) {
				continue
			}
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

func ReadEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, errors.Wrap(err, "parse environment")
	}
	return e, nil
}

// Overlay copies the non-empty environment values into cfg.
func (e Env) Overlay(cfg *Config) {
	if cfg == nil {
		return
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Notifier.SMTP.Sender, e.SenderEmail)
	set(&cfg.Notifier.SMTP.Password, e.SenderPassword)
	set(&cfg.Notifier.Telegram.Token, e.TelegramToken)
	set(&cfg.Scheduler.Timezone, e.Timezone)
	set(&cfg.HTTP.Addr, e.HTTPAddr)
	set(&cfg.Logging.Level, e.LogLevel)
}
