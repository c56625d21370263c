// Package config loads alarmd.yaml (or .json), overlays the environment and
// watches the file for hot reloads.
package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "30s", "24h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	HTTP      HTTPConfig      `json:"http"`
	Pprof     PprofConfig     `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls delivery timing and retention.
//
// Defaults (when fields are omitted/zero):
//   - timezone: Asia/Kolkata
//   - delivery_timeout: "30s"
//   - retention: "24h"
//   - sweep_interval: "1m"
//   - journal_retention: "0s" (keep forever)
//   - max_pending: 0 (unlimited)
type SchedulerConfig struct {
	Timezone         string `json:"timezone,omitempty"`
	DeliveryTimeout  string `json:"delivery_timeout,omitempty"`
	Retention        string `json:"retention,omitempty"`
	SweepInterval    string `json:"sweep_interval,omitempty"`
	JournalRetention string `json:"journal_retention,omitempty"`
	MaxPending       int    `json:"max_pending,omitempty"`
}

type NotifierConfig struct {
	// RatePerSec caps outbound deliveries across all transports. 0 disables.
	RatePerSec  float64        `json:"rate_per_sec,omitempty"`
	Burst       int            `json:"burst,omitempty"`
	HistorySize int            `json:"history_size,omitempty"`
	SMTP        SMTPConfig     `json:"smtp"`
	Telegram    TelegramConfig `json:"telegram"`
}

type SMTPConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Sender   string `json:"sender,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	Timeout  string `json:"timeout,omitempty"`
	// Plaintext skips implicit TLS. Only for local relays.
	Plaintext bool `json:"plaintext,omitempty"`
}

type TelegramConfig struct {
	Token   string `json:"token,omitempty"` // do not log
	Timeout string `json:"timeout,omitempty"`
}

// StorageConfig controls the outcome journal. Nil disables it.
//
// Example:
//
//	storage: { driver: file, path: ./data/alarmd }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type HTTPConfig struct {
	Addr         string `json:"addr,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// PprofConfig controls the optional profiling listener. A non-loopback addr
// needs a token unless allow_insecure is set.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
