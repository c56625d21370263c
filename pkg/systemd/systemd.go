// Package systemd speaks the sd_notify protocol. Outside systemd (no
// NOTIFY_SOCKET) every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

func send(state string) (bool, error) { return notify(false, state) }

func Ready() (bool, error)     { return send(daemon.SdNotifyReady) }
func Stopping() (bool, error)  { return send(daemon.SdNotifyStopping) }
func Reloading() (bool, error) { return send(daemon.SdNotifyReloading) }

// Status sets the one-line status shown by `systemctl status`.
func Status(format string, args ...any) (bool, error) {
	return send("STATUS=" + fmt.Sprintf(format, args...))
}

// Watchdog pings the service manager at half the configured WatchdogSec
// until ctx is done. It returns immediately when the watchdog is off.
func Watchdog(ctx context.Context) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return err
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := send(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
