package notifier

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrDelivery      = errors.New("notifier: delivery failed")
	ErrNotConfigured = errors.New("notifier: transport not configured")
	ErrUnroutable    = errors.New("notifier: no transport for recipient")
)

// Notifier sends one message. Implementations must be safe for concurrent use
// and should honor ctx cancellation.
type Notifier interface {
	Deliver(ctx context.Context, recipient, subject, body string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, recipient, subject, body string) error

func (f Func) Deliver(ctx context.Context, recipient, subject, body string) error {
	return f(ctx, recipient, subject, body)
}

// DeliveryFailed wraps err and marks it as a delivery failure.
func DeliveryFailed(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrDelivery)
}

// NotConfigured builds a configuration failure for transport name. The
// error matches both ErrNotConfigured and ErrDelivery.
func NotConfigured(transport, detail string) error {
	err := errors.Wrapf(ErrNotConfigured, "%s: %s", transport, detail)
	return errors.Mark(err, ErrDelivery)
}

// Placeholder credentials shipped in sample configs. A transport seeing any
// of these refuses to send.
var placeholders = []string{
	"your_email@example.com",
	"your_email_app_password",
	"changeme",
	"your_bot_token",
}

// IsPlaceholder reports whether v is empty or one of the sample credential values.
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	for _, p := range placeholders {
		if strings.EqualFold(v, p) {
			return true
		}
	}
	return false
}
