package notifier

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Scheme names a transport family.
type Scheme string

const (
	SchemeEmail    Scheme = "email"
	SchemeTelegram Scheme = "telegram"
)

const telegramPrefix = "telegram:"

// SchemeOf classifies a recipient. "telegram:<chat id>" goes to Telegram;
// everything else is treated as an email address.
func SchemeOf(recipient string) Scheme {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(recipient)), telegramPrefix) {
		return SchemeTelegram
	}
	return SchemeEmail
}

// TelegramChat strips the scheme prefix from a telegram recipient.
func TelegramChat(recipient string) string {
	r := strings.TrimSpace(recipient)
	if len(r) >= len(telegramPrefix) && strings.EqualFold(r[:len(telegramPrefix)], telegramPrefix) {
		return strings.TrimSpace(r[len(telegramPrefix):])
	}
	return r
}

// Router dispatches to a transport by recipient scheme. Routes may be
// swapped while deliveries are in flight.
type Router struct {
	mu     sync.RWMutex
	routes map[Scheme]Notifier
}

func NewRouter() *Router { return &Router{routes: map[Scheme]Notifier{}} }

// Handle registers n for scheme. A nil n removes the route.
func (r *Router) Handle(s Scheme, n Notifier) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n == nil {
		delete(r.routes, s)
		return r
	}
	r.routes[s] = n
	return r
}

// Schemes lists the registered transports.
func (r *Router) Schemes() []Scheme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scheme, 0, len(r.routes))
	for _, s := range []Scheme{SchemeEmail, SchemeTelegram} {
		if _, ok := r.routes[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Router) Deliver(ctx context.Context, recipient, subject, body string) error {
	s := SchemeOf(recipient)
	r.mu.RLock()
	n, ok := r.routes[s]
	r.mu.RUnlock()
	if !ok {
		return errors.Mark(errors.Wrapf(ErrUnroutable, "scheme %s", s), ErrDelivery)
	}
	return n.Deliver(ctx, recipient, subject, body)
}
