// Package telegram delivers reminders to Telegram chats through the Bot API.
package telegram

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	tele "gopkg.in/telebot.v4"

	"alarmd/internal/notifier"
)

// Telegram rejects text messages above this many characters.
const textLimit = 4096

type Config struct {
	Token   string
	Timeout time.Duration
	// APIURL overrides the Bot API endpoint (tests, self-hosted bot API).
	APIURL string
}

// Sender is a notifier.Notifier for "telegram:<chat id>" recipients.
type Sender struct {
	cfg Config
	bot *tele.Bot
}

// New builds a sender. The bot is created offline: no getMe round-trip and no
// polling; alarmd only ever sends.
func New(cfg Config) (*Sender, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &Sender{cfg: cfg}
	if notifier.IsPlaceholder(cfg.Token) {
		return s, nil
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "telegram: new bot")
	}
	s.bot = b
	return s, nil
}

func (s *Sender) Configured() bool { return s.bot != nil }

func (s *Sender) Deliver(ctx context.Context, recipient, subject, body string) error {
	if s.bot == nil {
		return notifier.NotConfigured("telegram", "bot token is missing or a placeholder")
	}
	chatID, err := ParseChatID(recipient)
	if err != nil {
		return notifier.DeliveryFailed(err, "telegram")
	}

	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(subject+"\n\n"+body, textLimit) {
		if err := ctx.Err(); err != nil {
			return notifier.DeliveryFailed(err, "telegram: send to %d", chatID)
		}
		if err := s.send(ctx, chat, chunk); err != nil {
			return notifier.DeliveryFailed(err, "telegram: send to %d", chatID)
		}
	}
	return nil
}

// send runs the blocking Bot API call so ctx can abandon it; the HTTP
// client timeout bounds the abandoned call.
func (s *Sender) send(ctx context.Context, chat *tele.Chat, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(chat, text, &tele.SendOptions{DisableWebPagePreview: true})
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ParseChatID extracts the numeric chat id from "telegram:<id>".
func ParseChatID(recipient string) (int64, error) {
	raw := notifier.TelegramChat(recipient)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Newf("invalid telegram chat id %q", raw)
	}
	return id, nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries when one sits in the last two thirds of a window.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}
