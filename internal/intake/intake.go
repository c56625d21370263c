// Package intake validates raw reminder requests and turns their naive
// date/time fields into absolute instants in the configured zone.
package intake

import (
	"context"
	"net/mail"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata" // zone database for hosts without /usr/share/zoneinfo
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"alarmd/internal/job"
	"alarmd/internal/notifier"
	"alarmd/internal/notifier/telegram"
	"alarmd/internal/scheduler"
	logx "alarmd/pkg/logx"
)

const DefaultTimezone = "Asia/Kolkata"

// MaxMessageLen caps the reminder text, in characters.
const MaxMessageLen = 4000

var (
	ErrValidation   = errors.New("validation failed")
	ErrMissingField = errors.Mark(errors.New("missing required fields"), ErrValidation)
	ErrInvalidField = errors.Mark(errors.New("invalid field"), ErrValidation)
)

// MissingFieldsError lists the required fields a request left empty. It
// matches ErrMissingField and ErrValidation.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Request is the raw form of a reminder as received from a client.
type Request struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Recipient string `json:"email"`
	Message   string `json:"message"`
}

// Submission is a validated request.
type Submission struct {
	DueAt     time.Time
	Recipient string
	Message   string
}

var timeLayouts = []string{"15:04", "15:04:05"}

// Parse validates req and localizes its date and time in loc.
func Parse(req Request, loc *time.Location) (Submission, error) {
	if loc == nil {
		loc = time.UTC
	}
	date := strings.TrimSpace(req.Date)
	clock := strings.TrimSpace(req.Time)
	recipient := strings.TrimSpace(req.Recipient)
	// The message is delivered verbatim; any non-empty text counts.
	message := req.Message

	var missing []string
	for _, f := range []struct{ name, v string }{
		{"date", date}, {"time", clock}, {"email", recipient}, {"message", message},
	} {
		if f.v == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return Submission{}, errors.Mark(errors.Mark(&MissingFieldsError{Fields: missing}, ErrMissingField), ErrValidation)
	}

	dueAt, err := parseDue(date, clock, loc)
	if err != nil {
		return Submission{}, err
	}
	recipient, err = normalizeRecipient(recipient)
	if err != nil {
		return Submission{}, err
	}
	if utf8.RuneCountInString(message) > MaxMessageLen {
		return Submission{}, errors.Wrapf(ErrInvalidField, "message longer than %d characters", MaxMessageLen)
	}
	return Submission{DueAt: dueAt, Recipient: recipient, Message: message}, nil
}

func parseDue(date, clock string, loc *time.Location) (time.Time, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidField, "date %q: want YYYY-MM-DD", date)
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(time.DateOnly+"T"+layout, date+"T"+clock, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrInvalidField, "time %q: want HH:MM or HH:MM:SS", clock)
}

func normalizeRecipient(r string) (string, error) {
	if notifier.SchemeOf(r) == notifier.SchemeTelegram {
		id, err := telegram.ParseChatID(r)
		if err != nil {
			return "", errors.Wrapf(ErrInvalidField, "email: %v", err)
		}
		return "telegram:" + strconv.FormatInt(id, 10), nil
	}
	addr, err := mail.ParseAddress(r)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidField, "email %q is not a valid address", r)
	}
	return addr.Address, nil
}

// LoadLocation resolves an IANA zone name; empty means DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "timezone %q", name)
	}
	return loc, nil
}

// Submitter is the part of the scheduler intake needs.
type Submitter interface {
	Submit(ctx context.Context, dueAt time.Time, recipient, message string) (scheduler.Handle, error)
	Status(id string) (job.Snapshot, bool)
}

// Service binds parsing to a scheduler. The zone can be swapped on reload.
type Service struct {
	sched Submitter
	log   logx.Logger
	loc   atomic.Pointer[time.Location]
}

func NewService(sched Submitter, loc *time.Location, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{sched: sched, log: log}
	s.loc.Store(loc)
	return s
}

func (s *Service) Location() *time.Location { return s.loc.Load() }

func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	if old := s.loc.Swap(loc); old.String() != loc.String() {
		s.log.Info("intake timezone changed", logx.String("from", old.String()), logx.String("to", loc.String()))
	}
}

// Submit validates req and schedules it. On scheduler.ErrPastDue the returned
// snapshot describes the rejected job.
func (s *Service) Submit(ctx context.Context, req Request) (job.Snapshot, error) {
	sub, err := Parse(req, s.Location())
	if err != nil {
		return job.Snapshot{}, err
	}
	h, err := s.sched.Submit(ctx, sub.DueAt, sub.Recipient, sub.Message)
	if h.ID == "" {
		return job.Snapshot{}, err
	}
	snap, _ := s.sched.Status(h.ID)
	return snap, err
}
