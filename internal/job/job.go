// Package job holds the scheduled notification entity and its state machine.
package job

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a state change would violate the
// one-directional lifecycle.
var ErrInvalidTransition = errors.New("job: invalid state transition")

// Job is a single delayed notification. DueAt, Recipient and Message are
// fixed at creation; state fields are guarded by the job's own lock.
type Job struct {
	id        string
	dueAt     time.Time
	recipient string
	message   string
	createdAt time.Time

	mu         sync.Mutex
	state      State
	firedAt    time.Time
	finishedAt time.Time
	result     string
}

// New creates a Pending job with a fresh id.
func New(dueAt time.Time, recipient, message string, now time.Time) *Job {
	return &Job{
		id:        uuid.NewString(),
		dueAt:     dueAt,
		recipient: recipient,
		message:   message,
		createdAt: now,
		state:     StatePending,
	}
}

func (j *Job) ID() string           { return j.id }
func (j *Job) DueAt() time.Time     { return j.dueAt }
func (j *Job) Recipient() string    { return j.recipient }
func (j *Job) Message() string      { return j.message }
func (j *Job) CreatedAt() time.Time { return j.createdAt }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Transition moves the job to `to` at instant `at`, recording reason as the
// result detail (used for Failed, Rejected and Cancelled). The check and the
// write happen under one lock, so concurrent callers racing for the same
// edge see exactly one winner.
func (j *Job) Transition(to State, at time.Time, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.state.CanTransition(to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", j.state, to)
	}
	j.state = to
	switch {
	case to == StateFiring:
		j.firedAt = at
	case to.Terminal():
		j.finishedAt = at
		j.result = reason
	}
	return nil
}

// Snapshot is an immutable copy of a job, safe to hand across goroutines.
type Snapshot struct {
	ID         string     `json:"id"`
	DueAt      time.Time  `json:"due_at"`
	Recipient  string     `json:"recipient"`
	Message    string     `json:"message"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	FiredAt    *time.Time `json:"fired_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     string     `json:"result,omitempty"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:        j.id,
		DueAt:     j.dueAt,
		Recipient: j.recipient,
		Message:   j.message,
		State:     j.state,
		CreatedAt: j.createdAt,
		Result:    j.result,
	}
	if !j.firedAt.IsZero() {
		t := j.firedAt
		s.FiredAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// FinishedAt returns the terminal timestamp, zero while the job is live.
func (j *Job) FinishedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt
}
