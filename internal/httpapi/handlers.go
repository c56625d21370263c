package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"alarmd/internal/intake"
	"alarmd/internal/job"
	"alarmd/internal/scheduler"
	"alarmd/internal/storage"
)

// Intake accepts raw reminder requests.
type Intake interface {
	Submit(ctx context.Context, req intake.Request) (job.Snapshot, error)
}

// Jobs is the read and cancel side of the scheduler.
type Jobs interface {
	Cancel(id string) bool
	Get(id string) (job.Snapshot, error)
	List(f scheduler.Filter) []job.Snapshot
	Snapshot() scheduler.Snapshot
}

// Outcomes reads the delivery journal. Optional.
type Outcomes interface {
	RecentOutcomes(ctx context.Context, limit int) ([]storage.Outcome, error)
}

const defaultOutcomeLimit = 50

type handlers struct {
	intake   Intake
	jobs     Jobs
	outcomes Outcomes
}

type setAlarmResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	ID      string    `json:"id"`
	DueAt   string    `json:"due_at"`
	State   job.State `json:"state"`
}

func (h *handlers) setAlarm(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		abort(c, http.StatusBadRequest, err, "Invalid JSON body", nil)
		return
	}
	if emptyBody(raw) {
		abort(c, http.StatusBadRequest, nil, "No data provided", nil)
		return
	}
	var req intake.Request
	if err := binding.JSON.BindBody(raw, &req); err != nil {
		abort(c, http.StatusBadRequest, err, "Invalid JSON body", nil)
		return
	}

	snap, err := h.intake.Submit(c.Request.Context(), req)
	if err != nil {
		h.submitError(c, snap, err)
		return
	}
	c.JSON(http.StatusOK, setAlarmResponse{
		Success: true,
		Message: "Alarm set successfully!",
		ID:      snap.ID,
		DueAt:   snap.DueAt.Format(time.RFC3339),
		State:   snap.State,
	})
}

// emptyBody reports a body that carries nothing: absent, null or {}.
func emptyBody(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return true
	}
	var fields map[string]json.RawMessage
	return json.Unmarshal(raw, &fields) == nil && len(fields) == 0
}

func (h *handlers) submitError(c *gin.Context, snap job.Snapshot, err error) {
	var missing *intake.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		abort(c, http.StatusBadRequest, err, "Missing required fields", gin.H{"fields": missing.Fields})
	case errors.Is(err, intake.ErrValidation):
		abort(c, http.StatusBadRequest, err, "Invalid request", err.Error())
	case errors.Is(err, scheduler.ErrPastDue):
		var detail any
		if snap.ID != "" {
			detail = snap
		}
		abort(c, http.StatusUnprocessableEntity, err, "Cannot set an alarm in the past", detail)
	case errors.Is(err, scheduler.ErrStopped), errors.Is(err, scheduler.ErrCapacity):
		abort(c, http.StatusServiceUnavailable, err, "Scheduler unavailable", err.Error())
	default:
		abort(c, http.StatusInternalServerError, err, "Internal server error", nil)
	}
}

func (h *handlers) getAlarm(c *gin.Context) {
	snap, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			abort(c, http.StatusNotFound, err, "Alarm not found", nil)
			return
		}
		abort(c, http.StatusInternalServerError, err, "Internal server error", nil)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) cancelAlarm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.jobs.Cancel(c.Param("id"))})
}

func (h *handlers) listAlarms(c *gin.Context) {
	var f scheduler.Filter
	if v := strings.TrimSpace(c.Query("state")); v != "" {
		st, err := job.ParseState(v)
		if err != nil {
			abort(c, http.StatusBadRequest, err, "Invalid state filter", v)
			return
		}
		f.State = st
	}
	f.Recipient = strings.TrimSpace(c.Query("recipient"))
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			abort(c, http.StatusBadRequest, err, "Invalid limit", v)
			return
		}
		f.Limit = n
	}
	list := h.jobs.List(f)
	if list == nil {
		list = []job.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"alarms": list, "count": len(list)})
}

func (h *handlers) healthz(c *gin.Context) {
	snap := h.jobs.Snapshot()
	status := http.StatusOK
	if !snap.Running {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, snap)
}

func (h *handlers) listOutcomes(c *gin.Context) {
	if h.outcomes == nil {
		abort(c, http.StatusNotFound, storage.ErrDisabled, "Outcome journal disabled", nil)
		return
	}
	limit := defaultOutcomeLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			abort(c, http.StatusBadRequest, err, "Invalid limit", v)
			return
		}
		limit = n
	}
	out, err := h.outcomes.RecentOutcomes(c.Request.Context(), limit)
	if err != nil {
		abort(c, http.StatusInternalServerError, err, "Cannot read outcome journal", nil)
		return
	}
	if out == nil {
		out = []storage.Outcome{}
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": out, "count": len(out)})
}
