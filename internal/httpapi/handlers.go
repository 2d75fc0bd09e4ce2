package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"mangabot/internal/reminder"
	"mangabot/internal/schedule"
	"mangabot/internal/storage"
	logx "mangabot/pkg/logx"
)

// Dispatcher is the reminder dispatcher as seen by the API.
type Dispatcher interface {
	RunOnce(ctx context.Context) (reminder.Result, error)
	Preview(ctx context.Context) (schedule.Evaluation, error)
}

// ItemLister reads items for GET /api/v1/items.
type ItemLister interface {
	List(ctx context.Context, f storage.ListFilter) ([]schedule.Item, error)
}

// NotifyResponse is the body of /api/v1/notify.
type NotifyResponse struct {
	Success   bool   `json:"success"`
	RunID     string `json:"run_id,omitempty"`
	Attempted int    `json:"attempted"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

type handlers struct {
	d      Dispatcher
	items  ItemLister
	health func() map[string]any
	log    logx.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.health != nil {
		for k, v := range h.health() {
			body[k] = v
		}
	}
	respondJSON(w, http.StatusOK, body)
}

// notify runs one pass synchronously. A pass already in progress is waited
// for, bounded by the request context.
func (h *handlers) notify(w http.ResponseWriter, r *http.Request) {
	ctx := reminder.WithTrigger(r.Context(), "http")
	res, err := h.d.RunOnce(ctx)
	body := NotifyResponse{
		Success:   err == nil,
		RunID:     res.RunID,
		Attempted: res.Attempted,
		Sent:      res.Sent,
		Failed:    res.Failed,
	}
	if err != nil {
		h.log.Warn("notify via http failed",
			logx.String("correlation_id", CorrelationIDFrom(r.Context())),
			logx.Err(err),
		)
		body.Error = err.Error()
		respondJSON(w, http.StatusInternalServerError, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

func (h *handlers) due(w http.ResponseWriter, r *http.Request) {
	ev, err := h.d.Preview(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, NewEvaluationView(ev))
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	if h.items == nil {
		mapError(w, storage.ErrDisabled)
		return
	}
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	items, err := h.items.List(r.Context(), storage.ListFilter{IncludeDone: all})
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": itemViews(items), "count": len(items)})
}
