package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Togather-Foundation/eventproxy/internal/api/middleware"
	"github.com/Togather-Foundation/eventproxy/internal/api/problem"
	"github.com/Togather-Foundation/eventproxy/internal/audit"
	"github.com/Togather-Foundation/eventproxy/internal/luma"
)

type EventsHandler struct {
	Client *luma.Client
	Env    string
	// Audit records writes. Nil disables auditing.
	Audit *audit.Logger
}

func NewEventsHandler(client *luma.Client, env string, auditLog *audit.Logger) *EventsHandler {
	return &EventsHandler{Client: client, Env: env, Audit: auditLog}
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	page, err := h.Client.ListEvents(r.Context(), opts)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseListOptions reads limit (1..100, default 50) and offset (>= 0).
func parseListOptions(r *http.Request) (luma.ListOptions, error) {
	opts := luma.ListOptions{Limit: luma.DefaultListLimit}
	verr := &luma.ValidationError{Fields: map[string]string{}}

	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > luma.MaxListLimit {
			verr.Fields["limit"] = "must be an integer between 1 and 100"
		} else {
			opts.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			verr.Fields["offset"] = "must be a non-negative integer"
		} else {
			opts.Offset = n
		}
	}
	if len(verr.Fields) > 0 {
		return opts, verr
	}
	return opts, nil
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req luma.EventCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err, h.Env)
		return
	}

	event, err := h.Client.CreateEvent(r.Context(), req, idempotency(r))
	h.Audit.LogFromRequest(r, "event.create", "event", eventID(event), err)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.Client.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req luma.EventUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err, h.Env)
		return
	}

	event, err := h.Client.UpdateEvent(r.Context(), r.PathValue("id"), req, idempotency(r))
	h.Audit.LogFromRequest(r, "event.update", "event", r.PathValue("id"), err)
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Client.DeleteEvent(r.Context(), r.PathValue("id"), idempotency(r))
	h.Audit.LogFromRequest(r, "event.delete", "event", r.PathValue("id"), err)
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTicketTypes forwards ticket-type definitions for an event. The body
// is passed through as-is; the event ID always comes from the path.
func (h *EventsHandler) CreateTicketTypes(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		writeBadRequest(w, r, err, h.Env)
		return
	}
	req := luma.TicketTypesRequest{EventID: r.PathValue("id"), Fields: fields}
	payload, err := h.Client.CreateTicketTypes(r.Context(), req, idempotency(r))
	h.Audit.LogFromRequest(r, "event.ticket_types.create", "event", req.EventID, err)
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (h *EventsHandler) writeEventError(w http.ResponseWriter, r *http.Request, err error) {
	if luma.IsNotFound(err) {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, h.Env,
			problem.WithDetail("Event not found"))
		return
	}
	writeError(w, r, err, h.Env)
}

func eventID(event *luma.Event) string {
	if event == nil {
		return ""
	}
	return event.ID
}

func idempotency(r *http.Request) luma.CallOption {
	return luma.WithIdempotencyKey(middleware.IdempotencyKey(r.Context()))
}
