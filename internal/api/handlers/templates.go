package handlers

import (
	"errors"
	"net/http"

	"github.com/Togather-Foundation/eventproxy/internal/api/problem"
	"github.com/Togather-Foundation/eventproxy/internal/audit"
	"github.com/Togather-Foundation/eventproxy/internal/domain/templates"
	"github.com/Togather-Foundation/eventproxy/internal/luma"
)

type TemplatesHandler struct {
	Catalog *templates.Catalog
	Client  *luma.Client
	Env     string
	Audit   *audit.Logger
}

func NewTemplatesHandler(catalog *templates.Catalog, client *luma.Client, env string, auditLog *audit.Logger) *TemplatesHandler {
	return &TemplatesHandler{Catalog: catalog, Client: client, Env: env, Audit: auditLog}
}

func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalog.List())
}

func (h *TemplatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Catalog.Get(templates.Type(r.PathValue("type")))
	if err != nil {
		h.writeTemplateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// Create builds an event from a template and creates it upstream.
func (h *TemplatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req templates.CreateFromTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err, h.Env)
		return
	}

	tmpl, err := h.Catalog.Get(req.TemplateType)
	if err != nil {
		h.writeTemplateError(w, r, err)
		return
	}
	eventReq, err := templates.Build(tmpl, req)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	event, err := h.Client.CreateEvent(r.Context(), eventReq, idempotency(r))
	h.Audit.LogFromRequest(r, "event.create_from_template", "event", eventID(event), err)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *TemplatesHandler) writeTemplateError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, templates.ErrTemplateNotFound) {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Template not found", err, h.Env,
			problem.WithDetail("Template not found"))
		return
	}
	writeError(w, r, err, h.Env)
}
