package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/a-h/templ"

	"github.com/csg33k/catering-docgen/internal/adapters/pdf"
	"github.com/csg33k/catering-docgen/internal/domain"
	"github.com/csg33k/catering-docgen/internal/fieldmap"
	"github.com/csg33k/catering-docgen/internal/format"
	"github.com/csg33k/catering-docgen/internal/generation"
	"github.com/csg33k/catering-docgen/internal/logger"
	"github.com/csg33k/catering-docgen/internal/ports"
	"github.com/csg33k/catering-docgen/internal/templates"
)

// Generations schedules background runs and runs them inline.
// *generation.Runner implements it.
type Generations interface {
	Schedule(ctx context.Context, id string) error
	Run(ctx context.Context, id string) (*generation.Result, error)
}

type Options struct {
	// StaleAfter marks a pending generation as stuck in the status fragment.
	StaleAfter time.Duration
	// FilesDir, when set, is served under /files/ for the local storage driver.
	FilesDir string
	Now      func() time.Time
	Log      *slog.Logger
}

type Handler struct {
	repo ports.Repository
	gens Generations
	opts Options
	log  *slog.Logger
}

func New(repo ports.Repository, gens Generations, opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Handler{repo: repo, gens: gens, opts: opts, log: opts.Log}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /templates", h.listTemplates)
	mux.HandleFunc("POST /templates", h.createTemplate)
	mux.HandleFunc("GET /templates/{id}", h.getTemplate)
	mux.HandleFunc("GET /documents", h.listDocuments)
	mux.HandleFunc("POST /documents", h.createDocument)
	mux.HandleFunc("GET /documents/{id}", h.getDocument)
	mux.HandleFunc("PATCH /documents/{id}", h.updateDocument)
	mux.HandleFunc("DELETE /documents/{id}", h.deleteDocument)
	mux.HandleFunc("POST /documents/{id}/generate", h.generate)
	mux.HandleFunc("GET /documents/{id}/status", h.status)
	mux.HandleFunc("GET /documents/{id}/summary", h.summary)
	mux.HandleFunc("POST /cpf/validate", h.validateCPF)
	if h.opts.FilesDir != "" {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(h.opts.FilesDir))))
	}
	return h.requestID(mux)
}

// ── Templates ─────────────────────────────────────────────────────────────────

type templateRequest struct {
	Kind      domain.Kind `json:"kind"`
	Name      string      `json:"name"`
	SourceURL string      `json:"source_url"`
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListTemplates(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if !req.Kind.Valid() {
		h.fail(w, r, badRequest("kind must be %q or %q", domain.KindContract, domain.KindBudget))
		return
	}
	if req.Name == "" {
		h.fail(w, r, badRequest("name is required"))
		return
	}
	if err := checkSourceURL(req.SourceURL); err != nil {
		h.fail(w, r, err)
		return
	}
	t := &domain.Template{Kind: req.Kind, Name: req.Name, SourceURL: req.SourceURL}
	if err := h.repo.CreateTemplate(r.Context(), t); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.repo.GetTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func checkSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return badRequest("source_url is required and must be a URL")
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return badRequest("source_url has no host")
		}
	case "file":
	default:
		return badRequest("source_url scheme %q is not supported", u.Scheme)
	}
	return nil
}

// ── Documents ─────────────────────────────────────────────────────────────────

// documentRequest is both the create body and the PATCH body. Absent and
// null fields are left unchanged on PATCH; filled_data is merged key by key.
type documentRequest struct {
	TemplateID *string            `json:"template_id"`
	EventID    *string            `json:"event_id"`
	FilledData *domain.FilledData `json:"filled_data"`
	Status     *domain.Status     `json:"status"`
	Notes      *string            `json:"notes"`
}

type documentResponse struct {
	*domain.FilledDocument
	MissingKeys []string `json:"missing_keys"`
}

func respond(d *domain.FilledDocument) documentResponse {
	missing := fieldmap.Missing(d.Kind, d.FilledData)
	if missing == nil {
		missing = []string{}
	}
	return documentResponse{FilledDocument: d, MissingKeys: missing}
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		h.fail(w, r, badRequest("unknown kind %q", kind))
		return
	}
	docs, err := h.repo.ListDocuments(r.Context(), kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]documentResponse, len(docs))
	for i := range docs {
		out[i] = respond(&docs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.TemplateID == nil || *req.TemplateID == "" {
		h.fail(w, r, badRequest("template_id is required"))
		return
	}
	tpl, err := h.template(r.Context(), *req.TemplateID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	d := &domain.FilledDocument{
		Kind:       tpl.Kind,
		TemplateID: tpl.ID,
		EventID:    req.EventID,
		Status:     domain.StatusDraft,
	}
	if req.FilledData != nil {
		d.FilledData = *req.FilledData
	}
	if req.Notes != nil {
		d.Notes = *req.Notes
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			h.fail(w, r, badRequest("unknown status %q", *req.Status))
			return
		}
		d.Status = *req.Status
	}
	if err := validateFilledData(d.FilledData); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.repo.CreateDocument(r.Context(), d); err != nil {
		h.fail(w, r, err)
		return
	}
	h.schedule(r.Context(), d)
	writeJSON(w, http.StatusCreated, respond(d))
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, respond(d))
}

func (h *Handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.repo.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	regenerate := false
	if req.TemplateID != nil && *req.TemplateID != d.TemplateID {
		tpl, err := h.template(r.Context(), *req.TemplateID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if tpl.Kind != d.Kind {
			h.fail(w, r, unprocessable("template_id", fmt.Sprintf("template is a %s, document is a %s", tpl.Kind, d.Kind)))
			return
		}
		d.TemplateID = tpl.ID
		regenerate = true
	}
	if req.FilledData != nil {
		merged := d.FilledData.Merge(*req.FilledData)
		if err := validateFilledData(merged); err != nil {
			h.fail(w, r, err)
			return
		}
		if changed, err := dataChanged(d.FilledData, merged); err != nil {
			h.fail(w, r, err)
			return
		} else if changed {
			regenerate = true
		}
		d.FilledData = merged
	}
	if req.EventID != nil {
		if *req.EventID == "" {
			d.EventID = nil
		} else {
			d.EventID = req.EventID
		}
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			h.fail(w, r, badRequest("unknown status %q", *req.Status))
			return
		}
		d.Status = *req.Status
	}
	if req.Notes != nil {
		d.Notes = *req.Notes
	}

	if err := h.repo.UpdateDocument(r.Context(), d); err != nil {
		h.fail(w, r, err)
		return
	}
	if regenerate {
		h.schedule(r.Context(), d)
	}
	writeJSON(w, http.StatusOK, respond(d))
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteDocument(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// template loads the template a document points at. An unknown id is the
// caller's data problem, not a missing route.
func (h *Handler) template(ctx context.Context, id string) (*domain.Template, error) {
	tpl, err := h.repo.GetTemplate(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, unprocessable("template_id", "unknown template "+id)
	}
	return tpl, err
}

// schedule starts a background generation. The record is already saved,
// so a scheduling failure is logged and visible as an unchanged status.
func (h *Handler) schedule(ctx context.Context, d *domain.FilledDocument) {
	if err := h.gens.Schedule(ctx, d.ID); err != nil {
		logger.From(h.log, ctx).WarnContext(ctx, "schedule generation", "document_id", d.ID, "err", err)
		return
	}
	d.GenerationState = domain.GenerationState{Status: domain.GenerationPending}
}

func dataChanged(before, after domain.FilledData) (bool, error) {
	a, err := json.Marshal(before)
	if err != nil {
		return false, err
	}
	b, err := json.Marshal(after)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(a, b), nil
}

// ── Generation ────────────────────────────────────────────────────────────────

type scheduledResponse struct {
	DocumentID string                  `json:"document_id"`
	Status     domain.GenerationStatus `json:"generation_status"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.repo.GetDocument(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}

	if r.URL.Query().Get("wait") == "1" {
		res, err := h.gens.Run(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	if err := h.gens.Schedule(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	if isHTMX(r) {
		h.status(w, r)
		return
	}
	writeJSON(w, http.StatusAccepted, scheduledResponse{DocumentID: id, Status: domain.GenerationPending})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render(w, r, templates.GenerationStatus(d, h.opts.StaleAfter, h.opts.Now()))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tpl, err := h.repo.GetTemplate(r.Context(), d.TemplateID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		h.fail(w, r, err)
		return
	}
	now := h.opts.Now()
	built, err := fieldmap.Build(d.Kind, d.FilledData, now)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	sheet := &pdf.Sheet{
		Document: d,
		Template: tpl,
		Table:    built.Table,
		Missing:  built.Missing,
		Invalid:  built.Invalid,
		At:       now,
	}
	if err := pdf.GenerateSummary(sheet, &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	filename := fmt.Sprintf("conferencia_%s_%s.pdf", d.ID, now.Format("20060102"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))
	w.Write(buf.Bytes())
}

// ── Data entry ────────────────────────────────────────────────────────────────

type cpfResponse struct {
	Valid     bool   `json:"valid"`
	Formatted string `json:"formatted,omitempty"`
}

// validateCPF accepts {"cpf": "..."} or a form post with a cpf field.
func (h *Handler) validateCPF(w http.ResponseWriter, r *http.Request) {
	var cpf string
	if isJSON(r) {
		var req struct {
			CPF string `json:"cpf"`
		}
		if err := decode(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		cpf = req.CPF
	} else {
		if err := r.ParseForm(); err != nil {
			h.fail(w, r, badRequest("%v", err))
			return
		}
		cpf = r.FormValue("cpf")
	}

	if err := format.ValidateCPF(cpf); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, cpfResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, cpfResponse{Valid: true, Formatted: format.FormatCPF(cpf)})
}

// render writes a templ component to the response.
func render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), 500)
	}
}
