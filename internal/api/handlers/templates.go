package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailmerge/internal/campaign"
	"mailmerge/internal/core"
	"mailmerge/internal/render"
	"mailmerge/internal/types"
)

// --- DTOs ---

// TemplateListResponse is the response body for GET /templates: the named
// list (newest first) plus the active subject/body.
type TemplateListResponse struct {
	Templates []types.Template     `json:"templates"`
	Active    types.ActiveTemplate `json:"active"`
}

// SaveTemplateRequest is the request body for POST /templates.
type SaveTemplateRequest struct {
	Name    string `json:"name" validate:"max=200"`
	Subject string `json:"subject" validate:"max=500"`
	Body    string `json:"body" validate:"max=100000"`
}

// ActiveTemplateRequest is the request body for PUT /templates/active.
type ActiveTemplateRequest struct {
	Subject string `json:"subject" validate:"max=500"`
	Body    string `json:"body" validate:"max=100000"`
}

// PreviewRequest is the request body for POST /templates/preview. RowIndex
// selects the campaign row the placeholders are resolved against; when nil
// the active template renders against an empty row, which blanks every
// token.
type PreviewRequest struct {
	RowIndex *int `json:"row_index,omitempty"`
}

// PreviewResponse is the rendered subject/body pair plus the placeholder
// tokens the renderer recognizes.
type PreviewResponse struct {
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Tokens  []string `json:"tokens"`
}

// --- Service Interface ---

// TemplateStore is the template state boundary consumed by the handler.
type TemplateStore interface {
	List(ctx context.Context, ownerID string) []types.Template
	Active(ctx context.Context, ownerID string) types.ActiveTemplate
	SetActive(ctx context.Context, ownerID string, t types.ActiveTemplate)
	Save(ctx context.Context, ownerID, name, subject, body string) (*types.Template, error)
	Select(ctx context.Context, ownerID, id string) (*types.Template, error)
}

// --- Handler ---

// TemplatesHandler manages the named template list and the active
// subject/body pair consumed by dispatch.
type TemplatesHandler struct {
	store     TemplateStore
	campaigns *campaign.Manager
	logger    *slog.Logger
	validator *core.Validator
}

// NewTemplatesHandler creates a new TemplatesHandler.
func NewTemplatesHandler(store TemplateStore, m *campaign.Manager, l *slog.Logger, v *core.Validator) *TemplatesHandler {
	if l == nil {
		l = slog.Default()
	}
	return &TemplatesHandler{
		store:     store,
		campaigns: m,
		logger:    l,
		validator: v,
	}
}

// RegisterRoutes mounts the template routes onto the provided router.
func (h *TemplatesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleSave)
		r.Post("/{id}/select", h.HandleSelect)
		r.Put("/active", h.HandleSetActive)
		r.Post("/preview", h.HandlePreview)
	})
}

// HandleList processes GET /templates requests.
func (h *TemplatesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: TemplateListResponse{
		Templates: h.store.List(r.Context(), user.ID),
		Active:    h.store.Active(r.Context(), user.ID),
	}})
}

// HandleSave processes POST /templates requests.
//
// Saving prepends the new template (list capped at the newest ten), makes
// it active, and persists both records. A blank subject+body or a subject
// matching the persisted last-used one is rejected without changing state.
func (h *TemplatesHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	var req SaveTemplateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tmpl, err := h.store.Save(r.Context(), user.ID, req.Name, req.Subject, req.Body)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: tmpl})
}

// HandleSelect processes POST /templates/{id}/select requests, making the
// named template the active one.
func (h *TemplatesHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "template id is required", nil))
		return
	}

	tmpl, err := h.store.Select(r.Context(), user.ID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: tmpl})
}

// HandleSetActive processes PUT /templates/active requests: editor changes
// to the active subject/body that are not saved as a named template.
func (h *TemplatesHandler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	var req ActiveTemplateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	active := types.ActiveTemplate{Subject: req.Subject, Body: req.Body}
	h.store.SetActive(r.Context(), user.ID, active)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: active})
}

// HandlePreview processes POST /templates/preview requests, rendering the
// active template against a chosen campaign row.
func (h *TemplatesHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	var req PreviewRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	row := types.Row{}
	if req.RowIndex != nil {
		c := h.campaigns.ForUser(user.ID)
		row = c.Row(*req.RowIndex)
		if row == nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidIndex,
				"row index out of range",
				nil,
			))
			return
		}
	}

	tmpl := h.store.Active(r.Context(), user.ID)
	subject, body := render.RenderTemplate(tmpl, row)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PreviewResponse{
		Subject: subject,
		Body:    body,
		Tokens:  render.Tokens(),
	}})
}
