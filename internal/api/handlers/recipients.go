package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mailmerge/internal/campaign"
	"mailmerge/internal/core"
	"mailmerge/internal/ingest"
	"mailmerge/internal/types"
)

// maxUploadSize bounds the multipart recipient upload (8 MB).
const maxUploadSize = 8 << 20

// defaultPageSize is the row preview page size.
const defaultPageSize = 5

// maxPageSize caps the page size a client may request.
const maxPageSize = 100

// --- DTOs ---

// UploadResponse is the response body for POST /recipients.
type UploadResponse struct {
	Columns  []string `json:"columns"`
	RowCount int      `json:"row_count"`
}

// RecipientRow is one row in the paginated listing.
type RecipientRow struct {
	Index    int              `json:"index"`
	Cells    types.Row        `json:"cells"`
	Status   types.SendStatus `json:"status"`
	Selected bool             `json:"selected"`
}

// RecipientsPage is the response body for GET /recipients.
type RecipientsPage struct {
	Columns    []string       `json:"columns"`
	Rows       []RecipientRow `json:"rows"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalRows  int            `json:"total_rows"`
	TotalPages int            `json:"total_pages"`
}

// SelectionRequest is the request body for POST /recipients/selection.
type SelectionRequest struct {
	Action string `json:"action" validate:"required,oneof=toggle select_all deselect_all"`
	Index  *int   `json:"index,omitempty"`
}

// SelectionResponse reports the selection set after the change.
type SelectionResponse struct {
	SelectedIndices []int `json:"selected_indices"`
	SelectedCount   int   `json:"selected_count"`
}

// --- Handler ---

// RecipientsHandler manages the uploaded row set: upload, preview listing,
// clearing, and the selection set used by selective dispatch.
type RecipientsHandler struct {
	campaigns *campaign.Manager
	logger    *slog.Logger
	validator *core.Validator
}

// NewRecipientsHandler creates a new RecipientsHandler.
func NewRecipientsHandler(m *campaign.Manager, l *slog.Logger, v *core.Validator) *RecipientsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RecipientsHandler{
		campaigns: m,
		logger:    l,
		validator: v,
	}
}

// RegisterRoutes mounts the recipient routes onto the provided router.
func (h *RecipientsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/recipients", func(r chi.Router) {
		r.Post("/", h.HandleUpload)
		r.Get("/", h.HandleList)
		r.Delete("/", h.HandleClear)
		r.Post("/selection", h.HandleSelection)
	})
}

// HandleUpload processes POST /recipients requests.
//
// The multipart field "file" carries the CSV. Parsing replaces the caller's
// campaign wholesale: every status resets to pending and the selection is
// cleared, even when the new file has rows in common with the old one.
func (h *RecipientsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidFileType,
			"request must be multipart/form-data with a \"file\" field",
			err,
		))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"missing \"file\" field in upload",
			err,
		))
		return
	}
	defer file.Close()

	rows, err := ingest.ParseRecipients(header.Filename, file)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	c := h.campaigns.ForUser(user.ID)
	c.ReplaceRows(rows)

	h.logger.Info("recipient list replaced",
		"user_id", user.ID,
		"filename", header.Filename,
		"row_count", rows.Len(),
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: UploadResponse{
		Columns:  rows.Columns,
		RowCount: rows.Len(),
	}})
}

// HandleList processes GET /recipients requests.
//
// Query parameters:
//   - page:      1-based page number (default 1)
//   - page_size: rows per page (default 5, max 100)
func (h *RecipientsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	c := h.campaigns.ForUser(user.ID)
	snap := c.Snapshot()
	rows := snap.Rows
	total := rows.Len()

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	out := make([]RecipientRow, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, RecipientRow{
			Index:    i,
			Cells:    rows.Row(i),
			Status:   snap.Statuses[i],
			Selected: snap.Selection[i],
		})
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: RecipientsPage{
		Columns:    rows.Columns,
		Rows:       out,
		Page:       page,
		PageSize:   pageSize,
		TotalRows:  total,
		TotalPages: totalPages,
	}})
}

// HandleClear processes DELETE /recipients requests, discarding the loaded
// row set, all statuses, and the selection.
func (h *RecipientsHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	h.campaigns.ForUser(user.ID).Clear()

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]string{"message": "recipient list cleared"},
	})
}

// HandleSelection processes POST /recipients/selection requests.
//
// Actions:
//   - toggle:       flip one row's selection; requires "index"
//   - select_all:   select every row, or clear when all are already selected
//   - deselect_all: clear the selection set
func (h *RecipientsHandler) HandleSelection(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	var req SelectionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	c := h.campaigns.ForUser(user.ID)

	switch req.Action {
	case "toggle":
		if req.Index == nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"action \"toggle\" requires an index",
				nil,
			))
			return
		}
		if err := c.ToggleSelection(*req.Index); err != nil {
			core.Error(w, r, err)
			return
		}
	case "select_all":
		c.ToggleSelectAll()
	case "deselect_all":
		c.DeselectAll()
	}

	indices := c.SelectedIndices()
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SelectionResponse{
		SelectedIndices: indices,
		SelectedCount:   len(indices),
	}})
}

// queryInt reads an integer query parameter, returning def when absent or
// malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
