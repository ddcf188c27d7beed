package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailmerge/internal/campaign"
	"mailmerge/internal/core"
	"mailmerge/internal/types"
)

// --- DTOs ---

// TestSendRequest is the request body for POST /dispatch/test.
type TestSendRequest struct {
	Address string `json:"address" validate:"required,email"`
}

// DispatchStartedResponse is the response body for the batch dispatch
// endpoints. The run continues in the background; progress is observed via
// GET /dispatch/status.
type DispatchStartedResponse struct {
	Message  string `json:"message"`
	RowCount int    `json:"row_count"`
}

// DispatchStatusResponse is the response body for GET /dispatch/status.
type DispatchStatusResponse struct {
	Dispatching bool                   `json:"dispatching"`
	Statuses    []types.SendStatus     `json:"statuses"`
	Pending     int                    `json:"pending"`
	Sent        int                    `json:"sent"`
	Failed      int                    `json:"failed"`
	LastSummary *types.DispatchSummary `json:"last_summary,omitempty"`
}

// --- Service Interface ---

// Dispatcher is the batch-send boundary consumed by the handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, c *campaign.Campaign, indices []int, tmpl types.ActiveTemplate) (types.DispatchSummary, error)
	DispatchSelected(ctx context.Context, c *campaign.Campaign, tmpl types.ActiveTemplate) (types.DispatchSummary, error)
	DispatchAll(ctx context.Context, c *campaign.Campaign, tmpl types.ActiveTemplate) (types.DispatchSummary, error)
	SendTest(ctx context.Context, c *campaign.Campaign, tmpl types.ActiveTemplate, testAddr string) error
}

// --- Handler ---

// DispatchHandler triggers sends: the synchronous test send and the
// background batch runs, plus the status poll the dashboard drives its
// progress display from.
type DispatchHandler struct {
	campaigns *campaign.Manager
	store     TemplateStore
	sequencer Dispatcher
	logger    *slog.Logger
	validator *core.Validator
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(
	m *campaign.Manager,
	store TemplateStore,
	seq Dispatcher,
	l *slog.Logger,
	v *core.Validator,
) *DispatchHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DispatchHandler{
		campaigns: m,
		store:     store,
		sequencer: seq,
		logger:    l,
		validator: v,
	}
}

// RegisterRoutes mounts the dispatch routes onto the provided router.
func (h *DispatchHandler) RegisterRoutes(r chi.Router) {
	r.Route("/dispatch", func(r chi.Router) {
		r.Post("/test", h.HandleTest)
		r.Post("/selected", h.HandleSelected)
		r.Post("/all", h.HandleAll)
		r.Get("/status", h.HandleStatus)
	})
}

// HandleTest processes POST /dispatch/test requests.
//
// The test renders the active template against row 0 (or an empty row when
// none are loaded) with the recipient address replaced by the caller's, and
// sends synchronously. Row statuses and tallies are untouched.
func (h *DispatchHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	var req TestSendRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tmpl := h.store.Active(r.Context(), user.ID)
	if !tmpl.IsSendReady() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationEmptyTemplate,
			"the active template needs a subject and a body before sending",
			nil,
		))
		return
	}

	c := h.campaigns.ForUser(user.ID)
	if err := h.sequencer.SendTest(r.Context(), c, tmpl, req.Address); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]string{"message": "test email sent to " + req.Address},
	})
}

// HandleSelected processes POST /dispatch/selected requests, starting a
// background run over the current selection set in ascending index order.
func (h *DispatchHandler) HandleSelected(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	c := h.campaigns.ForUser(user.ID)
	indices := c.SelectedIndices()
	if len(indices) == 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationEmptySelection,
			"select at least one row to send",
			nil,
		))
		return
	}

	h.startDispatch(w, r, user.ID, c, indices)
}

// HandleAll processes POST /dispatch/all requests, starting a background
// run over every loaded row in storage order regardless of selection.
func (h *DispatchHandler) HandleAll(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	c := h.campaigns.ForUser(user.ID)
	n := c.RowCount()
	if n == 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationNoRecipients,
			"upload a recipient list before sending",
			nil,
		))
		return
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	h.startDispatch(w, r, user.ID, c, indices)
}

// startDispatch runs the shared pre-flight checks and launches the batch in
// the background. The goroutine uses a context detached from the request so
// an impatient client disconnect cannot abort a half-finished run.
func (h *DispatchHandler) startDispatch(w http.ResponseWriter, r *http.Request, userID string, c *campaign.Campaign, indices []int) {
	tmpl := h.store.Active(r.Context(), userID)
	if !tmpl.IsSendReady() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationEmptyTemplate,
			"the active template needs a subject and a body before sending",
			nil,
		))
		return
	}

	if c.Dispatching() {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictDispatchActive,
			"a dispatch is already in progress",
			nil,
		))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		summary, err := h.sequencer.Dispatch(ctx, c, indices, tmpl)
		if err != nil {
			// A concurrent trigger that slipped past the pre-flight check
			// lands here; the winning run is unaffected.
			h.logger.Warn("background dispatch did not run",
				"user_id", userID,
				"error", err,
			)
			return
		}
		h.logger.Info("background dispatch finished",
			"user_id", userID,
			"sent", summary.SentCount,
			"failed", summary.FailedCount,
		)
	}()

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: DispatchStartedResponse{
		Message:  "dispatch started",
		RowCount: len(indices),
	}})
}

// HandleStatus processes GET /dispatch/status requests: the full per-row
// status array, tallies, the in-progress flag, and the last completed
// batch summary.
func (h *DispatchHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := types.GetUser(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	c := h.campaigns.ForUser(user.ID)
	pending, sent, failed := c.Tally()

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: DispatchStatusResponse{
		Dispatching: c.Dispatching(),
		Statuses:    c.Statuses(),
		Pending:     pending,
		Sent:        sent,
		Failed:      failed,
		LastSummary: c.LastSummary(),
	}})
}
