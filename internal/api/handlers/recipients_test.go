package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"mailmerge/internal/campaign"
	"mailmerge/internal/core"
	"mailmerge/internal/types"
)

const testCSV = "NO.,First Name,Email Address,Company Name\n" +
	"1,Ada,ada@example.com,Analytical Engines\n" +
	"2,Grace,grace@example.com,COBOL Inc\n" +
	"3,Edsger,edsger@example.com,THE\n" +
	"4,Barbara,barbara@example.com,Liskov Labs\n" +
	"5,Donald,donald@example.com,TAOCP\n" +
	"6,Tony,tony@example.com,Null Refs\n"

func newTestRecipientsHandler() (*RecipientsHandler, *campaign.Manager) {
	m := campaign.NewManager()
	return NewRecipientsHandler(m, nil, core.NewValidator(nil)), m
}

// multipartBody builds a multipart request body with a single "file" field.
func multipartBody(t *testing.T, filename, contents string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(contents)); err != nil {
		t.Fatalf("write file field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, filename, contents string, user *types.User) *http.Request {
	t.Helper()
	buf, contentType := multipartBody(t, filename, contents)
	req := httptest.NewRequest(http.MethodPost, "/v1/recipients", buf)
	req.Header.Set("Content-Type", contentType)
	if user != nil {
		req = req.WithContext(types.WithUser(req.Context(), user))
	}
	return req
}

// =============================================================================
// HandleUpload Tests
// =============================================================================

func TestHandleUpload_Success(t *testing.T) {
	h, m := newTestRecipientsHandler()

	req := uploadRequest(t, "prospects.csv", testCSV, testUser())
	rec := httptest.NewRecorder()

	h.HandleUpload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data UploadResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Data.RowCount != 6 {
		t.Errorf("row count: got %d, want 6", resp.Data.RowCount)
	}
	if len(resp.Data.Columns) != 4 || resp.Data.Columns[2] != "Email Address" {
		t.Errorf("columns: got %v", resp.Data.Columns)
	}

	c := m.ForUser("user_test123")
	if c.RowCount() != 6 {
		t.Errorf("campaign row count: got %d, want 6", c.RowCount())
	}
	for i, s := range c.Statuses() {
		if s.State != types.StatusPending {
			t.Errorf("row %d status: got %q, want pending", i, s.State)
		}
	}
}

func TestHandleUpload_ReplacesPreviousState(t *testing.T) {
	h, m := newTestRecipientsHandler()
	c := m.ForUser("user_test123")

	// First upload, then select a row.
	req := uploadRequest(t, "first.csv", testCSV, testUser())
	h.HandleUpload(httptest.NewRecorder(), req)
	if err := c.ToggleSelection(2); err != nil {
		t.Fatalf("ToggleSelection: %v", err)
	}

	// Second upload wipes selection and statuses.
	smaller := "Email Address\nonly@example.com\n"
	req = uploadRequest(t, "second.csv", smaller, testUser())
	rec := httptest.NewRecorder()
	h.HandleUpload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if c.RowCount() != 1 {
		t.Errorf("row count after replace: got %d, want 1", c.RowCount())
	}
	if len(c.SelectedIndices()) != 0 {
		t.Error("selection should be cleared by replacement")
	}
}

func TestHandleUpload_WrongExtension(t *testing.T) {
	h, _ := newTestRecipientsHandler()

	req := uploadRequest(t, "prospects.xlsx", testCSV, testUser())
	rec := httptest.NewRecorder()

	h.HandleUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Error.Code != string(types.ErrCodeValidationInvalidFileType) {
		t.Errorf("error code: got %q", resp.Error.Code)
	}
}

func TestHandleUpload_HeaderOnly(t *testing.T) {
	h, _ := newTestRecipientsHandler()

	req := uploadRequest(t, "empty.csv", "Email Address\n", testUser())
	rec := httptest.NewRecorder()

	h.HandleUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Error.Code != string(types.ErrCodeValidationFileTooShort) {
		t.Errorf("error code: got %q", resp.Error.Code)
	}
}

func TestHandleUpload_MissingFileField(t *testing.T) {
	h, _ := newTestRecipientsHandler()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("other", "value")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/recipients", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(types.WithUser(req.Context(), testUser()))
	rec := httptest.NewRecorder()

	h.HandleUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleUpload_Unauthenticated(t *testing.T) {
	h, _ := newTestRecipientsHandler()

	req := uploadRequest(t, "prospects.csv", testCSV, nil)
	rec := httptest.NewRecorder()

	h.HandleUpload(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

// =============================================================================
// HandleList Tests
// =============================================================================

func loadTestRows(t *testing.T, h *RecipientsHandler) {
	t.Helper()
	req := uploadRequest(t, "prospects.csv", testCSV, testUser())
	rec := httptest.NewRecorder()
	h.HandleUpload(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}
}

func listPage(t *testing.T, h *RecipientsHandler, target string) RecipientsPage {
	t.Helper()
	req := requestWithUser(http.MethodGet, target, nil, testUser())
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data RecipientsPage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return resp.Data
}

func TestHandleList_DefaultPageSizeIsFive(t *testing.T) {
	h, _ := newTestRecipientsHandler()
	loadTestRows(t, h)

	page := listPage(t, h, "/v1/recipients")

	if page.PageSize != 5 {
		t.Errorf("page size: got %d, want 5", page.PageSize)
	}
	if len(page.Rows) != 5 {
		t.Errorf("rows on first page: got %d, want 5", len(page.Rows))
	}
	if page.TotalRows != 6 {
		t.Errorf("total rows: got %d, want 6", page.TotalRows)
	}
	if page.TotalPages != 2 {
		t.Errorf("total pages: got %d, want 2", page.TotalPages)
	}
	if page.Rows[0].Index != 0 || page.Rows[0].Cells.EmailAddress() != "ada@example.com" {
		t.Errorf("first row: %+v", page.Rows[0])
	}
}

func TestHandleList_SecondPage(t *testing.T) {
	h, _ := newTestRecipientsHandler()
	loadTestRows(t, h)

	page := listPage(t, h, "/v1/recipients?page=2")

	if len(page.Rows) != 1 {
		t.Fatalf("rows on second page: got %d, want 1", len(page.Rows))
	}
	if page.Rows[0].Index != 5 || page.Rows[0].Cells.EmailAddress() != "tony@example.com" {
		t.Errorf("second page row: %+v", page.Rows[0])
	}
}

func TestHandleList_PageBeyondEnd(t *testing.T) {
	h, _ := newTestRecipientsHandler()
	loadTestRows(t, h)

	page := listPage(t, h, "/v1/recipients?page=99")

	if len(page.Rows) != 0 {
		t.Errorf("rows beyond last page: got %d, want 0", len(page.Rows))
	}
}

func TestHandleList_Empty(t *testing.T) {
	h, _ := newTestRecipientsHandler()

	page := listPage(t, h, "/v1/recipients")

	if page.TotalRows != 0 || len(page.Rows) != 0 {
		t.Errorf("empty campaign: %+v", page)
	}
	if page.TotalPages != 1 {
		t.Errorf("total pages for empty campaign: got %d, want 1", page.TotalPages)
	}
}

func TestHandleList_ReflectsSelection(t *testing.T) {
	h, m := newTestRecipientsHandler()
	loadTestRows(t, h)
	c := m.ForUser("user_test123")
	if err := c.ToggleSelection(1); err != nil {
		t.Fatalf("ToggleSelection: %v", err)
	}

	page := listPage(t, h, "/v1/recipients")

	if page.Rows[0].Selected {
		t.Error("row 0 should not be selected")
	}
	if !page.Rows[1].Selected {
		t.Error("row 1 should be selected")
	}
}

func TestHandleList_ConsistentUnderConcurrentReplace(t *testing.T) {
	h, m := newTestRecipientsHandler()
	loadTestRows(t, h)
	c := m.ForUser("user_test123")

	small := &types.RowSet{
		Columns: []string{"Email Address"},
		Rows:    []types.Row{{"Email Address": "only@example.com"}},
	}
	big := make([]types.Row, 6)
	for i := range big {
		big[i] = types.Row{"Email Address": "many@example.com"}
	}
	large := &types.RowSet{Columns: []string{"Email Address"}, Rows: big}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				c.ReplaceRows(small)
			} else {
				c.ReplaceRows(large)
			}
		}
	}()

	for i := 0; i < 500; i++ {
		page := listPage(t, h, "/v1/recipients")
		if len(page.Rows) > page.TotalRows {
			t.Fatalf("page of %d rows exceeds total %d", len(page.Rows), page.TotalRows)
		}
	}

	close(stop)
	wg.Wait()
}

// =============================================================================
// HandleClear Tests
// =============================================================================

func TestHandleClear_RemovesEverything(t *testing.T) {
	h, m := newTestRecipientsHandler()
	loadTestRows(t, h)

	req := requestWithUser(http.MethodDelete, "/v1/recipients", nil, testUser())
	rec := httptest.NewRecorder()

	h.HandleClear(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	c := m.ForUser("user_test123")
	if c.RowCount() != 0 {
		t.Errorf("row count after clear: got %d, want 0", c.RowCount())
	}
	if len(c.Statuses()) != 0 {
		t.Error("statuses should be cleared")
	}
}

// =============================================================================
// HandleSelection Tests
// =============================================================================

func postSelection(t *testing.T, h *RecipientsHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/recipients/selection", strings.NewReader(body))
	req = req.WithContext(types.WithUser(req.Context(), testUser()))
	rec := httptest.NewRecorder()
	h.HandleSelection(rec, req)
	return rec
}

func TestHandleSelection_Toggle(t *testing.T) {
	h, _ := newTestRecipientsHandler()
	loadTestRows(t, h)

	rec := postSelection(t, h, `{"action":"toggle","index":2}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data SelectionResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Data.SelectedCount != 1 || resp.Data.SelectedIndices[0] != 2 {
		t.Errorf("selection: %+v", resp.Data)
	}

	// Toggling again deselects.
	rec = postSelection(t, h, `{"action":"toggle","index":2}`)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Data.SelectedCount != 0 {
		t.Errorf("selection after second toggle: %+v", resp.Data)
	}
}

func TestHandleSelection_ToggleOutOfRange(t *testing.T) {
	h, _ := newTestRecipientsHandler()
	loadTestRows(t, h)

	rec := postSelection(t, h, `{"action":"toggle","index":99}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	resp := decodeErrorResponse(t, rec)
	if resp.Error.Code != string(types.ErrCodeValidationInvalidIndex) {
		t.Errorf("error code: got %q", resp.Error.Code)
	}
}

func TestHandleSelection_ToggleWithoutIndex(t *testing.T) {
	h, _ := newTestRecipientsHandler()
	loadTestRows(t, h)

	rec := postSelection(t, h, `{"action":"toggle"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleSelection_SelectAllTogglesOff(t *testing.T) {
	h, _ := newTestRecipientsHandler()
	loadTestRows(t, h)

	// First select_all selects every row.
	rec := postSelection(t, h, `{"action":"select_all"}`)
	var resp struct {
		Data SelectionResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Data.SelectedCount != 6 {
		t.Fatalf("select_all: got %d selected, want 6", resp.Data.SelectedCount)
	}

	// Second select_all clears, mirroring the header checkbox.
	rec = postSelection(t, h, `{"action":"select_all"}`)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Data.SelectedCount != 0 {
		t.Errorf("second select_all: got %d selected, want 0", resp.Data.SelectedCount)
	}
}

func TestHandleSelection_DeselectAll(t *testing.T) {
	h, m := newTestRecipientsHandler()
	loadTestRows(t, h)
	c := m.ForUser("user_test123")
	_ = c.ToggleSelection(0)
	_ = c.ToggleSelection(3)

	rec := postSelection(t, h, `{"action":"deselect_all"}`)

	var resp struct {
		Data SelectionResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Data.SelectedCount != 0 {
		t.Errorf("deselect_all: got %d selected, want 0", resp.Data.SelectedCount)
	}
}

func TestHandleSelection_UnknownAction(t *testing.T) {
	h, _ := newTestRecipientsHandler()

	rec := postSelection(t, h, `{"action":"invert"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
