package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"mailmerge/internal/types"
)

// --- Test Doubles ---

// memPort implements Port in memory with injectable failures.
type memPort struct {
	lists    map[string][]types.Template
	lastUsed map[string]*types.ActiveTemplate
	failAll  bool

	saveListCalls     int
	saveLastUsedCalls int
}

func newMemPort() *memPort {
	return &memPort{
		lists:    make(map[string][]types.Template),
		lastUsed: make(map[string]*types.ActiveTemplate),
	}
}

var errPortDown = errors.New("persistence unavailable")

func (p *memPort) LoadList(_ context.Context, ownerID string) ([]types.Template, error) {
	if p.failAll {
		return nil, errPortDown
	}
	return p.lists[ownerID], nil
}

func (p *memPort) SaveList(_ context.Context, ownerID string, list []types.Template) error {
	p.saveListCalls++
	if p.failAll {
		return errPortDown
	}
	out := make([]types.Template, len(list))
	copy(out, list)
	p.lists[ownerID] = out
	return nil
}

func (p *memPort) LoadLastUsed(_ context.Context, ownerID string) (*types.ActiveTemplate, error) {
	if p.failAll {
		return nil, errPortDown
	}
	return p.lastUsed[ownerID], nil
}

func (p *memPort) SaveLastUsed(_ context.Context, ownerID string, t types.ActiveTemplate) error {
	p.saveLastUsedCalls++
	if p.failAll {
		return errPortDown
	}
	p.lastUsed[ownerID] = &t
	return nil
}

// fixedClock steps forward one second per Now call so CreatedAt values are
// distinct and ordered.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(port Port) *Store {
	return NewStore(StoreConfig{
		Port:   port,
		Clock:  &fixedClock{t: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

const owner = "user_test"

// --- Save ---

func TestSavePrependsAndPersists(t *testing.T) {
	port := newMemPort()
	store := newTestStore(port)
	ctx := context.Background()

	first, err := store.Save(ctx, owner, "Intro", "Hello {{First Name}}", "body one")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := store.Save(ctx, owner, "Follow-up", "Checking in", "body two")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	list := store.List(ctx, owner)
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Error("list is not newest-first")
	}

	if got := port.lists[owner]; len(got) != 2 {
		t.Errorf("persisted list has %d entries, want 2", len(got))
	}
	if last := port.lastUsed[owner]; last == nil || last.Subject != "Checking in" {
		t.Errorf("persisted last-used = %+v, want the newest save", last)
	}

	active := store.Active(ctx, owner)
	if active.Subject != "Checking in" || active.Body != "body two" {
		t.Errorf("Active() = %+v", active)
	}
}

func TestSaveRejectsBlankTemplate(t *testing.T) {
	store := newTestStore(newMemPort())
	ctx := context.Background()

	_, err := store.Save(ctx, owner, "Empty", "   ", "\t\n")
	assertCode(t, err, types.ErrCodeValidationEmptyTemplate)
	if got := len(store.List(ctx, owner)); got != 0 {
		t.Errorf("list has %d entries after rejected save", got)
	}
}

func TestSaveAllowsSubjectOnlyOrBodyOnly(t *testing.T) {
	store := newTestStore(newMemPort())
	ctx := context.Background()

	if _, err := store.Save(ctx, owner, "S", "subject only", ""); err != nil {
		t.Errorf("subject-only Save() error = %v", err)
	}
	if _, err := store.Save(ctx, owner, "B", "", "body only"); err != nil {
		t.Errorf("body-only Save() error = %v", err)
	}
}

func TestSaveRejectsDuplicateOfLastUsedSubjectOnly(t *testing.T) {
	store := newTestStore(newMemPort())
	ctx := context.Background()

	if _, err := store.Save(ctx, owner, "A", "Same Subject", "body"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// Identical to the last-used slot: rejected.
	_, err := store.Save(ctx, owner, "B", "Same Subject", "different body")
	assertCode(t, err, types.ErrCodeValidationDuplicateSubject)

	// Saving something else moves the last-used slot forward...
	if _, err := store.Save(ctx, owner, "C", "Other Subject", "body"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// ...so the original subject no longer matches the single checked slot,
	// even though it is still in the list.
	if _, err := store.Save(ctx, owner, "D", "Same Subject", "body"); err != nil {
		t.Errorf("Save() error = %v, want nil (duplicate check is last-used only)", err)
	}
}

func TestSaveEvictsOldestAtCapacity(t *testing.T) {
	store := newTestStore(newMemPort())
	ctx := context.Background()

	var oldest string
	for i := 0; i < Capacity; i++ {
		tmpl, err := store.Save(ctx, owner, "T", fmt.Sprintf("Subject %d", i), "body")
		if err != nil {
			t.Fatalf("Save(%d) error = %v", i, err)
		}
		if i == 0 {
			oldest = tmpl.ID
		}
	}

	newest, err := store.Save(ctx, owner, "T", "Subject overflow", "body")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	list := store.List(ctx, owner)
	if len(list) != Capacity {
		t.Fatalf("len(list) = %d, want %d", len(list), Capacity)
	}
	if list[0].ID != newest.ID {
		t.Error("newest entry is not first")
	}
	for _, tmpl := range list {
		if tmpl.ID == oldest {
			t.Error("oldest entry was not evicted")
		}
	}
}

// --- Select ---

func TestSelectMakesTemplateActive(t *testing.T) {
	port := newMemPort()
	store := newTestStore(port)
	ctx := context.Background()

	saved, err := store.Save(ctx, owner, "A", "Subject A", "Body A")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := store.Save(ctx, owner, "B", "Subject B", "Body B"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Select(ctx, owner, saved.ID)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("Select() returned %q, want %q", got.ID, saved.ID)
	}
	if active := store.Active(ctx, owner); active.Subject != "Subject A" {
		t.Errorf("Active() = %+v, want Subject A", active)
	}
	if last := port.lastUsed[owner]; last == nil || last.Subject != "Subject A" {
		t.Errorf("persisted last-used = %+v", last)
	}
}

func TestSelectUnknownIDLeavesStateUnchanged(t *testing.T) {
	store := newTestStore(newMemPort())
	ctx := context.Background()

	if _, err := store.Save(ctx, owner, "A", "Subject A", "Body A"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, err := store.Select(ctx, owner, "tmpl_does-not-exist")
	assertCode(t, err, types.ErrCodeNotFoundTemplate)

	if active := store.Active(ctx, owner); active.Subject != "Subject A" {
		t.Errorf("Active() = %+v, want unchanged", active)
	}
	if got := len(store.List(ctx, owner)); got != 1 {
		t.Errorf("len(list) = %d, want 1", got)
	}
}

// --- Load / migration ---

func TestLoadMigratesLegacyLastUsedRecord(t *testing.T) {
	port := newMemPort()
	port.lastUsed[owner] = &types.ActiveTemplate{Subject: "Old Subject", Body: "Old Body"}
	store := newTestStore(port)
	ctx := context.Background()

	list := store.List(ctx, owner)
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1 migrated entry", len(list))
	}
	if list[0].Name != "Default Template" {
		t.Errorf("migrated name = %q, want %q", list[0].Name, "Default Template")
	}
	if list[0].Subject != "Old Subject" || list[0].Body != "Old Body" {
		t.Errorf("migrated content = %+v", list[0])
	}
	// The synthesized list is persisted.
	if got := port.lists[owner]; len(got) != 1 {
		t.Errorf("persisted list has %d entries, want 1", len(got))
	}
}

func TestLoadDoesNotMigrateWhenListExists(t *testing.T) {
	port := newMemPort()
	port.lists[owner] = []types.Template{{ID: "tmpl_x", Name: "Existing", Subject: "S", Body: "B"}}
	port.lastUsed[owner] = &types.ActiveTemplate{Subject: "Last", Body: "Used"}
	store := newTestStore(port)

	list := store.List(context.Background(), owner)
	if len(list) != 1 || list[0].Name != "Existing" {
		t.Errorf("list = %+v, want only the existing entry", list)
	}
}

// --- Persistence failure tolerance ---

func TestPersistenceFailuresAreSwallowed(t *testing.T) {
	port := newMemPort()
	port.failAll = true
	store := newTestStore(port)
	ctx := context.Background()

	saved, err := store.Save(ctx, owner, "A", "Subject A", "Body A")
	if err != nil {
		t.Fatalf("Save() error = %v, want nil (persistence failure is non-fatal)", err)
	}

	// In-memory state remains authoritative for the session.
	list := store.List(ctx, owner)
	if len(list) != 1 || list[0].ID != saved.ID {
		t.Errorf("list = %+v, want the saved template", list)
	}
	if active := store.Active(ctx, owner); active.Subject != "Subject A" {
		t.Errorf("Active() = %+v", active)
	}
}

func TestStoreIsolatesOwners(t *testing.T) {
	store := newTestStore(newMemPort())
	ctx := context.Background()

	if _, err := store.Save(ctx, "user_a", "A", "Subject A", "Body"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := len(store.List(ctx, "user_b")); got != 0 {
		t.Errorf("user_b sees %d templates, want 0", got)
	}
}

func assertCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error is not an AppError: %v", err)
	}
	if appErr.Code != code {
		t.Errorf("error code = %q, want %q", appErr.Code, code)
	}
}
