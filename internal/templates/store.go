// Package templates manages the bounded collection of named email templates
// and the active subject/body pair consumed by the editor and the dispatch
// sequencer.
//
// Persistence goes through the narrow Port interface so the backing store
// (file, Postgres) is swappable without touching dispatch or render logic.
// Persistence failures are logged and swallowed: the in-memory state stays
// authoritative for the current session.
package templates

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mailmerge/internal/types"
)

// Capacity is the maximum number of named templates kept per owner.
// Insertion beyond capacity evicts the oldest entry.
const Capacity = 10

// legacyDefaultName is the name given to the template synthesized from a
// legacy last-used record when the named list is empty.
const legacyDefaultName = "Default Template"

// Port is the persistence boundary for template state. Implementations
// store the named list and the separate last-used subject/body record.
// Load methods return (nil, nil) when no record exists.
type Port interface {
	LoadList(ctx context.Context, ownerID string) ([]types.Template, error)
	SaveList(ctx context.Context, ownerID string, list []types.Template) error
	LoadLastUsed(ctx context.Context, ownerID string) (*types.ActiveTemplate, error)
	SaveLastUsed(ctx context.Context, ownerID string, t types.ActiveTemplate) error
}

// ownerState is the in-memory template state for one owner.
type ownerState struct {
	list   []types.Template
	active *types.ActiveTemplate
	loaded bool
}

// Store is the template store. It caches state in memory per owner and
// writes through to the Port.
type Store struct {
	port   Port
	clock  types.Clock
	logger *slog.Logger

	mu     sync.Mutex
	owners map[string]*ownerState
}

// StoreConfig holds the dependencies for creating a Store.
type StoreConfig struct {
	Port   Port
	Clock  types.Clock
	Logger *slog.Logger
}

// NewStore creates a template Store backed by the given Port.
func NewStore(cfg StoreConfig) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		port:   cfg.Port,
		clock:  clock,
		logger: logger,
		owners: make(map[string]*ownerState),
	}
}

// state returns the loaded in-memory state for an owner, reading from the
// Port on first access. A missing or failing Port read yields empty state;
// if the list is empty but a legacy last-used record exists, a single
// "Default Template" is synthesized from it and persisted as the new list.
//
// Callers must hold s.mu.
func (s *Store) state(ctx context.Context, ownerID string) *ownerState {
	st, ok := s.owners[ownerID]
	if !ok {
		st = &ownerState{}
		s.owners[ownerID] = st
	}
	if st.loaded {
		return st
	}
	st.loaded = true

	list, err := s.port.LoadList(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to load template list", "owner_id", ownerID, "error", err)
	}
	last, err := s.port.LoadLastUsed(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to load last-used template", "owner_id", ownerID, "error", err)
	}

	st.list = list
	st.active = last

	// One-time migration: synthesize a named entry from a legacy
	// last-used record when the list itself is empty.
	if len(st.list) == 0 && last != nil && !last.IsEmpty() {
		migrated := types.Template{
			ID:        newTemplateID(),
			Name:      legacyDefaultName,
			Subject:   last.Subject,
			Body:      last.Body,
			CreatedAt: s.clock.Now(),
		}
		st.list = []types.Template{migrated}
		if err := s.port.SaveList(ctx, ownerID, st.list); err != nil {
			s.logger.Error("failed to persist migrated template list", "owner_id", ownerID, "error", err)
		}
	}

	return st
}

// List returns the owner's named templates, newest first.
func (s *Store) List(ctx context.Context, ownerID string) []types.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, ownerID)
	out := make([]types.Template, len(st.list))
	copy(out, st.list)
	return out
}

// Active returns the owner's active subject/body pair. The zero value is
// returned when nothing has been saved or selected yet.
func (s *Store) Active(ctx context.Context, ownerID string) types.ActiveTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, ownerID)
	if st.active == nil {
		return types.ActiveTemplate{}
	}
	return *st.active
}

// SetActive replaces the owner's active template (editor changes) and
// writes through the last-used record.
func (s *Store) SetActive(ctx context.Context, ownerID string, t types.ActiveTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, ownerID)
	st.active = &t
	if err := s.port.SaveLastUsed(ctx, ownerID, t); err != nil {
		s.logger.Error("failed to persist last-used template", "owner_id", ownerID, "error", err)
	}
}

// Save validates and stores a new named template, makes it active, and
// returns it.
//
// Rejections (no-op, surfaced to the user):
//   - both subject and body blank after trimming
//   - subject identical to the persisted last-used subject (exact string
//     comparison against that single slot only, not the full list)
//
// On success the new template is prepended, the list truncated to Capacity
// (oldest dropped), and both the list and the last-used record persisted.
func (s *Store) Save(ctx context.Context, ownerID, name, subject, body string) (*types.Template, error) {
	if strings.TrimSpace(subject) == "" && strings.TrimSpace(body) == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationEmptyTemplate,
			"template needs a subject or a body",
			nil,
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, ownerID)

	if st.active != nil && st.active.Subject == subject {
		return nil, types.NewAppError(
			types.ErrCodeValidationDuplicateSubject,
			"a template with this subject was already saved",
			nil,
		)
	}

	if strings.TrimSpace(name) == "" {
		name = subject
	}

	tmpl := types.Template{
		ID:        newTemplateID(),
		Name:      name,
		Subject:   subject,
		Body:      body,
		CreatedAt: s.clock.Now(),
	}

	st.list = append([]types.Template{tmpl}, st.list...)
	if len(st.list) > Capacity {
		st.list = st.list[:Capacity]
	}
	active := types.ActiveTemplate{Subject: subject, Body: body}
	st.active = &active

	if err := s.port.SaveList(ctx, ownerID, st.list); err != nil {
		s.logger.Error("failed to persist template list", "owner_id", ownerID, "error", err)
	}
	if err := s.port.SaveLastUsed(ctx, ownerID, active); err != nil {
		s.logger.Error("failed to persist last-used template", "owner_id", ownerID, "error", err)
	}

	return &tmpl, nil
}

// Select looks up a template by ID and makes it active, updating the
// last-used record. An unknown ID returns not_found_template and leaves the
// active template and the list unchanged.
func (s *Store) Select(ctx context.Context, ownerID, id string) (*types.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(ctx, ownerID)

	for _, tmpl := range st.list {
		if tmpl.ID != id {
			continue
		}
		active := types.ActiveTemplate{Subject: tmpl.Subject, Body: tmpl.Body}
		st.active = &active
		if err := s.port.SaveLastUsed(ctx, ownerID, active); err != nil {
			s.logger.Error("failed to persist last-used template", "owner_id", ownerID, "error", err)
		}
		return &tmpl, nil
	}

	return nil, types.NewAppError(
		types.ErrCodeNotFoundTemplate,
		"template not found",
		nil,
	)
}

func newTemplateID() string {
	return "tmpl_" + uuid.New().String()
}
