// Package campaign owns the per-user dashboard state (row set, per-row send
// statuses, selection) and the dispatch sequencer that drives batch sends.
package campaign

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"mailmerge/internal/types"
)

// Campaign is the mutable dashboard state for one user. The row set is
// replaced wholesale (upload or clear), never edited in place, and the
// status array is derived from the row count on every replacement so that
// len(statuses) == rows.Len() always holds.
type Campaign struct {
	ID string

	mu          sync.Mutex
	rows        *types.RowSet
	statuses    []types.SendStatus
	selection   map[int]bool
	lastSummary *types.DispatchSummary

	// inFlight enforces the one-dispatch-at-a-time contract. Weight 1;
	// acquired with TryAcquire so a second trigger fails immediately
	// instead of queueing.
	inFlight *semaphore.Weighted
}

// NewCampaign returns an empty campaign with no rows loaded.
func NewCampaign() *Campaign {
	return &Campaign{
		ID:        "camp_" + uuid.New().String(),
		rows:      &types.RowSet{},
		selection: make(map[int]bool),
		inFlight:  semaphore.NewWeighted(1),
	}
}

// ReplaceRows swaps in a new row set and rebuilds derived state: every
// status resets to pending and the selection is cleared.
func (c *Campaign) ReplaceRows(rows *types.RowSet) {
	if rows == nil {
		rows = &types.RowSet{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = rows
	c.statuses = make([]types.SendStatus, rows.Len())
	for i := range c.statuses {
		c.statuses[i] = types.SendStatus{State: types.StatusPending}
	}
	c.selection = make(map[int]bool)
	c.lastSummary = nil
}

// Clear removes the loaded row set and all derived state.
func (c *Campaign) Clear() {
	c.ReplaceRows(nil)
}

// Rows returns the current row set. Rows are immutable once loaded; callers
// must not modify the returned set.
func (c *Campaign) Rows() *types.RowSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// RowCount returns the number of loaded rows.
func (c *Campaign) RowCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows.Len()
}

// Row returns the row at index i, or nil if out of range.
func (c *Campaign) Row(i int) types.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows.Row(i)
}

// Statuses returns a copy of the per-row status array.
func (c *Campaign) Statuses() []types.SendStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.SendStatus, len(c.statuses))
	copy(out, c.statuses)
	return out
}

// Snapshot is a point-in-time view of the campaign taken under a single
// lock hold: rows, statuses, and selection are guaranteed mutually
// consistent, with len(Statuses) == Rows.Len().
type Snapshot struct {
	Rows      *types.RowSet
	Statuses  []types.SendStatus
	Selection map[int]bool
}

// Snapshot returns a consistent view of the campaign state. Readers that
// combine rows with statuses or selection must use this instead of the
// individual accessors, which each take the lock separately and can observe
// a replacement in between.
func (c *Campaign) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	statuses := make([]types.SendStatus, len(c.statuses))
	copy(statuses, c.statuses)
	selection := make(map[int]bool, len(c.selection))
	for i := range c.selection {
		selection[i] = true
	}
	return Snapshot{
		Rows:      c.rows,
		Statuses:  statuses,
		Selection: selection,
	}
}

// setStatus records a terminal status for the row at index i. Out-of-range
// indices are ignored; the status array only tracks loaded rows.
func (c *Campaign) setStatus(i int, s types.SendStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.statuses) {
		return
	}
	c.statuses[i] = s
}

// Tally counts the rows currently in each status state.
func (c *Campaign) Tally() (pending, sent, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.statuses {
		switch s.State {
		case types.StatusSent:
			sent++
		case types.StatusFailed:
			failed++
		default:
			pending++
		}
	}
	return pending, sent, failed
}

// ToggleSelection flips the selection state of one row index. Out-of-range
// indices return a validation error.
func (c *Campaign) ToggleSelection(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= c.rows.Len() {
		return types.NewAppError(
			types.ErrCodeValidationInvalidIndex,
			"row index out of range",
			nil,
		)
	}
	if c.selection[i] {
		delete(c.selection, i)
	} else {
		c.selection[i] = true
	}
	return nil
}

// ToggleSelectAll selects every row, or clears the selection when every row
// is already selected (mirroring a header checkbox).
func (c *Campaign) ToggleSelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.selection) == c.rows.Len() && c.rows.Len() > 0 {
		c.selection = make(map[int]bool)
		return
	}
	for i := 0; i < c.rows.Len(); i++ {
		c.selection[i] = true
	}
}

// DeselectAll clears the selection set.
func (c *Campaign) DeselectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = make(map[int]bool)
}

// SelectedIndices returns the selection set in ascending index order.
func (c *Campaign) SelectedIndices() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.selection))
	for i := range c.selection {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// IsSelected reports whether the row at index i is in the selection set.
func (c *Campaign) IsSelected(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection[i]
}

// Dispatching reports whether a dispatch is currently in flight.
func (c *Campaign) Dispatching() bool {
	if c.inFlight.TryAcquire(1) {
		c.inFlight.Release(1)
		return false
	}
	return true
}

// LastSummary returns the tally of the most recently completed dispatch, or
// nil if none has completed since the row set was loaded.
func (c *Campaign) LastSummary() *types.DispatchSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSummary == nil {
		return nil
	}
	s := *c.lastSummary
	return &s
}

func (c *Campaign) recordSummary(s types.DispatchSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSummary = &s
}

// Manager hands out the campaign instance for each user, creating one on
// first access. Campaign state lives only in memory; a process restart
// discards it, matching the dashboard's refresh semantics.
type Manager struct {
	mu        sync.Mutex
	campaigns map[string]*Campaign
}

// NewManager returns an empty campaign manager.
func NewManager() *Manager {
	return &Manager{campaigns: make(map[string]*Campaign)}
}

// ForUser returns the campaign owned by the given user, creating it if
// needed.
func (m *Manager) ForUser(userID string) *Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[userID]
	if !ok {
		c = NewCampaign()
		m.campaigns[userID] = c
	}
	return c
}
