package types

import (
	"strings"
	"time"
)

// Row is one recipient record derived from an uploaded tabular file, keyed
// by column name. Cells missing from the source line are present with an
// empty-string value so lookups never distinguish absent from blank.
type Row map[string]string

// Get returns the cell value for the given column, or "" if absent.
func (r Row) Get(column string) string {
	if r == nil {
		return ""
	}
	return r[column]
}

// emailColumn is the column recipients' addresses are read from.
const emailColumn = "Email Address"

// EmailAddress returns the row's recipient address.
func (r Row) EmailAddress() string {
	return r.Get(emailColumn)
}

// WithEmailAddress returns a copy of the row with the recipient address
// replaced. Used by test sends, which never mutate the stored row.
func (r Row) WithEmailAddress(addr string) Row {
	out := make(Row, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[emailColumn] = addr
	return out
}

// RowSet is the ordered, immutable collection of rows loaded from one file.
// The only way to change the row set is to replace it wholesale.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of data rows.
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Row returns the row at index i, or nil if out of range.
func (rs *RowSet) Row(i int) Row {
	if rs == nil || i < 0 || i >= len(rs.Rows) {
		return nil
	}
	return rs.Rows[i]
}

// StatusState is the per-row delivery state of the most recent dispatch
// attempt touching that row.
type StatusState string

const (
	StatusPending StatusState = "pending"
	StatusSent    StatusState = "sent"
	StatusFailed  StatusState = "failed"
)

// SendStatus records a row's delivery outcome. Message is empty for pending
// and successful rows and carries the failure description for failed rows.
type SendStatus struct {
	State   StatusState `json:"state"`
	Message string      `json:"message,omitempty"`
}

// DispatchSummary is the end-of-batch tally returned by a dispatch run.
type DispatchSummary struct {
	SentCount   int `json:"sent_count"`
	FailedCount int `json:"failed_count"`
}

// Template is a named subject/body pair with placeholder tokens.
// Identity is ID; Name is a user-facing label with no uniqueness constraint.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveTemplate is the subject/body pair consumed by the renderer and the
// dispatch sequencer, independent of the named template list.
type ActiveTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// IsEmpty reports whether both subject and body are blank after trimming.
func (t ActiveTemplate) IsEmpty() bool {
	return strings.TrimSpace(t.Subject) == "" && strings.TrimSpace(t.Body) == ""
}

// IsSendReady reports whether the template has both a non-blank subject and
// a non-blank body, the precondition for starting a dispatch.
func (t ActiveTemplate) IsSendReady() bool {
	return strings.TrimSpace(t.Subject) != "" && strings.TrimSpace(t.Body) != ""
}

// User is an authenticated account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastLoginAt  time.Time `json:"last_login_at,omitzero"`
}

// Session is a server-side login session identified by an opaque ID carried
// in an HttpOnly cookie.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	IPAddress      string    `json:"-"`
	UserAgent      string    `json:"-"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SendInput is the provider-agnostic payload for one outbound email.
type SendInput struct {
	To      string
	Subject string
	Body    string
}
