package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"mailmerge/internal/templates"
	"mailmerge/internal/types"
)

// TemplateRepository persists per-user template lists and the last-used
// subject/body pair. It implements templates.Port so the template store can
// run against Postgres instead of the file backend.
//
// The template list is stored newest-first; position preserves that order
// across loads.
type TemplateRepository struct {
	db DBTX
}

var _ templates.Port = (*TemplateRepository)(nil)

// NewTemplateRepository creates a new TemplateRepository backed by the given
// database connection (pool or transaction).
func NewTemplateRepository(db DBTX) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// LoadList returns the user's saved templates in stored order, or (nil, nil)
// when the user has none.
func (r *TemplateRepository) LoadList(ctx context.Context, ownerID string) ([]types.Template, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, subject, body, created_at
		 FROM templates
		 WHERE owner_id = $1
		 ORDER BY position ASC`,
		ownerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load template list", err)
	}
	defer rows.Close()

	var list []types.Template
	for rows.Next() {
		var t types.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan template row", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate template rows", err)
	}
	return list, nil
}

// SaveList replaces the user's template list. The list is small by
// construction, so a delete-and-reinsert inside one statement batch keeps
// positions consistent without diffing.
func (r *TemplateRepository) SaveList(ctx context.Context, ownerID string, list []types.Template) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM templates WHERE owner_id = $1`, ownerID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear template list", err)
	}
	for i, t := range list {
		_, err := r.db.Exec(ctx,
			`INSERT INTO templates (id, owner_id, position, name, subject, body, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID,
			ownerID,
			i,
			t.Name,
			t.Subject,
			t.Body,
			t.CreatedAt,
		)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to insert template", err)
		}
	}
	return nil
}

// LoadLastUsed returns the user's last-used subject/body pair, or (nil, nil)
// when none has been recorded.
func (r *TemplateRepository) LoadLastUsed(ctx context.Context, ownerID string) (*types.ActiveTemplate, error) {
	var t types.ActiveTemplate
	err := r.db.QueryRow(ctx,
		`SELECT subject, body FROM last_used_templates WHERE owner_id = $1`,
		ownerID,
	).Scan(&t.Subject, &t.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load last-used template", err)
	}
	return &t, nil
}

// SaveLastUsed upserts the user's last-used subject/body pair.
func (r *TemplateRepository) SaveLastUsed(ctx context.Context, ownerID string, t types.ActiveTemplate) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO last_used_templates (owner_id, subject, body, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (owner_id)
		 DO UPDATE SET subject = EXCLUDED.subject, body = EXCLUDED.body, updated_at = NOW()`,
		ownerID,
		t.Subject,
		t.Body,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save last-used template", err)
	}
	return nil
}
