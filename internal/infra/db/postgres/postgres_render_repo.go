package postgres

import (
	"context"
	"errors"
	"time"

	"render-studio/internal/domain"
	"render-studio/internal/domain/model"
	"render-studio/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.RenderRepository = (*renderRepo)(nil)

type renderRepo struct {
	pool *pgxpool.Pool
}

func NewRenderRepo(pool *pgxpool.Pool) *renderRepo {
	return &renderRepo{pool: pool}
}

const terminalSet = `('succeeded','failed','canceled','failed_timeout')`

const renderColumns = `id, user_id, prediction_id, render_type, prompt, source_image_url, image_url, error_text, status, created_at, updated_at`

// Upsert merges the render into storage keyed by (user_id, prediction_id).
// The status CASE guard keeps a stored terminal status from being downgraded
// by a stale write, while still letting a late image_url land. On conflict
// the stored row keeps its original id, which RETURNING writes back into rec
// so the caller never carries an id that matches no row.
func (r *renderRepo) Upsert(ctx context.Context, tx repository.Tx, rec *model.Render) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()

	const q = `
INSERT INTO renders (id, user_id, prediction_id, render_type, prompt, source_image_url, image_url, error_text, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id, prediction_id) DO UPDATE SET
  render_type = EXCLUDED.render_type,
  prompt = EXCLUDED.prompt,
  source_image_url = EXCLUDED.source_image_url,
  image_url = COALESCE(EXCLUDED.image_url, renders.image_url),
  error_text = EXCLUDED.error_text,
  status = CASE
    WHEN renders.status IN ` + terminalSet + ` AND EXCLUDED.status NOT IN ` + terminalSet + `
    THEN renders.status
    ELSE EXCLUDED.status
  END,
  updated_at = EXCLUDED.updated_at
RETURNING id;`

	row, err := pickRow(ctx, r.pool, tx, q,
		rec.ID, rec.UserID, rec.PredictionID, rec.RenderType, rec.Prompt,
		rec.SourceImageURL, rec.ImageURL, rec.ErrorText, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&rec.ID); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *renderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Render, error) {
	const q = `SELECT ` + renderColumns + ` FROM renders WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRender(row)
}

func (r *renderRepo) FindByPredictionID(ctx context.Context, tx repository.Tx, userID, predictionID string) (*model.Render, error) {
	const q = `SELECT ` + renderColumns + ` FROM renders WHERE user_id=$1 AND prediction_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, predictionID)
	if err != nil {
		return nil, err
	}
	return scanRender(row)
}

func (r *renderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit, offset int) ([]*model.Render, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + renderColumns + ` FROM renders WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3;`
	rows, err := pickRows(ctx, r.pool, tx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Render
	for rows.Next() {
		rec, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *renderRepo) ListStaleActive(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Render, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + renderColumns + ` FROM renders
WHERE status NOT IN ` + terminalSet + ` AND updated_at < $1
ORDER BY updated_at
LIMIT $2;`
	rows, err := pickRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Render
	for rows.Next() {
		rec, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete is scoped to the owning user; deleting someone else's render (or a
// missing one) reports ErrNotFound.
func (r *renderRepo) Delete(ctx context.Context, tx repository.Tx, userID, id string) error {
	const q = `DELETE FROM renders WHERE id=$1 AND user_id=$2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, userID)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRender(row scannable) (*model.Render, error) {
	rec := &model.Render{}
	var statusStr string
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.PredictionID, &rec.RenderType, &rec.Prompt,
		&rec.SourceImageURL, &rec.ImageURL, &rec.ErrorText, &statusStr,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rec.Status = model.RenderStatus(statusStr)
	return rec, nil
}
