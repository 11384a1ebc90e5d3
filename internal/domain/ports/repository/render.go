package repository

import (
	"context"
	"time"

	"render-studio/internal/domain/model"
)

type RenderRepository interface {
	// Upsert inserts the render or merges it into the existing row keyed by
	// (user_id, prediction_id). Safe to repeat; a terminal status already in
	// storage is never downgraded to a non-terminal one.
	Upsert(ctx context.Context, tx Tx, r *model.Render) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Render, error)
	FindByPredictionID(ctx context.Context, tx Tx, userID, predictionID string) (*model.Render, error)
	// ListByUser returns the user's most recent renders ordered by creation
	// time descending.
	ListByUser(ctx context.Context, tx Tx, userID string, limit, offset int) ([]*model.Render, error)
	// ListStaleActive returns non-terminal renders not updated since cutoff,
	// across all users, for the self-healing sweep.
	ListStaleActive(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Render, error)
	// Delete removes the render only when it belongs to userID.
	Delete(ctx context.Context, tx Tx, userID, id string) error
}
