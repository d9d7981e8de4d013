package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/NabiBot/internal/models"
)

type CreationRepository struct {
	db *sql.DB
}

func NewCreationRepository(db *sql.DB) *CreationRepository {
	return &CreationRepository{db: db}
}

func (r *CreationRepository) Log(ctx context.Context, userID int64, intent models.IntentType) error {
	const query = `INSERT INTO creations (user_id, type) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, string(intent)); err != nil {
		return fmt.Errorf("insert creation: %w", err)
	}
	return nil
}

func (r *CreationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Creation, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, user_id, type, created_at FROM creations
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list creations: %w", err)
	}
	defer rows.Close()

	var creations []models.Creation
	for rows.Next() {
		var c models.Creation
		var intent string
		if err := rows.Scan(&c.ID, &c.UserID, &intent, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan creation: %w", err)
		}
		c.Type = models.IntentType(intent)
		creations = append(creations, c)
	}
	return creations, rows.Err()
}
