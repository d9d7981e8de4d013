package conversation

import (
	"context"

	"github.com/digkill/NabiBot/internal/models"
)

// Store keeps the short-lived per-phone context: the most recent turns and the
// last photo the user sent. Nothing in it is durable.
type Store interface {
	// History returns the retained turns, oldest first.
	History(ctx context.Context, phone string) ([]models.Turn, error)
	// Append adds turns and drops the oldest beyond the configured cap.
	Append(ctx context.Context, phone string, turns ...models.Turn) error
	// LastImage returns the last remembered photo URL, or "" if none.
	LastImage(ctx context.Context, phone string) (string, error)
	SetLastImage(ctx context.Context, phone, url string) error
}
