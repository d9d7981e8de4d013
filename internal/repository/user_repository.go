package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/NabiBot/internal/models"
)

const dateLayout = "2006-01-02"

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, phone, COALESCE(email, ''), subscription_start, subscription_end, free_uses, daily_uses, last_use, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var start, end, lastUse sql.NullTime
	if err := row.Scan(&u.ID, &u.Phone, &u.Email, &start, &end, &u.FreeUses, &u.DailyUses, &lastUse, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if start.Valid {
		t := start.Time
		u.SubscriptionStart = &t
	}
	if end.Valid {
		t := end.Time
		u.SubscriptionEnd = &t
	}
	if lastUse.Valid {
		u.LastUse = lastUse.Time.Format(dateLayout)
	}
	return &u, nil
}

func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = ?`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// Ensure inserts the phone if it is unseen and returns the stored row.
// INSERT IGNORE on the unique phone key keeps concurrent first messages from
// creating duplicates.
func (r *UserRepository) Ensure(ctx context.Context, phone string, freeUses int) (*models.User, error) {
	const insert = `INSERT IGNORE INTO users (phone, free_uses, daily_uses) VALUES (?, ?, 0)`
	if _, err := r.db.ExecContext(ctx, insert, phone, freeUses); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	user, err := r.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s missing after insert", phone)
	}
	return user, nil
}

func (r *UserRepository) UpdateEmail(ctx context.Context, userID int64, email string) error {
	const query = `UPDATE users SET email = NULLIF(?, ''), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, email, userID); err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	return nil
}

func (r *UserRepository) SetSubscription(ctx context.Context, userID int64, start, end *time.Time) error {
	const query = `UPDATE users SET subscription_start = ?, subscription_end = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, nullTime(start), nullTime(end), userID); err != nil {
		return fmt.Errorf("set subscription: %w", err)
	}
	return nil
}

func (r *UserRepository) ResetDailyUses(ctx context.Context, userID int64) error {
	const query = `UPDATE users SET daily_uses = 0, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("reset daily uses: %w", err)
	}
	return nil
}

// IncrementDailyUses counts one subscriber usage on day, restarting the counter
// when the stored last_use belongs to another day.
func (r *UserRepository) IncrementDailyUses(ctx context.Context, userID int64, day string) error {
	const query = `
UPDATE users SET daily_uses = IF(last_use = ?, daily_uses + 1, 1), last_use = ?, updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, day, day, userID); err != nil {
		return fmt.Errorf("increment daily uses: %w", err)
	}
	return nil
}

func (r *UserRepository) DecrementFreeUses(ctx context.Context, userID int64, day string) error {
	const query = `UPDATE users SET free_uses = GREATEST(free_uses - 1, 0), last_use = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, day, userID); err != nil {
		return fmt.Errorf("decrement free uses: %w", err)
	}
	return nil
}

func (r *UserRepository) ListPhones(ctx context.Context) ([]string, error) {
	const query = `SELECT phone FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list phones: %w", err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, fmt.Errorf("scan phone: %w", err)
		}
		phones = append(phones, phone)
	}
	return phones, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
