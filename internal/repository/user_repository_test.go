package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/NabiBot/internal/models"
)

var userRowColumns = []string{"id", "phone", "email", "subscription_start", "subscription_end", "free_uses", "daily_uses", "last_use", "created_at", "updated_at"}

func setupMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestUserRepository_FindByPhone_NotFound(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE phone = ?")).
		WithArgs("972500000000").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	user, err := repo.FindByPhone(context.Background(), "972500000000")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserRepository_FindByPhone_ScansNullableColumns(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewUserRepository(db)

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	end := now.Add(30 * 24 * time.Hour)
	lastUse := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE phone = ?")).
		WithArgs("972500000001").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(7), "972500000001", "a@b.com", now, end, 0, 4, lastUse, now, now))

	user, err := repo.FindByPhone(context.Background(), "972500000001")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "a@b.com", user.Email)
	require.NotNil(t, user.SubscriptionEnd)
	assert.True(t, end.Equal(*user.SubscriptionEnd))
	assert.Equal(t, 4, user.DailyUses)
	assert.Equal(t, "2026-10-17", user.LastUse)
}

func TestUserRepository_Ensure_Idempotent(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	row := func() *sqlmock.Rows {
		return sqlmock.NewRows(userRowColumns).AddRow(int64(1), "972500000002", "", nil, nil, 3, 0, nil, now, now)
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO users (phone, free_uses, daily_uses)")).
		WithArgs("972500000002", 3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE phone = ?")).WithArgs("972500000002").WillReturnRows(row())

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO users (phone, free_uses, daily_uses)")).
		WithArgs("972500000002", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE phone = ?")).WithArgs("972500000002").WillReturnRows(row())

	first, err := repo.Ensure(context.Background(), "972500000002", 3)
	require.NoError(t, err)
	second, err := repo.Ensure(context.Background(), "972500000002", 3)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.FreeUses)
	assert.Equal(t, 0, second.DailyUses)
	assert.Nil(t, second.SubscriptionEnd)
	assert.Empty(t, second.LastUse)
}

func TestUserRepository_CounterUpdates(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("daily_uses = IF(last_use = ?, daily_uses + 1, 1), last_use = ?")).
		WithArgs("2026-10-18", "2026-10-18", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("free_uses = GREATEST(free_uses - 1, 0)")).
		WithArgs("2026-10-18", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET daily_uses = 0")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET email = NULLIF(?, '')")).
		WithArgs("a@b.com", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementDailyUses(ctx, 5, "2026-10-18"))
	require.NoError(t, repo.DecrementFreeUses(ctx, 5, "2026-10-18"))
	require.NoError(t, repo.ResetDailyUses(ctx, 5))
	require.NoError(t, repo.UpdateEmail(ctx, 5, "a@b.com"))
}

func TestCreationRepository_LogAndList(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewCreationRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO creations (user_id, type) VALUES (?, ?)")).
		WithArgs(int64(9), "song").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM creations")).
		WithArgs(int64(9), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "created_at"}).
			AddRow(int64(1), int64(9), "song", now))

	require.NoError(t, repo.Log(ctx, 9, models.IntentSong))

	creations, err := repo.ListByUser(ctx, 9, 0)
	require.NoError(t, err)
	require.Len(t, creations, 1)
	assert.Equal(t, models.IntentSong, creations[0].Type)
}
