package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/NabiBot/internal/models"
)

var ErrQuotaExceeded = errors.New("quota exceeded")

type QuotaKind string

const (
	QuotaTrial QuotaKind = "trial"
	QuotaDaily QuotaKind = "daily"
)

// QuotaError reports which limit rejected the request. It matches ErrQuotaExceeded.
type QuotaError struct {
	Kind QuotaKind
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded", e.Kind)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

type CreationStore interface {
	Log(ctx context.Context, userID int64, intent models.IntentType) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Creation, error)
}

// LedgerService enforces free-trial and subscriber daily caps and records usage.
type LedgerService struct {
	users     UserStore
	creations CreationStore
	dailyCap  int
	loc       *time.Location
}

func NewLedgerService(users UserStore, creations CreationStore, dailyCap int, loc *time.Location) *LedgerService {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerService{
		users:     users,
		creations: creations,
		dailyCap:  dailyCap,
		loc:       loc,
	}
}

// Today is the ledger's calendar day for now.
func (s *LedgerService) Today(now time.Time) string {
	return now.In(s.loc).Format("2006-01-02")
}

// CheckQuota must run before any paid generation. For subscribers the daily
// counter is rolled over first when the last counted use was on another day.
func (s *LedgerService) CheckQuota(ctx context.Context, user *models.User, now time.Time) error {
	if user.IsSubscribed(now) {
		if user.LastUse != s.Today(now) && user.DailyUses != 0 {
			if err := s.users.ResetDailyUses(ctx, user.ID); err != nil {
				return err
			}
			user.DailyUses = 0
		}
		if user.DailyUses >= s.dailyCap {
			return &QuotaError{Kind: QuotaDaily}
		}
		return nil
	}
	if user.FreeUses <= 0 {
		return &QuotaError{Kind: QuotaTrial}
	}
	return nil
}

// RecordUsage counts one fulfilled generation against the user's current plan.
func (s *LedgerService) RecordUsage(ctx context.Context, user *models.User, now time.Time) error {
	today := s.Today(now)
	if user.IsSubscribed(now) {
		if err := s.users.IncrementDailyUses(ctx, user.ID, today); err != nil {
			return err
		}
		if user.LastUse != today {
			user.DailyUses = 0
		}
		user.DailyUses++
	} else {
		if err := s.users.DecrementFreeUses(ctx, user.ID, today); err != nil {
			return err
		}
		if user.FreeUses > 0 {
			user.FreeUses--
		}
	}
	user.LastUse = today
	return nil
}

func (s *LedgerService) LogCreation(ctx context.Context, user *models.User, intent models.IntentType) error {
	return s.creations.Log(ctx, user.ID, intent)
}

func (s *LedgerService) Creations(ctx context.Context, user *models.User, limit int) ([]models.Creation, error) {
	return s.creations.ListByUser(ctx, user.ID, limit)
}
