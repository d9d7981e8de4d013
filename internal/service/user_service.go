package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/digkill/NabiBot/internal/models"
)

var ErrInvalidEmail = errors.New("invalid email address")

// UserStore is the persistence the ledger needs for the users relation.
type UserStore interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	Ensure(ctx context.Context, phone string, freeUses int) (*models.User, error)
	UpdateEmail(ctx context.Context, userID int64, email string) error
	SetSubscription(ctx context.Context, userID int64, start, end *time.Time) error
	ResetDailyUses(ctx context.Context, userID int64) error
	IncrementDailyUses(ctx context.Context, userID int64, day string) error
	DecrementFreeUses(ctx context.Context, userID int64, day string) error
	ListPhones(ctx context.Context) ([]string, error)
}

type UserService struct {
	users    UserStore
	freeUses int
}

func NewUserService(users UserStore, freeUses int) *UserService {
	return &UserService{users: users, freeUses: freeUses}
}

// GetOrCreate returns the user for phone, inserting a trial record on first contact.
func (s *UserService) GetOrCreate(ctx context.Context, phone string) (*models.User, error) {
	user, err := s.users.Ensure(ctx, phone, s.freeUses)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func (s *UserService) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.users.FindByPhone(ctx, phone)
}

// Register stores the email given with a "register <email>" command.
// Only the address syntax is checked; there is no confirmation step.
func (s *UserService) Register(ctx context.Context, user *models.User, email string) error {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	if err := s.users.UpdateEmail(ctx, user.ID, email); err != nil {
		return err
	}
	user.Email = email
	return nil
}

// SetSubscription overwrites the subscription window. Payment providers drive
// this through the admin API.
func (s *UserService) SetSubscription(ctx context.Context, user *models.User, start, end *time.Time) error {
	if start != nil && end != nil && !end.After(*start) {
		return fmt.Errorf("subscription end must be after start")
	}
	if err := s.users.SetSubscription(ctx, user.ID, start, end); err != nil {
		return err
	}
	user.SubscriptionStart = start
	user.SubscriptionEnd = end
	return nil
}

func (s *UserService) ListPhones(ctx context.Context) ([]string, error) {
	phones, err := s.users.ListPhones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list phones: %w", err)
	}
	return phones, nil
}
