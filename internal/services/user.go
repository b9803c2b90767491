package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mto-maintenance/apiserver/internal/store"
	"github.com/mto-maintenance/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByLogin(ctx context.Context, identifier string) (types.User, error)
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	UpdateLastLogin(ctx context.Context, id int, at time.Time) error
	SetActive(ctx context.Context, id int, active bool) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo       UserRepository
	bcryptCost int
	events     *Events
	now        func() time.Time
}

func NewUserService(repo UserRepository, bcryptCost int, events *Events) *UserService {
	return &UserService{
		repo:       repo,
		bcryptCost: bcryptCost,
		events:     events,
		now:        time.Now,
	}
}

// Register stores a new active user with password hashed. Uniqueness
// violations come back as ErrUserExists and leave existing records alone.
func (s *UserService) Register(ctx context.Context, user types.User, password string) (types.User, error) {
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return types.User{}, err
	}

	user.ID = 0
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.PasswordHash = hash
	user.IsActive = true
	user.LastLogin = nil

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, ErrUserExists
		}
		return types.User{}, err
	}

	s.events.Emit(ctx, EventUserRegistered, created.ID, 0, s.now())
	return created, nil
}

// Authenticate checks identifier (username or email) and password and
// records the login time.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (types.User, error) {
	user, err := s.repo.GetByLogin(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if !user.IsActive || !ComparePassword(user.PasswordHash, password) {
		return types.User{}, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return types.User{}, err
	}
	user.LastLogin = &now
	return user, nil
}

// ChangePassword verifies current and replaces it with next. The caller is
// expected to invalidate the user's sessions afterwards.
func (s *UserService) ChangePassword(ctx context.Context, id int, current, next string) error {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ComparePassword(user.PasswordHash, current) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next, s.bcryptCost)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if _, err := s.repo.Update(ctx, user); err != nil {
		return err
	}

	s.events.Emit(ctx, EventPasswordChanged, id, 0, s.now())
	return nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	return s.repo.List(ctx, offset, limit)
}

// SetActive flips the soft-deactivation flag.
func (s *UserService) SetActive(ctx context.Context, id int, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	eventType := EventUserDeactivated
	if active {
		eventType = EventUserActivated
	}
	s.events.Emit(ctx, eventType, id, 0, s.now())
	return nil
}
