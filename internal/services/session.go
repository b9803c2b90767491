package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mto-maintenance/apiserver/internal/rbac"
	"github.com/mto-maintenance/apiserver/internal/store"
	"github.com/mto-maintenance/apiserver/types"
	"go.uber.org/zap"
)

// DefaultSessionTTL is the lifetime of a session from creation.
const DefaultSessionTTL = 24 * time.Hour

// tokenBytes is the amount of entropy in a session token.
const tokenBytes = 32

// SessionRepository defines persistence operations for sessions. Every
// method is a single atomic statement against the store.
type SessionRepository interface {
	Create(ctx context.Context, session types.Session) (types.Session, error)
	// TouchValid bumps last activity on the session with tokenHash if it is
	// active, unexpired at now and owned by an active user, and returns that
	// user. store.ErrNotFound means no such session.
	TouchValid(ctx context.Context, tokenHash string, now time.Time) (types.User, int64, error)
	Deactivate(ctx context.Context, tokenHash string) (bool, error)
	DeactivateByID(ctx context.Context, userID int, sessionID int64) (bool, error)
	DeactivateAll(ctx context.Context, userID int) (int64, error)
	DeleteStale(ctx context.Context, userID int, now time.Time) (int64, error)
	ListValid(ctx context.Context, userID int, now time.Time) ([]types.Session, error)
}

// SessionService is the only code that issues, checks, or revokes session
// tokens.
type SessionService struct {
	users    UserRepository
	sessions SessionRepository
	ttl      time.Duration
	logger   *zap.Logger
	events   *Events
	now      func() time.Time
}

func NewSessionService(users UserRepository, sessions SessionRepository, ttl time.Duration, logger *zap.Logger, events *Events) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
		events:   events,
		now:      time.Now,
	}
}

// CreateSession opens a new session for an active user. Stale sessions of
// that user are pruned first.
func (s *SessionService) CreateSession(ctx context.Context, userID int, device types.DeviceInfo) (types.SessionGrant, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.SessionGrant{}, ErrUserNotFound
		}
		return types.SessionGrant{}, err
	}
	if !user.IsActive {
		return types.SessionGrant{}, ErrUserNotFound
	}

	now := s.now()
	if _, err := s.cleanup(ctx, userID, now); err != nil {
		s.logger.Warn("session cleanup failed", zap.Int("user_id", userID), zap.Error(err))
	}

	token, err := generateToken()
	if err != nil {
		return types.SessionGrant{}, err
	}

	session, err := s.sessions.Create(ctx, types.Session{
		TokenHash:    hashToken(token),
		UserID:       userID,
		Device:       device,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
		IsActive:     true,
	})
	if err != nil {
		return types.SessionGrant{}, fmt.Errorf("create session: %w", err)
	}

	s.events.Emit(ctx, EventSessionCreated, userID, session.ID, now)

	principal := principalFor(user)
	principal.SessionID = session.ID
	return types.SessionGrant{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Principal: principal,
	}, nil
}

// ValidateSession resolves token to a principal and refreshes the session's
// last activity. An unknown, inactive or expired session yields
// ErrInvalidSession; any other error is a storage fault.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (types.Principal, error) {
	if token == "" {
		return types.Principal{}, ErrInvalidSession
	}

	user, sessionID, err := s.sessions.TouchValid(ctx, hashToken(token), s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Principal{}, ErrInvalidSession
		}
		return types.Principal{}, fmt.Errorf("validate session: %w", err)
	}

	principal := principalFor(user)
	principal.SessionID = sessionID
	return principal, nil
}

// InvalidateSession marks the session inactive. It reports false for an
// unknown token.
func (s *SessionService) InvalidateSession(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	found, err := s.sessions.Deactivate(ctx, hashToken(token))
	if err != nil {
		return false, err
	}
	return found, nil
}

// InvalidateAllSessions marks every session of userID inactive. It reports
// false if the user does not exist.
func (s *SessionService) InvalidateAllSessions(ctx context.Context, userID int) (bool, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	n, err := s.sessions.DeactivateAll(ctx, userID)
	if err != nil {
		return false, err
	}

	s.logger.Debug("sessions invalidated", zap.Int("user_id", userID), zap.Int64("count", n))
	s.events.Emit(ctx, EventSessionsInvalidated, userID, 0, s.now())
	return true, nil
}

// RevokeSession deactivates one of userID's own sessions by its public id.
func (s *SessionService) RevokeSession(ctx context.Context, userID int, sessionID int64) (bool, error) {
	found, err := s.sessions.DeactivateByID(ctx, userID, sessionID)
	if err != nil {
		return false, err
	}
	if found {
		s.events.Emit(ctx, EventSessionRevoked, userID, sessionID, s.now())
	}
	return found, nil
}

// CleanupExpiredSessions physically removes every inactive or expired
// session of userID and returns how many were removed.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context, userID int) (int64, error) {
	return s.cleanup(ctx, userID, s.now())
}

func (s *SessionService) cleanup(ctx context.Context, userID int, now time.Time) (int64, error) {
	n, err := s.sessions.DeleteStale(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("stale sessions removed", zap.Int("user_id", userID), zap.Int64("count", n))
	}
	return n, nil
}

// GetUserSessions lists the currently valid sessions of userID, newest
// first. Tokens are never included.
func (s *SessionService) GetUserSessions(ctx context.Context, userID int) ([]types.SessionSummary, error) {
	sessions, err := s.sessions.ListValid(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	summaries := make([]types.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary())
	}
	return summaries, nil
}

// NotifyInvalidated publishes the single-session logout event. It is split
// from InvalidateSession because only the caller knows the owning user.
func (s *SessionService) NotifyInvalidated(ctx context.Context, principal types.Principal) {
	s.events.Emit(ctx, EventSessionInvalidated, principal.ID, principal.SessionID, s.now())
}

func principalFor(user types.User) types.Principal {
	return types.Principal{
		PublicUser:  user.Public(),
		Permissions: rbac.For(user.Role),
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
