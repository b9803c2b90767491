package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mto-maintenance/apiserver/types"
)

// SessionRepository handles persistence for user sessions. Sessions live in
// their own table keyed by token hash, so every operation below is a
// single statement and concurrent logins for one user cannot overwrite
// each other.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	const query = `
		INSERT INTO user_sessions (
			token_hash, user_id, user_agent, ip, device_type, browser,
			created_at, last_activity, expires_at, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		session.TokenHash,
		session.UserID,
		session.Device.UserAgent,
		session.Device.IP,
		session.Device.DeviceType,
		session.Device.Browser,
		session.CreatedAt,
		session.LastActivity,
		session.ExpiresAt,
		session.IsActive,
	).Scan(&session.ID); err != nil {
		return types.Session{}, translateError(err)
	}
	return session, nil
}

// TouchValid bumps last activity on the session with tokenHash and returns
// its owner, in one statement. Only an active, unexpired session of an
// active user matches; anything else is ErrNotFound.
func (r *SessionRepository) TouchValid(ctx context.Context, tokenHash string, now time.Time) (types.User, int64, error) {
	const query = `
		UPDATE user_sessions s
		SET last_activity = $2
		FROM users u
		WHERE s.token_hash = $1
		  AND s.is_active
		  AND s.expires_at > $2
		  AND u.id = s.user_id
		  AND u.is_active
		RETURNING s.id, u.id, u.username, u.email, u.password_hash, u.first_name,
		          u.last_name, u.rank, u.service_number, u.role, u.unit, u.location,
		          u.phone_number, u.is_active, u.last_login, u.created_at, u.updated_at`

	var sessionID int64
	var user types.User
	var lastLogin sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(
		&sessionID,
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Rank,
		&user.ServiceNumber,
		&user.Role,
		&user.Unit,
		&user.Location,
		&user.PhoneNumber,
		&user.IsActive,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, 0, ErrNotFound
		}
		return types.User{}, 0, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, sessionID, nil
}

// Deactivate marks the session with tokenHash inactive. It reports false if
// no such session exists.
func (r *SessionRepository) Deactivate(ctx context.Context, tokenHash string) (bool, error) {
	const query = `UPDATE user_sessions SET is_active = FALSE WHERE token_hash = $1`
	return r.execFound(ctx, query, tokenHash)
}

// DeactivateByID marks one of userID's active sessions inactive.
func (r *SessionRepository) DeactivateByID(ctx context.Context, userID int, sessionID int64) (bool, error) {
	const query = `UPDATE user_sessions SET is_active = FALSE WHERE id = $1 AND user_id = $2 AND is_active`
	return r.execFound(ctx, query, sessionID, userID)
}

// DeactivateAll marks every session of userID inactive and returns how many
// were still active.
func (r *SessionRepository) DeactivateAll(ctx context.Context, userID int) (int64, error) {
	const query = `UPDATE user_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteStale removes userID's sessions that are inactive or expired at now.
func (r *SessionRepository) DeleteStale(ctx context.Context, userID int, now time.Time) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE user_id = $1 AND (NOT is_active OR expires_at <= $2)`
	result, err := r.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListValid returns userID's sessions that are active and unexpired at now,
// newest first.
func (r *SessionRepository) ListValid(ctx context.Context, userID int, now time.Time) ([]types.Session, error) {
	const query = `
		SELECT id, token_hash, user_id, user_agent, ip, device_type, browser,
		       created_at, last_activity, expires_at, is_active
		FROM user_sessions
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var session types.Session
		if err := rows.Scan(
			&session.ID,
			&session.TokenHash,
			&session.UserID,
			&session.Device.UserAgent,
			&session.Device.IP,
			&session.Device.DeviceType,
			&session.Device.Browser,
			&session.CreatedAt,
			&session.LastActivity,
			&session.ExpiresAt,
			&session.IsActive,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) execFound(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
