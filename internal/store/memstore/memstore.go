// Package memstore keeps users and sessions in process memory. It backs
// STORE_DRIVER=memory for local runs and the service and handler tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mto-maintenance/apiserver/internal/store"
	"github.com/mto-maintenance/apiserver/types"
)

// Store holds both repositories' data behind one lock so that session
// lookups can see the owning user atomically.
type Store struct {
	mu            sync.Mutex
	users         map[int]types.User
	sessions      map[string]types.Session
	nextUserID    int
	nextSessionID int64
}

func New() *Store {
	return &Store{
		users:    make(map[int]types.User),
		sessions: make(map[string]types.Session),
	}
}

// Users returns the user repository view of s.
func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

// Sessions returns the session repository view of s.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{s: s}
}

type UserRepository struct {
	s *Store
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByLogin(ctx context.Context, identifier string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := r.s.sortedUserIDs()
	for _, id := range ids {
		if user := r.s.users[id]; user.Username == identifier {
			return user, nil
		}
	}
	email := strings.ToLower(identifier)
	for _, id := range ids {
		if user := r.s.users[id]; user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	ids := r.s.sortedUserIDs()
	total := len(ids)
	users := make([]types.User, 0, limit)
	for i := offset; i < total && len(users) < limit; i++ {
		users = append(users, r.s.users[ids[i]])
	}
	return users, total, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	if r.s.conflicts(user) {
		return types.User{}, store.ErrConflict
	}
	r.s.nextUserID++
	now := time.Now()
	user.ID = r.s.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.Email = strings.ToLower(user.Email)
	if r.s.conflicts(user) {
		return types.User{}, store.ErrConflict
	}
	user.IsActive = current.IsActive
	user.LastLogin = current.LastLogin
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now()
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastLogin = &at
	r.s.users[id] = user
	return nil
}

func (r *UserRepository) SetActive(ctx context.Context, id int, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.IsActive = active
	user.UpdatedAt = time.Now()
	r.s.users[id] = user
	return nil
}

type SessionRepository struct {
	s *Store
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.sessions[session.TokenHash]; exists {
		return types.Session{}, store.ErrConflict
	}
	r.s.nextSessionID++
	session.ID = r.s.nextSessionID
	r.s.sessions[session.TokenHash] = session
	return session, nil
}

func (r *SessionRepository) TouchValid(ctx context.Context, tokenHash string, now time.Time) (types.User, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[tokenHash]
	if !ok || !session.ValidAt(now) {
		return types.User{}, 0, store.ErrNotFound
	}
	user, ok := r.s.users[session.UserID]
	if !ok || !user.IsActive {
		return types.User{}, 0, store.ErrNotFound
	}
	session.LastActivity = now
	r.s.sessions[tokenHash] = session
	return user, session.ID, nil
}

func (r *SessionRepository) Deactivate(ctx context.Context, tokenHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[tokenHash]
	if !ok {
		return false, nil
	}
	session.IsActive = false
	r.s.sessions[tokenHash] = session
	return true, nil
}

func (r *SessionRepository) DeactivateByID(ctx context.Context, userID int, sessionID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for hash, session := range r.s.sessions {
		if session.ID == sessionID && session.UserID == userID && session.IsActive {
			session.IsActive = false
			r.s.sessions[hash] = session
			return true, nil
		}
	}
	return false, nil
}

func (r *SessionRepository) DeactivateAll(ctx context.Context, userID int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for hash, session := range r.s.sessions {
		if session.UserID == userID && session.IsActive {
			session.IsActive = false
			r.s.sessions[hash] = session
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) DeleteStale(ctx context.Context, userID int, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for hash, session := range r.s.sessions {
		if session.UserID == userID && !session.ValidAt(now) {
			delete(r.s.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) ListValid(ctx context.Context, userID int, now time.Time) ([]types.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var sessions []types.Session
	for _, session := range r.s.sessions {
		if session.UserID == userID && session.ValidAt(now) {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID > sessions[j].ID
	})
	return sessions, nil
}

// Count returns how many session records, valid or not, userID has.
func (r *SessionRepository) Count(userID int) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, session := range r.s.sessions {
		if session.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Store) conflicts(user types.User) bool {
	for id, existing := range s.users {
		if id == user.ID {
			continue
		}
		if existing.Username == user.Username ||
			existing.Email == user.Email ||
			existing.ServiceNumber == user.ServiceNumber {
			return true
		}
	}
	return false
}

func (s *Store) sortedUserIDs() []int {
	ids := make([]int, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
