package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mto-maintenance/apiserver/internal/store/memstore"
	"github.com/mto-maintenance/apiserver/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, data)
	return "msg", p.err
}

type fixture struct {
	store    *memstore.Store
	clock    *fakeClock
	users    *UserService
	sessions *SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	clock := newFakeClock()

	users := NewUserService(st.Users(), 4, nil)
	users.now = clock.Now
	sessions := NewSessionService(st.Users(), st.Sessions(), DefaultSessionTTL, nil, nil)
	sessions.now = clock.Now

	return &fixture{store: st, clock: clock, users: users, sessions: sessions}
}

func (f *fixture) register(t *testing.T, username, role string) types.User {
	t.Helper()
	user, err := f.users.Register(context.Background(), types.User{
		Username:      username,
		Email:         username + "@x.com",
		FirstName:     "First",
		LastName:      "Last",
		Rank:          "Major",
		ServiceNumber: "SN-" + username,
		Role:          role,
		Unit:          "12 Transport Bn",
		Location:      "Depot",
	}, "pw123456")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}
