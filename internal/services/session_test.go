package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mto-maintenance/apiserver/internal/rbac"
	"github.com/mto-maintenance/apiserver/types"
)

var testDevice = types.DeviceInfo{UserAgent: "test", IP: "127.0.0.1", DeviceType: DeviceDesktop, Browser: "Go"}

func TestCreateSessionIssuesOpaqueTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", types.RoleTransportOfficer)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		grant, err := f.sessions.CreateSession(ctx, user.ID, testDevice)
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		if len(grant.Token) != 2*tokenBytes {
			t.Fatalf("unexpected token length %d", len(grant.Token))
		}
		if seen[grant.Token] {
			t.Fatalf("duplicate token issued")
		}
		seen[grant.Token] = true

		if !grant.ExpiresAt.Equal(f.clock.Now().Add(DefaultSessionTTL)) {
			t.Fatalf("unexpected expiry %v", grant.ExpiresAt)
		}
		if grant.Principal.Username != "alice" || grant.Principal.Role != types.RoleTransportOfficer {
			t.Fatalf("unexpected principal: %+v", grant.Principal)
		}
	}
}

func TestCreateSessionRequiresActiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.sessions.CreateSession(ctx, 99, testDevice); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: expected ErrUserNotFound, got %v", err)
	}

	user := f.register(t, "bob", types.RoleTransportJCO)
	if err := f.users.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.sessions.CreateSession(ctx, user.ID, testDevice); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("inactive user: expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginThenValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", types.RoleMaintenanceJCO)

	user, err := f.users.Authenticate(ctx, "alice", "pw123456")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	grant, err := f.sessions.CreateSession(ctx, user.ID, testDevice)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	principal, err := f.sessions.ValidateSession(ctx, grant.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if principal.Username != "alice" {
		t.Fatalf("unexpected username %q", principal.Username)
	}
	if principal.SessionID != grant.Principal.SessionID {
		t.Fatalf("session id mismatch: %d vs %d", principal.SessionID, grant.Principal.SessionID)
	}
	if !principal.Permissions.Allows(rbac.ModuleMaintenance, rbac.ActionWrite) {
		t.Fatalf("expected maintenance:write for %s", types.RoleMaintenanceJCO)
	}
}

func TestValidateSessionExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", types.RoleTransportOfficer)
	grant, err := f.sessions.CreateSession(ctx, user.ID, testDevice)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	f.clock.Advance(DefaultSessionTTL - time.Nanosecond)
	if _, err := f.sessions.ValidateSession(ctx, grant.Token); err != nil {
		t.Fatalf("expected valid just before expiry, got %v", err)
	}

	f.clock.Advance(time.Nanosecond)
	if _, err := f.sessions.ValidateSession(ctx, grant.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalid at expiry, got %v", err)
	}

	f.clock.Advance(time.Hour)
	if _, err := f.sessions.ValidateSession(ctx, grant.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalid after expiry, got %v", err)
	}
}

func TestValidateSessionRefreshesActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", types.RoleTransportOfficer)
	grant, err := f.sessions.CreateSession(ctx, user.ID, testDevice)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	f.clock.Advance(time.Hour)
	if _, err := f.sessions.ValidateSession(ctx, grant.Token); err != nil {
		t.Fatalf("validate: %v", err)
	}

	sessions, err := f.sessions.GetUserSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].LastActivity.Equal(f.clock.Now()) {
		t.Fatalf("last activity not refreshed: %+v", sessions)
	}
	// Activity never extends the absolute expiry.
	if !sessions[0].ExpiresAt.Equal(grant.ExpiresAt) {
		t.Fatalf("expiry moved: %v", sessions[0].ExpiresAt)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	f := newFixture(t)
	for _, token := range []string{"", "deadbeef", string(make([]byte, 64))} {
		if _, err := f.sessions.ValidateSession(context.Background(), token); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("token %q: expected ErrInvalidSession, got %v", token, err)
		}
	}
}

func TestValidateRejectsDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", types.RoleTransportOfficer)
	grant, err := f.sessions.CreateSession(ctx, user.ID, testDevice)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := f.users.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.sessions.ValidateSession(ctx, grant.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestInvalidateThenValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", types.RoleTransportOfficer)
	grant, err := f.sessions.CreateSession(ctx, user.ID, testDevice)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	ok, err := f.sessions.InvalidateSession(ctx, grant.Token)
	if err != nil || !ok {
		t.Fatalf("invalidate: ok=%v err=%v", ok, err)
	}
	if _, err := f.sessions.ValidateSession(ctx, grant.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	ok, err = f.sessions.InvalidateSession(ctx, "unknown")
	if err != nil || ok {
		t.Fatalf("unknown token: ok=%v err=%v", ok, err)
	}
}

func TestInvalidateAllSessionsIsPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", types.RoleTransportOfficer)
	bob := f.register(t, "bob", types.RoleTransportJCO)

	var aliceTokens []string
	for i := 0; i < 3; i++ {
		grant, err := f.sessions.CreateSession(ctx, alice.ID, testDevice)
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		aliceTokens = append(aliceTokens, grant.Token)
	}
	bobGrant, err := f.sessions.CreateSession(ctx, bob.ID, testDevice)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	ok, err := f.sessions.InvalidateAllSessions(ctx, alice.ID)
	if err != nil || !ok {
		t.Fatalf("invalidate all: ok=%v err=%v", ok, err)
	}
	for _, token := range aliceTokens {
		if _, err := f.sessions.ValidateSession(ctx, token); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("alice session still valid: %v", err)
		}
	}
	if _, err := f.sessions.ValidateSession(ctx, bobGrant.Token); err != nil {
		t.Fatalf("bob session affected: %v", err)
	}

	ok, err = f.sessions.InvalidateAllSessions(ctx, 404)
	if err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", types.RoleTransportOfficer)

	first, _ := f.sessions.CreateSession(ctx, user.ID, testDevice)
	second, _ := f.sessions.CreateSession(ctx, user.ID, testDevice)
	if _, err := f.sessions.InvalidateSession(ctx, first.Token); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	// Invalidated sessions stay stored until a cleanup pass.
	if n := f.store.Sessions().Count(user.ID); n != 2 {
		t.Fatalf("expected 2 stored sessions, got %d", n)
	}

	removed, err := f.sessions.CleanupExpiredSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	f.clock.Advance(DefaultSessionTTL)
	if _, err := f.sessions.CreateSession(ctx, user.ID, testDevice); err != nil {
		t.Fatalf("create session: %v", err)
	}
	// Creating a session swept the now-expired second one.
	if n := f.store.Sessions().Count(user.ID); n != 1 {
		t.Fatalf("expected 1 stored session, got %d", n)
	}
	if _, err := f.sessions.ValidateSession(ctx, second.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expired session still valid")
	}
}

func TestGetUserSessionsAndRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", types.RoleTransportOfficer)
	bob := f.register(t, "bob", types.RoleTransportOfficer)

	first, _ := f.sessions.CreateSession(ctx, alice.ID, testDevice)
	second, _ := f.sessions.CreateSession(ctx, alice.ID, testDevice)

	sessions, err := f.sessions.GetUserSessions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	data, _ := json.Marshal(sessions)
	if strings.Contains(string(data), first.Token) || strings.Contains(string(data), second.Token) {
		t.Fatalf("session listing leaked a token")
	}

	ok, err := f.sessions.RevokeSession(ctx, bob.ID, first.Principal.SessionID)
	if err != nil || ok {
		t.Fatalf("revoking another user's session: ok=%v err=%v", ok, err)
	}
	ok, err = f.sessions.RevokeSession(ctx, alice.ID, first.Principal.SessionID)
	if err != nil || !ok {
		t.Fatalf("revoke: ok=%v err=%v", ok, err)
	}

	sessions, _ = f.sessions.GetUserSessions(ctx, alice.ID)
	if len(sessions) != 1 || sessions[0].ID != second.Principal.SessionID {
		t.Fatalf("unexpected sessions after revoke: %+v", sessions)
	}
}

func TestSessionEventsArePublished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	f.sessions.events = NewEvents(pub, "auth-events", nil)
	user := f.register(t, "alice", types.RoleTransportOfficer)

	// Publish failures must not fail the operation.
	grant, err := f.sessions.CreateSession(ctx, user.ID, testDevice)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(pub.payloads) != 1 || pub.channels[0] != "auth-events" {
		t.Fatalf("expected one event on auth-events, got %v", pub.channels)
	}

	var event AuthEvent
	if err := json.Unmarshal(pub.payloads[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != EventSessionCreated || event.UserID != user.ID || event.SessionID != grant.Principal.SessionID || event.ID == "" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
