package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mto-maintenance/apiserver/internal/services"
	"github.com/mto-maintenance/apiserver/internal/store/memstore"
	"github.com/mto-maintenance/apiserver/types"
)

const (
	testHeader = "x-session-id"
	testCookie = "sessionId"
)

type testEnv struct {
	router   chi.Router
	store    *memstore.Store
	users    *services.UserService
	sessions *services.SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSessions(t, nil)
}

// newTestEnvWithSessions lets a test wrap the session repository, e.g. to
// inject storage faults.
func newTestEnvWithSessions(t *testing.T, wrap func(services.SessionRepository) services.SessionRepository) *testEnv {
	t.Helper()
	st := memstore.New()
	var sessionRepo services.SessionRepository = st.Sessions()
	if wrap != nil {
		sessionRepo = wrap(sessionRepo)
	}
	users := services.NewUserService(st.Users(), 4, nil)
	sessions := services.NewSessionService(st.Users(), sessionRepo, time.Hour, nil, nil)
	errs := Errors{ExposeDetail: true}
	auth := NewAuthenticator(sessions, testHeader, testCookie, errs)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(users, sessions, auth, testCookie, false, errs), nil)
	})
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, NewUserHandler(users, sessions, errs), auth.Authenticate)
	})

	return &testEnv{router: router, store: st, users: users, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if token != "" {
		req.Header.Set(testHeader, token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func registerBody(username, role string) map[string]string {
	return map[string]string{
		"username":      username,
		"email":         username + "@x.com",
		"password":      "pw123456",
		"firstName":     "Test",
		"lastName":      "User",
		"rank":          "Captain",
		"serviceNumber": "SN-" + username,
		"role":          role,
		"unit":          "12 Transport Bn",
		"location":      "Depot",
	}
}

// register creates a user through the API and returns its session token.
func (e *testEnv) register(t *testing.T, username, role string) (string, types.PublicUser) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/register", "", registerBody(username, role))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp SessionResponse
	decode(t, rec, &resp)
	return resp.SessionID, resp.User
}

func (e *testEnv) login(t *testing.T, identifier string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   "pw123456",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", identifier, rec.Code, rec.Body.String())
	}
	var resp SessionResponse
	decode(t, rec, &resp)
	return resp.SessionID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
