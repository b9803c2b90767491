package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mto-maintenance/apiserver/internal/metrics"
	"github.com/mto-maintenance/apiserver/internal/services"
	"github.com/mto-maintenance/apiserver/types"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	tokenKey     contextKey = "session-token"
)

// ContextWithPrincipal attaches an authenticated principal to ctx.
func ContextWithPrincipal(ctx context.Context, principal types.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext returns the principal set by Authenticate.
func PrincipalFromContext(ctx context.Context) (types.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(types.Principal)
	return principal, ok
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// SessionValidator resolves a session token to a principal.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (types.Principal, error)
}

// Authenticator gates requests on a valid session token, taken from a
// header or, failing that, a cookie.
type Authenticator struct {
	sessions   SessionValidator
	headerName string
	cookieName string
	errors     Errors
}

func NewAuthenticator(sessions SessionValidator, headerName, cookieName string, errs Errors) *Authenticator {
	return &Authenticator{
		sessions:   sessions,
		headerName: headerName,
		cookieName: cookieName,
		errors:     errs,
	}
}

// Token extracts the raw session token from r, or "" if there is none.
func (a *Authenticator) Token(r *http.Request) string {
	if a.headerName != "" {
		if token := strings.TrimSpace(r.Header.Get(a.headerName)); token != "" {
			return token
		}
	}
	if a.cookieName != "" {
		if cookie, err := r.Cookie(a.cookieName); err == nil {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}

// Authenticate rejects requests without a valid session with 401 and
// storage faults with 500.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.Token(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "No session ID provided")
			return
		}

		principal, err := a.sessions.ValidateSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrInvalidSession) {
				metrics.ObserveSessionValidation(metrics.ResultInvalid)
				writeError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}
			metrics.ObserveSessionValidation(metrics.ResultError)
			a.errors.internal(w, r, "Authentication error", err)
			return
		}
		metrics.ObserveSessionValidation(metrics.ResultValid)

		ctx := ContextWithPrincipal(r.Context(), principal)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthorizeRole admits only principals whose role is one of roles. It must
// run after Authenticate; without a principal it answers 401.
func AuthorizeRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if _, ok := allowed[principal.Role]; !ok {
				metrics.ObserveDenial(metrics.GuardRole)
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthorizePermission admits only principals granted action on module.
func AuthorizePermission(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !principal.Permissions.Allows(module, action) {
				metrics.ObserveDenial(metrics.GuardPermission)
				writeError(w, http.StatusForbidden, "Permission denied: "+action+" on "+module)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
