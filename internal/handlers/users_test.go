package handlers

import (
	"net/http"
	"testing"

	"github.com/mto-maintenance/apiserver/types"
)

func TestUsersRequirePermission(t *testing.T) {
	env := newTestEnv(t)
	co, _ := env.register(t, "commander", types.RoleCommandingOfficer)
	jco, _ := env.register(t, "jco", types.RoleTransportJCO)

	if rec := env.do(t, http.MethodGet, "/users", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/users", jco, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("Transport JCO: expected 403, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/users?limit=1&page=2", co, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Commanding Officer: status %d", rec.Code)
	}
	var list UserListResponse
	decode(t, rec, &list)
	if list.Total != 2 || len(list.Items) != 1 || list.Items[0].Username != "jco" {
		t.Fatalf("unexpected page: %+v", list)
	}

	if rec := env.do(t, http.MethodGet, "/users/999", co, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing user: expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/users?page=0", co, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad page: expected 400, got %d", rec.Code)
	}
}

func TestDeactivateLocksOutUser(t *testing.T) {
	env := newTestEnv(t)
	co, _ := env.register(t, "commander", types.RoleCommandingOfficer)
	officer, officerUser := env.register(t, "officer", types.RoleTransportOfficer)

	path := "/users/" + itoa(int64(officerUser.ID))
	if rec := env.do(t, http.MethodPost, path+"/deactivate", officer, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-CO deactivate: expected 403, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, path+"/deactivate", co, nil); rec.Code != http.StatusOK {
		t.Fatalf("deactivate: status %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/auth/profile", officer, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("deactivated user's session still works: %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"identifier": "officer", "password": "pw123456"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("deactivated user could log in: %d", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, path+"/activate", co, nil); rec.Code != http.StatusOK {
		t.Fatalf("activate: status %d", rec.Code)
	}
	env.login(t, "officer")

	if rec := env.do(t, http.MethodPost, "/users/999/activate", co, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing user: expected 404, got %d", rec.Code)
	}
}

func TestCannotDeactivateSelf(t *testing.T) {
	env := newTestEnv(t)
	co, user := env.register(t, "commander", types.RoleCommandingOfficer)
	rec := env.do(t, http.MethodPost, "/users/"+itoa(int64(user.ID))+"/deactivate", co, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
