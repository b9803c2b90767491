package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func runPermissions(t *testing.T, args ...string) (string, error) {
	t.Helper()
	permissionsRole, permissionsCheck = "", ""
	t.Cleanup(func() { permissionsRole, permissionsCheck = "", "" })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"permissions"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPermissionsCheck(t *testing.T) {
	tests := []struct {
		role  string
		check string
		want  string
	}{
		{"Commanding Officer", "maintenance:delete", "allowed"},
		{"Transport JCO", "maintenance:delete", "denied"},
		{"Transport JCO", "taskOrders:write", "allowed"},
		{"Maintenance JCO", "users:read", "denied"},
	}

	for _, tt := range tests {
		out, err := runPermissions(t, "--role", tt.role, "--check", tt.check)
		if err != nil {
			t.Fatalf("%s %s: unexpected error: %v", tt.role, tt.check, err)
		}
		if !strings.HasSuffix(strings.TrimSpace(out), tt.want) {
			t.Fatalf("%s %s: got %q, want %s", tt.role, tt.check, out, tt.want)
		}
	}
}

func TestPermissionsCheckRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"--check", "vehicles:read"},
		{"--role", "Quartermaster", "--check", "vehicles:read"},
		{"--role", "Transport JCO", "--check", "vehicles"},
		{"--role", "Transport JCO", "--check", "armoury:read"},
	}
	for _, args := range cases {
		if _, err := runPermissions(t, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestPermissionsPrintsRole(t *testing.T) {
	out, err := runPermissions(t, "--role", "Transport JCO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"taskOrders"`) || strings.Contains(out, `"users"`) {
		t.Fatalf("unexpected table for Transport JCO: %s", out)
	}
}
