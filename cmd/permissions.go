/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mto-maintenance/apiserver/internal/rbac"
	"github.com/mto-maintenance/apiserver/types"
	"github.com/spf13/cobra"
)

var (
	permissionsRole  string
	permissionsCheck string
)

// permissionsCmd prints the compiled role to permission table, or answers a
// single role/module/action question with --check.
var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Print what each role may do",
	RunE: func(cmd *cobra.Command, args []string) error {
		if permissionsRole != "" && !types.IsValidRole(permissionsRole) {
			return fmt.Errorf("unknown role %q", permissionsRole)
		}
		if permissionsCheck != "" {
			return checkPermission(cmd, permissionsRole, permissionsCheck)
		}

		var value any = rbac.Table()
		if permissionsRole != "" {
			value = rbac.For(permissionsRole)
		}

		out, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func checkPermission(cmd *cobra.Command, role, check string) error {
	if role == "" {
		return fmt.Errorf("--check needs --role")
	}
	module, action, found := strings.Cut(check, ":")
	if !found || module == "" || action == "" {
		return fmt.Errorf("--check wants module:action, got %q", check)
	}
	if !slices.Contains(rbac.Modules(), module) {
		return fmt.Errorf("unknown module %q (known: %s)", module, strings.Join(rbac.Modules(), ", "))
	}

	verdict := "denied"
	if rbac.Allowed(role, module, action) {
		verdict = "allowed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s:%s %s\n", role, module, action, verdict)
	return nil
}

func init() {
	rootCmd.AddCommand(permissionsCmd)
	permissionsCmd.Flags().StringVar(&permissionsRole, "role", "", "only print this role")
	permissionsCmd.Flags().StringVar(&permissionsCheck, "check", "", "report whether --role may do module:action")
}
