// Package rbac holds the fixed role to permission table. The table is
// compiled in; changing what a role may do is a code change.
package rbac

import (
	"sort"

	"github.com/mto-maintenance/apiserver/types"
)

// Modules.
const (
	ModuleVehicles    = "vehicles"
	ModuleMaintenance = "maintenance"
	ModuleReports     = "reports"
	ModuleUsers       = "users"
	ModuleTaskOrders  = "taskOrders"
)

// Actions.
const (
	ActionRead    = "read"
	ActionWrite   = "write"
	ActionApprove = "approve"
	ActionDelete  = "delete"
)

var table = map[string]types.Permissions{
	types.RoleCommandingOfficer: {
		ModuleVehicles:    {ActionRead, ActionWrite, ActionApprove, ActionDelete},
		ModuleMaintenance: {ActionRead, ActionWrite, ActionApprove, ActionDelete},
		ModuleReports:     {ActionRead, ActionWrite, ActionApprove, ActionDelete},
		ModuleUsers:       {ActionRead, ActionWrite, ActionApprove, ActionDelete},
		ModuleTaskOrders:  {ActionRead, ActionWrite, ActionApprove, ActionDelete},
	},
	types.RoleTransportOfficer: {
		ModuleVehicles:    {ActionRead, ActionWrite, ActionApprove},
		ModuleMaintenance: {ActionRead},
		ModuleReports:     {ActionRead, ActionWrite},
		ModuleTaskOrders:  {ActionRead, ActionApprove},
	},
	types.RoleMaintenanceOfficer: {
		ModuleVehicles:    {ActionRead},
		ModuleMaintenance: {ActionRead, ActionWrite, ActionApprove},
		ModuleReports:     {ActionRead, ActionWrite, ActionApprove},
		ModuleTaskOrders:  {ActionRead},
	},
	types.RoleTransportJCO: {
		ModuleVehicles:    {ActionRead},
		ModuleMaintenance: {ActionRead},
		ModuleReports:     {ActionRead},
		ModuleTaskOrders:  {ActionRead, ActionWrite},
	},
	types.RoleMaintenanceJCO: {
		ModuleVehicles:    {ActionRead},
		ModuleMaintenance: {ActionRead, ActionWrite},
		ModuleReports:     {ActionRead, ActionWrite},
		ModuleTaskOrders:  {ActionRead},
	},
}

// For returns the permissions of role. Unknown roles get an empty,
// non-nil set. The result is a copy; mutating it does not affect the table.
func For(role string) types.Permissions {
	perms := make(types.Permissions, len(table[role]))
	for module, actions := range table[role] {
		perms[module] = append([]string(nil), actions...)
	}
	return perms
}

// Allowed reports whether role may perform action on module.
func Allowed(role, module, action string) bool {
	return table[role].Allows(module, action)
}

// Table returns a copy of the whole table keyed by role, for display.
func Table() map[string]types.Permissions {
	out := make(map[string]types.Permissions, len(table))
	for role := range table {
		out[role] = For(role)
	}
	return out
}

// Modules lists every module named in the table, sorted.
func Modules() []string {
	seen := make(map[string]struct{})
	for _, perms := range table {
		for module := range perms {
			seen[module] = struct{}{}
		}
	}
	modules := make([]string, 0, len(seen))
	for module := range seen {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}
