// Package permissions maps user roles to the actions they may perform.
// Roles are flat: a plain lookup table, no hierarchy.
package permissions

import (
	"fmt"

	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
)

// Known roles
const (
	RoleDoctor     = "doctor"
	RolePharmacist = "pharmacist"
	RoleAdmin      = "admin"
)

// Action identifies an operation gated by role
type Action string

// Known actions
const (
	ActionRequestCreate  Action = "requests.create"
	ActionRequestCancel  Action = "requests.cancel"
	ActionRequestHistory Action = "requests.history"
	ActionRequestReview  Action = "requests.review"
	ActionInventoryRead  Action = "inventory.read"
	ActionInventoryWrite Action = "inventory.write"
	ActionDemandRead     Action = "demand.read"
	ActionAnomalyManage  Action = "anomalies.manage"
	ActionActivityRead   Action = "activity.read"
)

// roleActions is the authoritative role-to-action table.
var roleActions = map[string]map[Action]bool{
	RoleDoctor: {
		ActionRequestCreate:  true,
		ActionRequestCancel:  true,
		ActionRequestHistory: true,
		ActionInventoryRead:  true,
	},
	RolePharmacist: {
		ActionRequestReview:  true,
		ActionRequestHistory: true,
		ActionInventoryRead:  true,
		ActionInventoryWrite: true,
		ActionDemandRead:     true,
	},
	RoleAdmin: {
		ActionRequestHistory: true,
		ActionInventoryRead:  true,
		ActionInventoryWrite: true,
		ActionDemandRead:     true,
		ActionAnomalyManage:  true,
		ActionActivityRead:   true,
	},
}

// Allows reports whether the given role may perform the action.
// Unknown roles are allowed nothing.
func Allows(role string, action Action) bool {
	actions, ok := roleActions[role]
	if !ok {
		return false
	}
	return actions[action]
}

// AllowsAny reports whether the role may perform at least one of the actions.
func AllowsAny(role string, actions ...Action) bool {
	for _, a := range actions {
		if Allows(role, a) {
			return true
		}
	}
	return false
}

// Actions returns the full action set for a role. Used by introspection
// endpoints and tests.
func Actions(role string) []Action {
	actions, ok := roleActions[role]
	if !ok {
		return nil
	}

	result := make([]Action, 0, len(actions))
	for a, allowed := range actions {
		if allowed {
			result = append(result, a)
		}
	}
	return result
}

// Denied builds the forbidden error returned when a role lacks an action.
func Denied(role string, action Action) *errors.AppError {
	return errors.Forbidden(fmt.Sprintf("role %q may not perform %s", role, action))
}
