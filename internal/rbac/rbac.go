// Package rbac is the capability matrix consulted before every mutation and
// every read of another user's data.
package rbac

import (
	"fmt"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

// Action names a capability.
type Action string

const (
	ActionView              Action = "view"
	ActionCreateSubmission  Action = "createSubmission"
	ActionUpdateOwnStatus   Action = "updateOwnStatus"
	ActionUpdateStatus      Action = "updateStatus"
	ActionAddComment        Action = "addComment"
	ActionManageUsers       Action = "manageUsers"
	ActionViewAuditLog      Action = "viewAuditLog"
	ActionRecomputeEstimate Action = "recomputeEstimate"
	ActionGenerateReport    Action = "generateReport"
)

// Scope is the reach of a granted capability.
type Scope int

const (
	ScopeNone Scope = iota
	// ScopeOwn grants the action only on resources the actor owns.
	ScopeOwn
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeAll:
		return "all"
	default:
		return "none"
	}
}

// matrix is read-only after package init. Missing entries mean ScopeNone.
var matrix = map[models.UserRole]map[Action]Scope{
	models.RoleEndUser: {
		ActionView:             ScopeOwn,
		ActionCreateSubmission: ScopeAll,
		ActionGenerateReport:   ScopeOwn,
	},
	models.RoleSales: {
		ActionView:             ScopeAll,
		ActionCreateSubmission: ScopeAll,
		ActionUpdateStatus:     ScopeAll,
		ActionAddComment:       ScopeAll,
		ActionGenerateReport:   ScopeAll,
	},
	models.RoleAdmin: {
		ActionView:              ScopeAll,
		ActionCreateSubmission:  ScopeAll,
		ActionUpdateStatus:      ScopeAll,
		ActionAddComment:        ScopeAll,
		ActionManageUsers:       ScopeAll,
		ActionViewAuditLog:      ScopeAll,
		ActionRecomputeEstimate: ScopeAll,
		ActionGenerateReport:    ScopeAll,
	},
}

// ScopeFor looks up the scope granted to role for action.
func ScopeFor(role models.UserRole, action Action) Scope {
	return matrix[role][action]
}

// Can reports whether the actor may perform action on a resource owned by ownerID.
// Pass an empty ownerID for actions without a resource owner.
func Can(actor models.Actor, action Action, ownerID string) bool {
	if !actor.Active || actor.UserID == "" {
		return false
	}
	switch ScopeFor(actor.Role, action) {
	case ScopeAll:
		return true
	case ScopeOwn:
		return ownerID != "" && ownerID == actor.UserID
	default:
		return false
	}
}

// CanAny reports whether the actor holds the capability at any scope.
func CanAny(actor models.Actor, action Action) bool {
	return actor.Active && actor.UserID != "" && ScopeFor(actor.Role, action) != ScopeNone
}

// Evaluate returns a Forbidden error when Can denies the request.
func Evaluate(actor models.Actor, action Action, ownerID string) error {
	if Can(actor, action, ownerID) {
		return nil
	}
	if !actor.Active {
		return appErrors.Clone(appErrors.ErrForbidden, "account is inactive")
	}
	return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %q may not %s this resource", actor.Role, action))
}
