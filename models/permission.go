package models

import (
	"context"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
)

// Capability is the single authorization gate consulted before every
// mutating ledger operation. One authoritative implementation; no inline
// role-flag checks anywhere else in the ledger.
type Capability interface {
	HasPermission(ctx context.Context, actorId string, businessId string, resource string, action string) (bool, error)
}

// Resources and actions the ledger checks.
const (
	ResourceBill    = "bill"
	ResourcePayment = "payment"

	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionVoid    = "void"
	ActionSubmit  = "submit"
	ActionApprove = "approve"
	ActionRecord  = "record"
	ActionRead    = "read"
)

// rolePermissions maps role -> resource -> allowed actions.
// Owner/admin can do everything; staff can create/update/submit bills and
// record payments but cannot approve or void.
var rolePermissions = map[string]map[string][]string{
	"owner": {
		ResourceBill:    {ActionCreate, ActionUpdate, ActionVoid, ActionSubmit, ActionApprove, ActionRead},
		ResourcePayment: {ActionRecord, ActionRead},
	},
	"admin": {
		ResourceBill:    {ActionCreate, ActionUpdate, ActionVoid, ActionSubmit, ActionApprove, ActionRead},
		ResourcePayment: {ActionRecord, ActionRead},
	},
	"staff": {
		ResourceBill:    {ActionCreate, ActionUpdate, ActionSubmit, ActionRead},
		ResourcePayment: {ActionRecord, ActionRead},
	},
	"viewer": {
		ResourceBill:    {ActionRead},
		ResourcePayment: {ActionRead},
	},
}

// RoleCapability resolves permissions from the actor's stored role.
type RoleCapability struct{}

func NewRoleCapability() *RoleCapability { return &RoleCapability{} }

func (c *RoleCapability) HasPermission(ctx context.Context, actorId string, businessId string, resource string, action string) (bool, error) {
	if isAdmin, _ := utils.GetIsAdminFromContext(ctx); isAdmin {
		return true, nil
	}

	user, err := utils.FetchModel[User](ctx, businessId, actorId)
	if err != nil {
		return false, nil
	}
	if !utils.DereferencePtr(user.IsActive) {
		return false, nil
	}

	resources, ok := rolePermissions[user.Role]
	if !ok {
		return false, nil
	}
	for _, allowed := range resources[resource] {
		if allowed == action {
			return true, nil
		}
	}
	return false, nil
}

var capability Capability = NewRoleCapability()

// SetCapability swaps the authorization gate. Intended for tests.
func SetCapability(c Capability) {
	capability = c
}

// checkPermission returns ForbiddenError when the gate denies. Every
// mutating operation calls this before any side effect.
func checkPermission(ctx context.Context, businessId string, resource string, action string) error {
	actorId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || actorId == "" {
		return utils.NewForbiddenError("user id is required")
	}
	allowed, err := capability.HasPermission(ctx, actorId, businessId, resource, action)
	if err != nil {
		return err
	}
	if !allowed {
		return utils.NewForbiddenError("not allowed to " + action + " " + resource)
	}
	return nil
}
