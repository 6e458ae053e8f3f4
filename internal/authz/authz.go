// Package authz carries the caller's identity into workflows and holds the
// authorization predicates they share.
package authz

import (
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
)

// Actor is the authenticated caller. The zero value is anonymous.
type Actor struct {
	AccountID int64
	Role      enums.Role
}

// NewActor builds an actor for an authenticated account.
func NewActor(accountID int64, role enums.Role) Actor {
	return Actor{AccountID: accountID, Role: role}
}

// IsAuthenticated reports whether the actor carries an identity.
func (a Actor) IsAuthenticated() bool {
	return a.AccountID > 0 && a.Role.IsValid()
}

func IsAdmin(a Actor) bool {
	return a.IsAuthenticated() && a.Role == enums.RoleAdmin
}

func IsSeller(a Actor) bool {
	return a.IsAuthenticated() && a.Role == enums.RoleSeller
}

// IsOwner reports whether the actor is the account identified by ownerID.
func IsOwner(a Actor, ownerID int64) bool {
	return a.IsAuthenticated() && a.AccountID == ownerID
}

// IsSellerOfAnyItem reports whether the actor sells at least one product in
// the order. Items must have Product preloaded.
func IsSellerOfAnyItem(a Actor, items []models.OrderItem) bool {
	if !a.IsAuthenticated() {
		return false
	}
	for _, item := range items {
		if item.Product != nil && item.Product.SellerID == a.AccountID {
			return true
		}
	}
	return false
}

// RequireAuthenticated returns an unauthorized error for anonymous callers.
func RequireAuthenticated(a Actor) error {
	if !a.IsAuthenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

// RequireAdmin returns an error unless the actor is an admin.
func RequireAdmin(a Actor) error {
	if err := RequireAuthenticated(a); err != nil {
		return err
	}
	if !IsAdmin(a) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

// RequireSeller returns an error unless the actor is a seller.
func RequireSeller(a Actor) error {
	if err := RequireAuthenticated(a); err != nil {
		return err
	}
	if !IsSeller(a) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "seller role required")
	}
	return nil
}

// CanManageOrder covers order status updates and refund decisions: a seller
// of any item in the order, or an admin.
func CanManageOrder(a Actor, items []models.OrderItem) bool {
	return IsAdmin(a) || IsSellerOfAnyItem(a, items)
}

// CanViewOrder additionally admits the buyer.
func CanViewOrder(a Actor, order *models.Order) bool {
	if order == nil {
		return false
	}
	return IsOwner(a, order.BuyerID) || CanManageOrder(a, order.Items)
}
