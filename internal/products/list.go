package product

import (
	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

// ProductListFilters describe the supported filter knobs for the browse endpoint.
type ProductListFilters struct {
	Status     *enums.ProductStatus `json:"status,omitempty"`
	SellerID   *int64               `json:"seller_id,omitempty"`
	CategoryID *int64               `json:"category_id,omitempty"`
	Query      string               `json:"q,omitempty"`
}

// ListProductsInput captures the inputs needed to paginate/filter the catalog.
type ListProductsInput struct {
	Actor      authz.Actor
	Filters    ProductListFilters
	Pagination pagination.Params
}

// approvedOnly reports whether the listing must be restricted to approved
// products: everyone except admins and sellers browsing their own catalog.
func (in ListProductsInput) approvedOnly() bool {
	if authz.IsAdmin(in.Actor) {
		return false
	}
	if in.Filters.SellerID != nil && authz.IsOwner(in.Actor, *in.Filters.SellerID) {
		return false
	}
	return true
}
