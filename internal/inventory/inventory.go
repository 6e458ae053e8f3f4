// Package inventory owns product stock mutation. Stock only moves inside a
// caller's transaction and never below zero.
package inventory

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
)

// Engine applies guarded stock updates.
type Engine struct{}

// NewEngine returns the inventory engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Decrement removes qty units from the product when at least qty remain.
// The comparison and the write are one UPDATE, so two buyers racing for the
// last units cannot both succeed.
func (e *Engine) Decrement(ctx context.Context, tx *gorm.DB, productID int64, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, fmt.Sprintf("decrement stock for product %d", productID))
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")
	}
	return nil
}
