package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/pkg/db/dbtest"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
)

func TestDecrement(t *testing.T) {
	cases := []struct {
		name      string
		stock     int
		qty       int
		wantCode  pkgerrors.Code
		wantStock int
	}{
		{name: "partial", stock: 3, qty: 2, wantStock: 1},
		{name: "exact", stock: 2, qty: 2, wantStock: 0},
		{name: "short", stock: 1, qty: 2, wantCode: pkgerrors.CodeInsufficientStock, wantStock: 1},
		{name: "zero quantity", stock: 1, qty: 0, wantCode: pkgerrors.CodeValidation, wantStock: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := dbtest.New(t)
			seller := dbtest.User(t, client, "seller@example.com", enums.RoleSeller)
			product := dbtest.Product(t, client, seller.ID, 100, tc.stock, enums.ProductStatusApproved)

			err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
				return NewEngine().Decrement(context.Background(), tx, product.ID, tc.qty)
			})
			if tc.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantCode, pkgerrors.CodeOf(err))
			} else {
				require.NoError(t, err)
			}

			var reloaded models.Product
			require.NoError(t, client.DB().First(&reloaded, product.ID).Error)
			assert.Equal(t, tc.wantStock, reloaded.Stock)
		})
	}
}

func TestDecrementRequiresTransaction(t *testing.T) {
	err := NewEngine().Decrement(context.Background(), nil, 1, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
