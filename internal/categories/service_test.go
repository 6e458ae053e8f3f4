package categories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handmade-market/internal/authz"
	product "github.com/angelmondragon/handmade-market/internal/products"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/db/dbtest"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

func newTestService(t *testing.T) (Service, product.Service, *db.Client) {
	t.Helper()
	client := dbtest.New(t)
	products, err := product.NewService(product.NewRepository(client.DB()), client, dbtest.Outbox(client))
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), products, nil)
	require.NoError(t, err)
	return svc, products, client
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Home Decor":           "home-decor",
		"  Felt & Wool -- 2 ":  "felt-wool-2",
		"Ceramics":             "ceramics",
		"Гар урлал":            "",
		"Leather/Гар урлал 3D": "leather-3d",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q want %q", in, got, want)
		}
	}
}

func TestCreate(t *testing.T) {
	svc, _, client := newTestService(t)
	admin := dbtest.User(t, client, "admin@example.com", enums.RoleAdmin)
	seller := dbtest.User(t, client, "seller@example.com", enums.RoleSeller)
	adminActor := authz.NewActor(admin.ID, admin.Role)

	created, err := svc.Create(context.Background(), adminActor, CreateInput{Name: " Home Decor "})
	require.NoError(t, err)
	assert.Equal(t, "Home Decor", created.Name)
	assert.Equal(t, "home-decor", created.Slug)

	_, err = svc.Create(context.Background(), adminActor, CreateInput{Name: "Home decor"})
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	_, err = svc.Create(context.Background(), adminActor, CreateInput{Name: "Гар урлал"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	named, err := svc.Create(context.Background(), adminActor, CreateInput{Name: "Гар урлал", Slug: "handicraft"})
	require.NoError(t, err)
	assert.Equal(t, "handicraft", named.Slug)

	_, err = svc.Create(context.Background(), authz.NewActor(seller.ID, seller.Role), CreateInput{Name: "Toys"})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Home Decor", list[0].Name)
	assert.Equal(t, "Гар урлал", list[1].Name)
}

func TestGetListsApprovedProductsOfCategory(t *testing.T) {
	svc, products, client := newTestService(t)
	seller := dbtest.User(t, client, "seller@example.com", enums.RoleSeller)
	ceramics := dbtest.Category(t, client, "Ceramics", "ceramics")
	textiles := dbtest.Category(t, client, "Textiles", "textiles")

	sellerActor := authz.NewActor(seller.ID, seller.Role)
	mug, err := products.CreateProduct(context.Background(), sellerActor, product.CreateProductInput{Name: "Mug", PriceCents: 1500, Stock: 3, CategoryID: &ceramics.ID})
	require.NoError(t, err)
	_, err = products.CreateProduct(context.Background(), sellerActor, product.CreateProductInput{Name: "Bowl", PriceCents: 2500, Stock: 3, CategoryID: &ceramics.ID})
	require.NoError(t, err)
	_, err = products.CreateProduct(context.Background(), sellerActor, product.CreateProductInput{Name: "Scarf", PriceCents: 4000, Stock: 1, CategoryID: &textiles.ID})
	require.NoError(t, err)
	require.NoError(t, client.DB().Exec("UPDATE products SET status = ? WHERE name IN ?", enums.ProductStatusApproved, []string{"Mug", "Scarf"}).Error)

	detail, err := svc.Get(context.Background(), ceramics.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Equal(t, "ceramics", detail.Slug)
	require.Len(t, detail.Products, 1)
	assert.Equal(t, mug.ID, detail.Products[0].ID)
	require.NotNil(t, detail.Products[0].Category)
	assert.Equal(t, "ceramics", detail.Products[0].Category.Slug)

	_, err = svc.Get(context.Background(), 9999, pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestProductsRejectUnknownCategory(t *testing.T) {
	_, products, client := newTestService(t)
	seller := dbtest.User(t, client, "seller@example.com", enums.RoleSeller)
	missing := int64(42)

	_, err := products.CreateProduct(context.Background(), authz.NewActor(seller.ID, seller.Role), product.CreateProductInput{
		Name:       "Mug",
		PriceCents: 1500,
		CategoryID: &missing,
	})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
