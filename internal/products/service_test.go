package product

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func newTestService(t *testing.T) (Service, *Repository) {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	stock, err := inventory.NewService(inventory.ServiceParams{
		Repo:   inventory.NewRepository(conn),
		TX:     client,
		Outbox: outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Logger: logger.Nop(),
	})
	require.NoError(t, err)

	repo := NewRepository(conn)
	svc, err := NewService(repo, client, stock)
	require.NoError(t, err)
	return svc, repo
}

func TestCreateProductBooksInitialStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	actor := &outbox.ActorRef{UserID: uuid.New(), Role: enums.UserRoleStaff.String()}

	created, err := svc.CreateProduct(ctx, actor, CreateProductInput{
		Name:     "Linen Shirt",
		Category: "Men",
		Price:    decimal.RequireFromString("89.90"),
		Variants: []VariantInput{{Size: "M", Stock: 5}, {Size: " L ", Stock: 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8990), created.PriceCents)
	require.Len(t, created.Variants, 2)

	m := created.Variant("M")
	require.NotNil(t, m)
	assert.Equal(t, 5, m.Stock)
	assert.True(t, m.Active)

	l := created.Variant("L")
	require.NotNil(t, l)
	assert.Equal(t, 0, l.Stock)
	assert.False(t, l.Active)

	var ledgerEvents int64
	require.NoError(t, repo.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventInventoryLedgerEntry).
		Count(&ledgerEvents).Error)
	assert.EqualValues(t, 1, ledgerEvents)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]CreateProductInput{
		"missing name":   {Category: "Men", Price: decimal.NewFromInt(10), Variants: []VariantInput{{Size: "M"}}},
		"zero price":     {Name: "Tee", Category: "Men", Variants: []VariantInput{{Size: "M"}}},
		"sub-cent price": {Name: "Tee", Category: "Men", Price: decimal.RequireFromString("1.999"), Variants: []VariantInput{{Size: "M"}}},
		"no variants":    {Name: "Tee", Category: "Men", Price: decimal.NewFromInt(10)},
		"duplicate size": {Name: "Tee", Category: "Men", Price: decimal.NewFromInt(10), Variants: []VariantInput{{Size: "M"}, {Size: "M"}}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, nil, input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestUpdatePrice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, nil, CreateProductInput{
		Name:     "Tee",
		Category: "Men",
		Price:    decimal.NewFromInt(50),
		Variants: []VariantInput{{Size: "M", Stock: 1}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdatePrice(ctx, created.ID, decimal.RequireFromString("75.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(7550), updated.PriceCents)

	_, err = svc.UpdatePrice(ctx, uuid.New(), decimal.NewFromInt(1))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestListAndGetProducts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, input := range []CreateProductInput{
		{Name: "Tee", Category: "Men", Price: decimal.NewFromInt(50), Bestseller: true, Variants: []VariantInput{{Size: "M", Stock: 1}}},
		{Name: "Dress", Category: "Women", Price: decimal.NewFromInt(90), Variants: []VariantInput{{Size: "S", Stock: 2}}},
	} {
		_, err := svc.CreateProduct(ctx, nil, input)
		require.NoError(t, err)
	}

	all, err := svc.ListProducts(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	women, err := svc.ListProducts(ctx, ListQuery{Category: "Women"})
	require.NoError(t, err)
	require.Len(t, women, 1)
	assert.Equal(t, "Dress", women[0].Name)
	require.Len(t, women[0].Variants, 1)

	best, err := svc.ListProducts(ctx, ListQuery{BestsellerOnly: true})
	require.NoError(t, err)
	require.Len(t, best, 1)
	assert.Equal(t, "Tee", best[0].Name)

	_, err = svc.GetProduct(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
