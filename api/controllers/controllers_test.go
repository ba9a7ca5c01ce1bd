package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	productsvc "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubProducts struct {
	productsvc.Service
	created    *productsvc.CreateProductInput
	createdBy  *outbox.ActorRef
	priceID    uuid.UUID
	price      decimal.Decimal
	listQuery  productsvc.ListQuery
	getErr     error
	getProduct *models.Product
}

func (s *stubProducts) CreateProduct(_ context.Context, actor *outbox.ActorRef, input productsvc.CreateProductInput) (*models.Product, error) {
	s.created = &input
	s.createdBy = actor
	return &models.Product{ID: uuid.New(), Name: input.Name, Category: input.Category}, nil
}

func (s *stubProducts) UpdatePrice(_ context.Context, productID uuid.UUID, price decimal.Decimal) (*models.Product, error) {
	s.priceID = productID
	s.price = price
	return &models.Product{ID: productID, PriceCents: price.Shift(2).IntPart()}, nil
}

func (s *stubProducts) GetProduct(_ context.Context, productID uuid.UUID) (*models.Product, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.getProduct != nil {
		return s.getProduct, nil
	}
	return &models.Product{ID: productID}, nil
}

func (s *stubProducts) ListProducts(_ context.Context, query productsvc.ListQuery) ([]models.Product, error) {
	s.listQuery = query
	return []models.Product{{ID: uuid.New(), Name: "Tee"}}, nil
}

type stubInventory struct {
	inventory.Service
	input *inventory.ManualAdjustInput
	err   error
}

func (s *stubInventory) ManualAdjust(_ context.Context, input inventory.ManualAdjustInput) (*models.ProductVariant, error) {
	s.input = &input
	if s.err != nil {
		return nil, s.err
	}
	return &models.ProductVariant{ProductID: input.ProductID, Size: input.Size, Stock: 5 + input.Delta, Active: 5+input.Delta > 0}, nil
}

type stubLedger struct {
	ledger.Service
	filter ledger.Filter
	params pagination.Params
}

func (s *stubLedger) List(_ context.Context, filter ledger.Filter, params pagination.Params) (*ledger.EntryList, error) {
	s.filter = filter
	s.params = params
	return &ledger.EntryList{
		Entries:    []models.InventoryTransaction{{ID: uuid.New(), Kind: enums.InventoryKindRevert}},
		NextCursor: "next",
	}, nil
}

type stubCoupons struct {
	coupons.Service
	input *coupons.CreateCouponInput
}

func (s *stubCoupons) Create(_ context.Context, input coupons.CreateCouponInput) (*models.Coupon, error) {
	s.input = &input
	return &models.Coupon{ID: uuid.New(), Code: input.Code}, nil
}

func staffRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.UserRoleStaff))
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateProductReturnsCreated(t *testing.T) {
	svc := &stubProducts{}
	rec := httptest.NewRecorder()
	body := `{"name":"Linen Shirt","category":"Men","price":"24.99","variants":[{"size":"M","stock":3}]}`

	CreateProduct(svc, nil).ServeHTTP(rec, staffRequest(http.MethodPost, "/api/product/add", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, "Linen Shirt", svc.created.Name)
	assert.Len(t, svc.created.Variants, 1)
	require.NotNil(t, svc.createdBy)
	assert.Equal(t, string(enums.UserRoleStaff), svc.createdBy.Role)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Contains(t, payload, "product")
}

func TestCreateProductRequiresUserContext(t *testing.T) {
	svc := &stubProducts{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/product/add", strings.NewReader(`{}`))

	CreateProduct(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, svc.created)
}

func TestCreateProductRejectsMissingVariants(t *testing.T) {
	svc := &stubProducts{}
	rec := httptest.NewRecorder()

	CreateProduct(svc, nil).ServeHTTP(rec, staffRequest(http.MethodPost, "/api/product/add", `{"name":"Cap","category":"Kids"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.created)
}

func TestUpdateProductPrice(t *testing.T) {
	svc := &stubProducts{}
	id := uuid.New()
	rec := httptest.NewRecorder()

	UpdateProductPrice(svc, nil).ServeHTTP(rec, staffRequest(http.MethodPost, "/api/product/price", `{"productId":"`+id.String()+`","price":"19.50"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, svc.priceID)
	assert.True(t, decimal.RequireFromString("19.50").Equal(svc.price))
}

func TestUpdateProductPriceRejectsBadID(t *testing.T) {
	svc := &stubProducts{}
	rec := httptest.NewRecorder()

	UpdateProductPrice(svc, nil).ServeHTTP(rec, staffRequest(http.MethodPost, "/api/product/price", `{"productId":"nope","price":"1"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.priceID)
}

func TestListProductsFilters(t *testing.T) {
	svc := &stubProducts{}
	rec := httptest.NewRecorder()

	ListProducts(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/product/list?category=Women&bestseller=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, productsvc.ListQuery{Category: "Women", BestsellerOnly: true}, svc.listQuery)
}

func TestListProductsRejectsBadBestsellerFlag(t *testing.T) {
	rec := httptest.NewRecorder()

	ListProducts(&stubProducts{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/product/list?bestseller=maybe", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeBody(t, rec)["code"])
}

func TestGetProductReadsURLParam(t *testing.T) {
	id := uuid.New()
	svc := &stubProducts{getProduct: &models.Product{ID: id, Name: "Hoodie"}}
	router := chi.NewRouter()
	router.Get("/api/product/{productId}", GetProduct(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/product/"+id.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	product := decodeBody(t, rec)["product"].(map[string]any)
	assert.Equal(t, "Hoodie", product["name"])
}

func TestGetProductMapsNotFound(t *testing.T) {
	svc := &stubProducts{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	router := chi.NewRouter()
	router.Get("/api/product/{productId}", GetProduct(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/product/"+uuid.NewString(), nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product not found", decodeBody(t, rec)["message"])
}

func TestProductHandlersWithoutServiceFail(t *testing.T) {
	rec := httptest.NewRecorder()
	ListProducts(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/product/list", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdjustStockPassesSignedDelta(t *testing.T) {
	svc := &stubInventory{}
	productID := uuid.New()
	rec := httptest.NewRecorder()
	body := `{"productId":"` + productID.String() + `","size":"L","quantity":-2,"reason":"  damaged\tin  transit "}`

	AdjustStock(svc, nil).ServeHTTP(rec, staffRequest(http.MethodPost, "/api/inventory/adjust", body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.input)
	assert.Equal(t, productID, svc.input.ProductID)
	assert.Equal(t, "L", svc.input.Size)
	assert.Equal(t, -2, svc.input.Delta)
	assert.Equal(t, "damaged in transit", svc.input.Reason)
	require.NotNil(t, svc.input.Actor)

	variant := decodeBody(t, rec)["variant"].(map[string]any)
	assert.Equal(t, float64(3), variant["stock"])
	assert.Equal(t, true, variant["active"])
}

func TestAdjustStockUnknownVariantIsNotFound(t *testing.T) {
	svc := &stubInventory{err: pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")}
	rec := httptest.NewRecorder()
	body := `{"productId":"` + uuid.NewString() + `","size":"XXL","quantity":4}`

	AdjustStock(svc, nil).ServeHTTP(rec, staffRequest(http.MethodPost, "/api/inventory/adjust", body))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdjustStockRejectsZeroQuantity(t *testing.T) {
	svc := &stubInventory{}
	rec := httptest.NewRecorder()
	body := `{"productId":"` + uuid.NewString() + `","size":"S","quantity":0}`

	AdjustStock(svc, nil).ServeHTTP(rec, staffRequest(http.MethodPost, "/api/inventory/adjust", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.input)
}

func TestListLedgerBuildsFilter(t *testing.T) {
	svc := &stubLedger{}
	productID := uuid.New()
	orderID := uuid.New()
	rec := httptest.NewRecorder()
	target := "/api/inventory/ledger?productId=" + productID.String() + "&orderId=" + orderID.String() + "&size=M&kind=revert&limit=10&cursor=abc"

	ListLedger(svc, nil).ServeHTTP(rec, staffRequest(http.MethodGet, target, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.ProductID)
	require.NotNil(t, svc.filter.OrderID)
	assert.Equal(t, productID, *svc.filter.ProductID)
	assert.Equal(t, orderID, *svc.filter.OrderID)
	assert.Equal(t, "M", svc.filter.Size)
	assert.Equal(t, enums.InventoryKindRevert, svc.filter.Kind)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, svc.params)

	body := decodeBody(t, rec)
	assert.Equal(t, "next", body["nextCursor"])
	assert.Len(t, body["entries"], 1)
}

func TestListLedgerRejectsUnknownKind(t *testing.T) {
	svc := &stubLedger{}
	rec := httptest.NewRecorder()

	ListLedger(svc, nil).ServeHTTP(rec, staffRequest(http.MethodGet, "/api/inventory/ledger?kind=restock", ""))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid kind", decodeBody(t, rec)["message"])
}

func TestListLedgerRejectsOutOfRangeLimit(t *testing.T) {
	rec := httptest.NewRecorder()

	ListLedger(&stubLedger{}, nil).ServeHTTP(rec, staffRequest(http.MethodGet, "/api/inventory/ledger?limit=0", ""))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCoupon(t *testing.T) {
	svc := &stubCoupons{}
	rec := httptest.NewRecorder()

	CreateCoupon(svc, nil).ServeHTTP(rec, staffRequest(http.MethodPost, "/api/coupon/add", `{"code":"SPRING10","percentOff":10}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.input)
	assert.Equal(t, "SPRING10", svc.input.Code)
}
