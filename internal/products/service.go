package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const initialStockReason = "initial stock"

// Service exposes catalog reads and staff catalog management.
type Service interface {
	CreateProduct(ctx context.Context, actor *outbox.ActorRef, input CreateProductInput) (*models.Product, error)
	UpdatePrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) (*models.Product, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, query ListQuery) ([]models.Product, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockAdjuster interface {
	ManualAdjustTx(ctx context.Context, tx *gorm.DB, input inventory.ManualAdjustInput) (*models.ProductVariant, error)
}

type service struct {
	repo  *Repository
	tx    txRunner
	stock stockAdjuster
}

// NewService constructs a product service instance.
func NewService(repo *Repository, tx txRunner, stock stockAdjuster) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock adjuster required")
	}
	return &service{repo: repo, tx: tx, stock: stock}, nil
}

func (s *service) CreateProduct(ctx context.Context, actor *outbox.ActorRef, input CreateProductInput) (*models.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	priceCents, err := validatePrice(input.Price)
	if err != nil {
		return nil, err
	}
	if len(input.Variants) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one variant is required")
	}

	seen := make(map[string]struct{}, len(input.Variants))
	variants := make([]models.ProductVariant, 0, len(input.Variants))
	for _, v := range input.Variants {
		size := normalizeSize(v.Size)
		if size == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant size is required")
		}
		if _, dup := seen[size]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate variant size").
				WithDetails(map[string]any{"size": size})
		}
		if v.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant stock must be >= 0")
		}
		seen[size] = struct{}{}
		variants = append(variants, models.ProductVariant{Size: size, SKU: v.SKU})
	}

	var productID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.repo.WithTx(tx).CreateProduct(ctx, &models.Product{
			Name:        name,
			Description: strings.TrimSpace(input.Description),
			Category:    category,
			SubCategory: input.SubCategory,
			PriceCents:  priceCents,
			Bestseller:  input.Bestseller,
			Variants:    variants,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
		}
		productID = created.ID

		for _, v := range input.Variants {
			if v.Stock == 0 {
				continue
			}
			_, err := s.stock.ManualAdjustTx(ctx, tx, inventory.ManualAdjustInput{
				ProductID: created.ID,
				Size:      normalizeSize(v.Size),
				Delta:     v.Stock,
				Actor:     actor,
				Reason:    initialStockReason,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, productID)
}

func (s *service) UpdatePrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	priceCents, err := validatePrice(price)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdatePrice(ctx, productID, priceCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update price")
	}
	if !updated {
		return nil, pkgerrors.NotFound("product")
	}
	return s.GetProduct(ctx, productID)
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("product")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context, query ListQuery) ([]models.Product, error) {
	query.Category = strings.TrimSpace(query.Category)
	products, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return products, nil
}

func validatePrice(price decimal.Decimal) (int64, error) {
	if !price.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	cents, err := money.ToCents(price)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	return cents, nil
}
