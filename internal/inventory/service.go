package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the only writer of variant stock.
type Service interface {
	DecrementForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef) (bool, error)
	RevertForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef, reason string) (bool, error)
	ManualAdjust(ctx context.Context, input ManualAdjustInput) (*models.ProductVariant, error)
	ManualAdjustTx(ctx context.Context, tx *gorm.DB, input ManualAdjustInput) (*models.ProductVariant, error)
}

// ManualAdjustInput is a staff restock or removal for one variant.
type ManualAdjustInput struct {
	ProductID uuid.UUID
	Size      string
	Delta     int
	Actor     *outbox.ActorRef
	Reason    string
}

// ServiceParams bundles the inventory service dependencies.
type ServiceParams struct {
	Repo    Repository
	TX      txRunner
	Outbox  outboxPublisher
	Metrics *metrics.OrderMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
}

// NewService validates dependencies and returns the inventory service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.TX == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.TX,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// DecrementForOrder consumes stock for every line item of order. It must run
// inside the caller's transaction; the returned bool is false when another
// caller already adjusted the order, in which case nothing is written.
func (s *service) DecrementForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)

	claimed, err := repo.ClaimOrderAdjustment(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim inventory adjustment")
	}
	if !claimed {
		return false, nil
	}
	order.InventoryAdjusted = true

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	for _, item := range order.Items {
		variant, ok, err := repo.ApplyDelta(ctx, item.ProductID, item.Size, -item.Quantity, true)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement variant stock")
		}
		if !ok {
			s.metrics.IncMissingVariant()
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"product_id": item.ProductID.String(),
				"size":       item.Size,
				"quantity":   item.Quantity,
			}), "variant missing at decrement, line skipped")
			continue
		}
		if variant.Stock < 0 {
			s.metrics.IncOversold()
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"variant_id": variant.ID.String(),
				"stock":      variant.Stock,
			}), "variant oversold")
		}
		orderID := order.ID
		if err := s.record(ctx, tx, variant, -item.Quantity, enums.InventoryKindOrderDecrement, &orderID, actor, ""); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RevertForOrder puts back what DecrementForOrder consumed. It is a no-op for
// orders that were never adjusted or were already reverted.
func (s *service) RevertForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef, reason string) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)

	claimed, err := repo.ClaimOrderRevert(ctx, order.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim inventory revert")
	}
	if !claimed {
		return false, nil
	}
	order.InventoryReverted = true

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	for _, item := range order.Items {
		variant, ok, err := repo.ApplyDelta(ctx, item.ProductID, item.Size, item.Quantity, true)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore variant stock")
		}
		if !ok {
			s.metrics.IncMissingVariant()
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"product_id": item.ProductID.String(),
				"size":       item.Size,
			}), "variant missing at revert, line skipped")
			continue
		}
		orderID := order.ID
		if err := s.record(ctx, tx, variant, item.Quantity, enums.InventoryKindRevert, &orderID, actor, reason); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *service) ManualAdjust(ctx context.Context, input ManualAdjustInput) (*models.ProductVariant, error) {
	var variant *models.ProductVariant
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		variant, err = s.ManualAdjustTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return variant, nil
}

// ManualAdjustTx applies a signed staff adjustment inside tx. Unlike order
// decrements it never lets stock go below zero.
func (s *service) ManualAdjustTx(ctx context.Context, tx *gorm.DB, input ManualAdjustInput) (*models.ProductVariant, error) {
	size := strings.TrimSpace(input.Size)
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if size == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be zero")
	}
	repo := s.repo.WithTx(tx)

	variant, ok, err := repo.ApplyDelta(ctx, input.ProductID, size, input.Delta, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjust variant stock")
	}
	if !ok {
		current, err := repo.FindVariant(ctx, input.ProductID, size)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("variant")
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would make stock negative").
			WithDetails(map[string]any{"stock": current.Stock, "quantity": input.Delta})
	}

	if err := s.record(ctx, tx, variant, input.Delta, enums.InventoryKindManualAdjust, nil, input.Actor, input.Reason); err != nil {
		return nil, err
	}
	return variant, nil
}

// record queues the ledger entry in the same transaction as the stock change;
// the outbox publisher materializes it into inventory_transactions.
func (s *service) record(ctx context.Context, tx *gorm.DB, variant *models.ProductVariant, delta int, kind enums.InventoryTransactionKind, orderID *uuid.UUID, actor *outbox.ActorRef, reason string) error {
	now := time.Now().UTC()
	entry := payloads.InventoryLedgerEntry{
		EntryID:       uuid.New(),
		ProductID:     variant.ProductID,
		VariantID:     variant.ID,
		Size:          variant.Size,
		QuantityDelta: delta,
		StockAfter:    variant.Stock,
		Kind:          kind,
		OrderID:       orderID,
		OccurredAt:    now,
	}
	if actor != nil && actor.UserID != uuid.Nil {
		actorID := actor.UserID
		entry.ActorID = &actorID
	}
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		entry.Reason = &trimmed
	}

	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryLedgerEntry,
		AggregateType: enums.AggregateInventoryVariant,
		AggregateID:   variant.ID,
		Actor:         actor,
		Data:          entry,
		OccurredAt:    now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue ledger entry")
	}
	s.metrics.IncStockMovement(kind.String())
	return nil
}
