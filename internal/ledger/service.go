package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Recorder materializes ledger entries delivered through the outbox.
type Recorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, sourceEventID uuid.UUID, entry payloads.InventoryLedgerEntry) (bool, error)
}

// Service records and queries inventory transactions.
type Service interface {
	Recorder
	List(ctx context.Context, filter Filter, params pagination.Params) (*EntryList, error)
}

// Filter narrows a ledger query. Zero values mean "any".
type Filter struct {
	ProductID *uuid.UUID
	Size      string
	OrderID   *uuid.UUID
	Kind      enums.InventoryTransactionKind
	Limit     int
}

// EntryList is one page of ledger rows, newest first.
type EntryList struct {
	Entries    []models.InventoryTransaction `json:"entries"`
	NextCursor string                        `json:"nextCursor,omitempty"`
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// RecordTx writes entry inside tx. Redelivery of the same entry is a no-op and
// reports false.
func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, sourceEventID uuid.UUID, entry payloads.InventoryLedgerEntry) (bool, error) {
	if entry.EntryID == uuid.Nil {
		return false, fmt.Errorf("entry id is required")
	}
	if entry.ProductID == uuid.Nil || entry.VariantID == uuid.Nil {
		return false, fmt.Errorf("product and variant ids are required")
	}
	if strings.TrimSpace(entry.Size) == "" {
		return false, fmt.Errorf("size is required")
	}
	if !entry.Kind.IsValid() {
		return false, fmt.Errorf("invalid ledger entry kind %q", entry.Kind)
	}
	if entry.QuantityDelta == 0 {
		return false, fmt.Errorf("quantity delta must not be zero")
	}

	row := &models.InventoryTransaction{
		ID:            entry.EntryID,
		ProductID:     entry.ProductID,
		VariantID:     entry.VariantID,
		Size:          entry.Size,
		QuantityDelta: entry.QuantityDelta,
		StockAfter:    entry.StockAfter,
		Kind:          entry.Kind,
		OrderID:       entry.OrderID,
		ActorID:       entry.ActorID,
		Reason:        entry.Reason,
		SourceEventID: sourceEventID,
		OccurredAt:    entry.OccurredAt.UTC(),
	}
	return s.repo.WithTx(tx).Insert(ctx, row)
}

func (s *service) List(ctx context.Context, filter Filter, params pagination.Params) (*EntryList, error) {
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger entry kind")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.Size = strings.TrimSpace(filter.Size)
	filter.Limit = pagination.NormalizeLimit(params.Limit)

	rows, err := s.repo.List(ctx, filter, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	page, next := pagination.Trim(rows, filter.Limit, func(row models.InventoryTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &EntryList{Entries: page, NextCursor: next}, nil
}
