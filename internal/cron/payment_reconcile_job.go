package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const (
	defaultPendingAfter   = 15 * time.Minute
	defaultReconcileBatch = 100
)

type pendingPaymentLister interface {
	ListPendingPayments(ctx context.Context, createdBefore time.Time, after *pagination.Cursor, limit int) ([]models.Order, error)
}

type sessionSignalFetcher interface {
	FetchSignal(ctx context.Context, orderID uuid.UUID, sessionID, source string) (payments.Signal, error)
}

type PaymentReconcileJobParams struct {
	Logger       *logger.Logger
	Orders       pendingPaymentLister
	Gateway      sessionSignalFetcher
	Confirmer    payments.Confirmer
	PendingAfter time.Duration
	BatchSize    int
}

// NewPaymentReconcileJob asks Stripe about card orders whose webhook never
// arrived and feeds the answer through the normal confirmation path.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Confirmer == nil {
		return nil, fmt.Errorf("payment confirmer required")
	}
	pendingAfter := params.PendingAfter
	if pendingAfter <= 0 {
		pendingAfter = defaultPendingAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &paymentReconcileJob{
		logg:         params.Logger,
		orders:       params.Orders,
		gateway:      params.Gateway,
		confirmer:    params.Confirmer,
		pendingAfter: pendingAfter,
		batch:        batch,
		now:          time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg         *logger.Logger
	orders       pendingPaymentLister
	gateway      sessionSignalFetcher
	confirmer    payments.Confirmer
	pendingAfter time.Duration
	batch        int
	now          func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

// Run walks every pending order in pages of batch, so orders that keep
// failing or stay pending cannot hide newer ones. A failing order does not
// stop the rest; all failures are returned together.
func (j *paymentReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingAfter)

	var (
		errs    error
		after   *pagination.Cursor
		scanned int
		settled int
	)
	for {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		page, err := j.orders.ListPendingPayments(ctx, cutoff, after, j.batch)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list pending payments: %w", err))
			break
		}
		scanned += len(page)
		for i := range page {
			if j.settle(ctx, page[i], &errs) {
				settled++
			}
		}
		if len(page) < j.batch {
			break
		}
		last := page[len(page)-1]
		after = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"scanned":  scanned,
		"settled":  settled,
		"failures": len(multierr.Errors(errs)),
	}), "payment reconciliation pass complete")
	return errs
}

// settle asks Stripe about one order and applies a final answer.
func (j *paymentReconcileJob) settle(ctx context.Context, order models.Order, errs *error) bool {
	if order.CheckoutSessionID == nil {
		return false
	}
	ctx = j.logg.WithOrderID(ctx, order.ID.String())
	signal, err := j.gateway.FetchSignal(ctx, order.ID, *order.CheckoutSessionID, payments.SourceReconcile)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("order %s: %w", order.ID, err))
		return false
	}
	if signal.Outcome == payments.OutcomePending {
		return false
	}
	if _, err := j.confirmer.ConfirmPayment(ctx, signal); err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("order %s: %w", order.ID, err))
		return false
	}
	return true
}
