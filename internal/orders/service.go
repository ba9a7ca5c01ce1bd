package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const (
	reasonPaymentFailed        = "payment_failed"
	reasonPaymentSessionFailed = "payment_session_failed"
	reasonStaffCancel          = "cancelled by staff"
	reasonCustomerCancel       = "cancelled by customer"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockKeeper is the slice of the inventory service the lifecycle drives.
type StockKeeper interface {
	DecrementForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef) (bool, error)
	RevertForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef, reason string) (bool, error)
}

type catalogReader interface {
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
}

type couponResolver interface {
	Resolve(ctx context.Context, code string, subtotalCents int64) (*coupons.Discount, error)
}

type sessionCreator interface {
	CreateSession(ctx context.Context, order *models.Order) (*payments.Session, error)
}

// Service owns the order lifecycle.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlacedOrder, error)
	ConfirmPayment(ctx context.Context, signal payments.Signal) (*models.Order, error)
	TransitionStatus(ctx context.Context, input TransitionInput) (*models.Order, error)
	CancelOrder(ctx context.Context, input CancelInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
}

// ServiceParams bundles the order service dependencies. Coupons and Gateway
// are optional: without them coupon codes and card payments are refused.
type ServiceParams struct {
	Repo             Repository
	TX               txRunner
	Outbox           outboxPublisher
	Inventory        StockKeeper
	Catalog          catalogReader
	Coupons          couponResolver
	Gateway          sessionCreator
	Metrics          *metrics.OrderMetrics
	Logger           *logger.Logger
	DeliveryFeeCents int64
	Currency         string
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	inventory   StockKeeper
	catalog     catalogReader
	coupons     couponResolver
	gateway     sessionCreator
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	deliveryFee int64
	currency    string
	now         func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TX == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DeliveryFeeCents < 0 {
		return nil, fmt.Errorf("delivery fee must not be negative")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	return &service{
		repo:        params.Repo,
		tx:          params.TX,
		outbox:      params.Outbox,
		inventory:   params.Inventory,
		catalog:     params.Catalog,
		coupons:     params.Coupons,
		gateway:     params.Gateway,
		metrics:     params.Metrics,
		logg:        params.Logger,
		deliveryFee: params.DeliveryFeeCents,
		currency:    currency,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlacedOrder, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if input.PaymentMethod.SettlesOnline() && s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card payments are not available")
	}
	if missing := input.Address.Missing(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	items, err := mergeItems(input.Items)
	if err != nil {
		return nil, err
	}

	lines, subtotal, err := s.priceLines(ctx, items)
	if err != nil {
		return nil, err
	}

	var discount int64
	var couponCode *string
	if code := strings.TrimSpace(input.CouponCode); code != "" {
		if s.coupons == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupons are not available")
		}
		resolved, err := s.coupons.Resolve(ctx, code, subtotal)
		if err != nil {
			return nil, err
		}
		discount = resolved.DiscountCents
		couponCode = &resolved.Code
	}

	amount := subtotal + s.deliveryFee - discount
	if input.Amount != nil {
		sent, err := money.ToCents(*input.Amount)
		if err != nil || sent != amount {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match order total").
				WithDetails(map[string]any{"expected": money.Format(amount)})
		}
	}

	order := &models.Order{
		ID:               uuid.New(),
		UserID:           input.UserID,
		Items:            lines,
		SubtotalCents:    subtotal,
		DeliveryFeeCents: s.deliveryFee,
		DiscountCents:    discount,
		AmountCents:      amount,
		Currency:         s.currency,
		CouponCode:       couponCode,
		Address:          input.Address,
		PaymentMethod:    input.PaymentMethod,
		Status:           enums.OrderStatusPlaced,
	}
	actor := &outbox.ActorRef{UserID: input.UserID, Role: enums.UserRoleCustomer.String()}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		return s.emit(ctx, tx, enums.EventOrderCreated, order.ID, actor, payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			AmountCents:   order.AmountCents,
			Currency:      order.Currency,
			PaymentMethod: order.PaymentMethod,
			ItemCount:     len(order.Items),
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition("new", enums.OrderStatusPlaced.String())

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"amount_cents":   order.AmountCents,
		"payment_method": order.PaymentMethod,
	}), "order placed")

	placed := &PlacedOrder{Order: order}
	if !order.PaymentMethod.SettlesOnline() {
		return placed, nil
	}

	session, err := s.gateway.CreateSession(ctx, order)
	if err != nil {
		s.logg.Error(ctx, "checkout session failed, cancelling order", err)
		if _, cancelErr := s.cancel(ctx, order.ID, nil, reasonPaymentSessionFailed, nil); cancelErr != nil {
			s.logg.Error(ctx, "cancel order after session failure", cancelErr)
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeGateway) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create checkout session")
	}
	if err := s.repo.SetCheckoutSession(ctx, order.ID, session.ID); err != nil {
		// Without the session id the reconcile job cannot find this order.
		s.logg.Error(s.logg.WithField(ctx, "session_id", session.ID), "store checkout session failed, cancelling order", err)
		if _, cancelErr := s.cancel(ctx, order.ID, nil, reasonPaymentSessionFailed, nil); cancelErr != nil {
			s.logg.Error(ctx, "cancel order after session store failure", cancelErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store checkout session")
	}
	order.CheckoutSessionID = &session.ID
	placed.SessionURL = session.URL
	return placed, nil
}

// ConfirmPayment applies a payment signal. It is the only path that consumes
// stock, and it is safe to call any number of times for the same order.
func (s *service) ConfirmPayment(ctx context.Context, signal payments.Signal) (*models.Order, error) {
	if signal.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	s.metrics.IncPaymentSignal(signal.Source, string(signal.Outcome))
	ctx = s.logg.WithOrderID(ctx, signal.OrderID.String())
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"source":     signal.Source,
		"outcome":    signal.Outcome,
		"session_id": signal.SessionID,
	})

	switch signal.Outcome {
	case payments.OutcomeSucceeded:
		var order *models.Order
		var changed bool
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			order, changed, err = s.confirmPaidTx(ctx, tx, signal.OrderID, signal.Source, nil)
			return err
		})
		if err != nil {
			return nil, err
		}
		if changed {
			s.logg.Info(logCtx, "payment confirmed")
		}
		return order, nil

	case payments.OutcomeFailed:
		order, err := s.GetOrder(ctx, signal.OrderID)
		if err != nil {
			return nil, err
		}
		if order.Payment || order.Status != enums.OrderStatusPlaced {
			s.logg.Warn(logCtx, "payment failure ignored for paid or progressed order")
			return order, nil
		}
		cancelled, err := s.cancel(ctx, order.ID, nil, reasonPaymentFailed, nil)
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return s.GetOrder(ctx, signal.OrderID)
		}
		return cancelled, err

	default:
		order, err := s.GetOrder(ctx, signal.OrderID)
		if err != nil {
			return nil, err
		}
		s.logg.Info(logCtx, "ambiguous payment signal deferred to reconciliation")
		return order, nil
	}
}

// confirmPaidTx is the body of a successful ConfirmPayment, shared with the
// cash-on-delivery step of TransitionStatus. It records the payment and
// consumes stock unless the order was cancelled first, in which case the
// payment needs a refund. The returned bool is false when the order was
// already paid.
func (s *service) confirmPaidTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, source string, actor *outbox.ActorRef) (*models.Order, bool, error) {
	repo := s.repo.WithTx(tx)
	order, err := s.loadOrderForUpdate(ctx, repo, orderID)
	if err != nil {
		return nil, false, err
	}
	if order.Payment {
		return order, false, nil
	}

	paidAt := s.now()
	marked, err := repo.MarkPaid(ctx, order.ID, paidAt)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}
	if !marked {
		order, err = s.loadOrder(ctx, repo, orderID)
		return order, false, err
	}
	// The update above holds the row, so this read sees the status any
	// concurrent cancel committed.
	order, err = s.loadOrder(ctx, repo, orderID)
	if err != nil {
		return nil, false, err
	}

	refundRequired := order.Status == enums.OrderStatusCancelled
	adjusted := false
	if !refundRequired {
		adjusted, err = s.inventory.DecrementForOrder(ctx, tx, order, actor)
		if err != nil {
			return nil, false, err
		}
	} else {
		s.logg.Warn(ctx, "payment received for cancelled order, refund required")
	}

	err = s.emit(ctx, tx, enums.EventOrderPaid, order.ID, actor, payloads.OrderPaidEvent{
		OrderID:           order.ID,
		UserID:            order.UserID,
		AmountCents:       order.AmountCents,
		Source:            source,
		PaidAt:            paidAt,
		InventoryAdjusted: adjusted,
		RefundRequired:    refundRequired,
	})
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

func (s *service) TransitionStatus(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	target, err := enums.ParseOrderStatus(strings.TrimSpace(input.Target))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": input.Target})
	}
	if target == enums.OrderStatusCancelled {
		return s.CancelOrder(ctx, CancelInput{
			OrderID: input.OrderID,
			Actor:   input.Actor,
			Staff:   true,
			Reason:  reasonStaffCancel,
		})
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	var order *models.Order
	var from enums.OrderStatus
	var changed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.loadOrderForUpdate(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		from = order.Status

		updates := map[string]any{"status": target}
		if target == enums.OrderStatusShipped {
			if input.TrackingCode != nil {
				updates["tracking_code"] = *input.TrackingCode
			}
			if input.Carrier != nil {
				updates["carrier"] = *input.Carrier
			}
		}

		if from == target {
			if target != enums.OrderStatusShipped || len(updates) == 1 {
				return nil
			}
		} else {
			if err := checkTransition(from, target); err != nil {
				return err
			}
			if err := s.checkPaymentGate(order, target); err != nil {
				return err
			}
		}

		ok, err := repo.UpdateStatus(ctx, order.ID, from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
				WithDetails(map[string]any{"from": from, "to": target})
		}
		changed = true
		order.Status = target
		if target == enums.OrderStatusShipped {
			if input.TrackingCode != nil {
				order.TrackingCode = input.TrackingCode
			}
			if input.Carrier != nil {
				order.Carrier = input.Carrier
			}
		}

		err = s.emit(ctx, tx, enums.EventOrderStateChanged, order.ID, input.Actor, payloads.OrderStateChangedEvent{
			OrderID:      order.ID,
			From:         from,
			To:           target,
			TrackingCode: order.TrackingCode,
			Carrier:      order.Carrier,
			ChangedAt:    s.now(),
		})
		if err != nil {
			return err
		}

		if target == enums.OrderStatusDelivered && order.PaymentMethod == enums.PaymentMethodCOD && !order.Payment {
			s.metrics.IncPaymentSignal(payments.SourceCashOnDelivery, string(payments.OutcomeSucceeded))
			order, _, err = s.confirmPaidTx(ctx, tx, order.ID, payments.SourceCashOnDelivery, input.Actor)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed && from != target {
		s.metrics.IncTransition(from.String(), target.String())
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from": from, "to": target}), "order status changed")
	}
	return order, nil
}

// checkPaymentGate keeps unpaid card orders from shipping and unpaid orders
// of any kind from being refunded.
func (s *service) checkPaymentGate(order *models.Order, target enums.OrderStatus) error {
	if order.Payment {
		return nil
	}
	if isRefund(target) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been paid").
			WithDetails(map[string]any{"to": target})
	}
	if order.PaymentMethod.SettlesOnline() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is awaiting payment").
			WithDetails(map[string]any{"to": target})
	}
	return nil
}

func (s *service) CancelOrder(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Staff && (input.Actor == nil || input.Actor.UserID == uuid.Nil) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = reasonCustomerCancel
		if input.Staff {
			reason = reasonStaffCancel
		}
	}

	check := func(order *models.Order) error {
		if input.Staff {
			return nil
		}
		if order.UserID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if order.Status != enums.OrderStatusPlaced {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}
		return nil
	}
	return s.cancel(ctx, input.OrderID, input.Actor, reason, check)
}

// cancel moves the order to Cancelled and then puts back any stock a payment
// consumed. Both decisions read the row after the status update claimed it.
func (s *service) cancel(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef, reason string, check func(*models.Order) error) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var order *models.Order
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.loadOrderForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if check != nil {
			if err := check(order); err != nil {
				return err
			}
		}
		if err := checkTransition(from, enums.OrderStatusCancelled); err != nil {
			return err
		}

		ok, err := repo.UpdateStatus(ctx, order.ID, from, map[string]any{
			"status":        enums.OrderStatusCancelled,
			"cancel_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
				WithDetails(map[string]any{"from": from, "to": enums.OrderStatusCancelled})
		}
		order, err = s.loadOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}

		reverted, err := s.inventory.RevertForOrder(ctx, tx, order, actor, reason)
		if err != nil {
			return err
		}

		return s.emit(ctx, tx, enums.EventOrderCanceled, order.ID, actor, payloads.OrderCanceledEvent{
			OrderID:        order.ID,
			UserID:         order.UserID,
			PreviousStatus: from,
			Reason:         reason,
			StockReverted:  reverted,
			RefundRequired: order.Payment,
			CanceledAt:     s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(from.String(), enums.OrderStatusCancelled.String())
	s.logg.Info(s.logg.WithField(ctx, "reason", reason), "order cancelled")
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.loadOrder(ctx, s.repo, orderID)
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	filter.Limit = params.Limit

	rows, err := s.repo.List(ctx, filter, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	rows, next := pagination.Trim(rows, params.Limit, orderCursor)
	return &OrderList{Orders: rows, NextCursor: next}, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.ListOrders(ctx, ListFilter{UserID: &userID}, params)
}

func (s *service) loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	return findOrder(repo.FindByID(ctx, orderID))
}

func (s *service) loadOrderForUpdate(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	return findOrder(repo.FindByIDForUpdate(ctx, orderID))
}

func findOrder(order *models.Order, err error) (*models.Order, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID uuid.UUID, actor *outbox.ActorRef, data any) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("queue %s event", eventType))
	}
	return nil
}
