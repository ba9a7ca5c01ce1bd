package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// transitions is the fulfillment state machine. Terminal states have no entry.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPlaced: {
		enums.OrderStatusPacking,
		enums.OrderStatusCancelled,
		enums.OrderStatusPartiallyRefunded,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusPacking: {
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
		enums.OrderStatusPartiallyRefunded,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusCancelled,
		enums.OrderStatusPartiallyRefunded,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
		enums.OrderStatusPartiallyRefunded,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusFinalized,
		enums.OrderStatusCancelled,
		enums.OrderStatusPartiallyRefunded,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusPartiallyRefunded: {
		enums.OrderStatusRefunded,
		enums.OrderStatusFinalized,
		enums.OrderStatusCancelled,
	},
}

// isRefund reports whether status moves money back to the customer.
func isRefund(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPartiallyRefunded || status == enums.OrderStatusRefunded
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from status.
func NextStatuses(status enums.OrderStatus) []enums.OrderStatus {
	next := transitions[status]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

func checkTransition(from, to enums.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal status transition").
		WithDetails(map[string]any{"from": from, "to": to})
}
