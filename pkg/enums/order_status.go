package enums

// OrderStatus is the fulfillment stage of an order.
type OrderStatus string

const (
	OrderStatusPlaced            OrderStatus = "Placed"
	OrderStatusPacking           OrderStatus = "Packing"
	OrderStatusShipped           OrderStatus = "Shipped"
	OrderStatusOutForDelivery    OrderStatus = "OutForDelivery"
	OrderStatusDelivered         OrderStatus = "Delivered"
	OrderStatusFinalized         OrderStatus = "Finalized"
	OrderStatusCancelled         OrderStatus = "Cancelled"
	OrderStatusPartiallyRefunded OrderStatus = "PartiallyRefunded"
	OrderStatusRefunded          OrderStatus = "Refunded"
)

var orderStatuses = closed[OrderStatus]{"order status", []OrderStatus{
	OrderStatusPlaced,
	OrderStatusPacking,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusFinalized,
	OrderStatusCancelled,
	OrderStatusPartiallyRefunded,
	OrderStatusRefunded,
}}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFinalized, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse(value)
}
