package enums

import "fmt"

// OrderStatus tracks the lifecycle of an escrow order.
type OrderStatus string

const (
	OrderStatusInitiated OrderStatus = "initiated"
	OrderStatusRequested OrderStatus = "requested"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusDisputed  OrderStatus = "disputed"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusReleased  OrderStatus = "released"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusDeclined  OrderStatus = "declined"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusFailed    OrderStatus = "failed"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusInitiated,
	OrderStatusRequested,
	OrderStatusPaid,
	OrderStatusDisputed,
	OrderStatusFulfilled,
	OrderStatusReleased,
	OrderStatusCancelled,
	OrderStatusDeclined,
	OrderStatusExpired,
	OrderStatusFailed,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are expected.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusReleased, OrderStatusCancelled, OrderStatusDeclined, OrderStatusExpired, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
