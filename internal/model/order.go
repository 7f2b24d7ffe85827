package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusNew       OrderStatus = "NEW"
	StatusCooking   OrderStatus = "COOKING"
	StatusReady     OrderStatus = "READY"
	StatusCompleted OrderStatus = "COMPLETED"
)

// Statuses in kitchen order.
var Statuses = []OrderStatus{StatusNew, StatusCooking, StatusReady, StatusCompleted}

var ErrInvalidTransition = errors.New("invalid status transition")

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

func (s OrderStatus) Valid() bool {
	return s.rank() >= 0
}

func (s OrderStatus) rank() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

// CheckTransition allows forward moves only. Setting the current status
// again is not a move and is rejected as well.
func CheckTransition(from, to OrderStatus) error {
	if !to.Valid() || to.rank() <= from.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ShortLabel is the compact label used in the status timeline.
func (s OrderStatus) ShortLabel() string {
	switch s {
	case StatusNew:
		return "Received"
	case StatusCooking:
		return "Cooking"
	case StatusReady:
		return "Ready"
	case StatusCompleted:
		return "Completed"
	}
	return string(s)
}

func (s OrderStatus) Title() string {
	switch s {
	case StatusNew:
		return "Order Received"
	case StatusCooking:
		return "Cooking in Progress"
	case StatusReady:
		return "Ready for Pickup"
	case StatusCompleted:
		return "Enjoy Your Meal!"
	}
	return "Order Status Updated"
}

func (s OrderStatus) Description() string {
	switch s {
	case StatusNew:
		return "We've received your order and started preparing it."
	case StatusCooking:
		return "Our chef is preparing your delicious meal with care."
	case StatusReady:
		return "Your order is ready! Please collect it from the counter."
	case StatusCompleted:
		return "Thank you for dining with us. Hope to see you again soon!"
	}
	return fmt.Sprintf("Your order status is now %s.", s)
}

// Totals holds the money values fixed at order placement.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals sums price x quantity and applies taxRate rounded to cents.
func ComputeTotals(items []OrderItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt32(it.Quantity)))
	}
	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

func (o *Order) ApplyTotals(t Totals) {
	o.Subtotal = t.Subtotal
	o.Tax = t.Tax
	o.Total = t.Total
}
