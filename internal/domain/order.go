package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order or one of its lines
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCanceled   OrderStatus = "canceled"
)

// OrderStatuses lists every declared status in lifecycle order
var OrderStatuses = []OrderStatus{OrderPending, OrderProcessing, OrderCompleted, OrderCanceled}

// transitions is the order state machine:
// pending -> processing -> completed, pending -> canceled.
var transitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCanceled},
	OrderProcessing: {OrderCompleted},
}

// Valid reports whether s is one of the declared order statuses
func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is a guest's purchase. It always has at least one line item.
type Order struct {
	ID          string          `json:"id" db:"id"`
	GuestUserID string          `json:"guest_user_id" db:"guest_user_id"`
	TotalPrice  decimal.Decimal `json:"total_price" db:"total_price"`
	Status      OrderStatus     `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`

	Lines []*OrderedProduct `json:"lines,omitempty" db:"-"`
}

// OrderedProduct is one product-and-quantity line of an order
type OrderedProduct struct {
	ID                  string      `json:"id" db:"id"`
	OrderID             string      `json:"order_id" db:"order_id"`
	ProductID           string      `json:"product_id" db:"product_id"`
	Quantity            int         `json:"quantity" db:"quantity"`
	Status              OrderStatus `json:"status" db:"status"`
	ReasonOfCancelation *string     `json:"reason_of_cancelation" db:"reason_of_cancelation"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// OrderLine is a requested line at checkout
type OrderLine struct {
	ProductID string
	Quantity  int
}

// OrderSummary is the denormalized row shown on admin order pages
type OrderSummary struct {
	OrderID    string          `json:"orderId"`
	Customer   string          `json:"customer"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// MergeLines collapses repeated products into one line each, summing
// quantities and keeping first-seen order. Quantities below 1 count as 1.
func MergeLines(lines []OrderLine) []OrderLine {
	index := make(map[string]int, len(lines))
	merged := make([]OrderLine, 0, len(lines))
	for _, l := range lines {
		qty := l.Quantity
		if qty < 1 {
			qty = 1
		}
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += qty
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, OrderLine{ProductID: l.ProductID, Quantity: qty})
	}
	return merged
}
