package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Broadcast channels
const (
	ChannelOrders   = "orders"
	ChannelProducts = "products"
)

// Event names as seen by subscribed browsers
const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
)

// Event is a domain event waiting in the outbox to be broadcast
type Event struct {
	ID              int64      `json:"id" db:"id"`
	Channel         string     `json:"channel" db:"channel"`
	Name            string     `json:"event" db:"event"`
	Payload         []byte     `json:"payload" db:"payload"`
	ExcludeSocketID string     `json:"exclude_socket_id,omitempty" db:"exclude_socket_id"`
	Attempts        int        `json:"attempts" db:"attempts"`
	LastError       *string    `json:"last_error,omitempty" db:"last_error"`
	AvailableAt     time.Time  `json:"available_at" db:"available_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	PublishedAt     *time.Time `json:"published_at,omitempty" db:"published_at"`
	FailedAt        *time.Time `json:"failed_at,omitempty" db:"failed_at"`
}

// OrderCreatedPayload is broadcast on the orders channel after checkout
type OrderCreatedPayload struct {
	OrderID    string          `json:"orderId"`
	Customer   string          `json:"customer"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     OrderStatus     `json:"status"`
	Image      string          `json:"image"`
}

// OrderUpdatedPayload is broadcast when an order changes status
type OrderUpdatedPayload struct {
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
}

// ProductCreatedPayload is broadcast on the products channel after creation
type ProductCreatedPayload struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Status    ProductStatus   `json:"status"`
}

// ProductUpdatedPayload carries every mutable product field
type ProductUpdatedPayload struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Status      ProductStatus   `json:"status"`
	Image       *string         `json:"image"`
}

// ProductDeletedPayload only identifies the removed product
type ProductDeletedPayload struct {
	ProductID string `json:"productId"`
}
