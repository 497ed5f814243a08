package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the availability of a product in the catalog
type ProductStatus string

const (
	ProductAvailable   ProductStatus = "Available"
	ProductUnavailable ProductStatus = "Unavailable"
)

// Valid reports whether s is one of the declared product statuses
func (s ProductStatus) Valid() bool {
	return s == ProductAvailable || s == ProductUnavailable
}

// Product represents a product in the catalog
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Category    string          `json:"category" db:"category"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Status      ProductStatus   `json:"status" db:"status"`
	Image       *string         `json:"image" db:"image"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ImagePath returns the stored asset reference or "" when the product has none
func (p *Product) ImagePath() string {
	if p.Image == nil {
		return ""
	}
	return *p.Image
}

// ProductFilter narrows a product listing. Search matches name or category
// case-insensitively; the other fields are exact matches.
type ProductFilter struct {
	Search   *string
	ID       *string
	Status   *ProductStatus
	Category *string
}
