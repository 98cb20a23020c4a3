package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	maxProductNameLength = 200
	maxProductQuantity   = 1_000_000_000
	maxProductPrice      = 1_000_000_000

	// MaxListLimit bounds product listings.
	MaxListLimit = 100
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidProductName = errors.New("invalid product name")
	ErrInvalidPrice       = errors.New("invalid product price")
	ErrInvalidQuantity    = errors.New("invalid product quantity")
	ErrInvalidUUID        = errors.New("invalid uuid")
)

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Quantity    int64     `json:"quantity"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProductSnapshot is the audited view of a product; timestamps are left out so they never
// show up as changes.
type ProductSnapshot struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
}

func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		Name:        p.Name,
		Description: p.Description,
		Quantity:    p.Quantity,
		Price:       p.Price,
	}
}

type CreateProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
}

type UpdateProductRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Quantity    *int64   `json:"quantity,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

func ValidateProductName(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > maxProductNameLength {
		return ErrInvalidProductName
	}
	return nil
}

func ValidateProductPrice(price float64) error {
	if price < 0 || price > maxProductPrice {
		return ErrInvalidPrice
	}
	return nil
}

func ValidateProductQuantity(quantity int64) error {
	if quantity < 0 || quantity > maxProductQuantity {
		return ErrInvalidQuantity
	}
	return nil
}
