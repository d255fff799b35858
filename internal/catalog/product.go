// Package catalog defines the product record and the stock store the
// reconciliation engine runs against.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

// Product is a catalog entry. Stock is the only field reconciliation mutates.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Color       *string         `json:"color,omitempty"`
	Stock       int             `json:"stock"`
}

// Validate enforces the invariants every persisted product must hold.
func (p Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price %s is negative", ErrInvalidProduct, p.Price)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock %d is negative", ErrInvalidProduct, p.Stock)
	}
	return nil
}

// Repository is the per-record persistence surface.
type Repository interface {
	FindByID(ctx context.Context, id int64) (Product, error)
	FindAll(ctx context.Context) ([]Product, error)
	Save(ctx context.Context, p Product) (Product, error)
	DeleteByID(ctx context.Context, id int64) error
}

// Store is a Repository that can also serialize writers per product.
//
// Lock runs fn with exclusive access to the listed products: no other Lock
// call touching any of those ids runs concurrently. The Repository handed to
// fn must be used for every read and write inside the critical section.
type Store interface {
	Repository
	Lock(ctx context.Context, ids []int64, fn func(ctx context.Context, repo Repository) error) error
}
