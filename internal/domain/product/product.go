package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/topup-engine/internal/domain/apperr"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = apperr.New(apperr.KindNotFound, "product not found")

// Product is a top-up denomination of a game in the catalog.
type Product struct {
	ID       int64
	GameID   int64
	Name     string
	Price    decimal.Decimal
	IsActive bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
}
