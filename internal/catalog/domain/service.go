package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type CreatePackageRequest struct {
	Code         string          `json:"code" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	DataLimit    string          `json:"data_limit"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	SetupFee     decimal.Decimal `json:"setup_fee"`
}

type ListPackagesRequest struct {
	ActiveOnly bool
}

type Service interface {
	Create(ctx context.Context, req CreatePackageRequest) (Package, error)
	List(ctx context.Context, req ListPackagesRequest) ([]Package, error)
	GetByID(ctx context.Context, id string) (Package, error)
	Archive(ctx context.Context, id string) error
}

var (
	ErrNotFound      = errors.New("package_not_found")
	ErrDuplicateCode = errors.New("duplicate_package_code")
	ErrInvalidID     = errors.New("invalid_package_id")
	ErrInvalidPrice  = errors.New("invalid_package_price")
)
