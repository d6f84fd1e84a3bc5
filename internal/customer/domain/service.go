package domain

import (
	"context"
	"errors"

	"github.com/openisp/netbill/pkg/db/pagination"
)

var (
	ErrNotFound          = errors.New("customer_not_found")
	ErrDuplicateCode     = errors.New("customer_code_already_exists")
	ErrInvalidID         = errors.New("invalid_customer_id")
	ErrInvalidPackage    = errors.New("invalid_package_id")
	ErrPackageNotFound   = errors.New("package_not_found")
	ErrInvalidStatus     = errors.New("invalid_customer_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
)

// OnboardCustomerRequest creates a subscriber and, when the plan carries a
// setup fee, issues the setup invoice in the same transaction.
type OnboardCustomerRequest struct {
	Code      string         `json:"code" binding:"required"`
	Name      string         `json:"name" binding:"required"`
	Email     string         `json:"email" binding:"required,email"`
	Phone     string         `json:"phone"`
	Address   string         `json:"address"`
	PackageID string         `json:"package_id" binding:"required"`
	RouterID  *string        `json:"router_id"`
	Metadata  map[string]any `json:"metadata"`
}

type ListCustomersRequest struct {
	pagination.Pagination
	Status    *CustomerStatus `form:"status"`
	PackageID *string         `form:"package_id"`
	Search    *string         `form:"q"`
}

type ChangeStatusRequest struct {
	Status CustomerStatus `json:"status" binding:"required"`
}

type Service interface {
	Onboard(ctx context.Context, req OnboardCustomerRequest) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, *pagination.PageInfo, error)
	GetByID(ctx context.Context, id string) (*Customer, error)
	ChangeStatus(ctx context.Context, id string, req ChangeStatusRequest) (*Customer, error)
}
