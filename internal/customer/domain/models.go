// Package domain contains persistence models for subscribers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CustomerStatus is the provisioning lifecycle state of a subscriber.
type CustomerStatus string

const (
	CustomerStatusPending      CustomerStatus = "PENDING"
	CustomerStatusActive       CustomerStatus = "ACTIVE"
	CustomerStatusSuspended    CustomerStatus = "SUSPENDED"
	CustomerStatusDisconnected CustomerStatus = "DISCONNECTED"
)

// Valid reports whether s is a known lifecycle state.
func (s CustomerStatus) Valid() bool {
	switch s {
	case CustomerStatusPending, CustomerStatusActive, CustomerStatusSuspended, CustomerStatusDisconnected:
		return true
	}
	return false
}

// Customer is a subscriber account. Balance is the running amount owed;
// positive means the customer owes money. It is only ever adjusted alongside
// the invoice or payment rows that explain the change.
type Customer struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Code      string            `gorm:"not null;uniqueIndex:ux_customers_code" json:"code"`
	Name      string            `gorm:"not null" json:"name"`
	Email     string            `gorm:"not null" json:"email"`
	Phone     string            `gorm:"not null;default:''" json:"phone"`
	Address   string            `gorm:"not null;default:''" json:"address"`
	Status    CustomerStatus    `gorm:"not null;default:'PENDING'" json:"status"`
	PackageID snowflake.ID      `gorm:"not null" json:"package_id"`
	RouterID  *snowflake.ID     `json:"router_id,omitempty"`
	Balance   decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0" json:"balance"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
