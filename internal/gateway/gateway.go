// Package gateway abstracts the online payment processors used for card
// payments and their refunds.
package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrProviderNotFound = errors.New("payment_provider_not_found")

// Confirmation is the processor's answer to a charge or refund attempt.
// Reference is the processor-side transaction identifier.
type Confirmation struct {
	Reference string
	Approved  bool
	Message   string
}

type ChargeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	InvoiceID   string
	CustomerID  string
	Description string
}

type Gateway interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (Confirmation, error)
	Refund(ctx context.Context, reference string, amount decimal.Decimal, currency string) (Confirmation, error)
}

// Registry resolves gateways by provider name, case-insensitive.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	registry := &Registry{gateways: map[string]Gateway{}}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		provider := strings.ToLower(strings.TrimSpace(gw.Provider()))
		if provider == "" {
			continue
		}
		registry.gateways[provider] = gw
	}
	return registry
}

func (r *Registry) ForProvider(provider string) (Gateway, error) {
	if r == nil {
		return nil, ErrProviderNotFound
	}
	gw, ok := r.gateways[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return gw, nil
}
