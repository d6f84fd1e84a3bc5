// Package sms sends short text notifications through a generic HTTP gateway.
package sms

import "context"

type Provider interface {
	Send(ctx context.Context, phone string, message string) error
}

// NoOpProvider is wired when no gateway endpoint is configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, phone string, message string) error {
	return nil
}
