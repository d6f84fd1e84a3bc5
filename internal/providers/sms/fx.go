package sms

import (
	"github.com/openisp/netbill/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if cfg.SMSEndpoint == "" {
		return &NoOpProvider{}
	}
	return NewHTTP(Config{
		Endpoint: cfg.SMSEndpoint,
		APIKey:   cfg.SMSAPIKey,
		Sender:   cfg.SMSSender,
	})
}
