package gateway

import (
	"github.com/openisp/netbill/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(NewRegistryFromConfig),
)

func NewRegistryFromConfig(cfg config.Config) *Registry {
	var gateways []Gateway
	if cfg.StripeSecretKey != "" {
		gateways = append(gateways, NewStripe(cfg.StripeSecretKey))
	}
	return NewRegistry(gateways...)
}
