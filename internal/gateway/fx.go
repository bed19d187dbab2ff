package gateway

import (
	"fmt"

	"github.com/smallbiznis/panelbilling/internal/config"
	"github.com/smallbiznis/panelbilling/internal/gateway/adapters"
	"github.com/smallbiznis/panelbilling/internal/gateway/adapters/stripe"
	"github.com/smallbiznis/panelbilling/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(func() (*adapters.Registry, error) {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
)

// NewGateway builds the adapter for the configured provider. An unknown
// GATEWAY_PROVIDER stops startup.
func NewGateway(cfg config.Config, registry *adapters.Registry, log *zap.Logger) (domain.Gateway, error) {
	gw, err := registry.NewAdapter(cfg.Gateway.Provider, domain.AdapterConfig{
		APIKey:    cfg.Gateway.APIKey,
		AccountID: cfg.Gateway.AccountID,
		BaseURL:   cfg.Gateway.BaseURL,
		Timeout:   cfg.Gateway.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("GATEWAY_PROVIDER: %w", err)
	}
	log.Info("payment gateway configured", zap.String("provider", gw.Provider()))
	return gw, nil
}
