package webhook

import (
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/webhook/adapters"
	"github.com/smallbiznis/payhook/internal/webhook/adapters/card"
	"github.com/smallbiznis/payhook/internal/webhook/adapters/onramp"
	"github.com/smallbiznis/payhook/internal/webhook/idempotency"
	webhookservice "github.com/smallbiznis/payhook/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		resolver := card.NewHTTPResolver(card.ResolverConfig{
			APIKey:     cfg.Card.APIKey,
			APIBaseURL: cfg.Card.APIBaseURL,
			Timeout:    cfg.Card.LookupTimeout,
		})
		return adapters.NewRegistry(
			card.NewAdapter(card.Config{
				WebhookSecret: cfg.Card.WebhookSecret,
				Resolver:      resolver,
			}),
			onramp.NewAdapter(onramp.Config{Secret: cfg.Onramp.Secret}),
		)
	}),
	fx.Provide(idempotency.New),
	fx.Provide(webhookservice.NewService),
)
