package checkout

import (
	"github.com/smallbiznis/payhook/internal/checkout/domain"
	"github.com/smallbiznis/payhook/internal/checkout/repository"
	"github.com/smallbiznis/payhook/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
)
