package profile

import (
	"wavesight-core/services/trend"

	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(
		NewService,
		func(s *Service) trend.TierResolver { return s },
	),
)

var Routes = fx.Module("profile.routes",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var Worker = fx.Module("profile.worker",
	fx.Invoke(registerTaskHandlers),
)

var Models = []any{&Profile{}}
