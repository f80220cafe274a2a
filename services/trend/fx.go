package trend

import (
	"go.uber.org/fx"
)

var Module = fx.Module("trend.service",
	fx.Provide(NewScorer, NewService),
)

var Routes = fx.Module("trend.routes",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var Worker = fx.Module("trend.worker",
	fx.Provide(fx.Annotate(expirePeriodic, fx.ResultTags(`group:"periodic"`))),
	fx.Invoke(registerTaskHandlers),
)

var Models = []any{&Trend{}}
