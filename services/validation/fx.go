package validation

import (
	"go.uber.org/fx"
)

var Module = fx.Module("validation.service",
	fx.Provide(NewService),
)

var Routes = fx.Module("validation.routes",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var Models = []any{&Vote{}}
