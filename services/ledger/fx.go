package ledger

import (
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
)

var Routes = fx.Module("ledger.routes",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

// Models are migrated at startup.
var Models = []any{&Account{}, &Entry{}}
