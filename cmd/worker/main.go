package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/db"
	"wavesight-core/pkg/gen"
	"wavesight-core/pkg/hashistack/secretmanager"
	"wavesight-core/pkg/logger"
	"wavesight-core/pkg/otelcol"
	"wavesight-core/pkg/redis"
	"wavesight-core/pkg/sequence"
	"wavesight-core/pkg/task"
	"wavesight-core/services/ledger"
	"wavesight-core/services/profile"
	"wavesight-core/services/tier"
	"wavesight-core/services/trend"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		secretmanager.Options(),
		otelcol.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		task.Server,
		task.Scheduler,
		tier.Module,
		ledger.Module,
		trend.Module,
		trend.Worker,
		profile.Module,
		profile.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
