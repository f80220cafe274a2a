package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"wavesight-core/pkg/authz"
	"wavesight-core/pkg/config"
	"wavesight-core/pkg/db"
	"wavesight-core/pkg/featureflags"
	"wavesight-core/pkg/gen"
	"wavesight-core/pkg/hashistack/secretmanager"
	"wavesight-core/pkg/health"
	"wavesight-core/pkg/httpapi"
	"wavesight-core/pkg/logger"
	"wavesight-core/pkg/minio"
	"wavesight-core/pkg/otelcol"
	"wavesight-core/pkg/profiling"
	"wavesight-core/pkg/redis"
	"wavesight-core/pkg/sequence"
	"wavesight-core/pkg/server"
	"wavesight-core/pkg/task"
	"wavesight-core/services/ledger"
	"wavesight-core/services/profile"
	"wavesight-core/services/tier"
	"wavesight-core/services/trend"
	"wavesight-core/services/validation"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		secretmanager.Options(),
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		health.Module,
		authz.Module,
		featureflags.Module,
		minio.Module,
		httpapi.Module,
		tier.Module,
		ledger.Module,
		ledger.Routes,
		trend.Module,
		trend.Routes,
		validation.Module,
		validation.Routes,
		profile.Module,
		profile.Routes,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
