package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/db"
	"wavesight-core/pkg/hashistack/secretmanager"
	"wavesight-core/pkg/logger"
	"wavesight-core/services/ledger"
	"wavesight-core/services/profile"
	"wavesight-core/services/trend"
	"wavesight-core/services/validation"
)

func models() []any {
	var all []any
	all = append(all, ledger.Models...)
	all = append(all, trend.Models...)
	all = append(all, validation.Models...)
	all = append(all, profile.Models...)
	return all
}

func migrate(lc fx.Lifecycle, sd fx.Shutdowner, conn *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := conn.WithContext(ctx).AutoMigrate(models()...); err != nil {
				return err
			}
			zap.L().Info("[Migrate] schema up to date", zap.Int("tables", len(models())))
			return sd.Shutdown()
		},
	})
}

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		secretmanager.Options(),
		db.Module,
		fx.Invoke(migrate),
		fx.NopLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}
