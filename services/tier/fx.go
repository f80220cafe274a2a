package tier

import (
	"wavesight-core/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("tier",
	fx.Provide(Provide),
)

func Provide(cfg *config.Config) (*Table, error) {
	return NewTable(cfg.Tiers)
}
