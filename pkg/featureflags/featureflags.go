package featureflags

import (
	"context"

	"wavesight-core/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideGate))

// TrendSubmissions gates new trend submissions per spotter.
const TrendSubmissions = "trend_submissions"

// Gate answers per-identity feature checks. Enabled returns fallback when the flag cannot be resolved.
type Gate interface {
	Enabled(ctx context.Context, identity, feature string, fallback bool) bool
}

type gate struct {
	client *flagsmith.Client
}

type GateParams struct {
	fx.In
	Config *config.Config
}

func ProvideGate(p GateParams) Gate {
	if p.Config.Flagsmith.ApiKey == "" {
		return &gate{}
	}

	opts := []flagsmith.Option{flagsmith.WithAnalytics()}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &gate{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (g *gate) Enabled(ctx context.Context, identity, feature string, fallback bool) bool {
	if g.client == nil {
		return fallback
	}

	flags, err := g.client.GetIdentityFlags(identity, nil)
	if err != nil {
		zap.L().Warn("[FeatureFlags] failed to fetch identity flags", zap.String("feature", feature), zap.Error(err))
		return fallback
	}

	enabled, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return fallback
	}
	return enabled
}
