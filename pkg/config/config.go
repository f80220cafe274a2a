package config

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type     string `mapstructure:"TYPE"`
		Host     string `mapstructure:"HOST"`
		Port     string `mapstructure:"PORT"`
		DBNAME   string `mapstructure:"DBNAME"`
		User     string `mapstructure:"USER"`
		Password string `mapstructure:"PASSWORD"`
		SSLMode  string `mapstructure:"SSLMODE"`
		Timezone string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string        `mapstructure:"ENDPOINT"`
		AccessKey  string        `mapstructure:"ACCESS_KEY"`
		SecretKey  string        `mapstructure:"SECRET_KEY"`
		Secure     bool          `mapstructure:"SECURE"`
		Region     string        `mapstructure:"REGION"`
		BucketName string        `mapstructure:"BUCKET_NAME"`
		PublicURL  string        `mapstructure:"PUBLIC_URL"`
		UploadTTL  time.Duration `mapstructure:"UPLOAD_TTL"`
	} `mapstructure:"MINIO"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Worker struct {
		Concurrency    int    `mapstructure:"CONCURRENCY"`
		ExpireCronSpec string `mapstructure:"EXPIRE_CRON_SPEC"`
	} `mapstructure:"WORKER"`
	Earnings  Earnings  `mapstructure:"EARNINGS"`
	Consensus Consensus `mapstructure:"CONSENSUS"`
	Scoring   Scoring   `mapstructure:"SCORING"`
	Tiers     []Tier    `mapstructure:"TIERS"`
}

// Earnings amounts are decimal strings in USD.
type Earnings struct {
	TrendSubmission string `mapstructure:"TREND_SUBMISSION"`
	Validation      string `mapstructure:"VALIDATION"`
	ApprovalBonus   string `mapstructure:"APPROVAL_BONUS"`
	MinimumCashout  string `mapstructure:"MINIMUM_CASHOUT"`
}

type Consensus struct {
	ApprovalThreshold  int           `mapstructure:"APPROVAL_THRESHOLD"`
	RejectionThreshold int           `mapstructure:"REJECTION_THRESHOLD"`
	VotingWindow       time.Duration `mapstructure:"VOTING_WINDOW"`
}

type ScoringRule struct {
	Expression string `mapstructure:"EXPRESSION"`
	Points     int    `mapstructure:"POINTS"`
}

type Scoring struct {
	Strategy string        `mapstructure:"STRATEGY"`
	Rules    []ScoringRule `mapstructure:"RULES"`
}

type Tier struct {
	Name            string  `mapstructure:"NAME"`
	Multiplier      string  `mapstructure:"MULTIPLIER"`
	DailyCap        string  `mapstructure:"DAILY_CAP"`
	PerTrendCap     string  `mapstructure:"PER_TREND_CAP"`
	CapWindow       string  `mapstructure:"CAP_WINDOW"`
	MinTrends       int64   `mapstructure:"MIN_TRENDS"`
	MinApprovalRate float64 `mapstructure:"MIN_APPROVAL_RATE"`
	MinQualityScore float64 `mapstructure:"MIN_QUALITY_SCORE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "wavesight")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", ":9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "wavesight")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 4*time.Second)
	v.SetDefault("MINIO.REGION", "us-east-1")
	v.SetDefault("MINIO.BUCKET_NAME", "evidence")
	v.SetDefault("MINIO.UPLOAD_TTL", 15*time.Minute)
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("WORKER.EXPIRE_CRON_SPEC", "@every 15m")
	v.SetDefault("EARNINGS.TREND_SUBMISSION", "0.25")
	v.SetDefault("EARNINGS.VALIDATION", "0.02")
	v.SetDefault("EARNINGS.APPROVAL_BONUS", "0.50")
	v.SetDefault("EARNINGS.MINIMUM_CASHOUT", "10.00")
	v.SetDefault("CONSENSUS.APPROVAL_THRESHOLD", 2)
	v.SetDefault("CONSENSUS.REJECTION_THRESHOLD", 2)
	v.SetDefault("CONSENSUS.VOTING_WINDOW", 72*time.Hour)
	v.SetDefault("SCORING.STRATEGY", "heuristic")
}

// Load reads config.yaml from the working directory (optional) with environment overrides.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		zap.L().Info("config file not found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func LoadConfig(p Params) (*Config, error) {
	cfg, err := Load(viper.New())
	if err != nil {
		return nil, err
	}

	if p.Vault != nil {
		if err := overlayVault(context.Background(), p.Vault, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func overlayVault(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return err
	}

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	if v := get("postgres_user"); v != "" {
		cfg.Database.User = v
	}
	if v := get("postgres_password"); v != "" {
		cfg.Database.Password = v
	}
	if v := get("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := get("minio_secret_key"); v != "" {
		cfg.Minio.SecretKey = v
	}
	if v := get("flagsmith_api_key"); v != "" {
		cfg.Flagsmith.ApiKey = v
	}

	return nil
}
