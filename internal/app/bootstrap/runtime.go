package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-rx/internal/assets"
	appconfig "github.com/wolfman30/clinic-rx/internal/config"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPool opens the Postgres pool, or returns nil when DATABASE_URL is unset
// so the service falls back to in-memory repositories.
func BuildPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}
	logger.Info("postgres connected")
	return pool, nil
}

// BuildAssetStore wires the S3 bucket used for logos and prescription images.
// A nil store means uploads are disabled and only data URLs and HTTP refs load.
func BuildAssetStore(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) *assets.Store {
	if cfg == nil || strings.TrimSpace(cfg.AssetsBucket) == "" {
		return nil
	}
	client := s3.NewFromConfig(awsCfg, s3Options(cfg))
	presigner := s3.NewPresignClient(client)
	return assets.NewStore(client, cfg.AssetsBucket, logger).WithPresigner(presigner)
}

// s3Options points the client at a local endpoint (LocalStack, MinIO) when
// AWS_ENDPOINT_OVERRIDE is set.
func s3Options(cfg *appconfig.Config) func(*s3.Options) {
	return func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}
}
