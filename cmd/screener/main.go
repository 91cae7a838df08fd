// Command screener runs one full daily screening pass and exits.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"github.com/toshi0771/stock-screener-jp/internal/cache"
	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/notify"
	"github.com/toshi0771/stock-screener-jp/internal/pipeline"
	"github.com/toshi0771/stock-screener-jp/internal/quotesource"
	"github.com/toshi0771/stock-screener-jp/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	pool, err := pgxpool.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()

	notifier, err := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if err != nil {
		logger.Fatal("build notifier", zap.Error(err))
	}

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		logger.Fatal("open cache", zap.Error(err))
	}

	tokens := quotesource.NewTokenSource(
		func(ctx context.Context) (string, time.Time, error) {
			return cfg.QuoteSourceCredential, time.Now().Add(24 * time.Hour), nil
		},
		redisClient, logger,
	)
	source := quotesource.NewHTTPQuoteSource(quotesource.HTTPQuoteSourceConfig{
		BaseURL:        os.Getenv("QUOTE_SOURCE_BASE_URL"),
		Credential:     cfg.QuoteSourceCredential,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
	}, tokens, logger)

	resultSink := sink.NewPostgresSink(pool)

	p := pipeline.New(cfg, source, c, resultSink, notifier, logger)
	if err := p.Run(ctx); err != nil {
		logger.Fatal("pipeline run failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zapLevel
	return zapCfg.Build()
}
