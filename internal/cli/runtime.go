package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Ash-Blanc/migru/internal/config"
	"github.com/Ash-Blanc/migru/internal/db"
	"github.com/Ash-Blanc/migru/internal/events"
	"github.com/Ash-Blanc/migru/internal/insighttext"
	"github.com/Ash-Blanc/migru/internal/security"
	"github.com/Ash-Blanc/migru/internal/services"
	"github.com/Ash-Blanc/migru/internal/streams"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type publisherCloser interface {
	services.Publisher
	Close() error
}

// appRuntime owns every long-lived resource one command needs.
type appRuntime struct {
	cfg       config.Config
	logger    *slog.Logger
	tagger    *security.UserTagger
	database  *gorm.DB
	redis     *redis.Client
	publisher publisherCloser
	catalog   *insighttext.Catalog
	analytics *services.Analytics
}

func openRuntime(ctx context.Context, cfg config.Config, logOutput io.Writer) (*appRuntime, error) {
	logger := cfg.Logging.NewLogger(logOutput)
	rt := &appRuntime{
		cfg:    cfg,
		logger: logger,
		tagger: security.NewUserTagger(cfg.Server.SecretKey),
	}

	database, err := db.OpenSQLite(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	rt.database = database
	repos := db.NewRepositories(database)

	var eventLog services.EventLog = repos.Events
	if cfg.Storage.EventLog == config.EventLogRedis {
		client, err := streams.Connect(ctx, cfg.Storage.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis init failed: %w", err)
		}
		rt.redis = client
		eventLog = streams.NewRedisEventLog(client, cfg.Storage.RedisPrefix)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("kafka init failed: %w", err)
		}
		rt.publisher = publisher
	} else {
		rt.publisher = events.NewLogPublisher(logger)
	}

	catalog, err := insighttext.NewEmbeddedCatalog(cfg.Server.DefaultLanguage)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("insight text init failed: %w", err)
	}
	rt.catalog = catalog

	rt.analytics = services.NewAnalytics(cfg.ToAnalytics(), services.Dependencies{
		Log:          eventLog,
		Buckets:      repos.Buckets,
		Correlations: repos.Correlations,
		Triggers:     repos.Triggers,
		Ledger:       repos.Ledger,
		Renderer:     insighttext.NewRenderer(catalog),
		Publisher:    rt.publisher,
		Logger:       logger,
		Tagger:       rt.tagger,
	})
	return rt, nil
}

func (rt *appRuntime) Close() error {
	var errs []error
	if rt.analytics != nil {
		rt.analytics.Close()
	}
	if rt.publisher != nil {
		if err := rt.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if rt.database != nil {
		if err := db.Close(rt.database); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
