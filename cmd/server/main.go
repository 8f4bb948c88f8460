package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/config"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
	_ "github.com/cloudagrapher/fancy-planties-sub010/internal/core/kinds" // Register entity kinds
	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/notify"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/sessionstore"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/storage/memstore"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/storage/postgres"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/web"
)

func main() {
	if n, err := config.LoadEnv(".env", ".env.local"); err != nil {
		slog.Error("failed to load env files", "error", err)
		os.Exit(1)
	} else if n == 0 {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	// Background jobs stop when this is cancelled.
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	notifiers := notify.Multi{notify.Log{}}

	var entities core.EntityStore
	switch cfg.Database.Store {
	case config.StorePostgres:
		pool, err := connectPostgres(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(cfg.Database.URL, postgres.Up); err != nil {
				slog.Error("failed to apply migrations", "error", err)
				os.Exit(1)
			}
			slog.Info("migrations applied")
		}

		entities = postgres.NewStore(pool, core.DefaultRegistry)
		notifiers = append(notifiers, postgres.NewAuditLog(pool))
	default:
		slog.Warn("using in-memory entity store, data is lost on restart")
		entities = memstore.New(core.DefaultRegistry, cfg.Matching.Similarity())
	}

	var sessions core.SessionStore
	switch cfg.Session.Store {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		sessions = sessionstore.NewRedisStore(rdb, core.DefaultRegistry, cfg.Session.Lifetime(), sessionstore.Options{
			Prefix:   cfg.Redis.Prefix,
			LockTTL:  cfg.Session.LockTTL,
			LockWait: cfg.Session.LockWait,
		})
		slog.Info("session store ready", "store", "redis", "addr", cfg.Redis.Addr)
	default:
		mem := core.NewMemoryStore(cfg.Session.Lifetime())
		go core.RunJanitor(jobCtx, mem, cfg.Session.SweepInterval)
		sessions = mem
		slog.Info("session store ready", "store", "memory")
	}

	var publisher *notify.KafkaPublisher
	if cfg.Kafka.Enabled {
		publisher = notify.NewKafkaPublisher(notify.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			AssetTopic:   cfg.Kafka.AssetTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			Compression:  cfg.Kafka.Compression,
		})
		notifiers = append(notifiers, publisher)
		slog.Info("kafka publisher enabled", "brokers", strings.Join(cfg.Kafka.Brokers, ","), "topic", cfg.Kafka.Topic)
	}

	service, err := core.NewService(core.Options{
		Registry:      core.DefaultRegistry,
		Sessions:      sessions,
		Entities:      entities,
		Notifier:      notifiers,
		Similarity:    cfg.Matching.Similarity(),
		Parse:         core.ParseOptions{MaxRows: cfg.Import.MaxRows, MaxFileSize: cfg.Import.MaxFileSize},
		Matcher:       cfg.Matching.Matcher(),
		Thresholds:    cfg.Matching.Thresholds(),
		ImportTimeout: cfg.Import.Timeout,
		CommitTimeout: cfg.Import.CommitTimeout,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		QueueWait:     cfg.Import.QueueWait,
		ProgressEvery: cfg.Import.ProgressEvery,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	profiles := core.NewMappingProfiles(core.DefaultRegistry)
	if cfg.Import.MappingsFile != "" {
		if err := profiles.LoadFile(cfg.Import.MappingsFile, core.DefaultRegistry); err != nil {
			slog.Error("failed to load mapping profiles", "file", cfg.Import.MappingsFile, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("entity kinds registered", "count", core.DefaultRegistry.Count(), "mapping_profiles", len(profiles.All()))

	server := web.NewServer(service, profiles, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let imports that are parsing or matching finish.
		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if publisher != nil {
			if err := publisher.Close(); err != nil {
				slog.Warn("kafka publisher close", "error", err)
			}
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
