package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/cli/config"
	"github.com/conduit-lang/searchy/internal/orm/backend/docbackend"
	"github.com/conduit-lang/searchy/internal/orm/backend/sqlbackend"
	"github.com/conduit-lang/searchy/internal/orm/search"
)

// sqlDriver maps a configured driver name to a registered database/sql
// driver
func sqlDriver(name string) (string, error) {
	switch strings.ToLower(name) {
	case "pgx":
		return "pgx", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", name)
	}
}

// openSQL opens and pings the configured database
func openSQL(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database.url is not set (SEARCHY_DATABASE_URL)")
	}
	driver, err := sqlDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openMongo connects to the configured document database
func openMongo(ctx context.Context, cfg config.DocumentConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("document.uri is not set (SEARCHY_DOCUMENT_URI)")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}
	return client, nil
}

// openRedis connects to the store shared by the rate limiter and the
// result cache. A nil client means neither uses Redis.
func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis.url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// backend connects the configured search backend and registers its
// cleanup on the app
func (a *app) backend(ctx context.Context) (search.Backend, error) {
	registry := a.service.Registry()

	switch a.cfg.Search.Backend {
	case "document":
		client, err := openMongo(ctx, a.cfg.Document)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Disconnect)
		a.logger.Info("connected to document store", zap.String("database", a.cfg.Document.Database))

		finder := docbackend.MongoFinder{DB: client.Database(a.cfg.Document.Database)}
		return docbackend.NewExecutor(finder, registry, a.logger, docbackend.WithClock(a.service.Clock())), nil
	default:
		dialect, err := sqlbackend.ParseDialect(a.cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		db, err := openSQL(ctx, a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return db.Close() })
		a.logger.Info("connected to database", zap.String("driver", a.cfg.Database.Driver))

		return sqlbackend.NewExecutor(db, registry, a.logger,
			sqlbackend.WithDialect(dialect),
			sqlbackend.WithArrayIn(a.cfg.Search.ArrayIn),
			sqlbackend.WithClock(a.service.Clock()),
		), nil
	}
}
