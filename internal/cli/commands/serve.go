package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/cli/config"
	"github.com/conduit-lang/searchy/internal/web/cache"
	"github.com/conduit-lang/searchy/internal/web/middleware"
	"github.com/conduit-lang/searchy/internal/web/profiling"
	"github.com/conduit-lang/searchy/internal/web/ratelimit"
	"github.com/conduit-lang/searchy/internal/web/searchapi"
	"github.com/conduit-lang/searchy/internal/web/server"
)

type serveOptions struct {
	host string
	port int
}

// NewServeCommand creates the serve command
func NewServeCommand(opts *rootOptions) *cobra.Command {
	so := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search HTTP API",
		Long: `Serve the search API on server.host:server.port.

Routes:
  GET  /healthz
  GET  /entities
  POST /search/{entity}
  POST /explain/{entity}
  GET  /debug/pprof/*   (server.profiling)

Searches are rate limited per client IP when redis.url is set, and
results are cached for cache.ttl when it is positive.`,
		Example: `  # Serve on the configured address
  searchy serve

  # Serve on all interfaces, port 9000
  searchy serve --host 0.0.0.0 --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = so.host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = so.port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := a.server(ctx)
			if err != nil {
				_ = a.Close()
				return err
			}
			err = srv.Run(ctx)
			if cerr := a.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&so.host, "host", "", "override server.host")
	cmd.Flags().IntVarP(&so.port, "port", "p", 0, "override server.port")

	return cmd
}

// server connects the backend and rate limiter and builds the HTTP server.
// Connections are closed once the server has drained.
func (a *app) server(ctx context.Context) (*server.Server, error) {
	backend, err := a.backend(ctx)
	if err != nil {
		return nil, err
	}

	client, err := openRedis(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.onClose(func(context.Context) error { return client.Close() })
	}

	var extra []middleware.Middleware
	if client != nil {
		limiter, err := a.limiter(client, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		extra = append(extra, middleware.RateLimit(limiter, a.logger))
	}

	opts := []searchapi.Option{
		searchapi.WithLogger(a.logger),
		searchapi.WithMaxBodyBytes(a.cfg.Server.MaxBodyBytes),
		searchapi.WithTimeout(a.cfg.Server.RequestTimeout),
	}
	if store := a.resultCache(client); store != nil {
		opts = append(opts, searchapi.WithCache(store, a.cfg.Cache.TTL))
	}
	api := searchapi.New(a.service, backend, opts...)

	router := api.Routes(extra...)
	if a.cfg.Server.Profiling {
		profiling.Mount(router, profiling.DefaultPath)
		a.logger.Warn("profiling endpoints enabled", zap.String("path", profiling.DefaultPath))
	}

	cfg := server.DefaultConfig(router)
	cfg.Address = a.cfg.Server.Address()
	if a.cfg.Server.RequestTimeout > cfg.WriteTimeout {
		cfg.WriteTimeout = a.cfg.Server.RequestTimeout
	}

	srv, err := server.New(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	srv.OnShutdown(func(ctx context.Context) error {
		err := a.closeAll(ctx)
		_ = a.logger.Sync()
		return err
	})
	return srv, nil
}

func (a *app) limiter(client *redis.Client, cfg config.RedisConfig) (ratelimit.Limiter, error) {
	rc := ratelimit.DefaultRedisConfig(client)
	rc.Limit = cfg.Limit
	rc.Window = cfg.Window
	limiter, err := ratelimit.NewRedisLimiter(rc)
	if err != nil {
		return nil, err
	}
	a.logger.Info("rate limiting searches",
		zap.Int("limit", cfg.Limit),
		zap.Duration("window", cfg.Window),
	)
	return limiter, nil
}

// resultCache returns the configured result cache, or nil when caching is
// off
func (a *app) resultCache(client *redis.Client) cache.Cache {
	if a.cfg.Cache.TTL <= 0 {
		return nil
	}
	cc := cache.DefaultConfig()
	cc.DefaultTTL = a.cfg.Cache.TTL

	a.logger.Info("caching search results",
		zap.String("store", a.cfg.Cache.Store),
		zap.Duration("ttl", a.cfg.Cache.TTL),
	)
	if a.cfg.Cache.Store == "redis" && client != nil {
		return cache.NewRedisCache(client, cc)
	}
	store := cache.NewMemoryCache(cc)
	a.onClose(func(context.Context) error { return store.Close() })
	return store
}
