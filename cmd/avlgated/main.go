package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	"github.com/danmuck/avlgate/internal/admin"
	"github.com/danmuck/avlgate/internal/config"
	"github.com/danmuck/avlgate/internal/gateway"
	"github.com/danmuck/avlgate/internal/logging"
	"github.com/danmuck/avlgate/internal/registry"
	"github.com/danmuck/avlgate/internal/sink"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to avlgated config.toml")
	printConfig := pflag.Bool("print-config", false, "print a config template and exit")
	pflag.Parse()

	if *printConfig {
		fmt.Print(config.Template())
		return
	}

	logging.ConfigureRuntime()
	cfg, err := resolveConfig(*configPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avlgated: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("avlgated stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.Logger

	reg, err := registry.Open(ctx, cfg.RegistryURL, cfg.RegistryKey, cfg.Registry())
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	router, err := sink.NewRouter(cfg.Sink(logger))
	if err != nil {
		return err
	}
	defer router.Close()

	cache := tenant.NewCache(quartz.NewReal(), cfg.CacheTTL)
	resolver := tenant.NewResolver(reg, router, cache)
	gw := gateway.NewService(cfg.Gateway(), resolver, logger)
	adminSrv := admin.New(cfg.Admin(), gw, cache, logger)

	logger.Info().
		Str("listen", cfg.ListenAddr).
		Str("admin", cfg.AdminAddr).
		Str("reassembly", string(cfg.Reassembly)).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("avlgated starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.Run(ctx)
	})
	g.Go(func() error {
		return adminSrv.Run(ctx)
	})
	g.Go(func() error {
		return cache.Run(ctx, cfg.CacheSweepInterval)
	})
	err = g.Wait()
	logger.Info().Msg("avlgated shut down")
	return err
}
