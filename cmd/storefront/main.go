package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"Storefront/internal/catalog"
	"Storefront/internal/config"
	"Storefront/internal/product"
	"Storefront/internal/session"
	"Storefront/pkg/kit"
)

func main() {
	service := "storefront"

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := kit.NewLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, closeSrc, err := openSource(ctx, cfg, log)
	if err != nil {
		log.Fatal("open seed source failed", zap.Error(err))
	}
	defer closeSrc()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := session.NewMetrics(reg)

	registry := session.NewRegistry(src, log)
	registry.TTL = cfg.SessionTTL
	registry.Metrics = metrics
	registry.Schedules = session.Schedules{
		FlashSale: product.Schedule{DelayMax: cfg.FlashSaleDelayMax, Interval: cfg.FlashSaleInterval},
		Recommend: product.Schedule{DelayMax: cfg.RecommendDelayMax, Interval: cfg.RecommendInterval},
	}
	defer registry.Shutdown()

	go registry.Run(ctx, cfg.SessionSweepInterval)

	s := &session.Server{
		Registry: registry,
		Tokens:   session.NewTokenMaker(cfg.SessionSecret),
		TokenTTL: cfg.SessionTokenTTL,
		Log:      log,
		Metrics:  metrics,
	}

	h := session.NewHandler(s, session.HTTPDeps{
		Log:               log,
		Service:           service,
		Registry:          reg,
		MetricsEnabled:    cfg.MetricsEnabled,
		MetricsToken:      cfg.MetricsToken,
		CORSOrigins:       cfg.CORSOrigins,
		CreateLimitPerMin: cfg.SessionCreatePerMin,
	})

	if err := kit.RunHTTPServer(ctx, ":"+cfg.Port, h, log, cfg.ShutdownTimeout); err != nil {
		log.Error("http server stopped", zap.Error(err))
	}
}

func openSource(ctx context.Context, cfg config.Config, log *zap.Logger) (catalog.Source, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("using built-in seed list")
		return catalog.NewDefaultSource(), func() {}, nil
	}

	db, err := catalog.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("using postgres seed list")
	return catalog.NewPostgresSource(db), func() { _ = db.Close() }, nil
}
