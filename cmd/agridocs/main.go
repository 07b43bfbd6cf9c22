// Package main wires together the document indexer service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mnbossa/agridocs/internal/api"
	"github.com/mnbossa/agridocs/internal/chat"
	"github.com/mnbossa/agridocs/internal/clock/system"
	"github.com/mnbossa/agridocs/internal/config"
	"github.com/mnbossa/agridocs/internal/crawler"
	"github.com/mnbossa/agridocs/internal/docs"
	collyfetcher "github.com/mnbossa/agridocs/internal/fetcher/colly"
	"github.com/mnbossa/agridocs/internal/logging"
	"github.com/mnbossa/agridocs/internal/metrics"
	"github.com/mnbossa/agridocs/internal/scheduler"
	memoryStore "github.com/mnbossa/agridocs/internal/store/memory"
	postgresStore "github.com/mnbossa/agridocs/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	if cfg.Worker.URL == "" || cfg.Worker.Secret == "" {
		// Chat requests will fail with a configuration error until both are set.
		logger.Warn("worker.url and worker.secret should be set via environment")
	}

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store docs.Store
	if cfg.DB.DSN != "" {
		pgStore, err := postgresStore.New(ctx, postgresStore.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
		logger.Info("using postgres document store")
	} else {
		store = memoryStore.NewStore()
		logger.Warn("db.dsn not set, using in-memory document store")
	}

	clock := system.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.ListingTimeout(),
	})
	var limiter *rate.Limiter
	if cfg.Crawler.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Crawler.RatePerSecond), 1)
	}

	crawl := crawler.New(fetcher, store, clock, limiter, crawler.Config{
		ListingURL:     cfg.Listing.URL,
		Limit:          cfg.Crawler.Limit,
		ListingTimeout: cfg.ListingTimeout(),
		DetailTimeout:  cfg.DetailTimeout(),
		Keywords:       cfg.Crawler.DocKeywords,
	}, logger.Named("crawler"))

	sched := scheduler.New(crawl.Run, logger.Named("scheduler"))

	chatSvc := chat.New(
		store,
		clock,
		&http.Client{Timeout: cfg.WorkerTimeout()},
		chat.Config{
			WorkerURL:   cfg.Worker.URL,
			Secret:      cfg.Worker.Secret,
			Model:       cfg.Worker.Model,
			TopKDefault: cfg.Search.TopKDefault,
		},
		logger.Named("chat"),
	)

	apiServer := api.NewServer(store, chatSvc, sched, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("scheduler started")
		sched.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
