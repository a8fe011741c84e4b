package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"barberq/internal/broadcast"
	"barberq/internal/catalog"
	"barberq/internal/config"
	"barberq/internal/httpapi"
	"barberq/internal/hub"
	"barberq/internal/logging"
	"barberq/internal/queue"
	"barberq/internal/store/postgres"
	"barberq/internal/telemetry"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	shutdownTelemetry := telemetry.Setup("barberq", log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	ticketStore := postgres.NewStore(pool)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
	}

	serviceCatalog := catalog.New(ticketStore, rdb, log, catalog.Options{TTL: cfg.CatalogCacheTTL})

	coordinator := queue.NewCoordinator(queue.CoordinatorOptions{
		MailboxSize:   cfg.CoordinatorMailboxSize,
		SubmitTimeout: cfg.CoordinatorSubmitTimeout,
	})
	defer coordinator.Close()

	var bus *broadcast.RedisBus
	var publisher queue.Publisher
	if rdb != nil {
		bus = broadcast.NewRedisBus(rdb, log)
		publisher = bus
	}

	queueService := queue.NewService(ticketStore, serviceCatalog, coordinator, publisher, log, queue.ServiceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := hub.New(log)
	if bus != nil {
		go wsHub.Run(ctx, bus.Subscribe(ctx))
	}

	handler := httpapi.NewHandler(queueService, ticketStore)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:   cfg.RateLimitPerMinute,
		IPBurst:       cfg.RateLimitBurst,
		ShopPerMinute: cfg.ShopRateLimitPerMinute,
		ShopBurst:     cfg.ShopRateLimitBurst,
	})

	apiMux := http.NewServeMux()
	apiMux.Handle("/metrics", expvar.Handler())
	apiMux.Handle("/", handler.Routes())
	wrapped := otelhttp.NewHandler(httpapi.LoggingMiddleware(log, limiter.Middleware(apiMux)), "barberq")

	// The websocket route skips the middleware chain: the upgrade needs the
	// raw response writer.
	root := http.NewServeMux()
	root.HandleFunc("/ws", wsHub.ServeWS)
	root.Handle("/", wrapped)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("barberq listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	if cfg.NoShowGrace > 0 && cfg.NoShowInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.NoShowInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sweepCtx, sweepCancel := context.WithTimeout(ctx, cfg.NoShowInterval)
					swept, err := queueService.SweepNoShows(sweepCtx, cfg.NoShowGrace, cfg.NoShowBatchSize)
					sweepCancel()
					if err != nil {
						log.Error("no-show sweep failed", "error", err)
						continue
					}
					if swept > 0 {
						log.Info("no-show sweep", "swept", swept)
					}
				}
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
