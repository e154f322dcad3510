package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/checkout"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
	"github.com/example/ec-storefront/internal/infrastructure/outbox"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/payment"
	"github.com/example/ec-storefront/internal/ratelimit"
	"github.com/example/ec-storefront/internal/session"
	"github.com/example/ec-storefront/internal/telemetry"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// orders pending longer than this are reported by the relay
const stalePendingAge = time.Hour

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireSessionSecret()
	}
	if err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Storefront Checkout")
	log.Println("[API] ========================================")
	log.Printf("[API] Order store: %s", cfg.Store.Backend)
	log.Printf("[API] Kafka: %v (topic %s)", cfg.Kafka.Brokers, cfg.Kafka.Topic)
	log.Printf("[API] PayPal mode: %s", cfg.PayPal.Mode)
	log.Printf("[API] Rate limit: %d/%s (%s)", cfg.RateLimit.Requests, cfg.RateLimit.Interval, cfg.RateLimit.Backend)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		log.Fatalf("[API] Failed to initialize tracing: %v", err)
	}

	// Initialize PostgreSQL connection
	db, err := store.ConnectPostgres(cfg.Store.DatabaseURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	if err := store.RunMigrations(db); err != nil {
		log.Fatalf("[API] Failed to run migrations: %v", err)
	}
	log.Println("[API] Connected to PostgreSQL, schema up to date")

	// Initialize stores
	catalogStore := store.NewPostgresCatalogStore(db)
	userStore := store.NewPostgresUserStore(db)
	orderStore, err := store.OpenOrderBackend(ctx, cfg.Store, db)
	if err != nil {
		log.Fatalf("[API] Failed to open order store: %v", err)
	}

	// Payment gateway behind a circuit breaker
	paypalGateway, err := payment.NewPayPalGateway(cfg.PayPal.ClientID, cfg.PayPal.Secret, cfg.PayPal.Mode)
	if err != nil {
		log.Fatalf("[API] Failed to initialize PayPal client: %v", err)
	}
	gateway := payment.NewBreakerGateway(paypalGateway, payment.DefaultBreakerSettings())

	// Sessions
	codec, err := session.NewCodec(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("[API] Failed to initialize sessions: %v", err)
	}
	sessions := session.NewManager(codec, cfg.CookieSecure)

	limiter, closeLimiter := newLimiter(cfg.RateLimit)
	defer closeLimiter()

	// Outbox relay
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()
	relay := outbox.NewRelay(orderStore, producer, cfg.Kafka.RelayBatchSize, cfg.Kafka.RelayInterval).
		WithStaleCheck(orderStore, stalePendingAge)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()

	// Initialize API
	checkoutSvc := checkout.NewService(catalogStore, gateway, orderStore)
	router := api.NewRouter(api.RouterConfig{
		Handlers:         api.NewHandlers(catalogStore, orderStore, sessions),
		AuthHandlers:     api.NewAuthHandlers(userStore, sessions),
		CheckoutHandlers: api.NewCheckoutHandlers(checkoutSvc),
		Sessions:         sessions,
		CheckoutLimiter:  limiter,
		TrustProxy:       cfg.TrustProxy,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "storefront"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}

	cancel() // stop the relay after in-flight requests finish
	wg.Wait()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("[API] Tracing shutdown error: %v", err)
	}
}

func newLimiter(cfg config.RateLimitConfig) (ratelimit.Limiter, func()) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Printf("[API] Rate limiting via Redis at %s", cfg.RedisAddr)
		return ratelimit.NewRedisLimiter(client, "ratelimit:checkout:", cfg.Requests, cfg.Interval), func() { client.Close() }
	}

	l, err := ratelimit.NewMemoryLimiter(cfg.Requests, cfg.Interval, cfg.MaxClients)
	if err != nil {
		log.Fatalf("[API] Failed to initialize rate limiter: %v", err)
	}
	return l, func() {}
}
