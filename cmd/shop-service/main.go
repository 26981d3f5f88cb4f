package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vasiliy-maslov/dojo-shop/internal/cart"
	"github.com/vasiliy-maslov/dojo-shop/internal/catalog"
	"github.com/vasiliy-maslov/dojo-shop/internal/checkout"
	"github.com/vasiliy-maslov/dojo-shop/internal/config"
	"github.com/vasiliy-maslov/dojo-shop/internal/db"
	shopHttp "github.com/vasiliy-maslov/dojo-shop/internal/handler/http"
	"github.com/vasiliy-maslov/dojo-shop/internal/storage"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "shop-service").Logger()

	log.Info().Msg("Shop service starting...")

	// Money goes over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log.Debug().Str("cart_storage", cfg.Cart.Storage).Str("port", cfg.App.Port).Msg("Configuration loaded")

	shippingRules, err := cfg.ShippingRules()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read shipping rules")
	}

	ctx := context.Background()

	dbPool, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	kv, closeKV, err := newCartStorage(ctx, cfg, dbPool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up cart storage")
	}

	carts := cart.NewRegistry(kv, cfg.Cart.KeyPrefix, cfg.Cart.IdleTTL)
	products := catalog.NewRepository(dbPool.Pool)
	payment := checkout.NewHTTPPaymentClient(cfg.Payment.CheckoutURL, nil)
	sessions := checkout.NewSessions(carts, payment, checkout.Settings{
		TenantID:    cfg.Payment.TenantID,
		RedirectURL: cfg.Payment.RedirectURL,
		Shipping:    shippingRules,
	})

	cartHandler := shopHttp.NewCartHandler(carts, products, shippingRules)
	checkoutHandler := shopHttp.NewCheckoutHandler(sessions)
	productHandler := shopHttp.NewProductHandler(products, time.Now)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	productHandler.RegisterRoutes(router)
	router.Group(func(r chi.Router) {
		r.Use(shopHttp.CartSession)
		cartHandler.RegisterRoutes(r)
		checkoutHandler.RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      otelhttp.NewHandler(router, "shop-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	if err := closeKV(); err != nil {
		log.Error().Err(err).Msg("Failed to close cart storage")
	}
	dbPool.Close()

	log.Info().Msg("Shop service stopped gracefully")
}

// newCartStorage builds the key-value backend selected by CART_STORAGE.
func newCartStorage(ctx context.Context, cfg *config.Config, dbPool *db.Postgres) (cart.KeyValueStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Cart.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStore(), noop, nil
	case config.StorageFile:
		fileStore, err := storage.NewFileStore(cfg.Cart.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return fileStore, noop, nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Addr, err)
		}
		return storage.NewRedisStore(client), client.Close, nil
	case config.StoragePostgres:
		return storage.NewPostgresStore(dbPool.Pool), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown cart storage %q", cfg.Cart.Storage)
	}
}
