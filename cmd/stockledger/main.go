package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efreitasn/stockledger/internal/config"
	"github.com/efreitasn/stockledger/internal/handler"
	"github.com/efreitasn/stockledger/internal/quote"
	"github.com/efreitasn/stockledger/internal/service"
	"github.com/efreitasn/stockledger/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Account store: Postgres when DATABASE_URL is set, memory otherwise.
	var accounts service.AccountStore
	if cfg.DatabaseURL != "" {
		pool, err := store.Connect(ctx, store.DBConfig{
			URL:      cfg.DatabaseURL,
			MinConns: cfg.DBMinConns,
			MaxConns: cfg.DBMaxConns,
		})
		if err != nil {
			logger.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgresStore(pool, cfg.StoreTimeout)
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to migrate schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		accounts = pg
		logger.Info("using postgres store")
	} else {
		accounts = store.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	// Quote source: static file when QUOTE_FILE is set, HTTP provider otherwise.
	var quotes quote.Source
	if cfg.QuoteFile != "" {
		static, err := quote.LoadStaticFile(cfg.QuoteFile)
		if err != nil {
			logger.Error("failed to load quote file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		quotes = static
		logger.Info("serving quotes from file", slog.String("path", cfg.QuoteFile))
	} else {
		quotes = quote.NewClient(cfg.QuoteAPIURL, cfg.QuoteAPIKey,
			quote.WithTimeout(cfg.QuoteTimeout),
			quote.WithRetries(cfg.QuoteMaxRetries, 200*time.Millisecond),
			quote.WithLogger(logger),
		)
	}

	ledgerSvc := service.NewLedgerService(accounts, quotes, logger,
		service.WithInitialCash(cfg.InitialCash),
	)

	router := handler.NewRouter(ledgerSvc, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: drain in-flight requests before the pool closes.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}
