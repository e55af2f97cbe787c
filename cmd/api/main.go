package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/safar/rain-market/internal/api"
	"github.com/safar/rain-market/internal/config"
	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/gateway"
	"github.com/safar/rain-market/internal/logging"
	"github.com/safar/rain-market/internal/notify"
	"github.com/safar/rain-market/internal/pricing"
	"github.com/safar/rain-market/internal/service"
	"github.com/safar/rain-market/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	st := store.New(db)
	gw := newGateway(cfg, logger)
	notifier := notify.Multi{notify.NewLogger(logger), notify.NewOutbox(st)}

	router := api.NewRouter(cfg.Environment, api.Services{
		Orders: service.NewOrderService(st, pricing.NewEngine(st), notifier, logger,
			cfg.Payment.Currency, cfg.Display.Rates),
		Checkout: service.NewCheckoutService(st, gw, notifier, logger, service.CheckoutConfig{
			Currency:   cfg.Payment.Currency,
			Timeout:    cfg.Payment.GatewayTimeout,
			SuccessURL: cfg.Payment.SuccessURL,
			CancelURL:  cfg.Payment.CancelURL,
		}),
		Reconciler:   service.NewReconciler(st, gw, notifier, logger),
		Offers:       service.NewOfferService(st, logger, cfg.Payment.Currency),
		Applications: service.NewApplicationService(st, logger),
		Reports:      service.NewReportService(st, logger, cfg.Payment.Currency),
	}, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("payment_provider", gw.Name()),
			zap.String("currency", cfg.Payment.Currency))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newGateway(cfg *config.Config, logger *zap.Logger) gateway.Gateway {
	if cfg.Payment.Provider == "stripe" {
		return gateway.NewStripe(gateway.StripeConfig{
			APIKey:        cfg.Payment.StripeAPIKey,
			WebhookSecret: cfg.Payment.WebhookSecret,
			Timeout:       cfg.Payment.GatewayTimeout,
		}, logger)
	}
	return gateway.NewMock(cfg.Payment.WebhookSecret)
}
