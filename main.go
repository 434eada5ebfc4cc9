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

	"github.com/Eursukkul/checkout-service/config"
	"github.com/Eursukkul/checkout-service/internal/clock"
	"github.com/Eursukkul/checkout-service/internal/consumer"
	"github.com/Eursukkul/checkout-service/internal/handler"
	"github.com/Eursukkul/checkout-service/internal/metrics"
	"github.com/Eursukkul/checkout-service/internal/middleware"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/Eursukkul/checkout-service/internal/service"
	"github.com/Eursukkul/checkout-service/internal/ticketcode"
	"github.com/Eursukkul/checkout-service/pkg/billing"
	"github.com/Eursukkul/checkout-service/pkg/database"
	"github.com/Eursukkul/checkout-service/pkg/payment"
	"github.com/Eursukkul/checkout-service/pkg/rabbitmq"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before the process environment")
	port := pflag.String("port", "", "HTTP port (overrides SERVER_PORT)")
	migrateOnly := pflag.Bool("migrate-only", false, "run database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.ServerPort = *port
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *migrateOnly); err != nil {
		logger.Fatal("checkout-service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, migrateOnly bool) error {
	db, err := database.NewPostgresDB(cfg.DSN())
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	if migrateOnly {
		logger.Info("migrations applied")
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	codec, err := ticketcode.NewCodec(cfg.TicketSigningSecret)
	if err != nil {
		return fmt.Errorf("ticket codec: %w", err)
	}

	payments := payment.NewClient(payment.Config{
		BaseURL:    cfg.PaymentAPIURL,
		SecretKey:  cfg.PaymentSecretKey,
		Timeout:    cfg.ExternalTimeout,
		MaxRetries: cfg.ExternalMaxRetries,
	})

	catalog, err := billing.LoadCatalog(cfg.BillingPlansFile)
	if err != nil {
		return fmt.Errorf("billing plans: %w", err)
	}
	var subscriptions billing.SubscriptionGetter
	if cfg.BillingAPIURL != "" {
		subscriptions = billing.NewClient(billing.ClientConfig{
			BaseURL:    cfg.BillingAPIURL,
			APIKey:     cfg.BillingAPIKey,
			Timeout:    cfg.ExternalTimeout,
			MaxRetries: cfg.ExternalMaxRetries,
		})
	} else {
		logger.Warn("BILLING_API_URL not set, every fee uses the fallback plan", zap.String("plan", catalog.Fallback))
	}
	rates := billing.NewResolver(subscriptions, catalog, logger.Named("billing"))

	// Repositories
	tx := repository.NewTransactor(db)
	eventRepo := repository.NewEventRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	// Messaging is optional; without it domain events are dropped.
	var publisher service.EventPublisher
	var closers []func()
	if cfg.RabbitURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitURL, logger)
		if err != nil {
			return err
		}
		closers = append(closers, p.Close)
		publisher = p
	} else {
		logger.Warn("RABBITMQ_URL not set, domain events will not be published")
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Services
	eventSvc := service.NewEventService(tx, eventRepo)
	checkoutSvc := service.NewCheckoutService(
		service.CheckoutConfig{AppURL: cfg.AppURL, Currency: cfg.Currency},
		tx, eventRepo, orderRepo, payments, m, logger,
	)
	remediationSvc := service.NewRemediationService(orderRepo, payments, m, logger)
	webhookSvc := service.NewWebhookService(
		service.WebhookConfig{Secret: cfg.PaymentWebhookSecret, Tolerance: cfg.PaymentWebhookTolerance},
		service.WebhookDeps{
			Orders:      orderRepo,
			Events:      eventRepo,
			Webhooks:    webhookRepo,
			States:      service.NewOrderStateMachine(tx, orderRepo),
			Ledger:      service.NewInventoryLedger(tx, inventoryRepo, orderRepo),
			Issuer:      service.NewTicketIssuer(ticketRepo, orderRepo, codec, clock.NewSystem(), m),
			Fees:        service.NewFeeCalculator(feeRepo, rates, m),
			Publisher:   publisher,
			Remediation: remediationSvc,
			Clock:       clock.NewSystem(),
			Metrics:     m,
			Logger:      logger,
		},
	)
	orderSvc := service.NewOrderService(orderRepo, ticketRepo, feeRepo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sweeper: finish line items a failed webhook left behind
	if cfg.SweepInterval > 0 {
		service.NewSweeper(service.SweepConfig{
			Interval: cfg.SweepInterval,
			Grace:    cfg.SweepGrace,
			Batch:    cfg.SweepBatch,
		}, orderRepo, webhookSvc, remediationSvc, clock.NewSystem(), m, logger).Start(ctx)
	} else {
		logger.Warn("SWEEP_INTERVAL is 0, stalled line items need manual remediation")
	}

	if cfg.RabbitURL != "" {
		// Catalog sync: keep events and tiers in step with the catalog owner
		catalogMQ, err := rabbitmq.NewConsumer(cfg.RabbitURL, rabbitmq.ConsumerConfig{
			Exchange:    rabbitmq.CatalogExchange,
			Queue:       "checkout-service.catalog",
			BindingKeys: []string{"event.*"},
			Prefetch:    10,
		}, logger)
		if err != nil {
			return err
		}
		closers = append(closers, catalogMQ.Close)
		msgs, err := catalogMQ.Consume()
		if err != nil {
			return err
		}
		consumer.NewCatalogConsumer(eventSvc, m, logger).Start(ctx, msgs)

		remediationMQ, err := rabbitmq.NewConsumer(cfg.RabbitURL, rabbitmq.ConsumerConfig{
			Exchange:    rabbitmq.CheckoutExchange,
			Queue:       "checkout-service.remediation",
			BindingKeys: []string{service.RoutingOversoldConflict, service.RoutingLatePayment},
			Prefetch:    1,
		}, logger)
		if err != nil {
			return err
		}
		closers = append(closers, remediationMQ.Close)
		remediations, err := remediationMQ.Consume()
		if err != nil {
			return err
		}
		consumer.NewRemediationConsumer(remediationSvc, m, logger).Start(ctx, remediations)
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.Validator = handler.NewValidator()
	e.Use(echoMw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echoMw.Recover())
	e.Use(echoMw.BodyLimit("1M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "checkout-service"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	handler.NewCheckoutHandler(checkoutSvc, webhookSvc, logger).RegisterRoutes(e)
	handler.NewEventHandler(eventSvc).RegisterRoutes(e.Group("/events"))
	handler.NewOrderHandler(orderSvc).RegisterRoutes(e.Group("/orders"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("checkout-service starting", zap.String("port", cfg.ServerPort))
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
