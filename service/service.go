package service

import (
	"boxoffice/clients"
	"boxoffice/config"
	"boxoffice/http"
	"boxoffice/message"
	"boxoffice/postgres"
	"boxoffice/purchase"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	db         *sqlx.DB
	msgRouter  *message.Router
	forwarder  *message.Forwarder
	httpRouter *echo.Echo
	httpAddr   string
}

func New(
	cfg config.Config,
	logger watermill.LoggerAdapter,
	dbConn *sqlx.DB,
	redisClient *redis.Client,
	gateway purchase.PaymentGateway,
	receiptsClient message.ReceiptsClient,
	spreadsheetAppender message.SpreadsheetAppender,
	fileUploader message.FileUploader,
) (*Service, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: redisClient,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}
	decoratedPublisher := log.CorrelationPublisherDecorator{Publisher: publisher}

	eventBus, err := message.NewEventBus(decoratedPublisher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	commandBus, err := message.NewCommandBus(decoratedPublisher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating command bus: %w", err)
	}

	isolation, err := postgres.ParseIsolation(cfg.Purchase.TxIsolation)
	if err != nil {
		return nil, err
	}

	uow, err := postgres.NewUnitOfWork(dbConn, isolation, cfg.Purchase.TxRetryAttempts)
	if err != nil {
		return nil, fmt.Errorf("creating unit of work: %w", err)
	}

	eventRepo := postgres.NewEventRepo(dbConn)
	ticketRepo := postgres.NewTicketRepo(dbConn)
	userRepo := postgres.NewUserRepo(dbConn)

	deps := purchase.Deps{
		Events:         eventRepo,
		Tickets:        ticketRepo,
		Users:          userRepo,
		UoW:            uow,
		Gateway:        gateway,
		Outbox:         message.NewOutboxPublisher(dbConn, logger),
		Commands:       commandBus,
		Currency:       cfg.Payment.Currency,
		MaxPerPurchase: cfg.Purchase.MaxTicketsPerPurchase,
	}
	orchestrator := purchase.NewOrchestrator(deps)
	reconciler := purchase.NewReconciler(deps)

	fwd, err := message.NewForwarder(dbConn, redisClient, logger)
	if err != nil {
		return nil, fmt.Errorf("creating forwarder: %w", err)
	}

	msgRouter, err := message.NewRouter(message.RouterDeps{
		EventRepo:           eventRepo,
		FileUploader:        fileUploader,
		Logger:              logger,
		PaymentReconciler:   reconciler,
		Publisher:           eventBus,
		ReceiptsClient:      receiptsClient,
		RedisClient:         redisClient,
		SpreadsheetAppender: spreadsheetAppender,
		TicketRepo:          ticketRepo,
		UserRepo:            userRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("creating message router: %w", err)
	}

	httpRouter := http.NewRouter(http.RouterDeps{
		Purchaser:   orchestrator,
		Confirmer:   reconciler,
		TicketRepo:  ticketRepo,
		EventRepo:   eventRepo,
		UserRepo:    userRepo,
		Currency:    cfg.Payment.Currency,
		Diagnostics: cfg.Diagnostics,
	})

	return &Service{
		db:         dbConn,
		msgRouter:  msgRouter,
		forwarder:  fwd,
		httpRouter: httpRouter,
		httpAddr:   cfg.HTTPAddr,
	}, nil
}

// NewStripeGateway builds the payment gateway from configuration.
func NewStripeGateway(cfg config.Config) *clients.StripeGateway {
	return clients.NewStripeGateway(clients.StripeConfig{
		SecretKey:                  cfg.Payment.StripeSecretKey,
		APIURL:                     cfg.Payment.StripeAPIURL,
		Currency:                   cfg.Payment.Currency,
		ReturnURL:                  cfg.Payment.ReturnURL,
		Timeout:                    cfg.Payment.Timeout,
		BreakerMaxRequests:         cfg.Breaker.MaxRequests,
		BreakerInterval:            cfg.Breaker.Interval,
		BreakerTimeout:             cfg.Breaker.Timeout,
		BreakerConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
	})
}

func (s Service) Run(ctx context.Context) error {
	if err := postgres.InitialiseDB(ctx, s.db); err != nil {
		return fmt.Errorf("initialising database: %w", err)
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.msgRouter.Run(runCtx); err != nil {
			return fmt.Errorf("running messaging router: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		if err := s.forwarder.Run(runCtx); err != nil {
			return fmt.Errorf("running outbox forwarder: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		// Wait for message router
		<-s.msgRouter.Running()

		logrus.WithField("addr", s.httpAddr).Info("Starting HTTP server...")
		err := s.httpRouter.Start(s.httpAddr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logrus.Info("Shutting down HTTP server...")
		if err := s.httpRouter.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("waiting for shutdown: %w", err)
	}
	logrus.Info("Shutdown complete.")

	return nil
}
