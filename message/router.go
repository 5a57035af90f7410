package message

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	EventRepo           EventRepo
	FileUploader        FileUploader
	Logger              watermill.LoggerAdapter
	PaymentReconciler   PaymentReconciler
	Publisher           Publisher
	ReceiptsClient      ReceiptsClient
	RedisClient         *redis.Client
	SpreadsheetAppender SpreadsheetAppender
	TicketRepo          TicketRepo
	UserRepo            UserRepo
}

type Router struct {
	*message.Router
}

func NewRouter(deps RouterDeps) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	addMiddlewares(router, deps.Logger)

	ep, err := cqrs.NewEventProcessorWithConfig(router, eventProcessorConfig(deps.RedisClient, deps.Logger))
	if err != nil {
		return nil, fmt.Errorf("creating event processor: %w", err)
	}

	eventHandlers := []cqrs.EventHandler{
		cqrs.NewEventHandler("issue-receipt", handleIssueReceipt(deps.ReceiptsClient)),
		cqrs.NewEventHandler("append-to-tracker", handleAppendToTracker(deps.SpreadsheetAppender)),
		cqrs.NewEventHandler("print-ticket", handlePrintTicket(
			deps.TicketRepo,
			deps.EventRepo,
			deps.UserRepo,
			deps.FileUploader,
			deps.Publisher,
		)),
		cqrs.NewEventHandler("append-to-refund-tracker", handleAppendToRefundTracker(deps.SpreadsheetAppender)),
	}

	if err := ep.AddHandlers(eventHandlers...); err != nil {
		return nil, fmt.Errorf("adding event handlers: %w", err)
	}

	cp, err := cqrs.NewCommandProcessorWithConfig(router, commandProcessorConfig(deps.RedisClient, deps.Logger))
	if err != nil {
		return nil, fmt.Errorf("creating command processor: %w", err)
	}

	if err := cp.AddHandlers(
		cqrs.NewCommandHandler("reconcile-payment", handleReconcilePayment(deps.PaymentReconciler, deps.Publisher)),
	); err != nil {
		return nil, fmt.Errorf("adding command handlers: %w", err)
	}

	return &Router{router}, nil
}
