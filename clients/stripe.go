package clients

import (
	"boxoffice/entity"
	"boxoffice/monitoring"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API base URL. Empty means production.
	APIURL    string
	Currency  string
	ReturnURL string
	Timeout   time.Duration

	BreakerMaxRequests         uint32
	BreakerInterval            time.Duration
	BreakerTimeout             time.Duration
	BreakerConsecutiveFailures uint32
}

// UnrecognizedStatusError is returned for payment intent states this
// service does not model. They are never treated as success or failure.
type UnrecognizedStatusError struct {
	IntentID string
	Status   string
}

func (e UnrecognizedStatusError) Error() string {
	return fmt.Sprintf("payment intent %s has unrecognized status %q", e.IntentID, e.Status)
}

func (e UnrecognizedStatusError) Unwrap() error {
	return entity.ErrUnrecognizedChargeStatus
}

type StripeGateway struct {
	api     *client.API
	breaker *gobreaker.CircuitBreaker
	config  StripeConfig
}

func NewStripeGateway(config StripeConfig) *StripeGateway {
	backendConfig := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logrus.StandardLogger(),
	}
	if config.APIURL != "" {
		backendConfig.URL = stripe.String(config.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: config.BreakerMaxRequests,
		Interval:    config.BreakerInterval,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isCallerError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Payment gateway circuit breaker changed state")
		},
	})

	return &StripeGateway{
		api:     client.New(config.SecretKey, &stripe.Backends{API: backend}),
		breaker: breaker,
		config:  config,
	}
}

func (g *StripeGateway) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	customerID, err := call(ctx, g, "find_or_create_customer", func(ctx context.Context) (string, error) {
		listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
		listParams.Limit = stripe.Int64(1)
		listParams.Context = ctx

		iter := g.api.Customers.List(listParams)
		if iter.Next() {
			return iter.Customer().ID, nil
		}
		if err := iter.Err(); err != nil {
			return "", fmt.Errorf("listing customers: %w", err)
		}

		params := &stripe.CustomerParams{
			Email: stripe.String(email),
			Name:  stripe.String(name),
		}
		params.Context = ctx

		customer, err := g.api.Customers.New(params)
		if err != nil {
			return "", fmt.Errorf("creating customer: %w", err)
		}
		return customer.ID, nil
	})
	if err != nil {
		return "", translateError(err)
	}
	return customerID, nil
}

// CreateAndConfirmCharge creates a payment intent and confirms it in the
// same request. A decline is a result, not an error.
func (g *StripeGateway) CreateAndConfirmCharge(ctx context.Context, req entity.ChargeRequest) (entity.Charge, error) {
	amount, err := minorUnits(req.Amount.Amount)
	if err != nil {
		return entity.Charge{}, err
	}

	currency := req.Amount.Currency
	if currency == "" {
		currency = g.config.Currency
	}

	intent, err := call(ctx, g, "create_and_confirm_charge", func(ctx context.Context) (*stripe.PaymentIntent, error) {
		params := &stripe.PaymentIntentParams{
			Amount:             stripe.Int64(amount),
			Currency:           stripe.String(strings.ToLower(currency)),
			Customer:           stripe.String(req.CustomerID),
			PaymentMethod:      stripe.String(req.PaymentMethodID),
			Confirm:            stripe.Bool(true),
			ConfirmationMethod: stripe.String(string(stripe.PaymentIntentConfirmationMethodManual)),
			ReturnURL:          stripe.String(g.config.ReturnURL),
		}
		params.Context = ctx
		for k, v := range req.Metadata.ToMap() {
			params.AddMetadata(k, v)
		}
		if req.IdempotencyKey != "" {
			params.SetIdempotencyKey(req.IdempotencyKey)
		}

		return g.api.PaymentIntents.New(params)
	})
	if isDecline(err) {
		return declinedCharge(err, req), nil
	}
	if err != nil {
		return entity.Charge{}, translateError(err)
	}

	return g.toCharge(ctx, intent)
}

func (g *StripeGateway) GetCharge(ctx context.Context, intentID string) (entity.Charge, error) {
	intent, err := call(ctx, g, "get_charge", func(ctx context.Context) (*stripe.PaymentIntent, error) {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		return g.api.PaymentIntents.Get(intentID, params)
	})
	if err != nil {
		return entity.Charge{}, translateError(err)
	}

	return g.toCharge(ctx, intent)
}

func (g *StripeGateway) toCharge(ctx context.Context, intent *stripe.PaymentIntent) (entity.Charge, error) {
	status, err := chargeStatus(intent)
	if err != nil {
		log.FromContext(ctx).
			WithField("payment_intent_id", intent.ID).
			WithField("status", intent.Status).
			Error("Payment intent has unrecognized status")
		return entity.Charge{}, err
	}

	charge := entity.Charge{
		IntentID:     intent.ID,
		Status:       status,
		ClientSecret: intent.ClientSecret,
		Amount: entity.Money{
			Amount:   decimal.New(intent.Amount, -2),
			Currency: strings.ToUpper(string(intent.Currency)),
		},
		Metadata: intent.Metadata,
	}
	if intent.LastPaymentError != nil {
		charge.FailureReason = intent.LastPaymentError.Msg
	}
	if intent.CancellationReason != "" && status == entity.ChargeCanceled {
		charge.FailureReason = string(intent.CancellationReason)
	}

	return charge, nil
}

func chargeStatus(intent *stripe.PaymentIntent) (entity.ChargeStatus, error) {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return entity.ChargeSucceeded, nil
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return entity.ChargeRequiresAction, nil
	case stripe.PaymentIntentStatusProcessing:
		return entity.ChargeProcessing, nil
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return entity.ChargeFailed, nil
	case stripe.PaymentIntentStatusCanceled:
		return entity.ChargeCanceled, nil
	default:
		return "", UnrecognizedStatusError{IntentID: intent.ID, Status: string(intent.Status)}
	}
}

func declinedCharge(err error, req entity.ChargeRequest) entity.Charge {
	var stripeErr *stripe.Error
	errors.As(err, &stripeErr)

	charge := entity.Charge{
		Status:        entity.ChargeFailed,
		FailureReason: stripeErr.Msg,
		Amount:        req.Amount,
		Metadata:      req.Metadata.ToMap(),
	}
	if stripeErr.PaymentIntent != nil {
		charge.IntentID = stripeErr.PaymentIntent.ID
	}
	return charge
}

// call runs fn under the circuit breaker with a per-call timeout.
func call[T any](ctx context.Context, g *StripeGateway, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	monitoring.ObserveGatewayCall(operation, start, err)

	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// isDecline reports a card the provider refused to charge.
func isDecline(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Type == stripe.ErrorTypeCard || stripeErr.HTTPStatusCode == http.StatusPaymentRequired
}

// isCallerError reports a request the provider rejected because of what the
// buyer sent. These do not count against the circuit breaker. Auth and
// permission failures do.
func isCallerError(err error) bool {
	if isDecline(err) {
		return true
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode == http.StatusBadRequest || stripeErr.HTTPStatusCode == http.StatusNotFound
}

func translateError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", entity.ErrGatewayUnavailable, err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.Type == stripe.ErrorTypeAPI {
			return fmt.Errorf("%w: %w", entity.ErrGatewayUnavailable, err)
		}
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			if strings.HasPrefix(stripeErr.Param, "payment_method") {
				return entity.ValidationError{Field: "payment_method_id", Message: "does not exist"}
			}
			return fmt.Errorf("%w: %w", entity.ErrPaymentNotFound, err)
		}
		return fmt.Errorf("payment gateway rejected request: %w", err)
	}

	var statusErr UnrecognizedStatusError
	if errors.As(err, &statusErr) {
		return err
	}

	return fmt.Errorf("%w: %w", entity.ErrGatewayUnavailable, err)
}

func minorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("charge amount must be positive, got %s", amount)
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}
