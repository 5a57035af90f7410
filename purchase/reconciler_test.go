package purchase_test

import (
	"boxoffice/entity"
	"boxoffice/purchase"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDeferred makes a purchase that stops at requires_action and returns
// its payment intent id.
func startDeferred(t *testing.T, f fixture, userID, eventID string, quantity int) string {
	t.Helper()
	f.gateway.nextStatus = entity.ChargeRequiresAction
	defer func() { f.gateway.nextStatus = entity.ChargeSucceeded }()

	result, err := f.orchestrator.Purchase(context.Background(), purchaseRequest(userID, eventID, quantity))
	require.NoError(t, err)

	action, ok := result.(purchase.ActionRequired)
	require.True(t, ok, "expected ActionRequired, got %T", result)
	assert.NotEmpty(t, action.ClientSecret)
	return action.PaymentIntentID
}

func TestConfirm_deferredAuthentication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.store.addEvent(5, "20")
	user := f.store.addUser("user-1")

	intentID := startDeferred(t, f, user.ID, ev.ID, 3)
	assert.Equal(t, 5, f.store.event(ev.ID).AvailableSeats)
	assert.Empty(t, f.store.ticketsFor(ev.ID))

	f.gateway.complete(intentID)

	result, err := f.reconciler.Confirm(ctx, intentID, user.ID)
	require.NoError(t, err)

	issued, ok := result.(purchase.Issued)
	require.True(t, ok, "expected Issued, got %T", result)
	assert.Equal(t, 3, issued.TotalTickets)
	assert.Equal(t, "60", issued.TotalAmount.Amount.String())
	assert.Equal(t, 2, f.store.event(ev.ID).AvailableSeats)
	assert.Len(t, issuedEvents(f.store.publishedEvents()), 1)
	f.assertConserved(t, ev.ID)
}

func TestConfirm_notSuccessful(t *testing.T) {
	f := newFixture(t)
	ev := f.store.addEvent(5, "20")
	user := f.store.addUser("user-1")

	intentID := startDeferred(t, f, user.ID, ev.ID, 1)

	result, err := f.reconciler.Confirm(context.Background(), intentID, user.ID)
	require.NoError(t, err)

	assert.Equal(t, purchase.NotSuccessful{PaymentIntentID: intentID, Status: entity.ChargeRequiresAction}, result)
	assert.Equal(t, 5, f.store.event(ev.ID).AvailableSeats)
	assert.Empty(t, f.store.ticketsFor(ev.ID))
}

func TestConfirm_twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.store.addEvent(5, "20")
	user := f.store.addUser("user-1")

	intentID := startDeferred(t, f, user.ID, ev.ID, 2)
	f.gateway.complete(intentID)

	first, err := f.reconciler.Confirm(ctx, intentID, user.ID)
	require.NoError(t, err)
	second, err := f.reconciler.Confirm(ctx, intentID, user.ID)
	require.NoError(t, err)

	issued, ok := first.(purchase.Issued)
	require.True(t, ok, "expected Issued, got %T", first)
	already, ok := second.(purchase.AlreadyProcessed)
	require.True(t, ok, "expected AlreadyProcessed, got %T", second)

	assert.Equal(t, codes(issued.Tickets), codes(already.Tickets))
	assert.Equal(t, 3, f.store.event(ev.ID).AvailableSeats)
	assert.Len(t, issuedEvents(f.store.publishedEvents()), 1)
	f.assertConserved(t, ev.ID)
}

func TestConfirm_afterSynchronousPurchase(t *testing.T) {
	f := newFixture(t)
	ev := f.store.addEvent(5, "20")
	user := f.store.addUser("user-1")

	result, err := f.orchestrator.Purchase(context.Background(), purchaseRequest(user.ID, ev.ID, 2))
	require.NoError(t, err)
	purchased := result.(purchase.Purchased)

	confirmed, err := f.reconciler.Confirm(context.Background(), purchased.PaymentIntentID, user.ID)
	require.NoError(t, err)

	already, ok := confirmed.(purchase.AlreadyProcessed)
	require.True(t, ok, "expected AlreadyProcessed, got %T", confirmed)
	assert.Equal(t, codes(purchased.Tickets), codes(already.Tickets))
	assert.Equal(t, 3, f.store.event(ev.ID).AvailableSeats)
}

func TestConfirm_concurrent(t *testing.T) {
	f := newFixture(t)
	ev := f.store.addEvent(10, "20")
	user := f.store.addUser("user-1")

	intentID := startDeferred(t, f, user.ID, ev.ID, 4)
	f.gateway.complete(intentID)

	const callers = 8
	results := make([]purchase.ConfirmResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.reconciler.Confirm(context.Background(), intentID, user.ID)
		}()
	}
	wg.Wait()

	issued := 0
	var ticketCodes []string
	for i := range results {
		require.NoError(t, errs[i])
		switch r := results[i].(type) {
		case purchase.Issued:
			issued++
			ticketCodes = codes(r.Tickets)
		case purchase.AlreadyProcessed:
		default:
			t.Fatalf("unexpected result %T", r)
		}
	}

	assert.Equal(t, 1, issued)
	for i := range results {
		if already, ok := results[i].(purchase.AlreadyProcessed); ok {
			assert.Equal(t, ticketCodes, codes(already.Tickets))
		}
	}
	assert.Equal(t, 6, f.store.event(ev.ID).AvailableSeats)
	assert.Len(t, f.store.ticketsFor(ev.ID), 4)
	f.assertConserved(t, ev.ID)
}

func TestConfirm_usesChargeMetadata(t *testing.T) {
	f := newFixture(t)
	ev := f.store.addEvent(5, "20")
	owner := f.store.addUser("owner")
	other := f.store.addUser("other")

	intentID := startDeferred(t, f, owner.ID, ev.ID, 2)
	f.gateway.complete(intentID)

	_, err := f.reconciler.Confirm(context.Background(), intentID, other.ID)
	assert.ErrorIs(t, err, entity.ErrPaymentNotOwned)
	assert.Equal(t, 5, f.store.event(ev.ID).AvailableSeats)

	_, err = f.reconciler.Confirm(context.Background(), intentID, "")
	require.NoError(t, err)

	tickets := f.store.ticketsFor(ev.ID)
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		assert.Equal(t, owner.ID, ticket.UserID)
	}
}

func TestConfirm_soldOutAfterCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.store.addEvent(2, "20")
	slow := f.store.addUser("slow")
	fast := f.store.addUser("fast")

	intentID := startDeferred(t, f, slow.ID, ev.ID, 2)

	_, err := f.orchestrator.Purchase(ctx, purchaseRequest(fast.ID, ev.ID, 1))
	require.NoError(t, err)

	f.gateway.complete(intentID)

	_, err = f.reconciler.Confirm(ctx, intentID, slow.ID)

	var recErr *purchase.ReconciliationError
	require.True(t, errors.As(err, &recErr), "expected reconciliation error, got %v", err)
	assert.ErrorIs(t, err, entity.ErrInsufficientInventory)
	assert.True(t, purchase.IsTerminal(err))
	assert.Equal(t, 2, recErr.Quantity)

	assert.Equal(t, 1, f.store.event(ev.ID).AvailableSeats)
	f.assertConserved(t, ev.ID)
	assert.Len(t, f.commands.commands(), 1)
}

func TestConfirm_eventRemoved(t *testing.T) {
	f := newFixture(t)
	ev := f.store.addEvent(2, "20")
	user := f.store.addUser("user-1")

	intentID := startDeferred(t, f, user.ID, ev.ID, 1)
	f.gateway.complete(intentID)
	eventLedger{f.store}.remove(ev.ID)

	_, err := f.reconciler.Replay(context.Background(), intentID)

	var recErr *purchase.ReconciliationError
	require.True(t, errors.As(err, &recErr))
	assert.ErrorIs(t, err, entity.ErrEventNotFound)
	assert.True(t, purchase.IsTerminal(err))
	assert.Empty(t, f.commands.commands(), "replay must not schedule another replay")
}

func TestConfirm_missingPaymentIntent(t *testing.T) {
	f := newFixture(t)

	_, err := f.reconciler.Confirm(context.Background(), "", "user-1")

	var validationErr entity.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "payment_intent_id", validationErr.Field)
}

func TestConfirm_gatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	ev := f.store.addEvent(2, "20")
	user := f.store.addUser("user-1")
	intentID := startDeferred(t, f, user.ID, ev.ID, 1)

	f.gateway.err = entity.ErrGatewayUnavailable

	_, err := f.reconciler.Confirm(context.Background(), intentID, user.ID)
	assert.ErrorIs(t, err, entity.ErrGatewayUnavailable)
	assert.False(t, purchase.IsTerminal(err))
	assert.Equal(t, 2, f.store.event(ev.ID).AvailableSeats)
}

func TestConfirm_usesChargedPriceAfterRepricing(t *testing.T) {
	f := newFixture(t)
	ev := f.store.addEvent(5, "10")
	user := f.store.addUser("user-1")

	intentID := startDeferred(t, f, user.ID, ev.ID, 2)
	eventLedger{f.store}.reprice(ev.ID, "30")
	f.gateway.complete(intentID)

	result, err := f.reconciler.Confirm(context.Background(), intentID, user.ID)
	require.NoError(t, err)

	issued, ok := result.(purchase.Issued)
	require.True(t, ok, "expected Issued, got %T", result)
	assert.Equal(t, "20", issued.TotalAmount.Amount.String())
	for _, ticket := range f.store.ticketsFor(ev.ID) {
		assert.Equal(t, "10", ticket.TotalAmount.String())
	}

	events := issuedEvents(f.store.publishedEvents())
	require.Len(t, events, 1)
	assert.Equal(t, "10", events[0].Price.Amount.String())
	assert.Equal(t, "20", events[0].Total.Amount.String())
}

func TestConfirm_unknownPaymentIntent(t *testing.T) {
	f := newFixture(t)

	_, err := f.reconciler.Confirm(context.Background(), "pi_unknown", "user-1")

	assert.ErrorIs(t, err, entity.ErrPaymentNotFound)
	assert.True(t, purchase.IsTerminal(err))
	assert.Empty(t, f.commands.commands())
}

func TestReplay_unusableMetadataIsTerminal(t *testing.T) {
	f := newFixture(t)
	ev := f.store.addEvent(2, "20")
	user := f.store.addUser("user-1")

	intentID := startDeferred(t, f, user.ID, ev.ID, 1)
	f.gateway.complete(intentID)
	f.gateway.setMetadata(intentID, map[string]string{"eventId": ev.ID})

	_, err := f.reconciler.Replay(context.Background(), intentID)

	assert.ErrorIs(t, err, entity.ErrInvalidChargeMetadata)
	assert.True(t, purchase.IsTerminal(err))
	assert.Equal(t, 2, f.store.event(ev.ID).AvailableSeats)
	assert.Empty(t, f.store.ticketsFor(ev.ID))
}

func TestIsTerminal(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "event gone", err: entity.ErrEventNotFound, want: true},
		{name: "sold out", err: &purchase.ReconciliationError{Err: entity.ErrInsufficientInventory}, want: true},
		{name: "unknown payment", err: fmt.Errorf("getting charge status: %w", entity.ErrPaymentNotFound), want: true},
		{name: "unrecognized status", err: fmt.Errorf("getting charge status: %w", entity.ErrUnrecognizedChargeStatus), want: true},
		{name: "bad metadata", err: fmt.Errorf("%w: missing userId", entity.ErrInvalidChargeMetadata), want: true},
		{name: "gateway down", err: entity.ErrGatewayUnavailable, want: false},
		{name: "database error", err: errors.New("connection reset"), want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, purchase.IsTerminal(tc.err))
		})
	}
}
