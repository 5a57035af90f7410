package purchase_test

import (
	"boxoffice/entity"
	"boxoffice/event"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// store is an in-memory stand-in for the database. Units of work run one at
// a time and roll back by restoring a snapshot.
type store struct {
	txLock sync.Mutex

	lock      sync.Mutex
	events    map[string]entity.Event
	users     map[string]entity.User
	tickets   []entity.Ticket
	published []any

	failInsertAt int
	inserts      int
}

func newStore() *store {
	return &store{
		events:       map[string]entity.Event{},
		users:        map[string]entity.User{},
		failInsertAt: -1,
	}
}

type snapshot struct {
	events    map[string]entity.Event
	tickets   []entity.Ticket
	published []any
}

func (s *store) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txLock.Lock()
	defer s.txLock.Unlock()

	s.lock.Lock()
	snap := snapshot{
		events:    make(map[string]entity.Event, len(s.events)),
		tickets:   append([]entity.Ticket(nil), s.tickets...),
		published: append([]any(nil), s.published...),
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	s.lock.Unlock()

	err := fn(ctx)
	if err != nil {
		s.lock.Lock()
		s.events = snap.events
		s.tickets = snap.tickets
		s.published = snap.published
		s.lock.Unlock()
	}
	return err
}

func (s *store) addEvent(seats int, price string) entity.Event {
	s.lock.Lock()
	defer s.lock.Unlock()

	ev := entity.Event{
		ID:             fmt.Sprintf("event-%d", len(s.events)+1),
		Title:          "Concert",
		Location:       "Main Hall",
		StartsAt:       time.Date(2030, 1, 1, 20, 0, 0, 0, time.UTC),
		Price:          decimal.RequireFromString(price),
		TotalSeats:     seats,
		AvailableSeats: seats,
	}
	s.events[ev.ID] = ev
	return ev
}

func (s *store) addUser(id string) entity.User {
	s.lock.Lock()
	defer s.lock.Unlock()

	u := entity.User{ID: id, Email: id + "@example.com", FirstName: "Ada", LastName: "Lovelace"}
	s.users[id] = u
	return u
}

func (s *store) event(id string) entity.Event {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.events[id]
}

func (s *store) ticketsFor(eventID string) []entity.Ticket {
	s.lock.Lock()
	defer s.lock.Unlock()

	var out []entity.Ticket
	for _, t := range s.tickets {
		if t.EventID == eventID && t.PaymentStatus == entity.PaymentStatusSucceeded {
			out = append(out, t)
		}
	}
	return out
}

func (s *store) publishedEvents() []any {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]any(nil), s.published...)
}

type eventLedger struct{ s *store }

func (l eventLedger) Get(ctx context.Context, eventID string) (entity.Event, error) {
	l.s.lock.Lock()
	defer l.s.lock.Unlock()

	ev, ok := l.s.events[eventID]
	if !ok {
		return entity.Event{}, entity.ErrEventNotFound
	}
	return ev, nil
}

func (l eventLedger) CheckAvailability(ctx context.Context, eventID string, quantity int) (bool, int, error) {
	ev, err := l.Get(ctx, eventID)
	if err != nil {
		return false, 0, err
	}
	return ev.AvailableSeats >= quantity, ev.AvailableSeats, nil
}

func (l eventLedger) DecrementAtomically(ctx context.Context, eventID string, quantity int) (int, error) {
	l.s.lock.Lock()
	defer l.s.lock.Unlock()

	ev, ok := l.s.events[eventID]
	if !ok {
		return 0, entity.ErrEventNotFound
	}
	if ev.AvailableSeats < quantity {
		return 0, entity.ErrInsufficientInventory
	}
	ev.AvailableSeats -= quantity
	l.s.events[eventID] = ev
	return ev.AvailableSeats, nil
}

func (l eventLedger) remove(eventID string) {
	l.s.lock.Lock()
	defer l.s.lock.Unlock()
	delete(l.s.events, eventID)
}

func (l eventLedger) reprice(eventID, price string) {
	l.s.lock.Lock()
	defer l.s.lock.Unlock()
	ev := l.s.events[eventID]
	ev.Price = decimal.RequireFromString(price)
	l.s.events[eventID] = ev
}

type ticketLedger struct{ s *store }

func (l ticketLedger) Insert(ctx context.Context, ticket entity.Ticket) (bool, error) {
	l.s.lock.Lock()
	defer l.s.lock.Unlock()

	if l.s.failInsertAt >= 0 && l.s.inserts == l.s.failInsertAt {
		l.s.inserts++
		return false, errors.New("injected insert failure")
	}
	l.s.inserts++

	for _, t := range l.s.tickets {
		if t.PaymentIntentID == ticket.PaymentIntentID && t.PaymentSeq == ticket.PaymentSeq {
			return false, entity.ErrAlreadyIssued
		}
		if t.TicketCode == ticket.TicketCode {
			return false, nil
		}
	}
	l.s.tickets = append(l.s.tickets, ticket)
	return true, nil
}

func (l ticketLedger) ListByPaymentIntent(ctx context.Context, paymentIntentID string) ([]entity.Ticket, error) {
	l.s.lock.Lock()
	defer l.s.lock.Unlock()

	var out []entity.Ticket
	for _, t := range l.s.tickets {
		if t.PaymentIntentID == paymentIntentID {
			out = append(out, t)
		}
	}
	return out, nil
}

type userDirectory struct{ s *store }

func (d userDirectory) Get(ctx context.Context, userID string) (entity.User, error) {
	d.s.lock.Lock()
	defer d.s.lock.Unlock()

	u, ok := d.s.users[userID]
	if !ok {
		return entity.User{}, entity.ErrUserNotFound
	}
	return u, nil
}

type outbox struct{ s *store }

func (o outbox) Publish(ctx context.Context, e any) error {
	o.s.lock.Lock()
	defer o.s.lock.Unlock()
	o.s.published = append(o.s.published, e)
	return nil
}

type commandSender struct {
	lock sync.Mutex
	sent []any
}

func (c *commandSender) Send(ctx context.Context, cmd any) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.sent = append(c.sent, cmd)
	return nil
}

func (c *commandSender) commands() []any {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]any(nil), c.sent...)
}

// gateway fakes the payment provider. Each charge gets a fresh intent id
// unless the idempotency key was seen before.
type gateway struct {
	lock sync.Mutex

	nextStatus    entity.ChargeStatus
	failureReason string
	err           error

	seq         atomic.Int64
	charges     map[string]entity.Charge
	byKey       map[string]string
	chargeCalls int
}

func newGateway() *gateway {
	return &gateway{
		nextStatus: entity.ChargeSucceeded,
		charges:    map[string]entity.Charge{},
		byKey:      map[string]string{},
	}
}

func (g *gateway) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "cus_" + email, nil
}

func (g *gateway) CreateAndConfirmCharge(ctx context.Context, req entity.ChargeRequest) (entity.Charge, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.chargeCalls++
	if g.err != nil {
		return entity.Charge{}, g.err
	}

	if id, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return g.charges[id], nil
	}

	id := fmt.Sprintf("pi_%d", g.seq.Add(1))
	charge := entity.Charge{
		IntentID:      id,
		Status:        g.nextStatus,
		ClientSecret:  id + "_secret",
		FailureReason: g.failureReason,
		Amount:        req.Amount,
		Metadata:      req.Metadata.ToMap(),
	}
	g.charges[id] = charge
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = id
	}
	return charge, nil
}

func (g *gateway) GetCharge(ctx context.Context, intentID string) (entity.Charge, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.err != nil {
		return entity.Charge{}, g.err
	}
	charge, ok := g.charges[intentID]
	if !ok {
		return entity.Charge{}, fmt.Errorf("%w: %s", entity.ErrPaymentNotFound, intentID)
	}
	return charge, nil
}

// complete simulates the buyer finishing authentication.
func (g *gateway) complete(intentID string) {
	g.lock.Lock()
	defer g.lock.Unlock()

	charge := g.charges[intentID]
	charge.Status = entity.ChargeSucceeded
	g.charges[intentID] = charge
}

func (g *gateway) setMetadata(intentID string, metadata map[string]string) {
	g.lock.Lock()
	defer g.lock.Unlock()

	charge := g.charges[intentID]
	charge.Metadata = metadata
	g.charges[intentID] = charge
}

func (g *gateway) calls() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.chargeCalls
}

func issuedEvents(published []any) []event.TicketsIssued {
	var out []event.TicketsIssued
	for _, p := range published {
		if e, ok := p.(event.TicketsIssued); ok {
			out = append(out, e)
		}
	}
	return out
}
