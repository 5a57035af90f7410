package render

import (
	"boxoffice/entity"
	"bytes"
	"errors"
	"fmt"
	"html/template"
)

var ErrTicketNotIssued = errors.New("ticket payment has not succeeded")

var ticketTemplate = template.Must(template.New("ticket").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Event.Title}} - {{.Ticket.TicketCode}}</title></head>
<body>
<h1>{{.Event.Title}}</h1>
<p>{{.Event.Location}}</p>
<p>{{.Event.StartsAt.Format "Monday, 2 January 2006 15:04 MST"}}</p>
<p>Ticket holder: {{.User.FullName}}</p>
<p>Price: {{.Ticket.TotalAmount.StringFixed 2}} {{.Currency}}</p>
<p>Purchased: {{.Ticket.PurchaseDate.Format "2006-01-02"}}</p>
<p class="code">{{.Ticket.TicketCode}}</p>
</body>
</html>
`))

type ticketData struct {
	Ticket   entity.Ticket
	Event    entity.Event
	User     entity.User
	Currency string
}

// Ticket renders the printable document for an issued ticket.
func Ticket(ticket entity.Ticket, event entity.Event, user entity.User, currency string) ([]byte, error) {
	if ticket.PaymentStatus != entity.PaymentStatusSucceeded {
		return nil, ErrTicketNotIssued
	}

	var buf bytes.Buffer
	err := ticketTemplate.Execute(&buf, ticketData{
		Ticket:   ticket,
		Event:    event,
		User:     user,
		Currency: currency,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering ticket %s: %w", ticket.TicketCode, err)
	}

	return buf.Bytes(), nil
}

func FileName(ticket entity.Ticket) string {
	return ticket.TicketCode + ".html"
}
