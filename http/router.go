package http

import (
	"net/http"

	commonHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ErrServerClosed = http.ErrServerClosed

type RouterDeps struct {
	Purchaser   Purchaser
	Confirmer   Confirmer
	TicketRepo  TicketRepo
	EventRepo   EventRepo
	UserRepo    UserRepo
	Currency    string
	Diagnostics bool
}

func NewRouter(deps RouterDeps) *echo.Echo {
	server := commonHTTP.NewEcho()
	server.Validator = newRequestValidator()

	server.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	server.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := handler{
		purchaser:   deps.Purchaser,
		confirmer:   deps.Confirmer,
		ticketRepo:  deps.TicketRepo,
		eventRepo:   deps.EventRepo,
		userRepo:    deps.UserRepo,
		currency:    deps.Currency,
		diagnostics: deps.Diagnostics,
	}

	tickets := server.Group("/tickets", h.requireUser)
	tickets.POST("/purchase", h.PostPurchase)
	tickets.POST("/confirm-payment", h.PostConfirmPayment)
	tickets.GET("", h.ListTickets)
	tickets.GET("/:id/document", h.GetTicketDocument)

	return server
}
