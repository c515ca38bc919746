package router

import (
	"github.com/sudsy-app/sudsy-payments/app/controllers"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Inbound processor events. Signature verification happens in the
	// handler; no auth middleware here.
	app.Post("/webhooks/payment-events", controllers.HandlePaymentEventWebhook)

	// Scheduler-triggered jobs.
	app.Post("/jobs/retry-failed-payments", controllers.HandleRetryFailedPayments)

	// Operator surface.
	admin := app.Group("/admin", middleware.AdminAPIKeyMiddleware())
	admin.Post("/payment-batches", controllers.HandleCreatePaymentBatch)
	admin.Get("/payment-batches/:id", controllers.HandleGetPaymentBatch)
	admin.Post("/payment-batches/:id/process", controllers.HandleProcessPaymentBatch)
	admin.Delete("/payment-batches/:id", controllers.HandleDeletePaymentBatch)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
