package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sudsy-app/sudsy-payments/app/models"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/database"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/env"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/notify"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/payments"
)

// HandlePaymentEventWebhook receives the processor's event stream. The
// processor delivers at least once and out of order; dedup and handler
// idempotency live in the payments service, this handler only verifies the
// signature and maps outcomes to status codes.
func HandlePaymentEventWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	svc := payments.NewServiceFromDB(database.GetDB()).WithNotifier(notify.NewMailNotifier())

	event, err := payments.VerifyWebhookSignature(rawBody, signature, secret)
	if err != nil {
		// Security-monitoring signal, not a silent failure.
		svc.RecordSecurityViolation(c.IP(), c.Get("User-Agent"), "invalid webhook signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := svc.ProcessEvent(ctx, models.PaymentProviderStripe, event.ID, string(event.Type), event.Data.Raw)
	if err != nil {
		// Event left unapplied; the processor will redeliver.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "handler failed"})
	}

	resp := fiber.Map{"received": true}
	if result.Duplicate {
		resp["duplicate"] = true
	}
	if result.Ignored {
		resp["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
