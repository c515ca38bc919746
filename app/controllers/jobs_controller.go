package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/cache"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/database"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/notify"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/payments"
)

const retrySweepLockKey = "locks:payment-retry-sweep"
const retrySweepLockTTL = 10 * time.Minute

// HandleRetryFailedPayments runs one retry sweep. Intended for a scheduled
// trigger; the redis lock keeps sweeps single-flight across instances and
// the per-row claim in the service covers the rest.
func HandleRetryFailedPayments(c *fiber.Ctx) error {
	acquired, err := cache.AcquireLock(retrySweepLockKey, retrySweepLockTTL)
	if err != nil {
		// Redis being down doesn't stop the sweep; row claims still
		// prevent double-charging.
		log.Warnf("sweep lock unavailable, relying on row claims: %v", err)
	} else if !acquired {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "retry sweep already running"})
	} else {
		defer func() {
			if err := cache.ReleaseLock(retrySweepLockKey); err != nil {
				log.Warnf("could not release sweep lock: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	svc := payments.NewServiceFromDB(database.GetDB()).WithNotifier(notify.NewMailNotifier())
	summary, err := svc.RunRetrySweep(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "retry sweep failed"})
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}
