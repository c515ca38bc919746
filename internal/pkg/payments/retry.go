package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sudsy-app/sudsy-payments/app/models"
)

// stalePendingAge is how long a claimed retry may sit PENDING before the
// watchdog assumes its sweep died and returns it to SCHEDULED.
const stalePendingAge = 2 * time.Hour

// RetrySweepSummary reports one sweep run.
type RetrySweepSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunRetrySweep finds due payment retries, attempts a new off-session
// charge for each, and either resolves, reschedules (bounded), or
// escalates to delinquency. One retry's failure never aborts the sweep
// for the others.
func (s *Service) RunRetrySweep(ctx context.Context) (RetrySweepSummary, error) {
	var summary RetrySweepSummary
	now := s.now()

	// Watchdog: claims abandoned by a crashed sweep go back to SCHEDULED.
	if reclaimed, err := s.repo.ReclaimStalePending(now.Add(-stalePendingAge)); err != nil {
		log.Errorf("could not reclaim stale pending retries: %v", err)
	} else if reclaimed > 0 {
		log.Warnf("reclaimed %d stale pending payment retries", reclaimed)
	}

	due, err := s.repo.DueRetries(now)
	if err != nil {
		return summary, err
	}

	for i := range due {
		retry := due[i]

		// Atomic SCHEDULED -> PENDING claim; a concurrent sweep that got
		// here first wins and we skip the row.
		claimed, err := s.repo.ClaimRetry(retry.ID, now)
		if err != nil {
			log.Errorf("could not claim retry %d: %v", retry.ID, err)
			continue
		}
		if !claimed {
			continue
		}

		summary.Attempted++
		if err := s.processRetry(ctx, &retry); err != nil {
			// Internal errors are recorded on the row, not re-raised, so
			// the remaining retries still run.
			log.Errorf("retry %d failed internally: %v", retry.ID, err)
			s.markRetryFailed(&retry, err.Error())
			summary.Failed++
			continue
		}
		if retry.Status == models.RetryStatusSuccess {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Service) processRetry(ctx context.Context, retry *models.PaymentRetry) error {
	payment, err := s.repo.GetPaymentByID(retry.PaymentID)
	if err != nil {
		return fmt.Errorf("load payment %d: %w", retry.PaymentID, err)
	}
	customer, err := s.repo.GetCustomerByID(payment.CustomerID)
	if err != nil {
		return fmt.Errorf("load customer %d: %w", payment.CustomerID, err)
	}

	if customer.StripeCustomerID == "" || customer.StripePaymentMethodID == "" {
		// Nothing to charge against; terminal for this row, no processor
		// call attempted.
		s.markRetryFailed(retry, "customer has no usable payment method on file")
		return nil
	}

	outcome := s.charger.ChargeOffSession(ctx, customer.StripeCustomerID, customer.StripePaymentMethodID,
		payment.Amount, fmt.Sprintf("retry %d for payment %d", retry.RetryCount, payment.ID))

	switch outcome.Kind {
	case ChargeSucceeded:
		return s.resolveRetrySuccess(retry, payment, outcome)

	case ChargeRequiresAction:
		// The customer has to act; blind retrying cannot fix this, so no
		// follow-up row is scheduled.
		retry.StripePaymentIntentID = outcome.PaymentIntentID
		s.markRetryFailed(retry, outcome.Detail)
		if s.notifier != nil {
			s.notifier.PaymentRequiresAction(customer)
		}
		return nil

	default: // declined, transient, or anything else the processor reported
		retry.StripePaymentIntentID = outcome.PaymentIntentID
		s.markRetryFailed(retry, outcome.Detail)
		return s.rescheduleOrEscalate(retry, payment, customer)
	}
}

func (s *Service) resolveRetrySuccess(retry *models.PaymentRetry, payment *models.Payment, outcome ChargeOutcome) error {
	now := s.now()
	retry.Status = models.RetryStatusSuccess
	retry.StripePaymentIntentID = outcome.PaymentIntentID
	retry.ErrorMessage = ""
	if err := s.repo.SaveRetry(retry); err != nil {
		return err
	}

	// The original FAILED payment stays untouched; the recovery is a new
	// append-only row.
	if err := s.repo.CreatePayment(&models.Payment{
		CustomerID:            payment.CustomerID,
		SubscriptionID:        payment.SubscriptionID,
		Amount:                payment.Amount,
		Status:                models.PaymentStatusCompleted,
		Type:                  payment.Type,
		StripeInvoiceID:       payment.StripeInvoiceID,
		StripePaymentIntentID: outcome.PaymentIntentID,
	}); err != nil {
		return err
	}

	if payment.SubscriptionID == nil {
		return nil
	}
	sub, err := s.repo.GetSubscriptionByID(*payment.SubscriptionID)
	if err != nil {
		return err
	}
	sub.Status = models.SubscriptionStatusActive
	sub.LastPaymentAt = &now
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}
	return s.GenerateServicesForSubscription(sub.ID)
}

func (s *Service) rescheduleOrEscalate(retry *models.PaymentRetry, payment *models.Payment, customer *models.Customer) error {
	if retry.RetryCount < models.MaxPaymentRetries {
		return s.repo.CreatePaymentRetry(&models.PaymentRetry{
			PaymentID:   payment.ID,
			Status:      models.RetryStatusScheduled,
			RetryCount:  retry.RetryCount + 1,
			NextRetryAt: s.now().Add(models.RetryBackoff),
		})
	}

	// Retries exhausted: the subscription goes delinquent and no further
	// rows are created.
	if payment.SubscriptionID != nil {
		sub, err := s.repo.GetSubscriptionByID(*payment.SubscriptionID)
		if err != nil {
			return err
		}
		if !sub.IsTerminal() {
			sub.Status = models.SubscriptionStatusPastDue
			if err := s.repo.SaveSubscription(sub); err != nil {
				return err
			}
		}
	}
	if s.notifier != nil {
		s.notifier.RetriesExhausted(customer)
	}
	return nil
}

func (s *Service) markRetryFailed(retry *models.PaymentRetry, reason string) {
	retry.Status = models.RetryStatusFailed
	retry.ErrorMessage = reason
	if err := s.repo.SaveRetry(retry); err != nil {
		log.Errorf("could not persist failure on retry %d: %v", retry.ID, err)
	}
}
