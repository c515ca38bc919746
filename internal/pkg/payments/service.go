package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"github.com/sudsy-app/sudsy-payments/app/models"
	"gorm.io/gorm"
)

// Service reconciles the internal ledger with the processor's event stream
// and runs the retry and payout flows. All collaborators are injected so
// tests can substitute fakes.
type Service struct {
	repo     Repository
	charger  Charger
	rails    RailSelector
	notifier Notifier
	handlers map[string]handlerFunc

	// now is overridable in tests.
	now func() time.Time
}

type handlerFunc func(ctx context.Context, payload []byte) error

// NewService wires a payment service from its collaborators.
func NewService(repo Repository, charger Charger, rails RailSelector, notifier Notifier) *Service {
	s := &Service{
		repo:     repo,
		charger:  charger,
		rails:    rails,
		notifier: notifier,
		now:      time.Now,
	}
	// Fixed dispatch table. Kinds missing here are acknowledged and
	// ignored so the processor can add new kinds without breaking us.
	s.handlers = map[string]handlerFunc{
		"invoice.payment_succeeded":     s.handleInvoicePaymentSucceeded,
		"invoice.payment_failed":        s.handleInvoicePaymentFailed,
		"customer.subscription.created": s.handleSubscriptionCreated,
		"customer.subscription.updated": s.handleSubscriptionUpdated,
		"customer.subscription.deleted": s.handleSubscriptionDeleted,
		"payment_intent.succeeded":      s.handlePaymentIntentSucceeded,
		"payment_intent.payment_failed": s.handlePaymentIntentFailed,
	}
	return s
}

// NewServiceFromDB creates a service with production collaborators from a
// GORM handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewStripeCharger(), NewRailSelector(), nil)
}

// WithNotifier sets the notification gateway. A nil notifier disables
// customer notifications without affecting the payment flow.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Processor payload shapes. Only the fields the engine consumes are
// declared; everything else in the envelope is carried as raw JSON.
type invoicePayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Subscription       string `json:"subscription"`
	PaymentIntent      string `json:"payment_intent"`
	AmountPaid         int64  `json:"amount_paid"`
	AmountDue          int64  `json:"amount_due"`
	NextPaymentAttempt int64  `json:"next_payment_attempt"`
}

type subscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Plan               struct {
		Amount int64 `json:"amount"`
	} `json:"plan"`
}

type paymentIntentPayload struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Amount           int64  `json:"amount"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, payload []byte) error {
	var inv invoicePayload
	if err := json.Unmarshal(payload, &inv); err != nil {
		return err
	}

	sub, err := s.repo.GetSubscriptionByStripeID(inv.Subscription)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("invoice %s paid for unknown subscription %s, dropping", inv.ID, inv.Subscription)
			return nil
		}
		return err
	}

	now := s.now()
	amount := FromMinorUnits(inv.AmountPaid)
	sub.Status = models.SubscriptionStatusActive
	sub.LastPaymentAt = &now
	if !amount.IsZero() {
		sub.Amount = amount
	}
	if inv.NextPaymentAttempt > 0 {
		next := time.Unix(inv.NextPaymentAttempt, 0).UTC()
		sub.NextBillingAt = &next
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	subID := sub.ID
	if _, err := s.repo.CreatePaymentIfAbsent(&models.Payment{
		CustomerID:            sub.CustomerID,
		SubscriptionID:        &subID,
		Amount:                amount,
		Status:                models.PaymentStatusCompleted,
		Type:                  models.PaymentTypeSubscriptionRenewal,
		StripeInvoiceID:       inv.ID,
		StripePaymentIntentID: inv.PaymentIntent,
	}); err != nil {
		return err
	}

	return s.GenerateServicesForSubscription(sub.ID)
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, payload []byte) error {
	var inv invoicePayload
	if err := json.Unmarshal(payload, &inv); err != nil {
		return err
	}

	sub, err := s.repo.GetSubscriptionByStripeID(inv.Subscription)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("invoice %s failed for unknown subscription %s, dropping", inv.ID, inv.Subscription)
			return nil
		}
		return err
	}

	sub.Status = models.SubscriptionStatusPastDue
	if inv.NextPaymentAttempt > 0 {
		next := time.Unix(inv.NextPaymentAttempt, 0).UTC()
		sub.NextBillingAt = &next
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	subID := sub.ID
	amount := FromMinorUnits(inv.AmountDue)
	payment := &models.Payment{
		CustomerID:            sub.CustomerID,
		SubscriptionID:        &subID,
		Amount:                amount,
		Status:                models.PaymentStatusFailed,
		Type:                  models.PaymentTypeSubscriptionRenewal,
		StripeInvoiceID:       inv.ID,
		StripePaymentIntentID: inv.PaymentIntent,
	}
	created, err := s.repo.CreatePaymentIfAbsent(payment)
	if err != nil {
		return err
	}
	if created {
		// First sight of this failure: schedule attempt #1.
		if err := s.repo.CreatePaymentRetry(&models.PaymentRetry{
			PaymentID:   payment.ID,
			Status:      models.RetryStatusScheduled,
			RetryCount:  0,
			NextRetryAt: s.now().Add(models.RetryBackoff),
		}); err != nil {
			return err
		}
	}

	s.notifyPaymentFailed(sub.CustomerID, amount)
	return nil
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, payload []byte) error {
	var sp subscriptionPayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		return err
	}

	customer, err := s.repo.GetCustomerByStripeID(sp.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("subscription %s created for unknown customer %s, dropping", sp.ID, sp.Customer)
			return nil
		}
		return err
	}

	// Redelivery of the creation event is a no-op once the row exists.
	if existing, err := s.repo.GetSubscriptionByStripeID(sp.ID); err == nil && existing != nil {
		return nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	stripeID := sp.ID
	start := time.Unix(sp.CurrentPeriodStart, 0).UTC()
	end := time.Unix(sp.CurrentPeriodEnd, 0).UTC()
	sub := &models.Subscription{
		CustomerID:           customer.ID,
		StripeSubscriptionID: &stripeID,
		Status:               models.SubscriptionStatusActive,
		Amount:               FromMinorUnits(sp.Plan.Amount),
		StartDate:            start,
		EndDate:              &end,
		NextBillingAt:        &end,
	}
	if err := s.repo.CreateSubscription(sub); err != nil {
		return err
	}

	return s.GenerateServicesForSubscription(sub.ID)
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, payload []byte) error {
	var sp subscriptionPayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		return err
	}

	sub, err := s.repo.GetSubscriptionByStripeID(sp.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("update for unknown subscription %s, dropping", sp.ID)
			return nil
		}
		return err
	}

	if sp.Status == "active" {
		sub.Status = models.SubscriptionStatusActive
	} else {
		sub.Status = models.SubscriptionStatusCancelled
	}
	if sp.CancelAtPeriodEnd {
		end := time.Unix(sp.CurrentPeriodEnd, 0).UTC()
		sub.EndDate = &end
	} else {
		sub.EndDate = nil
	}
	if sp.CurrentPeriodEnd > 0 {
		next := time.Unix(sp.CurrentPeriodEnd, 0).UTC()
		sub.NextBillingAt = &next
	}
	return s.repo.SaveSubscription(sub)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, payload []byte) error {
	var sp subscriptionPayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		return err
	}

	sub, err := s.repo.GetSubscriptionByStripeID(sp.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("deletion of unknown subscription %s, dropping", sp.ID)
			return nil
		}
		return err
	}

	now := s.now()
	sub.Status = models.SubscriptionStatusCancelled
	sub.EndDate = &now
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	// Appointments not yet worked are cancelled with the subscription.
	return s.repo.CancelScheduledServices(sub.ID)
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, payload []byte) error {
	var pp paymentIntentPayload
	if err := json.Unmarshal(payload, &pp); err != nil {
		return err
	}

	customer, err := s.repo.GetCustomerByStripeID(pp.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("payment intent %s succeeded for unknown customer %s, dropping", pp.ID, pp.Customer)
			return nil
		}
		return err
	}

	_, err = s.repo.CreatePaymentIfAbsent(&models.Payment{
		CustomerID:            customer.ID,
		Amount:                FromMinorUnits(pp.Amount),
		Status:                models.PaymentStatusCompleted,
		Type:                  models.PaymentTypeOneTime,
		StripePaymentIntentID: pp.ID,
	})
	return err
}

func (s *Service) handlePaymentIntentFailed(ctx context.Context, payload []byte) error {
	var pp paymentIntentPayload
	if err := json.Unmarshal(payload, &pp); err != nil {
		return err
	}

	customer, err := s.repo.GetCustomerByStripeID(pp.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("payment intent %s failed for unknown customer %s, dropping", pp.ID, pp.Customer)
			return nil
		}
		return err
	}

	amount := FromMinorUnits(pp.Amount)
	if _, err := s.repo.CreatePaymentIfAbsent(&models.Payment{
		CustomerID:            customer.ID,
		Amount:                amount,
		Status:                models.PaymentStatusFailed,
		Type:                  models.PaymentTypeOneTime,
		StripePaymentIntentID: pp.ID,
	}); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.PaymentFailed(customer, amount)
	}
	return nil
}

func (s *Service) notifyPaymentFailed(customerID uint, amount decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	customer, err := s.repo.GetCustomerByID(customerID)
	if err != nil {
		log.Errorf("could not load customer %d for payment-failed notification: %v", customerID, err)
		return
	}
	s.notifier.PaymentFailed(customer, amount)
}
