package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sudsy-app/sudsy-payments/app/models"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository with the same claim and
// insert-if-absent semantics as the GORM implementation.
type fakeRepo struct {
	mu sync.Mutex

	customers     map[uint]*models.Customer
	subscriptions map[uint]*models.Subscription
	payments      []*models.Payment
	retries       map[uint]*models.PaymentRetry
	services      []*models.ScheduledService
	events        map[string]*models.WebhookEvent
	batches       map[uint]*models.PaymentBatch
	batchItems    map[uint]*models.BatchPayment
	auditLogs     []*models.SecurityAuditLog

	nextID uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		customers:     make(map[uint]*models.Customer),
		subscriptions: make(map[uint]*models.Subscription),
		retries:       make(map[uint]*models.PaymentRetry),
		events:        make(map[string]*models.WebhookEvent),
		batches:       make(map[uint]*models.PaymentBatch),
		batchItems:    make(map[uint]*models.BatchPayment),
	}
}

func (f *fakeRepo) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) addCustomer(c models.Customer) *models.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		c.ID = f.id()
	}
	f.customers[c.ID] = &c
	return &c
}

func (f *fakeRepo) addSubscription(s models.Subscription) *models.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == 0 {
		s.ID = f.id()
	}
	f.subscriptions[s.ID] = &s
	return &s
}

func (f *fakeRepo) addPayment(p models.Payment) *models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		p.ID = f.id()
	}
	stored := p
	f.payments = append(f.payments, &stored)
	return &stored
}

func (f *fakeRepo) addRetry(r models.PaymentRetry) *models.PaymentRetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		r.ID = f.id()
	}
	stored := r
	f.retries[r.ID] = &stored
	return &stored
}

func (f *fakeRepo) addBatch(b models.PaymentBatch, items []models.BatchPayment) *models.PaymentBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == 0 {
		b.ID = f.id()
	}
	f.batches[b.ID] = &b
	for _, item := range items {
		item.BatchID = b.ID
		if item.ID == 0 {
			item.ID = f.id()
		}
		stored := item
		f.batchItems[item.ID] = &stored
	}
	return &b
}

func (f *fakeRepo) paymentsWithStatus(status string) []models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.payments {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	return out
}

func (f *fakeRepo) retriesWithStatus(status string) []models.PaymentRetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PaymentRetry
	for _, r := range f.retries {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	return out
}

func (f *fakeRepo) servicesForSubscription(subscriptionID uint) []models.ScheduledService {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScheduledService
	for _, svc := range f.services {
		if svc.SubscriptionID == subscriptionID {
			out = append(out, *svc)
		}
	}
	return out
}

func eventKey(provider, eventID string) string {
	return provider + "|" + eventID
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventKey(event.Provider, event.ProviderEventID)
	if stored, ok := f.events[key]; ok {
		return false, stored, nil
	}
	event.ID = f.id()
	stored := *event
	f.events[key] = &stored
	return true, &stored, nil
}

func (f *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreateSecurityAuditLog(entry *models.SecurityAuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = f.id()
	stored := *entry
	f.auditLogs = append(f.auditLogs, &stored)
	return nil
}

func (f *fakeRepo) GetCustomerByID(id uint) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *c
	return &out, nil
}

func (f *fakeRepo) GetCustomerByStripeID(stripeCustomerID string) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if c.StripeCustomerID == stripeCustomerID {
			out := *c
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetSubscriptionByID(id uint) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *s
	return &out, nil
}

func (f *fakeRepo) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscriptions {
		if s.StripeSubscriptionID != nil && *s.StripeSubscriptionID == stripeSubscriptionID {
			out := *s
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreateSubscription(sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub.ID = f.id()
	stored := *sub
	f.subscriptions[sub.ID] = &stored
	return nil
}

func (f *fakeRepo) SaveSubscription(sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *sub
	f.subscriptions[sub.ID] = &stored
	return nil
}

func (f *fakeRepo) GetPaymentByID(id uint) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.ID == id {
			out := *p
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) CreatePaymentIfAbsent(payment *models.Payment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.Status != payment.Status {
			continue
		}
		if payment.StripePaymentIntentID != "" {
			if p.StripePaymentIntentID == payment.StripePaymentIntentID {
				return false, nil
			}
		} else if p.StripeInvoiceID == payment.StripeInvoiceID {
			return false, nil
		}
	}
	payment.ID = f.id()
	stored := *payment
	f.payments = append(f.payments, &stored)
	return true, nil
}

func (f *fakeRepo) CreatePayment(payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment.ID = f.id()
	stored := *payment
	f.payments = append(f.payments, &stored)
	return nil
}

func (f *fakeRepo) CreatePaymentRetry(retry *models.PaymentRetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	retry.ID = f.id()
	stored := *retry
	f.retries[retry.ID] = &stored
	return nil
}

func (f *fakeRepo) DueRetries(now time.Time) ([]models.PaymentRetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.PaymentRetry
	for _, r := range f.retries {
		if r.Status == models.RetryStatusScheduled && !r.NextRetryAt.After(now) {
			due = append(due, *r)
		}
	}
	return due, nil
}

func (f *fakeRepo) ClaimRetry(id uint, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.retries[id]
	if !ok || r.Status != models.RetryStatusScheduled {
		return false, nil
	}
	r.Status = models.RetryStatusPending
	claimed := now
	r.ClaimedAt = &claimed
	return true, nil
}

func (f *fakeRepo) SaveRetry(retry *models.PaymentRetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *retry
	f.retries[retry.ID] = &stored
	return nil
}

func (f *fakeRepo) ReclaimStalePending(olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var reclaimed int64
	for _, r := range f.retries {
		if r.Status == models.RetryStatusPending && r.ClaimedAt != nil && r.ClaimedAt.Before(olderThan) {
			r.Status = models.RetryStatusScheduled
			r.ClaimedAt = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (f *fakeRepo) EnsureScheduledService(svc *models.ScheduledService, weekStart, weekEnd time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.services {
		if existing.SubscriptionID != svc.SubscriptionID {
			continue
		}
		if !existing.ScheduledFor.Before(weekStart) && existing.ScheduledFor.Before(weekEnd) {
			return false, nil
		}
	}
	svc.ID = f.id()
	stored := *svc
	f.services = append(f.services, &stored)
	return true, nil
}

func (f *fakeRepo) CancelScheduledServices(subscriptionID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, svc := range f.services {
		if svc.SubscriptionID == subscriptionID && svc.Status == models.ServiceStatusScheduled {
			svc.Status = models.ServiceStatusCancelled
		}
	}
	return nil
}

func (f *fakeRepo) GetBatchByID(id uint) (*models.PaymentBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *b
	return &out, nil
}

func (f *fakeRepo) GetBatchItems(batchID uint) ([]models.BatchPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []models.BatchPayment
	for _, item := range f.batchItems {
		if item.BatchID == batchID {
			items = append(items, *item)
		}
	}
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[j].ID < items[i].ID {
				items[i], items[j] = items[j], items[i]
			}
		}
	}
	return items, nil
}

func (f *fakeRepo) CreateBatch(batch *models.PaymentBatch, items []models.BatchPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch.ID = f.id()
	stored := *batch
	f.batches[batch.ID] = &stored
	for i := range items {
		items[i].BatchID = batch.ID
		items[i].ID = f.id()
		item := items[i]
		f.batchItems[item.ID] = &item
	}
	return nil
}

func (f *fakeRepo) MarkBatchProcessing(id uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return false, nil
	}
	if b.Status != models.BatchStatusDraft && b.Status != models.BatchStatusFailed {
		return false, nil
	}
	b.Status = models.BatchStatusProcessing
	return true, nil
}

func (f *fakeRepo) SaveBatchItem(item *models.BatchPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *item
	f.batchItems[item.ID] = &stored
	return nil
}

func (f *fakeRepo) FinalizeBatch(batch *models.PaymentBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *batch
	f.batches[batch.ID] = &stored
	return nil
}

func (f *fakeRepo) DeleteDraftBatch(id uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.Status != models.BatchStatusDraft {
		return false, nil
	}
	delete(f.batches, id)
	for itemID, item := range f.batchItems {
		if item.BatchID == id {
			delete(f.batchItems, itemID)
		}
	}
	return true, nil
}

// fakeCharger replays scripted outcomes in order.
type fakeCharger struct {
	mu       sync.Mutex
	outcomes []ChargeOutcome
	calls    int
}

func (f *fakeCharger) ChargeOffSession(ctx context.Context, stripeCustomerID, stripePaymentMethodID string, amount decimal.Decimal, description string) ChargeOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.outcomes) == 0 {
		return ChargeOutcome{Kind: ChargeTransientError, Detail: "no scripted outcome"}
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return out
}

// fakeRail settles payouts in memory, failing the recipients it is told to.
type fakeRail struct {
	failFor map[uint]error
	sent    int
}

func (f *fakeRail) Send(ctx context.Context, recipient *models.Customer, item *models.BatchPayment) (string, error) {
	if err, ok := f.failFor[item.RecipientID]; ok {
		return "", err
	}
	f.sent++
	return fmt.Sprintf("ref-%d", item.ID), nil
}

type fakeRailSelector struct {
	rail PayoutRail
	err  error
}

func (f *fakeRailSelector) RailFor(payoutMethod string) (PayoutRail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rail, nil
}

// fakeNotifier counts notification calls.
type fakeNotifier struct {
	mu             sync.Mutex
	failed         int
	requiresAction int
	exhausted      int
}

func (f *fakeNotifier) PaymentFailed(customer *models.Customer, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed++
}

func (f *fakeNotifier) PaymentRequiresAction(customer *models.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requiresAction++
}

func (f *fakeNotifier) RetriesExhausted(customer *models.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exhausted++
}

var testNow = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, charger *fakeCharger, rails RailSelector, notifier Notifier) *Service {
	svc := NewService(repo, charger, rails, notifier)
	svc.now = func() time.Time { return testNow }
	return svc
}
