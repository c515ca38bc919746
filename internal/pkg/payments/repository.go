package payments

import (
	"time"

	"github.com/sudsy-app/sudsy-payments/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the ledger operations used by the payment engine.
type Repository interface {
	// Webhook event ledger (idempotency boundary).
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	CreateSecurityAuditLog(entry *models.SecurityAuditLog) error

	// Customers and subscriptions.
	GetCustomerByID(id uint) (*models.Customer, error)
	GetCustomerByStripeID(stripeCustomerID string) (*models.Customer, error)
	GetSubscriptionByID(id uint) (*models.Subscription, error)
	GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error

	// Payments (append-only).
	GetPaymentByID(id uint) (*models.Payment, error)
	CreatePaymentIfAbsent(payment *models.Payment) (bool, error)
	CreatePayment(payment *models.Payment) error

	// Payment retries.
	CreatePaymentRetry(retry *models.PaymentRetry) error
	DueRetries(now time.Time) ([]models.PaymentRetry, error)
	ClaimRetry(id uint, now time.Time) (bool, error)
	SaveRetry(retry *models.PaymentRetry) error
	ReclaimStalePending(olderThan time.Time) (int64, error)

	// Scheduled services.
	EnsureScheduledService(svc *models.ScheduledService, weekStart, weekEnd time.Time) (bool, error)
	CancelScheduledServices(subscriptionID uint) error

	// Payout batches.
	GetBatchByID(id uint) (*models.PaymentBatch, error)
	GetBatchItems(batchID uint) ([]models.BatchPayment, error)
	CreateBatch(batch *models.PaymentBatch, items []models.BatchPayment) error
	MarkBatchProcessing(id uint) (bool, error)
	SaveBatchItem(item *models.BatchPayment) error
	FinalizeBatch(batch *models.PaymentBatch) error
	DeleteDraftBatch(id uint) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) CreateSecurityAuditLog(entry *models.SecurityAuditLog) error {
	return r.db.Create(entry).Error
}

func (r *gormRepository) GetCustomerByID(id uint) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) GetCustomerByStripeID(stripeCustomerID string) (*models.Customer, error) {
	var c models.Customer
	if err := r.db.Where("stripe_customer_id = ?", stripeCustomerID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) GetSubscriptionByID(id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) GetPaymentByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePaymentIfAbsent inserts a settlement record unless an identical
// outcome was already recorded for the same processor reference. The check
// and the insert run in one transaction so two concurrent deliveries of
// the same signal cannot both insert.
func (r *gormRepository) CreatePaymentIfAbsent(payment *models.Payment) (bool, error) {
	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Payment{}).Where("status = ?", payment.Status)
		if payment.StripePaymentIntentID != "" {
			q = q.Where("stripe_payment_intent_id = ?", payment.StripePaymentIntentID)
		} else {
			q = q.Where("stripe_invoice_id = ?", payment.StripeInvoiceID)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *gormRepository) CreatePayment(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *gormRepository) CreatePaymentRetry(retry *models.PaymentRetry) error {
	return r.db.Create(retry).Error
}

func (r *gormRepository) DueRetries(now time.Time) ([]models.PaymentRetry, error) {
	var retries []models.PaymentRetry
	err := r.db.
		Where("status = ? AND next_retry_at <= ?", models.RetryStatusScheduled, now).
		Order("next_retry_at ASC").
		Find(&retries).Error
	return retries, err
}

// ClaimRetry atomically flips one retry SCHEDULED -> PENDING. The
// conditioned update is the mutual exclusion between concurrent sweeps; a
// second claimer sees zero rows affected and skips the row.
func (r *gormRepository) ClaimRetry(id uint, now time.Time) (bool, error) {
	tx := r.db.Model(&models.PaymentRetry{}).
		Where("id = ? AND status = ?", id, models.RetryStatusScheduled).
		Updates(map[string]interface{}{
			"status":     models.RetryStatusPending,
			"claimed_at": &now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) SaveRetry(retry *models.PaymentRetry) error {
	return r.db.Save(retry).Error
}

// ReclaimStalePending returns PENDING rows whose claim is older than the
// threshold to SCHEDULED so a later sweep picks them up again. A PENDING
// row that never resolves is an operational leak.
func (r *gormRepository) ReclaimStalePending(olderThan time.Time) (int64, error) {
	tx := r.db.Model(&models.PaymentRetry{}).
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at < ?", models.RetryStatusPending, olderThan).
		Updates(map[string]interface{}{
			"status":     models.RetryStatusScheduled,
			"claimed_at": nil,
		})
	return tx.RowsAffected, tx.Error
}

// EnsureScheduledService inserts a service unless one already exists for
// the same subscription and week. Lookup and insert share one transaction
// so concurrent generator runs cannot create duplicate weeks.
func (r *gormRepository) EnsureScheduledService(svc *models.ScheduledService, weekStart, weekEnd time.Time) (bool, error) {
	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ScheduledService{}).
			Where("subscription_id = ? AND scheduled_for >= ? AND scheduled_for < ?", svc.SubscriptionID, weekStart, weekEnd).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(svc).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *gormRepository) CancelScheduledServices(subscriptionID uint) error {
	return r.db.Model(&models.ScheduledService{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, models.ServiceStatusScheduled).
		Update("status", models.ServiceStatusCancelled).Error
}

func (r *gormRepository) GetBatchByID(id uint) (*models.PaymentBatch, error) {
	var b models.PaymentBatch
	if err := r.db.First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *gormRepository) GetBatchItems(batchID uint) ([]models.BatchPayment, error) {
	var items []models.BatchPayment
	err := r.db.Where("batch_id = ?", batchID).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *gormRepository) CreateBatch(batch *models.PaymentBatch, items []models.BatchPayment) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].BatchID = batch.ID
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

// MarkBatchProcessing claims a batch for one processing run. Only DRAFT and
// FAILED batches are claimable; everything else is a state conflict.
func (r *gormRepository) MarkBatchProcessing(id uint) (bool, error) {
	tx := r.db.Model(&models.PaymentBatch{}).
		Where("id = ? AND status IN ?", id, []string{models.BatchStatusDraft, models.BatchStatusFailed}).
		Update("status", models.BatchStatusProcessing)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) SaveBatchItem(item *models.BatchPayment) error {
	return r.db.Save(item).Error
}

func (r *gormRepository) FinalizeBatch(batch *models.PaymentBatch) error {
	return r.db.Save(batch).Error
}

func (r *gormRepository) DeleteDraftBatch(id uint) (bool, error) {
	deleted := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status = ?", id, models.BatchStatusDraft).Delete(&models.PaymentBatch{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("batch_id = ?", id).Delete(&models.BatchPayment{}).Error
	})
	return deleted, err
}
