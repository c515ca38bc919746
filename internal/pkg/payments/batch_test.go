package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudsy-app/sudsy-payments/app/models"
	"gorm.io/gorm"
)

func earningsBatch(repo *fakeRepo, recipients int) (*models.PaymentBatch, []*models.Customer) {
	customers := make([]*models.Customer, 0, recipients)
	items := make([]models.BatchPayment, 0, recipients)
	for i := 0; i < recipients; i++ {
		c := repo.addCustomer(models.Customer{
			Name:            "Worker",
			Email:           "worker@example.com",
			StripeAccountID: "acct_worker",
		})
		customers = append(customers, c)
		items = append(items, models.BatchPayment{
			Type:        models.BatchPaymentTypeEarnings,
			RecipientID: c.ID,
			Amount:      decimal.RequireFromString("32.55"),
			Status:      models.BatchPaymentStatusPending,
		})
	}
	batch := repo.addBatch(models.PaymentBatch{
		Reference: "b-1",
		Name:      "Week 10 earnings",
		Status:    models.BatchStatusDraft,
		CreatedBy: "operator",
	}, items)
	return batch, customers
}

func TestProcessBatchAllItemsSucceed(t *testing.T) {
	repo := newFakeRepo()
	rail := &fakeRail{}
	svc := newTestService(repo, &fakeCharger{}, &fakeRailSelector{rail: rail}, nil)
	batch, _ := earningsBatch(repo, 3)

	summary, err := svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodDirectTransfer)
	require.NoError(t, err)
	assert.Equal(t, &BatchSummary{
		Status:        models.BatchStatusCompleted,
		TotalPayments: 3,
		SuccessCount:  3,
		FailedCount:   0,
	}, summary)

	got, err := repo.GetBatchByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, got.Status)
	assert.Equal(t, models.PayoutMethodDirectTransfer, got.PayoutMethod)
	require.NotNil(t, got.ProcessedAt)

	items, err := repo.GetBatchItems(batch.ID)
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, models.BatchPaymentStatusSucceeded, item.Status)
		assert.NotEmpty(t, item.ExternalRef)
	}
}

func TestProcessBatchPartialFailureIsolatesItems(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCharger{}, nil, nil)
	batch, customers := earningsBatch(repo, 3)

	rail := &fakeRail{failFor: map[uint]error{
		customers[1].ID: errors.New("account frozen"),
	}}
	svc.rails = &fakeRailSelector{rail: rail}

	summary, err := svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodDirectTransfer)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPartial, summary.Status)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)

	items, err := repo.GetBatchItems(batch.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, models.BatchPaymentStatusSucceeded, items[0].Status)
	assert.Equal(t, models.BatchPaymentStatusFailed, items[1].Status)
	assert.Equal(t, "account frozen", items[1].ErrorMessage)
	assert.Equal(t, models.BatchPaymentStatusSucceeded, items[2].Status)
}

func TestProcessBatchAllItemsFail(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCharger{}, nil, nil)
	batch, customers := earningsBatch(repo, 2)

	rail := &fakeRail{failFor: map[uint]error{
		customers[0].ID: errors.New("account frozen"),
		customers[1].ID: errors.New("account frozen"),
	}}
	svc.rails = &fakeRailSelector{rail: rail}

	summary, err := svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodPeerApp)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, summary.Status)

	got, err := repo.GetBatchByID(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, got.Status)
}

func TestProcessBatchReprocessFailedSkipsSettledItems(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCharger{}, nil, nil)
	batch, customers := earningsBatch(repo, 2)

	failing := &fakeRail{failFor: map[uint]error{
		customers[1].ID: errors.New("account frozen"),
	}}
	svc.rails = &fakeRailSelector{rail: failing}
	summary, err := svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodDirectTransfer)
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusPartial, summary.Status)

	// PARTIAL is terminal; only FAILED batches may run again.
	_, err = svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodDirectTransfer)
	assert.ErrorIs(t, err, ErrBatchNotProcessable)

	// Force FAILED to exercise the rerun path, then settle with a healthy
	// rail. The already-settled item must not be paid twice.
	stored, err := repo.GetBatchByID(batch.ID)
	require.NoError(t, err)
	stored.Status = models.BatchStatusFailed
	require.NoError(t, repo.FinalizeBatch(stored))

	healthy := &fakeRail{}
	svc.rails = &fakeRailSelector{rail: healthy}
	summary, err = svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodDirectTransfer)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, summary.Status)
	assert.Equal(t, 1, healthy.sent)
}

func TestProcessBatchRejectsCompletedBatch(t *testing.T) {
	repo := newFakeRepo()
	rail := &fakeRail{}
	svc := newTestService(repo, &fakeCharger{}, &fakeRailSelector{rail: rail}, nil)
	batch, _ := earningsBatch(repo, 1)

	_, err := svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodCash)
	require.NoError(t, err)

	_, err = svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodCash)
	assert.ErrorIs(t, err, ErrBatchNotProcessable)
}

func TestProcessBatchRejectsEmptyBatch(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCharger{}, &fakeRailSelector{rail: &fakeRail{}}, nil)
	batch := repo.addBatch(models.PaymentBatch{
		Reference: "b-empty",
		Name:      "Empty",
		Status:    models.BatchStatusDraft,
	}, nil)

	_, err := svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodCash)
	assert.ErrorIs(t, err, ErrBatchEmpty)
}

func TestProcessBatchRejectsUnknownPayoutMethod(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCharger{}, &fakeRailSelector{rail: &fakeRail{}}, nil)
	batch, _ := earningsBatch(repo, 1)

	_, err := svc.ProcessBatch(context.Background(), batch.ID, "WIRE")
	assert.ErrorIs(t, err, ErrInvalidPayoutMethod)
}

func TestProcessBatchUnknownRecipientFailsItem(t *testing.T) {
	repo := newFakeRepo()
	rail := &fakeRail{}
	svc := newTestService(repo, &fakeCharger{}, &fakeRailSelector{rail: rail}, nil)
	batch := repo.addBatch(models.PaymentBatch{
		Reference: "b-ghost",
		Name:      "Ghost recipient",
		Status:    models.BatchStatusDraft,
	}, []models.BatchPayment{{
		Type:        models.BatchPaymentTypeRefund,
		RecipientID: 9999,
		Amount:      decimal.RequireFromString("10.00"),
		Status:      models.BatchPaymentStatusPending,
	}})

	summary, err := svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodCheck)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFailed, summary.Status)

	items, err := repo.GetBatchItems(batch.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "recipient not found", items[0].ErrorMessage)
	assert.Equal(t, 0, rail.sent)
}

func TestDeleteBatchOnlyDraft(t *testing.T) {
	repo := newFakeRepo()
	rail := &fakeRail{}
	svc := newTestService(repo, &fakeCharger{}, &fakeRailSelector{rail: rail}, nil)
	batch, _ := earningsBatch(repo, 1)

	_, err := svc.ProcessBatch(context.Background(), batch.ID, models.PayoutMethodCash)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteBatch(batch.ID), ErrBatchNotProcessable)

	draft := repo.addBatch(models.PaymentBatch{
		Reference: "b-draft",
		Name:      "Draft",
		Status:    models.BatchStatusDraft,
	}, []models.BatchPayment{{
		Type:        models.BatchPaymentTypeReferral,
		RecipientID: 1,
		Amount:      decimal.RequireFromString("5.00"),
		Status:      models.BatchPaymentStatusPending,
	}})
	require.NoError(t, svc.DeleteBatch(draft.ID))

	_, err = repo.GetBatchByID(draft.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
