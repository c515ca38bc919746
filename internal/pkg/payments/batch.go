package payments

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sudsy-app/sudsy-payments/app/models"
)

var (
	// ErrBatchNotProcessable means the batch is COMPLETED, PARTIAL, or
	// already PROCESSING; a second run must be rejected, not re-queued.
	ErrBatchNotProcessable = errors.New("payment batch is not in a processable state")
	// ErrBatchEmpty means the batch has no payments to settle.
	ErrBatchEmpty = errors.New("payment batch has no payments")
	// ErrInvalidPayoutMethod means the requested rail is not one we support.
	ErrInvalidPayoutMethod = errors.New("invalid payout method")
)

// BatchSummary is the aggregate outcome of one processing run.
type BatchSummary struct {
	Status        string `json:"status"`
	TotalPayments int    `json:"totalPayments"`
	SuccessCount  int    `json:"successCount"`
	FailedCount   int    `json:"failedCount"`
}

// ProcessBatch settles every payment in a batch through the chosen payout
// rail. Item failures are isolated; after all items are attempted the
// batch status is recomputed from item outcomes (COMPLETED iff all
// succeeded, FAILED iff all failed, PARTIAL otherwise). Reprocessing a
// FAILED batch skips items that already succeeded so nobody is paid twice.
func (s *Service) ProcessBatch(ctx context.Context, batchID uint, payoutMethod string) (*BatchSummary, error) {
	if !models.ValidPayoutMethod(payoutMethod) {
		return nil, ErrInvalidPayoutMethod
	}
	rail, err := s.rails.RailFor(payoutMethod)
	if err != nil {
		return nil, err
	}

	batch, err := s.repo.GetBatchByID(batchID)
	if err != nil {
		return nil, err
	}
	if !batch.IsProcessable() {
		return nil, ErrBatchNotProcessable
	}
	items, err := s.repo.GetBatchItems(batchID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrBatchEmpty
	}

	// Conditioned claim: a concurrent request that lost the race sees a
	// state conflict instead of running the batch twice.
	claimed, err := s.repo.MarkBatchProcessing(batchID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrBatchNotProcessable
	}

	for i := range items {
		item := &items[i]
		if item.Status == models.BatchPaymentStatusSucceeded {
			continue
		}
		s.settleBatchItem(ctx, rail, item)
	}

	// Aggregate status is a pure function of item outcomes; recompute,
	// never hand-set.
	success, failed := 0, 0
	for i := range items {
		switch items[i].Status {
		case models.BatchPaymentStatusSucceeded:
			success++
		case models.BatchPaymentStatusFailed:
			failed++
		}
	}
	switch {
	case success == len(items):
		batch.Status = models.BatchStatusCompleted
	case failed == len(items):
		batch.Status = models.BatchStatusFailed
	default:
		batch.Status = models.BatchStatusPartial
	}

	now := s.now()
	batch.PayoutMethod = payoutMethod
	batch.TotalPayments = len(items)
	batch.SuccessCount = success
	batch.FailedCount = failed
	batch.ProcessedAt = &now
	if err := s.repo.FinalizeBatch(batch); err != nil {
		return nil, err
	}

	return &BatchSummary{
		Status:        batch.Status,
		TotalPayments: batch.TotalPayments,
		SuccessCount:  success,
		FailedCount:   failed,
	}, nil
}

func (s *Service) settleBatchItem(ctx context.Context, rail PayoutRail, item *models.BatchPayment) {
	recipient, err := s.repo.GetCustomerByID(item.RecipientID)
	if err != nil {
		item.Status = models.BatchPaymentStatusFailed
		item.ErrorMessage = "recipient not found"
	} else if ref, err := rail.Send(ctx, recipient, item); err != nil {
		item.Status = models.BatchPaymentStatusFailed
		item.ErrorMessage = err.Error()
	} else {
		item.Status = models.BatchPaymentStatusSucceeded
		item.ExternalRef = ref
		item.ErrorMessage = ""
	}

	if err := s.repo.SaveBatchItem(item); err != nil {
		log.Errorf("could not persist outcome for batch payment %d: %v", item.ID, err)
	}
}

// DeleteBatch removes a batch that is still in DRAFT. Anything further
// along carries audit state and must not disappear.
func (s *Service) DeleteBatch(batchID uint) error {
	if _, err := s.repo.GetBatchByID(batchID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteDraftBatch(batchID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrBatchNotProcessable
	}
	return nil
}
