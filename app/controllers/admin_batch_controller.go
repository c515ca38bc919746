package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sudsy-app/sudsy-payments/app/models"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/database"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/payments"
	"gorm.io/gorm"
)

var validate = validator.New()

type createBatchPaymentRequest struct {
	Type        string `json:"type" validate:"required,oneof=EARNINGS REFERRAL REFUND"`
	RecipientID uint   `json:"recipientId" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
}

type createBatchRequest struct {
	Name     string                      `json:"name" validate:"required,max=120"`
	Payments []createBatchPaymentRequest `json:"payments" validate:"required,min=1,dive"`
}

type processBatchRequest struct {
	PayoutMethod string `json:"payoutMethod" validate:"required,oneof=DIRECT_TRANSFER PEER_APP CASH CHECK"`
}

// HandleCreatePaymentBatch stages a DRAFT batch of outbound payments.
func HandleCreatePaymentBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	items := make([]models.BatchPayment, 0, len(req.Payments))
	for _, p := range req.Payments {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil || !amount.IsPositive() {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "amount must be a positive decimal"})
		}
		items = append(items, models.BatchPayment{
			Type:        p.Type,
			RecipientID: p.RecipientID,
			Amount:      amount,
			Status:      models.BatchPaymentStatusPending,
		})
	}

	createdBy := c.Get("X-Admin-User")
	if createdBy == "" {
		createdBy = "operator"
	}
	batch := &models.PaymentBatch{
		Reference: uuid.NewString(),
		Name:      req.Name,
		Status:    models.BatchStatusDraft,
		CreatedBy: createdBy,
	}

	repo := payments.NewRepository(database.GetDB())
	if err := repo.CreateBatch(batch, items); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not create batch"})
	}
	return c.Status(fiber.StatusCreated).JSON(batch)
}

// HandleGetPaymentBatch returns a batch with its items.
func HandleGetPaymentBatch(c *fiber.Ctx) error {
	id, err := parseBatchID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid batch id"})
	}

	repo := payments.NewRepository(database.GetDB())
	batch, err := repo.GetBatchByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "batch not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load batch"})
	}
	items, err := repo.GetBatchItems(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load batch payments"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"batch": batch, "payments": items})
}

// HandleProcessPaymentBatch runs one settlement pass over a batch.
func HandleProcessPaymentBatch(c *fiber.Ctx) error {
	id, err := parseBatchID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid batch id"})
	}

	var req processBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	svc := payments.NewServiceFromDB(database.GetDB())
	summary, err := svc.ProcessBatch(ctx, id, req.PayoutMethod)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "batch not found"})
		case errors.Is(err, payments.ErrBatchNotProcessable), errors.Is(err, payments.ErrBatchEmpty):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, payments.ErrInvalidPayoutMethod):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "batch processing failed"})
		}
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

// HandleDeletePaymentBatch removes a batch that is still in DRAFT.
func HandleDeletePaymentBatch(c *fiber.Ctx) error {
	id, err := parseBatchID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid batch id"})
	}

	svc := payments.NewServiceFromDB(database.GetDB())
	if err := svc.DeleteBatch(id); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "batch not found"})
		case errors.Is(err, payments.ErrBatchNotProcessable):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "only DRAFT batches can be deleted"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not delete batch"})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"deleted": true})
}

func parseBatchID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
