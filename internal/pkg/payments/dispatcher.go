package payments

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sudsy-app/sudsy-payments/app/models"
)

// EventResult describes how a verified event was handled.
type EventResult struct {
	// Duplicate means the event was already applied; nothing ran.
	Duplicate bool
	// Ignored means the kind has no handler and was acknowledged as-is.
	Ignored bool
}

// ProcessEvent routes one verified processor event to its handler. The
// event is recorded before handling (insert-if-absent on the provider
// event id) and only marked applied after the handler succeeds, so a
// redelivery after a handler failure re-attempts the work.
func (s *Service) ProcessEvent(ctx context.Context, provider, eventID, kind string, payload []byte) (*EventResult, error) {
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       kind,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return nil, err
	}
	if !created && stored.Applied() {
		return &EventResult{Duplicate: true}, nil
	}

	handler, ok := s.handlers[kind]
	if !ok {
		// Forward compatibility: the processor may ship kinds we do not
		// know yet. Acknowledge and move on.
		if err := s.repo.MarkWebhookProcessed(stored.ID, ""); err != nil {
			return nil, err
		}
		return &EventResult{Ignored: true}, nil
	}

	if err := handler(ctx, payload); err != nil {
		log.Errorf("handler for %s event %s failed: %v", kind, eventID, err)
		if mErr := s.repo.MarkWebhookProcessed(stored.ID, err.Error()); mErr != nil {
			log.Errorf("could not record handler failure for event %s: %v", eventID, mErr)
		}
		return nil, err
	}

	if err := s.repo.MarkWebhookProcessed(stored.ID, ""); err != nil {
		return nil, err
	}
	return &EventResult{}, nil
}

// RecordSecurityViolation audits a rejected delivery (bad signature).
func (s *Service) RecordSecurityViolation(ip, userAgent, reason string) {
	if err := s.repo.CreateSecurityAuditLog(&models.SecurityAuditLog{
		IP:        ip,
		UserAgent: userAgent,
		Reason:    reason,
	}); err != nil {
		log.Errorf("could not write security audit log: %v", err)
	}
}
