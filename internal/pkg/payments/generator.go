package payments

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sudsy-app/sudsy-payments/app/models"
)

// serviceWeeksPerPeriod is how many weekly appointments one billing period
// materializes.
const serviceWeeksPerPeriod = 4

// GenerateServicesForSubscription materializes the weekly appointments for
// a subscription's current billing period. Safe to invoke any number of
// times, concurrently included: the per-week existence check runs inside
// the same transaction as the insert, so redelivered webhooks and manual
// retriggering never produce duplicate weeks.
func (s *Service) GenerateServicesForSubscription(subscriptionID uint) error {
	sub, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != models.SubscriptionStatusActive {
		log.Infof("subscription %d is %s, skipping service generation", sub.ID, sub.Status)
		return nil
	}

	// Earnings are snapshotted at creation; later fee or share changes do
	// not touch existing rows.
	earnings := WorkerEarnings(sub.Amount)

	for week := 0; week < serviceWeeksPerPeriod; week++ {
		weekStart := mondayOf(sub.StartDate.AddDate(0, 0, 7*week))
		weekEnd := weekStart.AddDate(0, 0, 7)

		created, err := s.repo.EnsureScheduledService(&models.ScheduledService{
			CustomerID:        sub.CustomerID,
			SubscriptionID:    sub.ID,
			ScheduledFor:      weekStart,
			Status:            models.ServiceStatusScheduled,
			PotentialEarnings: earnings,
		}, weekStart, weekEnd)
		if err != nil {
			return err
		}
		if created {
			log.Infof("scheduled service for subscription %d in week of %s", sub.ID, weekStart.Format("2006-01-02"))
		}
	}
	return nil
}

// mondayOf anchors a timestamp to the Monday of its ISO week, at midnight
// UTC.
func mondayOf(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started the previous Monday
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1-weekday)
}
