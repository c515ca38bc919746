package notify

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"github.com/sudsy-app/sudsy-payments/app/models"
	"github.com/sudsy-app/sudsy-payments/internal/pkg/mail"
)

// MailNotifier delivers customer payment notifications over email.
// Every send is fire-and-forget: delivery runs on its own goroutine and
// failures are logged, never surfaced into the payment flow.
type MailNotifier struct{}

func NewMailNotifier() *MailNotifier {
	return &MailNotifier{}
}

func (n *MailNotifier) PaymentFailed(customer *models.Customer, amount decimal.Decimal) {
	subject := "We couldn't process your payment"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your payment of $%s didn't go through. We'll retry automatically over the next few days. "+
			"If the problem persists, please update your payment method.</p>",
		customer.Name, amount.StringFixed(2))
	n.send(customer, subject, body)
}

func (n *MailNotifier) PaymentRequiresAction(customer *models.Customer) {
	subject := "Action needed to complete your payment"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your bank needs you to confirm a recent payment. "+
			"Please open the app and complete the verification step.</p>",
		customer.Name)
	n.send(customer, subject, body)
}

func (n *MailNotifier) RetriesExhausted(customer *models.Customer) {
	subject := "Your subscription is past due"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>We weren't able to collect your subscription payment after several attempts. "+
			"Your upcoming cleanings are on hold until your payment method is updated.</p>",
		customer.Name)
	n.send(customer, subject, body)
}

func (n *MailNotifier) send(customer *models.Customer, subject, body string) {
	if customer == nil || customer.Email == "" {
		return
	}
	to := customer.Email
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("notification send panicked: %v", r)
			}
		}()
		if err := mail.SendMail(to, subject, body); err != nil {
			log.Errorf("could not notify %s (%q): %v", to, subject, err)
		}
	}()
}
