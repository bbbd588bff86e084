package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"whatsbot/internal/common/logger"
	"whatsbot/internal/common/metrics"
	"whatsbot/internal/models"
	"whatsbot/internal/payments"
	"whatsbot/internal/store"
)

// Payment event kinds the gateway delivers.
const (
	EventTransactionUpdated = "transaction.updated"
	EventSubscriptionCreate = "subscription.created"
	EventSubscriptionCharge = "subscription.charge"
)

// Transaction statuses carried on gateway events.
const (
	txApproved = "APPROVED"
	txDeclined = "DECLINED"
)

// paymentEvent is the gateway webhook envelope.
type paymentEvent struct {
	Event string `json:"event"`
	Data  struct {
		Transaction struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			CustomerEmail string `json:"customer_email"`
		} `json:"transaction"`
		Subscription struct {
			ID string `json:"id"`
		} `json:"subscription"`
		Charge struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"charge"`
	} `json:"data"`
}

// Notifier sends the subscription-activated mail. Optional; nil disables it.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, email, name string) error
}

// PaymentPipeline handles inbound payment-gateway webhooks. Signature
// verification is the only hard rejection point; once a payload is verified,
// every handler failure is isolated and the delivery is still acknowledged so
// the gateway does not retry on our downstream errors.
type PaymentPipeline struct {
	secret   string
	users    store.Users
	notifier Notifier
	logger   logger.Logger
}

func NewPaymentPipeline(secret string, users store.Users, notifier Notifier, log logger.Logger) *PaymentPipeline {
	return &PaymentPipeline{
		secret:   secret,
		users:    users,
		notifier: notifier,
		logger:   log,
	}
}

// Process verifies and applies one payment webhook. The raw body must be the
// exact bytes the gateway signed.
func (p *PaymentPipeline) Process(ctx context.Context, rawBody []byte, signature string) error {
	started := time.Now()
	metrics.WebhooksReceived.WithLabelValues("payments").Inc()

	if err := payments.VerifySignature(rawBody, signature, p.secret); err != nil {
		metrics.WebhooksRejected.WithLabelValues("payments", "bad_signature").Inc()
		p.logger.Warn("Payment webhook signature rejected", nil)
		return err
	}

	var event paymentEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		// Signed but unreadable. Acknowledge so the gateway does not
		// retry a payload we will never parse.
		p.logger.WithError(err).Error("Verified payment payload is not JSON", nil)
		metrics.PipelineDuration.WithLabelValues("payments").Observe(time.Since(started).Seconds())
		return nil
	}

	p.dispatch(ctx, &event)
	metrics.PipelineDuration.WithLabelValues("payments").Observe(time.Since(started).Seconds())
	return nil
}

func (p *PaymentPipeline) dispatch(ctx context.Context, event *paymentEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PipelineStageFailures.WithLabelValues("payment_handler").Inc()
			p.logger.Error("Payment handler panicked", map[string]interface{}{
				"event": event.Event,
				"panic": r,
			})
		}
	}()

	switch event.Event {
	case EventTransactionUpdated:
		p.handleTransactionUpdated(ctx, event)
	case EventSubscriptionCreate:
		p.logger.Info("Subscription created", map[string]interface{}{
			"subscription_id": event.Data.Subscription.ID,
		})
	case EventSubscriptionCharge:
		p.handleSubscriptionCharge(event)
	default:
		p.logger.Info("Unhandled payment event", map[string]interface{}{"event": event.Event})
	}
}

func (p *PaymentPipeline) handleTransactionUpdated(ctx context.Context, event *paymentEvent) {
	tx := event.Data.Transaction

	switch strings.ToUpper(tx.Status) {
	case txApproved:
		p.logger.Info("Payment approved", map[string]interface{}{"transaction_id": tx.ID})

		user, err := p.users.GetUserByEmail(ctx, tx.CustomerEmail)
		if err != nil {
			metrics.PipelineStageFailures.WithLabelValues("payment_handler").Inc()
			p.logger.WithError(err).Warn("No user for approved transaction", map[string]interface{}{
				"transaction_id": tx.ID,
			})
			return
		}

		if err := p.users.UpdateUserSubscription(ctx, user.ID, models.SubscriptionActive, tx.ID); err != nil {
			metrics.PipelineStageFailures.WithLabelValues("payment_handler").Inc()
			p.logger.WithError(err).Error("Subscription activation failed", map[string]interface{}{
				"user_id":        user.ID,
				"transaction_id": tx.ID,
			})
			return
		}
		p.logger.Info("User subscription activated", map[string]interface{}{"user_id": user.ID})

		if p.notifier != nil {
			if err := p.notifier.SubscriptionActivated(ctx, user.Email, user.Name); err != nil {
				p.logger.WithError(err).Warn("Activation mail not sent", map[string]interface{}{
					"user_id": user.ID,
				})
			}
		}

	case txDeclined:
		// A declined payment never demotes an existing subscription;
		// cancellation is a separate explicit flow.
		p.logger.Warn("Payment declined", map[string]interface{}{"transaction_id": tx.ID})

	default:
		p.logger.Debug("Transaction status ignored", map[string]interface{}{
			"transaction_id": tx.ID,
			"status":         tx.Status,
		})
	}
}

func (p *PaymentPipeline) handleSubscriptionCharge(event *paymentEvent) {
	charge := event.Data.Charge
	p.logger.Info("Subscription charge", map[string]interface{}{
		"subscription_id": event.Data.Subscription.ID,
		"charge_id":       charge.ID,
	})
	if strings.ToUpper(charge.Status) == txApproved {
		p.logger.Info("Subscription charge approved", map[string]interface{}{"charge_id": charge.ID})
	}
}
