/**
 * @description
 * This file contains the webhook reconciler: the authoritative path that
 * settles payment outcomes from Razorpay's asynchronous webhook deliveries.
 * Captured payments activate enrollments, failed payments record the failure,
 * and processed refunds revoke access. Every event is applied idempotently so
 * gateway redeliveries are safe.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yogatara/enrollment-service/internal/domain"
	"github.com/yogatara/enrollment-service/internal/store"
	"github.com/yogatara/enrollment-service/pkg/rabbitmq"
	"github.com/yogatara/enrollment-service/pkg/razorpay"
)

// WebhookReconciler applies gateway webhook events against local payment and
// enrollment state.
type WebhookReconciler struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	webhookSecret string
	now           func() time.Time
}

// WebhookReconciler returns the reconciler wired to the service's
// dependencies.
func (s *Service) WebhookReconciler() *WebhookReconciler {
	return &WebhookReconciler{
		repo:          s.repo,
		eventProducer: s.eventProducer,
		webhookSecret: s.razorpayWebhookSecret,
		now:           s.now,
	}
}

// HandleEvent verifies and applies one webhook delivery. The signature is
// checked against the raw body before anything is parsed; a mismatch returns
// ErrSignatureMismatch with no state change. Events referencing unknown
// payments, unrecognized event names, and replays of already-settled payments
// are all acknowledged as no-ops so the gateway stops redelivering them.
func (r *WebhookReconciler) HandleEvent(ctx context.Context, body []byte, signature string) error {
	if !razorpay.VerifyWebhookSignature(body, signature, r.webhookSecret) {
		log.Printf("level=warn component=webhook msg=\"webhook signature mismatch\"")
		return ErrSignatureMismatch
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode webhook body: %w", err)
	}

	entity := event.Payload.Payment.Entity
	entityJSON, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to re-encode payment entity: %w", err)
	}

	switch event.Event {
	case domain.EventPaymentCaptured:
		return r.handleCaptured(ctx, entity, entityJSON)
	case domain.EventPaymentFailed:
		return r.handleFailed(ctx, entity, entityJSON)
	case domain.EventRefundProcessed:
		return r.handleRefunded(ctx, entity, entityJSON)
	default:
		log.Printf("level=info component=webhook msg=\"ignoring unhandled event\" event=%s", event.Event)
		return nil
	}
}

func (r *WebhookReconciler) handleCaptured(ctx context.Context, entity domain.PaymentEntity, entityJSON []byte) error {
	result, err := r.repo.ApplyCaptureEvent(ctx, entity.OrderID, entity.ID, entityJSON, r.now())
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=warn component=webhook msg=\"capture for unknown order; acknowledging\" order_id=%s", entity.OrderID)
			return nil
		}
		return err
	}

	switch result.Outcome {
	case domain.CaptureApplied:
		log.Printf("level=info component=webhook msg=\"payment captured, enrollment activated\" order_id=%s enrollment_id=%s", entity.OrderID, result.EnrollmentID)
		r.publishLifecycleEvent(ctx, rabbitmq.RoutingKeyEnrollmentActivated, rabbitmq.EnrollmentEvent{
			EnrollmentID: result.EnrollmentID,
			UserID:       result.UserID,
			CourseID:     result.CourseID,
			Amount:       result.Amount,
			Currency:     result.Currency,
			Timestamp:    r.now(),
		})
	case domain.CaptureRejectedExpired:
		log.Printf("level=warn component=webhook msg=\"capture arrived after enrollment expiry; access withheld\" order_id=%s enrollment_id=%s", entity.OrderID, result.EnrollmentID)
	case domain.CaptureNoop:
		log.Printf("level=info component=webhook msg=\"capture replay; no-op\" order_id=%s", entity.OrderID)
	}
	return nil
}

func (r *WebhookReconciler) handleFailed(ctx context.Context, entity domain.PaymentEntity, entityJSON []byte) error {
	reason := entity.ErrorDescription
	if reason == "" {
		reason = "Payment failed"
	}
	err := r.repo.ApplyFailureEvent(ctx, entity.OrderID, reason, entityJSON)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=warn component=webhook msg=\"failure for unknown order; acknowledging\" order_id=%s", entity.OrderID)
			return nil
		}
		return err
	}
	log.Printf("level=info component=webhook msg=\"payment failure recorded\" order_id=%s reason=%q", entity.OrderID, reason)
	return nil
}

func (r *WebhookReconciler) handleRefunded(ctx context.Context, entity domain.PaymentEntity, entityJSON []byte) error {
	result, err := r.repo.ApplyRefundEvent(ctx, entity.OrderID, entityJSON)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=warn component=webhook msg=\"refund for unknown order; acknowledging\" order_id=%s", entity.OrderID)
			return nil
		}
		return err
	}
	if !result.Applied {
		log.Printf("level=info component=webhook msg=\"refund replay; no-op\" order_id=%s", entity.OrderID)
		return nil
	}

	log.Printf("level=info component=webhook msg=\"refund processed, enrollment revoked\" order_id=%s enrollment_id=%s", entity.OrderID, result.EnrollmentID)
	r.publishLifecycleEvent(ctx, rabbitmq.RoutingKeyEnrollmentRefunded, rabbitmq.EnrollmentEvent{
		EnrollmentID: result.EnrollmentID,
		UserID:       result.UserID,
		CourseID:     result.CourseID,
		Amount:       result.Amount,
		Currency:     result.Currency,
		Timestamp:    r.now(),
	})
	return nil
}

// publishLifecycleEvent publishes a broker event on a best-effort basis; the
// database transition has already committed and must not be rolled back by a
// broker outage.
func (r *WebhookReconciler) publishLifecycleEvent(ctx context.Context, routingKey string, event rabbitmq.EnrollmentEvent) {
	if r.eventProducer == nil {
		return
	}
	if err := r.eventProducer.Publish(ctx, rabbitmq.ExchangeEnrollmentEvents, routingKey, event); err != nil {
		log.Printf("level=error component=webhook msg=\"lifecycle event publish failed\" routing_key=%s enrollment_id=%s err=%v", routingKey, event.EnrollmentID, err)
	}
}
