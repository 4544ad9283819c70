package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yogatara/enrollment-service/internal/domain"
	"github.com/yogatara/enrollment-service/internal/store"
	"github.com/yogatara/enrollment-service/pkg/rabbitmq"
)

const testWebhookSecret = "test_webhook_secret"

func signPayment(t *testing.T, orderID, paymentID, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func signBody(t *testing.T, body []byte, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func capturedEventBody(event, orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"status":"captured"}}}}`,
		event, paymentID, orderID,
	))
}

type webhookRepoStub struct {
	store.Repository

	captureResult *domain.CaptureResult
	captureErr    error
	captureCalled bool

	failureCalled bool
	failureReason string

	refundResult *domain.RefundResult
	refundCalled bool
}

func (s *webhookRepoStub) ApplyCaptureEvent(ctx context.Context, orderID, gatewayPaymentID string, entity []byte, now time.Time) (*domain.CaptureResult, error) {
	s.captureCalled = true
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	return s.captureResult, nil
}

func (s *webhookRepoStub) ApplyFailureEvent(ctx context.Context, orderID, reason string, entity []byte) error {
	s.failureCalled = true
	s.failureReason = reason
	return nil
}

func (s *webhookRepoStub) ApplyRefundEvent(ctx context.Context, orderID string, entity []byte) (*domain.RefundResult, error) {
	s.refundCalled = true
	return s.refundResult, nil
}

type publisherSpy struct {
	rabbitmq.EventProducerFallback

	published []string
	events    []rabbitmq.EnrollmentEvent
}

func (p *publisherSpy) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, routingKey)
	if ev, ok := body.(rabbitmq.EnrollmentEvent); ok {
		p.events = append(p.events, ev)
	}
	return nil
}

func newTestReconciler(repo store.Repository, publisher rabbitmq.Publisher) *WebhookReconciler {
	svc := NewService(
		repo,
		&gatewayStub{},
		publisher,
		"rzp_test_key",
		testKeySecret,
		testWebhookSecret,
		decimal.RequireFromString("0.18"),
		60*time.Minute,
		"INR",
		500,
	)
	return svc.WebhookReconciler()
}

func TestHandleEvent_RejectsBadSignatureWithoutTouchingState(t *testing.T) {
	repo := &webhookRepoStub{}
	reconciler := newTestReconciler(repo, &rabbitmq.EventProducerFallback{})

	body := capturedEventBody("payment.captured", "order_1", "pay_1")
	err := reconciler.HandleEvent(context.Background(), body, "not-a-valid-signature")
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
	if repo.captureCalled || repo.failureCalled || repo.refundCalled {
		t.Error("expected no repository calls on signature mismatch")
	}
}

func TestHandleEvent_CaptureAppliedPublishesActivation(t *testing.T) {
	enrollmentID := uuid.New()
	repo := &webhookRepoStub{
		captureResult: &domain.CaptureResult{
			Outcome:      domain.CaptureApplied,
			EnrollmentID: enrollmentID,
			UserID:       uuid.New(),
			CourseID:     uuid.New(),
			Amount:       decimal.RequireFromString("1180.00"),
			Currency:     "INR",
		},
	}
	publisher := &publisherSpy{}
	reconciler := newTestReconciler(repo, publisher)

	body := capturedEventBody("payment.captured", "order_1", "pay_1")
	err := reconciler.HandleEvent(context.Background(), body, signBody(t, body, testWebhookSecret))
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if !repo.captureCalled {
		t.Fatal("expected capture to be applied")
	}
	if len(publisher.published) != 1 || publisher.published[0] != rabbitmq.RoutingKeyEnrollmentActivated {
		t.Fatalf("expected one enrollment.activated event, got %v", publisher.published)
	}
	if publisher.events[0].EnrollmentID != enrollmentID {
		t.Errorf("expected event for enrollment %s, got %s", enrollmentID, publisher.events[0].EnrollmentID)
	}
}

func TestHandleEvent_CaptureAfterExpiryDoesNotPublish(t *testing.T) {
	repo := &webhookRepoStub{
		captureResult: &domain.CaptureResult{
			Outcome:      domain.CaptureRejectedExpired,
			EnrollmentID: uuid.New(),
		},
	}
	publisher := &publisherSpy{}
	reconciler := newTestReconciler(repo, publisher)

	body := capturedEventBody("payment.captured", "order_late", "pay_late")
	err := reconciler.HandleEvent(context.Background(), body, signBody(t, body, testWebhookSecret))
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(publisher.published) != 0 {
		t.Errorf("expected no events for a rejected capture, got %v", publisher.published)
	}
}

func TestHandleEvent_UnknownOrderAcknowledged(t *testing.T) {
	repo := &webhookRepoStub{captureErr: store.ErrPaymentNotFound}
	reconciler := newTestReconciler(repo, &rabbitmq.EventProducerFallback{})

	body := capturedEventBody("payment.captured", "order_unknown", "pay_x")
	err := reconciler.HandleEvent(context.Background(), body, signBody(t, body, testWebhookSecret))
	if err != nil {
		t.Fatalf("expected unknown order to be acknowledged, got %v", err)
	}
}

func TestHandleEvent_UnhandledEventAcknowledged(t *testing.T) {
	repo := &webhookRepoStub{}
	reconciler := newTestReconciler(repo, &rabbitmq.EventProducerFallback{})

	body := capturedEventBody("order.paid", "order_1", "pay_1")
	err := reconciler.HandleEvent(context.Background(), body, signBody(t, body, testWebhookSecret))
	if err != nil {
		t.Fatalf("expected unhandled event to be acknowledged, got %v", err)
	}
	if repo.captureCalled || repo.failureCalled || repo.refundCalled {
		t.Error("expected no repository calls for an unhandled event")
	}
}

func TestHandleEvent_FailureRecordsGatewayReason(t *testing.T) {
	repo := &webhookRepoStub{}
	reconciler := newTestReconciler(repo, &rabbitmq.EventProducerFallback{})

	body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"failed","error_description":"Card declined"}}}}`)
	err := reconciler.HandleEvent(context.Background(), body, signBody(t, body, testWebhookSecret))
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if !repo.failureCalled {
		t.Fatal("expected failure to be recorded")
	}
	if repo.failureReason != "Card declined" {
		t.Errorf("expected gateway reason, got %q", repo.failureReason)
	}
}

func TestHandleEvent_FailureWithoutDescriptionUsesDefaultReason(t *testing.T) {
	repo := &webhookRepoStub{}
	reconciler := newTestReconciler(repo, &rabbitmq.EventProducerFallback{})

	body := capturedEventBody("payment.failed", "order_1", "pay_1")
	err := reconciler.HandleEvent(context.Background(), body, signBody(t, body, testWebhookSecret))
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if repo.failureReason != "Payment failed" {
		t.Errorf("expected default reason, got %q", repo.failureReason)
	}
}

func TestHandleEvent_RefundPublishesRevocation(t *testing.T) {
	enrollmentID := uuid.New()
	repo := &webhookRepoStub{
		refundResult: &domain.RefundResult{
			Applied:      true,
			EnrollmentID: enrollmentID,
		},
	}
	publisher := &publisherSpy{}
	reconciler := newTestReconciler(repo, publisher)

	body := capturedEventBody("refund.processed", "order_1", "pay_1")
	err := reconciler.HandleEvent(context.Background(), body, signBody(t, body, testWebhookSecret))
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(publisher.published) != 1 || publisher.published[0] != rabbitmq.RoutingKeyEnrollmentRefunded {
		t.Fatalf("expected one enrollment.refunded event, got %v", publisher.published)
	}
}

func TestHandleEvent_RefundReplayDoesNotPublish(t *testing.T) {
	repo := &webhookRepoStub{
		refundResult: &domain.RefundResult{Applied: false, EnrollmentID: uuid.New()},
	}
	publisher := &publisherSpy{}
	reconciler := newTestReconciler(repo, publisher)

	body := capturedEventBody("refund.processed", "order_1", "pay_1")
	err := reconciler.HandleEvent(context.Background(), body, signBody(t, body, testWebhookSecret))
	if err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if len(publisher.published) != 0 {
		t.Errorf("expected no events for a refund replay, got %v", publisher.published)
	}
}
