/**
 * @description
 * This file contains the core business logic for the enrollment-service. The
 * `Service` struct orchestrates the enrollment and payment lifecycle,
 * coordinating between the database repository, the Razorpay payment gateway,
 * and the message broker.
 *
 * Key features:
 * - Enrollment initiation: pricing snapshot, coupon validation, free-course
 *   short circuit, and the 60-minute payment window for paid courses.
 * - Payment opening: claims a pending enrollment, creates a gateway order,
 *   and records the local payment row.
 * - Synchronous verification of checkout callbacks via HMAC signature.
 * - A batch sweep that expires stale pending enrollments.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: For monetary amounts.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/razorpay, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yogatara/enrollment-service/internal/domain"
	"github.com/yogatara/enrollment-service/internal/store"
	"github.com/yogatara/enrollment-service/pkg/rabbitmq"
	"github.com/yogatara/enrollment-service/pkg/razorpay"
)

var (
	// ErrSignatureMismatch means a gateway signature failed verification.
	ErrSignatureMismatch = errors.New("signature verification failed")
	// ErrRateLimited means the caller exceeded a request rate limit.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RateLimitError carries the retry hint alongside ErrRateLimited.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// PaymentGateway is the slice of the Razorpay client the service depends on.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*razorpay.Order, error)
}

// RateLimiter is the slice of the Redis limiter the service depends on.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// PaymentInitResponse is what the client needs to open the gateway checkout.
type PaymentInitResponse struct {
	PaymentID       uuid.UUID       `json:"payment_id"`
	EnrollmentID    uuid.UUID       `json:"enrollment_id"`
	RazorpayOrderID string          `json:"razorpay_order_id"`
	RazorpayKeyID   string          `json:"razorpay_key_id"`
	Amount          decimal.Decimal `json:"amount"`
	AmountMinor     int64           `json:"amount_minor"`
	Currency        string          `json:"currency"`
}

// Service provides the core business logic for enrollments and payments.
type Service struct {
	repo          store.Repository
	gateway       PaymentGateway
	eventProducer rabbitmq.Publisher

	razorpayKeyID         string
	razorpayKeySecret     string
	razorpayWebhookSecret string

	taxRate         decimal.Decimal
	expiryWindow    time.Duration
	defaultCurrency string
	sweepBatchSize  int

	rateLimiter           RateLimiter
	initiationRatePerMin  int
	paymentOpenRatePerMin int

	now func() time.Time
}

// NewService creates a new enrollment service instance.
func NewService(
	repo store.Repository,
	gateway PaymentGateway,
	producer rabbitmq.Publisher,
	razorpayKeyID string,
	razorpayKeySecret string,
	razorpayWebhookSecret string,
	taxRate decimal.Decimal,
	expiryWindow time.Duration,
	defaultCurrency string,
	sweepBatchSize int,
) *Service {
	if sweepBatchSize <= 0 {
		sweepBatchSize = 500
	}
	return &Service{
		repo:                  repo,
		gateway:               gateway,
		eventProducer:         producer,
		razorpayKeyID:         razorpayKeyID,
		razorpayKeySecret:     razorpayKeySecret,
		razorpayWebhookSecret: razorpayWebhookSecret,
		taxRate:               taxRate,
		expiryWindow:          expiryWindow,
		defaultCurrency:       defaultCurrency,
		sweepBatchSize:        sweepBatchSize,
		now:                   time.Now,
	}
}

// SetRateLimiter installs the distributed rate limiter. Without one, rate
// limiting is disabled.
func (s *Service) SetRateLimiter(limiter RateLimiter, initiationPerMin, paymentOpenPerMin int) {
	s.rateLimiter = limiter
	s.initiationRatePerMin = initiationPerMin
	s.paymentOpenRatePerMin = paymentOpenPerMin
}

func (s *Service) consumeRateLimit(ctx context.Context, scope string, userID uuid.UUID, limit int) error {
	if s.rateLimiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, userID.String(), limit, time.Minute)
	if err != nil {
		// Limiter outages must not block purchases.
		log.Printf("level=warn component=service msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > limit {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// InitiateEnrollment creates an enrollment for a user on a course, freezing
// the pricing snapshot. Free courses activate immediately; paid courses start
// a pending enrollment with a payment window.
func (s *Service) InitiateEnrollment(ctx context.Context, userID uuid.UUID, req domain.EnrollmentInitRequest) (*domain.Enrollment, error) {
	if err := s.consumeRateLimit(ctx, "enrollment_initiate", userID, s.initiationRatePerMin); err != nil {
		return nil, err
	}

	now := s.now()

	course, err := s.repo.FindCourseByID(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.HasActiveEnrollment(ctx, userID, course.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing enrollment: %w", err)
	}
	if exists {
		return nil, store.ErrDuplicateEnrollment
	}

	pricing, err := s.repo.FindPricingByCourseID(ctx, course.ID)
	if err != nil {
		return nil, err
	}

	var coupon *domain.Coupon
	if code := strings.TrimSpace(req.CouponCode); code != "" && !pricing.IsFree {
		check, err := s.resolveCoupon(ctx, code, userID, course.ID, now)
		if err != nil {
			return nil, err
		}
		coupon = check.coupon
	}

	quote, err := ComputeQuote(pricing, coupon, s.taxRate)
	if err != nil {
		return nil, err
	}

	currency := pricing.Currency
	if strings.TrimSpace(currency) == "" {
		currency = s.defaultCurrency
	}

	enrollment := &domain.Enrollment{
		ID:             uuid.New(),
		UserID:         userID,
		CourseID:       course.ID,
		BaseAmount:     quote.BaseAmount,
		DiscountAmount: quote.DiscountAmount,
		TaxAmount:      quote.TaxAmount,
		FinalAmount:    quote.FinalAmount,
		Currency:       currency,
	}
	if coupon != nil {
		couponID := coupon.ID
		enrollment.CouponID = &couponID
	}

	if pricing.IsFree || quote.FinalAmount.IsZero() {
		enrollment.PaymentStatus = domain.EnrollmentFree
		enrollment.IsActive = true
	} else {
		expiresAt := now.Add(s.expiryWindow)
		enrollment.PaymentStatus = domain.EnrollmentPending
		enrollment.IsActive = false
		enrollment.ExpiresAt = &expiresAt
	}

	if err := s.repo.CreateEnrollment(ctx, enrollment); err != nil {
		return nil, err
	}

	log.Printf("level=info component=service msg=\"enrollment created\" enrollment_id=%s user_id=%s course_id=%s status=%s final_amount=%s",
		enrollment.ID, userID, course.ID, enrollment.PaymentStatus, enrollment.FinalAmount)
	return enrollment, nil
}

// GetEnrollment returns one enrollment owned by the user.
func (s *Service) GetEnrollment(ctx context.Context, userID, enrollmentID uuid.UUID) (*domain.Enrollment, error) {
	return s.repo.FindEnrollmentByID(ctx, enrollmentID, userID)
}

// ListEnrollments returns the user's enrollments, newest first.
func (s *Service) ListEnrollments(ctx context.Context, userID uuid.UUID) ([]domain.Enrollment, error) {
	return s.repo.ListEnrollmentsByUser(ctx, userID)
}

// OpenPayment claims a pending enrollment, creates a Razorpay order for its
// final amount, and records the local payment row in created status.
func (s *Service) OpenPayment(ctx context.Context, userID uuid.UUID, req domain.PaymentInitRequest) (*PaymentInitResponse, error) {
	if err := s.consumeRateLimit(ctx, "payment_open", userID, s.paymentOpenRatePerMin); err != nil {
		return nil, err
	}

	now := s.now()

	enrollment, err := s.repo.ClaimEnrollmentForPayment(ctx, req.EnrollmentID, userID, now)
	if err != nil {
		return nil, err
	}

	paymentID := uuid.New()
	amountMinor := domain.MinorUnits(enrollment.FinalAmount)
	notes := map[string]string{
		"enrollment_id": enrollment.ID.String(),
		"course_id":     enrollment.CourseID.String(),
		"user_id":       enrollment.UserID.String(),
	}

	order, err := s.gateway.CreateOrder(ctx, amountMinor, enrollment.Currency, "enr_"+enrollment.ID.String(), notes)
	if err != nil {
		log.Printf("level=error component=service msg=\"gateway order creation failed\" enrollment_id=%s err=%v", enrollment.ID, err)
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	payment := &domain.Payment{
		ID:              paymentID,
		EnrollmentID:    enrollment.ID,
		RazorpayOrderID: order.ID,
		Amount:          enrollment.FinalAmount,
		Currency:        enrollment.Currency,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	log.Printf("level=info component=service msg=\"payment opened\" payment_id=%s enrollment_id=%s order_id=%s amount_minor=%d",
		payment.ID, enrollment.ID, order.ID, amountMinor)

	return &PaymentInitResponse{
		PaymentID:       payment.ID,
		EnrollmentID:    enrollment.ID,
		RazorpayOrderID: order.ID,
		RazorpayKeyID:   s.razorpayKeyID,
		Amount:          enrollment.FinalAmount,
		AmountMinor:     amountMinor,
		Currency:        enrollment.Currency,
	}, nil
}

// VerifyPayment checks the checkout callback signature for an in-flight
// payment. A valid signature moves the payment to authorized; an invalid one
// marks it failed and returns ErrSignatureMismatch. Capture and activation
// always come from the webhook, never from here.
func (s *Service) VerifyPayment(ctx context.Context, userID uuid.UUID, req domain.PaymentVerifyRequest) error {
	payment, err := s.repo.FindPaymentInFlightByOrderID(ctx, req.RazorpayOrderID)
	if err != nil {
		return err
	}

	if _, err := s.repo.FindEnrollmentByID(ctx, payment.EnrollmentID, userID); err != nil {
		return err
	}

	if !razorpay.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, s.razorpayKeySecret) {
		log.Printf("level=warn component=service msg=\"payment signature mismatch\" order_id=%s payment_id=%s", req.RazorpayOrderID, payment.ID)
		if markErr := s.repo.MarkPaymentFailed(ctx, req.RazorpayOrderID, "Signature verification failed", nil); markErr != nil && !errors.Is(markErr, store.ErrPaymentNotFound) {
			log.Printf("level=error component=service msg=\"failed to mark payment failed\" order_id=%s err=%v", req.RazorpayOrderID, markErr)
		}
		return ErrSignatureMismatch
	}

	if err := s.repo.AuthorizePayment(ctx, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature); err != nil {
		return err
	}

	log.Printf("level=info component=service msg=\"payment authorized\" order_id=%s payment_id=%s", req.RazorpayOrderID, payment.ID)
	return nil
}

// ExpireStaleEnrollments sweeps pending enrollments whose payment window has
// closed, in batches. Returns the number of rows expired.
func (s *Service) ExpireStaleEnrollments(ctx context.Context) (int64, error) {
	var total int64
	for {
		n, err := s.repo.ExpireStaleEnrollments(ctx, s.now(), s.sweepBatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(s.sweepBatchSize) {
			break
		}
	}
	if total > 0 {
		log.Printf("level=info component=service msg=\"stale enrollments expired\" count=%d", total)
	}
	return total, nil
}
