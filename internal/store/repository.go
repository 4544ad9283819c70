/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the enrollment-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yogatara/enrollment-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Catalog methods (read-only; courses, pricing, and coupons are owned by
	// the catalog collaborator).
	FindCourseByID(ctx context.Context, courseID uuid.UUID) (*domain.Course, error)
	FindPricingByCourseID(ctx context.Context, courseID uuid.UUID) (*domain.CoursePricing, error)
	FindCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	FindCouponCourseScope(ctx context.Context, couponID, courseID uuid.UUID) (domain.CouponCourseScope, error)
	FindCouponEligibility(ctx context.Context, couponID, userID uuid.UUID) (*domain.CouponEligibility, error)

	// Enrollment methods
	HasActiveEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	CreateEnrollment(ctx context.Context, enrollment *domain.Enrollment) error
	FindEnrollmentByID(ctx context.Context, enrollmentID, userID uuid.UUID) (*domain.Enrollment, error)
	ListEnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Enrollment, error)
	// ClaimEnrollmentForPayment locks the pending, non-expired enrollment row
	// for (id, user) and verifies it is still payable: past-expiry rows are
	// expired in place (ErrEnrollmentExpired), rows with an in-flight payment
	// are rejected (ErrDuplicatePayment). The lock is held only for the
	// duration of the check.
	ClaimEnrollmentForPayment(ctx context.Context, enrollmentID, userID uuid.UUID, now time.Time) (*domain.Enrollment, error)
	// ExpireStaleEnrollments batch-expires pending enrollments whose window
	// closed at or before now. Returns the number of rows transitioned.
	ExpireStaleEnrollments(ctx context.Context, now time.Time, limit int) (int64, error)

	// Payment methods
	// CreatePayment inserts a created-status payment while holding the
	// enrollment row lock, so concurrent opens yield exactly one payment and
	// one ErrDuplicatePayment.
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindPaymentInFlightByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	AuthorizePayment(ctx context.Context, orderID, gatewayPaymentID, signature string) error
	MarkPaymentFailed(ctx context.Context, orderID, reason string, gatewayResponse []byte) error

	// Webhook reconciliation methods. Each applies one gateway event in a
	// single transaction with both the payment and enrollment rows locked.
	ApplyCaptureEvent(ctx context.Context, orderID, gatewayPaymentID string, entity []byte, now time.Time) (*domain.CaptureResult, error)
	ApplyFailureEvent(ctx context.Context, orderID, reason string, entity []byte) error
	ApplyRefundEvent(ctx context.Context, orderID string, entity []byte) (*domain.RefundResult, error)
}
