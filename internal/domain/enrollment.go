/**
 * @description
 * This file defines the core domain models for the enrollment-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Monetary amounts are stored as `decimal.Decimal` with two fractional digits,
 *   which avoids floating-point inaccuracies with financial data. Amounts sent
 *   to the payment gateway are converted to integer minor units (paise).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EnrollmentPaymentStatus enumerates the payment lifecycle of an enrollment.
type EnrollmentPaymentStatus string

const (
	EnrollmentFree     EnrollmentPaymentStatus = "free"
	EnrollmentPending  EnrollmentPaymentStatus = "pending"
	EnrollmentPaid     EnrollmentPaymentStatus = "paid"
	EnrollmentRefunded EnrollmentPaymentStatus = "refunded"
	EnrollmentExpired  EnrollmentPaymentStatus = "expired"
)

// Enrollment represents a user's claim on a course. The four pricing fields
// form an immutable snapshot computed at initiation time; status transitions
// are the only mutations an enrollment ever sees. Rows are never deleted.
type Enrollment struct {
	ID             uuid.UUID               `json:"id"`
	UserID         uuid.UUID               `json:"user_id"`
	CourseID       uuid.UUID               `json:"course_id"`
	CouponID       *uuid.UUID              `json:"coupon_id,omitempty"`
	BaseAmount     decimal.Decimal         `json:"base_amount"`
	DiscountAmount decimal.Decimal         `json:"discount_amount"`
	TaxAmount      decimal.Decimal         `json:"tax_amount"`
	FinalAmount    decimal.Decimal         `json:"final_amount"`
	Currency       string                  `json:"currency"`
	PaymentStatus  EnrollmentPaymentStatus `json:"payment_status"`
	IsActive       bool                    `json:"is_active"`
	ExpiresAt      *time.Time              `json:"expires_at,omitempty"`
	IsExpired      bool                    `json:"is_expired"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// PastExpiry reports whether the enrollment's payment window has closed at the
// given instant. An enrollment flagged is_expired stays expired forever; the
// flag is one-way.
func (e *Enrollment) PastExpiry(now time.Time) bool {
	if e.IsExpired {
		return true
	}
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Expire applies the pending->expired transition in place and reports whether
// any state changed. Calling it on an already-expired or non-pending
// enrollment is a no-op, which makes the sweep idempotent.
func (e *Enrollment) Expire(now time.Time) bool {
	if e.PaymentStatus != EnrollmentPending {
		return false
	}
	if e.ExpiresAt == nil || e.ExpiresAt.After(now) {
		return false
	}
	e.IsExpired = true
	e.PaymentStatus = EnrollmentExpired
	e.IsActive = false
	return true
}

// PricingSnapshot carries the four amounts frozen onto an enrollment at
// initiation time. final = (base - discount) + tax, tax computed on the
// discounted amount only.
type PricingSnapshot struct {
	BaseAmount     decimal.Decimal `json:"base_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

// EnrollmentInitRequest is the DTO for incoming enrollment initiation API requests.
type EnrollmentInitRequest struct {
	CourseID   uuid.UUID `json:"course_id"`
	CouponCode string    `json:"coupon_code,omitempty"`
}

// PaymentInitRequest is the DTO for opening a payment against a pending enrollment.
type PaymentInitRequest struct {
	EnrollmentID uuid.UUID `json:"enrollment_id"`
}

// PaymentVerifyRequest carries the checkout callback fields the client relays
// from the gateway after a successful checkout.
type PaymentVerifyRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}
