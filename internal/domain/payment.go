package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus enumerates the local payment state machine.
// created -> authorized (synchronous verify) -> captured (webhook);
// created/authorized -> failed; captured -> refunded.
type PaymentStatus string

const (
	PaymentCreated    PaymentStatus = "created"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// InFlight reports whether the status still counts against the
// one-in-flight-payment-per-enrollment invariant.
func (s PaymentStatus) InFlight() bool {
	return s == PaymentCreated || s == PaymentAuthorized
}

// Payment is one attempt to pay for an enrollment via the gateway. Many
// payments may exist per enrollment across retries, but at most one may be
// in-flight at a time. Rows are never deleted.
type Payment struct {
	ID                uuid.UUID       `json:"id"`
	EnrollmentID      uuid.UUID       `json:"enrollment_id"`
	RazorpayOrderID   string          `json:"razorpay_order_id"`
	RazorpayPaymentID *string         `json:"razorpay_payment_id,omitempty"`
	RazorpaySignature *string         `json:"-"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            PaymentStatus   `json:"status"`
	GatewayResponse   []byte          `json:"-"`
	FailureReason     *string         `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// MinorUnits converts a two-decimal amount to integer minor units (paise for
// INR) for the gateway's order API.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CaptureOutcome describes the result of applying a payment.captured webhook
// event against local state.
type CaptureOutcome string

const (
	// CaptureApplied means the payment moved to captured and the enrollment
	// was activated.
	CaptureApplied CaptureOutcome = "applied"
	// CaptureRejectedExpired means money was captured after the enrollment
	// window closed: the payment is marked failed and access is withheld.
	CaptureRejectedExpired CaptureOutcome = "rejected_expired"
	// CaptureNoop means the event was a replay of an already-applied capture.
	CaptureNoop CaptureOutcome = "noop"
)

// CaptureResult reports what a capture event did, with enough enrollment
// context to publish downstream lifecycle events.
type CaptureResult struct {
	Outcome      CaptureOutcome
	PaymentID    uuid.UUID
	EnrollmentID uuid.UUID
	UserID       uuid.UUID
	CourseID     uuid.UUID
	Amount       decimal.Decimal
	Currency     string
}

// RefundResult reports what a refund.processed event did.
type RefundResult struct {
	Applied      bool
	PaymentID    uuid.UUID
	EnrollmentID uuid.UUID
	UserID       uuid.UUID
	CourseID     uuid.UUID
	Amount       decimal.Decimal
	Currency     string
}
